package vm

import (
	"fmt"
)

// execute runs a single decoded opcode
func (vm *VM) execute(op Opcode) error {
	switch op {
	case OP_CONSTANT:
		vm.push(vm.readConstant())

	case OP_ADD, OP_SUBTRACT, OP_MULTIPLY, OP_DIVIDE, OP_MODULO:
		b := vm.pop()
		a := vm.pop()
		result, err := binaryOp(op, a, b)
		if err != nil {
			return err
		}
		vm.push(result)

	case OP_LESS:
		b := vm.pop()
		a := vm.pop()
		result, err := lessThan(a, b)
		if err != nil {
			return err
		}
		vm.push(BoolVal(result))

	case OP_EQUAL:
		b := vm.pop()
		a := vm.pop()
		vm.push(BoolVal(a.Equals(b)))

	case OP_CONTAINS:
		haystack := vm.pop()
		needle := vm.pop()
		result, err := contains(needle, haystack)
		if err != nil {
			return err
		}
		vm.push(BoolVal(result))

	case OP_INDEX:
		key := vm.pop()
		coll := vm.pop()
		result, err := index(coll, key)
		if err != nil {
			return err
		}
		vm.push(result)

	case OP_SET_INDEX:
		value := vm.pop()
		key := vm.pop()
		coll := vm.pop()
		result, err := setIndex(coll, key, value)
		if err != nil {
			return err
		}
		vm.push(result)

	case OP_APPEND:
		value := vm.pop()
		list := vm.pop()
		result, err := appendValue(list, value)
		if err != nil {
			return err
		}
		vm.push(result)

	case OP_RANGE:
		b := vm.pop()
		a := vm.pop()
		result, err := rangeList(a, b)
		if err != nil {
			return err
		}
		vm.push(result)

	case OP_SLICE:
		step := vm.pop()
		end := vm.pop()
		start := vm.pop()
		coll := vm.pop()
		result, err := slice(coll, start, end, step)
		if err != nil {
			return err
		}
		vm.push(result)

	case OP_LEN:
		n, err := length(vm.pop())
		if err != nil {
			return err
		}
		vm.push(IntVal(int64(n)))

	case OP_TO_LIST:
		elems, err := iterValues(vm.pop())
		if err != nil {
			return err
		}
		vm.push(ListVal(elems))

	case OP_ZIP:
		argc := int(vm.readByte())
		mask := vm.readU16()
		if vm.sp < argc {
			panic(errStackUnderflow)
		}
		args := make([]Value, argc)
		copy(args, vm.stack[vm.sp-argc:vm.sp])
		vm.sp -= argc
		result, err := zip(args, mask)
		if err != nil {
			return err
		}
		vm.push(result)

	case OP_STR_LOWER:
		result, err := strLower(vm.pop())
		if err != nil {
			return err
		}
		vm.push(result)

	case OP_STR_IS_ALNUM:
		result, err := strIsAlnum(vm.pop())
		if err != nil {
			return err
		}
		vm.push(result)

	case OP_STR_JOIN:
		items := vm.pop()
		sep := vm.pop()
		result, err := strJoin(sep, items)
		if err != nil {
			return err
		}
		vm.push(result)

	case OP_TO_STR:
		s, err := vm.stringify(vm.pop())
		if err != nil {
			return err
		}
		vm.push(StringVal(s))

	case OP_ROUND:
		digits := vm.pop()
		x := vm.pop()
		result, err := round(x, digits)
		if err != nil {
			return err
		}
		vm.push(result)

	case OP_TYPE:
		vm.push(typeOf(vm.pop()))

	case OP_DEFINE_GLOBAL:
		name := vm.readName()
		vm.globals = vm.globals.Put(name, vm.pop())

	case OP_GET_GLOBAL:
		name := vm.readName()
		value, ok := vm.globals.Get(name)
		if !ok {
			return fmt.Errorf("name '%s' is not defined", name)
		}
		vm.push(value)

	case OP_SET_GLOBAL:
		name := vm.readName()
		if !vm.globals.Has(name) {
			return fmt.Errorf("name '%s' is not defined", name)
		}
		vm.globals = vm.globals.Put(name, vm.peek(0))

	case OP_GET_LOCAL:
		slot := vm.readU16()
		vm.push(vm.stack[vm.frame.slot+slot])

	case OP_SET_LOCAL:
		slot := vm.readU16()
		vm.stack[vm.frame.slot+slot] = vm.peek(0)

	case OP_GET_UPVALUE:
		idx := int(vm.readByte())
		vm.push(vm.readUpvalue(vm.frame.function.Upvalues[idx]))

	case OP_SET_UPVALUE:
		idx := int(vm.readByte())
		vm.writeUpvalue(vm.frame.function.Upvalues[idx], vm.peek(0))

	case OP_MAKE_FUNCTION:
		proto, ok := vm.readConstant().Obj.(*Prototype)
		if !ok {
			panic(errInvalidConstantIndex)
		}
		vm.push(ObjVal(vm.makeFunction(proto)))

	case OP_MAKE_CLASS:
		n := int(vm.readByte())
		class, err := vm.makeClass(n)
		if err != nil {
			return err
		}
		vm.push(ObjVal(class))

	case OP_INHERIT:
		parent := vm.pop()
		class := vm.pop()
		result, err := inherit(class, parent)
		if err != nil {
			return err
		}
		vm.push(ObjVal(result))

	case OP_GET_ATTR:
		name := vm.readName()
		result, err := vm.getAttr(vm.pop(), name)
		if err != nil {
			return err
		}
		vm.push(result)

	case OP_SET_ATTR:
		name := vm.readName()
		value := vm.pop()
		obj := vm.pop()
		if err := setAttr(obj, name, value); err != nil {
			return err
		}

	case OP_CALL:
		argc := int(vm.readByte())
		return vm.callValue(vm.peek(argc), argc)

	case OP_RETURN:
		vm.doReturn()

	case OP_JUMP:
		offset := vm.readU16()
		vm.frame.ip += offset

	case OP_JUMP_IF_FALSE:
		offset := vm.readU16()
		if !vm.peek(0).IsTruthy() {
			vm.frame.ip += offset
		}

	case OP_LOOP:
		offset := vm.readU16()
		vm.frame.ip -= offset

	case OP_ITER_NEXT:
		offset := vm.readU16()
		cursor := vm.peek(0)
		coll := vm.peek(1)
		elem, ok, err := iterElement(coll, int(cursor.AsInt()))
		if err != nil {
			return err
		}
		if !ok {
			vm.sp -= 2
			vm.frame.ip += offset
			return nil
		}
		vm.stack[vm.sp-1] = IntVal(cursor.AsInt() + 1)
		vm.push(elem)

	case OP_PRINT, OP_PRINT_SPACED:
		s, err := vm.stringify(vm.pop())
		if err != nil {
			return err
		}
		if op == OP_PRINT_SPACED {
			s += " "
		}
		if err := vm.write(s); err != nil {
			return err
		}

	case OP_PRINTLN:
		if err := vm.write("\n"); err != nil {
			return err
		}

	case OP_POP:
		vm.lastPopped = vm.pop()

	case OP_DUP:
		vm.push(vm.peek(0))

	case OP_SWAP:
		a := vm.pop()
		b := vm.pop()
		vm.push(a)
		vm.push(b)

	case OP_BUILD_LIST, OP_BUILD_TUPLE:
		n := vm.readU16()
		if vm.sp < n {
			panic(errStackUnderflow)
		}
		elems := make([]Value, n)
		copy(elems, vm.stack[vm.sp-n:vm.sp])
		vm.sp -= n
		if op == OP_BUILD_LIST {
			vm.push(ListVal(elems))
		} else {
			vm.push(TupleVal(elems))
		}

	case OP_BUILD_DICT:
		n := vm.readU16()
		if vm.sp < 2*n {
			panic(errStackUnderflow)
		}
		dict, err := buildDict(vm.stack[vm.sp-2*n : vm.sp])
		if err != nil {
			return err
		}
		vm.sp -= 2 * n
		vm.push(ObjVal(dict))

	default:
		return fmt.Errorf("unknown opcode %d", op)
	}
	return nil
}

// makeFunction instantiates proto, capturing upvalues from the current frame
func (vm *VM) makeFunction(proto *Prototype) *ObjFunction {
	fn := &ObjFunction{
		Proto:    proto,
		Upvalues: make([]*ObjUpvalue, len(proto.Upvalues)),
		Globals:  vm.globals,
	}
	for i, uv := range proto.Upvalues {
		if uv.IsLocal {
			fn.Upvalues[i] = vm.captureUpvalue(vm.frame.slot + uv.Index)
		} else {
			fn.Upvalues[i] = vm.frame.function.Upvalues[uv.Index]
		}
	}
	return fn
}

// makeClass pops the class name, then n method names, then the n method
// functions they belong to.
func (vm *VM) makeClass(n int) (*ObjClass, error) {
	name, ok := vm.pop().AsString()
	if !ok {
		return nil, fmt.Errorf("class name must be a string")
	}
	names := make([]string, n)
	for i := n - 1; i >= 0; i-- {
		s, ok := vm.pop().AsString()
		if !ok {
			return nil, fmt.Errorf("method name must be a string")
		}
		names[i] = s
	}
	class := &ObjClass{Name: name, Methods: make(map[string]*ObjFunction, n)}
	fns := make([]*ObjFunction, n)
	for i := n - 1; i >= 0; i-- {
		fn, ok := vm.pop().Obj.(*ObjFunction)
		if !ok {
			return nil, fmt.Errorf("class body of '%s' produced a non-function method", name)
		}
		fns[i] = fn
	}
	for i, fn := range fns {
		fn.Owner = class
		class.Methods[names[i]] = fn
	}
	return class, nil
}

// inherit builds a subclass of parent with class's methods. Methods are
// copied so their owner is the new class.
func inherit(classVal, parentVal Value) (*ObjClass, error) {
	class, ok := classVal.Obj.(*ObjClass)
	if !ok {
		return nil, fmt.Errorf("cannot inherit into '%s'", classVal.TypeName())
	}
	parent, ok := parentVal.Obj.(*ObjClass)
	if !ok {
		return nil, fmt.Errorf("base class must be a class, not '%s'", parentVal.TypeName())
	}
	sub := &ObjClass{
		Name:    class.Name,
		Methods: make(map[string]*ObjFunction, len(class.Methods)),
		Parent:  parent,
	}
	for name, m := range class.Methods {
		method := *m
		method.Owner = sub
		sub.Methods[name] = &method
	}
	return sub, nil
}
