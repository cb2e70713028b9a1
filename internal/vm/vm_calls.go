package vm

import (
	"fmt"

	"github.com/funvibe/oxython/internal/config"
)

// callValue calls the value at stack[sp-argc-1] with the argc values
// above it. Functions push a frame; natives and argument-less class
// constructors complete immediately.
func (vm *VM) callValue(callee Value, argc int) error {
	switch obj := callee.Obj.(type) {
	case *ObjFunction:
		return vm.callFunction(obj, argc, -1, obj.Owner)

	case *ObjNative:
		args := make([]Value, argc)
		copy(args, vm.stack[vm.sp-argc:vm.sp])
		result, err := obj.Fn(vm, args, vm.classContext())
		if err != nil {
			return err
		}
		vm.sp -= argc + 1
		vm.push(result)
		return nil

	case *ObjClass:
		calleeIdx := vm.sp - argc - 1
		instance := ObjVal(NewInstance(obj))
		vm.stack[calleeIdx] = instance
		if init, ok := obj.FindMethod(config.InitMethodName); ok {
			vm.insertReceiver(argc, instance)
			return vm.callFunction(init, argc+1, calleeIdx, init.Owner)
		}
		if argc != 0 {
			return fmt.Errorf("%s() takes no arguments", obj.Name)
		}
		return nil

	case *ObjBoundMethod:
		vm.insertReceiver(argc, obj.Receiver)
		ctx := obj.Method.Owner
		if ctx == nil {
			if inst, ok := obj.Receiver.Obj.(*ObjInstance); ok {
				ctx = inst.Class
			}
		}
		return vm.callFunction(obj.Method, argc+1, -1, ctx)
	}
	return fmt.Errorf("'%s' object is not callable", callee.TypeName())
}

// insertReceiver shifts the argc arguments up one slot and puts recv in
// front of them, keeping the callee where it is.
func (vm *VM) insertReceiver(argc int, recv Value) {
	vm.push(NilVal())
	first := vm.sp - argc - 1
	copy(vm.stack[first+1:vm.sp], vm.stack[first:vm.sp-1])
	vm.stack[first] = recv
}

// callFunction pushes a frame for fn. Missing trailing arguments take
// their defaults and every local slot is reserved up front.
func (vm *VM) callFunction(fn *ObjFunction, argc, instanceSlot int, classContext *ObjClass) error {
	proto := fn.Proto
	if argc < proto.RequiredArity || argc > proto.Arity {
		return arityError(proto, argc)
	}
	if vm.frameCount >= len(vm.frames) {
		return fmt.Errorf("maximum recursion depth exceeded")
	}

	for i := argc; i < proto.Arity; i++ {
		vm.push(proto.Defaults[i-proto.RequiredArity])
	}
	for i := 0; i < proto.LocalCount; i++ {
		vm.push(NilVal())
	}

	slot := vm.sp - proto.Arity - proto.LocalCount - 1
	vm.pushFrame(fn, slot, instanceSlot, classContext)
	return nil
}

func arityError(proto *Prototype, argc int) error {
	if argc < proto.RequiredArity {
		missing := proto.RequiredArity - argc
		return fmt.Errorf("%s() missing %d required positional argument%s", proto.Name, missing, plural(missing))
	}
	if proto.RequiredArity == proto.Arity {
		return fmt.Errorf("%s() takes %d positional argument%s but %d %s given",
			proto.Name, proto.Arity, plural(proto.Arity), argc, wasWere(argc))
	}
	return fmt.Errorf("%s() takes from %d to %d positional arguments but %d %s given",
		proto.Name, proto.RequiredArity, proto.Arity, argc, wasWere(argc))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}

func (vm *VM) classContext() *ObjClass {
	if vm.frame == nil {
		return nil
	}
	return vm.frame.classContext
}

// callValueAndRun calls callee with args and runs it to completion on the
// current stacks, returning its result. It is used for __str__ and
// __repr__ during printing and for calls made by the host.
func (vm *VM) callValueAndRun(callee Value, args ...Value) (Value, error) {
	if vm.sp+len(args)+1 > len(vm.stack) {
		return NilVal(), errStackOverflow
	}
	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}

	depth := vm.frameCount
	if err := vm.callValue(callee, len(args)); err != nil {
		return NilVal(), err
	}
	if vm.frameCount > depth {
		if err := vm.run(depth); err != nil {
			return NilVal(), err
		}
	}
	return vm.pop(), nil
}

// Call invokes a callable value from the host with the given arguments.
// A failed call leaves the stacks as they were before it.
func (vm *VM) Call(callee Value, args ...Value) (result Value, err error) {
	if vm.frameCount == 0 {
		vm.reset()
	}
	defer vm.unwindOnError(vm.frameCount, vm.sp, &err)
	defer vm.recoverHost(&err)

	result, err = vm.callValueAndRun(callee, args...)
	if err != nil {
		return NilVal(), vm.formatError(err)
	}
	return result, nil
}

// unwindOnError drops the frames and stack slots a failed host entry
// pushed, closing upvalues that point into them.
func (vm *VM) unwindOnError(depth, sp int, err *error) {
	if *err == nil {
		return
	}
	if depth == 0 {
		vm.closeUpvalues(0)
		vm.reset()
		return
	}
	vm.closeUpvalues(sp)
	vm.frameCount = depth
	vm.frame = &vm.frames[depth-1]
	vm.sp = sp
}

// recoverHost turns an internal invariant panic raised outside step into
// an error for host entry points.
func (vm *VM) recoverHost(err *error) {
	if r := recover(); r != nil {
		switch r {
		case errTruncatedBytecode, errStackUnderflow, errStackOverflow, errInvalidConstantIndex:
			*err = vm.formatError(r.(error))
		default:
			panic(r)
		}
	}
}
