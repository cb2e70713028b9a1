package vm

import (
	"fmt"
	"io"
	"strings"

	"github.com/funvibe/oxython/internal/config"
)

func (vm *VM) write(s string) error {
	if vm.out == nil {
		return nil
	}
	if _, err := io.WriteString(vm.out, s); err != nil {
		return fmt.Errorf("print: %w", err)
	}
	return nil
}

// stringify is the print/str() form: strings are bare and instances use
// __str__, falling back to __repr__.
func (vm *VM) stringify(v Value) (string, error) {
	if s, ok := v.AsString(); ok {
		return s, nil
	}
	if inst, ok := v.Obj.(*ObjInstance); ok {
		if s, ok, err := vm.callDunder(v, inst, config.StrMethodName); ok || err != nil {
			return s, err
		}
		if s, ok, err := vm.callDunder(v, inst, config.ReprMethodName); ok || err != nil {
			return s, err
		}
	}
	return vm.represent(v)
}

// represent is the form used inside containers: strings are quoted and
// instances use __repr__.
func (vm *VM) represent(v Value) (string, error) {
	switch o := v.Obj.(type) {
	case *ObjInstance:
		if s, ok, err := vm.callDunder(v, o, config.ReprMethodName); ok || err != nil {
			return s, err
		}
		return o.Inspect(), nil
	case *ObjList:
		inner, err := vm.representAll(o.Elements)
		if err != nil {
			return "", err
		}
		return "[" + inner + "]", nil
	case *ObjTuple:
		inner, err := vm.representAll(o.Elements)
		if err != nil {
			return "", err
		}
		if len(o.Elements) == 1 {
			return "(" + inner + ",)", nil
		}
		return "(" + inner + ")", nil
	case *ObjDict:
		var sb strings.Builder
		sb.WriteString("{")
		for i, e := range o.Entries {
			if i > 0 {
				sb.WriteString(", ")
			}
			s, err := vm.represent(e.Value)
			if err != nil {
				return "", err
			}
			sb.WriteString(quoteString(e.Key))
			sb.WriteString(": ")
			sb.WriteString(s)
		}
		sb.WriteString("}")
		return sb.String(), nil
	}
	return v.Repr(), nil
}

func (vm *VM) representAll(elems []Value) (string, error) {
	parts := make([]string, len(elems))
	for i, e := range elems {
		s, err := vm.represent(e)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

// callDunder runs a user-defined __str__ or __repr__ to completion.
// ok is false when the class chain does not define it.
func (vm *VM) callDunder(v Value, inst *ObjInstance, name string) (string, bool, error) {
	method, found := inst.Class.FindMethod(name)
	if !found {
		return "", false, nil
	}
	result, err := vm.callValueAndRun(ObjVal(&ObjBoundMethod{Receiver: v, Method: method}))
	if err != nil {
		return "", true, err
	}
	s, ok := result.AsString()
	if !ok {
		return "", true, fmt.Errorf("%s returned non-string (type %s)", name, result.TypeName())
	}
	return s, true, nil
}

// Stringify renders v the way print does, running user __str__ methods.
func (vm *VM) Stringify(v Value) (s string, err error) {
	defer vm.unwindOnError(vm.frameCount, vm.sp, &err)
	defer vm.recoverHost(&err)
	return vm.stringify(v)
}

// Represent renders v the way a container element or REPL echo does.
func (vm *VM) Represent(v Value) (s string, err error) {
	defer vm.unwindOnError(vm.frameCount, vm.sp, &err)
	defer vm.recoverHost(&err)
	return vm.represent(v)
}
