package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/funvibe/oxython/internal/config"
)

// registerNatives installs the host functions every VM starts with
func (vm *VM) registerNatives() {
	vm.DefineNative(config.SuperFuncName, nativeSuper)
	vm.DefineNative(config.StrFuncName, nativeStr)
	vm.DefineNative(config.IntFuncName, nativeInt)
	vm.DefineNative(config.FloatFuncName, nativeFloat)
	vm.DefineNative(config.BoolFuncName, nativeBool)
	vm.DefineNative(config.IsInstanceFuncName, nativeIsInstance)
}

func expectNativeArgs(name string, args []Value, max int) error {
	if len(args) > max {
		return fmt.Errorf("%s() takes at most %d argument%s (%d given)", name, max, plural(max), len(args))
	}
	return nil
}

// nativeSuper takes self explicitly or, with no arguments, from the
// calling method's first parameter.
func nativeSuper(vm *VM, args []Value, classContext *ObjClass) (Value, error) {
	if err := expectNativeArgs(config.SuperFuncName, args, 1); err != nil {
		return NilVal(), err
	}
	if classContext == nil {
		return NilVal(), fmt.Errorf("super() can only be called inside a method")
	}

	var self Value
	if len(args) == 1 {
		self = args[0]
	} else {
		if vm.frame == nil || vm.frame.function.Proto.Arity < 1 {
			return NilVal(), fmt.Errorf("super() requires access to self")
		}
		self = vm.stack[vm.frame.slot+1]
	}
	if _, ok := self.Obj.(*ObjInstance); !ok {
		return NilVal(), fmt.Errorf("super() requires access to self")
	}
	if classContext.Parent == nil {
		return NilVal(), fmt.Errorf("super() called in class with no parent")
	}
	return ObjVal(&ObjSuper{Instance: self, Parent: classContext.Parent}), nil
}

func nativeStr(vm *VM, args []Value, _ *ObjClass) (Value, error) {
	if err := expectNativeArgs(config.StrFuncName, args, 1); err != nil {
		return NilVal(), err
	}
	if len(args) == 0 {
		return StringVal(""), nil
	}
	s, err := vm.stringify(args[0])
	if err != nil {
		return NilVal(), err
	}
	return StringVal(s), nil
}

func nativeInt(_ *VM, args []Value, _ *ObjClass) (Value, error) {
	if err := expectNativeArgs(config.IntFuncName, args, 1); err != nil {
		return NilVal(), err
	}
	if len(args) == 0 {
		return IntVal(0), nil
	}
	v := args[0]
	switch v.Type {
	case ValInt:
		return v, nil
	case ValBool:
		return IntVal(int64(v.Data)), nil
	case ValFloat:
		f := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return NilVal(), fmt.Errorf("cannot convert float %s to integer", formatFloat(f))
		}
		return IntVal(int64(f)), nil
	}
	if s, ok := v.AsString(); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return NilVal(), fmt.Errorf("invalid literal for int() with base 10: %s", quoteString(s))
		}
		return IntVal(n), nil
	}
	return NilVal(), fmt.Errorf("int() argument must be a string or a number, not '%s'", v.TypeName())
}

func nativeFloat(_ *VM, args []Value, _ *ObjClass) (Value, error) {
	if err := expectNativeArgs(config.FloatFuncName, args, 1); err != nil {
		return NilVal(), err
	}
	if len(args) == 0 {
		return FloatVal(0), nil
	}
	v := args[0]
	if f, ok := v.AsNumber(); ok {
		return FloatVal(f), nil
	}
	if v.IsBool() {
		return FloatVal(float64(v.Data)), nil
	}
	if s, ok := v.AsString(); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return NilVal(), fmt.Errorf("could not convert string to float: %s", quoteString(s))
		}
		return FloatVal(f), nil
	}
	return NilVal(), fmt.Errorf("float() argument must be a string or a number, not '%s'", v.TypeName())
}

func nativeBool(_ *VM, args []Value, _ *ObjClass) (Value, error) {
	if err := expectNativeArgs(config.BoolFuncName, args, 1); err != nil {
		return NilVal(), err
	}
	if len(args) == 0 {
		return BoolVal(false), nil
	}
	return BoolVal(args[0].IsTruthy()), nil
}

func nativeIsInstance(_ *VM, args []Value, _ *ObjClass) (Value, error) {
	if len(args) != 2 {
		return NilVal(), fmt.Errorf("isinstance expected 2 arguments, got %d", len(args))
	}
	class, ok := args[1].Obj.(*ObjClass)
	if !ok {
		return NilVal(), fmt.Errorf("isinstance() arg 2 must be a class, not '%s'", args[1].TypeName())
	}
	inst, ok := args[0].Obj.(*ObjInstance)
	if !ok {
		return BoolVal(false), nil
	}
	return BoolVal(inst.Class.IsSubclassOf(class)), nil
}
