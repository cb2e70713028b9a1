package vm

import (
	"fmt"

	"github.com/funvibe/oxython/internal/config"
)

// getAttr resolves obj.name. Instance fields shadow methods; methods
// found through an instance or a super proxy are bound to the instance.
func (vm *VM) getAttr(obj Value, name string) (Value, error) {
	switch o := obj.Obj.(type) {
	case *ObjInstance:
		if name == config.ClassAttr {
			return ObjVal(o.Class), nil
		}
		if v, ok := o.Fields[name]; ok {
			return v, nil
		}
		if m, ok := o.Class.FindMethod(name); ok {
			return ObjVal(&ObjBoundMethod{Receiver: obj, Method: m}), nil
		}
		return NilVal(), fmt.Errorf("'%s' object has no attribute '%s'", o.Class.Name, name)

	case *ObjClass:
		if name == config.NameAttr || name == config.QualnameAttr {
			return StringVal(o.Name), nil
		}
		if m, ok := o.FindMethod(name); ok {
			return ObjVal(m), nil
		}
		return NilVal(), fmt.Errorf("type object '%s' has no attribute '%s'", o.Name, name)

	case *ObjSuper:
		if m, ok := o.Parent.FindMethod(name); ok {
			return ObjVal(&ObjBoundMethod{Receiver: o.Instance, Method: m}), nil
		}
		return NilVal(), fmt.Errorf("'super' object has no attribute '%s'", name)

	case *ObjFunction:
		if v, ok := vm.functionAttr(o.Proto, o, name); ok {
			return v, nil
		}
		return NilVal(), fmt.Errorf("'function' object has no attribute '%s'", name)

	case *Prototype:
		if v, ok := vm.functionAttr(o, nil, name); ok {
			return v, nil
		}
		return NilVal(), fmt.Errorf("'function' object has no attribute '%s'", name)

	case *ObjBoundMethod:
		if name == "__self__" {
			return o.Receiver, nil
		}
		if name == "__func__" {
			return ObjVal(o.Method), nil
		}
		if v, ok := vm.functionAttr(o.Method.Proto, o.Method, name); ok {
			return v, nil
		}
		return NilVal(), fmt.Errorf("'method' object has no attribute '%s'", name)

	case *ObjNative:
		if name == config.NameAttr || name == config.QualnameAttr {
			return StringVal(o.Name), nil
		}
	}
	return NilVal(), fmt.Errorf("'%s' object has no attribute '%s'", obj.TypeName(), name)
}

// functionAttr serves the introspection names. fn is nil for a bare
// prototype, which has no globals or closure.
func (vm *VM) functionAttr(proto *Prototype, fn *ObjFunction, name string) (Value, bool) {
	switch name {
	case config.NameAttr:
		return StringVal(proto.Name), true
	case config.QualnameAttr:
		return StringVal(proto.QualName), true
	case config.ModuleAttr:
		return StringVal(proto.Module), true
	case config.DocAttr:
		if proto.Doc == nil {
			return NilVal(), true
		}
		return StringVal(*proto.Doc), true
	case config.AnnotationsAttr:
		return ObjVal(annotations(proto)), true
	case config.CodeAttr:
		return ObjVal(&ObjCode{Name: proto.Name, Chunk: proto.Chunk}), true
	case config.DefaultsAttr:
		if len(proto.Defaults) == 0 {
			return NilVal(), true
		}
		defaults := make([]Value, len(proto.Defaults))
		copy(defaults, proto.Defaults)
		return TupleVal(defaults), true
	case config.GlobalsAttr:
		if fn == nil || fn.Globals == nil {
			return ObjVal(&ObjDict{}), true
		}
		return ObjVal(fn.Globals.ToDict()), true
	case config.ClosureAttr:
		if fn == nil || len(fn.Upvalues) == 0 {
			return NilVal(), true
		}
		cells := make([]Value, len(fn.Upvalues))
		for i, uv := range fn.Upvalues {
			cells[i] = vm.readUpvalue(uv)
		}
		return TupleVal(cells), true
	}
	return NilVal(), false
}

func annotations(proto *Prototype) *ObjDict {
	dict := &ObjDict{}
	for i, t := range proto.ParamTypes {
		if t != nil && i < len(proto.ParamNames) {
			dict.Entries = append(dict.Entries, DictEntry{Key: proto.ParamNames[i], Value: StringVal(t.String())})
		}
	}
	if proto.ReturnType != nil {
		dict.Entries = append(dict.Entries, DictEntry{Key: config.ReturnAnnotKey, Value: StringVal(proto.ReturnType.String())})
	}
	return dict
}

// setAttr mutates an instance field in place
func setAttr(obj Value, name string, value Value) error {
	inst, ok := obj.Obj.(*ObjInstance)
	if !ok {
		return fmt.Errorf("'%s' object has no attribute '%s'", obj.TypeName(), name)
	}
	inst.Fields[name] = value
	return nil
}
