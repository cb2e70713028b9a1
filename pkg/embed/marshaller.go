package oxython

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/funvibe/oxython/internal/vm"
)

var valueType = reflect.TypeOf(vm.Value{})

// Marshaller handles conversion between Go and oxython values.
type Marshaller struct{}

func NewMarshaller() *Marshaller {
	return &Marshaller{}
}

// ToValue converts a Go value to an oxython value.
// Structs (and pointers to them) become dicts of their exported fields.
func (m *Marshaller) ToValue(val interface{}) (vm.Value, error) {
	if val == nil {
		return vm.NilVal(), nil
	}

	// Already a VM value
	if v, ok := val.(vm.Value); ok {
		return v, nil
	}

	v := reflect.ValueOf(val)
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return vm.NilVal(), nil
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return vm.IntVal(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return vm.IntVal(int64(v.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return vm.FloatVal(v.Float()), nil
	case reflect.Bool:
		return vm.BoolVal(v.Bool()), nil
	case reflect.String:
		return vm.StringVal(v.String()), nil
	case reflect.Slice, reflect.Array:
		elems, err := m.sliceToValues(v)
		if err != nil {
			return vm.NilVal(), err
		}
		return vm.ListVal(elems), nil
	case reflect.Map:
		return m.mapToDict(v)
	case reflect.Struct:
		// Struct by value -> dict (copy)
		return m.structToDict(v)
	case reflect.Ptr:
		if v.IsNil() {
			return vm.NilVal(), nil
		}
		return m.ToValue(v.Elem().Interface())
	default:
		return vm.NilVal(), fmt.Errorf("unsupported Go type %s", v.Type())
	}
}

// FromValue converts an oxython value to a Go value.
// targetType is optional; if provided, tries to convert to that type.
func (m *Marshaller) FromValue(val vm.Value, targetType reflect.Type) (interface{}, error) {
	// If target type is vm.Value, return as is
	if targetType == valueType {
		return val, nil
	}
	if targetType != nil && targetType.Kind() == reflect.Ptr && val.IsNil() {
		return nil, nil
	}

	switch val.Type {
	case vm.ValNil:
		return nil, nil
	case vm.ValBool:
		return val.AsBool(), nil
	case vm.ValInt:
		n := val.AsInt()
		if targetType != nil {
			switch targetType.Kind() {
			case reflect.Int64:
				return n, nil
			case reflect.Float32, reflect.Float64:
				return float64(n), nil
			}
		}
		return int(n), nil // Default to int
	case vm.ValFloat:
		return val.AsFloat(), nil
	}

	switch o := val.Obj.(type) {
	case *vm.ObjString:
		return o.Value, nil
	case *vm.ObjList:
		return m.valuesToSlice(o.Elements, targetType)
	case *vm.ObjTuple:
		return m.valuesToSlice(o.Elements, targetType)
	case *vm.ObjDict:
		if targetType != nil && targetType.Kind() == reflect.Struct {
			return m.dictToStruct(o, targetType)
		}
		return m.dictToMap(o, targetType)
	case *vm.ObjInstance:
		names := make([]string, 0, len(o.Fields))
		for name := range o.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		fields := &vm.ObjDict{}
		for _, name := range names {
			fields = fields.With(name, o.Fields[name])
		}
		if targetType != nil && targetType.Kind() == reflect.Struct {
			return m.dictToStruct(fields, targetType)
		}
		return m.dictToMap(fields, nil)
	default:
		// Functions, classes and natives stay opaque
		return val, nil
	}
}

func (m *Marshaller) sliceToValues(v reflect.Value) ([]vm.Value, error) {
	elements := make([]vm.Value, v.Len())
	for i := 0; i < v.Len(); i++ {
		val, err := m.ToValue(v.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		elements[i] = val
	}
	return elements, nil
}

// mapToDict requires string keys. Entries are added in key order so the
// dict is deterministic.
func (m *Marshaller) mapToDict(v reflect.Value) (vm.Value, error) {
	if v.Type().Key().Kind() != reflect.String {
		return vm.NilVal(), fmt.Errorf("map key: dict keys must be strings, not %s", v.Type().Key())
	}

	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	result := &vm.ObjDict{}
	for _, k := range keys {
		val, err := m.ToValue(v.MapIndex(k).Interface())
		if err != nil {
			return vm.NilVal(), fmt.Errorf("map value: %w", err)
		}
		result = result.With(k.String(), val)
	}
	return vm.ObjVal(result), nil
}

func (m *Marshaller) structToDict(v reflect.Value) (vm.Value, error) {
	result := &vm.ObjDict{}
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" { // Skip unexported fields
			continue
		}
		val, err := m.ToValue(v.Field(i).Interface())
		if err != nil {
			return vm.NilVal(), fmt.Errorf("field %s: %w", field.Name, err)
		}
		result = result.With(field.Name, val)
	}
	return vm.ObjVal(result), nil
}

func (m *Marshaller) valuesToSlice(els []vm.Value, targetType reflect.Type) (interface{}, error) {
	// If targetType is nil, default to []interface{}
	elemType := reflect.TypeOf((*interface{})(nil)).Elem()
	if targetType != nil && targetType.Kind() == reflect.Slice {
		elemType = targetType.Elem()
	}

	slice := reflect.MakeSlice(reflect.SliceOf(elemType), 0, len(els))
	for _, el := range els {
		val, err := m.FromValue(el, elemType)
		if err != nil {
			return nil, err
		}
		rv, err := assignable(val, elemType)
		if err != nil {
			return nil, err
		}
		slice = reflect.Append(slice, rv)
	}
	return slice.Interface(), nil
}

func (m *Marshaller) dictToMap(d *vm.ObjDict, targetType reflect.Type) (interface{}, error) {
	// If target type is a concrete map type, convert to that
	if targetType != nil && targetType.Kind() == reflect.Map {
		if targetType.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("cannot convert dict to %s", targetType)
		}
		result := reflect.MakeMapWithSize(targetType, len(d.Entries))
		valType := targetType.Elem()
		for _, e := range d.Entries {
			val, err := m.FromValue(e.Value, valType)
			if err != nil {
				return nil, fmt.Errorf("map value: %w", err)
			}
			vv, err := assignable(val, valType)
			if err != nil {
				return nil, err
			}
			result.SetMapIndex(reflect.ValueOf(e.Key).Convert(targetType.Key()), vv)
		}
		return result.Interface(), nil
	}

	// Default: map[string]interface{}
	result := make(map[string]interface{}, len(d.Entries))
	for _, e := range d.Entries {
		val, err := m.FromValue(e.Value, nil)
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		result[e.Key] = val
	}
	return result, nil
}

// dictToStruct fills exported fields whose names match dict keys.
func (m *Marshaller) dictToStruct(d *vm.ObjDict, targetType reflect.Type) (interface{}, error) {
	result := reflect.New(targetType).Elem()
	for _, e := range d.Entries {
		field, ok := targetType.FieldByName(e.Key)
		if !ok || field.PkgPath != "" {
			continue
		}
		val, err := m.FromValue(e.Value, field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", e.Key, err)
		}
		fv, err := assignable(val, field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", e.Key, err)
		}
		result.FieldByIndex(field.Index).Set(fv)
	}
	return result.Interface(), nil
}

// assignable turns a converted value into a reflect.Value of type t.
func assignable(val interface{}, t reflect.Type) (reflect.Value, error) {
	if val == nil {
		// Handle nil for pointers/interfaces
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(val)
	switch {
	case rv.Type().AssignableTo(t):
		return rv, nil
	case rv.Type().ConvertibleTo(t) && rv.Kind() != reflect.String && t.Kind() != reflect.String:
		return rv.Convert(t), nil
	case rv.Type() == reflect.TypeOf("") && t.Kind() == reflect.String:
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", rv.Type(), t)
}
