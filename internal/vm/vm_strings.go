package vm

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

func strLower(v Value) (Value, error) {
	s, ok := v.AsString()
	if !ok {
		return NilVal(), fmt.Errorf("'%s' object has no attribute 'lower'", v.TypeName())
	}
	return StringVal(strings.ToLower(s)), nil
}

// strIsAlnum is false for the empty string
func strIsAlnum(v Value) (Value, error) {
	s, ok := v.AsString()
	if !ok {
		return NilVal(), fmt.Errorf("'%s' object has no attribute 'isalnum'", v.TypeName())
	}
	if s == "" {
		return BoolVal(false), nil
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return BoolVal(false), nil
		}
	}
	return BoolVal(true), nil
}

func strJoin(sep, items Value) (Value, error) {
	s, ok := sep.AsString()
	if !ok {
		return NilVal(), fmt.Errorf("'%s' object has no attribute 'join'", sep.TypeName())
	}
	elems, err := iterValues(items)
	if err != nil {
		return NilVal(), fmt.Errorf("can only join an iterable")
	}
	parts := make([]string, len(elems))
	for i, e := range elems {
		str, ok := e.AsString()
		if !ok {
			return NilVal(), fmt.Errorf("sequence item %d: expected str instance, %s found", i, e.TypeName())
		}
		parts[i] = str
	}
	return StringVal(strings.Join(parts, s)), nil
}

// round rounds half to even. Without digits the result is an int.
func round(x, digits Value) (Value, error) {
	if x.IsInt() && (digits.IsNil() || digits.IsInt()) {
		if digits.IsNil() || digits.AsInt() >= 0 {
			return x, nil
		}
	}
	f, ok := x.AsNumber()
	if !ok {
		return NilVal(), fmt.Errorf("type %s doesn't define __round__ method", x.TypeName())
	}

	if digits.IsNil() {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return NilVal(), fmt.Errorf("cannot convert float %s to integer", formatFloat(f))
		}
		return IntVal(int64(math.RoundToEven(f))), nil
	}
	if !digits.IsInt() {
		return NilVal(), fmt.Errorf("'%s' object cannot be interpreted as an integer", digits.TypeName())
	}

	scale := math.Pow(10, float64(digits.AsInt()))
	r := math.RoundToEven(f*scale) / scale
	if math.IsInf(f*scale, 0) {
		r = f
	}
	if x.IsInt() {
		return IntVal(int64(r)), nil
	}
	return FloatVal(r), nil
}

// typeOf returns the class of an instance, or the "<class 'name'>"
// string for everything else.
func typeOf(v Value) Value {
	if inst, ok := v.Obj.(*ObjInstance); ok && v.IsObj() {
		return ObjVal(inst.Class)
	}
	return StringVal(fmt.Sprintf("<class '%s'>", v.TypeName()))
}
