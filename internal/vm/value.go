package vm

import (
	"math"
	"strconv"
	"strings"
)

// ValueType identifies the type of value stored in the Value struct
type ValueType uint8

const (
	ValNil ValueType = iota
	ValInt
	ValFloat
	ValBool
	ValObj // Heap object (String, List, Function, Instance, ...)
)

// Value is a stack-allocated tagged union.
// Integers, floats, booleans and nil live in Data; everything else is an
// Object shared by reference.
type Value struct {
	Type ValueType
	Data uint64 // Stores int64 bits, float64 bits, or bool (0/1)
	Obj  Object
}

// Constructors

func NilVal() Value {
	return Value{Type: ValNil}
}

func IntVal(v int64) Value {
	return Value{Type: ValInt, Data: uint64(v)}
}

func FloatVal(v float64) Value {
	return Value{Type: ValFloat, Data: math.Float64bits(v)}
}

func BoolVal(v bool) Value {
	var data uint64
	if v {
		data = 1
	}
	return Value{Type: ValBool, Data: data}
}

func ObjVal(o Object) Value {
	return Value{Type: ValObj, Obj: o}
}

func StringVal(s string) Value {
	return ObjVal(&ObjString{Value: s})
}

func ListVal(elems []Value) Value {
	return ObjVal(&ObjList{Elements: elems})
}

func TupleVal(elems []Value) Value {
	return ObjVal(&ObjTuple{Elements: elems})
}

// Accessors

func (v Value) AsInt() int64 {
	return int64(v.Data)
}

func (v Value) AsFloat() float64 {
	return math.Float64frombits(v.Data)
}

func (v Value) AsBool() bool {
	return v.Data == 1
}

// AsNumber widens Int or Float to float64.
func (v Value) AsNumber() (float64, bool) {
	switch v.Type {
	case ValInt:
		return float64(v.AsInt()), true
	case ValFloat:
		return v.AsFloat(), true
	}
	return 0, false
}

func (v Value) AsString() (string, bool) {
	if s, ok := v.Obj.(*ObjString); ok && v.Type == ValObj {
		return s.Value, true
	}
	return "", false
}

// Type checking helpers

func (v Value) IsInt() bool    { return v.Type == ValInt }
func (v Value) IsFloat() bool  { return v.Type == ValFloat }
func (v Value) IsBool() bool   { return v.Type == ValBool }
func (v Value) IsNil() bool    { return v.Type == ValNil }
func (v Value) IsObj() bool    { return v.Type == ValObj }
func (v Value) IsNumber() bool { return v.Type == ValInt || v.Type == ValFloat }

// Equals is structural for data values and identity for callables,
// classes and instances. Int and Float compare numerically.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		if v.IsNumber() && other.IsNumber() {
			a, _ := v.AsNumber()
			b, _ := other.AsNumber()
			return a == b
		}
		return false
	}
	switch v.Type {
	case ValInt, ValBool:
		return v.Data == other.Data
	case ValFloat:
		return v.AsFloat() == other.AsFloat()
	case ValNil:
		return true
	case ValObj:
		return objectsEqual(v.Obj, other.Obj)
	default:
		return false
	}
}

func objectsEqual(a, b Object) bool {
	switch x := a.(type) {
	case *ObjString:
		y, ok := b.(*ObjString)
		return ok && x.Value == y.Value
	case *ObjList:
		y, ok := b.(*ObjList)
		return ok && valuesEqual(x.Elements, y.Elements)
	case *ObjTuple:
		y, ok := b.(*ObjTuple)
		return ok && valuesEqual(x.Elements, y.Elements)
	case *ObjDict:
		y, ok := b.(*ObjDict)
		if !ok || len(x.Entries) != len(y.Entries) {
			return false
		}
		for _, e := range x.Entries {
			other, found := y.Get(e.Key)
			if !found || !e.Value.Equals(other) {
				return false
			}
		}
		return true
	case *ObjBoundMethod:
		y, ok := b.(*ObjBoundMethod)
		return ok && x.Method == y.Method && x.Receiver.Equals(y.Receiver)
	default:
		return a == b
	}
}

func valuesEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equals(b[i]) {
			return false
		}
	}
	return true
}

// IsTruthy follows Python: None, False, numeric zero and empty
// strings/containers are false.
func (v Value) IsTruthy() bool {
	switch v.Type {
	case ValNil:
		return false
	case ValBool:
		return v.AsBool()
	case ValInt:
		return v.AsInt() != 0
	case ValFloat:
		return v.AsFloat() != 0
	}
	switch o := v.Obj.(type) {
	case *ObjString:
		return o.Value != ""
	case *ObjList:
		return len(o.Elements) > 0
	case *ObjTuple:
		return len(o.Elements) > 0
	case *ObjDict:
		return len(o.Entries) > 0
	}
	return true
}

// TypeName returns the Python-style type name used in messages and type().
func (v Value) TypeName() string {
	switch v.Type {
	case ValNil:
		return "NoneType"
	case ValInt:
		return "int"
	case ValFloat:
		return "float"
	case ValBool:
		return "bool"
	}
	if v.Obj == nil {
		return "NoneType"
	}
	return v.Obj.TypeName()
}

// Inspect renders the value without invoking user __str__/__repr__ methods.
// Strings render bare; inside containers they are quoted.
func (v Value) Inspect() string {
	if s, ok := v.AsString(); ok {
		return s
	}
	return v.Repr()
}

// Repr is the quoted form used for container elements.
func (v Value) Repr() string {
	switch v.Type {
	case ValInt:
		return strconv.FormatInt(v.AsInt(), 10)
	case ValFloat:
		return formatFloat(v.AsFloat())
	case ValBool:
		if v.AsBool() {
			return "True"
		}
		return "False"
	case ValNil:
		return "None"
	}
	if v.Obj == nil {
		return "None"
	}
	if s, ok := v.Obj.(*ObjString); ok {
		return quoteString(s.Value)
	}
	return v.Obj.Inspect()
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// quoteString uses single quotes unless the text contains one and no
// double quote, as Python's repr does.
func quoteString(s string) string {
	quote := "'"
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		quote = `"`
	}
	var sb strings.Builder
	sb.WriteString(quote)
	for _, r := range s {
		switch {
		case r == '\\':
			sb.WriteString(`\\`)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\t':
			sb.WriteString(`\t`)
		case string(r) == quote:
			sb.WriteString(`\`)
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteString(quote)
	return sb.String()
}

func joinRepr(elems []Value) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = e.Repr()
	}
	return strings.Join(parts, ", ")
}
