package vm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type ObjectType string

const (
	STRING_OBJ       ObjectType = "STRING"
	LIST_OBJ         ObjectType = "LIST"
	TUPLE_OBJ        ObjectType = "TUPLE"
	DICT_OBJ         ObjectType = "DICT"
	PROTOTYPE_OBJ    ObjectType = "PROTOTYPE"
	FUNCTION_OBJ     ObjectType = "FUNCTION"
	NATIVE_OBJ       ObjectType = "NATIVE"
	CLASS_OBJ        ObjectType = "CLASS"
	INSTANCE_OBJ     ObjectType = "INSTANCE"
	BOUND_METHOD_OBJ ObjectType = "BOUND_METHOD"
	SUPER_OBJ        ObjectType = "SUPER"
	CODE_OBJ         ObjectType = "CODE"
)

// Object is any heap value. Objects other than ObjInstance are never
// mutated after construction.
type Object interface {
	Type() ObjectType
	TypeName() string
	Inspect() string
}

// ObjString is an immutable string. Runes are decoded lazily for
// iteration and indexing.
type ObjString struct {
	Value string
	runes []rune
}

func (s *ObjString) Type() ObjectType { return STRING_OBJ }
func (s *ObjString) TypeName() string { return "str" }
func (s *ObjString) Inspect() string  { return s.Value }

func (s *ObjString) Runes() []rune {
	if s.runes == nil {
		s.runes = []rune(s.Value)
	}
	return s.runes
}

func (s *ObjString) Len() int {
	if s.runes != nil {
		return len(s.runes)
	}
	return utf8.RuneCountInString(s.Value)
}

type ObjList struct {
	Elements []Value
}

func (l *ObjList) Type() ObjectType { return LIST_OBJ }
func (l *ObjList) TypeName() string { return "list" }
func (l *ObjList) Inspect() string  { return "[" + joinRepr(l.Elements) + "]" }

type ObjTuple struct {
	Elements []Value
}

func (t *ObjTuple) Type() ObjectType { return TUPLE_OBJ }
func (t *ObjTuple) TypeName() string { return "tuple" }
func (t *ObjTuple) Inspect() string {
	if len(t.Elements) == 1 {
		return "(" + t.Elements[0].Repr() + ",)"
	}
	return "(" + joinRepr(t.Elements) + ")"
}

type DictEntry struct {
	Key   string
	Value Value
}

// ObjDict is an insertion-ordered map with string keys. Lookups scan
// linearly.
type ObjDict struct {
	Entries []DictEntry
}

func (d *ObjDict) Type() ObjectType { return DICT_OBJ }
func (d *ObjDict) TypeName() string { return "dict" }
func (d *ObjDict) Inspect() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, e := range d.Entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteString(e.Key))
		sb.WriteString(": ")
		sb.WriteString(e.Value.Repr())
	}
	sb.WriteString("}")
	return sb.String()
}

func (d *ObjDict) Get(key string) (Value, bool) {
	for _, e := range d.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return NilVal(), false
}

// With returns a new dict with key upserted; d is left untouched.
func (d *ObjDict) With(key string, value Value) *ObjDict {
	entries := make([]DictEntry, len(d.Entries), len(d.Entries)+1)
	copy(entries, d.Entries)
	for i := range entries {
		if entries[i].Key == key {
			entries[i].Value = value
			return &ObjDict{Entries: entries}
		}
	}
	return &ObjDict{Entries: append(entries, DictEntry{Key: key, Value: value})}
}

// UpvalueDescriptor tells MakeFunction where a captured variable lives:
// a local slot of the enclosing frame (IsLocal) or one of the enclosing
// function's own upvalues.
type UpvalueDescriptor struct {
	IsLocal bool
	Index   int
}

// Prototype is the compile-time template of a function.
type Prototype struct {
	Name          string
	QualName      string
	Module        string
	Arity         int // Total number of parameters
	RequiredArity int // Parameters without defaults
	LocalCount    int // Non-parameter locals, reserved as nil on entry
	Chunk         *Chunk
	ParamNames    []string
	ParamTypes    []*TypeAnnotation // nil entries are unannotated
	ReturnType    *TypeAnnotation
	Defaults      []Value // Defaults[i] belongs to parameter RequiredArity+i
	Upvalues      []UpvalueDescriptor
	Doc           *string
}

func (p *Prototype) Type() ObjectType { return PROTOTYPE_OBJ }
func (p *Prototype) TypeName() string { return "function" }
func (p *Prototype) Inspect() string  { return fmt.Sprintf("<fn %s>", p.Name) }

// ObjFunction is a prototype instantiated at runtime with its captured
// upvalues and the globals visible when it was defined.
type ObjFunction struct {
	Proto    *Prototype
	Upvalues []*ObjUpvalue
	Globals  *PersistentMap

	// Owner is the class whose body defined this method, used as the
	// class context for super().
	Owner *ObjClass
}

func (f *ObjFunction) Type() ObjectType { return FUNCTION_OBJ }
func (f *ObjFunction) TypeName() string { return "function" }
func (f *ObjFunction) Inspect() string  { return fmt.Sprintf("<function %s>", f.Proto.Name) }

// ObjUpvalue represents a captured variable from an enclosing scope
// It can be "open" (pointing to stack) or "closed" (holding value directly)
type ObjUpvalue struct {
	// When open: Location points to the stack slot index
	// When closed: Location is -1 and Closed holds the value
	Location int
	Closed   Value

	// For the VM's open upvalue list (singly linked, sorted by location)
	Next *ObjUpvalue
}

func (u *ObjUpvalue) IsClosed() bool { return u.Location < 0 }

// NativeFn is a host function. classContext is the class of the method
// that made the call, if any.
type NativeFn func(vm *VM, args []Value, classContext *ObjClass) (Value, error)

type ObjNative struct {
	Name string
	Fn   NativeFn
}

func (n *ObjNative) Type() ObjectType { return NATIVE_OBJ }
func (n *ObjNative) TypeName() string { return "builtin_function_or_method" }
func (n *ObjNative) Inspect() string  { return fmt.Sprintf("<built-in function %s>", n.Name) }

type ObjClass struct {
	Name    string
	Methods map[string]*ObjFunction
	Parent  *ObjClass
}

func (c *ObjClass) Type() ObjectType { return CLASS_OBJ }
func (c *ObjClass) TypeName() string { return "type" }
func (c *ObjClass) Inspect() string  { return fmt.Sprintf("<class '%s'>", c.Name) }

// FindMethod walks the class and its ancestors.
func (c *ObjClass) FindMethod(name string) (*ObjFunction, bool) {
	for cls := c; cls != nil; cls = cls.Parent {
		if m, ok := cls.Methods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// IsSubclassOf reports whether c is other or derives from it.
func (c *ObjClass) IsSubclassOf(other *ObjClass) bool {
	for cls := c; cls != nil; cls = cls.Parent {
		if cls == other {
			return true
		}
	}
	return false
}

// ObjInstance is the only mutable heap object besides upvalue cells.
type ObjInstance struct {
	Class  *ObjClass
	Fields map[string]Value
}

func NewInstance(class *ObjClass) *ObjInstance {
	return &ObjInstance{Class: class, Fields: make(map[string]Value)}
}

func (i *ObjInstance) Type() ObjectType { return INSTANCE_OBJ }
func (i *ObjInstance) TypeName() string { return i.Class.Name }
func (i *ObjInstance) Inspect() string  { return fmt.Sprintf("<%s instance>", i.Class.Name) }

type ObjBoundMethod struct {
	Receiver Value
	Method   *ObjFunction
}

func (b *ObjBoundMethod) Type() ObjectType { return BOUND_METHOD_OBJ }
func (b *ObjBoundMethod) TypeName() string { return "method" }
func (b *ObjBoundMethod) Inspect() string {
	return fmt.Sprintf("<bound method %s>", b.Method.Proto.Name)
}

// ObjSuper redirects attribute lookup to Parent while keeping Instance as
// the receiver.
type ObjSuper struct {
	Instance Value
	Parent   *ObjClass
}

func (s *ObjSuper) Type() ObjectType { return SUPER_OBJ }
func (s *ObjSuper) TypeName() string { return "super" }
func (s *ObjSuper) Inspect() string  { return "<super>" }

// ObjCode exposes a function's chunk through __code__.
type ObjCode struct {
	Name  string
	Chunk *Chunk
}

func (c *ObjCode) Type() ObjectType { return CODE_OBJ }
func (c *ObjCode) TypeName() string { return "code" }
func (c *ObjCode) Inspect() string  { return fmt.Sprintf("<code object %s>", c.Name) }
