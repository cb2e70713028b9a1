package vm

// TypeKind enumerates the annotation forms a declaration may carry.
// Annotations are recorded for __annotations__ and never checked.
type TypeKind int

const (
	TypeAny TypeKind = iota
	TypeInt
	TypeFloat
	TypeStr
	TypeBool
	TypeList
	TypeDict
	TypeTuple
	TypeNone
	TypeClass
)

type TypeAnnotation struct {
	Kind      TypeKind
	ClassName string // TypeClass only
}

var builtinTypeNames = map[string]TypeKind{
	"int":   TypeInt,
	"float": TypeFloat,
	"str":   TypeStr,
	"bool":  TypeBool,
	"list":  TypeList,
	"dict":  TypeDict,
	"tuple": TypeTuple,
	"None":  TypeNone,
	"Any":   TypeAny,
}

// ParseTypeName maps an annotation identifier to its type. Unknown names
// are taken to be classes.
func ParseTypeName(name string) *TypeAnnotation {
	if kind, ok := builtinTypeNames[name]; ok {
		return &TypeAnnotation{Kind: kind}
	}
	return &TypeAnnotation{Kind: TypeClass, ClassName: name}
}

func (t *TypeAnnotation) String() string {
	switch t.Kind {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeStr:
		return "str"
	case TypeBool:
		return "bool"
	case TypeList:
		return "list"
	case TypeDict:
		return "dict"
	case TypeTuple:
		return "tuple"
	case TypeNone:
		return "None"
	case TypeClass:
		return t.ClassName
	default:
		return "Any"
	}
}
