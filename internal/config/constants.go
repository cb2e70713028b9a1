package config

// Version is reported by --version and the REPL banner.
const Version = "0.1.0"

// SourceFileExtensions are all recognized source file extensions
var SourceFileExtensions = []string{".py", ".oxy"}

// DefaultModuleName is used when no file backs the compiled source.
const DefaultModuleName = "<script>"

// VM limits
const (
	StackMax  = 256
	FramesMax = 64

	// MaxZipArgs is bounded by the width of the zip star mask.
	MaxZipArgs = 16

	MaxConstants = 1 << 16
	MaxLocals    = 1 << 16
	MaxUpvalues  = 256
	MaxArgs      = 255
	MaxJump      = 0xffff
)

// Process exit codes (sysexits.h)
const (
	ExitOK       = 0
	ExitUsage    = 64
	ExitDataErr  = 65
	ExitSoftware = 70
	ExitIOErr    = 74
)

// Built-in function names compiled to dedicated opcodes
const (
	LenFuncName   = "len"
	RoundFuncName = "round"
	RangeFuncName = "range"
	TypeFuncName  = "type"
	ListFuncName  = "list"
	ZipFuncName   = "zip"
)

// Native function names registered in globals
const (
	SuperFuncName      = "super"
	StrFuncName        = "str"
	IntFuncName        = "int"
	FloatFuncName      = "float"
	BoolFuncName       = "bool"
	IsInstanceFuncName = "isinstance"
)

// Method names specialised at the call site
const (
	AppendMethodName  = "append"
	LowerMethodName   = "lower"
	IsAlnumMethodName = "isalnum"
	JoinMethodName    = "join"
)

// Dunder names
const (
	InitMethodName = "__init__"
	StrMethodName  = "__str__"
	ReprMethodName = "__repr__"

	NameAttr        = "__name__"
	QualnameAttr    = "__qualname__"
	ModuleAttr      = "__module__"
	DocAttr         = "__doc__"
	AnnotationsAttr = "__annotations__"
	CodeAttr        = "__code__"
	GlobalsAttr     = "__globals__"
	ClosureAttr     = "__closure__"
	DefaultsAttr    = "__defaults__"
	ClassAttr       = "__class__"
	ReturnAnnotKey  = "return"
)

// ListCompResultPrefix names the hidden comprehension accumulator.
const ListCompResultPrefix = "__list_comp_result_"

// NoneName is the identifier that compiles to the nil constant.
const NoneName = "None"

// ScriptFunctionName names the synthetic top-level function.
const ScriptFunctionName = "<script>"
