// Package vm implements the compiler and bytecode virtual machine for
// oxython.
package vm

// Opcode represents a single VM instruction
type Opcode byte

// Byte values are assigned by iota and are stable: new opcodes go at the
// end. Operand widths are listed in operandWidths; 2-byte operands are
// big-endian.
const (
	OP_CONSTANT Opcode = iota // u16 constant index

	// Arithmetic
	OP_ADD      // +, also string concatenation
	OP_SUBTRACT // -
	OP_MULTIPLY // *
	OP_DIVIDE   // / (always Float)
	OP_MODULO   // % (Integer only)

	// Comparison
	OP_LESS     // <
	OP_EQUAL    // ==
	OP_CONTAINS // [needle, haystack] -> bool

	// Collections
	OP_INDEX     // [coll, key] -> elem
	OP_SET_INDEX // [coll, key, value] -> [new coll]
	OP_APPEND    // [list, value] -> [new list]
	OP_RANGE     // [a, b] -> [list]
	OP_SLICE     // [coll, start, end, step] -> [slice]; nil means omitted
	OP_LEN       // [coll] -> int
	OP_TO_LIST   // [iterable] -> [list]
	OP_ZIP       // u8 argc, u16 star mask

	// Strings
	OP_STR_LOWER
	OP_STR_IS_ALNUM
	OP_STR_JOIN // [sep, list] -> str
	OP_TO_STR   // [value] -> str (f-string segments)

	// Builtins
	OP_ROUND // [x, digits|nil] -> number
	OP_TYPE

	// Variables
	OP_DEFINE_GLOBAL // u16 name constant; pops
	OP_GET_GLOBAL    // u16 name constant
	OP_SET_GLOBAL    // u16 name constant; leaves value
	OP_GET_LOCAL     // u16 slot
	OP_SET_LOCAL     // u16 slot; leaves value
	OP_GET_UPVALUE   // u8 index
	OP_SET_UPVALUE   // u8 index; leaves value

	// Closures
	OP_MAKE_FUNCTION // u16 prototype constant

	// Classes
	OP_MAKE_CLASS // u8 method count
	OP_INHERIT    // [class, parent] -> [subclass]
	OP_GET_ATTR   // u16 name constant
	OP_SET_ATTR   // u16 name constant; [obj, value] -> []

	// Calls
	OP_CALL // u8 argc
	OP_RETURN

	// Control flow
	OP_JUMP          // u16 forward offset
	OP_JUMP_IF_FALSE // u16 forward offset; condition stays on the stack
	OP_LOOP          // u16 backward offset
	OP_ITER_NEXT     // u16 exit offset

	// I/O
	OP_PRINT
	OP_PRINT_SPACED
	OP_PRINTLN

	// Stack
	OP_POP
	OP_DUP
	OP_SWAP

	// Literals
	OP_BUILD_LIST  // u16 count
	OP_BUILD_TUPLE // u16 count
	OP_BUILD_DICT  // u16 pair count; [k1, v1, ... kn, vn] -> dict

	opcodeCount
)

// OpcodeNames maps opcodes to their string names (for debugging)
var OpcodeNames = map[Opcode]string{
	OP_CONSTANT: "CONSTANT",

	OP_ADD:      "ADD",
	OP_SUBTRACT: "SUBTRACT",
	OP_MULTIPLY: "MULTIPLY",
	OP_DIVIDE:   "DIVIDE",
	OP_MODULO:   "MODULO",

	OP_LESS:     "LESS",
	OP_EQUAL:    "EQUAL",
	OP_CONTAINS: "CONTAINS",

	OP_INDEX:     "INDEX",
	OP_SET_INDEX: "SET_INDEX",
	OP_APPEND:    "APPEND",
	OP_RANGE:     "RANGE",
	OP_SLICE:     "SLICE",
	OP_LEN:       "LEN",
	OP_TO_LIST:   "TO_LIST",
	OP_ZIP:       "ZIP",

	OP_STR_LOWER:    "STR_LOWER",
	OP_STR_IS_ALNUM: "STR_IS_ALNUM",
	OP_STR_JOIN:     "STR_JOIN",
	OP_TO_STR:       "TO_STR",

	OP_ROUND: "ROUND",
	OP_TYPE:  "TYPE",

	OP_DEFINE_GLOBAL: "DEFINE_GLOBAL",
	OP_GET_GLOBAL:    "GET_GLOBAL",
	OP_SET_GLOBAL:    "SET_GLOBAL",
	OP_GET_LOCAL:     "GET_LOCAL",
	OP_SET_LOCAL:     "SET_LOCAL",
	OP_GET_UPVALUE:   "GET_UPVALUE",
	OP_SET_UPVALUE:   "SET_UPVALUE",

	OP_MAKE_FUNCTION: "MAKE_FUNCTION",

	OP_MAKE_CLASS: "MAKE_CLASS",
	OP_INHERIT:    "INHERIT",
	OP_GET_ATTR:   "GET_ATTR",
	OP_SET_ATTR:   "SET_ATTR",

	OP_CALL:   "CALL",
	OP_RETURN: "RETURN",

	OP_JUMP:          "JUMP",
	OP_JUMP_IF_FALSE: "JUMP_IF_FALSE",
	OP_LOOP:          "LOOP",
	OP_ITER_NEXT:     "ITER_NEXT",

	OP_PRINT:        "PRINT",
	OP_PRINT_SPACED: "PRINT_SPACED",
	OP_PRINTLN:      "PRINTLN",

	OP_POP:  "POP",
	OP_DUP:  "DUP",
	OP_SWAP: "SWAP",

	OP_BUILD_LIST:  "BUILD_LIST",
	OP_BUILD_TUPLE: "BUILD_TUPLE",
	OP_BUILD_DICT:  "BUILD_DICT",
}

var operandWidths = [opcodeCount]int{
	OP_CONSTANT:      2,
	OP_ZIP:           3,
	OP_DEFINE_GLOBAL: 2,
	OP_GET_GLOBAL:    2,
	OP_SET_GLOBAL:    2,
	OP_GET_LOCAL:     2,
	OP_SET_LOCAL:     2,
	OP_GET_UPVALUE:   1,
	OP_SET_UPVALUE:   1,
	OP_MAKE_FUNCTION: 2,
	OP_MAKE_CLASS:    1,
	OP_GET_ATTR:      2,
	OP_SET_ATTR:      2,
	OP_CALL:          1,
	OP_JUMP:          2,
	OP_JUMP_IF_FALSE: 2,
	OP_LOOP:          2,
	OP_ITER_NEXT:     2,
	OP_BUILD_LIST:    2,
	OP_BUILD_TUPLE:   2,
	OP_BUILD_DICT:    2,
}

// OperandWidth returns the number of operand bytes following op.
func (op Opcode) OperandWidth() int {
	if op >= opcodeCount {
		return 0
	}
	return operandWidths[op]
}

func (op Opcode) String() string {
	if name, ok := OpcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}
