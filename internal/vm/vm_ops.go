package vm

import (
	"fmt"
)

var operatorSymbols = map[Opcode]string{
	OP_ADD:      "+",
	OP_SUBTRACT: "-",
	OP_MULTIPLY: "*",
	OP_DIVIDE:   "/",
	OP_MODULO:   "%",
}

// binaryOp performs binary arithmetic. Integer results wrap on overflow;
// mixing Integer and Float yields Float.
func binaryOp(op Opcode, a, b Value) (Value, error) {
	// Fast path for integers
	if a.IsInt() && b.IsInt() {
		x, y := a.AsInt(), b.AsInt()
		switch op {
		case OP_ADD:
			return IntVal(x + y), nil
		case OP_SUBTRACT:
			return IntVal(x - y), nil
		case OP_MULTIPLY:
			return IntVal(x * y), nil
		case OP_DIVIDE:
			if y == 0 {
				return NilVal(), fmt.Errorf("division by zero")
			}
			return FloatVal(float64(x) / float64(y)), nil
		case OP_MODULO:
			if y == 0 {
				return NilVal(), fmt.Errorf("integer modulo by zero")
			}
			// Truncated: the result takes the sign of the dividend
			return IntVal(x % y), nil
		}
	}

	if a.IsNumber() && b.IsNumber() && op != OP_MODULO {
		x, _ := a.AsNumber()
		y, _ := b.AsNumber()
		switch op {
		case OP_ADD:
			return FloatVal(x + y), nil
		case OP_SUBTRACT:
			return FloatVal(x - y), nil
		case OP_MULTIPLY:
			return FloatVal(x * y), nil
		case OP_DIVIDE:
			if y == 0 {
				return NilVal(), fmt.Errorf("division by zero")
			}
			return FloatVal(x / y), nil
		}
	}

	if op == OP_ADD {
		if x, ok := a.AsString(); ok {
			if y, ok := b.AsString(); ok {
				return StringVal(x + y), nil
			}
		}
	}

	return NilVal(), fmt.Errorf("unsupported operand type(s) for %s: '%s' and '%s'",
		operatorSymbols[op], a.TypeName(), b.TypeName())
}

// lessThan is defined for numbers only
func lessThan(a, b Value) (bool, error) {
	if a.IsInt() && b.IsInt() {
		return a.AsInt() < b.AsInt(), nil
	}
	x, okA := a.AsNumber()
	y, okB := b.AsNumber()
	if !okA || !okB {
		return false, fmt.Errorf("'<' not supported between instances of '%s' and '%s'", a.TypeName(), b.TypeName())
	}
	return x < y, nil
}
