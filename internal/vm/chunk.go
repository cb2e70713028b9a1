package vm

// Chunk represents a sequence of bytecode instructions
type Chunk struct {
	// Code is the bytecode instructions
	Code []byte

	// Constants pool - literals, names, prototypes
	Constants []Value

	// Lines maps bytecode offset to source line number (for errors)
	Lines []int

	// ExprResult is set when the last top-level statement was a bare
	// expression whose value the REPL should echo.
	ExprResult bool
}

// NewChunk creates a new empty chunk
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 256),
		Constants: make([]Value, 0, 32),
		Lines:     make([]int, 0, 256),
	}
}

// Write adds a byte to the chunk with line info
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOp writes an opcode to the chunk
func (c *Chunk) WriteOp(op Opcode, line int) {
	c.Write(byte(op), line)
}

// WriteU16 writes a big-endian 2-byte operand
func (c *Chunk) WriteU16(v int, line int) {
	c.Write(byte(v>>8), line)
	c.Write(byte(v), line)
}

// AddConstant adds a constant to the pool and returns its index
func (c *Chunk) AddConstant(value Value) int {
	c.Constants = append(c.Constants, value)
	return len(c.Constants) - 1
}

// ReadU16 reads a 2-byte operand at offset
func (c *Chunk) ReadU16(offset int) int {
	return int(c.Code[offset])<<8 | int(c.Code[offset+1])
}

// PutU16 overwrites a 2-byte operand in place (jump patching, rewrites)
func (c *Chunk) PutU16(offset int, v int) {
	c.Code[offset] = byte(v >> 8)
	c.Code[offset+1] = byte(v)
}

// Len returns the number of bytes in the chunk
func (c *Chunk) Len() int {
	return len(c.Code)
}

// Truncate drops everything emitted at or after offset.
func (c *Chunk) Truncate(offset int) {
	c.Code = c.Code[:offset]
	c.Lines = c.Lines[:offset]
}

// LineAt returns the source line of the byte at offset, 0 if unknown.
func (c *Chunk) LineAt(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// HasTopLevelPop reports whether the chunk contains a Pop instruction,
// decoding instruction boundaries so operand bytes are never mistaken
// for opcodes.
func (c *Chunk) HasTopLevelPop() bool {
	for ip := 0; ip < len(c.Code); {
		op := Opcode(c.Code[ip])
		if op == OP_POP {
			return true
		}
		ip += 1 + op.OperandWidth()
	}
	return false
}
