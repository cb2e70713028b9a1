package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable representation of the bytecode.
// Nested prototypes are listed after the chunk that references them.
func Disassemble(chunk *Chunk, name string) string {
	var sb strings.Builder
	disassembleChunk(&sb, chunk, name)
	return sb.String()
}

func disassembleChunk(sb *strings.Builder, chunk *Chunk, name string) {
	sb.WriteString(fmt.Sprintf("== %s ==\n", name))

	offset := 0
	for offset < len(chunk.Code) {
		offset = disassembleInstruction(sb, chunk, offset)
	}

	for _, c := range chunk.Constants {
		if proto, ok := c.Obj.(*Prototype); ok && c.IsObj() {
			sb.WriteString("\n")
			disassembleChunk(sb, proto.Chunk, proto.QualName)
		}
	}
}

// DisassembleInstruction disassembles a single instruction at offset and
// returns the offset of the next one.
func DisassembleInstruction(chunk *Chunk, offset int) (string, int) {
	var sb strings.Builder
	next := disassembleInstruction(&sb, chunk, offset)
	return strings.TrimRight(sb.String(), "\n"), next
}

func disassembleInstruction(sb *strings.Builder, chunk *Chunk, offset int) int {
	sb.WriteString(fmt.Sprintf("%04d ", offset))

	// Print line number
	if offset > 0 && chunk.Lines[offset] == chunk.Lines[offset-1] {
		sb.WriteString("   | ")
	} else {
		sb.WriteString(fmt.Sprintf("%4d ", chunk.Lines[offset]))
	}

	op := Opcode(chunk.Code[offset])
	if offset+op.OperandWidth() >= len(chunk.Code) && op.OperandWidth() > 0 {
		sb.WriteString(fmt.Sprintf("%s (truncated)\n", op))
		return len(chunk.Code)
	}

	switch op {
	case OP_CONSTANT, OP_DEFINE_GLOBAL, OP_GET_GLOBAL, OP_SET_GLOBAL,
		OP_GET_ATTR, OP_SET_ATTR, OP_MAKE_FUNCTION:
		return constantInstruction(sb, op.String(), chunk, offset)

	case OP_GET_LOCAL, OP_SET_LOCAL, OP_BUILD_LIST, OP_BUILD_TUPLE, OP_BUILD_DICT:
		return shortInstruction(sb, op.String(), chunk, offset)

	case OP_GET_UPVALUE, OP_SET_UPVALUE, OP_CALL, OP_MAKE_CLASS:
		return byteInstruction(sb, op.String(), chunk, offset)

	case OP_JUMP, OP_JUMP_IF_FALSE, OP_ITER_NEXT:
		return jumpInstruction(sb, op.String(), 1, chunk, offset)
	case OP_LOOP:
		return jumpInstruction(sb, op.String(), -1, chunk, offset)

	case OP_ZIP:
		argc := int(chunk.Code[offset+1])
		mask := chunk.ReadU16(offset + 2)
		sb.WriteString(fmt.Sprintf("%-16s %4d mask=%016b\n", "ZIP", argc, mask))
		return offset + 4

	default:
		if _, ok := OpcodeNames[op]; !ok {
			sb.WriteString(fmt.Sprintf("Unknown opcode %d\n", op))
			return offset + 1
		}
		return simpleInstruction(sb, op.String(), offset)
	}
}

func simpleInstruction(sb *strings.Builder, name string, offset int) int {
	sb.WriteString(fmt.Sprintf("%s\n", name))
	return offset + 1
}

func constantInstruction(sb *strings.Builder, name string, chunk *Chunk, offset int) int {
	idx := chunk.ReadU16(offset + 1)

	if idx < len(chunk.Constants) {
		sb.WriteString(fmt.Sprintf("%-16s %4d '%s'\n", name, idx, chunk.Constants[idx].Inspect()))
	} else {
		sb.WriteString(fmt.Sprintf("%-16s %4d (invalid)\n", name, idx))
	}

	return offset + 3
}

func shortInstruction(sb *strings.Builder, name string, chunk *Chunk, offset int) int {
	sb.WriteString(fmt.Sprintf("%-16s %4d\n", name, chunk.ReadU16(offset+1)))
	return offset + 3
}

func byteInstruction(sb *strings.Builder, name string, chunk *Chunk, offset int) int {
	slot := chunk.Code[offset+1]
	sb.WriteString(fmt.Sprintf("%-16s %4d\n", name, slot))
	return offset + 2
}

func jumpInstruction(sb *strings.Builder, name string, sign int, chunk *Chunk, offset int) int {
	jump := chunk.ReadU16(offset + 1)
	target := offset + 3 + sign*jump
	sb.WriteString(fmt.Sprintf("%-16s %4d -> %d\n", name, jump, target))
	return offset + 3
}
