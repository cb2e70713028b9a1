package vm

import (
	"strings"
	"testing"
)

func TestDisassemble(t *testing.T) {
	chunk := compileOK(t, "def add(a, b):\n    return a + b\nprint(add(1, 2))")
	out := Disassemble(chunk, "<script>")

	for _, want := range []string{
		"== <script> ==",
		"MAKE_FUNCTION",
		"DEFINE_GLOBAL",
		"'add'",
		"CALL                2",
		"== add ==",
		"GET_LOCAL           1",
		"GET_LOCAL           2",
		"ADD",
		"RETURN",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}

	// Nested chunks come after the chunk that references them
	if strings.Index(out, "== add ==") < strings.Index(out, "== <script> ==") {
		t.Errorf("nested chunk listed first:\n%s", out)
	}
}

func TestDisassembleInstruction(t *testing.T) {
	chunk := NewChunk()
	idx := chunk.AddConstant(IntVal(42))
	chunk.WriteOp(OP_CONSTANT, 7)
	chunk.WriteU16(idx, 7)
	chunk.WriteOp(OP_RETURN, 7)

	line, next := DisassembleInstruction(chunk, 0)
	if next != 3 {
		t.Errorf("next = %d, want 3", next)
	}
	if !strings.HasPrefix(line, "0000    7 CONSTANT") || !strings.HasSuffix(line, "'42'") {
		t.Errorf("line = %q", line)
	}

	line, next = DisassembleInstruction(chunk, 3)
	if next != 4 || line != "0003    | RETURN" {
		t.Errorf("line = %q, next = %d", line, next)
	}
}

func TestDisassembleJumps(t *testing.T) {
	chunk := compileOK(t, "i = 0\nwhile i < 3:\n    i += 1")
	out := Disassemble(chunk, "loop")
	if !strings.Contains(out, "JUMP_IF_FALSE") || !strings.Contains(out, "LOOP") {
		t.Errorf("missing jump instructions:\n%s", out)
	}
	if !strings.Contains(out, "-> ") {
		t.Errorf("jump targets not rendered:\n%s", out)
	}
}

func TestDisassembleTruncated(t *testing.T) {
	chunk := NewChunk()
	chunk.WriteOp(OP_CONSTANT, 1)
	out := Disassemble(chunk, "bad")
	if !strings.Contains(out, "CONSTANT (truncated)") {
		t.Errorf("truncated operand not reported:\n%s", out)
	}
}
