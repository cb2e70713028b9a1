package backend

import (
	"fmt"
	"io"
	"os"

	"github.com/funvibe/oxython/internal/pipeline"
	"github.com/funvibe/oxython/internal/vm"
)

// DisassembleBackend lists the compiled chunk instead of running it.
type DisassembleBackend struct{}

// NewDisassembler creates a disassembly backend
func NewDisassembler() *DisassembleBackend {
	return &DisassembleBackend{}
}

// Run writes the listing of ctx.Chunk and every nested function to
// ctx.Output (stdout when unset).
func (b *DisassembleBackend) Run(ctx *pipeline.PipelineContext) (vm.Value, error) {
	if ctx.Chunk == nil {
		return vm.NilVal(), fmt.Errorf("no chunk to disassemble")
	}

	var out io.Writer = os.Stdout
	if ctx.Output != nil {
		out = ctx.Output
	}

	name := ctx.Module
	if name == "" {
		name = "<script>"
	}
	if _, err := io.WriteString(out, vm.Disassemble(ctx.Chunk, name)); err != nil {
		return vm.NilVal(), fmt.Errorf("writing disassembly: %w", err)
	}
	return vm.NilVal(), nil
}

// Name returns the backend name
func (b *DisassembleBackend) Name() string {
	return "disassemble"
}
