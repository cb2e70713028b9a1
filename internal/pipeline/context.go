package pipeline

import (
	"io"

	"github.com/funvibe/oxython/internal/diagnostics"
	"github.com/funvibe/oxython/internal/vm"
)

// Processor is one stage of the pipeline.
type Processor interface {
	Process(ctx *PipelineContext) *PipelineContext
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx *PipelineContext) *PipelineContext

func (f ProcessorFunc) Process(ctx *PipelineContext) *PipelineContext {
	return f(ctx)
}

// PipelineContext carries one source text through compilation and
// execution.
type PipelineContext struct {
	SourceCode string
	FilePath   string // Empty for REPL lines and embedded sources
	Module     string // Recorded in __module__ of compiled functions

	// RunID identifies one execution in logs.
	RunID string

	Chunk  *vm.Chunk
	Result vm.Value // Value of a trailing expression statement, if any

	// HasResult is set when the chunk ended in an expression statement
	// whose value should be echoed.
	HasResult bool

	// Output receives disassembly listings.
	Output io.Writer

	Errors []*diagnostics.DiagnosticError

	// RuntimeErr keeps the VM error intact for errors.As; Errors holds
	// its diagnostic rendering.
	RuntimeErr error
}

// NewContext creates a context for source.
func NewContext(source string) *PipelineContext {
	return &PipelineContext{SourceCode: source}
}

// Failed reports whether any stage recorded an error.
func (c *PipelineContext) Failed() bool {
	return len(c.Errors) > 0 || c.RuntimeErr != nil
}

// CompileFailed reports whether the errors are compile-time only.
func (c *PipelineContext) CompileFailed() bool {
	return len(c.Errors) > 0 && c.RuntimeErr == nil
}

// Err returns the recorded errors as one error, or nil.
func (c *PipelineContext) Err() error {
	if c.RuntimeErr != nil {
		return c.RuntimeErr
	}
	return diagnostics.ErrorList(c.Errors).Err()
}
