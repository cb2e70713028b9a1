package backend

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/funvibe/oxython/internal/diagnostics"
	"github.com/funvibe/oxython/internal/pipeline"
	"github.com/funvibe/oxython/internal/token"
	"github.com/funvibe/oxython/internal/vm"
)

// ExecutionProcessor implements pipeline.Processor to run a Backend
type ExecutionProcessor struct {
	Backend Backend
}

// NewExecutionProcessor creates a new pipeline step for the given backend
func NewExecutionProcessor(b Backend) *ExecutionProcessor {
	return &ExecutionProcessor{Backend: b}
}

func (p *ExecutionProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	// If previous steps failed, don't run execution
	if ctx.Chunk == nil || ctx.Failed() {
		return ctx
	}

	if ctx.RunID == "" {
		ctx.RunID = uuid.NewString()
	}
	log.Debugf("run %s: %s backend, %s", ctx.RunID, p.Backend.Name(), displayName(ctx))

	result, err := p.Backend.Run(ctx)
	if err != nil {
		p.handleError(ctx, err)
		log.Debugf("run %s: failed: %s", ctx.RunID, err)
		return ctx
	}

	ctx.Result = result
	ctx.HasResult = ctx.Chunk.ExprResult
	log.Debugf("run %s: ok", ctx.RunID)
	return ctx
}

func (p *ExecutionProcessor) handleError(ctx *pipeline.PipelineContext, err error) {
	ctx.RuntimeErr = err

	var rt *vm.RuntimeError
	if !errors.As(err, &rt) {
		// Location is unknown for errors raised outside the dispatch loop
		ctx.Errors = append(ctx.Errors, diagnostics.NewError(diagnostics.ErrR001, token.Token{}, err.Error()))
		return
	}

	msg := rt.Message
	// A trace through the script frame alone adds nothing to the line number
	if len(rt.Trace) > 1 {
		msg += "\n" + strings.TrimRight(rt.StackTrace(), "\n")
	}

	diag := diagnostics.NewError(diagnostics.ErrR001, token.Token{Line: rt.Line}, msg)
	diag.File = ctx.FilePath
	ctx.Errors = append(ctx.Errors, diag)
}
