package backend

import (
	"errors"

	"github.com/funvibe/oxython/internal/diagnostics"
	"github.com/funvibe/oxython/internal/pipeline"
	"github.com/funvibe/oxython/internal/token"
	"github.com/funvibe/oxython/internal/vm"
)

// CompileProcessor compiles ctx.SourceCode into ctx.Chunk.
type CompileProcessor struct{}

func (p *CompileProcessor) Process(ctx *pipeline.PipelineContext) *pipeline.PipelineContext {
	chunk, err := vm.Compile(ctx.SourceCode, ctx.Module)
	if err == nil {
		ctx.Chunk = chunk
		return ctx
	}

	var list diagnostics.ErrorList
	if !errors.As(err, &list) {
		ctx.Errors = append(ctx.Errors, diagnostics.NewError(diagnostics.ErrC001, token.Token{}, err.Error()))
		return ctx
	}
	if ctx.FilePath != "" {
		list = list.WithFile(ctx.FilePath)
	}
	log.Debugf("compile of %s failed with %d error(s)", displayName(ctx), len(list))
	ctx.Errors = append(ctx.Errors, list...)
	return ctx
}

func displayName(ctx *pipeline.PipelineContext) string {
	if ctx.FilePath != "" {
		return ctx.FilePath
	}
	if ctx.Module != "" {
		return ctx.Module
	}
	return "<input>"
}
