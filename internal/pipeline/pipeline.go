// Package pipeline threads one source text through compilation and
// execution. The CLI, the REPL and the embedding API all build the same
// two-stage chain: backend.CompileProcessor, then an ExecutionProcessor
// wrapping whichever backend runs the chunk.
package pipeline

// Pipeline is an ordered list of stages sharing one PipelineContext.
type Pipeline struct {
	stages []Processor
}

// New builds a pipeline that runs stages in the given order.
func New(stages ...Processor) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run passes ctx through every stage. A failed stage does not stop the
// chain; later stages check ctx.Failed and skip their work.
func (p *Pipeline) Run(ctx *PipelineContext) *PipelineContext {
	for _, stage := range p.stages {
		ctx = stage.Process(ctx)
	}
	return ctx
}
