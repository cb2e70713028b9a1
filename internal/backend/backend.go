// Package backend provides the stages that turn source into a chunk and
// hand the chunk to an execution backend.
// The VM runs chunks; the disassembler lists them instead.
package backend

import (
	"github.com/tliron/commonlog"

	"github.com/funvibe/oxython/internal/pipeline"
	"github.com/funvibe/oxython/internal/vm"
)

var log = commonlog.GetLogger("oxython.backend")

// Backend is the interface for execution backends
type Backend interface {
	// Run executes the chunk in ctx and returns the value of a trailing
	// expression statement (Nil when there is none).
	Run(ctx *pipeline.PipelineContext) (vm.Value, error)

	// Name returns the backend name for display
	Name() string
}
