package backend

import (
	"fmt"

	"github.com/funvibe/oxython/internal/pipeline"
	"github.com/funvibe/oxython/internal/vm"
)

// VMBackend executes chunks on one VM. The REPL reuses the backend so
// globals persist from line to line.
type VMBackend struct {
	machine *vm.VM
}

// NewVM creates a VM backend. A nil machine gets a fresh VM.
func NewVM(machine *vm.VM) *VMBackend {
	if machine == nil {
		machine = vm.New()
	}
	return &VMBackend{machine: machine}
}

// Machine returns the VM the backend runs on
func (b *VMBackend) Machine() *vm.VM {
	return b.machine
}

// Run interprets the chunk in ctx
func (b *VMBackend) Run(ctx *pipeline.PipelineContext) (vm.Value, error) {
	if ctx.Chunk == nil {
		return vm.NilVal(), fmt.Errorf("no chunk to execute")
	}

	if _, err := b.machine.Interpret(ctx.Chunk); err != nil {
		// Returned as is; ExecutionProcessor formats it
		return vm.NilVal(), err
	}
	return b.machine.LastPopped(), nil
}

// Name returns the backend name
func (b *VMBackend) Name() string {
	return "vm"
}
