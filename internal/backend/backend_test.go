package backend

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/oxython/internal/diagnostics"
	"github.com/funvibe/oxython/internal/pipeline"
	"github.com/funvibe/oxython/internal/vm"
)

func run(t *testing.T, machine *vm.VM, source string) *pipeline.PipelineContext {
	t.Helper()
	ctx := pipeline.NewContext(source)
	ctx.Module = "test"
	return pipeline.New(
		&CompileProcessor{},
		NewExecutionProcessor(NewVM(machine)),
	).Run(ctx)
}

func TestPipelineRunsScript(t *testing.T) {
	var out bytes.Buffer
	ctx := run(t, vm.New(vm.WithOutput(&out)), "x = 2\nprint(x * 21)")

	require.False(t, ctx.Failed(), "errors: %v", ctx.Errors)
	assert.Equal(t, "42\n", out.String())
	assert.False(t, ctx.HasResult)
	assert.NotEmpty(t, ctx.RunID)
}

func TestPipelineExpressionResult(t *testing.T) {
	machine := vm.New(vm.WithOutput(&bytes.Buffer{}))
	ctx := run(t, machine, "1 + 2")

	require.False(t, ctx.Failed())
	assert.True(t, ctx.HasResult)
	assert.True(t, ctx.Result.Equals(vm.IntVal(3)))
}

func TestPipelineGlobalsPersistOnSharedVM(t *testing.T) {
	machine := vm.New(vm.WithOutput(&bytes.Buffer{}))
	require.False(t, run(t, machine, "counter = 10").Failed())

	ctx := run(t, machine, "counter + 1")
	require.False(t, ctx.Failed())
	assert.True(t, ctx.Result.Equals(vm.IntVal(11)))
}

func TestPipelineCompileError(t *testing.T) {
	ctx := pipeline.NewContext("x = )\nreturn 1")
	ctx.FilePath = "bad.py"
	ctx = pipeline.New(&CompileProcessor{}, NewExecutionProcessor(NewVM(nil))).Run(ctx)

	require.Len(t, ctx.Errors, 2)
	assert.True(t, ctx.CompileFailed())
	assert.Nil(t, ctx.Chunk)
	assert.Empty(t, ctx.RunID, "execution must be skipped")
	assert.Equal(t, "bad.py", ctx.Errors[0].File)
	assert.Equal(t, diagnostics.ErrC003, ctx.Errors[1].Code)

	var list diagnostics.ErrorList
	assert.True(t, errors.As(ctx.Err(), &list))
}

func TestPipelineRuntimeError(t *testing.T) {
	ctx := run(t, vm.New(vm.WithOutput(&bytes.Buffer{})), "def f():\n    return 1 / 0\nf()")

	require.Len(t, ctx.Errors, 1)
	assert.False(t, ctx.CompileFailed())
	assert.Equal(t, diagnostics.ErrR001, ctx.Errors[0].Code)
	assert.Equal(t, 2, ctx.Errors[0].Token.Line)
	assert.Contains(t, ctx.Errors[0].Message, "division by zero")
	assert.Contains(t, ctx.Errors[0].Message, "Stack trace:")

	var rt *vm.RuntimeError
	require.True(t, errors.As(ctx.Err(), &rt))
	assert.Equal(t, 2, rt.Line)
}

func TestDisassembleBackend(t *testing.T) {
	var out bytes.Buffer
	ctx := pipeline.NewContext("def f():\n    return 1\nprint(f())")
	ctx.Module = "demo"
	ctx.Output = &out
	ctx = pipeline.New(&CompileProcessor{}, NewExecutionProcessor(NewDisassembler())).Run(ctx)

	require.False(t, ctx.Failed())
	assert.Contains(t, out.String(), "== demo ==")
	assert.Contains(t, out.String(), "== f ==")
	assert.NotContains(t, out.String(), "\n1\n", "the program must not run")
}

func TestBackendNames(t *testing.T) {
	assert.Equal(t, "vm", NewVM(nil).Name())
	assert.Equal(t, "disassemble", NewDisassembler().Name())
}
