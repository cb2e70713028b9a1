package oxython

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/funvibe/oxython/internal/backend"
	"github.com/funvibe/oxython/internal/pipeline"
	"github.com/funvibe/oxython/internal/vm"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// VM wraps the underlying oxython VM and provides a high-level embedding API.
// Globals persist across Eval, LoadFile and Call.
type VM struct {
	machine    *vm.VM
	marshaller *Marshaller
	module     string
}

// New creates a new oxython VM instance.
func New() *VM {
	return &VM{
		machine:    vm.New(),
		marshaller: NewMarshaller(),
		module:     "<embed>",
	}
}

// SetOutput redirects print output (stdout by default).
func (v *VM) SetOutput(w io.Writer) {
	v.machine.SetOutput(w)
}

// SetContext bounds later executions by ctx.
func (v *VM) SetContext(ctx context.Context) {
	v.machine.SetContext(ctx)
}

// Bind registers a Go function or value with the VM. Functions become
// callable natives; any other value is converted as with Set.
func (v *VM) Bind(name string, val interface{}) error {
	fn := reflect.ValueOf(val)
	if fn.Kind() != reflect.Func {
		return v.Set(name, val)
	}
	if fn.IsNil() {
		return fmt.Errorf("bind %s: nil function", name)
	}
	v.machine.DefineNative(name, func(_ *vm.VM, args []vm.Value, _ *vm.ObjClass) (vm.Value, error) {
		return v.hostCall(name, fn, args)
	})
	return nil
}

func (v *VM) hostCall(name string, fn reflect.Value, args []vm.Value) (vm.Value, error) {
	// Convert args from oxython to Go
	fnType := fn.Type()
	numIn := fnType.NumIn()
	isVariadic := fnType.IsVariadic()

	// Check arg count
	if isVariadic {
		if len(args) < numIn-1 {
			return vm.NilVal(), fmt.Errorf("%s() expected at least %d arguments, got %d", name, numIn-1, len(args))
		}
	} else if len(args) != numIn {
		return vm.NilVal(), fmt.Errorf("%s() expected %d arguments, got %d", name, numIn, len(args))
	}

	goArgs := make([]reflect.Value, len(args))
	for i, arg := range args {
		// Determine target type
		var targetType reflect.Type
		if isVariadic && i >= numIn-1 {
			targetType = fnType.In(numIn - 1).Elem()
		} else {
			targetType = fnType.In(i)
		}

		val, err := v.marshaller.FromValue(arg, targetType)
		if err != nil {
			return vm.NilVal(), fmt.Errorf("%s() argument %d: %w", name, i+1, err)
		}
		rv, err := assignable(val, targetType)
		if err != nil {
			return vm.NilVal(), fmt.Errorf("%s() argument %d: %w", name, i+1, err)
		}
		goArgs[i] = rv
	}

	results := fn.Call(goArgs)

	// A trailing error result is raised, not returned
	if n := len(results); n > 0 && fnType.Out(n-1) == errorType {
		if err, _ := results[n-1].Interface().(error); err != nil {
			return vm.NilVal(), err
		}
		results = results[:n-1]
	}

	switch len(results) {
	case 0:
		return vm.NilVal(), nil
	case 1:
		return v.marshaller.ToValue(results[0].Interface())
	}
	// Multiple returns -> tuple
	elements := make([]vm.Value, len(results))
	for i, res := range results {
		val, err := v.marshaller.ToValue(res.Interface())
		if err != nil {
			return vm.NilVal(), err
		}
		elements[i] = val
	}
	return vm.TupleVal(elements), nil
}

// Set sets a global variable in the VM.
// Use this for data objects. For functions, prefer Bind.
func (v *VM) Set(name string, val interface{}) error {
	obj, err := v.marshaller.ToValue(val)
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	v.machine.SetGlobal(name, obj)
	return nil
}

// Get retrieves a global variable from the VM.
func (v *VM) Get(name string) (interface{}, error) {
	obj, ok := v.machine.GetGlobal(name)
	if !ok {
		return nil, fmt.Errorf("variable '%s' not found", name)
	}
	return v.marshaller.FromValue(obj, nil)
}

// GetInto converts a global into the Go value pointed to by target.
func (v *VM) GetInto(name string, target interface{}) error {
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	obj, ok := v.machine.GetGlobal(name)
	if !ok {
		return fmt.Errorf("variable '%s' not found", name)
	}
	elemType := ptr.Elem().Type()
	val, err := v.marshaller.FromValue(obj, elemType)
	if err != nil {
		return err
	}
	rv, err := assignable(val, elemType)
	if err != nil {
		return err
	}
	ptr.Elem().Set(rv)
	return nil
}

// Call calls a function defined in the script (or bound from Go) by name.
func (v *VM) Call(funcName string, args ...interface{}) (interface{}, error) {
	fnObj, ok := v.machine.GetGlobal(funcName)
	if !ok {
		return nil, fmt.Errorf("function '%s' not found", funcName)
	}

	vmArgs := make([]vm.Value, len(args))
	for i, arg := range args {
		obj, err := v.marshaller.ToValue(arg)
		if err != nil {
			return nil, err
		}
		vmArgs[i] = obj
	}

	result, err := v.machine.Call(fnObj, vmArgs...)
	if err != nil {
		return nil, err
	}
	return v.marshaller.FromValue(result, nil)
}

// Eval executes source code. When the code ends in an expression
// statement its value is returned, otherwise nil.
func (v *VM) Eval(code string) (interface{}, error) {
	ctx := pipeline.NewContext(code)
	ctx.Module = v.module

	ctx, err := v.run(ctx)
	if err != nil {
		return nil, err
	}
	if !ctx.HasResult {
		return nil, nil
	}
	return v.marshaller.FromValue(ctx.Result, nil)
}

// LoadFile compiles and executes a file.
func (v *VM) LoadFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ctx := pipeline.NewContext(string(content))
	ctx.FilePath = path
	ctx.Module = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	_, err = v.run(ctx)
	return err
}

func (v *VM) run(ctx *pipeline.PipelineContext) (*pipeline.PipelineContext, error) {
	p := pipeline.New(
		&backend.CompileProcessor{},
		backend.NewExecutionProcessor(backend.NewVM(v.machine)),
	)
	ctx = p.Run(ctx)
	return ctx, ctx.Err()
}
