package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/funvibe/oxython/internal/config"
	"github.com/funvibe/oxython/internal/diagnostics"
)

var log = commonlog.GetLogger("oxython.vm")

var errTruncatedBytecode = errors.New("truncated bytecode")
var errStackUnderflow = errors.New("stack underflow")
var errStackOverflow = errors.New("stack overflow")
var errInvalidConstantIndex = errors.New("invalid constant index")

// ErrNoChunk is returned by Interpret when given nothing to run.
var ErrNoChunk = errors.New("no chunk to interpret")

// checkInterval is how many instructions run between context polls
const checkInterval = 1000

// InterpretResult is the outcome of running a chunk
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

func (r InterpretResult) String() string {
	switch r {
	case InterpretOK:
		return "ok"
	case InterpretCompileError:
		return "compile error"
	default:
		return "runtime error"
	}
}

// CallFrame represents a single ongoing function call
type CallFrame struct {
	function *ObjFunction
	chunk    *Chunk // Shortcut to function.Proto.Chunk
	ip       int
	slot     int // Stack index of the callee; locals follow it

	// instanceSlot is set for __init__ calls: the value there is returned
	// instead of __init__'s own result.
	instanceSlot int

	// classContext is the class that defined the running method
	classContext *ObjClass
}

// VM is the virtual machine that executes bytecode
type VM struct {
	stack []Value
	sp    int // Stack pointer (points to next free slot)

	frames     []CallFrame
	frameCount int
	frame      *CallFrame

	globals *PersistentMap

	// Linked list of open upvalues, sorted by stack location (highest first)
	openUpvalues *ObjUpvalue

	lastPopped Value

	out    io.Writer
	ctx    context.Context
	module string

	opsSinceCheck int
}

// Option configures a VM
type Option func(*VM)

// WithStackSize sets the operand stack capacity
func WithStackSize(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.stack = make([]Value, n)
		}
	}
}

// WithMaxFrames sets the call depth limit
func WithMaxFrames(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.frames = make([]CallFrame, n)
		}
	}
}

// WithOutput sets where print writes
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithModule sets the module name used for InterpretSource
func WithModule(name string) Option {
	return func(vm *VM) { vm.module = name }
}

// New creates a VM with a fresh global table holding the built-in natives.
func New(opts ...Option) *VM {
	vm := &VM{
		stack:   make([]Value, config.StackMax),
		frames:  make([]CallFrame, config.FramesMax),
		globals: EmptyMap(),
		out:     os.Stdout,
		module:  config.DefaultModuleName,
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.registerNatives()
	return vm
}

// SetOutput sets the output writer for the VM
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// SetContext sets the context for cancellation
func (vm *VM) SetContext(ctx context.Context) {
	vm.ctx = ctx
}

// Globals returns the current global table
func (vm *VM) Globals() *PersistentMap {
	return vm.globals
}

func (vm *VM) GetGlobal(name string) (Value, bool) {
	return vm.globals.Get(name)
}

func (vm *VM) SetGlobal(name string, value Value) {
	vm.globals = vm.globals.Put(name, value)
}

// DefineNative registers a host function as a global
func (vm *VM) DefineNative(name string, fn NativeFn) {
	vm.SetGlobal(name, ObjVal(&ObjNative{Name: name, Fn: fn}))
}

// LastPopped returns the value most recently discarded by a Pop
// instruction, which is the value of a trailing expression statement.
func (vm *VM) LastPopped() Value {
	return vm.lastPopped
}

// StackTop returns the value on top of the operand stack, if any.
func (vm *VM) StackTop() (Value, bool) {
	if vm.sp == 0 {
		return NilVal(), false
	}
	return vm.stack[vm.sp-1], true
}

// InterpretSource compiles and runs source in one step.
func (vm *VM) InterpretSource(source, module string) (InterpretResult, error) {
	if module == "" {
		module = vm.module
	}
	chunk, err := Compile(source, module)
	if err != nil {
		log.Debugf("compile failed for %s: %s", module, err)
		return InterpretCompileError, err
	}
	return vm.Interpret(chunk)
}

// Interpret runs a compiled chunk as top-level code. Globals persist
// between calls; the stacks are reset.
func (vm *VM) Interpret(chunk *Chunk) (InterpretResult, error) {
	if chunk == nil {
		return InterpretCompileError, ErrNoChunk
	}
	vm.reset()

	script := &ObjFunction{
		Proto: &Prototype{
			Name:     config.ScriptFunctionName,
			QualName: config.ScriptFunctionName,
			Module:   vm.module,
			Chunk:    chunk,
		},
		Globals: vm.globals,
	}
	vm.stack[0] = ObjVal(script)
	vm.sp = 1
	vm.pushFrame(script, 0, -1, nil)

	log.Debugf("interpret: %d bytes, %d constants", len(chunk.Code), len(chunk.Constants))
	if err := vm.run(0); err != nil {
		log.Debugf("interpret: %s", err)
		return InterpretRuntimeError, err
	}
	// the script's own return value
	vm.sp = 0
	log.Debugf("interpret: ok")
	return InterpretOK, nil
}

func (vm *VM) reset() {
	vm.sp = 0
	vm.frameCount = 0
	vm.frame = nil
	vm.openUpvalues = nil
	vm.lastPopped = NilVal()
	vm.opsSinceCheck = 0
}

func (vm *VM) pushFrame(fn *ObjFunction, slot, instanceSlot int, classContext *ObjClass) {
	vm.frames[vm.frameCount] = CallFrame{
		function:     fn,
		chunk:        fn.Proto.Chunk,
		slot:         slot,
		instanceSlot: instanceSlot,
		classContext: classContext,
	}
	vm.frameCount++
	vm.frame = &vm.frames[vm.frameCount-1]
}

// run executes until the frame count drops to target. Nested runs (for
// __str__ and host calls) use the current depth as target.
func (vm *VM) run(target int) error {
	for vm.frameCount > target {
		vm.opsSinceCheck++
		if vm.opsSinceCheck >= checkInterval {
			vm.opsSinceCheck = 0
			if vm.ctx != nil {
				select {
				case <-vm.ctx.Done():
					return vm.formatError(fmt.Errorf("execution cancelled: %w", vm.ctx.Err()))
				default:
				}
			}
		}

		if err := vm.step(); err != nil {
			return vm.formatError(err)
		}
	}
	return nil
}

// step executes one instruction
func (vm *VM) step() (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch r {
			case errTruncatedBytecode, errStackUnderflow, errStackOverflow, errInvalidConstantIndex:
				err = r.(error)
			default:
				panic(r)
			}
		}
	}()

	if vm.frame.ip >= len(vm.frame.chunk.Code) {
		return errTruncatedBytecode
	}
	op := Opcode(vm.frame.chunk.Code[vm.frame.ip])
	vm.frame.ip++
	return vm.execute(op)
}

// doReturn pops the current frame. The result is the value above the
// frame's locals, if the body left one.
func (vm *VM) doReturn() {
	frame := vm.frame
	proto := frame.function.Proto

	result := NilVal()
	if vm.sp > frame.slot+proto.Arity+proto.LocalCount+1 {
		result = vm.pop()
	}
	if frame.instanceSlot >= 0 {
		result = vm.stack[frame.instanceSlot]
	}

	vm.closeUpvalues(frame.slot)
	vm.frameCount--
	vm.sp = frame.slot

	if vm.frameCount == 0 {
		vm.frame = nil
	} else {
		vm.frame = &vm.frames[vm.frameCount-1]
	}
	vm.push(result)
}

// Stack operations

func (vm *VM) push(v Value) {
	if vm.sp >= len(vm.stack) {
		panic(errStackOverflow)
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	if vm.sp <= 0 {
		panic(errStackUnderflow)
	}
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) Value {
	idx := vm.sp - 1 - distance
	if idx < 0 {
		panic(errStackUnderflow)
	}
	return vm.stack[idx]
}

// Read helpers

func (vm *VM) readByte() byte {
	if vm.frame.ip >= len(vm.frame.chunk.Code) {
		panic(errTruncatedBytecode)
	}
	b := vm.frame.chunk.Code[vm.frame.ip]
	vm.frame.ip++
	return b
}

func (vm *VM) readU16() int {
	high := vm.readByte()
	low := vm.readByte()
	return int(high)<<8 | int(low)
}

func (vm *VM) readConstant() Value {
	idx := vm.readU16()
	if idx >= len(vm.frame.chunk.Constants) {
		panic(errInvalidConstantIndex)
	}
	return vm.frame.chunk.Constants[idx]
}

func (vm *VM) readName() string {
	s, ok := vm.readConstant().AsString()
	if !ok {
		panic(errInvalidConstantIndex)
	}
	return s
}

// Upvalues

// captureUpvalue creates or reuses an upvalue pointing to the given stack location
func (vm *VM) captureUpvalue(location int) *ObjUpvalue {
	var prev *ObjUpvalue
	upvalue := vm.openUpvalues

	for upvalue != nil && upvalue.Location > location {
		prev = upvalue
		upvalue = upvalue.Next
	}
	if upvalue != nil && upvalue.Location == location {
		return upvalue
	}

	created := &ObjUpvalue{Location: location, Next: upvalue}
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes all upvalues that point to stack locations >= lastSlot
func (vm *VM) closeUpvalues(lastSlot int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Location >= lastSlot {
		upvalue := vm.openUpvalues
		upvalue.Closed = vm.stack[upvalue.Location]
		upvalue.Location = -1
		vm.openUpvalues = upvalue.Next
		upvalue.Next = nil
	}
}

func (vm *VM) readUpvalue(uv *ObjUpvalue) Value {
	if uv.IsClosed() {
		return uv.Closed
	}
	return vm.stack[uv.Location]
}

func (vm *VM) writeUpvalue(uv *ObjUpvalue, v Value) {
	if uv.IsClosed() {
		uv.Closed = v
		return
	}
	vm.stack[uv.Location] = v
}

// Errors

// RuntimeError is a failure raised while executing bytecode
type RuntimeError struct {
	Message string
	Line    int
	Trace   []string // Innermost frame first
	Err     error
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Code returns the diagnostic code for runtime failures
func (e *RuntimeError) Code() diagnostics.ErrorCode {
	return diagnostics.ErrR001
}

// StackTrace renders the frames active when the error was raised
func (e *RuntimeError) StackTrace() string {
	var sb strings.Builder
	sb.WriteString("Stack trace:")
	for _, t := range e.Trace {
		sb.WriteString("\n  at ")
		sb.WriteString(t)
	}
	return sb.String()
}

// formatError adds line info and a stack trace to VM errors
func (vm *VM) formatError(err error) error {
	if rt, ok := err.(*RuntimeError); ok {
		return rt
	}

	line := 0
	if vm.frame != nil {
		line = vm.frame.chunk.LineAt(vm.frame.ip - 1)
	}

	var trace []string
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		proto := frame.function.Proto
		trace = append(trace, fmt.Sprintf("%s (%s:%d)", proto.QualName, proto.Module, frame.chunk.LineAt(frame.ip-1)))
	}

	log.Debugf("runtime error at line %d: %s", line, err)
	return &RuntimeError{Message: err.Error(), Line: line, Trace: trace, Err: err}
}
