package vm

import (
	"fmt"
	"math"

	"github.com/funvibe/oxython/internal/config"
	"github.com/funvibe/oxython/internal/diagnostics"
)

// refKind is where an identifier resolved to
type refKind int

const (
	refGlobal refKind = iota
	refLocal
	refUpvalue
)

// chunk returns the chunk of the unit being compiled
func (c *Compiler) chunk() *Chunk {
	return c.unit.proto.Chunk
}

func (c *Compiler) inFunction() bool {
	return c.unit.kind != unitScript
}

// resolveLocal looks up a local variable by name
func (u *compileUnit) resolveLocal(name string) int {
	if u.kind == unitScript {
		return -1
	}
	for i := len(u.locals) - 1; i >= 0; i-- {
		if u.locals[i].name == name {
			return u.locals[i].slot
		}
	}
	return -1
}

// resolveUpvalue looks for a variable in enclosing function scopes and
// threads an upvalue through every unit in between.
func (c *Compiler) resolveUpvalue(u *compileUnit, name string) int {
	if u.enclosing == nil || u.enclosing.kind == unitScript {
		return -1
	}
	if slot := u.enclosing.resolveLocal(name); slot >= 0 {
		return c.addUpvalue(u, slot, true)
	}
	if idx := c.resolveUpvalue(u.enclosing, name); idx >= 0 {
		return c.addUpvalue(u, idx, false)
	}
	return -1
}

// enclosingLocal reports whether name is a local of the current or any
// enclosing function, without creating upvalues.
func (c *Compiler) enclosingLocal(name string) bool {
	for u := c.unit; u != nil; u = u.enclosing {
		if u.resolveLocal(name) >= 0 || u.nonlocals[name] {
			return true
		}
	}
	return false
}

// addUpvalue adds an upvalue descriptor, reusing an existing one
func (c *Compiler) addUpvalue(u *compileUnit, index int, isLocal bool) int {
	for i, uv := range u.upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	if len(u.upvalues) >= config.MaxUpvalues {
		c.errorAtPrevious(diagnostics.ErrC008, "too many closure variables in function")
	}
	u.upvalues = append(u.upvalues, UpvalueDescriptor{IsLocal: isLocal, Index: index})
	return len(u.upvalues) - 1
}

// declareLocal adds a local to the current function and returns its slot.
func (c *Compiler) declareLocal(name string, typ *TypeAnnotation) int {
	if slot := c.unit.resolveLocal(name); slot >= 0 {
		return slot
	}
	slot := len(c.unit.locals) + 1
	if slot >= config.MaxLocals {
		c.errorAtPrevious(diagnostics.ErrC008, "too many local variables in function")
	}
	c.unit.locals = append(c.unit.locals, local{name: name, slot: slot, typ: typ})
	return slot
}

func (c *Compiler) resolve(name string) (refKind, int) {
	if c.inFunction() {
		if !c.unit.nonlocals[name] {
			if slot := c.unit.resolveLocal(name); slot >= 0 {
				return refLocal, slot
			}
		}
		if idx := c.resolveUpvalue(c.unit, name); idx >= 0 {
			return refUpvalue, idx
		}
	}
	return refGlobal, 0
}

// emitGet pushes the value of a variable
func (c *Compiler) emitGet(name string) {
	kind, idx := c.resolve(name)
	switch kind {
	case refLocal:
		c.emitOpU16(OP_GET_LOCAL, idx)
	case refUpvalue:
		c.emitOpByte(OP_GET_UPVALUE, byte(idx))
	default:
		c.emitOpU16(OP_GET_GLOBAL, c.identifierConstant(name))
	}
}

// emitStore pops the top of the stack into a variable. With declare, a
// plain assignment inside a function creates a local rather than writing
// through to an enclosing scope.
func (c *Compiler) emitStore(name string, declare bool) {
	if !c.inFunction() {
		c.emitOpU16(OP_DEFINE_GLOBAL, c.identifierConstant(name))
		return
	}
	if !c.unit.nonlocals[name] {
		if slot := c.unit.resolveLocal(name); slot >= 0 {
			c.emitOpU16(OP_SET_LOCAL, slot)
			c.emitOp(OP_POP)
			return
		}
	}
	if c.unit.nonlocals[name] || !declare {
		if idx := c.resolveUpvalue(c.unit, name); idx >= 0 {
			c.emitOpByte(OP_SET_UPVALUE, byte(idx))
			c.emitOp(OP_POP)
			return
		}
	}
	if declare {
		slot := c.declareLocal(name, nil)
		c.emitOpU16(OP_SET_LOCAL, slot)
		c.emitOp(OP_POP)
		return
	}
	c.emitOpU16(OP_SET_GLOBAL, c.identifierConstant(name))
	c.emitOp(OP_POP)
}

// --- emission ---

func (c *Compiler) emitOp(op Opcode) {
	c.chunk().WriteOp(op, c.previous.Line)
}

func (c *Compiler) emitByte(b byte) {
	c.chunk().Write(b, c.previous.Line)
}

func (c *Compiler) emitU16(v int) {
	c.chunk().WriteU16(v, c.previous.Line)
}

func (c *Compiler) emitOpByte(op Opcode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *Compiler) emitOpU16(op Opcode, v int) {
	c.emitOp(op)
	c.emitU16(v)
}

func (c *Compiler) emitConstant(value Value) {
	c.emitOpU16(OP_CONSTANT, c.makeConstant(value))
}

func (c *Compiler) emitNil() {
	c.emitConstant(NilVal())
}

// makeConstant adds value to the pool. Scalars and strings are
// deduplicated per chunk.
func (c *Compiler) makeConstant(value Value) int {
	key, dedup := constantKey(value)
	if dedup {
		if idx, ok := c.unit.consts[key]; ok {
			return idx
		}
	}
	if len(c.chunk().Constants) >= config.MaxConstants {
		c.errorAtPrevious(diagnostics.ErrC008, "too many constants in one chunk")
	}
	idx := c.chunk().AddConstant(value)
	if dedup {
		c.unit.consts[key] = idx
	}
	return idx
}

func constantKey(value Value) (constKey, bool) {
	switch value.Type {
	case ValNil, ValInt, ValFloat, ValBool:
		if value.Type == ValFloat && math.IsNaN(value.AsFloat()) {
			return constKey{}, false
		}
		return constKey{typ: value.Type, data: value.Data}, true
	}
	if s, ok := value.AsString(); ok {
		return constKey{typ: ValObj, str: s}, true
	}
	return constKey{}, false
}

func (c *Compiler) identifierConstant(name string) int {
	return c.makeConstant(StringVal(name))
}

// emitJump emits a forward jump with a placeholder operand and returns
// the operand offset for patchJump.
func (c *Compiler) emitJump(op Opcode) int {
	c.emitOp(op)
	c.emitU16(0)
	return c.chunk().Len() - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := c.chunk().Len() - offset - 2
	if jump > config.MaxJump {
		c.errorAtPrevious(diagnostics.ErrC008, "too much code to jump over")
	}
	c.chunk().PutU16(offset, jump)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(OP_LOOP)
	offset := c.chunk().Len() - loopStart + 2
	if offset > config.MaxJump {
		c.errorAtPrevious(diagnostics.ErrC008, "loop body too large")
	}
	c.emitU16(offset)
}

// --- fragments ---

// fragment is a run of emitted bytecode lifted out of the chunk so it can
// be re-emitted elsewhere. Jumps are relative, so fragments are
// position-independent.
type fragment struct {
	code  []byte
	lines []int
}

func (c *Compiler) copyFrom(start int) fragment {
	ch := c.chunk()
	return fragment{
		code:  append([]byte(nil), ch.Code[start:]...),
		lines: append([]int(nil), ch.Lines[start:]...),
	}
}

// cut lifts everything emitted since start out of the chunk.
func (c *Compiler) cut(start int) fragment {
	f := c.copyFrom(start)
	c.chunk().Truncate(start)
	return f
}

func (c *Compiler) replay(f fragment) {
	ch := c.chunk()
	ch.Code = append(ch.Code, f.code...)
	ch.Lines = append(ch.Lines, f.lines...)
}

// rewriteGlobals turns GetGlobal/SetGlobal of name into GetLocal/SetLocal
// of slot. Operands have the same width so offsets are unaffected.
func (c *Compiler) rewriteGlobals(f fragment, name string, slot int) {
	consts := c.chunk().Constants
	for ip := 0; ip < len(f.code); {
		op := Opcode(f.code[ip])
		if (op == OP_GET_GLOBAL || op == OP_SET_GLOBAL) && ip+2 < len(f.code) {
			idx := int(f.code[ip+1])<<8 | int(f.code[ip+2])
			if idx < len(consts) {
				if s, ok := consts[idx].AsString(); ok && s == name {
					if op == OP_GET_GLOBAL {
						f.code[ip] = byte(OP_GET_LOCAL)
					} else {
						f.code[ip] = byte(OP_SET_LOCAL)
					}
					f.code[ip+1] = byte(slot >> 8)
					f.code[ip+2] = byte(slot)
				}
			}
		}
		ip += 1 + op.OperandWidth()
	}
}

// --- paths ---

// accessor is one step of an assignment target or tracked receiver:
// either .attr or [index].
type accessor struct {
	attr    string
	index   fragment
	isIndex bool
}

// exprPath records that the expression compiled since start is a load of
// root followed by accessors.
type exprPath struct {
	root  string
	start int
	acc   []accessor
}

func (p *exprPath) with(a accessor) *exprPath {
	acc := make([]accessor, len(p.acc), len(p.acc)+1)
	copy(acc, p.acc)
	return &exprPath{root: p.root, start: p.start, acc: append(acc, a)}
}

func (c *Compiler) loadPath(root string, acc []accessor) {
	c.emitGet(root)
	for _, a := range acc {
		if a.isIndex {
			c.replay(a.index)
			c.emitOp(OP_INDEX)
		} else {
			c.emitOpU16(OP_GET_ATTR, c.identifierConstant(a.attr))
		}
	}
}

// assignPath stores the value produced by value into root.acc. Index
// targets rebuild the container, so every parent on the path is written
// back in turn.
func (c *Compiler) assignPath(root string, acc []accessor, value func()) {
	if len(acc) == 0 {
		value()
		c.emitStore(root, false)
		return
	}
	prefix, last := acc[:len(acc)-1], acc[len(acc)-1]
	if !last.isIndex {
		c.loadPath(root, prefix)
		value()
		c.emitOpU16(OP_SET_ATTR, c.identifierConstant(last.attr))
		return
	}
	c.assignPath(root, prefix, func() {
		c.loadPath(root, prefix)
		c.replay(last.index)
		value()
		c.emitOp(OP_SET_INDEX)
	})
}

func (c *Compiler) checkLimit(n, limit int, what string) {
	if n > limit {
		c.errorAtPrevious(diagnostics.ErrC008, fmt.Sprintf("more than %d %s", limit, what))
	}
}
