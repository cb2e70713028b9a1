package vm

import (
	"fmt"

	"github.com/funvibe/oxython/internal/config"
	"github.com/funvibe/oxython/internal/token"
)

func (c *Compiler) pushLoop(cleanupDepth int) *loopContext {
	loop := &loopContext{cleanupDepth: cleanupDepth}
	c.unit.loops = append(c.unit.loops, loop)
	return loop
}

// popLoop ends the innermost loop and points its breaks here
func (c *Compiler) popLoop(loop *loopContext) {
	c.unit.loops = c.unit.loops[:len(c.unit.loops)-1]
	for _, offset := range loop.breakJumps {
		c.patchJump(offset)
	}
}

// while cond: body
func (c *Compiler) whileStatement() {
	indent := c.lineIndent(c.current)
	c.advance()

	loopStart := c.chunk().Len()
	c.expression()
	c.consume(token.COLON, "expected ':' after while condition")

	exitJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emitOp(OP_POP)

	loop := c.pushLoop(0)
	c.suite(indent, false, c.statement)
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(OP_POP)
	c.popLoop(loop)
}

// for x in iterable: body
//
// The collection and an integer cursor stay on the stack for the whole
// loop. IterNext pushes the next element, or drops both and jumps to the
// exit when the collection is exhausted.
func (c *Compiler) forStatement() {
	indent := c.lineIndent(c.current)
	c.advance()

	name := c.consume(token.IDENT, "expected loop variable after 'for'").Lexeme
	c.consume(token.IN, "expected 'in' after loop variable")

	c.emitNil()
	c.emitStore(name, true)

	c.expression()
	c.consume(token.COLON, "expected ':' after for iterable")
	c.emitConstant(IntVal(0))

	loopStart := c.chunk().Len()
	exitJump := c.emitJump(OP_ITER_NEXT)
	c.emitStore(name, true)

	loop := c.pushLoop(2)
	c.suite(indent, false, c.statement)
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.popLoop(loop)
}

// prepareComprehension looks ahead for "for x" inside the bracket being
// opened. If x would otherwise resolve to an enclosing function's
// variable, it is declared here first so the element reads the loop
// variable rather than a captured one.
func (c *Compiler) prepareComprehension() {
	if !c.inFunction() {
		return
	}
	lx := c.lexer.Clone()
	depth := 0
	for tok := c.current; tok.Type != token.EOF; tok = lx.NextToken() {
		switch tok.Type {
		case token.LPAREN, token.LBRACKET, token.LBRACE:
			depth++
		case token.RPAREN, token.RBRACKET, token.RBRACE:
			depth--
		case token.FOR:
			if depth != 0 {
				continue
			}
			name := lx.NextToken()
			if name.Type != token.IDENT {
				return
			}
			if c.unit.resolveLocal(name.Lexeme) < 0 && !c.unit.nonlocals[name.Lexeme] && c.enclosingLocal(name.Lexeme) {
				c.declareLocal(name.Lexeme, nil)
			}
			return
		}
		if depth < 0 {
			return
		}
	}
}

// comprehension lowers [elem for x in iterable if cond] into a loop that
// appends to a hidden accumulator. elem has already been compiled and
// lifted out of the chunk; it is re-emitted inside the loop body.
func (c *Compiler) comprehension(elem fragment, closing token.TokenType) {
	acc := fmt.Sprintf("%s%d", config.ListCompResultPrefix, c.compCount)
	c.compCount++

	c.emitOpU16(OP_BUILD_LIST, 0)
	c.emitStore(acc, true)

	c.consume(token.FOR, "expected 'for' in comprehension")
	name := c.consume(token.IDENT, "expected loop variable in comprehension").Lexeme
	c.consume(token.IN, "expected 'in' in comprehension")

	c.emitNil()
	c.emitStore(name, true)
	if c.inFunction() {
		for _, n := range []string{name, acc} {
			if slot := c.unit.resolveLocal(n); slot >= 0 && !c.unit.nonlocals[n] {
				c.rewriteGlobals(elem, n, slot)
			}
		}
	}

	c.expression()
	c.emitConstant(IntVal(0))

	loopStart := c.chunk().Len()
	exitJump := c.emitJump(OP_ITER_NEXT)
	c.emitStore(name, true)

	skipJump := -1
	if c.match(token.IF) {
		c.expression()
		skipJump = c.emitJump(OP_JUMP_IF_FALSE)
		c.emitOp(OP_POP)
	}

	c.emitGet(acc)
	c.replay(elem)
	c.emitOp(OP_APPEND)
	c.emitStore(acc, true)

	if skipJump >= 0 {
		overJump := c.emitJump(OP_JUMP)
		c.patchJump(skipJump)
		c.emitOp(OP_POP)
		c.patchJump(overJump)
	}

	c.emitLoop(loopStart)
	c.patchJump(exitJump)

	c.consume(closing, fmt.Sprintf("expected '%s' after comprehension", closing))
	c.emitGet(acc)
	c.path = nil
}
