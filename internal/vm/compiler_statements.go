package vm

import (
	"fmt"

	"github.com/funvibe/oxython/internal/config"
	"github.com/funvibe/oxython/internal/diagnostics"
	"github.com/funvibe/oxython/internal/token"
)

const passKeyword = "pass"

// statement compiles one statement
func (c *Compiler) statement() {
	topLevel := !c.inFunction() && c.blockDepth == 0
	if topLevel {
		c.lastExprStmt = false
	}

	switch c.current.Type {
	case token.PRINT:
		c.printStatement()
	case token.IF:
		c.ifStatement()
	case token.WHILE:
		c.whileStatement()
	case token.FOR:
		c.forStatement()
	case token.DEF:
		c.defStatement()
	case token.CLASS:
		c.classStatement()
	case token.RETURN:
		c.returnStatement()
	case token.BREAK:
		c.breakStatement()
	case token.NONLOCAL:
		c.nonlocalStatement()
	case token.IDENT:
		c.identStatement(topLevel)
	default:
		c.expressionStatement(topLevel)
	}
}

// print(a, b, c) prints its arguments separated by spaces
func (c *Compiler) printStatement() {
	c.advance()
	c.consume(token.LPAREN, "expected '(' after 'print'")
	c.nesting++
	argc := 0
	if !c.check(token.RPAREN) {
		for {
			c.expression()
			argc++
			if !c.match(token.COMMA) || c.check(token.RPAREN) {
				break
			}
			c.emitOp(OP_PRINT_SPACED)
		}
		c.emitOp(OP_PRINT)
	}
	c.nesting--
	c.consume(token.RPAREN, "expected ')' after print arguments")
	c.emitOp(OP_PRINTLN)
	c.endStatement()
}

func (c *Compiler) ifStatement() {
	ifTok := c.current
	indent := c.lineIndent(ifTok)
	c.advance()

	c.expression()
	c.consume(token.COLON, "expected ':' after if condition")

	thenJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emitOp(OP_POP)
	inline := !c.startsLine(c.current)
	if inline {
		c.inlineIf++
	}
	c.suite(indent, false, c.statement)
	sameLineElse := inline && c.atInlineElse()
	if inline {
		c.inlineIf--
	}

	elseJump := c.emitJump(OP_JUMP)
	c.patchJump(thenJump)
	c.emitOp(OP_POP)

	if sameLineElse || c.check(token.ELSE) && c.startsLine(c.current) && c.lineIndent(c.current) == indent {
		c.advance()
		c.consume(token.COLON, "expected ':' after 'else'")
		c.suite(indent, false, c.statement)
	}
	c.patchJump(elseJump)
}

func (c *Compiler) returnStatement() {
	c.advance()
	if !c.inFunction() {
		c.errorAtPrevious(diagnostics.ErrC003, "'return' outside function")
	}
	if c.atStatementEnd() {
		c.emitNil()
	} else {
		c.expression()
	}
	c.emitOp(OP_RETURN)
	c.endStatement()
}

func (c *Compiler) breakStatement() {
	c.advance()
	loops := c.unit.loops
	if len(loops) == 0 {
		c.errorAtPrevious(diagnostics.ErrC004, "'break' outside loop")
	}
	loop := loops[len(loops)-1]
	for i := 0; i < loop.cleanupDepth; i++ {
		c.emitOp(OP_POP)
	}
	loop.breakJumps = append(loop.breakJumps, c.emitJump(OP_JUMP))
	c.endStatement()
}

// nonlocal a, b makes assignments to a and b write to the enclosing
// function's variables.
func (c *Compiler) nonlocalStatement() {
	c.advance()
	if !c.inFunction() {
		c.errorAtPrevious(diagnostics.ErrC001, "nonlocal declaration not allowed at module level")
	}
	for {
		name := c.consume(token.IDENT, "expected name after 'nonlocal'")
		if c.unit.resolveLocal(name.Lexeme) >= 0 {
			c.errorAtPrevious(diagnostics.ErrC001, fmt.Sprintf("name '%s' is assigned to before nonlocal declaration", name.Lexeme))
		}
		if c.resolveUpvalue(c.unit, name.Lexeme) < 0 {
			c.errorAtPrevious(diagnostics.ErrC001, fmt.Sprintf("no binding for nonlocal '%s' found", name.Lexeme))
		}
		c.unit.nonlocals[name.Lexeme] = true
		if !c.match(token.COMMA) {
			break
		}
	}
	c.endStatement()
}

// identStatement handles statements that begin with a name: pass,
// annotated declarations, assignments and expression statements.
func (c *Compiler) identStatement(topLevel bool) {
	if c.current.Lexeme == passKeyword {
		next := c.peekToken()
		if next.Type == token.EOF || next.Type == token.SEMICOLON || c.startsLine(next) {
			c.advance()
			c.endStatement()
			return
		}
	}

	if c.peekToken().Type == token.COLON {
		c.annotatedDeclaration()
		return
	}

	if op, ok := c.scanAssignment(); ok {
		c.assignment(op)
		return
	}
	c.expressionStatement(topLevel)
}

// scanAssignment looks ahead over the rest of the statement for an
// assignment operator outside brackets.
func (c *Compiler) scanAssignment() (token.TokenType, bool) {
	lx := c.lexer.Clone()
	depth := 0
	for tok, first := c.current, true; tok.Type != token.EOF; tok, first = lx.NextToken(), false {
		if !first && depth == 0 && c.startsLine(tok) {
			break
		}
		switch tok.Type {
		case token.LPAREN, token.LBRACKET, token.LBRACE:
			depth++
		case token.RPAREN, token.RBRACKET, token.RBRACE:
			depth--
		case token.SEMICOLON, token.COLON:
			if depth == 0 {
				return "", false
			}
		case token.ASSIGN, token.PLUS_ASSIGN, token.ASTERISK_ASSIGN:
			if depth == 0 {
				return tok.Type, true
			}
		}
		if depth < 0 {
			break
		}
	}
	return "", false
}

func isAssignOp(t token.TokenType) bool {
	return t == token.ASSIGN || t == token.PLUS_ASSIGN || t == token.ASTERISK_ASSIGN
}

// assignment compiles target = value, target += value and target *= value
func (c *Compiler) assignment(op token.TokenType) {
	root := c.consume(token.IDENT, "expected assignment target")
	if root.Lexeme == config.NoneName {
		c.errorAtPrevious(diagnostics.ErrC002, "cannot assign to None")
	}

	var acc []accessor
	for !isAssignOp(c.current.Type) {
		switch {
		case c.match(token.DOT):
			name := c.consume(token.IDENT, "expected attribute name after '.'")
			acc = append(acc, accessor{attr: name.Lexeme})
		case c.match(token.LBRACKET):
			c.nesting++
			start := c.chunk().Len()
			c.expression()
			frag := c.cut(start)
			c.nesting--
			c.consume(token.RBRACKET, "expected ']' after index")
			acc = append(acc, accessor{index: frag, isIndex: true})
		default:
			c.errorAtCurrent(diagnostics.ErrC002, fmt.Sprintf("invalid assignment target near %s", describe(c.current)))
		}
	}
	c.advance()

	if op == token.ASSIGN {
		if len(acc) == 0 {
			c.expression()
			c.emitStore(root.Lexeme, true)
		} else {
			c.assignPath(root.Lexeme, acc, c.expression)
		}
		c.endStatement()
		return
	}

	if len(acc) == 0 && c.inFunction() {
		if kind, _ := c.resolve(root.Lexeme); kind == refGlobal {
			c.errorAt(root, diagnostics.ErrC005, fmt.Sprintf("local variable '%s' referenced before assignment", root.Lexeme))
			panic(errBailout)
		}
	}

	binary := OP_ADD
	if op == token.ASTERISK_ASSIGN {
		binary = OP_MULTIPLY
	}
	c.assignPath(root.Lexeme, acc, func() {
		c.loadPath(root.Lexeme, acc)
		c.expression()
		c.emitOp(binary)
	})
	c.endStatement()
}

// annotatedDeclaration compiles name: T and name: T = value
func (c *Compiler) annotatedDeclaration() {
	name := c.consume(token.IDENT, "expected name")
	c.consume(token.COLON, "expected ':'")
	typ := c.annotation()

	if c.inFunction() {
		if c.unit.resolveLocal(name.Lexeme) < 0 && !c.unit.nonlocals[name.Lexeme] {
			c.declareLocal(name.Lexeme, typ)
		}
	} else {
		c.globalTypes[name.Lexeme] = typ
	}

	if c.match(token.ASSIGN) {
		c.expression()
		c.emitStore(name.Lexeme, true)
	}
	c.endStatement()
}

func (c *Compiler) expressionStatement(topLevel bool) {
	c.expression()
	if isAssignOp(c.current.Type) {
		c.errorAtCurrent(diagnostics.ErrC002, "cannot assign to expression")
	}
	c.emitOp(OP_POP)
	c.path = nil
	c.endStatement()
	if topLevel {
		c.lastExprStmt = true
	}
}
