package vm

import (
	"fmt"
	"strings"

	"github.com/funvibe/oxython/internal/config"
	"github.com/funvibe/oxython/internal/diagnostics"
	"github.com/funvibe/oxython/internal/token"
)

// def name(params): body
func (c *Compiler) defStatement() {
	name := c.function(unitFunction)
	c.emitStore(name, true)
}

// function compiles a def and leaves the new function on the stack
func (c *Compiler) function(kind unitKind) string {
	indent := c.lineIndent(c.current)
	c.advance()

	name := c.consume(token.IDENT, "expected function name after 'def'").Lexeme
	if kind == unitFunction && c.inFunction() {
		// Declared before the body so the function can call itself.
		c.declareLocal(name, nil)
	}

	c.funcNames = append(c.funcNames, name)
	proto := &Prototype{
		Name:     name,
		QualName: strings.Join(c.funcNames, "."),
		Module:   c.module,
		Chunk:    NewChunk(),
	}
	c.unit = newCompileUnit(c.unit, kind, proto)

	c.parameters(proto)
	if c.match(token.ARROW) {
		proto.ReturnType = c.annotation()
	}
	c.consume(token.COLON, "expected ':' after function signature")

	proto.Doc = c.suite(indent, true, c.statement)
	c.emitNil()
	c.emitOp(OP_RETURN)

	proto.Upvalues = c.unit.upvalues
	proto.LocalCount = len(c.unit.locals) - proto.Arity
	c.unit = c.unit.enclosing
	c.funcNames = c.funcNames[:len(c.funcNames)-1]

	c.emitOpU16(OP_MAKE_FUNCTION, c.makeConstant(ObjVal(proto)))
	return name
}

func (c *Compiler) parameters(proto *Prototype) {
	c.consume(token.LPAREN, "expected '(' after function name")
	c.nesting++

	for !c.check(token.RPAREN) {
		param := c.consume(token.IDENT, "expected parameter name")
		if c.unit.resolveLocal(param.Lexeme) >= 0 {
			c.errorAtPrevious(diagnostics.ErrC006, fmt.Sprintf("duplicate argument '%s' in function definition", param.Lexeme))
		}

		var typ *TypeAnnotation
		if c.match(token.COLON) {
			typ = c.annotation()
		}
		c.declareLocal(param.Lexeme, typ)
		proto.ParamNames = append(proto.ParamNames, param.Lexeme)
		proto.ParamTypes = append(proto.ParamTypes, typ)
		proto.Arity++
		c.checkLimit(proto.Arity, config.MaxArgs, "parameters")

		if c.match(token.ASSIGN) {
			proto.Defaults = append(proto.Defaults, c.defaultValue())
		} else if len(proto.Defaults) > 0 {
			c.errorAtPrevious(diagnostics.ErrC006, "non-default argument follows default argument")
		}

		if !c.match(token.COMMA) {
			break
		}
	}

	c.nesting--
	c.consume(token.RPAREN, "expected ')' after parameters")
	proto.RequiredArity = proto.Arity - len(proto.Defaults)
}

// defaultValue parses a literal parameter default
func (c *Compiler) defaultValue() Value {
	tok := c.current
	switch tok.Type {
	case token.INT, token.FLOAT:
		c.advance()
		return numberValue(tok)
	case token.STRING:
		c.advance()
		return StringVal(tok.Literal.(string))
	case token.TRUE:
		c.advance()
		return BoolVal(true)
	case token.FALSE:
		c.advance()
		return BoolVal(false)
	case token.IDENT:
		if tok.Lexeme == config.NoneName {
			c.advance()
			return NilVal()
		}
	case token.MINUS:
		c.advance()
		if c.check(token.INT) || c.check(token.FLOAT) {
			c.advance()
			return negate(c.previous)
		}
	}
	c.errorAtCurrent(diagnostics.ErrC006, "default value must be a literal constant")
	return NilVal()
}

// annotation parses a type name. Subscripted generics like list[int] are
// accepted and recorded as their base type.
func (c *Compiler) annotation() *TypeAnnotation {
	name := c.consume(token.IDENT, "expected type name")
	typ := ParseTypeName(name.Lexeme)
	if c.match(token.LBRACKET) {
		for depth := 1; depth > 0; c.advance() {
			switch c.current.Type {
			case token.EOF:
				c.errorAtCurrent(diagnostics.ErrC001, "expected ']' in type annotation")
			case token.LBRACKET:
				depth++
			case token.RBRACKET:
				depth--
			}
		}
	}
	return typ
}

// class Name(Parent): methods
//
// Emitted stack shape before MakeClass n: the n method functions, then
// their n names, then the class name.
func (c *Compiler) classStatement() {
	indent := c.lineIndent(c.current)
	c.advance()

	name := c.consume(token.IDENT, "expected class name after 'class'").Lexeme
	parent := ""
	if c.match(token.LPAREN) {
		if !c.check(token.RPAREN) {
			parent = c.consume(token.IDENT, "expected parent class name").Lexeme
		}
		c.consume(token.RPAREN, "expected ')' after parent class")
	}
	c.consume(token.COLON, "expected ':' after class header")

	c.funcNames = append(c.funcNames, name)
	var methods []string
	c.suite(indent, true, func() {
		switch {
		case c.check(token.DEF):
			methods = append(methods, c.function(unitMethod))
		case c.check(token.STRING):
			c.advance()
			c.endStatement()
		case c.check(token.IDENT) && c.current.Lexeme == passKeyword:
			c.advance()
			c.endStatement()
		default:
			c.errorAtCurrent(diagnostics.ErrC007, fmt.Sprintf("class body may only contain method definitions, got %s", describe(c.current)))
		}
	})
	c.funcNames = c.funcNames[:len(c.funcNames)-1]

	c.checkLimit(len(methods), 255, "methods in one class")
	for _, m := range methods {
		c.emitConstant(StringVal(m))
	}
	c.emitConstant(StringVal(name))
	c.emitOpByte(OP_MAKE_CLASS, byte(len(methods)))

	if parent != "" {
		c.emitGet(parent)
		c.emitOp(OP_INHERIT)
	}
	c.emitStore(name, true)
}
