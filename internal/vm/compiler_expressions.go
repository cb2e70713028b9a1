package vm

import (
	"fmt"
	"strings"

	"github.com/funvibe/oxython/internal/config"
	"github.com/funvibe/oxython/internal/diagnostics"
	"github.com/funvibe/oxython/internal/token"
)

// Precedence, lowest first: comparison (< == in), term (+ -),
// factor (* / %), unary (-), postfix (call, index, attribute).

func (c *Compiler) expression() {
	c.comparison()
}

// infixAllowed reports whether the current token may continue the
// expression. Outside brackets a token on a new line starts a new
// statement.
func (c *Compiler) infixAllowed() bool {
	return c.nesting > 0 || !c.startsLine(c.current)
}

func (c *Compiler) comparison() {
	c.term()
	for c.infixAllowed() {
		var op Opcode
		switch c.current.Type {
		case token.LT:
			op = OP_LESS
		case token.EQ:
			op = OP_EQUAL
		case token.IN:
			op = OP_CONTAINS
		default:
			return
		}
		c.advance()
		c.term()
		c.emitOp(op)
		c.path = nil
	}
}

func (c *Compiler) term() {
	c.factor()
	for c.infixAllowed() {
		var op Opcode
		switch c.current.Type {
		case token.PLUS:
			op = OP_ADD
		case token.MINUS:
			op = OP_SUBTRACT
		default:
			return
		}
		c.advance()
		c.factor()
		c.emitOp(op)
		c.path = nil
	}
}

func (c *Compiler) factor() {
	c.unary()
	for c.infixAllowed() {
		var op Opcode
		switch c.current.Type {
		case token.ASTERISK:
			op = OP_MULTIPLY
		case token.SLASH:
			op = OP_DIVIDE
		case token.PERCENT:
			op = OP_MODULO
		default:
			return
		}
		c.advance()
		c.unary()
		c.emitOp(op)
		c.path = nil
	}
}

// unary compiles -x as 0 - x. A minus directly before a numeric literal
// folds into a negative constant.
func (c *Compiler) unary() {
	if !c.match(token.MINUS) {
		c.postfix()
		return
	}
	if c.check(token.INT) || c.check(token.FLOAT) {
		switch c.peekToken().Type {
		case token.DOT, token.LBRACKET, token.LPAREN:
		default:
			c.advance()
			c.emitConstant(negate(c.previous))
			c.path = nil
			return
		}
	}
	c.emitConstant(IntVal(0))
	c.unary()
	c.emitOp(OP_SUBTRACT)
	c.path = nil
}

func negate(tok token.Token) Value {
	if tok.Type == token.FLOAT {
		return FloatVal(-tok.Literal.(float64))
	}
	return IntVal(-tok.Literal.(int64))
}

func (c *Compiler) postfix() {
	c.primary()
	for c.nesting > 0 || !c.startsLine(c.current) {
		switch {
		case c.match(token.LPAREN):
			c.call()
		case c.match(token.LBRACKET):
			c.subscript()
		case c.match(token.DOT):
			c.dot()
		default:
			return
		}
	}
}

func (c *Compiler) call() {
	c.nesting++
	argc := c.argumentList()
	c.nesting--
	c.consume(token.RPAREN, "expected ')' after arguments")
	c.emitOpByte(OP_CALL, byte(argc))
	c.path = nil
}

// argumentList compiles comma-separated arguments up to ')'
func (c *Compiler) argumentList() int {
	argc := 0
	for !c.check(token.RPAREN) {
		c.expression()
		argc++
		c.checkLimit(argc, config.MaxArgs, "arguments")
		if !c.match(token.COMMA) {
			break
		}
	}
	return argc
}

// subscript compiles x[i] and the slice forms x[a:b:c]
func (c *Compiler) subscript() {
	receiver := c.path
	c.nesting++
	defer func() { c.nesting-- }()

	start := c.chunk().Len()
	if c.check(token.COLON) {
		c.emitNil()
	} else {
		c.expression()
	}

	if !c.match(token.COLON) {
		index := c.copyFrom(start)
		c.consume(token.RBRACKET, "expected ']' after index")
		c.emitOp(OP_INDEX)
		if receiver != nil {
			c.path = receiver.with(accessor{index: index, isIndex: true})
		} else {
			c.path = nil
		}
		return
	}

	if c.check(token.COLON) || c.check(token.RBRACKET) {
		c.emitNil()
	} else {
		c.expression()
	}
	if c.match(token.COLON) && !c.check(token.RBRACKET) {
		c.expression()
	} else {
		c.emitNil()
	}
	c.consume(token.RBRACKET, "expected ']' after slice")
	c.emitOp(OP_SLICE)
	c.path = nil
}

// dot compiles attribute access and the string/list methods that have
// dedicated instructions.
func (c *Compiler) dot() {
	receiver := c.path
	name := c.consume(token.IDENT, "expected attribute name after '.'").Lexeme

	if c.check(token.LPAREN) {
		switch name {
		case config.LowerMethodName:
			c.advance()
			c.consume(token.RPAREN, "lower() takes no arguments")
			c.emitOp(OP_STR_LOWER)
			c.path = nil
			return
		case config.IsAlnumMethodName:
			c.advance()
			c.consume(token.RPAREN, "isalnum() takes no arguments")
			c.emitOp(OP_STR_IS_ALNUM)
			c.path = nil
			return
		case config.JoinMethodName:
			c.advance()
			c.joinArgument()
			c.emitOp(OP_STR_JOIN)
			c.path = nil
			return
		case config.AppendMethodName:
			c.advance()
			c.appendCall(receiver)
			return
		}
	}

	c.emitOpU16(OP_GET_ATTR, c.identifierConstant(name))
	if receiver != nil {
		c.path = receiver.with(accessor{attr: name})
	} else {
		c.path = nil
	}
}

// joinArgument compiles the argument of sep.join(...), which may be a
// bare comprehension.
func (c *Compiler) joinArgument() {
	c.nesting++
	defer func() { c.nesting-- }()

	c.prepareComprehension()
	start := c.chunk().Len()
	c.expression()
	if c.check(token.FOR) {
		c.comprehension(c.cut(start), token.RPAREN)
		return
	}
	c.consume(token.RPAREN, "expected ')' after join argument")
}

// appendCall compiles recv.append(x). When the receiver is a variable
// path the new list is stored back along it; the call itself yields None.
func (c *Compiler) appendCall(receiver *exprPath) {
	c.nesting++
	arg := func() {
		c.expression()
		c.consume(token.RPAREN, "append() takes exactly one argument")
	}

	if receiver == nil {
		arg()
		c.nesting--
		c.emitOp(OP_APPEND)
		c.emitOp(OP_POP)
		c.emitNil()
		c.path = nil
		return
	}

	c.chunk().Truncate(receiver.start)
	c.assignPath(receiver.root, receiver.acc, func() {
		c.loadPath(receiver.root, receiver.acc)
		arg()
		c.emitOp(OP_APPEND)
	})
	c.nesting--
	c.emitNil()
	c.path = nil
}

func (c *Compiler) primary() {
	c.path = nil
	tok := c.current

	switch tok.Type {
	case token.INT, token.FLOAT:
		c.advance()
		c.emitConstant(numberValue(tok))
	case token.STRING:
		c.advance()
		c.emitConstant(StringVal(tok.Literal.(string)))
	case token.FSTRING:
		c.advance()
		c.fstring(tok)
	case token.TRUE:
		c.advance()
		c.emitConstant(BoolVal(true))
	case token.FALSE:
		c.advance()
		c.emitConstant(BoolVal(false))
	case token.IDENT:
		c.advance()
		c.identifier(tok)
	case token.LPAREN:
		c.advance()
		c.grouping()
	case token.LBRACKET:
		c.advance()
		c.listLiteral()
	case token.LBRACE:
		c.advance()
		c.dictLiteral()
	default:
		c.errorAtCurrent(diagnostics.ErrC001, fmt.Sprintf("expected expression, got %s", describe(tok)))
	}
}

func numberValue(tok token.Token) Value {
	if tok.Type == token.FLOAT {
		return FloatVal(tok.Literal.(float64))
	}
	return IntVal(tok.Literal.(int64))
}

func (c *Compiler) identifier(tok token.Token) {
	name := tok.Lexeme
	if name == config.NoneName {
		c.emitNil()
		return
	}
	if c.check(token.LPAREN) && !c.enclosingLocal(name) {
		if c.builtinCall(name) {
			return
		}
	}
	start := c.chunk().Len()
	c.emitGet(name)
	c.path = &exprPath{root: name, start: start}
}

// builtinCall compiles calls to built-ins that have dedicated
// instructions. It reports false when name is not one of them.
func (c *Compiler) builtinCall(name string) bool {
	switch name {
	case config.LenFuncName, config.TypeFuncName, config.ListFuncName,
		config.RoundFuncName, config.RangeFuncName, config.ZipFuncName:
	default:
		return false
	}

	c.advance() // (
	c.nesting++
	defer func() { c.nesting-- }()

	if name == config.ZipFuncName {
		c.zipCall()
		return true
	}

	argc := c.argumentList()
	c.consume(token.RPAREN, fmt.Sprintf("expected ')' after %s arguments", name))

	switch name {
	case config.LenFuncName:
		c.expectArgs(name, argc, 1, 1)
		c.emitOp(OP_LEN)
	case config.TypeFuncName:
		c.expectArgs(name, argc, 1, 1)
		c.emitOp(OP_TYPE)
	case config.ListFuncName:
		c.expectArgs(name, argc, 0, 1)
		if argc == 0 {
			c.emitOpU16(OP_BUILD_LIST, 0)
		} else {
			c.emitOp(OP_TO_LIST)
		}
	case config.RoundFuncName:
		c.expectArgs(name, argc, 1, 2)
		if argc == 1 {
			c.emitNil()
		}
		c.emitOp(OP_ROUND)
	case config.RangeFuncName:
		c.expectArgs(name, argc, 1, 2)
		if argc == 1 {
			c.emitConstant(IntVal(0))
			c.emitOp(OP_SWAP)
		}
		c.emitOp(OP_RANGE)
	}
	return true
}

func (c *Compiler) expectArgs(name string, argc, min, max int) {
	if argc >= min && argc <= max {
		return
	}
	var want string
	switch {
	case min == max:
		want = fmt.Sprintf("exactly %d", min)
	default:
		want = fmt.Sprintf("%d to %d", min, max)
	}
	c.errorAtPrevious(diagnostics.ErrC001, fmt.Sprintf("%s() takes %s arguments (%d given)", name, want, argc))
}

// zipCall compiles zip(a, *b, ...). Starred arguments are lists of
// iterables to splice in; bit i of the mask marks argument i.
func (c *Compiler) zipCall() {
	argc := 0
	mask := 0
	for !c.check(token.RPAREN) {
		if c.match(token.ASTERISK) {
			if argc < config.MaxZipArgs {
				mask |= 1 << argc
			}
		}
		c.expression()
		argc++
		c.checkLimit(argc, config.MaxZipArgs, "zip arguments")
		if !c.match(token.COMMA) {
			break
		}
	}
	c.consume(token.RPAREN, "expected ')' after zip arguments")
	c.emitOpByte(OP_ZIP, byte(argc))
	c.emitU16(mask)
}

// grouping compiles (expr), tuples and the empty tuple
func (c *Compiler) grouping() {
	c.nesting++
	defer func() { c.nesting-- }()

	if c.match(token.RPAREN) {
		c.emitOpU16(OP_BUILD_TUPLE, 0)
		return
	}
	c.expression()
	if !c.match(token.COMMA) {
		c.consume(token.RPAREN, "expected ')' after expression")
		c.path = nil
		return
	}
	count := 1
	for !c.check(token.RPAREN) {
		c.expression()
		count++
		if !c.match(token.COMMA) {
			break
		}
	}
	c.consume(token.RPAREN, "expected ')' after tuple")
	c.emitOpU16(OP_BUILD_TUPLE, count)
	c.path = nil
}

// listLiteral compiles [a, b, ...] and [elem for x in it if cond]
func (c *Compiler) listLiteral() {
	c.nesting++
	defer func() { c.nesting-- }()

	if c.match(token.RBRACKET) {
		c.emitOpU16(OP_BUILD_LIST, 0)
		return
	}

	c.prepareComprehension()
	start := c.chunk().Len()
	c.expression()
	if c.check(token.FOR) {
		c.comprehension(c.cut(start), token.RBRACKET)
		return
	}

	count := 1
	for c.match(token.COMMA) && !c.check(token.RBRACKET) {
		c.expression()
		count++
	}
	c.checkLimit(count, config.MaxJump, "list elements")
	c.consume(token.RBRACKET, "expected ']' after list elements")
	c.emitOpU16(OP_BUILD_LIST, count)
	c.path = nil
}

// dictLiteral compiles {k: v, ...}
func (c *Compiler) dictLiteral() {
	c.nesting++
	defer func() { c.nesting-- }()

	count := 0
	for !c.check(token.RBRACE) {
		c.expression()
		c.consume(token.COLON, "expected ':' after dict key")
		c.expression()
		count++
		if !c.match(token.COMMA) {
			break
		}
	}
	c.checkLimit(count, config.MaxJump, "dict entries")
	c.consume(token.RBRACE, "expected '}' after dict entries")
	c.emitOpU16(OP_BUILD_DICT, count)
	c.path = nil
}

// fstring compiles f"a{x}b" as "a" + str(x) + "b"
func (c *Compiler) fstring(tok token.Token) {
	segments, err := splitFString(tok.Literal.(string))
	if err != "" {
		c.errorAt(tok, diagnostics.ErrC009, err)
		panic(errBailout)
	}
	if len(segments) == 0 {
		c.emitConstant(StringVal(""))
		return
	}
	for i, seg := range segments {
		if seg.ident {
			if seg.text == config.NoneName {
				c.emitNil()
			} else {
				c.emitGet(seg.text)
			}
			c.emitOp(OP_TO_STR)
		} else {
			c.emitConstant(StringVal(seg.text))
		}
		if i > 0 {
			c.emitOp(OP_ADD)
		}
	}
	c.path = nil
}

type fstringSegment struct {
	text  string
	ident bool
}

func splitFString(s string) ([]fstringSegment, string) {
	var segments []fstringSegment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segments = append(segments, fstringSegment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return nil, "f-string: expecting '}'"
			}
			name := strings.TrimSpace(s[i+1 : i+1+end])
			if !isIdentifier(name) {
				return nil, fmt.Sprintf("f-string: only names are supported inside braces, got %q", name)
			}
			flush()
			segments = append(segments, fstringSegment{text: name, ident: true})
			i += end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, "f-string: single '}' is not allowed"
		default:
			lit.WriteByte(s[i])
		}
	}
	flush()
	return segments, ""
}

func isIdentifier(s string) bool {
	if s == "" || token.IsKeyword(s) {
		return false
	}
	for i, r := range s {
		letter := r == '_' || 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z'
		if !letter && (i == 0 || r < '0' || r > '9') {
			return false
		}
	}
	return true
}
