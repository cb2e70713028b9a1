package vm

import (
	"errors"
	"fmt"

	"github.com/funvibe/oxython/internal/config"
	"github.com/funvibe/oxython/internal/diagnostics"
	"github.com/funvibe/oxython/internal/lexer"
	"github.com/funvibe/oxython/internal/token"
)

// errBailout unwinds the parser to the nearest statement boundary after a
// diagnostic has been recorded.
var errBailout = errors.New("compile bailout")

// unitKind distinguishes top-level code from functions
type unitKind int

const (
	unitScript unitKind = iota
	unitFunction
	unitMethod
)

// local is a parameter or declared local of a function.
type local struct {
	name string
	slot int // Frame-relative; slot 0 is the callee
	typ  *TypeAnnotation
}

// loopContext tracks an in-progress loop for break.
type loopContext struct {
	cleanupDepth int   // Values the loop keeps on the stack between iterations
	breakJumps   []int // Operand offsets of break jumps to patch
}

type constKey struct {
	typ  ValueType
	data uint64
	str  string
}

// compileUnit is the per-function compilation state. The script is the
// outermost unit and never has locals.
type compileUnit struct {
	enclosing *compileUnit
	kind      unitKind
	proto     *Prototype

	locals    []local
	upvalues  []UpvalueDescriptor
	nonlocals map[string]bool

	consts map[constKey]int
	loops  []*loopContext
}

func newCompileUnit(enclosing *compileUnit, kind unitKind, proto *Prototype) *compileUnit {
	return &compileUnit{
		enclosing: enclosing,
		kind:      kind,
		proto:     proto,
		nonlocals: make(map[string]bool),
		consts:    make(map[constKey]int),
	}
}

// Compiler is a single-pass compiler: it pulls tokens from the lexer and
// emits bytecode directly, without building a syntax tree.
type Compiler struct {
	lexer  *lexer.Lexer
	source string
	module string

	current  token.Token
	previous token.Token

	errors diagnostics.ErrorList

	unit *compileUnit

	compCount  int      // Counter for hidden comprehension accumulators
	blockDepth int      // Nesting of suites; 0 is the top level
	inlineIf   int      // Open single-line if suites; 'else' ends a statement
	nesting    int      // Open brackets; newlines inside them do not end statements
	funcNames  []string // Enclosing def and class names, for __qualname__

	globalTypes map[string]*TypeAnnotation

	// path describes the expression just compiled when it is a plain
	// variable/attribute/index chain (used by .append write-back).
	path *exprPath

	lastExprStmt bool
}

// NewCompiler creates a compiler for top-level code
func NewCompiler(source, module string) *Compiler {
	if module == "" {
		module = config.DefaultModuleName
	}
	proto := &Prototype{
		Name:     config.ScriptFunctionName,
		QualName: config.ScriptFunctionName,
		Module:   module,
		Chunk:    NewChunk(),
	}
	return &Compiler{
		lexer:       lexer.New(source),
		source:      source,
		module:      module,
		unit:        newCompileUnit(nil, unitScript, proto),
		globalTypes: make(map[string]*TypeAnnotation),
	}
}

// Compile compiles source into a chunk ending with a single Return. On
// failure the chunk is discarded and the error is a diagnostics.ErrorList.
func Compile(source, module string) (*Chunk, error) {
	return NewCompiler(source, module).Compile()
}

// Compile runs the compiler over the whole source
func (c *Compiler) Compile() (*Chunk, error) {
	c.advance()
	for !c.check(token.EOF) {
		c.statements(c.lineIndent(c.current), c.statement)
	}
	c.emitOp(OP_RETURN)

	if len(c.errors) > 0 {
		return nil, c.errors
	}
	chunk := c.unit.proto.Chunk
	chunk.ExprResult = c.lastExprStmt
	return chunk, nil
}

// Errors returns the diagnostics recorded so far
func (c *Compiler) Errors() diagnostics.ErrorList {
	return c.errors
}

// GlobalTypes returns annotations recorded for module-level names
func (c *Compiler) GlobalTypes() map[string]*TypeAnnotation {
	return c.globalTypes
}

// --- token stream ---

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lexer.NextToken()
		if c.current.Type != token.ILLEGAL {
			return
		}
		c.errorAt(c.current, diagnostics.ErrL001, illegalMessage(c.current))
	}
}

func illegalMessage(tok token.Token) string {
	switch {
	case len(tok.Lexeme) > 0 && (tok.Lexeme[0] == '"' || tok.Lexeme[0] == '\'' || tok.Lexeme[0] == 'f'):
		return "unterminated string literal"
	case len(tok.Lexeme) > 0 && tok.Lexeme[0] >= '0' && tok.Lexeme[0] <= '9':
		return fmt.Sprintf("invalid numeric literal %q", tok.Lexeme)
	default:
		return fmt.Sprintf("invalid character %q", tok.Lexeme)
	}
}

func (c *Compiler) check(t token.TokenType) bool {
	return c.current.Type == t
}

func (c *Compiler) match(t token.TokenType) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t token.TokenType, message string) token.Token {
	if !c.check(t) {
		c.errorAtCurrent(diagnostics.ErrC001, message)
	}
	c.advance()
	return c.previous
}

// peekToken returns the token after current without consuming anything.
func (c *Compiler) peekToken() token.Token {
	return c.lexer.Clone().NextToken()
}

// --- indentation ---

// indentOf returns the indentation of the line holding tok and whether
// tok is the first token on that line.
func (c *Compiler) indentOf(tok token.Token) (int, bool) {
	return lexer.Indent(c.source, tok.Offset)
}

// startsLine reports whether tok begins a new logical line.
func (c *Compiler) startsLine(tok token.Token) bool {
	if tok.Type == token.EOF {
		return true
	}
	_, first := c.indentOf(tok)
	return first
}

func (c *Compiler) lineIndent(tok token.Token) int {
	indent, _ := c.indentOf(tok)
	return indent
}

// atStatementEnd reports whether the current token terminates a simple
// statement.
func (c *Compiler) atStatementEnd() bool {
	return c.check(token.SEMICOLON) || c.startsLine(c.current) || c.atInlineElse()
}

// atInlineElse reports whether the current token is the 'else' of a
// single-line if, as in `if c: x = 1 else: x = 2`.
func (c *Compiler) atInlineElse() bool {
	return c.inlineIf > 0 && c.check(token.ELSE) && !c.startsLine(c.current)
}

func (c *Compiler) endStatement() {
	if c.match(token.SEMICOLON) {
		for c.match(token.SEMICOLON) {
		}
		return
	}
	if c.startsLine(c.current) || c.atInlineElse() {
		return
	}
	c.errorAtCurrent(diagnostics.ErrC001, fmt.Sprintf("expected newline or ';' after statement, got %s", describe(c.current)))
}

// --- errors ---

func (c *Compiler) errorAt(tok token.Token, code diagnostics.ErrorCode, message string) {
	c.errors = append(c.errors, diagnostics.NewError(code, tok, message))
}

// errorAtCurrent records a diagnostic and abandons the current statement.
func (c *Compiler) errorAtCurrent(code diagnostics.ErrorCode, message string) {
	c.errorAt(c.current, code, message)
	panic(errBailout)
}

func (c *Compiler) errorAtPrevious(code diagnostics.ErrorCode, message string) {
	c.errorAt(c.previous, code, message)
	panic(errBailout)
}

func describe(tok token.Token) string {
	switch tok.Type {
	case token.EOF:
		return "end of input"
	case token.IDENT:
		return fmt.Sprintf("name '%s'", tok.Lexeme)
	default:
		return fmt.Sprintf("'%s'", tok.Lexeme)
	}
}

// guard runs one statement. A bailout inside it restores compiler state
// and skips to the next line whose indentation is at most limit.
func (c *Compiler) guard(limit int, fn func()) {
	unit := c.unit
	loops := len(unit.loops)
	names := len(c.funcNames)
	depth := c.blockDepth
	inlineIf := c.inlineIf
	start := c.current.Offset

	defer func() {
		if r := recover(); r != nil {
			if r != errBailout {
				panic(r)
			}
			c.unit = unit
			c.unit.loops = c.unit.loops[:loops]
			c.funcNames = c.funcNames[:names]
			c.blockDepth = depth
			c.inlineIf = inlineIf
			c.nesting = 0
			c.path = nil
			c.synchronize(limit, start)
		}
	}()
	fn()
}

func (c *Compiler) synchronize(limit, start int) {
	if c.current.Offset == start && !c.check(token.EOF) {
		c.advance()
	}
	for !c.check(token.EOF) {
		if indent, first := c.indentOf(c.current); first && indent <= limit {
			return
		}
		c.advance()
	}
}

// statements parses a run of statements at blockIndent. It stops at end
// of input or at a line indented less than blockIndent.
func (c *Compiler) statements(blockIndent int, each func()) {
	for !c.check(token.EOF) {
		if indent, first := c.indentOf(c.current); first {
			if indent < blockIndent {
				return
			}
			if indent > blockIndent {
				tok := c.current
				c.guard(blockIndent, func() {
					c.errorAt(tok, diagnostics.ErrC001, "unexpected indent")
					panic(errBailout)
				})
				continue
			}
		}
		c.guard(blockIndent, each)
	}
}

// suite parses the body following a ':'. The body is either the rest of
// the current line or an indented block. With allowDoc a leading string
// statement is returned as the docstring instead of being compiled.
func (c *Compiler) suite(parentIndent int, allowDoc bool, each func()) *string {
	c.blockDepth++
	defer func() { c.blockDepth-- }()

	if c.check(token.EOF) {
		c.errorAtCurrent(diagnostics.ErrC001, "expected an indented block")
	}

	if !c.startsLine(c.current) {
		doc := c.docstring(allowDoc)
		for !c.check(token.EOF) && !c.startsLine(c.current) && !c.atInlineElse() {
			c.guard(parentIndent, each)
		}
		return doc
	}

	indent := c.lineIndent(c.current)
	if indent <= parentIndent {
		c.errorAtCurrent(diagnostics.ErrC001, "expected an indented block")
	}
	doc := c.docstring(allowDoc)
	c.statements(indent, each)
	return doc
}

func (c *Compiler) docstring(allowDoc bool) *string {
	if !allowDoc || !c.check(token.STRING) {
		return nil
	}
	next := c.peekToken()
	if next.Type != token.EOF && next.Type != token.SEMICOLON && !c.startsLine(next) {
		return nil
	}
	c.advance()
	doc := c.previous.Literal.(string)
	c.endStatement()
	return &doc
}
