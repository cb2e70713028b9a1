package lexer

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/funvibe/oxython/internal/token"
)

// TabWidth is the number of columns a tab contributes to indentation.
const TabWidth = 4

// Lexer produces tokens lazily. It is a plain value, so copying it (see
// Clone) gives an independent cursor for lookahead.
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           rune // current char under examination
	line         int  // current line number
	column       int  // current column number
}

func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0}
	l.readChar()
	return l
}

// Clone returns an independent copy of the lexer at its current position.
func (l *Lexer) Clone() *Lexer {
	c := *l
	return &c
}

// Source returns the text being scanned.
func (l *Lexer) Source() string {
	return l.input
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}

	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = len(l.input)
		l.readPosition = len(l.input) + 1
		l.column++
		return
	}

	r, w := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += w
	l.column++
}

func (l *Lexer) atEnd() bool {
	return l.position >= len(l.input)
}

// NextToken scans and returns the next token. At end of input it keeps
// returning EOF.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespace()

	startLine, startCol, start := l.line, l.column, l.position
	if l.atEnd() {
		return token.Token{Type: token.EOF, Line: startLine, Column: startCol, Offset: len(l.input), End: len(l.input)}
	}

	var tok token.Token
	switch l.ch {
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			tok = l.makeToken(token.EQ, start, startLine, startCol)
		} else {
			tok = l.makeToken(token.ASSIGN, start, startLine, startCol)
		}
	case '+':
		if l.peekChar() == '=' {
			l.readChar()
			tok = l.makeToken(token.PLUS_ASSIGN, start, startLine, startCol)
		} else {
			tok = l.makeToken(token.PLUS, start, startLine, startCol)
		}
	case '*':
		if l.peekChar() == '=' {
			l.readChar()
			tok = l.makeToken(token.ASTERISK_ASSIGN, start, startLine, startCol)
		} else {
			tok = l.makeToken(token.ASTERISK, start, startLine, startCol)
		}
	case '-':
		if l.peekChar() == '>' {
			l.readChar()
			tok = l.makeToken(token.ARROW, start, startLine, startCol)
		} else {
			tok = l.makeToken(token.MINUS, start, startLine, startCol)
		}
	case '/':
		tok = l.makeToken(token.SLASH, start, startLine, startCol)
	case '%':
		tok = l.makeToken(token.PERCENT, start, startLine, startCol)
	case '<':
		tok = l.makeToken(token.LT, start, startLine, startCol)
	case ';':
		tok = l.makeToken(token.SEMICOLON, start, startLine, startCol)
	case ',':
		tok = l.makeToken(token.COMMA, start, startLine, startCol)
	case '.':
		tok = l.makeToken(token.DOT, start, startLine, startCol)
	case '(':
		tok = l.makeToken(token.LPAREN, start, startLine, startCol)
	case ')':
		tok = l.makeToken(token.RPAREN, start, startLine, startCol)
	case '[':
		tok = l.makeToken(token.LBRACKET, start, startLine, startCol)
	case ']':
		tok = l.makeToken(token.RBRACKET, start, startLine, startCol)
	case '{':
		tok = l.makeToken(token.LBRACE, start, startLine, startCol)
	case '}':
		tok = l.makeToken(token.RBRACE, start, startLine, startCol)
	case ':':
		tok = l.makeToken(token.COLON, start, startLine, startCol)
	case '"', '\'':
		return l.readString(token.STRING, start, startLine, startCol)
	default:
		if isLetter(l.ch) {
			if l.ch == 'f' && (l.peekChar() == '"' || l.peekChar() == '\'') {
				l.readChar() // consume f, now at the quote
				return l.readString(token.FSTRING, start, startLine, startCol)
			}
			ident := l.readIdentifier()
			return token.Token{
				Type:    token.LookupIdent(ident),
				Lexeme:  ident,
				Literal: ident,
				Line:    startLine,
				Column:  startCol,
				Offset:  start,
				End:     l.position,
			}
		}
		if isDigit(l.ch) {
			return l.readNumber(start, startLine, startCol)
		}
		tok = l.makeToken(token.ILLEGAL, start, startLine, startCol)
	}

	l.readChar()
	tok.End = l.position
	tok.Lexeme = l.input[tok.Offset:tok.End]
	tok.Literal = tok.Lexeme
	return tok
}

// makeToken builds a token whose lexeme ends at the current character; the
// caller advances past it.
func (l *Lexer) makeToken(tokenType token.TokenType, start, line, col int) token.Token {
	return token.Token{Type: tokenType, Line: line, Column: col, Offset: start}
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readNumber reads an integer or a float of the form digits.digits. A
// trailing dot without digits is left for the next token.
func (l *Lexer) readNumber(start, line, col int) token.Token {
	for isDigit(l.ch) {
		l.readChar()
	}
	isFloat := false
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	lexeme := l.input[start:l.position]
	tok := token.Token{Lexeme: lexeme, Line: line, Column: col, Offset: start, End: l.position}
	if isFloat {
		f, err := strconv.ParseFloat(lexeme, 64)
		if err != nil {
			tok.Type = token.ILLEGAL
			tok.Literal = lexeme
			return tok
		}
		tok.Type = token.FLOAT
		tok.Literal = f
		return tok
	}
	n, err := strconv.ParseInt(lexeme, 10, 64)
	if err != nil {
		tok.Type = token.ILLEGAL
		tok.Literal = lexeme
		return tok
	}
	tok.Type = token.INT
	tok.Literal = n
	return tok
}

// readString reads a quoted literal starting at the opening quote.
// Double-quoted strings understand \\, \", \n and \t; single-quoted strings
// are taken verbatim. An unterminated literal yields ILLEGAL.
func (l *Lexer) readString(tokenType token.TokenType, start, line, col int) token.Token {
	quote := l.ch
	var sb strings.Builder
	terminated := false

	for {
		l.readChar()
		if l.atEnd() {
			break
		}
		if l.ch == quote {
			terminated = true
			l.readChar()
			break
		}
		if quote == '"' && l.ch == '\\' {
			switch l.peekChar() {
			case '\\':
				l.readChar()
				sb.WriteRune('\\')
				continue
			case '"':
				l.readChar()
				sb.WriteRune('"')
				continue
			}
		}
		sb.WriteRune(l.ch)
	}

	tok := token.Token{
		Type:    tokenType,
		Lexeme:  l.input[start:l.position],
		Literal: sb.String(),
		Line:    line,
		Column:  col,
		Offset:  start,
		End:     l.position,
	}
	if !terminated {
		tok.Type = token.ILLEGAL
	}
	return tok
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

// skipWhitespace skips blanks, newlines and # comments.
func (l *Lexer) skipWhitespace() {
	for !l.atEnd() {
		switch l.ch {
		case ' ', '\t', '\r', '\n', '\f':
			l.readChar()
		case '#':
			for !l.atEnd() && l.ch != '\n' {
				l.readChar()
			}
		default:
			return
		}
	}
}

func isLetter(ch rune) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}

// Indent reports the indentation of the line holding offset, counting a
// tab as TabWidth columns. first is true when only blanks precede offset
// on that line, i.e. the token at offset starts the line.
func Indent(source string, offset int) (indent int, first bool) {
	if offset > len(source) {
		offset = len(source)
	}
	lineStart := strings.LastIndexByte(source[:offset], '\n') + 1
	first = true
	for i := lineStart; i < offset; i++ {
		switch source[i] {
		case ' ':
			indent++
		case '\t':
			indent += TabWidth
		default:
			first = false
		}
	}
	if !first {
		// Indentation is still measured up to the first non-blank char.
		indent = 0
		for i := lineStart; i < offset; i++ {
			if source[i] == ' ' {
				indent++
			} else if source[i] == '\t' {
				indent += TabWidth
			} else {
				break
			}
		}
	}
	return indent, first
}
