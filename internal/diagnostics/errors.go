package diagnostics

import (
	"fmt"
	"strings"

	"github.com/funvibe/oxython/internal/token"
)

type ErrorCode string

const (
	// Lexical
	ErrL001 ErrorCode = "L001" // illegal character or malformed literal

	// Compile
	ErrC001 ErrorCode = "C001" // unexpected token
	ErrC002 ErrorCode = "C002" // invalid assignment target
	ErrC003 ErrorCode = "C003" // 'return' outside function
	ErrC004 ErrorCode = "C004" // 'break' outside loop
	ErrC005 ErrorCode = "C005" // compound assignment to undeclared name
	ErrC006 ErrorCode = "C006" // bad parameter list
	ErrC007 ErrorCode = "C007" // bad class body
	ErrC008 ErrorCode = "C008" // limit exceeded (constants, locals, arguments, jump size)
	ErrC009 ErrorCode = "C009" // malformed f-string

	// Runtime
	ErrR001 ErrorCode = "R001"
)

var descriptions = map[ErrorCode]string{
	ErrL001: "illegal token",
	ErrC001: "unexpected token",
	ErrC002: "invalid assignment target",
	ErrC003: "'return' outside function",
	ErrC004: "'break' outside loop",
	ErrC005: "compound assignment to undeclared name",
	ErrC006: "invalid parameter list",
	ErrC007: "invalid class body",
	ErrC008: "limit exceeded",
	ErrC009: "malformed f-string",
	ErrR001: "runtime error",
}

// Description returns a short human-readable name for the code.
func (c ErrorCode) Description() string {
	if d, ok := descriptions[c]; ok {
		return d
	}
	return string(c)
}

// DiagnosticError is a coded error tied to a source position.
type DiagnosticError struct {
	Code    ErrorCode
	Token   token.Token
	Message string
	File    string
}

func NewError(code ErrorCode, tok token.Token, message string) *DiagnosticError {
	return &DiagnosticError{Code: code, Token: tok, Message: message}
}

func (e *DiagnosticError) Error() string {
	var sb strings.Builder
	if e.File != "" {
		sb.WriteString(e.File)
		sb.WriteString(":")
	}
	if e.Token.Line > 0 {
		fmt.Fprintf(&sb, "%d:%d: ", e.Token.Line, e.Token.Column)
	}
	fmt.Fprintf(&sb, "error[%s]: %s", e.Code, e.Message)
	return sb.String()
}

// ErrorList collects diagnostics from one compilation.
type ErrorList []*DiagnosticError

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	lines := make([]string, len(l))
	for i, e := range l {
		lines[i] = e.Error()
	}
	return strings.Join(lines, "\n")
}

// Err returns nil for an empty list so callers can return it directly.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// WithFile stamps every diagnostic with a file name.
func (l ErrorList) WithFile(file string) ErrorList {
	for _, e := range l {
		e.File = file
	}
	return l
}
