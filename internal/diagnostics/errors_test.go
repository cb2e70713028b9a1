package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/funvibe/oxython/internal/token"
)

func TestDiagnosticErrorFormat(t *testing.T) {
	err := NewError(ErrC004, token.Token{Line: 3, Column: 5}, "'break' outside loop")
	assert.Equal(t, "3:5: error[C004]: 'break' outside loop", err.Error())

	err.File = "main.py"
	assert.Equal(t, "main.py:3:5: error[C004]: 'break' outside loop", err.Error())

	noPos := NewError(ErrR001, token.Token{}, "failed")
	assert.Equal(t, "error[R001]: failed", noPos.Error())
}

func TestErrorList(t *testing.T) {
	var empty ErrorList
	assert.NoError(t, empty.Err())

	list := ErrorList{
		NewError(ErrC001, token.Token{Line: 1, Column: 2}, "a"),
		NewError(ErrL001, token.Token{Line: 2, Column: 1}, "b"),
	}.WithFile("f.py")
	assert.Equal(t, "f.py:1:2: error[C001]: a\nf.py:2:1: error[L001]: b", list.Err().Error())
}

func TestDescription(t *testing.T) {
	assert.Equal(t, "'break' outside loop", ErrC004.Description())
	assert.Equal(t, "X999", ErrorCode("X999").Description())
}
