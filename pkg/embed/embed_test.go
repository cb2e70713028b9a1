package oxython_test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oxython "github.com/funvibe/oxython/pkg/embed"
)

// User is a Go struct passed into scripts by value
type User struct {
	Name  string
	Score int
	Tags  []string
}

func newVM(t *testing.T) (*oxython.VM, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	v := oxython.New()
	v.SetOutput(&out)
	return v, &out
}

func TestEmbedAPI(t *testing.T) {
	v, out := newVM(t)

	// 1. Bind a simple function
	require.NoError(t, v.Bind("double", func(x int) int {
		return x * 2
	}))

	// 2. Bind a data value
	require.NoError(t, v.Bind("player", User{Name: "Alice", Score: 10, Tags: []string{"a", "b"}}))

	// 3. Eval script using bound values
	code := `
doubled = double(21)
name = player['Name']
print(name, len(player['Tags']))
[doubled, name, player['Score'] + 5]
`
	res, err := v.Eval(code)
	require.NoError(t, err)
	assert.Equal(t, "Alice 2\n", out.String())

	// 4. Verify results
	assert.Equal(t, []interface{}{42, "Alice", 15}, res)

	doubled, err := v.Get("doubled")
	require.NoError(t, err)
	assert.Equal(t, 42, doubled)
}

func TestEvalWithoutExpressionReturnsNil(t *testing.T) {
	v, _ := newVM(t)
	res, err := v.Eval("x = 5")
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = v.Eval("x * 2")
	require.NoError(t, err)
	assert.Equal(t, 10, res)
}

func TestCallScriptFunction(t *testing.T) {
	v, _ := newVM(t)
	_, err := v.Eval(`
def greet(name, punct='!'):
    return 'hello ' + name + punct

def pair(a, b):
    return (b, a)
`)
	require.NoError(t, err)

	res, err := v.Call("greet", "bob")
	require.NoError(t, err)
	assert.Equal(t, "hello bob!", res)

	res, err = v.Call("pair", 1, 2.5)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{2.5, 1}, res)

	_, err = v.Call("missing")
	assert.EqualError(t, err, "function 'missing' not found")

	_, err = v.Call("greet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 1 required positional argument")
}

func TestCallAfterFailedCalls(t *testing.T) {
	v, _ := newVM(t)
	_, err := v.Eval("def bad(x):\n    return 1 / x\n\ndef good(x):\n    return x + 1\n")
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		_, err := v.Call("bad", 0)
		require.Error(t, err)
		require.Contains(t, err.Error(), "division by zero")
	}

	res, err := v.Call("good", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res)

	// Eval still works on the same VM
	res, err = v.Eval("good(41)")
	require.NoError(t, err)
	assert.Equal(t, 42, res)
}

func TestBoundFunctionErrorsAndTuples(t *testing.T) {
	v, _ := newVM(t)
	require.NoError(t, v.Bind("divmod", func(a, b int) (int, int, error) {
		if b == 0 {
			return 0, 0, errors.New("divmod by zero")
		}
		return a / b, a % b, nil
	}))
	require.NoError(t, v.Bind("join", func(sep string, parts ...string) string {
		out := ""
		for i, p := range parts {
			if i > 0 {
				out += sep
			}
			out += p
		}
		return out
	}))

	res, err := v.Eval("divmod(7, 2)")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{3, 1}, res)

	res, err = v.Eval("join('-', 'a', 'b', 'c')")
	require.NoError(t, err)
	assert.Equal(t, "a-b-c", res)

	_, err = v.Eval("divmod(1, 0)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "divmod by zero")

	_, err = v.Eval("divmod(1)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "divmod() expected 2 arguments, got 1")
}

func TestSetAndGetCollections(t *testing.T) {
	v, _ := newVM(t)
	require.NoError(t, v.Set("scores", map[string]int{"b": 2, "a": 1}))
	require.NoError(t, v.Set("names", []string{"x", "y"}))

	_, err := v.Eval("total = scores['a'] + scores['b']\nnames.append('z')")
	require.NoError(t, err)

	total, err := v.Get("total")
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	names, err := v.Get("names")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"x", "y", "z"}, names)

	scores, err := v.Get("scores")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, scores)

	var typed []string
	require.NoError(t, v.GetInto("names", &typed))
	assert.Equal(t, []string{"x", "y", "z"}, typed)

	err = v.Set("bad", map[int]int{1: 2})
	assert.Error(t, err)

	_, err = v.Get("nope")
	assert.EqualError(t, err, "variable 'nope' not found")
}

func TestGetIntoStruct(t *testing.T) {
	v, _ := newVM(t)
	_, err := v.Eval(`
class Player:
    def __init__(self, name, score):
        self.Name = name
        self.Score = score
        self.Tags = ['new']

p = Player('Bo', 7)
d = {'Name': 'Cy', 'Score': 3}
`)
	require.NoError(t, err)

	var fromInstance User
	require.NoError(t, v.GetInto("p", &fromInstance))
	assert.Equal(t, User{Name: "Bo", Score: 7, Tags: []string{"new"}}, fromInstance)

	var fromDict User
	require.NoError(t, v.GetInto("d", &fromDict))
	assert.Equal(t, User{Name: "Cy", Score: 3}, fromDict)
}

func TestEvalErrors(t *testing.T) {
	v, _ := newVM(t)

	_, err := v.Eval("x = )")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error[C001]")

	_, err = v.Eval("1 / 0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")

	// The VM stays usable after a runtime error
	res, err := v.Eval("40 + 2")
	require.NoError(t, err)
	assert.Equal(t, 42, res)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.py")
	src := "def area(w, h):\n    return w * h\nunit = 'cm'\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	v, _ := newVM(t)
	require.NoError(t, v.LoadFile(path))

	res, err := v.Call("area", 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 12, res)

	res, err = v.Eval("area.__module__")
	require.NoError(t, err)
	assert.Equal(t, "lib", res)

	err = v.LoadFile(filepath.Join(dir, "missing.py"))
	assert.Error(t, err)
}

func ExampleVM_Call() {
	v := oxython.New()
	_, _ = v.Eval("def square(n):\n    return n * n")
	res, _ := v.Call("square", 9)
	fmt.Println(res)
	// Output: 81
}
