package vm

import (
	"bytes"
	"strings"
	"testing"
)

func compileOK(t *testing.T, input string) *Chunk {
	t.Helper()
	chunk, err := Compile(input, "test")
	if err != nil {
		t.Fatalf("compilation error: %s", err)
	}
	return chunk
}

// runVM compiles and runs input, returning the value of the last
// expression statement and everything printed.
func runVM(t *testing.T, input string) (Value, string) {
	t.Helper()
	chunk := compileOK(t, input)

	var out bytes.Buffer
	machine := New(WithOutput(&out))
	result, err := machine.Interpret(chunk)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	if result != InterpretOK {
		t.Fatalf("unexpected result %s", result)
	}
	return machine.LastPopped(), out.String()
}

// runVMRepr runs input and renders the last expression value the way
// the REPL echoes it.
func runVMRepr(t *testing.T, input string) string {
	t.Helper()
	chunk := compileOK(t, input)

	machine := New(WithOutput(&bytes.Buffer{}))
	if _, err := machine.Interpret(chunk); err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	s, err := machine.Represent(machine.LastPopped())
	if err != nil {
		t.Fatalf("repr error: %s", err)
	}
	return s
}

func runVMOutput(t *testing.T, input string) string {
	t.Helper()
	_, out := runVM(t, input)
	return out
}

func testIntegerValue(t *testing.T, v Value, expected int64) {
	t.Helper()
	if !v.IsInt() {
		t.Fatalf("value is not int. got=%s (%s)", v.TypeName(), v.Repr())
	}
	if v.AsInt() != expected {
		t.Errorf("value has wrong value. got=%d, want=%d", v.AsInt(), expected)
	}
}

func testFloatValue(t *testing.T, v Value, expected float64) {
	t.Helper()
	if !v.IsFloat() {
		t.Fatalf("value is not float. got=%s (%s)", v.TypeName(), v.Repr())
	}
	if v.AsFloat() != expected {
		t.Errorf("value has wrong value. got=%g, want=%g", v.AsFloat(), expected)
	}
}

func testBooleanValue(t *testing.T, v Value, expected bool) {
	t.Helper()
	if !v.IsBool() {
		t.Fatalf("value is not bool. got=%s (%s)", v.TypeName(), v.Repr())
	}
	if v.AsBool() != expected {
		t.Errorf("value has wrong value. got=%t, want=%t", v.AsBool(), expected)
	}
}

func TestIntegerArithmetic(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1", 1},
		{"1 + 2", 3},
		{"10 - 4", 6},
		{"2 * 3 + 4", 10},
		{"2 * (3 + 4)", 14},
		{"7 % 3", 1},
		{"-7 % 3", -1},
		{"7 % -3", 1},
		{"-7 % -3", -1},
		{"-6 % 3", 0},
		{"-5 + 2", -3},
		{"-(2 + 3)", -5},
		{"1 - 2 - 3", -4},
		{"9223372036854775807 + 1", -9223372036854775808},
	}

	for _, tt := range tests {
		result, _ := runVM(t, tt.input)
		testIntegerValue(t, result, tt.expected)
	}
}

func TestFloatArithmetic(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"7 / 2", 3.5},
		{"4 / 2", 2.0},
		{"1 + 2.5", 3.5},
		{"2.5 * 2", 5.0},
		{"0.5 - 1", -0.5},
	}

	for _, tt := range tests {
		result, _ := runVM(t, tt.input)
		testFloatValue(t, result, tt.expected)
	}
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"1 < 2", true},
		{"2 < 1", false},
		{"1.5 < 2", true},
		{"2 == 2", true},
		{"2 == 2.0", true},
		{"'a' == 'a'", true},
		{"'a' == 'b'", false},
		{"[1, 2] == [1, 2]", true},
		{"(1, 2) == (1, 2)", true},
		{"{'a': 1} == {'a': 1}", true},
		{"None == None", true},
		{"1 == '1'", false},
		{"'ell' in 'hello'", true},
		{"'z' in 'hello'", false},
		{"2 in [1, 2, 3]", true},
		{"4 in (1, 2, 3)", false},
		{"d = {'k': 1}; 'k' in d", true},
		{"'x' in {'k': 1}", false},
		{"True == True", true},
	}

	for _, tt := range tests {
		result, _ := runVM(t, tt.input)
		testBooleanValue(t, result, tt.expected)
	}
}

func TestEndToEndScenarios(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"addition", "1 + 2", "3"},
		{"function", "def add(a, b): return a + b\nadd(2, 5)", "7"},
		{"recursion", `
def fact(n):
    if n < 2:
        return 1
    return n * fact(n - 1)
fact(5)
`, "120"},
		{"closure sees later assignment", `
def outer():
    value = 1
    def inner():
        return value
    value = 2
    return inner
fn = outer()
fn()
`, "2"},
		{"negative index", "x = [1, 2, 3]; y = x[-1]\ny", "3"},
		{"dict membership", "d = {'k': 1}; 'k' in d", "True"},
		{"comprehension", "[i * 2 for i in range(0, 4)]", "[0, 2, 4, 6]"},
		{"sum range", `
def sum_range(n):
    total = 0
    for i in range(0, n):
        total = total + i
    return total
sum_range(5)
`, "10"},
		{"super", `
class A:
    def f(self):
        return 1
class B(A):
    def f(self):
        return super(self).f() + 1
B().f()
`, "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runVMRepr(t, tt.input)
			if got != tt.expected {
				t.Errorf("got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestCollections(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"[1, 2, 3][0]", "1"},
		{"(4, 5)[-1]", "5"},
		{"'hello'[1]", "'e'"},
		{"[1, 2, 3, 4, 5][1:4]", "[2, 3, 4]"},
		{"[1, 2, 3][-2:]", "[2, 3]"},
		{"[1, 2, 3][:100]", "[1, 2, 3]"},
		{"'abc'[::-1]", "'cba'"},
		{"[1, 2, 3, 4, 5][::2]", "[1, 3, 5]"},
		{"(1, 2, 3)[1:]", "(2, 3)"},
		{"len([1, 2, 3])", "3"},
		{"len('héllo')", "5"},
		{"len({'a': 1, 'b': 2})", "2"},
		{"len((1,))", "1"},
		{"(1,)", "(1,)"},
		{"()", "()"},
		{"list('ab')", "['a', 'b']"},
		{"list()", "[]"},
		{"list((1, 2))", "[1, 2]"},
		{"range(3)", "[0, 1, 2]"},
		{"range(5, 2)", "[]"},
		{"zip([1, 2], [3, 4, 5])", "[(1, 3), (2, 4)]"},
		{"pairs = [[1, 2], [3, 4]]\nzip(*pairs)", "[(1, 3), (2, 4)]"},
		{"{'a': 1, 'b': [1, 'x']}", "{'a': 1, 'b': [1, 'x']}"},
		{"{'a': 1, 'a': 2}", "{'a': 2}"},
		{"d = {}\nd['a'] = 1\nd['b'] = 2\nd['a'] = 3\nd", "{'a': 3, 'b': 2}"},
		{"grid = [[0, 0], [0, 0]]\ngrid[1][0] = 5\ngrid", "[[0, 0], [5, 0]]"},
		{"[i for i in range(10) if i % 3 == 0]", "[0, 3, 6, 9]"},
		{"[[j for j in range(0, i)] for i in range(0, 3)]", "[[], [0], [0, 1]]"},
	}

	for _, tt := range tests {
		got := runVMRepr(t, tt.input)
		if got != tt.expected {
			t.Errorf("%q: got %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestListCopySemantics(t *testing.T) {
	out := runVMOutput(t, `
xs = [1]
ys = xs
xs.append(2)
xs[0] = 9
print(xs, ys)
`)
	if out != "[9, 2] [1]\n" {
		t.Errorf("got %q", out)
	}
}

func TestAppendWriteBack(t *testing.T) {
	out := runVMOutput(t, `
class Bag:
    def __init__(self):
        self.items = []
    def add(self, x):
        self.items.append(x)
        return len(self.items)

def collect(n):
    acc = []
    for i in range(0, n):
        acc.append(i * i)
    return acc

b = Bag()
b.add('a')
b.add('b')
print(b.items)
print(collect(4))
`)
	want := "['a', 'b']\n[0, 1, 4, 9]\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestStrings(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"'a' + 'b'", "'ab'"},
		{"'HeLLo'.lower()", "'hello'"},
		{"'abc1'.isalnum()", "True"},
		{"'a b'.isalnum()", "False"},
		{"''.isalnum()", "False"},
		{"' '.join(['a', 'b'])", "'a b'"},
		{"'-'.join(c for c in 'abc')", "'a-b-c'"},
		{"','.join([w.lower() for w in ['A', 'B']])", "'a,b'"},
		{"name = 'x'\nf'hi {name}!'", "'hi x!'"},
		{"n = 3\nf'{n} {{n}}'", "'3 {n}'"},
		{"round(2.5)", "2"},
		{"round(3.5)", "4"},
		{"round(3.14159, 2)", "3.14"},
		{"str(12) + str(1.5)", "'121.5'"},
		{"int('42') + int(2.9)", "44"},
		{"float('1.5')", "1.5"},
		{"bool([])", "False"},
		{"\"it's\"", "\"it's\""},
	}

	for _, tt := range tests {
		got := runVMRepr(t, tt.input)
		if got != tt.expected {
			t.Errorf("%q: got %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestPrint(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"print(1)", "1\n"},
		{"print(1, 'a', 2.0)", "1 a 2.0\n"},
		{"print()", "\n"},
		{"print(['a', None, True])", "['a', None, True]\n"},
		{"print(type(1), type('s'), type([]))", "<class 'int'> <class 'str'> <class 'list'>\n"},
		{"print(1 / 3)", "0.3333333333333333\n"},
	}

	for _, tt := range tests {
		out := runVMOutput(t, tt.input)
		if out != tt.expected {
			t.Errorf("%q: got %q, want %q", tt.input, out, tt.expected)
		}
	}
}

func TestControlFlow(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"x = 0\nif 1 < 2:\n    x = 10\nelse:\n    x = 20\nx", 10},
		{"x = 0\nif 2 < 1:\n    x = 10\nelse:\n    x = 20\nx", 20},
		{"x = 5\nif x == 5: x = 6\nx", 6},
		{"if 0: x = 1 else: x = 2\nx", 2},
		{"if 1: x = 1 else: x = 2\nx", 1},
		{"if 0: x = 1\nelse: x = 2\nx", 2},
		{"if 0: a = 1; b = 2 else: a = 3; b = 4\na * 10 + b", 34},
		{"if 1: if 0: x = 1 else: x = 2 else: x = 3\nx", 2},
		{"if 0: if 0: x = 1 else: x = 2 else: x = 3\nx", 3},
		{"def f(n):\n    if n < 0: return 0 - n else: return n\nf(-4) + f(3)", 7},
		{"i = 0\nwhile i < 10:\n    i += 1\ni", 10},
		{"i = 0\nwhile True:\n    i += 1\n    if i == 5:\n        break\ni", 5},
		{"t = 0\nfor x in [1, 2, 3]:\n    t += x\nt", 6},
		{"t = 0\nfor x in range(0, 100):\n    if x == 4:\n        break\n    t += x\nt", 6},
		{"n = 0\nfor a in range(0, 3):\n    for b in range(0, 3):\n        n *= 1\n        n += 1\nn", 9},
	}

	for _, tt := range tests {
		result, _ := runVM(t, tt.input)
		testIntegerValue(t, result, tt.expected)
	}
}

func TestTruthiness(t *testing.T) {
	out := runVMOutput(t, `
for v in [0, 1, '', 'a', [], [0], None, 0.0, {}, ()]:
    if v:
        print('T')
    else:
        print('F')
`)
	if out != "F\nT\nF\nT\nF\nT\nF\nF\nF\nF\n" {
		t.Errorf("got %q", out)
	}
}

func TestStringIteration(t *testing.T) {
	result := runVMRepr(t, "out = ''\nfor ch in 'abc':\n    out = ch + out\nout")
	if result != "'cba'" {
		t.Errorf("got %s", result)
	}
}

func TestFunctions(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"def f(a, b=10): return a + b\nf(1)", 11},
		{"def f(a, b=10): return a + b\nf(1, 2)", 3},
		{"def f(a=-1): return a\nf()", -1},
		{"def f():\n    x = 1\n    y = 2\n    return x + y\nf()", 3},
		{"def f(): return\nf()\n1", 1},
		{"g = 5\ndef f(): return g * 2\nf()", 10},
		{"def f(n):\n    def g(m):\n        return m + n\n    return g(1)\nf(41)", 42},
		{"def fib(n):\n    if n < 2:\n        return n\n    return fib(n - 1) + fib(n - 2)\nfib(15)", 610},
		{"def f(x: int) -> int:\n    y: int = x * 2\n    return y\nf(4)", 8},
	}

	for _, tt := range tests {
		result, _ := runVM(t, tt.input)
		testIntegerValue(t, result, tt.expected)
	}
}

func TestClosures(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{`
def make():
    count = 0
    def inc():
        nonlocal count
        count += 1
        return count
    return inc
c = make()
c()
c()
`, 2},
		{`
def make():
    x = 1
    def get():
        return x
    def set(v):
        nonlocal x
        x = v
    set(7)
    return get
make()()
`, 7},
		{`
def a():
    v = 3
    def b():
        def c():
            return v
        return c
    return b()()
a()
`, 3},
		{`
def counters():
    n = 0
    def inc():
        nonlocal n
        n += 1
        return n
    inc()
    inc()
    return n
counters()
`, 2},
	}

	for _, tt := range tests {
		result, _ := runVM(t, tt.input)
		testIntegerValue(t, result, tt.expected)
	}
}

func TestComprehensionScopes(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"def f(n):\n    return [i * n for i in range(0, 3)]\nf(2)", "[0, 2, 4]"},
		{`
def outer():
    i = 100
    def inner():
        return [i for i in range(0, 2)]
    return inner()
outer()
`, "[0, 1]"},
		{"def f(words):\n    return ' '.join(w for w in words if w == 'a')\nf(['a', 'b', 'a'])", "'a a'"},
		{"xs = [1, 2]\n[x + 1 for x in xs]", "[2, 3]"},
	}

	for _, tt := range tests {
		got := runVMRepr(t, tt.input)
		if got != tt.expected {
			t.Errorf("%q: got %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestClasses(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`
class Point:
    def __init__(self, x, y):
        self.x = x
        self.y = y
    def sum(self):
        return self.x + self.y
p = Point(2, 3)
p.sum()
`, "5"},
		{`
class A:
    def f(self):
        return 1
    def g(self):
        return self.f() * 10
class B(A):
    def f(self):
        return 2
B().g()
`, "20"},
		{`
class A:
    def __init__(self, v):
        self.v = v
class B(A):
    def __init__(self, v):
        super().__init__(v * 2)
B(4).v
`, "8"},
		{`
class A:
    def name(self):
        return 'A'
class B(A):
    def name(self):
        return 'B' + super().name()
class C(B):
    def name(self):
        return 'C' + super().name()
C().name()
`, "'CBA'"},
		{"class A:\n    pass\nclass B(A):\n    pass\nisinstance(B(), A)", "True"},
		{"class A:\n    pass\nclass B:\n    pass\nisinstance(A(), B)", "False"},
		{"class A:\n    pass\na = A()\ntype(a) == A", "True"},
		{"class A:\n    pass\na = A()\na.__class__ == A", "True"},
		{"class A:\n    def m(self):\n        return 1\nA.__name__", "'A'"},
		{"class A:\n    def m(self):\n        return 1\nA.m.__qualname__", "'A.m'"},
		{"class C:\n    def __init__(self):\n        self.n = 0\n    def bump(self):\n        self.n += 1\nc = C()\nc.bump()\nc.bump()\nc.n", "2"},
	}

	for _, tt := range tests {
		got := runVMRepr(t, tt.input)
		if got != tt.expected {
			t.Errorf("%q: got %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestStrAndReprMethods(t *testing.T) {
	out := runVMOutput(t, `
class P:
    def __init__(self, name):
        self.name = name
    def __str__(self):
        return 'P(' + self.name + ')'
    def __repr__(self):
        return '<' + self.name + '>'
class Q:
    pass
p = P('a')
print(p)
print([p, P('b')])
print(f'{p}!')
print(str(p))
print(Q())
`)
	want := "P(a)\n[<a>, <b>]\nP(a)!\nP(a)\n<Q instance>\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestStrMethodUsingLoops(t *testing.T) {
	out := runVMOutput(t, `
class Row:
    def __init__(self, cells):
        self.cells = cells
    def __str__(self):
        parts = []
        for c in self.cells:
            parts.append(str(c))
        return '|'.join(parts)
print(Row([1, 2, 3]), 'end')
`)
	if out != "1|2|3 end\n" {
		t.Errorf("got %q", out)
	}
}

func TestFunctionIntrospection(t *testing.T) {
	out := runVMOutput(t, `
def greet(name: str, greeting: str = 'hi') -> str:
    "Say hi."
    return greeting + name
print(greet.__name__, greet.__doc__, greet.__defaults__)
print(greet.__annotations__)
print(greet.__module__)
print(greet.__closure__)
def outer():
    x = 1
    def inner():
        return x
    return inner
print(outer().__closure__, outer().__qualname__)
`)
	want := "greet Say hi. ('hi',)\n" +
		"{'name': 'str', 'greeting': 'str', 'return': 'str'}\n" +
		"test\n" +
		"None\n" +
		"(1,) outer.inner\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestGlobalsSnapshot(t *testing.T) {
	out := runVMOutput(t, `
a = 1
def f():
    return 0
b = 2
print('a' in f.__globals__, 'b' in f.__globals__)
`)
	if out != "True False\n" {
		t.Errorf("got %q", out)
	}
}

func TestGlobalsPersistAcrossInterpret(t *testing.T) {
	machine := New(WithOutput(&bytes.Buffer{}))
	if _, err := machine.InterpretSource("x = 40", ""); err != nil {
		t.Fatalf("first run: %s", err)
	}
	if _, err := machine.InterpretSource("def f(): return x + 2", ""); err != nil {
		t.Fatalf("second run: %s", err)
	}
	if _, err := machine.InterpretSource("f()", ""); err != nil {
		t.Fatalf("third run: %s", err)
	}
	testIntegerValue(t, machine.LastPopped(), 42)
}

func TestFrameStackEmptyAfterRun(t *testing.T) {
	machine := New(WithOutput(&bytes.Buffer{}))
	chunk := compileOK(t, "def f(n):\n    return n\nf(1)\n[x for x in range(0, 3)]")
	if _, err := machine.Interpret(chunk); err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	if machine.frameCount != 0 {
		t.Errorf("frameCount = %d after run", machine.frameCount)
	}
	if machine.openUpvalues != nil {
		t.Errorf("open upvalues left after run")
	}
	if _, ok := machine.StackTop(); ok {
		t.Errorf("operand stack not empty after run")
	}
}

func TestHostCall(t *testing.T) {
	machine := New(WithOutput(&bytes.Buffer{}))
	if _, err := machine.InterpretSource("def mul(a, b=3): return a * b\nclass K:\n    def __init__(self, v):\n        self.v = v", ""); err != nil {
		t.Fatalf("runtime error: %s", err)
	}

	fn, _ := machine.GetGlobal("mul")
	result, err := machine.Call(fn, IntVal(5))
	if err != nil {
		t.Fatalf("call error: %s", err)
	}
	testIntegerValue(t, result, 15)

	class, _ := machine.GetGlobal("K")
	inst, err := machine.Call(class, StringVal("v"))
	if err != nil {
		t.Fatalf("call error: %s", err)
	}
	if _, ok := inst.Obj.(*ObjInstance); !ok {
		t.Fatalf("expected instance, got %s", inst.TypeName())
	}

	if _, err := machine.Call(fn); err == nil || !strings.Contains(err.Error(), "missing 1 required") {
		t.Errorf("expected arity error, got %v", err)
	}
}

func TestHostCallUnwindsAfterError(t *testing.T) {
	machine := New(WithOutput(&bytes.Buffer{}))
	src := "def bad(x):\n    return 1 / x\ndef good(x):\n    return x + 1"
	if _, err := machine.InterpretSource(src, ""); err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	bad, _ := machine.GetGlobal("bad")
	good, _ := machine.GetGlobal("good")

	for i := 0; i < 100; i++ {
		if _, err := machine.Call(bad, IntVal(0)); err == nil || !strings.Contains(err.Error(), "division by zero") {
			t.Fatalf("call %d: expected division error, got %v", i, err)
		}
		if machine.frameCount != 0 || machine.sp != 0 {
			t.Fatalf("call %d left %d frames and %d stack slots", i, machine.frameCount, machine.sp)
		}
	}

	result, err := machine.Call(good, IntVal(1))
	if err != nil {
		t.Fatalf("call error: %s", err)
	}
	testIntegerValue(t, result, 2)
}

func TestDefineNative(t *testing.T) {
	machine := New(WithOutput(&bytes.Buffer{}))
	machine.DefineNative("twice", func(vm *VM, args []Value, _ *ObjClass) (Value, error) {
		return IntVal(args[0].AsInt() * 2), nil
	})
	if _, err := machine.InterpretSource("twice(21)", ""); err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	testIntegerValue(t, machine.LastPopped(), 42)
}

func TestCompileTwiceIsDeterministic(t *testing.T) {
	src := "def f(a):\n    return [x * a for x in range(0, 3)]\nprint(f(2))"
	a := compileOK(t, src)
	b := compileOK(t, src)
	if !bytes.Equal(a.Code, b.Code) {
		t.Errorf("chunks differ")
	}
	if len(a.Constants) != len(b.Constants) {
		t.Errorf("constant pools differ: %d vs %d", len(a.Constants), len(b.Constants))
	}
}

func TestSliceIdentity(t *testing.T) {
	tests := []string{
		"l = [1, 2, 3]\nl[0:len(l):1] == l",
		"s = 'hello'\ns[0:len(s):1] == s",
		"l = [3, 1]\nlist(list(l)) == list(l)",
	}
	for _, input := range tests {
		result, _ := runVM(t, input)
		testBooleanValue(t, result, true)
	}
}
