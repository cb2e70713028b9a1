package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/funvibe/oxython/internal/diagnostics"
)

func compileErrors(t *testing.T, input string) diagnostics.ErrorList {
	t.Helper()
	chunk, err := Compile(input, "test")
	if err == nil {
		t.Fatalf("expected compile error for %q", input)
	}
	if chunk != nil {
		t.Errorf("chunk should be discarded on error")
	}
	var list diagnostics.ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("expected diagnostics.ErrorList, got %T", err)
	}
	return list
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		input string
		code  diagnostics.ErrorCode
		want  string
	}{
		{"return 1", diagnostics.ErrC003, "'return' outside function"},
		{"break", diagnostics.ErrC004, "'break' outside loop"},
		{"if True:\n    break", diagnostics.ErrC004, "'break' outside loop"},
		{"1 = 2", diagnostics.ErrC002, "cannot assign to expression"},
		{"f() = 2", diagnostics.ErrC002, "invalid assignment target"},
		{"None = 1", diagnostics.ErrC002, "cannot assign to None"},
		{"def f(a=1, b): pass", diagnostics.ErrC006, "non-default argument follows default argument"},
		{"def f(a, a): pass", diagnostics.ErrC006, "duplicate argument 'a'"},
		{"def f(a=[]): pass", diagnostics.ErrC006, "default value must be a literal constant"},
		{"class A:\n    x = 1", diagnostics.ErrC007, "class body may only contain method definitions"},
		{"x = )", diagnostics.ErrC001, "expected expression"},
		{"print(f'{1+2}')", diagnostics.ErrC009, "only names are supported"},
		{"f'{x'", diagnostics.ErrC009, "expecting '}'"},
		{"f'}'", diagnostics.ErrC009, "single '}'"},
		{"x = 1 @ 2", diagnostics.ErrL001, "invalid character"},
		{"x = 'abc", diagnostics.ErrL001, "unterminated string literal"},
		{"def f():\n    x += 1", diagnostics.ErrC005, "local variable 'x' referenced before assignment"},
		{"if True:\nprint(1)", diagnostics.ErrC001, "expected an indented block"},
		{"x = 1\n  y = 2", diagnostics.ErrC001, "unexpected indent"},
		{"x = 1 2", diagnostics.ErrC001, "expected newline or ';' after statement"},
		{"x = 1 else: x = 2", diagnostics.ErrC001, "expected newline or ';' after statement, got 'else'"},
		{"while 0: x = 1 else: x = 2", diagnostics.ErrC001, "got 'else'"},
		{"len(1, 2)", diagnostics.ErrC001, "len() takes exactly 1 arguments (2 given)"},
		{"nonlocal x", diagnostics.ErrC001, "nonlocal declaration not allowed at module level"},
		{"def f():\n    nonlocal y", diagnostics.ErrC001, "no binding for nonlocal 'y' found"},
		{"while True\n    pass", diagnostics.ErrC001, "expected ':' after while condition"},
	}

	for _, tt := range tests {
		errs := compileErrors(t, tt.input)
		if errs[0].Code != tt.code {
			t.Errorf("%q: code = %s, want %s (%s)", tt.input, errs[0].Code, tt.code, errs[0].Message)
		}
		if !strings.Contains(errs[0].Message, tt.want) {
			t.Errorf("%q: message %q should contain %q", tt.input, errs[0].Message, tt.want)
		}
	}
}

func TestInlineIfElse(t *testing.T) {
	for _, src := range []string{
		"if 0: x = 1 else: x = 2",
		"if 0: x = 1 else:\n    x = 2",
		"if 0: print(1); print(2) else: print(3)",
	} {
		chunk := compileOK(t, src)
		if got := strings.Count(Disassemble(chunk, "test"), "JUMP_IF_FALSE"); got != 1 {
			t.Errorf("%q: %d JUMP_IF_FALSE, want 1", src, got)
		}
	}
}

func TestCompileErrorRecovery(t *testing.T) {
	errs := compileErrors(t, "x = )\ny = 1\nz = (]\nreturn 5")
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d:\n%s", len(errs), errs.Error())
	}
	lines := []int{errs[0].Token.Line, errs[1].Token.Line, errs[2].Token.Line}
	if lines[0] != 1 || lines[1] != 3 || lines[2] != 4 {
		t.Errorf("error lines = %v, want [1 3 4]", lines)
	}
}

func TestCompileErrorInsideFunctionRecovers(t *testing.T) {
	errs := compileErrors(t, "def f():\n    x = )\n    return 1\ndef g():\n    break\ng()")
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d:\n%s", len(errs), errs.Error())
	}
	if errs[1].Code != diagnostics.ErrC004 {
		t.Errorf("second error code = %s, want C004", errs[1].Code)
	}
}

func TestCompileErrorFormatting(t *testing.T) {
	_, err := Compile("x = )", "test")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(err.Error(), "1:5: error[C001]") {
		t.Errorf("unexpected format %q", err.Error())
	}
}

func TestCompileEndsWithReturn(t *testing.T) {
	for _, input := range []string{"", "1 + 2", "x = 1", "def f(): pass", "# only a comment\n"} {
		chunk := compileOK(t, input)
		if len(chunk.Code) == 0 || Opcode(chunk.Code[len(chunk.Code)-1]) != OP_RETURN {
			t.Errorf("%q: chunk does not end with RETURN", input)
		}
	}
}

func TestExpressionResultHeuristic(t *testing.T) {
	tests := []struct {
		input    string
		exprStmt bool
		hasPop   bool
	}{
		{"1 + 2", true, true},
		{"x = 1", false, false},
		{"x = 1\nx", true, true},
		{"x = 1; x", true, true},
		{"print(1)", false, false},
		{"def f(): return 1", false, false},
		{"for i in [1]:\n    i", false, true},
	}
	for _, tt := range tests {
		chunk := compileOK(t, tt.input)
		if chunk.ExprResult != tt.exprStmt {
			t.Errorf("%q: ExprResult = %t, want %t", tt.input, chunk.ExprResult, tt.exprStmt)
		}
		if chunk.HasTopLevelPop() != tt.hasPop {
			t.Errorf("%q: HasTopLevelPop = %t, want %t", tt.input, chunk.HasTopLevelPop(), tt.hasPop)
		}
	}
}

func TestConstantDeduplication(t *testing.T) {
	chunk := compileOK(t, "x = 1\ny = 1\nz = 'a'\nw = 'a'\nx = 2")
	counts := make(map[string]int)
	for _, c := range chunk.Constants {
		counts[c.TypeName()+":"+c.Repr()]++
	}
	for key, n := range counts {
		if n > 1 {
			t.Errorf("constant %s appears %d times", key, n)
		}
	}
	if counts["str:'x'"] != 1 {
		t.Errorf("global name 'x' should be pooled once")
	}
}

func TestFunctionPrototype(t *testing.T) {
	chunk := compileOK(t, "def f(a, b: int = 2) -> str:\n    \"doc\"\n    c = a\n    d = b\n    return c")

	var proto *Prototype
	for _, c := range chunk.Constants {
		if p, ok := c.Obj.(*Prototype); ok {
			proto = p
		}
	}
	if proto == nil {
		t.Fatal("no prototype in constants")
	}

	if proto.Name != "f" || proto.QualName != "f" || proto.Module != "test" {
		t.Errorf("names = %q %q %q", proto.Name, proto.QualName, proto.Module)
	}
	if proto.Arity != 2 || proto.RequiredArity != 1 {
		t.Errorf("arity = %d/%d, want 2/1", proto.RequiredArity, proto.Arity)
	}
	if proto.LocalCount != 2 {
		t.Errorf("LocalCount = %d, want 2", proto.LocalCount)
	}
	if len(proto.Defaults) != 1 || !proto.Defaults[0].Equals(IntVal(2)) {
		t.Errorf("defaults = %v", proto.Defaults)
	}
	if proto.Doc == nil || *proto.Doc != "doc" {
		t.Errorf("doc = %v", proto.Doc)
	}
	if proto.ParamTypes[0] != nil || proto.ParamTypes[1].Kind != TypeInt {
		t.Errorf("param types = %v", proto.ParamTypes)
	}
	if proto.ReturnType == nil || proto.ReturnType.Kind != TypeStr {
		t.Errorf("return type = %v", proto.ReturnType)
	}
}

func TestUpvalueDescriptors(t *testing.T) {
	chunk := compileOK(t, `
def outer():
    a = 1
    b = 2
    def mid():
        def inner():
            return a + b
        return inner
    return mid
`)

	protos := map[string]*Prototype{}
	var collect func(ch *Chunk)
	collect = func(ch *Chunk) {
		for _, c := range ch.Constants {
			if p, ok := c.Obj.(*Prototype); ok {
				protos[p.QualName] = p
				collect(p.Chunk)
			}
		}
	}
	collect(chunk)

	mid := protos["outer.mid"]
	inner := protos["outer.mid.inner"]
	if mid == nil || inner == nil {
		t.Fatalf("missing prototypes: %v", protos)
	}

	want := []UpvalueDescriptor{{IsLocal: true, Index: 1}, {IsLocal: true, Index: 2}}
	if len(mid.Upvalues) != 2 || mid.Upvalues[0] != want[0] || mid.Upvalues[1] != want[1] {
		t.Errorf("mid upvalues = %v, want %v", mid.Upvalues, want)
	}
	wantInner := []UpvalueDescriptor{{IsLocal: false, Index: 0}, {IsLocal: false, Index: 1}}
	if len(inner.Upvalues) != 2 || inner.Upvalues[0] != wantInner[0] || inner.Upvalues[1] != wantInner[1] {
		t.Errorf("inner upvalues = %v, want %v", inner.Upvalues, wantInner)
	}
}

func TestClassStackOrder(t *testing.T) {
	chunk := compileOK(t, "class A:\n    def f(self): return 1\n    def g(self): return 2")

	var ops []Opcode
	for ip := 0; ip < len(chunk.Code); {
		op := Opcode(chunk.Code[ip])
		ops = append(ops, op)
		ip += 1 + op.OperandWidth()
	}

	want := []Opcode{
		OP_MAKE_FUNCTION, OP_MAKE_FUNCTION,
		OP_CONSTANT, OP_CONSTANT, // method names
		OP_CONSTANT, // class name
		OP_MAKE_CLASS,
		OP_DEFINE_GLOBAL,
		OP_RETURN,
	}
	if len(ops) != len(want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d = %s, want %s", i, ops[i], want[i])
		}
	}
}

func TestComprehensionRewritesLoopVariable(t *testing.T) {
	chunk := compileOK(t, "def f(xs):\n    return [x for x in xs]")

	var proto *Prototype
	for _, c := range chunk.Constants {
		if p, ok := c.Obj.(*Prototype); ok {
			proto = p
		}
	}
	for ip := 0; ip < len(proto.Chunk.Code); {
		op := Opcode(proto.Chunk.Code[ip])
		if op == OP_GET_GLOBAL || op == OP_SET_GLOBAL || op == OP_DEFINE_GLOBAL {
			idx := proto.Chunk.ReadU16(ip + 1)
			t.Errorf("unexpected global access %s %s", op, proto.Chunk.Constants[idx].Inspect())
		}
		ip += 1 + op.OperandWidth()
	}
}

func TestGlobalTypes(t *testing.T) {
	c := NewCompiler("count: int = 0\nname: str", "")
	if _, err := c.Compile(); err != nil {
		t.Fatalf("compile error: %s", err)
	}
	types := c.GlobalTypes()
	if types["count"] == nil || types["count"].Kind != TypeInt {
		t.Errorf("count type = %v", types["count"])
	}
	if types["name"] == nil || types["name"].Kind != TypeStr {
		t.Errorf("name type = %v", types["name"])
	}
}

func TestParseTypeName(t *testing.T) {
	if ParseTypeName("float").Kind != TypeFloat {
		t.Error("float")
	}
	typ := ParseTypeName("Point")
	if typ.Kind != TypeClass || typ.String() != "Point" {
		t.Errorf("class type = %v", typ)
	}
}
