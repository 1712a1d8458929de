package compiler

import (
	"os"
	"testing"

	"izb/internal/ast"
	"izb/internal/chunk"
	"izb/internal/lexer"
	"izb/internal/parser"
)

func parse(t *testing.T, input string) *ast.Program {
	t.Helper()
	l := lexer.New(input)
	p := parser.New(l)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors for %q: %v", input, errs)
	}
	return prog
}

func compile(t *testing.T, input string) *chunk.Chunk {
	t.Helper()
	prog := parse(t, input)
	c, err := Compile(prog, "")
	if err != nil {
		t.Fatalf("compile error for %q: %v", input, err)
	}
	return c
}

func TestCompileArithmeticSmoke(t *testing.T) {
	c := compile(t, "1 + 2 * 3;")
	if len(c.Code) == 0 {
		t.Fatal("expected nonempty code")
	}
	if chunk.OpCode(c.Code[len(c.Code)-1]) != chunk.OP_RETURN {
		t.Fatalf("last opcode = %s, want OP_RETURN", chunk.OpCode(c.Code[len(c.Code)-1]))
	}
}

func TestCompileVarGlobal(t *testing.T) {
	c := compile(t, "var x = 5;")
	if len(c.Names) != 1 || c.Names[0] != "x" {
		t.Fatalf("names = %v, want [x]", c.Names)
	}
	foundSet := false
	for i := 0; i < len(c.Code); i++ {
		if chunk.OpCode(c.Code[i]) == chunk.OP_SET_GLOBAL {
			foundSet = true
		}
	}
	if !foundSet {
		t.Fatal("expected an OP_SET_GLOBAL in compiled output")
	}
}

func TestCompileLocalScope(t *testing.T) {
	c := compile(t, "fn f() { var x = 1; return x; }")
	fn, ok := c.Constants[0].Obj.(interface{ Arity() int })
	_ = fn
	if !ok {
		t.Fatal("expected first constant to be a function value")
	}
}

func TestCompileIfElse(t *testing.T) {
	c := compile(t, "if (true) { 1; } else { 2; }")
	var sawJumpIfFalse, sawJump bool
	for i := 0; i < len(c.Code); {
		op := chunk.OpCode(c.Code[i])
		switch op {
		case chunk.OP_JUMP_IF_FALSE:
			sawJumpIfFalse = true
			i += 3
		case chunk.OP_JUMP:
			sawJump = true
			i += 3
		case chunk.OP_CONSTANT, chunk.OP_GET_GLOBAL, chunk.OP_SET_GLOBAL, chunk.OP_GET_LOCAL, chunk.OP_SET_LOCAL, chunk.OP_CALL, chunk.OP_GET_PROPERTY, chunk.OP_SET_PROPERTY, chunk.OP_GET_SUPER_METHOD:
			i += 2
		default:
			i++
		}
	}
	if !sawJumpIfFalse || !sawJump {
		t.Fatalf("if/else should compile both a JUMP_IF_FALSE and a JUMP, code=%v", c.Code)
	}
}

func TestCompileWhileLoopBack(t *testing.T) {
	c := compile(t, "while (true) { break; }")
	var sawLoop bool
	for _, b := range c.Code {
		if chunk.OpCode(b) == chunk.OP_LOOP {
			sawLoop = true
		}
	}
	if !sawLoop {
		t.Fatal("expected a LOOP instruction in a while-loop body")
	}
}

func TestCompileBreakOutsideLoopFails(t *testing.T) {
	_, err := Compile(parse(t, "break;"), "")
	if err == nil {
		t.Fatal("expected an error compiling break outside a loop")
	}
}

func TestCompileContinueOutsideLoopFails(t *testing.T) {
	_, err := Compile(parse(t, "continue;"), "")
	if err == nil {
		t.Fatal("expected an error compiling continue outside a loop")
	}
}

func TestCompileTryCatch(t *testing.T) {
	c := compile(t, `try { throw "boom"; } catch (e) { print(e); }`)
	var sawTry, sawEndTry bool
	for i := 0; i < len(c.Code); {
		op := chunk.OpCode(c.Code[i])
		if op == chunk.OP_TRY {
			sawTry = true
			catchOff := uint16(c.Code[i+1])<<8 | uint16(c.Code[i+2])
			if catchOff == 0 {
				t.Fatal("catch offset should not be 0 when a catch clause is present")
			}
			i += 6
			continue
		}
		if op == chunk.OP_END_TRY {
			sawEndTry = true
		}
		i++
	}
	if !sawTry || !sawEndTry {
		t.Fatal("expected both TRY and END_TRY in compiled try/catch")
	}
}

func TestCompileTryFinallyOnlyOffsetNeverZero(t *testing.T) {
	c := compile(t, `try { } finally { print("cleanup"); }`)
	found := false
	for i := 0; i < len(c.Code); {
		op := chunk.OpCode(c.Code[i])
		if op == chunk.OP_TRY {
			found = true
			finallyOff := uint16(c.Code[i+3])<<8 | uint16(c.Code[i+4])
			if finallyOff == 0 {
				t.Fatal("finally offset must not be 0 when a finally clause is present")
			}
			i += 6
			continue
		}
		i++
	}
	if !found {
		t.Fatal("expected a TRY instruction")
	}
}

func TestCompileClassWithSuperclass(t *testing.T) {
	c := compile(t, `
		class Animal { fn speak() { return "..."; } }
		class Dog : Animal { fn speak() { return super.speak(); } }
	`)
	if len(c.Names) == 0 {
		t.Fatal("expected class names to be interned")
	}
}

func TestCompileUndefinedSuperclassFails(t *testing.T) {
	_, err := Compile(parse(t, `class Dog : Animal { }`), "")
	if err == nil {
		t.Fatal("expected an error referencing an undeclared superclass")
	}
}

func TestCompileArrayLiteralCallsHiddenNative(t *testing.T) {
	c := compile(t, `var a = [1, 2, 3];`)
	if len(c.Names) == 0 || c.Names[0] != arrayLiteralNative {
		t.Fatalf("expected first interned name to be %q, got %v", arrayLiteralNative, c.Names)
	}
}

func TestCompileMapLiteralCallsHiddenNative(t *testing.T) {
	c := compile(t, `var m = {"a": 1, "b": 2};`)
	found := false
	for _, n := range c.Names {
		if n == mapLiteralNative {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %q among interned names, got %v", mapLiteralNative, c.Names)
	}
}

func TestCompileMatchExpressionRejected(t *testing.T) {
	prog := parse(t, `match (1) { }`)
	if _, err := Compile(prog, ""); err == nil {
		t.Fatal("expected match expressions to be rejected by the compiler")
	}
}

func TestCompileNativeModuleImportIsNoop(t *testing.T) {
	c := compile(t, `import "math";`)
	if len(c.Code) == 0 {
		t.Fatal("expected the implicit NIL/RETURN epilogue even with a native import")
	}
}

func TestCompileImportResolvesViaSearchRoot(t *testing.T) {
	dir := t.TempDir()
	libPath := dir + "/lib.izb"
	if err := os.WriteFile(libPath, []byte(`var fromLib = 1;`), 0644); err != nil {
		t.Fatal(err)
	}

	prog := parse(t, `import "lib.izb";`)
	comp := New("")
	comp.SetSearchRoots([]string{dir})
	c, err := CompileWith(comp, prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	found := false
	for _, name := range c.Names {
		if name == "fromLib" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the search-root-resolved import to contribute its global, names=%v", c.Names)
	}
}
