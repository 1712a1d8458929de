package vm

import (
	"testing"

	"izb/internal/compiler"
	"izb/internal/lexer"
	"izb/internal/natives"
	"izb/internal/parser"
	"izb/internal/value"
)

type vmTestCase struct {
	input    string
	expected interface{}
}

func TestIntegerArithmetic(t *testing.T) {
	tests := []vmTestCase{
		{"report(1);", 1.0},
		{"report(2);", 2.0},
		{"report(1 + 2);", 3.0},
		{"report(1 - 2);", -1.0},
		{"report(1 * 2);", 2.0},
		{"report(4 / 2);", 2.0},
		{"report(50 / 2 * 2 + 10);", 60.0},
		{"report(2 * (5 + 10));", 30.0},
		{"report(3 * 3 * 3 + 10);", 37.0},
		{"report((5 + 10 * 2 + 15 / 3) * 2 + -10);", 50.0},
		{"report(7 % 3);", 1.0},
		{"report(\"foo\" + \"bar\");", "foobar"},
	}
	runVmTests(t, tests)
}

func TestBooleanLogic(t *testing.T) {
	tests := []vmTestCase{
		{"report(true);", true},
		{"report(false);", false},
		{"report(1 < 2);", true},
		{"report(1 > 2);", false},
		{"report(1 == 1);", true},
		{"report(1 != 1);", false},
		{"report(true && false);", false},
		{"report(true || false);", true},
		{"report(!true);", false},
		{"report(nil == nil);", true},
	}
	runVmTests(t, tests)
}

func TestGlobalsAndLocals(t *testing.T) {
	tests := []vmTestCase{
		{"var x = 5; report(x);", 5.0},
		{"fn add(a, b) { return a + b; } report(add(2, 3));", 5.0},
		{"fn fact(n) { if (n <= 1) { return 1; } return n * fact(n - 1); } report(fact(5));", 120.0},
	}
	runVmTests(t, tests)
}

func TestArraysAndMaps(t *testing.T) {
	tests := []vmTestCase{
		{"var a = [1, 2, 3]; report(a[1]);", 2.0},
		{"var a = [1, 2, 3]; a[0] = 9; report(a[0]);", 9.0},
		{"var m = {\"x\": 1}; report(m[\"x\"]);", 1.0},
		{"var m = {\"x\": 1}; report(m[\"missing\"]);", nil},
	}
	runVmTests(t, tests)
}

func TestClassesAndInheritance(t *testing.T) {
	src := `
		class Animal {
			fn speak() { return "..."; }
		}
		class Dog : Animal {
			fn speak() { return "woof " + super.speak(); }
		}
		var d = Dog();
		report(d.speak());
	`
	runVmTests(t, []vmTestCase{{src, "woof ..."}})
}

func TestConstructorBindsFields(t *testing.T) {
	src := `
		class Point {
			fn constructor(x, y) {
				this.x = x;
				this.y = y;
			}
		}
		var p = Point(3, 4);
		report(p.x + p.y);
	`
	runVmTests(t, []vmTestCase{{src, 7.0}})
}

func TestTryCatchBindsException(t *testing.T) {
	src := `
		var caught = nil;
		try {
			throw "boom";
		} catch (e) {
			caught = e;
		}
		report(caught);
	`
	runVmTests(t, []vmTestCase{{src, "boom"}})
}

func TestTryFinallyAlwaysRuns(t *testing.T) {
	src := `
		var log = "";
		try {
			log = log + "try;";
		} finally {
			log = log + "finally;";
		}
		report(log);
	`
	runVmTests(t, []vmTestCase{{src, "try;finally;"}})
}

// A finally block with no matching catch runs on the thrown exception and
// is considered to have handled it: the outer catch never sees it.
func TestTryFinallyRunsOnThrow(t *testing.T) {
	src := `
		var log = "";
		try {
			try {
				throw "err";
			} finally {
				log = log + "inner-finally;";
			}
		} catch (e) {
			log = log + "caught:" + e;
		}
		report(log);
	`
	runVmTests(t, []vmTestCase{{src, "inner-finally;"}})
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	_, err := interpretSource(t, "report(doesNotExist);")
	if err == nil {
		t.Fatal("expected an error referencing an undefined global")
	}
}

func TestArrayOutOfRangeIsRuntimeError(t *testing.T) {
	_, err := interpretSource(t, "var a = [1]; report(a[5]);")
	if err == nil {
		t.Fatal("expected an out-of-range array access to fail")
	}
}

// runVmTests compiles and runs each case, capturing the single argument
// passed to the injected "report" native, and checks it against expected.
func runVmTests(t *testing.T, tests []vmTestCase) {
	t.Helper()
	for _, tt := range tests {
		captured, err := interpretSource(t, tt.input)
		if err != nil {
			t.Fatalf("input %q: vm error: %s", tt.input, err)
		}
		assertValue(t, tt.input, tt.expected, captured)
	}
}

func interpretSource(t *testing.T, src string) (value.Value, error) {
	t.Helper()
	l := lexer.New(src)
	p := parser.New(l)
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parser errors for %q: %v", src, errs)
	}

	c, err := compiler.Compile(program, "")
	if err != nil {
		t.Fatalf("compiler error for %q: %s", src, err)
	}

	m := New("")
	var captured value.Value
	m.Globals()["report"] = value.CallableValue(&natives.Native{
		NameField:  "report",
		ArityField: 1,
		Fn: func(vm natives.VM, args []value.Value) (value.Value, error) {
			captured = args[0]
			return value.NilValue(), nil
		},
	})

	if err := m.Interpret(c); err != nil {
		return value.NilValue(), err
	}
	return captured, nil
}

func assertValue(t *testing.T, input string, expected interface{}, actual value.Value) {
	t.Helper()
	switch want := expected.(type) {
	case float64:
		if actual.Type != value.Number || actual.NumberVal != want {
			t.Errorf("input %q: got %s, want number %v", input, value.Print(actual), want)
		}
	case bool:
		if actual.Type != value.Bool || actual.BoolVal != want {
			t.Errorf("input %q: got %s, want bool %v", input, value.Print(actual), want)
		}
	case string:
		if actual.Type != value.String || value.AsString(actual) != want {
			t.Errorf("input %q: got %s, want string %q", input, value.Print(actual), want)
		}
	case nil:
		if actual.Type != value.Nil {
			t.Errorf("input %q: got %s, want nil", input, value.Print(actual))
		}
	default:
		t.Fatalf("unsupported expected type %T", expected)
	}
}
