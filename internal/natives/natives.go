// Package natives defines the uniform native-callable contract shared by
// user functions, bound methods, and native host functions, plus the seed
// globals the driver installs before running a program. A class value does
// not implement this contract: the VM's CallValue instantiates it directly.
package natives

import (
	"fmt"
	"time"

	"github.com/ncruces/go-strftime"

	"izb/internal/value"
)

// VM is the subset of the virtual machine's surface a native needs: the
// ability to invoke a callable value (for map/filter/reduce-style natives)
// and to raise a language-level exception. Kept as an interface here,
// rather than importing package vm directly, to avoid a natives<->vm
// import cycle: vm imports natives for the Callable contract, so natives
// cannot import vm back.
type VM interface {
	CallValue(callee value.Value, args []value.Value) (value.Value, error)
	Throw(v value.Value) error
}

// Callable is the native-callable contract: name/arity/invoke. Arity -1
// means variadic (any argument count is accepted).
type Callable interface {
	Name() string
	Arity() int
	Call(vm VM, args []value.Value) (value.Value, error)
}

// Native wraps a Go function as a Callable.
type Native struct {
	NameField  string
	ArityField int
	Fn         func(vm VM, args []value.Value) (value.Value, error)
}

func (n *Native) Name() string  { return n.NameField }
func (n *Native) Arity() int    { return n.ArityField }
func (n *Native) Call(vm VM, args []value.Value) (value.Value, error) {
	return n.Fn(vm, args)
}

// UserFunction adapts a compiled value.ObjFunction to the Callable
// contract by delegating execution back to the VM, which knows how to run
// a Chunk in a nested call frame.
type UserFunction struct {
	Fn *value.ObjFunction
}

func (u *UserFunction) Name() string { return u.Fn.Name }
func (u *UserFunction) Arity() int   { return u.Fn.Arity() }
func (u *UserFunction) Call(vm VM, args []value.Value) (value.Value, error) {
	runner, ok := vm.(interface {
		RunFunction(*value.ObjFunction, []value.Value) (value.Value, error)
	})
	if !ok {
		return value.NilValue(), fmt.Errorf("host does not support user function calls")
	}
	return runner.RunFunction(u.Fn, args)
}

// BoundMethod wraps (receiver, method) so that inside the method body
// "this" resolves to Receiver.
type BoundMethod struct {
	Receiver *value.ObjInstance
	Method   *value.ObjFunction
}

func (b *BoundMethod) Name() string { return b.Method.Name }
func (b *BoundMethod) Arity() int   { return b.Method.Arity() }
func (b *BoundMethod) Call(vm VM, args []value.Value) (value.Value, error) {
	runner, ok := vm.(interface {
		RunBoundMethod(*value.ObjInstance, *value.ObjFunction, []value.Value) (value.Value, error)
	})
	if !ok {
		return value.NilValue(), fmt.Errorf("host does not support method calls")
	}
	return runner.RunBoundMethod(b.Receiver, b.Method, args)
}

// Seed returns the flat globals every driver installs before running a
// program: print, len, clock, the hidden array/map literal constructors
// the compiler targets, and the "time" native module map referenced by the
// module allowlist.
func Seed() map[string]value.Value {
	globals := map[string]value.Value{
		"print":           value.CallableValue(&Native{NameField: "print", ArityField: 1, Fn: nativePrint}),
		"len":             value.CallableValue(&Native{NameField: "len", ArityField: 1, Fn: nativeLen}),
		"clock":           value.CallableValue(&Native{NameField: "clock", ArityField: 0, Fn: nativeClock}),
		"__array_literal": value.CallableValue(&Native{NameField: "__array_literal", ArityField: -1, Fn: nativeArrayLiteral}),
		"__map_literal":   value.CallableValue(&Native{NameField: "__map_literal", ArityField: -1, Fn: nativeMapLiteral}),
	}
	globals["time"] = timeModule()
	return globals
}

// nativeArrayLiteral backs array-literal expressions: the compiler pushes
// every element and calls this with them in source order.
func nativeArrayLiteral(vm VM, args []value.Value) (value.Value, error) {
	elems := make([]value.Value, len(args))
	copy(elems, args)
	return value.ArrayValue(elems), nil
}

// nativeMapLiteral backs map-literal expressions: the compiler pushes
// key, value, key, value... in source order; every key must evaluate to a
// String.
func nativeMapLiteral(vm VM, args []value.Value) (value.Value, error) {
	m := value.MapValue()
	entries := m.Obj.(*value.ObjMap).Entries
	for i := 0; i+1 < len(args); i += 2 {
		if args[i].Type != value.String {
			return value.NilValue(), fmt.Errorf("map literal key must be a string")
		}
		entries[value.AsString(args[i])] = args[i+1]
	}
	return m, nil
}

func nativePrint(vm VM, args []value.Value) (value.Value, error) {
	fmt.Println(value.Print(args[0]))
	return value.NilValue(), nil
}

func nativeLen(vm VM, args []value.Value) (value.Value, error) {
	switch args[0].Type {
	case value.String:
		return value.NumberValue(float64(len(value.AsString(args[0])))), nil
	case value.Array:
		return value.NumberValue(float64(len(args[0].Obj.(*value.ObjArray).Elements))), nil
	case value.Map:
		return value.NumberValue(float64(len(args[0].Obj.(*value.ObjMap).Entries))), nil
	case value.Set:
		return value.NumberValue(float64(len(args[0].Obj.(*value.ObjSet).Elements))), nil
	default:
		return value.NilValue(), fmt.Errorf("len() requires a string, array, map, or set")
	}
}

func nativeClock(vm VM, args []value.Value) (value.Value, error) {
	return value.NumberValue(float64(time.Now().UnixNano()) / 1e9), nil
}

// timeModule returns the "time" native module map: now() and format(),
// the one primitive of the module allowlist this core wires for real.
func timeModule() value.Value {
	m := value.MapValue()
	entries := m.Obj.(*value.ObjMap).Entries
	entries["now"] = value.CallableValue(&Native{
		NameField: "time.now", ArityField: 0,
		Fn: func(vm VM, args []value.Value) (value.Value, error) {
			return value.NumberValue(float64(time.Now().Unix())), nil
		},
	})
	entries["format"] = value.CallableValue(&Native{
		NameField: "time.format", ArityField: 2,
		Fn: func(vm VM, args []value.Value) (value.Value, error) {
			if args[0].Type != value.Number || args[1].Type != value.String {
				return value.NilValue(), fmt.Errorf("time.format(epochSeconds, layout) requires (number, string)")
			}
			t := time.Unix(int64(args[0].NumberVal), 0).UTC()
			formatted, err := strftime.Format(value.AsString(args[1]), t)
			if err != nil {
				return value.NilValue(), fmt.Errorf("time.format: %w", err)
			}
			return value.StringValue(formatted), nil
		},
	})
	return m
}
