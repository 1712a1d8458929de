// Package vm executes compiled chunks: a frame-based dispatch loop over a
// flat operand stack, a shared globals map, and a handler stack backing
// TRY/CATCH/FINALLY. It is reentrant — a native can call back into user code
// via CallValue, which recurses into the same dispatch loop.
package vm

import (
	"fmt"
	"math"

	"izb/internal/chunk"
	"izb/internal/natives"
	"izb/internal/value"
)

// MaxFrames bounds call depth; exceeding it is a language-level error, not a
// host crash.
const MaxFrames = 256

// CallFrame is one activation: the chunk it is executing, its instruction
// pointer, and the stack index its locals start at.
type CallFrame struct {
	Chunk     *chunk.Chunk
	IP        int
	StackBase int
}

// handler is one active TRY's bookkeeping: where to resume on catch or
// finally, how deep the operand stack was when the TRY was entered, and the
// name to bind the caught value to.
type handler struct {
	FrameIndex   int
	CatchIP      int // -1 if no catch clause
	FinallyIP    int // -1 if no finally clause
	StackDepth   int
	CatchVarName string
}

// VM holds all interpreter state for one program run. The operand stack is a
// growable slice (spec calls for "reserved, grows as needed"); call depth is
// a hard-capped fixed array, since runaway recursion should fail cleanly
// rather than exhaust memory.
type VM struct {
	frames     [MaxFrames]CallFrame
	frameCount int

	stack []value.Value

	globals map[string]value.Value

	handlers []handler

	fileName string
}

// New constructs a VM with the native seed globals installed.
func New(fileName string) *VM {
	return &VM{
		stack:    make([]value.Value, 0, 256),
		globals:  natives.Seed(),
		fileName: fileName,
	}
}

// Globals exposes the shared globals map, e.g. for a REPL to print bindings
// or a driver to preload arguments.
func (vm *VM) Globals() map[string]value.Value { return vm.globals }

func (vm *VM) push(v value.Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() value.Value {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack[n] = value.Value{}
	vm.stack = vm.stack[:n]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) runtimeError(format string, args ...interface{}) error {
	line := 0
	if vm.frameCount > 0 {
		f := &vm.frames[vm.frameCount-1]
		if f.IP-1 >= 0 && f.IP-1 < len(f.Chunk.Lines) {
			line = f.Chunk.Lines[f.IP-1]
		}
	}
	return fmt.Errorf("[%s:line %d] %s", vm.fileName, line, fmt.Sprintf(format, args...))
}

// Interpret runs a freshly compiled top-level chunk to completion.
func (vm *VM) Interpret(c *chunk.Chunk) error {
	vm.stack = vm.stack[:0]
	vm.handlers = vm.handlers[:0]
	vm.frameCount = 0
	vm.fileName = c.FileName

	vm.frames[0] = CallFrame{Chunk: c, IP: 0, StackBase: 0}
	vm.frameCount = 1

	_, err := vm.runFrame(0)
	return err
}

// CallValue implements natives.VM: invoke a callable or class value with
// already-evaluated arguments, the same entry point OP_CALL itself uses.
func (vm *VM) CallValue(callee value.Value, args []value.Value) (value.Value, error) {
	switch callee.Type {
	case value.Class:
		return vm.instantiate(callee.Obj.(*value.ObjClass), args)
	case value.Callable:
		var c natives.Callable
		switch fn := callee.Obj.(type) {
		case natives.Callable:
			c = fn
		case *value.ObjFunction:
			c = &natives.UserFunction{Fn: fn}
		default:
			return value.NilValue(), vm.runtimeError("value is not callable")
		}
		if arity := c.Arity(); arity >= 0 && len(args) != arity {
			return value.NilValue(), vm.runtimeError("%s expects %d argument(s) but got %d", c.Name(), arity, len(args))
		}
		return c.Call(vm, args)
	default:
		return value.NilValue(), vm.runtimeError("can only call functions and classes")
	}
}

// Throw implements natives.VM: raise a language-level exception from native
// code, to be caught by the nearest active handler in the current run chain.
func (vm *VM) Throw(v value.Value) error {
	base := vm.frameCount
	if err := vm.raise(v, base); err != nil {
		return err
	}
	return nil
}

// RunFunction runs a compiled user function to completion in a fresh frame,
// reentering the dispatch loop.
func (vm *VM) RunFunction(fn *value.ObjFunction, args []value.Value) (value.Value, error) {
	if len(args) != fn.Arity() {
		return value.NilValue(), vm.runtimeError("%s expects %d argument(s) but got %d", fn.Name, fn.Arity(), len(args))
	}
	fc, ok := fn.Chunk.(*chunk.Chunk)
	if !ok {
		return value.NilValue(), vm.runtimeError("function %s has no compiled body", fn.Name)
	}
	if vm.frameCount >= MaxFrames {
		return value.NilValue(), vm.runtimeError("call stack overflow")
	}

	base := vm.frameCount
	stackBase := len(vm.stack)
	vm.stack = append(vm.stack, args...)
	vm.frames[vm.frameCount] = CallFrame{Chunk: fc, IP: 0, StackBase: stackBase}
	vm.frameCount++

	result, err := vm.runFrame(base)
	if err != nil {
		vm.frameCount = base
		vm.stack = vm.stack[:stackBase]
		return value.NilValue(), err
	}
	return result, nil
}

// RunBoundMethod runs method with "this" (and, if the class has one,
// "super") bound in globals for the duration of the call, restoring
// whatever was bound there before so nested/recursive method calls nest
// correctly.
func (vm *VM) RunBoundMethod(inst *value.ObjInstance, method *value.ObjFunction, args []value.Value) (value.Value, error) {
	prevThis, hadThis := vm.globals["this"]
	prevSuper, hadSuper := vm.globals["super"]

	vm.globals["this"] = value.InstanceValue(inst)
	if inst.Class.Super != nil {
		vm.globals["super"] = value.ClassValue(inst.Class.Super)
	} else {
		delete(vm.globals, "super")
	}

	result, err := vm.RunFunction(method, args)

	if hadThis {
		vm.globals["this"] = prevThis
	} else {
		delete(vm.globals, "this")
	}
	if hadSuper {
		vm.globals["super"] = prevSuper
	} else {
		delete(vm.globals, "super")
	}
	return result, err
}

// instantiate builds a new instance, seeds its fields from the class
// hierarchy's declared defaults, and runs "constructor" (bound to the new
// instance) if one is defined.
func (vm *VM) instantiate(class *value.ObjClass, args []value.Value) (value.Value, error) {
	inst := &value.ObjInstance{Class: class, Fields: make(map[string]value.Value)}
	for _, name := range class.AllFields() {
		inst.Fields[name] = value.NilValue()
	}
	for k, v := range defaultsFor(class) {
		inst.Fields[k] = v
	}
	if ctor, ok := class.FindMethod("constructor"); ok {
		if _, err := vm.RunBoundMethod(inst, ctor, args); err != nil {
			return value.NilValue(), err
		}
	}
	return value.InstanceValue(inst), nil
}

// defaultsFor walks the class hierarchy superclass-first so a subclass's
// defaults win over an inherited one of the same name.
func defaultsFor(class *value.ObjClass) map[string]value.Value {
	out := make(map[string]value.Value)
	var walk func(c *value.ObjClass)
	walk = func(c *value.ObjClass) {
		if c == nil {
			return
		}
		walk(c.Super)
		for k, v := range c.Defaults {
			out[k] = v
		}
	}
	walk(class)
	return out
}

// raise walks the handler stack looking for a frame within this run
// invocation (FrameIndex >= base) that can catch exc. A handler belonging to
// an outer, still-running invocation (FrameIndex < base) is left in place
// and raise returns an error so the exception propagates out of this
// invocation's runFrame, back to whatever native call is nested inside it.
//
// A handler that is actually dispatched into (catch or finally) is left on
// vm.handlers: the matching OP_END_TRY is what pops it. Only a stale handler
// (its frame already unwound) or one with neither catch nor finally is
// popped here, mirroring the reference VM's handleException.
func (vm *VM) raise(exc value.Value, base int) error {
	for len(vm.handlers) > 0 {
		h := vm.handlers[len(vm.handlers)-1]
		if h.FrameIndex < base {
			break
		}
		if h.FrameIndex >= vm.frameCount {
			vm.handlers = vm.handlers[:len(vm.handlers)-1]
			continue
		}

		vm.frameCount = h.FrameIndex + 1
		frame := &vm.frames[vm.frameCount-1]
		vm.stack = vm.stack[:h.StackDepth]

		if h.CatchIP >= 0 {
			vm.push(exc)
			if h.CatchVarName != "" {
				vm.globals[h.CatchVarName] = exc
			}
			frame.IP = h.CatchIP
			return nil
		}
		if h.FinallyIP >= 0 {
			frame.IP = h.FinallyIP
			return nil
		}

		vm.handlers = vm.handlers[:len(vm.handlers)-1]
	}
	return fmt.Errorf("uncaught exception: %s", value.Print(exc))
}

// runFrame executes opcodes until the frame stack unwinds back down to
// base, returning the value left behind by that frame's RETURN. It is the
// one dispatch loop every entry point (Interpret, RunFunction,
// RunBoundMethod) funnels through.
func (vm *VM) runFrame(base int) (value.Value, error) {
	for vm.frameCount > base {
		frame := &vm.frames[vm.frameCount-1]
		c := frame.Chunk

		if frame.IP >= len(c.Code) {
			vm.frameCount--
			return value.NilValue(), nil
		}

		op := chunk.OpCode(c.Code[frame.IP])
		frame.IP++

		var err error

		switch op {
		case chunk.OP_CONSTANT:
			idx := c.Code[frame.IP]
			frame.IP++
			vm.push(c.Constants[idx])

		case chunk.OP_NIL:
			vm.push(value.NilValue())
		case chunk.OP_TRUE:
			vm.push(value.BoolValue(true))
		case chunk.OP_FALSE:
			vm.push(value.BoolValue(false))
		case chunk.OP_POP:
			vm.pop()

		case chunk.OP_ADD:
			err = vm.binaryAdd()
		case chunk.OP_SUB:
			err = vm.binaryArith(func(a, b float64) float64 { return a - b })
		case chunk.OP_MUL:
			err = vm.binaryArith(func(a, b float64) float64 { return a * b })
		case chunk.OP_DIV:
			err = vm.binaryArith(func(a, b float64) float64 { return a / b })
		case chunk.OP_MOD:
			err = vm.binaryArith(math.Mod)
		case chunk.OP_NEGATE:
			err = vm.negate()
		case chunk.OP_NOT:
			v := vm.pop()
			vm.push(value.BoolValue(!value.IsTruthy(v)))

		case chunk.OP_EQUAL:
			b, a := vm.pop(), vm.pop()
			vm.push(value.BoolValue(value.Equals(a, b)))
		case chunk.OP_NOT_EQUAL:
			b, a := vm.pop(), vm.pop()
			vm.push(value.BoolValue(!value.Equals(a, b)))
		case chunk.OP_GREATER:
			err = vm.compare(func(a, b float64) bool { return a > b })
		case chunk.OP_GREATER_EQUAL:
			err = vm.compare(func(a, b float64) bool { return a >= b })
		case chunk.OP_LESS:
			err = vm.compare(func(a, b float64) bool { return a < b })
		case chunk.OP_LESS_EQUAL:
			err = vm.compare(func(a, b float64) bool { return a <= b })

		case chunk.OP_GET_GLOBAL:
			name := c.Names[c.Code[frame.IP]]
			frame.IP++
			v, ok := vm.globals[name]
			if !ok {
				err = vm.runtimeError("undefined variable %q", name)
				break
			}
			vm.push(v)
		case chunk.OP_SET_GLOBAL:
			name := c.Names[c.Code[frame.IP]]
			frame.IP++
			vm.globals[name] = vm.peek(0)

		case chunk.OP_GET_LOCAL:
			slot := int(c.Code[frame.IP])
			frame.IP++
			vm.push(vm.stack[frame.StackBase+slot])
		case chunk.OP_SET_LOCAL:
			slot := int(c.Code[frame.IP])
			frame.IP++
			vm.stack[frame.StackBase+slot] = vm.peek(0)

		case chunk.OP_INDEX:
			err = vm.index()
		case chunk.OP_SET_INDEX:
			err = vm.setIndex()

		case chunk.OP_JUMP:
			offset := vm.readU16(c, frame)
			frame.IP += int(offset)
		case chunk.OP_JUMP_IF_FALSE:
			offset := vm.readU16(c, frame)
			if !value.IsTruthy(vm.peek(0)) {
				frame.IP += int(offset)
			}
		case chunk.OP_LOOP:
			offset := vm.readU16(c, frame)
			frame.IP -= int(offset)

		case chunk.OP_CALL:
			argCount := int(c.Code[frame.IP])
			frame.IP++
			err = vm.call(argCount, base)

		case chunk.OP_RETURN:
			result := vm.pop()
			vm.stack = vm.stack[:frame.StackBase]
			vm.frameCount--
			if vm.frameCount == base {
				return result, nil
			}
			vm.push(result)

		case chunk.OP_PRINT:
			fmt.Println(value.Print(vm.pop()))

		case chunk.OP_TRY:
			vm.pushHandler(c, frame)

		case chunk.OP_THROW:
			exc := vm.pop()
			if rerr := vm.raise(exc, base); rerr != nil {
				return value.NilValue(), rerr
			}
			continue

		case chunk.OP_END_TRY:
			if len(vm.handlers) > 0 {
				vm.handlers = vm.handlers[:len(vm.handlers)-1]
			}

		case chunk.OP_GET_PROPERTY:
			err = vm.getProperty(c, frame)
		case chunk.OP_SET_PROPERTY:
			err = vm.setProperty(c, frame)
		case chunk.OP_GET_SUPER_METHOD:
			err = vm.getSuperMethod(c, frame)

		default:
			err = vm.runtimeError("unknown opcode %d", byte(op))
		}

		if err != nil {
			if rerr := vm.raise(value.StringValue(err.Error()), base); rerr != nil {
				return value.NilValue(), rerr
			}
		}
	}
	return value.NilValue(), nil
}

func (vm *VM) readU16(c *chunk.Chunk, frame *CallFrame) uint16 {
	hi, lo := c.Code[frame.IP], c.Code[frame.IP+1]
	frame.IP += 2
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) pushHandler(c *chunk.Chunk, frame *CallFrame) {
	catchDist := vm.readU16(c, frame)
	finallyDist := vm.readU16(c, frame)
	varIdx := c.Code[frame.IP]
	frame.IP++
	base := frame.IP

	h := handler{
		FrameIndex: vm.frameCount - 1,
		CatchIP:    -1,
		FinallyIP:  -1,
		StackDepth: len(vm.stack),
	}
	if catchDist != 0 {
		h.CatchIP = base + int(catchDist)
		h.CatchVarName = c.Names[varIdx]
	}
	if finallyDist != 0 {
		h.FinallyIP = base + int(finallyDist)
	}
	vm.handlers = append(vm.handlers, h)
}

func (vm *VM) binaryAdd() error {
	b, a := vm.pop(), vm.pop()
	if a.Type == value.Number && b.Type == value.Number {
		vm.push(value.NumberValue(a.NumberVal + b.NumberVal))
		return nil
	}
	if a.Type == value.String && b.Type == value.String {
		vm.push(value.StringValue(value.AsString(a) + value.AsString(b)))
		return nil
	}
	return vm.runtimeError("operands to + must be two numbers or two strings")
}

func (vm *VM) binaryArith(f func(a, b float64) float64) error {
	b, a := vm.pop(), vm.pop()
	if a.Type != value.Number || b.Type != value.Number {
		return vm.runtimeError("operands must be numbers")
	}
	vm.push(value.NumberValue(f(a.NumberVal, b.NumberVal)))
	return nil
}

func (vm *VM) compare(f func(a, b float64) bool) error {
	b, a := vm.pop(), vm.pop()
	if a.Type != value.Number || b.Type != value.Number {
		return vm.runtimeError("operands must be numbers")
	}
	vm.push(value.BoolValue(f(a.NumberVal, b.NumberVal)))
	return nil
}

func (vm *VM) negate() error {
	v := vm.pop()
	if v.Type != value.Number {
		return vm.runtimeError("operand to unary - must be a number")
	}
	vm.push(value.NumberValue(-v.NumberVal))
	return nil
}

func (vm *VM) index() error {
	idx := vm.pop()
	left := vm.pop()
	switch left.Type {
	case value.Array:
		arr := left.Obj.(*value.ObjArray)
		if idx.Type != value.Number {
			return vm.runtimeError("array index must be a number")
		}
		i, ok := value.IsWholeNumberIndex(idx.NumberVal)
		if !ok || i >= len(arr.Elements) {
			return vm.runtimeError("array index out of range")
		}
		vm.push(arr.Elements[i])
		return nil
	case value.Map:
		m := left.Obj.(*value.ObjMap)
		if idx.Type != value.String {
			return vm.runtimeError("map index must be a string")
		}
		v, ok := m.Entries[value.AsString(idx)]
		if !ok {
			vm.push(value.NilValue())
			return nil
		}
		vm.push(v)
		return nil
	default:
		return vm.runtimeError("type %s does not support indexing", left.Type)
	}
}

func (vm *VM) setIndex() error {
	val := vm.pop()
	idx := vm.pop()
	left := vm.pop()
	switch left.Type {
	case value.Array:
		arr := left.Obj.(*value.ObjArray)
		if idx.Type != value.Number {
			return vm.runtimeError("array index must be a number")
		}
		i, ok := value.IsWholeNumberIndex(idx.NumberVal)
		if !ok || i >= len(arr.Elements) {
			return vm.runtimeError("array index out of range")
		}
		arr.Elements[i] = val
		vm.push(val)
		return nil
	case value.Map:
		m := left.Obj.(*value.ObjMap)
		if idx.Type != value.String {
			return vm.runtimeError("map index must be a string")
		}
		m.Entries[value.AsString(idx)] = val
		vm.push(val)
		return nil
	default:
		return vm.runtimeError("type %s does not support index assignment", left.Type)
	}
}

func (vm *VM) call(argCount int, base int) error {
	callee := vm.peek(argCount)
	args := make([]value.Value, argCount)
	copy(args, vm.stack[len(vm.stack)-argCount:])
	vm.stack = vm.stack[:len(vm.stack)-argCount-1]

	result, err := vm.CallValue(callee, args)
	if err != nil {
		return err
	}
	vm.push(result)
	return nil
}

func (vm *VM) getProperty(c *chunk.Chunk, frame *CallFrame) error {
	name := c.Names[c.Code[frame.IP]]
	frame.IP++
	obj := vm.pop()
	if obj.Type != value.Instance {
		return vm.runtimeError("only instances have properties")
	}
	inst := obj.Obj.(*value.ObjInstance)
	if f, ok := inst.Fields[name]; ok {
		vm.push(f)
		return nil
	}
	if m, ok := inst.Class.FindMethod(name); ok {
		vm.push(value.CallableValue(&natives.BoundMethod{Receiver: inst, Method: m}))
		return nil
	}
	return vm.runtimeError("undefined property %q", name)
}

func (vm *VM) setProperty(c *chunk.Chunk, frame *CallFrame) error {
	name := c.Names[c.Code[frame.IP]]
	frame.IP++
	val := vm.pop()
	obj := vm.pop()
	if obj.Type != value.Instance {
		return vm.runtimeError("only instances have properties")
	}
	inst := obj.Obj.(*value.ObjInstance)
	inst.Fields[name] = val
	vm.push(val)
	return nil
}

func (vm *VM) getSuperMethod(c *chunk.Chunk, frame *CallFrame) error {
	name := c.Names[c.Code[frame.IP]]
	frame.IP++
	thisVal := vm.pop()
	superVal := vm.pop()
	if superVal.Type != value.Class || thisVal.Type != value.Instance {
		return vm.runtimeError("super is only valid inside a method with a superclass")
	}
	super := superVal.Obj.(*value.ObjClass)
	inst := thisVal.Obj.(*value.ObjInstance)
	m, ok := super.FindMethod(name)
	if !ok {
		return vm.runtimeError("undefined superclass method %q", name)
	}
	vm.push(value.CallableValue(&natives.BoundMethod{Receiver: inst, Method: m}))
	return nil
}
