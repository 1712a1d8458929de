// Package value defines the tagged Value union shared by the compiler, the
// virtual machine, and the chunk serializer. Heap-shaped variants (Array,
// Map, Set, Instance, Class, Error) are represented by pointers so that
// copying a Value is always a cheap, shared-reference copy; Go's garbage
// collector stands in for the reference-counted heap of the original design.
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type Type int

const (
	Nil Type = iota
	Bool
	Number
	String
	Array
	Map
	Set
	Callable
	Class
	Instance
	Error
)

func (t Type) String() string {
	switch t {
	case Nil:
		return "nil"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Map:
		return "map"
	case Set:
		return "set"
	case Callable:
		return "function"
	case Class:
		return "class"
	case Instance:
		return "instance"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Value is a tagged union. Exactly one of BoolVal/NumberVal/Obj is
// meaningful depending on Type; Obj carries every heap-shaped payload,
// including plain Go strings for the String variant.
type Value struct {
	Type     Type
	BoolVal  bool
	NumberVal float64
	Obj      interface{}
}

func NilValue() Value              { return Value{Type: Nil} }
func BoolValue(b bool) Value       { return Value{Type: Bool, BoolVal: b} }
func NumberValue(n float64) Value  { return Value{Type: Number, NumberVal: n} }
func StringValue(s string) Value   { return Value{Type: String, Obj: s} }

func ArrayValue(elems []Value) Value {
	return Value{Type: Array, Obj: &ObjArray{Elements: elems}}
}

func MapValue() Value {
	return Value{Type: Map, Obj: &ObjMap{Entries: make(map[string]Value)}}
}

func SetValue() Value {
	return Value{Type: Set, Obj: &ObjSet{Elements: make(map[string]Value)}}
}

func ClassValue(c *ObjClass) Value       { return Value{Type: Class, Obj: c} }
func InstanceValue(i *ObjInstance) Value { return Value{Type: Instance, Obj: i} }
func ErrorValue(e *ObjError) Value       { return Value{Type: Error, Obj: e} }

// CallableValue wraps anything implementing the native-callable contract
// (user functions, natives, bound methods) defined in package natives. It
// takes interface{} rather than that interface type to avoid value<->natives
// import cycle; callers type-assert back to natives.Callable.
func CallableValue(c interface{}) Value { return Value{Type: Callable, Obj: c} }

// ObjArray is the shared mutable backing of an Array value.
type ObjArray struct {
	Elements []Value
}

// ObjMap is the shared mutable backing of a Map value (String keys only).
type ObjMap struct {
	Entries map[string]Value
}

// ObjSet is the shared mutable backing of a Set value. Elements maps each
// member's canonical key (see CanonicalKey) to the original Value so the
// set can be enumerated without losing the member's original shape.
type ObjSet struct {
	Elements map[string]Value
}

// ObjFunction is the compiled shape of a user function or method: a name,
// an ordered parameter list, and the Chunk it compiles to. Chunk is
// interface{} to avoid an import cycle between value and chunk: compiler
// and vm type-assert it back to *chunk.Chunk.
type ObjFunction struct {
	Name   string
	Params []string
	Chunk  interface{}
}

func (f *ObjFunction) Arity() int { return len(f.Params) }

// ObjClass holds a method table, declared field names, and a per-field
// default-value map (the compiler leaves it empty, so declared fields start
// as nil; the serializer writes and reads it); it is itself a
// Value (tagged Class, not Callable) because invoking it has bespoke
// construction semantics the VM implements directly rather than through
// the generic callable contract.
type ObjClass struct {
	Name     string
	Super    *ObjClass
	Fields   []string
	Defaults map[string]Value
	Methods  map[string]*ObjFunction
}

// FindMethod looks up a method on the class, then its superclass chain.
func (c *ObjClass) FindMethod(name string) (*ObjFunction, bool) {
	for cls := c; cls != nil; cls = cls.Super {
		if m, ok := cls.Methods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// AllFields collects field names declared anywhere in the class hierarchy,
// superclass first.
func (c *ObjClass) AllFields() []string {
	var fields []string
	if c.Super != nil {
		fields = append(fields, c.Super.AllFields()...)
	}
	fields = append(fields, c.Fields...)
	return fields
}

// ObjInstance is a class instance: a back-reference to its class plus a
// mutable field map.
type ObjInstance struct {
	Class  *ObjClass
	Fields map[string]Value
}

// ObjError is a serializable record produced by user code (distinct from
// host-originated runtime failures, which surface as plain String values).
type ObjError struct {
	Message string
	ErrType string
}

// IsTruthy implements the language's truthiness rule: everything is truthy
// except Nil and the boolean false.
func IsTruthy(v Value) bool {
	switch v.Type {
	case Nil:
		return false
	case Bool:
		return v.BoolVal
	default:
		return true
	}
}

func AsString(v Value) string {
	s, _ := v.Obj.(string)
	return s
}

// Equals implements value equality: Number compares by IEEE-754 value,
// String by byte content, heap kinds (Array/Map/Set/Instance/Class/Error/
// Callable) by reference identity.
func Equals(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case Nil:
		return true
	case Bool:
		return a.BoolVal == b.BoolVal
	case Number:
		return a.NumberVal == b.NumberVal
	case String:
		return AsString(a) == AsString(b)
	default:
		return a.Obj == b.Obj
	}
}

// CanonicalKey renders a primitive Value (Nil, Bool, Number, String) as a
// string suitable for Set membership. Numbers are rendered in fixed-point
// form with 15 digits after the decimal point so that values
// which are mathematically equal but reached through different floating
// point paths (e.g. 0.1+0.2 vs 0.3) still canonicalize identically enough
// for the language's everyday numeric literals, while staying distinct
// from adjacent integers. Non-primitive values are not valid Set members
// and return ok=false.
func CanonicalKey(v Value) (string, bool) {
	switch v.Type {
	case Nil:
		return "nil", true
	case Bool:
		if v.BoolVal {
			return "bool:true", true
		}
		return "bool:false", true
	case Number:
		return "num:" + strconv.FormatFloat(v.NumberVal, 'f', 15, 64), true
	case String:
		return "str:" + AsString(v), true
	default:
		return "", false
	}
}

// IsWholeNumberIndex reports whether n is a non-negative whole number that
// fits an Array index, per the Indexing invariant.
func IsWholeNumberIndex(n float64) (int, bool) {
	if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	if n != math.Trunc(n) {
		return 0, false
	}
	return int(n), true
}

// Print renders v the way PRINT writes it to stdout.
func Print(v Value) string {
	switch v.Type {
	case Nil:
		return "nil"
	case Bool:
		return strconv.FormatBool(v.BoolVal)
	case Number:
		return formatNumber(v.NumberVal)
	case String:
		return AsString(v)
	case Array:
		arr := v.Obj.(*ObjArray)
		parts := make([]string, len(arr.Elements))
		for i, e := range arr.Elements {
			parts[i] = quoteIfString(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Map:
		m := v.Obj.(*ObjMap)
		keys := make([]string, 0, len(m.Entries))
		for k := range m.Entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + quoteIfString(m.Entries[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case Set:
		s := v.Obj.(*ObjSet)
		parts := make([]string, 0, len(s.Elements))
		for _, e := range s.Elements {
			parts = append(parts, quoteIfString(e))
		}
		sort.Strings(parts)
		return "set{" + strings.Join(parts, ", ") + "}"
	case Callable:
		if named, ok := v.Obj.(interface{ Name() string }); ok {
			return fmt.Sprintf("<fn %s>", named.Name())
		}
		return "<fn>"
	case Class:
		return fmt.Sprintf("<class %s>", v.Obj.(*ObjClass).Name)
	case Instance:
		return fmt.Sprintf("<instance %s>", v.Obj.(*ObjInstance).Class.Name)
	case Error:
		e := v.Obj.(*ObjError)
		if e.ErrType != "" {
			return fmt.Sprintf("%s: %s", e.ErrType, e.Message)
		}
		return e.Message
	default:
		return "<?>"
	}
}

func quoteIfString(v Value) string {
	if v.Type == String {
		return "\"" + AsString(v) + "\""
	}
	return Print(v)
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && !math.IsInf(n, 0) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
