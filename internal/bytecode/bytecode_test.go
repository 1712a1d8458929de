package bytecode

import (
	"bytes"
	"testing"

	"izb/internal/chunk"
	"izb/internal/value"
)

// TestWriteReadHeader verifies the on-disk header matches the fixed magic
// and version bytes a reader is allowed to rely on: "IZB\0" followed by
// the little-endian u32 version 1.
func TestWriteReadHeader(t *testing.T) {
	c := chunk.New("")
	idx := c.AddConstant(value.NumberValue(5))
	c.Write(byte(chunk.OP_CONSTANT), 1)
	c.Write(byte(idx), 1)
	c.Write(byte(chunk.OP_RETURN), 1)

	var buf bytes.Buffer
	if err := Write(&buf, c); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	header := buf.Bytes()[:8]
	wantMagic := []byte{'I', 'Z', 'B', 0}
	if !bytes.Equal(header[:4], wantMagic) {
		t.Fatalf("magic = %x, want %x", header[:4], wantMagic)
	}
	wantVersion := []byte{1, 0, 0, 0}
	if !bytes.Equal(header[4:8], wantVersion) {
		t.Fatalf("version bytes = %x, want %x", header[4:8], wantVersion)
	}
}

// TestRoundTripPrimitives mirrors the end-to-end serializer scenario: a
// chunk built from primitive constants deserializes back byte-identically.
func TestRoundTripPrimitives(t *testing.T) {
	c := chunk.New("main.izb")
	c.AddConstant(value.NumberValue(5))
	c.AddConstant(value.StringValue("hello"))
	c.AddConstant(value.BoolValue(true))
	c.AddConstant(value.NilValue())
	c.AddName("x")
	c.Write(byte(chunk.OP_CONSTANT), 1)
	c.Write(0, 1)
	c.Write(byte(chunk.OP_SET_GLOBAL), 1)
	c.Write(0, 1)
	c.Write(byte(chunk.OP_RETURN), 2)

	var buf bytes.Buffer
	if err := Write(&buf, c); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	decoded, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if !bytes.Equal(decoded.Code, c.Code) {
		t.Fatalf("code mismatch: got %v, want %v", decoded.Code, c.Code)
	}
	if len(decoded.Constants) != len(c.Constants) {
		t.Fatalf("constant count mismatch: got %d, want %d", len(decoded.Constants), len(c.Constants))
	}
	if decoded.Constants[0].NumberVal != 5 {
		t.Errorf("constant 0 = %v, want 5", decoded.Constants[0])
	}
	if value.AsString(decoded.Constants[1]) != "hello" {
		t.Errorf("constant 1 = %v, want hello", decoded.Constants[1])
	}
	if len(decoded.Names) != 1 || decoded.Names[0] != "x" {
		t.Errorf("names = %v, want [x]", decoded.Names)
	}
}

// TestRoundTripNestedFunction verifies a function-valued constant embeds
// and recovers its own chunk.
func TestRoundTripNestedFunction(t *testing.T) {
	inner := chunk.New("")
	inner.AddConstant(value.NumberValue(1))
	inner.Write(byte(chunk.OP_CONSTANT), 3)
	inner.Write(0, 3)
	inner.Write(byte(chunk.OP_RETURN), 3)

	fn := &value.ObjFunction{Name: "one", Params: []string{"a", "b"}, Chunk: inner}

	outer := chunk.New("main.izb")
	outer.AddConstant(value.CallableValue(fn))
	outer.Write(byte(chunk.OP_RETURN), 1)

	var buf bytes.Buffer
	if err := Write(&buf, outer); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	decoded, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	decodedFn, ok := decoded.Constants[0].Obj.(*value.ObjFunction)
	if !ok {
		t.Fatalf("constant 0 is not a function: %T", decoded.Constants[0].Obj)
	}
	if decodedFn.Name != "one" || decodedFn.Arity() != 2 {
		t.Fatalf("function mismatch: name=%s arity=%d", decodedFn.Name, decodedFn.Arity())
	}
	sub, ok := decodedFn.Chunk.(*chunk.Chunk)
	if !ok {
		t.Fatalf("nested chunk did not decode to *chunk.Chunk")
	}
	if !bytes.Equal(sub.Code, inner.Code) {
		t.Errorf("nested code mismatch: got %v, want %v", sub.Code, inner.Code)
	}
}

// TestReadRejectsBadMagic ensures a file with a wrong signature is
// refused before any code runs.
func TestReadRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBuffer([]byte{'N', 'O', 'P', 'E', 1, 0, 0, 0})
	if _, err := Read(buf); err == nil {
		t.Fatal("expected an error for bad magic, got nil")
	}
}

// TestReadRejectsBadVersion ensures a correct magic with an unsupported
// version is refused.
func TestReadRejectsBadVersion(t *testing.T) {
	buf := bytes.NewBuffer([]byte{'I', 'Z', 'B', 0, 2, 0, 0, 0})
	if _, err := Read(buf); err == nil {
		t.Fatal("expected an error for unsupported version, got nil")
	}
}

// TestWriteRejectsInstance ensures attempting to serialize an Instance
// value is a reported error, not a panic.
func TestWriteRejectsInstance(t *testing.T) {
	class := &value.ObjClass{Name: "Point", Fields: []string{"x", "y"}}
	inst := &value.ObjInstance{Class: class, Fields: map[string]value.Value{
		"x": value.NumberValue(1),
		"y": value.NumberValue(2),
	}}
	c := chunk.New("")
	c.AddConstant(value.InstanceValue(inst))
	c.Write(byte(chunk.OP_RETURN), 1)

	var buf bytes.Buffer
	if err := Write(&buf, c); err == nil {
		t.Fatal("expected an error serializing an instance, got nil")
	}
}

// TestReadRejectsNativeFunction ensures a native-function tag on read
// fails with a diagnostic rather than fabricating a callable.
func TestReadRejectsNativeFunction(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	if err := writeU32(&buf, Version); err != nil {
		t.Fatal(err)
	}
	c := chunk.New("")
	c.Write(byte(chunk.OP_RETURN), 1)
	if err := writeU32(&buf, uint32(len(c.Code))); err != nil {
		t.Fatal(err)
	}
	buf.Write(c.Code)
	if err := writeU32(&buf, 1); err != nil {
		t.Fatal(err)
	}
	if err := writeByte(&buf, tagNativeFunction); err != nil {
		t.Fatal(err)
	}
	if err := writeString(&buf, "print"); err != nil {
		t.Fatal(err)
	}
	if err := writeU32(&buf, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := Read(&buf); err == nil {
		t.Fatal("expected an error reading a native function constant, got nil")
	}
}
