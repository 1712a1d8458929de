// Package bytecode serializes and deserializes compiled chunks to the
// on-disk .izb format: a magic header, a version, and the code/constant/
// name sections of a chunk.Chunk, with function-valued constants embedding
// their own chunk recursively.
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"

	"izb/internal/chunk"
	"izb/internal/value"
)

// Magic is the four-byte file signature every .izb file begins with.
var Magic = [4]byte{'I', 'Z', 'B', 0}

// Version is the current format version. Readers reject any other value.
const Version uint32 = 1

const (
	tagNil            byte = 0
	tagBool           byte = 1
	tagNumber         byte = 2
	tagString         byte = 3
	tagArray          byte = 4
	tagMap            byte = 5
	tagSet            byte = 6
	tagFunction       byte = 7
	tagNativeFunction byte = 8
	tagClass          byte = 9
	tagInstance       byte = 10
	tagError          byte = 11
)

// Write serializes c to w in the .izb format: magic, version, then the
// chunk's code/constants/names sections.
func Write(w io.Writer, c *chunk.Chunk) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := writeU32(w, Version); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	return writeChunkBody(w, c)
}

// Read deserializes a chunk previously written by Write. It refuses to
// proceed if the magic or version do not match, without executing
// anything.
func Read(r io.Reader) (*chunk.Chunk, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("not an izb file: bad magic %x", magic)
	}
	version, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("unsupported izb version %d (expected %d)", version, Version)
	}
	return readChunkBody(r, "")
}

func writeChunkBody(w io.Writer, c *chunk.Chunk) error {
	if err := writeU32(w, uint32(len(c.Code))); err != nil {
		return err
	}
	if _, err := w.Write(c.Code); err != nil {
		return err
	}

	if err := writeU32(w, uint32(len(c.Constants))); err != nil {
		return err
	}
	for i, v := range c.Constants {
		if err := writeValue(w, v); err != nil {
			return fmt.Errorf("constant %d: %w", i, err)
		}
	}

	if err := writeU32(w, uint32(len(c.Names))); err != nil {
		return err
	}
	for _, n := range c.Names {
		if err := writeString(w, n); err != nil {
			return err
		}
	}
	return nil
}

func readChunkBody(r io.Reader, fileName string) (*chunk.Chunk, error) {
	c := chunk.New(fileName)

	codeLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read code length: %w", err)
	}
	c.Code = make([]byte, codeLen)
	if _, err := io.ReadFull(r, c.Code); err != nil {
		return nil, fmt.Errorf("read code: %w", err)
	}
	c.Lines = make([]int, codeLen)

	constN, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read constant count: %w", err)
	}
	c.Constants = make([]value.Value, constN)
	for i := uint32(0); i < constN; i++ {
		v, err := readValue(r)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		c.Constants[i] = v
	}

	nameN, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read name count: %w", err)
	}
	c.Names = make([]string, nameN)
	for i := uint32(0); i < nameN; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("name %d: %w", i, err)
		}
		c.Names[i] = s
	}
	return c, nil
}

func writeValue(w io.Writer, v value.Value) error {
	switch v.Type {
	case value.Nil:
		return writeByte(w, tagNil)
	case value.Bool:
		if err := writeByte(w, tagBool); err != nil {
			return err
		}
		b := byte(0)
		if v.BoolVal {
			b = 1
		}
		return writeByte(w, b)
	case value.Number:
		if err := writeByte(w, tagNumber); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.NumberVal)
	case value.String:
		if err := writeByte(w, tagString); err != nil {
			return err
		}
		return writeString(w, value.AsString(v))
	case value.Array:
		if err := writeByte(w, tagArray); err != nil {
			return err
		}
		arr := v.Obj.(*value.ObjArray)
		if err := writeU32(w, uint32(len(arr.Elements))); err != nil {
			return err
		}
		for _, e := range arr.Elements {
			if err := writeValue(w, e); err != nil {
				return err
			}
		}
		return nil
	case value.Map:
		if err := writeByte(w, tagMap); err != nil {
			return err
		}
		m := v.Obj.(*value.ObjMap)
		if err := writeU32(w, uint32(len(m.Entries))); err != nil {
			return err
		}
		for k, e := range m.Entries {
			if err := writeString(w, k); err != nil {
				return err
			}
			if err := writeValue(w, e); err != nil {
				return err
			}
		}
		return nil
	case value.Set:
		if err := writeByte(w, tagSet); err != nil {
			return err
		}
		s := v.Obj.(*value.ObjSet)
		if err := writeU32(w, uint32(len(s.Elements))); err != nil {
			return err
		}
		for k, e := range s.Elements {
			if err := writeString(w, k); err != nil {
				return err
			}
			if err := writeValue(w, e); err != nil {
				return err
			}
		}
		return nil
	case value.Callable:
		fn, ok := v.Obj.(*value.ObjFunction)
		if !ok {
			if err := writeByte(w, tagNativeFunction); err != nil {
				return err
			}
			named, _ := v.Obj.(interface{ Name() string })
			name := ""
			if named != nil {
				name = named.Name()
			}
			return writeString(w, name)
		}
		if err := writeByte(w, tagFunction); err != nil {
			return err
		}
		if err := writeString(w, fn.Name); err != nil {
			return err
		}
		if err := writeU32(w, uint32(len(fn.Params))); err != nil {
			return err
		}
		for _, p := range fn.Params {
			if err := writeString(w, p); err != nil {
				return err
			}
		}
		sub, ok := fn.Chunk.(*chunk.Chunk)
		if !ok {
			return fmt.Errorf("function %q has no compiled chunk", fn.Name)
		}
		return writeChunkBody(w, sub)
	case value.Class:
		if err := writeByte(w, tagClass); err != nil {
			return err
		}
		return writeClass(w, v.Obj.(*value.ObjClass))
	case value.Instance:
		return fmt.Errorf("cannot serialize an instance")
	case value.Error:
		if err := writeByte(w, tagError); err != nil {
			return err
		}
		e := v.Obj.(*value.ObjError)
		if err := writeString(w, e.Message); err != nil {
			return err
		}
		return writeString(w, e.ErrType)
	default:
		return fmt.Errorf("unsupported value type %s", v.Type)
	}
}

func writeClass(w io.Writer, c *value.ObjClass) error {
	if err := writeString(w, c.Name); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(c.Fields))); err != nil {
		return err
	}
	for _, f := range c.Fields {
		if err := writeString(w, f); err != nil {
			return err
		}
	}
	if err := writeU32(w, uint32(len(c.Defaults))); err != nil {
		return err
	}
	for name, v := range c.Defaults {
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := writeValue(w, v); err != nil {
			return err
		}
	}
	if err := writeU32(w, uint32(len(c.Methods))); err != nil {
		return err
	}
	for name, fn := range c.Methods {
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := writeValue(w, value.CallableValue(fn)); err != nil {
			return err
		}
	}
	return nil
}

func readValue(r io.Reader) (value.Value, error) {
	tag, err := readByte(r)
	if err != nil {
		return value.NilValue(), err
	}
	switch tag {
	case tagNil:
		return value.NilValue(), nil
	case tagBool:
		b, err := readByte(r)
		if err != nil {
			return value.NilValue(), err
		}
		return value.BoolValue(b != 0), nil
	case tagNumber:
		var n float64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return value.NilValue(), err
		}
		return value.NumberValue(n), nil
	case tagString:
		s, err := readString(r)
		if err != nil {
			return value.NilValue(), err
		}
		return value.StringValue(s), nil
	case tagArray:
		n, err := readU32(r)
		if err != nil {
			return value.NilValue(), err
		}
		elems := make([]value.Value, n)
		for i := uint32(0); i < n; i++ {
			e, err := readValue(r)
			if err != nil {
				return value.NilValue(), err
			}
			elems[i] = e
		}
		return value.ArrayValue(elems), nil
	case tagMap:
		n, err := readU32(r)
		if err != nil {
			return value.NilValue(), err
		}
		m := value.MapValue()
		entries := m.Obj.(*value.ObjMap).Entries
		for i := uint32(0); i < n; i++ {
			k, err := readString(r)
			if err != nil {
				return value.NilValue(), err
			}
			v, err := readValue(r)
			if err != nil {
				return value.NilValue(), err
			}
			entries[k] = v
		}
		return m, nil
	case tagSet:
		n, err := readU32(r)
		if err != nil {
			return value.NilValue(), err
		}
		s := value.SetValue()
		elems := s.Obj.(*value.ObjSet).Elements
		for i := uint32(0); i < n; i++ {
			k, err := readString(r)
			if err != nil {
				return value.NilValue(), err
			}
			v, err := readValue(r)
			if err != nil {
				return value.NilValue(), err
			}
			elems[k] = v
		}
		return s, nil
	case tagFunction:
		name, err := readString(r)
		if err != nil {
			return value.NilValue(), err
		}
		paramN, err := readU32(r)
		if err != nil {
			return value.NilValue(), err
		}
		params := make([]string, paramN)
		for i := uint32(0); i < paramN; i++ {
			p, err := readString(r)
			if err != nil {
				return value.NilValue(), err
			}
			params[i] = p
		}
		sub, err := readChunkBody(r, "")
		if err != nil {
			return value.NilValue(), err
		}
		fn := &value.ObjFunction{Name: name, Params: params, Chunk: sub}
		return value.CallableValue(fn), nil
	case tagNativeFunction:
		if _, err := readString(r); err != nil {
			return value.NilValue(), err
		}
		return value.NilValue(), fmt.Errorf("native functions must be registered at runtime")
	case tagClass:
		c, err := readClass(r)
		if err != nil {
			return value.NilValue(), err
		}
		return value.ClassValue(c), nil
	case tagInstance:
		return value.NilValue(), fmt.Errorf("instances cannot be deserialized")
	case tagError:
		msg, err := readString(r)
		if err != nil {
			return value.NilValue(), err
		}
		errType, err := readString(r)
		if err != nil {
			return value.NilValue(), err
		}
		return value.ErrorValue(&value.ObjError{Message: msg, ErrType: errType}), nil
	default:
		return value.NilValue(), fmt.Errorf("unknown value tag %d", tag)
	}
}

func readClass(r io.Reader) (*value.ObjClass, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	fieldN, err := readU32(r)
	if err != nil {
		return nil, err
	}
	fields := make([]string, fieldN)
	for i := uint32(0); i < fieldN; i++ {
		f, err := readString(r)
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}
	defaultN, err := readU32(r)
	if err != nil {
		return nil, err
	}
	defaults := make(map[string]value.Value, defaultN)
	for i := uint32(0); i < defaultN; i++ {
		fname, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		defaults[fname] = v
	}
	methodN, err := readU32(r)
	if err != nil {
		return nil, err
	}
	methods := make(map[string]*value.ObjFunction, methodN)
	for i := uint32(0); i < methodN; i++ {
		mname, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		fn, ok := v.Obj.(*value.ObjFunction)
		if !ok {
			return nil, fmt.Errorf("method %q did not deserialize to a function", mname)
		}
		methods[mname] = fn
	}
	return &value.ObjClass{Name: name, Fields: fields, Defaults: defaults, Methods: methods}, nil
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}
