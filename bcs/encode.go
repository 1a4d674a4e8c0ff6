package bcs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrUnsupportedType is returned for kinds with no canonical encoding (maps, interfaces, platform-sized ints).
	ErrUnsupportedType = errors.New("bcs: unsupported type")

	// ErrUnexpectedEOF is returned when the input ends before a value is complete.
	ErrUnexpectedEOF = errors.New("bcs: unexpected end of input")

	// ErrTrailingBytes is returned by Unmarshal when the input is not fully consumed.
	ErrTrailingBytes = errors.New("bcs: trailing bytes after value")

	// ErrInvalidEncoding covers non-canonical lengths, bad booleans and bad option tags.
	ErrInvalidEncoding = errors.New("bcs: invalid encoding")
)

// Marshaler is implemented by types with a hand-written encoding, typically enums.
type Marshaler interface {
	MarshalBCS(e *Encoder) error
}

var marshalerType = reflect.TypeOf((*Marshaler)(nil)).Elem()

// Encoder accumulates the canonical encoding of a sequence of values.
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded bytes written so far.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *Encoder) WriteU16(v uint16) {
	e.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (e *Encoder) WriteU32(v uint32) {
	e.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (e *Encoder) WriteU64(v uint64) {
	e.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
}

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// WriteULEB128 writes a sequence length or enum variant index.
func (e *Encoder) WriteULEB128(v uint64) {
	for v >= 0x80 {
		e.buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	e.buf.WriteByte(byte(v))
}

// WriteBytes writes a length-prefixed byte vector.
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteULEB128(uint64(len(b)))
	e.buf.Write(b)
}

// WriteFixedBytes writes b without a length prefix.
func (e *Encoder) WriteFixedBytes(b []byte) {
	e.buf.Write(b)
}

func (e *Encoder) WriteString(s string) {
	e.WriteBytes([]byte(s))
}

// WriteOption writes the presence tag of an optional value.
func (e *Encoder) WriteOption(present bool) {
	e.WriteBool(present)
}

// Encode appends the encoding of v. A top-level pointer is dereferenced rather than
// treated as an Option.
func (e *Encoder) Encode(v any) error {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return fmt.Errorf("%w: nil value", ErrUnsupportedType)
	}
	// Make the value addressable so pointer-receiver marshalers are found.
	addressable := reflect.New(rv.Type()).Elem()
	addressable.Set(rv)
	return e.encodeValue(addressable)
}

// Marshal returns the canonical encoding of v.
func Marshal(v any) ([]byte, error) {
	e := NewEncoder()
	if err := e.Encode(v); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// MustMarshal is Marshal for values whose types are known to be encodable.
func MustMarshal(v any) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func (e *Encoder) encodeValue(rv reflect.Value) error {
	if rv.Kind() == reflect.Pointer {
		// Pointers encode Option<T>.
		if rv.IsNil() {
			e.WriteOption(false)
			return nil
		}
		e.WriteOption(true)
		return e.encodeValue(rv.Elem())
	}
	if rv.Type().Implements(marshalerType) {
		return rv.Interface().(Marshaler).MarshalBCS(e)
	}
	if rv.CanAddr() && rv.Addr().Type().Implements(marshalerType) {
		return rv.Addr().Interface().(Marshaler).MarshalBCS(e)
	}

	switch rv.Kind() {
	case reflect.Bool:
		e.WriteBool(rv.Bool())
	case reflect.Uint8:
		e.WriteU8(uint8(rv.Uint()))
	case reflect.Uint16:
		e.WriteU16(uint16(rv.Uint()))
	case reflect.Uint32:
		e.WriteU32(uint32(rv.Uint()))
	case reflect.Uint64:
		e.WriteU64(rv.Uint())
	case reflect.Int8:
		e.WriteU8(uint8(rv.Int()))
	case reflect.Int16:
		e.WriteU16(uint16(rv.Int()))
	case reflect.Int32:
		e.WriteU32(uint32(rv.Int()))
	case reflect.Int64:
		e.WriteU64(uint64(rv.Int()))
	case reflect.String:
		e.WriteString(rv.String())
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			e.WriteBytes(rv.Bytes())
			return nil
		}
		e.WriteULEB128(uint64(rv.Len()))
		for i := 0; i < rv.Len(); i++ {
			if err := e.encodeValue(rv.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := e.encodeValue(rv.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("bcs") == "-" {
				continue
			}
			if err := e.encodeValue(rv.Field(i)); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
	}
	return nil
}
