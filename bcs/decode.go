package bcs

import (
	"encoding/binary"
	"fmt"
	"reflect"
)

// Unmarshaler is the decoding counterpart of Marshaler.
type Unmarshaler interface {
	UnmarshalBCS(d *Decoder) error
}

var unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()

// Decoder reads canonically encoded values from a byte slice.
type Decoder struct {
	data []byte
	pos  int
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.data) - d.pos
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, ErrUnexpectedEOF
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) ReadU8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadU16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) ReadU32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) ReadU64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadU8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: bool byte %d", ErrInvalidEncoding, b)
	}
}

// ReadULEB128 reads a length or variant index. Only canonical encodings fitting in 32 bits are accepted.
func (d *Decoder) ReadULEB128() (uint64, error) {
	var value uint64
	for shift := 0; shift < 32; shift += 7 {
		b, err := d.ReadU8()
		if err != nil {
			return 0, err
		}
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if shift > 0 && b == 0 {
				return 0, fmt.Errorf("%w: non-canonical uleb128", ErrInvalidEncoding)
			}
			if value > 0xffffffff {
				return 0, fmt.Errorf("%w: uleb128 overflow", ErrInvalidEncoding)
			}
			return value, nil
		}
	}
	return 0, fmt.Errorf("%w: uleb128 overflow", ErrInvalidEncoding)
}

func (d *Decoder) readLength() (int, error) {
	n, err := d.ReadULEB128()
	if err != nil {
		return 0, err
	}
	if n > uint64(d.Remaining()) {
		return 0, ErrUnexpectedEOF
	}
	return int(n), nil
}

// ReadBytes reads a length-prefixed byte vector. The result is a copy.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.readLength()
	if err != nil {
		return nil, err
	}
	return d.ReadFixedBytes(n)
}

// ReadFixedBytes reads exactly n bytes. The result is a copy.
func (d *Decoder) ReadFixedBytes(n int) ([]byte, error) {
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadOption reads the presence tag of an optional value.
func (d *Decoder) ReadOption() (bool, error) {
	present, err := d.ReadBool()
	if err != nil {
		return false, fmt.Errorf("%w: option tag", ErrInvalidEncoding)
	}
	return present, nil
}

// Decode reads one value into the value pointed to by v.
func (d *Decoder) Decode(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: decode target must be a non-nil pointer", ErrUnsupportedType)
	}
	return d.decodeValue(rv.Elem())
}

// Unmarshal decodes data into v and requires that every byte is consumed.
func Unmarshal(data []byte, v any) error {
	d := NewDecoder(data)
	if err := d.Decode(v); err != nil {
		return err
	}
	if d.Remaining() != 0 {
		return fmt.Errorf("%w: %d bytes", ErrTrailingBytes, d.Remaining())
	}
	return nil
}

func (d *Decoder) decodeValue(rv reflect.Value) error {
	if rv.Kind() == reflect.Pointer {
		present, err := d.ReadOption()
		if err != nil {
			return err
		}
		if !present {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		elem := reflect.New(rv.Type().Elem())
		if err := d.decodeValue(elem.Elem()); err != nil {
			return err
		}
		rv.Set(elem)
		return nil
	}
	if rv.CanAddr() && rv.Addr().Type().Implements(unmarshalerType) {
		return rv.Addr().Interface().(Unmarshaler).UnmarshalBCS(d)
	}

	switch rv.Kind() {
	case reflect.Bool:
		b, err := d.ReadBool()
		if err != nil {
			return err
		}
		rv.SetBool(b)
	case reflect.Uint8:
		v, err := d.ReadU8()
		if err != nil {
			return err
		}
		rv.SetUint(uint64(v))
	case reflect.Uint16:
		v, err := d.ReadU16()
		if err != nil {
			return err
		}
		rv.SetUint(uint64(v))
	case reflect.Uint32:
		v, err := d.ReadU32()
		if err != nil {
			return err
		}
		rv.SetUint(uint64(v))
	case reflect.Uint64:
		v, err := d.ReadU64()
		if err != nil {
			return err
		}
		rv.SetUint(v)
	case reflect.Int8:
		v, err := d.ReadU8()
		if err != nil {
			return err
		}
		rv.SetInt(int64(int8(v)))
	case reflect.Int16:
		v, err := d.ReadU16()
		if err != nil {
			return err
		}
		rv.SetInt(int64(int16(v)))
	case reflect.Int32:
		v, err := d.ReadU32()
		if err != nil {
			return err
		}
		rv.SetInt(int64(int32(v)))
	case reflect.Int64:
		v, err := d.ReadU64()
		if err != nil {
			return err
		}
		rv.SetInt(int64(v))
	case reflect.String:
		s, err := d.ReadString()
		if err != nil {
			return err
		}
		rv.SetString(s)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b, err := d.ReadBytes()
			if err != nil {
				return err
			}
			rv.SetBytes(b)
			return nil
		}
		n, err := d.readLength()
		if err != nil {
			return err
		}
		if n == 0 {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		s := reflect.MakeSlice(rv.Type(), n, n)
		for i := 0; i < n; i++ {
			if err := d.decodeValue(s.Index(i)); err != nil {
				return err
			}
		}
		rv.Set(s)
	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := d.decodeValue(rv.Index(i)); err != nil {
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
			if err := d.decodeValue(rv.Field(i)); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
	}
	return nil
}
