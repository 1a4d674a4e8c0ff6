package bcs

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weather struct {
	Location    string
	Temperature uint64
}

type intentMessage struct {
	Scope       uint8
	TimestampMs uint64
	Data        weather
}

func TestMarshal_KnownVector(t *testing.T) {
	msg := intentMessage{
		Scope:       0,
		TimestampMs: 1744038900000,
		Data:        weather{Location: "San Francisco", Temperature: 13},
	}

	encoded, err := Marshal(msg)
	require.NoError(t, err)
	assert.Equal(t, "0020b1d110960100000d53616e204672616e636973636f0d00000000000000", hex.EncodeToString(encoded))

	var decoded intentMessage
	require.NoError(t, Unmarshal(encoded, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestULEB128(t *testing.T) {
	cases := map[uint64]string{
		0:         "00",
		1:         "01",
		127:       "7f",
		128:       "8001",
		300:       "ac02",
		16384:     "808001",
		0xffffffff: "ffffffff0f",
	}
	for value, expected := range cases {
		e := NewEncoder()
		e.WriteULEB128(value)
		assert.Equal(t, expected, hex.EncodeToString(e.Bytes()), "encoding %d", value)

		got, err := NewDecoder(e.Bytes()).ReadULEB128()
		require.NoError(t, err)
		assert.Equal(t, value, got)
	}

	_, err := NewDecoder([]byte{0x80, 0x00}).ReadULEB128()
	assert.ErrorIs(t, err, ErrInvalidEncoding, "non-canonical zero continuation must be rejected")

	_, err = NewDecoder([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}).ReadULEB128()
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

type withOptions struct {
	Name    *string
	Payload []byte
	Fixed   [4]byte
	Items   []uint16
	Skipped string `bcs:"-"`
	Flag    bool
}

func TestOptionsVectorsAndArrays(t *testing.T) {
	name := "seal"
	v := withOptions{
		Name:    &name,
		Payload: []byte{0xaa, 0xbb},
		Fixed:   [4]byte{1, 2, 3, 4},
		Items:   []uint16{1, 0x0102},
		Skipped: "not encoded",
		Flag:    true,
	}

	encoded, err := Marshal(&v)
	require.NoError(t, err)
	assert.Equal(t, "01047365616c02aabb01020304020100020101", hex.EncodeToString(encoded))

	var decoded withOptions
	require.NoError(t, Unmarshal(encoded, &decoded))
	require.NotNil(t, decoded.Name)
	assert.Equal(t, name, *decoded.Name)
	assert.Equal(t, v.Payload, decoded.Payload)
	assert.Equal(t, v.Fixed, decoded.Fixed)
	assert.Equal(t, v.Items, decoded.Items)
	assert.Empty(t, decoded.Skipped)
	assert.True(t, decoded.Flag)

	v.Name = nil
	encoded, err = Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, byte(0), encoded[0])
}

type color uint8

type shape struct {
	Kind  color
	Sides uint8
}

func (s *shape) MarshalBCS(e *Encoder) error {
	e.WriteULEB128(uint64(s.Kind))
	e.WriteU8(s.Sides)
	return nil
}

func (s *shape) UnmarshalBCS(d *Decoder) error {
	kind, err := d.ReadULEB128()
	if err != nil {
		return err
	}
	s.Kind = color(kind)
	s.Sides, err = d.ReadU8()
	return err
}

func TestCustomMarshalers(t *testing.T) {
	shapes := []shape{{Kind: 2, Sides: 3}, {Kind: 200, Sides: 4}}

	encoded, err := Marshal(shapes)
	require.NoError(t, err)
	assert.Equal(t, "020203c80104", hex.EncodeToString(encoded))

	var decoded []shape
	require.NoError(t, Unmarshal(encoded, &decoded))
	assert.Equal(t, shapes, decoded)
}

func TestUnmarshalErrors(t *testing.T) {
	var s string
	assert.ErrorIs(t, Unmarshal([]byte{0x05, 'a'}, &s), ErrUnexpectedEOF)

	var u uint16
	assert.ErrorIs(t, Unmarshal([]byte{1, 2, 3}, &u), ErrTrailingBytes)

	var b bool
	assert.ErrorIs(t, Unmarshal([]byte{2}, &b), ErrInvalidEncoding)

	var m map[string]string
	_, err := Marshal(m)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	assert.ErrorIs(t, Unmarshal([]byte{0}, u), ErrUnsupportedType, "non-pointer target")
}
