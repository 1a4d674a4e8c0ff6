package sui

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AddressLength is the byte length of Sui addresses and object ids.
const AddressLength = 32

// ErrInvalidAddressFormat is returned when a string is not a 0x-prefixed hex address.
var ErrInvalidAddressFormat = errors.New("invalid address format")

// Address identifies an account. Its string form is "0x" followed by 64 lowercase hex digits.
type Address [AddressLength]byte

// ObjectID identifies an on-chain object. It shares the address space and encoding.
type ObjectID = Address

// ParseAddress parses a 0x-prefixed hex address. Short forms such as "0x2" are
// left-padded with zeros.
func ParseAddress(s string) (Address, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return Address{}, fmt.Errorf("%w: %q: missing 0x prefix", ErrInvalidAddressFormat, s)
	}
	digits := s[2:]
	if len(digits) == 0 || len(digits) > 2*AddressLength {
		return Address{}, fmt.Errorf("%w: %q: bad length", ErrInvalidAddressFormat, s)
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddressFormat, s, err)
	}

	var addr Address
	copy(addr[AddressLength-len(raw):], raw)
	return addr, nil
}

// MustParseAddress is ParseAddress for constants.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// AddressFromBytes requires exactly AddressLength bytes.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddressFormat, AddressLength, len(b))
	}
	var addr Address
	copy(addr[:], b)
	return addr, nil
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
