package execution

import (
	"encoding/binary"
	"encoding/json"

	"golang.org/x/xerrors"
)

// ValueType is the type of a value of the state of an application.
type ValueType byte

const (
	// TypeUint is the type of an unsigned 64-bit integer.
	TypeUint ValueType = 0x01

	// TypeBytes is the type of a byte slice.
	TypeBytes ValueType = 0x02
)

// Value is a value of the state of an application.
type Value struct {
	Type  ValueType
	Uint  uint64
	Bytes []byte
}

// NewUint returns an integer value.
func NewUint(v uint64) Value {
	return Value{Type: TypeUint, Uint: v}
}

// NewBytes returns a byte slice value.
func NewBytes(data []byte) Value {
	return Value{Type: TypeBytes, Bytes: data}
}

// Encode returns the binary representation of the value that is stored.
func (v Value) Encode() []byte {
	switch v.Type {
	case TypeUint:
		buffer := make([]byte, 9)
		buffer[0] = byte(TypeUint)
		binary.BigEndian.PutUint64(buffer[1:], v.Uint)

		return buffer
	default:
		return append([]byte{byte(TypeBytes)}, v.Bytes...)
	}
}

// DecodeValue returns the value of the binary representation.
func DecodeValue(data []byte) (Value, error) {
	if len(data) == 0 {
		return Value{}, xerrors.New("empty value")
	}

	switch ValueType(data[0]) {
	case TypeUint:
		if len(data) != 9 {
			return Value{}, xerrors.Errorf("invalid integer length %d", len(data)-1)
		}

		return NewUint(binary.BigEndian.Uint64(data[1:])), nil
	case TypeBytes:
		return NewBytes(append([]byte{}, data[1:]...)), nil
	default:
		return Value{}, xerrors.Errorf("unknown value type %#x", data[0])
	}
}

type valueJSON struct {
	Type  string `json:"type"`
	Uint  uint64 `json:"uint,omitempty"`
	Bytes []byte `json:"bytes,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	m := valueJSON{Type: "bytes", Bytes: v.Bytes}
	if v.Type == TypeUint {
		m = valueJSON{Type: "uint", Uint: v.Uint}
	}

	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var m valueJSON

	err := json.Unmarshal(data, &m)
	if err != nil {
		return err
	}

	switch m.Type {
	case "uint":
		*v = NewUint(m.Uint)
	case "bytes":
		*v = NewBytes(m.Bytes)
	default:
		return xerrors.Errorf("unknown value type '%s'", m.Type)
	}

	return nil
}
