package txn

import (
	"bytes"

	"github.com/bitpond/appkit/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/xerrors"
)

// AddressSize is the size in bytes of an address.
const AddressSize = 32

const checksumSize = 4

// Address is the identifier of an account of the ledger. It is either derived
// from a public key or from the bytecode of a logic signature program.
type Address [AddressSize]byte

// ZeroAddress is the address with only zeros. Fields that are not set in a
// transaction are equal to it.
var ZeroAddress Address

var addressHash = crypto.NewHashFactory(crypto.Blake2b256)

// Digest returns the address of the concatenation of the parts.
func Digest(parts ...[]byte) Address {
	h := addressHash.New()

	for _, part := range parts {
		// Writes of a hash never fail.
		h.Write(part)
	}

	var addr Address
	copy(addr[:], h.Sum(nil))

	return addr
}

// NewAddress returns the address derived from the public key.
func NewAddress(pubkey crypto.PublicKey) (Address, error) {
	data, err := pubkey.MarshalBinary()
	if err != nil {
		return Address{}, xerrors.Errorf("failed to marshal public key: %v", err)
	}

	return Digest(data), nil
}

// ParseAddress returns the address of the text representation. The checksum
// must match.
func ParseAddress(text string) (Address, error) {
	var addr Address

	err := addr.UnmarshalText([]byte(text))
	if err != nil {
		return Address{}, err
	}

	return addr, nil
}

// IsZero returns true if the address is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarshalText implements encoding.TextMarshaler. It returns the base58
// encoding of the address followed by a checksum.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It decodes a base58 text
// and verifies the checksum.
func (a *Address) UnmarshalText(text []byte) error {
	data, err := base58.Decode(string(text))
	if err != nil {
		return xerrors.Errorf("malformed address '%s': %v", text, err)
	}

	if len(data) != AddressSize+checksumSize {
		return xerrors.Errorf("malformed address '%s': invalid length %d",
			text, len(data))
	}

	var addr Address
	copy(addr[:], data[:AddressSize])

	if !bytes.Equal(addr.checksum(), data[AddressSize:]) {
		return xerrors.Errorf("malformed address '%s': invalid checksum", text)
	}

	*a = addr

	return nil
}

// String implements fmt.Stringer. It returns the text representation of the
// address.
func (a Address) String() string {
	data := make([]byte, 0, AddressSize+checksumSize)
	data = append(data, a[:]...)
	data = append(data, a.checksum()...)

	return base58.Encode(data)
}

func (a Address) checksum() []byte {
	digest := Digest(a[:])
	return digest[len(digest)-checksumSize:]
}
