package crypto

import (
	"crypto/sha256"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// HashAlgorithm is the identifier of a hash function.
type HashAlgorithm int

const (
	// Sha256 is the SHA2 algorithm with a 256 bits digest.
	Sha256 HashAlgorithm = iota

	// Blake2b256 is the BLAKE2b algorithm with a 256 bits digest.
	Blake2b256
)

// hashFactory is a hash factory that is using SHA2 or BLAKE2 algorithms.
//
// - implements crypto.HashFactory
type hashFactory struct {
	hashType HashAlgorithm
}

// NewSha256Factory returns a new instance of the factory.
func NewSha256Factory() HashFactory {
	return hashFactory{Sha256}
}

// NewHashFactory returns a new instance of the factory.
func NewHashFactory(a HashAlgorithm) HashFactory {
	return hashFactory{a}
}

// New implements crypto.HashFactory. It returns a new Hash instance.
func (f hashFactory) New() hash.Hash {
	switch f.hashType {
	case Sha256:
		return sha256.New()
	case Blake2b256:
		// The error is only returned for keys that are too long.
		h, _ := blake2b.New256(nil)
		return h
	default:
		panic("unknown hash type")
	}
}
