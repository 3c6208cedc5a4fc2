// Package mnemonic restores signers from a BIP-39 recovery phrase.
//
// The phrase is the only credential of an operator. It is resolved from the
// process configuration and never leaves the client.
package mnemonic

import (
	"strings"

	"github.com/bitpond/appkit/crypto"
	"github.com/bitpond/appkit/crypto/ed25519"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/xerrors"
)

// EnvMnemonic is the environment variable holding the recovery phrase.
const EnvMnemonic = "MNEMONIC"

// entropySize is the number of bits of entropy of a new phrase, which results
// in a 24 words phrase.
const entropySize = 256

var (
	// ErrMissing is returned when no phrase is configured.
	ErrMissing = xerrors.New("recovery phrase is not set")

	// ErrInvalid is returned when the phrase is not a valid BIP-39 mnemonic.
	ErrInvalid = xerrors.New("invalid recovery phrase")
)

// New generates a new random recovery phrase.
func New() (string, error) {
	entropy, err := bip39.NewEntropy(entropySize)
	if err != nil {
		return "", xerrors.Errorf("entropy: %v", err)
	}

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", xerrors.Errorf("mnemonic: %v", err)
	}

	return phrase, nil
}

// Normalize trims and collapses the whitespaces of the phrase.
func Normalize(phrase string) string {
	return strings.Join(strings.Fields(phrase), " ")
}

// NewSigner returns the signer derived from the recovery phrase.
func NewSigner(phrase string) (crypto.Signer, error) {
	phrase = Normalize(phrase)
	if phrase == "" {
		return nil, ErrMissing
	}

	if !bip39.IsMnemonicValid(phrase) {
		return nil, ErrInvalid
	}

	seed := bip39.NewSeed(phrase, "")

	signer, err := ed25519.NewSigner(seed)
	if err != nil {
		return nil, xerrors.Errorf("failed to derive key: %v", err)
	}

	return signer, nil
}
