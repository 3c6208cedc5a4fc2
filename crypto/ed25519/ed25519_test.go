package ed25519

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSigner_New(t *testing.T) {
	seed := []byte("0123456789abcdef0123456789abcdef")

	a, err := NewSigner(seed)
	require.NoError(t, err)

	b, err := NewSigner(seed)
	require.NoError(t, err)
	require.True(t, a.GetPublicKey().Equal(b.GetPublicKey()))

	c, err := NewSigner([]byte("another seed of enough length"))
	require.NoError(t, err)
	require.False(t, a.GetPublicKey().Equal(c.GetPublicKey()))

	_, err = NewSigner([]byte("short"))
	require.EqualError(t, err, "seed is too short: 5 < 16")

	_, err = NewSigner(seed[:MinSeedSize])
	require.NoError(t, err)
}

func TestSigner_Sign(t *testing.T) {
	signer := makeSigner(t, 1)

	sig, err := signer.Sign([]byte("txn"))
	require.NoError(t, err)
	require.NoError(t, signer.GetPublicKey().Verify([]byte("txn"), sig))

	// A signer restored from the same seed verifies the signature.
	require.NoError(t, makeSigner(t, 1).GetPublicKey().Verify([]byte("txn"), sig))

	err = signer.GetPublicKey().Verify([]byte("other txn"), sig)
	require.Error(t, err)
	require.Regexp(t, "^schnorr verify failed: ", err.Error())

	err = makeSigner(t, 2).GetPublicKey().Verify([]byte("txn"), sig)
	require.Error(t, err)

	err = signer.GetPublicKey().Verify([]byte("txn"), nil)
	require.EqualError(t, err, "invalid signature type '<nil>'")
}

func TestPublicKey_New(t *testing.T) {
	signer := makeSigner(t, 3)

	data, err := signer.GetPublicKey().MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, 32)

	pk, err := NewPublicKey(data)
	require.NoError(t, err)
	require.True(t, pk.Equal(signer.GetPublicKey()))
	require.False(t, pk.Equal(makeSigner(t, 4).GetPublicKey()))
	require.False(t, pk.Equal(nil))

	_, err = NewPublicKey(nil)
	require.Error(t, err)
	require.Regexp(t, "^couldn't unmarshal point: ", err.Error())
}

func TestFactories(t *testing.T) {
	signer := makeSigner(t, 5)

	data, err := signer.GetPublicKey().MarshalBinary()
	require.NoError(t, err)

	pk, err := signer.GetPublicKeyFactory().FromBytes(data)
	require.NoError(t, err)
	require.True(t, pk.Equal(signer.GetPublicKey()))

	_, err = NewPublicKeyFactory().FromBytes([]byte{1})
	require.Error(t, err)
	require.Regexp(t, "^failed to unmarshal the key: ", err.Error())

	sig, err := signer.Sign([]byte("txn"))
	require.NoError(t, err)

	data, err = sig.MarshalBinary()
	require.NoError(t, err)

	decoded, err := signer.GetSignatureFactory().SignatureOf(data)
	require.NoError(t, err)
	require.NoError(t, pk.Verify([]byte("txn"), decoded))

	_, err = NewSignatureFactory().SignatureOf(nil)
	require.EqualError(t, err, "empty signature")
}

// -----------------------------------------------------------------------------
// Utility functions

func makeSigner(t *testing.T, b byte) Signer {
	signer, err := NewSigner(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)

	return signer
}
