package json

import (
	"crypto/rand"
	"testing"

	"github.com/bitpond/appkit/core/program"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/core/txn/signed"
	"github.com/bitpond/appkit/crypto/ed25519"
	"github.com/bitpond/appkit/internal/testing/fake"
	"github.com/bitpond/appkit/serde"
	"github.com/stretchr/testify/require"
)

var testParams = txn.Params{Fee: 1000, FirstValid: 1, LastValid: 10, GenesisID: "test"}

func TestTxFormat_Signed(t *testing.T) {
	format := txFormat{}
	signer := newSigner(t)

	tx, err := txn.NewTransaction(txn.TypeApplication, txn.Address{1}, testParams,
		txn.WithApplication(3, txn.NoOp),
		txn.WithArgs([]byte("inc")),
		txn.WithNote([]byte("note")))
	require.NoError(t, err)

	stx, err := signed.Sign(tx, signer)
	require.NoError(t, err)

	data, err := format.Encode(fake.NewContext(), stx)
	require.NoError(t, err)

	msg, err := format.Decode(makeContext(), data)
	require.NoError(t, err)

	decoded := msg.(*signed.Transaction)
	require.Equal(t, stx.GetID(), decoded.GetID())
	require.True(t, stx.GetPublicKey().Equal(decoded.GetPublicKey()))
	require.Equal(t, [][]byte{[]byte("inc")}, decoded.GetTransaction().GetArgs())
}

func TestTxFormat_LogicSig(t *testing.T) {
	format := txFormat{}

	bytecode := program.Encode(program.Version, "escrow", program.Params{"max": "1"})

	tx, err := txn.NewTransaction(txn.TypePayment, program.Address(bytecode), testParams,
		txn.WithPayment(txn.Address{2}, 1000),
		txn.WithCloseRemainderTo(txn.Address{3}),
		txn.WithRekeyTo(txn.Address{4}))
	require.NoError(t, err)

	stx, err := signed.NewLogicSigned(tx, bytecode)
	require.NoError(t, err)

	data, err := format.Encode(fake.NewContext(), stx)
	require.NoError(t, err)
	require.NotContains(t, string(data), "PublicKey")

	msg, err := format.Decode(makeContext(), data)
	require.NoError(t, err)

	decoded := msg.(*signed.Transaction)
	require.Equal(t, stx.GetID(), decoded.GetID())
	require.Equal(t, bytecode, decoded.GetLogicSig())
	require.Equal(t, txn.Address{3}, decoded.GetTransaction().GetCloseRemainderTo())
	require.Equal(t, txn.Address{4}, decoded.GetTransaction().GetRekeyTo())
}

func TestTxFormat_Encode(t *testing.T) {
	format := txFormat{}

	_, err := format.Encode(fake.NewContext(), fake.Message{})
	require.EqualError(t, err, "unsupported message of type 'fake.Message'")

	_, err = format.Encode(fake.NewContext(), &signed.Transaction{})
	require.EqualError(t, err, "missing transaction")

	tx, err := txn.NewTransaction(txn.TypePayment, txn.Address{1}, testParams)
	require.NoError(t, err)

	stx, err := signed.NewTransaction(tx, signed.WithSignature(fake.PublicKey{}, fake.NewBadSignature()))
	require.NoError(t, err)

	_, err = format.Encode(fake.NewContext(), stx)
	require.EqualError(t, err, fake.Err("failed to encode signature"))

	stx, err = signed.NewTransaction(tx, signed.WithLogicSig([]byte{1}))
	require.NoError(t, err)

	_, err = format.Encode(fake.NewBadContext(), stx)
	require.EqualError(t, err, fake.Err("failed to marshal"))
}

func TestTxFormat_Decode(t *testing.T) {
	format := txFormat{}

	ctx := fake.NewContext()
	ctx = serde.WithFactory(ctx, signed.PublicKeyFac{}, fake.PublicKeyFactory{})
	ctx = serde.WithFactory(ctx, signed.SignatureFac{}, fake.SignatureFactory{})

	tx, err := txn.NewTransaction(txn.TypePayment, txn.Address{1}, testParams)
	require.NoError(t, err)

	stx, err := signed.NewTransaction(tx, signed.WithSignature(fake.PublicKey{}, fake.Signature{}))
	require.NoError(t, err)

	data, err := format.Encode(fake.NewContext(), stx)
	require.NoError(t, err)

	_, err = format.Decode(fake.NewBadContext(), data)
	require.EqualError(t, err, fake.Err("failed to unmarshal"))

	msg, err := format.Decode(ctx, data)
	require.NoError(t, err)
	require.Equal(t, stx.GetID(), msg.(*signed.Transaction).GetID())

	_, err = format.Decode(ctx, []byte(`{"Transaction":{"Sender":"abc"}}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to create tx: sender: malformed address 'abc'")

	badFormat := txFormat{hashFactory: fake.NewHashFactory(fake.NewBadHash())}
	_, err = badFormat.Decode(ctx, data)
	require.EqualError(t, err,
		fake.Err("failed to create tx: couldn't fingerprint tx: couldn't write fingerprint"))

	badCtx := serde.WithFactory(ctx, signed.PublicKeyFac{}, nil)
	_, err = format.Decode(badCtx, data)
	require.EqualError(t, err, "public key: invalid factory '<nil>'")

	badCtx = serde.WithFactory(ctx, signed.PublicKeyFac{}, fake.NewBadPublicKeyFactory())
	_, err = format.Decode(badCtx, data)
	require.EqualError(t, err, fake.Err("public key"))

	badCtx = serde.WithFactory(ctx, signed.SignatureFac{}, nil)
	_, err = format.Decode(badCtx, data)
	require.EqualError(t, err, "signature: invalid factory '<nil>'")

	sender := txn.Address{1}.String()
	_, err = format.Decode(ctx, []byte(`{"Transaction":{"Type":"pay","Sender":"`+sender+`"}}`))
	require.EqualError(t, err, "invalid signed tx: signature is missing")
}

// -----------------------------------------------------------------------------
// Utility functions

func newSigner(t *testing.T) ed25519.Signer {
	seed := make([]byte, 32)

	_, err := rand.Read(seed)
	require.NoError(t, err)

	signer, err := ed25519.NewSigner(seed)
	require.NoError(t, err)

	return signer
}

func makeContext() serde.Context {
	ctx := fake.NewContext()
	ctx = serde.WithFactory(ctx, signed.PublicKeyFac{}, ed25519.NewPublicKeyFactory())
	ctx = serde.WithFactory(ctx, signed.SignatureFac{}, ed25519.NewSignatureFactory())

	return ctx
}
