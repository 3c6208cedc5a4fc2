package signed

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/bitpond/appkit/core/program"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/crypto/ed25519"
	"github.com/bitpond/appkit/internal/testing/fake"
	"github.com/bitpond/appkit/serde"
	"github.com/stretchr/testify/require"
)

var testParams = txn.Params{Fee: 1000, FirstValid: 1, LastValid: 10, GenesisID: "test"}

func TestTransaction_Sign(t *testing.T) {
	signer := newSigner(t)
	tx := makeTx(t, txn.Address{1})

	stx, err := Sign(tx, signer)
	require.NoError(t, err)
	require.Equal(t, tx, stx.GetTransaction())
	require.Equal(t, tx.GetID(), stx.GetID())
	require.Equal(t, signer.GetPublicKey(), stx.GetPublicKey())
	require.NotNil(t, stx.GetSignature())
	require.False(t, stx.IsLogicSig())
	require.Nil(t, stx.GetLogicSig())

	addr, err := stx.GetAuthorizer()
	require.NoError(t, err)

	expected, err := txn.NewAddress(signer.GetPublicKey())
	require.NoError(t, err)
	require.Equal(t, expected, addr)

	_, err = Sign(tx, fake.NewBadSigner(nil))
	require.EqualError(t, err, fake.Err("signer"))

	// A signature of another transaction is refused.
	other := makeTx(t, txn.Address{2})
	_, err = NewTransaction(other, WithSignature(signer.GetPublicKey(), stx.GetSignature()))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid signature: ")
}

func TestTransaction_LogicSig(t *testing.T) {
	bytecode := program.Encode(program.Version, "escrow", nil)
	tx := makeTx(t, program.Address(bytecode))

	stx, err := NewLogicSigned(tx, bytecode)
	require.NoError(t, err)
	require.True(t, stx.IsLogicSig())
	require.Equal(t, bytecode, stx.GetLogicSig())
	require.Nil(t, stx.GetPublicKey())
	require.Nil(t, stx.GetSignature())

	addr, err := stx.GetAuthorizer()
	require.NoError(t, err)
	require.Equal(t, program.Address(bytecode), addr)
}

func TestNewTransaction_Errors(t *testing.T) {
	tx := makeTx(t, txn.Address{1})

	_, err := NewTransaction(nil)
	require.EqualError(t, err, "missing transaction")

	_, err = NewTransaction(tx)
	require.EqualError(t, err, "signature is missing")

	_, err = NewTransaction(tx, WithSignature(fake.PublicKey{}, fake.Signature{}),
		WithLogicSig([]byte{1}))
	require.EqualError(t, err, "both signature and logic signature are set")

	_, err = NewTransaction(tx, WithSignature(fake.PublicKey{}, nil))
	require.EqualError(t, err, "incomplete signature")

	_, err = NewTransaction(tx, WithSignature(fake.NewInvalidPublicKey(), fake.Signature{}))
	require.EqualError(t, err, fake.Err("invalid signature"))

	stx, err := NewTransaction(tx, WithSignature(fake.NewBadPublicKey(), fake.Signature{}))
	require.Nil(t, stx)
	require.EqualError(t, err, fake.Err("invalid signature"))
}

func TestTransaction_GetAuthorizer(t *testing.T) {
	stx := &Transaction{pubkey: fake.NewBadPublicKey()}

	_, err := stx.GetAuthorizer()
	require.EqualError(t, err,
		fake.Err("invalid public key: failed to marshal public key"))
}

func TestTransaction_Serialize(t *testing.T) {
	stx, err := NewLogicSigned(makeTx(t, txn.Address{1}), []byte{1})
	require.NoError(t, err)

	_, err = stx.Serialize(fake.NewContext())
	require.EqualError(t, err, "failed to encode: format 'JSON': unknown format")
}

func TestTransactionFactory_Deserialize(t *testing.T) {
	factory := NewTransactionFactory()

	_, err := factory.Deserialize(fake.NewContext(), []byte(`{}`))
	require.EqualError(t, err, "failed to decode: format 'JSON': unknown format")

	RegisterTransactionFormat(fakeFormatName, fakeFormat{})

	_, err = factory.Deserialize(serde.NewContext(fakeEngine{}), []byte(`{}`))
	require.EqualError(t, err, "invalid transaction of type 'fake.Message'")
}

func TestManager_Make(t *testing.T) {
	signer := newSigner(t)

	mgr, err := NewManager(signer, fakeClient{params: testParams})
	require.NoError(t, err)

	addr, err := txn.NewAddress(signer.GetPublicKey())
	require.NoError(t, err)
	require.Equal(t, addr, mgr.GetAddress())

	opts := []txn.Option{txn.WithApplication(1, txn.NoOp), txn.WithArgs([]byte("inc"))}

	first, err := mgr.Make(context.Background(), txn.TypeApplication, opts...)
	require.NoError(t, err)
	require.Equal(t, addr, first.GetTransaction().GetSender())
	require.Equal(t, testParams, first.GetTransaction().GetParams())
	require.Len(t, first.GetTransaction().GetNote(), 12)

	// The same intent gives a different transaction.
	second, err := mgr.Make(context.Background(), txn.TypeApplication, opts...)
	require.NoError(t, err)
	require.NotEqual(t, first.GetID(), second.GetID())

	_, err = NewManager(fake.NewSigner(nil), nil)
	require.NoError(t, err)

	mgr.client = fakeClient{err: fake.GetError()}
	_, err = mgr.Make(context.Background(), txn.TypePayment)
	require.EqualError(t, err, fake.Err("client"))

	mgr.client = fakeClient{params: testParams}
	_, err = mgr.Make(context.Background(), txn.Type(""))
	require.EqualError(t, err, "failed to create tx: invalid transaction: unknown type ''")

	mgr.client = fakeClient{params: testParams}
	mgr.signer = fake.NewBadSigner(nil)
	_, err = mgr.Make(context.Background(), txn.TypePayment)
	require.EqualError(t, err, fake.Err("failed to sign: signer"))
}

func TestManager_MakeLogicSigned(t *testing.T) {
	mgr, err := NewManager(newSigner(t), fakeClient{params: testParams})
	require.NoError(t, err)

	bytecode := program.Encode(program.Version, "escrow", nil)

	stx, err := mgr.MakeLogicSigned(context.Background(), bytecode, txn.TypePayment,
		txn.WithPayment(txn.Address{2}, 10))
	require.NoError(t, err)
	require.Equal(t, program.Address(bytecode), stx.GetTransaction().GetSender())
	require.Equal(t, bytecode, stx.GetLogicSig())

	_, err = mgr.MakeLogicSigned(context.Background(), nil, txn.TypePayment)
	require.EqualError(t, err, "failed to authorize: signature is missing")

	mgr = NewLogicManager(fakeClient{params: testParams})
	require.True(t, mgr.GetAddress().IsZero())

	stx, err = mgr.MakeLogicSigned(context.Background(), bytecode, txn.TypePayment,
		txn.WithPayment(txn.Address{2}, 10))
	require.NoError(t, err)
	require.Equal(t, program.Address(bytecode), stx.GetTransaction().GetSender())

	_, err = mgr.Make(context.Background(), txn.TypePayment)
	require.EqualError(t, err, "missing signer")
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

func makeTx(t *testing.T, sender txn.Address) *txn.Transaction {
	tx, err := txn.NewTransaction(txn.TypePayment, sender, testParams,
		txn.WithPayment(txn.Address{9}, 5))
	require.NoError(t, err)

	return tx
}

type fakeClient struct {
	params txn.Params
	err    error
}

func (c fakeClient) SuggestedParams(context.Context) (txn.Params, error) {
	return c.params, c.err
}

const fakeFormatName = serde.Format("FAKE")

type fakeEngine struct {
	fake.ContextEngine
}

func (fakeEngine) GetFormat() serde.Format {
	return fakeFormatName
}

type fakeFormat struct{}

func (fakeFormat) Encode(serde.Context, serde.Message) ([]byte, error) {
	return nil, nil
}

func (fakeFormat) Decode(serde.Context, []byte) (serde.Message, error) {
	return fake.Message{}, nil
}
