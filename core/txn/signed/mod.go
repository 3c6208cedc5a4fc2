// Package signed implements the envelope that authorizes a transaction.
//
// A transaction is authorized either by the signature of the key of the
// sender, or by a logic signature: the bytecode of a program whose address is
// the sender and that the ledger evaluates against the transaction. Replay
// protection is left to the ledger, which remembers the identifiers of the
// transactions inside their validity window.
package signed

import (
	"github.com/bitpond/appkit/core/program"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/crypto"
	"github.com/bitpond/appkit/crypto/ed25519"
	"github.com/bitpond/appkit/serde"
	"github.com/bitpond/appkit/serde/registry"
	"golang.org/x/xerrors"
)

var txFormats = registry.NewSimpleRegistry()

// RegisterTransactionFormat registers the engine for the provided format.
func RegisterTransactionFormat(f serde.Format, e serde.FormatEngine) {
	txFormats.Register(f, e)
}

// Transaction is a transaction with the proof that the sender authorized it.
//
// - implements serde.Message
type Transaction struct {
	tx     *txn.Transaction
	pubkey crypto.PublicKey
	sig    crypto.Signature
	lsig   []byte
}

type template struct {
	Transaction
}

// Option is the type of options to create a signed transaction.
type Option func(*template)

// WithSignature is an option to set the signature of the transaction and the
// public key that produced it. The signature is verified against the key.
func WithSignature(pubkey crypto.PublicKey, sig crypto.Signature) Option {
	return func(tmpl *template) {
		tmpl.pubkey = pubkey
		tmpl.sig = sig
	}
}

// WithLogicSig is an option to set the bytecode of the program authorizing the
// transaction.
func WithLogicSig(bytecode []byte) Option {
	return func(tmpl *template) {
		tmpl.lsig = bytecode
	}
}

// NewTransaction creates a signed transaction. Exactly one of the signature or
// the logic signature must be set.
func NewTransaction(tx *txn.Transaction, opts ...Option) (*Transaction, error) {
	if tx == nil {
		return nil, xerrors.New("missing transaction")
	}

	tmpl := template{
		Transaction: Transaction{tx: tx},
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	hasSig := tmpl.sig != nil || tmpl.pubkey != nil
	hasLsig := len(tmpl.lsig) > 0

	switch {
	case hasSig && hasLsig:
		return nil, xerrors.New("both signature and logic signature are set")
	case !hasSig && !hasLsig:
		return nil, xerrors.New("signature is missing")
	case hasSig:
		if tmpl.pubkey == nil || tmpl.sig == nil {
			return nil, xerrors.New("incomplete signature")
		}

		err := tmpl.pubkey.Verify(tx.GetID(), tmpl.sig)
		if err != nil {
			return nil, xerrors.Errorf("invalid signature: %v", err)
		}
	}

	return &tmpl.Transaction, nil
}

// Sign returns the transaction signed by the signer.
func Sign(tx *txn.Transaction, signer crypto.Signer) (*Transaction, error) {
	sig, err := signer.Sign(tx.GetID())
	if err != nil {
		return nil, xerrors.Errorf("signer: %v", err)
	}

	return NewTransaction(tx, WithSignature(signer.GetPublicKey(), sig))
}

// NewLogicSigned returns the transaction authorized by the program.
func NewLogicSigned(tx *txn.Transaction, bytecode []byte) (*Transaction, error) {
	return NewTransaction(tx, WithLogicSig(bytecode))
}

// GetID returns the identifier of the transaction.
func (t *Transaction) GetID() []byte {
	return t.tx.GetID()
}

// GetTransaction returns the transaction.
func (t *Transaction) GetTransaction() *txn.Transaction {
	return t.tx
}

// GetPublicKey returns the public key of the signature, or nil for a logic
// signature.
func (t *Transaction) GetPublicKey() crypto.PublicKey {
	return t.pubkey
}

// GetSignature returns the signature, or nil for a logic signature.
func (t *Transaction) GetSignature() crypto.Signature {
	return t.sig
}

// GetLogicSig returns the bytecode of the logic signature, or nil.
func (t *Transaction) GetLogicSig() []byte {
	return append([]byte(nil), t.lsig...)
}

// IsLogicSig returns true if the transaction is authorized by a program.
func (t *Transaction) IsLogicSig() bool {
	return len(t.lsig) > 0
}

// GetAuthorizer returns the address of the authority of the envelope: the
// address of the public key, or the address of the program.
func (t *Transaction) GetAuthorizer() (txn.Address, error) {
	if t.IsLogicSig() {
		return program.Address(t.lsig), nil
	}

	addr, err := txn.NewAddress(t.pubkey)
	if err != nil {
		return txn.Address{}, xerrors.Errorf("invalid public key: %v", err)
	}

	return addr, nil
}

// Serialize implements serde.Message. It returns the serialized data of the
// transaction.
func (t *Transaction) Serialize(ctx serde.Context) ([]byte, error) {
	format := txFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, t)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode: %v", err)
	}

	return data, nil
}

// PublicKeyFac is the key of the public key factory.
type PublicKeyFac struct{}

// SignatureFac is the key of the signature factory.
type SignatureFac struct{}

// TransactionFactory is a factory to deserialize transactions.
//
// - implements serde.Factory
type TransactionFactory struct {
	pubkeyFac crypto.PublicKeyFactory
	sigFac    crypto.SignatureFactory
}

// NewTransactionFactory returns a new factory.
func NewTransactionFactory() TransactionFactory {
	return TransactionFactory{
		pubkeyFac: ed25519.NewPublicKeyFactory(),
		sigFac:    ed25519.NewSignatureFactory(),
	}
}

// Deserialize implements serde.Factory. It populates the transaction from the
// data if appropriate, otherwise it returns an error.
func (f TransactionFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.TransactionOf(ctx, data)
}

// TransactionOf populates the transaction from the data if appropriate,
// otherwise it returns an error.
func (f TransactionFactory) TransactionOf(ctx serde.Context, data []byte) (*Transaction, error) {
	format := txFormats.Get(ctx.GetFormat())

	ctx = serde.WithFactory(ctx, PublicKeyFac{}, f.pubkeyFac)
	ctx = serde.WithFactory(ctx, SignatureFac{}, f.sigFac)

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode: %v", err)
	}

	tx, ok := msg.(*Transaction)
	if !ok {
		return nil, xerrors.Errorf("invalid transaction of type '%T'", msg)
	}

	return tx, nil
}
