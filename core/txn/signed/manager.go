package signed

import (
	"context"

	"github.com/bitpond/appkit"
	"github.com/bitpond/appkit/core/program"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/crypto"
	"github.com/rs/xid"
	"golang.org/x/xerrors"
)

// Client is the interface the manager is using to get the parameters of new
// transactions. It allows a local implementation, or through a network client.
type Client interface {
	SuggestedParams(ctx context.Context) (txn.Params, error)
}

// TransactionManager is a manager to create signed transactions. Every
// transaction gets a unique note so that two transactions with the same
// intent, like two increments of a counter, have different identifiers and
// are not taken for a replay.
type TransactionManager struct {
	client Client
	signer crypto.Signer
	addr   txn.Address
}

// NewManager creates a new transaction manager.
func NewManager(signer crypto.Signer, client Client) (*TransactionManager, error) {
	addr, err := txn.NewAddress(signer.GetPublicKey())
	if err != nil {
		return nil, xerrors.Errorf("failed to derive address: %v", err)
	}

	mgr := &TransactionManager{
		client: client,
		signer: signer,
		addr:   addr,
	}

	return mgr, nil
}

// NewLogicManager creates a manager without a signer. It can only create
// transactions authorized by a program.
func NewLogicManager(client Client) *TransactionManager {
	return &TransactionManager{
		client: client,
	}
}

// GetAddress returns the address of the signer, or the zero address if the
// manager has none.
func (mgr *TransactionManager) GetAddress() txn.Address {
	return mgr.addr
}

// Make creates a transaction sent by the signer and signs it.
func (mgr *TransactionManager) Make(ctx context.Context, typ txn.Type,
	opts ...txn.Option) (*Transaction, error) {

	if mgr.signer == nil {
		return nil, xerrors.New("missing signer")
	}

	tx, err := mgr.makeTx(ctx, typ, mgr.addr, opts)
	if err != nil {
		return nil, err
	}

	stx, err := Sign(tx, mgr.signer)
	if err != nil {
		return nil, xerrors.Errorf("failed to sign: %v", err)
	}

	return stx, nil
}

// MakeLogicSigned creates a transaction sent by the address of the program and
// authorized by it.
func (mgr *TransactionManager) MakeLogicSigned(ctx context.Context, bytecode []byte,
	typ txn.Type, opts ...txn.Option) (*Transaction, error) {

	tx, err := mgr.makeTx(ctx, typ, program.Address(bytecode), opts)
	if err != nil {
		return nil, err
	}

	stx, err := NewLogicSigned(tx, bytecode)
	if err != nil {
		return nil, xerrors.Errorf("failed to authorize: %v", err)
	}

	return stx, nil
}

func (mgr *TransactionManager) makeTx(ctx context.Context, typ txn.Type,
	sender txn.Address, opts []txn.Option) (*txn.Transaction, error) {

	params, err := mgr.client.SuggestedParams(ctx)
	if err != nil {
		return nil, xerrors.Errorf("client: %v", err)
	}

	note := xid.New()

	// The note goes first so that an explicit note option takes precedence.
	opts = append([]txn.Option{txn.WithNote(note.Bytes())}, opts...)

	tx, err := txn.NewTransaction(typ, sender, params, opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to create tx: %v", err)
	}

	appkit.Logger.Debug().
		Str("note", note.String()).
		Uint64("first", params.FirstValid).
		Uint64("last", params.LastValid).
		Msg("transaction created")

	return tx, nil
}
