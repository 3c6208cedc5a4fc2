package local

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitpond/appkit/contracts/counter"
	"github.com/bitpond/appkit/contracts/escrow"
	"github.com/bitpond/appkit/core/ledger"
	"github.com/bitpond/appkit/core/store/kv"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/core/txn/signed"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestNode_CounterScenario(t *testing.T) {
	alice := newUser(t)
	node := makeNode(t, alice)
	ctx := context.Background()

	mgr, err := signed.NewManager(alice.signer, node)
	require.NoError(t, err)

	approval, err := node.Compile(ctx, counter.ApprovalSource())
	require.NoError(t, err)

	clear, err := node.Compile(ctx, counter.ClearSource())
	require.NoError(t, err)

	stx, err := mgr.Make(ctx, txn.TypeApplication, txn.WithApplication(0, txn.NoOp),
		txn.WithPrograms(approval.Bytecode, clear.Bytecode))
	require.NoError(t, err)

	status := submitAndProduce(t, node, stx)
	require.Equal(t, ledger.StateConfirmed, status.State)
	require.Equal(t, uint64(1), status.AppID)

	for _, cmd := range []string{"inc", "inc", "dec"} {
		stx, err = mgr.Make(ctx, txn.TypeApplication, txn.WithApplication(status.AppID, txn.NoOp),
			txn.WithArgs([]byte(cmd)))
		require.NoError(t, err)

		res := submitAndProduce(t, node, stx)
		require.Equal(t, ledger.StateConfirmed, res.State, res.Reason)
	}

	state, err := node.GetApplicationState(ctx, status.AppID)
	require.NoError(t, err)

	count, err := counter.CountOf(state)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	acct, err := node.GetAccount(ctx, alice.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000-4*DefaultMinFee), acct.Balance)
}

func TestNode_MembershipFromAnySender(t *testing.T) {
	alice, bob := newUser(t), newUser(t)
	node := makeNode(t, alice, bob)
	ctx := context.Background()

	creator, err := signed.NewManager(alice.signer, node)
	require.NoError(t, err)

	approval, err := node.Compile(ctx, counter.ApprovalSource())
	require.NoError(t, err)

	clear, err := node.Compile(ctx, counter.ClearSource())
	require.NoError(t, err)

	stx, err := creator.Make(ctx, txn.TypeApplication, txn.WithApplication(0, txn.NoOp),
		txn.WithPrograms(approval.Bytecode, clear.Bytecode))
	require.NoError(t, err)

	app := submitAndProduce(t, node, stx)
	require.Equal(t, ledger.StateConfirmed, app.State, app.Reason)

	stx, err = creator.Make(ctx, txn.TypeApplication, txn.WithApplication(app.AppID, txn.NoOp),
		txn.WithArgs([]byte("inc")))
	require.NoError(t, err)
	require.Equal(t, ledger.StateConfirmed, submitAndProduce(t, node, stx).State)

	stranger, err := signed.NewManager(bob.signer, node)
	require.NoError(t, err)

	// A close-out without an opt-in is accepted as well.
	for _, action := range []txn.OnCompletion{txn.OptIn, txn.CloseOut, txn.CloseOut, txn.OptIn} {
		stx, err = stranger.Make(ctx, txn.TypeApplication, txn.WithApplication(app.AppID, action))
		require.NoError(t, err)

		status := submitAndProduce(t, node, stx)
		require.Equal(t, ledger.StateConfirmed, status.State, "%v: %s", action, status.Reason)
	}

	state, err := node.GetApplicationState(ctx, app.AppID)
	require.NoError(t, err)

	count, err := counter.CountOf(state)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
}

func TestNode_EscrowScenario(t *testing.T) {
	alice, receiver, other := newUser(t), newUser(t), newUser(t)
	node := makeNode(t, alice)
	ctx := context.Background()

	mgr, err := signed.NewManager(alice.signer, node)
	require.NoError(t, err)

	pred := escrow.Predicate{Receiver: receiver.addr, MaxAmount: 1000}

	compiled, err := node.Compile(ctx, pred.Source())
	require.NoError(t, err)

	fundEscrow := func(amount uint64) {
		stx, err := mgr.Make(ctx, txn.TypePayment, txn.WithPayment(compiled.Address, amount))
		require.NoError(t, err)

		status := submitAndProduce(t, node, stx)
		require.Equal(t, ledger.StateConfirmed, status.State, status.Reason)
	}

	withdraw := func(to txn.Address, amount uint64) *signed.Transaction {
		stx, err := mgr.MakeLogicSigned(ctx, compiled.Bytecode, txn.TypePayment,
			txn.WithPayment(to, amount))
		require.NoError(t, err)

		return stx
	}

	fundEscrow(500)

	// The escrow authorizes the withdrawal but cannot pay the amount and the
	// fee out of 500.
	_, err = node.Submit(ctx, withdraw(receiver.addr, 1000))
	reason, ok := ledger.IsRejected(err)
	require.True(t, ok)
	require.Equal(t, "balance 500 below fee 1000", reason)

	fundEscrow(1500)

	status := submitAndProduce(t, node, withdraw(receiver.addr, 1000))
	require.Equal(t, ledger.StateConfirmed, status.State, status.Reason)

	acct, err := node.GetAccount(ctx, receiver.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), acct.Balance)

	fundEscrow(5000)

	_, err = node.Submit(ctx, withdraw(receiver.addr, 1001))
	reason, ok = ledger.IsRejected(err)
	require.True(t, ok)
	require.Contains(t, reason, escrow.ErrAmountTooHigh.Error())

	_, err = node.Submit(ctx, withdraw(other.addr, 500))
	reason, ok = ledger.IsRejected(err)
	require.True(t, ok)
	require.Contains(t, reason, escrow.ErrWrongReceiver.Error())
}

func TestNode_Submit(t *testing.T) {
	alice, bob := newUser(t), newUser(t)
	node := makeNode(t, alice)
	ctx := context.Background()

	params, err := node.SuggestedParams(ctx)
	require.NoError(t, err)

	stx := alice.pay(t, params, bob.addr, 10)

	id, err := node.Submit(ctx, stx)
	require.NoError(t, err)
	require.Equal(t, ledger.TxID(stx), id)

	_, err = node.Submit(ctx, stx)
	require.True(t, xerrors.Is(err, ledger.ErrAlreadySeen))

	status, err := node.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ledger.StatePending, status.State)

	evt, err := node.Produce()
	require.NoError(t, err)
	require.Equal(t, RoundEvent{Round: 1, Accepted: 1}, evt)

	_, err = node.Submit(ctx, stx)
	require.True(t, xerrors.Is(err, ledger.ErrAlreadySeen))

	status, err = node.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ledger.Status{State: ledger.StateConfirmed, Round: 1, LastRound: 1}, status)

	// A transaction is applied only once even if it finds its way back to the
	// pool.
	node.pool.Add(stx)

	evt, err = node.Produce()
	require.NoError(t, err)
	require.Equal(t, RoundEvent{Round: 2}, evt)

	acct, err := node.GetAccount(ctx, bob.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(10), acct.Balance)
}

func TestNode_SubmitPending(t *testing.T) {
	alice, bob := newUser(t), newUser(t)
	node := makeNode(t, alice)
	ctx := context.Background()

	params, err := node.SuggestedParams(ctx)
	require.NoError(t, err)

	_, err = node.Submit(ctx, alice.pay(t, params, bob.addr, 900_000))
	require.NoError(t, err)

	// The pending payment is taken into account.
	_, err = node.Submit(ctx, alice.pay(t, params, bob.addr, 100_000))
	_, ok := ledger.IsRejected(err)
	require.True(t, ok)
}

func TestNode_StatusRejected(t *testing.T) {
	alice, bob := newUser(t), newUser(t)
	node := makeNode(t, alice)
	ctx := context.Background()

	params, err := node.SuggestedParams(ctx)
	require.NoError(t, err)

	params.GenesisID = "other"

	stx := alice.pay(t, params, bob.addr, 10)

	_, err = node.Submit(ctx, stx)
	require.EqualError(t, err, "transaction rejected: genesis mismatch: 'other' != 'appkit-dev'")

	// Bypass the evaluation of the submission.
	node.pool.Add(stx)

	evt, err := node.Produce()
	require.NoError(t, err)
	require.Equal(t, 1, evt.Rejected)

	status, err := node.Status(ctx, ledger.TxID(stx))
	require.NoError(t, err)
	require.Equal(t, ledger.StateRejected, status.State)
	require.Equal(t, "genesis mismatch: 'other' != 'appkit-dev'", status.Reason)
}

func TestNode_Status(t *testing.T) {
	node := makeNode(t)

	_, err := node.Status(context.Background(), "abc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed id 'abc'")

	_, err = node.Status(context.Background(), "aabb")
	require.True(t, xerrors.Is(err, ledger.ErrNotFound))
}

func TestNode_GetApplicationState(t *testing.T) {
	node := makeNode(t)

	_, err := node.GetApplicationState(context.Background(), 1)
	require.True(t, xerrors.Is(err, ledger.ErrNotFound))
}

func TestNode_Compile(t *testing.T) {
	node := makeNode(t)

	_, err := node.Compile(context.Background(), "#pragma version 8\nprogram nope")
	require.EqualError(t, err, "invalid program: unknown template 'nope'")

	_, err = node.Compile(context.Background(), "program nope")
	require.EqualError(t, err, "failed to compile: missing version pragma")
}

func TestNode_SuggestedParams(t *testing.T) {
	node := makeNode(t)

	params, err := node.SuggestedParams(context.Background())
	require.NoError(t, err)
	require.Equal(t, txn.Params{
		Fee:        DefaultMinFee,
		FirstValid: 1,
		LastValid:  DefaultValidityWindow,
		GenesisID:  DefaultGenesisID,
	}, params)
}

func TestNode_Fund(t *testing.T) {
	alice := newUser(t)
	node := makeNode(t)

	require.NoError(t, node.Fund(alice.addr, 42))
	require.NoError(t, node.Fund(alice.addr, 8))

	acct, err := node.GetAccount(context.Background(), alice.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(50), acct.Balance)
}

func TestNode_Genesis(t *testing.T) {
	alice := newUser(t)
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := kv.New(path)
	require.NoError(t, err)

	genesis := Genesis{
		GenesisID: "first",
		Balances:  map[string]uint64{alice.addr.String(): 10},
	}

	node, err := NewNode(db, makeExecution(), WithGenesis(genesis))
	require.NoError(t, err)
	require.Equal(t, "first", node.GenesisID())
	require.NoError(t, db.Close())

	db, err = kv.New(path)
	require.NoError(t, err)
	defer db.Close()

	// The genesis is applied once.
	genesis.GenesisID = "second"

	node, err = NewNode(db, makeExecution(), WithGenesis(genesis))
	require.NoError(t, err)
	require.Equal(t, "first", node.GenesisID())

	acct, err := node.GetAccount(context.Background(), alice.addr)
	require.NoError(t, err)
	require.Equal(t, uint64(10), acct.Balance)

	genesis = Genesis{Balances: map[string]uint64{"abc": 1}}

	_, err = NewNode(newDB(t), makeExecution(), WithGenesis(genesis))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to initialize: genesis: ")
}

func TestNode_StartStop(t *testing.T) {
	alice, bob := newUser(t), newUser(t)
	node := makeNode(t, alice)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := node.Watch(ctx)

	params, err := node.SuggestedParams(ctx)
	require.NoError(t, err)

	_, err = node.Submit(ctx, alice.pay(t, params, bob.addr, 1))
	require.NoError(t, err)

	node.Start()
	node.Start()

	select {
	case evt := <-events:
		require.Equal(t, uint64(1), evt.Round)
		require.Equal(t, 1, evt.Accepted)
	case <-time.After(5 * time.Second):
		t.Fatal("no round produced")
	}

	require.NoError(t, node.Stop())
	require.NoError(t, node.Stop())
}

// -----------------------------------------------------------------------------
// Utility functions

func newDB(t *testing.T) kv.DB {
	db, err := kv.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func makeNode(t *testing.T, users ...user) *Node {
	genesis := Genesis{Balances: map[string]uint64{}}
	for _, u := range users {
		genesis.Balances[u.addr.String()] = 1_000_000
	}

	node, err := NewNode(newDB(t), makeExecution(),
		WithGenesis(genesis), WithRoundInterval(10*time.Millisecond))
	require.NoError(t, err)

	return node
}

func submitAndProduce(t *testing.T, node *Node, stx *signed.Transaction) ledger.Status {
	ctx := context.Background()

	id, err := node.Submit(ctx, stx)
	require.NoError(t, err)

	_, err = node.Produce()
	require.NoError(t, err)

	status, err := node.Status(ctx, id)
	require.NoError(t, err)

	return status
}
