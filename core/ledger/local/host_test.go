package local

import (
	"crypto/rand"
	"testing"

	"github.com/bitpond/appkit/contracts/counter"
	"github.com/bitpond/appkit/contracts/escrow"
	"github.com/bitpond/appkit/core/execution"
	"github.com/bitpond/appkit/core/execution/native"
	"github.com/bitpond/appkit/core/program"
	"github.com/bitpond/appkit/core/store"
	"github.com/bitpond/appkit/core/store/mem"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/core/txn/signed"
	"github.com/bitpond/appkit/crypto"
	"github.com/bitpond/appkit/crypto/ed25519"
	"github.com/stretchr/testify/require"
)

var testParams = txn.Params{
	Fee:        10,
	FirstValid: 1,
	LastValid:  10,
	GenesisID:  "test",
}

func TestHost_Payment(t *testing.T) {
	h := makeHost()
	alice, bob := newUser(t), newUser(t)

	snap := mem.NewSnapshot(nil)
	fund(t, snap, alice.addr, 1000)

	res, err := h.Apply(snap, alice.pay(t, testParams, bob.addr, 100), 1)
	require.NoError(t, err)
	require.True(t, res.accepted, res.reason)

	requireBalance(t, snap, alice.addr, 890)
	requireBalance(t, snap, bob.addr, 100)
}

func TestHost_Rejections(t *testing.T) {
	h := makeHost()
	alice, bob, poor := newUser(t), newUser(t), newUser(t)

	snap := mem.NewSnapshot(nil)
	fund(t, snap, alice.addr, 1000)
	fund(t, snap, poor.addr, 5)

	withParams := func(fn func(*txn.Params)) txn.Params {
		params := testParams
		fn(&params)
		return params
	}

	testCases := []struct {
		tx     *signed.Transaction
		round  uint64
		reason string
	}{
		{
			tx:     alice.pay(t, withParams(func(p *txn.Params) { p.GenesisID = "other" }), bob.addr, 1),
			round:  1,
			reason: "genesis mismatch: 'other' != 'test'",
		},
		{
			tx:     alice.pay(t, testParams, bob.addr, 1),
			round:  11,
			reason: "round 11 outside of validity window [1, 10]",
		},
		{
			tx:     alice.pay(t, withParams(func(p *txn.Params) { p.LastValid = 200 }), bob.addr, 1),
			round:  1,
			reason: "validity window is longer than 100 rounds",
		},
		{
			tx:     alice.pay(t, withParams(func(p *txn.Params) { p.Fee = 5 }), bob.addr, 1),
			round:  1,
			reason: "fee 5 below minimum 10",
		},
		{
			tx:     bob.sign(t, alice.makeTx(t, txn.TypePayment, testParams, txn.WithPayment(bob.addr, 1))),
			round:  1,
			reason: bob.addr.String() + " is not authorized to send for " + alice.addr.String(),
		},
		{
			tx:     poor.pay(t, testParams, bob.addr, 1),
			round:  1,
			reason: "balance 5 below fee 10",
		},
		{
			tx:     alice.pay(t, testParams, bob.addr, 991),
			round:  1,
			reason: "balance 990 below amount 991",
		},
		{
			tx: alice.sign(t, alice.makeTx(t, txn.TypePayment, testParams,
				txn.WithPayment(bob.addr, 1), txn.WithCloseRemainderTo(alice.addr))),
			round:  1,
			reason: "cannot close to the sender",
		},
		{
			tx:     alice.call(t, testParams, txn.WithApplication(7, txn.NoOp)),
			round:  1,
			reason: "application 7 not found",
		},
		{
			tx: alice.call(t, testParams, txn.WithApplication(0, txn.NoOp),
				txn.WithPrograms([]byte("abc"), nil)),
			round:  1,
			reason: "invalid program: invalid bytecode: invalid magic",
		},
	}

	for i, tc := range testCases {
		res, err := h.Apply(mem.NewSnapshot(snap), tc.tx, tc.round)
		require.NoError(t, err, i)
		require.False(t, res.accepted, i)
		require.Equal(t, tc.reason, res.reason, i)
	}

	requireBalance(t, snap, alice.addr, 1000)
}

func TestHost_CloseRemainderTo(t *testing.T) {
	h := makeHost()
	alice, bob, carol := newUser(t), newUser(t), newUser(t)

	snap := mem.NewSnapshot(nil)
	fund(t, snap, alice.addr, 1000)

	stx := alice.sign(t, alice.makeTx(t, txn.TypePayment, testParams,
		txn.WithPayment(bob.addr, 100), txn.WithCloseRemainderTo(carol.addr)))

	res, err := h.Apply(snap, stx, 1)
	require.NoError(t, err)
	require.True(t, res.accepted, res.reason)

	requireBalance(t, snap, alice.addr, 0)
	requireBalance(t, snap, bob.addr, 100)
	requireBalance(t, snap, carol.addr, 890)

	value, err := snap.Get(accountKey(alice.addr))
	require.NoError(t, err)
	require.Nil(t, value)
}

func TestHost_Rekey(t *testing.T) {
	h := makeHost()
	alice, bob := newUser(t), newUser(t)

	snap := mem.NewSnapshot(nil)
	fund(t, snap, alice.addr, 1000)

	stx := alice.sign(t, alice.makeTx(t, txn.TypePayment, testParams,
		txn.WithPayment(bob.addr, 0), txn.WithRekeyTo(bob.addr)))

	res, err := h.Apply(snap, stx, 1)
	require.NoError(t, err)
	require.True(t, res.accepted, res.reason)

	acct, err := readAccount(snap, alice.addr)
	require.NoError(t, err)
	require.Equal(t, bob.addr, acct.authAddr)

	// Alice cannot sign for her account anymore.
	res, err = h.Apply(snap, alice.pay(t, testParams, bob.addr, 1), 1)
	require.NoError(t, err)
	require.False(t, res.accepted)

	// Bob can, and gives the authority back.
	stx = bob.sign(t, alice.makeTx(t, txn.TypePayment, testParams,
		txn.WithPayment(bob.addr, 1), txn.WithRekeyTo(alice.addr)))

	res, err = h.Apply(snap, stx, 1)
	require.NoError(t, err)
	require.True(t, res.accepted, res.reason)

	acct, err = readAccount(snap, alice.addr)
	require.NoError(t, err)
	require.True(t, acct.authAddr.IsZero())
}

func TestHost_Counter(t *testing.T) {
	h := makeHost()
	alice, bob := newUser(t), newUser(t)

	snap := mem.NewSnapshot(nil)
	fund(t, snap, alice.addr, 1000)
	fund(t, snap, bob.addr, 1000)

	approval, clear := compileCounter(t)

	apply := func(stx *signed.Transaction) outcome {
		stage := mem.NewSnapshot(snap)

		res, err := h.Apply(stage, stx, 1)
		require.NoError(t, err)

		if res.accepted {
			require.NoError(t, stage.Apply(snap))
		}

		return res
	}

	res := apply(alice.call(t, testParams, txn.WithApplication(0, txn.NoOp),
		txn.WithPrograms(approval, clear)))
	require.True(t, res.accepted, res.reason)
	require.Equal(t, uint64(1), res.appID)
	requireCount(t, snap, 1, 0)

	res = apply(bob.call(t, testParams, txn.WithApplication(1, txn.NoOp),
		txn.WithArgs([]byte("inc"))))
	require.True(t, res.accepted, res.reason)
	requireCount(t, snap, 1, 1)

	res = apply(alice.call(t, testParams, txn.WithApplication(1, txn.NoOp),
		txn.WithArgs([]byte("dec"))))
	require.True(t, res.accepted, res.reason)
	requireCount(t, snap, 1, 0)

	res = apply(alice.call(t, testParams, txn.WithApplication(1, txn.NoOp),
		txn.WithArgs([]byte("dec"))))
	require.False(t, res.accepted)
	require.Equal(t, "application 1 rejected: count underflow", res.reason)
	requireCount(t, snap, 1, 0)

	// Membership is open to any sender in any order.
	res = apply(bob.call(t, testParams, txn.WithApplication(1, txn.CloseOut)))
	require.True(t, res.accepted, res.reason)

	res = apply(bob.call(t, testParams, txn.WithApplication(1, txn.OptIn)))
	require.True(t, res.accepted, res.reason)

	isMember, err := snap.Get(memberKey(1, bob.addr))
	require.NoError(t, err)
	require.NotNil(t, isMember)

	res = apply(bob.call(t, testParams, txn.WithApplication(1, txn.OptIn)))
	require.True(t, res.accepted, res.reason)

	res = apply(bob.call(t, testParams, txn.WithApplication(1, txn.CloseOut)))
	require.True(t, res.accepted, res.reason)

	isMember, err = snap.Get(memberKey(1, bob.addr))
	require.NoError(t, err)
	require.Nil(t, isMember)

	res = apply(bob.call(t, testParams, txn.WithApplication(1, txn.ClearState)))
	require.True(t, res.accepted, res.reason)
	requireCount(t, snap, 1, 0)

	res = apply(bob.call(t, testParams, txn.WithApplication(1, txn.Update),
		txn.WithPrograms(approval, clear)))
	require.Equal(t, "application 1 rejected: sender is not the creator", res.reason)

	res = apply(alice.call(t, testParams, txn.WithApplication(1, txn.Update),
		txn.WithPrograms(approval, clear)))
	require.True(t, res.accepted, res.reason)

	res = apply(bob.call(t, testParams, txn.WithApplication(1, txn.Delete)))
	require.Equal(t, "application 1 rejected: sender is not the creator", res.reason)
	requireCount(t, snap, 1, 0)

	res = apply(alice.call(t, testParams, txn.WithApplication(1, txn.Delete)))
	require.True(t, res.accepted, res.reason)

	_, found, err := readApp(snap, 1)
	require.NoError(t, err)
	require.False(t, found)

	res = apply(alice.call(t, testParams, txn.WithApplication(1, txn.NoOp),
		txn.WithArgs([]byte("inc"))))
	require.Equal(t, "application 1 not found", res.reason)

	// Identifiers are never reused.
	res = apply(alice.call(t, testParams, txn.WithApplication(0, txn.NoOp),
		txn.WithPrograms(approval, clear)))
	require.True(t, res.accepted, res.reason)
	require.Equal(t, uint64(2), res.appID)
}

func TestHost_Escrow(t *testing.T) {
	h := makeHost()
	alice, bob, carol := newUser(t), newUser(t), newUser(t)

	pred := escrow.Predicate{Receiver: bob.addr, MaxAmount: 1000}

	prog, err := program.Compile(pred.Source())
	require.NoError(t, err)

	snap := mem.NewSnapshot(nil)
	fund(t, snap, prog.Address(), 5000)

	withdraw := func(to txn.Address, amount uint64, opts ...txn.Option) *signed.Transaction {
		opts = append([]txn.Option{txn.WithPayment(to, amount)}, opts...)

		tx, err := txn.NewTransaction(txn.TypePayment, prog.Address(), testParams, opts...)
		require.NoError(t, err)

		stx, err := signed.NewLogicSigned(tx, prog.Bytecode)
		require.NoError(t, err)

		return stx
	}

	res, err := h.Apply(mem.NewSnapshot(snap), withdraw(bob.addr, 1000), 1)
	require.NoError(t, err)
	require.True(t, res.accepted, res.reason)

	testCases := []struct {
		tx     *signed.Transaction
		reason string
	}{
		{withdraw(bob.addr, 1001), "logic signature rejected: amount above maximum"},
		{withdraw(carol.addr, 500), "logic signature rejected: wrong receiver"},
		{withdraw(bob.addr, 1, txn.WithCloseRemainderTo(carol.addr)), "logic signature rejected: close remainder to is set"},
		{withdraw(bob.addr, 1, txn.WithRekeyTo(carol.addr)), "logic signature rejected: rekey to is set"},
	}

	for _, tc := range testCases {
		res, err := h.Apply(mem.NewSnapshot(snap), tc.tx, 1)
		require.NoError(t, err)
		require.False(t, res.accepted)
		require.Contains(t, res.reason, tc.reason)
	}

	// A regular signature cannot spend the funds of the escrow.
	tx, err := txn.NewTransaction(txn.TypePayment, prog.Address(), testParams,
		txn.WithPayment(bob.addr, 1))
	require.NoError(t, err)

	res, err = h.Apply(mem.NewSnapshot(snap), alice.sign(t, tx), 1)
	require.NoError(t, err)
	require.Equal(t, alice.addr.String()+" is not authorized to send for "+prog.Address().String(),
		res.reason)
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

func makeHost() host {
	return host{
		exec:      makeExecution(),
		genesisID: "test",
		minFee:    10,
		window:    100,
	}
}

func makeExecution() *native.Service {
	exec := native.NewExecution()
	counter.RegisterContract(exec)
	escrow.RegisterContract(exec)

	return exec
}

func compileCounter(t *testing.T) (approval, clear []byte) {
	prog, err := program.Compile(counter.ApprovalSource())
	require.NoError(t, err)

	clearProg, err := program.Compile(counter.ClearSource())
	require.NoError(t, err)

	return prog.Bytecode, clearProg.Bytecode
}

type user struct {
	signer crypto.Signer
	addr   txn.Address
}

func newUser(t *testing.T) user {
	signer := newSigner(t)

	addr, err := txn.NewAddress(signer.GetPublicKey())
	require.NoError(t, err)

	return user{signer: signer, addr: addr}
}

func (u user) makeTx(t *testing.T, typ txn.Type, params txn.Params, opts ...txn.Option) *txn.Transaction {
	tx, err := txn.NewTransaction(typ, u.addr, params, opts...)
	require.NoError(t, err)

	return tx
}

func (u user) sign(t *testing.T, tx *txn.Transaction) *signed.Transaction {
	stx, err := signed.Sign(tx, u.signer)
	require.NoError(t, err)

	return stx
}

func (u user) pay(t *testing.T, params txn.Params, to txn.Address, amount uint64) *signed.Transaction {
	return u.sign(t, u.makeTx(t, txn.TypePayment, params, txn.WithPayment(to, amount)))
}

func (u user) call(t *testing.T, params txn.Params, opts ...txn.Option) *signed.Transaction {
	return u.sign(t, u.makeTx(t, txn.TypeApplication, params, opts...))
}

func fund(t *testing.T, snap store.Snapshot, addr txn.Address, amount uint64) {
	res, err := credit(snap, addr, amount)
	require.NoError(t, err)
	require.True(t, res.accepted)
}

func requireBalance(t *testing.T, snap store.Readable, addr txn.Address, expected uint64) {
	acct, err := readAccount(snap, addr)
	require.NoError(t, err)
	require.Equal(t, expected, acct.balance)
}

func requireCount(t *testing.T, snap store.Snapshot, app uint64, expected uint64) {
	data, err := globalState(snap, app).Get([]byte(counter.KeyCount))
	require.NoError(t, err)

	value, err := execution.DecodeValue(data)
	require.NoError(t, err)
	require.Equal(t, execution.NewUint(expected), value)
}
