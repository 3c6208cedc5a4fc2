package local

import (
	"fmt"
	"math"

	"github.com/bitpond/appkit/core/execution"
	"github.com/bitpond/appkit/core/store"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/core/txn/signed"
	"golang.org/x/xerrors"
)

// outcome is the result of the application of a transaction. A rejected
// transaction has no effect and its reason is recorded.
type outcome struct {
	accepted bool
	reason   string
	appID    uint64
}

func reject(format string, args ...interface{}) outcome {
	return outcome{reason: fmt.Sprintf(format, args...)}
}

// host applies transactions to a snapshot of the state. The caller discards
// the snapshot when the transaction is rejected, which makes the application
// atomic.
type host struct {
	exec      execution.Service
	genesisID string
	minFee    uint64
	window    uint64
}

// Apply evaluates the transaction in the round. The error is reserved for
// failures of the state, a refusal is returned as the outcome.
func (h host) Apply(snap store.IterableSnapshot, stx *signed.Transaction, round uint64) (outcome, error) {
	tx := stx.GetTransaction()
	params := tx.GetParams()

	if params.GenesisID != h.genesisID {
		return reject("genesis mismatch: '%s' != '%s'", params.GenesisID, h.genesisID), nil
	}

	if round < params.FirstValid || round > params.LastValid {
		return reject("round %d outside of validity window [%d, %d]",
			round, params.FirstValid, params.LastValid), nil
	}

	if params.LastValid-params.FirstValid > h.window {
		return reject("validity window is longer than %d rounds", h.window), nil
	}

	if params.Fee < h.minFee {
		return reject("fee %d below minimum %d", params.Fee, h.minFee), nil
	}

	sender, err := readAccount(snap, tx.GetSender())
	if err != nil {
		return outcome{}, err
	}

	res, err := h.authorize(stx, sender, round)
	if err != nil || !res.accepted {
		return res, err
	}

	if sender.balance < params.Fee {
		return reject("balance %d below fee %d", sender.balance, params.Fee), nil
	}

	sender.balance -= params.Fee

	switch tx.GetType() {
	case txn.TypePayment:
		res, err = h.pay(snap, tx, sender)
	case txn.TypeApplication:
		err = writeAccount(snap, tx.GetSender(), sender)
		if err != nil {
			return outcome{}, xerrors.Errorf("failed to write account: %v", err)
		}

		res, err = h.call(snap, tx, round)
	default:
		return reject("unsupported type '%s'", tx.GetType()), nil
	}

	if err != nil || !res.accepted {
		return res, err
	}

	if !tx.GetRekeyTo().IsZero() {
		err = h.rekey(snap, tx)
		if err != nil {
			return outcome{}, err
		}
	}

	return res, nil
}

func (h host) authorize(stx *signed.Transaction, sender account, round uint64) (outcome, error) {
	tx := stx.GetTransaction()

	auth := sender.authAddr
	if auth.IsZero() {
		auth = tx.GetSender()
	}

	authorizer, err := stx.GetAuthorizer()
	if err != nil {
		return reject("invalid authorization: %v", err), nil
	}

	if authorizer != auth {
		return reject("%v is not authorized to send for %v", authorizer, tx.GetSender()), nil
	}

	if stx.IsLogicSig() {
		step := execution.Step{
			Current: tx,
			Round:   round,
		}

		res, err := h.exec.Authorize(stx.GetLogicSig(), step)
		if err != nil {
			return reject("logic signature failed: %v", err), nil
		}

		if !res.Accepted {
			return reject("logic signature rejected: %s", res.Message), nil
		}
	}

	return outcome{accepted: true}, nil
}

func (h host) pay(snap store.IterableSnapshot, tx *txn.Transaction, sender account) (outcome, error) {
	amount := tx.GetAmount()

	if tx.GetCloseRemainderTo() == tx.GetSender() {
		return reject("cannot close to the sender"), nil
	}

	if sender.balance < amount {
		return reject("balance %d below amount %d", sender.balance, amount), nil
	}

	sender.balance -= amount

	err := writeAccount(snap, tx.GetSender(), sender)
	if err != nil {
		return outcome{}, xerrors.Errorf("failed to write account: %v", err)
	}

	res, err := credit(snap, tx.GetReceiver(), amount)
	if err != nil || !res.accepted {
		return res, err
	}

	closeTo := tx.GetCloseRemainderTo()
	if closeTo.IsZero() {
		return res, nil
	}

	remainder, err := readAccount(snap, tx.GetSender())
	if err != nil {
		return outcome{}, err
	}

	res, err = credit(snap, closeTo, remainder.balance)
	if err != nil || !res.accepted {
		return res, err
	}

	err = writeAccount(snap, tx.GetSender(), account{})
	if err != nil {
		return outcome{}, xerrors.Errorf("failed to close account: %v", err)
	}

	return res, nil
}

func credit(snap store.Snapshot, addr txn.Address, amount uint64) (outcome, error) {
	acct, err := readAccount(snap, addr)
	if err != nil {
		return outcome{}, err
	}

	if acct.balance > math.MaxUint64-amount {
		return reject("balance overflow for %v", addr), nil
	}

	acct.balance += amount

	err = writeAccount(snap, addr, acct)
	if err != nil {
		return outcome{}, xerrors.Errorf("failed to write account: %v", err)
	}

	return outcome{accepted: true}, nil
}

func (h host) rekey(snap store.Snapshot, tx *txn.Transaction) error {
	acct, err := readAccount(snap, tx.GetSender())
	if err != nil {
		return err
	}

	acct.authAddr = tx.GetRekeyTo()
	if acct.authAddr == tx.GetSender() {
		acct.authAddr = txn.ZeroAddress
	}

	err = writeAccount(snap, tx.GetSender(), acct)
	if err != nil {
		return xerrors.Errorf("failed to rekey: %v", err)
	}

	return nil
}

func (h host) call(snap store.IterableSnapshot, tx *txn.Transaction, round uint64) (outcome, error) {
	if tx.IsCreate() {
		return h.create(snap, tx, round)
	}

	id := tx.GetAppID()

	meta, found, err := readApp(snap, id)
	if err != nil {
		return outcome{}, err
	}

	if !found {
		return reject("application %d not found", id), nil
	}

	approval, clear, err := readPrograms(snap, id)
	if err != nil {
		return outcome{}, err
	}

	// Membership only records the opt-ins. The program alone decides on
	// OptIn, CloseOut and ClearState.
	if tx.GetOnCompletion() == txn.Update {
		for _, prog := range [][]byte{tx.GetApprovalProgram(), tx.GetClearProgram()} {
			err = h.exec.Validate(prog)
			if err != nil {
				return reject("invalid program: %v", err), nil
			}
		}
	}

	step := execution.Step{
		Current: tx,
		AppID:   id,
		Creator: meta.Creator,
		Round:   round,
	}

	prog := approval
	if tx.GetOnCompletion() == txn.ClearState {
		prog = clear
	}

	res, err := h.exec.Execute(globalState(snap, id), prog, step)
	if err != nil {
		return reject("program failed: %v", err), nil
	}

	if !res.Accepted {
		return reject("application %d rejected: %s", id, res.Message), nil
	}

	switch tx.GetOnCompletion() {
	case txn.OptIn:
		err = snap.Set(memberKey(id, tx.GetSender()), []byte{1})
	case txn.CloseOut, txn.ClearState:
		err = snap.Delete(memberKey(id, tx.GetSender()))
	case txn.Update:
		err = writePrograms(snap, id, tx.GetApprovalProgram(), tx.GetClearProgram())
	case txn.Delete:
		err = deleteApp(snap, id)
	}

	if err != nil {
		return outcome{}, xerrors.Errorf("failed to complete %v: %v", tx.GetOnCompletion(), err)
	}

	return outcome{accepted: true, appID: id}, nil
}

func (h host) create(snap store.IterableSnapshot, tx *txn.Transaction, round uint64) (outcome, error) {
	for _, prog := range [][]byte{tx.GetApprovalProgram(), tx.GetClearProgram()} {
		err := h.exec.Validate(prog)
		if err != nil {
			return reject("invalid program: %v", err), nil
		}
	}

	last, err := readUint(snap, keyLastApp)
	if err != nil {
		return outcome{}, err
	}

	id := last + 1

	step := execution.Step{
		Current: tx,
		AppID:   id,
		Creator: tx.GetSender(),
		Round:   round,
	}

	res, err := h.exec.Execute(globalState(snap, id), tx.GetApprovalProgram(), step)
	if err != nil {
		return reject("program failed: %v", err), nil
	}

	if !res.Accepted {
		return reject("creation rejected: %s", res.Message), nil
	}

	err = writeApp(snap, id, appMeta{Creator: tx.GetSender(), Round: round})
	if err != nil {
		return outcome{}, err
	}

	err = writePrograms(snap, id, tx.GetApprovalProgram(), tx.GetClearProgram())
	if err != nil {
		return outcome{}, err
	}

	err = writeUint(snap, keyLastApp, id)
	if err != nil {
		return outcome{}, xerrors.Errorf("failed to write app counter: %v", err)
	}

	return outcome{accepted: true, appID: id}, nil
}
