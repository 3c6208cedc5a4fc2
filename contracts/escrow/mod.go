// Package escrow implements a stateless logic signature that authorizes
// payments from its own address to a fixed receiver, up to a maximum amount.
//
// The receiver and the maximum amount are bound in the bytecode, so the
// address of the escrow changes with them. There is no way to update an
// escrow: a new one must be compiled and the funds moved to it.
package escrow

import (
	"strconv"

	"github.com/bitpond/appkit/core/execution"
	"github.com/bitpond/appkit/core/execution/native"
	"github.com/bitpond/appkit/core/program"
	"github.com/bitpond/appkit/core/txn"
	"golang.org/x/xerrors"
)

const (
	// Template is the name of the escrow program.
	Template = "escrow"

	// ParamReceiver is the parameter of the receiver address.
	ParamReceiver = "receiver"

	// ParamMax is the parameter of the maximum amount.
	ParamMax = "max"
)

var (
	// ErrNotPayment is returned when the transaction is not a payment.
	ErrNotPayment = xerrors.New("transaction is not a payment")

	// ErrWrongReceiver is returned when the payment is sent to another
	// address than the receiver.
	ErrWrongReceiver = xerrors.New("wrong receiver")

	// ErrAmountTooHigh is returned when the amount is above the maximum.
	ErrAmountTooHigh = xerrors.New("amount above maximum")

	// ErrCloseRemainderTo is returned when the payment closes the escrow.
	ErrCloseRemainderTo = xerrors.New("close remainder to is set")

	// ErrRekey is returned when the payment rekeys the escrow.
	ErrRekey = xerrors.New("rekey to is set")
)

// Predicate is the escrow authorization.
//
// - implements native.Predicate
type Predicate struct {
	Receiver  txn.Address
	MaxAmount uint64
}

// RegisterContract registers the escrow program to the execution service.
func RegisterContract(exec *native.Service) {
	exec.SetPredicate(Template, func(params program.Params) (native.Predicate, error) {
		return FromParams(params)
	})
}

// FromParams returns the predicate of the program parameters.
func FromParams(params program.Params) (Predicate, error) {
	if len(params) != 2 {
		return Predicate{}, xerrors.Errorf("expected parameters [%s %s], got %v",
			ParamMax, ParamReceiver, params.Keys())
	}

	receiver, err := txn.ParseAddress(params[ParamReceiver])
	if err != nil {
		return Predicate{}, xerrors.Errorf("invalid receiver: %v", err)
	}

	max, err := strconv.ParseUint(params[ParamMax], 10, 64)
	if err != nil {
		return Predicate{}, xerrors.Errorf("invalid maximum: %v", err)
	}

	return Predicate{Receiver: receiver, MaxAmount: max}, nil
}

// Params returns the program parameters of the predicate.
func (p Predicate) Params() program.Params {
	return program.Params{
		ParamReceiver: p.Receiver.String(),
		ParamMax:      strconv.FormatUint(p.MaxAmount, 10),
	}
}

// Source returns the program source of the predicate.
func (p Predicate) Source() string {
	return program.Render(Template, p.Params())
}

// Allows returns true if the transaction is authorized.
func (p Predicate) Allows(tx *txn.Transaction) bool {
	return p.Check(tx) == nil
}

// Check returns nil if the transaction is authorized, otherwise it returns the
// error of the first condition that does not hold.
func (p Predicate) Check(tx *txn.Transaction) error {
	if tx.GetType() != txn.TypePayment {
		return ErrNotPayment
	}

	if tx.GetReceiver() != p.Receiver {
		return ErrWrongReceiver
	}

	if tx.GetAmount() > p.MaxAmount {
		return ErrAmountTooHigh
	}

	if !tx.GetCloseRemainderTo().IsZero() {
		return ErrCloseRemainderTo
	}

	if !tx.GetRekeyTo().IsZero() {
		return ErrRekey
	}

	return nil
}

// Authorize implements native.Predicate.
func (p Predicate) Authorize(step execution.Step) error {
	return p.Check(step.Current)
}
