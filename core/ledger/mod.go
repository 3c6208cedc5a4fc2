// Package ledger defines the service that accepts transactions and maintains
// the state of the accounts and the applications.
//
// The service evaluates every transaction deterministically, applies its
// effects atomically and remembers its identifier so that it is applied at
// most once. Clients compile programs, submit signed transactions, poll for
// their status and read the state through this interface, either in-process
// or over HTTP.
package ledger

import (
	"context"
	"encoding/hex"

	"github.com/bitpond/appkit/core/execution"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/core/txn/signed"
)

// State is the state of a submitted transaction.
type State string

const (
	// StatePending is the state of a transaction waiting for a round.
	StatePending State = "pending"

	// StateConfirmed is the state of a transaction included in a round.
	StateConfirmed State = "confirmed"

	// StateRejected is the state of a transaction refused by the ledger.
	StateRejected State = "rejected"
)

// Status is the status of a submitted transaction.
type Status struct {
	State State `json:"state"`

	// Round is the round the transaction was confirmed or rejected in.
	Round uint64 `json:"round,omitempty"`

	// Reason explains a rejection.
	Reason string `json:"reason,omitempty"`

	// AppID is the identifier of the application created by the
	// transaction, if any.
	AppID uint64 `json:"app_id,omitempty"`

	// LastRound is the last round produced by the ledger when the status was
	// read.
	LastRound uint64 `json:"last_round"`
}

// Compiled is the result of a compilation by the ledger.
type Compiled struct {
	Bytecode []byte      `json:"bytecode"`
	Address  txn.Address `json:"address"`
}

// Account is the state of an account.
type Account struct {
	Address txn.Address `json:"address"`
	Balance uint64      `json:"balance"`

	// AuthAddr is the address allowed to sign for the account after a rekey,
	// or the zero address.
	AuthAddr txn.Address `json:"auth_addr"`
}

// Service is the interface of a ledger.
type Service interface {
	// Compile returns the bytecode of the program source and its address.
	Compile(ctx context.Context, source string) (Compiled, error)

	// SuggestedParams returns the parameters to build a transaction that is
	// valid from the next round.
	SuggestedParams(ctx context.Context) (txn.Params, error)

	// Submit sends the transaction to the ledger and returns its identifier.
	Submit(ctx context.Context, tx *signed.Transaction) (string, error)

	// Status returns the status of the transaction.
	Status(ctx context.Context, id string) (Status, error)

	// GetApplicationState returns the global state of the application.
	GetApplicationState(ctx context.Context, id uint64) (map[string]execution.Value, error)

	// GetAccount returns the state of the account.
	GetAccount(ctx context.Context, addr txn.Address) (Account, error)
}

// TxID returns the text identifier of a transaction.
func TxID(tx *signed.Transaction) string {
	return hex.EncodeToString(tx.GetID())
}
