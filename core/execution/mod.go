// Package execution defines the service that runs the programs of the ledger.
//
// An application program decides whether a call to an application instance is
// accepted and can update the state of the instance. A logic signature decides
// whether a transaction sent from the address of the program is authorized.
// Both are evaluated once per transaction, deterministically.
package execution

import (
	"github.com/bitpond/appkit/core/store"
	"github.com/bitpond/appkit/core/txn"
)

// Step is the context of a program evaluation.
type Step struct {
	// Current is the transaction being evaluated.
	Current *txn.Transaction

	// AppID is the identifier of the application called. For a creation, it
	// is the identifier allocated to the new instance.
	AppID uint64

	// Creator is the address bound to the application instance at creation.
	Creator txn.Address

	// Round is the round the transaction is included in.
	Round uint64
}

// Result is the result of a transaction execution.
type Result struct {
	// Accepted is the success state of the transaction.
	Accepted bool

	// Message gives a change to the execution to explain why a transaction has
	// failed.
	Message string
}

// Service is the execution service that defines the primitives to evaluate
// the programs of the ledger.
type Service interface {
	// Validate returns an error if the bytecode is not a program that the
	// service can run.
	Validate(program []byte) error

	// Execute runs the application program against the state of the instance
	// and returns the result. The snapshot must be discarded when the
	// transaction is not accepted.
	Execute(snap store.Snapshot, program []byte, step Step) (Result, error)

	// Authorize runs the logic signature against the transaction and returns
	// the result.
	Authorize(program []byte, step Step) (Result, error)
}
