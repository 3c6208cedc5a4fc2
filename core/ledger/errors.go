package ledger

import (
	"golang.org/x/xerrors"
)

var (
	// ErrAlreadySeen is returned when a transaction with the same identifier
	// has already been submitted.
	ErrAlreadySeen = xerrors.New("transaction already seen")

	// ErrUnavailable is returned when the ledger cannot be reached.
	ErrUnavailable = xerrors.New("ledger unavailable")

	// ErrConfirmationTimeout is returned when a transaction is not confirmed
	// within the number of rounds allowed.
	ErrConfirmationTimeout = xerrors.New("confirmation timeout")

	// ErrNotFound is returned when the transaction, the application or the
	// account does not exist.
	ErrNotFound = xerrors.New("not found")
)

// RejectedError is returned when the ledger refuses a transaction. It is
// final and the transaction must not be retried.
type RejectedError struct {
	Reason string
}

// NewRejectedError returns a rejection with the reason.
func NewRejectedError(reason string) RejectedError {
	return RejectedError{Reason: reason}
}

// Error implements error.
func (e RejectedError) Error() string {
	return "transaction rejected: " + e.Reason
}

// IsRejected returns the reason and true if the error is a rejection.
func IsRejected(err error) (string, bool) {
	var rejected RejectedError
	if xerrors.As(err, &rejected) {
		return rejected.Reason, true
	}

	return "", false
}

// NewUnavailableError returns an error that matches ErrUnavailable.
func NewUnavailableError(err error) error {
	return xerrors.Errorf("%v: %w", err, ErrUnavailable)
}

// IsUnavailable returns true if the error is a transport failure, which can be
// retried for reads but never for a submission.
func IsUnavailable(err error) bool {
	return xerrors.Is(err, ErrUnavailable)
}
