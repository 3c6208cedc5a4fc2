// Package store defines the primitives of a simple key/value storage.
//
// The ledger state is a flat key space. Implementations are free to decide how
// the keys are laid out on disk as long as a scan returns the keys matching a
// prefix in lexicographic order.
package store

// Readable is the interface for a readable store.
type Readable interface {
	// Get returns the value of the key, or nil if it does not exist.
	Get(key []byte) ([]byte, error)
}

// Writable is the interface for a writable store.
type Writable interface {
	Set(key []byte, value []byte) error

	Delete(key []byte) error
}

// Iterable is the interface for a store that can list its keys.
type Iterable interface {
	// Scan calls the function for every key that starts with the prefix, in
	// lexicographic order. The iteration stops at the first error.
	Scan(prefix []byte, fn func(key, value []byte) error) error
}

// Snapshot is a state of the store that can be read and write independently. A
// write is applied only to the snapshot reference.
type Snapshot interface {
	Readable
	Writable
}

// IterableSnapshot is a snapshot that can also list its keys.
type IterableSnapshot interface {
	Snapshot
	Iterable
}

// Transaction is a generic interface that store implementations can use to
// provide atomicity.
type Transaction interface {
	// OnCommit adds a callback to be executed after the transaction
	// successfully commits.
	OnCommit(func())
}
