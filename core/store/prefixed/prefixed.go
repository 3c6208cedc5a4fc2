// Package prefixed implements views of a store where every key is prepended
// with a prefix. The keys are concatenated so that a view can be scanned.
package prefixed

import (
	"bytes"

	"github.com/bitpond/appkit/core/store"
	"golang.org/x/xerrors"
)

type readable struct {
	store.Readable
	prefix []byte
}

type writable struct {
	store.Writable
	prefix []byte
}

type snapshot struct {
	*writable
	*readable
}

// NewSnapshot creates a new prefixed Snapshot.
func NewSnapshot(prefix string, snap store.Snapshot) store.IterableSnapshot {
	p := []byte(prefix)
	return &snapshot{
		&writable{snap, p},
		&readable{snap, p},
	}
}

// NewReadable creates a new prefixed Readable.
func NewReadable(prefix string, r store.Readable) store.Readable {
	p := []byte(prefix)
	return &readable{r, p}
}

// Get implements store.Readable.
func (s *readable) Get(key []byte) ([]byte, error) {
	return s.Readable.Get(NewPrefixedKey(s.prefix, key))
}

// Scan implements store.Iterable. The keys passed to the callback are
// stripped of the prefix. It fails if the underlying store is not iterable.
func (s *readable) Scan(prefix []byte, fn func(key, value []byte) error) error {
	iterable, ok := s.Readable.(store.Iterable)
	if !ok {
		return xerrors.Errorf("store '%T' is not iterable", s.Readable)
	}

	return iterable.Scan(NewPrefixedKey(s.prefix, prefix), func(k, v []byte) error {
		return fn(bytes.TrimPrefix(k, s.prefix), v)
	})
}

// Set implements store.Writable.
func (s *writable) Set(key []byte, value []byte) error {
	return s.Writable.Set(NewPrefixedKey(s.prefix, key), value)
}

// Delete implements store.Writable.
func (s *writable) Delete(key []byte) error {
	return s.Writable.Delete(NewPrefixedKey(s.prefix, key))
}

// NewPrefixedKey returns a new slice with the prefix followed by the key.
func NewPrefixedKey(prefix, key []byte) []byte {
	k := make([]byte, 0, len(prefix)+len(key))
	k = append(k, prefix...)
	k = append(k, key...)

	return k
}
