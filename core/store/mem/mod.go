// Package mem implements an in-memory snapshot that is layered over a parent
// store. Reads fall through to the parent when a key has not been written and
// writes stay in memory until they are applied.
package mem

import (
	"bytes"
	"sort"

	"github.com/bitpond/appkit/core/store"
	"golang.org/x/xerrors"
)

type item struct {
	value   []byte
	deleted bool
}

// Snapshot is an overlay of the updates made on top of a parent store.
//
// - implements store.Snapshot
// - implements store.Iterable
type Snapshot struct {
	parent store.Readable
	store  map[string]item
}

// NewSnapshot creates a new overlay over the parent. The parent can be nil in
// which case the snapshot starts empty.
func NewSnapshot(parent store.Readable) *Snapshot {
	return &Snapshot{
		parent: parent,
		store:  make(map[string]item),
	}
}

// Get implements store.Readable. It returns the value of the overlay if the
// key has been updated, otherwise it looks up the parent.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	it, found := s.store[string(key)]
	if found {
		if it.deleted {
			return nil, nil
		}

		return it.value, nil
	}

	if s.parent == nil {
		return nil, nil
	}

	value, err := s.parent.Get(key)
	if err != nil {
		return nil, xerrors.Errorf("parent failed: %v", err)
	}

	return value, nil
}

// Set implements store.Writable.
func (s *Snapshot) Set(key, value []byte) error {
	s.store[string(key)] = item{value: append([]byte{}, value...)}

	return nil
}

// Delete implements store.Writable.
func (s *Snapshot) Delete(key []byte) error {
	s.store[string(key)] = item{deleted: true}

	return nil
}

// Scan implements store.Iterable. It merges the keys of the overlay with the
// ones of the parent, which must be iterable if it is set.
func (s *Snapshot) Scan(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)

	if s.parent != nil {
		iterable, ok := s.parent.(store.Iterable)
		if !ok {
			return xerrors.Errorf("parent '%T' is not iterable", s.parent)
		}

		err := iterable.Scan(prefix, func(key, value []byte) error {
			merged[string(key)] = append([]byte{}, value...)
			return nil
		})
		if err != nil {
			return xerrors.Errorf("parent failed: %v", err)
		}
	}

	for key, it := range s.store {
		if !bytes.HasPrefix([]byte(key), prefix) {
			continue
		}

		if it.deleted {
			delete(merged, key)
		} else {
			merged[key] = it.value
		}
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		err := fn([]byte(key), merged[key])
		if err != nil {
			return err
		}
	}

	return nil
}

// Len returns the number of updates in the overlay.
func (s *Snapshot) Len() int {
	return len(s.store)
}

// Apply writes the updates of the overlay in lexicographic order of the keys.
func (s *Snapshot) Apply(w store.Writable) error {
	keys := make([]string, 0, len(s.store))
	for key := range s.store {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		var err error

		it := s.store[key]
		if it.deleted {
			err = w.Delete([]byte(key))
		} else {
			err = w.Set([]byte(key), it.value)
		}

		if err != nil {
			return xerrors.Errorf("failed to apply key %#x: %v", key, err)
		}
	}

	return nil
}
