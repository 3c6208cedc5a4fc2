package local

import (
	"encoding/binary"

	"github.com/bitpond/appkit/core/store"
	"github.com/bitpond/appkit/core/store/kv"
	"github.com/bitpond/appkit/core/store/prefixed"
	"github.com/bitpond/appkit/core/txn"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

var (
	bucketName = []byte("ledger")

	keyRound   = []byte("meta/round")
	keyLastApp = []byte("meta/lastapp")
	keyGenesis = []byte("meta/genesis")

	prefixAccount = "acct/"
	prefixTx      = "tx/"
)

func accountKey(addr txn.Address) []byte {
	return prefixed.NewPrefixedKey([]byte(prefixAccount), addr[:])
}

func txKey(id []byte) []byte {
	return prefixed.NewPrefixedKey([]byte(prefixTx), id)
}

func appPrefix(id uint64) string {
	buffer := make([]byte, 8)
	binary.BigEndian.PutUint64(buffer, id)

	return "app/" + string(buffer) + "/"
}

// globalState returns the view of the global state of the application.
func globalState(snap store.Snapshot, id uint64) store.IterableSnapshot {
	return prefixed.NewSnapshot(appPrefix(id)+"gs/", snap)
}

// bucketStore is the adapter of a database bucket to a snapshot.
//
// - implements store.Snapshot
// - implements store.Iterable
type bucketStore struct {
	bucket kv.Bucket
}

// Get implements store.Readable.
func (s bucketStore) Get(key []byte) ([]byte, error) {
	return s.bucket.Get(key), nil
}

// Set implements store.Writable.
func (s bucketStore) Set(key, value []byte) error {
	return s.bucket.Set(key, value)
}

// Delete implements store.Writable.
func (s bucketStore) Delete(key []byte) error {
	return s.bucket.Delete(key)
}

// Scan implements store.Iterable.
func (s bucketStore) Scan(prefix []byte, fn func(k, v []byte) error) error {
	return s.bucket.Scan(prefix, fn)
}

// emptyStore is the store of a database without the ledger bucket yet.
type emptyStore struct{}

func (emptyStore) Get([]byte) ([]byte, error) {
	return nil, nil
}

func (emptyStore) Scan([]byte, func(k, v []byte) error) error {
	return nil
}

func readableOf(tx kv.ReadableTx) store.Readable {
	bucket := tx.GetBucket(bucketName)
	if bucket == nil {
		return emptyStore{}
	}

	return bucketStore{bucket: bucket}
}

func readUint(r store.Readable, key []byte) (uint64, error) {
	data, err := r.Get(key)
	if err != nil {
		return 0, xerrors.Errorf("failed to read %s: %v", key, err)
	}

	if len(data) == 0 {
		return 0, nil
	}

	if len(data) != 8 {
		return 0, xerrors.Errorf("invalid length for %s: %d", key, len(data))
	}

	return binary.BigEndian.Uint64(data), nil
}

func writeUint(w store.Writable, key []byte, v uint64) error {
	buffer := make([]byte, 8)
	binary.BigEndian.PutUint64(buffer, v)

	return w.Set(key, buffer)
}

// account is the record of an account.
type account struct {
	balance  uint64
	authAddr txn.Address
}

func readAccount(r store.Readable, addr txn.Address) (account, error) {
	data, err := r.Get(accountKey(addr))
	if err != nil {
		return account{}, xerrors.Errorf("failed to read account: %v", err)
	}

	if len(data) == 0 {
		return account{}, nil
	}

	if len(data) != 8+txn.AddressSize {
		return account{}, xerrors.Errorf("invalid account length %d", len(data))
	}

	acct := account{balance: binary.BigEndian.Uint64(data)}
	copy(acct.authAddr[:], data[8:])

	return acct, nil
}

func writeAccount(w store.Writable, addr txn.Address, acct account) error {
	// An empty account is removed from the state.
	if acct.balance == 0 && acct.authAddr.IsZero() {
		return w.Delete(accountKey(addr))
	}

	buffer := make([]byte, 8+txn.AddressSize)
	binary.BigEndian.PutUint64(buffer, acct.balance)
	copy(buffer[8:], acct.authAddr[:])

	return w.Set(accountKey(addr), buffer)
}

// appMeta is the record of an application instance. The programs are stored
// next to it.
type appMeta struct {
	Creator txn.Address `yaml:"creator"`
	Round   uint64      `yaml:"round"`
}

func readApp(r store.Readable, id uint64) (appMeta, bool, error) {
	data, err := r.Get([]byte(appPrefix(id) + "meta"))
	if err != nil {
		return appMeta{}, false, xerrors.Errorf("failed to read app: %v", err)
	}

	if len(data) == 0 {
		return appMeta{}, false, nil
	}

	var meta appMeta
	err = yaml.Unmarshal(data, &meta)
	if err != nil {
		return appMeta{}, false, xerrors.Errorf("failed to decode app: %v", err)
	}

	return meta, true, nil
}

func writeApp(w store.Writable, id uint64, meta appMeta) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return xerrors.Errorf("failed to encode app: %v", err)
	}

	return w.Set([]byte(appPrefix(id)+"meta"), data)
}

func readPrograms(r store.Readable, id uint64) (approval, clear []byte, err error) {
	approval, err = r.Get([]byte(appPrefix(id) + "approval"))
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to read approval: %v", err)
	}

	clear, err = r.Get([]byte(appPrefix(id) + "clear"))
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to read clear: %v", err)
	}

	return approval, clear, nil
}

func writePrograms(w store.Writable, id uint64, approval, clear []byte) error {
	err := w.Set([]byte(appPrefix(id)+"approval"), approval)
	if err != nil {
		return xerrors.Errorf("failed to write approval: %v", err)
	}

	err = w.Set([]byte(appPrefix(id)+"clear"), clear)
	if err != nil {
		return xerrors.Errorf("failed to write clear: %v", err)
	}

	return nil
}

func memberKey(id uint64, addr txn.Address) []byte {
	return prefixed.NewPrefixedKey([]byte(appPrefix(id)+"members/"), addr[:])
}

// deleteApp removes every key of the application.
func deleteApp(snap store.IterableSnapshot, id uint64) error {
	prefix := []byte(appPrefix(id))

	var keys [][]byte
	err := snap.Scan(prefix, func(k, v []byte) error {
		keys = append(keys, append([]byte{}, k...))
		return nil
	})
	if err != nil {
		return xerrors.Errorf("failed to scan app: %v", err)
	}

	for _, key := range keys {
		err = snap.Delete(key)
		if err != nil {
			return xerrors.Errorf("failed to delete key: %v", err)
		}
	}

	return nil
}

// txRecord is the record of a processed transaction.
type txRecord struct {
	Accepted bool   `yaml:"accepted"`
	Round    uint64 `yaml:"round"`
	Reason   string `yaml:"reason,omitempty"`
	AppID    uint64 `yaml:"app_id,omitempty"`
}

func readTx(r store.Readable, id []byte) (txRecord, bool, error) {
	data, err := r.Get(txKey(id))
	if err != nil {
		return txRecord{}, false, xerrors.Errorf("failed to read tx: %v", err)
	}

	if len(data) == 0 {
		return txRecord{}, false, nil
	}

	var rec txRecord
	err = yaml.Unmarshal(data, &rec)
	if err != nil {
		return txRecord{}, false, xerrors.Errorf("failed to decode tx: %v", err)
	}

	return rec, true, nil
}

func writeTx(w store.Writable, id []byte, rec txRecord) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return xerrors.Errorf("failed to encode tx: %v", err)
	}

	return w.Set(txKey(id), data)
}
