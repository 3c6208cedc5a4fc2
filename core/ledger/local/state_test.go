package local

import (
	"testing"

	"github.com/bitpond/appkit/core/store/mem"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/internal/testing/fake"
	"github.com/stretchr/testify/require"
)

func TestAccount_ReadWrite(t *testing.T) {
	snap := mem.NewSnapshot(nil)

	acct, err := readAccount(snap, txn.Address{1})
	require.NoError(t, err)
	require.Equal(t, account{}, acct)

	err = writeAccount(snap, txn.Address{1}, account{balance: 42, authAddr: txn.Address{2}})
	require.NoError(t, err)

	acct, err = readAccount(snap, txn.Address{1})
	require.NoError(t, err)
	require.Equal(t, uint64(42), acct.balance)
	require.Equal(t, txn.Address{2}, acct.authAddr)

	// An empty account is removed.
	err = writeAccount(snap, txn.Address{1}, account{})
	require.NoError(t, err)

	value, err := snap.Get(accountKey(txn.Address{1}))
	require.NoError(t, err)
	require.Nil(t, value)

	snap.Set(accountKey(txn.Address{1}), []byte{1, 2})
	_, err = readAccount(snap, txn.Address{1})
	require.EqualError(t, err, "invalid account length 2")

	_, err = readAccount(fake.NewBadSnapshot(), txn.Address{1})
	require.EqualError(t, err, fake.Err("failed to read account"))
}

func TestUint_ReadWrite(t *testing.T) {
	snap := mem.NewSnapshot(nil)

	v, err := readUint(snap, keyRound)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v)

	require.NoError(t, writeUint(snap, keyRound, 12))

	v, err = readUint(snap, keyRound)
	require.NoError(t, err)
	require.Equal(t, uint64(12), v)

	snap.Set(keyRound, []byte{1})
	_, err = readUint(snap, keyRound)
	require.EqualError(t, err, "invalid length for meta/round: 1")
}

func TestApp_ReadWrite(t *testing.T) {
	snap := mem.NewSnapshot(nil)

	_, found, err := readApp(snap, 1)
	require.NoError(t, err)
	require.False(t, found)

	meta := appMeta{Creator: txn.Address{5}, Round: 3}
	require.NoError(t, writeApp(snap, 1, meta))
	require.NoError(t, writePrograms(snap, 1, []byte("A"), []byte("C")))
	require.NoError(t, snap.Set(memberKey(1, txn.Address{6}), []byte{1}))
	require.NoError(t, globalState(snap, 1).Set([]byte("count"), []byte{1}))

	// Other applications are left intact.
	require.NoError(t, writeApp(snap, 256, meta))

	stored, found, err := readApp(snap, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, meta, stored)

	approval, clear, err := readPrograms(snap, 1)
	require.NoError(t, err)
	require.Equal(t, []byte("A"), approval)
	require.Equal(t, []byte("C"), clear)

	require.NoError(t, deleteApp(snap, 1))

	keys := 0
	snap.Scan([]byte(appPrefix(1)), func(k, v []byte) error {
		keys++
		return nil
	})
	require.Equal(t, 0, keys)

	_, found, err = readApp(snap, 256)
	require.NoError(t, err)
	require.True(t, found)

	snap.Set([]byte(appPrefix(2)+"meta"), []byte("{"))
	_, _, err = readApp(snap, 2)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode app: ")
}

func TestTx_ReadWrite(t *testing.T) {
	snap := mem.NewSnapshot(nil)

	_, found, err := readTx(snap, []byte{1})
	require.NoError(t, err)
	require.False(t, found)

	rec := txRecord{Accepted: false, Round: 2, Reason: "oops"}
	require.NoError(t, writeTx(snap, []byte{1}, rec))

	stored, found, err := readTx(snap, []byte{1})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, rec, stored)
}
