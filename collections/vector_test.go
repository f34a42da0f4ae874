package collections_test

import (
	"path/filepath"
	"testing"

	"github.com/latticedb/lattice/collections"
	"github.com/latticedb/lattice/serialize"
	"github.com/latticedb/lattice/storage"
	"github.com/stretchr/testify/require"
)

type u64Elem uint64

func (e u64Elem) Encode() []byte {
	b := make([]byte, 8)
	serialize.PutU64(b, uint64(e))
	return b
}

func (e u64Elem) StorageLen() uint64 { return 8 }

func decodeU64Elem(b []byte) (u64Elem, error) {
	v, err := serialize.GetU64(b)
	return u64Elem(v), err
}

func openStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorageVecPushPop(t *testing.T) {
	s := openStore(t)
	v, err := collections.NewStorageVec[u64Elem](s, 8, decodeU64Elem)
	require.NoError(t, err)

	require.NoError(t, v.Push(10))
	require.NoError(t, v.Push(20))
	require.NoError(t, v.Push(30))

	n, err := v.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)

	got, err := v.Value(1)
	require.NoError(t, err)
	require.Equal(t, u64Elem(20), got)

	popped, err := v.Pop()
	require.NoError(t, err)
	require.Equal(t, u64Elem(30), popped)

	n, err = v.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
}

func TestStorageVecRemoveShifts(t *testing.T) {
	s := openStore(t)
	v, err := collections.NewStorageVec[u64Elem](s, 8, decodeU64Elem)
	require.NoError(t, err)
	for _, x := range []u64Elem{1, 2, 3, 4} {
		require.NoError(t, v.Push(x))
	}
	require.NoError(t, v.Remove(1))
	got, err := v.ToSlice()
	require.NoError(t, err)
	require.Equal(t, []u64Elem{1, 3, 4}, got)
}

func TestStorageVecSetValue(t *testing.T) {
	s := openStore(t)
	v, err := collections.NewStorageVec[u64Elem](s, 8, decodeU64Elem)
	require.NoError(t, err)
	require.NoError(t, v.Push(1))
	require.NoError(t, v.SetValue(0, 99))
	got, err := v.Value(0)
	require.NoError(t, err)
	require.Equal(t, u64Elem(99), got)
}

func TestStorageVecOutOfBounds(t *testing.T) {
	s := openStore(t)
	v, err := collections.NewStorageVec[u64Elem](s, 8, decodeU64Elem)
	require.NoError(t, err)
	_, err = v.Value(0)
	require.Error(t, err)
}
