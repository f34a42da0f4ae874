package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/latticedb/lattice/storage"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*storage.Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db")
	s, err := storage.Open(path)
	require.NoError(t, err)
	return s, path
}

func TestInsertAndReadBack(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	idx, err := s.InsertBytes([]byte("hello"))
	require.NoError(t, err)

	got, err := s.ValueBytes(idx)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestRemoveThenIndexNotFound(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	idx, err := s.InsertBytes([]byte("bye"))
	require.NoError(t, err)
	require.NoError(t, s.Remove(idx))

	_, err = s.ValueBytes(idx)
	require.Error(t, err)
}

func TestPersistenceRoundTrip(t *testing.T) {
	s, path := openTemp(t)
	idx, err := s.InsertBytes([]byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := storage.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.ValueBytes(idx)
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), got)
}

func TestInsertAtGrowsRecord(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	idx, err := s.InsertBytes([]byte("ab"))
	require.NoError(t, err)

	require.NoError(t, s.InsertAtBytes(idx, 2, []byte("cdef")))
	got, err := s.ValueBytes(idx)
	require.NoError(t, err)
	require.Equal(t, []byte("abcdef"), got)
}

func TestValueAtBytesPartialRead(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	idx, err := s.InsertBytes([]byte("0123456789"))
	require.NoError(t, err)

	got, err := s.ValueAtBytes(idx, 3, 4)
	require.NoError(t, err)
	require.Equal(t, []byte("3456"), got)
}

func TestTransactionCommitPersists(t *testing.T) {
	s, path := openTemp(t)
	s.Transaction()
	idx, err := s.InsertBytes([]byte("tx-value"))
	require.NoError(t, err)
	require.NoError(t, s.Commit())
	require.NoError(t, s.Close())

	reopened, err := storage.Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.ValueBytes(idx)
	require.NoError(t, err)
	require.Equal(t, []byte("tx-value"), got)
}

func TestRollbackRevertsInPlaceWrite(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	s.Transaction()
	idx, err := s.InsertBytes([]byte("original"))
	require.NoError(t, err)
	require.NoError(t, s.Commit())

	s.Transaction()
	require.NoError(t, s.InsertAtBytes(idx, 0, []byte("CHANGED!")))
	require.NoError(t, s.Rollback())

	got, err := s.ValueBytes(idx)
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)
}

func TestShrinkToFitReclaimsRemovedSpace(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	idx1, err := s.InsertBytes([]byte("aaaaaaaaaa"))
	require.NoError(t, err)
	_, err = s.InsertBytes([]byte("bbbbbbbbbb"))
	require.NoError(t, err)
	require.NoError(t, s.Remove(idx1))

	require.NoError(t, s.ShrinkToFit())

	sz, err := s.ValueSize(idx1)
	_ = sz
	require.Error(t, err) // idx1 was removed, shrink must not resurrect it
}

func TestMoveAtBytes(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()

	idx, err := s.InsertBytes([]byte("ABCDEF"))
	require.NoError(t, err)
	require.NoError(t, s.MoveAt(idx, 0, 3, 3))
	got, err := s.ValueBytes(idx)
	require.NoError(t, err)
	require.Equal(t, []byte("ABCABC"), got)
}
