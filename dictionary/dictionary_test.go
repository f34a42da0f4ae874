package dictionary_test

import (
	"path/filepath"
	"testing"

	"github.com/latticedb/lattice/dictionary"
	"github.com/latticedb/lattice/serialize"
	"github.com/latticedb/lattice/storage"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var stringCodec = dictionary.Codec[string]{
	Serialize:   serialize.SerializeString,
	Deserialize: func(b []byte) (string, error) { v, _, err := serialize.DeserializeString(b); return v, err },
	Equal:       func(a, b string) bool { return a == b },
}

func TestDictionaryInsertDedupAndRefcount(t *testing.T) {
	s := openStore(t)
	d, err := dictionary.New(s, stringCodec)
	require.NoError(t, err)

	i1, err := d.Insert("hello")
	require.NoError(t, err)
	i2, err := d.Insert("hello")
	require.NoError(t, err)
	require.Equal(t, i1, i2)

	count, err := d.Count(i1)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	n, err := d.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
}

func TestDictionaryDistinctValuesGetDistinctSlots(t *testing.T) {
	s := openStore(t)
	d, err := dictionary.New(s, stringCodec)
	require.NoError(t, err)

	i1, err := d.Insert("a")
	require.NoError(t, err)
	i2, err := d.Insert("b")
	require.NoError(t, err)
	require.NotEqual(t, i1, i2)

	v1, err := d.Value(i1)
	require.NoError(t, err)
	require.Equal(t, "a", v1)
	v2, err := d.Value(i2)
	require.NoError(t, err)
	require.Equal(t, "b", v2)
}

func TestDictionaryRemoveFreesSlotForReuse(t *testing.T) {
	s := openStore(t)
	d, err := dictionary.New(s, stringCodec)
	require.NoError(t, err)

	idx, err := d.Insert("x")
	require.NoError(t, err)
	require.NoError(t, d.Remove(idx))

	_, err = d.Value(idx)
	require.Error(t, err)

	newIdx, err := d.Insert("y")
	require.NoError(t, err)
	require.Equal(t, idx, newIdx) // free list reused the vacated slot

	n, err := d.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
}

func TestDictionaryRoundTripThroughRoots(t *testing.T) {
	s := openStore(t)
	d, err := dictionary.New(s, stringCodec)
	require.NoError(t, err)
	idx, err := d.Insert("persisted")
	require.NoError(t, err)
	roots := d.Roots()

	reopened := dictionary.Open(s, roots, stringCodec)
	v, err := reopened.Value(idx)
	require.NoError(t, err)
	require.Equal(t, "persisted", v)
}

func TestDictionaryIndexOf(t *testing.T) {
	s := openStore(t)
	d, err := dictionary.New(s, stringCodec)
	require.NoError(t, err)
	idx, err := d.Insert("z")
	require.NoError(t, err)

	found, ok, err := d.IndexOf("z")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, idx, found)

	_, ok, err = d.IndexOf("missing")
	require.NoError(t, err)
	require.False(t, ok)
}
