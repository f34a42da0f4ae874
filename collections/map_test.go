package collections_test

import (
	"testing"

	"github.com/latticedb/lattice/collections"
	"github.com/stretchr/testify/require"
)

func TestMapInsertReplaceAndLookup(t *testing.T) {
	s := openStore(t)
	m, err := collections.NewMap(s, collections.Uint64Codec, collections.Int64Codec)
	require.NoError(t, err)

	require.NoError(t, m.Insert(1, 100))
	require.NoError(t, m.Insert(2, 200))
	require.NoError(t, m.Insert(1, 111)) // replace

	v, ok, err := m.Value(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(111), v)

	n, err := m.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
}

func TestMapRemoveAndContains(t *testing.T) {
	s := openStore(t)
	m, err := collections.NewMap(s, collections.Uint64Codec, collections.Int64Codec)
	require.NoError(t, err)
	require.NoError(t, m.Insert(5, 50))

	ok, err := m.Contains(5)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Remove(5))
	ok, err = m.Contains(5)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMapGrowsPastLoadFactor(t *testing.T) {
	s := openStore(t)
	m, err := collections.NewMap(s, collections.Uint64Codec, collections.Int64Codec)
	require.NoError(t, err)
	for i := uint64(0); i < 200; i++ {
		require.NoError(t, m.Insert(i, int64(i)))
	}
	n, err := m.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(200), n)
	for i := uint64(0); i < 200; i++ {
		v, ok, err := m.Value(i)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(i), v)
	}
}

func TestMultiMapAppendAndValues(t *testing.T) {
	s := openStore(t)
	mm, err := collections.NewMultiMap(s, collections.Uint64Codec, collections.Int64Codec)
	require.NoError(t, err)

	require.NoError(t, mm.Insert(7, 1))
	require.NoError(t, mm.Insert(7, 2))
	require.NoError(t, mm.Insert(7, 3))
	require.NoError(t, mm.Insert(8, 99))

	vals, err := mm.Values(7)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{1, 2, 3}, vals)

	n, err := mm.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(4), n)
}

func TestMultiMapRemoveValueAndKey(t *testing.T) {
	s := openStore(t)
	mm, err := collections.NewMultiMap(s, collections.Uint64Codec, collections.Int64Codec)
	require.NoError(t, err)
	require.NoError(t, mm.Insert(1, 10))
	require.NoError(t, mm.Insert(1, 20))
	require.NoError(t, mm.Insert(2, 30))

	require.NoError(t, mm.RemoveValue(1, 10))
	vals, err := mm.Values(1)
	require.NoError(t, err)
	require.Equal(t, []int64{20}, vals)

	require.NoError(t, mm.RemoveKey(1))
	vals, err = mm.Values(1)
	require.NoError(t, err)
	require.Empty(t, vals)

	vals, err = mm.Values(2)
	require.NoError(t, err)
	require.Equal(t, []int64{30}, vals)
}
