package bitset_test

import (
	"testing"

	"github.com/latticedb/lattice/bitset"
	"github.com/stretchr/testify/require"
)

func TestSetContainsClear(t *testing.T) {
	b := bitset.New()
	require.False(t, b.Contains(5))
	b.Set(5)
	require.True(t, b.Contains(5))
	b.Clear(5)
	require.False(t, b.Contains(5))
}

func TestSetGrowsSparse(t *testing.T) {
	b := bitset.New()
	b.Set(10_000)
	require.True(t, b.Contains(10_000))
	require.False(t, b.Contains(9_999))
}

func TestTestAndSet(t *testing.T) {
	b := bitset.New()
	require.False(t, b.TestAndSet(1))
	require.True(t, b.TestAndSet(1))
}

func TestCount(t *testing.T) {
	b := bitset.New()
	b.Set(1)
	b.Set(64)
	b.Set(128)
	require.Equal(t, 3, b.Count())
}

func TestReset(t *testing.T) {
	b := bitset.New()
	b.Set(3)
	b.Reset()
	require.False(t, b.Contains(3))
	require.Equal(t, 0, b.Count())
}
