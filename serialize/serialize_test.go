package serialize_test

import (
	"testing"

	"github.com/latticedb/lattice/serialize"
	"github.com/stretchr/testify/require"
)

func TestU64RoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	serialize.PutU64(buf, 0xDEADBEEFCAFEBABE)
	got, err := serialize.GetU64(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(0xDEADBEEFCAFEBABE), got)
}

func TestGetU64OutOfBounds(t *testing.T) {
	_, err := serialize.GetU64([]byte{1, 2, 3})
	require.ErrorIs(t, err, serialize.ErrOutOfBounds)
}

func TestStringRoundTrip(t *testing.T) {
	enc := serialize.SerializeString("hello graph")
	require.Equal(t, uint64(len(enc)), serialize.SerializedBytesSize([]byte("hello graph")))
	got, n, err := serialize.DeserializeString(enc)
	require.NoError(t, err)
	require.Equal(t, "hello graph", got)
	require.Equal(t, uint64(len(enc)), n)
}

func TestDeserializeBytesShortInput(t *testing.T) {
	enc := serialize.SerializeString("abc")
	_, _, err := serialize.DeserializeBytes(enc[:4])
	require.ErrorIs(t, err, serialize.ErrOutOfBounds)
}

func TestSliceRoundTrip(t *testing.T) {
	items := []int64{1, -2, 3, 42}
	enc := serialize.SerializeSlice(items, func(v int64) []byte {
		b := make([]byte, 8)
		serialize.PutI64(b, v)
		return b
	})
	got, n, err := serialize.DeserializeSlice(enc, func(b []byte) (int64, uint64, error) {
		v, err := serialize.GetI64(b)
		return v, 8, err
	})
	require.NoError(t, err)
	require.Equal(t, items, got)
	require.Equal(t, uint64(len(enc)), n)
}

func TestStableHashDeterministic(t *testing.T) {
	a := serialize.StableHash([]byte("the quick brown fox"))
	b := serialize.StableHash([]byte("the quick brown fox"))
	require.Equal(t, a, b)
}

func TestStableHashSensesLength(t *testing.T) {
	a := serialize.StableHash([]byte{0})
	b := serialize.StableHash([]byte{0, 0})
	require.NotEqual(t, a, b)
}

func TestStableHashAvalanche(t *testing.T) {
	a := serialize.StableHash([]byte("value-a"))
	b := serialize.StableHash([]byte("value-b"))
	require.NotEqual(t, a, b)
}
