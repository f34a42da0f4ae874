package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// openTestDb opens a fresh database in a temp directory. No cleanup is
// registered; the caller closes it.
func openTestDb() *DbImpl {
	return mustOpenTestDb(nil)
}

func mustOpenTestDb(t *testing.T) *DbImpl {
	dir, err := os.MkdirTemp("", "lattice-db-test-*")
	if err != nil {
		panic(err)
	}
	path := filepath.Join(dir, "test.lattice")
	d, err := Open(path)
	if err != nil {
		panic(err)
	}
	if t != nil {
		t.Cleanup(func() {
			d.Close()
			os.RemoveAll(dir)
		})
	}
	return d
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "lattice-db-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "test.lattice")

	d, err := Open(path)
	require.NoError(t, err)
	id, err := d.InsertNode()
	require.NoError(t, err)
	require.NoError(t, d.InsertOrReplaceKeyValue(id, KeyValue{Key: "name", Value: NewString("alice")}))
	require.NoError(t, d.InsertAlias(id, "alice"))
	require.NoError(t, d.Close())

	d2, err := Open(path)
	require.NoError(t, err)
	defer d2.Close()

	vals, err := d2.Values(id)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	require.Equal(t, "name", vals[0].Key)
	name, ok := vals[0].Value.AsString()
	require.True(t, ok)
	require.Equal(t, "alice", name)

	resolved, err := d2.DbIdForAlias("alice")
	require.NoError(t, err)
	require.Equal(t, id, resolved)
}

func TestTransactionRollback(t *testing.T) {
	d := mustOpenTestDb(t)

	res, err := d.Execute(InsertNodesQuery{Count: 1, Aliases: []string{"a"}}, "test", 0)
	require.NoError(t, err)
	id := res.Ids[0]

	err = d.transaction(func() error {
		if err := d.Remove(DbId(-3)); err != nil {
			return err
		}
		return invalidQueryError("forced failure")
	})
	require.Error(t, err)

	selectRes, err := d.Execute(SelectQuery{Ids: IdsOf(AliasId("a"))}, "test", 0)
	require.NoError(t, err)
	require.Len(t, selectRes.Elements, 1)
	require.Equal(t, id, selectRes.Elements[0].Id)
}

func TestDictionaryDeduplication(t *testing.T) {
	d := mustOpenTestDb(t)

	longValue := NewString("this value is long enough to force dictionary storage instead of inlining")
	idA, err := d.InsertNode()
	require.NoError(t, err)
	idB, err := d.InsertNode()
	require.NoError(t, err)

	require.NoError(t, d.InsertOrReplaceKeyValue(idA, KeyValue{Key: "bio", Value: longValue}))
	require.NoError(t, d.InsertOrReplaceKeyValue(idB, KeyValue{Key: "bio", Value: longValue}))

	valsA, err := d.Values(idA)
	require.NoError(t, err)
	valsB, err := d.Values(idB)
	require.NoError(t, err)
	require.True(t, valsA[0].Value.Equal(valsB[0].Value))

	// Removing one reference must not disturb the other's value.
	require.NoError(t, d.Remove(idA))
	valsB2, err := d.Values(idB)
	require.NoError(t, err)
	s, ok := valsB2[0].Value.AsString()
	require.True(t, ok)
	require.Equal(t, "this value is long enough to force dictionary storage instead of inlining", s)
}

func TestGraphIncidenceAndCascadeRemoval(t *testing.T) {
	d := mustOpenTestDb(t)

	n1, err := d.InsertNode()
	require.NoError(t, err)
	n2, err := d.InsertNode()
	require.NoError(t, err)
	e1, err := d.InsertEdge(n1, n2)
	require.NoError(t, err)

	from, err := d.FromId(e1)
	require.NoError(t, err)
	require.Equal(t, n1, from)
	to, err := d.ToId(e1)
	require.NoError(t, err)
	require.Equal(t, n2, to)

	count, err := d.EdgeCount(n1, true, false)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	require.NoError(t, d.Remove(n1))
	live, err := d.isLive(e1)
	require.NoError(t, err)
	require.False(t, live, "removing a node must cascade-remove its incident edges")
}

func TestAliasBijection(t *testing.T) {
	d := mustOpenTestDb(t)

	n1, err := d.InsertNode()
	require.NoError(t, err)
	n2, err := d.InsertNode()
	require.NoError(t, err)

	require.NoError(t, d.InsertNewAlias(n1, "one"))
	err = d.InsertNewAlias(n2, "one")
	require.Error(t, err, "alias names must be unique")

	require.NoError(t, d.InsertAlias(n1, "uno"))
	_, err = d.DbIdForAlias("one")
	require.Error(t, err, "replacing an alias must release the old name")

	resolved, err := d.DbIdForAlias("uno")
	require.NoError(t, err)
	require.Equal(t, n1, resolved)
}

func TestInsertEdgesAsymmetricFallsBackToCartesian(t *testing.T) {
	d := mustOpenTestDb(t)

	res, err := d.Execute(InsertNodesQuery{Count: 1, Aliases: []string{"users"}}, "test", 0)
	require.NoError(t, err)
	users := res.Ids[0]

	res, err = d.Execute(InsertNodesQuery{Count: 3}, "test", 0)
	require.NoError(t, err)
	require.Equal(t, 3, len(res.Ids))

	// One origin, three destinations, Each unset: a length mismatch must
	// fall back to the cartesian product rather than error.
	edges, err := d.Execute(InsertEdgesQuery{
		From: IdsOf(AliasId("users")),
		To:   IdsOf(ElementId(res.Ids[0]), ElementId(res.Ids[1]), ElementId(res.Ids[2])),
	}, "test", 0)
	require.NoError(t, err)
	require.Len(t, edges.Ids, 3)
	for _, e := range edges.Ids {
		from, err := d.FromId(e)
		require.NoError(t, err)
		require.Equal(t, users, from)
	}
}

func TestIndexLookup(t *testing.T) {
	d := mustOpenTestDb(t)

	require.NoError(t, d.InsertIndex("color"))
	n1, err := d.InsertNode()
	require.NoError(t, err)
	n2, err := d.InsertNode()
	require.NoError(t, err)
	require.NoError(t, d.InsertOrReplaceKeyValue(n1, KeyValue{Key: "color", Value: NewString("red")}))
	require.NoError(t, d.InsertOrReplaceKeyValue(n2, KeyValue{Key: "color", Value: NewString("blue")}))

	ids, err := d.SearchIndex("color", NewString("red"))
	require.NoError(t, err)
	require.Equal(t, []DbId{n1}, ids)

	require.NoError(t, d.RemoveIndex("color"))
	_, err = d.SearchIndex("color", NewString("red"))
	require.Error(t, err)
}
