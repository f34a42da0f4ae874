package db

import (
	"fmt"

	"github.com/latticedb/lattice/graph"
	"github.com/latticedb/lattice/search"
)

// uniformPathHandler is the default search.PathHandler a declarative
// SearchQuery uses when both Origin and Destination are set: every edge and
// node costs one, so the result is the unweighted shortest path (fewest
// hops). Callers needing a weighted path run package search directly
// against *DbImpl.Graph() with their own search.PathHandler.
type uniformPathHandler struct{}

func (uniformPathHandler) EdgeCost(graph.Index) (float64, error) { return 1, nil }
func (uniformPathHandler) NodeCost(graph.Index) (float64, error) { return 1, nil }

func toDbIds(idxs []graph.Index) []DbId {
	out := make([]DbId, len(idxs))
	for i, idx := range idxs {
		out[i] = DbId(idx)
	}
	return out
}

// runSearch dispatches a SearchQuery to the matching search strategy, per
// spec.md §4.9/§6.1's algorithm choice, then applies ordering and paging to
// whatever ids the strategy produced.
func runSearch(d *DbImpl, sq SearchQuery) ([]DbId, error) {
	var ids []DbId

	switch sq.Algorithm {
	case SearchIndex:
		if len(sq.Conditions) != 1 {
			return nil, newQueryError(ErrIndexConditionInvalid, "index search requires exactly one condition")
		}
		kv, ok := sq.Conditions[0].(KeyValueCondition)
		if !ok {
			return nil, newQueryError(ErrIndexConditionInvalid, "index search requires a KeyValue condition")
		}
		found, err := d.SearchIndex(kv.Key, kv.Value)
		if err != nil {
			return nil, err
		}
		ids = found

	case SearchElements:
		handler := compileConditions(d, sq.Conditions)
		res, err := search.Elements(d.g, handler)
		if err != nil {
			return nil, wrapStorageError(err)
		}
		ids = toDbIds(res)

	default: // SearchBreadthFirst / SearchDepthFirst
		switch {
		case sq.HasOrigin && sq.HasDestination:
			from, err := d.ResolveId(sq.Origin)
			if err != nil {
				return nil, err
			}
			to, err := d.ResolveId(sq.Destination)
			if err != nil {
				return nil, err
			}
			path, err := search.ShortestPath(d.g, graph.Index(from), graph.Index(to), uniformPathHandler{})
			if err != nil {
				return nil, wrapStorageError(err)
			}
			ids = toDbIds(path)

		case sq.HasOrigin:
			origin, err := d.ResolveId(sq.Origin)
			if err != nil {
				return nil, err
			}
			algo := search.BreadthFirstForward
			if sq.Algorithm == SearchDepthFirst {
				algo = search.DepthFirstForward
			}
			handler := compileConditions(d, sq.Conditions)
			res, err := search.Run(d.g, algo, graph.Index(origin), handler)
			if err != nil {
				return nil, wrapStorageError(err)
			}
			ids = toDbIds(res)

		case sq.HasDestination:
			dest, err := d.ResolveId(sq.Destination)
			if err != nil {
				return nil, err
			}
			algo := search.BreadthFirstReverse
			if sq.Algorithm == SearchDepthFirst {
				algo = search.DepthFirstReverse
			}
			handler := compileConditions(d, sq.Conditions)
			res, err := search.Run(d.g, algo, graph.Index(dest), handler)
			if err != nil {
				return nil, wrapStorageError(err)
			}
			ids = toDbIds(res)

		default:
			return nil, invalidQueryError("search query requires an origin, a destination, or the Elements/Index algorithm")
		}
	}

	return applyOrderAndPaging(d, ids, sq.OrderBy, sq.Offset, sq.Limit)
}

// resolveIds resolves a QueryIds without checking liveness: callers that
// need a fatal error on a missing element (the Select family) must follow
// up with requireLive; Remove and friends tolerate a dead id as a no-op.
func resolveIds(d *DbImpl, qids QueryIds) ([]DbId, error) {
	if qids.Kind == QueryIdsSearch {
		return runSearch(d, *qids.Search)
	}
	out := make([]DbId, 0, len(qids.Ids))
	for _, qid := range qids.Ids {
		id, err := d.ResolveId(qid)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// resolveLiveIds resolves a QueryIds and fails with IdNotFound the moment
// any explicitly-named id turns out dead, per spec.md §7 ("a missing id is
// fatal to the enclosing query"). Search-sourced ids are always live by
// construction, so this is only ever a real check for QueryIdsExplicit.
func resolveLiveIds(d *DbImpl, qids QueryIds) ([]DbId, error) {
	ids, err := resolveIds(d, qids)
	if err != nil {
		return nil, err
	}
	if qids.Kind == QueryIdsSearch {
		return ids, nil
	}
	for _, id := range ids {
		live, err := d.isLive(id)
		if err != nil {
			return nil, err
		}
		if !live {
			return nil, idNotFoundError(id)
		}
	}
	return ids, nil
}

// --- read-only query execution ---

func (d *DbImpl) execSelect(qids QueryIds) (QueryResult, error) {
	ids, err := resolveLiveIds(d, qids)
	if err != nil {
		return QueryResult{}, err
	}
	elems := make([]Element, len(ids))
	for i, id := range ids {
		vals, err := d.Values(id)
		if err != nil {
			return QueryResult{}, err
		}
		elems[i] = Element{Id: id, Values: vals}
	}
	return QueryResult{Elements: elems}, nil
}

func (d *DbImpl) execSelectValues(keys []string, qids QueryIds) (QueryResult, error) {
	tolerant := qids.Kind == QueryIdsSearch
	ids, err := resolveLiveIds(d, qids)
	if err != nil {
		return QueryResult{}, err
	}
	elems := make([]Element, len(ids))
	for i, id := range ids {
		vals, err := d.ValuesByKeys(id, keys, tolerant)
		if err != nil {
			return QueryResult{}, err
		}
		elems[i] = Element{Id: id, Values: vals}
	}
	return QueryResult{Elements: elems}, nil
}

func (d *DbImpl) execSelectKeys(qids QueryIds) (QueryResult, error) {
	ids, err := resolveLiveIds(d, qids)
	if err != nil {
		return QueryResult{}, err
	}
	keys := make([][]string, len(ids))
	for i, id := range ids {
		ks, err := d.Keys(id)
		if err != nil {
			return QueryResult{}, err
		}
		keys[i] = ks
	}
	return QueryResult{Ids: ids, Keys: keys}, nil
}

func (d *DbImpl) execSelectKeyCount(qids QueryIds) (QueryResult, error) {
	ids, err := resolveLiveIds(d, qids)
	if err != nil {
		return QueryResult{}, err
	}
	counts := make([]int, len(ids))
	for i, id := range ids {
		ks, err := d.Keys(id)
		if err != nil {
			return QueryResult{}, err
		}
		counts[i] = len(ks)
	}
	return QueryResult{Ids: ids, KeyCounts: counts}, nil
}

func (d *DbImpl) execSelectAliases(qids QueryIds) (QueryResult, error) {
	ids, err := resolveLiveIds(d, qids)
	if err != nil {
		return QueryResult{}, err
	}
	entries := make([]AliasEntry, 0, len(ids))
	for _, id := range ids {
		name, ok, err := d.Alias(id)
		if err != nil {
			return QueryResult{}, err
		}
		if ok {
			entries = append(entries, AliasEntry{Id: id, Name: name})
		}
	}
	return QueryResult{Aliases: entries}, nil
}

func (d *DbImpl) execSelectAllAliases() (QueryResult, error) {
	all, err := d.AllAliases()
	if err != nil {
		return QueryResult{}, err
	}
	entries := make([]AliasEntry, len(all))
	for i, a := range all {
		entries[i] = AliasEntry{Id: a.Id, Name: a.Name}
	}
	return QueryResult{Aliases: entries}, nil
}

func (d *DbImpl) execSelectEdgeCount(qids QueryIds, from, to bool) (QueryResult, error) {
	ids, err := resolveLiveIds(d, qids)
	if err != nil {
		return QueryResult{}, err
	}
	counts := make([]int64, len(ids))
	for i, id := range ids {
		n, err := d.EdgeCount(id, from, to)
		if err != nil {
			return QueryResult{}, err
		}
		counts[i] = n
	}
	return QueryResult{Ids: ids, Counts: counts}, nil
}

func (d *DbImpl) execSelectIndexes() (QueryResult, error) {
	keys, err := d.IndexedKeys()
	if err != nil {
		return QueryResult{}, err
	}
	return QueryResult{Indexes: keys}, nil
}

func (d *DbImpl) execRunSearch(sq SearchQuery) (QueryResult, error) {
	ids, err := runSearch(d, sq)
	if err != nil {
		return QueryResult{}, err
	}
	return QueryResult{Ids: ids}, nil
}

// --- mutating query execution ---

func valuesFor(qv QueryValues, i int) []KeyValue {
	if qv.Kind == QueryValuesMulti {
		return qv.Multi[i]
	}
	return qv.Single
}

func (d *DbImpl) execInsertNodes(q InsertNodesQuery) (QueryResult, error) {
	if q.Values.Kind == QueryValuesMulti && uint64(len(q.Values.Multi)) != q.Count {
		return QueryResult{}, invalidQueryError(
			fmt.Sprintf("Values len '%d' do not match the insert count '%d'", len(q.Values.Multi), q.Count))
	}
	if uint64(len(q.Aliases)) > q.Count {
		return QueryResult{}, invalidQueryError(
			fmt.Sprintf("Aliases len '%d' exceed the insert count '%d'", len(q.Aliases), q.Count))
	}

	ids := make([]DbId, 0, q.Count)
	for i := uint64(0); i < q.Count; i++ {
		id, err := d.InsertNode()
		if err != nil {
			return QueryResult{}, err
		}
		for _, kv := range valuesFor(q.Values, int(i)) {
			if err := d.InsertOrReplaceKeyValue(id, kv); err != nil {
				return QueryResult{}, err
			}
		}
		if int(i) < len(q.Aliases) {
			if err := d.InsertNewAlias(id, q.Aliases[i]); err != nil {
				return QueryResult{}, err
			}
		}
		ids = append(ids, id)
	}
	return QueryResult{Ids: ids}, nil
}

func (d *DbImpl) execInsertEdges(q InsertEdgesQuery) (QueryResult, error) {
	fromIds, err := resolveLiveIds(d, q.From)
	if err != nil {
		return QueryResult{}, err
	}
	toIds, err := resolveLiveIds(d, q.To)
	if err != nil {
		return QueryResult{}, err
	}

	type pair struct{ from, to DbId }
	var pairs []pair
	if q.Each || len(fromIds) != len(toIds) {
		// Asymmetric from/to lengths fall back to the cartesian product;
		// `each` is assumed whenever a one-to-one pairing isn't possible.
		pairs = make([]pair, 0, len(fromIds)*len(toIds))
		for _, f := range fromIds {
			for _, t := range toIds {
				pairs = append(pairs, pair{f, t})
			}
		}
	} else {
		pairs = make([]pair, len(fromIds))
		for i := range fromIds {
			pairs[i] = pair{fromIds[i], toIds[i]}
		}
	}
	if q.Values.Kind == QueryValuesMulti && len(q.Values.Multi) != len(pairs) {
		return QueryResult{}, invalidQueryError(
			fmt.Sprintf("Values len '%d' do not match the insert count '%d'", len(q.Values.Multi), len(pairs)))
	}

	ids := make([]DbId, 0, len(pairs))
	for i, p := range pairs {
		id, err := d.InsertEdge(p.from, p.to)
		if err != nil {
			return QueryResult{}, err
		}
		for _, kv := range valuesFor(q.Values, i) {
			if err := d.InsertOrReplaceKeyValue(id, kv); err != nil {
				return QueryResult{}, err
			}
		}
		ids = append(ids, id)
	}
	return QueryResult{Ids: ids}, nil
}

func (d *DbImpl) execInsertAliases(q InsertAliasesQuery) (QueryResult, error) {
	ids, err := resolveLiveIds(d, q.Ids)
	if err != nil {
		return QueryResult{}, err
	}
	if len(ids) != len(q.Aliases) {
		return QueryResult{}, invalidQueryError(
			fmt.Sprintf("Aliases len '%d' do not match the ids count '%d'", len(q.Aliases), len(ids)))
	}
	for i, id := range ids {
		if err := d.InsertNewAlias(id, q.Aliases[i]); err != nil {
			return QueryResult{}, err
		}
	}
	return QueryResult{Ids: ids}, nil
}

func (d *DbImpl) execInsertValues(q InsertValuesQuery) (QueryResult, error) {
	ids, err := resolveLiveIds(d, q.Ids)
	if err != nil {
		return QueryResult{}, err
	}
	if q.Values.Kind == QueryValuesMulti && len(q.Values.Multi) != len(ids) {
		return QueryResult{}, invalidQueryError(
			fmt.Sprintf("Values len '%d' do not match the ids count '%d'", len(q.Values.Multi), len(ids)))
	}
	for i, id := range ids {
		for _, kv := range valuesFor(q.Values, i) {
			if err := d.InsertOrReplaceKeyValue(id, kv); err != nil {
				return QueryResult{}, err
			}
		}
	}
	return QueryResult{Ids: ids}, nil
}

func (d *DbImpl) execInsertIndex(key string) (QueryResult, error) {
	return QueryResult{}, d.InsertIndex(key)
}

func (d *DbImpl) execRemove(qids QueryIds) (QueryResult, error) {
	ids, err := resolveIds(d, qids)
	if err != nil {
		return QueryResult{}, err
	}
	for _, id := range ids {
		if err := d.Remove(id); err != nil {
			return QueryResult{}, err
		}
	}
	return QueryResult{Ids: ids}, nil
}

func (d *DbImpl) execRemoveAliases(names []string) (QueryResult, error) {
	for _, name := range names {
		if err := d.RemoveAlias(name); err != nil {
			return QueryResult{}, err
		}
	}
	return QueryResult{}, nil
}

func (d *DbImpl) execRemoveValues(keys []string, qids QueryIds) (QueryResult, error) {
	ids, err := resolveIds(d, qids)
	if err != nil {
		return QueryResult{}, err
	}
	for _, id := range ids {
		if err := d.RemoveValues(id, keys); err != nil {
			return QueryResult{}, err
		}
	}
	return QueryResult{Ids: ids}, nil
}

func (d *DbImpl) execRemoveIndex(key string) (QueryResult, error) {
	return QueryResult{}, d.RemoveIndex(key)
}

// --- dispatch ---

func isMutating(q Query) bool {
	switch q.(type) {
	case InsertNodesQuery, InsertEdgesQuery, InsertAliasesQuery, InsertValuesQuery, InsertIndexQuery,
		RemoveQuery, RemoveAliasesQuery, RemoveValuesQuery, RemoveIndexQuery:
		return true
	default:
		return false
	}
}

func queryKindName(q Query) string {
	switch q.(type) {
	case SelectQuery:
		return "Select"
	case SelectValuesQuery:
		return "SelectValues"
	case SelectKeysQuery:
		return "SelectKeys"
	case SelectKeyCountQuery:
		return "SelectKeyCount"
	case SelectAliasesQuery:
		return "SelectAliases"
	case SelectAllAliasesQuery:
		return "SelectAllAliases"
	case SelectEdgeCountQuery:
		return "SelectEdgeCount"
	case SelectIndexesQuery:
		return "SelectIndexes"
	case RunSearchQuery:
		return "Search"
	case InsertNodesQuery:
		return "InsertNodes"
	case InsertEdgesQuery:
		return "InsertEdges"
	case InsertAliasesQuery:
		return "InsertAliases"
	case InsertValuesQuery:
		return "InsertValues"
	case InsertIndexQuery:
		return "InsertIndex"
	case RemoveQuery:
		return "Remove"
	case RemoveAliasesQuery:
		return "RemoveAliases"
	case RemoveValuesQuery:
		return "RemoveValues"
	case RemoveIndexQuery:
		return "RemoveIndex"
	default:
		return "Unknown"
	}
}

func querySummary(q Query) string {
	switch qq := q.(type) {
	case InsertNodesQuery:
		return fmt.Sprintf("count=%d aliases=%d", qq.Count, len(qq.Aliases))
	case InsertEdgesQuery:
		return fmt.Sprintf("each=%v", qq.Each)
	case InsertAliasesQuery:
		return fmt.Sprintf("aliases=%d", len(qq.Aliases))
	case InsertValuesQuery:
		return fmt.Sprintf("kind=%d", qq.Values.Kind)
	case InsertIndexQuery:
		return fmt.Sprintf("key=%s", qq.Key)
	case RemoveQuery:
		return "ids"
	case RemoveAliasesQuery:
		return fmt.Sprintf("aliases=%d", len(qq.Aliases))
	case RemoveValuesQuery:
		return fmt.Sprintf("keys=%d", len(qq.Keys))
	case RemoveIndexQuery:
		return fmt.Sprintf("key=%s", qq.Key)
	default:
		return ""
	}
}

func (d *DbImpl) dispatch(q Query) (QueryResult, error) {
	switch qq := q.(type) {
	case SelectQuery:
		return d.execSelect(qq.Ids)
	case SelectValuesQuery:
		return d.execSelectValues(qq.Keys, qq.Ids)
	case SelectKeysQuery:
		return d.execSelectKeys(qq.Ids)
	case SelectKeyCountQuery:
		return d.execSelectKeyCount(qq.Ids)
	case SelectAliasesQuery:
		return d.execSelectAliases(qq.Ids)
	case SelectAllAliasesQuery:
		return d.execSelectAllAliases()
	case SelectEdgeCountQuery:
		return d.execSelectEdgeCount(qq.Ids, qq.From, qq.To)
	case SelectIndexesQuery:
		return d.execSelectIndexes()
	case RunSearchQuery:
		return d.execRunSearch(qq.Search)
	case InsertNodesQuery:
		return d.execInsertNodes(qq)
	case InsertEdgesQuery:
		return d.execInsertEdges(qq)
	case InsertAliasesQuery:
		return d.execInsertAliases(qq)
	case InsertValuesQuery:
		return d.execInsertValues(qq)
	case InsertIndexQuery:
		return d.execInsertIndex(qq.Key)
	case RemoveQuery:
		return d.execRemove(qq.Ids)
	case RemoveAliasesQuery:
		return d.execRemoveAliases(qq.Aliases)
	case RemoveValuesQuery:
		return d.execRemoveValues(qq.Keys, qq.Ids)
	case RemoveIndexQuery:
		return d.execRemoveIndex(qq.Key)
	default:
		return QueryResult{}, invalidQueryError("unrecognized query")
	}
}

// Execute runs q to completion per spec.md §4.10/§6.1's protocol: begin a
// transaction, resolve ids, perform the operation, append an audit entry
// for mutating queries, and commit — or roll back the whole transaction if
// any step fails. user and unixNanos are the audit entry's attribution and
// timestamp; the core never reads the system clock itself (spec.md §9).
func (d *DbImpl) Execute(q Query, user string, unixNanos int64) (QueryResult, error) {
	var result QueryResult
	mutating := isMutating(q)
	err := d.transaction(func() error {
		r, err := d.dispatch(q)
		if err != nil {
			return err
		}
		result = r
		if mutating {
			return d.recordAudit(user, queryKindName(q), querySummary(q), unixNanos)
		}
		return nil
	})
	if err != nil {
		return QueryResult{}, err
	}
	return result, nil
}
