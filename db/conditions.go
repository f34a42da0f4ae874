package db

import (
	"sort"

	"github.com/latticedb/lattice/graph"
	"github.com/latticedb/lattice/search"
)

// Condition is spec.md §4.9's closed set of search filters, compiled into a
// search.Handler by compileConditions. Each variant implements it via an
// unexported marker method, the same closed-interface pattern Query uses.
type Condition interface{ isCondition() }

type EqualCondition struct {
	Key   string
	Value Value
}

type GreaterThanCondition struct {
	Key   string
	Value Value
}

type ContainsCondition struct {
	Key   string
	Value Value
}

// KeyValueCondition is SearchIndex's required single condition: it both
// filters a traversal and, alone, names the (key, value) an Index search
// looks up directly.
type KeyValueCondition struct {
	Key   string
	Value Value
}

type AndCondition struct{ Conditions []Condition }

type OrCondition struct{ Conditions []Condition }

type NotCondition struct{ Condition Condition }

// NotBeyondCondition prunes the subtree rooted at the current element when
// its inner condition holds, per spec.md §4.9.
type NotBeyondCondition struct{ Condition Condition }

// DistanceCondition matches elements no farther than Max hops from the
// search origin.
type DistanceCondition struct{ Max uint64 }

// EdgeCountCondition matches nodes with exactly Count edges in the
// requested direction(s).
type EdgeCountCondition struct {
	From, To bool
	Count    uint64
}

// KeysCondition matches elements carrying every listed key.
type KeysCondition struct{ Keys []string }

// IdsCondition matches elements whose id resolves to one of Ids.
type IdsCondition struct{ Ids []QueryId }

// NodeCondition matches nodes; EdgeCondition matches edges.
type NodeCondition struct{}
type EdgeCondition struct{}

func (EqualCondition) isCondition()       {}
func (GreaterThanCondition) isCondition() {}
func (ContainsCondition) isCondition()    {}
func (KeyValueCondition) isCondition()    {}
func (AndCondition) isCondition()         {}
func (OrCondition) isCondition()          {}
func (NotCondition) isCondition()         {}
func (NotBeyondCondition) isCondition()   {}
func (DistanceCondition) isCondition()    {}
func (EdgeCountCondition) isCondition()   {}
func (KeysCondition) isCondition()        {}
func (IdsCondition) isCondition()         {}
func (NodeCondition) isCondition()        {}
func (EdgeCondition) isCondition()        {}

// elementValue returns id's value under key, if set.
func elementValue(d *DbImpl, idx graph.Index, key string) (Value, bool, error) {
	vals, err := d.Values(DbId(idx))
	if err != nil {
		return Value{}, false, err
	}
	for _, kv := range vals {
		if kv.Key == key {
			return kv.Value, true, nil
		}
	}
	return Value{}, false, nil
}

// evalCondition evaluates c against idx at the given search distance,
// reporting both whether it matched and whether it demands pruning (a
// NotBeyond condition true anywhere in c's tree).
func evalCondition(d *DbImpl, c Condition, idx graph.Index, distance uint64) (matched bool, prune bool, err error) {
	switch cc := c.(type) {
	case EqualCondition:
		v, ok, err := elementValue(d, idx, cc.Key)
		if err != nil {
			return false, false, err
		}
		return ok && v.Equal(cc.Value), false, nil
	case GreaterThanCondition:
		v, ok, err := elementValue(d, idx, cc.Key)
		if err != nil {
			return false, false, err
		}
		return ok && v.Compare(cc.Value) > 0, false, nil
	case ContainsCondition:
		v, ok, err := elementValue(d, idx, cc.Key)
		if err != nil {
			return false, false, err
		}
		return ok && v.Contains(cc.Value), false, nil
	case KeyValueCondition:
		v, ok, err := elementValue(d, idx, cc.Key)
		if err != nil {
			return false, false, err
		}
		return ok && v.Equal(cc.Value), false, nil
	case AndCondition:
		for _, sub := range cc.Conditions {
			m, p, err := evalCondition(d, sub, idx, distance)
			if err != nil {
				return false, false, err
			}
			prune = prune || p
			if !m {
				return false, prune, nil
			}
		}
		return true, prune, nil
	case OrCondition:
		for _, sub := range cc.Conditions {
			m, p, err := evalCondition(d, sub, idx, distance)
			if err != nil {
				return false, false, err
			}
			prune = prune || p
			if m {
				return true, prune, nil
			}
		}
		return false, prune, nil
	case NotCondition:
		m, p, err := evalCondition(d, cc.Condition, idx, distance)
		if err != nil {
			return false, false, err
		}
		return !m, p, nil
	case NotBeyondCondition:
		m, _, err := evalCondition(d, cc.Condition, idx, distance)
		if err != nil {
			return false, false, err
		}
		return m, m, nil
	case DistanceCondition:
		return distance <= cc.Max, false, nil
	case EdgeCountCondition:
		n, err := d.EdgeCount(DbId(idx), cc.From, cc.To)
		if err != nil {
			return false, false, err
		}
		return uint64(n) == cc.Count, false, nil
	case KeysCondition:
		keys, err := d.Keys(DbId(idx))
		if err != nil {
			return false, false, err
		}
		have := make(map[string]bool, len(keys))
		for _, k := range keys {
			have[k] = true
		}
		for _, want := range cc.Keys {
			if !have[want] {
				return false, false, nil
			}
		}
		return true, false, nil
	case IdsCondition:
		for _, qid := range cc.Ids {
			resolved, err := d.ResolveId(qid)
			if err != nil {
				continue
			}
			if resolved == DbId(idx) {
				return true, false, nil
			}
		}
		return false, false, nil
	case NodeCondition:
		return idx.IsNode(), false, nil
	case EdgeCondition:
		return idx.IsEdge(), false, nil
	default:
		return false, false, invalidQueryError("unrecognized condition")
	}
}

// compileConditions folds conds with implicit AND into a search.Handler:
// inclusion requires every condition to match, and any NotBeyond match
// stops expansion of the current element's subtree without ending the
// whole walk.
func compileConditions(d *DbImpl, conds []Condition) search.HandlerFunc {
	return func(idx graph.Index, distance uint64) (search.Control, error) {
		matched := true
		prune := false
		for _, c := range conds {
			m, p, err := evalCondition(d, c, idx, distance)
			if err != nil {
				return search.Control{}, err
			}
			matched = matched && m
			prune = prune || p
		}
		if prune {
			return search.Stop(matched), nil
		}
		return search.Continue(matched), nil
	}
}

// applyOrderAndPaging sorts ids per orderBy (stable, multi-key), then
// slices to [offset, offset+limit), per spec.md §4.9's "Ordering and
// paging" (limit == 0 means unbounded).
func applyOrderAndPaging(d *DbImpl, ids []DbId, orderBy []KeyOrder, offset, limit uint64) ([]DbId, error) {
	if len(orderBy) > 0 {
		values := make([][]Value, len(ids))
		for i, id := range ids {
			row := make([]Value, len(orderBy))
			for j, ko := range orderBy {
				v, ok, err := elementValue(d, graph.Index(id), ko.Key)
				if err != nil {
					return nil, err
				}
				if ok {
					row[j] = v
				} else {
					row[j] = NewNone()
				}
			}
			values[i] = row
		}
		order := make([]int, len(ids))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			ai, bi := order[a], order[b]
			for j, ko := range orderBy {
				c := values[ai][j].Compare(values[bi][j])
				if c == 0 {
					continue
				}
				if ko.Direction == Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
		sorted := make([]DbId, len(ids))
		for i, oi := range order {
			sorted[i] = ids[oi]
		}
		ids = sorted
	}

	start := offset
	if start > uint64(len(ids)) {
		start = uint64(len(ids))
	}
	end := uint64(len(ids))
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return ids[start:end], nil
}
