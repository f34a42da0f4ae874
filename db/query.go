package db

// QueryId names a single element, either directly by its DbId or
// indirectly through an alias, per spec.md §6.1's
// `QueryId ::= Id(i64) | Alias(String)`.
type QueryId struct {
	IsAlias bool
	Id      int64
	Alias   string
}

// ElementId names a QueryId directly.
func ElementId(id DbId) QueryId { return QueryId{Id: int64(id)} }

// AliasId names a QueryId by its registered alias.
func AliasId(name string) QueryId { return QueryId{IsAlias: true, Alias: name} }

// QueryIdsKind discriminates QueryIds' two sources.
type QueryIdsKind int

const (
	QueryIdsExplicit QueryIdsKind = iota
	QueryIdsSearch
)

// QueryIds names a set of elements: an explicit list, or whatever a nested
// Search selects, per spec.md §6.1's `QueryIds ::= Ids(...) | Search(...)`.
type QueryIds struct {
	Kind   QueryIdsKind
	Ids    []QueryId
	Search *SearchQuery
}

// IdsOf builds an explicit QueryIds from the given QueryId values.
func IdsOf(ids ...QueryId) QueryIds { return QueryIds{Kind: QueryIdsExplicit, Ids: ids} }

// SearchIds builds a QueryIds sourced from running q.
func SearchIds(q SearchQuery) QueryIds { return QueryIds{Kind: QueryIdsSearch, Search: &q} }

// QueryValuesKind discriminates QueryValues' two shapes.
type QueryValuesKind int

const (
	QueryValuesSingle QueryValuesKind = iota
	QueryValuesMulti
)

// QueryValues supplies the key-value sets an insert writes: one set shared
// by every new element ("Single"), or one distinct set per element
// ("Multi"), per spec.md §6.1's `QueryValues ::= Single(...) | Multi(...)`.
type QueryValues struct {
	Kind   QueryValuesKind
	Single []KeyValue
	Multi  [][]KeyValue
}

// SingleValues builds a QueryValues shared by every inserted element.
func SingleValues(kv []KeyValue) QueryValues { return QueryValues{Kind: QueryValuesSingle, Single: kv} }

// MultiValues builds a QueryValues with one set per inserted element.
func MultiValues(kv [][]KeyValue) QueryValues {
	return QueryValues{Kind: QueryValuesMulti, Multi: kv}
}

// SortDirection orders a SearchQuery's order_by keys.
type SortDirection int

const (
	Asc SortDirection = iota
	Desc
)

// KeyOrder is one (key, direction) entry of a SearchQuery's order_by list.
type KeyOrder struct {
	Key       string
	Direction SortDirection
}

// SearchAlgorithm selects how a SearchQuery walks the graph, per spec.md
// §6.1's "Algorithm choice".
type SearchAlgorithm int

const (
	// SearchBreadthFirst runs forward or reverse BFS depending on which of
	// Origin/Destination is set (both set instead runs shortest path).
	SearchBreadthFirst SearchAlgorithm = iota
	SearchDepthFirst
	// SearchIndex requires exactly one KeyValue condition and performs a
	// direct secondary-index lookup with no traversal.
	SearchIndex
	// SearchElements iterates every live graph element in ascending order.
	SearchElements
)

// SearchQuery is spec.md §6.1's declarative search/traversal request.
type SearchQuery struct {
	Algorithm      SearchAlgorithm
	Origin         QueryId
	HasOrigin      bool
	Destination    QueryId
	HasDestination bool
	Limit          uint64
	Offset         uint64
	OrderBy        []KeyOrder
	Conditions     []Condition
}

// Query is the closed algebraic query type of spec.md §6.1. Every variant
// below implements it via an unexported marker method, closing the set to
// this package and its nine read-only and nine mutating members.
type Query interface{ isQuery() }

// --- read-only ---

type SelectQuery struct{ Ids QueryIds }

type SelectValuesQuery struct {
	Keys []string
	Ids  QueryIds
}

type SelectKeysQuery struct{ Ids QueryIds }

type SelectKeyCountQuery struct{ Ids QueryIds }

type SelectAliasesQuery struct{ Ids QueryIds }

type SelectAllAliasesQuery struct{}

type SelectEdgeCountQuery struct {
	Ids      QueryIds
	From, To bool
}

type SelectIndexesQuery struct{}

type RunSearchQuery struct{ Search SearchQuery }

// --- mutating ---

type InsertNodesQuery struct {
	Count   uint64
	Values  QueryValues
	Aliases []string
}

type InsertEdgesQuery struct {
	From, To QueryIds
	Values   QueryValues
	// Each, when true with multiple From/To ids, inserts one edge per
	// (from, to) pair instead of zipping the two lists positionally.
	Each bool
}

type InsertAliasesQuery struct {
	Ids     QueryIds
	Aliases []string
}

type InsertValuesQuery struct {
	Ids    QueryIds
	Values QueryValues
}

type InsertIndexQuery struct{ Key string }

type RemoveQuery struct{ Ids QueryIds }

type RemoveAliasesQuery struct{ Aliases []string }

type RemoveValuesQuery struct {
	Keys []string
	Ids  QueryIds
}

type RemoveIndexQuery struct{ Key string }

func (SelectQuery) isQuery()           {}
func (SelectValuesQuery) isQuery()     {}
func (SelectKeysQuery) isQuery()       {}
func (SelectKeyCountQuery) isQuery()   {}
func (SelectAliasesQuery) isQuery()    {}
func (SelectAllAliasesQuery) isQuery() {}
func (SelectEdgeCountQuery) isQuery()  {}
func (SelectIndexesQuery) isQuery()    {}
func (RunSearchQuery) isQuery()        {}
func (InsertNodesQuery) isQuery()      {}
func (InsertEdgesQuery) isQuery()      {}
func (InsertAliasesQuery) isQuery()    {}
func (InsertValuesQuery) isQuery()     {}
func (InsertIndexQuery) isQuery()      {}
func (RemoveQuery) isQuery()           {}
func (RemoveAliasesQuery) isQuery()    {}
func (RemoveValuesQuery) isQuery()     {}
func (RemoveIndexQuery) isQuery()      {}

// AliasEntry is one (id, name) pair returned by SelectAliases/SelectAllAliases.
type AliasEntry struct {
	Id   DbId
	Name string
}

// QueryResult carries whichever of its fields the executed Query variant
// populates; unused fields stay nil/zero. Per-id fields (Keys, KeyCounts,
// Counts) are index-aligned with Ids rather than nested inside Element,
// since only a handful of query variants need them.
type QueryResult struct {
	Elements  []Element
	Ids       []DbId
	Keys      [][]string
	KeyCounts []int
	Aliases   []AliasEntry
	Counts    []int64
	Indexes   []string
}
