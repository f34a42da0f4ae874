// Package db implements the embedded graph database core of spec.md: a
// single storage.Storage file, an incidence graph, two reference-counted
// value dictionaries, alias/index lookups, an audit log, and the closed
// Query/Condition algebra dispatched by Execute.
//
// Concurrency. DbImpl is single-writer and takes no internal lock
// (spec.md §5): every call is synchronous, there are no suspension
// points, and nothing inside the package coordinates concurrent access
// to the same *DbImpl. A host embedding DbImpl across goroutines must
// provide its own guard, and that guard must hold an exclusive lock for
// every Execute call, read-only queries included: Execute runs each query
// inside a storage transaction that is committed, or rolled back through
// the WAL when the query fails, and resolving an alias name packs it
// through the key dictionary. Concurrent readers of one *DbImpl are not
// supported. The storage file itself is
// opened read+write with no OS-level file locking, so the host is also
// responsible for ensuring only one process opens a given database file
// at a time.
package db
