package db

import (
	"fmt"

	"github.com/latticedb/lattice/storage"
)

// QueryErrorKind enumerates the query-layer error variants of spec.md §7,
// each wrapping (or standing alongside) a *storage.DbError.
type QueryErrorKind int

const (
	ErrInvalidQuery QueryErrorKind = iota
	ErrIdNotFound
	ErrAliasNotFound
	ErrAliasExists
	ErrMissingKey
	ErrIndexNotFound
	ErrIndexConditionInvalid
	ErrSearchUnsupported
	ErrStorage
)

// QueryError is package db's error type: spec.md §7's QueryError, which
// wraps DbError and adds the domain-specific variants a query can fail
// with. Its Error() string is the stable, human-readable description
// spec.md §7 requires to be assertable in tests.
type QueryError struct {
	Kind        QueryErrorKind
	Description string
	cause       error
}

func (e *QueryError) Error() string { return e.Description }

func (e *QueryError) Unwrap() error { return e.cause }

func newQueryError(kind QueryErrorKind, description string) *QueryError {
	return &QueryError{Kind: kind, Description: description}
}

func wrapStorageError(err error) *QueryError {
	if err == nil {
		return nil
	}
	if qe, ok := err.(*QueryError); ok {
		return qe
	}
	return &QueryError{Kind: ErrStorage, Description: err.Error(), cause: err}
}

func idNotFoundError(id DbId) *QueryError {
	return newQueryError(ErrIdNotFound, fmt.Sprintf("Id '%d' not found", int64(id)))
}

func aliasNotFoundError(name string) *QueryError {
	return newQueryError(ErrAliasNotFound, fmt.Sprintf("Alias '%s' not found", name))
}

func aliasExistsError(name string) *QueryError {
	return newQueryError(ErrAliasExists, fmt.Sprintf("Alias '%s' already exists", name))
}

func missingKeyError(key string, id DbId) *QueryError {
	return newQueryError(ErrMissingKey, fmt.Sprintf("Key '%s' not found for id '%d'", key, int64(id)))
}

func indexNotFoundError(key string) *QueryError {
	return newQueryError(ErrIndexNotFound, fmt.Sprintf("Index '%s' not found", key))
}

func invalidQueryError(msg string) *QueryError {
	return newQueryError(ErrInvalidQuery, msg)
}

func searchUnsupportedError(msg string) *QueryError {
	return newQueryError(ErrSearchUnsupported, msg)
}

// asDbError reports whether err is itself a *storage.DbError (a plain type
// assertion; wrapped errors are not unwrapped), for callers that want the
// lower-level classification.
func asDbError(err error) (*storage.DbError, bool) {
	de, ok := err.(*storage.DbError)
	return de, ok
}
