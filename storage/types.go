// Package storage implements the transactional, byte-addressable,
// file-backed value store that everything else in lattice is built on: a
// write-ahead log for crash recovery (wal.go), an index-to-(position,size)
// record table with free-list reuse (recordtable.go), and the Storage
// engine that ties the two together behind Insert/Value/Remove and nested
// transactions (storage.go).
package storage

import "fmt"

// Index identifies a variable-size value inside a Storage file. Index 0 is
// reserved as the record table's free-list head and is never a valid value
// handle.
type Index uint64

// Position is a byte offset into the main storage file.
type Position uint64

// Size is the byte length of a stored value, excluding its header.
type Size uint64

// ErrorKind enumerates the DbError variants from spec.md §7.
type ErrorKind int

const (
	ErrOutOfBounds ErrorKind = iota
	ErrIndexNotFound
	ErrSerialization
	ErrIO
)

func (k ErrorKind) String() string {
	switch k {
	case ErrOutOfBounds:
		return "OutOfBounds"
	case ErrIndexNotFound:
		return "IndexNotFound"
	case ErrSerialization:
		return "Serialization"
	case ErrIO:
		return "Io"
	default:
		return "Unknown"
	}
}

// DbError is the storage layer's error type. It carries a stable,
// human-readable Description plus an optional chain of causes, each
// tagged with the source location that produced it (recorded via
// runtime.Caller, formatted only by Verbose() so the plain
// Error() string stays stable for tests).
type DbError struct {
	Kind        ErrorKind
	Description string
	causedBy    *DbError
	location    string
}

func (e *DbError) Error() string {
	if e == nil {
		return ""
	}
	return e.Description
}

// Unwrap exposes the cause chain to errors.Is/errors.As.
func (e *DbError) Unwrap() error {
	if e == nil || e.causedBy == nil {
		return nil
	}
	return e.causedBy
}

// Verbose renders the full caused-by chain with source breadcrumbs, for
// logs and debugging — never used for the user-visible Error() string.
func (e *DbError) Verbose() string {
	if e == nil {
		return ""
	}
	s := fmt.Sprintf("%s: %s", e.location, e.Description)
	if e.causedBy != nil {
		s += "\ncaused by: " + e.causedBy.Verbose()
	}
	return s
}

// NewError builds a DbError with a stable description.
func NewError(kind ErrorKind, description string) *DbError {
	return &DbError{Kind: kind, Description: description, location: caller(2)}
}

// Wrap attaches cause as the caused-by of a new DbError of kind with
// description, preserving the stable description path while still
// threading the source chain for Verbose().
func Wrap(kind ErrorKind, description string, cause error) *DbError {
	e := &DbError{Kind: kind, Description: description, location: caller(2)}
	if de, ok := cause.(*DbError); ok {
		e.causedBy = de
	} else if cause != nil {
		e.causedBy = &DbError{Kind: ErrIO, Description: cause.Error(), location: e.location}
	}
	return e
}

func IndexNotFoundError(index Index) *DbError {
	return NewError(ErrIndexNotFound, fmt.Sprintf("Index '%d' not found", index))
}

func OutOfBoundsError() *DbError {
	return NewError(ErrOutOfBounds, "Value out of bounds")
}
