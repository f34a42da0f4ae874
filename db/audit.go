package db

import (
	"github.com/latticedb/lattice/collections"
	"github.com/latticedb/lattice/serialize"
	"github.com/latticedb/lattice/storage"
)

// AuditEntry is one record of the mandatory mutating-query audit log
// (spec.md §4.10, SPEC_FULL §4.10 resolving the "audit mandatory or
// optional" open question in favor of mandatory). QueryKind/QuerySummary
// are plain strings (the query variant's name and a short rendering of
// its arguments) rather than a serialized copy of the whole Query value,
// since the core has no serde feature matrix to gate that on.
type AuditEntry struct {
	Seq         uint64
	UnixNanos   int64
	User        string
	QueryKind   string
	QuerySummary string
}

// auditSlot is AuditEntry's fixed-width on-disk shape: strings over 15
// bytes, and the empty string, are packed as dictionary-backed
// ValueIndexes through the same key
// dictionary that backs property keys and alias names, so the audit log
// can live in a plain StorageVec like everything else.
type auditSlot struct {
	seq       uint64
	unixNanos int64
	user      ValueIndex
	queryKind ValueIndex
	summary   ValueIndex
}

func (s auditSlot) Encode() []byte {
	buf := make([]byte, 64)
	serialize.PutU64(buf[0:8], s.seq)
	serialize.PutI64(buf[8:16], s.unixNanos)
	copy(buf[16:32], s.user[:])
	copy(buf[32:48], s.queryKind[:])
	copy(buf[48:64], s.summary[:])
	return buf
}

func (s auditSlot) StorageLen() uint64 { return 64 }

func decodeAuditSlot(b []byte) (auditSlot, error) {
	if len(b) < 64 {
		return auditSlot{}, serialize.ErrOutOfBounds
	}
	seq, err := serialize.GetU64(b[0:8])
	if err != nil {
		return auditSlot{}, err
	}
	unixNanos, err := serialize.GetI64(b[8:16])
	if err != nil {
		return auditSlot{}, err
	}
	var s auditSlot
	s.seq = seq
	s.unixNanos = unixNanos
	copy(s.user[:], b[16:32])
	copy(s.queryKind[:], b[32:48])
	copy(s.summary[:], b[48:64])
	return s, nil
}

// auditLog is the append-only, monotonically counted mutating-query log of
// spec.md §4.10.
type auditLog struct {
	vec *collections.StorageVec[auditSlot]
}

func newAuditLog(s *storage.Storage) (*auditLog, error) {
	vec, err := collections.NewStorageVec[auditSlot](s, 64, decodeAuditSlot)
	if err != nil {
		return nil, err
	}
	return &auditLog{vec: vec}, nil
}

func openAuditLog(s *storage.Storage, index storage.Index) *auditLog {
	return &auditLog{vec: collections.OpenStorageVec[auditSlot](s, index, 64, decodeAuditSlot)}
}

func (l *auditLog) index() storage.Index { return l.vec.Index() }

func (l *auditLog) len() (uint64, error) { return l.vec.Len() }
