package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("lattice/storage")

// recordHeaderSize is the fixed [index u64][size u64] prefix written
// before every record's payload in the main file, per spec.md §6.2.
const recordHeaderSize = 16

// checkpointMagicIndex tags the one record in the file that holds a
// serialized record-table snapshot, written on a clean Close so the next
// Open can skip the full scan (spec.md §3: "parses the record table from
// the file tail or a known header index").
const checkpointMagicIndex = ^uint64(0)

// Storage is the transactional, byte-addressable value store described by
// spec.md §4.4. It owns one main file and one WAL file and is the sole
// owner of both; everything above it (collections, dictionary, graph)
// reaches the file only through Storage's API.
type Storage struct {
	mu    sync.Mutex // guards file, table, length
	file  *os.File
	path  string
	wal   *wal
	table *recordTable
	length Position // current logical end of file (excludes any checkpoint record)

	txMu    sync.Mutex // guards txDepth, txErr; separate from mu so fail() never deadlocks a caller holding mu
	txDepth int
	txErr   error
}

// Open opens (creating if necessary) the storage file at path, replaying
// its WAL and rebuilding the record table, per spec.md §3's lifecycle.
func Open(path string) (*Storage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, Wrap(ErrIO, "failed to open storage file", err)
	}
	w, err := openWAL(walPath(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	s := &Storage{file: f, path: path, wal: w}
	if err := s.recover(); err != nil {
		f.Close()
		w.close()
		return nil, err
	}
	if err := s.load(); err != nil {
		f.Close()
		w.close()
		return nil, err
	}
	return s, nil
}

func walPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	return filepath.Join(dir, "."+base)
}

// recover replays the WAL in reverse order against the main file, undoing
// any writes from an interrupted transaction, per spec.md §4.2.
func (s *Storage) recover() error {
	records, err := s.wal.records()
	if err != nil {
		return Wrap(ErrIO, "failed to read WAL records", err)
	}
	if len(records) == 0 {
		return nil
	}
	log.Warnf("replaying %d WAL records for %s", len(records), s.path)
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Size == 0 {
			if err := s.file.Truncate(int64(r.Position)); err != nil {
				return Wrap(ErrIO, "failed to truncate during WAL replay", err)
			}
			continue
		}
		if _, err := s.file.WriteAt(r.Bytes, int64(r.Position)); err != nil {
			return Wrap(ErrIO, "failed to rewrite pre-image during WAL replay", err)
		}
	}
	if err := s.file.Sync(); err != nil {
		return Wrap(ErrIO, "failed to sync storage file after WAL replay", err)
	}
	return s.wal.clear()
}

// load rebuilds the in-memory record table: first it tries the checkpoint
// fast path (a trailing snapshot record written by a clean Close), and
// falls back to a full linear scan of the file otherwise.
func (s *Storage) load() error {
	fi, err := s.file.Stat()
	if err != nil {
		return Wrap(ErrIO, "failed to stat storage file", err)
	}
	size := fi.Size()
	if size == 0 {
		s.table = newRecordTable()
		s.length = 0
		return nil
	}

	if table, dataLen, ok := s.tryLoadCheckpoint(size); ok {
		s.table = table
		s.length = dataLen
		return nil
	}
	return s.scanAll(size)
}

// tryLoadCheckpoint reads the last 8 bytes of the file as a footer
// pointing at a checkpoint record; it returns false whenever
// anything doesn't line up exactly, in which case the caller must fall
// back to a full scan.
func (s *Storage) tryLoadCheckpoint(size int64) (*recordTable, Position, bool) {
	if size < 8 {
		return nil, 0, false
	}
	footer := make([]byte, 8)
	if _, err := s.file.ReadAt(footer, size-8); err != nil {
		return nil, 0, false
	}
	headerPos := int64(binary.LittleEndian.Uint64(footer))
	if headerPos < 0 || headerPos+recordHeaderSize > size-8 {
		return nil, 0, false
	}
	head := make([]byte, recordHeaderSize)
	if _, err := s.file.ReadAt(head, headerPos); err != nil {
		return nil, 0, false
	}
	index := binary.LittleEndian.Uint64(head[0:8])
	payloadSize := binary.LittleEndian.Uint64(head[8:16])
	if index != checkpointMagicIndex {
		return nil, 0, false
	}
	if headerPos+recordHeaderSize+int64(payloadSize)+8 != size {
		return nil, 0, false
	}
	payload := make([]byte, payloadSize)
	if _, err := s.file.ReadAt(payload, headerPos+recordHeaderSize); err != nil {
		return nil, 0, false
	}
	table, err := deserializeRecordTable(payload)
	if err != nil {
		return nil, 0, false
	}
	return table, Position(headerPos), true
}

// scanAll rebuilds the record table by reading every [index,size,payload]
// record from offset 0 to size, per spec.md §6.2. Later records for the
// same index supersede earlier ones (the earlier bytes are dead space,
// reclaimed by ShrinkToFit).
func (s *Storage) scanAll(size int64) error {
	t := newRecordTable()
	var pos int64
	for pos < size {
		head := make([]byte, recordHeaderSize)
		if _, err := s.file.ReadAt(head, pos); err != nil {
			return Wrap(ErrIO, "failed to scan storage file", err)
		}
		index := binary.LittleEndian.Uint64(head[0:8])
		payloadSize := binary.LittleEndian.Uint64(head[8:16])
		payloadPos := pos + recordHeaderSize
		if index == checkpointMagicIndex {
			pos = payloadPos + int64(payloadSize)
			continue
		}
		for Index(index) >= Index(len(t.records)) {
			t.records = append(t.records, record{})
		}
		t.records[index] = record{Position: Position(payloadPos), Size: Size(payloadSize)}
		pos = payloadPos + int64(payloadSize)
	}
	// Rebuild the free-list head from any hole (index 0 is always the
	// table's own free-list head and never appears as a record).
	for i := len(t.records) - 1; i >= 1; i-- {
		if t.records[i].Size == 0 {
			t.records[i].Position = t.records[0].Position
			t.records[0].Position = Position(i)
		}
	}
	s.table = t
	s.length = Position(size)
	return nil
}

// --- transactions ---

// Transaction begins (or joins, if already inside one) a nested
// transaction. Only the outermost Commit persists; any error anywhere in
// the nesting poisons the whole transaction for rollback on Rollback.
func (s *Storage) Transaction() {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.txDepth++
}

// Commit ends one level of transaction nesting. Only when the outermost
// level commits does the WAL get cleared and the file flushed.
func (s *Storage) Commit() error {
	s.txMu.Lock()
	if s.txDepth == 0 {
		s.txMu.Unlock()
		return NewError(ErrIO, "commit called with no open transaction")
	}
	s.txDepth--
	if s.txDepth > 0 {
		s.txMu.Unlock()
		return nil
	}
	txErr := s.txErr
	s.txErr = nil
	s.txMu.Unlock()
	if txErr != nil {
		return txErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Sync(); err != nil {
		return Wrap(ErrIO, "failed to sync storage file on commit", err)
	}
	return s.wal.clear()
}

// Rollback aborts the current transaction at every nesting level by
// replaying the WAL, matching spec.md §5's "poisons the transaction and
// forces rollback on the outermost drop".
func (s *Storage) Rollback() error {
	s.txMu.Lock()
	s.txDepth = 0
	s.txErr = nil
	s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recover(); err != nil {
		return err
	}
	return s.load()
}

// fail records err as the reason the enclosing transaction must roll back,
// and returns it unchanged for the caller to propagate. It never takes
// mu, so it is always safe to call from a method that is already holding
// mu (most call sites in this file are; resizeValue releases mu first).
func (s *Storage) fail(err error) error {
	if err == nil {
		return nil
	}
	s.txMu.Lock()
	if s.txErr == nil {
		if de, ok := err.(*DbError); ok {
			s.txErr = de
		} else {
			s.txErr = Wrap(ErrIO, err.Error(), err)
		}
	}
	s.txMu.Unlock()
	return err
}

// maybeAutoCommit flushes and clears the WAL immediately when called
// outside any explicit Transaction()/Commit() bracket (txDepth == 0),
// giving single, unbracketed mutations autocommit durability instead of
// leaving stale WAL records around to be incorrectly replayed against a
// later transaction. Callers hold mu when they call this; it only touches
// the file and the WAL, both already guarded by mu/wal's own lock.
func (s *Storage) maybeAutoCommit() error {
	s.txMu.Lock()
	depth := s.txDepth
	s.txMu.Unlock()
	if depth != 0 {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return Wrap(ErrIO, "failed to sync storage file", err)
	}
	return s.wal.clear()
}

// --- low-level byte operations ---

// insertBytes appends value at EOF and returns its new index.
func (s *Storage) insertBytes(value []byte) (Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.length
	index := s.table.create(Position(pos)+recordHeaderSize, Size(len(value)))

	if err := s.walLogExtension(pos); err != nil {
		return 0, s.fail(err)
	}
	if err := s.writeRecord(pos, uint64(index), value); err != nil {
		return 0, s.fail(err)
	}
	if err := s.maybeAutoCommit(); err != nil {
		return 0, s.fail(err)
	}
	return index, nil
}

// writeRecord writes [index][size][payload] starting at file offset pos
// and advances s.length past it.
func (s *Storage) writeRecord(pos Position, index uint64, payload []byte) error {
	head := make([]byte, recordHeaderSize)
	binary.LittleEndian.PutUint64(head[0:8], index)
	binary.LittleEndian.PutUint64(head[8:16], uint64(len(payload)))
	if _, err := s.file.WriteAt(head, int64(pos)); err != nil {
		return Wrap(ErrIO, "failed to write record header", err)
	}
	if len(payload) > 0 {
		if _, err := s.file.WriteAt(payload, int64(pos)+recordHeaderSize); err != nil {
			return Wrap(ErrIO, "failed to write record payload", err)
		}
	}
	s.length = pos + recordHeaderSize + Position(len(payload))
	return nil
}

// walLogExtension records an empty pre-image at the current EOF so
// recovery can truncate back if the coming write is interrupted.
func (s *Storage) walLogExtension(pos Position) error {
	return s.wal.insert(pos, nil)
}

// valueBytes returns the full payload stored at index.
func (s *Storage) valueBytes(index Index) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.table.get(index)
	if !ok {
		return nil, IndexNotFoundError(index)
	}
	buf := make([]byte, r.Size)
	if _, err := s.file.ReadAt(buf, int64(r.Position)); err != nil {
		return nil, Wrap(ErrIO, "failed to read value", err)
	}
	return buf, nil
}

// valueAtBytes reads size bytes starting offset bytes into index's value.
func (s *Storage) valueAtBytes(index Index, offset uint64, size uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.table.get(index)
	if !ok {
		return nil, IndexNotFoundError(index)
	}
	if offset+size > uint64(r.Size) {
		return nil, OutOfBoundsError()
	}
	buf := make([]byte, size)
	if _, err := s.file.ReadAt(buf, int64(r.Position)+int64(offset)); err != nil {
		return nil, Wrap(ErrIO, "failed to read partial value", err)
	}
	return buf, nil
}

// ValueSize returns the byte length of the value at index, excluding its
// header.
func (s *Storage) ValueSize(index Index) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.table.get(index)
	if !ok {
		return 0, IndexNotFoundError(index)
	}
	return uint64(r.Size), nil
}

// insertAtBytes writes value starting offset bytes into index's record,
// growing the record (by relocating it) if the write would run past its
// current capacity. Every byte changed in place is WAL-logged first.
func (s *Storage) insertAtBytes(index Index, offset uint64, value []byte) (Index, error) {
	s.mu.Lock()
	r, ok := s.table.get(index)
	s.mu.Unlock()
	if !ok {
		return 0, IndexNotFoundError(index)
	}
	needed := offset + uint64(len(value))
	if needed > uint64(r.Size) {
		if err := s.resizeValue(index, needed); err != nil {
			return 0, err
		}
		s.mu.Lock()
		r, _ = s.table.get(index)
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	writeAt := int64(r.Position) + int64(offset)
	preimage := make([]byte, len(value))
	if _, err := s.file.ReadAt(preimage, writeAt); err != nil && err != io.EOF {
		return 0, s.fail(Wrap(ErrIO, "failed to read pre-image for in-place write", err))
	}
	if err := s.wal.insert(Position(writeAt), preimage); err != nil {
		return 0, s.fail(err)
	}
	if _, err := s.file.WriteAt(value, writeAt); err != nil {
		return 0, s.fail(Wrap(ErrIO, "failed to write value in place", err))
	}
	if err := s.maybeAutoCommit(); err != nil {
		return 0, s.fail(err)
	}
	return index, nil
}

// resizeValue grows or shrinks the record at index to newSize bytes by
// relocating it to EOF and freeing the old position; callers that only
// need to grow within existing capacity should prefer insertAtBytes.
func (s *Storage) resizeValue(index Index, newSize uint64) error {
	old, err := s.valueBytes(index)
	if err != nil {
		return err
	}
	grown := make([]byte, newSize)
	copy(grown, old)

	s.mu.Lock()
	pos := s.length
	if err := s.walLogExtension(pos); err != nil {
		s.mu.Unlock()
		return s.fail(err)
	}
	if err := s.writeRecord(pos, uint64(index), grown); err != nil {
		s.mu.Unlock()
		return s.fail(err)
	}
	s.table.set(index, record{Position: pos + recordHeaderSize, Size: Size(newSize)})
	if err := s.maybeAutoCommit(); err != nil {
		s.mu.Unlock()
		return s.fail(err)
	}
	s.mu.Unlock()
	return nil
}

// Remove marks index's slot free. The bytes are not reclaimed from the
// file until ShrinkToFit runs.
func (s *Storage) Remove(index Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.table.get(index); !ok {
		return IndexNotFoundError(index)
	}
	s.table.remove(index)
	if err := s.maybeAutoCommit(); err != nil {
		return s.fail(err)
	}
	return nil
}

// moveAtBytes performs an intra-record memmove of size bytes from offset
// from to offset to, WAL-logging both halves of the affected range.
func (s *Storage) moveAtBytes(index Index, from, to, size uint64) error {
	s.mu.Lock()
	r, ok := s.table.get(index)
	s.mu.Unlock()
	if !ok {
		return IndexNotFoundError(index)
	}
	if from+size > uint64(r.Size) || to+size > uint64(r.Size) {
		return OutOfBoundsError()
	}
	buf := make([]byte, size)
	if _, err := s.file.ReadAt(buf, int64(r.Position)+int64(from)); err != nil {
		return Wrap(ErrIO, "failed to read source range for move", err)
	}
	_, err := s.insertAtBytes(index, to, buf)
	return err
}

// ShrinkToFit compacts the file by sliding every live record toward the
// start, in ascending position order, eliminating the dead space left by
// Remove and by record relocation. It requires no open transaction.
func (s *Storage) ShrinkToFit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.length
	indexes := s.table.indexesByPosition()
	var write Position
	for _, idx := range indexes {
		r, _ := s.table.get(idx)
		if Position(r.Position) == write+recordHeaderSize {
			write = r.Position + Position(r.Size)
			continue
		}
		buf := make([]byte, r.Size)
		if _, err := s.file.ReadAt(buf, int64(r.Position)); err != nil {
			return Wrap(ErrIO, "failed to read record during shrink", err)
		}
		if err := s.writeRecordNoWAL(write, uint64(idx), buf); err != nil {
			return err
		}
		s.table.set(idx, record{Position: write + recordHeaderSize, Size: r.Size})
		write = write + recordHeaderSize + Position(r.Size)
	}
	if err := s.file.Truncate(int64(write)); err != nil {
		return Wrap(ErrIO, "failed to truncate storage file after shrink", err)
	}
	s.length = write
	log.Infof("shrink_to_fit: %s -> %s", humanize.Bytes(uint64(before)), humanize.Bytes(uint64(write)))
	return nil
}

// writeRecordNoWAL is used only by ShrinkToFit, which is defined to run
// outside a transaction and whose compaction is always redone from
// scratch (via a rescan) if interrupted, so it does not need WAL logging.
func (s *Storage) writeRecordNoWAL(pos Position, index uint64, payload []byte) error {
	head := make([]byte, recordHeaderSize)
	binary.LittleEndian.PutUint64(head[0:8], index)
	binary.LittleEndian.PutUint64(head[8:16], uint64(len(payload)))
	if _, err := s.file.WriteAt(head, int64(pos)); err != nil {
		return Wrap(ErrIO, "failed to write record header during shrink", err)
	}
	if len(payload) > 0 {
		if _, err := s.file.WriteAt(payload, int64(pos)+recordHeaderSize); err != nil {
			return Wrap(ErrIO, "failed to write record payload during shrink", err)
		}
	}
	return nil
}

// Close flushes a checkpoint snapshot of the record table (so the next
// Open can skip the full scan), then closes the main file and the WAL.
func (s *Storage) Close() error {
	s.mu.Lock()
	payload := s.table.serialize()
	pos := s.length
	if err := s.writeRecordNoWAL(pos, checkpointMagicIndex, payload); err != nil {
		s.mu.Unlock()
		return err
	}
	footer := make([]byte, 8)
	binary.LittleEndian.PutUint64(footer, uint64(pos))
	if _, err := s.file.WriteAt(footer, int64(pos)+recordHeaderSize+int64(len(payload))); err != nil {
		s.mu.Unlock()
		return Wrap(ErrIO, "failed to write checkpoint footer", err)
	}
	if err := s.file.Sync(); err != nil {
		s.mu.Unlock()
		return Wrap(ErrIO, "failed to sync storage file on close", err)
	}
	s.mu.Unlock()

	if err := s.wal.close(); err != nil {
		return err
	}
	return s.file.Close()
}

func (s *Storage) String() string {
	return fmt.Sprintf("Storage{path=%s, length=%d}", s.path, s.length)
}
