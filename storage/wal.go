package storage

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var walLog = logging.Logger("lattice/storage/wal")

// walBufferSize mirrors the teacher's blockBufferSize: the Linux pipe size,
// a reasonable buffered-writer chunk for append-only journals.
const walBufferSize = 16 * 4096

// walRecord is one pre-image entry: the byte range [Position, Position+len(Bytes))
// in the main file as it looked before the write that is about to happen.
// An empty Bytes (Size 0) means "the file was extended past
// Position; truncate back to Position on recovery".
type walRecord struct {
	Position Position
	Size     uint64
	Bytes    []byte
}

// wal is the write-ahead log: an append-only file of pre-images, replayed
// in reverse to undo an interrupted sequence of in-place writes.
type wal struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

func openWAL(path string) (*wal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, Wrap(ErrIO, "failed to open WAL file", err)
	}
	w := &wal{
		file:   f,
		writer: bufio.NewWriterSize(f, walBufferSize),
		path:   path,
	}
	if err := w.repair(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// insert appends one pre-image record to the log.
func (w *wal) insert(pos Position, preimage []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	head := make([]byte, 16)
	binary.LittleEndian.PutUint64(head[0:8], uint64(pos))
	binary.LittleEndian.PutUint64(head[8:16], uint64(len(preimage)))
	if _, err := w.writer.Write(head); err != nil {
		return Wrap(ErrIO, "failed to append WAL record header", err)
	}
	if len(preimage) > 0 {
		if _, err := w.writer.Write(preimage); err != nil {
			return Wrap(ErrIO, "failed to append WAL record payload", err)
		}
	}
	if err := w.writer.Flush(); err != nil {
		return Wrap(ErrIO, "failed to flush WAL writer", err)
	}
	if err := w.file.Sync(); err != nil {
		return Wrap(ErrIO, "failed to sync WAL file", err)
	}
	return nil
}

// records reads every record from the start of the file to the end, in
// the order they were written.
func (w *wal) records() ([]walRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readAll()
}

func (w *wal) readAll() ([]walRecord, error) {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, Wrap(ErrIO, "failed to seek WAL file", err)
	}
	r := bufio.NewReader(w.file)
	var out []walRecord
	for {
		head := make([]byte, 16)
		if _, err := io.ReadFull(r, head); err != nil {
			if err == io.EOF {
				break
			}
			return out, err
		}
		pos := Position(binary.LittleEndian.Uint64(head[0:8]))
		size := binary.LittleEndian.Uint64(head[8:16])
		var payload []byte
		if size > 0 {
			payload = make([]byte, size)
			if _, err := io.ReadFull(r, payload); err != nil {
				return out, err
			}
		}
		out = append(out, walRecord{Position: pos, Size: size, Bytes: payload})
	}
	return out, nil
}

// clear truncates the WAL to zero length. Called after a successful
// outermost commit or a successful recovery replay.
func (w *wal) clear() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return Wrap(ErrIO, "failed to truncate WAL file", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return Wrap(ErrIO, "failed to seek WAL file after truncate", err)
	}
	w.writer.Reset(w.file)
	return nil
}

// repair walks the file on open; on any malformed trailing record it
// truncates back to the last valid record boundary, mirroring the
// teacher's defensive posture toward interrupted writes.
func (w *wal) repair() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return Wrap(ErrIO, "failed to seek WAL file for repair", err)
	}
	r := bufio.NewReader(w.file)
	var validEnd int64
	var pos int64
	for {
		head := make([]byte, 16)
		n, err := io.ReadFull(r, head)
		if err != nil {
			break
		}
		pos += int64(n)
		size := binary.LittleEndian.Uint64(head[8:16])
		payload := make([]byte, size)
		m, err := io.ReadFull(r, payload)
		pos += int64(m)
		if err != nil || uint64(m) != size {
			break
		}
		validEnd = pos
	}
	if fi, err := w.file.Stat(); err == nil && fi.Size() != validEnd {
		walLog.Warnf("truncating malformed WAL tail at %s from %d to %d bytes", w.path, fi.Size(), validEnd)
		if err := w.file.Truncate(validEnd); err != nil {
			return Wrap(ErrIO, "failed to truncate malformed WAL tail", err)
		}
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return Wrap(ErrIO, "failed to seek WAL file to end after repair", err)
	}
	w.writer.Reset(w.file)
	return nil
}

func (w *wal) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return Wrap(ErrIO, "failed to flush WAL writer on close", err)
	}
	return w.file.Close()
}
