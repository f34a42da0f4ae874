package storage

import "sort"

// record is one entry of the record table: where a value lives and how
// big it is. A zero Size marks a free (unused) slot; for the reserved
// slot 0 and for free slots, Position instead holds the next free index
// (0 meaning "none"), mirroring the teacher's index/recordlist.go "record
// position doubles as free-list link" trick.
type record struct {
	Position Position
	Size     Size
}

// recordTable is the in-memory index→(position,size) map with free-list
// reuse described by spec.md §4.3. Slot 0 is reserved as the free-list
// head: its Position field holds the next free index, or 0 if none.
type recordTable struct {
	records []record // records[0] is the reserved free-list head
}

func newRecordTable() *recordTable {
	return &recordTable{records: []record{{}}}
}

// create allocates a slot for a value at pos with the given size, reusing
// a freed slot when one is available, and returns the new index.
func (t *recordTable) create(pos Position, size Size) Index {
	head := t.records[0]
	if head.Position != 0 {
		idx := Index(head.Position)
		next := t.records[idx]
		t.records[0].Position = next.Position
		t.records[idx] = record{Position: pos, Size: size}
		return idx
	}
	t.records = append(t.records, record{Position: pos, Size: size})
	return Index(len(t.records) - 1)
}

// remove frees index, pushing it onto the free list. Removing an
// already-free or out-of-range index is a no-op.
func (t *recordTable) remove(index Index) {
	if index == 0 || int(index) >= len(t.records) {
		return
	}
	if t.records[index].Size == 0 {
		return
	}
	t.records[index] = record{Position: t.records[0].Position, Size: 0}
	t.records[0].Position = Position(index)
}

// get returns the record at index, or false if the slot is free/out of
// range.
func (t *recordTable) get(index Index) (record, bool) {
	if index == 0 || int(index) >= len(t.records) {
		return record{}, false
	}
	r := t.records[index]
	if r.Size == 0 {
		return record{}, false
	}
	return r, true
}

// set overwrites the record stored at index; index must already be live.
func (t *recordTable) set(index Index, r record) {
	t.records[index] = r
}

// indexesByPosition returns every live index sorted by ascending file
// position, used by Storage.ShrinkToFit.
func (t *recordTable) indexesByPosition() []Index {
	var out []Index
	for i := 1; i < len(t.records); i++ {
		if t.records[i].Size != 0 {
			out = append(out, Index(i))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return t.records[out[a]].Position < t.records[out[b]].Position
	})
	return out
}

// len returns one past the highest index ever allocated (including freed
// slots), i.e. the size of the backing slice.
func (t *recordTable) len() int { return len(t.records) }

// serialize encodes the record table for persistence in the storage file's
// trailer: a u64 count followed by (position u64, size u64) pairs,
// including the reserved slot 0.
func (t *recordTable) serialize() []byte {
	out := make([]byte, 8+16*len(t.records))
	putU64(out[0:8], uint64(len(t.records)))
	for i, r := range t.records {
		off := 8 + i*16
		putU64(out[off:off+8], uint64(r.Position))
		putU64(out[off+8:off+16], uint64(r.Size))
	}
	return out
}

func deserializeRecordTable(data []byte) (*recordTable, error) {
	if len(data) < 8 {
		return nil, OutOfBoundsError()
	}
	count := getU64(data[0:8])
	if uint64(len(data)) < 8+16*count {
		return nil, OutOfBoundsError()
	}
	t := &recordTable{records: make([]record, count)}
	for i := uint64(0); i < count; i++ {
		off := 8 + i*16
		t.records[i] = record{
			Position: Position(getU64(data[off : off+8])),
			Size:     Size(getU64(data[off+8 : off+16])),
		}
	}
	return t, nil
}

func putU64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

func getU64(data []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(data[i]) << (8 * i)
	}
	return v
}
