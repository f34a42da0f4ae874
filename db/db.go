package db

import (
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/latticedb/lattice/collections"
	"github.com/latticedb/lattice/dictionary"
	"github.com/latticedb/lattice/graph"
	"github.com/latticedb/lattice/serialize"
	"github.com/latticedb/lattice/storage"
)

var log = logging.Logger("lattice/db")

// DbId identifies a node (positive) or edge (negative) element, per
// spec.md §3's graph index. It is the same signed-integer space
// package graph uses internally.
type DbId = graph.Index

// Element is one fully materialized query result: an id plus the
// properties selected for it.
type Element struct {
	Id     DbId
	Values []KeyValue
}

// valueCodec is the dictionary.Codec[Value] shared by both the key
// dictionary and the value dictionary (spec.md §4.10: "dictionary (for
// keys and values)" is one content-addressed value pool used twice).
var valueCodec = dictionary.Codec[Value]{
	Serialize:   valueSerialize,
	Deserialize: valueDeserialize,
	Equal:       func(a, b Value) bool { return a.Equal(b) },
}

// storageIndexCodec adapts collections.Uint64Codec to storage.Index.
var storageIndexCodec = collections.Codec[storage.Index]{
	Len:    8,
	Encode: func(v storage.Index) []byte { b := make([]byte, 8); serialize.PutU64(b, uint64(v)); return b },
	Decode: func(b []byte) (storage.Index, error) { v, err := serialize.GetU64(b); return storage.Index(v), err },
}

// bytes32Codec is the fixed Codec for the packed (key ValueIndex, value
// ValueIndex) pair stored per property in the properties MultiMap.
var bytes32Codec = collections.Codec[[32]byte]{
	Len:    32,
	Encode: func(v [32]byte) []byte { return v[:] },
	Decode: func(b []byte) ([32]byte, error) { var out [32]byte; copy(out[:], b); return out, nil },
}

func packKV(key, value ValueIndex) [32]byte {
	var out [32]byte
	copy(out[0:16], key[:])
	copy(out[16:32], value[:])
	return out
}

func unpackKV(b [32]byte) (ValueIndex, ValueIndex) {
	var key, value ValueIndex
	copy(key[:], b[0:16])
	copy(value[:], b[16:32])
	return key, value
}

// DbImpl is the embedded database of spec.md §4.10: storage + graph +
// (key, value) dictionaries + aliases + per-key secondary indexes + an
// audit log, tied together behind transactions and the Query dispatcher.
// Grounded on store/store.go's Store, which ties index+primary+freelist
// together behind one facade; DbImpl generalizes that orchestration.
//
// DbImpl takes no internal lock; see doc.go for the concurrency contract
// hosts embedding it must provide.
type DbImpl struct {
	s             *storage.Storage
	g             *graph.Graph
	dictKey       *dictionary.Dictionary[Value]
	dictValue     *dictionary.Dictionary[Value]
	aliasNameToId *collections.Map[[16]byte, int64]
	aliasIdToName *collections.Map[int64, [16]byte]
	properties    *collections.MultiMap[int64, [32]byte]
	indexRegistry *collections.Map[[16]byte, storage.Index]
	audit         *auditLog
	rootIdx       storage.Index
}

// Open opens (creating if necessary) the database file at path. On first
// open, storage.Open's own WAL replay has already run; DbImpl then either
// loads the root directory from the fixed root index or, on a brand new
// file, allocates every subsystem fresh and writes the root, per spec.md
// §3's lifecycle.
func Open(path string) (*DbImpl, error) {
	s, err := storage.Open(path)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	d, err := open(s)
	if err != nil {
		s.Close()
		return nil, err
	}
	return d, nil
}

func open(s *storage.Storage) (*DbImpl, error) {
	if _, err := s.ValueSize(rootDirectoryStorageIndex); err != nil {
		if de, ok := asDbError(err); !ok || de.Kind != storage.ErrIndexNotFound {
			return nil, wrapStorageError(err)
		}
		return bootstrap(s)
	}
	raw, err := s.ValueBytes(rootDirectoryStorageIndex)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	root, _, err := deserializeRootDirectory(raw)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	return attach(s, root)
}

// bootstrap allocates every subsystem fresh (first open of an empty file)
// and writes the root directory at the fixed, well-known index.
func bootstrap(s *storage.Storage) (*DbImpl, error) {
	placeholderIdx, err := s.InsertBytes(make([]byte, 64))
	if err != nil {
		return nil, wrapStorageError(err)
	}
	if placeholderIdx != rootDirectoryStorageIndex {
		return nil, invalidQueryError("database root must be the first storage record")
	}

	g, err := graph.New(s)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	dictKey, err := dictionary.New(s, valueCodec)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	dictValue, err := dictionary.New(s, valueCodec)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	aliasNameToId, err := collections.NewMap(s, collections.Bytes16Codec, collections.Int64Codec)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	aliasIdToName, err := collections.NewMap(s, collections.Int64Codec, collections.Bytes16Codec)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	properties, err := collections.NewMultiMap(s, collections.Int64Codec, bytes32Codec)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	indexRegistry, err := collections.NewMap(s, collections.Bytes16Codec, storageIndexCodec)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	audit, err := newAuditLog(s)
	if err != nil {
		return nil, wrapStorageError(err)
	}

	graphRootIdx, err := s.InsertBytes(serializeGraphRoots(g.Roots()))
	if err != nil {
		return nil, wrapStorageError(err)
	}
	dictKeyRootIdx, err := s.InsertBytes(serializeDictRoots(dictKey.Roots()))
	if err != nil {
		return nil, wrapStorageError(err)
	}
	dictValueRootIdx, err := s.InsertBytes(serializeDictRoots(dictValue.Roots()))
	if err != nil {
		return nil, wrapStorageError(err)
	}

	root := rootDirectory{
		GraphIndex:         graphRootIdx,
		DictKeyIndex:       dictKeyRootIdx,
		DictValueIndex:     dictValueRootIdx,
		AliasNameToIdIndex: aliasNameToId.Index(),
		AliasIdToNameIndex: aliasIdToName.Index(),
		PropertiesIndex:    properties.Index(),
		IndexRegistryIndex: indexRegistry.Index(),
		AuditLogIndex:      audit.index(),
	}
	if err := s.InsertAtBytes(rootDirectoryStorageIndex, 0, root.Serialize()); err != nil {
		return nil, wrapStorageError(err)
	}

	return &DbImpl{
		s: s, g: g, dictKey: dictKey, dictValue: dictValue,
		aliasNameToId: aliasNameToId, aliasIdToName: aliasIdToName,
		properties: properties, indexRegistry: indexRegistry, audit: audit,
		rootIdx: rootDirectoryStorageIndex,
	}, nil
}

func attach(s *storage.Storage, root rootDirectory) (*DbImpl, error) {
	graphRootsRaw, err := s.ValueBytes(root.GraphIndex)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	graphRoots, err := deserializeGraphRoots(graphRootsRaw)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	dictKeyRootsRaw, err := s.ValueBytes(root.DictKeyIndex)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	dictKeyRoots, err := deserializeDictRoots(dictKeyRootsRaw)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	dictValueRootsRaw, err := s.ValueBytes(root.DictValueIndex)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	dictValueRoots, err := deserializeDictRoots(dictValueRootsRaw)
	if err != nil {
		return nil, wrapStorageError(err)
	}

	return &DbImpl{
		s:             s,
		g:             graph.Open(s, graphRoots),
		dictKey:       dictionary.Open(s, dictKeyRoots, valueCodec),
		dictValue:     dictionary.Open(s, dictValueRoots, valueCodec),
		aliasNameToId: collections.OpenMap(s, root.AliasNameToIdIndex, collections.Bytes16Codec, collections.Int64Codec),
		aliasIdToName: collections.OpenMap(s, root.AliasIdToNameIndex, collections.Int64Codec, collections.Bytes16Codec),
		properties:    collections.OpenMultiMap(s, root.PropertiesIndex, collections.Int64Codec, bytes32Codec),
		indexRegistry: collections.OpenMap(s, root.IndexRegistryIndex, collections.Bytes16Codec, storageIndexCodec),
		audit:         openAuditLog(s, root.AuditLogIndex),
		rootIdx:       rootDirectoryStorageIndex,
	}, nil
}

// Close flushes and closes the underlying storage file and its WAL.
func (d *DbImpl) Close() error { return wrapStorageError(d.s.Close()) }

// Graph exposes the underlying graph for read-only diagnostics (used by
// cmd/latticeinfo); core queries never need it directly.
func (d *DbImpl) Graph() *graph.Graph { return d.g }

// Storage exposes the underlying storage engine for diagnostics.
func (d *DbImpl) Storage() *storage.Storage { return d.s }

// --- transactions ---

// transaction runs fn inside a nested storage transaction: any error
// returned by fn aborts the whole transaction via WAL replay (spec.md §5,
// §7 — "the core catches it, replays the WAL to roll back"); otherwise the
// transaction commits (only the outermost level actually persists).
func (d *DbImpl) transaction(fn func() error) error {
	cid := newCorrelationID()
	d.s.Transaction()
	if err := fn(); err != nil {
		log.Debugf("transaction %s rolled back: %v", cid, err)
		_ = d.s.Rollback()
		return err
	}
	if err := d.s.Commit(); err != nil {
		return wrapStorageError(err)
	}
	return nil
}

// --- key/value (de)duplication through the dictionaries ---

func (d *DbImpl) packKey(key string) (ValueIndex, error) {
	return d.packThrough(d.dictKey, NewString(key))
}

func (d *DbImpl) unpackKey(vi ValueIndex) (string, error) {
	v, err := d.unpackThrough(d.dictKey, vi)
	if err != nil {
		return "", err
	}
	s, _ := v.AsString()
	return s, nil
}

func (d *DbImpl) releaseKey(vi ValueIndex) error { return d.releaseThrough(d.dictKey, vi) }

func (d *DbImpl) packValue(v Value) (ValueIndex, error) {
	return d.packThrough(d.dictValue, v)
}

func (d *DbImpl) unpackValue(vi ValueIndex) (Value, error) {
	return d.unpackThrough(d.dictValue, vi)
}

func (d *DbImpl) releaseValue(vi ValueIndex) error { return d.releaseThrough(d.dictValue, vi) }

func (d *DbImpl) packThrough(dict *dictionary.Dictionary[Value], v Value) (ValueIndex, error) {
	if payload, ok := inlinePayload(v); ok {
		return makeInlineIndex(v.kind, payload), nil
	}
	slot, err := dict.Insert(v)
	if err != nil {
		return ValueIndex{}, wrapStorageError(err)
	}
	return makeDictIndex(v.kind, slot), nil
}

func (d *DbImpl) unpackThrough(dict *dictionary.Dictionary[Value], vi ValueIndex) (Value, error) {
	if vi.isInline() {
		return decodeInlinePayload(vi.tag(), vi[:vi.inlineLen()]), nil
	}
	v, err := dict.Value(vi.dictSlot())
	if err != nil {
		return Value{}, wrapStorageError(err)
	}
	return v, nil
}

func (d *DbImpl) releaseThrough(dict *dictionary.Dictionary[Value], vi ValueIndex) error {
	if vi.isInline() {
		return nil
	}
	return wrapStorageError(dict.Remove(vi.dictSlot()))
}

// --- nodes and edges ---

// InsertNode allocates a fresh node and returns its id.
func (d *DbImpl) InsertNode() (DbId, error) {
	id, err := d.g.InsertNode()
	return id, wrapStorageError(err)
}

// InsertEdge allocates a fresh edge from -> to, both of which must already
// be live nodes.
func (d *DbImpl) InsertEdge(from, to DbId) (DbId, error) {
	id, err := d.g.InsertEdge(from, to)
	return id, wrapStorageError(err)
}

// Remove removes id along with its properties (releasing dictionary
// refcounts), its alias (if any), its secondary-index entries, and, for a
// node, every edge the graph cascades away with it (spec.md §4.10).
func (d *DbImpl) Remove(id DbId) error {
	var cascaded []DbId
	if id.IsNode() {
		live, err := d.g.IsLiveNode(id)
		if err != nil {
			return wrapStorageError(err)
		}
		if !live {
			return nil
		}
		out, err := d.g.OutgoingEdges(id)
		if err != nil {
			return wrapStorageError(err)
		}
		in, err := d.g.IncomingEdges(id)
		if err != nil {
			return wrapStorageError(err)
		}
		cascaded = append(append(cascaded, out...), in...)
	} else {
		live, err := d.g.IsLiveEdge(id)
		if err != nil {
			return wrapStorageError(err)
		}
		if !live {
			return nil
		}
	}

	for _, e := range cascaded {
		if err := d.removeElementMetadata(e); err != nil {
			return err
		}
	}
	if err := d.removeElementMetadata(id); err != nil {
		return err
	}

	if id.IsNode() {
		return wrapStorageError(d.g.RemoveNode(id))
	}
	return wrapStorageError(d.g.RemoveEdge(id))
}

// removeElementMetadata drops id's alias (if a node), properties, and
// secondary-index entries, without touching the graph slot itself.
func (d *DbImpl) removeElementMetadata(id DbId) error {
	if id.IsNode() {
		name, ok, err := d.aliasIdToName.Value(int64(id))
		if err != nil {
			return wrapStorageError(err)
		}
		if ok {
			if err := d.removeAliasEntry(name, int64(id)); err != nil {
				return err
			}
		}
	}
	return d.clearProperties(id)
}

func (d *DbImpl) clearProperties(id DbId) error {
	packed, err := d.properties.Values(int64(id))
	if err != nil {
		return wrapStorageError(err)
	}
	for _, p := range packed {
		keyIdx, valIdx := unpackKV(p)
		key, err := d.unpackKey(keyIdx)
		if err != nil {
			return err
		}
		if err := d.removeFromIndexIfPresent(key, valIdx, id); err != nil {
			return err
		}
		if err := d.releaseValue(valIdx); err != nil {
			return err
		}
		if err := d.releaseKey(keyIdx); err != nil {
			return err
		}
	}
	return wrapStorageError(d.properties.RemoveKey(int64(id)))
}

// --- aliases ---

func (d *DbImpl) removeAliasEntry(nameIdx [16]byte, id int64) error {
	if err := d.aliasNameToId.Remove(nameIdx); err != nil {
		return wrapStorageError(err)
	}
	if err := d.aliasIdToName.Remove(id); err != nil {
		return wrapStorageError(err)
	}
	return d.releaseKey(ValueIndex(nameIdx))
}

// InsertAlias sets id's alias to name, replacing any existing alias for id
// and stealing the name from any other id that held it, mirroring the
// idempotent semantics of spec.md §4.10's insert_alias.
func (d *DbImpl) InsertAlias(id DbId, name string) error {
	if name == "" {
		return invalidQueryError("alias must be a non-empty string")
	}
	nameIdx, err := d.packKey(name)
	if err != nil {
		return err
	}
	nameKey := [16]byte(nameIdx)

	if prevID, ok, err := d.aliasNameToId.Value(nameKey); err != nil {
		return wrapStorageError(err)
	} else if ok && prevID != int64(id) {
		if err := d.removeAliasEntry(nameKey, prevID); err != nil {
			return err
		}
	}
	if prevName, ok, err := d.aliasIdToName.Value(int64(id)); err != nil {
		return wrapStorageError(err)
	} else if ok && prevName != nameKey {
		if err := d.removeAliasEntry(prevName, int64(id)); err != nil {
			return err
		}
	} else if ok {
		// id already holds exactly this name: drop the extra key
		// reference packKey just took so refcounts stay accurate.
		return d.releaseKey(nameIdx)
	}

	if err := d.aliasNameToId.Insert(nameKey, int64(id)); err != nil {
		return wrapStorageError(err)
	}
	return wrapStorageError(d.aliasIdToName.Insert(int64(id), nameKey))
}

// InsertNewAlias sets id's alias to name, failing if name is already taken
// by a different id (spec.md §4.10's insert_new_alias).
func (d *DbImpl) InsertNewAlias(id DbId, name string) error {
	existing, err := d.DbIdForAlias(name)
	if err == nil && existing != id {
		return aliasExistsError(name)
	}
	return d.InsertAlias(id, name)
}

// RemoveAlias removes name's alias entry, failing if name is not in use.
func (d *DbImpl) RemoveAlias(name string) error {
	nameIdx, err := d.packKey(name)
	if err != nil {
		return err
	}
	nameKey := [16]byte(nameIdx)
	id, ok, err := d.aliasNameToId.Value(nameKey)
	if err != nil {
		return wrapStorageError(err)
	}
	if err := d.releaseKey(nameIdx); err != nil {
		return err
	}
	if !ok {
		return aliasNotFoundError(name)
	}
	return d.removeAliasEntry(nameKey, id)
}

// Alias returns id's alias name, if any.
func (d *DbImpl) Alias(id DbId) (string, bool, error) {
	nameKey, ok, err := d.aliasIdToName.Value(int64(id))
	if err != nil {
		return "", false, wrapStorageError(err)
	}
	if !ok {
		return "", false, nil
	}
	name, err := d.unpackKey(ValueIndex(nameKey))
	return name, true, err
}

// AllAliases returns every (id, name) alias pair currently registered.
func (d *DbImpl) AllAliases() ([]struct {
	Id   DbId
	Name string
}, error) {
	var out []struct {
		Id   DbId
		Name string
	}
	var iterErr error
	err := d.aliasIdToName.Iter(func(id int64, nameKey [16]byte) bool {
		name, err := d.unpackKey(ValueIndex(nameKey))
		if err != nil {
			iterErr = err
			return false
		}
		out = append(out, struct {
			Id   DbId
			Name string
		}{Id: DbId(id), Name: name})
		return true
	})
	if err != nil {
		return nil, wrapStorageError(err)
	}
	return out, iterErr
}

// DbIdForAlias resolves a registered alias name to its node id.
func (d *DbImpl) DbIdForAlias(name string) (DbId, error) {
	nameIdx, err := d.packKey(name)
	if err != nil {
		return 0, err
	}
	nameKey := [16]byte(nameIdx)
	id, ok, err := d.aliasNameToId.Value(nameKey)
	if relErr := d.releaseKey(nameIdx); relErr != nil {
		return 0, relErr
	}
	if err != nil {
		return 0, wrapStorageError(err)
	}
	if !ok {
		return 0, aliasNotFoundError(name)
	}
	return DbId(id), nil
}

// ResolveId resolves a QueryId (Id(n) or Alias(s)) to a live DbId.
func (d *DbImpl) ResolveId(qid QueryId) (DbId, error) {
	if qid.IsAlias {
		return d.DbIdForAlias(qid.Alias)
	}
	return DbId(qid.Id), nil
}

// isLive reports whether id currently names a live node or edge.
func (d *DbImpl) isLive(id DbId) (bool, error) {
	if id.IsNode() {
		live, err := d.g.IsLiveNode(id)
		return live, wrapStorageError(err)
	}
	live, err := d.g.IsLiveEdge(id)
	return live, wrapStorageError(err)
}

// --- properties ---

// InsertOrReplaceKeyValue sets id's value under kv.Key, replacing any
// existing value for that key (spec.md §4.10: idempotent, adjusts
// dictionary refcounts, updates any index registered on kv.Key).
func (d *DbImpl) InsertOrReplaceKeyValue(id DbId, kv KeyValue) error {
	keyIdx, err := d.packKey(kv.Key)
	if err != nil {
		return err
	}
	packed, err := d.properties.Values(int64(id))
	if err != nil {
		return wrapStorageError(err)
	}
	for _, p := range packed {
		existingKeyIdx, existingValIdx := unpackKV(p)
		if existingKeyIdx != keyIdx {
			continue
		}
		// Replace: release the old value and the just-packed duplicate
		// key reference (the property already held one), then write the
		// new value under the existing (key,id) binding.
		if err := d.removeFromIndexIfPresent(kv.Key, existingValIdx, id); err != nil {
			return err
		}
		if err := d.releaseValue(existingValIdx); err != nil {
			return err
		}
		if err := d.releaseKey(keyIdx); err != nil {
			return err
		}
		newValIdx, err := d.packValue(kv.Value)
		if err != nil {
			return err
		}
		if err := wrapStorageError(d.properties.RemoveValue(int64(id), p)); err != nil {
			return err
		}
		if err := wrapStorageError(d.properties.Insert(int64(id), packKV(existingKeyIdx, newValIdx))); err != nil {
			return err
		}
		return d.addToIndexIfPresent(kv.Key, newValIdx, id)
	}

	valIdx, err := d.packValue(kv.Value)
	if err != nil {
		return err
	}
	if err := wrapStorageError(d.properties.Insert(int64(id), packKV(keyIdx, valIdx))); err != nil {
		return err
	}
	return d.addToIndexIfPresent(kv.Key, valIdx, id)
}

// Keys returns the property keys set on id, in no particular order.
func (d *DbImpl) Keys(id DbId) ([]string, error) {
	packed, err := d.properties.Values(int64(id))
	if err != nil {
		return nil, wrapStorageError(err)
	}
	out := make([]string, 0, len(packed))
	for _, p := range packed {
		keyIdx, _ := unpackKV(p)
		key, err := d.unpackKey(keyIdx)
		if err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, nil
}

// Values returns every (key, value) pair set on id.
func (d *DbImpl) Values(id DbId) ([]KeyValue, error) {
	packed, err := d.properties.Values(int64(id))
	if err != nil {
		return nil, wrapStorageError(err)
	}
	out := make([]KeyValue, 0, len(packed))
	for _, p := range packed {
		keyIdx, valIdx := unpackKV(p)
		key, err := d.unpackKey(keyIdx)
		if err != nil {
			return nil, err
		}
		val, err := d.unpackValue(valIdx)
		if err != nil {
			return nil, err
		}
		out = append(out, KeyValue{Key: key, Value: val})
	}
	return out, nil
}

// ValuesByKeys returns id's values for exactly the requested keys. If
// tolerant is false (a named id, not a search result), a missing key is a
// fatal MissingKey error; search-sourced ids tolerate absence by simply
// omitting the key, per spec.md §6.1/§7.
func (d *DbImpl) ValuesByKeys(id DbId, keys []string, tolerant bool) ([]KeyValue, error) {
	all, err := d.Values(id)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]Value, len(all))
	for _, kv := range all {
		byKey[kv.Key] = kv.Value
	}
	out := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		v, ok := byKey[k]
		if !ok {
			if tolerant {
				continue
			}
			return nil, missingKeyError(k, id)
		}
		out = append(out, KeyValue{Key: k, Value: v})
	}
	return out, nil
}

// RemoveValues deletes id's values for the given keys (a no-op for keys
// that aren't set).
func (d *DbImpl) RemoveValues(id DbId, keys []string) error {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	packed, err := d.properties.Values(int64(id))
	if err != nil {
		return wrapStorageError(err)
	}
	for _, p := range packed {
		keyIdx, valIdx := unpackKV(p)
		key, err := d.unpackKey(keyIdx)
		if err != nil {
			return err
		}
		if !want[key] {
			continue
		}
		if err := d.removeFromIndexIfPresent(key, valIdx, id); err != nil {
			return err
		}
		if err := d.releaseValue(valIdx); err != nil {
			return err
		}
		if err := d.releaseKey(keyIdx); err != nil {
			return err
		}
		if err := wrapStorageError(d.properties.RemoveValue(int64(id), p)); err != nil {
			return err
		}
	}
	return nil
}

// --- edges ---

// FromId returns edge id's source node.
func (d *DbImpl) FromId(id DbId) (DbId, error) {
	v, err := d.g.From(id)
	return v, wrapStorageError(err)
}

// ToId returns edge id's destination node.
func (d *DbImpl) ToId(id DbId) (DbId, error) {
	v, err := d.g.To(id)
	return v, wrapStorageError(err)
}

// EdgeCount returns the number of id's outgoing and/or incoming edges.
func (d *DbImpl) EdgeCount(id DbId, from, to bool) (int64, error) {
	var n int64
	if from {
		out, err := d.g.OutgoingEdges(id)
		if err != nil {
			return 0, wrapStorageError(err)
		}
		n += int64(len(out))
	}
	if to {
		in, err := d.g.IncomingEdges(id)
		if err != nil {
			return 0, wrapStorageError(err)
		}
		n += int64(len(in))
	}
	return n, nil
}

// --- secondary indexes ---

func (d *DbImpl) indexRegistryKey(key string) ([16]byte, ValueIndex, error) {
	keyIdx, err := d.packKey(key)
	if err != nil {
		return [16]byte{}, ValueIndex{}, err
	}
	return [16]byte(keyIdx), keyIdx, nil
}

// InsertIndex registers a secondary index on key: every existing and
// future (key, value) property creates a value->id lookup entry.
func (d *DbImpl) InsertIndex(key string) error {
	regKey, keyIdx, err := d.indexRegistryKey(key)
	if err != nil {
		return err
	}
	if _, ok, err := d.indexRegistry.Value(regKey); err != nil {
		return wrapStorageError(err)
	} else if ok {
		return d.releaseKey(keyIdx) // already registered: drop the extra key ref, no-op otherwise
	}

	mm, err := collections.NewMultiMap(d.s, collections.Bytes16Codec, collections.Int64Codec)
	if err != nil {
		return wrapStorageError(err)
	}
	if err := d.indexRegistry.Insert(regKey, mm.Index()); err != nil {
		return wrapStorageError(err)
	}

	// Backfill: walk every live element's properties for this key.
	var backfillErr error
	err = d.g.Iter(func(idx graph.Index) bool {
		packed, err := d.properties.Values(int64(idx))
		if err != nil {
			backfillErr = wrapStorageError(err)
			return false
		}
		for _, p := range packed {
			existingKeyIdx, valIdx := unpackKV(p)
			if existingKeyIdx != keyIdx {
				continue
			}
			if err := mm.Insert([16]byte(valIdx), int64(idx)); err != nil {
				backfillErr = wrapStorageError(err)
				return false
			}
		}
		return true
	})
	if err != nil {
		return wrapStorageError(err)
	}
	return backfillErr
}

// RemoveIndex unregisters the secondary index on key.
func (d *DbImpl) RemoveIndex(key string) error {
	regKey, keyIdx, err := d.indexRegistryKey(key)
	if err != nil {
		return err
	}
	if err := d.releaseKey(keyIdx); err != nil {
		return err
	}
	mmIdx, ok, err := d.indexRegistry.Value(regKey)
	if err != nil {
		return wrapStorageError(err)
	}
	if !ok {
		return indexNotFoundError(key)
	}
	if err := d.indexRegistry.Remove(regKey); err != nil {
		return wrapStorageError(err)
	}
	return wrapStorageError(d.s.Remove(mmIdx))
}

// SearchIndex returns every id whose key property equals value, using the
// registered secondary index (spec.md §4.9's Index algorithm).
func (d *DbImpl) SearchIndex(key string, value Value) ([]DbId, error) {
	regKey, keyIdx, err := d.indexRegistryKey(key)
	if err != nil {
		return nil, err
	}
	defer d.releaseKey(keyIdx)
	mmIdx, ok, err := d.indexRegistry.Value(regKey)
	if err != nil {
		return nil, wrapStorageError(err)
	}
	if !ok {
		return nil, indexNotFoundError(key)
	}
	mm := collections.OpenMultiMap(d.s, mmIdx, collections.Bytes16Codec, collections.Int64Codec)
	valIdx, err := d.packValue(value)
	if err != nil {
		return nil, err
	}
	defer d.releaseValue(valIdx)
	ids, err := mm.Values([16]byte(valIdx))
	if err != nil {
		return nil, wrapStorageError(err)
	}
	out := make([]DbId, len(ids))
	for i, id := range ids {
		out[i] = DbId(id)
	}
	return out, nil
}

// IndexedKeys returns every key currently registered as a secondary index.
func (d *DbImpl) IndexedKeys() ([]string, error) {
	var out []string
	var iterErr error
	err := d.indexRegistry.Iter(func(k [16]byte, _ storage.Index) bool {
		key, err := d.unpackKey(ValueIndex(k))
		if err != nil {
			iterErr = err
			return false
		}
		out = append(out, key)
		return true
	})
	if err != nil {
		return nil, wrapStorageError(err)
	}
	return out, iterErr
}

func (d *DbImpl) addToIndexIfPresent(key string, valIdx ValueIndex, id DbId) error {
	regKey, keyIdx, err := d.indexRegistryKey(key)
	if err != nil {
		return err
	}
	defer d.releaseKey(keyIdx)
	mmIdx, ok, err := d.indexRegistry.Value(regKey)
	if err != nil {
		return wrapStorageError(err)
	}
	if !ok {
		return nil
	}
	mm := collections.OpenMultiMap(d.s, mmIdx, collections.Bytes16Codec, collections.Int64Codec)
	return wrapStorageError(mm.Insert([16]byte(valIdx), int64(id)))
}

func (d *DbImpl) removeFromIndexIfPresent(key string, valIdx ValueIndex, id DbId) error {
	regKey, keyIdx, err := d.indexRegistryKey(key)
	if err != nil {
		return err
	}
	defer d.releaseKey(keyIdx)
	mmIdx, ok, err := d.indexRegistry.Value(regKey)
	if err != nil {
		return wrapStorageError(err)
	}
	if !ok {
		return nil
	}
	mm := collections.OpenMultiMap(d.s, mmIdx, collections.Bytes16Codec, collections.Int64Codec)
	return wrapStorageError(mm.RemoveValue([16]byte(valIdx), int64(id)))
}

// --- audit ---

// recordAudit appends a mutating-query entry to the audit log in the same
// storage transaction as the query itself, per spec.md §4.10.
func (d *DbImpl) recordAudit(user, queryKind, summary string, unixNanos int64) error {
	userIdx, err := d.packKey(user)
	if err != nil {
		return err
	}
	kindIdx, err := d.packKey(queryKind)
	if err != nil {
		return err
	}
	summaryIdx, err := d.packKey(summary)
	if err != nil {
		return err
	}
	seq, err := d.audit.len()
	if err != nil {
		return wrapStorageError(err)
	}
	return wrapStorageError(d.audit.vec.Push(auditSlot{
		seq: seq, unixNanos: unixNanos,
		user: ValueIndex(userIdx), queryKind: ValueIndex(kindIdx), summary: ValueIndex(summaryIdx),
	}))
}

// newCorrelationID mirrors the teacher's use of google/uuid as an opaque
// identifier: transaction tags each call with one purely for cross-log
// correlation within a single process run, never persisted as a durable key.
func newCorrelationID() string { return uuid.New().String() }
