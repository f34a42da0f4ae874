package db

import (
	"github.com/latticedb/lattice/dictionary"
	"github.com/latticedb/lattice/graph"
	"github.com/latticedb/lattice/serialize"
	"github.com/latticedb/lattice/storage"
)

// rootDirectoryStorageIndex is the fixed, well-known index the database
// root is written at on first open, per spec.md §3 ("Root directory
// record... written at a fixed, well-known storage index") and SPEC_FULL's
// "index 1, allocated before anything else on first open".
const rootDirectoryStorageIndex storage.Index = 1

// rootDirectory is the serialized struct naming every subsystem's storage
// root, so reopening a database never needs a directory scan. Each *Index
// field points at a small nested blob (graph.Roots, dictionary.Roots, ...)
// rather than inlining those subsystems' several indices directly, so this
// struct's own shape never has to change when a subsystem's root shape
// does.
type rootDirectory struct {
	GraphIndex         storage.Index
	DictKeyIndex       storage.Index
	DictValueIndex     storage.Index
	AliasNameToIdIndex storage.Index
	AliasIdToNameIndex storage.Index
	PropertiesIndex    storage.Index
	IndexRegistryIndex storage.Index
	AuditLogIndex      storage.Index
}

func (r rootDirectory) Serialize() []byte {
	buf := make([]byte, 64)
	serialize.PutU64(buf[0:8], uint64(r.GraphIndex))
	serialize.PutU64(buf[8:16], uint64(r.DictKeyIndex))
	serialize.PutU64(buf[16:24], uint64(r.DictValueIndex))
	serialize.PutU64(buf[24:32], uint64(r.AliasNameToIdIndex))
	serialize.PutU64(buf[32:40], uint64(r.AliasIdToNameIndex))
	serialize.PutU64(buf[40:48], uint64(r.PropertiesIndex))
	serialize.PutU64(buf[48:56], uint64(r.IndexRegistryIndex))
	serialize.PutU64(buf[56:64], uint64(r.AuditLogIndex))
	return buf
}

func (r rootDirectory) SerializedSize() uint64 { return 64 }

func deserializeRootDirectory(b []byte) (rootDirectory, uint64, error) {
	if len(b) < 64 {
		return rootDirectory{}, 0, serialize.ErrOutOfBounds
	}
	get := func(off int) storage.Index {
		v, _ := serialize.GetU64(b[off : off+8])
		return storage.Index(v)
	}
	return rootDirectory{
		GraphIndex:         get(0),
		DictKeyIndex:       get(8),
		DictValueIndex:     get(16),
		AliasNameToIdIndex: get(24),
		AliasIdToNameIndex: get(32),
		PropertiesIndex:    get(40),
		IndexRegistryIndex: get(48),
		AuditLogIndex:      get(56),
	}, 64, nil
}

// serializeGraphRoots/deserializeGraphRoots persist graph.Roots (four
// storage indices) as their own tiny storage record, so rootDirectory only
// ever needs to carry one index per subsystem.
func serializeGraphRoots(r graph.Roots) []byte {
	buf := make([]byte, 32)
	serialize.PutU64(buf[0:8], uint64(r.From))
	serialize.PutU64(buf[8:16], uint64(r.To))
	serialize.PutU64(buf[16:24], uint64(r.FromMeta))
	serialize.PutU64(buf[24:32], uint64(r.ToMeta))
	return buf
}

func deserializeGraphRoots(b []byte) (graph.Roots, error) {
	if len(b) < 32 {
		return graph.Roots{}, serialize.ErrOutOfBounds
	}
	get := func(off int) storage.Index {
		v, _ := serialize.GetU64(b[off : off+8])
		return storage.Index(v)
	}
	return graph.Roots{From: get(0), To: get(8), FromMeta: get(16), ToMeta: get(24)}, nil
}

func serializeDictRoots(r dictionary.Roots) []byte {
	buf := make([]byte, 16)
	serialize.PutU64(buf[0:8], uint64(r.Slots))
	serialize.PutU64(buf[8:16], uint64(r.ByHash))
	return buf
}

func deserializeDictRoots(b []byte) (dictionary.Roots, error) {
	if len(b) < 16 {
		return dictionary.Roots{}, serialize.ErrOutOfBounds
	}
	slots, _ := serialize.GetU64(b[0:8])
	byHash, _ := serialize.GetU64(b[8:16])
	return dictionary.Roots{Slots: storage.Index(slots), ByHash: storage.Index(byHash)}, nil
}
