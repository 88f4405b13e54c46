package revdb

import (
	"path/filepath"
	"strings"
)

// Format selects the persistence backend of a database.
type Format int

const (
	// FormatAuto picks a backend based on the path: "" keeps the database in
	// memory, .json and .msgpack/.mp use snapshot files, anything else Bolt.
	FormatAuto Format = iota
	FormatMemory
	FormatBolt
	FormatJSON
	FormatMsgPack
)

func (f Format) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatMemory:
		return "memory"
	case FormatBolt:
		return "bolt"
	case FormatJSON:
		return "json"
	case FormatMsgPack:
		return "msgpack"
	default:
		return "invalid"
	}
}

func detectFormat(path string) Format {
	if path == "" {
		return FormatMemory
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".msgpack", ".mp":
		return FormatMsgPack
	default:
		return FormatBolt
	}
}

// persister is the boundary between the in-memory state and durable storage.
type persister interface {
	// load returns nil, nil if nothing has been saved yet.
	load() (*state, error)

	// save persists st. Backends that write incrementally use d to find
	// what has changed since the last successful save.
	save(st *state, d *dirtySet) error

	size() int64
	close() error
}

// dirtySet tracks modifications made since the last successful save.
type dirtySet struct {
	// full requests rewriting everything.
	full bool

	// meta covers the configuration.
	meta bool

	docs    map[string]struct{}
	indexes map[indexKey]struct{}
	views   bool

	// resetIndexes means indexes were dropped wholesale.
	resetIndexes bool

	// savedSeq is the length of the change log at the last save.
	savedSeq uint64
}

func (d *dirtySet) markDoc(id string) {
	if d.docs == nil {
		d.docs = make(map[string]struct{})
	}
	d.docs[id] = struct{}{}
}

func (d *dirtySet) markIndex(k indexKey) {
	if d.indexes == nil {
		d.indexes = make(map[indexKey]struct{})
	}
	d.indexes[k] = struct{}{}
}

func (d *dirtySet) isEmpty(st *state) bool {
	return !d.full && !d.meta && !d.views && !d.resetIndexes && len(d.docs) == 0 && len(d.indexes) == 0 && d.savedSeq == st.Sequence
}

func (d *dirtySet) reset(seq uint64) {
	*d = dirtySet{savedSeq: seq}
}
