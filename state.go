package revdb

import (
	"cmp"
	"maps"
	"slices"
)

// Config is the persisted, user-adjustable configuration of a database.
type Config struct {
	// AutoSave persists the database after every mutation.
	AutoSave bool `json:"autoSave" msgpack:"autoSave"`

	// Pretty indents JSON snapshot files.
	Pretty bool `json:"pretty" msgpack:"pretty"`

	// MaxRevisions limits the number of revisions kept per document;
	// 0 keeps the whole history.
	MaxRevisions uint `json:"maxRevisions" msgpack:"maxRevisions"`
}

var DefaultConfig = Config{
	AutoSave: true,
}

// state is the root container of a database: everything that gets persisted.
type state struct {
	Config        Config
	Sequence      uint64
	Data          map[string]*docRecord
	SequenceIndex []changeRef
	Views         map[string]*viewState

	// indexes is a cache derivable from Data and SequenceIndex.
	indexes map[indexKey]*viewIndex
}

// docRecord holds the revision history of one document id.
type docRecord struct {
	// RevIndex seeds the counter part of new revision ids.
	RevIndex uint64 `json:"revindex" msgpack:"revindex"`

	// Revs lists revision ids, newest first.
	Revs []string `json:"revs" msgpack:"revs"`

	Docs map[string]Doc `json:"docs" msgpack:"docs"`

	// Deleted marks revisions that are deletion tombstones.
	Deleted map[string]bool `json:"deleted,omitempty" msgpack:"deleted,omitempty"`

	// Sequence is the global sequence assigned to the latest write.
	Sequence uint64 `json:"sequence" msgpack:"sequence"`
}

// changeRef is an entry of the change log.
type changeRef struct {
	ID  string `json:"_id" msgpack:"_id"`
	Rev string `json:"_rev" msgpack:"_rev"`
}

type viewState struct {
	Version string `json:"version" msgpack:"version"`
}

// image is the persisted layout of a whole database.
type image struct {
	Config        Config                `json:"config" msgpack:"config"`
	Sequence      uint64                `json:"sequence" msgpack:"sequence"`
	Data          map[string]*docRecord `json:"data" msgpack:"data"`
	SequenceIndex []changeRef           `json:"sequenceIndex" msgpack:"sequenceIndex"`
	Views         map[string]*viewState `json:"views" msgpack:"views"`
	Indexes       []*viewIndex          `json:"indexes,omitempty" msgpack:"indexes,omitempty"`
}

func newState(cfg Config) *state {
	return &state{
		Config:  cfg,
		Data:    make(map[string]*docRecord),
		Views:   make(map[string]*viewState),
		indexes: make(map[indexKey]*viewIndex),
	}
}

func (st *state) image() *image {
	return &image{
		Config:        st.Config,
		Sequence:      st.Sequence,
		Data:          st.Data,
		SequenceIndex: st.SequenceIndex,
		Views:         st.Views,
		Indexes:       st.indexList(),
	}
}

// indexList returns cached indexes ordered by view name and filter.
func (st *state) indexList() []*viewIndex {
	list := slices.Collect(maps.Values(st.indexes))
	slices.SortFunc(list, func(a, b *viewIndex) int {
		return cmp.Or(cmp.Compare(a.View, b.View), cmp.Compare(a.Filter, b.Filter))
	})
	return list
}

// stateFromImage adopts a loaded image, normalizing values and checking the
// structural invariants that the rest of the code relies on.
func stateFromImage(img *image) (*state, error) {
	st := newState(img.Config)
	st.Sequence = img.Sequence
	st.SequenceIndex = img.SequenceIndex
	if img.Data != nil {
		st.Data = img.Data
	}
	if img.Views != nil {
		st.Views = img.Views
	}
	for _, idx := range img.Indexes {
		st.indexes[idx.key()] = idx
	}
	return st, st.fixup()
}

func (st *state) fixup() error {
	if uint64(len(st.SequenceIndex)) != st.Sequence {
		return dataErrf(nil, 0, nil, "change log has %d entries, sequence is %d", len(st.SequenceIndex), st.Sequence)
	}
	for id, rec := range st.Data {
		if rec == nil {
			delete(st.Data, id)
			continue
		}
		if rec.Docs == nil {
			rec.Docs = make(map[string]Doc)
		}
		for rev, body := range rec.Docs {
			n, err := normalizeDoc(body)
			if err != nil {
				return dataErrf(nil, 0, err, "%s@%s", id, rev)
			}
			rec.Docs[rev] = n
		}
		for _, rev := range rec.Revs {
			if _, ok := rec.Docs[rev]; !ok {
				return dataErrf(nil, 0, nil, "%s: missing body of revision %s", id, rev)
			}
		}
	}
	for k, vs := range st.Views {
		if vs == nil {
			delete(st.Views, k)
		}
	}
	for k, idx := range st.indexes {
		if idx.Seq > st.Sequence || st.Views[idx.View] == nil {
			delete(st.indexes, k)
			continue
		}
		if !normalizeRows(idx.Rows) {
			delete(st.indexes, k)
		}
	}
	return nil
}

func newDocRecord() *docRecord {
	return &docRecord{
		Docs: make(map[string]Doc),
	}
}

func (rec *docRecord) isDeleted(rev string) bool {
	return rec.Deleted[rev]
}

func (rec *docRecord) markDeleted(rev string) {
	if rec.Deleted == nil {
		rec.Deleted = make(map[string]bool)
	}
	rec.Deleted[rev] = true
}

// prune drops the oldest revisions beyond max, together with their bodies.
func (rec *docRecord) prune(max uint) bool {
	if max == 0 || uint(len(rec.Revs)) <= max {
		return false
	}
	for _, rev := range rec.Revs[max:] {
		delete(rec.Docs, rev)
		delete(rec.Deleted, rev)
	}
	clear(rec.Revs[max:])
	rec.Revs = rec.Revs[:max]
	return true
}

// normalizeRows reports false when a row can't be represented, in which case
// the index has to be rebuilt.
func normalizeRows(rows []indexRow) bool {
	for i := range rows {
		k, err := normalizeValue(rows[i].Key)
		if err != nil {
			return false
		}
		v, err := normalizeValue(rows[i].Value)
		if err != nil {
			return false
		}
		rows[i].Key, rows[i].Value = k, v
	}
	return true
}
