package revdb

import (
	"fmt"
	"slices"
)

// indexKey identifies a cached index: a view plus a serialized key filter.
type indexKey struct {
	View   string
	Filter string
}

func (k indexKey) String() string {
	if k.Filter == "" {
		return k.View
	}
	return k.View + "[" + k.Filter + "]"
}

// viewIndex holds the rows a view emitted for keys matching one filter,
// sorted by key. Seq is the part of the change log folded into Rows.
type viewIndex struct {
	View   string     `json:"view" msgpack:"view"`
	Filter string     `json:"filter,omitempty" msgpack:"filter"`
	Rows   []indexRow `json:"rows" msgpack:"rows"`
	Seq    uint64     `json:"seq" msgpack:"seq"`
}

func (idx *viewIndex) key() indexKey {
	return indexKey{idx.View, idx.Filter}
}

type indexRow struct {
	ID    string `json:"id" msgpack:"i"`
	Key   any    `json:"key" msgpack:"k"`
	Value any    `json:"value" msgpack:"v"`
}

// keyFilter selects the emitted keys an index holds; the zero value
// matches every key.
type keyFilter struct {
	key any
	set bool
}

func exactKey(key any) (keyFilter, error) {
	k, err := normalizeValue(key)
	if err != nil {
		return keyFilter{}, err
	}
	return keyFilter{key: k, set: true}, nil
}

func (f keyFilter) String() string {
	if !f.set {
		return ""
	}
	return string(mustEncode(JSON, f.key))
}

func (f keyFilter) matches(key any) bool {
	return !f.set || keyMatches(f.key, key)
}

// lookupView_locked resolves a view for querying.
func (db *DB) lookupView_locked(name string, reduce bool) (*View, error) {
	v := db.views[name]
	if v == nil || v.Map == nil {
		return nil, viewErrf(name, ErrNotFound, ReasonMissingNamedView)
	}
	if reduce && v.Reduce == nil {
		return nil, viewErrf(name, ErrQueryParse, ReasonNoReduce)
	}
	return v, nil
}

// updateIndex_locked brings the index of (v, f) up to the current sequence
// by replaying the part of the change log it hasn't seen yet.
func (db *DB) updateIndex_locked(v *View, f keyFilter) (*viewIndex, error) {
	k := indexKey{v.Name, f.String()}
	idx := db.st.indexes[k]
	if idx == nil {
		idx = &viewIndex{View: k.View, Filter: k.Filter}
		db.st.indexes[k] = idx
		db.dirty.markIndex(k)
	}

	from, to := idx.Seq, db.st.Sequence
	if from > to {
		db.logger.Warn("revdb: index ahead of the database, rebuilding", "index", k.String(), "seq", from, "dbseq", to)
		from = 0
		idx.Rows = nil
	}
	if from == to {
		return idx, nil
	}

	buf := acquireIndexRows()
	fresh := *buf
	defer func() {
		*buf = fresh
		releaseIndexRows(buf)
	}()
	touched := make(map[string]struct{})

	for s := from; s < to; s++ {
		ref := db.st.SequenceIndex[s]
		rec := db.st.Data[ref.ID]
		if rec == nil || rec.Sequence != s {
			continue // superseded by a later write
		}
		touched[ref.ID] = struct{}{}
		if rec.isDeleted(ref.Rev) {
			continue
		}
		body, ok := rec.Docs[ref.Rev]
		if !ok {
			continue
		}
		emissions, err := mapDoc(v.Map, body.Clone())
		if err != nil {
			return nil, &ViewError{View: v.Name, Reason: ReasonMapFailed, Err: fmt.Errorf("%w: %s: %w", ErrViewFunc, ref.ID, err)}
		}
		for _, e := range emissions {
			if f.matches(e.Key) {
				fresh = append(fresh, indexRow{ID: ref.ID, Key: e.Key, Value: e.Value})
			}
		}
	}

	slices.SortStableFunc(fresh, func(a, b indexRow) int {
		return CompareKeys(a.Key, b.Key)
	})
	rebuild := len(idx.Rows) == 0
	if rebuild {
		idx.Rows = slices.Clone(fresh)
	} else {
		idx.Rows = mergeRows(removeIDs(idx.Rows, touched), fresh)
	}
	if db.strict {
		checkSorted(idx.Rows)
	}
	idx.Seq = to
	db.dirty.markIndex(k)

	db.metrics.indexUpdates.Inc()
	if rebuild {
		db.metrics.indexRebuilds.Inc()
	}
	if db.verbose {
		db.logger.Debug("db: INDEX", "index", k.String(), "from", from, "to", to, "touched", len(touched), "emitted", len(fresh), "rows", len(idx.Rows))
	}
	return idx, nil
}

// mapDoc runs a map function, turning panics into errors and emissions into
// normalized values.
func mapDoc(m Mapper, doc Doc) (result []Emission, err error) {
	defer catchPanic(&err)
	result = m.Map(doc)
	for i := range result {
		e := &result[i]
		if e.Key, err = normalizeValue(e.Key); err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
		if e.Value, err = normalizeValue(e.Value); err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
	}
	return result, nil
}

// removeIDs drops every row emitted by one of the given documents, keeping
// the order of the rest.
func removeIDs(rows []indexRow, ids map[string]struct{}) []indexRow {
	if len(ids) == 0 {
		return rows
	}
	return slices.DeleteFunc(rows, func(r indexRow) bool {
		_, found := ids[r.ID]
		return found
	})
}

// mergeRows merges sorted fresh rows into sorted existing rows in a single
// pass. A fresh row goes right before the first existing row whose key is
// greater than or equal to its own.
func mergeRows(existing, fresh []indexRow) []indexRow {
	if len(fresh) == 0 {
		return existing
	}
	result := make([]indexRow, 0, len(existing)+len(fresh))
	i := 0
	for _, row := range fresh {
		for i < len(existing) && CompareKeys(existing[i].Key, row.Key) < 0 {
			result = append(result, existing[i])
			i++
		}
		result = append(result, row)
	}
	return append(result, existing[i:]...)
}

func checkSorted(rows []indexRow) {
	for i := 1; i < len(rows); i++ {
		if CompareKeys(rows[i-1].Key, rows[i].Key) > 0 {
			panic(fmt.Errorf("index rows out of order at %d: %v > %v", i, rows[i-1].Key, rows[i].Key))
		}
	}
}
