package revdb

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidDoc is returned for documents that can't be stored, e.g. ones
// with a non-string _id.
var ErrInvalidDoc = errors.New("bad_request")

// Put writes a new revision of doc. Without an _id the document is created
// under a freshly generated id. Updating an existing document requires _rev
// to name its head revision, otherwise a conflict is returned.
//
// If auto-save is on and persisting fails, Put returns the new revision
// together with a *SaveError: the write itself has taken effect.
func (db *DB) Put(doc Doc) (DocRef, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return DocRef{}, ErrClosed
	}
	defer db.check_locked()
	return db.put_locked(doc, false)
}

func (db *DB) put_locked(doc Doc, skipPersist bool) (DocRef, error) {
	body, err := normalizeDoc(doc)
	if err != nil {
		return DocRef{}, fmt.Errorf("%w: %v", ErrInvalidDoc, err)
	}

	var id string
	isNew := false
	if v, found := body[FieldID]; found {
		s, ok := v.(string)
		if !ok || s == "" {
			return DocRef{}, fmt.Errorf("%w: _id must be a non-empty string, got %v", ErrInvalidDoc, v)
		}
		id = s
	} else {
		id = newToken()
		isNew = true
	}
	var rev string
	if v, found := body[FieldRev]; found && v != nil {
		s, ok := v.(string)
		if !ok {
			return DocRef{}, fmt.Errorf("%w: _rev must be a string, got %v", ErrInvalidDoc, v)
		}
		rev = s
	}
	delete(body, FieldDeleted)

	rec := db.st.Data[id]
	if checkConflict(rec, rev, isNew) {
		db.metrics.conflicts.Inc()
		if db.verbose {
			db.logger.Debug("db: PUT.CONFLICT", "id", id, "rev", rev, "head", headRevision(rec))
		}
		return DocRef{}, docErrf(id, rev, ErrConflict, ReasonDocUpdate)
	}
	if rec == nil {
		rec = newDocRecord()
		db.st.Data[id] = rec
	}

	newRev := nextRevision(rec)
	body[FieldID] = id
	body[FieldRev] = newRev
	rec.Revs = slices.Insert(rec.Revs, 0, newRev)
	rec.Docs[newRev] = body

	seq := db.st.Sequence
	rec.Sequence = seq
	db.st.SequenceIndex = append(db.st.SequenceIndex, changeRef{ID: id, Rev: newRev})
	db.st.Sequence++
	rec.prune(db.st.Config.MaxRevisions)

	db.dirty.markDoc(id)
	db.WriteCount.Add(1)
	db.metrics.puts.Inc()
	if db.verbose {
		db.logger.Debug("db: PUT", "id", id, "rev", newRev, "seq", seq)
	}

	ref := DocRef{ID: id, Rev: newRev}
	if !skipPersist {
		if err := db.autosave_locked(); err != nil {
			return ref, err
		}
	}
	return ref, nil
}

// Get returns the head revision of a document, or the given revision if rev
// is not empty. Deleted documents are reported as not found (reason
// "deleted"), but explicitly requesting a deleted revision returns a
// tombstone {_id, _rev, _deleted: true}.
//
// The returned document is a copy and may be modified freely.
func (db *DB) Get(id, rev string) (Doc, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	doc, err := db.get_locked(id, rev)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

func (db *DB) get_locked(id, rev string) (Doc, error) {
	db.ReadCount.Add(1)
	rec := db.st.Data[id]
	if rev != "" {
		if rec == nil {
			return nil, docErrf(id, rev, ErrNotFound, ReasonMissing)
		}
		if rec.isDeleted(rev) {
			return tombstone(id, rev), nil
		}
		body, found := rec.Docs[rev]
		if !found {
			return nil, docErrf(id, rev, ErrNotFound, ReasonMissing)
		}
		return body, nil
	}

	head := headRevision(rec)
	if head == "" {
		return nil, docErrf(id, "", ErrNotFound, ReasonMissing)
	}
	if rec.isDeleted(head) {
		return nil, docErrf(id, "", ErrNotFound, ReasonDeleted)
	}
	return rec.Docs[head], nil
}

func tombstone(id, rev string) Doc {
	return Doc{FieldID: id, FieldRev: rev, FieldDeleted: true}
}

// Delete marks the document deleted by writing a tombstone revision on top
// of rev, which must be the current head.
func (db *DB) Delete(id, rev string) (DocRef, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return DocRef{}, ErrClosed
	}
	defer db.check_locked()
	return db.delete_locked(id, rev, false)
}

func (db *DB) delete_locked(id, rev string, skipPersist bool) (DocRef, error) {
	cur, err := db.get_locked(id, "")
	if err != nil {
		return DocRef{}, err
	}
	rec := db.st.Data[id]
	head := headRevision(rec)
	if rev != head {
		db.metrics.conflicts.Inc()
		return DocRef{}, docErrf(id, rev, ErrConflict, ReasonDocUpdate)
	}

	body := cur.Clone()
	body[FieldRev] = head
	ref, err := db.put_locked(body, true)
	if err != nil {
		return DocRef{}, err
	}
	rec.markDeleted(ref.Rev)
	db.metrics.deletes.Inc()
	if db.verbose {
		db.logger.Debug("db: DELETE", "id", id, "rev", ref.Rev)
	}

	if !skipPersist {
		if err := db.autosave_locked(); err != nil {
			return ref, err
		}
	}
	return ref, nil
}

// Revisions returns the retained revision ids of a document, newest first.
func (db *DB) Revisions(id string) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	rec := db.st.Data[id]
	if rec == nil {
		return nil, docErrf(id, "", ErrNotFound, ReasonMissing)
	}
	return slices.Clone(rec.Revs), nil
}

// Config returns the current configuration.
func (db *DB) Config() Config {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.st.Config
}

// SetConfig replaces the configuration. Lowering MaxRevisions prunes the
// history of every document right away. The new configuration is persisted
// if it has auto-save enabled.
func (db *DB) SetConfig(cfg Config) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	defer db.check_locked()

	old := db.st.Config
	db.st.Config = cfg
	db.dirty.meta = true
	if cfg.MaxRevisions > 0 && (old.MaxRevisions == 0 || cfg.MaxRevisions < old.MaxRevisions) {
		for id, rec := range db.st.Data {
			if rec.prune(cfg.MaxRevisions) {
				db.dirty.markDoc(id)
			}
		}
	}
	if db.verbose {
		db.logger.Debug("db: CONFIG", "autoSave", cfg.AutoSave, "pretty", cfg.Pretty, "maxRevisions", cfg.MaxRevisions)
	}
	return db.autosave_locked()
}
