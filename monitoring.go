package revdb

// Stats is a point-in-time summary of a database.
type Stats struct {
	Sequence    uint64
	Docs        int
	DeletedDocs int
	Revisions   int
	Views       int
	Indexes     int
	IndexRows   int

	// Size is the persisted size in bytes as of the last load or save.
	Size int64

	Reads   uint64
	Writes  uint64
	Queries uint64
}

func (db *DB) Stats() Stats {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.stats_locked()
}

func (db *DB) stats_locked() Stats {
	s := Stats{
		Sequence: db.st.Sequence,
		Views:    len(db.st.Views),
		Indexes:  len(db.st.indexes),
		Reads:    db.ReadCount.Load(),
		Writes:   db.WriteCount.Load(),
		Queries:  db.QueryCount.Load(),
	}
	if !db.closed {
		s.Size = db.p.size()
	}
	for _, rec := range db.st.Data {
		s.Revisions += len(rec.Revs)
		if head := headRevision(rec); head != "" && rec.isDeleted(head) {
			s.DeletedDocs++
		} else {
			s.Docs++
		}
	}
	for _, idx := range db.st.indexes {
		s.IndexRows += len(idx.Rows)
	}
	return s
}
