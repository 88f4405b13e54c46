package revdb

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

type DumpFlags uint64

const (
	DumpHeader = DumpFlags(1 << iota)
	DumpStats
	DumpDocs
	DumpRevisions
	DumpChanges
	DumpIndexes
	DumpIndexRows

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders the database in a line-oriented text form for debugging and
// tests. Documents are ordered by id, indexes by view and filter.
func (db *DB) Dump(f DumpFlags) string {
	db.mu.Lock()
	defer db.mu.Unlock()

	var w strings.Builder
	st := db.st
	if f.Contains(DumpHeader) {
		fmt.Fprintln(&w, dumpSep1)
		fmt.Fprintf(&w, "revdb %s (%s), seq %d, %d docs\n", cmp.Or(db.path, "<memory>"), db.format, st.Sequence, len(st.Data))
	}
	if f.Contains(DumpStats) {
		s := db.stats_locked()
		fmt.Fprintf(&w, "stats: docs = %d, deleted = %d, revisions = %d, views = %d, indexes = %d, index_rows = %d, size = %d\n", s.Docs, s.DeletedDocs, s.Revisions, s.Views, s.Indexes, s.IndexRows, s.Size)
		fmt.Fprintf(&w, "config: auto_save = %v, pretty = %v, max_revisions = %d\n", st.Config.AutoSave, st.Config.Pretty, st.Config.MaxRevisions)
	}

	if f.Contains(DumpDocs) {
		fmt.Fprintln(&w, dumpSep2)
		for _, id := range slices.Sorted(maps.Keys(st.Data)) {
			rec := st.Data[id]
			revs := rec.Revs
			if !f.Contains(DumpRevisions) && len(revs) > 1 {
				revs = revs[:1]
			}
			for i, rev := range revs {
				var mark string
				if rec.isDeleted(rev) {
					mark = " DELETED"
				}
				if i == 0 {
					fmt.Fprintf(&w, "doc.%s = (s%d) %s%s %s\n", id, rec.Sequence, rev, mark, loggableDoc(rec.Docs[rev]))
				} else {
					fmt.Fprintf(&w, "doc.%s.rev.%d = %s%s %s\n", id, i, rev, mark, loggableDoc(rec.Docs[rev]))
				}
			}
		}
	}

	if f.Contains(DumpChanges) {
		fmt.Fprintln(&w, dumpSep2)
		for s, ref := range st.SequenceIndex {
			var mark string
			if rec := st.Data[ref.ID]; rec == nil || rec.Sequence != uint64(s) {
				mark = " (superseded)"
			}
			fmt.Fprintf(&w, "change.%d: %s@%s%s\n", s, ref.ID, ref.Rev, mark)
		}
	}

	if f.Contains(DumpIndexes) {
		for _, idx := range st.indexList() {
			fmt.Fprintln(&w, dumpSep2)
			fmt.Fprintf(&w, "index.%s (s%d, %d rows)\n", idx.key(), idx.Seq, len(idx.Rows))
			if f.Contains(DumpIndexRows) {
				for i, row := range idx.Rows {
					fmt.Fprintf(&w, "index.%s.%d: %s => %s %s\n", idx.key(), i+1, loggableValue(row.Key), row.ID, loggableValue(row.Value))
				}
			}
		}
	}
	return w.String()
}

func loggableDoc(doc Doc) string {
	if doc == nil {
		return "<none>"
	}
	return loggableValue(map[string]any(doc))
}

func loggableValue(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(raw)
}
