package revdb

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Emission is a single key/value pair produced by a view's map function.
type Emission struct {
	Key   any
	Value any
}

// Emit is shorthand for a map function producing exactly one row.
func Emit(key, value any) []Emission {
	return []Emission{{key, value}}
}

// Mapper is the map half of a view. Map must be a pure function of the
// document. It receives a private copy, so changes to it are discarded.
type Mapper interface {
	Map(doc Doc) []Emission
}

type MapFunc func(doc Doc) []Emission

func (f MapFunc) Map(doc Doc) []Emission {
	return f(doc)
}

// Reducer is the optional reduce half of a view. With rereduce set, values
// are results of earlier Reduce calls rather than mapped values, and key is
// nil.
type Reducer interface {
	Reduce(key any, values []any, rereduce bool) any
}

type ReduceFunc func(key any, values []any, rereduce bool) any

func (f ReduceFunc) Reduce(key any, values []any, rereduce bool) any {
	return f(key, values, rereduce)
}

// View defines a derived index over all documents. Only the name and the
// version are persisted; changing the version discards cached indexes of the
// view the next time it is registered.
type View struct {
	Name    string
	Version string
	Map     Mapper
	Reduce  Reducer
}

var errInvalidView = errors.New("invalid view")

// RegisterView adds or replaces a view definition. Views must be registered
// after every Open before they can be queried.
func (db *DB) RegisterView(v View) error {
	if v.Name == "" {
		return fmt.Errorf("%w: empty name", errInvalidView)
	}
	if v.Map == nil {
		return fmt.Errorf("%w: %s has no map function", errInvalidView, v.Name)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	defer db.check_locked()

	def := v
	db.views[v.Name] = &def

	vs := db.st.Views[v.Name]
	if vs != nil && vs.Version == v.Version {
		return nil
	}
	n := db.dropIndexes_locked(v.Name)
	db.st.Views[v.Name] = &viewState{Version: v.Version}
	db.dirty.views = true
	if vs != nil {
		db.logger.Info("revdb: view version changed, indexes discarded", "view", v.Name, "old", vs.Version, "new", v.Version, "indexes", n)
	} else if db.verbose {
		db.logger.Debug("db: VIEW.NEW", "view", v.Name, "version", v.Version)
	}
	return db.autosave_locked()
}

// Views returns the names of the views registered with this handle.
func (db *DB) Views() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Sorted(maps.Keys(db.views))
}

func (db *DB) dropIndexes_locked(view string) int {
	var n int
	for k := range db.st.indexes {
		if k.View == view {
			delete(db.st.indexes, k)
			db.dirty.markIndex(k)
			n++
		}
	}
	return n
}

// DropAllIndexes discards every cached view index. Indexes are rebuilt from
// the change log on the next query.
func (db *DB) DropAllIndexes() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	clear(db.st.indexes)
	db.dirty.resetIndexes = true
	if db.verbose {
		db.logger.Debug("db: DROP_INDEXES")
	}
	return db.autosave_locked()
}
