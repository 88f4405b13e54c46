package revdb

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DB is an open database. All operations are serialized by a single lock,
// which makes each of them atomic with respect to all others.
type DB struct {
	mu     sync.Mutex
	st     *state
	views  map[string]*View
	dirty  dirtySet
	p      persister
	closed bool

	path    string
	format  Format
	logger  *slog.Logger
	verbose bool
	strict  bool

	metrics    *dbMetrics
	registerer prometheus.Registerer
	collector  prometheus.Collector

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
	QueryCount atomic.Uint64
}

type Options struct {
	// Format defaults to FormatAuto, which picks the backend from the path.
	Format Format

	// Config is used when creating a new database. Defaults to DefaultConfig.
	// The configuration of an existing database is loaded from storage.
	Config *Config

	Logger  *slog.Logger
	Verbose bool

	// IsTesting trades durability for speed and enables internal consistency
	// checks after every operation.
	IsTesting bool

	// Registerer, if set, receives the database's Prometheus metrics.
	Registerer prometheus.Registerer
}

// Open opens or creates the database at path. An empty path opens a
// transient in-memory database.
func Open(path string, opt Options) (*DB, error) {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	format := opt.Format
	if format == FormatAuto {
		format = detectFormat(path)
	}
	if path == "" && format != FormatMemory {
		return nil, fmt.Errorf("revdb: %v format requires a path", format)
	}

	var p persister
	switch format {
	case FormatMemory:
		p = newStorePersister(newMemStorage())
	case FormatBolt:
		bs, err := openBoltStorage(path, opt.IsTesting)
		if err != nil {
			return nil, err
		}
		p = newStorePersister(bs)
	case FormatJSON:
		p = newFilePersister(path, JSON, opt.Logger)
	case FormatMsgPack:
		p = newFilePersister(path, MsgPack, opt.Logger)
	default:
		return nil, fmt.Errorf("revdb: invalid format %v", format)
	}

	st, err := p.load()
	if err != nil {
		p.close()
		return nil, fmt.Errorf("revdb: loading %s: %w", path, err)
	}

	db := &DB{
		views:   make(map[string]*View),
		p:       p,
		path:    path,
		format:  format,
		logger:  opt.Logger,
		verbose: opt.Verbose,
		strict:  opt.IsTesting,
		metrics: newDBMetrics(path),
	}
	if st == nil {
		cfg := DefaultConfig
		if opt.Config != nil {
			cfg = *opt.Config
		}
		st = newState(cfg)
		db.dirty.full = true
	}
	db.st = st
	db.dirty.savedSeq = st.Sequence

	if opt.Registerer != nil {
		c := newCollector(db)
		err := opt.Registerer.Register(c)
		if err != nil {
			p.close()
			return nil, fmt.Errorf("revdb: registering metrics: %w", err)
		}
		db.registerer, db.collector = opt.Registerer, c
	}

	if db.dirty.full && st.Config.AutoSave {
		err := db.save_locked()
		if err != nil {
			db.unregister()
			p.close()
			return nil, err
		}
	}

	if db.verbose {
		db.logger.Debug("revdb: opened", "path", path, "format", format.String(), "docs", len(st.Data), "seq", st.Sequence)
	}
	return db, nil
}

func (db *DB) Path() string {
	return db.path
}

func (db *DB) Format() Format {
	return db.format
}

// Close persists pending changes if auto-save is on and releases the backend.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}

	var err error
	if db.st.Config.AutoSave {
		err = db.save_locked()
	}
	db.closed = true
	if cerr := db.p.close(); err == nil && cerr != nil {
		err = fmt.Errorf("revdb: closing: %w", cerr)
	}
	db.unregister()
	return err
}

// Save persists the database regardless of the auto-save setting.
func (db *DB) Save() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	return db.save_locked()
}

func (db *DB) save_locked() error {
	if db.dirty.isEmpty(db.st) {
		return nil
	}
	start := time.Now()
	err := db.p.save(db.st, &db.dirty)
	db.metrics.observeSave(time.Since(start), err)
	if err != nil {
		db.logger.Error("revdb: save failed", "path", db.path, "err", err)
		return &SaveError{Path: db.path, Err: err}
	}
	db.dirty.reset(db.st.Sequence)
	if db.verbose {
		db.logger.Debug("revdb: saved", "path", db.path, "seq", db.st.Sequence, "ms", time.Since(start).Milliseconds())
	}
	return nil
}

func (db *DB) autosave_locked() error {
	if !db.st.Config.AutoSave {
		return nil
	}
	return db.save_locked()
}

func (db *DB) unregister() {
	if db.registerer != nil {
		db.registerer.Unregister(db.collector)
		db.registerer, db.collector = nil, nil
	}
}

// check verifies structural invariants in strict mode.
func (db *DB) check_locked() {
	if !db.strict {
		return
	}
	st := db.st
	if uint64(len(st.SequenceIndex)) != st.Sequence {
		panic(fmt.Errorf("change log has %d entries, sequence is %d", len(st.SequenceIndex), st.Sequence))
	}
	for id, rec := range st.Data {
		if rec.Sequence >= st.Sequence || st.SequenceIndex[rec.Sequence].ID != id {
			panic(fmt.Errorf("%s: last write sequence %d doesn't point at the document", id, rec.Sequence))
		}
		if max := st.Config.MaxRevisions; max > 0 && uint(len(rec.Docs)) > max {
			panic(fmt.Errorf("%s: %d bodies retained, max is %d", id, len(rec.Docs), max))
		}
		for _, rev := range rec.Revs {
			if _, ok := rec.Docs[rev]; !ok {
				panic(fmt.Errorf("%s: missing body of %s", id, rev))
			}
		}
		for rev := range rec.Deleted {
			if _, ok := rec.Docs[rev]; !ok {
				panic(fmt.Errorf("%s: deleted revision %s isn't retained", id, rev))
			}
		}
	}
	for _, idx := range st.indexes {
		if idx.Seq > st.Sequence {
			panic(fmt.Errorf("index %s is ahead of the database: %d > %d", idx.key(), idx.Seq, st.Sequence))
		}
		checkSorted(idx.Rows)
	}
}
