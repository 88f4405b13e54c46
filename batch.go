package revdb

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Batch runs several operations inside one critical section. Mutations are
// persisted once, when the batch function returns.
type Batch struct {
	db      *DB
	written bool
	closed  bool
}

// Batch calls f with exclusive access to the database. No other operation
// can observe the database in the middle of f.
//
// Mutations are not rolled back when f fails: whatever f has written stays
// and is persisted like any other write. A panic inside f is returned as an
// error.
func (db *DB) Batch(f func(b *Batch) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	defer db.check_locked()

	b := &Batch{db: db}
	funcErr := safelyCall(f, b)
	b.closed = true

	saveErr := db.autosave_locked()
	if saveErr != nil && !b.written {
		// only indexes could be dirty
		db.logger.Warn("revdb: failed to persist indexes", "err", saveErr)
		saveErr = nil
	}
	return errors.Join(funcErr, saveErr)
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*Batch) error, b *Batch) (err error) {
	defer catchPanic(&err)
	return fn(b)
}

// catchPanic must be deferred directly.
func catchPanic(err *error) {
	if p := recover(); p != nil {
		*err = panicked{p, string(debug.Stack())}
	}
}

func (b *Batch) DB() *DB {
	return b.db
}

func (b *Batch) check() {
	if b.closed {
		panic("revdb: Batch used after its function returned")
	}
}

func (b *Batch) Put(doc Doc) (DocRef, error) {
	b.check()
	ref, err := b.db.put_locked(doc, true)
	if err == nil {
		b.written = true
	}
	return ref, err
}

func (b *Batch) Get(id, rev string) (Doc, error) {
	b.check()
	doc, err := b.db.get_locked(id, rev)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

func (b *Batch) Delete(id, rev string) (DocRef, error) {
	b.check()
	ref, err := b.db.delete_locked(id, rev, true)
	if err == nil {
		b.written = true
	}
	return ref, err
}

// Query sees every write made earlier in the batch.
func (b *Batch) Query(view string, opt QueryOptions) (*QueryResult, error) {
	b.check()
	return b.db.query_locked(view, opt)
}

func (b *Batch) Changes(since uint64, limit int) []Change {
	b.check()
	return b.db.changes_locked(since, limit)
}
