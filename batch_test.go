package revdb

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestBatch_PersistsOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	db := must(Open("", Options{IsTesting: true, Registerer: reg, Logger: testLogger(t)}))
	defer db.Close()
	ok(t, db.RegisterView(byName))
	saves := metricValue(t, reg, "revdb_saves_total")

	err := db.Batch(func(b *Batch) error {
		a := must(b.Put(Doc{"_id": "a", "name": "x"}))
		must(b.Put(Doc{"_id": "b", "name": "y"}))
		must(b.Delete("a", a.Rev))

		_, err := b.Get("a", "")
		notFound(t, err, ReasonDeleted)
		res := must(b.Query("by_name", QueryOptions{}))
		deepEqual(t, res.Rows, []Row{{ID: "b", Key: "y", Value: "b"}})
		deepEqual(t, len(b.Changes(0, 0)), 2)
		return nil
	})
	ok(t, err)
	deepEqual(t, metricValue(t, reg, "revdb_saves_total"), saves+1)
	deepEqual(t, db.Sequence(), uint64(3))
}

func TestBatch_ErrorKeepsWrites(t *testing.T) {
	db := setup(t)
	errStop := errors.New("stop")

	err := db.Batch(func(b *Batch) error {
		must(b.Put(Doc{"_id": "a"}))
		_, err := b.Put(Doc{"_id": "a"})
		conflict(t, err)
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("** got %v, wanted errStop", err)
	}
	must(db.Get("a", ""))
}

func TestBatch_PanicBecomesError(t *testing.T) {
	db := setup(t)

	err := db.Batch(func(b *Batch) error {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "panic: boom") {
		t.Fatalf("** got %v, wanted it to include %q", err, "panic: boom")
	}

	// the lock was released
	must(db.Put(Doc{"_id": "after"}))
}

func TestBatch_UseAfterReturnPanics(t *testing.T) {
	db := setup(t)
	var leaked *Batch
	ok(t, db.Batch(func(b *Batch) error {
		leaked = b
		return nil
	}))

	defer func() {
		if recover() == nil {
			t.Errorf("** Batch.Put after return didn't panic")
		}
	}()
	leaked.Put(Doc{})
}
