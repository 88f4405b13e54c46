package revdb

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"testing"
)

func TestQuery_ByName(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(byName))
	must(db.Put(Doc{"_id": "3", "name": "c"}))
	b := must(db.Put(Doc{"_id": "2", "name": "b"}))
	must(db.Put(Doc{"_id": "1", "name": "a"}))

	res := must(db.Query("by_name", QueryOptions{}))
	deepEqual(t, res, &QueryResult{
		Rows: []Row{
			{ID: "1", Key: "a", Value: "1"},
			{ID: "2", Key: "b", Value: "2"},
			{ID: "3", Key: "c", Value: "3"},
		},
		TotalRows: 3,
		UpdateSeq: 3,
	})

	must(db.Delete("2", b.Rev))
	res = must(db.Query("by_name", QueryOptions{}))
	deepEqual(t, res, &QueryResult{
		Rows: []Row{
			{ID: "1", Key: "a", Value: "1"},
			{ID: "3", Key: "c", Value: "3"},
		},
		TotalRows: 2,
		UpdateSeq: 4,
	})
}

func TestQuery_Keys(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(byName))
	must(db.Put(Doc{"_id": "1", "name": "a"}))
	must(db.Put(Doc{"_id": "2", "name": "b"}))
	must(db.Put(Doc{"_id": "3", "name": "c"}))
	must(db.Put(Doc{"_id": "4", "name": "a"}))

	res := must(db.Query("by_name", QueryOptions{Keys: []any{"b", "a", "zzz"}}))
	deepEqual(t, res.Rows, []Row{
		{ID: "2", Key: "b", Value: "2"},
		{ID: "1", Key: "a", Value: "1"},
		{ID: "4", Key: "a", Value: "4"},
	})
	deepEqual(t, res.TotalRows, 3)

	res = must(db.Query("by_name", QueryOptions{Key: "a"}))
	deepEqual(t, res.Rows, []Row{
		{ID: "1", Key: "a", Value: "1"},
		{ID: "4", Key: "a", Value: "4"},
	})

	res = must(db.Query("by_name", QueryOptions{Keys: []any{}}))
	deepEqual(t, res.Rows, []Row{})
	deepEqual(t, res.TotalRows, 0)
}

func TestQuery_Reduce(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(byName))
	for i, name := range []string{"a", "b", "a", "c", "a"} {
		must(db.Put(Doc{"_id": fmt.Sprint(i), "name": name}))
	}

	res := must(db.Query("by_name", QueryOptions{Reduce: true}))
	deepEqual(t, res, &QueryResult{Rows: []Row{{Value: 5.0}}, TotalRows: 1, UpdateSeq: 5})

	res = must(db.Query("by_name", QueryOptions{Key: "a", Reduce: true}))
	deepEqual(t, res.Rows, []Row{{Value: 3.0}})

	// per-key counts 3 and 1 are re-reduced into a sum
	res = must(db.Query("by_name", QueryOptions{Keys: []any{"a", "b"}, Reduce: true}))
	deepEqual(t, res.Rows, []Row{{Value: 4.0}})
	deepEqual(t, res.TotalRows, 1)

	res = must(db.Query("by_name", QueryOptions{Key: "nope", Reduce: true}))
	deepEqual(t, res.Rows, []Row{{Value: 0.0}})
}

func TestQuery_SumReducer(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(View{
		Name: "amounts",
		Map: MapFunc(func(doc Doc) []Emission {
			return Emit(doc["kind"], doc["amount"])
		}),
		Reduce: Sum,
	}))
	must(db.Put(Doc{"kind": "x", "amount": 2}))
	must(db.Put(Doc{"kind": "x", "amount": 3.5}))
	must(db.Put(Doc{"kind": "y", "amount": 10}))

	deepEqual(t, must(db.Query("amounts", QueryOptions{Reduce: true})).Rows, []Row{{Value: 15.5}})
	deepEqual(t, must(db.Query("amounts", QueryOptions{Keys: []any{"x", "y"}, Reduce: true})).Rows, []Row{{Value: 15.5}})
	deepEqual(t, Sum.Reduce(nil, []any{[]any{1.0, 2.0}, []any{3.0}}, false), any([]any{4.0, 2.0}))
}

func TestQuery_Pagination(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(byName))
	for _, name := range []string{"a", "b", "c", "d"} {
		must(db.Put(Doc{"_id": name, "name": name}))
	}

	keys := func(opt QueryOptions) []any {
		var keys []any
		for _, row := range must(db.Query("by_name", opt)).Rows {
			keys = append(keys, row.Key)
		}
		return keys
	}
	deepEqual(t, keys(QueryOptions{Limit: 2}), []any{"a", "b"})
	deepEqual(t, keys(QueryOptions{Offset: 1, Limit: 2}), []any{"b", "c"})
	deepEqual(t, keys(QueryOptions{Offset: 3}), []any{"d"})
	deepEqual(t, keys(QueryOptions{Offset: 10}), []any(nil))
	deepEqual(t, keys(QueryOptions{Offset: -1, Limit: -1}), []any{"a", "b", "c", "d"})
	deepEqual(t, keys(QueryOptions{Keys: []any{"d", "a", "c"}, Offset: 1}), []any{"a", "c"})

	res := must(db.Query("by_name", QueryOptions{Offset: 1, Limit: 1}))
	deepEqual(t, res.TotalRows, 4)
}

func TestQuery_ArrayPrefix(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(View{
		Name: "by_type",
		Map: MapFunc(func(doc Doc) []Emission {
			return Emit([]any{doc["type"], doc["n"]}, nil)
		}),
	}))
	must(db.Put(Doc{"_id": "x2", "type": "x", "n": 2}))
	must(db.Put(Doc{"_id": "y1", "type": "y", "n": 1}))
	must(db.Put(Doc{"_id": "x1", "type": "x", "n": 1}))

	ids := func(key any) []string {
		var ids []string
		for _, row := range must(db.Query("by_type", QueryOptions{Key: key})).Rows {
			ids = append(ids, row.ID)
		}
		return ids
	}
	deepEqual(t, ids([]any{"x"}), []string{"x1", "x2"})
	deepEqual(t, ids([]string{"y"}), []string{"y1"})
	deepEqual(t, ids([]any{"x", 2}), []string{"x2"})
	deepEqual(t, ids("x"), []string(nil))
	deepEqual(t, ids([]any{"x", 2, 0}), []string(nil))
	deepEqual(t, ids(nil), []string{"x1", "x2", "y1"})
}

func TestQuery_Errors(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(View{Name: "map_only", Map: MapFunc(func(doc Doc) []Emission { return nil })}))

	_, err := db.Query("nope", QueryOptions{})
	notFound(t, err, ReasonMissingNamedView)
	var ve *ViewError
	if !errors.As(err, &ve) || ve.View != "nope" {
		t.Errorf("** got %v, wanted a ViewError for nope", err)
	}

	_, err = db.Query("map_only", QueryOptions{Reduce: true})
	if !errors.Is(err, ErrQueryParse) || Reason(err) != ReasonNoReduce {
		t.Errorf("** got %v, wanted query_parse_error", err)
	}

	_, err = db.Query("map_only", QueryOptions{Key: func() {}})
	if !errors.Is(err, ErrQueryParse) || Reason(err) != ReasonInvalidKey {
		t.Errorf("** got %v, wanted query_parse_error for an unsupported key", err)
	}

	_, err = db.Query("map_only", QueryOptions{Key: math.NaN()})
	if !errors.Is(err, ErrQueryParse) || Reason(err) != ReasonInvalidKey {
		t.Errorf("** got %v, wanted query_parse_error for a NaN key", err)
	}
	_, err = db.Query("map_only", QueryOptions{Keys: []any{"a", []any{math.Inf(1)}}})
	if !errors.Is(err, ErrQueryParse) || Reason(err) != ReasonInvalidKey {
		t.Errorf("** got %v, wanted query_parse_error for an infinite key", err)
	}

	err = db.RegisterView(View{Name: "no_map"})
	if err == nil {
		t.Errorf("** registered a view without a map function")
	}
}

func TestQuery_MapPanic(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(View{
		Name: "fragile",
		Map: MapFunc(func(doc Doc) []Emission {
			if doc["boom"] == true {
				panic("boom")
			}
			return Emit(doc.ID(), nil)
		}),
	}))
	must(db.Put(Doc{"_id": "a"}))
	bad := must(db.Put(Doc{"_id": "b", "boom": true}))

	_, err := db.Query("fragile", QueryOptions{})
	if !errors.Is(err, ErrViewFunc) || Reason(err) != ReasonMapFailed {
		t.Fatalf("** got %v, wanted a map failure", err)
	}

	must(db.Delete("b", bad.Rev))
	res := must(db.Query("fragile", QueryOptions{}))
	deepEqual(t, res.Rows, []Row{{ID: "a", Key: "a"}})
}

func TestQuery_NonFiniteEmission(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(View{
		Name: "ratio",
		Map: MapFunc(func(doc Doc) []Emission {
			n, _ := doc["n"].(float64)
			return Emit(doc.ID(), 1/n)
		}),
	}))
	must(db.Put(Doc{"_id": "a", "n": 2}))
	zero := must(db.Put(Doc{"_id": "z", "n": 0}))

	_, err := db.Query("ratio", QueryOptions{})
	if !errors.Is(err, ErrViewFunc) || Reason(err) != ReasonMapFailed {
		t.Fatalf("** got %v, wanted a map failure", err)
	}

	must(db.Put(Doc{"_id": "z", "_rev": zero.Rev, "n": 4}))
	res := must(db.Query("ratio", QueryOptions{}))
	deepEqual(t, res.Rows, []Row{{ID: "a", Key: "a", Value: 0.5}, {ID: "z", Key: "z", Value: 0.25}})
}

func TestQuery_MapGetsPrivateCopy(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(View{
		Name: "meddling",
		Map: MapFunc(func(doc Doc) []Emission {
			doc["name"] = "changed"
			doc["list"].([]any)[0] = "changed"
			return Emit(doc.ID(), nil)
		}),
	}))
	ref := must(db.Put(Doc{"_id": "1", "name": "a", "list": []any{"x"}}))
	must(db.Query("meddling", QueryOptions{}))
	deepEqual(t, must(db.Get("1", "")), Doc{"_id": "1", "_rev": ref.Rev, "name": "a", "list": []any{"x"}})
}

func TestQuery_Idempotent(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(byName))
	must(db.Put(Doc{"_id": "1", "name": "a"}))
	must(db.Put(Doc{"_id": "2", "name": "b"}))

	first := must(db.Query("by_name", QueryOptions{}))
	idx := db.st.indexes[indexKey{View: "by_name"}]
	isnonnil(t, idx)
	deepEqual(t, idx.Seq, uint64(2))

	second := must(db.Query("by_name", QueryOptions{}))
	deepEqual(t, second, first)
	deepEqual(t, db.st.indexes[indexKey{View: "by_name"}].Seq, uint64(2))

	// returned rows don't alias the index
	first.Rows[0].Key = "mutated"
	deepEqual(t, must(db.Query("by_name", QueryOptions{})).Rows[0].Key, any("a"))
}

func TestQuery_SeparateIndexPerFilter(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(byName))
	must(db.Put(Doc{"_id": "1", "name": "a"}))
	must(db.Query("by_name", QueryOptions{Key: "a"}))
	must(db.Query("by_name", QueryOptions{Keys: []any{"a", "b"}}))
	must(db.Query("by_name", QueryOptions{}))

	var keys []indexKey
	for _, idx := range db.st.indexList() {
		keys = append(keys, idx.key())
	}
	deepEqual(t, keys, []indexKey{{"by_name", ""}, {"by_name", `"a"`}, {"by_name", `"b"`}})
}

func TestQuery_IncrementalMerge(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(byName))
	a := must(db.Put(Doc{"_id": "a", "name": "m"}))
	must(db.Put(Doc{"_id": "b", "name": "m"}))
	c := must(db.Put(Doc{"_id": "c", "name": "x"}))
	must(db.Query("by_name", QueryOptions{}))

	// new rows land before existing rows with equal keys
	must(db.Put(Doc{"_id": "d", "name": "m"}))
	// a moves to the front, c disappears from the view
	must(db.Put(Doc{"_id": "a", "_rev": a.Rev, "name": "b"}))
	must(db.Put(Doc{"_id": "c", "_rev": c.Rev}))
	must(db.Put(Doc{"_id": "e", "name": "z"}))

	res := must(db.Query("by_name", QueryOptions{}))
	deepEqual(t, res.Rows, []Row{
		{ID: "a", Key: "b", Value: "a"},
		{ID: "d", Key: "m", Value: "d"},
		{ID: "b", Key: "m", Value: "b"},
		{ID: "e", Key: "z", Value: "e"},
	})
}

func TestQuery_MultipleEmissionsPerDoc(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(View{
		Name: "tags",
		Map: MapFunc(func(doc Doc) []Emission {
			var out []Emission
			tags, _ := doc["tags"].([]any)
			for _, tag := range tags {
				out = append(out, Emission{tag, nil})
			}
			return out
		}),
		Reduce: Count,
	}))
	p := must(db.Put(Doc{"_id": "p", "tags": []any{"go", "db", "x"}}))
	must(db.Put(Doc{"_id": "q", "tags": []any{"db"}}))
	deepEqual(t, must(db.Query("tags", QueryOptions{Reduce: true})).Rows, []Row{{Value: 4.0}})

	must(db.Put(Doc{"_id": "p", "_rev": p.Rev, "tags": []any{"go"}}))
	res := must(db.Query("tags", QueryOptions{}))
	deepEqual(t, res.Rows, []Row{
		{ID: "q", Key: "db"},
		{ID: "p", Key: "go"},
	})
}

func TestRegisterView_VersionChange(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(byName))
	must(db.Put(Doc{"_id": "1", "name": "a"}))
	must(db.Query("by_name", QueryOptions{}))
	must(db.Query("by_name", QueryOptions{Key: "a"}))
	deepEqual(t, len(db.st.indexes), 2)

	// same version keeps the cache
	ok(t, db.RegisterView(byName))
	deepEqual(t, len(db.st.indexes), 2)

	upper := byName
	upper.Version = "2"
	upper.Map = MapFunc(func(doc Doc) []Emission {
		return Emit(fmt.Sprint("NAME:", doc["name"]), nil)
	})
	ok(t, db.RegisterView(upper))
	deepEqual(t, len(db.st.indexes), 0)
	deepEqual(t, db.st.Views["by_name"].Version, "2")

	res := must(db.Query("by_name", QueryOptions{}))
	deepEqual(t, res.Rows, []Row{{ID: "1", Key: "NAME:a"}})
	deepEqual(t, db.Views(), []string{"by_name"})
}

func TestDropAllIndexes(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(byName))
	ok(t, db.RegisterView(AllDocs))
	must(db.Put(Doc{"_id": "1", "name": "a"}))
	must(db.Query("by_name", QueryOptions{}))
	must(db.Query(AllDocsName, QueryOptions{}))
	deepEqual(t, len(db.st.indexes), 2)

	ok(t, db.DropAllIndexes())
	deepEqual(t, len(db.st.indexes), 0)

	res := must(db.Query(AllDocsName, QueryOptions{}))
	deepEqual(t, res.Rows, []Row{{ID: "1", Key: "1", Value: map[string]any{"rev": must(db.Get("1", "")).Rev()}}})
}

func TestAllDocs(t *testing.T) {
	db := setup(t)
	ok(t, db.RegisterView(AllDocs))
	b := must(db.Put(Doc{"_id": "b"}))
	a := must(db.Put(Doc{"_id": "a"}))
	c := must(db.Put(Doc{"_id": "c"}))
	must(db.Delete("b", b.Rev))

	res := must(db.Query(AllDocsName, QueryOptions{}))
	deepEqual(t, res.Rows, []Row{
		{ID: "a", Key: "a", Value: map[string]any{"rev": a.Rev}},
		{ID: "c", Key: "c", Value: map[string]any{"rev": c.Rev}},
	})
	deepEqual(t, must(db.Query(AllDocsName, QueryOptions{Reduce: true})).Rows, []Row{{Value: 2.0}})
}

// TestQuery_IncrementalMatchesRebuild applies random writes and checks that
// the incrementally maintained index always holds exactly the rows a fresh
// map over all live documents would produce.
func TestQuery_IncrementalMatchesRebuild(t *testing.T) {
	mapper := func(doc Doc) []Emission {
		n := int(doc["n"].(float64))
		if n%7 == 0 {
			return nil
		}
		out := Emit(float64(n%5), doc.ID())
		if n%3 == 0 {
			out = append(out, Emission{[]any{"x", float64(n)}, nil})
		}
		return out
	}
	view := View{Name: "random", Map: MapFunc(mapper)}

	for seed := int64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprint("seed", seed), func(t *testing.T) {
			db := setup(t)
			ok(t, db.RegisterView(view))
			rnd := rand.New(rand.NewSource(seed))
			heads := make(map[string]string)

			for step := 0; step < 200; step++ {
				id := fmt.Sprint("d", rnd.Intn(10))
				head, exists := heads[id]
				switch {
				case exists && rnd.Intn(4) == 0:
					must(db.Delete(id, head))
					delete(heads, id)
				default:
					doc := Doc{"_id": id, "n": rnd.Intn(50)}
					if rev, err := db.Revisions(id); err == nil {
						doc[FieldRev] = rev[0]
					}
					heads[id] = must(db.Put(doc)).Rev
				}

				if rnd.Intn(3) != 0 {
					continue
				}
				for _, opt := range []QueryOptions{{}, {Key: 2.0}, {Key: []any{"x"}}} {
					res := must(db.Query("random", opt))
					checkSortedRows(t, res.Rows)

					var wanted []Row
					for id := range heads {
						doc := must(db.Get(id, ""))
						for _, e := range mapper(doc) {
							f := must(exactKey(opt.Key))
							if opt.Key == nil || f.matches(e.Key) {
								wanted = append(wanted, Row{ID: id, Key: e.Key, Value: e.Value})
							}
						}
					}
					deepEqual(t, canonicalRows(res.Rows), canonicalRows(wanted))
					deepEqual(t, res.TotalRows, len(wanted))
				}
			}
		})
	}
}

func checkSortedRows(t testing.TB, rows []Row) {
	t.Helper()
	for i := 1; i < len(rows); i++ {
		if CompareKeys(rows[i-1].Key, rows[i].Key) > 0 {
			t.Fatalf("** rows out of order at %d: %v > %v", i, rows[i-1].Key, rows[i].Key)
		}
	}
}

func canonicalRows(rows []Row) []Row {
	rows = slices.Clone(rows)
	slices.SortFunc(rows, func(a, b Row) int {
		return cmp.Or(CompareKeys(a.Key, b.Key), cmp.Compare(a.ID, b.ID))
	})
	if rows == nil {
		rows = []Row{}
	}
	return rows
}
