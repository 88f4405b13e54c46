package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/andreyvit/revdb"
)

func TestCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.json")

	var ref revdb.DocRef
	decode(t, run(t, "", "--db", path, "put", `{"_id":"a","name":"x"}`), &ref)
	if ref.ID != "a" || ref.Rev == "" {
		t.Fatalf("** got %+v, wanted a revision of a", ref)
	}
	var ref2 revdb.DocRef
	decode(t, run(t, `{"_id":"b"}`, "--db", path, "put", "-"), &ref2)

	var doc revdb.Doc
	decode(t, run(t, "", "--db", path, "get", "a"), &doc)
	deepEqual(t, doc, revdb.Doc{"_id": "a", "_rev": ref.Rev, "name": "x"})

	var revs []string
	decode(t, run(t, "", "--db", path, "revs", "a"), &revs)
	deepEqual(t, revs, []string{ref.Rev})

	var res revdb.QueryResult
	decode(t, run(t, "", "--db", path, "all-docs", "--count"), &res)
	deepEqual(t, res.Rows, []revdb.Row{{Value: 2.0}})

	var changes []revdb.Change
	decode(t, run(t, "", "--db", path, "changes", "--since", "1"), &changes)
	deepEqual(t, len(changes), 1)
	deepEqual(t, changes[0].ID, "b")

	out := run(t, "", "--db", path, "dump")
	if !strings.Contains(out, "doc.a = (s0) "+ref.Rev) {
		t.Errorf("** got dump:\n%s", out)
	}
}

func TestCommands_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.json")
	err := execute("", "--db", path, "get", "nope")
	if !revdb.IsNotFound(err) {
		t.Errorf("** got %v, wanted not_found", err)
	}
	err = execute("", "--db", path, "put", "[1]")
	if err == nil || !strings.Contains(err.Error(), "invalid document") {
		t.Errorf("** got %v, wanted an invalid document error", err)
	}
	err = execute("", "--db", path, "--format", "xml", "stats")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("** got %v, wanted an unknown format error", err)
	}
	format = "auto"
}

func execute(stdin string, args ...string) error {
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(new(bytes.Buffer))
	return rootCmd.Execute()
}

func run(t testing.TB, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("** revdb %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func decode(t testing.TB, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("** %v in output:\n%s", err, out)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	t.Helper()
	if !reflect.DeepEqual(a, e) {
		t.Fatalf("** got %#v, wanted %#v", a, e)
	}
}
