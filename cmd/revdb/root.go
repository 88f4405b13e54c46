package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andreyvit/revdb"
)

var (
	dbPath  string
	format  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "revdb",
	Short:         "Inspect and edit revdb databases",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "revdb:", err)
		if revdb.IsConflict(err) || revdb.IsNotFound(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path; .json and .msgpack files are snapshots, anything else is a Bolt file")
	rootCmd.PersistentFlags().StringVar(&format, "format", "auto", "storage format: auto, bolt, json or msgpack")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every database operation")
	cobra.CheckErr(rootCmd.MarkPersistentFlagRequired("db"))
}

func parseFormat(s string) (revdb.Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return revdb.FormatAuto, nil
	case "bolt":
		return revdb.FormatBolt, nil
	case "json":
		return revdb.FormatJSON, nil
	case "msgpack":
		return revdb.FormatMsgPack, nil
	default:
		return 0, fmt.Errorf("unknown format %q", s)
	}
}

// withDB opens the database for the duration of f.
func withDB(f func(db *revdb.DB) error) (err error) {
	fm, err := parseFormat(format)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	db, err := revdb.Open(dbPath, revdb.Options{
		Format:  fm,
		Logger:  logger,
		Verbose: verbose,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()
	return f(db)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readDoc parses a document given as an argument, or read from stdin if the
// argument is "-".
func readDoc(arg string, stdin io.Reader) (revdb.Doc, error) {
	var raw []byte
	if arg == "-" {
		var err error
		raw, err = io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
	} else {
		raw = []byte(arg)
	}
	var doc revdb.Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("invalid document: expected a JSON object")
	}
	return doc, nil
}

// parseKey accepts a JSON value, falling back to a plain string.
func parseKey(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
