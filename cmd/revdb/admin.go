package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/revdb"
)

var allDocsCmd = &cobra.Command{
	Use:   "all-docs",
	Short: "List live documents by id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opt revdb.QueryOptions
		flags := cmd.Flags()
		if flags.Changed("key") {
			key, _ := flags.GetString("key")
			opt.Key = parseKey(key)
		}
		opt.Limit, _ = flags.GetInt("limit")
		opt.Offset, _ = flags.GetInt("offset")
		opt.Reduce, _ = flags.GetBool("count")
		return withDB(func(db *revdb.DB) error {
			if err := db.RegisterView(revdb.AllDocs); err != nil {
				return err
			}
			res, err := db.Query(revdb.AllDocsName, opt)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Print the change feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetUint64("since")
		limit, _ := cmd.Flags().GetInt("limit")
		return withDB(func(db *revdb.DB) error {
			changes := db.Changes(since, limit)
			if changes == nil {
				changes = []revdb.Change{}
			}
			return printJSON(cmd.OutOrStdout(), changes)
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the configuration, changing the given settings first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		return withDB(func(db *revdb.DB) error {
			cfg := db.Config()
			changed := false
			if flags.Changed("auto-save") {
				cfg.AutoSave, _ = flags.GetBool("auto-save")
				changed = true
			}
			if flags.Changed("pretty") {
				cfg.Pretty, _ = flags.GetBool("pretty")
				changed = true
			}
			if flags.Changed("max-revisions") {
				cfg.MaxRevisions, _ = flags.GetUint("max-revisions")
				changed = true
			}
			if changed {
				if err := db.SetConfig(cfg); err != nil {
					return err
				}
				if !cfg.AutoSave {
					if err := db.Save(); err != nil {
						return err
					}
				}
			}
			return printJSON(cmd.OutOrStdout(), db.Config())
		})
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the whole database in a debugging format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		flags := revdb.DumpHeader | revdb.DumpStats | revdb.DumpDocs | revdb.DumpIndexes
		if all {
			flags = revdb.DumpAll
		}
		return withDB(func(db *revdb.DB) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), db.Dump(flags))
			return err
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print database statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *revdb.DB) error {
			return printJSON(cmd.OutOrStdout(), db.Stats())
		})
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Drop cached view indexes and rewrite the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *revdb.DB) error {
			if err := db.DropAllIndexes(); err != nil {
				return err
			}
			return db.Save()
		})
	},
}

func init() {
	allDocsCmd.Flags().String("key", "", "only the document with this id")
	allDocsCmd.Flags().Int("limit", 0, "maximum number of rows (0 = all)")
	allDocsCmd.Flags().Int("offset", 0, "number of rows to skip")
	allDocsCmd.Flags().Bool("count", false, "print the number of documents instead of rows")

	changesCmd.Flags().Uint64("since", 0, "skip changes up to and including this sequence")
	changesCmd.Flags().Int("limit", 0, "maximum number of changes (0 = all)")

	configCmd.Flags().Bool("auto-save", true, "persist after every write")
	configCmd.Flags().Bool("pretty", false, "indent JSON snapshot files")
	configCmd.Flags().Uint("max-revisions", 0, "revisions kept per document (0 = unlimited)")

	dumpCmd.Flags().Bool("all", false, "include old revisions, the change log and index rows")

	rootCmd.AddCommand(allDocsCmd, changesCmd, configCmd, dumpCmd, statsCmd, compactCmd)
}
