package main

import (
	"github.com/spf13/cobra"

	"github.com/andreyvit/revdb"
)

var putCmd = &cobra.Command{
	Use:   "put JSON",
	Short: "Write a document (use - to read it from stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDoc(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withDB(func(db *revdb.DB) error {
			ref, err := db.Put(doc)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ref)
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get ID [REV]",
	Short: "Print a document, optionally at a given revision",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rev string
		if len(args) > 1 {
			rev = args[1]
		}
		return withDB(func(db *revdb.DB) error {
			doc, err := db.Get(args[0], rev)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		})
	},
}

var revsCmd = &cobra.Command{
	Use:   "revs ID",
	Short: "List the retained revisions of a document, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *revdb.DB) error {
			revs, err := db.Revisions(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), revs)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID REV",
	Short: "Delete a document at its head revision",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *revdb.DB) error {
			ref, err := db.Delete(args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ref)
		})
	},
}

func init() {
	rootCmd.AddCommand(putCmd, getCmd, revsCmd, deleteCmd)
}
