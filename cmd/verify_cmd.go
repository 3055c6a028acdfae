package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kebairia/invbackup/internal/database"
	"github.com/kebairia/invbackup/internal/operations"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Check that a database or backup file is intact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if operations.IsCompressed(path) {
			return fmt.Errorf("%s is compressed; restore it first or decompress it with zstd", path)
		}
		checker := database.NewSQLite(cfg.Backup.VerifyTimeout)
		if err := checker.Verify(cmd.Context(), path); err != nil {
			return err
		}
		tables, err := checker.Tables(cmd.Context(), path)
		if err != nil {
			return err
		}
		log.Debug("verified database", "path", path, "tables", len(tables))
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d tables: %s)\n", path, len(tables), strings.Join(tables, ", "))
		return nil
	},
}
