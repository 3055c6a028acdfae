package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/kebairia/invbackup/internal/backuplog"
)

var (
	backupDBPath string
	backupSince  string
)

var backupCmd = &cobra.Command{
	Use:       "backup {full|incremental|differential}",
	Short:     "Back up the database",
	Long:      "Take a full backup, or an incremental/differential one if the database changed since its baseline.",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(backuplog.KindFull), string(backuplog.KindIncremental), string(backuplog.KindDifferential)},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := backuplog.ParseKind(args[0])
		if err != nil {
			return err
		}
		dbPath := cfg.Database.Path
		if backupDBPath != "" {
			dbPath = backupDBPath
		}

		var since time.Time
		if backupSince != "" {
			since, err = backuplog.ParseTimestamp(backupSince)
			if err != nil {
				return err
			}
		}

		engine := newEngine()
		ctx := cmd.Context()
		switch kind {
		case backuplog.KindIncremental:
			return report(cmd, engine.IncrementalBackup(ctx, dbPath, since))
		case backuplog.KindDifferential:
			return report(cmd, engine.DifferentialBackup(ctx, dbPath, since))
		}
		return report(cmd, engine.FullBackup(ctx, dbPath))
	},
}

func init() {
	backupCmd.Flags().
		StringVar(&backupDBPath, "db", "", "database file to back up (defaults to database.path)")
	backupCmd.Flags().
		StringVar(&backupSince, "since", "", "baseline timestamp (ISO-8601) instead of the one from the backup log")
}
