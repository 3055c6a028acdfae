package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	restoreDBPath string
	restoreIndex  int
)

var restoreCmd = &cobra.Command{
	Use:   "restore [backup-file]",
	Short: "Restore the database from a backup",
	Long: `Restore the database from a backup file, or from the backup log entry
selected with --index. The current database is kept as <db>.bak_<timestamp>.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := newEngine()

		var source string
		switch {
		case len(args) == 1 && restoreIndex >= 0:
			return errors.New("give either a backup file or --index, not both")
		case len(args) == 1:
			source = args[0]
		case restoreIndex >= 0:
			ev, err := engine.Event(restoreIndex)
			if err != nil {
				return err
			}
			source = ev.Path
		default:
			return errors.New("a backup file or --index is required")
		}

		dbPath := cfg.Database.Path
		if restoreDBPath != "" {
			dbPath = restoreDBPath
		}

		res := engine.Restore(cmd.Context(), source, dbPath)
		if err := report(cmd, res); err != nil {
			return err
		}
		if res.RestartRequested {
			fmt.Fprintln(cmd.OutOrStdout(), "Restart the inventory application so it reopens the restored database.")
		}
		return nil
	},
}

func init() {
	restoreCmd.Flags().
		StringVar(&restoreDBPath, "db", "", "database file to restore into (defaults to database.path)")
	restoreCmd.Flags().
		IntVarP(&restoreIndex, "index", "i", -1, "restore the backup log entry at this index")
}
