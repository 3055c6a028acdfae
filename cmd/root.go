package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kebairia/invbackup/internal/backuplog"
	"github.com/kebairia/invbackup/internal/config"
	"github.com/kebairia/invbackup/internal/database"
	"github.com/kebairia/invbackup/internal/logger"
	"github.com/kebairia/invbackup/internal/operations"
)

var (
	// ConfigFile is the path to the YAML configuration.
	ConfigFile string
	debug      bool

	cfg      config.Config
	log      logger.Logger = logger.Nop()
	flushLog func()        = func() {}

	// rootCmd is the base command for invbackup.
	rootCmd = &cobra.Command{
		Use:   "invbackup",
		Short: "Backup and restore the inventory database",
		Long: `invbackup takes full, incremental and differential backups of the
inventory application's SQLite database, keeps a JSON log of them and
restores a chosen backup in place.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(ConfigFile); err != nil {
				return err
			}
			l, flush, err := logger.Init(debug || cfg.Log.Debug)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			flushLog()
			log, flushLog = l, flush
			return nil
		},
	}
)

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	flushLog()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", "", "path to YAML config file (defaults only when empty)")
	rootCmd.PersistentFlags().
		BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(serveCmd)
}

// newStore returns the backup log store described by the configuration.
func newStore() *backuplog.Store {
	return backuplog.New(cfg.Backup.Directory,
		backuplog.WithLogFile(cfg.LogFilePath()),
		backuplog.WithLogger(log),
	)
}

// newEngine wires the engine from the configuration.
func newEngine() *operations.Engine {
	opts := []operations.Option{
		operations.WithLogger(log),
		operations.WithCompression(cfg.Backup.Compress),
		operations.WithTimestampFormat(cfg.Backup.TimestampFormat),
	}
	if cfg.Backup.Verify {
		opts = append(opts, operations.WithVerifier(database.NewSQLite(cfg.Backup.VerifyTimeout)))
	}
	return operations.New(newStore(), opts...)
}

// report prints the result message and turns failures into an error.
func report(cmd *cobra.Command, res operations.Result) error {
	switch res.Status {
	case operations.StatusSuccess:
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	case operations.StatusDeclined:
		fmt.Fprintf(cmd.OutOrStdout(), "skipped: %s\n", res.Message)
	default:
		fmt.Fprintln(cmd.ErrOrStderr(), res.Message)
		return res.Err
	}
	return nil
}
