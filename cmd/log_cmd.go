package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kebairia/invbackup/internal/backuplog"
)

var logOutput string

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "List recorded backups",
	Long:  "Print the backup log in chronological order. The INDEX column is what restore --index expects.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := newStore().Read()
		if err != nil {
			return err
		}
		return printEvents(cmd.OutOrStdout(), events, logOutput)
	},
}

func init() {
	logCmd.Flags().
		StringVarP(&logOutput, "output", "o", "table", "output format: table, json or yaml")
}

func printEvents(w io.Writer, events []backuplog.Event, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(events)
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tKIND\tTIMESTAMP\tFILENAME\tSIZE")
		for i, ev := range events {
			when := "unreadable"
			if ev.Valid() {
				when = ev.Time().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
				i, ev.Kind, when, ev.Filename, artifactSize(ev.Path))
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown output format %q", format)
}

func artifactSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "missing"
	}
	return humanize.Bytes(uint64(info.Size()))
}
