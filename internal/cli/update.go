package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/p-wisp/anti-phishing/internal/updater"
)

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Download every configured feed once and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := setupLogging(cmd, cfg)

			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			results := updater.New(db, cfg, logger).RunOnce(cmd.Context())
			return printResults(cmd, results)
		},
	}
}

// printResults writes one line per source and fails when any source failed.
func printResults(cmd *cobra.Command, results []updater.Result) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATUS\tENTRIES")

	failed := 0
	for _, r := range results {
		status := "ok"
		switch {
		case r.Err != nil:
			status = "error: " + r.Err.Error()
			failed++
		case r.NotModified:
			status = "not modified"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", r.Source, status, r.Count)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(results))
	}
	return nil
}
