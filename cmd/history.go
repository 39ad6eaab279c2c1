package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var historyLimit int

// historyCmd is the parent command for history operations.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and archive the change history",
}

// historyListCmd prints the newest events.
var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the newest history events",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}

		events, err := rt.stock.Ledger().History(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("failed to read history: %w", err)
		}
		for _, ev := range events {
			fmt.Printf("%s  %-18s %-32s %-12s %s\n",
				ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Action, ev.Identity, ev.UserName, ev.Details)
		}
		rt.logger.Info("History listed", zap.Int("events", len(events)))
		return nil
	},
}

// historyExportCmd writes the retained history to the bucket.
var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the retained history to object storage",
	Long:  `Writes every retained history event as one JSON object. Requires STORAGE_ENABLED=true.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}

		res, err := rt.stock.ExportHistory(cmd.Context())
		if err != nil {
			return err
		}
		rt.logger.Info("History exported",
			zap.String("bucket", rt.cfg.Storage.Bucket),
			zap.String("object", res.Object),
			zap.Int("events", res.Events),
		)
		return nil
	},
}

// historyArchivesCmd lists archived and exported objects.
var historyArchivesCmd = &cobra.Command{
	Use:   "archives",
	Short: "List archived history objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}

		names, err := rt.stock.Archives(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 50, "Number of events to print")
	historyCmd.AddCommand(historyListCmd, historyExportCmd, historyArchivesCmd)
	RootCmd.AddCommand(historyCmd)
}
