package cmd

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Process one batch of pending OCR jobs and print the summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		size := cfg.Worker.BatchSize
		if cmd.Flags().Changed("batch-size") {
			size, _ = cmd.Flags().GetInt("batch-size")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		w, err := a.worker(ctx)
		if err != nil {
			return err
		}
		summary, err := w.ProcessBatch(ctx, size)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	workCmd.Flags().Int("batch-size", 0, "jobs to claim (1-10, overrides worker.batch_size)")
}
