package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/stocktake/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import <session-id> <dir>...",
	Short: "Capture every label photo in a folder into a count session",
	Long: `Import jpg, png and webp files from one or more folders as captured rolls.
Each file gets an OCR job; run "stocktake work" or "stocktake serve" to process them.

With --watch the folders stay open and files written later are imported too.

Examples:
  stocktake import 0b7e... ./DCIM
  stocktake import 0b7e... /mnt/camera --watch`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}
		roots := args[1:]
		watch, _ := cmd.Flags().GetBool("watch")
		includeHidden, _ := cmd.Flags().GetBool("include-hidden")
		debounce, _ := cmd.Flags().GetDuration("debounce")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		im := ingest.NewImporter(a.capture(a.detector()), a.manager(), logger)
		enc := json.NewEncoder(cmd.OutOrStdout())

		if !watch {
			var total ingest.DirStats
			for _, root := range roots {
				results, stats, err := im.ImportDirectory(ctx, id, root, !includeHidden)
				for _, r := range results {
					_ = enc.Encode(r)
				}
				if err != nil {
					return err
				}
				total.Scanned += stats.Scanned
				total.Matched += stats.Matched
				total.Imported += stats.Imported
				total.Duplicates += stats.Duplicates
				total.Failed += stats.Failed
			}
			logger.Info("import finished",
				"session_id", id, "imported", total.Imported, "duplicates", total.Duplicates, "failed", total.Failed)
			if total.Failed > 0 {
				return fmt.Errorf("%d of %d files failed to import", total.Failed, total.Matched)
			}
			return nil
		}

		results := make(chan ingest.FileResult, 16)
		done := make(chan error, 1)
		go func() {
			done <- im.Watch(ctx, id, ingest.WatchConfig{
				Roots:       roots,
				InitialScan: true,
				Debounce:    debounce,
				SkipHidden:  !includeHidden,
			}, results)
		}()
		for {
			select {
			case r := <-results:
				_ = enc.Encode(r)
			case err := <-done:
				return err
			}
		}
	},
}

func init() {
	importCmd.Flags().Bool("watch", false, "keep watching the folders for new files")
	importCmd.Flags().Bool("include-hidden", false, "import dot-files and dot-directories too")
	importCmd.Flags().Duration("debounce", 500*time.Millisecond, "wait this long after the last write before importing a file")
	rootCmd.AddCommand(importCmd)
}
