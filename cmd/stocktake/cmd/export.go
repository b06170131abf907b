package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Write a count session's rolls to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = id.String() + ".xlsx"
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		data, err := a.exporter().SessionXLSX(cmd.Context(), id)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		logger.Info("export written", "session_id", id, "path", out, "bytes", len(data))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file (default <session-id>.xlsx)")
}
