package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/stocktake/internal/common"
)

var (
	version = "dev"

	cfgFile string
	cfg     *common.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stocktake",
	Short: "Roll count capture, OCR and reconciliation service",
	Long: `stocktake records count sessions of fabric rolls, stores a photo of each
roll label, reads the label with OCR and flags duplicate captures.

Examples:
  stocktake serve --config stocktake.yaml
  stocktake work --batch-size 10
  stocktake export <session-id> -o count.xlsx
  stocktake extract label.txt --format yaml`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := common.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		cfg = loaded
		logger = common.InitLogger(cfg.Log, os.Stderr)
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for tests.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./stocktake.yaml or /etc/stocktake/stocktake.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, workCmd, migrateCmd, healthCmd, exportCmd, extractCmd, hashCmd)
}
