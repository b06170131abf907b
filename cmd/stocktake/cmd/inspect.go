package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/stocktake/internal/extract"
	"github.com/joseph-ayodele/stocktake/internal/hashing"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file|-]",
	Short: "Run field extraction over label text",
	Long: `Read label text from a file, stdin ("-") or --text and print the
extracted quality, color, lot number and meters with their confidence.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		if text == "" {
			if len(args) == 0 {
				return fmt.Errorf("provide a file, - for stdin, or --text")
			}
			b, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			text = string(b)
		}
		conf, _ := cmd.Flags().GetFloat64("ocr-confidence")
		return printResult(cmd, extract.Extract(text, conf))
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash <image>",
	Short: "Print the content hash and perceptual fingerprint of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, hashing.Compute(b))
	},
}

func init() {
	extractCmd.Flags().String("text", "", "label text to extract from")
	extractCmd.Flags().Float64("ocr-confidence", 0, "engine confidence 0-100; 0 uses the rule confidences alone")
	for _, c := range []*cobra.Command{extractCmd, hashCmd} {
		c.Flags().StringP("format", "f", "json", "output format (json, yaml)")
	}
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return b, nil
}

func printResult(cmd *cobra.Command, v any) error {
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()
	switch format {
	case "yaml", "yml":
		// round-trip through json so yaml keys follow the json tags
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown format %q (json, yaml)", format)
	}
}
