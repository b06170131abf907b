package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// Tesseract runs the tesseract CLI over a temporary copy of the image.
type Tesseract struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg Config, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	return &Tesseract{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner; used by tests.
func (t *Tesseract) WithRunner(r Runner) *Tesseract {
	t.runner = r
	return t
}

func (t *Tesseract) Recognize(ctx context.Context, image []byte) (Result, error) {
	if len(image) == 0 {
		return Result{}, fmt.Errorf("tesseract: empty image")
	}
	f, err := os.CreateTemp("", "stocktake-ocr-*")
	if err != nil {
		return Result{}, fmt.Errorf("tesseract: temp file: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil {
			t.logger.Warn("failed to remove temp image", "path", path, "err", err)
		}
	}()
	if _, err := f.Write(image); err != nil {
		_ = f.Close()
		return Result{}, fmt.Errorf("tesseract: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("tesseract: close temp file: %w", err)
	}

	// tesseract <file> stdout -l <lang> [--psm N] [--oem N]
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, t.args(path)...)
	if err != nil {
		return Result{}, fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 512))
	}
	txt := Normalize(string(out))

	conf := -1.0
	if t.cfg.EnableTSVConfidence {
		tsv, _, err := t.runner.Run(ctx, t.cfg.Tesseract, append(t.args(path), "tsv")...)
		if err != nil {
			t.logger.Warn("tesseract tsv confidence failed", "err", err)
		} else if c, ok := parseTSVConfidence(tsv); ok {
			conf = c
		}
	}
	if conf < 0 {
		conf = heuristicConfidence(txt)
	}

	t.logger.Debug("tesseract recognized image", "chars", len(txt), "confidence", conf)
	return Result{Text: txt, Confidence: conf, Engine: ProviderTesseract}, nil
}

func (t *Tesseract) args(path string) []string {
	args := []string{path, "stdout", "-l", t.cfg.TesseractLang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return args
}
