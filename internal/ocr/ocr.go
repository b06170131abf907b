// Package ocr recognizes text on label photos.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	ProviderTesseract = "tesseract"
	ProviderVision    = "vision"
)

// Result is the raw recognized text and the engine's confidence in 0..100.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Engine     string  `json:"engine"`
}

// Engine recognizes the text in one image.
type Engine interface {
	Recognize(ctx context.Context, image []byte) (Result, error)
}

type Config struct {
	Provider string // tesseract | vision, default tesseract

	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string
	PSM           int // 6 suits a single label block
	OEM           int // 1 = LSTM; 0 leaves the default

	EnableTSVConfidence bool

	// Google Vision credentials; both empty falls back to application default credentials.
	CredentialsFile string
	CredentialsJSON string
	LanguageHints   []string
}

// New builds the engine selected by cfg.Provider.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderTesseract:
		return NewTesseract(cfg, logger), nil
	case ProviderVision:
		return NewVision(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown ocr provider %q", cfg.Provider)
	}
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
