package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/stocktake/internal/entity"
)

const (
	RollsSheet   = "Rolls"
	SummarySheet = "Summary"
)

type Sessions interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.CountSession, error)
}

type Rolls interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*entity.CountedRoll, error)
}

// Service produces the XLSX count report of a session.
type Service struct {
	sessions Sessions
	rolls    Rolls
	logger   *slog.Logger
}

func NewService(sessions Sessions, rolls Rolls, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sessions: sessions, rolls: rolls, logger: logger}
}

// SessionXLSX returns a workbook with one row per counted roll in capture
// order and a summary sheet. Counter-entered values win over OCR readings in
// the main columns; the raw readings follow for review.
func (s *Service) SessionXLSX(ctx context.Context, sessionID uuid.UUID) ([]byte, error) {
	start := time.Now()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	rolls, err := s.rolls.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query rolls: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", RollsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Seq",
		"Quality",
		"Color",
		"Lot Number",
		"Meters",
		"OCR Quality",
		"OCR Color",
		"OCR Lot Number",
		"OCR Meters",
		"OCR Confidence",
		"Confidence Level",
		"OCR Status",
		"Not A Label",
		"Captured At",
		"Image Path",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(RollsSheet, cell, h)
	}

	var totalMeters float64
	var ocrOutstanding int
	row := 2
	for _, r := range rolls {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(RollsSheet, cell, v)
		}
		write(1, r.SequenceNo)
		write(2, r.EffectiveQuality())
		write(3, r.EffectiveColor())
		write(4, r.EffectiveLotNumber())
		if m := r.EffectiveMeters(); m != nil {
			write(5, *m)
			totalMeters += *m
		}
		if !r.OCRStatus.Terminal() {
			ocrOutstanding++
		}
		write(6, deref(r.OCRQuality))
		write(7, deref(r.OCRColor))
		write(8, deref(r.OCRLotNumber))
		if r.OCRMeters != nil {
			write(9, *r.OCRMeters)
		}
		if r.OCRConfidence != nil {
			write(10, *r.OCRConfidence)
		}
		if r.OCRConfidenceLevel != nil {
			write(11, string(*r.OCRConfidenceLevel))
		}
		write(12, string(r.OCRStatus))
		write(13, r.NotLabelWarning)
		write(14, r.CreatedAt.UTC().Format(time.RFC3339))
		write(15, r.ImagePath)
		row++
	}

	summary := [][2]any{
		{"Session", sess.SessionNumber},
		{"Counter", sess.UserID},
		{"Status", string(sess.Status)},
		{"Started", sess.CreatedAt.UTC().Format(time.RFC3339)},
		{"Rolls", len(rolls)},
		{"Total Meters", totalMeters},
		{"OCR Outstanding", ocrOutstanding},
	}
	if sess.CancellationReason != nil {
		summary = append(summary, [2]any{"Cancellation Reason", *sess.CancellationReason})
	}
	for i, kv := range summary {
		_ = f.SetCellValue(SummarySheet, fmt.Sprintf("A%d", i+1), kv[0])
		_ = f.SetCellValue(SummarySheet, fmt.Sprintf("B%d", i+1), kv[1])
	}

	_ = f.SetColWidth(RollsSheet, "A", "A", 6)
	_ = f.SetColWidth(RollsSheet, "B", "D", 16)
	_ = f.SetColWidth(RollsSheet, "E", "E", 10)
	_ = f.SetColWidth(RollsSheet, "F", "H", 16)
	_ = f.SetColWidth(RollsSheet, "I", "M", 12)
	_ = f.SetColWidth(RollsSheet, "N", "N", 22)
	_ = f.SetColWidth(RollsSheet, "O", "O", 60)
	_ = f.SetColWidth(SummarySheet, "A", "B", 24)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"session_id", sessionID.String(),
		"rows", len(rolls),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
