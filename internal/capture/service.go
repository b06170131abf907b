// Package capture records one photographed roll: it stores the label image,
// creates the roll row and enqueues the roll's OCR job.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/constants"
	"github.com/joseph-ayodele/stocktake/internal/common"
	"github.com/joseph-ayodele/stocktake/internal/dedupe"
	"github.com/joseph-ayodele/stocktake/internal/entity"
	"github.com/joseph-ayodele/stocktake/internal/extract"
	"github.com/joseph-ayodele/stocktake/internal/hashing"
	"github.com/joseph-ayodele/stocktake/internal/metrics"
	"github.com/joseph-ayodele/stocktake/internal/storage"
)

// ErrTooLarge is returned for images over the configured size cap.
var ErrTooLarge = errors.New("capture: image too large")

type Rolls interface {
	Create(ctx context.Context, roll *entity.CountedRoll) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Jobs interface {
	Create(ctx context.Context, job *entity.OCRJob) error
}

type Checker interface {
	Check(ctx context.Context, q dedupe.Query) dedupe.Result
}

// Input is one captured image plus whatever the counter typed in by hand.
type Input struct {
	Session   *entity.CountSession
	Filename  string
	Data      []byte
	Quality   string
	Color     string
	LotNumber string
	Meters    string
}

// Outcome is the stored roll, its OCR job and the eager duplicate verdict.
type Outcome struct {
	Roll      *entity.CountedRoll `json:"roll"`
	JobID     uuid.UUID           `json:"job_id"`
	Duplicate dedupe.Result       `json:"duplicate"`
}

type Service struct {
	rolls    Rolls
	jobs     Jobs
	store    storage.ObjectStore
	detector Checker
	maxBytes int64
	logger   *slog.Logger
}

type Option func(*Service)

// WithMaxBytes lowers the image size cap. Values outside (0, MaxCaptureBytes]
// keep the default.
func WithMaxBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 && n <= constants.MaxCaptureBytes {
			s.maxBytes = n
		}
	}
}

func NewService(rolls Rolls, jobs Jobs, store storage.ObjectStore, detector Checker, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		rolls:    rolls,
		jobs:     jobs,
		store:    store,
		detector: detector,
		maxBytes: constants.MaxCaptureBytes,
		logger:   logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MaxBytes is the effective image size cap.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Capture stores the image and enqueues OCR. The duplicate check runs
// before anything is written, with the data tier fed by the counter's own
// fields; a hit is reported in the outcome and never blocks the capture.
func (s *Service) Capture(ctx context.Context, in Input) (*Outcome, error) {
	sess := in.Session
	if sess == nil {
		return nil, common.NewAppError("VALIDATION_FAILED", "session is required", common.ErrValidation)
	}
	if !sess.Status.Resumable() {
		return nil, common.NewAppError("SESSION_CLOSED", "session is "+string(sess.Status), common.ErrConflict)
	}

	ext := constants.NormalizeExt(filepath.Ext(in.Filename))
	contentType := constants.ContentTypeFor(ext)
	if contentType == "" {
		return nil, common.NewAppError("VALIDATION_FAILED", "image must be jpg, jpeg, png or webp", common.ErrValidation)
	}
	if len(in.Data) == 0 {
		return nil, common.NewAppError("VALIDATION_FAILED", "image is empty", common.ErrValidation)
	}
	if int64(len(in.Data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(in.Data), s.maxBytes)
	}
	metrics.UploadSizeBytes.Observe(float64(len(in.Data)))

	roll := &entity.CountedRoll{ID: uuid.New(), SessionID: sess.ID}
	if err := applyCounterFields(roll, in); err != nil {
		return nil, err
	}
	roll.ImagePath = storage.ImagePath(sess.ID, roll.ID, ext)

	hashes := hashing.Compute(in.Data)
	verdict := s.detector.Check(ctx, dedupe.Query{
		RollID:         roll.ID,
		SessionID:      sess.ID,
		ContentHash:    hashes.Content,
		PerceptualHash: hashes.Perceptual,
		Quality:        deref(roll.Quality),
		Color:          deref(roll.Color),
		LotNumber:      deref(roll.LotNumber),
		Meters:         roll.Meters,
	})

	if err := s.store.Put(ctx, roll.ImagePath, in.Data, contentType); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	if err := s.rolls.Create(ctx, roll); err != nil {
		s.discard(ctx, roll.ImagePath)
		return nil, err
	}
	job := &entity.OCRJob{RollID: roll.ID, ImagePath: roll.ImagePath}
	if err := s.jobs.Create(ctx, job); err != nil {
		if derr := s.rolls.Delete(context.WithoutCancel(ctx), roll.ID); derr != nil {
			s.logger.Error("failed to remove roll without ocr job", "roll_id", roll.ID, "err", derr)
		}
		s.discard(ctx, roll.ImagePath)
		return nil, fmt.Errorf("enqueue ocr job: %w", err)
	}

	common.LoggerFromContext(ctx, s.logger).Info("roll captured",
		"session_id", sess.ID,
		"user_id", common.UserIDFromContext(ctx),
		"roll_id", roll.ID,
		"sequence_no", roll.SequenceNo,
		"job_id", job.ID,
		"bytes", len(in.Data),
		"duplicate", verdict.Duplicate,
	)
	return &Outcome{Roll: roll, JobID: job.ID, Duplicate: verdict}, nil
}

func applyCounterFields(roll *entity.CountedRoll, in Input) error {
	for _, f := range []struct {
		raw string
		dst **string
	}{
		{in.Quality, &roll.Quality},
		{in.Color, &roll.Color},
		{in.LotNumber, &roll.LotNumber},
	} {
		if v := strings.TrimSpace(f.raw); v != "" {
			v = strings.ToUpper(v)
			*f.dst = &v
		}
	}
	if raw := strings.TrimSpace(in.Meters); raw != "" {
		m, ok := extract.ParseMeters(raw)
		if !ok {
			msg := fmt.Sprintf("meters must be a number in (%g, %g]", extract.MinMeters, extract.MaxMeters)
			return common.NewAppError("VALIDATION_FAILED", msg, common.ErrValidation)
		}
		roll.Meters = &m
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// discard removes an orphaned upload; the capture has already failed.
func (s *Service) discard(ctx context.Context, path string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), path); err != nil {
		s.logger.Warn("failed to remove orphaned image", "path", path, "err", err)
	}
}

