// Package worker drains the OCR job queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/constants"
	"github.com/joseph-ayodele/stocktake/internal/common"
	"github.com/joseph-ayodele/stocktake/internal/entity"
	"github.com/joseph-ayodele/stocktake/internal/extract"
	"github.com/joseph-ayodele/stocktake/internal/hashing"
	"github.com/joseph-ayodele/stocktake/internal/metrics"
	"github.com/joseph-ayodele/stocktake/internal/ocr"
	"github.com/joseph-ayodele/stocktake/internal/repository"
	"github.com/joseph-ayodele/stocktake/internal/storage"
)

const (
	DefaultBatchSize = 5
	MaxBatchSize     = 10
)

// Jobs is the part of the job store the worker drives.
type Jobs interface {
	ListPending(ctx context.Context, limit int) ([]*entity.OCRJob, error)
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (attempts int, claimed bool, err error)
	Complete(ctx context.Context, id uuid.UUID, result []byte, now time.Time) error
	Requeue(ctx context.Context, id uuid.UUID, reason string) error
	Fail(ctx context.Context, id uuid.UUID, reason string, now time.Time) error
}

// Rolls is the part of the roll store the worker mirrors results into.
type Rolls interface {
	SetOCRStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus) error
	ApplyOCR(ctx context.Context, id uuid.UUID, res repository.RollOCR) error
}

// Summary reports one batch. Skipped jobs were claimed by another worker.
type Summary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

type Worker struct {
	jobs      Jobs
	rolls     Rolls
	store     storage.ObjectStore
	engine    ocr.Engine
	extractor *extract.Engine
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Worker)

// WithJobTimeout bounds fetch, OCR and extraction of a single job.
func WithJobTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

func WithExtractor(e *extract.Engine) Option {
	return func(w *Worker) {
		if e != nil {
			w.extractor = e
		}
	}
}

func New(jobs Jobs, rolls Rolls, store storage.ObjectStore, engine ocr.Engine, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		jobs:      jobs,
		rolls:     rolls,
		store:     store,
		engine:    engine,
		extractor: extract.NewEngine(),
		logger:    logger,
		timeout:   2 * time.Minute,
		now:       time.Now,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// ClampBatchSize maps a requested size onto 1..MaxBatchSize; anything
// non-positive means the default.
func ClampBatchSize(n int) int {
	switch {
	case n <= 0:
		return DefaultBatchSize
	case n > MaxBatchSize:
		return MaxBatchSize
	}
	return n
}

// ProcessBatch runs up to size pending jobs one after another. It only
// returns an error when the batch itself cannot be read; a failing job is
// retried later or marked failed without stopping the rest.
func (w *Worker) ProcessBatch(ctx context.Context, size int) (Summary, error) {
	size = ClampBatchSize(size)
	jobs, err := w.jobs.ListPending(ctx, size)
	if err != nil {
		metrics.OCRBatchesTotal.WithLabelValues("error").Inc()
		w.logger.Error("failed to fetch pending ocr jobs", "err", err)
		return Summary{}, fmt.Errorf("fetch pending jobs: %w", err)
	}
	metrics.OCRBatchesTotal.WithLabelValues("ok").Inc()

	sum := Summary{Total: len(jobs)}
	for _, job := range jobs {
		if ctx.Err() != nil {
			// jobs not yet claimed stay pending for the next run
			sum.Skipped++
			continue
		}
		switch w.processJob(ctx, job) {
		case outcomeCompleted:
			sum.Processed++
		case outcomeSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
	}
	if sum.Total > 0 {
		w.logger.Info("ocr batch finished",
			"total", sum.Total, "processed", sum.Processed, "failed", sum.Failed, "skipped", sum.Skipped)
	}
	return sum, nil
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (w *Worker) processJob(ctx context.Context, job *entity.OCRJob) outcome {
	log := w.logger.With("job_id", job.ID, "roll_id", job.RollID)

	attempts, claimed, err := w.jobs.Claim(ctx, job.ID, w.now())
	if err != nil {
		log.Error("failed to claim ocr job", "err", err)
		metrics.OCRJobsTotal.WithLabelValues("skipped").Inc()
		return outcomeSkipped
	}
	if !claimed {
		log.Info("ocr job claimed elsewhere, skipping")
		metrics.OCRJobsTotal.WithLabelValues("skipped").Inc()
		return outcomeSkipped
	}
	job.Attempts = attempts
	job.Status = constants.JobStatusProcessing
	start := time.Now()
	defer func() { metrics.OCRJobDuration.Observe(time.Since(start).Seconds()) }()

	if err := w.rolls.SetOCRStatus(ctx, job.RollID, constants.JobStatusProcessing); err != nil {
		log.Warn("failed to mark roll processing", "err", err)
	}

	if err := w.run(ctx, job, log); err != nil {
		w.fail(ctx, job, err, log)
		return outcomeFailed
	}
	metrics.OCRJobsTotal.WithLabelValues("completed").Inc()
	return outcomeCompleted
}

func (w *Worker) run(ctx context.Context, job *entity.OCRJob, log *slog.Logger) error {
	jctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	image, err := w.store.Fetch(jctx, job.ImagePath)
	if err != nil {
		return fmt.Errorf("fetch image: %w", err)
	}
	hashes := hashing.Compute(image)

	rec, err := w.engine.Recognize(jctx, image)
	if err != nil {
		return fmt.Errorf("ocr: %w", err)
	}
	fields := w.extractor.Extract(rec.Text, rec.Confidence)

	payload, err := EncodePayload(Payload{
		Text:           rec.Text,
		Engine:         rec.Engine,
		OCRConfidence:  rec.Confidence,
		Fields:         fields,
		ContentHash:    hashes.Content,
		PerceptualHash: hashes.Perceptual,
		Attempt:        job.Attempts,
		ProcessedAt:    w.now().UTC(),
	})
	if err != nil {
		return err
	}

	if err := w.jobs.Complete(ctx, job.ID, payload, w.now()); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if err := w.rolls.ApplyOCR(ctx, job.RollID, repository.RollOCR{
		Quality:        fields.Quality.Value,
		Color:          fields.Color.Value,
		LotNumber:      fields.LotNumber.Value,
		Meters:         fields.Meters.Value,
		QualityConf:    fields.Quality.Confidence,
		ColorConf:      fields.Color.Confidence,
		LotConf:        fields.LotNumber.Confidence,
		MetersConf:     fields.Meters.Confidence,
		Confidence:     fields.OverallConfidence,
		Level:          fields.Level,
		NotLabel:       fields.NotALabel,
		ContentHash:    hashes.Content,
		PerceptualHash: hashes.Perceptual,
	}); err != nil {
		return fmt.Errorf("update roll: %w", err)
	}

	metrics.ExtractionConfidence.Observe(fields.OverallConfidence)
	log.Info("ocr job completed",
		"attempt", job.Attempts,
		"fields_found", fields.FieldsFound,
		"confidence", fields.OverallConfidence,
		"not_a_label", fields.NotALabel,
	)
	return nil
}

// fail sends the job back to the queue while it has attempts left, otherwise
// parks it as failed. Store errors here are logged only.
func (w *Worker) fail(ctx context.Context, job *entity.OCRJob, cause error, log *slog.Logger) {
	reason := cause.Error()
	if errors.Is(cause, storage.ErrNotFound) {
		reason = "image not found: " + job.ImagePath
	}
	// the batch context may be done; the bookkeeping still has to land
	ctx = context.WithoutCancel(ctx)

	if job.CanRetry() {
		err := w.jobs.Requeue(ctx, job.ID, reason)
		if err == nil {
			log.Warn("ocr job failed, will retry", "attempt", job.Attempts, "max_attempts", job.MaxAttempts, "err", cause)
			metrics.OCRJobsTotal.WithLabelValues("retried").Inc()
			if err := w.rolls.SetOCRStatus(ctx, job.RollID, constants.JobStatusPending); err != nil {
				log.Error("failed to reset roll status", "err", err)
			}
			return
		}
		if !errors.Is(err, common.ErrConflict) {
			log.Error("failed to requeue ocr job", "err", err)
			return
		}
		// the budget ran out under another worker
		log.Warn("ocr job has no attempts left, failing", "err", err)
	}

	log.Error("ocr job failed permanently", "attempt", job.Attempts, "err", cause)
	metrics.OCRJobsTotal.WithLabelValues("failed").Inc()
	if err := w.jobs.Fail(ctx, job.ID, reason, w.now()); err != nil {
		log.Error("failed to mark ocr job failed", "err", err)
	}
	if err := w.rolls.SetOCRStatus(ctx, job.RollID, constants.JobStatusFailed); err != nil {
		log.Error("failed to mark roll failed", "err", err)
	}
}

// Run processes a batch every interval until ctx is done.
func (w *Worker) Run(ctx context.Context, interval time.Duration, size int) {
	if interval <= 0 {
		return
	}
	w.logger.Info("ocr worker loop started", "interval", interval, "batch_size", ClampBatchSize(size))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ocr worker loop stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx, size); err != nil {
				w.logger.Error("scheduled ocr batch failed", "err", err)
			}
		}
	}
}
