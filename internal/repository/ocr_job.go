package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/constants"
	"github.com/joseph-ayodele/stocktake/internal/common"
	"github.com/joseph-ayodele/stocktake/internal/entity"
)

const (
	jobsTable          = "ocr_jobs"
	DefaultMaxAttempts = 3
)

var jobColumns = []string{
	"id", "roll_id", "image_path", "status", "attempts", "max_attempts",
	"result", "error_message", "created_at", "started_at", "completed_at",
}

type OCRJobRepository interface {
	Create(ctx context.Context, job *entity.OCRJob) error
	Get(ctx context.Context, id uuid.UUID) (*entity.OCRJob, error)
	GetByRoll(ctx context.Context, rollID uuid.UUID) (*entity.OCRJob, error)
	// ListPending returns pending jobs with attempts left, oldest first.
	ListPending(ctx context.Context, limit int) ([]*entity.OCRJob, error)
	// Claim moves a pending job to processing and bumps its attempts,
	// returning the stored attempt count. It reports false when another
	// worker got there first.
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (attempts int, claimed bool, err error)
	Complete(ctx context.Context, id uuid.UUID, result []byte, now time.Time) error
	// Requeue and Fail take a processing (or just completed) job back out
	// of the worker's hands. Requeue refuses a job with no attempts left.
	Requeue(ctx context.Context, id uuid.UUID, reason string) error
	Fail(ctx context.Context, id uuid.UUID, reason string, now time.Time) error
	// Reset puts a finished job back in the queue with a fresh attempt budget.
	Reset(ctx context.Context, id uuid.UUID) error
}

type ocrJobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewOCRJobRepository(db *DB, log *slog.Logger) OCRJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &ocrJobRepo{db: db, log: log}
}

func (r *ocrJobRepo) Create(ctx context.Context, job *entity.OCRJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = constants.JobStatusPending
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.CreatedAt = job.CreatedAt.UTC()

	var result any
	if len(job.Result) > 0 {
		result = string(job.Result)
	}
	ins := r.db.builder().Insert(jobsTable).
		Columns("id", "roll_id", "image_path", "status", "attempts", "max_attempts", "result", "error_message", "created_at").
		Values(job.ID, job.RollID, job.ImagePath, string(job.Status), job.Attempts, job.MaxAttempts, result, nullable(job.ErrorMessage), job.CreatedAt)
	if _, err := r.db.exec(ctx, ins); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ocr job for roll %s: %w", job.RollID, common.ErrConflict)
		}
		r.log.Error("ocr_job create failed", "roll_id", job.RollID, "err", err)
		return err
	}
	r.log.Debug("ocr_job created", "job_id", job.ID, "roll_id", job.RollID)
	return nil
}

func (r *ocrJobRepo) Get(ctx context.Context, id uuid.UUID) (*entity.OCRJob, error) {
	return r.one(ctx, entsql.EQ("id", id), id)
}

func (r *ocrJobRepo) GetByRoll(ctx context.Context, rollID uuid.UUID) (*entity.OCRJob, error) {
	return r.one(ctx, entsql.EQ("roll_id", rollID), rollID)
}

func (r *ocrJobRepo) one(ctx context.Context, p *entsql.Predicate, key any) (*entity.OCRJob, error) {
	jobs, err := r.list(ctx, r.db.builder().Select(jobColumns...).From(entsql.Table(jobsTable)).Where(p).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, notFound("ocr job", key)
	}
	return jobs[0], nil
}

func (r *ocrJobRepo) ListPending(ctx context.Context, limit int) ([]*entity.OCRJob, error) {
	sel := r.db.builder().Select(jobColumns...).
		From(entsql.Table(jobsTable)).
		Where(entsql.And(
			entsql.EQ("status", string(constants.JobStatusPending)),
			entsql.ColumnsLT("attempts", "max_attempts"),
		)).
		OrderBy("created_at", "id").
		Limit(limit)
	jobs, err := r.list(ctx, sel)
	if err != nil {
		r.log.Error("ocr_job list pending failed", "err", err)
		return nil, err
	}
	return jobs, nil
}

func (r *ocrJobRepo) Claim(ctx context.Context, id uuid.UUID, now time.Time) (int, bool, error) {
	upd := r.db.builder().Update(jobsTable).
		Set("status", string(constants.JobStatusProcessing)).
		Add("attempts", 1).
		Set("started_at", now.UTC()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(constants.JobStatusPending)),
		)).
		Returning("attempts")
	var (
		attempts int
		claimed  bool
	)
	err := r.db.query(ctx, upd, func(rows *entsql.Rows) error {
		claimed = true
		return rows.Scan(&attempts)
	})
	if err != nil {
		r.log.Error("ocr_job claim failed", "job_id", id, "err", err)
		return 0, false, err
	}
	return attempts, claimed, nil
}

func (r *ocrJobRepo) Complete(ctx context.Context, id uuid.UUID, result []byte, now time.Time) error {
	upd := r.db.builder().Update(jobsTable).
		Set("status", string(constants.JobStatusCompleted)).
		Set("result", string(result)).
		SetNull("error_message").
		Set("completed_at", now.UTC()).
		Where(r.processing(id))
	return r.expectOne(ctx, upd, id, "complete")
}

func (r *ocrJobRepo) Requeue(ctx context.Context, id uuid.UUID, reason string) error {
	upd := r.db.builder().Update(jobsTable).
		Set("status", string(constants.JobStatusPending)).
		Set("error_message", reason).
		Where(entsql.And(
			r.reopenable(id),
			entsql.ColumnsLT("attempts", "max_attempts"),
		))
	return r.expectOne(ctx, upd, id, "requeue")
}

func (r *ocrJobRepo) Fail(ctx context.Context, id uuid.UUID, reason string, now time.Time) error {
	upd := r.db.builder().Update(jobsTable).
		Set("status", string(constants.JobStatusFailed)).
		Set("error_message", reason).
		Set("completed_at", now.UTC()).
		Where(r.reopenable(id))
	return r.expectOne(ctx, upd, id, "fail")
}

func (r *ocrJobRepo) Reset(ctx context.Context, id uuid.UUID) error {
	upd := r.db.builder().Update(jobsTable).
		Set("status", string(constants.JobStatusPending)).
		Set("attempts", 0).
		SetNull("result").
		SetNull("error_message").
		SetNull("started_at").
		SetNull("completed_at").
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.NEQ("status", string(constants.JobStatusProcessing)),
		))
	n, err := r.db.exec(ctx, upd)
	if err != nil {
		r.log.Error("ocr_job reset failed", "job_id", id, "err", err)
		return err
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("ocr job %s is processing: %w", id, common.ErrConflict)
	}
	r.log.Info("ocr_job reset", "job_id", id)
	return nil
}

func (r *ocrJobRepo) processing(id uuid.UUID) *entsql.Predicate {
	return entsql.And(
		entsql.EQ("id", id),
		entsql.EQ("status", string(constants.JobStatusProcessing)),
	)
}

// reopenable also matches completed jobs: the roll mirror is written after the
// job completes, and a failure there sends the job back through the retry path.
func (r *ocrJobRepo) reopenable(id uuid.UUID) *entsql.Predicate {
	return entsql.And(
		entsql.EQ("id", id),
		entsql.In("status", string(constants.JobStatusProcessing), string(constants.JobStatusCompleted)),
	)
}

func (r *ocrJobRepo) expectOne(ctx context.Context, upd querier, id uuid.UUID, op string) error {
	n, err := r.db.exec(ctx, upd)
	if err != nil {
		r.log.Error("ocr_job update failed", "op", op, "job_id", id, "err", err)
		return err
	}
	if n != 1 {
		return fmt.Errorf("%s ocr job %s: status changed: %w", op, id, common.ErrConflict)
	}
	return nil
}

func (r *ocrJobRepo) list(ctx context.Context, sel *entsql.Selector) ([]*entity.OCRJob, error) {
	var out []*entity.OCRJob
	err := r.db.query(ctx, sel, func(rows *entsql.Rows) error {
		var (
			j                      entity.OCRJob
			status                 string
			result, errMsg         sql.NullString
			startedAt, completedAt sql.NullTime
		)
		if err := rows.Scan(&j.ID, &j.RollID, &j.ImagePath, &status, &j.Attempts, &j.MaxAttempts,
			&result, &errMsg, &j.CreatedAt, &startedAt, &completedAt); err != nil {
			return err
		}
		j.Status = constants.JobStatus(status)
		if result.Valid && result.String != "" {
			j.Result = []byte(result.String)
		}
		j.ErrorMessage = ptrString(errMsg)
		j.CreatedAt = j.CreatedAt.UTC()
		j.StartedAt = ptrTime(startedAt)
		j.CompletedAt = ptrTime(completedAt)
		out = append(out, &j)
		return nil
	})
	return out, err
}
