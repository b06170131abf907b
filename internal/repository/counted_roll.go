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
	rollsTable = "counted_rolls"

	// sequence numbers are assigned read-then-insert; a concurrent capture
	// in the same session loses the unique race and retries
	sequenceRetries = 5
)

var rollColumns = []string{
	"id", "session_id", "sequence_no", "image_path",
	"quality", "color", "lot_number", "meters",
	"ocr_quality", "ocr_color", "ocr_lot_number", "ocr_meters",
	"ocr_quality_conf", "ocr_color_conf", "ocr_lot_number_conf", "ocr_meters_conf",
	"ocr_confidence", "ocr_confidence_level", "ocr_status", "not_label_warning",
	"content_hash", "perceptual_hash", "created_at",
}

// RollOCR is everything the worker writes back onto a roll after extraction.
type RollOCR struct {
	Quality, Color, LotNumber       *string
	Meters                          *float64
	QualityConf, ColorConf, LotConf float64
	MetersConf                      float64
	Confidence                      float64
	Level                           constants.ConfidenceLevel
	NotLabel                        bool
	ContentHash, PerceptualHash     string
}

type CountedRollRepository interface {
	// Create inserts the roll with the next sequence number of its session.
	Create(ctx context.Context, roll *entity.CountedRoll) error
	Get(ctx context.Context, id uuid.UUID) (*entity.CountedRoll, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*entity.CountedRoll, error)
	// FindByContentHash returns the earliest roll anywhere with this hash,
	// excluding the given roll id.
	FindByContentHash(ctx context.Context, hash string, exclude uuid.UUID) (*entity.CountedRoll, error)
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
	SetOCRStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus) error
	ApplyOCR(ctx context.Context, id uuid.UUID, res RollOCR) error
	// Delete removes a roll that never got its OCR job.
	Delete(ctx context.Context, id uuid.UUID) error
}

type countedRollRepo struct {
	db  *DB
	log *slog.Logger
}

func NewCountedRollRepository(db *DB, log *slog.Logger) CountedRollRepository {
	if log == nil {
		log = slog.Default()
	}
	return &countedRollRepo{db: db, log: log}
}

func (r *countedRollRepo) Create(ctx context.Context, roll *entity.CountedRoll) error {
	if roll.ID == uuid.Nil {
		roll.ID = uuid.New()
	}
	if roll.OCRStatus == "" {
		roll.OCRStatus = constants.JobStatusPending
	}
	if roll.CreatedAt.IsZero() {
		roll.CreatedAt = time.Now()
	}
	roll.CreatedAt = roll.CreatedAt.UTC()

	var err error
	for attempt := 0; attempt < sequenceRetries; attempt++ {
		var seq int
		seq, err = r.nextSequence(ctx, roll.SessionID)
		if err != nil {
			return err
		}
		roll.SequenceNo = seq

		ins := r.db.builder().Insert(rollsTable).
			Columns("id", "session_id", "sequence_no", "image_path",
				"quality", "color", "lot_number", "meters",
				"ocr_status", "not_label_warning", "content_hash", "perceptual_hash", "created_at").
			Values(roll.ID, roll.SessionID, roll.SequenceNo, roll.ImagePath,
				nullable(roll.Quality), nullable(roll.Color), nullable(roll.LotNumber), nullable(roll.Meters),
				string(roll.OCRStatus), roll.NotLabelWarning, nullable(roll.ContentHash), nullable(roll.PerceptualHash), roll.CreatedAt)
		if _, err = r.db.exec(ctx, ins); err == nil {
			r.log.Debug("counted_roll created", "roll_id", roll.ID, "session_id", roll.SessionID, "sequence_no", seq)
			return nil
		}
		if !isUniqueViolation(err) {
			break
		}
	}
	r.log.Error("counted_roll create failed", "session_id", roll.SessionID, "err", err)
	if isUniqueViolation(err) {
		return fmt.Errorf("counted roll sequence: %w", common.ErrConflict)
	}
	return err
}

func (r *countedRollRepo) nextSequence(ctx context.Context, sessionID uuid.UUID) (int, error) {
	sel := r.db.builder().Select("sequence_no").
		From(entsql.Table(rollsTable)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy(entsql.Desc("sequence_no")).
		Limit(1)
	last := 0
	err := r.db.query(ctx, sel, func(rows *entsql.Rows) error {
		return rows.Scan(&last)
	})
	return last + 1, err
}

func (r *countedRollRepo) Get(ctx context.Context, id uuid.UUID) (*entity.CountedRoll, error) {
	rolls, err := r.list(ctx, r.selectRolls().Where(entsql.EQ("id", id)).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rolls) == 0 {
		return nil, notFound("counted roll", id)
	}
	return rolls[0], nil
}

func (r *countedRollRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*entity.CountedRoll, error) {
	return r.list(ctx, r.selectRolls().
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy("sequence_no"))
}

func (r *countedRollRepo) FindByContentHash(ctx context.Context, hash string, exclude uuid.UUID) (*entity.CountedRoll, error) {
	rolls, err := r.list(ctx, r.selectRolls().
		Where(entsql.And(
			entsql.EQ("content_hash", hash),
			entsql.NEQ("id", exclude),
		)).
		OrderBy("created_at", "id").
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rolls) == 0 {
		return nil, notFound("counted roll with hash", hash)
	}
	return rolls[0], nil
}

func (r *countedRollRepo) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	sel := r.db.builder().Select().Count().
		From(entsql.Table(rollsTable)).
		Where(entsql.EQ("session_id", sessionID))
	var n int
	err := r.db.query(ctx, sel, func(rows *entsql.Rows) error {
		return rows.Scan(&n)
	})
	return n, err
}

func (r *countedRollRepo) SetOCRStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus) error {
	upd := r.db.builder().Update(rollsTable).
		Set("ocr_status", string(status)).
		Where(entsql.EQ("id", id))
	n, err := r.db.exec(ctx, upd)
	if err != nil {
		r.log.Error("counted_roll status update failed", "roll_id", id, "status", status, "err", err)
		return err
	}
	if n == 0 {
		return notFound("counted roll", id)
	}
	return nil
}

func (r *countedRollRepo) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := r.db.exec(ctx, r.db.builder().Delete(rollsTable).Where(entsql.EQ("id", id)))
	if err != nil {
		r.log.Error("counted_roll delete failed", "roll_id", id, "err", err)
		return err
	}
	if n == 0 {
		return notFound("counted roll", id)
	}
	return nil
}

func (r *countedRollRepo) ApplyOCR(ctx context.Context, id uuid.UUID, res RollOCR) error {
	upd := r.db.builder().Update(rollsTable).
		Set("ocr_quality", nullable(res.Quality)).
		Set("ocr_color", nullable(res.Color)).
		Set("ocr_lot_number", nullable(res.LotNumber)).
		Set("ocr_meters", nullable(res.Meters)).
		Set("ocr_quality_conf", res.QualityConf).
		Set("ocr_color_conf", res.ColorConf).
		Set("ocr_lot_number_conf", res.LotConf).
		Set("ocr_meters_conf", res.MetersConf).
		Set("ocr_confidence", res.Confidence).
		Set("ocr_confidence_level", string(res.Level)).
		Set("not_label_warning", res.NotLabel).
		Set("content_hash", res.ContentHash).
		Set("perceptual_hash", res.PerceptualHash).
		Set("ocr_status", string(constants.JobStatusCompleted)).
		Where(entsql.EQ("id", id))
	n, err := r.db.exec(ctx, upd)
	if err != nil {
		r.log.Error("counted_roll ocr update failed", "roll_id", id, "err", err)
		return err
	}
	if n == 0 {
		return notFound("counted roll", id)
	}
	return nil
}

func (r *countedRollRepo) selectRolls() *entsql.Selector {
	return r.db.builder().Select(rollColumns...).From(entsql.Table(rollsTable))
}

func (r *countedRollRepo) list(ctx context.Context, sel *entsql.Selector) ([]*entity.CountedRoll, error) {
	var out []*entity.CountedRoll
	err := r.db.query(ctx, sel, func(rows *entsql.Rows) error {
		var (
			c                                   entity.CountedRoll
			quality, color, lot                 sql.NullString
			ocrQuality, ocrColor, ocrLot, level sql.NullString
			meters, ocrMeters, conf             sql.NullFloat64
			status                              string
			contentHash, perceptualHash         sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.SessionID, &c.SequenceNo, &c.ImagePath,
			&quality, &color, &lot, &meters,
			&ocrQuality, &ocrColor, &ocrLot, &ocrMeters,
			&c.OCRQualityConfidence, &c.OCRColorConfidence, &c.OCRLotConfidence, &c.OCRMetersConfidence,
			&conf, &level, &status, &c.NotLabelWarning,
			&contentHash, &perceptualHash, &c.CreatedAt); err != nil {
			return err
		}
		c.Quality, c.Color, c.LotNumber, c.Meters = ptrString(quality), ptrString(color), ptrString(lot), ptrFloat(meters)
		c.OCRQuality, c.OCRColor, c.OCRLotNumber, c.OCRMeters = ptrString(ocrQuality), ptrString(ocrColor), ptrString(ocrLot), ptrFloat(ocrMeters)
		c.OCRConfidence = ptrFloat(conf)
		if level.Valid && level.String != "" {
			l := constants.ConfidenceLevel(level.String)
			c.OCRConfidenceLevel = &l
		}
		c.OCRStatus = constants.JobStatus(status)
		c.ContentHash, c.PerceptualHash = ptrString(contentHash), ptrString(perceptualHash)
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, &c)
		return nil
	})
	return out, err
}
