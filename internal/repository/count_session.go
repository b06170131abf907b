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

const sessionsTable = "count_sessions"

var sessionColumns = []string{
	"id", "session_number", "user_id", "status", "last_activity_at",
	"cancellation_reason", "created_at", "ended_at",
}

var openStatuses = []any{string(constants.SessionStatusDraft), string(constants.SessionStatusActive)}

type CountSessionRepository interface {
	// Create inserts a session. A second open session for the same user is
	// rejected with common.ErrConflict.
	Create(ctx context.Context, s *entity.CountSession) error
	Get(ctx context.Context, id uuid.UUID) (*entity.CountSession, error)
	// FindOpenByUser returns the user's latest draft or active session.
	FindOpenByUser(ctx context.Context, userID string) (*entity.CountSession, error)
	// ListOpen returns every draft or active session, oldest first.
	ListOpen(ctx context.Context) ([]*entity.CountSession, error)
	// Activate promotes an open session to active and touches it.
	Activate(ctx context.Context, id uuid.UUID, now time.Time) error
	Touch(ctx context.Context, id uuid.UUID, now time.Time) error
	// Transition closes an open session. It reports false when the session
	// was no longer draft or active.
	Transition(ctx context.Context, id uuid.UUID, to constants.SessionStatus, reason *string, now time.Time) (bool, error)
}

type countSessionRepo struct {
	db    *DB
	rolls CountedRollRepository
	log   *slog.Logger
}

func NewCountSessionRepository(db *DB, log *slog.Logger) CountSessionRepository {
	if log == nil {
		log = slog.Default()
	}
	return &countSessionRepo{db: db, rolls: NewCountedRollRepository(db, log), log: log}
}

func (r *countSessionRepo) Create(ctx context.Context, s *entity.CountSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = constants.SessionStatusDraft
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.CreatedAt = s.CreatedAt.UTC()
	if s.LastActivityAt.IsZero() {
		s.LastActivityAt = s.CreatedAt
	}
	s.LastActivityAt = s.LastActivityAt.UTC()

	ins := r.db.builder().Insert(sessionsTable).
		Columns("id", "session_number", "user_id", "status", "last_activity_at", "created_at").
		Values(s.ID, s.SessionNumber, s.UserID, string(s.Status), s.LastActivityAt, s.CreatedAt)
	if _, err := r.db.exec(ctx, ins); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("open session for user %s: %w", s.UserID, common.ErrConflict)
		}
		r.log.Error("count_session create failed", "user_id", s.UserID, "err", err)
		return err
	}
	r.log.Info("count_session created", "session_id", s.ID, "session_number", s.SessionNumber, "user_id", s.UserID)
	return nil
}

func (r *countSessionRepo) Get(ctx context.Context, id uuid.UUID) (*entity.CountSession, error) {
	return r.one(ctx, r.selectSessions().Where(entsql.EQ("id", id)).Limit(1), id)
}

func (r *countSessionRepo) FindOpenByUser(ctx context.Context, userID string) (*entity.CountSession, error) {
	sel := r.selectSessions().
		Where(entsql.And(
			entsql.EQ("user_id", userID),
			entsql.In("status", openStatuses...),
		)).
		OrderBy(entsql.Desc("created_at")).
		Limit(1)
	return r.one(ctx, sel, "for user "+userID)
}

func (r *countSessionRepo) ListOpen(ctx context.Context) ([]*entity.CountSession, error) {
	sel := r.selectSessions().
		Where(entsql.In("status", openStatuses...)).
		OrderBy("created_at", "id")
	out, err := r.list(ctx, sel)
	if err != nil {
		r.log.Error("count_session list open failed", "err", err)
		return nil, err
	}
	return out, nil
}

func (r *countSessionRepo) one(ctx context.Context, sel *entsql.Selector, key any) (*entity.CountSession, error) {
	out, err := r.list(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, notFound("count session", key)
	}
	return out[0], nil
}

// list scans the selected sessions and fills in their roll totals.
func (r *countSessionRepo) list(ctx context.Context, sel *entsql.Selector) ([]*entity.CountSession, error) {
	var out []*entity.CountSession
	err := r.db.query(ctx, sel, func(rows *entsql.Rows) error {
		var (
			s       entity.CountSession
			status  string
			reason  sql.NullString
			endedAt sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.SessionNumber, &s.UserID, &status, &s.LastActivityAt,
			&reason, &s.CreatedAt, &endedAt); err != nil {
			return err
		}
		s.Status = constants.SessionStatus(status)
		s.CancellationReason = ptrString(reason)
		s.LastActivityAt = s.LastActivityAt.UTC()
		s.CreatedAt = s.CreatedAt.UTC()
		s.EndedAt = ptrTime(endedAt)
		out = append(out, &s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, s := range out {
		if s.TotalRolls, err = r.rolls.CountBySession(ctx, s.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *countSessionRepo) Activate(ctx context.Context, id uuid.UUID, now time.Time) error {
	upd := r.db.builder().Update(sessionsTable).
		Set("status", string(constants.SessionStatusActive)).
		Set("last_activity_at", now.UTC()).
		Where(r.open(id))
	return r.expectOpen(ctx, upd, id, "activate")
}

func (r *countSessionRepo) Touch(ctx context.Context, id uuid.UUID, now time.Time) error {
	upd := r.db.builder().Update(sessionsTable).
		Set("last_activity_at", now.UTC()).
		Where(r.open(id))
	return r.expectOpen(ctx, upd, id, "touch")
}

func (r *countSessionRepo) Transition(ctx context.Context, id uuid.UUID, to constants.SessionStatus, reason *string, now time.Time) (bool, error) {
	upd := r.db.builder().Update(sessionsTable).
		Set("status", string(to)).
		Set("cancellation_reason", nullable(reason)).
		Set("ended_at", now.UTC()).
		Where(r.open(id))
	n, err := r.db.exec(ctx, upd)
	if err != nil {
		r.log.Error("count_session transition failed", "session_id", id, "to", to, "err", err)
		return false, err
	}
	if n == 1 {
		r.log.Info("count_session transitioned", "session_id", id, "to", to)
	}
	return n == 1, nil
}

func (r *countSessionRepo) open(id uuid.UUID) *entsql.Predicate {
	return entsql.And(
		entsql.EQ("id", id),
		entsql.In("status", openStatuses...),
	)
}

func (r *countSessionRepo) expectOpen(ctx context.Context, upd querier, id uuid.UUID, op string) error {
	n, err := r.db.exec(ctx, upd)
	if err != nil {
		r.log.Error("count_session update failed", "op", op, "session_id", id, "err", err)
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s count session %s: not open: %w", op, id, common.ErrConflict)
	}
	return nil
}

func (r *countSessionRepo) selectSessions() *entsql.Selector {
	return r.db.builder().Select(sessionColumns...).From(entsql.Table(sessionsTable))
}
