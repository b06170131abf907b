// Package session owns the count session lifecycle: start or resume,
// explicit end and cancel, and inactivity expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/constants"
	"github.com/joseph-ayodele/stocktake/internal/common"
	"github.com/joseph-ayodele/stocktake/internal/entity"
	"github.com/joseph-ayodele/stocktake/internal/metrics"
)

var (
	// ErrInvalidTransition is returned when the session is no longer draft or active.
	ErrInvalidTransition = fmt.Errorf("session: invalid transition: %w", common.ErrConflict)
	ErrNoSession         = fmt.Errorf("session: %w", common.ErrNotFound)
)

// MaxReasonLength caps a cancellation reason.
const MaxReasonLength = 500

// Store is the persistence the manager needs.
type Store interface {
	Create(ctx context.Context, s *entity.CountSession) error
	Get(ctx context.Context, id uuid.UUID) (*entity.CountSession, error)
	FindOpenByUser(ctx context.Context, userID string) (*entity.CountSession, error)
	ListOpen(ctx context.Context) ([]*entity.CountSession, error)
	Activate(ctx context.Context, id uuid.UUID, now time.Time) error
	Touch(ctx context.Context, id uuid.UUID, now time.Time) error
	Transition(ctx context.Context, id uuid.UUID, to constants.SessionStatus, reason *string, now time.Time) (bool, error)
}

type Manager struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type ManagerOption func(*Manager)

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewManager(store Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{store: store, logger: logger, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewSessionNumber formats CS-YYYYMMDD-XXXXXX with six random hex digits.
func NewSessionNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("CS-%s-%s", now.UTC().Format("20060102"), suffix)
}

// StartOrResume returns the user's open session, promoted to active, or
// creates a new active one. resumed reports which happened.
func (m *Manager) StartOrResume(ctx context.Context, userID string) (s *entity.CountSession, resumed bool, err error) {
	if strings.TrimSpace(userID) == "" {
		return nil, false, common.NewAppError("INVALID_INPUT", "user id is required", common.ErrInvalidInput)
	}
	for attempt := 0; attempt < 2; attempt++ {
		s, err = m.resume(ctx, userID)
		if err == nil {
			return s, true, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return nil, false, err
		}

		now := m.now().UTC()
		s = &entity.CountSession{
			SessionNumber:  NewSessionNumber(now),
			UserID:         userID,
			Status:         constants.SessionStatusActive,
			LastActivityAt: now,
			CreatedAt:      now,
		}
		err = m.store.Create(ctx, s)
		if err == nil {
			metrics.SessionTransitionsTotal.WithLabelValues(string(constants.SessionStatusActive)).Inc()
			m.logger.Info("count session started", "session_id", s.ID, "session_number", s.SessionNumber, "user_id", userID)
			return s, false, nil
		}
		if !errors.Is(err, common.ErrConflict) {
			return nil, false, fmt.Errorf("create session: %w", err)
		}
		// another request opened one first; resume that one
	}
	return nil, false, err
}

func (m *Manager) resume(ctx context.Context, userID string) (*entity.CountSession, error) {
	s, err := m.store.FindOpenByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	if err := m.store.Activate(ctx, s.ID, now); err != nil {
		if errors.Is(err, common.ErrConflict) {
			// closed between the read and the update
			return nil, fmt.Errorf("session %s closed: %w", s.ID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("activate session: %w", err)
	}
	if s.Status == constants.SessionStatusDraft {
		metrics.SessionTransitionsTotal.WithLabelValues(string(constants.SessionStatusActive)).Inc()
	}
	s.Status = constants.SessionStatusActive
	s.LastActivityAt = now
	m.logger.Info("count session resumed", "session_id", s.ID, "session_number", s.SessionNumber, "user_id", userID)
	return s, nil
}

// Get returns the session or ErrNoSession.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*entity.CountSession, error) {
	s, err := m.store.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	return s, err
}

// Touch refreshes the session's last activity timestamp.
// ListOpen returns every draft or active session.
func (m *Manager) ListOpen(ctx context.Context) ([]*entity.CountSession, error) {
	return m.store.ListOpen(ctx)
}

func (m *Manager) Touch(ctx context.Context, id uuid.UUID) error {
	err := m.store.Touch(ctx, id, m.now())
	if errors.Is(err, common.ErrConflict) {
		return m.closedOrMissing(ctx, id)
	}
	return err
}

// End marks counting complete.
func (m *Manager) End(ctx context.Context, id uuid.UUID) error {
	return m.transition(ctx, id, constants.SessionStatusCountingComplete, nil)
}

func (m *Manager) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	v := common.NewValidator().Field("reason", reason, common.MaxLength(MaxReasonLength))
	if err := common.ValidateAndReturnError(v); err != nil {
		return err
	}
	var r *string
	if reason != "" {
		r = &reason
	}
	return m.transition(ctx, id, constants.SessionStatusCancelled, r)
}

// Expire cancels the session for inactivity.
func (m *Manager) Expire(ctx context.Context, id uuid.UUID) error {
	if err := m.Cancel(ctx, id, constants.ExpiredReason); err != nil {
		return err
	}
	metrics.SessionsExpiredTotal.Inc()
	return nil
}

func (m *Manager) transition(ctx context.Context, id uuid.UUID, to constants.SessionStatus, reason *string) error {
	ok, err := m.store.Transition(ctx, id, to, reason, m.now())
	if err != nil {
		return fmt.Errorf("transition session to %s: %w", to, err)
	}
	if !ok {
		return m.closedOrMissing(ctx, id)
	}
	metrics.SessionTransitionsTotal.WithLabelValues(string(to)).Inc()
	return nil
}

func (m *Manager) closedOrMissing(ctx context.Context, id uuid.UUID) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: session %s is %s", ErrInvalidTransition, id, s.Status)
}
