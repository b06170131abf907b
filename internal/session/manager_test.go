package session

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/stocktake/constants"
	"github.com/joseph-ayodele/stocktake/internal/common"
	"github.com/joseph-ayodele/stocktake/internal/entity"
	"github.com/joseph-ayodele/stocktake/internal/repository"
)

func newStore(t *testing.T) repository.CountSessionRepository {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{Driver: repository.DriverSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return repository.NewCountSessionRepository(db, nil)
}

func TestNewSessionNumber(t *testing.T) {
	n := NewSessionNumber(time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^CS-20260307-[0-9A-F]{6}$`), n)
	assert.NotEqual(t, n, NewSessionNumber(time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC)))
}

func TestStartOrResume_CreatesThenResumes(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newStore(t), nil)

	first, resumed, err := m.StartOrResume(ctx, "counter-1")
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, constants.SessionStatusActive, first.Status)
	assert.Regexp(t, `^CS-\d{8}-[0-9A-F]{6}$`, first.SessionNumber)

	again, resumed, err := m.StartOrResume(ctx, "counter-1")
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, first.ID, again.ID)

	other, resumed, err := m.StartOrResume(ctx, "counter-2")
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestStartOrResume_PromotesDraft(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	old := time.Now().Add(-time.Hour).UTC()
	draft := &entity.CountSession{SessionNumber: "CS-20260101-AAAAAA", UserID: "counter-1", Status: constants.SessionStatusDraft, LastActivityAt: old, CreatedAt: old}
	require.NoError(t, store.Create(ctx, draft))

	s, resumed, err := NewManager(store, nil).StartOrResume(ctx, "counter-1")
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, draft.ID, s.ID)

	got, err := store.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusActive, got.Status)
	assert.True(t, got.LastActivityAt.After(old))
}

func TestStartOrResume_RequiresUser(t *testing.T) {
	_, _, err := NewManager(newStore(t), nil).StartOrResume(context.Background(), "  ")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestEnd_ThenNewSession(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	m := NewManager(store, nil)

	s, _, err := m.StartOrResume(ctx, "counter-1")
	require.NoError(t, err)
	require.NoError(t, m.End(ctx, s.ID))

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusCountingComplete, got.Status)
	assert.NotNil(t, got.EndedAt)

	assert.ErrorIs(t, m.End(ctx, s.ID), ErrInvalidTransition)
	assert.ErrorIs(t, m.Cancel(ctx, s.ID, "late"), ErrInvalidTransition)
	assert.ErrorIs(t, m.Touch(ctx, s.ID), ErrInvalidTransition)

	next, resumed, err := m.StartOrResume(ctx, "counter-1")
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.NotEqual(t, s.ID, next.ID)
}

func TestCancelAndExpire(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newStore(t), nil)

	a, _, err := m.StartOrResume(ctx, "counter-1")
	require.NoError(t, err)
	require.NoError(t, m.Cancel(ctx, a.ID, "wrong warehouse"))
	got, err := m.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusCancelled, got.Status)
	assert.Equal(t, "wrong warehouse", *got.CancellationReason)

	b, _, err := m.StartOrResume(ctx, "counter-1")
	require.NoError(t, err)
	require.NoError(t, m.Expire(ctx, b.ID))
	got, err = m.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusCancelled, got.Status)
	assert.Equal(t, constants.ExpiredReason, *got.CancellationReason)
}

func TestCancel_ReasonTooLong(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newStore(t), nil)
	s, _, err := m.StartOrResume(ctx, "counter-1")
	require.NoError(t, err)

	err = m.Cancel(ctx, s.ID, strings.Repeat("x", MaxReasonLength+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusActive, got.Status)
}

func TestRestoreAfterRestart(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newStore(t), nil)
	open, _, err := m.StartOrResume(ctx, "counter-1")
	require.NoError(t, err)
	done, _, err := m.StartOrResume(ctx, "counter-2")
	require.NoError(t, err)
	require.NoError(t, m.End(ctx, done.ID))

	r := NewRegistry(m, nil, nil, WithTimeout(time.Minute))
	defer r.Shutdown()
	n, err := r.Restore(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	c, ok := r.Get(open.ID)
	require.True(t, ok)
	assert.True(t, c.Armed())
	_, ok = r.Get(done.ID)
	assert.False(t, ok)
}

func TestUnknownSession(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newStore(t), nil)
	id := uuid.New()

	_, err := m.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, m.End(ctx, id), ErrNoSession)
	assert.ErrorIs(t, m.Touch(ctx, id), ErrNoSession)
	assert.Equal(t, 404, common.HTTPStatus(m.End(ctx, id)))
}
