package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/stocktake/constants"
	"github.com/joseph-ayodele/stocktake/internal/common"
	"github.com/joseph-ayodele/stocktake/internal/entity"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{Driver: DriverSQLite, DSN: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

type fixture struct {
	db       *DB
	sessions CountSessionRepository
	rolls    CountedRollRepository
	jobs     OCRJobRepository
}

func newFixture(t *testing.T) *fixture {
	db := openTestDB(t)
	return &fixture{
		db:       db,
		sessions: NewCountSessionRepository(db, nil),
		rolls:    NewCountedRollRepository(db, nil),
		jobs:     NewOCRJobRepository(db, nil),
	}
}

func (f *fixture) session(t *testing.T, user string) *entity.CountSession {
	t.Helper()
	s := &entity.CountSession{SessionNumber: "CS-" + uuid.NewString()[:8], UserID: user, Status: constants.SessionStatusActive}
	require.NoError(t, f.sessions.Create(context.Background(), s))
	return s
}

func (f *fixture) roll(t *testing.T, sessionID uuid.UUID) *entity.CountedRoll {
	t.Helper()
	r := &entity.CountedRoll{SessionID: sessionID, ImagePath: "sessions/x/" + uuid.NewString() + ".jpg"}
	require.NoError(t, f.rolls.Create(context.Background(), r))
	return r
}

func (f *fixture) job(t *testing.T, roll *entity.CountedRoll, created time.Time) *entity.OCRJob {
	t.Helper()
	j := &entity.OCRJob{RollID: roll.ID, ImagePath: roll.ImagePath, CreatedAt: created}
	require.NoError(t, f.jobs.Create(context.Background(), j))
	return j
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.HealthCheck(context.Background(), time.Second))
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (x INT);\n\n-- note\nCREATE INDEX b ON a (x);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX b ON a (x)"}, stmts)
}

func TestOCRJob_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session(t, "u1")
	job := f.job(t, f.roll(t, s.ID), time.Now())

	assert.Equal(t, constants.JobStatusPending, job.Status)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)

	pending, err := f.jobs.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	attempts, ok, err := f.jobs.Claim(ctx, job.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, attempts)

	_, ok, err = f.jobs.Claim(ctx, job.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "a processing job cannot be claimed twice")

	got, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.NotNil(t, got.StartedAt)

	require.NoError(t, f.jobs.Requeue(ctx, job.ID, "ocr timeout"))
	got, err = f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusPending, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "ocr timeout", *got.ErrorMessage)

	attempts, ok, err = f.jobs.Claim(ctx, job.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, attempts)
	require.NoError(t, f.jobs.Complete(ctx, job.ID, []byte(`{"text":"LOT 1"}`), time.Now()))

	got, err = f.jobs.GetByRoll(ctx, job.RollID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.JSONEq(t, `{"text":"LOT 1"}`, string(got.Result))
	assert.Nil(t, got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)

	err = f.jobs.Complete(ctx, job.ID, []byte(`{}`), time.Now())
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestOCRJob_FailAndReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session(t, "u1")
	job := f.job(t, f.roll(t, s.ID), time.Now())

	_, ok, err := f.jobs.Claim(ctx, job.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, f.jobs.Reset(ctx, job.ID), common.ErrConflict, "reset while processing")

	require.NoError(t, f.jobs.Fail(ctx, job.ID, "blob missing", time.Now()))
	pending, err := f.jobs.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, f.jobs.Reset(ctx, job.ID))
	got, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusPending, got.Status)
	assert.Zero(t, got.Attempts)
	assert.Nil(t, got.ErrorMessage)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)

	assert.ErrorIs(t, f.jobs.Reset(ctx, uuid.New()), common.ErrNotFound)
	_, err = f.jobs.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestOCRJob_ListPendingOrderAndBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session(t, "u1")
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	newest := f.job(t, f.roll(t, s.ID), base.Add(2*time.Minute))
	oldest := f.job(t, f.roll(t, s.ID), base)
	middle := f.job(t, f.roll(t, s.ID), base.Add(time.Minute))

	exhausted := &entity.OCRJob{RollID: f.roll(t, s.ID).ID, ImagePath: "x", Attempts: 3, MaxAttempts: 3, CreatedAt: base.Add(-time.Hour)}
	require.NoError(t, f.jobs.Create(ctx, exhausted))

	pending, err := f.jobs.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []uuid.UUID{oldest.ID, middle.ID, newest.ID}, []uuid.UUID{pending[0].ID, pending[1].ID, pending[2].ID})

	limited, err := f.jobs.ListPending(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestOCRJob_RequeueNeedsAttemptsLeft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session(t, "u1")
	job := &entity.OCRJob{RollID: f.roll(t, s.ID).ID, ImagePath: "x", Attempts: 1, MaxAttempts: 2}
	require.NoError(t, f.jobs.Create(ctx, job))

	attempts, ok, err := f.jobs.Claim(ctx, job.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, attempts)

	assert.ErrorIs(t, f.jobs.Requeue(ctx, job.ID, "ocr timeout"), common.ErrConflict)
	require.NoError(t, f.jobs.Fail(ctx, job.ID, "ocr timeout", time.Now()))

	got, err := f.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
}

func TestOCRJob_OnePerRoll(t *testing.T) {
	f := newFixture(t)
	roll := f.roll(t, f.session(t, "u1").ID)
	f.job(t, roll, time.Now())

	err := f.jobs.Create(context.Background(), &entity.OCRJob{RollID: roll.ID, ImagePath: roll.ImagePath})
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestCountedRoll_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	roll := f.roll(t, f.session(t, "u1").ID)

	require.NoError(t, f.rolls.Delete(ctx, roll.ID))
	_, err := f.rolls.Get(ctx, roll.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, f.rolls.Delete(ctx, roll.ID), common.ErrNotFound)
}

func TestCountedRoll_SequencePerSession(t *testing.T) {
	f := newFixture(t)
	s1 := f.session(t, "u1")
	s2 := f.session(t, "u2")

	assert.Equal(t, 1, f.roll(t, s1.ID).SequenceNo)
	assert.Equal(t, 2, f.roll(t, s1.ID).SequenceNo)
	assert.Equal(t, 1, f.roll(t, s2.ID).SequenceNo)
	assert.Equal(t, 3, f.roll(t, s1.ID).SequenceNo)

	n, err := f.rolls.CountBySession(context.Background(), s1.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rolls, err := f.rolls.ListBySession(context.Background(), s1.ID)
	require.NoError(t, err)
	require.Len(t, rolls, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{rolls[0].SequenceNo, rolls[1].SequenceNo, rolls[2].SequenceNo})
}

func TestCountedRoll_ApplyOCRAndHashLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session(t, "u1")
	first := f.roll(t, s.ID)
	second := f.roll(t, s.ID)

	quality, lot := "AB-1234", "L778"
	meters := 120.5
	require.NoError(t, f.rolls.SetOCRStatus(ctx, first.ID, constants.JobStatusProcessing))
	require.NoError(t, f.rolls.ApplyOCR(ctx, first.ID, RollOCR{
		Quality:        &quality,
		LotNumber:      &lot,
		Meters:         &meters,
		QualityConf:    90,
		LotConf:        90,
		MetersConf:     90,
		Confidence:     90,
		Level:          constants.ConfidenceHigh,
		ContentHash:    "abc",
		PerceptualHash: "00ff00ff00ff00ff",
	}))

	got, err := f.rolls.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusCompleted, got.OCRStatus)
	assert.Equal(t, "AB-1234", *got.OCRQuality)
	assert.Nil(t, got.OCRColor)
	assert.Equal(t, "L778", got.EffectiveLotNumber())
	assert.InDelta(t, 120.5, *got.EffectiveMeters(), 1e-9)
	require.NotNil(t, got.OCRConfidenceLevel)
	assert.Equal(t, constants.ConfidenceHigh, *got.OCRConfidenceLevel)
	assert.False(t, got.NotLabelWarning)

	found, err := f.rolls.FindByContentHash(ctx, "abc", second.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = f.rolls.FindByContentHash(ctx, "abc", first.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, f.rolls.SetOCRStatus(ctx, uuid.New(), constants.JobStatusFailed), common.ErrNotFound)
}

func TestCountSession_OneOpenPerUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.session(t, "u1")

	dup := &entity.CountSession{SessionNumber: "CS-dup", UserID: "u1"}
	assert.ErrorIs(t, f.sessions.Create(ctx, dup), common.ErrConflict)

	open, err := f.sessions.FindOpenByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, open.ID)

	reason := constants.ExpiredReason
	ok, err := f.sessions.Transition(ctx, s.ID, constants.SessionStatusCancelled, &reason, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.sessions.Transition(ctx, s.ID, constants.SessionStatusCountingComplete, nil, time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "closed sessions do not transition again")

	got, err := f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusCancelled, got.Status)
	require.NotNil(t, got.CancellationReason)
	assert.Equal(t, constants.ExpiredReason, *got.CancellationReason)
	assert.NotNil(t, got.EndedAt)

	_, err = f.sessions.FindOpenByUser(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, f.sessions.Touch(ctx, s.ID, time.Now()), common.ErrConflict)

	f.session(t, "u1")
}

func TestCountSession_ListOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.session(t, "u1")
	b := f.session(t, "u2")
	closed := f.session(t, "u3")
	f.roll(t, b.ID)
	_, err := f.sessions.Transition(ctx, closed.ID, constants.SessionStatusCountingComplete, nil, time.Now())
	require.NoError(t, err)

	open, err := f.sessions.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	byID := map[uuid.UUID]*entity.CountSession{}
	for _, s := range open {
		byID[s.ID] = s
	}
	require.Contains(t, byID, a.ID)
	require.Contains(t, byID, b.ID)
	assert.Equal(t, 1, byID[b.ID].TotalRolls)
}

func TestCountSession_ActivateTouchAndCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := &entity.CountSession{SessionNumber: "CS-20260301-AAAAAA", UserID: "u9", CreatedAt: created}
	require.NoError(t, f.sessions.Create(ctx, s))
	assert.Equal(t, constants.SessionStatusDraft, s.Status)

	later := created.Add(10 * time.Minute)
	require.NoError(t, f.sessions.Activate(ctx, s.ID, later))
	f.roll(t, s.ID)
	f.roll(t, s.ID)

	got, err := f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.SessionStatusActive, got.Status)
	assert.WithinDuration(t, later, got.LastActivityAt, time.Millisecond)
	assert.Equal(t, 2, got.TotalRolls)

	evenLater := later.Add(time.Minute)
	require.NoError(t, f.sessions.Touch(ctx, s.ID, evenLater))
	got, err = f.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, evenLater, got.LastActivityAt, time.Millisecond)
}
