package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/stocktake/constants"
	"github.com/joseph-ayodele/stocktake/internal/entity"
)

type fakeLifecycle struct {
	mu        sync.Mutex
	touches   int
	expires   int
	expireErr error
}

func (f *fakeLifecycle) Touch(context.Context, uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	return nil
}

func (f *fakeLifecycle) Expire(context.Context, uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires++
	return f.expireErr
}

func (f *fakeLifecycle) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touches, f.expires
}

// manualClock only drives throttling; timers still run on wall time.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestWarningDelay(t *testing.T) {
	tests := []struct {
		timeout, want time.Duration
	}{
		{timeout: 5 * time.Minute, want: 4 * time.Minute},
		{timeout: 10 * time.Minute, want: 8 * time.Minute},
		{timeout: time.Minute, want: 30 * time.Second},
		{timeout: 2 * time.Minute, want: 90 * time.Second},
		{timeout: 20 * time.Second, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WarningDelay(tt.timeout), "timeout=%s", tt.timeout)
	}
}

func TestController_ExpiresOnceWithoutActivity(t *testing.T) {
	lc := &fakeLifecycle{}
	var fired atomic.Int32
	c := NewController(uuid.New(), lc, nil,
		WithTimeout(50*time.Millisecond),
		WithOnExpired(func(uuid.UUID) { fired.Add(1) }),
	)
	events, cancel := c.Subscribe()
	defer cancel()
	require.True(t, c.Arm())

	var kinds []EventKind
	for ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventExpiring, EventExpired}, kinds)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	_, expires := lc.counts()
	assert.Equal(t, 1, expires)
	assert.True(t, c.Expired())
	assert.False(t, c.Armed())
	assert.False(t, c.Arm(), "an expired controller cannot be re-armed")
}

func TestController_ExpiryClearsStateWhenPersistFails(t *testing.T) {
	lc := &fakeLifecycle{expireErr: errors.New("connection refused")}
	var fired atomic.Int32
	c := NewController(uuid.New(), lc, nil,
		WithTimeout(20*time.Millisecond),
		WithOnExpired(func(uuid.UUID) { fired.Add(1) }),
	)
	c.Arm()

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, c.Expired())
}

func TestController_ActivityIsThrottled(t *testing.T) {
	lc := &fakeLifecycle{}
	clock := &manualClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	c := NewController(uuid.New(), lc, nil, WithControllerClock(clock.Now))
	defer c.Disarm()
	require.True(t, c.Arm())

	assert.False(t, c.RecordActivity(constants.ActivityClick), "within the throttle window of arming")

	clock.Advance(1500 * time.Millisecond)
	resets := 0
	for i := 0; i < 100; i++ {
		if c.RecordActivity(constants.ActivityPointerDown) {
			resets++
		}
		clock.Advance(5 * time.Millisecond)
	}
	c.Wait()

	assert.Equal(t, 1, resets)
	touches, _ := lc.counts()
	assert.Equal(t, 1, touches)

	clock.Advance(time.Second)
	assert.True(t, c.RecordActivity(constants.ActivityKeyDown))
}

func TestController_IgnoresOtherEvents(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	c := NewController(uuid.New(), &fakeLifecycle{}, nil, WithControllerClock(clock.Now))
	defer c.Disarm()
	c.Arm()
	clock.Advance(time.Minute)

	assert.False(t, c.RecordActivity("mousemove"))
	assert.False(t, c.RecordActivity("scroll"))
	assert.True(t, c.RecordActivity(constants.ActivityTouchStart))
}

func TestController_ActivityPostponesExpiry(t *testing.T) {
	lc := &fakeLifecycle{}
	var fired atomic.Int32
	c := NewController(uuid.New(), lc, nil,
		WithTimeout(150*time.Millisecond),
		WithThrottle(0),
		WithOnExpired(func(uuid.UUID) { fired.Add(1) }),
	)
	c.Arm()

	for i := 0; i < 8; i++ {
		time.Sleep(40 * time.Millisecond)
		require.True(t, c.RecordActivity(constants.ActivityClick))
	}
	assert.Zero(t, fired.Load())

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestController_DisarmStopsTimers(t *testing.T) {
	lc := &fakeLifecycle{}
	var fired atomic.Int32
	c := NewController(uuid.New(), lc, nil,
		WithTimeout(30*time.Millisecond),
		WithOnExpired(func(uuid.UUID) { fired.Add(1) }),
	)
	events, _ := c.Subscribe()
	require.True(t, c.Arm())
	assert.False(t, c.Arm(), "already armed")
	c.Disarm()

	_, open := <-events
	assert.False(t, open)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, fired.Load())
	_, expires := lc.counts()
	assert.Zero(t, expires)
	assert.False(t, c.RecordActivity(constants.ActivityClick))
}

func TestController_ResetIsIdempotent(t *testing.T) {
	lc := &fakeLifecycle{}
	var fired atomic.Int32
	c := NewController(uuid.New(), lc, nil,
		WithTimeout(40*time.Millisecond),
		WithOnExpired(func(uuid.UUID) { fired.Add(1) }),
	)
	c.Arm()
	for i := 0; i < 10; i++ {
		c.reset()
	}

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestController_WarningFlagsExpiring(t *testing.T) {
	c := NewController(uuid.New(), &fakeLifecycle{}, nil, WithTimeout(time.Hour))
	defer c.Disarm()
	c.Arm()
	assert.False(t, c.Expiring())

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.warn(gen)
	assert.True(t, c.Expiring())

	c.warn(gen - 1)
	c.reset()
	assert.False(t, c.Expiring())
}

func TestRegistry(t *testing.T) {
	lc := &fakeLifecycle{}
	expired := make(chan uuid.UUID, 1)
	r := NewRegistry(lc, nil, func(id uuid.UUID) { expired <- id }, WithTimeout(30*time.Millisecond))

	a := uuid.New()
	c := r.Ensure(a)
	assert.True(t, c.Armed())
	assert.Same(t, c, r.Ensure(a))
	assert.Equal(t, 1, r.Len())

	select {
	case id := <-expired:
		assert.Equal(t, a, id)
	case <-time.After(time.Second):
		t.Fatal("controller did not expire")
	}
	_, ok := r.Get(a)
	assert.False(t, ok)

	b := r.Ensure(uuid.New())
	r.Remove(b.SessionID())
	assert.False(t, b.Armed())
	assert.Zero(t, r.Len())
	r.Shutdown()
}

type openList struct {
	sessions []*entity.CountSession
	err      error
}

func (o openList) ListOpen(context.Context) ([]*entity.CountSession, error) {
	return o.sessions, o.err
}

func TestRegistry_RestoreArmsOpenSessions(t *testing.T) {
	lc := &fakeLifecycle{}
	expired := make(chan uuid.UUID, 2)
	r := NewRegistry(lc, nil, func(id uuid.UUID) { expired <- id }, WithTimeout(50*time.Millisecond))
	defer r.Shutdown()

	a, b := uuid.New(), uuid.New()
	existing := r.Ensure(a)

	n, err := r.Restore(context.Background(), openList{sessions: []*entity.CountSession{{ID: a}, {ID: b}}})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "already tracked sessions keep their controller")
	assert.Equal(t, 2, r.Len())
	got, ok := r.Get(a)
	require.True(t, ok)
	assert.Same(t, existing, got)

	seen := map[uuid.UUID]bool{}
	for len(seen) < 2 {
		select {
		case id := <-expired:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("restored controllers did not expire")
		}
	}
	assert.True(t, seen[b])
	_, expires := lc.counts()
	assert.Equal(t, 2, expires)
}

func TestRegistry_RestoreListError(t *testing.T) {
	r := NewRegistry(&fakeLifecycle{}, nil, nil)
	defer r.Shutdown()

	n, err := r.Restore(context.Background(), openList{err: errors.New("db down")})
	assert.ErrorContains(t, err, "db down")
	assert.Zero(t, n)
	assert.Zero(t, r.Len())
}
