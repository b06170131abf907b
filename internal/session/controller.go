package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/constants"
	"github.com/joseph-ayodele/stocktake/internal/metrics"
)

const (
	DefaultTimeout   = 5 * time.Minute
	ThrottleInterval = time.Second
	minWarningLead   = 30 * time.Second
)

// Lifecycle is what a controller persists through.
type Lifecycle interface {
	Touch(ctx context.Context, id uuid.UUID) error
	Expire(ctx context.Context, id uuid.UUID) error
}

type EventKind string

const (
	EventExpiring EventKind = "expiring"
	EventExpired  EventKind = "expired"
)

// Event is pushed to subscribers when the inactivity clock crosses a mark.
type Event struct {
	Kind      EventKind `json:"type"`
	SessionID uuid.UUID `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// WarningDelay is when the expiring warning fires: the lead before expiry is
// a fifth of the timeout but never under 30s.
func WarningDelay(timeout time.Duration) time.Duration {
	lead := max(timeout/5, minWarningLead)
	return max(timeout-lead, 0)
}

// Controller runs the inactivity clock of one session. Arm starts it, every
// qualifying activity resets it, and it either gets disarmed (end, cancel)
// or expires the session exactly once.
type Controller struct {
	id        uuid.UUID
	lifecycle Lifecycle
	logger    *slog.Logger
	timeout   time.Duration
	throttle  time.Duration
	now       func() time.Time
	onExpired func(uuid.UUID)

	mu        sync.Mutex
	armed     bool
	expiring  bool
	expired   bool
	gen       uint64
	lastReset time.Time
	warnT     *time.Timer
	expiryT   *time.Timer
	subs      map[chan Event]struct{}

	expiredOnce sync.Once
	tasks       sync.WaitGroup
}

type ControllerOption func(*Controller)

// WithTimeout sets the inactivity window; non-positive keeps the default.
func WithTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithThrottle sets the minimum gap between activity resets.
func WithThrottle(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d >= 0 {
			c.throttle = d
		}
	}
}

func WithOnExpired(fn func(uuid.UUID)) ControllerOption {
	return func(c *Controller) { c.onExpired = fn }
}

// WithControllerClock replaces the clock used for throttling.
func WithControllerClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func NewController(id uuid.UUID, lifecycle Lifecycle, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		id:        id,
		lifecycle: lifecycle,
		logger:    logger.With("session_id", id),
		timeout:   DefaultTimeout,
		throttle:  ThrottleInterval,
		now:       time.Now,
		subs:      make(map[chan Event]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) SessionID() uuid.UUID { return c.id }

func (c *Controller) Timeout() time.Duration { return c.timeout }

// Arm starts the timers. It reports false when already armed or expired.
func (c *Controller) Arm() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.armed || c.expired {
		return false
	}
	c.armed = true
	metrics.ActiveSessionControllers.Inc()
	c.resetLocked()
	c.logger.Debug("session controller armed", "timeout", c.timeout)
	return true
}

// Disarm stops the timers and closes all subscriptions.
func (c *Controller) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disarmLocked()
	c.closeSubsLocked()
}

func (c *Controller) disarmLocked() {
	c.gen++
	c.stopTimersLocked()
	if c.armed {
		c.armed = false
		metrics.ActiveSessionControllers.Dec()
	}
	c.expiring = false
}

func (c *Controller) stopTimersLocked() {
	if c.warnT != nil {
		c.warnT.Stop()
		c.warnT = nil
	}
	if c.expiryT != nil {
		c.expiryT.Stop()
		c.expiryT = nil
	}
}

// reset restarts both timers from now. Callbacks from a previous generation
// are ignored, so repeated calls leave exactly one timer chain.
func (c *Controller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.armed {
		c.resetLocked()
	}
}

func (c *Controller) resetLocked() {
	c.stopTimersLocked()
	c.gen++
	gen := c.gen
	c.expiring = false
	c.lastReset = c.now()
	c.warnT = time.AfterFunc(WarningDelay(c.timeout), func() { c.warn(gen) })
	c.expiryT = time.AfterFunc(c.timeout, func() { c.expire(gen) })
}

// RecordActivity resets the clock for a qualifying event unless the last
// reset was less than the throttle interval ago, then refreshes the session's
// activity timestamp in the background. It reports whether a reset happened.
func (c *Controller) RecordActivity(event constants.ActivityEvent) bool {
	if !event.Qualifies() {
		return false
	}
	c.mu.Lock()
	if !c.armed || c.now().Sub(c.lastReset) < c.throttle {
		c.mu.Unlock()
		return false
	}
	c.resetLocked()
	c.mu.Unlock()

	c.spawn(BestEffort{Name: "touch", Fn: func(ctx context.Context) error {
		return c.lifecycle.Touch(ctx, c.id)
	}})
	return true
}

func (c *Controller) spawn(t BestEffort) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		t.Run(c.logger)
	}()
}

// Wait blocks until background persistence tasks have finished.
func (c *Controller) Wait() { c.tasks.Wait() }

func (c *Controller) warn(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.armed || c.expired {
		return
	}
	c.expiring = true
	c.logger.Info("session about to expire", "expires_at", c.lastReset.Add(c.timeout))
	c.emitLocked(Event{Kind: EventExpiring, SessionID: c.id, ExpiresAt: c.lastReset.Add(c.timeout)})
}

func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.armed || c.expired {
		c.mu.Unlock()
		return
	}
	c.expired = true
	c.disarmLocked()
	c.mu.Unlock()

	c.logger.Info("session expired after inactivity", "timeout", c.timeout)
	// the local state is already cleared whatever the store says
	BestEffort{Name: "expire", Fn: func(ctx context.Context) error {
		return c.lifecycle.Expire(ctx, c.id)
	}}.Run(c.logger)

	c.expiredOnce.Do(func() {
		if c.onExpired != nil {
			c.onExpired(c.id)
		}
	})

	c.mu.Lock()
	c.emitLocked(Event{Kind: EventExpired, SessionID: c.id, Reason: constants.ExpiredReason})
	c.closeSubsLocked()
	c.mu.Unlock()
}

func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Expiring reports whether the warning fired since the last reset.
func (c *Controller) Expiring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiring
}

func (c *Controller) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Subscribe returns a channel of controller events and a cancel func. The
// channel is closed on disarm or expiry; slow readers miss events.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 4)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
}

func (c *Controller) emitLocked(ev Event) {
	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Warn("dropping session event for slow subscriber", "event", ev.Kind)
		}
	}
}

func (c *Controller) closeSubsLocked() {
	for ch := range c.subs {
		close(ch)
		delete(c.subs, ch)
	}
}
