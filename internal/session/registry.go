package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/internal/entity"
)

// OpenSessions lists the sessions that should have a running inactivity clock.
type OpenSessions interface {
	ListOpen(ctx context.Context) ([]*entity.CountSession, error)
}

// Registry holds one controller per open session. Controllers leave the
// registry when their session ends, is cancelled, or expires.
type Registry struct {
	lifecycle Lifecycle
	logger    *slog.Logger
	opts      []ControllerOption
	onExpired func(uuid.UUID)

	mu          sync.Mutex
	controllers map[uuid.UUID]*Controller
}

// NewRegistry builds controllers with opts. onExpired, if set, runs after the
// registry has dropped an expired controller.
func NewRegistry(lifecycle Lifecycle, logger *slog.Logger, onExpired func(uuid.UUID), opts ...ControllerOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		lifecycle:   lifecycle,
		logger:      logger,
		onExpired:   onExpired,
		controllers: make(map[uuid.UUID]*Controller),
	}
	r.opts = append(append([]ControllerOption{}, opts...), WithOnExpired(r.expired))
	return r
}

// Ensure returns the session's controller, creating and arming it first if
// needed.
func (r *Registry) Ensure(id uuid.UUID) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[id]; ok {
		return c
	}
	c := NewController(id, r.lifecycle, r.logger, r.opts...)
	c.Arm()
	r.controllers[id] = c
	return c
}

// Restore arms a controller for every open session, typically after a
// restart. Each gets a full timeout from now. It returns how many were armed.
func (r *Registry) Restore(ctx context.Context, sessions OpenSessions) (int, error) {
	open, err := sessions.ListOpen(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range open {
		if _, ok := r.Get(s.ID); ok {
			continue
		}
		r.Ensure(s.ID)
		n++
	}
	if n > 0 {
		r.logger.Info("session controllers restored", "count", n)
	}
	return n, nil
}

func (r *Registry) Get(id uuid.UUID) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[id]
	return c, ok
}

// Remove disarms and drops the session's controller.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	c, ok := r.controllers[id]
	delete(r.controllers, id)
	r.mu.Unlock()
	if ok {
		c.Disarm()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// Shutdown disarms every controller.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	cs := r.controllers
	r.controllers = make(map[uuid.UUID]*Controller)
	r.mu.Unlock()
	for _, c := range cs {
		c.Disarm()
		c.Wait()
	}
}

func (r *Registry) expired(id uuid.UUID) {
	r.mu.Lock()
	delete(r.controllers, id)
	r.mu.Unlock()
	if r.onExpired != nil {
		r.onExpired(id)
	}
}
