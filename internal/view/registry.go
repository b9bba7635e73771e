package view

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/metrics"
)

// ErrSessionNotFound is returned for unknown or evicted session ids.
var ErrSessionNotFound = errors.New("view: session not found")

// DefaultIdleTimeout evicts sessions nobody has touched for this long.
const DefaultIdleTimeout = 30 * time.Minute

// Registry holds the live views keyed by session id.
type Registry struct {
	log     zerolog.Logger
	deps    Deps
	idle    time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string

	mu    sync.RWMutex
	views map[string]*View
}

func NewRegistry(deps Deps, idle time.Duration) *Registry {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	now := deps.Now
	if now == nil {
		now = time.Now
		deps.Now = now
	}
	return &Registry{
		log:     deps.Log,
		deps:    deps,
		idle:    idle,
		metrics: deps.Metrics,
		now:     now,
		newID:   uuid.NewString,
		views:   make(map[string]*View),
	}
}

// Create registers a new, unmounted view.
func (r *Registry) Create() *View {
	v := New(r.newID(), r.deps)

	r.mu.Lock()
	r.views[v.ID()] = v
	n := len(r.views)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(n)
	r.log.Info().Str("session", v.ID()).Msg("session created")
	return v
}

func (r *Registry) Get(id string) (*View, error) {
	r.mu.RLock()
	v, ok := r.views[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return v, nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	v, ok := r.views[id]
	if ok {
		delete(r.views, id)
	}
	n := len(r.views)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	r.metrics.SetActiveSessions(n)
	if err := v.Close(); err != nil {
		r.log.Warn().Err(err).Str("session", id).Msg("closing session port failed")
	}
	return nil
}

// IDs lists the live session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// Sweep evicts idle views and returns how many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var stale []*View
	for id, v := range r.views {
		if v.LastSeen().Before(cutoff) {
			stale = append(stale, v)
			delete(r.views, id)
		}
	}
	n := len(r.views)
	r.mu.Unlock()

	if len(stale) == 0 {
		return 0
	}
	r.metrics.SetActiveSessions(n)
	for _, v := range stale {
		_ = v.Close()
		r.log.Info().Str("session", v.ID()).Msg("idle session evicted")
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// CloseAll drops every view.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*View)
	r.mu.Unlock()

	for _, v := range views {
		_ = v.Close()
	}
	r.metrics.SetActiveSessions(0)
}
