package view

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/metrics"
)

func TestRegistry_lifecycle(t *testing.T) {
	r := NewRegistry(Deps{Log: zerolog.New(io.Discard), Metrics: metrics.New()}, time.Minute)

	v := r.Create()
	got, err := r.Get(v.ID())
	if err != nil || got != v {
		t.Fatalf("Get: %v %v", got, err)
	}
	if r.Len() != 1 || r.IDs()[0] != v.ID() {
		t.Fatalf("unexpected registry contents: %v", r.IDs())
	}
	if err := r.Delete(v.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Get(v.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := r.Delete(v.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestRegistry_sweepEvictsIdleSessions(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := NewRegistry(Deps{Log: zerolog.New(io.Discard), Now: clock}, 10*time.Minute)

	idle := r.Create()
	now = now.Add(8 * time.Minute)
	active := r.Create()

	now = now.Add(5 * time.Minute)
	active.ToggleFilterPanel()

	if n := r.Sweep(); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if _, err := r.Get(idle.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected idle session to be evicted")
	}
	if _, err := r.Get(active.ID()); err != nil {
		t.Fatalf("expected active session to survive: %v", err)
	}

	r.CloseAll()
	if r.Len() != 0 {
		t.Fatalf("expected empty registry")
	}
}
