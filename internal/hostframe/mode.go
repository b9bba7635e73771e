// Package hostframe carries the display mode shared with an embedding host
// page and the typed messages exchanged with it.
package hostframe

import (
	"fmt"
	"sync"
)

// Mode is the display mode of an embedded map.
type Mode string

const (
	ModeBanner   Mode = "banner"
	ModeExpanded Mode = "expanded"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBanner, ModeExpanded:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown display mode %q", s)
	}
}

// Cell is an observable display mode. Readers always see the latest value;
// subscribers are told about changes only.
type Cell struct {
	mu        sync.RWMutex
	mode      Mode
	listeners []func(Mode)
}

func NewCell(initial Mode) *Cell {
	if initial == "" {
		initial = ModeBanner
	}
	return &Cell{mode: initial}
}

func (c *Cell) Get() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Set stores m and reports whether it differed from the previous value.
func (c *Cell) Set(m Mode) bool {
	c.mu.Lock()
	if c.mode == m {
		c.mu.Unlock()
		return false
	}
	c.mode = m
	listeners := make([]func(Mode), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(m)
	}
	return true
}

// Subscribe registers fn to be called after every change.
func (c *Cell) Subscribe(fn func(Mode)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}
