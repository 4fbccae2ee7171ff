// Package ratelimit implements sliding-window request limits keyed by
// caller. Two backends are provided: an in-process one and a Redis one that
// shares the window across replicas.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call. ResetAt is when the oldest
// counted request leaves the window.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Memory keeps a timestamp log per key. Only admitted requests are logged.
type Memory struct {
	Limit  int
	Window time.Duration

	mu     sync.Mutex
	hits   map[string][]time.Time
	lastGC time.Time
	now    func() time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{Limit: limit, Window: window, hits: make(map[string][]time.Time), now: time.Now}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.Window)
	log := m.hits[key]
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	log = log[i:]

	d := Decision{Limit: m.Limit}
	if len(log) < m.Limit {
		log = append(log, now)
		d.Allowed = true
	}
	d.Remaining = m.Limit - len(log)
	if len(log) == 0 {
		d.ResetAt = now.Add(m.Window)
		delete(m.hits, key)
	} else {
		d.ResetAt = log[0].Add(m.Window)
		m.hits[key] = log
	}
	if now.Sub(m.lastGC) >= m.Window {
		m.gc(cutoff)
		m.lastGC = now
	}
	return d, nil
}

// gc drops keys whose whole log has aged out. It runs at most once per
// window.
func (m *Memory) gc(cutoff time.Time) {
	for k, log := range m.hits {
		if len(log) > 0 && !log[len(log)-1].After(cutoff) {
			delete(m.hits, k)
		}
	}
}
