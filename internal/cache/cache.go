// Package cache stores enrichment results keyed by normalized identity.
// Successes never expire. Failures suppress regeneration only within a
// cooldown window; expiry is evaluated at read time, never by deletion, so
// concurrent writers cannot race a delete.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/crateside/sleeve/internal/model"
)

// Status marks whether a cached attempt succeeded or failed.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Entry is one cached enrichment outcome.
type Entry struct {
	Key               string            `json:"key" yaml:"key"`
	Status            Status            `json:"status" yaml:"status"`
	Payload           *model.Enrichment `json:"payload,omitempty" yaml:"payload,omitempty"`
	FailureRecordedAt time.Time         `json:"failure_recorded_at,omitempty" yaml:"failure_recorded_at,omitempty"`
}

// Effective applies the read-time cooldown rule: a failed entry older than
// the cooldown window is treated as absent. Success entries pass through.
func (e *Entry) Effective(now time.Time, cooldown time.Duration) *Entry {
	if e == nil {
		return nil
	}
	if e.Status == StatusFailed && !now.Before(e.FailureRecordedAt.Add(cooldown)) {
		return nil
	}
	return e
}

// Store is the cache persistence contract. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	PutSuccess(ctx context.Context, key string, payload *model.Enrichment) error
	PutFailure(ctx context.Context, key string, at time.Time) error
	List(ctx context.Context) ([]Entry, error)
	PurgeFailures(ctx context.Context) (int, error)
	Close() error
}

// Memory is a mutex-guarded in-memory Store, the default for a single
// process deployment.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	cp := e
	if e.Payload != nil {
		p := *e.Payload
		cp.Payload = &p
	}
	return &cp, nil
}

func (m *Memory) PutSuccess(_ context.Context, key string, payload *model.Enrichment) error {
	p := *payload
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{Key: key, Status: StatusSucceeded, Payload: &p}
	return nil
}

func (m *Memory) PutFailure(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// A recorded success is never downgraded by a later failed attempt.
	if e, ok := m.entries[key]; ok && e.Status == StatusSucceeded {
		return nil
	}
	m.entries[key] = Entry{Key: key, Status: StatusFailed, FailureRecordedAt: at.UTC()}
	return nil
}

func (m *Memory) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) PurgeFailures(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if e.Status == StatusFailed {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Close() error { return nil }
