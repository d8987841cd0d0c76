// Package store durably records session lifecycle events. It is a
// collaborator, not part of the pipeline's correctness: the orchestrator
// logs and continues when a write fails.
package store

import (
	"context"

	"github.com/crateside/sleeve/internal/model"
)

// Store persists session lifecycle events.
type Store interface {
	Record(ctx context.Context, ev model.SessionEvent) error
	ListEvents(ctx context.Context, sessionID string, limit int) ([]model.SessionEvent, error)
	Close() error
}
