package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultEventWindow is how long a domain action key blocks an identical
// re-submission. Long enough to catch double-clicks and client retries,
// short enough not to block a legitimate re-assignment later the same day.
const DefaultEventWindow = 10 * time.Minute

// ErrDuplicateEvent indicates the same domain action was already performed
// inside the suppression window.
var ErrDuplicateEvent = errors.New("duplicate event: action already performed")

// EventGuard suppresses repeated identical domain actions before they ever
// reach the notification dispatcher. Event producers acquire a key derived
// from the action (e.g. role, recipient and program id); the second acquire
// inside the window fails with ErrDuplicateEvent.
//
// The guard is an upstream convenience, not the dedup authority: the
// dispatcher still runs its own unread-duplicate check against the store.
type EventGuard struct {
	client *Client
	logger *zap.Logger
	window time.Duration
}

// NewEventGuard creates an event guard with the given suppression window;
// window <= 0 selects DefaultEventWindow.
func NewEventGuard(client *Client, logger *zap.Logger, window time.Duration) *EventGuard {
	if window <= 0 {
		window = DefaultEventWindow
	}
	return &EventGuard{
		client: client,
		logger: logger,
		window: window,
	}
}

// EventKey builds the canonical guard key for a domain action.
func EventKey(action, role string, recipientID int64, subject string) string {
	return fmt.Sprintf("eventguard:%s:%s:%d:%s", action, role, recipientID, subject)
}

// Acquire claims the key with SET NX. Returns nil when the action is new,
// ErrDuplicateEvent when it was already performed inside the window, or a
// transport error when Redis is unreachable (callers are expected to fail
// open on those).
func (g *EventGuard) Acquire(ctx context.Context, key string) error {
	set, err := g.client.rdb.SetNX(ctx, key, time.Now().Unix(), g.window).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !set {
		g.logger.Debug("duplicate domain action suppressed", zap.String("key", key))
		return ErrDuplicateEvent
	}
	return nil
}

// Release drops the key early, e.g. when the domain action itself failed
// and a retry should be allowed immediately.
func (g *EventGuard) Release(ctx context.Context, key string) error {
	if err := g.client.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
