package circuitbreaker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/talentbridge/platform/internal/redis"
)

// Guard mirrors the redis.EventGuard surface so fakes can stand in.
type Guard interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// ProtectedGuard wraps an EventGuard with a CircuitBreaker and fails OPEN:
// when Redis is down, duplicate suppression is skipped rather than adding
// a Redis timeout to every domain action. Duplicate suppression is a
// convenience; the dispatcher's store-level check still runs either way.
type ProtectedGuard struct {
	guard   Guard
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedGuard wraps guard with circuit breaker protection.
func NewProtectedGuard(guard Guard, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedGuard {
	return &ProtectedGuard{
		guard:   guard,
		breaker: breaker,
		logger:  logger,
	}
}

// Acquire claims the action key. It returns redis.ErrDuplicateEvent only
// for a genuine duplicate; an open circuit or a Redis transport failure is
// swallowed and the action proceeds unguarded.
func (p *ProtectedGuard) Acquire(ctx context.Context, key string) error {
	if !p.breaker.Allow() {
		p.logger.Warn("event guard bypassed, circuit open",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("key", key),
		)
		return nil
	}

	err := p.guard.Acquire(ctx, key)
	if err == nil || errors.Is(err, redis.ErrDuplicateEvent) {
		p.breaker.RecordSuccess()
		return err
	}

	p.breaker.RecordFailure()
	p.logger.Warn("event guard unavailable, proceeding without duplicate suppression",
		zap.String("key", key),
		zap.Error(err),
	)
	return nil
}

// Release drops the action key early so a failed domain action can retry.
// Errors are swallowed for the same reason as Acquire.
func (p *ProtectedGuard) Release(ctx context.Context, key string) error {
	if !p.breaker.Allow() {
		return nil
	}

	err := p.guard.Release(ctx, key)
	if err != nil {
		p.breaker.RecordFailure()
		return nil
	}

	p.breaker.RecordSuccess()
	return nil
}

// Breaker returns the underlying circuit breaker for metrics/monitoring.
func (p *ProtectedGuard) Breaker() *CircuitBreaker {
	return p.breaker
}
