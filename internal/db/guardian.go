package db

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/talentbridge/platform/internal/metrics"
)

// Prober checks whether the backing store accepts connections right now.
// *DB satisfies it with an acquire-and-release against the pool.
type Prober interface {
	Probe(ctx context.Context) error
}

// Guardian performs the startup connectivity check with bounded
// exponential backoff. It never fails the boot: when every attempt is
// exhausted it reports false and the process keeps serving, leaving the
// lazy pool to reconnect under real queries.
type Guardian struct {
	prober Prober
	logger *zap.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewGuardian creates a startup connection guardian over the given prober.
func NewGuardian(prober Prober, logger *zap.Logger) *Guardian {
	return &Guardian{
		prober: prober,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Connect probes the store up to maxRetries times, waiting
// baseDelay * 2^(attempt-1) between attempts. It returns true on the first
// successful probe. Permanent errors (bad credentials, missing database)
// short-circuit the remaining attempts: they will not heal with time.
func (g *Guardian) Connect(ctx context.Context, maxRetries int, baseDelay time.Duration) bool {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := g.prober.Probe(ctx)
		metrics.RecordConnectAttempt(err == nil)
		if err == nil {
			g.logger.Info("database connection established",
				zap.Int("attempt", attempt),
			)
			return true
		}

		kind := Classify(err)
		g.logger.Warn("database connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)

		if kind == KindPermanent {
			g.logger.Error("database error is not retryable, giving up early",
				zap.Error(err),
			)
			return false
		}

		if attempt == maxRetries {
			break
		}

		delay := baseDelay << (attempt - 1)
		if !g.sleep(ctx, delay) {
			return false
		}
	}

	g.logger.Error("database unreachable after all attempts, continuing without connection",
		zap.Int("max_retries", maxRetries),
	)
	return false
}

// sleepCtx waits for d or until ctx is done. Returns false when interrupted.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
