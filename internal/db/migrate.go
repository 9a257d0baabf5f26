package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/talentbridge/platform/internal/metrics"
)

// Execer is the slice of pgxpool.Pool the migrator needs.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	migrateMaxAttempts = 5
	migrateBaseDelay   = 500 * time.Millisecond
)

// Migrator brings the notifications schema to its required shape. Every
// statement is idempotent, so the whole sequence is safe to re-run on every
// boot and safe for multiple processes racing to initialize the same store.
type Migrator struct {
	db     Execer
	logger *zap.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewMigrator creates a schema migrator over the given executor.
// *pgxpool.Pool satisfies Execer.
func NewMigrator(db Execer, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// The ordered statement sequence. Order matters in exactly two ways:
// columns and constraints are created before anything references them, and
// the recipient_role backfill runs before its NOT NULL enforcement.
// Everything else is create-if-absent and may re-run freely.
const createNotificationsTable = `
CREATE TABLE IF NOT EXISTS notifications (
    id             BIGSERIAL PRIMARY KEY,
    role           TEXT NOT NULL CHECK (role IN ('student', 'mentor', 'admin', 'company')),
    recipient_id   BIGINT,
    type           TEXT NOT NULL DEFAULT 'general',
    title          TEXT NOT NULL,
    message        TEXT NOT NULL,
    link           TEXT,
    metadata       JSONB NOT NULL DEFAULT '{}'::jsonb,
    is_read        BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// EnsureSchema applies the full statement sequence, retrying the whole
// sequence from the top on transient connection errors (idempotence makes
// re-execution of applied steps a no-op). Permanent errors surface
// immediately; the caller should treat them as fatal at boot.
func (m *Migrator) EnsureSchema(ctx context.Context) error {
	var lastErr error

	for attempt := 1; attempt <= migrateMaxAttempts; attempt++ {
		metrics.RecordMigrationAttempt()
		err := m.applyAll(ctx)
		if err == nil {
			m.logger.Info("schema ensured", zap.Int("attempt", attempt))
			return nil
		}

		if Classify(err) == KindPermanent {
			return fmt.Errorf("ensure schema: %w", err)
		}

		lastErr = err
		m.logger.Warn("schema migration attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", migrateMaxAttempts),
			zap.Error(err),
		)

		if attempt == migrateMaxAttempts {
			break
		}
		if !m.sleep(ctx, migrateBaseDelay<<(attempt-1)) {
			return fmt.Errorf("ensure schema: %w", ctx.Err())
		}
	}

	return fmt.Errorf("ensure schema after %d attempts: %w", migrateMaxAttempts, lastErr)
}

func (m *Migrator) applyAll(ctx context.Context) error {
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"create notifications table", m.exec(createNotificationsTable)},
		{"add recipient_role column", m.exec(
			`ALTER TABLE notifications ADD COLUMN IF NOT EXISTS recipient_role TEXT`)},
		{"add recipient_role check constraint", m.addConstraintIfAbsent(
			"notifications_recipient_role_check",
			`ALTER TABLE notifications ADD CONSTRAINT notifications_recipient_role_check
			 CHECK (recipient_role IN ('student', 'mentor', 'admin', 'company'))`)},
		{"backfill recipient_role from role", m.exec(
			`UPDATE notifications SET recipient_role = role WHERE recipient_role IS NULL`)},
		{"set type default", m.exec(
			`ALTER TABLE notifications ALTER COLUMN type SET DEFAULT 'general'`)},
		{"enforce recipient_role not null", m.exec(
			`ALTER TABLE notifications ALTER COLUMN recipient_role SET NOT NULL`)},
		{"index on role", m.exec(
			`CREATE INDEX IF NOT EXISTS idx_notifications_role ON notifications (role)`)},
		{"index on role and recipient", m.exec(
			`CREATE INDEX IF NOT EXISTS idx_notifications_role_recipient ON notifications (role, recipient_id)`)},
		{"index on type", m.exec(
			`CREATE INDEX IF NOT EXISTS idx_notifications_type ON notifications (type)`)},
	}

	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		m.logger.Debug("migration step applied", zap.String("step", s.name))
	}
	return nil
}

func (m *Migrator) exec(sql string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := m.db.Exec(ctx, sql)
		return err
	}
}

// addConstraintIfAbsent consults pg_constraint before adding, because
// ADD CONSTRAINT has no IF NOT EXISTS form and a blind add errors on re-run.
// The lookup is scoped to the notifications relation; constraint names are
// only unique per table.
func (m *Migrator) addConstraintIfAbsent(name, sql string) func(context.Context) error {
	return func(ctx context.Context) error {
		var exists bool
		err := m.db.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM pg_constraint
				WHERE conname = $1 AND conrelid = 'notifications'::regclass
			)`, name,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check constraint %s: %w", name, err)
		}
		if exists {
			return nil
		}
		_, err = m.db.Exec(ctx, sql)
		return err
	}
}
