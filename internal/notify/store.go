package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/talentbridge/platform/internal/db"
)

// PGStore persists notifications in Postgres.
type PGStore struct {
	db     *db.DB
	logger *zap.Logger
}

// NewPGStore creates a Postgres-backed notification store.
func NewPGStore(database *db.DB, logger *zap.Logger) *PGStore {
	return &PGStore{
		db:     database,
		logger: logger,
	}
}

const notificationColumns = `
	id, role, recipient_role, recipient_id, type, title, message,
	link, metadata, is_read, created_at`

// Insert writes a new notification row and fills in the store-assigned
// fields (ID, IsRead, CreatedAt) on the passed value.
func (s *PGStore) Insert(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (
			role, recipient_role, recipient_id, type, title, message, link, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING id, is_read, created_at
	`

	// A nil map would bind as SQL NULL and trip the NOT NULL jsonb column.
	if n.Metadata == nil {
		n.Metadata = Metadata{}
	}

	err := s.db.Pool().QueryRow(
		ctx,
		query,
		n.Role,
		n.RecipientRole,
		n.RecipientID,
		n.Type,
		n.Title,
		n.Message,
		n.Link,
		n.Metadata,
	).Scan(&n.ID, &n.IsRead, &n.CreatedAt)

	if err != nil {
		s.logger.Error("failed to insert notification",
			zap.Error(err),
			zap.String("role", n.Role),
			zap.String("type", n.Type),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	s.logger.Info("notification stored",
		zap.Int64("id", n.ID),
		zap.String("role", n.Role),
		zap.String("type", n.Type),
		zap.Bool("broadcast", n.RecipientID == nil),
	)

	return nil
}

// FindDuplicate looks for a live (unread) notification for the same logical
// event: same role, recipient and type, with the caller-chosen metadata key
// equal to dedupValue. It is a single read; returns nil when no duplicate
// exists.
func (s *PGStore) FindDuplicate(ctx context.Context, role string, recipientID *int64, typ, dedupKey, dedupValue string) (*Notification, error) {
	query := `
		SELECT` + notificationColumns + `
		FROM notifications
		WHERE role = $1
		  AND recipient_id IS NOT DISTINCT FROM $2
		  AND type = $3
		  AND metadata->>$4 = $5
		  AND is_read = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`

	var n Notification
	err := s.db.Pool().QueryRow(ctx, query, role, recipientID, typ, dedupKey, dedupValue).Scan(
		&n.ID,
		&n.Role,
		&n.RecipientRole,
		&n.RecipientID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.Link,
		&n.Metadata,
		&n.IsRead,
		&n.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find duplicate notification: %w", err)
	}

	return &n, nil
}

// ListUnreadForRecipient returns unread notifications visible to one member
// of a role, newest first: rows targeted at them plus role-wide broadcasts.
// A nil recipientID returns only the broadcasts.
func (s *PGStore) ListUnreadForRecipient(ctx context.Context, role string, recipientID *int64) ([]*Notification, error) {
	query := `
		SELECT` + notificationColumns + `
		FROM notifications
		WHERE role = $1
		  AND (recipient_id = $2 OR recipient_id IS NULL)
		  AND is_read = FALSE
		ORDER BY created_at DESC
	`
	args := []any{role, recipientID}

	if recipientID == nil {
		query = `
		SELECT` + notificationColumns + `
		FROM notifications
		WHERE role = $1
		  AND recipient_id IS NULL
		  AND is_read = FALSE
		ORDER BY created_at DESC
	`
		args = []any{role}
	}

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unread notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var n Notification
		err := rows.Scan(
			&n.ID,
			&n.Role,
			&n.RecipientRole,
			&n.RecipientID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.Link,
			&n.Metadata,
			&n.IsRead,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}
