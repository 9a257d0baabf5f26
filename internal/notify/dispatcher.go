package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/talentbridge/platform/internal/metrics"
)

// Store is the persistence surface the dispatcher needs. *PGStore
// satisfies it.
type Store interface {
	Insert(ctx context.Context, n *Notification) error
	FindDuplicate(ctx context.Context, role string, recipientID *int64, typ, dedupKey, dedupValue string) (*Notification, error)
}

// Channel delivers an event to currently connected clients matching the
// target. Delivery is best-effort: implementations must not block and must
// not report failure, durability lives in the Store.
type Channel interface {
	Emit(event string, payload any, target Target)
}

// Mailer sends a best-effort email copy of a notification.
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// EventNotification is the event name used for real-time pushes.
const EventNotification = "notification"

// Validation errors. Both indicate a caller programming error and are
// returned before anything is persisted or delivered.
var (
	ErrInvalidRole  = errors.New("invalid notification role")
	ErrMissingField = errors.New("missing required notification field")
)

// PushRequest describes one notification to persist and fan out.
type PushRequest struct {
	Role        string
	RecipientID *int64 // nil = broadcast to every member of Role
	Type        string // defaults to "general"
	Title       string
	Message     string
	Link        *string
	Metadata    Metadata

	// DedupKey names the metadata field identifying the logical event
	// (e.g. "program_id"). When set and present in Metadata, a live unread
	// notification with the same role, recipient, type and key value makes
	// the push a no-op that returns the existing row.
	DedupKey string
}

// AdminRequest describes a broadcast to every admin.
type AdminRequest struct {
	Title    string
	Message  string
	Type     string // defaults to "general"
	Metadata Metadata
}

// Dispatcher turns domain events into deduplicated, role-addressed
// notifications that are persisted and pushed to connected clients.
//
// The pipeline for one push is fixed: duplicate check, then persist, then
// emit. Each step's result feeds the next, so an event is never emitted for
// a row that was skipped as a duplicate.
type Dispatcher struct {
	store   Store
	channel Channel // nil disables real-time delivery and the dedup check
	mailer  Mailer  // nil disables the admin email copy
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher. channel and mailer may be nil;
// without a channel, pushes persist only, matching callers that have no
// live connection registry to hand over.
func NewDispatcher(store Store, channel Channel, mailer Mailer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		channel: channel,
		mailer:  mailer,
		logger:  logger,
	}
}

// Push validates the request, suppresses duplicates of a still-unread
// logical event, persists the notification and emits it to connected
// subscribers of the target. A store failure propagates to the caller;
// delivery failures never do.
func (d *Dispatcher) Push(ctx context.Context, req PushRequest) (*Notification, error) {
	if !ValidRole(req.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title", ErrMissingField)
	}
	if req.Message == "" {
		return nil, fmt.Errorf("%w: message", ErrMissingField)
	}

	typ := req.Type
	if typ == "" {
		typ = TypeGeneral
	}
	// Metadata is optional for callers but never NULL in the store.
	metadata := req.Metadata
	if metadata == nil {
		metadata = Metadata{}
	}
	target := Target{Role: req.Role, RecipientID: req.RecipientID}

	// Step 1: duplicate check. Only meaningful when the caller named a
	// dedup key and its value is actually present in the metadata.
	if d.channel != nil && req.DedupKey != "" {
		if raw, ok := req.Metadata[req.DedupKey]; ok {
			dup, err := d.store.FindDuplicate(ctx, req.Role, req.RecipientID, typ, req.DedupKey, fmt.Sprint(raw))
			if err != nil {
				return nil, err
			}
			if dup != nil {
				d.logger.Info("duplicate notification suppressed",
					zap.Int64("existing_id", dup.ID),
					zap.String("role", req.Role),
					zap.String("type", typ),
					zap.String("dedup_key", req.DedupKey),
				)
				metrics.RecordNotificationDeduplicated(typ)
				return dup, nil
			}
		}
	}

	// Step 2: persist. Durability is guaranteed here, not by delivery.
	n := &Notification{
		Role:          req.Role,
		RecipientRole: req.Role,
		RecipientID:   req.RecipientID,
		Type:          typ,
		Title:         req.Title,
		Message:       req.Message,
		Link:          req.Link,
		Metadata:      metadata,
	}
	if err := d.store.Insert(ctx, n); err != nil {
		return nil, err
	}
	metrics.RecordNotificationStored(req.Role, typ)

	// Step 3: emit to whoever is connected right now. Fire-and-forget;
	// disconnected clients pick the row up on their next read.
	if d.channel != nil {
		d.channel.Emit(EventNotification, n, target)
		metrics.RecordRealtimeEmit(req.Role, target.Broadcast())
	}

	return n, nil
}

// NotifyAdmins is the convenience broadcast to every admin. When a mailer
// is configured, admins additionally get an email copy; mail failures are
// logged and swallowed.
func (d *Dispatcher) NotifyAdmins(ctx context.Context, req AdminRequest) (*Notification, error) {
	n, err := d.Push(ctx, PushRequest{
		Role:     RoleAdmin,
		Type:     req.Type,
		Title:    req.Title,
		Message:  req.Message,
		Metadata: req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if d.mailer != nil {
		if mailErr := d.mailer.Send(ctx, n.Title, n.Message); mailErr != nil {
			d.logger.Warn("admin email copy failed",
				zap.Int64("notification_id", n.ID),
				zap.Error(mailErr),
			)
		}
	}

	return n, nil
}
