package notify

import (
	"time"
)

// Audience roles. The set is closed: every notification is addressed to
// exactly one of these, enforced both here and by a CHECK constraint in
// the store.
const (
	RoleStudent = "student"
	RoleMentor  = "mentor"
	RoleAdmin   = "admin"
	RoleCompany = "company"
)

// TypeGeneral is the classification applied when a caller does not name one.
const TypeGeneral = "general"

// ValidRole reports whether role is a member of the closed audience set.
func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleMentor, RoleAdmin, RoleCompany:
		return true
	default:
		return false
	}
}

// Metadata is the open key/value bag carrying event-specific context
// (program_id, program_name, mentor_name, ...). The dispatcher never
// interprets it beyond extracting the caller-chosen dedup key; it is stored
// as jsonb and handed back to clients untouched.
type Metadata map[string]any

// Notification is the durable representation of one delivered event.
// Rows are immutable after creation except for IsRead, which the
// read-acknowledgement endpoint (outside this subsystem) flips.
type Notification struct {
	ID          int64     `json:"id"`
	Role        string    `json:"role"`
	RecipientID *int64    `json:"recipient_id,omitempty"` // nil = broadcast to the whole role
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Link        *string   `json:"link,omitempty"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`

	// RecipientRole mirrors Role. The column predates the role rename and
	// is kept for readers that still query it; the two are always written
	// equal.
	RecipientRole string `json:"recipient_role"`
}

// Target names a concrete notification audience: a role, optionally
// narrowed to one member of it.
type Target struct {
	Role        string `json:"role"`
	RecipientID *int64 `json:"recipient_id,omitempty"`
}

// Broadcast reports whether the target addresses every member of the role.
func (t Target) Broadcast() bool {
	return t.RecipientID == nil
}

// StudentTarget addresses one student.
func StudentTarget(id int64) Target {
	return Target{Role: RoleStudent, RecipientID: &id}
}

// MentorTarget addresses one mentor.
func MentorTarget(id int64) Target {
	return Target{Role: RoleMentor, RecipientID: &id}
}

// CompanyTarget addresses one company account.
func CompanyTarget(id int64) Target {
	return Target{Role: RoleCompany, RecipientID: &id}
}

// AdminBroadcast addresses every admin.
func AdminBroadcast() Target {
	return Target{Role: RoleAdmin}
}

// RoleBroadcast addresses every member of role.
func RoleBroadcast(role string) Target {
	return Target{Role: role}
}
