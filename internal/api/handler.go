package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/talentbridge/platform/internal/directory"
	"github.com/talentbridge/platform/internal/metrics"
	"github.com/talentbridge/platform/internal/notify"
	"github.com/talentbridge/platform/internal/redis"
)

// Dispatcher is the notification entry point the handlers call.
type Dispatcher interface {
	Push(ctx context.Context, req notify.PushRequest) (*notify.Notification, error)
	NotifyAdmins(ctx context.Context, req notify.AdminRequest) (*notify.Notification, error)
}

// NotificationLister reads stored notifications for the polling endpoint.
type NotificationLister interface {
	ListUnreadForRecipient(ctx context.Context, role string, recipientID *int64) ([]*notify.Notification, error)
}

// EventGuard rejects repeated identical domain actions. May be nil.
type EventGuard interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// StudentDirectory resolves candidate names to student identities.
type StudentDirectory interface {
	FindStudentByName(ctx context.Context, name string) (*directory.Student, error)
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for the event-producer and read endpoints.
type Handler struct {
	logger     *zap.Logger
	dispatcher Dispatcher
	lister     NotificationLister
	guard      EventGuard       // nil when Redis is unavailable
	students   StudentDirectory // nil disables interview scheduling
	subs       Subscriber       // nil disables the SSE stream
}

// NewHandler creates the API handler. guard, students and subs may be nil;
// the corresponding endpoints degrade or disappear.
func NewHandler(logger *zap.Logger, dispatcher Dispatcher, lister NotificationLister, guard EventGuard, students StudentDirectory, subs Subscriber) *Handler {
	return &Handler{
		logger:     logger,
		dispatcher: dispatcher,
		lister:     lister,
		guard:      guard,
		students:   students,
		subs:       subs,
	}
}

// AssignProgramRequest is the body of POST /v1/programs/assign.
type AssignProgramRequest struct {
	ProgramID   string `json:"program_id"`
	ProgramName string `json:"program_name"`
	MentorID    int64  `json:"mentor_id"`
	MentorName  string `json:"mentor_name"`
}

// AssignProgramResponse acknowledges the assignment. Notification is nil
// when the dispatch soft-failed; the assignment itself still succeeded.
type AssignProgramResponse struct {
	Assigned     bool                 `json:"assigned"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

// AssignProgram handles POST /v1/programs/assign. It is an event producer:
// the assignment write itself belongs to the wider platform, this endpoint
// guards against repeated submissions and fans out the mentor notification.
func (h *Handler) AssignProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AssignProgramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.ProgramID == "" || req.ProgramName == "" || req.MentorID == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields",
			"program_id, program_name, and mentor_id are required")
		return
	}

	// Reject a repeat of the same assignment before it ever reaches the
	// dispatcher.
	if h.guard != nil {
		key := redis.EventKey("program_assigned", notify.RoleMentor, req.MentorID, req.ProgramID)
		if err := h.guard.Acquire(ctx, key); err != nil {
			if errors.Is(err, redis.ErrDuplicateEvent) {
				metrics.RecordEventGuardRejection()
				h.writeError(w, http.StatusConflict, "duplicate_action",
					"Program already assigned",
					"This program was already assigned to this mentor moments ago")
				return
			}
			h.logger.Warn("event guard check failed, proceeding", zap.Error(err))
		}
	}

	notification, err := h.dispatcher.Push(ctx, notify.PushRequest{
		Role:        notify.RoleMentor,
		RecipientID: &req.MentorID,
		Type:        "program_assigned",
		Title:       "New program assigned",
		Message:     fmt.Sprintf("You have been assigned to the %s program.", req.ProgramName),
		Metadata: notify.Metadata{
			"program_id":   req.ProgramID,
			"program_name": req.ProgramName,
			"mentor_name":  req.MentorName,
		},
		DedupKey: "program_id",
	})
	if err != nil {
		// Notification failure never fails the assignment.
		h.logger.Error("program assignment notification failed",
			zap.Error(err),
			zap.String("program_id", req.ProgramID),
			zap.Int64("mentor_id", req.MentorID),
		)
		notification = nil
	}

	h.writeJSON(w, http.StatusOK, AssignProgramResponse{
		Assigned:     true,
		Notification: notification,
	})
}

// ScheduleInterviewRequest is the body of POST /v1/interviews/schedule.
type ScheduleInterviewRequest struct {
	CandidateName string `json:"candidate_name"`
	CompanyName   string `json:"company_name"`
	ScheduledAt   string `json:"scheduled_at"`
	Link          string `json:"link,omitempty"`
}

// ScheduleInterviewResponse acknowledges the scheduling.
type ScheduleInterviewResponse struct {
	Scheduled bool                 `json:"scheduled"`
	StudentID int64                `json:"student_id"`
	Student   *notify.Notification `json:"student_notification,omitempty"`
	Admins    *notify.Notification `json:"admin_notification,omitempty"`
}

// ScheduleInterview handles POST /v1/interviews/schedule: resolves the
// candidate to exactly one student and fans out one student-targeted
// notification plus one admin broadcast.
func (h *Handler) ScheduleInterview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.students == nil {
		h.writeError(w, http.StatusServiceUnavailable, "directory_unavailable",
			"Student directory unavailable", "")
		return
	}

	var req ScheduleInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.CandidateName == "" || req.CompanyName == "" || req.ScheduledAt == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields",
			"candidate_name, company_name, and scheduled_at are required")
		return
	}

	student, err := h.students.FindStudentByName(ctx, req.CandidateName)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrStudentNotFound):
			h.writeError(w, http.StatusNotFound, "student_not_found",
				"No matching student", "No student record matches that candidate name")
		case errors.Is(err, directory.ErrAmbiguousStudent):
			h.writeError(w, http.StatusConflict, "ambiguous_candidate",
				"Ambiguous candidate name", "More than one student matches that candidate name")
		default:
			h.logger.Error("student lookup failed", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal_error",
				"Student lookup failed", "")
		}
		return
	}

	var link *string
	if req.Link != "" {
		link = &req.Link
	}

	resp := ScheduleInterviewResponse{Scheduled: true, StudentID: student.ID}

	studentNotif, err := h.dispatcher.Push(ctx, notify.PushRequest{
		Role:        notify.RoleStudent,
		RecipientID: &student.ID,
		Type:        "interview",
		Title:       "Interview scheduled",
		Message:     fmt.Sprintf("%s scheduled an interview with you for %s.", req.CompanyName, req.ScheduledAt),
		Link:        link,
		Metadata: notify.Metadata{
			"company_name": req.CompanyName,
			"scheduled_at": req.ScheduledAt,
		},
	})
	if err != nil {
		h.logger.Error("interview student notification failed",
			zap.Error(err),
			zap.Int64("student_id", student.ID),
		)
	} else {
		resp.Student = studentNotif
	}

	adminNotif, err := h.dispatcher.NotifyAdmins(ctx, notify.AdminRequest{
		Title:   "Interview scheduled",
		Message: fmt.Sprintf("%s scheduled an interview with %s for %s.", req.CompanyName, student.FullName, req.ScheduledAt),
		Type:    "interview",
		Metadata: notify.Metadata{
			"company_name": req.CompanyName,
			"student_id":   student.ID,
			"scheduled_at": req.ScheduledAt,
		},
	})
	if err != nil {
		h.logger.Error("interview admin notification failed", zap.Error(err))
	} else {
		resp.Admins = adminNotif
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// NotifyAdminsRequest is the body of POST /v1/admin/notify.
type NotifyAdminsRequest struct {
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Type     string          `json:"type,omitempty"`
	Metadata notify.Metadata `json:"metadata,omitempty"`
}

// NotifyAdmins handles POST /v1/admin/notify. Unlike the producer
// endpoints, the notification IS the primary action here, so a store
// failure surfaces as a 5xx.
func (h *Handler) NotifyAdmins(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req NotifyAdminsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	notification, err := h.dispatcher.NotifyAdmins(ctx, notify.AdminRequest{
		Title:    req.Title,
		Message:  req.Message,
		Type:     req.Type,
		Metadata: req.Metadata,
	})
	if err != nil {
		if errors.Is(err, notify.ErrMissingField) {
			h.writeError(w, http.StatusBadRequest, "invalid_request",
				"Missing required fields", err.Error())
			return
		}
		h.logger.Error("admin notification failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error",
			"Failed to store notification", "")
		return
	}

	h.writeJSON(w, http.StatusCreated, notification)
}

// ListNotifications handles GET /v1/notifications?role=&recipient_id=.
// Returns unread notifications newest first; this is the poll path for
// clients that were not connected when the live push went out.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	role, recipientID, ok := h.targetFromQuery(w, r)
	if !ok {
		return
	}

	notifications, err := h.lister.ListUnreadForRecipient(ctx, role, recipientID)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err), zap.String("role", role))
		h.writeError(w, http.StatusInternalServerError, "internal_error",
			"Failed to list notifications", "")
		return
	}
	if notifications == nil {
		notifications = []*notify.Notification{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

func (h *Handler) targetFromQuery(w http.ResponseWriter, r *http.Request) (string, *int64, bool) {
	role := r.URL.Query().Get("role")
	if !notify.ValidRole(role) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid role",
			"role must be one of student, mentor, admin, company")
		return "", nil, false
	}

	var recipientID *int64
	if raw := r.URL.Query().Get("recipient_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid recipient_id",
				"recipient_id must be an integer")
			return "", nil, false
		}
		recipientID = &id
	}
	return role, recipientID, true
}

// writeJSON writes a JSON response with the given status code
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes a problem+json error response
func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
