package notify

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type mockStore struct {
	inserted  []*Notification
	duplicate *Notification

	insertErr error
	findErr   error
	findCalls int
}

func (m *mockStore) Insert(ctx context.Context, n *Notification) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	n.ID = int64(len(m.inserted) + 1)
	m.inserted = append(m.inserted, n)
	return nil
}

func (m *mockStore) FindDuplicate(ctx context.Context, role string, recipientID *int64, typ, dedupKey, dedupValue string) (*Notification, error) {
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.duplicate, nil
}

type fakeChannel struct {
	emits []emittedEvent
}

type emittedEvent struct {
	event   string
	payload any
	target  Target
}

func (f *fakeChannel) Emit(event string, payload any, target Target) {
	f.emits = append(f.emits, emittedEvent{event, payload, target})
}

type fakeMailer struct {
	subjects []string
	err      error
}

func (f *fakeMailer) Send(ctx context.Context, subject, body string) error {
	f.subjects = append(f.subjects, subject)
	return f.err
}

func int64ptr(v int64) *int64 { return &v }

func TestPushRejectsUnknownRole(t *testing.T) {
	store := &mockStore{}
	channel := &fakeChannel{}
	d := NewDispatcher(store, channel, nil, zap.NewNop())

	_, err := d.Push(context.Background(), PushRequest{
		Role:    "guest",
		Title:   "hi",
		Message: "there",
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("err = %v, want ErrInvalidRole", err)
	}
	if len(store.inserted) != 0 {
		t.Errorf("inserted %d rows for an invalid role, want 0", len(store.inserted))
	}
	if len(channel.emits) != 0 {
		t.Errorf("emitted %d events for an invalid role, want 0", len(channel.emits))
	}
}

func TestPushRejectsMissingFields(t *testing.T) {
	store := &mockStore{}
	d := NewDispatcher(store, nil, nil, zap.NewNop())

	for _, req := range []PushRequest{
		{Role: RoleStudent, Message: "no title"},
		{Role: RoleStudent, Title: "no message"},
	} {
		if _, err := d.Push(context.Background(), req); !errors.Is(err, ErrMissingField) {
			t.Errorf("Push(%+v) err = %v, want ErrMissingField", req, err)
		}
	}
	if len(store.inserted) != 0 {
		t.Errorf("inserted %d rows, want 0", len(store.inserted))
	}
}

func TestPushDefaultsType(t *testing.T) {
	store := &mockStore{}
	d := NewDispatcher(store, nil, nil, zap.NewNop())

	n, err := d.Push(context.Background(), PushRequest{
		Role:    RoleMentor,
		Title:   "Program assigned",
		Message: "You have a new program",
	})
	if err != nil {
		t.Fatal(err)
	}
	if n.Type != TypeGeneral {
		t.Errorf("type = %q, want %q", n.Type, TypeGeneral)
	}
	if n.RecipientRole != RoleMentor {
		t.Errorf("recipient_role = %q, want it mirrored from role", n.RecipientRole)
	}
}

func TestPushWithoutMetadataStoresEmptyMap(t *testing.T) {
	store := &mockStore{}
	d := NewDispatcher(store, &fakeChannel{}, nil, zap.NewNop())

	// Metadata is optional for callers; the stored row still carries an
	// empty map, never NULL.
	n, err := d.Push(context.Background(), PushRequest{
		Role:    RoleAdmin,
		Title:   "Heads up",
		Message: "Quota almost full",
	})
	if err != nil {
		t.Fatal(err)
	}
	if n.Metadata == nil {
		t.Error("nil request metadata reached the store, want an empty map")
	}
	if len(store.inserted) != 1 || store.inserted[0].Metadata == nil {
		t.Error("inserted row carries nil metadata")
	}
}

func TestPushPersistsAndEmits(t *testing.T) {
	store := &mockStore{}
	channel := &fakeChannel{}
	d := NewDispatcher(store, channel, nil, zap.NewNop())

	n, err := d.Push(context.Background(), PushRequest{
		Role:        RoleStudent,
		RecipientID: int64ptr(42),
		Type:        "interview",
		Title:       "Interview scheduled",
		Message:     "Friday 10:00",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d rows, want 1", len(store.inserted))
	}
	if len(channel.emits) != 1 {
		t.Fatalf("emitted %d events, want 1", len(channel.emits))
	}

	emit := channel.emits[0]
	if emit.event != EventNotification {
		t.Errorf("event = %q, want %q", emit.event, EventNotification)
	}
	if emit.payload != n {
		t.Error("emitted payload is not the persisted notification")
	}
	if emit.target.Role != RoleStudent || emit.target.RecipientID == nil || *emit.target.RecipientID != 42 {
		t.Errorf("emit target = %+v, want student 42", emit.target)
	}
}

func TestPushSuppressesDuplicate(t *testing.T) {
	existing := &Notification{ID: 7, Role: RoleMentor, Type: TypeGeneral, Title: "Program assigned"}
	store := &mockStore{duplicate: existing}
	channel := &fakeChannel{}
	d := NewDispatcher(store, channel, nil, zap.NewNop())

	n, err := d.Push(context.Background(), PushRequest{
		Role:        RoleMentor,
		RecipientID: int64ptr(3),
		Title:       "Program assigned",
		Message:     "You have a new program",
		Metadata:    Metadata{"program_id": 12},
		DedupKey:    "program_id",
	})
	if err != nil {
		t.Fatal(err)
	}

	if n != existing {
		t.Error("duplicate push did not return the existing notification")
	}
	if len(store.inserted) != 0 {
		t.Errorf("inserted %d rows for a duplicate, want 0", len(store.inserted))
	}
	if len(channel.emits) != 0 {
		t.Errorf("emitted %d events for a duplicate, want 0", len(channel.emits))
	}
}

func TestPushSkipsDedupWithoutKeyInMetadata(t *testing.T) {
	store := &mockStore{duplicate: &Notification{ID: 7}}
	channel := &fakeChannel{}
	d := NewDispatcher(store, channel, nil, zap.NewNop())

	// DedupKey names a field the metadata does not carry; the check cannot
	// identify the logical event and must be skipped.
	n, err := d.Push(context.Background(), PushRequest{
		Role:     RoleMentor,
		Title:    "Program assigned",
		Message:  "You have a new program",
		Metadata: Metadata{"program_name": "Backend Track"},
		DedupKey: "program_id",
	})
	if err != nil {
		t.Fatal(err)
	}
	if store.findCalls != 0 {
		t.Errorf("duplicate lookup ran %d times, want 0", store.findCalls)
	}
	if len(store.inserted) != 1 || n.ID == 0 {
		t.Error("push without a usable dedup key must still persist")
	}
}

func TestPushStoreFailurePropagatesWithoutEmit(t *testing.T) {
	boom := errors.New("connection reset")
	store := &mockStore{insertErr: boom}
	channel := &fakeChannel{}
	d := NewDispatcher(store, channel, nil, zap.NewNop())

	_, err := d.Push(context.Background(), PushRequest{
		Role:    RoleStudent,
		Title:   "t",
		Message: "m",
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the store failure", err)
	}
	if len(channel.emits) != 0 {
		t.Errorf("emitted %d events for a failed insert, want 0", len(channel.emits))
	}
}

func TestPushDuplicateLookupFailurePropagates(t *testing.T) {
	boom := errors.New("connection reset")
	store := &mockStore{findErr: boom}
	d := NewDispatcher(store, &fakeChannel{}, nil, zap.NewNop())

	_, err := d.Push(context.Background(), PushRequest{
		Role:     RoleMentor,
		Title:    "t",
		Message:  "m",
		Metadata: Metadata{"program_id": 1},
		DedupKey: "program_id",
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the lookup failure", err)
	}
	if len(store.inserted) != 0 {
		t.Error("inserted a row after the duplicate check failed")
	}
}

func TestNotifyAdminsBroadcastsAndMails(t *testing.T) {
	store := &mockStore{}
	channel := &fakeChannel{}
	mailer := &fakeMailer{}
	d := NewDispatcher(store, channel, mailer, zap.NewNop())

	n, err := d.NotifyAdmins(context.Background(), AdminRequest{
		Title:   "New interview scheduled",
		Message: "Student Ada, company Initech",
	})
	if err != nil {
		t.Fatal(err)
	}

	if n.Role != RoleAdmin || n.RecipientID != nil {
		t.Errorf("notification = role %q recipient %v, want admin broadcast", n.Role, n.RecipientID)
	}
	if len(channel.emits) != 1 || !channel.emits[0].target.Broadcast() {
		t.Error("admin notification was not emitted as a role broadcast")
	}
	if len(mailer.subjects) != 1 || mailer.subjects[0] != "New interview scheduled" {
		t.Errorf("mailer subjects = %v, want the notification title", mailer.subjects)
	}
}

func TestNotifyAdminsSwallowsMailFailure(t *testing.T) {
	store := &mockStore{}
	mailer := &fakeMailer{err: errors.New("ses throttled")}
	d := NewDispatcher(store, nil, mailer, zap.NewNop())

	n, err := d.NotifyAdmins(context.Background(), AdminRequest{
		Title:   "t",
		Message: "m",
	})
	if err != nil {
		t.Fatalf("mail failure leaked out of NotifyAdmins: %v", err)
	}
	if n == nil || len(store.inserted) != 1 {
		t.Error("notification was not persisted despite the mail failure")
	}
}
