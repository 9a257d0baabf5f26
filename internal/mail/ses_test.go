package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"go.uber.org/zap"
)

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func newTestMailer(client SESAPI) *SESMailer {
	return NewSESMailerWithClient(client, Config{
		FromEmail: "noreply@talentbridge.example",
		ToEmail:   "ops@talentbridge.example",
	}, zap.NewNop())
}

func TestSend(t *testing.T) {
	fake := &fakeSES{}
	m := newTestMailer(fake)

	if err := m.Send(context.Background(), "Interview scheduled", "Details inside"); err != nil {
		t.Fatal(err)
	}

	if len(fake.inputs) != 1 {
		t.Fatalf("sent %d emails, want 1", len(fake.inputs))
	}
	in := fake.inputs[0]
	if aws.ToString(in.Source) != "noreply@talentbridge.example" {
		t.Errorf("source = %q", aws.ToString(in.Source))
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "ops@talentbridge.example" {
		t.Errorf("destination = %v", in.Destination.ToAddresses)
	}
	if aws.ToString(in.Message.Subject.Data) != "Interview scheduled" {
		t.Errorf("subject = %q", aws.ToString(in.Message.Subject.Data))
	}
	if aws.ToString(in.Message.Body.Text.Data) != "Details inside" {
		t.Errorf("body = %q", aws.ToString(in.Message.Body.Text.Data))
	}
}

func TestSendValidatesInput(t *testing.T) {
	fake := &fakeSES{}
	m := newTestMailer(fake)
	ctx := context.Background()

	if err := m.Send(ctx, "", "body"); err == nil {
		t.Error("empty subject accepted")
	}
	if err := m.Send(ctx, "subject", ""); err == nil {
		t.Error("empty body accepted")
	}
	if len(fake.inputs) != 0 {
		t.Errorf("sent %d emails for invalid input, want 0", len(fake.inputs))
	}
}

func TestSendWrapsClientFailure(t *testing.T) {
	boom := errors.New("throttled")
	m := newTestMailer(&fakeSES{err: boom})

	err := m.Send(context.Background(), "s", "b")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the SES failure wrapped", err)
	}
}
