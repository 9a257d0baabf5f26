// Package mail sends best-effort email copies of notifications via AWS SES.
package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// SESAPI is the slice of the SES client we use; tests substitute a fake.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Config holds SES mailer settings.
type Config struct {
	Region    string
	FromEmail string
	ToEmail   string // admin distribution address
}

// SESMailer sends plain-text email through AWS SES.
type SESMailer struct {
	client SESAPI
	from   string
	to     string
	logger *zap.Logger
}

// NewSESMailer builds a mailer from the ambient AWS credentials chain.
func NewSESMailer(ctx context.Context, cfg Config, logger *zap.Logger) (*SESMailer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &SESMailer{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		to:     cfg.ToEmail,
		logger: logger,
	}, nil
}

// NewSESMailerWithClient builds a mailer over an explicit client (tests).
func NewSESMailerWithClient(client SESAPI, cfg Config, logger *zap.Logger) *SESMailer {
	return &SESMailer{
		client: client,
		from:   cfg.FromEmail,
		to:     cfg.ToEmail,
		logger: logger,
	}
}

// Send emails subject/body to the configured admin address.
func (m *SESMailer) Send(ctx context.Context, subject, body string) error {
	if subject == "" {
		return fmt.Errorf("email subject is required")
	}
	if body == "" {
		return fmt.Errorf("email body is required")
	}

	input := &ses.SendEmailInput{
		Source: aws.String(m.from),
		Destination: &types.Destination{
			ToAddresses: []string{m.to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	m.logger.Info("email copy sent via SES",
		zap.String("to", m.to),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
