package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailService defines the interface for sending emails
type EmailService interface {
	SendPasswordReset(ctx context.Context, email, userID, resetPassword string, validUntil time.Time) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendPasswordReset delivers the one-time reset password to the user's
// registered address.
func (s *AWSSESEmailService) SendPasswordReset(ctx context.Context, email, userID, resetPassword string, validUntil time.Time) error {
	validHours := int(time.Until(validUntil).Round(time.Hour).Hours())

	textBody := fmt.Sprintf(`A password reset was requested for account %s.

Use this one-time password to log in:

    %s

You will be asked to choose a new password immediately. The one-time
password expires in %d hours.

If you did not request this reset, you can ignore this email; your
current password remains valid.
`, userID, resetPassword, validHours)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your password reset"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send password reset email via SES",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("password reset email sent",
		slog.String("user_id", userID),
		slog.String("message_id", *result.MessageId))

	return nil
}

// LoggingEmailService is the development fallback when SES is not
// configured: it logs that a reset happened without the password itself.
type LoggingEmailService struct {
	logger *slog.Logger
}

func NewLoggingEmailService(logger *slog.Logger) *LoggingEmailService {
	return &LoggingEmailService{logger: logger}
}

func (s *LoggingEmailService) SendPasswordReset(ctx context.Context, email, userID, resetPassword string, validUntil time.Time) error {
	s.logger.Info("password reset requested (email delivery disabled)",
		slog.String("user_id", userID),
		slog.Time("valid_until", validUntil))
	return nil
}
