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

// EmailService defines the interface for delivering one-time codes
type EmailService interface {
	SendStepUpCode(ctx context.Context, email, code string, expiresAt time.Time) error
}

// AWSSESEmailService delivers codes using AWS SES
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

// SendStepUpCode delivers a verification code for a pending challenge
func (s *AWSSESEmailService) SendStepUpCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h1 style="font-size: 20px;">Verify your sign-in</h1>
        <p>A sign-in to your account needs additional verification. Enter this code to continue:</p>
        <p style="font-size: 32px; letter-spacing: 6px; font-weight: bold;">%s</p>
        <p>The code expires in %d minutes and can be used once.</p>
        <p><strong>Didn't try to sign in?</strong> You can ignore this email; without the code the sign-in cannot complete. Consider changing your password.</p>
        <p style="color: #666; font-size: 12px; margin-top: 20px;">This is an automated message. Please do not reply.</p>
    </div>
</body>
</html>
`, code, minutes)

	textBody := fmt.Sprintf(`Verify your sign-in

A sign-in to your account needs additional verification. Enter this code to continue:

%s

The code expires in %d minutes and can be used once.

Didn't try to sign in? You can ignore this email; without the code the sign-in cannot complete. Consider changing your password.

This is an automated message. Please do not reply.
`, code, minutes)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your verification code"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	if _, err := s.sesClient.SendEmail(ctx, input); err != nil {
		s.logger.Error("failed to send step-up code email", slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// LogEmailService writes codes to the application log instead of sending
// email. Development only; never enable it where logs are shared.
type LogEmailService struct {
	logger *slog.Logger
}

// NewLogEmailService creates a development email service
func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendStepUpCode(_ context.Context, email, code string, expiresAt time.Time) error {
	s.logger.Info("step-up code issued",
		slog.String("email", email),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}
