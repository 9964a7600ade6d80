package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arbiterhq/arbiter/internal/auth"
	"github.com/arbiterhq/arbiter/internal/models"
	pkglogger "github.com/arbiterhq/arbiter/pkg/logger"
)

// StepUpResult is the session granted after a verified challenge
type StepUpResult struct {
	SessionToken  string
	RememberToken string
}

// StepUpService drives the challenge lifecycle: a pending challenge is
// Verified by the right code, Failed by wrong ones until the retry cap
// expires it, or Expired by its TTL. Only a Verified challenge yields a
// session, and only Verified writes a new audit row; the issuing login
// already recorded the attempt as `verification`.
type StepUpService struct {
	challenges  ChallengeRepository
	logs        LoginLogRepository
	otp         *auth.OTPManager
	tm          *auth.TokenManager
	remember    *auth.RememberManager
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	maxRetries  int
}

// NewStepUpService creates a new StepUpService
func NewStepUpService(
	challenges ChallengeRepository,
	logs LoginLogRepository,
	otp *auth.OTPManager,
	tm *auth.TokenManager,
	remember *auth.RememberManager,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	maxRetries int,
) *StepUpService {
	return &StepUpService{
		challenges:  challenges,
		logs:        logs,
		otp:         otp,
		tm:          tm,
		remember:    remember,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
		maxRetries:  maxRetries,
	}
}

// Verify checks a submitted code against the session's pending challenge.
// A submission against a missing or expired challenge returns
// ErrChallengeExpired without touching the audit trail.
func (s *StepUpService) Verify(ctx context.Context, sessionID, code, ipAddress, userAgent string) (*StepUpResult, error) {
	start := time.Now()

	if sessionID == "" || code == "" {
		return nil, models.ErrChallengeExpired
	}

	challenge, err := s.challenges.GetBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrChallengeExpired
		}
		s.logger.Error("failed to load challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if challenge.Expired(time.Now()) {
		if err := s.challenges.DeleteBySession(ctx, sessionID); err != nil {
			s.logger.Error("failed to delete expired challenge", slog.Any("error", err))
		}
		return nil, models.ErrChallengeExpired
	}

	if !s.otp.ValidateCode(code, challenge.CodeSecret, challenge.CodeCounter) {
		return nil, s.failAttempt(ctx, challenge, start)
	}

	if err := s.challenges.DeleteBySession(ctx, sessionID); err != nil {
		s.logger.Error("failed to clear verified challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	result, err := s.grantSession(challenge)
	if err != nil {
		return nil, err
	}

	s.recordVerified(ctx, challenge, ipAddress, userAgent)
	return result, nil
}

// failAttempt counts a wrong code against the retry budget. Reaching the
// cap expires the challenge immediately.
func (s *StepUpService) failAttempt(ctx context.Context, challenge *models.PendingStepUp, start time.Time) error {
	attempts, err := s.challenges.IncrementAttempts(ctx, challenge.SessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrChallengeExpired
		}
		s.logger.Error("failed to count challenge attempt", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if attempts >= s.maxRetries {
		if err := s.challenges.DeleteBySession(ctx, challenge.SessionID); err != nil {
			s.logger.Error("failed to delete exhausted challenge", slog.Any("error", err))
		}
		s.logger.Warn("challenge retry budget exhausted",
			slog.String("user_id", challenge.UserID),
			slog.Int("attempts", attempts))
		s.timing.WaitFrom(start, false)
		return models.ErrChallengeExhausted
	}

	s.timing.WaitFrom(start, false)
	return models.ErrChallengeFailed
}

func (s *StepUpService) grantSession(challenge *models.PendingStepUp) (*StepUpResult, error) {
	sessionToken, err := s.tm.GenerateSessionToken(challenge.UserID, challenge.SubmittedEmail)
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	result := &StepUpResult{SessionToken: sessionToken}

	if challenge.Remember {
		rememberToken, err := s.remember.Generate(challenge.UserID)
		if err != nil {
			s.logger.Error("failed to generate remember token", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		result.RememberToken = rememberToken
	}

	return result, nil
}

// recordVerified writes the `valid` audit row concluding the step-up flow
func (s *StepUpService) recordVerified(ctx context.Context, challenge *models.PendingStepUp, ipAddress, userAgent string) {
	blob := models.ContextBlob{}
	for key, value := range challenge.Context {
		blob[key] = value
	}
	blob["step_up"] = map[string]interface{}{
		"verified":  true,
		"attempts":  challenge.Attempts,
		"issued_at": challenge.IssuedAt.UTC().Format(time.RFC3339),
	}

	log := &models.LoginLog{
		UserID:         &challenge.UserID,
		SubmittedEmail: challenge.SubmittedEmail,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		LoginTime:      time.Now(),
		Status:         models.AttemptStatusValid,
		RiskScore:      challenge.RiskScore,
		RiskDecision:   challenge.RiskDecision,
		Context:        blob,
	}

	if err := s.logs.Record(ctx, log); err != nil {
		s.logger.Error("failed to record verified challenge", slog.Any("error", err))
	}

	event := pkglogger.AuditEvent{
		EventType: "step_up",
		Status:    models.AttemptStatusValid,
		UserID:    challenge.UserID,
		Email:     challenge.SubmittedEmail,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Score:     challenge.RiskScore,
	}
	if challenge.RiskDecision != nil {
		event.Decision = *challenge.RiskDecision
	}
	s.auditLogger.LogAttempt(event)
}
