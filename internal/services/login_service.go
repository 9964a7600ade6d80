package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/auth"
	"github.com/arbiterhq/arbiter/internal/models"
	"github.com/arbiterhq/arbiter/internal/risk"
	pkgauth "github.com/arbiterhq/arbiter/pkg/auth"
	pkglogger "github.com/arbiterhq/arbiter/pkg/logger"
)

// UserRepository defines the user lookups the login flow needs
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// LoginLogRepository defines the audit writes the login flow performs
type LoginLogRepository interface {
	Record(ctx context.Context, log *models.LoginLog) error
}

// ChallengeRepository defines the pending challenge storage operations
type ChallengeRepository interface {
	Replace(ctx context.Context, challenge *models.PendingStepUp) (*models.PendingStepUp, error)
	GetBySession(ctx context.Context, sessionID string) (*models.PendingStepUp, error)
	IncrementAttempts(ctx context.Context, sessionID string) (int, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}

// DecisionEngine produces the risk verdict for one attempt
type DecisionEngine interface {
	Decide(ctx context.Context, attempt *models.LoginAttempt, headers http.Header) *risk.Decision
}

// LoginRequest carries one credential submission through the service
type LoginRequest struct {
	Email       string
	Password    string
	Remember    bool
	IPAddress   string
	UserAgent   string
	DeviceToken string
	SessionID   string
	Headers     http.Header
}

// LoginResult is the successful outcome of a login call. Either a session
// was granted or a challenge was issued, never both.
type LoginResult struct {
	SessionToken  string
	RememberToken string
	Challenge     *models.PendingStepUp
	Decision      *risk.Decision
}

// ChallengeIssued reports whether the caller must run the step-up flow
func (r *LoginResult) ChallengeIssued() bool {
	return r.Challenge != nil
}

// LoginService orchestrates the credential check, the risk decision, and
// the resulting session or challenge
type LoginService struct {
	users       UserRepository
	logs        LoginLogRepository
	challenges  ChallengeRepository
	engine      DecisionEngine
	tm          *auth.TokenManager
	remember    *auth.RememberManager
	otp         *auth.OTPManager
	email       EmailService
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	stepUpTTL   time.Duration
}

// NewLoginService creates a new LoginService
func NewLoginService(
	users UserRepository,
	logs LoginLogRepository,
	challenges ChallengeRepository,
	engine DecisionEngine,
	tm *auth.TokenManager,
	remember *auth.RememberManager,
	otp *auth.OTPManager,
	email EmailService,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	stepUpTTL time.Duration,
) *LoginService {
	return &LoginService{
		users:       users,
		logs:        logs,
		challenges:  challenges,
		engine:      engine,
		tm:          tm,
		remember:    remember,
		otp:         otp,
		email:       email,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
		stepUpTTL:   stepUpTTL,
	}
}

// Login runs the full pipeline for one credential submission. The risk
// decision is made before the password is processed: a block never reveals
// whether the credentials were correct.
func (s *LoginService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	start := time.Now()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, models.ErrBadRequest
	}

	// a fresh submission supersedes whatever challenge the session still
	// holds; the stale code must not stay verifiable
	if req.SessionID != "" {
		if err := s.challenges.DeleteBySession(ctx, req.SessionID); err != nil {
			s.logger.Error("failed to discard stale challenge",
				slog.String("session_id", req.SessionID),
				slog.Any("error", err))
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	attempt := &models.LoginAttempt{
		Email:       email,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		DeviceToken: req.DeviceToken,
		AttemptTime: start,
	}
	if user != nil {
		attempt.UserID = &user.ID
	}

	decision := s.engine.Decide(ctx, attempt, req.Headers)

	if decision.Blocked() {
		s.recordAttempt(ctx, attempt, models.AttemptStatusBlocked, decision, req)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrAttemptBlocked
	}

	passwordValid := user != nil && pkgauth.ComparePassword(user.PasswordHash, req.Password) == nil
	if !passwordValid {
		s.recordAttempt(ctx, attempt, models.AttemptStatusBlocked, decision, req)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrUnauthorized
	}

	if decision.StepUp() {
		challenge, err := s.issueChallenge(ctx, user, decision, req)
		if err != nil {
			return nil, err
		}
		s.recordAttempt(ctx, attempt, models.AttemptStatusVerification, decision, req)
		return &LoginResult{Challenge: challenge, Decision: decision}, nil
	}

	result, err := s.grantSession(user, req.Remember)
	if err != nil {
		return nil, err
	}
	result.Decision = decision

	s.recordAttempt(ctx, attempt, models.AttemptStatusValid, decision, req)
	s.timing.WaitFrom(start, true)
	return result, nil
}

// issueChallenge stores a fresh challenge for the session and delivers its
// code. An existing pending challenge for the session is replaced.
func (s *LoginService) issueChallenge(ctx context.Context, user *models.User, decision *risk.Decision, req LoginRequest) (*models.PendingStepUp, error) {
	secret, err := s.otp.GenerateSecret()
	if err != nil {
		s.logger.Error("failed to generate challenge secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	now := time.Now()
	challenge := &models.PendingStepUp{
		SessionID:      sessionID,
		UserID:         user.ID,
		SubmittedEmail: user.Email,
		Remember:       req.Remember,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		RiskScore:      decision.Score,
		RiskDecision:   stringPtr(decision.Status),
		Context:        decisionContext(decision, req.UserAgent, req.DeviceToken),
		CodeSecret:     secret,
		CodeCounter:    0,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.stepUpTTL),
	}

	stored, err := s.challenges.Replace(ctx, challenge)
	if err != nil {
		s.logger.Error("failed to store challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	code, err := s.otp.GenerateCode(stored.CodeSecret, stored.CodeCounter)
	if err != nil {
		s.logger.Error("failed to generate challenge code", slog.Any("error", err))
		_ = s.challenges.DeleteBySession(ctx, stored.SessionID)
		return nil, models.ErrInternalServer
	}

	if err := s.email.SendStepUpCode(ctx, user.Email, code, stored.ExpiresAt); err != nil {
		// undelivered code means an unwinnable challenge, remove it
		_ = s.challenges.DeleteBySession(ctx, stored.SessionID)
		return nil, models.ErrInternalServer
	}

	return stored, nil
}

func (s *LoginService) grantSession(user *models.User, remember bool) (*LoginResult, error) {
	sessionToken, err := s.tm.GenerateSessionToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	result := &LoginResult{SessionToken: sessionToken}

	if remember {
		rememberToken, err := s.remember.Generate(user.ID)
		if err != nil {
			s.logger.Error("failed to generate remember token", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		result.RememberToken = rememberToken
	}

	return result, nil
}

// ResumeFromRemember turns a valid remember-me token into a fresh session
func (s *LoginService) ResumeFromRemember(ctx context.Context, token string) (string, error) {
	userID, err := s.remember.Verify(token)
	if err != nil {
		return "", models.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrUnauthorized
		}
		s.logger.Error("failed to get user by id", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	sessionToken, err := s.tm.GenerateSessionToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate session token", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("remember_resume", user.ID, "", nil)

	return sessionToken, nil
}

// recordAttempt writes the single audit row for a concluded attempt. An
// audit write failure is logged but never surfaces to the client; the
// decision already stands.
func (s *LoginService) recordAttempt(ctx context.Context, attempt *models.LoginAttempt, status string, decision *risk.Decision, req LoginRequest) {
	log := &models.LoginLog{
		UserID:         attempt.UserID,
		SubmittedEmail: attempt.Email,
		IPAddress:      attempt.IPAddress,
		UserAgent:      attempt.UserAgent,
		LoginTime:      attempt.AttemptTime,
		Status:         status,
		RiskScore:      decision.Score,
		RiskDecision:   stringPtr(decision.Status),
		Context:        decisionContext(decision, req.UserAgent, req.DeviceToken),
	}

	if err := s.logs.Record(ctx, log); err != nil {
		s.logger.Error("failed to record login attempt",
			slog.String("status", status),
			slog.Any("error", err))
	}

	event := pkglogger.AuditEvent{
		EventType: "login",
		Status:    status,
		Email:     attempt.Email,
		IPAddress: attempt.IPAddress,
		UserAgent: attempt.UserAgent,
		Decision:  decision.Status,
		Score:     decision.Score,
	}
	if attempt.UserID != nil {
		event.UserID = *attempt.UserID
	}
	if decision.Reason != nil {
		event.Reason = *decision.Reason
	}
	s.auditLogger.LogAttempt(event)
}

// decisionContext builds the forensic blob stored with audit rows and
// challenges. The user_agent and device_token keys double as the history
// the device and cookie recognition features scan on later attempts.
func decisionContext(decision *risk.Decision, userAgent, deviceToken string) models.ContextBlob {
	blob := models.ContextBlob{
		"schema_version":   models.FeatureSchemaVersion,
		"user_agent":       userAgent,
		"scorer_available": decision.ScorerAvailable,
	}
	if deviceToken != "" {
		blob["device_token"] = deviceToken
	}
	if decision.Features != nil {
		blob["features"] = decision.Features.ScorerMap()
	}
	if decision.Baseline != nil {
		blob["baseline"] = decision.Baseline
	}
	if decision.RefinerConsulted && decision.Final != nil {
		blob["advisory"] = decision.Final
	}
	return blob
}

func stringPtr(s string) *string {
	return &s
}
