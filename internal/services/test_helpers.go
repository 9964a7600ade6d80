package services

import (
	"context"
	"net/http"
	"time"

	"github.com/arbiterhq/arbiter/internal/models"
	"github.com/arbiterhq/arbiter/internal/risk"
	pkgauth "github.com/arbiterhq/arbiter/pkg/auth"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// MockLoginLogRepository implements LoginLogRepository for testing
type MockLoginLogRepository struct {
	RecordFunc func(ctx context.Context, log *models.LoginLog) error
	Recorded   []*models.LoginLog
}

func (m *MockLoginLogRepository) Record(ctx context.Context, log *models.LoginLog) error {
	m.Recorded = append(m.Recorded, log)
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, log)
	}
	return nil
}

// MockChallengeRepository implements ChallengeRepository for testing
type MockChallengeRepository struct {
	ReplaceFunc           func(ctx context.Context, challenge *models.PendingStepUp) (*models.PendingStepUp, error)
	GetBySessionFunc      func(ctx context.Context, sessionID string) (*models.PendingStepUp, error)
	IncrementAttemptsFunc func(ctx context.Context, sessionID string) (int, error)
	DeleteBySessionFunc   func(ctx context.Context, sessionID string) error
	Deleted               []string
}

func (m *MockChallengeRepository) Replace(ctx context.Context, challenge *models.PendingStepUp) (*models.PendingStepUp, error) {
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, challenge)
	}
	stored := *challenge
	stored.ID = "challenge123"
	return &stored, nil
}

func (m *MockChallengeRepository) GetBySession(ctx context.Context, sessionID string) (*models.PendingStepUp, error) {
	if m.GetBySessionFunc != nil {
		return m.GetBySessionFunc(ctx, sessionID)
	}
	return nil, models.ErrNotFound
}

func (m *MockChallengeRepository) IncrementAttempts(ctx context.Context, sessionID string) (int, error) {
	if m.IncrementAttemptsFunc != nil {
		return m.IncrementAttemptsFunc(ctx, sessionID)
	}
	return 1, nil
}

func (m *MockChallengeRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	m.Deleted = append(m.Deleted, sessionID)
	if m.DeleteBySessionFunc != nil {
		return m.DeleteBySessionFunc(ctx, sessionID)
	}
	return nil
}

// MockDecisionEngine implements DecisionEngine for testing
type MockDecisionEngine struct {
	DecideFunc func(ctx context.Context, attempt *models.LoginAttempt, headers http.Header) *risk.Decision
}

func (m *MockDecisionEngine) Decide(ctx context.Context, attempt *models.LoginAttempt, headers http.Header) *risk.Decision {
	if m.DecideFunc != nil {
		return m.DecideFunc(ctx, attempt, headers)
	}
	return &risk.Decision{Status: models.DecisionAllow}
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendStepUpCodeFunc func(ctx context.Context, email, code string, expiresAt time.Time) error
	SentCodes          []string
}

func (m *MockEmailService) SendStepUpCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	m.SentCodes = append(m.SentCodes, code)
	if m.SendStepUpCodeFunc != nil {
		return m.SendStepUpCodeFunc(ctx, email, code, expiresAt)
	}
	return nil
}

// MockActivityRepository implements ActivityRepository for testing
type MockActivityRepository struct {
	ListFunc          func(ctx context.Context, limit, offset int) ([]*models.LoginLog, error)
	CountFunc         func(ctx context.Context) (int, error)
	StatusCountsFunc  func(ctx context.Context) (map[string]int, error)
	LastLoginTimeFunc func(ctx context.Context) (*time.Time, error)
}

func (m *MockActivityRepository) List(ctx context.Context, limit, offset int) ([]*models.LoginLog, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.LoginLog{}, nil
}

func (m *MockActivityRepository) Count(ctx context.Context) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	return 0, nil
}

func (m *MockActivityRepository) StatusCounts(ctx context.Context) (map[string]int, error) {
	if m.StatusCountsFunc != nil {
		return m.StatusCountsFunc(ctx)
	}
	return map[string]int{}, nil
}

func (m *MockActivityRepository) LastLoginTime(ctx context.Context) (*time.Time, error) {
	if m.LastLoginTimeFunc != nil {
		return m.LastLoginTimeFunc(ctx)
	}
	return nil, nil
}

// NewTestUser builds a user with a bcrypt hash of the given password
func NewTestUser(id, email, password string) *models.User {
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
}
