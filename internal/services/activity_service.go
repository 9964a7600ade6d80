package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbiterhq/arbiter/internal/models"
)

// ActivityRepository defines the login-log reads the activity feed needs
type ActivityRepository interface {
	List(ctx context.Context, limit, offset int) ([]*models.LoginLog, error)
	Count(ctx context.Context) (int, error)
	StatusCounts(ctx context.Context) (map[string]int, error)
	LastLoginTime(ctx context.Context) (*time.Time, error)
}

// ActivityEntry is one login-log row in the feed response
type ActivityEntry struct {
	ID             string             `json:"id"`
	LoginTime      time.Time          `json:"login_time"`
	IPAddress      string             `json:"ip_address"`
	UserAgent      string             `json:"user_agent"`
	Status         string             `json:"status"`
	RiskScore      *float64           `json:"risk_score"`
	RiskDecision   *string            `json:"risk_decision"`
	SubmittedEmail string             `json:"submitted_email"`
	Context        models.ContextBlob `json:"context,omitempty"`
}

// ActivityFeed is the paginated feed payload
type ActivityFeed struct {
	Page         int              `json:"page"`
	PageSize     int              `json:"page_size"`
	Total        int              `json:"total"`
	TotalPages   int              `json:"total_pages"`
	Data         []*ActivityEntry `json:"data"`
	StatusCounts map[string]int   `json:"status_counts"`
	LastLogin    *time.Time       `json:"last_login"`
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ActivityService serves the paginated audit feed
type ActivityService struct {
	logs   ActivityRepository
	logger *slog.Logger
}

// NewActivityService creates a new ActivityService
func NewActivityService(logs ActivityRepository, logger *slog.Logger) *ActivityService {
	return &ActivityService{
		logs:   logs,
		logger: logger,
	}
}

// Feed returns one page of login activity. Out-of-range pages are clamped
// to the last page rather than returning an empty set.
func (s *ActivityService) Feed(ctx context.Context, page, pageSize int) (*ActivityFeed, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total, err := s.logs.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count login logs", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	totalPages := 1
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
		if page > totalPages {
			page = totalPages
		}
	}
	offset := (page - 1) * pageSize

	rows, err := s.logs.List(ctx, pageSize, offset)
	if err != nil {
		s.logger.Error("failed to list login logs", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	entries := make([]*ActivityEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, &ActivityEntry{
			ID:             row.ID,
			LoginTime:      row.LoginTime,
			IPAddress:      row.IPAddress,
			UserAgent:      row.UserAgent,
			Status:         row.Status,
			RiskScore:      row.RiskScore,
			RiskDecision:   row.RiskDecision,
			SubmittedEmail: row.SubmittedEmail,
			Context:        row.Context,
		})
	}

	counts, err := s.logs.StatusCounts(ctx)
	if err != nil {
		s.logger.Error("failed to aggregate status counts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	statusCounts := map[string]int{
		models.AttemptStatusValid:        0,
		models.AttemptStatusBlocked:      0,
		models.AttemptStatusVerification: 0,
	}
	for status, count := range counts {
		if _, known := statusCounts[status]; known {
			statusCounts[status] = count
		}
	}

	lastLogin, err := s.logs.LastLoginTime(ctx)
	if err != nil {
		s.logger.Error("failed to read last login time", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &ActivityFeed{
		Page:         page,
		PageSize:     pageSize,
		Total:        total,
		TotalPages:   totalPages,
		Data:         entries,
		StatusCounts: statusCounts,
		LastLogin:    lastLogin,
	}, nil
}
