package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arbiterhq/arbiter/internal/database"
	"github.com/arbiterhq/arbiter/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginLogRepository handles the login attempt history: the audit trail
// writes and the windowed read queries the feature extractor depends on.
type LoginLogRepository struct {
	db *database.DB
}

// NewLoginLogRepository creates a new LoginLogRepository
func NewLoginLogRepository(db *database.DB) *LoginLogRepository {
	return &LoginLogRepository{db: db}
}

// Record appends the audit record for a concluded attempt
func (r *LoginLogRepository) Record(ctx context.Context, log *models.LoginLog) error {
	query := `
		INSERT INTO login_logs (user_id, submitted_email, ip_address, user_agent, login_time, status, risk_score, risk_decision, context_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	loginTime := log.LoginTime
	if loginTime.IsZero() {
		loginTime = time.Now()
	}

	_, err := r.db.Pool.Exec(ctx, query,
		log.UserID,
		log.SubmittedEmail,
		log.IPAddress,
		log.UserAgent,
		loginTime,
		log.Status,
		log.RiskScore,
		log.RiskDecision,
		log.Context,
	)

	return err
}

// CountAttemptsByIP returns the number of attempts from an IP since a cutoff
func (r *LoginLogRepository) CountAttemptsByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_logs
		WHERE ip_address = $1 AND login_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, ipAddress, since).Scan(&count)
	return count, err
}

// CountAttemptsByEmail returns the number of attempts for a resolved user,
// matched through the submitted email, since a cutoff
func (r *LoginLogRepository) CountAttemptsByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_logs
		JOIN users ON login_logs.user_id = users.id
		WHERE users.email = $1 AND login_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, err
}

// FailCountsByIP returns (failed, total) attempt counts from an IP since a
// cutoff. An attempt counts as failed when its final status is not 'valid'.
func (r *LoginLogRepository) FailCountsByIP(ctx context.Context, ipAddress string, since time.Time) (failed int, total int, err error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE status <> 'valid'), COUNT(*)
		FROM login_logs
		WHERE ip_address = $1 AND login_time >= $2
	`

	err = r.db.Pool.QueryRow(ctx, query, ipAddress, since).Scan(&failed, &total)
	return failed, total, err
}

// RecentAttemptTimes returns up to limit attempt timestamps for an IP,
// most recent first
func (r *LoginLogRepository) RecentAttemptTimes(ctx context.Context, ipAddress string, limit int) ([]time.Time, error) {
	query := `
		SELECT login_time FROM login_logs
		WHERE ip_address = $1
		ORDER BY login_time DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, ipAddress, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	times := make([]time.Time, 0, limit)
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}

	return times, rows.Err()
}

// LastAttemptTime returns the most recent attempt timestamp for an IP, or
// nil when the IP has no history
func (r *LoginLogRepository) LastAttemptTime(ctx context.Context, ipAddress string) (*time.Time, error) {
	query := `
		SELECT login_time FROM login_logs
		WHERE ip_address = $1
		ORDER BY login_time DESC
		LIMIT 1
	`

	var t time.Time
	err := r.db.Pool.QueryRow(ctx, query, ipAddress).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// RecentContexts returns up to limit context blobs for a user, most recent
// first, for device and cookie recognition
func (r *LoginLogRepository) RecentContexts(ctx context.Context, userID string, limit int) ([]models.ContextBlob, error) {
	query := `
		SELECT context_json FROM login_logs
		WHERE user_id = $1 AND context_json IS NOT NULL
		ORDER BY login_time DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := make([]models.ContextBlob, 0, limit)
	for rows.Next() {
		var blob models.ContextBlob
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		blobs = append(blobs, blob)
	}

	return blobs, rows.Err()
}

// HasUserAgent reports whether a prior record for this user carries exactly
// this user-agent string
func (r *LoginLogRepository) HasUserAgent(ctx context.Context, userID, userAgent string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM login_logs
		WHERE user_id = $1 AND user_agent = $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, userID, userAgent).Scan(&count)
	return count > 0, err
}

// List returns a page of login logs, most recent first, with the known email
// of the resolved user when present
func (r *LoginLogRepository) List(ctx context.Context, limit, offset int) ([]*models.LoginLog, error) {
	query := `
		SELECT login_logs.id, login_logs.user_id, login_logs.submitted_email,
		       login_logs.ip_address, login_logs.user_agent, login_logs.login_time,
		       login_logs.status, login_logs.risk_score, login_logs.risk_decision,
		       login_logs.context_json
		FROM login_logs
		ORDER BY login_logs.login_time DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query login logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.LoginLog, 0)
	for rows.Next() {
		var log models.LoginLog
		err := rows.Scan(
			&log.ID, &log.UserID, &log.SubmittedEmail,
			&log.IPAddress, &log.UserAgent, &log.LoginTime,
			&log.Status, &log.RiskScore, &log.RiskDecision,
			&log.Context,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login log: %w", err)
		}
		logs = append(logs, &log)
	}

	return logs, rows.Err()
}

// Count returns the total number of login logs
func (r *LoginLogRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM login_logs`).Scan(&count)
	return count, err
}

// StatusCounts returns log totals grouped by final status
func (r *LoginLogRepository) StatusCounts(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM login_logs GROUP BY status`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

// LastLoginTime returns the timestamp of the most recent log, or nil when
// the table is empty
func (r *LoginLogRepository) LastLoginTime(ctx context.Context) (*time.Time, error) {
	var t time.Time
	err := r.db.Pool.QueryRow(ctx, `SELECT login_time FROM login_logs ORDER BY login_time DESC LIMIT 1`).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteOlderThan removes login logs older than the cutoff
func (r *LoginLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM login_logs WHERE login_time < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
