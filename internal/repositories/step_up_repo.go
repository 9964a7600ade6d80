package repositories

import (
	"context"
	"time"

	"github.com/arbiterhq/arbiter/internal/database"
	"github.com/arbiterhq/arbiter/internal/models"
	"github.com/jackc/pgx/v5"
)

// StepUpRepository persists pending step-up challenges keyed by session.
// The session_id unique constraint enforces the one-outstanding-challenge
// invariant at the storage layer.
type StepUpRepository struct {
	db *database.DB
}

// NewStepUpRepository creates a new StepUpRepository
func NewStepUpRepository(db *database.DB) *StepUpRepository {
	return &StepUpRepository{db: db}
}

// Replace stores a new pending challenge for a session, discarding any stale
// one that the session still holds
func (r *StepUpRepository) Replace(ctx context.Context, challenge *models.PendingStepUp) (*models.PendingStepUp, error) {
	query := `
		INSERT INTO step_up_challenges
			(session_id, user_id, submitted_email, remember, ip_address, user_agent,
			 risk_score, risk_decision, context_json, code_secret, code_counter, attempts, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, $13)
		ON CONFLICT (session_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			submitted_email = EXCLUDED.submitted_email,
			remember = EXCLUDED.remember,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent,
			risk_score = EXCLUDED.risk_score,
			risk_decision = EXCLUDED.risk_decision,
			context_json = EXCLUDED.context_json,
			code_secret = EXCLUDED.code_secret,
			code_counter = EXCLUDED.code_counter,
			attempts = 0,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at
		RETURNING id, session_id, user_id, submitted_email, remember, ip_address, user_agent,
		          risk_score, risk_decision, context_json, code_secret, code_counter, attempts, issued_at, expires_at
	`

	issuedAt := challenge.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	return r.scanChallenge(r.db.Pool.QueryRow(ctx, query,
		challenge.SessionID,
		challenge.UserID,
		challenge.SubmittedEmail,
		challenge.Remember,
		challenge.IPAddress,
		challenge.UserAgent,
		challenge.RiskScore,
		challenge.RiskDecision,
		challenge.Context,
		challenge.CodeSecret,
		challenge.CodeCounter,
		issuedAt,
		challenge.ExpiresAt,
	))
}

// GetBySession retrieves the pending challenge for a session
func (r *StepUpRepository) GetBySession(ctx context.Context, sessionID string) (*models.PendingStepUp, error) {
	query := `
		SELECT id, session_id, user_id, submitted_email, remember, ip_address, user_agent,
		       risk_score, risk_decision, context_json, code_secret, code_counter, attempts, issued_at, expires_at
		FROM step_up_challenges
		WHERE session_id = $1
	`

	return r.scanChallenge(r.db.Pool.QueryRow(ctx, query, sessionID))
}

// IncrementAttempts bumps the failed-attempt counter and returns the new value
func (r *StepUpRepository) IncrementAttempts(ctx context.Context, sessionID string) (int, error) {
	query := `
		UPDATE step_up_challenges SET attempts = attempts + 1
		WHERE session_id = $1
		RETURNING attempts
	`

	var attempts int
	err := r.db.Pool.QueryRow(ctx, query, sessionID).Scan(&attempts)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return attempts, nil
}

// DeleteBySession clears the pending challenge for a session
func (r *StepUpRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM step_up_challenges WHERE session_id = $1`, sessionID)
	return err
}

// DeleteExpired removes challenges past their TTL
func (r *StepUpRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM step_up_challenges WHERE expires_at <= CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (r *StepUpRepository) scanChallenge(row pgx.Row) (*models.PendingStepUp, error) {
	var c models.PendingStepUp
	err := row.Scan(
		&c.ID, &c.SessionID, &c.UserID, &c.SubmittedEmail, &c.Remember,
		&c.IPAddress, &c.UserAgent, &c.RiskScore, &c.RiskDecision, &c.Context,
		&c.CodeSecret, &c.CodeCounter, &c.Attempts, &c.IssuedAt, &c.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &c, nil
}
