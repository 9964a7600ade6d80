package risk

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/arbiterhq/arbiter/internal/models"
)

// FeatureSource produces a feature vector for a login attempt.
type FeatureSource interface {
	Extract(ctx context.Context, attempt *models.LoginAttempt, headers http.Header) (*models.FeatureVector, error)
}

// Decision is the engine's verdict for one login attempt. Baseline and Final
// are both retained so audit records can show what the advisory changed.
type Decision struct {
	Status           string
	Score            *float64
	Reason           *string
	Features         *models.FeatureVector
	Baseline         *models.ScoreResult
	Final            *models.ScoreResult
	ScorerAvailable  bool
	RefinerConsulted bool
}

// Allow reports whether the attempt may proceed without any challenge.
func (d *Decision) Allow() bool {
	return d.Status == models.DecisionAllow
}

// Blocked reports whether the attempt must be rejected outright.
func (d *Decision) Blocked() bool {
	return d.Status == models.DecisionBlock
}

// StepUp reports whether the attempt needs a verification challenge.
func (d *Decision) StepUp() bool {
	return d.Status == models.DecisionStepUp
}

// Engine composes feature extraction, baseline scoring, and advisory
// refinement into a single decision. Every failure mode degrades to allow:
// an unreachable scorer must never lock users out.
type Engine struct {
	features FeatureSource
	scorer   Scorer
	refiner  Refiner
	logger   *slog.Logger
}

func NewEngine(features FeatureSource, scorer Scorer, refiner Refiner, logger *slog.Logger) *Engine {
	return &Engine{
		features: features,
		scorer:   scorer,
		refiner:  refiner,
		logger:   logger,
	}
}

// Decide runs the full pipeline for one attempt.
func (e *Engine) Decide(ctx context.Context, attempt *models.LoginAttempt, headers http.Header) *Decision {
	vector, err := e.features.Extract(ctx, attempt, headers)
	if err != nil {
		e.logger.Error("feature extraction failed, allowing attempt",
			slog.String("ip", attempt.IPAddress),
			slog.Any("error", err),
		)
		return &Decision{Status: models.DecisionAllow}
	}

	decision := &Decision{
		Status:   models.DecisionAllow,
		Features: vector,
	}

	baseline, err := e.scorer.Score(ctx, vector.ScorerMap())
	if err != nil {
		if !errors.Is(err, ErrScorerUnavailable) {
			e.logger.Error("unexpected scorer failure", slog.Any("error", err))
		}
		return decision
	}
	decision.ScorerAvailable = true
	decision.Baseline = baseline

	final := baseline
	if !baseline.Empty() {
		final = e.refiner.Refine(ctx, vector, baseline)
		decision.RefinerConsulted = true
	}
	decision.Final = final

	status := final.DecisionOr(models.DecisionAllow)
	if !models.ValidDecision(status) {
		// out-of-enum decision strings never route; fail open
		e.logger.Warn("scorer returned unknown decision, allowing attempt",
			slog.String("decision", status))
		status = models.DecisionAllow
	}
	decision.Status = status
	decision.Score = final.Score
	decision.Reason = final.Reason

	return decision
}
