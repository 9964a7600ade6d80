package risk

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/arbiterhq/arbiter/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeatureSource struct {
	vector *models.FeatureVector
	err    error
}

func (s *stubFeatureSource) Extract(_ context.Context, _ *models.LoginAttempt, _ http.Header) (*models.FeatureVector, error) {
	return s.vector, s.err
}

type stubScorer struct {
	result *models.ScoreResult
	err    error
	calls  int
}

func (s *stubScorer) Score(_ context.Context, _ map[string]interface{}) (*models.ScoreResult, error) {
	s.calls++
	return s.result, s.err
}

type stubRefiner struct {
	result *models.ScoreResult
	calls  int
}

func (s *stubRefiner) Refine(_ context.Context, _ *models.FeatureVector, baseline *models.ScoreResult) *models.ScoreResult {
	s.calls++
	if s.result != nil {
		return s.result
	}
	return baseline
}

func scored(score float64, decision string) *models.ScoreResult {
	return &models.ScoreResult{Score: &score, Decision: &decision}
}

func TestEngine_Decide_ExtractionFailureAllows(t *testing.T) {
	scorer := &stubScorer{}
	refiner := &stubRefiner{}
	engine := NewEngine(&stubFeatureSource{err: errors.New("database down")}, scorer, refiner, slog.Default())

	decision := engine.Decide(context.Background(), testAttempt(), http.Header{})

	assert.True(t, decision.Allow())
	assert.False(t, decision.ScorerAvailable)
	assert.Equal(t, 0, scorer.calls)
	assert.Equal(t, 0, refiner.calls)
}

func TestEngine_Decide_ScorerUnavailableAllows(t *testing.T) {
	refiner := &stubRefiner{result: scored(0.99, models.DecisionBlock)}
	engine := NewEngine(
		&stubFeatureSource{vector: &models.FeatureVector{}},
		&stubScorer{err: ErrScorerUnavailable},
		refiner,
		slog.Default(),
	)

	decision := engine.Decide(context.Background(), testAttempt(), http.Header{})

	assert.True(t, decision.Allow())
	assert.False(t, decision.ScorerAvailable)
	assert.Nil(t, decision.Score)
	// the advisory must never run without a baseline
	assert.Equal(t, 0, refiner.calls)
}

func TestEngine_Decide_EmptyBaselineSkipsRefiner(t *testing.T) {
	refiner := &stubRefiner{result: scored(0.99, models.DecisionBlock)}
	engine := NewEngine(
		&stubFeatureSource{vector: &models.FeatureVector{}},
		&stubScorer{result: &models.ScoreResult{}},
		refiner,
		slog.Default(),
	)

	decision := engine.Decide(context.Background(), testAttempt(), http.Header{})

	assert.True(t, decision.Allow())
	assert.True(t, decision.ScorerAvailable)
	assert.False(t, decision.RefinerConsulted)
	assert.Equal(t, 0, refiner.calls)
}

func TestEngine_Decide_RefinedDecisionWins(t *testing.T) {
	refiner := &stubRefiner{result: scored(0.95, models.DecisionBlock)}
	engine := NewEngine(
		&stubFeatureSource{vector: &models.FeatureVector{}},
		&stubScorer{result: scored(0.6, models.DecisionStepUp)},
		refiner,
		slog.Default(),
	)

	decision := engine.Decide(context.Background(), testAttempt(), http.Header{})

	assert.True(t, decision.Blocked())
	assert.Equal(t, 1, refiner.calls)
	require.NotNil(t, decision.Score)
	assert.InDelta(t, 0.95, *decision.Score, 1e-9)
	assert.Equal(t, models.DecisionStepUp, decision.Baseline.DecisionOr(""))
	assert.Equal(t, models.DecisionBlock, decision.Final.DecisionOr(""))
}

func TestEngine_Decide_StepUp(t *testing.T) {
	engine := NewEngine(
		&stubFeatureSource{vector: &models.FeatureVector{}},
		&stubScorer{result: scored(0.55, models.DecisionStepUp)},
		&stubRefiner{},
		slog.Default(),
	)

	decision := engine.Decide(context.Background(), testAttempt(), http.Header{})

	assert.True(t, decision.StepUp())
	assert.False(t, decision.Allow())
	assert.False(t, decision.Blocked())
}

func TestEngine_Decide_UnknownDecisionStringAllows(t *testing.T) {
	// anything outside the allow/step_up/block enum must not reach audit
	// rows or challenge snapshots as-is
	for _, bad := range []string{"deny", "Block", "STEP_UP"} {
		engine := NewEngine(
			&stubFeatureSource{vector: &models.FeatureVector{}},
			&stubScorer{result: scored(0.9, bad)},
			&stubRefiner{},
			slog.Default(),
		)

		decision := engine.Decide(context.Background(), testAttempt(), http.Header{})

		assert.Equal(t, models.DecisionAllow, decision.Status, "decision %q", bad)
		assert.True(t, decision.Allow())
		require.NotNil(t, decision.Score)
		assert.InDelta(t, 0.9, *decision.Score, 1e-9)
	}
}

func TestEngine_Decide_ScoreWithoutDecisionAllows(t *testing.T) {
	score := 0.3
	engine := NewEngine(
		&stubFeatureSource{vector: &models.FeatureVector{}},
		&stubScorer{result: &models.ScoreResult{Score: &score}},
		&stubRefiner{},
		slog.Default(),
	)

	decision := engine.Decide(context.Background(), testAttempt(), http.Header{})

	assert.True(t, decision.Allow())
	assert.True(t, decision.RefinerConsulted)
	require.NotNil(t, decision.Score)
	assert.InDelta(t, 0.3, *decision.Score, 1e-9)
}
