package risk

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arbiterhq/arbiter/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScorerScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scorer.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestProcessScorer_Score_Success(t *testing.T) {
	script := writeScorerScript(t,
		`cat >/dev/null
echo '{"score": 0.42, "decision": "step_up", "tau1": 0.3, "tau2": 0.7}'`)

	scorer := NewProcessScorer(script, 5*time.Second, slog.Default())
	result, err := scorer.Score(context.Background(), map[string]interface{}{"attempts_1m_by_ip": 2.0})

	require.NoError(t, err)
	require.NotNil(t, result.Score)
	assert.InDelta(t, 0.42, *result.Score, 1e-9)
	assert.Equal(t, models.DecisionStepUp, result.DecisionOr(""))
	require.NotNil(t, result.Tau1)
	require.NotNil(t, result.Tau2)
	assert.InDelta(t, 0.3, *result.Tau1, 1e-9)
	assert.InDelta(t, 0.7, *result.Tau2, 1e-9)
}

func TestProcessScorer_Score_EmptyCommandDisabled(t *testing.T) {
	scorer := NewProcessScorer("   ", time.Second, slog.Default())

	result, err := scorer.Score(context.Background(), map[string]interface{}{})

	assert.ErrorIs(t, err, ErrScorerUnavailable)
	assert.Nil(t, result)
}

func TestProcessScorer_Score_MissingBinary(t *testing.T) {
	scorer := NewProcessScorer("/nonexistent/scorer-binary", time.Second, slog.Default())

	_, err := scorer.Score(context.Background(), map[string]interface{}{})

	assert.ErrorIs(t, err, ErrScorerUnavailable)
}

func TestProcessScorer_Score_NonZeroExit(t *testing.T) {
	script := writeScorerScript(t, `cat >/dev/null
exit 3`)

	scorer := NewProcessScorer(script, 5*time.Second, slog.Default())
	_, err := scorer.Score(context.Background(), map[string]interface{}{})

	assert.ErrorIs(t, err, ErrScorerUnavailable)
}

func TestProcessScorer_Score_GarbageOutput(t *testing.T) {
	script := writeScorerScript(t, `cat >/dev/null
echo 'Traceback (most recent call last):'`)

	scorer := NewProcessScorer(script, 5*time.Second, slog.Default())
	_, err := scorer.Score(context.Background(), map[string]interface{}{})

	assert.ErrorIs(t, err, ErrScorerUnavailable)
}

func TestProcessScorer_Score_Timeout(t *testing.T) {
	script := writeScorerScript(t, `sleep 5`)

	scorer := NewProcessScorer(script, 100*time.Millisecond, slog.Default())

	start := time.Now()
	_, err := scorer.Score(context.Background(), map[string]interface{}{})

	assert.ErrorIs(t, err, ErrScorerUnavailable)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestProcessScorer_Score_FeaturesReachStdin(t *testing.T) {
	script := writeScorerScript(t,
		`input=$(cat)
case "$input" in
  *attempts_1m_by_ip*) echo '{"score": 0.1, "decision": "allow"}' ;;
  *) exit 1 ;;
esac`)

	scorer := NewProcessScorer(script, 5*time.Second, slog.Default())
	result, err := scorer.Score(context.Background(), map[string]interface{}{"attempts_1m_by_ip": 4.0})

	require.NoError(t, err)
	assert.Equal(t, models.DecisionAllow, result.DecisionOr(""))
}

func TestParseScorerOutput(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantErr      bool
		wantScore    *float64
		wantDecision string
	}{
		{
			name:         "complete result",
			raw:          `{"score": 0.9, "decision": "block", "tau1": 0.4, "tau2": 0.8}`,
			wantScore:    floatPtr(0.9),
			wantDecision: "block",
		},
		{
			name:         "score as string",
			raw:          `{"score": "0.55", "decision": "allow"}`,
			wantScore:    floatPtr(0.55),
			wantDecision: "allow",
		},
		{
			name:         "non-numeric score dropped",
			raw:          `{"score": "high", "decision": "block"}`,
			wantScore:    nil,
			wantDecision: "block",
		},
		{
			name:         "missing fields stay nil",
			raw:          `{}`,
			wantScore:    nil,
			wantDecision: "",
		},
		{
			name:         "decision wrong type dropped",
			raw:          `{"score": 0.2, "decision": 1}`,
			wantScore:    floatPtr(0.2),
			wantDecision: "",
		},
		{
			name:    "not json",
			raw:     `score=0.5`,
			wantErr: true,
		},
		{
			name:    "json array",
			raw:     `[0.5]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseScorerOutput([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tt.wantScore == nil {
				assert.Nil(t, result.Score)
			} else {
				require.NotNil(t, result.Score)
				assert.InDelta(t, *tt.wantScore, *result.Score, 1e-9)
			}
			assert.Equal(t, tt.wantDecision, result.DecisionOr(""))
		})
	}
}

func TestCoerceFloat(t *testing.T) {
	assert.Nil(t, coerceFloat(nil))
	assert.Nil(t, coerceFloat(true))
	assert.Nil(t, coerceFloat("not a number"))
	assert.Nil(t, coerceFloat([]interface{}{1.0}))

	got := coerceFloat(0.25)
	require.NotNil(t, got)
	assert.Equal(t, 0.25, *got)

	got = coerceFloat(" 0.75 ")
	require.NotNil(t, got)
	assert.Equal(t, 0.75, *got)
}

func floatPtr(f float64) *float64 {
	return &f
}
