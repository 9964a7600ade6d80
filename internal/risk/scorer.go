package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/arbiterhq/arbiter/internal/models"
)

// ErrScorerUnavailable is returned for every scorer failure mode: missing
// binary, non-zero exit, timeout, or unparsable output. The decision engine
// maps it to the fail-open path; it never reaches the request handler.
var ErrScorerUnavailable = errors.New("scorer unavailable")

// Scorer sends a feature map to the external scoring process and returns a
// validated result. Fields the scorer omitted or mangled come back nil,
// never fabricated; the decision string is passed through uninterpreted at
// this layer.
type Scorer interface {
	Score(ctx context.Context, features map[string]interface{}) (*models.ScoreResult, error)
}

// ProcessScorer invokes the scorer as a subprocess: one JSON object on
// stdin, one JSON object on stdout, success exit status required.
type ProcessScorer struct {
	command string
	timeout time.Duration
	logger  *slog.Logger
}

// NewProcessScorer creates a ProcessScorer. An empty command means scoring
// is disabled and every call reports unavailable.
func NewProcessScorer(command string, timeout time.Duration, logger *slog.Logger) *ProcessScorer {
	return &ProcessScorer{
		command: strings.TrimSpace(command),
		timeout: timeout,
		logger:  logger,
	}
}

// Score runs the scorer subprocess for one feature map.
func (s *ProcessScorer) Score(ctx context.Context, features map[string]interface{}) (*models.ScoreResult, error) {
	if s.command == "" {
		return nil, ErrScorerUnavailable
	}

	payload, err := json.Marshal(map[string]interface{}{"features": features})
	if err != nil {
		s.logger.Error("failed to encode scorer payload", slog.Any("error", err))
		return nil, ErrScorerUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	parts := strings.Fields(s.command)
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		s.logger.Warn("scorer invocation failed",
			slog.Any("error", err),
			slog.String("stderr", strings.TrimSpace(stderr.String())))
		return nil, ErrScorerUnavailable
	}

	result, err := parseScorerOutput(stdout.Bytes())
	if err != nil {
		s.logger.Warn("invalid scorer output",
			slog.Any("error", err),
			slog.String("stdout", strings.TrimSpace(stdout.String())))
		return nil, ErrScorerUnavailable
	}

	return result, nil
}

// parseScorerOutput decodes the scorer's JSON object, coercing each field
// defensively: a non-numeric score or tau maps to nil rather than discarding
// the whole result.
func parseScorerOutput(raw []byte) (*models.ScoreResult, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}

	out := &models.ScoreResult{
		Score: coerceFloat(doc["score"]),
		Tau1:  coerceFloat(doc["tau1"]),
		Tau2:  coerceFloat(doc["tau2"]),
	}

	if dec, ok := doc["decision"].(string); ok && dec != "" {
		out.Decision = &dec
	}

	return out, nil
}

// coerceFloat accepts JSON numbers and numeric strings; everything else is nil.
func coerceFloat(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return &f
		}
	}
	return nil
}
