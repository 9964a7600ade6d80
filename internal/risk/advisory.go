package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arbiterhq/arbiter/internal/models"
)

const advisoryPlaceholderReason = "advisory refinement applied without rationale"

// Refiner may adjust a baseline scoring result using a secondary advisory
// service. It always returns a usable result: on any transport, status, or
// parse failure the baseline comes back verbatim. Advisory failure must
// never degrade a decision.
type Refiner interface {
	Refine(ctx context.Context, vector *models.FeatureVector, baseline *models.ScoreResult) *models.ScoreResult
}

// NopRefiner returns the baseline untouched. Used when no advisory endpoint
// is configured.
type NopRefiner struct{}

func (NopRefiner) Refine(_ context.Context, _ *models.FeatureVector, baseline *models.ScoreResult) *models.ScoreResult {
	return baseline
}

// AdvisoryRefiner calls a chat-completion style advisory endpoint with the
// baseline result and feature vector embedded in a structured prompt, and
// merges the validated parts of its answer over the baseline.
type AdvisoryRefiner struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	logger   *slog.Logger
}

// NewAdvisoryRefiner creates an AdvisoryRefiner bounded by timeout. The call
// sits on the synchronous login path and must not block past it.
func NewAdvisoryRefiner(endpoint, apiKey, model string, timeout time.Duration, logger *slog.Logger) *AdvisoryRefiner {
	return &AdvisoryRefiner{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

const advisorySystemPrompt = "You are a login risk reviewer. You receive a baseline risk assessment " +
	"and the feature vector it was computed from. Reply with a single JSON object with keys " +
	`"score" (number 0..1), "decision" (one of "allow", "step_up", "block"), ` +
	`"tau1" (number), "tau2" (number), and "reason" (short string). ` +
	"Adjust the baseline only when the features clearly warrant it. Reply with JSON only."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Refine performs the single synchronous advisory call and merges the result.
func (r *AdvisoryRefiner) Refine(ctx context.Context, vector *models.FeatureVector, baseline *models.ScoreResult) *models.ScoreResult {
	body, err := r.buildRequest(vector, baseline)
	if err != nil {
		r.logger.Warn("failed to build advisory request", slog.Any("error", err))
		return baseline
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		r.logger.Warn("failed to create advisory request", slog.Any("error", err))
		return baseline
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("advisory call failed", slog.Any("error", err))
		return baseline
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Warn("advisory returned non-success status", slog.Int("status", resp.StatusCode))
		return baseline
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		r.logger.Warn("failed to read advisory response", slog.Any("error", err))
		return baseline
	}

	advisory, err := unwrapAdvisoryPayload(payload)
	if err != nil {
		r.logger.Warn("unparsable advisory response", slog.Any("error", err))
		return baseline
	}

	return mergeAdvisory(baseline, advisory)
}

func (r *AdvisoryRefiner) buildRequest(vector *models.FeatureVector, baseline *models.ScoreResult) ([]byte, error) {
	baselineJSON, err := json.Marshal(baseline)
	if err != nil {
		return nil, err
	}
	featuresJSON, err := json.Marshal(vector.ScorerMap())
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Baseline assessment:\n%s\n\nFeature vector:\n%s", baselineJSON, featuresJSON)

	return json.Marshal(chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: advisorySystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
}

// advisoryPayload is the untrusted advisory answer. Every field decodes
// loosely so one bad field cannot poison the rest.
type advisoryPayload struct {
	Score    interface{} `json:"score"`
	Decision interface{} `json:"decision"`
	Tau1     interface{} `json:"tau1"`
	Tau2     interface{} `json:"tau2"`
	Reason   interface{} `json:"reason"`
}

// unwrapAdvisoryPayload strips the chat-completion envelope and any code
// fences, then decodes the inner JSON object.
func unwrapAdvisoryPayload(raw []byte) (*advisoryPayload, error) {
	var envelope chatResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	if len(envelope.Choices) == 0 {
		return nil, fmt.Errorf("empty choices")
	}

	content := strings.TrimSpace(envelope.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var payload advisoryPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}

	return &payload, nil
}

// mergeAdvisory applies the field-by-field acceptance rules. Rejected fields
// keep the exact baseline value. A baseline block is sticky: a different
// advisory decision never downgrades it.
func mergeAdvisory(baseline *models.ScoreResult, advisory *advisoryPayload) *models.ScoreResult {
	merged := baseline.Clone()

	if dec, ok := advisory.Decision.(string); ok && models.ValidDecision(dec) {
		if baseline.DecisionOr("") != models.DecisionBlock {
			merged.Decision = &dec
		}
	}

	if score := coerceFloat(advisory.Score); score != nil {
		merged.Score = score
	}

	if tau1 := coerceFloat(advisory.Tau1); tau1 != nil {
		merged.Tau1 = tau1
	}
	if tau2 := coerceFloat(advisory.Tau2); tau2 != nil {
		merged.Tau2 = tau2
	}
	// thresholds must stay ordered after the merge
	if merged.Tau1 != nil && merged.Tau2 != nil && *merged.Tau1 > *merged.Tau2 {
		original := baseline.Clone()
		merged.Tau1 = original.Tau1
		merged.Tau2 = original.Tau2
	}

	if reason, ok := advisory.Reason.(string); ok && strings.TrimSpace(reason) != "" {
		trimmed := strings.TrimSpace(reason)
		merged.Reason = &trimmed
	} else {
		placeholder := advisoryPlaceholderReason
		merged.Reason = &placeholder
	}

	return merged
}
