package models

// Decisions a scorer or advisory response may carry
const (
	DecisionAllow  = "allow"
	DecisionStepUp = "step_up"
	DecisionBlock  = "block"
)

// ValidDecision reports whether s is one of the three enumerated decisions.
func ValidDecision(s string) bool {
	switch s {
	case DecisionAllow, DecisionStepUp, DecisionBlock:
		return true
	}
	return false
}

// ScoreResult is the outcome of one scoring call, baseline or advisory.
// Every field is independently nullable: partial data stays partial rather
// than being backfilled with fabricated values.
type ScoreResult struct {
	Score    *float64 `json:"score"`
	Decision *string  `json:"decision"`
	Tau1     *float64 `json:"tau1"`
	Tau2     *float64 `json:"tau2"`
	Reason   *string  `json:"reason,omitempty"`
}

// Empty reports whether the result carries neither a score nor a decision,
// which is how an unavailable scorer presents to the decision engine.
func (r *ScoreResult) Empty() bool {
	return r == nil || (r.Score == nil && r.Decision == nil)
}

// DecisionOr returns the decision string, or fallback when absent.
func (r *ScoreResult) DecisionOr(fallback string) string {
	if r == nil || r.Decision == nil {
		return fallback
	}
	return *r.Decision
}

// Clone returns a shallow copy with fresh pointers, so a refined result can
// be modified without mutating the baseline.
func (r *ScoreResult) Clone() *ScoreResult {
	if r == nil {
		return &ScoreResult{}
	}
	out := &ScoreResult{}
	if r.Score != nil {
		v := *r.Score
		out.Score = &v
	}
	if r.Decision != nil {
		v := *r.Decision
		out.Decision = &v
	}
	if r.Tau1 != nil {
		v := *r.Tau1
		out.Tau1 = &v
	}
	if r.Tau2 != nil {
		v := *r.Tau2
		out.Tau2 = &v
	}
	if r.Reason != nil {
		v := *r.Reason
		out.Reason = &v
	}
	return out
}
