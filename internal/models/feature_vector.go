package models

// FeatureSchemaVersion identifies the feature vector layout sent to the
// scorer. Bump when fields are added or renamed so stored context blobs can
// be told apart.
const FeatureSchemaVersion = 1

// FeatureVector is the engineered signal snapshot for one login attempt.
// The schema is fixed: adding a feature is a deliberate change here, not a
// silent map mutation. All counts are non-negative, ratios are in [0,1], and
// the seen-before flags are encoded as "0"/"1" because the scorer treats
// them as categorical inputs.
type FeatureVector struct {
	AttemptsByIPShort    float64 // attempts from this IP in the short window
	AttemptsByIPLong     float64 // attempts from this IP in the long window
	AttemptsByUserShort  float64 // attempts for this user in the short window
	AttemptsByUserLong   float64 // attempts for this user in the long window
	FailRatioByIP        float64 // failed/total from this IP in the ratio window
	BurstLengthIP        float64 // consecutive attempts at most 60s apart, minimum 1
	InterAttemptMs       float64 // ms since the prior attempt from this IP
	GeoVelocity          float64 // reserved, always 0 until a geo service exists
	RTTMs                float64 // reserved, always 0
	LoginSuccess         float64 // reserved, always 0 at scoring time

	UAFamily         string
	DeviceType       string
	CountryCode      string
	ASN              string
	DeviceSeenBefore bool
	CookieSeenBefore bool
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ScorerMap renders the vector as the flat feature map the external scorer
// expects. Key names are part of the scorer wire contract.
func (fv *FeatureVector) ScorerMap() map[string]interface{} {
	return map[string]interface{}{
		"attempts_1m_by_ip":        fv.AttemptsByIPShort,
		"attempts_5m_by_ip":        fv.AttemptsByIPLong,
		"attempts_1m_by_user":      fv.AttemptsByUserShort,
		"attempts_5m_by_user":      fv.AttemptsByUserLong,
		"fail_ratio_10m_by_ip":     fv.FailRatioByIP,
		"burst_length_ip":          fv.BurstLengthIP,
		"inter_attempt_ms_ip":      fv.InterAttemptMs,
		"geo_velocity_user":        fv.GeoVelocity,
		"rtt_ms":                   fv.RTTMs,
		"login_success":            fv.LoginSuccess,
		"ua_family":                fv.UAFamily,
		"device_type":              fv.DeviceType,
		"country_ip":               fv.CountryCode,
		"asn_ip":                   fv.ASN,
		"device_seen_before_user": boolFlag(fv.DeviceSeenBefore),
		"cookie_seen_before_user": boolFlag(fv.CookieSeenBefore),
	}
}
