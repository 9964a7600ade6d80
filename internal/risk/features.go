package risk

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arbiterhq/arbiter/internal/models"
)

// History limits for device and cookie recognition scans
const (
	deviceContextScanLimit = 25
	cookieContextScanLimit = 50
	burstGap               = 60 * time.Second
	defaultInterAttemptMs  = 300000 // 5 minutes when the IP has no history
)

// LogStore is the read contract the extractor needs from the login history.
type LogStore interface {
	CountAttemptsByIP(ctx context.Context, ip string, since time.Time) (int, error)
	CountAttemptsByEmail(ctx context.Context, email string, since time.Time) (int, error)
	FailCountsByIP(ctx context.Context, ip string, since time.Time) (failed, total int, err error)
	RecentAttemptTimes(ctx context.Context, ip string, limit int) ([]time.Time, error)
	LastAttemptTime(ctx context.Context, ip string) (*time.Time, error)
	RecentContexts(ctx context.Context, userID string, limit int) ([]models.ContextBlob, error)
	HasUserAgent(ctx context.Context, userID, userAgent string) (bool, error)
}

// ExtractorConfig holds the aggregation windows for the behavioral features.
type ExtractorConfig struct {
	ShortWindow time.Duration
	LongWindow  time.Duration
	RatioWindow time.Duration
	BurstLimit  int
}

// Extractor turns a login attempt plus history reads into a FeatureVector.
// It has no side effects; identical history yields identical vectors.
type Extractor struct {
	store   LogStore
	cfg     ExtractorConfig
	ua      UAClassifier
	country CountryEstimator
	asn     ASNEstimator
	logger  *slog.Logger
	now     func() time.Time
}

// NewExtractor creates an Extractor with the default heuristic estimators.
func NewExtractor(store LogStore, cfg ExtractorConfig, logger *slog.Logger) *Extractor {
	return &Extractor{
		store:   store,
		cfg:     cfg,
		ua:      HeuristicUAClassifier{},
		country: HeaderCountryEstimator{},
		asn:     HashASNEstimator{},
		logger:  logger,
		now:     time.Now,
	}
}

// WithEstimators swaps the categorical estimators, for a real geo/ASN
// service or for tests.
func (e *Extractor) WithEstimators(ua UAClassifier, country CountryEstimator, asn ASNEstimator) *Extractor {
	if ua != nil {
		e.ua = ua
	}
	if country != nil {
		e.country = country
	}
	if asn != nil {
		e.asn = asn
	}
	return e
}

// Extract builds the feature vector for one attempt. A store failure aborts
// extraction; the caller degrades the whole decision to scorer-unavailable.
func (e *Extractor) Extract(ctx context.Context, attempt *models.LoginAttempt, header http.Header) (*models.FeatureVector, error) {
	now := e.now()
	shortSince := now.Add(-e.cfg.ShortWindow)
	longSince := now.Add(-e.cfg.LongWindow)

	ipShort, err := e.store.CountAttemptsByIP(ctx, attempt.IPAddress, shortSince)
	if err != nil {
		return nil, fmt.Errorf("count attempts by ip: %w", err)
	}
	ipLong, err := e.store.CountAttemptsByIP(ctx, attempt.IPAddress, longSince)
	if err != nil {
		return nil, fmt.Errorf("count attempts by ip: %w", err)
	}

	// User-scoped counts stay zero for an unresolved user; the IP counts
	// are always available since the IP is always known.
	var userShort, userLong int
	if attempt.Email != "" {
		userShort, err = e.store.CountAttemptsByEmail(ctx, attempt.Email, shortSince)
		if err != nil {
			return nil, fmt.Errorf("count attempts by user: %w", err)
		}
		userLong, err = e.store.CountAttemptsByEmail(ctx, attempt.Email, longSince)
		if err != nil {
			return nil, fmt.Errorf("count attempts by user: %w", err)
		}
	}

	failRatio, err := e.failRatio(ctx, attempt.IPAddress, now.Add(-e.cfg.RatioWindow))
	if err != nil {
		return nil, err
	}

	burst, err := e.burstLength(ctx, attempt.IPAddress)
	if err != nil {
		return nil, err
	}

	interMs, err := e.interAttemptMs(ctx, attempt.IPAddress, now)
	if err != nil {
		return nil, err
	}

	deviceSeen, cookieSeen, err := e.seenFlags(ctx, attempt)
	if err != nil {
		return nil, err
	}

	return &models.FeatureVector{
		AttemptsByIPShort:   float64(ipShort),
		AttemptsByIPLong:    float64(ipLong),
		AttemptsByUserShort: float64(userShort),
		AttemptsByUserLong:  float64(userLong),
		FailRatioByIP:       failRatio,
		BurstLengthIP:       float64(burst),
		InterAttemptMs:      interMs,
		UAFamily:            e.ua.Family(attempt.UserAgent),
		DeviceType:          e.ua.DeviceType(attempt.UserAgent),
		CountryCode:         e.country.Estimate(header),
		ASN:                 e.asn.Estimate(attempt.IPAddress),
		DeviceSeenBefore:    deviceSeen,
		CookieSeenBefore:    cookieSeen,
	}, nil
}

// failRatio is failed/total over the trailing window, 0.0 when the IP has
// no attempts in the window rather than undefined.
func (e *Extractor) failRatio(ctx context.Context, ip string, since time.Time) (float64, error) {
	failed, total, err := e.store.FailCountsByIP(ctx, ip, since)
	if err != nil {
		return 0, fmt.Errorf("fail counts by ip: %w", err)
	}
	if total == 0 {
		return 0.0, nil
	}
	return float64(failed) / float64(total), nil
}

// burstLength counts consecutive recent attempts from this IP whose gaps are
// at most 60s, scanning most-recent-first. A zero timestamp breaks the chain
// rather than continuing it. The minimum is 1, history or not.
func (e *Extractor) burstLength(ctx context.Context, ip string) (int, error) {
	times, err := e.store.RecentAttemptTimes(ctx, ip, e.cfg.BurstLimit)
	if err != nil {
		return 0, fmt.Errorf("recent attempt times: %w", err)
	}
	if len(times) == 0 {
		return 1, nil
	}

	burst := 1
	previous := times[0]
	for _, current := range times[1:] {
		if previous.IsZero() || current.IsZero() {
			break
		}
		gap := previous.Sub(current)
		if gap < 0 {
			gap = -gap
		}
		if gap > burstGap {
			break
		}
		burst++
		previous = current
	}

	return burst, nil
}

// interAttemptMs is the time since the prior attempt from this IP in
// milliseconds, defaulting to 5 minutes for a fresh IP so the model is not
// biased toward "suspiciously fast".
func (e *Extractor) interAttemptMs(ctx context.Context, ip string, now time.Time) (float64, error) {
	last, err := e.store.LastAttemptTime(ctx, ip)
	if err != nil {
		return 0, fmt.Errorf("last attempt time: %w", err)
	}
	if last == nil || last.IsZero() {
		return defaultInterAttemptMs, nil
	}

	diff := now.Sub(*last).Milliseconds()
	if diff <= 0 {
		return 1000, nil
	}
	return float64(diff), nil
}

// seenFlags computes device and cookie recognition for a resolved user.
// Unresolved users always yield false for both.
func (e *Extractor) seenFlags(ctx context.Context, attempt *models.LoginAttempt) (deviceSeen, cookieSeen bool, err error) {
	if attempt.UserID == nil {
		return false, false, nil
	}
	userID := *attempt.UserID

	deviceSeen, err = e.deviceSeen(ctx, userID, attempt.UserAgent)
	if err != nil {
		return false, false, err
	}

	if attempt.DeviceToken != "" {
		cookieSeen, err = e.cookieSeen(ctx, userID, attempt.DeviceToken)
		if err != nil {
			return false, false, err
		}
	}

	return deviceSeen, cookieSeen, nil
}

func (e *Extractor) deviceSeen(ctx context.Context, userID, userAgent string) (bool, error) {
	exact, err := e.store.HasUserAgent(ctx, userID, userAgent)
	if err != nil {
		return false, fmt.Errorf("user agent lookup: %w", err)
	}
	if exact {
		return true, nil
	}

	blobs, err := e.store.RecentContexts(ctx, userID, deviceContextScanLimit)
	if err != nil {
		return false, fmt.Errorf("recent contexts: %w", err)
	}

	family := e.ua.Family(userAgent)
	for _, blob := range blobs {
		if agent, ok := blob["user_agent"].(string); ok && strings.EqualFold(agent, userAgent) {
			return true, nil
		}
		if features, ok := blob["features"].(map[string]interface{}); ok {
			if loggedFamily, ok := features["ua_family"].(string); ok && strings.EqualFold(loggedFamily, family) {
				return true, nil
			}
		}
	}

	return false, nil
}

func (e *Extractor) cookieSeen(ctx context.Context, userID, deviceToken string) (bool, error) {
	blobs, err := e.store.RecentContexts(ctx, userID, cookieContextScanLimit)
	if err != nil {
		return false, fmt.Errorf("recent contexts: %w", err)
	}

	for _, blob := range blobs {
		logged, ok := blob["device_token"].(string)
		if !ok {
			if features, fok := blob["features"].(map[string]interface{}); fok {
				logged, ok = features["device_token"].(string)
			}
		}
		if !ok || logged == "" {
			continue
		}
		if len(logged) == len(deviceToken) &&
			subtle.ConstantTimeCompare([]byte(logged), []byte(deviceToken)) == 1 {
			return true, nil
		}
	}

	return false, nil
}
