package risk

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/arbiterhq/arbiter/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockLogStore implements LogStore for extractor tests.
type MockLogStore struct {
	CountAttemptsByIPFunc    func(ctx context.Context, ip string, since time.Time) (int, error)
	CountAttemptsByEmailFunc func(ctx context.Context, email string, since time.Time) (int, error)
	FailCountsByIPFunc       func(ctx context.Context, ip string, since time.Time) (int, int, error)
	RecentAttemptTimesFunc   func(ctx context.Context, ip string, limit int) ([]time.Time, error)
	LastAttemptTimeFunc      func(ctx context.Context, ip string) (*time.Time, error)
	RecentContextsFunc       func(ctx context.Context, userID string, limit int) ([]models.ContextBlob, error)
	HasUserAgentFunc         func(ctx context.Context, userID, userAgent string) (bool, error)
}

func (m *MockLogStore) CountAttemptsByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	if m.CountAttemptsByIPFunc != nil {
		return m.CountAttemptsByIPFunc(ctx, ip, since)
	}
	return 0, nil
}

func (m *MockLogStore) CountAttemptsByEmail(ctx context.Context, email string, since time.Time) (int, error) {
	if m.CountAttemptsByEmailFunc != nil {
		return m.CountAttemptsByEmailFunc(ctx, email, since)
	}
	return 0, nil
}

func (m *MockLogStore) FailCountsByIP(ctx context.Context, ip string, since time.Time) (int, int, error) {
	if m.FailCountsByIPFunc != nil {
		return m.FailCountsByIPFunc(ctx, ip, since)
	}
	return 0, 0, nil
}

func (m *MockLogStore) RecentAttemptTimes(ctx context.Context, ip string, limit int) ([]time.Time, error) {
	if m.RecentAttemptTimesFunc != nil {
		return m.RecentAttemptTimesFunc(ctx, ip, limit)
	}
	return nil, nil
}

func (m *MockLogStore) LastAttemptTime(ctx context.Context, ip string) (*time.Time, error) {
	if m.LastAttemptTimeFunc != nil {
		return m.LastAttemptTimeFunc(ctx, ip)
	}
	return nil, nil
}

func (m *MockLogStore) RecentContexts(ctx context.Context, userID string, limit int) ([]models.ContextBlob, error) {
	if m.RecentContextsFunc != nil {
		return m.RecentContextsFunc(ctx, userID, limit)
	}
	return nil, nil
}

func (m *MockLogStore) HasUserAgent(ctx context.Context, userID, userAgent string) (bool, error) {
	if m.HasUserAgentFunc != nil {
		return m.HasUserAgentFunc(ctx, userID, userAgent)
	}
	return false, nil
}

func testExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		ShortWindow: time.Minute,
		LongWindow:  5 * time.Minute,
		RatioWindow: 10 * time.Minute,
		BurstLimit:  10,
	}
}

func testAttempt() *models.LoginAttempt {
	userID := "user123"
	return &models.LoginAttempt{
		Email:       "user@example.com",
		IPAddress:   "203.0.113.7",
		UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		DeviceToken: "aabbccdd00112233",
		UserID:      &userID,
		AttemptTime: time.Now(),
	}
}

func TestExtractor_Extract_EmptyHistory(t *testing.T) {
	store := &MockLogStore{}
	extractor := NewExtractor(store, testExtractorConfig(), slog.Default())

	vector, err := extractor.Extract(context.Background(), testAttempt(), http.Header{})

	require.NoError(t, err)
	assert.Equal(t, 0.0, vector.AttemptsByIPShort)
	assert.Equal(t, 0.0, vector.AttemptsByIPLong)
	assert.Equal(t, 0.0, vector.AttemptsByUserShort)
	assert.Equal(t, 0.0, vector.AttemptsByUserLong)
	assert.Equal(t, 0.0, vector.FailRatioByIP)
	assert.Equal(t, 1.0, vector.BurstLengthIP)
	assert.Equal(t, float64(defaultInterAttemptMs), vector.InterAttemptMs)
	assert.False(t, vector.DeviceSeenBefore)
	assert.False(t, vector.CookieSeenBefore)
}

func TestExtractor_Extract_UnresolvedUserSkipsUserCounts(t *testing.T) {
	emailCalls := 0
	store := &MockLogStore{
		CountAttemptsByEmailFunc: func(ctx context.Context, email string, since time.Time) (int, error) {
			emailCalls++
			return 9, nil
		},
	}
	extractor := NewExtractor(store, testExtractorConfig(), slog.Default())

	attempt := testAttempt()
	attempt.Email = ""
	attempt.UserID = nil

	vector, err := extractor.Extract(context.Background(), attempt, http.Header{})

	require.NoError(t, err)
	assert.Equal(t, 0, emailCalls)
	assert.Equal(t, 0.0, vector.AttemptsByUserShort)
	assert.Equal(t, 0.0, vector.AttemptsByUserLong)
	assert.False(t, vector.DeviceSeenBefore)
	assert.False(t, vector.CookieSeenBefore)
}

func TestExtractor_Extract_WindowedCounts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &MockLogStore{
		CountAttemptsByIPFunc: func(ctx context.Context, ip string, since time.Time) (int, error) {
			if now.Sub(since) <= time.Minute {
				return 3, nil
			}
			return 11, nil
		},
		CountAttemptsByEmailFunc: func(ctx context.Context, email string, since time.Time) (int, error) {
			if now.Sub(since) <= time.Minute {
				return 2, nil
			}
			return 5, nil
		},
	}
	extractor := NewExtractor(store, testExtractorConfig(), slog.Default())
	extractor.now = func() time.Time { return now }

	vector, err := extractor.Extract(context.Background(), testAttempt(), http.Header{})

	require.NoError(t, err)
	assert.Equal(t, 3.0, vector.AttemptsByIPShort)
	assert.Equal(t, 11.0, vector.AttemptsByIPLong)
	assert.Equal(t, 2.0, vector.AttemptsByUserShort)
	assert.Equal(t, 5.0, vector.AttemptsByUserLong)
}

func TestExtractor_Extract_FailRatio(t *testing.T) {
	store := &MockLogStore{
		FailCountsByIPFunc: func(ctx context.Context, ip string, since time.Time) (int, int, error) {
			return 3, 4, nil
		},
	}
	extractor := NewExtractor(store, testExtractorConfig(), slog.Default())

	vector, err := extractor.Extract(context.Background(), testAttempt(), http.Header{})

	require.NoError(t, err)
	assert.InDelta(t, 0.75, vector.FailRatioByIP, 1e-9)
}

func TestExtractor_Extract_StoreErrorAbortsExtraction(t *testing.T) {
	store := &MockLogStore{
		CountAttemptsByIPFunc: func(ctx context.Context, ip string, since time.Time) (int, error) {
			return 0, errors.New("connection refused")
		},
	}
	extractor := NewExtractor(store, testExtractorConfig(), slog.Default())

	vector, err := extractor.Extract(context.Background(), testAttempt(), http.Header{})

	assert.Error(t, err)
	assert.Nil(t, vector)
}

func TestExtractor_BurstLength(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		times []time.Time
		want  int
	}{
		{
			name:  "no history",
			times: nil,
			want:  1,
		},
		{
			name: "tight chain",
			times: []time.Time{
				now,
				now.Add(-30 * time.Second),
				now.Add(-55 * time.Second),
				now.Add(-80 * time.Second),
			},
			want: 4,
		},
		{
			name: "gap over a minute breaks the chain",
			times: []time.Time{
				now,
				now.Add(-30 * time.Second),
				now.Add(-5 * time.Minute),
				now.Add(-5*time.Minute - 10*time.Second),
			},
			want: 2,
		},
		{
			name: "zero timestamp breaks the chain",
			times: []time.Time{
				now,
				{},
				now.Add(-10 * time.Second),
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockLogStore{
				RecentAttemptTimesFunc: func(ctx context.Context, ip string, limit int) ([]time.Time, error) {
					assert.Equal(t, 10, limit)
					return tt.times, nil
				},
			}
			extractor := NewExtractor(store, testExtractorConfig(), slog.Default())

			burst, err := extractor.burstLength(context.Background(), "203.0.113.7")

			require.NoError(t, err)
			assert.Equal(t, tt.want, burst)
		})
	}
}

func TestExtractor_InterAttemptMs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		last *time.Time
		want float64
	}{
		{
			name: "no prior attempt",
			last: nil,
			want: defaultInterAttemptMs,
		},
		{
			name: "prior attempt 2.5s ago",
			last: timePtr(now.Add(-2500 * time.Millisecond)),
			want: 2500,
		},
		{
			name: "clock skew clamps to one second",
			last: timePtr(now.Add(3 * time.Second)),
			want: 1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockLogStore{
				LastAttemptTimeFunc: func(ctx context.Context, ip string) (*time.Time, error) {
					return tt.last, nil
				},
			}
			extractor := NewExtractor(store, testExtractorConfig(), slog.Default())

			got, err := extractor.interAttemptMs(context.Background(), "203.0.113.7", now)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractor_DeviceSeen_ExactUserAgentMatch(t *testing.T) {
	store := &MockLogStore{
		HasUserAgentFunc: func(ctx context.Context, userID, userAgent string) (bool, error) {
			return true, nil
		},
	}
	extractor := NewExtractor(store, testExtractorConfig(), slog.Default())

	vector, err := extractor.Extract(context.Background(), testAttempt(), http.Header{})

	require.NoError(t, err)
	assert.True(t, vector.DeviceSeenBefore)
}

func TestExtractor_DeviceSeen_ContextUserAgentCaseInsensitive(t *testing.T) {
	attempt := testAttempt()
	store := &MockLogStore{
		RecentContextsFunc: func(ctx context.Context, userID string, limit int) ([]models.ContextBlob, error) {
			return []models.ContextBlob{
				{"user_agent": "mozilla/5.0 (x11; linux x86_64) firefox/128.0"},
			}, nil
		},
	}
	extractor := NewExtractor(store, testExtractorConfig(), slog.Default())

	vector, err := extractor.Extract(context.Background(), attempt, http.Header{})

	require.NoError(t, err)
	assert.True(t, vector.DeviceSeenBefore)
}

func TestExtractor_DeviceSeen_FamilyFallback(t *testing.T) {
	store := &MockLogStore{
		RecentContextsFunc: func(ctx context.Context, userID string, limit int) ([]models.ContextBlob, error) {
			return []models.ContextBlob{
				{
					"user_agent": "completely different agent string",
					"features":   map[string]interface{}{"ua_family": "mozilla"},
				},
			}, nil
		},
	}
	extractor := NewExtractor(store, testExtractorConfig(), slog.Default())

	vector, err := extractor.Extract(context.Background(), testAttempt(), http.Header{})

	require.NoError(t, err)
	assert.True(t, vector.DeviceSeenBefore)
}

func TestExtractor_CookieSeen(t *testing.T) {
	attempt := testAttempt()

	tests := []struct {
		name  string
		blobs []models.ContextBlob
		want  bool
	}{
		{
			name: "token logged at top level",
			blobs: []models.ContextBlob{
				{"device_token": attempt.DeviceToken},
			},
			want: true,
		},
		{
			name: "token nested under features",
			blobs: []models.ContextBlob{
				{"features": map[string]interface{}{"device_token": attempt.DeviceToken}},
			},
			want: true,
		},
		{
			name: "different token",
			blobs: []models.ContextBlob{
				{"device_token": "ffffffffffffffff"},
			},
			want: false,
		},
		{
			name:  "no history",
			blobs: nil,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockLogStore{
				RecentContextsFunc: func(ctx context.Context, userID string, limit int) ([]models.ContextBlob, error) {
					return tt.blobs, nil
				},
			}
			extractor := NewExtractor(store, testExtractorConfig(), slog.Default())

			vector, err := extractor.Extract(context.Background(), attempt, http.Header{})

			require.NoError(t, err)
			assert.Equal(t, tt.want, vector.CookieSeenBefore)
		})
	}
}

func TestFeatureVector_ScorerMap_WireKeys(t *testing.T) {
	vector := &models.FeatureVector{
		AttemptsByIPShort: 2,
		FailRatioByIP:     0.5,
		BurstLengthIP:     3,
		InterAttemptMs:    1200,
		UAFamily:          "Mozilla",
		DeviceType:        "Desktop",
		CountryCode:       "DE",
		ASN:               "asn1234",
		DeviceSeenBefore:  true,
	}

	m := vector.ScorerMap()

	assert.Equal(t, 2.0, m["attempts_1m_by_ip"])
	assert.Equal(t, 0.5, m["fail_ratio_10m_by_ip"])
	assert.Equal(t, 3.0, m["burst_length_ip"])
	assert.Equal(t, 1200.0, m["inter_attempt_ms_ip"])
	assert.Equal(t, "Mozilla", m["ua_family"])
	assert.Equal(t, "DE", m["country_ip"])
	assert.Equal(t, "1", m["device_seen_before_user"])
	assert.Equal(t, "0", m["cookie_seen_before_user"])
}

func timePtr(t time.Time) *time.Time {
	return &t
}
