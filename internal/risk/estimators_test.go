package risk

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicUAClassifier_Family(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      string
	}{
		{"browser token", "Mozilla/5.0 (X11; Linux x86_64)", "Mozilla"},
		{"cli client", "curl/8.5.0", "curl"},
		{"version only", "7.68/0", "Unknown"},
		{"empty", "", "Unknown"},
		{"whitespace", "   ", "Unknown"},
	}

	classifier := HeuristicUAClassifier{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifier.Family(tt.userAgent))
		})
	}
}

func TestHeuristicUAClassifier_DeviceType(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      string
	}{
		{"android phone", "Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari", "mobile"},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)", "mobile"},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_0)", "tablet"},
		{"windows desktop", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", "desktop"},
		{"linux desktop", "Mozilla/5.0 (X11; Linux x86_64)", "desktop"},
		{"unrecognized", "SomeBot/1.0", "other"},
	}

	classifier := HeuristicUAClassifier{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifier.DeviceType(tt.userAgent))
		})
	}
}

func TestHeaderCountryEstimator(t *testing.T) {
	estimator := HeaderCountryEstimator{}

	t.Run("edge header wins", func(t *testing.T) {
		header := http.Header{}
		header.Set("Cf-Ipcountry", "de")
		header.Set("Accept-Language", "en-US")
		assert.Equal(t, "DE", estimator.Estimate(header))
	})

	t.Run("header precedence order", func(t *testing.T) {
		header := http.Header{}
		header.Set("X-Geoip-Country-Code", "FR")
		header.Set("X-Appengine-Country", "BR")
		assert.Equal(t, "FR", estimator.Estimate(header))
	})

	t.Run("accept language region fallback", func(t *testing.T) {
		header := http.Header{}
		header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
		assert.Equal(t, "BR", estimator.Estimate(header))
	})

	t.Run("underscore locale", func(t *testing.T) {
		header := http.Header{}
		header.Set("Accept-Language", "en_GB")
		assert.Equal(t, "GB", estimator.Estimate(header))
	})

	t.Run("invalid header value skipped", func(t *testing.T) {
		header := http.Header{}
		header.Set("Cf-Ipcountry", "XXX")
		header.Set("X-Geoip-Country-Code", "NL")
		assert.Equal(t, "NL", estimator.Estimate(header))
	})

	t.Run("no hints", func(t *testing.T) {
		assert.Equal(t, "ZZ", estimator.Estimate(http.Header{}))
	})
}

func TestHashASNEstimator(t *testing.T) {
	estimator := HashASNEstimator{}

	t.Run("stable for the same ip", func(t *testing.T) {
		first := estimator.Estimate("203.0.113.7")
		second := estimator.Estimate("203.0.113.7")
		assert.Equal(t, first, second)
		assert.Regexp(t, `^asn\d{1,4}$`, first)
	})

	t.Run("case insensitive for ipv6", func(t *testing.T) {
		assert.Equal(t, estimator.Estimate("2001:DB8::1"), estimator.Estimate("2001:db8::1"))
	})

	t.Run("invalid ip", func(t *testing.T) {
		assert.Equal(t, "asn0", estimator.Estimate("not-an-ip"))
		assert.Equal(t, "asn0", estimator.Estimate(""))
	})
}
