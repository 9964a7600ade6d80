package risk

import (
	"hash/crc32"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// UAClassifier derives coarse user-agent signals for the feature vector.
// Implementations are cheap heuristics standing in for a real UA parser.
type UAClassifier interface {
	Family(userAgent string) string
	DeviceType(userAgent string) string
}

// CountryEstimator resolves a request to a two-letter country code.
// Implementations are placeholders for a real geo-IP service.
type CountryEstimator interface {
	Estimate(header http.Header) string
}

// ASNEstimator resolves an IP to an ASN label. Implementations are
// placeholders for a real ASN lookup.
type ASNEstimator interface {
	Estimate(ip string) string
}

// HeuristicUAClassifier classifies user agents by substring matching.
type HeuristicUAClassifier struct{}

var nonAlpha = regexp.MustCompile(`[^A-Za-z]+`)

// Family returns the leading product token of the user-agent string with
// non-letters stripped, or "Unknown"
func (HeuristicUAClassifier) Family(userAgent string) string {
	fields := strings.Fields(strings.TrimSpace(userAgent))
	if len(fields) == 0 {
		return "Unknown"
	}

	candidate := nonAlpha.ReplaceAllString(fields[0], "")
	if candidate == "" {
		return "Unknown"
	}
	return candidate
}

// DeviceType buckets the user agent into mobile, tablet, desktop, or other
func (HeuristicUAClassifier) DeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		return "mobile"
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "windows"), strings.Contains(ua, "macintosh"), strings.Contains(ua, "linux"):
		return "desktop"
	}
	return "other"
}

// HeaderCountryEstimator reads country hints from edge-provided headers,
// falling back to Accept-Language, then "ZZ".
type HeaderCountryEstimator struct{}

var countryHeaderNames = []string{
	"Cf-Ipcountry",
	"X-Geoip-Country-Code",
	"X-Appengine-Country",
}

func (HeaderCountryEstimator) Estimate(header http.Header) string {
	for _, name := range countryHeaderNames {
		if code := normalizeCountryCode(header.Get(name)); code != "" {
			return code
		}
	}

	for _, part := range strings.Split(header.Get("Accept-Language"), ",") {
		// locale tags look like "en-US" or "pt_BR"; the region wins,
		// the bare language code is a weak fallback
		tag := strings.SplitN(strings.TrimSpace(part), ";", 2)[0]
		pieces := strings.FieldsFunc(tag, func(r rune) bool { return r == '-' || r == '_' })
		for i := len(pieces) - 1; i >= 0; i-- {
			if code := normalizeCountryCode(pieces[i]); code != "" {
				return code
			}
		}
	}

	return "ZZ"
}

func normalizeCountryCode(value string) string {
	value = strings.ToUpper(strings.TrimSpace(value))
	if len(value) != 2 {
		return ""
	}
	for _, r := range value {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return value
}

// HashASNEstimator maps an IP to a stable pseudo-ASN by hashing. Invalid
// IPs collapse to "asn0".
type HashASNEstimator struct{}

func (HashASNEstimator) Estimate(ip string) string {
	if net.ParseIP(strings.TrimSpace(ip)) == nil {
		return "asn0"
	}

	normalized := strings.ToLower(strings.TrimSpace(ip))
	sum := crc32.ChecksumIEEE([]byte(normalized))
	return "asn" + strconv.Itoa(int(sum%10000))
}
