package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/arbiterhq/arbiter/internal/auth"
	"github.com/arbiterhq/arbiter/internal/config"
	"github.com/arbiterhq/arbiter/internal/database"
	"github.com/arbiterhq/arbiter/internal/handlers"
	middlewareCustom "github.com/arbiterhq/arbiter/internal/middleware"
	"github.com/arbiterhq/arbiter/internal/risk"
	"github.com/arbiterhq/arbiter/internal/routes"
	"github.com/arbiterhq/arbiter/internal/services"
	pkghttp "github.com/arbiterhq/arbiter/pkg/http"
	pkglogger "github.com/arbiterhq/arbiter/pkg/logger"
)

// SentCode is one captured step-up code delivery
type SentCode struct {
	To        string
	Code      string
	ExpiresAt time.Time
}

// CaptureEmailService records step-up codes for test assertions
type CaptureEmailService struct {
	SentCodes []SentCode
	mu        sync.Mutex
}

func (c *CaptureEmailService) SendStepUpCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SentCodes = append(c.SentCodes, SentCode{To: email, Code: code, ExpiresAt: expiresAt})
	return nil
}

// LastCode returns the most recent delivered code, empty when none
func (c *CaptureEmailService) LastCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.SentCodes) == 0 {
		return ""
	}
	return c.SentCodes[len(c.SentCodes)-1].Code
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *CaptureEmailService
	Config       *config.Config
}

// NewTestServer initializes a complete HTTP server with real database and
// captured email delivery. The scorer command controls the risk pipeline:
// empty disables scoring so every attempt is allowed.
func NewTestServer(db *database.DB, scorerCommand string) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:           "test-secret-32-characters-long-for-testing",
			SessionTokenExpiry:  15 * time.Minute,
			RememberTokenExpiry: 7 * 24 * time.Hour,
			TimingDelayBaseMs:   0,
			TimingDelayRandomMs: 0,
		},
		Risk: config.RiskConfig{
			ShortWindow:      1 * time.Minute,
			LongWindow:       5 * time.Minute,
			RatioWindow:      10 * time.Minute,
			BurstLimit:       10,
			ScorerCommand:    scorerCommand,
			ScorerTimeout:    5 * time.Second,
			StepUpTTL:        10 * time.Minute,
			StepUpMaxRetries: 5,
			OTPDigits:        6,
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			TrustedProxies: []string{},
			CookieSameSite: "lax",
		},
	}

	userRepo, loginLogRepo, stepUpRepo := InitializeRepositories(db)

	captureEmail := &CaptureEmailService{}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenExpiry)
	rememberManager := auth.NewRememberManager(cfg.Auth.JWTSecret, cfg.Auth.RememberTokenExpiry)
	otpManager := auth.NewOTPManager(cfg.Risk.OTPDigits)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})
	auditLogger := pkglogger.NewAuditLogger(logger)

	extractor := risk.NewExtractor(loginLogRepo, risk.ExtractorConfig{
		ShortWindow: cfg.Risk.ShortWindow,
		LongWindow:  cfg.Risk.LongWindow,
		RatioWindow: cfg.Risk.RatioWindow,
		BurstLimit:  cfg.Risk.BurstLimit,
	}, logger)
	scorer := risk.NewProcessScorer(cfg.Risk.ScorerCommand, cfg.Risk.ScorerTimeout, logger)
	engine := risk.NewEngine(extractor, scorer, risk.NopRefiner{}, logger)

	loginService := services.NewLoginService(
		userRepo,
		loginLogRepo,
		stepUpRepo,
		engine,
		tokenManager,
		rememberManager,
		otpManager,
		captureEmail,
		timingDelay,
		logger,
		auditLogger,
		cfg.Risk.StepUpTTL,
	)
	stepUpService := services.NewStepUpService(
		stepUpRepo,
		loginLogRepo,
		otpManager,
		tokenManager,
		rememberManager,
		timingDelay,
		logger,
		auditLogger,
		cfg.Risk.StepUpMaxRetries,
	)
	activityService := services.NewActivityService(loginLogRepo, logger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieSettings := handlers.CookieSettings{
		Config: auth.CookieConfig{
			SameSite: cfg.Server.CookieSameSite,
		},
		SessionMaxAge:  int(cfg.Auth.SessionTokenExpiry.Seconds()),
		RememberMaxAge: int(cfg.Auth.RememberTokenExpiry.Seconds()),
		DeviceMaxAge:   int((365 * 24 * time.Hour).Seconds()),
		StepUpMaxAge:   int(cfg.Risk.StepUpTTL.Seconds()),
	}
	authHandler := handlers.NewAuthHandler(loginService, stepUpService, ipConfig, cookieSettings)
	activityHandler := handlers.NewActivityHandler(activityService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, activityHandler, tokenManager, middlewareCustom.DefaultAuthRateLimit())

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: captureEmail,
		Config:       cfg,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server carrying the given cookies
func (ts *TestServer) Request(method, path string, body interface{}, cookies []*http.Cookie) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "integration-test")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	return http.DefaultClient.Do(req)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// FindCookie returns a named cookie from the response, nil when absent
func FindCookie(resp *http.Response, name string) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
