package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arbiterhq/arbiter/internal/models"
	"github.com/arbiterhq/arbiter/internal/services"
	pkghttp "github.com/arbiterhq/arbiter/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// ResponseCookie returns a named Set-Cookie from the recorder, nil when absent
func ResponseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	LoginFunc              func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	ResumeFromRememberFunc func(ctx context.Context, token string) (string, error)

	LastRequest *services.LoginRequest
}

func (m *MockLoginService) Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
	m.LastRequest = &req
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, req)
}

func (m *MockLoginService) ResumeFromRemember(ctx context.Context, token string) (string, error) {
	if m.ResumeFromRememberFunc == nil {
		return "", models.ErrUnauthorized
	}
	return m.ResumeFromRememberFunc(ctx, token)
}

// MockStepUpService implements StepUpServiceInterface for testing
type MockStepUpService struct {
	VerifyFunc func(ctx context.Context, sessionID, code, ipAddress, userAgent string) (*services.StepUpResult, error)

	LastSessionID string
	LastCode      string
}

func (m *MockStepUpService) Verify(ctx context.Context, sessionID, code, ipAddress, userAgent string) (*services.StepUpResult, error) {
	m.LastSessionID = sessionID
	m.LastCode = code
	if m.VerifyFunc == nil {
		return nil, models.ErrChallengeExpired
	}
	return m.VerifyFunc(ctx, sessionID, code, ipAddress, userAgent)
}

// MockActivityService implements ActivityServiceInterface for testing
type MockActivityService struct {
	FeedFunc func(ctx context.Context, page, pageSize int) (*services.ActivityFeed, error)

	LastPage     int
	LastPageSize int
}

func (m *MockActivityService) Feed(ctx context.Context, page, pageSize int) (*services.ActivityFeed, error) {
	m.LastPage = page
	m.LastPageSize = pageSize
	if m.FeedFunc == nil {
		return &services.ActivityFeed{}, nil
	}
	return m.FeedFunc(ctx, page, pageSize)
}
