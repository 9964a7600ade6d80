package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arbiterhq/arbiter/internal/auth"
	"github.com/arbiterhq/arbiter/internal/models"
	"github.com/arbiterhq/arbiter/internal/services"
	pkghttp "github.com/arbiterhq/arbiter/pkg/http"
)

// LoginServiceInterface defines the login business logic
type LoginServiceInterface interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	ResumeFromRemember(ctx context.Context, token string) (string, error)
}

// StepUpServiceInterface defines the challenge verification logic
type StepUpServiceInterface interface {
	Verify(ctx context.Context, sessionID, code, ipAddress, userAgent string) (*services.StepUpResult, error)
}

// CookieSettings bundles the cookie policy and lifetimes in seconds
type CookieSettings struct {
	Config         auth.CookieConfig
	SessionMaxAge  int
	RememberMaxAge int
	DeviceMaxAge   int
	StepUpMaxAge   int
}

// AuthHandler handles the login, step-up, and logout endpoints
type AuthHandler struct {
	login    LoginServiceInterface
	stepUp   StepUpServiceInterface
	ipConfig *pkghttp.IPConfig
	cookies  CookieSettings
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(login LoginServiceInterface, stepUp StepUpServiceInterface, ipConfig *pkghttp.IPConfig, cookies CookieSettings) *AuthHandler {
	return &AuthHandler{
		login:    login,
		stepUp:   stepUp,
		ipConfig: ipConfig,
		cookies:  cookies,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Remember bool   `json:"remember"`
}

// VerifyRequest represents the request body for step-up verification
type VerifyRequest struct {
	Code string `json:"code" validate:"required,min=6,max=8,numeric"`
}

// LoginResponse represents the response for a concluded login call
type LoginResponse struct {
	Status  string `json:"status"` // "ok" or "step_up"
	Message string `json:"message,omitempty"`
}

// Login handles user login. A blocked attempt and a wrong password return
// different statuses on purpose; the block message mirrors what the risk
// pipeline told the user historically.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	deviceToken := auth.GetCookie(r, auth.DeviceCookieName)
	if deviceToken == "" {
		minted, err := auth.GenerateDeviceToken()
		if err == nil {
			deviceToken = minted
			auth.SetDeviceCookie(w, deviceToken, h.cookies.DeviceMaxAge, h.cookies.Config)
		}
	}

	result, err := h.login.Login(r.Context(), services.LoginRequest{
		Email:       req.Email,
		Password:    req.Password,
		Remember:    req.Remember,
		IPAddress:   pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:   r.Header.Get("User-Agent"),
		DeviceToken: deviceToken,
		SessionID:   auth.GetCookie(r, auth.StepUpCookieName),
		Headers:     r.Header,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAttemptBlocked):
			pkghttp.WriteForbidden(w, "Access temporarily blocked by risk controls. Please try again later.")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid email or password")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Please provide both email and password")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	if result.ChallengeIssued() {
		auth.SetStepUpCookie(w, result.Challenge.SessionID, h.cookies.StepUpMaxAge, h.cookies.Config)
		pkghttp.WriteJSON(w, http.StatusAccepted, LoginResponse{
			Status:  "step_up",
			Message: "Additional verification required. Enter the code we sent to your email.",
		})
		return
	}

	h.grantCookies(w, result.SessionToken, result.RememberToken)
	auth.ClearStepUpCookie(w, h.cookies.Config)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{Status: "ok"})
}

// VerifyStepUp handles code submission for a pending challenge
func (h *AuthHandler) VerifyStepUp(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sessionID := auth.GetCookie(r, auth.StepUpCookieName)
	result, err := h.stepUp.Verify(
		r.Context(),
		sessionID,
		req.Code,
		pkghttp.ExtractClientIP(r, h.ipConfig),
		r.Header.Get("User-Agent"),
	)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrChallengeExpired):
			auth.ClearStepUpCookie(w, h.cookies.Config)
			pkghttp.WriteError(w, http.StatusGone, "challenge_expired", "The verification challenge has expired. Please sign in again.")
		case errors.Is(err, models.ErrChallengeExhausted):
			auth.ClearStepUpCookie(w, h.cookies.Config)
			pkghttp.WriteForbidden(w, "Too many incorrect codes. Please sign in again.")
		case errors.Is(err, models.ErrChallengeFailed):
			pkghttp.WriteUnauthorized(w, "Incorrect verification code")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.ClearStepUpCookie(w, h.cookies.Config)
	h.grantCookies(w, result.SessionToken, result.RememberToken)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{Status: "ok"})
}

// Resume exchanges a valid remember-me cookie for a fresh session
func (h *AuthHandler) Resume(w http.ResponseWriter, r *http.Request) {
	token := auth.GetCookie(r, auth.RememberCookieName)
	if token == "" {
		pkghttp.WriteUnauthorized(w, "No remembered session")
		return
	}

	sessionToken, err := h.login.ResumeFromRemember(r.Context(), token)
	if err != nil {
		auth.ClearRememberCookie(w, h.cookies.Config)
		pkghttp.WriteUnauthorized(w, "Remembered session is no longer valid")
		return
	}

	auth.SetSessionCookie(w, sessionToken, h.cookies.SessionMaxAge, h.cookies.Config)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{Status: "ok"})
}

// Logout clears the session. The device cookie survives: it identifies the
// browser for future risk decisions, not the signed-in user.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.cookies.Config)
	auth.ClearRememberCookie(w, h.cookies.Config)
	auth.ClearStepUpCookie(w, h.cookies.Config)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{Status: "ok"})
}

func (h *AuthHandler) grantCookies(w http.ResponseWriter, sessionToken, rememberToken string) {
	auth.SetSessionCookie(w, sessionToken, h.cookies.SessionMaxAge, h.cookies.Config)
	if rememberToken != "" {
		auth.SetRememberCookie(w, rememberToken, h.cookies.RememberMaxAge, h.cookies.Config)
	} else {
		auth.ClearRememberCookie(w, h.cookies.Config)
	}
}
