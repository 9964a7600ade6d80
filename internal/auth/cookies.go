package auth

import (
	"net/http"
	"time"
)

// Cookie names used across the login flow
const (
	SessionCookieName  = "session_token"
	RememberCookieName = "remember_me"
	DeviceCookieName   = "device_token"
	StepUpCookieName   = "step_up_session"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

// SetSessionCookie sets the session JWT in an httpOnly cookie
func SetSessionCookie(w http.ResponseWriter, token string, maxAge int, config CookieConfig) {
	setCookie(w, SessionCookieName, token, maxAge, true, config)
}

// ClearSessionCookie clears the session cookie
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	setCookie(w, SessionCookieName, "", -1, true, config)
}

// SetRememberCookie sets the signed remember-me token in an httpOnly cookie
func SetRememberCookie(w http.ResponseWriter, token string, maxAge int, config CookieConfig) {
	setCookie(w, RememberCookieName, token, maxAge, true, config)
}

// ClearRememberCookie clears the remember-me cookie
func ClearRememberCookie(w http.ResponseWriter, config CookieConfig) {
	setCookie(w, RememberCookieName, "", -1, true, config)
}

// SetDeviceCookie sets the long-lived device recognition token. It survives
// logout on purpose; it identifies the browser, not the session.
func SetDeviceCookie(w http.ResponseWriter, token string, maxAge int, config CookieConfig) {
	setCookie(w, DeviceCookieName, token, maxAge, true, config)
}

// SetStepUpCookie sets the pending challenge session id
func SetStepUpCookie(w http.ResponseWriter, sessionID string, maxAge int, config CookieConfig) {
	setCookie(w, StepUpCookieName, sessionID, maxAge, true, config)
}

// ClearStepUpCookie clears the pending challenge session id
func ClearStepUpCookie(w http.ResponseWriter, config CookieConfig) {
	setCookie(w, StepUpCookieName, "", -1, true, config)
}

// GetCookie retrieves a named cookie value, empty when absent
func GetCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func setCookie(w http.ResponseWriter, name, value string, maxAge int, httpOnly bool, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	}
	if maxAge > 0 {
		cookie.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	http.SetCookie(w, cookie)
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
