package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/arbiterhq/arbiter/internal/services"
	pkghttp "github.com/arbiterhq/arbiter/pkg/http"
)

// ActivityServiceInterface defines the activity feed logic
type ActivityServiceInterface interface {
	Feed(ctx context.Context, page, pageSize int) (*services.ActivityFeed, error)
}

// ActivityHandler serves the login activity feed
type ActivityHandler struct {
	activity ActivityServiceInterface
}

// NewActivityHandler creates a new ActivityHandler
func NewActivityHandler(activity ActivityServiceInterface) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// Feed returns one page of login activity with aggregate counts
func (h *ActivityHandler) Feed(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 0)

	feed, err := h.activity.Feed(r.Context(), page, pageSize)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, feed)
}

// queryInt parses an integer query parameter, falling back on absence or
// garbage. Range clamping belongs to the service.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
