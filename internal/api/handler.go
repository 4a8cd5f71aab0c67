package api

import (
	"encoding/json"
	"net/http"

	"launchkit/internal/remoteconfig"
)

// CheckRequest is the subset of the decision payload the stub
// validates. The attribution pass-through fields are accepted and
// ignored.
type CheckRequest struct {
	AfID              string  `json:"af_id"`
	BundleID          string  `json:"bundle_id"`
	OS                string  `json:"os"`
	StoreID           string  `json:"store_id"`
	Locale            string  `json:"locale"`
	PushToken         *string `json:"push_token"`
	FirebaseProjectID string  `json:"firebase_project_id,omitempty"`
}

// CheckHandler serves the remote config decision endpoint for local
// development: a fixed url/expiry, or an app-mode answer when no URL
// is configured.
type CheckHandler struct {
	// URL returned to clients; "" answers ok without a url.
	URL string
	// ExpiresIn seconds from now for the returned expiry.
	ExpiresIn int64
	// Now is injectable for tests.
	Now func() int64
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *CheckHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, remoteconfig.Response{OK: false, Message: "invalid json"})
		return
	}
	if req.BundleID == "" || req.OS == "" || req.StoreID == "" {
		writeJSON(w, http.StatusBadRequest, remoteconfig.Response{OK: false, Message: "missing required fields"})
		return
	}
	if req.OS != "Android" && req.OS != "iOS" {
		writeJSON(w, http.StatusBadRequest, remoteconfig.Response{OK: false, Message: "unknown os"})
		return
	}

	if h.URL == "" {
		writeJSON(w, http.StatusOK, remoteconfig.Response{OK: true})
		return
	}
	expires := h.Now() + h.ExpiresIn
	writeJSON(w, http.StatusOK, remoteconfig.Response{
		OK:      true,
		URL:     h.URL,
		Expires: &expires,
	})
}
