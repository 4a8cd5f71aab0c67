package remoteconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"launchkit/internal/attribution"
	"launchkit/internal/observability"
	"launchkit/internal/store"
)

// Response is the remote decision endpoint's reply.
type Response struct {
	OK      bool   `json:"ok"`
	URL     string `json:"url,omitempty"`
	Expires *int64 `json:"expires,omitempty"`
	Message string `json:"message,omitempty"`
}

// Resolver issues the remote config request and persists the resolved
// mode. It never returns an error: every failure resolves to an
// ok:false response and a poisoned saved record.
type Resolver struct {
	st  *store.Store
	col *attribution.Collector

	Endpoint          string
	BundleID          string
	StoreID           string
	FirebaseProjectID string
	OS                string // "Android" or "iOS"

	Client  *http.Client
	Timeout time.Duration

	now func() time.Time
}

func NewResolver(st *store.Store, col *attribution.Collector, endpoint, bundleID, storeID, firebaseProjectID, osName string) *Resolver {
	return &Resolver{
		st:                st,
		col:               col,
		Endpoint:          endpoint,
		BundleID:          bundleID,
		StoreID:           storeID,
		FirebaseProjectID: firebaseProjectID,
		OS:                osName,
		Client:            &http.Client{},
		Timeout:           10 * time.Second,
		now:               time.Now,
	}
}

// RequestConfig resolves the launch mode against the remote endpoint.
// A saved record already marked failed short-circuits to ok:false
// without a network call; only a whole-record overwrite by a later
// success clears that flag.
func (r *Resolver) RequestConfig(ctx context.Context, pushToken, locale string) Response {
	saved, err := r.st.SavedConfig(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("read saved config")
	}
	if saved != nil && saved.ConfigRequestFailed {
		observability.ConfigRequests.WithLabelValues("poisoned").Inc()
		return Response{OK: false, Message: "Previous config request failed"}
	}

	payload := r.buildPayload(ctx, pushToken, locale)
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("encode config request")
		r.poison(ctx)
		return Response{OK: false, Message: "Config request failed"}
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.Endpoint, bytes.NewReader(raw))
	if err != nil {
		log.Error().Err(err).Msg("build config request")
		r.poison(ctx)
		return Response{OK: false, Message: "Config request failed"}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Superseded run (Retry cancelled us); not an endpoint
			// failure, so the record stays untouched.
			return Response{OK: false, Message: "Config request canceled"}
		}
		log.Warn().Err(err).Msg("config request failed")
		observability.ConfigRequests.WithLabelValues("error").Inc()
		r.poison(ctx)
		return Response{OK: false, Message: "Config request failed"}
	}
	defer resp.Body.Close()

	var data Response
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Warn().Err(err).Msg("decode config response")
		observability.ConfigRequests.WithLabelValues("error").Inc()
		r.poison(ctx)
		return Response{OK: false, Message: "Config request failed"}
	}

	if !data.OK {
		observability.ConfigRequests.WithLabelValues("app").Inc()
		r.poison(ctx)
		return data
	}

	data.URL = NormalizeURL(data.URL)
	if data.URL == "" {
		observability.ConfigRequests.WithLabelValues("app").Inc()
		r.poison(ctx)
		return data
	}

	expires := r.now().Unix() + 24*60*60
	if data.Expires != nil {
		expires = *data.Expires
	}
	url := data.URL
	if err := r.st.SaveConfig(ctx, store.SavedConfigData{
		URL:                 &url,
		Expires:             &expires,
		Mode:                store.ModeWebView,
		IsFirstLaunch:       false,
		ConfigRequestFailed: false,
	}); err != nil {
		log.Warn().Err(err).Msg("persist config")
	}
	observability.ConfigRequests.WithLabelValues("webview").Inc()
	return data
}

// poison records the failed resolution: app mode, sticky failure flag.
func (r *Resolver) poison(ctx context.Context) {
	if err := r.st.SaveConfig(ctx, store.SavedConfigData{
		URL:                 nil,
		Expires:             nil,
		Mode:                store.ModeApp,
		IsFirstLaunch:       false,
		ConfigRequestFailed: true,
	}); err != nil {
		log.Warn().Err(err).Msg("persist failed config")
	}
}

func (r *Resolver) buildPayload(ctx context.Context, pushToken, locale string) map[string]any {
	payload := map[string]any{}
	for k, v := range r.col.ConversionData() {
		payload[k] = v
	}

	payload["af_id"] = r.col.AttributionID(ctx)
	payload["bundle_id"] = r.BundleID
	payload["os"] = r.OS
	payload["store_id"] = r.StoreID
	payload["locale"] = ResolveLocale(locale)
	if pushToken != "" {
		payload["push_token"] = pushToken
	} else {
		payload["push_token"] = nil
	}
	if r.FirebaseProjectID != "" {
		payload["firebase_project_id"] = r.FirebaseProjectID
	}
	return payload
}

// NormalizeURL prefixes https:// when the URL has no scheme.
// Idempotent; "" passes through.
func NormalizeURL(url string) string {
	if url == "" {
		return ""
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return "https://" + url
}

// ResolveLocale returns the explicit locale when given, else the
// device locale from the environment, else "en".
func ResolveLocale(locale string) string {
	if locale != "" {
		return locale
	}
	for _, k := range []string{"LC_ALL", "LANG"} {
		v := os.Getenv(k)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		// "en_US.UTF-8" -> "en-US"
		if i := strings.IndexByte(v, '.'); i >= 0 {
			v = v[:i]
		}
		if v != "" {
			return strings.ReplaceAll(v, "_", "-")
		}
	}
	return "en"
}

// IsFirstLaunch reports whether no launch has completed yet. Absent or
// unreadable state counts as a first launch.
func (r *Resolver) IsFirstLaunch(ctx context.Context) bool {
	saved, err := r.st.SavedConfig(ctx)
	if err != nil || saved == nil {
		return true
	}
	return saved.IsFirstLaunch
}

// AppMode returns the last persisted non-transient mode, "" when none.
func (r *Resolver) AppMode(ctx context.Context) store.Mode {
	saved, err := r.st.SavedConfig(ctx)
	if err != nil || saved == nil {
		return ""
	}
	if saved.Mode == store.ModeWebView || saved.Mode == store.ModeApp {
		return saved.Mode
	}
	return ""
}

// SetAppMode updates the persisted mode, reading the latest record
// immediately before the whole-record write. A missing record is
// created so a forced fallback survives restarts.
func (r *Resolver) SetAppMode(ctx context.Context, mode store.Mode) {
	saved, err := r.st.SavedConfig(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("read saved config")
		return
	}
	if saved == nil {
		saved = &store.SavedConfigData{IsFirstLaunch: true}
	}
	saved.Mode = mode
	if err := r.st.SaveConfig(ctx, *saved); err != nil {
		log.Warn().Err(err).Msg("persist mode")
	}
}

// MarkFirstLaunchComplete flips the first-launch flag on the persisted
// record, if one exists.
func (r *Resolver) MarkFirstLaunchComplete(ctx context.Context) {
	saved, err := r.st.SavedConfig(ctx)
	if err != nil || saved == nil {
		return
	}
	saved.IsFirstLaunch = false
	if err := r.st.SaveConfig(ctx, *saved); err != nil {
		log.Warn().Err(err).Msg("persist first launch flag")
	}
}

// CurrentURL returns the webview URL to show right now: the cached URL
// while unexpired, otherwise a fresh resolution with fallback to the
// cached URL when the refresh yields nothing.
func (r *Resolver) CurrentURL(ctx context.Context) string {
	saved, err := r.st.SavedConfig(ctx)
	if err != nil {
		return ""
	}
	if saved == nil {
		resp := r.RequestConfig(ctx, "", "")
		if resp.OK {
			return resp.URL
		}
		return ""
	}
	if !saved.Expired(r.now()) && saved.URL != nil {
		return *saved.URL
	}
	resp := r.RequestConfig(ctx, "", "")
	if resp.OK && resp.URL != "" {
		return resp.URL
	}
	if saved.URL != nil {
		return *saved.URL
	}
	return ""
}

// UpdatePushToken re-resolves config carrying a fresh push token.
func (r *Resolver) UpdatePushToken(ctx context.Context, token string) {
	_ = r.RequestConfig(ctx, token, "")
}
