package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchkit/internal/remoteconfig"
)

func newTestHandler(url string) *CheckHandler {
	return &CheckHandler{
		URL:       url,
		ExpiresIn: 3600,
		Now:       func() int64 { return 1700000000 },
	}
}

func TestCheck_Scenarios(t *testing.T) {
	tests := []struct {
		name       string
		stubURL    string
		body       string
		wantStatus int
		wantOK     bool
		wantURL    string
	}{
		{
			name:       "valid request with configured url",
			stubURL:    "https://web.example.com/start",
			body:       `{"af_id":"a1","bundle_id":"com.x","os":"Android","store_id":"123","locale":"en-US","push_token":null}`,
			wantStatus: http.StatusOK,
			wantOK:     true,
			wantURL:    "https://web.example.com/start",
		},
		{
			name:       "valid request without configured url",
			stubURL:    "",
			body:       `{"af_id":"a1","bundle_id":"com.x","os":"iOS","store_id":"123","locale":"en","push_token":"tok"}`,
			wantStatus: http.StatusOK,
			wantOK:     true,
			wantURL:    "",
		},
		{
			name:       "missing bundle id",
			stubURL:    "https://web.example.com",
			body:       `{"os":"Android","store_id":"123"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing store id",
			stubURL:    "https://web.example.com",
			body:       `{"bundle_id":"com.x","os":"Android"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown os",
			stubURL:    "https://web.example.com",
			body:       `{"bundle_id":"com.x","os":"windows","store_id":"123"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid json",
			stubURL:    "https://web.example.com",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(tt.stubURL)

			req := httptest.NewRequest(http.MethodPost, "/recipes/check", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Check(w, req)

			require.Equal(t, tt.wantStatus, w.Code)

			var resp remoteconfig.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantOK, resp.OK)
				assert.Equal(t, tt.wantURL, resp.URL)
				if tt.wantURL != "" {
					require.NotNil(t, resp.Expires)
					assert.Equal(t, int64(1700000000+3600), *resp.Expires)
				}
			} else {
				assert.False(t, resp.OK)
			}
		})
	}
}

func TestRouterEndpoints(t *testing.T) {
	ts := httptest.NewServer(Router(newTestHandler("https://web.example.com")))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/recipes/check", "application/json",
		strings.NewReader(`{"bundle_id":"com.x","os":"Android","store_id":"123"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
