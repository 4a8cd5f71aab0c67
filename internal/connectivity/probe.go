package connectivity

import (
	"context"
	"net/http"
	"time"

	"launchkit/internal/observability"
)

// Probe answers "can we reach the internet right now". No retries at
// this layer; retry policy belongs to the orchestrator.
type Probe interface {
	Reachable(ctx context.Context) bool
}

// HTTPProbe checks reachability with a single request against a
// generate_204-style endpoint. Any transport error counts as
// unreachable.
type HTTPProbe struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{
		URL:     url,
		Client:  &http.Client{},
		Timeout: 5 * time.Second,
	}
}

func (p *HTTPProbe) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		observability.ProbeChecks.WithLabelValues("down").Inc()
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		observability.ProbeChecks.WithLabelValues("down").Inc()
		return false
	}
	resp.Body.Close()

	// The endpoint answering at all means both the link and the
	// internet path are up; server errors mean a captive portal or
	// broken path.
	if resp.StatusCode >= http.StatusInternalServerError {
		observability.ProbeChecks.WithLabelValues("down").Inc()
		return false
	}
	observability.ProbeChecks.WithLabelValues("up").Inc()
	return true
}
