package attribution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"launchkit/internal/cache"
	"launchkit/internal/observability"
	"launchkit/internal/store"
)

// SDK is the boundary to the native attribution SDK. Implementations
// wrap the vendor library; NopSDK stands in when none is linked.
type SDK interface {
	Init(devKey, appID string) error
	// DeviceID returns the SDK's attribution identifier, "" if unknown.
	DeviceID(ctx context.Context) (string, error)
	// OnConversionData registers the conversion-data callback. The SDK
	// may invoke it any number of times, from any goroutine.
	OnConversionData(fn func(ConversionData))
	LogEvent(ctx context.Context, name string, values map[string]any) error
}

// NopSDK is the no-attribution stand-in: no device id, no conversion
// callbacks, init always succeeds.
type NopSDK struct{}

func (NopSDK) Init(string, string) error                              { return nil }
func (NopSDK) DeviceID(context.Context) (string, error)               { return "", nil }
func (NopSDK) OnConversionData(func(ConversionData))                  {}
func (NopSDK) LogEvent(context.Context, string, map[string]any) error { return nil }

// Collector wraps the attribution SDK and the network's server-side
// conversion-data endpoint. One instance per process; re-initializing
// with a changed devKey/appID reconfigures in place.
type Collector struct {
	sdk    SDK
	st     *store.Store
	client *http.Client

	// GCDEndpoint is the attribution network's get-conversion-data URL.
	GCDEndpoint string
	// OrganicRetryDelay is how long to wait before the single automatic
	// refresh scheduled when a snapshot reports organic.
	OrganicRetryDelay time.Duration
	// PollInterval paces WaitForConversionData.
	PollInterval time.Duration
	// HTTPTimeout bounds the server-side conversion-data request.
	HTTPTimeout time.Duration

	mu           sync.Mutex
	devKey       string
	appID        string
	initialized  bool
	retryPending bool

	snap cache.Snapshot[ConversionData]
}

func NewCollector(sdk SDK, st *store.Store, gcdEndpoint string) *Collector {
	return &Collector{
		sdk:               sdk,
		st:                st,
		client:            &http.Client{},
		GCDEndpoint:       gcdEndpoint,
		OrganicRetryDelay: 5 * time.Second,
		PollInterval:      100 * time.Millisecond,
		HTTPTimeout:       10 * time.Second,
	}
}

// Initialize wires up the SDK and installs the conversion-data
// listener. Idempotent; calling again with the same keys is a no-op,
// changed keys reconfigure in place.
func (c *Collector) Initialize(devKey, appID string) error {
	c.mu.Lock()
	if c.initialized && c.devKey == devKey && c.appID == appID {
		c.mu.Unlock()
		return nil
	}
	c.devKey = devKey
	c.appID = appID
	c.mu.Unlock()

	if err := c.sdk.Init(devKey, appID); err != nil {
		return fmt.Errorf("attribution init: %w", err)
	}

	c.mu.Lock()
	first := !c.initialized
	c.initialized = true
	c.mu.Unlock()

	if first {
		c.sdk.OnConversionData(c.captureConversionData)
	}
	return nil
}

// captureConversionData stores the latest snapshot. An organic
// classification schedules exactly one background refresh after
// OrganicRetryDelay; the network may finalize a non-organic
// attribution only after the install callback fires.
func (c *Collector) captureConversionData(d ConversionData) {
	if d == nil {
		return
	}
	c.snap.Store(d)

	if !d.Organic() {
		return
	}
	c.mu.Lock()
	if c.retryPending {
		c.mu.Unlock()
		return
	}
	c.retryPending = true
	c.mu.Unlock()

	go func() {
		time.Sleep(c.OrganicRetryDelay)
		if err := c.RetryConversionData(context.Background()); err != nil {
			log.Warn().Err(err).Msg("organic conversion refresh failed")
		}
		c.mu.Lock()
		c.retryPending = false
		c.mu.Unlock()
	}()
}

// ConversionData returns the current snapshot, nil when none arrived.
func (c *Collector) ConversionData() ConversionData {
	d, ok := c.snap.Load()
	if !ok {
		return nil
	}
	return d
}

// WaitForConversionData returns the snapshot as soon as one is
// available, polling until timeout. Resolves to nil on timeout, never
// an error.
func (c *Collector) WaitForConversionData(ctx context.Context, timeout time.Duration) ConversionData {
	if d := c.ConversionData(); d != nil {
		return d
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			return nil
		case <-tick.C:
			if d := c.ConversionData(); d != nil {
				return d
			}
		}
	}
}

// AttributionID resolves the identifier sent as af_id: the SDK's id
// when available, else a uuid minted once and persisted so the id is
// stable across launches on SDK-less installs.
func (c *Collector) AttributionID(ctx context.Context) string {
	if id, err := c.sdk.DeviceID(ctx); err == nil && id != "" {
		return id
	}
	id, err := c.st.AttributionID(ctx)
	if err == nil && id != "" {
		return id
	}
	id = uuid.NewString()
	if err := c.st.SetAttributionID(ctx, id); err != nil {
		log.Warn().Err(err).Msg("persist attribution id")
	}
	return id
}

// RetryConversionData asks the attribution network's server endpoint
// for the current conversion data and overwrites the snapshot on
// success.
func (c *Collector) RetryConversionData(ctx context.Context) error {
	afID := c.AttributionID(ctx)
	if afID == "" {
		return nil
	}

	c.mu.Lock()
	body := map[string]any{
		"af_id":   afID,
		"dev_key": c.devKey,
		"app_id":  c.appID,
	}
	c.mu.Unlock()

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("attribution gcd encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.HTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.GCDEndpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("attribution gcd request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("attribution gcd: %w", err)
	}
	defer resp.Body.Close()
	observability.AttributionRetries.Inc()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("attribution gcd: status %d", resp.StatusCode)
	}

	var out struct {
		Data ConversionData `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("attribution gcd decode: %w", err)
	}
	if out.Data != nil {
		c.snap.Store(out.Data)
	}
	return nil
}

// LogEvent forwards an analytics event to the SDK. Best effort.
func (c *Collector) LogEvent(ctx context.Context, name string, values map[string]any) {
	if err := c.sdk.LogEvent(ctx, name, values); err != nil {
		log.Warn().Str("event", name).Err(err).Msg("log event failed")
	}
}
