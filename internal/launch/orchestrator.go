package launch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"launchkit/internal/attribution"
	"launchkit/internal/connectivity"
	"launchkit/internal/remoteconfig"
	"launchkit/internal/store"
)

// TrackingAuthorizer is the platform tracking-authorization prompt
// (ATT on iOS). Failure or denial never blocks the launch.
type TrackingAuthorizer interface {
	RequestAuthorization(ctx context.Context) error
}

// TokenSource supplies a push token when the permission gate did not.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Orchestrator composes the connectivity probe, attribution collector,
// remote config resolver and persistent store into one deterministic
// launch outcome. All state transitions go through its action methods.
type Orchestrator struct {
	st    *store.Store
	probe connectivity.Probe
	col   *attribution.Collector
	res   *remoteconfig.Resolver

	devKey  string
	storeID string

	// Optional collaborators.
	Tracking TrackingAuthorizer
	Tokens   TokenSource

	// AttributionWait bounds the first-launch wait for conversion data.
	AttributionWait time.Duration
	// OrganicDelay is applied before re-querying attribution when the
	// first snapshot reports organic; the network may finalize a
	// non-organic classification only after the install callback.
	OrganicDelay time.Duration

	mu       sync.Mutex
	state    State
	onChange func(State)

	initialized bool
	inflight    chan struct{}
	gen         int
	cancelRun   context.CancelFunc
}

func New(st *store.Store, probe connectivity.Probe, col *attribution.Collector, res *remoteconfig.Resolver, devKey, storeID string) *Orchestrator {
	return &Orchestrator{
		st:              st,
		probe:           probe,
		col:             col,
		res:             res,
		devKey:          devKey,
		storeID:         storeID,
		AttributionWait: 5 * time.Second,
		OrganicDelay:    5 * time.Second,
		state: State{
			Mode:          ModeLoading,
			IsLoading:     true,
			IsFirstLaunch: true,
		},
	}
}

// State returns a snapshot of the current launch state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// OnChange registers the state subscriber. At most one; the host's
// presentation layer fans out from there.
func (o *Orchestrator) OnChange(fn func(State)) {
	o.mu.Lock()
	o.onChange = fn
	o.mu.Unlock()
}

// setState applies a mutation only when the run that produced it is
// still current; results landing after Retry are discarded.
func (o *Orchestrator) setState(gen int, mut func(*State)) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	mut(&o.state)
	if o.state.Mode != ModeWebView {
		o.state.URL = ""
	}
	st := o.state
	fn := o.onChange
	o.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// Initialize runs the launch entry sequence. Single-flight: a
// concurrent call while one is running awaits the same run instead of
// starting a duplicate; a call after completion is a no-op. It always
// terminates in a determinate mode.
func (o *Orchestrator) Initialize(ctx context.Context) {
	o.mu.Lock()
	if o.initialized {
		done := o.inflight
		o.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	o.initialized = true
	o.gen++
	gen := o.gen
	done := make(chan struct{})
	o.inflight = done
	runCtx, cancel := context.WithCancel(ctx)
	o.cancelRun = cancel
	o.state.IsLoading = true
	o.state.Err = ""
	st := o.state
	fn := o.onChange
	o.mu.Unlock()
	if fn != nil {
		fn(st)
	}

	o.runInitialize(runCtx, gen)

	o.mu.Lock()
	if o.inflight == done {
		o.inflight = nil
	}
	o.mu.Unlock()
	close(done)
}

func (o *Orchestrator) runInitialize(ctx context.Context, gen int) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Msg("launch sequence panicked; falling back to app mode")
			o.res.SetAppMode(context.Background(), store.ModeApp)
			o.setState(gen, func(s *State) {
				s.Mode = ModeApp
				s.IsLoading = false
			})
		}
	}()

	if o.Tracking != nil {
		if err := o.Tracking.RequestAuthorization(ctx); err != nil {
			log.Debug().Err(err).Msg("tracking authorization unavailable")
		}
	}

	if err := o.col.Initialize(o.devKey, o.storeID); err != nil {
		log.Warn().Err(err).Msg("attribution init failed; continuing without")
	}

	isFirst := o.res.IsFirstLaunch(ctx)
	o.setState(gen, func(s *State) { s.IsFirstLaunch = isFirst })

	if !o.probe.Reachable(ctx) {
		log.Info().Msg("no internet connection")
		o.setState(gen, func(s *State) {
			s.Mode = ModeNoInternet
			s.IsLoading = false
		})
		return
	}

	if isFirst {
		// Control returns to the host, which presents the permission
		// gate and later calls ContinueAfterPermissions.
		o.setState(gen, func(s *State) {
			s.WaitingForPermissions = true
			s.IsLoading = false
		})
		return
	}

	o.subsequentLaunch(ctx, gen)
	o.setState(gen, func(s *State) { s.IsLoading = false })
}

func (o *Orchestrator) subsequentLaunch(ctx context.Context, gen int) {
	o.setState(gen, func(s *State) { s.IsFirstLaunch = false })

	// A tapped notification carrying a deep link wins over everything:
	// it is explicit user intent. Consumed exactly once.
	url, err := o.st.TakeNotificationURL(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("read notification url")
	}
	if url != "" {
		log.Info().Str("url", url).Msg("opening notification url")
		o.setState(gen, func(s *State) {
			s.Mode = ModeWebView
			s.URL = url
		})
		return
	}

	if o.res.AppMode(ctx) == store.ModeWebView {
		saved, err := o.st.SavedConfig(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("read saved config")
		}
		if saved != nil && saved.URL != nil && *saved.URL != "" {
			// One refresh attempt; the saved URL covers any failure.
			target := *saved.URL
			resp := o.res.RequestConfig(ctx, "", "")
			if resp.URL != "" {
				target = resp.URL
			}
			o.setState(gen, func(s *State) {
				s.Mode = ModeWebView
				s.URL = target
			})
			return
		}
	}

	o.setState(gen, func(s *State) { s.Mode = ModeApp })
}

// ContinueAfterPermissions resumes a first launch after the user's
// permission decision. token is the push token obtained by the gate,
// "" when none.
func (o *Orchestrator) ContinueAfterPermissions(ctx context.Context, token string) {
	o.mu.Lock()
	gen := o.gen
	o.mu.Unlock()

	o.setState(gen, func(s *State) {
		s.WaitingForPermissions = false
		s.IsLoading = true
	})
	o.firstLaunchWithToken(ctx, gen, token)
}

func (o *Orchestrator) firstLaunchWithToken(ctx context.Context, gen int, token string) {
	o.setState(gen, func(s *State) { s.IsFirstLaunch = true })

	if token == "" && o.Tokens != nil {
		t, err := o.Tokens.Token(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("push token fetch failed")
		} else {
			token = t
		}
	}

	saved, err := o.st.SavedConfig(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("read saved config")
	}
	if o.applySavedConfig(ctx, gen, saved) {
		return
	}

	cd := o.col.WaitForConversionData(ctx, o.AttributionWait)
	if cd.Organic() {
		log.Info().Dur("delay", o.OrganicDelay).Msg("organic install; delaying for late attribution")
		o.sleep(ctx, o.OrganicDelay)
		if err := o.col.RetryConversionData(ctx); err != nil {
			log.Warn().Err(err).Msg("conversion data retry failed")
		}
	}

	resp := o.res.RequestConfig(ctx, token, "")
	if resp.OK && resp.URL != "" {
		o.setState(gen, func(s *State) {
			s.Mode = ModeWebView
			s.URL = resp.URL
		})
		o.res.SetAppMode(ctx, store.ModeWebView)
	} else {
		o.setState(gen, func(s *State) { s.Mode = ModeApp })
		o.res.SetAppMode(ctx, store.ModeApp)
	}
	o.res.MarkFirstLaunchComplete(ctx)
	o.setState(gen, func(s *State) { s.IsLoading = false })
}

// applySavedConfig honors an existing record without a network call.
// Returns true when the record settled the launch.
func (o *Orchestrator) applySavedConfig(ctx context.Context, gen int, saved *store.SavedConfigData) bool {
	if saved == nil {
		return false
	}

	if saved.ConfigRequestFailed {
		// Known-bad endpoint this install; don't retry on our own.
		o.setState(gen, func(s *State) {
			s.Mode = ModeApp
			s.IsLoading = false
		})
		o.res.SetAppMode(ctx, store.ModeApp)
		o.res.MarkFirstLaunchComplete(ctx)
		return true
	}

	if saved.Mode != store.ModeWebView && saved.Mode != store.ModeApp {
		return false
	}
	if saved.URL != nil && saved.Expired(time.Now()) {
		log.Info().Msg("saved url expired; requesting new config")
		return false
	}

	o.setState(gen, func(s *State) {
		if saved.Mode == store.ModeWebView && saved.URL != nil && *saved.URL != "" {
			s.Mode = ModeWebView
			s.URL = *saved.URL
		} else {
			s.Mode = ModeApp
		}
		s.IsLoading = false
	})
	o.res.MarkFirstLaunchComplete(ctx)
	return true
}

// Retry cancels any superseded run, resets the single-flight guard and
// re-runs Initialize. Late results from the cancelled run are
// discarded by the generation check.
func (o *Orchestrator) Retry(ctx context.Context) {
	o.mu.Lock()
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}
	o.initialized = false
	o.inflight = nil
	o.gen++
	o.mu.Unlock()

	o.Initialize(ctx)
}

// GoToFallback is the user's explicit opt-out of waiting: forces app
// mode, persists it and marks the first launch complete.
func (o *Orchestrator) GoToFallback(ctx context.Context) {
	o.mu.Lock()
	gen := o.gen
	o.mu.Unlock()

	o.setState(gen, func(s *State) {
		s.Mode = ModeApp
		s.WaitingForPermissions = false
		s.IsLoading = false
	})
	o.res.SetAppMode(ctx, store.ModeApp)
	o.res.MarkFirstLaunchComplete(ctx)
}

// HandleForeground reconciles after the host app returns to the
// foreground: only while disconnected, and only when connectivity is
// back, the launch sequence is re-run.
func (o *Orchestrator) HandleForeground(ctx context.Context) {
	o.mu.Lock()
	mode := o.state.Mode
	o.mu.Unlock()

	if mode != ModeNoInternet {
		return
	}
	if !o.probe.Reachable(ctx) {
		return
	}
	log.Info().Msg("connectivity restored; re-running launch sequence")
	o.Retry(ctx)
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
