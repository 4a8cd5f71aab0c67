package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"launchkit/internal/attribution"
	"launchkit/internal/config"
	"launchkit/internal/connectivity"
	"launchkit/internal/launch"
	"launchkit/internal/lifecycle"
	"launchkit/internal/permissions"
	"launchkit/internal/remoteconfig"
	"launchkit/internal/store"
)

// Run wires the launch subsystem and drives it once, then keeps
// watching foreground events (SIGHUP stands in for the host's
// app-active notification) until interrupted.
func Run(cfg config.Config) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.Agent.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	col := attribution.NewCollector(attribution.NopSDK{}, st, cfg.Attribution.GCDEndpoint)
	res := remoteconfig.NewResolver(st, col,
		cfg.Remote.Endpoint,
		cfg.Remote.BundleID,
		cfg.Remote.StoreID,
		cfg.Remote.FirebaseProjectID,
		cfg.Remote.OS,
	)
	probe := connectivity.NewHTTPProbe(cfg.Agent.ProbeURL)
	gate := permissions.NewGate(st, permissions.NopProvider{})

	o := launch.New(st, probe, col, res, cfg.Attribution.DevKey, cfg.Remote.StoreID)
	o.OnChange(func(s launch.State) {
		log.Info().
			Str("mode", string(s.Mode)).
			Str("url", s.URL).
			Bool("loading", s.IsLoading).
			Bool("first_launch", s.IsFirstLaunch).
			Bool("waiting_for_permissions", s.WaitingForPermissions).
			Msg("launch state")
	})

	o.Initialize(rootCtx)

	if o.State().WaitingForPermissions {
		// Headless run: consult the gate, but there is no UI to show a
		// prompt, so the decline path applies and the launch resumes
		// without a token.
		now := time.Now()
		if gate.ShouldPrompt(rootCtx, now) {
			gate.Decline(rootCtx, now)
		}
		o.ContinueAfterPermissions(rootCtx, "")
	}

	// SIGHUP -> foreground reconciliation while disconnected.
	fg := make(chan struct{}, 1)
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			select {
			case fg <- struct{}{}:
			default:
			}
		}
	}()
	go lifecycle.Watch(rootCtx, fg, o)

	waitForSignal()
	log.Info().Msg("shutdown...")
	cancel()
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
