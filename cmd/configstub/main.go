package main

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"launchkit/internal/api"
	"launchkit/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Agent.LogLevel)

	h := &api.CheckHandler{
		URL:       cfg.Stub.URL,
		ExpiresIn: int64(cfg.Stub.ExpiresIn),
		Now:       func() int64 { return time.Now().Unix() },
	}

	srv := &http.Server{
		Addr:         cfg.Stub.Addr,
		Handler:      api.Router(h),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", cfg.Stub.Addr).Str("url", cfg.Stub.URL).Msg("config stub starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server crashed")
	}
}
