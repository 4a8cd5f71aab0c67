package main

import (
	"launchkit/internal/app"
	"launchkit/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Agent.LogLevel)
	app.Run(cfg)
}
