package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"launchkit/internal/launch"
)

// Watch forwards host foreground events to the orchestrator. Bursts
// are debounced; the orchestrator itself decides whether anything
// needs to happen (it only acts while disconnected).
func Watch(ctx context.Context, events <-chan struct{}, o *launch.Orchestrator) {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("lifecycle watcher stopped")
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if time.Since(last) < 200*time.Millisecond {
				continue // debounce burst of events
			}
			last = time.Now()
			log.Debug().Msg("app foregrounded")
			o.HandleForeground(ctx)
		}
	}
}
