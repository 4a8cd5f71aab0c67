package permissions

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"launchkit/internal/store"
)

// PushProvider is the boundary to the push-notification stack: the OS
// permission dialog and token issuance.
type PushProvider interface {
	RequestPermission(ctx context.Context) (bool, error)
	Token(ctx context.Context) (string, error)
}

// NopProvider never grants permission and has no token.
type NopProvider struct{}

func (NopProvider) RequestPermission(context.Context) (bool, error) { return false, nil }
func (NopProvider) Token(context.Context) (string, error)           { return "", nil }

// Gate decides whether to show the notification-permission prompt and
// records the user's response.
type Gate struct {
	st   *store.Store
	push PushProvider

	// Cooldown is the minimum interval between declined prompts.
	Cooldown time.Duration
}

func NewGate(st *store.Store, push PushProvider) *Gate {
	return &Gate{
		st:       st,
		push:     push,
		Cooldown: 3 * 24 * time.Hour,
	}
}

// ShouldPrompt reports whether the prompt is due: never when already
// granted, always when never asked, otherwise only after the cooldown
// since the last prompt.
func (g *Gate) ShouldPrompt(ctx context.Context, now time.Time) bool {
	if g.st.PushPermissionGranted(ctx) {
		return false
	}
	last, ok := g.st.LastPermissionPrompt(ctx)
	if !ok {
		return true
	}
	return now.UnixMilli()-last >= g.Cooldown.Milliseconds()
}

// Accept requests the OS permission. On grant it records the grant
// flag and best-effort fetches a push token. The prompt timestamp is
// stamped either way. Returns the token, "" when unavailable.
func (g *Gate) Accept(ctx context.Context, now time.Time) string {
	var token string

	granted, err := g.push.RequestPermission(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("push permission request failed")
	}
	if granted {
		if err := g.st.SetPushPermissionGranted(ctx); err != nil {
			log.Warn().Err(err).Msg("record permission grant")
		}
		token, err = g.push.Token(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("push token fetch failed")
			token = ""
		}
	}

	if err := g.st.StampPermissionPrompt(ctx, now); err != nil {
		log.Warn().Err(err).Msg("stamp permission prompt")
	}
	return token
}

// Decline records the prompt timestamp only.
func (g *Gate) Decline(ctx context.Context, now time.Time) {
	if err := g.st.StampPermissionPrompt(ctx, now); err != nil {
		log.Warn().Err(err).Msg("stamp permission prompt")
	}
}
