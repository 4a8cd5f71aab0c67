package permissions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchkit/internal/store"
)

type fakeProvider struct {
	grant    bool
	grantErr error
	token    string
	tokenErr error
}

func (f *fakeProvider) RequestPermission(context.Context) (bool, error) {
	return f.grant, f.grantErr
}

func (f *fakeProvider) Token(context.Context) (string, error) {
	return f.token, f.tokenErr
}

func newTestGate(t *testing.T, p PushProvider) (*Gate, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewGate(st, p), st
}

func TestShouldPrompt(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("never asked", func(t *testing.T) {
		g, _ := newTestGate(t, &fakeProvider{})
		assert.True(t, g.ShouldPrompt(ctx, now))
	})

	t.Run("already granted", func(t *testing.T) {
		g, st := newTestGate(t, &fakeProvider{})
		require.NoError(t, st.SetPushPermissionGranted(ctx))
		assert.False(t, g.ShouldPrompt(ctx, now))
	})

	t.Run("within cooldown", func(t *testing.T) {
		g, st := newTestGate(t, &fakeProvider{})
		require.NoError(t, st.StampPermissionPrompt(ctx, now.Add(-2*24*time.Hour)))
		assert.False(t, g.ShouldPrompt(ctx, now))
	})

	t.Run("cooldown elapsed", func(t *testing.T) {
		g, st := newTestGate(t, &fakeProvider{})
		require.NoError(t, st.StampPermissionPrompt(ctx, now.Add(-3*24*time.Hour)))
		assert.True(t, g.ShouldPrompt(ctx, now))
	})

	t.Run("just inside the boundary", func(t *testing.T) {
		g, st := newTestGate(t, &fakeProvider{})
		require.NoError(t, st.StampPermissionPrompt(ctx, now.Add(-3*24*time.Hour+time.Minute)))
		assert.False(t, g.ShouldPrompt(ctx, now))
	})
}

func TestAcceptGranted(t *testing.T) {
	ctx := context.Background()
	g, st := newTestGate(t, &fakeProvider{grant: true, token: "fcm-token-1"})

	now := time.Now()
	token := g.Accept(ctx, now)

	assert.Equal(t, "fcm-token-1", token)
	assert.True(t, st.PushPermissionGranted(ctx))
	ms, ok := st.LastPermissionPrompt(ctx)
	require.True(t, ok)
	assert.Equal(t, now.UnixMilli(), ms)
}

func TestAcceptDenied(t *testing.T) {
	ctx := context.Background()
	g, st := newTestGate(t, &fakeProvider{grant: false})

	token := g.Accept(ctx, time.Now())

	assert.Empty(t, token)
	assert.False(t, st.PushPermissionGranted(ctx))
	_, ok := st.LastPermissionPrompt(ctx)
	assert.True(t, ok, "prompt timestamp is stamped even on denial")
}

func TestAcceptTokenFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	g, st := newTestGate(t, &fakeProvider{grant: true, tokenErr: errors.New("apns unavailable")})

	token := g.Accept(ctx, time.Now())

	assert.Empty(t, token)
	assert.True(t, st.PushPermissionGranted(ctx), "grant is recorded even without a token")
}

func TestDeclineStampsOnly(t *testing.T) {
	ctx := context.Background()
	g, st := newTestGate(t, &fakeProvider{})

	now := time.Now()
	g.Decline(ctx, now)

	assert.False(t, st.PushPermissionGranted(ctx))
	ms, ok := st.LastPermissionPrompt(ctx)
	require.True(t, ok)
	assert.Equal(t, now.UnixMilli(), ms)
	assert.False(t, g.ShouldPrompt(ctx, now.Add(time.Hour)))
	assert.True(t, g.ShouldPrompt(ctx, now.Add(4*24*time.Hour)))
}
