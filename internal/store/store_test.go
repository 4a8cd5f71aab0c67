package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }

func TestSavedConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.SavedConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "fresh install has no record")

	rec := SavedConfigData{
		URL:                 strPtr("https://example.com/page"),
		Expires:             i64Ptr(1700000000),
		Mode:                ModeWebView,
		IsFirstLaunch:       false,
		ConfigRequestFailed: false,
	}
	require.NoError(t, s.SaveConfig(ctx, rec))

	got, err = s.SavedConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec, *got)

	// Whole-record replacement.
	require.NoError(t, s.SaveConfig(ctx, SavedConfigData{Mode: ModeApp, ConfigRequestFailed: true}))
	got, err = s.SavedConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.URL)
	assert.Nil(t, got.Expires)
	assert.Equal(t, ModeApp, got.Mode)
	assert.True(t, got.ConfigRequestFailed)
}

func TestSavedConfigSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.SaveConfig(ctx, SavedConfigData{Mode: ModeApp}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.SavedConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ModeApp, got.Mode)
}

func TestClearConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveConfig(ctx, SavedConfigData{Mode: ModeApp}))
	require.NoError(t, s.ClearConfig(ctx))

	got, err := s.SavedConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCorruptValueReadsAsAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A bare number cannot decode into the record struct.
	require.NoError(t, s.Put(ctx, "saved_config_data", 42))

	got, err := s.SavedConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTakeNotificationURLConsumesOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	url, err := s.TakeNotificationURL(ctx)
	require.NoError(t, err)
	assert.Empty(t, url)

	require.NoError(t, s.SetNotificationURL(ctx, "https://x.test/a"))

	url, err = s.TakeNotificationURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/a", url)

	url, err = s.TakeNotificationURL(ctx)
	require.NoError(t, err)
	assert.Empty(t, url, "second read must find nothing")
}

func TestPermissionBookkeeping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.False(t, s.PushPermissionGranted(ctx))
	_, ok := s.LastPermissionPrompt(ctx)
	assert.False(t, ok)

	now := time.Now()
	require.NoError(t, s.StampPermissionPrompt(ctx, now))
	require.NoError(t, s.SetPushPermissionGranted(ctx))

	assert.True(t, s.PushPermissionGranted(ctx))
	ms, ok := s.LastPermissionPrompt(ctx)
	require.True(t, ok)
	assert.Equal(t, now.UnixMilli(), ms)
}

func TestAttributionIDRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AttributionID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, s.SetAttributionID(ctx, "abc-123"))
	id, err = s.AttributionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
}

func TestExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tests := []struct {
		name    string
		expires *int64
		want    bool
	}{
		{"nil never expires", nil, false},
		{"past", i64Ptr(now.Unix() - 1), true},
		{"exactly now", i64Ptr(now.Unix()), true},
		{"future", i64Ptr(now.Unix() + 3600), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := SavedConfigData{Expires: tt.expires}
			assert.Equal(t, tt.want, d.Expired(now))
		})
	}
}
