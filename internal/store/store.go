package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// Storage keys. Values are JSON-encoded.
const (
	keySavedConfig     = "saved_config_data"
	keyNotificationURL = "notification_url"
	keyPermGranted     = "push_permission_granted"
	keyPermLastRequest = "push_permission_last_request"
	keyAttributionID   = "attribution_id"
)

// Store is a durable key-value store backed by a per-install SQLite
// file. All record writes are whole-value replacements.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "launchkit.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store open %s: %w", path, err)
	}
	// Single writer; the agent is the only process touching this file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		k TEXT PRIMARY KEY,
		v TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get decodes the value for key into out. Returns false when the key
// is absent or the stored value cannot be decoded (corruption reads as
// absence, it never fails a launch).
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		log.Warn().Str("key", key).Err(err).Msg("corrupt stored value; treating as absent")
		return false, nil
	}
	return true, nil
}

// Put replaces the value for key.
func (s *Store) Put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`,
		key, string(raw))
	if err != nil {
		return fmt.Errorf("store put %s: %w", key, err)
	}
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, key); err != nil {
		return fmt.Errorf("store delete %s: %w", key, err)
	}
	return nil
}

// SavedConfig reads the persisted launch decision record.
// Returns nil when no record exists yet.
func (s *Store) SavedConfig(ctx context.Context) (*SavedConfigData, error) {
	var d SavedConfigData
	ok, err := s.Get(ctx, keySavedConfig, &d)
	if err != nil || !ok {
		return nil, err
	}
	return &d, nil
}

// SaveConfig replaces the persisted launch decision record in full.
func (s *Store) SaveConfig(ctx context.Context, d SavedConfigData) error {
	return s.Put(ctx, keySavedConfig, d)
}

// ClearConfig deletes the persisted record. Host apps and tests use it
// to reset an install.
func (s *Store) ClearConfig(ctx context.Context) error {
	return s.Delete(ctx, keySavedConfig)
}

// SetNotificationURL stores a pending deep-link URL delivered by a
// tapped notification. Overwrites any previous pending URL.
func (s *Store) SetNotificationURL(ctx context.Context, url string) error {
	return s.Put(ctx, keyNotificationURL, url)
}

// TakeNotificationURL consumes the pending notification URL: the value
// is deleted before it is returned, so each stored URL is observed at
// most once. Returns "" when none is pending.
func (s *Store) TakeNotificationURL(ctx context.Context) (string, error) {
	var url string
	ok, err := s.Get(ctx, keyNotificationURL, &url)
	if err != nil || !ok {
		return "", err
	}
	if err := s.Delete(ctx, keyNotificationURL); err != nil {
		return "", err
	}
	return url, nil
}

// PushPermissionGranted reports whether the grant flag was recorded.
func (s *Store) PushPermissionGranted(ctx context.Context) bool {
	var granted bool
	ok, err := s.Get(ctx, keyPermGranted, &granted)
	if err != nil || !ok {
		return false
	}
	return granted
}

func (s *Store) SetPushPermissionGranted(ctx context.Context) error {
	return s.Put(ctx, keyPermGranted, true)
}

// LastPermissionPrompt returns the unix-millisecond timestamp of the
// last permission prompt, if one was recorded.
func (s *Store) LastPermissionPrompt(ctx context.Context) (int64, bool) {
	var ms int64
	ok, err := s.Get(ctx, keyPermLastRequest, &ms)
	if err != nil || !ok {
		return 0, false
	}
	return ms, true
}

func (s *Store) StampPermissionPrompt(ctx context.Context, now time.Time) error {
	return s.Put(ctx, keyPermLastRequest, now.UnixMilli())
}

// AttributionID returns the persisted fallback attribution identifier,
// or "" when none was minted yet.
func (s *Store) AttributionID(ctx context.Context) (string, error) {
	var id string
	ok, err := s.Get(ctx, keyAttributionID, &id)
	if err != nil || !ok {
		return "", err
	}
	return id, nil
}

func (s *Store) SetAttributionID(ctx context.Context, id string) error {
	return s.Put(ctx, keyAttributionID, id)
}
