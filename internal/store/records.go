package store

import "time"

// Mode is the last resolved non-transient launch mode.
type Mode string

const (
	ModeWebView Mode = "webview"
	ModeApp     Mode = "app"
)

// SavedConfigData is the persisted launch decision record. One instance
// per installation; every write replaces the whole record.
type SavedConfigData struct {
	URL                 *string `json:"url"`
	Expires             *int64  `json:"expires"`
	Mode                Mode    `json:"mode"`
	IsFirstLaunch       bool    `json:"isFirstLaunch"`
	ConfigRequestFailed bool    `json:"configRequestFailed"`
}

// Expired reports whether the saved URL is past its expiry.
// A nil Expires never expires.
func (d SavedConfigData) Expired(now time.Time) bool {
	if d.Expires == nil {
		return false
	}
	return now.Unix() >= *d.Expires
}
