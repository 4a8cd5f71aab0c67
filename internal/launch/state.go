package launch

// Mode is the orchestrator's visible launch mode.
type Mode string

const (
	ModeLoading    Mode = "loading"
	ModeWebView    Mode = "webview"
	ModeApp        Mode = "app"
	ModeNoInternet Mode = "no-internet"
)

// State is the reactive launch state. URL is non-empty exactly when
// Mode is ModeWebView.
type State struct {
	Mode                  Mode
	URL                   string
	IsLoading             bool
	Err                   string
	IsFirstLaunch         bool
	WaitingForPermissions bool
}
