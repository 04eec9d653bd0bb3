package types

import "time"

const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// Result is the response body of every mutating endpoint
type Result struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	PID    int    `json:"pid,omitempty"`
}

// OK builds a successful result
func OK() Result {
	return Result{Status: StatusOK}
}

// Fail builds a failed result carrying err's message
func Fail(err error) Result {
	return Result{Status: StatusFail, Error: err.Error()}
}

// InstanceStatus describes one tracked app process
type InstanceStatus struct {
	PID       int       `json:"pid"`
	Alive     bool      `json:"alive"`
	Args      []string  `json:"args"`
	StartedAt time.Time `json:"started_at"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Stopped   bool      `json:"stopped,omitempty"`
	RSSBytes  uint64    `json:"rss_bytes,omitempty"`
}

// Snapshot is the body of GET /status
type Snapshot struct {
	Apps       map[string]map[string]string `json:"apps"`
	AppsStatus map[string][]InstanceStatus  `json:"apps_status"`
	Options    map[string]any               `json:"options"`
}

// InstallRequest carries the inputs of POST /app-install
type InstallRequest struct {
	AppName string `form:"app_name" json:"app_name"`
	URL     string `form:"url" json:"url"`
	URLData string `form:"url_data" json:"url_data"`
}

// PackageURL returns the package location, accepting either field name
func (r InstallRequest) PackageURL() string {
	if r.URL != "" {
		return r.URL
	}
	return r.URLData
}

// AppRequest carries the inputs of POST /app-remove
type AppRequest struct {
	AppName string `form:"app_name" json:"app_name"`
}

// RunRequest carries the inputs of POST /app-run
type RunRequest struct {
	AppName   string `form:"app_name" json:"app_name"`
	Args      string `form:"args" json:"args"`
	NCURL     string `form:"nc_url" json:"nc_url"`
	UserToken string `form:"user_token" json:"user_token"`
}

// StopRequest carries the inputs of POST /app-stop
type StopRequest struct {
	PID    int `form:"pid" json:"pid"`
	AppPID int `form:"app_pid" json:"app_pid"`
}

// Target returns the requested pid, accepting either field name
func (r StopRequest) Target() int {
	if r.PID != 0 {
		return r.PID
	}
	return r.AppPID
}

// OptionRequest carries the inputs of GET and POST /option
type OptionRequest struct {
	Key     string `form:"key" json:"key"`
	Value   string `form:"value" json:"value"`
	AppName string `form:"app_name" json:"app_name"`
}
