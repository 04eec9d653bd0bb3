package supervisor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

// Option keys holding default connection material
const (
	OptNCURL        = "nc_url"
	OptAuthUser     = "nc_auth_user"
	OptAuthPassword = "nc_auth_password"
	OptAccessToken  = "nc_auth_access_token"
	OptRefreshToken = "nc_auth_refresh_token"
)

// Environment variables injected into every app
const (
	EnvNextcloudURL = "nextcloud_url"
	EnvAuthUser     = "nc_auth_user"
	EnvAuthPassword = "nc_auth_password"
	EnvAuthPass     = "nc_auth_pass"
	EnvAccessToken  = "nc_auth_access_token"
	EnvRefreshToken = "nc_auth_refresh_token"
)

// RunParams are the caller supplied inputs of a launch
type RunParams struct {
	// Args is a JSON encoded list of extra arguments
	Args string
	// NCURL and UserToken select per-request connection material
	NCURL     string
	UserToken string
}

// Connection is the backing product endpoint and credentials handed to an app
type Connection struct {
	URL          string
	User         string
	Password     string
	AccessToken  string
	RefreshToken string
}

// OptionReader reads global daemon options
type OptionReader interface {
	OptionString(key string) string
}

// ResolveConnection picks connection material for a launch. Caller supplied
// url/token win; otherwise the global options are used.
func ResolveConnection(opts OptionReader, params RunParams) (Connection, error) {
	conn := Connection{URL: strings.TrimSpace(params.NCURL)}
	if conn.URL == "" {
		conn.URL = opts.OptionString(OptNCURL)
	}
	if conn.URL == "" {
		return Connection{}, fmt.Errorf("%w: nc_url is empty", types.ErrCredentialsMissing)
	}

	if params.UserToken != "" {
		if user, password, ok := strings.Cut(params.UserToken, ":"); ok {
			conn.User, conn.Password = user, password
		} else {
			conn.AccessToken = params.UserToken
		}
		return conn, nil
	}

	// Either half of the user/password pair selects password mode
	conn.User = opts.OptionString(OptAuthUser)
	conn.Password = opts.OptionString(OptAuthPassword)
	if conn.passwordMode() {
		return conn, nil
	}
	conn.AccessToken = opts.OptionString(OptAccessToken)
	conn.RefreshToken = opts.OptionString(OptRefreshToken)
	if conn.AccessToken == "" {
		return Connection{}, fmt.Errorf("%w: set nc_auth_user or nc_auth_access_token", types.ErrCredentialsMissing)
	}
	return conn, nil
}

// Env renders the connection as environment variables
func (c Connection) Env() map[string]string {
	env := map[string]string{EnvNextcloudURL: c.URL}
	if c.passwordMode() {
		env[EnvAuthUser] = c.User
		env[EnvAuthPassword] = c.Password
		env[EnvAuthPass] = c.Password
	}
	if c.AccessToken != "" {
		env[EnvAccessToken] = c.AccessToken
	}
	if c.RefreshToken != "" {
		env[EnvRefreshToken] = c.RefreshToken
	}
	return env
}

func (c Connection) passwordMode() bool {
	return c.User != "" || c.Password != ""
}

// BuildEnv overlays layers onto base in order; later layers win. Keys from
// base keep their position and new keys are appended sorted.
func BuildEnv(base []string, layers ...map[string]string) []string {
	values := make(map[string]string, len(base))
	order := make([]string, 0, len(base))
	for _, kv := range base {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, seen := values[key]; !seen {
			order = append(order, key)
		}
		values[key] = value
	}

	var added []string
	for _, layer := range layers {
		for key, value := range layer {
			if _, seen := values[key]; !seen {
				added = append(added, key)
			}
			values[key] = value
		}
	}
	sort.Strings(added)
	order = append(order, added...)

	env := make([]string, 0, len(order))
	for _, key := range order {
		env = append(env, key+"="+values[key])
	}
	return env
}

// ParseArgs decodes the JSON encoded extra argument list. Empty input
// means no extra arguments.
func ParseArgs(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var args []string
	if err := sonic.ConfigStd.UnmarshalFromString(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrArgParse, err)
	}
	return args, nil
}
