package supervisor

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

type options map[string]string

func (o options) OptionString(key string) string { return o[key] }

func TestResolveConnection(t *testing.T) {
	tests := []struct {
		name    string
		opts    options
		params  RunParams
		want    Connection
		wantErr error
	}{
		{
			name: "global password",
			opts: options{OptNCURL: "https://nc", OptAuthUser: "admin", OptAuthPassword: "pw"},
			want: Connection{URL: "https://nc", User: "admin", Password: "pw"},
		},
		{
			name: "global token",
			opts: options{OptNCURL: "https://nc", OptAccessToken: "tok", OptRefreshToken: "ref"},
			want: Connection{URL: "https://nc", AccessToken: "tok", RefreshToken: "ref"},
		},
		{
			name: "global password without user",
			opts: options{OptNCURL: "https://nc", OptAuthPassword: "pw", OptAccessToken: "tok"},
			want: Connection{URL: "https://nc", Password: "pw"},
		},
		{
			name:   "request user token",
			opts:   options{OptNCURL: "https://nc", OptAuthUser: "admin"},
			params: RunParams{UserToken: "alice:pw:with:colons"},
			want:   Connection{URL: "https://nc", User: "alice", Password: "pw:with:colons"},
		},
		{
			name:   "request bare token and url",
			opts:   options{},
			params: RunParams{NCURL: "https://req", UserToken: "apptoken"},
			want:   Connection{URL: "https://req", AccessToken: "apptoken"},
		},
		{
			name:    "no url",
			opts:    options{OptAuthUser: "admin"},
			wantErr: types.ErrCredentialsMissing,
		},
		{
			name:    "no credentials",
			opts:    options{OptNCURL: "https://nc"},
			wantErr: types.ErrCredentialsMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveConnection(tt.opts, tt.params)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnectionEnv(t *testing.T) {
	env := Connection{URL: "https://nc", User: "admin", Password: "pw"}.Env()
	assert.Equal(t, map[string]string{
		EnvNextcloudURL: "https://nc",
		EnvAuthUser:     "admin",
		EnvAuthPassword: "pw",
		EnvAuthPass:     "pw",
	}, env)

	env = Connection{URL: "https://nc", Password: "pw"}.Env()
	assert.Equal(t, map[string]string{
		EnvNextcloudURL: "https://nc",
		EnvAuthUser:     "",
		EnvAuthPassword: "pw",
		EnvAuthPass:     "pw",
	}, env)

	env = Connection{URL: "https://nc", AccessToken: "tok"}.Env()
	assert.Equal(t, map[string]string{EnvNextcloudURL: "https://nc", EnvAccessToken: "tok"}, env)
}

func TestBuildEnv(t *testing.T) {
	base := []string{"PATH=/bin", "HOME=/root", "nextcloud_url=from-daemon", "BROKEN"}
	env := BuildEnv(base,
		map[string]string{"nextcloud_url": "from-conn", "nc_auth_user": "admin"},
		map[string]string{"nextcloud_url": "from-app", "APP_MODE": "prod"},
	)

	assert.Equal(t, []string{
		"PATH=/bin",
		"HOME=/root",
		"nextcloud_url=from-app",
		"APP_MODE=prod",
		"nc_auth_user=admin",
	}, env)
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		raw     string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{"  ", nil, false},
		{"[]", []string{}, false},
		{`["--version"]`, []string{"--version"}, false},
		{`["a", "b c"]`, []string{"a", "b c"}, false},
		{`[1, 2]`, nil, true},
		{`"--version"`, nil, true},
		{`[`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseArgs(tt.raw)
			if tt.wantErr {
				assert.True(t, errors.Is(err, types.ErrArgParse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		in   string
		want syscall.Signal
	}{
		{"", syscall.SIGTERM},
		{"TERM", syscall.SIGTERM},
		{"sigint", syscall.SIGINT},
		{"KILL", syscall.SIGKILL},
		{"9", syscall.SIGKILL},
	}
	for _, tt := range tests {
		got, err := ParseSignal(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseSignal("NOPE")
	assert.Error(t, err)
}
