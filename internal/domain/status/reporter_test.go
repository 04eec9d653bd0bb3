package status

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

type fakeConfig struct {
	apps    map[string]map[string]string
	options map[string]any
}

func (f fakeConfig) Apps() map[string]map[string]string { return f.apps }
func (f fakeConfig) Options() map[string]any {
	out := make(map[string]any, len(f.options))
	for k, v := range f.options {
		out[k] = v
	}
	return out
}

type fakeLister map[string][]types.InstanceStatus

func (f fakeLister) List() map[string][]types.InstanceStatus { return f }

type fixedInspector uint64

func (f fixedInspector) RSS(int) (uint64, bool) { return uint64(f), true }

func TestSnapshot(t *testing.T) {
	cfg := fakeConfig{
		apps: map[string]map[string]string{
			"tool": {"APP_MODE": "prod", "nc_auth_password": "hunter2", "API_TOKEN": "abc", "EMPTY_SECRET": ""},
			"idle": {},
		},
		options: map[string]any{
			"host":                 "127.0.0.1",
			"port":                 8063.0,
			"xauth":                "nextcloud:pw",
			"nc_auth_password":     "pw",
			"nc_auth_access_token": "",
		},
	}
	code := 0
	lister := fakeLister{"tool": {
		{PID: 10, Alive: true, Args: []string{"./run.sh", "serve"}},
		{PID: 11, Alive: false, Args: []string{"./run.sh"}, ExitCode: &code},
	}}

	snap := New(cfg, lister, WithInspector(fixedInspector(4096))).Snapshot()

	assert.Equal(t, map[string]map[string]string{
		"tool": {"APP_MODE": "prod", "nc_auth_password": Redacted, "API_TOKEN": Redacted, "EMPTY_SECRET": ""},
		"idle": {},
	}, snap.Apps)
	assert.Equal(t, "hunter2", cfg.apps["tool"]["nc_auth_password"], "source overrides are not modified")
	require.Len(t, snap.AppsStatus["tool"], 2)
	assert.Equal(t, uint64(4096), snap.AppsStatus["tool"][0].RSSBytes)
	assert.Zero(t, snap.AppsStatus["tool"][1].RSSBytes)
	assert.NotNil(t, snap.AppsStatus["idle"])
	assert.Empty(t, snap.AppsStatus["idle"])

	assert.Equal(t, Redacted, snap.Options["xauth"])
	assert.Equal(t, Redacted, snap.Options["nc_auth_password"])
	assert.Equal(t, "", snap.Options["nc_auth_access_token"])
	assert.Equal(t, "127.0.0.1", snap.Options["host"])
	assert.Equal(t, 8063.0, snap.Options["port"])
}

func TestSnapshotWithSecrets(t *testing.T) {
	cfg := fakeConfig{
		apps:    map[string]map[string]string{"tool": {"API_TOKEN": "abc"}},
		options: map[string]any{"xauth": "u:p"},
	}
	snap := New(cfg, fakeLister{}, WithSecrets(), WithInspector(nil)).Snapshot()
	assert.Equal(t, "u:p", snap.Options["xauth"])
	assert.Equal(t, "abc", snap.Apps["tool"]["API_TOKEN"])
}

func TestIsSecret(t *testing.T) {
	for key, want := range map[string]bool{
		"xauth":                 true,
		"nc_auth_password":      true,
		"nc_auth_client_secret": true,
		"nc_auth_refresh_token": true,
		"nc_url":                false,
		"log_level":             false,
	} {
		assert.Equal(t, want, IsSecret(key), key)
	}
}

func TestProcessInspectorSelf(t *testing.T) {
	rss, ok := ProcessInspector{}.RSS(os.Getpid())
	require.True(t, ok)
	assert.Greater(t, rss, uint64(0))

	_, ok = ProcessInspector{}.RSS(-1)
	assert.False(t, ok)
}
