package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

func setupStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "daemon_cfg.json"), filepath.Join(dir, "apps"))
	require.NoError(t, err)
	return s, dir
}

func readFile(t *testing.T, path string) map[string]map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestOpenWritesDefaults(t *testing.T) {
	s, dir := setupStore(t)

	assert.DirExists(t, filepath.Join(dir, "apps"))
	assert.Equal(t, "WARN", s.OptionString(OptLogLevel))
	assert.Equal(t, "127.0.0.1", s.OptionString(OptHost))
	assert.Equal(t, "nextcloud:", s.OptionString(OptXAuth))
	assert.Equal(t, "", s.OptionString(OptNCURL))

	port, err := s.OptionInt(OptPort)
	require.NoError(t, err)
	assert.Equal(t, 8063, port)

	doc := readFile(t, s.Path())
	assert.Contains(t, doc, "apps")
	assert.Equal(t, 8063.0, doc["options"]["port"])
}

func TestOpenMissingRequiredKey(t *testing.T) {
	for _, key := range RequiredOptions {
		t.Run(key, func(t *testing.T) {
			dir := t.TempDir()
			opts := DefaultOptions()
			delete(opts, key)
			data, err := json.Marshal(map[string]any{"apps": map[string]any{}, "options": opts})
			require.NoError(t, err)
			path := filepath.Join(dir, "daemon_cfg.json")
			require.NoError(t, os.WriteFile(path, data, 0o600))

			_, err = Open(path, filepath.Join(dir, "apps"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrConfigMissingKey))
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestOpenInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon_cfg.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Open(path, filepath.Join(dir, "apps"))
	assert.Error(t, err)
}

func TestOpenRescansAppsDir(t *testing.T) {
	dir := t.TempDir()
	apps := filepath.Join(dir, "apps")
	for _, name := range []string{"tool", "other", ".staging-123", "bad name"} {
		require.NoError(t, os.MkdirAll(filepath.Join(apps, name), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(apps, "stray.txt"), []byte("x"), 0o644))

	s, err := Open(filepath.Join(dir, "daemon_cfg.json"), apps)
	require.NoError(t, err)

	assert.Equal(t, []string{"other", "tool"}, s.AppNames())
	rec, ok := s.App("tool")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(apps, "tool"), rec.Dir)
	assert.Empty(t, rec.Overrides)

	doc := readFile(t, s.Path())
	assert.Contains(t, doc["apps"], "tool")
	assert.Contains(t, doc["apps"], "other")
}

func TestLoadStringifiesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon_cfg.json")
	raw := `{"apps": {"tool": {"WORKERS": 4, "DEBUG": true, "NAME": "x"}}, "options": {"log_level": "INFO", "host": "0.0.0.0", "port": "9000", "xauth": "u:p"}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	s, err := Open(path, filepath.Join(dir, "apps"))
	require.NoError(t, err)

	rec, ok := s.App("tool")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"WORKERS": "4", "DEBUG": "true", "NAME": "x"}, rec.Overrides)

	port, err := s.OptionInt(OptPort)
	require.NoError(t, err)
	assert.Equal(t, 9000, port)
}

func TestSetOptionPersists(t *testing.T) {
	s, _ := setupStore(t)

	require.NoError(t, s.SetOption(OptNCURL, "https://cloud.example.com"))
	assert.Equal(t, "https://cloud.example.com", s.OptionString(OptNCURL))
	assert.Equal(t, "https://cloud.example.com", readFile(t, s.Path())["options"]["nc_url"])

	assert.Equal(t, "", s.OptionString("never_set"))
	assert.Error(t, s.SetOption("bad key", "v"))
}

func TestAppOptions(t *testing.T) {
	s, _ := setupStore(t)

	err := s.SetAppOption("ghost", "KEY", "v")
	assert.True(t, errors.Is(err, types.ErrAppNotFound))
	_, err = s.AppOption("ghost", "KEY")
	assert.True(t, errors.Is(err, types.ErrAppNotFound))

	added, err := s.Register("tool")
	require.NoError(t, err)
	assert.True(t, added)

	require.NoError(t, s.SetAppOption("tool", "APP_MODE", "prod"))
	v, err := s.AppOption("tool", "APP_MODE")
	require.NoError(t, err)
	assert.Equal(t, "prod", v)

	v, err = s.AppOption("tool", "MISSING")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	assert.Equal(t, "prod", readFile(t, s.Path())["apps"]["tool"].(map[string]any)["APP_MODE"])
}

func TestAccessorsReturnCopies(t *testing.T) {
	s, _ := setupStore(t)
	_, err := s.Register("tool")
	require.NoError(t, err)
	require.NoError(t, s.SetAppOption("tool", "K", "v"))

	apps := s.Apps()
	apps["tool"]["K"] = "mutated"
	opts := s.Options()
	opts[OptHost] = "mutated"

	v, _ := s.AppOption("tool", "K")
	assert.Equal(t, "v", v)
	assert.Equal(t, "127.0.0.1", s.OptionString(OptHost))
}

func TestRegisterUnregister(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.Register("../escape")
	assert.True(t, errors.Is(err, types.ErrInvalidAppName))

	added, err := s.Register("tool")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.Register("tool")
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, s.Unregister("tool"))
	_, ok := s.App("tool")
	assert.False(t, ok)
	assert.NotContains(t, readFile(t, s.Path())["apps"], "tool")

	assert.NoError(t, s.Unregister("never-registered"))
}

func TestReopenKeepsState(t *testing.T) {
	s, dir := setupStore(t)
	_, err := s.Register("tool")
	require.NoError(t, err)
	require.NoError(t, s.SetAppOption("tool", "K", "v"))
	require.NoError(t, s.SetOption(OptLogLevel, "DEBUG"))

	reopened, err := Open(s.Path(), filepath.Join(dir, "apps"))
	require.NoError(t, err)
	v, err := reopened.AppOption("tool", "K")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, "DEBUG", reopened.OptionString(OptLogLevel))
}

func TestWatchRegistersNewDirectories(t *testing.T) {
	s, dir := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addedCh := make(chan []string, 4)
	require.NoError(t, s.Watch(ctx, 20*time.Millisecond, func(names []string) { addedCh <- names }))

	require.NoError(t, os.Mkdir(filepath.Join(dir, "apps", ".staging-x"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "apps", "dropped"), 0o755))

	select {
	case names := <-addedCh:
		assert.Equal(t, []string{"dropped"}, names)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not register the new directory")
	}

	_, ok := s.App(".staging-x")
	assert.False(t, ok)
}
