package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/seadaemon/internal/domain/store"
	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

const sleeper = "#!/bin/sh\nprintf '%s\\n' \"$@\" > args.out\nprintf '%s|%s|%s\\n' \"$nextcloud_url\" \"$nc_auth_user\" \"$APP_MODE\" > env.out\nexec sleep 30\n"

type fixture struct {
	store *store.Store
	sup   *Supervisor
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "daemon_cfg.json"), filepath.Join(dir, "apps"))
	require.NoError(t, err)
	require.NoError(t, st.SetOption(OptNCURL, "https://cloud.example.com"))
	require.NoError(t, st.SetOption(OptAuthUser, "admin"))
	require.NoError(t, st.SetOption(OptAuthPassword, "secret"))

	f := &fixture{store: st, sup: New(st, opts...)}
	t.Cleanup(func() {
		f.sup.mu.Lock()
		for _, instances := range f.sup.instances {
			for _, inst := range instances {
				_ = inst.proc.Signal(syscall.SIGKILL)
			}
		}
		f.sup.mu.Unlock()
		assert.Eventually(t, func() bool {
			f.sup.Prune()
			return f.sup.Count() == 0
		}, 5*time.Second, 20*time.Millisecond)
	})
	return f
}

// addApp installs an app directory with the given manifest and entry script
func (f *fixture) addApp(t *testing.T, name, manifest, script string, mode os.FileMode) string {
	t.Helper()
	dir := f.store.AppDir(name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if manifest != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "appinfo.json"), []byte(manifest), 0o644))
	}
	if script != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), mode))
	}
	_, err := f.store.Register(name)
	require.NoError(t, err)
	return dir
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	var data []byte
	require.Eventually(t, func() bool {
		var err error
		data, err = os.ReadFile(path)
		return err == nil && len(data) > 0
	}, 5*time.Second, 10*time.Millisecond)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestRunBuildsArgumentVector(t *testing.T) {
	f := setup(t)
	dir := f.addApp(t, "tool", `{"entry_point": "./run.sh", "args": ["serve"]}`, sleeper, 0o755)

	inst, err := f.sup.Run(context.Background(), "tool", RunParams{Args: `["--version"]`})
	require.NoError(t, err)
	assert.Greater(t, inst.PID(), 0)
	assert.Equal(t, []string{"./run.sh", "serve", "--version"}, inst.Args)

	assert.Equal(t, []string{"serve", "--version"}, readLines(t, filepath.Join(dir, "args.out")))

	statuses := f.sup.List()
	require.Len(t, statuses["tool"], 1)
	assert.Equal(t, inst.PID(), statuses["tool"][0].PID)
	assert.True(t, statuses["tool"][0].Alive)
	assert.Nil(t, statuses["tool"][0].ExitCode)

	owner, ok := f.sup.Owner(inst.PID())
	assert.True(t, ok)
	assert.Equal(t, "tool", owner)
}

func TestRunEnvironmentPrecedence(t *testing.T) {
	f := setup(t)
	dir := f.addApp(t, "tool", `{"entry_point": "./run.sh"}`, sleeper, 0o755)
	require.NoError(t, f.store.SetAppOption("tool", "APP_MODE", "prod"))
	require.NoError(t, f.store.SetAppOption("tool", EnvNextcloudURL, "https://override.example.com"))

	_, err := f.sup.Run(context.Background(), "tool", RunParams{})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://override.example.com|admin|prod"}, readLines(t, filepath.Join(dir, "env.out")))
}

func TestRunPerRequestCredentials(t *testing.T) {
	f := setup(t)
	dir := f.addApp(t, "tool", `{"entry_point": "./run.sh"}`, sleeper, 0o755)

	_, err := f.sup.Run(context.Background(), "tool", RunParams{NCURL: "https://other.example.com", UserToken: "alice:pw"})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://other.example.com|alice|"}, readLines(t, filepath.Join(dir, "env.out")))
}

func TestRunFailuresSpawnNothing(t *testing.T) {
	tests := []struct {
		name     string
		app      string
		manifest string
		script   string
		mode     os.FileMode
		params   RunParams
		prepare  func(t *testing.T, f *fixture)
		wantErr  error
	}{
		{
			name:    "unknown app",
			app:     "",
			params:  RunParams{},
			wantErr: types.ErrAppNotFound,
		},
		{
			name:    "manifest missing",
			app:     "tool",
			script:  sleeper,
			mode:    0o755,
			wantErr: types.ErrManifestMissing,
		},
		{
			name:     "entry point missing",
			app:      "tool",
			manifest: `{"args": ["serve"]}`,
			script:   sleeper,
			mode:     0o755,
			wantErr:  types.ErrEntryPointMissing,
		},
		{
			name:     "malformed args",
			app:      "tool",
			manifest: `{"entry_point": "./run.sh"}`,
			script:   sleeper,
			mode:     0o755,
			params:   RunParams{Args: `["--version"`},
			wantErr:  types.ErrArgParse,
		},
		{
			name:     "args not a list",
			app:      "tool",
			manifest: `{"entry_point": "./run.sh"}`,
			script:   sleeper,
			mode:     0o755,
			params:   RunParams{Args: `{"a": 1}`},
			wantErr:  types.ErrArgParse,
		},
		{
			name:     "no backing url",
			app:      "tool",
			manifest: `{"entry_point": "./run.sh"}`,
			script:   sleeper,
			mode:     0o755,
			prepare: func(t *testing.T, f *fixture) {
				require.NoError(t, f.store.SetOption(OptNCURL, ""))
			},
			wantErr: types.ErrCredentialsMissing,
		},
		{
			name:     "entry point not executable",
			app:      "tool",
			manifest: `{"entry_point": "./run.sh"}`,
			script:   sleeper,
			mode:     0o644,
			wantErr:  types.ErrSpawnFailure,
		},
		{
			name:     "entry point absent",
			app:      "tool",
			manifest: `{"entry_point": "./missing.sh"}`,
			wantErr:  types.ErrSpawnFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			name := "ghost"
			if tt.app != "" {
				name = tt.app
				f.addApp(t, name, tt.manifest, tt.script, tt.mode)
			}
			if tt.prepare != nil {
				tt.prepare(t, f)
			}

			inst, err := f.sup.Run(context.Background(), name, tt.params)
			assert.Nil(t, inst)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, 0, f.sup.Count())
		})
	}
}

func TestStopUnknownPID(t *testing.T) {
	f := setup(t)

	_, err := f.sup.Stop(999999)
	assert.True(t, errors.Is(err, types.ErrInstanceNotFound))
}

func TestStopSignalsAndListDropsExited(t *testing.T) {
	f := setup(t)
	f.addApp(t, "tool", `{"entry_point": "./run.sh"}`, sleeper, 0o755)

	inst, err := f.sup.Run(context.Background(), "tool", RunParams{})
	require.NoError(t, err)

	name, err := f.sup.Stop(inst.PID())
	require.NoError(t, err)
	assert.Equal(t, "tool", name)

	assert.Eventually(t, func() bool {
		return len(f.sup.List()["tool"]) == 0
	}, 5*time.Second, 20*time.Millisecond)

	_, err = f.sup.Stop(inst.PID())
	assert.True(t, errors.Is(err, types.ErrInstanceNotFound))
}

func TestExitedInstanceIsReportedUntilPruned(t *testing.T) {
	f := setup(t)
	f.addApp(t, "tool", `{"entry_point": "./run.sh"}`, "#!/bin/sh\nexit 3\n", 0o755)

	inst, err := f.sup.Run(context.Background(), "tool", RunParams{})
	require.NoError(t, err)

	var status types.InstanceStatus
	require.Eventually(t, func() bool {
		statuses := f.sup.List()["tool"]
		if len(statuses) != 1 {
			return false
		}
		status = statuses[0]
		return !status.Alive
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, inst.PID(), status.PID)
	require.NotNil(t, status.ExitCode)
	assert.Equal(t, 3, *status.ExitCode)

	// Reporting again does not drop it
	assert.Len(t, f.sup.List()["tool"], 1)

	assert.Equal(t, 1, f.sup.Prune())
	assert.Empty(t, f.sup.List())
}

func TestStopAlreadyExitedRemovesEntry(t *testing.T) {
	f := setup(t)
	f.addApp(t, "tool", `{"entry_point": "./run.sh"}`, "#!/bin/sh\nexit 0\n", 0o755)

	inst, err := f.sup.Run(context.Background(), "tool", RunParams{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		alive, _ := inst.proc.Poll()
		return !alive
	}, 5*time.Second, 20*time.Millisecond)

	_, err = f.sup.Stop(inst.PID())
	require.NoError(t, err)
	assert.Equal(t, 0, f.sup.Count())
}

func TestStopPrefersLiveInstanceOnReusedPID(t *testing.T) {
	f := setup(t)
	f.addApp(t, "tool", `{"entry_point": "./run.sh"}`, sleeper, 0o755)

	inst, err := f.sup.Run(context.Background(), "tool", RunParams{})
	require.NoError(t, err)

	// An earlier, already reaped instance that held the same pid
	stale := &Instance{App: "old", proc: &Process{pid: inst.PID(), exited: true}}
	f.sup.mu.Lock()
	f.sup.instances["old"] = []*Instance{stale}
	f.sup.mu.Unlock()

	owner, ok := f.sup.Owner(inst.PID())
	require.True(t, ok)
	assert.Equal(t, "tool", owner)

	name, err := f.sup.Stop(inst.PID())
	require.NoError(t, err)
	assert.Equal(t, "tool", name)

	assert.Eventually(t, func() bool {
		alive, _ := inst.proc.Poll()
		return !alive
	}, 5*time.Second, 20*time.Millisecond)
}

func TestConcurrentRunsDifferentApps(t *testing.T) {
	f := setup(t)
	f.addApp(t, "alpha", `{"entry_point": "./run.sh"}`, sleeper, 0o755)
	f.addApp(t, "beta", `{"entry_point": "./run.sh"}`, sleeper, 0o755)

	var wg sync.WaitGroup
	pids := make([]int, 2)
	errs := make([]error, 2)
	for i, name := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			inst, err := f.sup.Run(context.Background(), name, RunParams{})
			errs[i] = err
			if err == nil {
				pids[i] = inst.PID()
			}
		}(i, name)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, pids[0], pids[1])

	statuses := f.sup.List()
	assert.Len(t, statuses["alpha"], 1)
	assert.Len(t, statuses["beta"], 1)
}

func TestStopApp(t *testing.T) {
	f := setup(t)
	f.addApp(t, "tool", `{"entry_point": "./run.sh"}`, sleeper, 0o755)

	first, err := f.sup.Run(context.Background(), "tool", RunParams{})
	require.NoError(t, err)
	_, err = f.sup.Run(context.Background(), "tool", RunParams{})
	require.NoError(t, err)

	n, err := f.sup.StopApp("tool")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, f.sup.List()["tool"])

	assert.Eventually(t, func() bool {
		alive, _ := first.proc.Poll()
		return !alive
	}, 5*time.Second, 20*time.Millisecond)

	n, err = f.sup.StopApp("never-ran")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunWritesToLogDir(t *testing.T) {
	logDir := t.TempDir()
	f := setup(t, WithLogDir(logDir))
	f.addApp(t, "tool", `{"entry_point": "./run.sh"}`, "#!/bin/sh\necho hello from tool\n", 0o755)

	_, err := f.sup.Run(context.Background(), "tool", RunParams{})
	require.NoError(t, err)

	assert.Equal(t, []string{"hello from tool"}, readLines(t, filepath.Join(logDir, "tool.log")))
}

func TestJanitorPrunes(t *testing.T) {
	f := setup(t)
	f.addApp(t, "tool", `{"entry_point": "./run.sh"}`, "#!/bin/sh\nexit 0\n", 0o755)

	_, err := f.sup.Run(context.Background(), "tool", RunParams{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = f.sup.StartJanitor(ctx, "@every 1s")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return f.sup.Count() == 0 }, 5*time.Second, 50*time.Millisecond)

	_, err = f.sup.StartJanitor(ctx, "not a schedule")
	assert.Error(t, err)
}
