package control

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/seadaemon/internal/domain/events"
	"github.com/GriffinCanCode/seadaemon/internal/domain/installer"
	"github.com/GriffinCanCode/seadaemon/internal/domain/store"
	"github.com/GriffinCanCode/seadaemon/internal/domain/supervisor"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/logging"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

type fixture struct {
	ctrl    *Controller
	store   *store.Store
	sup     *supervisor.Supervisor
	metrics *monitoring.Metrics
	logger  *logging.Logger
	events  *events.Subscription
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "daemon_cfg.json"), filepath.Join(dir, "apps"))
	require.NoError(t, err)
	require.NoError(t, st.SetOption(supervisor.OptNCURL, "https://cloud.example.com"))
	require.NoError(t, st.SetOption(supervisor.OptAuthUser, "admin"))
	require.NoError(t, st.SetOption(supervisor.OptAuthPassword, "secret"))

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	sup := supervisor.New(st, supervisor.WithStopSignal(syscall.SIGKILL)).WithMetrics(metrics)
	inst := installer.New(st, sup, installer.NewFetcher(installer.FetchConfig{}, nil), 0, nil)
	bus := events.NewBus(16)
	logger := logging.NewNop()

	f := &fixture{
		ctrl: New(Deps{
			Store:      st,
			Supervisor: sup,
			Installer:  inst,
			Bus:        bus,
			Metrics:    metrics,
			Logger:     logger,
		}),
		store:   st,
		sup:     sup,
		metrics: metrics,
		logger:  logger,
		events:  bus.Subscribe(),
	}
	t.Cleanup(func() {
		for _, name := range st.AppNames() {
			_, _ = sup.StopApp(name)
		}
		f.events.Close()
	})
	return f
}

func (f *fixture) next(t *testing.T) events.Event {
	t.Helper()
	select {
	case evt := <-f.events.C:
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("no event published")
		return events.Event{}
	}
}

func appPackage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct {
		name string
		body string
		mode uint32
	}{
		{"appinfo.json", `{"entry_point": "./run.sh", "args": ["serve"], "version": "1.2.0"}`, 0o644},
		{"run.sh", "#!/bin/sh\nexec sleep 30\n", 0o755},
	}
	for _, file := range files {
		hdr := &zip.FileHeader{Name: file.name, Method: zip.Deflate}
		hdr.SetMode(os.FileMode(file.mode))
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(file.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.ctrl.Install(ctx, "tool", installer.Source{Body: bytes.NewReader(appPackage(t)), Name: "tool.zip"})
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", res.Manifest.Version)

	evt := f.next(t)
	assert.Equal(t, events.AppInstalled, evt.Type)
	assert.Equal(t, "tool", evt.App)
	assert.Equal(t, "1.2.0", evt.Data["version"])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AppsRegistered))

	pid, err := f.ctrl.Run(ctx, "tool", supervisor.RunParams{Args: `["--verbose"]`})
	require.NoError(t, err)
	assert.Positive(t, pid)

	evt = f.next(t)
	assert.Equal(t, events.InstanceStarted, evt.Type)
	assert.Equal(t, pid, evt.PID)

	snap := f.ctrl.Status()
	require.Len(t, snap.AppsStatus["tool"], 1)
	assert.Equal(t, []string{"./run.sh", "serve", "--verbose"}, snap.AppsStatus["tool"][0].Args)

	require.NoError(t, f.ctrl.Stop(pid))
	evt = f.next(t)
	assert.Equal(t, events.InstanceStopped, evt.Type)
	assert.Equal(t, pid, evt.PID)

	require.Eventually(t, func() bool {
		return len(f.ctrl.Status().AppsStatus["tool"]) == 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.ErrorIs(t, f.ctrl.Stop(pid), types.ErrInstanceNotFound)

	require.NoError(t, f.ctrl.Remove(ctx, "tool"))
	evt = f.next(t)
	assert.Equal(t, events.AppRemoved, evt.Type)
	assert.NoDirExists(t, f.store.AppDir("tool"))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.AppsRegistered))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations.WithLabelValues("install", "ok")))
}

func TestFailuresDoNotPublish(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.ctrl.Run(ctx, "ghost", supervisor.RunParams{})
	assert.ErrorIs(t, err, types.ErrAppNotFound)

	assert.ErrorIs(t, f.ctrl.Stop(999999), types.ErrInstanceNotFound)

	_, err = f.ctrl.Install(ctx, "tool", installer.Source{Body: bytes.NewReader([]byte("not an archive"))})
	assert.ErrorIs(t, err, types.ErrInstallFailure)

	select {
	case evt := <-f.events.C:
		t.Fatalf("unexpected event %s", evt.Type)
	default:
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations.WithLabelValues("run", "fail")))
}

func TestOptions(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.ctrl.SetOption("nc_url", "https://other.example.com", ""))
	got, err := f.ctrl.GetOption("nc_url", "")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com", got)
	evt := f.next(t)
	assert.Equal(t, events.OptionSet, evt.Type)
	assert.Equal(t, "nc_url", evt.Data["key"])

	got, err = f.ctrl.GetOption("missing", "")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.store.Register("tool")
	require.NoError(t, err)
	require.NoError(t, f.ctrl.SetOption("APP_MODE", "dev", "tool"))
	got, err = f.ctrl.GetOption("APP_MODE", "tool")
	require.NoError(t, err)
	assert.Equal(t, "dev", got)

	_, err = f.ctrl.GetOption("APP_MODE", "ghost")
	assert.ErrorIs(t, err, types.ErrAppNotFound)
	assert.ErrorIs(t, f.ctrl.SetOption("APP_MODE", "dev", "ghost"), types.ErrAppNotFound)
	assert.ErrorIs(t, f.ctrl.SetOption("APP_MODE", "dev", "../etc"), types.ErrInvalidAppName)
}

func TestSetLogLevel(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.ctrl.SetOption(store.OptLogLevel, "DEBUG", ""))
	assert.Equal(t, zapcore.DebugLevel, f.logger.Level())
	assert.Equal(t, "DEBUG", f.store.OptionString(store.OptLogLevel))

	err := f.ctrl.SetOption(store.OptLogLevel, "LOUD", "")
	require.Error(t, err)
	assert.Equal(t, "DEBUG", f.store.OptionString(store.OptLogLevel))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(errors.Join(types.ErrArgParse)))
	assert.True(t, IsClientError(types.ErrInstanceNotFound))
	assert.False(t, IsClientError(types.ErrSpawnFailure))
	assert.False(t, IsClientError(errors.New("boom")))
}
