// Package control is the single entry point the API layer drives. It
// serializes mutating operations per app, publishes lifecycle events and
// records operation metrics around the domain services.
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/seadaemon/internal/domain/events"
	"github.com/GriffinCanCode/seadaemon/internal/domain/installer"
	"github.com/GriffinCanCode/seadaemon/internal/domain/status"
	"github.com/GriffinCanCode/seadaemon/internal/domain/store"
	"github.com/GriffinCanCode/seadaemon/internal/domain/supervisor"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/logging"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
	"github.com/GriffinCanCode/seadaemon/internal/shared/utils"
)

const (
	resultOK   = "ok"
	resultFail = "fail"
)

// Controller coordinates the daemon's domain services
type Controller struct {
	store      *store.Store
	supervisor *supervisor.Supervisor
	installer  *installer.Installer
	reporter   *status.Reporter
	bus        *events.Bus
	metrics    *monitoring.Metrics
	logger     *logging.Logger
	locks      *utils.KeyLock
}

// Deps groups the services a Controller drives
type Deps struct {
	Store      *store.Store
	Supervisor *supervisor.Supervisor
	Installer  *installer.Installer
	Reporter   *status.Reporter
	Bus        *events.Bus
	Metrics    *monitoring.Metrics
	Logger     *logging.Logger
}

// New creates a controller. Bus, Metrics and Logger are optional.
func New(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = status.New(deps.Store, deps.Supervisor)
	}
	c := &Controller{
		store:      deps.Store,
		supervisor: deps.Supervisor,
		installer:  deps.Installer,
		reporter:   reporter,
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		logger:     logger,
		locks:      utils.NewKeyLock(),
	}
	c.refreshApps()
	return c
}

// Events returns the event bus, nil when events are disabled
func (c *Controller) Events() *events.Bus {
	return c.bus
}

// Install fetches and installs an app package
func (c *Controller) Install(ctx context.Context, name string, src installer.Source) (*installer.Result, error) {
	timer := monitoring.NewTimer(c.metrics, "install")
	unlock := c.locks.Lock(name)
	defer unlock()

	res, err := c.installer.Install(ctx, name, src)
	if err != nil {
		timer.Stop(resultFail)
		return nil, err
	}
	timer.Stop(resultOK)
	c.refreshApps()

	data := map[string]string{"source": src.String()}
	if res.Manifest != nil && res.Manifest.Version != "" {
		data["version"] = res.Manifest.Version
	}
	if res.Upgraded {
		data["upgraded"] = "true"
	}
	c.bus.Publish(events.Event{Type: events.AppInstalled, App: name, Data: data})
	return res, nil
}

// Remove stops every instance of an app and uninstalls it
func (c *Controller) Remove(ctx context.Context, name string) error {
	timer := monitoring.NewTimer(c.metrics, "remove")
	unlock := c.locks.Lock(name)
	defer unlock()

	if err := c.installer.Remove(ctx, name); err != nil {
		timer.Stop(resultFail)
		return err
	}
	timer.Stop(resultOK)
	c.refreshApps()

	c.bus.Publish(events.Event{Type: events.AppRemoved, App: name})
	return nil
}

// Run launches an instance of an app and returns its pid
func (c *Controller) Run(ctx context.Context, name string, params supervisor.RunParams) (int, error) {
	timer := monitoring.NewTimer(c.metrics, "run")
	unlock := c.locks.Lock(name)
	defer unlock()

	inst, err := c.supervisor.Run(ctx, name, params)
	if err != nil {
		timer.Stop(resultFail)
		return 0, err
	}
	timer.Stop(resultOK)

	pid := inst.PID()
	c.bus.Publish(events.Event{Type: events.InstanceStarted, App: name, PID: pid})
	return pid, nil
}

// Stop signals the tracked instance with pid
func (c *Controller) Stop(pid int) error {
	timer := monitoring.NewTimer(c.metrics, "stop")

	owner, ok := c.supervisor.Owner(pid)
	if !ok {
		timer.Stop(resultFail)
		return fmt.Errorf("%w: %d", types.ErrInstanceNotFound, pid)
	}
	unlock := c.locks.Lock(owner)
	defer unlock()

	name, err := c.supervisor.Stop(pid)
	if err != nil {
		timer.Stop(resultFail)
		return err
	}
	timer.Stop(resultOK)

	c.bus.Publish(events.Event{Type: events.InstanceStopped, App: name, PID: pid})
	return nil
}

// Status returns a snapshot of apps, instances and options
func (c *Controller) Status() types.Snapshot {
	return c.reporter.Snapshot()
}

// Prune drops finished instances and returns how many were removed
func (c *Controller) Prune() int {
	return c.supervisor.Prune()
}

// GetOption reads a global option, or a per-app override when app is set.
// Unset keys read as "".
func (c *Controller) GetOption(key, app string) (string, error) {
	if app != "" {
		if err := utils.ValidateAppName(app); err != nil {
			return "", err
		}
		return c.store.AppOption(app, key)
	}
	return c.store.OptionString(key), nil
}

// SetOption writes a global option, or a per-app override when app is set,
// and persists it before returning.
func (c *Controller) SetOption(key, value, app string) error {
	timer := monitoring.NewTimer(c.metrics, "option_set")
	err := c.setOption(key, value, app)
	if err != nil {
		timer.Stop(resultFail)
		return err
	}
	timer.Stop(resultOK)

	evt := events.Event{Type: events.OptionSet, App: app, Data: map[string]string{"key": key}}
	c.bus.Publish(evt)
	return nil
}

func (c *Controller) setOption(key, value, app string) error {
	if app != "" {
		if err := utils.ValidateAppName(app); err != nil {
			return err
		}
		unlock := c.locks.Lock(app)
		defer unlock()
		return c.store.SetAppOption(app, key, value)
	}

	if key == store.OptLogLevel {
		if _, err := logging.ParseLevel(value); err != nil {
			return fmt.Errorf("invalid log level %q: %w", value, err)
		}
	}
	if err := c.store.SetOption(key, value); err != nil {
		return err
	}
	if key == store.OptLogLevel {
		// Validated above
		_ = c.logger.SetLevel(value)
		c.logger.Info("Log level changed", zap.String("level", value))
	}
	return nil
}

// Rescan registers app directories that appeared since startup
func (c *Controller) Rescan() ([]string, error) {
	added, err := c.store.Rescan()
	if err != nil {
		return nil, err
	}
	c.onDiscovered(added)
	return added, nil
}

// Watch registers app directories as they appear until ctx is done
func (c *Controller) Watch(ctx context.Context, debounce time.Duration) error {
	return c.store.Watch(ctx, debounce, c.onDiscovered)
}

func (c *Controller) onDiscovered(added []string) {
	if len(added) == 0 {
		return
	}
	c.refreshApps()
	for _, name := range added {
		c.bus.Publish(events.Event{Type: events.AppInstalled, App: name, Data: map[string]string{"source": "scan"}})
	}
}

func (c *Controller) refreshApps() {
	if c.metrics != nil {
		c.metrics.SetAppsRegistered(len(c.store.AppNames()))
	}
}

// IsClientError reports whether err describes a bad request rather than a
// daemon fault
func IsClientError(err error) bool {
	for _, target := range []error{
		types.ErrAppNotFound,
		types.ErrInvalidAppName,
		types.ErrArgParse,
		types.ErrInstanceNotFound,
		types.ErrCredentialsMissing,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
