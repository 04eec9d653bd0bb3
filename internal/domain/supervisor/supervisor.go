package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/seadaemon/internal/domain/manifest"
	"github.com/GriffinCanCode/seadaemon/internal/domain/store"
	"github.com/GriffinCanCode/seadaemon/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

// Registry is the app metadata the supervisor reads
type Registry interface {
	OptionReader
	App(name string) (store.AppRecord, bool)
}

// Instance is one tracked app process
type Instance struct {
	App       string
	Args      []string
	StartedAt time.Time
	proc      *Process
	stopped   bool
}

// PID returns the OS process identifier
func (i *Instance) PID() int {
	return i.proc.PID()
}

// Supervisor spawns and tracks app processes
type Supervisor struct {
	registry   Registry
	logger     *zap.Logger
	metrics    *monitoring.Metrics
	logDir     string
	stopSignal syscall.Signal

	mu        sync.Mutex
	instances map[string][]*Instance // Protected by mu
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithLogger sets the supervisor logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithLogDir appends each app's output to <dir>/<app>.log instead of
// inheriting the daemon's stdout and stderr
func WithLogDir(dir string) Option {
	return func(s *Supervisor) { s.logDir = dir }
}

// WithStopSignal sets the signal Stop delivers
func WithStopSignal(sig syscall.Signal) Option {
	return func(s *Supervisor) { s.stopSignal = sig }
}

// New creates a supervisor reading app metadata from registry
func New(registry Registry, opts ...Option) *Supervisor {
	s := &Supervisor{
		registry:   registry,
		logger:     zap.NewNop(),
		stopSignal: syscall.SIGTERM,
		instances:  make(map[string][]*Instance),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithMetrics adds metrics tracking to the supervisor
func (s *Supervisor) WithMetrics(metrics *monitoring.Metrics) *Supervisor {
	s.metrics = metrics
	return s
}

// Run launches an instance of name and returns it once the OS has started it.
// The child is not bound to ctx and keeps running after the call returns.
func (s *Supervisor) Run(ctx context.Context, name string, params RunParams) (*Instance, error) {
	rec, ok := s.registry.App(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrAppNotFound, name)
	}

	m, err := manifest.Load(rec.Dir)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	extra, err := ParseArgs(params.Args)
	if err != nil {
		return nil, err
	}

	conn, err := ResolveConnection(s.registry, params)
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(rec.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSpawnFailure, err)
	}

	argv := make([]string, 0, 1+len(m.Args)+len(extra))
	argv = append(argv, m.EntryPoint)
	argv = append(argv, m.Args...)
	argv = append(argv, extra...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(resolveEntryPoint(dir, m.EntryPoint), argv[1:]...)
	cmd.Args[0] = m.EntryPoint
	cmd.Dir = dir
	cmd.Env = BuildEnv(os.Environ(), conn.Env(), rec.Overrides)

	output, err := s.openOutput(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSpawnFailure, err)
	}
	cmd.Stdout, cmd.Stderr = output, output

	proc, err := start(cmd)
	if output != os.Stdout {
		output.Close()
	}
	if err != nil {
		s.logger.Warn("App failed to start",
			zap.String("app", name),
			zap.Strings("args", argv),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", types.ErrSpawnFailure, err)
	}

	inst := &Instance{App: name, Args: argv, StartedAt: time.Now(), proc: proc}

	s.mu.Lock()
	s.instances[name] = append(s.instances[name], inst)
	s.mu.Unlock()

	s.logger.Info("App started",
		zap.String("app", name),
		zap.Int("pid", proc.PID()),
		zap.Strings("args", argv))
	s.refreshMetrics()

	return inst, nil
}

// Stop signals the tracked instance with pid. It does not wait for exit.
func (s *Supervisor) Stop(pid int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, idx := s.findLocked(pid)
	if idx < 0 {
		return "", fmt.Errorf("%w: %d", types.ErrInstanceNotFound, pid)
	}
	inst := s.instances[name][idx]

	if err := inst.proc.Signal(s.stopSignal); err != nil {
		return name, err
	}
	inst.stopped = true

	if alive, _ := inst.proc.Poll(); !alive {
		s.removeLocked(name, idx)
	}

	s.logger.Info("App stop requested",
		zap.String("app", name),
		zap.Int("pid", pid),
		zap.Stringer("signal", s.stopSignal))
	return name, nil
}

// StopApp signals every live instance of name and drops all of its
// entries. It returns the number of instances signalled.
func (s *Supervisor) StopApp(name string) (int, error) {
	s.mu.Lock()
	instances := s.instances[name]
	delete(s.instances, name)
	s.mu.Unlock()

	var errs []error
	signalled := 0
	for _, inst := range instances {
		if alive, _ := inst.proc.Poll(); !alive {
			continue
		}
		if err := inst.proc.Signal(s.stopSignal); err != nil {
			errs = append(errs, err)
			continue
		}
		signalled++
	}

	if signalled > 0 {
		s.logger.Info("App instances stopped", zap.String("app", name), zap.Int("count", signalled))
	}
	s.refreshMetrics()
	return signalled, errors.Join(errs...)
}

// Owner returns the app a tracked pid belongs to
func (s *Supervisor) Owner(pid int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, idx := s.findLocked(pid)
	return name, idx >= 0
}

// List polls every tracked instance and reports them per app. Instances
// that were stopped and have since exited are dropped.
func (s *Supervisor) List() map[string][]types.InstanceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]types.InstanceStatus, len(s.instances))
	tracked, alive := 0, 0
	for name, instances := range s.instances {
		kept := instances[:0]
		statuses := make([]types.InstanceStatus, 0, len(instances))
		for _, inst := range instances {
			status := inst.status()
			if inst.stopped && !status.Alive {
				continue
			}
			kept = append(kept, inst)
			statuses = append(statuses, status)
			if status.Alive {
				alive++
			}
		}
		clear(instances[len(kept):])
		if len(kept) == 0 {
			delete(s.instances, name)
			continue
		}
		s.instances[name] = kept
		tracked += len(kept)
		out[name] = statuses
	}

	if s.metrics != nil {
		s.metrics.SetInstances(tracked, alive)
	}
	return out
}

// Prune drops every instance that has exited and returns how many went
func (s *Supervisor) Prune() int {
	s.mu.Lock()
	pruned := 0
	for name, instances := range s.instances {
		kept := instances[:0]
		for _, inst := range instances {
			if alive, _ := inst.proc.Poll(); alive {
				kept = append(kept, inst)
				continue
			}
			pruned++
		}
		clear(instances[len(kept):])
		if len(kept) == 0 {
			delete(s.instances, name)
		} else {
			s.instances[name] = kept
		}
	}
	s.mu.Unlock()

	if pruned > 0 {
		s.logger.Info("Pruned exited instances", zap.Int("count", pruned))
		if s.metrics != nil {
			s.metrics.AddPruned(pruned)
		}
	}
	s.refreshMetrics()
	return pruned
}

// Count returns the number of tracked instances
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, instances := range s.instances {
		n += len(instances)
	}
	return n
}

func (s *Supervisor) refreshMetrics() {
	if s.metrics == nil {
		return
	}
	s.List()
}

func (s *Supervisor) findLocked(pid int) (string, int) {
	names := make([]string, 0, len(s.instances))
	for name := range s.instances {
		names = append(names, name)
	}
	sort.Strings(names)

	// An exited entry may share its pid with a live one after pid reuse
	foundName, foundIdx := "", -1
	for _, name := range names {
		for i, inst := range s.instances[name] {
			if inst.PID() != pid {
				continue
			}
			if alive, _ := inst.proc.Poll(); alive {
				return name, i
			}
			if foundIdx < 0 {
				foundName, foundIdx = name, i
			}
		}
	}
	return foundName, foundIdx
}

func (s *Supervisor) removeLocked(name string, idx int) {
	instances := s.instances[name]
	instances = append(instances[:idx], instances[idx+1:]...)
	if len(instances) == 0 {
		delete(s.instances, name)
		return
	}
	s.instances[name] = instances
}

func (s *Supervisor) openOutput(name string) (*os.File, error) {
	if s.logDir == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(s.logDir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(s.logDir, name+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func (i *Instance) status() types.InstanceStatus {
	alive, code := i.proc.Poll()
	status := types.InstanceStatus{
		PID:       i.PID(),
		Alive:     alive,
		Args:      append([]string(nil), i.Args...),
		StartedAt: i.StartedAt,
		Stopped:   i.stopped,
	}
	if !alive {
		status.ExitCode = &code
	}
	return status
}

// resolveEntryPoint prefers a file shipped in the app directory and
// otherwise leaves the name for a PATH lookup
func resolveEntryPoint(dir, entryPoint string) string {
	if filepath.IsAbs(entryPoint) {
		return entryPoint
	}
	candidate := filepath.Join(dir, entryPoint)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return entryPoint
}
