// Package status composes the snapshot served by GET /status.
package status

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

// Redacted replaces secret option values in snapshots
const Redacted = "********"

// ConfigSource provides registered apps and global options
type ConfigSource interface {
	Apps() map[string]map[string]string
	Options() map[string]any
}

// InstanceLister provides tracked instances per app
type InstanceLister interface {
	List() map[string][]types.InstanceStatus
}

// Inspector reads resource usage of a live process
type Inspector interface {
	RSS(pid int) (uint64, bool)
}

// Reporter builds status snapshots
type Reporter struct {
	config    ConfigSource
	instances InstanceLister
	inspector Inspector
	redact    bool
}

// Option configures a Reporter
type Option func(*Reporter)

// WithInspector replaces the process inspector; nil disables enrichment
func WithInspector(inspector Inspector) Option {
	return func(r *Reporter) { r.inspector = inspector }
}

// WithSecrets includes secret option values verbatim
func WithSecrets() Option {
	return func(r *Reporter) { r.redact = false }
}

// New creates a reporter
func New(config ConfigSource, instances InstanceLister, opts ...Option) *Reporter {
	r := &Reporter{
		config:    config,
		instances: instances,
		inspector: ProcessInspector{},
		redact:    true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns registered apps, their tracked instances and the global
// options. Every registered app has an instance list, possibly empty.
func (r *Reporter) Snapshot() types.Snapshot {
	apps := r.config.Apps()
	options := r.config.Options()
	listed := r.instances.List()

	statuses := make(map[string][]types.InstanceStatus, len(apps))
	for name := range apps {
		statuses[name] = []types.InstanceStatus{}
	}
	for name, instances := range listed {
		if r.inspector != nil {
			for i := range instances {
				if !instances[i].Alive {
					continue
				}
				if rss, ok := r.inspector.RSS(instances[i].PID); ok {
					instances[i].RSSBytes = rss
				}
			}
		}
		statuses[name] = instances
	}

	if r.redact {
		for key, value := range options {
			if IsSecret(key) {
				if s, ok := value.(string); ok && s == "" {
					continue
				}
				options[key] = Redacted
			}
		}
		apps = redactApps(apps)
	}

	return types.Snapshot{Apps: apps, AppsStatus: statuses, Options: options}
}

// redactApps copies per-app overrides with secret values masked
func redactApps(apps map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(apps))
	for name, overrides := range apps {
		masked := make(map[string]string, len(overrides))
		for key, value := range overrides {
			if value != "" && IsSecret(key) {
				value = Redacted
			}
			masked[key] = value
		}
		out[name] = masked
	}
	return out
}

// IsSecret reports whether an option or override key holds credential material
func IsSecret(key string) bool {
	k := strings.ToLower(key)
	if k == "xauth" {
		return true
	}
	for _, marker := range []string{"password", "secret", "token"} {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

// ProcessInspector reads process information from the OS
type ProcessInspector struct{}

// RSS returns the resident set size of pid
func (ProcessInspector) RSS(pid int) (uint64, bool) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, false
	}
	mem, err := p.MemoryInfo()
	if err != nil || mem == nil {
		return 0, false
	}
	return mem.RSS, true
}
