package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
	"github.com/GriffinCanCode/seadaemon/internal/shared/utils"
)

// Well-known option keys
const (
	OptLogLevel = "log_level"
	OptHost     = "host"
	OptPort     = "port"
	OptXAuth    = "xauth"
	OptNCURL    = "nc_url"
)

// RequiredOptions must be present after load
var RequiredOptions = []string{OptLogLevel, OptHost, OptPort, OptXAuth}

// DefaultOptions returns the options written on first start
func DefaultOptions() map[string]any {
	return map[string]any{
		OptLogLevel: "WARN",
		OptHost:     "127.0.0.1",
		OptPort:     8063,
		OptXAuth:    "nextcloud:",
		OptNCURL:    "",
	}
}

// DefaultIgnore skips hidden and staging directories during rescans
var DefaultIgnore = []string{".*"}

// AppRecord is one registered app
type AppRecord struct {
	Name      string
	Dir       string
	Overrides map[string]string
}

type document struct {
	Apps    map[string]map[string]any `json:"apps"`
	Options map[string]any            `json:"options"`
}

// Store owns the daemon config file and the apps directory listing
type Store struct {
	path    string
	appsDir string
	ignore  []string
	logger  *zap.Logger

	mu      sync.RWMutex
	apps    map[string]map[string]string // Protected by mu
	options map[string]any               // Protected by mu
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithIgnore replaces the rescan ignore globs
func WithIgnore(patterns ...string) Option {
	return func(s *Store) { s.ignore = patterns }
}

// Open prepares the apps directory, loads the config file and rescans.
// A missing required option yields types.ErrConfigMissingKey.
func Open(path, appsDir string, opts ...Option) (*Store, error) {
	s := &Store{
		path:    path,
		appsDir: appsDir,
		ignore:  DefaultIgnore,
		logger:  zap.NewNop(),
		apps:    make(map[string]map[string]string),
		options: make(map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(appsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create apps dir: %w", err)
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	if _, err := s.Rescan(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the config file location
func (s *Store) Path() string {
	return s.path
}

// AppsDir returns the apps directory
func (s *Store) AppsDir() string {
	return s.appsDir
}

// Load reads the config file, writing defaults first if it does not exist.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("Config file not found, writing defaults", zap.String("path", s.path))
		s.apps = make(map[string]map[string]string)
		s.options = DefaultOptions()
		if err := s.saveLocked(); err != nil {
			return err
		}
		data, err = os.ReadFile(s.path)
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var doc document
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", s.path, err)
	}

	for _, key := range RequiredOptions {
		if _, ok := doc.Options[key]; !ok {
			return fmt.Errorf("%w: %s", types.ErrConfigMissingKey, key)
		}
	}

	s.options = doc.Options
	s.apps = make(map[string]map[string]string, len(doc.Apps))
	for name, overrides := range doc.Apps {
		values := make(map[string]string, len(overrides))
		for k, v := range overrides {
			values[k] = stringify(v)
		}
		s.apps[name] = values
	}
	return nil
}

// Save writes the full in-memory state to the config file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	doc := document{
		Apps:    make(map[string]map[string]any, len(s.apps)),
		Options: s.options,
	}
	for name, overrides := range s.apps {
		values := make(map[string]any, len(overrides))
		for k, v := range overrides {
			values[k] = v
		}
		doc.Apps[name] = values
	}

	data, err := sonic.ConfigStd.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// App returns the record for name
func (s *Store) App(name string) (AppRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	overrides, ok := s.apps[name]
	if !ok {
		return AppRecord{}, false
	}
	return AppRecord{Name: name, Dir: s.AppDir(name), Overrides: copyStrings(overrides)}, true
}

// Apps returns a copy of the per-app override map
func (s *Store) Apps() map[string]map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]string, len(s.apps))
	for name, overrides := range s.apps {
		out[name] = copyStrings(overrides)
	}
	return out
}

// AppNames returns registered app names in sorted order
func (s *Store) AppNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.apps))
	for name := range s.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AppDir returns the install directory of name
func (s *Store) AppDir(name string) string {
	return filepath.Join(s.appsDir, name)
}

// Register adds name with an empty override map if it is not known yet.
// It reports whether the app was added.
func (s *Store) Register(name string) (bool, error) {
	if err := utils.ValidateAppName(name); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[name]; ok {
		return false, nil
	}
	s.apps[name] = make(map[string]string)
	if err := s.saveLocked(); err != nil {
		delete(s.apps, name)
		return false, err
	}
	return true, nil
}

// Unregister drops name. Unknown names are a no-op.
func (s *Store) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.apps[name]
	if !ok {
		return nil
	}
	delete(s.apps, name)
	if err := s.saveLocked(); err != nil {
		s.apps[name] = prev
		return err
	}
	return nil
}

// AppOption returns one per-app override
func (s *Store) AppOption(name, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	overrides, ok := s.apps[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", types.ErrAppNotFound, name)
	}
	return overrides[key], nil
}

// SetAppOption sets one per-app override and saves
func (s *Store) SetAppOption(name, key, value string) error {
	if err := utils.ValidateOptionKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	overrides, ok := s.apps[name]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrAppNotFound, name)
	}
	prev, had := overrides[key]
	overrides[key] = value
	if err := s.saveLocked(); err != nil {
		if had {
			overrides[key] = prev
		} else {
			delete(overrides, key)
		}
		return err
	}
	return nil
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// stringify renders a decoded JSON value the way it would appear in an environment
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		data, err := sonic.ConfigStd.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
