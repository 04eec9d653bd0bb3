package store

import (
	"fmt"
	"strconv"

	"github.com/GriffinCanCode/seadaemon/internal/shared/utils"
)

// Option returns a global option value
func (s *Store) Option(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.options[key]
	return v, ok
}

// OptionString returns a global option rendered as a string, "" when unset
func (s *Store) OptionString(key string) string {
	v, ok := s.Option(key)
	if !ok {
		return ""
	}
	return stringify(v)
}

// OptionInt returns a global option as an int
func (s *Store) OptionInt(key string) (int, error) {
	v, ok := s.Option(key)
	if !ok {
		return 0, fmt.Errorf("option %s is not set", key)
	}
	switch val := v.(type) {
	case float64:
		return int(val), nil
	case int:
		return val, nil
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("option %s is not a number: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("option %s has unsupported type %T", key, v)
	}
}

// Options returns a copy of the global options
func (s *Store) Options() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.options))
	for k, v := range s.options {
		out[k] = v
	}
	return out
}

// SetOption sets a global option and saves
func (s *Store) SetOption(key string, value any) error {
	if err := utils.ValidateOptionKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.options[key]
	s.options[key] = value
	if err := s.saveLocked(); err != nil {
		if had {
			s.options[key] = prev
		} else {
			delete(s.options, key)
		}
		return err
	}
	return nil
}
