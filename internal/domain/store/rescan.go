package store

import (
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/seadaemon/internal/shared/utils"
)

// Rescan registers every directory under the apps dir that is not known
// yet and returns the added names. Ignored and invalid names are skipped.
func (s *Store) Rescan() ([]string, error) {
	entries, err := os.ReadDir(s.appsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if s.ignored(name) {
			continue
		}
		if _, ok := s.apps[name]; ok {
			continue
		}
		if err := utils.ValidateAppName(name); err != nil {
			s.logger.Warn("Skipping app directory with invalid name", zap.String("dir", name))
			continue
		}
		s.apps[name] = make(map[string]string)
		added = append(added, name)
	}

	if len(added) == 0 {
		return nil, nil
	}
	sort.Strings(added)
	if err := s.saveLocked(); err != nil {
		for _, name := range added {
			delete(s.apps, name)
		}
		return nil, err
	}
	s.logger.Info("Registered app directories", zap.Strings("apps", added))
	return added, nil
}

func (s *Store) ignored(name string) bool {
	for _, pattern := range s.ignore {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
