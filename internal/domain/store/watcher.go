package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce delays a rescan until a burst of directory events settles
const DefaultDebounce = 2 * time.Second

// Watch rescans the apps dir whenever directories appear in it, until ctx
// is done. onAdded, if non-nil, receives the names each rescan registered.
func (s *Store) Watch(ctx context.Context, debounce time.Duration, onAdded func([]string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(s.appsDir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch apps dir %s: %w", s.appsDir, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	s.logger.Info("Watching apps directory", zap.String("dir", s.appsDir))

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		fire := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if s.ignored(filepath.Base(event.Name)) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})

			case <-fire:
				added, err := s.Rescan()
				if err != nil {
					s.logger.Error("Apps directory rescan failed", zap.Error(err))
					continue
				}
				if len(added) > 0 && onAdded != nil {
					onAdded(added)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Error("Apps watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}
