package supervisor

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartJanitor prunes exited instances on schedule (standard cron syntax
// or descriptors such as "@every 1h") until ctx is done.
func (s *Supervisor) StartJanitor(ctx context.Context, schedule string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if n := s.Prune(); n > 0 {
			s.logger.Debug("Janitor pruned instances", zap.Int("count", n))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}

	c.Start()
	s.logger.Info("Instance janitor scheduled", zap.String("schedule", schedule))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
