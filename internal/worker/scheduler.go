package worker

import (
	"context"
	"fmt"

	"league-tracker/internal/config"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// Scheduler fires the periodic resync on a cron schedule.
type Scheduler struct {
	spec     string
	resyncer *Resyncer
	logger   zerolog.Logger
}

func NewScheduler(cfg *config.Config, resyncer *Resyncer, logger zerolog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(cfg.Worker.ResyncSchedule); err != nil {
		return nil, fmt.Errorf("invalid RESYNC_SCHEDULE %q: %w", cfg.Worker.ResyncSchedule, err)
	}
	return &Scheduler{spec: cfg.Worker.ResyncSchedule, resyncer: resyncer, logger: logger}, nil
}

func (s *Scheduler) String() string {
	return "resync-scheduler"
}

func (s *Scheduler) Serve(ctx context.Context) error {
	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(s.spec, func() {
		if _, err := s.resyncer.RunPeriodicResync(ctx); err != nil {
			s.logger.Error().Err(err).Msg("periodic resync failed")
		}
	}); err != nil {
		return fmt.Errorf("%w: %w", suture.ErrDoNotRestart, err)
	}

	s.logger.Info().Str("schedule", s.spec).Msg("resync scheduler started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
