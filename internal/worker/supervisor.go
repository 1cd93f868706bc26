package worker

import (
	"time"

	"league-tracker/internal/constants"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// NewSupervisor builds the worker process tree. Services that panic or
// return are restarted with backoff.
func NewSupervisor(logger zerolog.Logger, services ...suture.Service) *suture.Supervisor {
	sup := suture.New("league-worker", suture.Spec{
		EventHook: func(e suture.Event) {
			logger.Warn().
				Str("event", e.String()).
				Fields(e.Map()).
				Msg("supervisor event")
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          constants.ShutdownTimeout,
	})
	for _, svc := range services {
		sup.Add(svc)
	}
	return sup
}
