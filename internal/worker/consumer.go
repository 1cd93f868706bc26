package worker

import (
	"context"
	"fmt"
	"time"

	"league-tracker/internal/constants"
	"league-tracker/internal/domain"
	"league-tracker/internal/queue"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type DeliveryQueue interface {
	Dequeue(ctx context.Context) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
}

// Consumer pulls detail jobs off the queue one at a time. Run several for
// parallelism; each is a supervised service.
type Consumer struct {
	id     string
	queue  DeliveryQueue
	worker *DetailWorker
	logger zerolog.Logger
}

func NewConsumer(q DeliveryQueue, worker *DetailWorker, logger zerolog.Logger) *Consumer {
	id := uuid.NewString()[:8]
	return &Consumer{
		id:     id,
		queue:  q,
		worker: worker,
		logger: logger.With().Str("consumer", id).Logger(),
	}
}

func (c *Consumer) String() string {
	return "consumer-" + c.id
}

func (c *Consumer) Serve(ctx context.Context) error {
	c.logger.Info().Msg("consumer started")
	for {
		d, err := c.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("dequeue failed: %w", err)
		}
		c.Handle(ctx, d)
	}
}

// Handle runs one delivery and acks it. Failed jobs are acked too: the
// periodic resync picks up whatever is still missing.
func (c *Consumer) Handle(ctx context.Context, d *queue.Delivery) {
	log := c.logger.With().Str("job_id", d.ID).Logger()

	var job domain.DetailFetchJob
	if err := json.Unmarshal(d.Payload, &job); err != nil {
		log.Error().Err(err).Msg("dropping undecodable job")
		c.ack(log, d)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, constants.JobTimeout)
	_, err := c.worker.RunDetailJob(jobCtx, job)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("match detail job failed")
	}

	if ctx.Err() != nil {
		// shutting down; leave it leased so it is redelivered
		log.Info().Msg("job interrupted by shutdown")
		return
	}
	c.ack(log, d)
}

func (c *Consumer) ack(log zerolog.Logger, d *queue.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()
	if err := c.queue.Ack(ctx, d); err != nil {
		log.Warn().Err(err).Msg("failed to ack job")
	}
}

type ReapingQueue interface {
	RequeueExpired(ctx context.Context) (int, error)
	Depth(ctx context.Context) (queue.Depth, error)
}

// Reaper hands expired leases back to the queue and keeps depth gauges fresh.
type Reaper struct {
	queue    ReapingQueue
	interval time.Duration
	logger   zerolog.Logger
}

func NewReaper(q ReapingQueue, logger zerolog.Logger) *Reaper {
	return &Reaper{queue: q, interval: constants.QueueReapInterval, logger: logger}
}

func (r *Reaper) String() string {
	return "queue-reaper"
}

func (r *Reaper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.queue.RequeueExpired(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("reaper pass failed")
			}
			if _, err := r.queue.Depth(ctx); err != nil {
				r.logger.Debug().Err(err).Msg("failed to read queue depth")
			}
		}
	}
}
