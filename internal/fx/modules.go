package fx

import (
	"league-tracker/internal/api"
	"league-tracker/internal/config"
	"league-tracker/internal/database"
	"league-tracker/internal/logger"
	"league-tracker/internal/metrics"
	"league-tracker/internal/queue"
	"league-tracker/internal/ratelimit"
	redisclient "league-tracker/internal/redis"
	"league-tracker/internal/repository"
	"league-tracker/internal/server"
	"league-tracker/internal/service"
	"league-tracker/internal/worker"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"go.uber.org/fx"
)

const detailQueueName = "match_details"

func ProvideCmdable(rdb *goredis.Client) goredis.Cmdable {
	return rdb
}

func ProvideLocker(rdb *goredis.Client, logger zerolog.Logger) *redisclient.Locker {
	return redisclient.NewLocker(rdb, logger)
}

func ProvideLimiter(rdb goredis.Cmdable, logger zerolog.Logger) *ratelimit.Limiter {
	return ratelimit.New(rdb, logger)
}

// ProvideRecorder counts into both the shared Redis hash and Prometheus.
func ProvideRecorder(redisRecorder *metrics.RedisRecorder, logger zerolog.Logger) metrics.Recorder {
	return metrics.NewMulti(logger, redisRecorder, metrics.PromRecorder{})
}

func ProvideUpstream(cfg *config.Config, limiter *ratelimit.Limiter, recorder metrics.Recorder, logger zerolog.Logger) (service.Upstream, error) {
	return api.NewClient(cfg, limiter, recorder, logger)
}

func ProvideDetailQueue(rdb goredis.Cmdable, cfg *config.Config, logger zerolog.Logger) *queue.RedisQueue {
	return queue.NewRedisQueue(rdb, detailQueueName, queue.Options{
		VisibilityTimeout: cfg.Worker.VisibilityTimeout,
		DedupeTTL:         cfg.Worker.DedupeTTL,
	}, logger)
}

func ProvideJobQueue(q *queue.RedisQueue) service.JobQueue {
	return q
}

func ApplyLogLevel(cfg *config.Config, log zerolog.Logger) {
	level := logger.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)
	log.Info().Str("level", level.String()).Msg("log level applied")
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Invoke(ApplyLogLevel),
	fx.Provide(database.New),
	fx.Provide(redisclient.New),
	fx.Provide(ProvideCmdable),
	// quota + metrics
	fx.Provide(ProvideLimiter),
	fx.Provide(metrics.NewRedisRecorder),
	fx.Provide(ProvideRecorder),
	// repos
	fx.Provide(fx.Annotate(
		repository.NewIdentityRepository,
		fx.As(new(service.IdentityStore)),
		fx.As(new(worker.IdentityLister)),
	)),
	fx.Provide(fx.Annotate(
		repository.NewMatchRepository,
		fx.As(new(service.MatchStore)),
	)),
	// api client
	fx.Provide(ProvideUpstream),
	// queue
	fx.Provide(ProvideDetailQueue),
	fx.Provide(ProvideJobQueue),
	// svc
	fx.Provide(service.NewIdentityService),
	fx.Provide(service.NewMatchSyncService),
	fx.Provide(service.NewMatchDetailService),
)

var ServerModule = fx.Options(
	Module,
	fx.Provide(server.NewTrackerServer),
)

// ProvideSupervisor builds the worker process tree: detail consumers, the
// lease reaper and the resync scheduler.
func ProvideSupervisor(
	cfg *config.Config,
	q *queue.RedisQueue,
	detail *worker.DetailWorker,
	scheduler *worker.Scheduler,
	logger zerolog.Logger,
) *suture.Supervisor {
	services := make([]suture.Service, 0, max(cfg.Worker.Concurrency, 1)+2)
	for range max(cfg.Worker.Concurrency, 1) {
		services = append(services, worker.NewConsumer(q, detail, logger))
	}
	services = append(services, worker.NewReaper(q, logger), scheduler)

	logger.Info().
		Int("consumers", max(cfg.Worker.Concurrency, 1)).
		Int("services", len(services)).
		Str("resync_schedule", cfg.Worker.ResyncSchedule).
		Msg("worker services configured")
	return worker.NewSupervisor(logger, services...)
}

var WorkerModule = fx.Options(
	Module,
	fx.Provide(worker.NewDetailWorker),
	fx.Provide(func(s *service.MatchSyncService) worker.Syncer { return s }),
	fx.Provide(ProvideLocker),
	fx.Provide(worker.NewResyncer),
	fx.Provide(worker.NewScheduler),
	fx.Provide(ProvideSupervisor),
)
