package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"league-tracker/internal/config"
	"league-tracker/internal/constants"
	"league-tracker/internal/database"
	fxmodules "league-tracker/internal/fx"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.WorkerModule,
		fx.Invoke(runWorker),
	).Run()
}

func runWorker(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	supervisor *suture.Supervisor,
	cfg *config.Config,
	db *database.DB,
	rdb *goredis.Client,
	logger zerolog.Logger,
) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.WorkerMetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: constants.RequestTimeout,
	}

	var (
		cancel  context.CancelFunc
		stopped = make(chan struct{})
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done := supervisor.ServeBackground(ctx)

			go func() {
				defer close(stopped)
				err := <-done
				if ctx.Err() != nil {
					return
				}
				logger.Error().Err(err).Msg("supervisor exited unexpectedly")
				_ = shutdowner.Shutdown(fx.ExitCode(1))
			}()

			go func() {
				logger.Info().Str("addr", metricsSrv.Addr).Msg("worker metrics listening")
				if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Msg("metrics server failed")
				}
			}()

			logger.Info().Msg("worker started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("stopping worker")
			cancel()

			select {
			case <-stopped:
			case <-ctx.Done():
				logger.Warn().Msg("supervisor did not stop in time")
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer stop()

			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("metrics server shutdown failed")
			}

			if cerr := db.Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("error closing database connection")
			}
			if cerr := rdb.Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("error closing redis connection")
			}
			logger.Info().Msg("worker stopped")
			return nil
		},
	})
}
