package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"league-tracker/internal/constants"
	"league-tracker/internal/domain"
	"league-tracker/internal/metrics"
	"league-tracker/internal/service"

	"github.com/rs/zerolog"
)

const jobMetric = "jobs." + constants.DetailJobName

type JobStatus string

const (
	JobSuccess JobStatus = "success"
	JobPartial JobStatus = "partial"
	JobFailed  JobStatus = "failed"
)

type JobReport struct {
	Status   JobStatus
	Fetched  []string
	Skipped  []string // already had detail when the job ran
	NotFound []string
	Failed   map[string]error
}

type DetailWorker struct {
	upstream service.Upstream
	matches  service.MatchStore
	recorder metrics.Recorder
	logger   zerolog.Logger
}

func NewDetailWorker(upstream service.Upstream, matches service.MatchStore, recorder metrics.Recorder, logger zerolog.Logger) *DetailWorker {
	return &DetailWorker{upstream: upstream, matches: matches, recorder: recorder, logger: logger}
}

// RunDetailJob fills in detail for every id in the batch that still lacks
// it. Ids are handled independently; failures stay null for the next
// resync. The error is reserved for not being able to start at all.
func (w *DetailWorker) RunDetailJob(ctx context.Context, job domain.DetailFetchJob) (*JobReport, error) {
	start := time.Now()
	w.recorder.Increment(ctx, jobMetric+".started", 1, nil)

	missing, err := w.matches.ListMissingDetail(ctx, job.MatchIDs)
	if err != nil {
		w.recorder.Increment(ctx, jobMetric+".failed", 1, metrics.Tags{"reason": "storage"})
		return nil, fmt.Errorf("failed to check missing detail: %w", err)
	}

	report := &JobReport{Failed: make(map[string]error)}
	missingSet := make(map[string]struct{}, len(missing))
	for _, id := range missing {
		missingSet[id] = struct{}{}
	}
	for _, id := range job.MatchIDs {
		if _, ok := missingSet[id]; !ok {
			report.Skipped = append(report.Skipped, id)
		}
	}

	for _, id := range missing {
		if ctx.Err() != nil {
			report.Failed[id] = ctx.Err()
			continue
		}
		err := service.FetchAndStoreDetail(ctx, w.upstream, w.matches, id)
		switch {
		case err == nil:
			report.Fetched = append(report.Fetched, id)
		case errors.Is(err, domain.ErrNotFound):
			report.NotFound = append(report.NotFound, id)
		default:
			report.Failed[id] = err
			w.logger.Warn().Err(err).Str("match_id", id).Msg("match detail fetch failed")
		}
	}

	switch {
	case len(report.Failed) == 0:
		report.Status = JobSuccess
	case len(report.Fetched) > 0 || len(report.NotFound) > 0 || len(report.Skipped) > 0:
		report.Status = JobPartial
	default:
		report.Status = JobFailed
	}

	w.recorder.Increment(ctx, jobMetric+"."+string(report.Status), 1, nil)
	w.recorder.Increment(ctx, jobMetric+".records_fetched", int64(len(report.Fetched)), nil)
	if n := len(report.NotFound); n > 0 {
		w.recorder.Increment(ctx, jobMetric+".not_found", int64(n), nil)
	}

	w.logger.Info().
		Str("status", string(report.Status)).
		Int("requested", len(job.MatchIDs)).
		Int("fetched", len(report.Fetched)).
		Int("skipped", len(report.Skipped)).
		Int("not_found", len(report.NotFound)).
		Int("failed", len(report.Failed)).
		Dur("duration", time.Since(start)).
		Msg("match detail job finished")

	return report, nil
}
