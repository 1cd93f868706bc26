package server

import (
	"context"
	"errors"
	"net/http"

	"league-tracker/internal/domain"
	"league-tracker/internal/metrics"
	"league-tracker/internal/service"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

const (
	TrackerServiceName = "tracker.v1.TrackerService"
	TrackerPath        = "/" + TrackerServiceName + "/"

	SyncMatchesProcedure      = TrackerPath + "SyncMatches"
	GetIdentityProcedure      = TrackerPath + "GetIdentity"
	GetRankProcedure          = TrackerPath + "GetRank"
	GetMatchProcedure         = TrackerPath + "GetMatch"
	ListMatchesProcedure      = TrackerPath + "ListMatches"
	GetWorkerMetricsProcedure = TrackerPath + "GetWorkerMetrics"
)

type TrackerServer struct {
	identitySvc    *service.IdentityService
	matchSyncSvc   *service.MatchSyncService
	matchDetailSvc *service.MatchDetailService
	workerMetrics  *metrics.RedisRecorder
}

func NewTrackerServer(
	identitySvc *service.IdentityService,
	matchSyncSvc *service.MatchSyncService,
	matchDetailSvc *service.MatchDetailService,
	workerMetrics *metrics.RedisRecorder,
) *TrackerServer {
	return &TrackerServer{
		identitySvc:    identitySvc,
		matchSyncSvc:   matchSyncSvc,
		matchDetailSvc: matchDetailSvc,
		workerMetrics:  workerMetrics,
	}
}

// Handler mounts every procedure under TrackerPath.
func (s *TrackerServer) Handler() (string, http.Handler) {
	opts := []connect.HandlerOption{connect.WithCodec(jsonCodec{})}

	mux := http.NewServeMux()
	mux.Handle(SyncMatchesProcedure, connect.NewUnaryHandler(SyncMatchesProcedure, s.SyncMatches, opts...))
	mux.Handle(GetIdentityProcedure, connect.NewUnaryHandler(GetIdentityProcedure, s.GetIdentity, opts...))
	mux.Handle(GetRankProcedure, connect.NewUnaryHandler(GetRankProcedure, s.GetRank, opts...))
	mux.Handle(GetMatchProcedure, connect.NewUnaryHandler(GetMatchProcedure, s.GetMatch, opts...))
	mux.Handle(ListMatchesProcedure, connect.NewUnaryHandler(ListMatchesProcedure, s.ListMatches, opts...))
	mux.Handle(GetWorkerMetricsProcedure, connect.NewUnaryHandler(GetWorkerMetricsProcedure, s.GetWorkerMetrics, opts...))
	return TrackerPath, mux
}

func (s *TrackerServer) SyncMatches(ctx context.Context, req *connect.Request[SyncMatchesRequest]) (*connect.Response[SyncMatchesResponse], error) {
	result, err := s.matchSyncSvc.Sync(ctx, req.Msg.RiotID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}

	return connect.NewResponse(&SyncMatchesResponse{
		Identity:      toIdentity(result.Identity),
		Matches:       toMatches(result.Matches),
		InlineFetched: len(result.InlineFetched),
		Enqueued:      len(result.Enqueued),
		Jobs:          result.JobIDs,
	}), nil
}

func (s *TrackerServer) GetIdentity(ctx context.Context, req *connect.Request[GetIdentityRequest]) (*connect.Response[GetIdentityResponse], error) {
	identity, err := s.identitySvc.FindOrCreate(ctx, req.Msg.RiotID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&GetIdentityResponse{Identity: toIdentity(identity)}), nil
}

func (s *TrackerServer) GetRank(ctx context.Context, req *connect.Request[GetRankRequest]) (*connect.Response[GetRankResponse], error) {
	identity, entries, err := s.identitySvc.GetRank(ctx, req.Msg.Identity)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&GetRankResponse{
		Identity: toIdentity(identity),
		Entries:  toRankEntries(entries),
	}), nil
}

func (s *TrackerServer) GetMatch(ctx context.Context, req *connect.Request[GetMatchRequest]) (*connect.Response[GetMatchResponse], error) {
	match, err := s.matchDetailSvc.GetMatch(ctx, req.Msg.MatchID)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&GetMatchResponse{Match: toMatch(*match, true)}), nil
}

func (s *TrackerServer) ListMatches(ctx context.Context, req *connect.Request[ListMatchesRequest]) (*connect.Response[ListMatchesResponse], error) {
	identity, matches, err := s.matchDetailSvc.ListMatches(ctx, req.Msg.Puuid, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&ListMatchesResponse{
		Identity: toIdentity(identity),
		Matches:  toMatches(matches),
	}), nil
}

func (s *TrackerServer) GetWorkerMetrics(ctx context.Context, _ *connect.Request[GetWorkerMetricsRequest]) (*connect.Response[GetWorkerMetricsResponse], error) {
	snapshot, err := s.workerMetrics.Snapshot(ctx)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&GetWorkerMetricsResponse{Metrics: snapshot}), nil
}

// toConnectError keeps "not found" and "try again shortly" distinct for
// clients.
func toConnectError(ctx context.Context, err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		code = connect.CodeInvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		code = connect.CodeNotFound
	case domain.IsRetryLater(err):
		code = connect.CodeUnavailable
		err = errors.New("upstream is temporarily unavailable, try again shortly")
	case errors.Is(err, domain.ErrUpstreamRejected):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	}

	logger := zerolog.Ctx(ctx)
	if code == connect.CodeInternal {
		logger.Error().Err(err).Msg("request failed")
	} else {
		logger.Info().Err(err).Str("code", code.String()).Msg("request rejected")
	}
	return connect.NewError(code, err)
}
