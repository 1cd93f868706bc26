package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"league-tracker/internal/config"
	"league-tracker/internal/domain"
	"league-tracker/internal/metrics"
	"league-tracker/internal/service"

	"connectrpc.com/connect"
	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToConnectError(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
		want connect.Code
	}{
		{"invalid input", fmt.Errorf("%w: riot id", domain.ErrInvalidInput), connect.CodeInvalidArgument},
		{"not found", &domain.UpstreamError{Kind: domain.ErrNotFound, Status: 404}, connect.CodeNotFound},
		{"stored not found", domain.ErrNotFound, connect.CodeNotFound},
		{"transient", &domain.UpstreamError{Kind: domain.ErrUpstreamTransient, Status: 503}, connect.CodeUnavailable},
		{"quota", &domain.UpstreamError{Kind: domain.ErrRateLimitExhausted}, connect.CodeUnavailable},
		{"rejected", &domain.UpstreamError{Kind: domain.ErrUpstreamRejected, Status: 403}, connect.CodeFailedPrecondition},
		{"wrapped in sync error", &service.SyncError{State: service.StateListFetched, Err: &domain.UpstreamError{Kind: domain.ErrUpstreamTransient}}, connect.CodeUnavailable},
		{"deadline", context.DeadlineExceeded, connect.CodeDeadlineExceeded},
		{"quota wait cut by deadline", &domain.UpstreamError{Kind: domain.ErrRateLimitExhausted, Err: context.DeadlineExceeded}, connect.CodeUnavailable},
		{"anything else", errors.New("disk on fire"), connect.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toConnectError(ctx, tt.err)
			assert.Equal(t, tt.want, connect.CodeOf(err))
		})
	}
}

func TestToConnectError_RetryLaterMessage(t *testing.T) {
	err := toConnectError(context.Background(), &domain.UpstreamError{Kind: domain.ErrRateLimitExhausted, MethodGroup: "match_ids"})

	var connectErr *connect.Error
	require.True(t, errors.As(err, &connectErr))
	assert.Contains(t, connectErr.Message(), "try again shortly")
	assert.NotContains(t, connectErr.Message(), "match_ids")
}

func newTestServer(t *testing.T) (*httptest.Server, *metrics.RedisRecorder) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	recorder := metrics.NewRedisRecorder(rdb, zerolog.Nop())
	detail := service.NewMatchDetailService(nil, nil, nil, &config.Config{Platform: "NA1"}, zerolog.Nop())
	identity := service.NewIdentityService(nil, nil, &config.Config{Platform: "NA1"}, zerolog.Nop())
	tracker := NewTrackerServer(identity, nil, detail, recorder)

	mux := http.NewServeMux()
	path, handler := tracker.Handler()
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, recorder
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestGetWorkerMetrics(t *testing.T) {
	srv, recorder := newTestServer(t)
	recorder.Increment(context.Background(), "jobs.fetch_match_details.success", 2, nil)

	resp, body := post(t, srv.URL+GetWorkerMetricsProcedure, `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out GetWorkerMetricsResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, int64(2), out.Metrics["jobs.fetch_match_details.success"])
}

func TestGetMatch_InvalidArgument(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := post(t, srv.URL+GetMatchProcedure, `{"match_id":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "invalid_argument", out.Code)
}

func TestGetRank_InvalidArgument(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := post(t, srv.URL+GetRankProcedure, `{"identity":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
}
