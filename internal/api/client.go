package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"league-tracker/internal/config"
	"league-tracker/internal/constants"
	"league-tracker/internal/domain"
	"league-tracker/internal/metrics"
	"league-tracker/internal/ratelimit"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/valyala/fasthttp"
)

// Method groups share a method-level rate limit upstream.
const (
	GroupAccount     = "account"
	GroupSummoner    = "summoner"
	GroupRank        = "rank"
	GroupMatchIDs    = "match_ids"
	GroupMatchDetail = "match_detail"
)

const authHeader = "X-Riot-Token"

// QuotaLimiter is the shared quota store the client consults.
type QuotaLimiter interface {
	Acquire(ctx context.Context, buckets ...string) (time.Duration, error)
	Record(ctx context.Context, bucket string, limits []ratelimit.Window, cooldown time.Duration) error
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeNotFound
	outcomeRetryable
	outcomeRejected
	outcomeUnavailable
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeNotFound:
		return "not_found"
	case outcomeRetryable:
		return "retryable"
	case outcomeRejected:
		return "rejected"
	default:
		return "unavailable"
	}
}

// attemptResult is the tagged result of a single HTTP attempt.
type attemptResult struct {
	outcome   outcome
	status    int
	body      []byte
	retryType string // 429, 5xx or network
	err       error
}

type Client struct {
	apiKey      string
	regionalURL string
	platformURL string
	client      *fasthttp.Client
	limiter     QuotaLimiter
	recorder    metrics.Recorder
	retry       RetryPolicy
	maxWaits    int
	timeout     time.Duration
	breakers    map[string]*gobreaker.CircuitBreaker[attemptResult]
	logger      zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

type Option func(*Client)

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

func WithRand(r func() float64) Option {
	return func(c *Client) { c.rand = r }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg *config.Config, limiter QuotaLimiter, recorder metrics.Recorder, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if cfg.RiotAPIKey == "" {
		return nil, fmt.Errorf("%w: upstream api key is not set", domain.ErrConfiguration)
	}

	c := &Client{
		apiKey:      cfg.RiotAPIKey,
		regionalURL: cfg.RegionalURL,
		platformURL: cfg.PlatformURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     constants.UpstreamMaxConnsPerHost,
			ReadTimeout:         constants.UpstreamReadTimeout,
			WriteTimeout:        constants.UpstreamWriteTimeout,
			MaxIdleConnDuration: constants.UpstreamMaxIdleConnDuration,
			// stale pooled connections are dropped and the GET retried once
			MaxIdemponentCallAttempts: 2,
		},
		limiter:  limiter,
		recorder: recorder,
		retry:    RetryPolicyFromConfig(cfg.Retry),
		maxWaits: cfg.Retry.MaxQuotaWaits,
		timeout:  cfg.Retry.RequestTimeout,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
		rand:     defaultRand,
	}
	if c.timeout <= 0 {
		c.timeout = constants.ExternalAPITimeout
	}
	if c.maxWaits < 1 {
		c.maxWaits = 1
	}

	if cfg.Breaker.Enabled {
		c.breakers = make(map[string]*gobreaker.CircuitBreaker[attemptResult])
		for _, group := range []string{GroupAccount, GroupSummoner, GroupRank, GroupMatchIDs, GroupMatchDetail} {
			c.breakers[group] = newBreaker(group, cfg.Breaker, logger)
		}
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Call performs a rate-limited GET with retries. It returns the body on
// 2xx; every other outcome is a *domain.UpstreamError whose Kind is one of
// ErrNotFound, ErrUpstreamRejected, ErrUpstreamTransient or
// ErrRateLimitExhausted.
func (c *Client) Call(ctx context.Context, group, url string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		if err := c.waitForQuota(ctx, group); err != nil {
			return nil, err
		}

		res := c.attempt(ctx, group, url)
		c.report(ctx, group, res)

		switch res.outcome {
		case outcomeSuccess:
			return res.body, nil
		case outcomeNotFound:
			return nil, c.upstreamError(domain.ErrNotFound, group, res, attempt)
		case outcomeRejected:
			c.logger.Warn().
				Str("method_group", group).
				Int("status", res.status).
				Str("body", snippet(res.body)).
				Msg("upstream rejected request")
			return nil, c.upstreamError(domain.ErrUpstreamRejected, group, res, attempt)
		case outcomeUnavailable:
			return nil, c.upstreamError(domain.ErrUpstreamTransient, group, res, attempt)
		}

		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, c.deadlineError(domain.ErrUpstreamTransient, group, res, attempt)
			}
			return nil, err
		}
		if attempt >= c.retry.MaxAttempts {
			c.logger.Error().
				Err(res.err).
				Str("method_group", group).
				Int("status", res.status).
				Int("attempts", attempt).
				Msg("upstream request retries exhausted")
			return nil, c.upstreamError(domain.ErrUpstreamTransient, group, res, attempt)
		}

		delay := c.retry.Delay(attempt, c.rand())
		c.recorder.Increment(ctx, "upstream.retry", 1, metrics.Tags{"group": group, "type": res.retryType})
		c.logger.Warn().
			Err(res.err).
			Str("method_group", group).
			Str("type", res.retryType).
			Int("status", res.status).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("upstream request retry")

		if err := c.pause(ctx, delay, domain.ErrUpstreamTransient, group, res, attempt); err != nil {
			return nil, err
		}
	}
}

// waitForQuota blocks until both the app and method buckets grant the call.
// A granted wait can go stale when another process takes the quota first,
// so it sleeps at most maxWaits times, asking again after each sleep.
func (c *Client) waitForQuota(ctx context.Context, group string) error {
	buckets := []string{ratelimit.AppBucket, ratelimit.MethodBucket(group)}
	var waited time.Duration

	for waits := 0; ; waits++ {
		wait, err := c.limiter.Acquire(ctx, buckets...)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return c.deadlineError(domain.ErrRateLimitExhausted, group, attemptResult{}, waits)
			}
			return err
		}
		if wait == 0 {
			metrics.RateLimitWait.WithLabelValues(group).Observe(waited.Seconds())
			return nil
		}
		if waits >= c.maxWaits {
			break
		}
		if err := c.pause(ctx, wait, domain.ErrRateLimitExhausted, group, attemptResult{}, waits); err != nil {
			return err
		}
		waited += wait
	}

	c.recorder.Increment(ctx, "upstream.rate_limit_exhausted", 1, metrics.Tags{"group": group})
	c.logger.Warn().Str("method_group", group).Dur("waited", waited).Msg("rate limit wait ceiling reached")
	return &domain.UpstreamError{
		Kind:        domain.ErrRateLimitExhausted,
		MethodGroup: group,
		Attempts:    c.maxWaits,
	}
}

// pause sleeps for d. When ctx would expire first it returns a kind error
// straight away instead of sleeping into a bare deadline.
func (c *Client) pause(ctx context.Context, d time.Duration, kind error, group string, res attemptResult, attempts int) error {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
		return c.deadlineError(kind, group, res, attempts)
	}
	if err := c.sleep(ctx, d); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.deadlineError(kind, group, res, attempts)
		}
		return err
	}
	return nil
}

func (c *Client) deadlineError(kind error, group string, res attemptResult, attempts int) *domain.UpstreamError {
	c.recorder.Increment(context.Background(), "upstream.deadline", 1, metrics.Tags{"group": group})
	c.logger.Warn().
		Str("method_group", group).
		Str("kind", kind.Error()).
		Int("attempts", attempts).
		Msg("upstream call cut short by caller deadline")
	e := c.upstreamError(kind, group, res, attempts)
	e.Err = context.DeadlineExceeded
	return e
}

func (c *Client) attempt(ctx context.Context, group, url string) attemptResult {
	breaker, ok := c.breakers[group]
	if !ok {
		return c.do(ctx, group, url)
	}

	res, err := breaker.Execute(func() (attemptResult, error) {
		res := c.do(ctx, group, url)
		// only outages count against the breaker, not 429s
		if res.outcome == outcomeRetryable && res.retryType != "429" {
			return res, errors.New(res.retryType)
		}
		return res, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return attemptResult{outcome: outcomeUnavailable, retryType: "circuit_open", err: err}
	}
	return res
}

func (c *Client) do(ctx context.Context, group, url string) attemptResult {
	ex := acquireExchange()
	defer ex.release()

	ex.req.SetRequestURI(url)
	ex.req.Header.SetMethod(fasthttp.MethodGet)
	ex.req.Header.Set(authHeader, c.apiKey)
	ex.req.Header.Set(fasthttp.HeaderAccept, "application/json")

	deadline := c.now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	err := c.client.DoDeadline(ex.req, ex.resp, deadline)
	elapsed := time.Since(start)

	if err != nil {
		res := attemptResult{outcome: outcomeRetryable, retryType: "network", err: err}
		metrics.UpstreamRequestDuration.WithLabelValues(group, "network").Observe(elapsed.Seconds())
		return res
	}

	c.recordQuota(ctx, group, ex)

	status := ex.resp.StatusCode()
	res := classify(status)
	res.body = append([]byte(nil), ex.resp.Body()...)
	metrics.UpstreamRequestDuration.WithLabelValues(group, res.outcome.String()).Observe(elapsed.Seconds())
	return res
}

func classify(status int) attemptResult {
	res := attemptResult{status: status}
	switch {
	case status >= 200 && status < 300:
		res.outcome = outcomeSuccess
	case status == fasthttp.StatusNotFound:
		res.outcome = outcomeNotFound
	case status == fasthttp.StatusTooManyRequests:
		res.outcome = outcomeRetryable
		res.retryType = "429"
		res.err = fmt.Errorf("status %d", status)
	case status >= 500:
		res.outcome = outcomeRetryable
		res.retryType = "5xx"
		res.err = fmt.Errorf("status %d", status)
	default:
		res.outcome = outcomeRejected
	}
	return res
}

// recordQuota feeds the response's quota headers back into the limiter.
// Failures only cost accuracy, so they are logged and dropped.
func (c *Client) recordQuota(ctx context.Context, group string, ex *exchange) {
	obs := ratelimit.Observe(ex.header, c.now())
	appCooldown, methodCooldown := obs.Cooldowns()

	if err := c.limiter.Record(ctx, ratelimit.AppBucket, obs.AppLimits, appCooldown); err != nil {
		c.logger.Warn().Err(err).Str("bucket", ratelimit.AppBucket).Msg("failed to record rate limit headers")
	}
	if err := c.limiter.Record(ctx, ratelimit.MethodBucket(group), obs.MethodLimits, methodCooldown); err != nil {
		c.logger.Warn().Err(err).Str("bucket", ratelimit.MethodBucket(group)).Msg("failed to record rate limit headers")
	}
}

func (c *Client) report(ctx context.Context, group string, res attemptResult) {
	tags := metrics.Tags{"group": group, "outcome": res.outcome.String()}
	if res.status != 0 {
		tags["status"] = strconv.Itoa(res.status)
	}
	c.recorder.Increment(ctx, "upstream.request", 1, tags)
}

func (c *Client) upstreamError(kind error, group string, res attemptResult, attempts int) *domain.UpstreamError {
	return &domain.UpstreamError{
		Kind:        kind,
		MethodGroup: group,
		Status:      res.status,
		Attempts:    attempts,
		Body:        snippet(res.body),
		Err:         res.err,
	}
}

func snippet(body []byte) string {
	if len(body) > constants.UpstreamMaxBodySnippet {
		return string(body[:constants.UpstreamMaxBodySnippet])
	}
	return string(body)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
