package ratelimit

import (
	"cmp"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderAppRateLimit    = "X-App-Rate-Limit"
	HeaderMethodRateLimit = "X-Method-Rate-Limit"
	HeaderLegacyRateLimit = "X-Rate-Limit"
	HeaderRateLimitType   = "X-Rate-Limit-Type"
	HeaderRetryAfter      = "Retry-After"
)

// Which bucket a cooldown applies to, from X-Rate-Limit-Type.
const (
	LimitTypeApplication = "application"
	LimitTypeMethod      = "method"
	LimitTypeService     = "service"
)

// Window is one "limit requests per period" quota.
type Window struct {
	Limit  int
	Period time.Duration
}

// ParseLimits reads "20:1,100:120" (requests:seconds pairs). Malformed pairs
// are dropped; the result is ordered by period.
func ParseLimits(header string) []Window {
	var windows []Window
	for _, pair := range strings.Split(header, ",") {
		limitStr, periodStr, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		limit, err := strconv.Atoi(strings.TrimSpace(limitStr))
		if err != nil || limit <= 0 {
			continue
		}
		seconds, err := strconv.ParseFloat(strings.TrimSpace(periodStr), 64)
		if err != nil || seconds <= 0 {
			continue
		}
		windows = append(windows, Window{Limit: limit, Period: time.Duration(seconds * float64(time.Second))})
	}
	slices.SortFunc(windows, func(a, b Window) int {
		return cmp.Compare(a.Period, b.Period)
	})
	return windows
}

// ParseRetryAfter accepts delta seconds or an HTTP date.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// Observation is everything quota-related one response said.
type Observation struct {
	AppLimits    []Window
	MethodLimits []Window
	RetryAfter   time.Duration
	LimitType    string
}

// HeaderGetter matches both net/http and fasthttp header lookups once
// wrapped; see api.responseHeaders.
type HeaderGetter func(name string) string

func Observe(get HeaderGetter, now time.Time) Observation {
	obs := Observation{
		AppLimits:    ParseLimits(get(HeaderAppRateLimit)),
		MethodLimits: ParseLimits(get(HeaderMethodRateLimit)),
		RetryAfter:   ParseRetryAfter(get(HeaderRetryAfter), now),
		LimitType:    strings.ToLower(strings.TrimSpace(get(HeaderRateLimitType))),
	}
	if len(obs.AppLimits) == 0 && len(obs.MethodLimits) == 0 {
		// older deployments only send one combined header
		obs.AppLimits = ParseLimits(get(HeaderLegacyRateLimit))
	}
	return obs
}

// Cooldowns splits the retry-after directive between the app and method
// buckets. A service-level or untyped cooldown applies to both.
func (o Observation) Cooldowns() (app, method time.Duration) {
	if o.RetryAfter <= 0 {
		return 0, 0
	}
	switch o.LimitType {
	case LimitTypeApplication:
		return o.RetryAfter, 0
	case LimitTypeMethod:
		return 0, o.RetryAfter
	default:
		return o.RetryAfter, o.RetryAfter
	}
}

func encodeWindows(windows []Window) string {
	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		parts = append(parts, strconv.Itoa(w.Limit)+":"+strconv.FormatInt(w.Period.Milliseconds(), 10))
	}
	return strings.Join(parts, ",")
}

func decodeWindows(spec string) []Window {
	var windows []Window
	for _, pair := range strings.Split(spec, ",") {
		limitStr, msStr, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		limit, err1 := strconv.Atoi(limitStr)
		ms, err2 := strconv.ParseInt(msStr, 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		windows = append(windows, Window{Limit: limit, Period: time.Duration(ms) * time.Millisecond})
	}
	return windows
}
