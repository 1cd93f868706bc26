package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLimits(t *testing.T) {
	t.Run("orders windows by period", func(t *testing.T) {
		windows := ParseLimits("100:120, 20:1")
		assert.Equal(t, []Window{
			{Limit: 20, Period: time.Second},
			{Limit: 100, Period: 2 * time.Minute},
		}, windows)
	})

	t.Run("drops malformed pairs", func(t *testing.T) {
		windows := ParseLimits("abc,20:1,0:5,10:-1,5")
		assert.Equal(t, []Window{{Limit: 20, Period: time.Second}}, windows)
	})

	t.Run("empty header", func(t *testing.T) {
		assert.Empty(t, ParseLimits(""))
	})
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 3*time.Second, ParseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("soon", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-2", now))

	date := now.Add(10 * time.Second).Format(http.TimeFormat)
	assert.Equal(t, 10*time.Second, ParseRetryAfter(date, now))
}

func TestObserve(t *testing.T) {
	now := time.Now()

	t.Run("app and method headers", func(t *testing.T) {
		headers := map[string]string{
			HeaderAppRateLimit:    "20:1,100:120",
			HeaderMethodRateLimit: "2000:10",
			HeaderRetryAfter:      "2",
			HeaderRateLimitType:   "Method",
		}
		obs := Observe(func(name string) string { return headers[name] }, now)

		assert.Len(t, obs.AppLimits, 2)
		assert.Equal(t, []Window{{Limit: 2000, Period: 10 * time.Second}}, obs.MethodLimits)

		app, method := obs.Cooldowns()
		assert.Zero(t, app)
		assert.Equal(t, 2*time.Second, method)
	})

	t.Run("legacy header fills app limits", func(t *testing.T) {
		headers := map[string]string{HeaderLegacyRateLimit: "10:1"}
		obs := Observe(func(name string) string { return headers[name] }, now)
		assert.Equal(t, []Window{{Limit: 10, Period: time.Second}}, obs.AppLimits)
	})

	t.Run("untyped cooldown applies to both buckets", func(t *testing.T) {
		obs := Observation{RetryAfter: time.Second}
		app, method := obs.Cooldowns()
		assert.Equal(t, time.Second, app)
		assert.Equal(t, time.Second, method)

		obs.LimitType = LimitTypeApplication
		app, method = obs.Cooldowns()
		assert.Equal(t, time.Second, app)
		assert.Zero(t, method)
	})
}

func TestWindowEncoding(t *testing.T) {
	windows := []Window{{Limit: 20, Period: time.Second}, {Limit: 100, Period: 2 * time.Minute}}
	assert.Equal(t, "20:1000,100:120000", encodeWindows(windows))
	assert.Equal(t, windows, decodeWindows(encodeWindows(windows)))
}
