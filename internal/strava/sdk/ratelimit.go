package sdk

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	rateLimitHeader      = "X-Ratelimit-Limit"
	rateLimitUsageHeader = "X-Ratelimit-Usage"
	retryAfterHeader     = "Retry-After"
)

type rateLimit struct {
	fifteenMinute int
	daily         int
}

// parse header containing rate limit information
func parseRateLimitHeader(h http.Header, headerName string) *rateLimit {
	parts := strings.Split(h.Get(headerName), ",")
	if len(parts) != 2 {
		return nil
	}

	fifteenMinute, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil
	}
	daily, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil
	}

	return &rateLimit{fifteenMinute, daily}
}

func getDelayTime(now time.Time, bucket time.Duration) time.Time {
	return now.UTC().Truncate(bucket).Add(bucket)
}

// RateLimitReset computes how long to wait before the rate limit window
// resets, based on the response headers. The second return value is false
// when the headers carry no usable information.
func RateLimitReset(h http.Header, now time.Time) (time.Duration, bool) {
	if h == nil {
		return 0, false
	}

	if v := strings.TrimSpace(h.Get(retryAfterHeader)); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(now); d > 0 {
				return d, true
			}
			return 0, true
		}
	}

	limits := parseRateLimitHeader(h, rateLimitHeader)
	used := parseRateLimitHeader(h, rateLimitUsageHeader)
	if limits == nil || used == nil {
		return 0, false
	}

	var limitUntil time.Time
	if used.daily >= limits.daily {
		limitUntil = getDelayTime(now, time.Hour*24)
	} else if used.fifteenMinute >= limits.fifteenMinute {
		limitUntil = getDelayTime(now, time.Minute*15)
	} else {
		return 0, false
	}

	return limitUntil.Sub(now.UTC()), true
}
