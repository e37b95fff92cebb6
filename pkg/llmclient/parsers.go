package llmclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseAdapterHeaders is the default HeaderParser: it reads the
// conventional rate-limit headers the adapter service emits when
// saturated (Retry-After in seconds, X-RateLimit-Reset as a Unix
// timestamp, X-RateLimit-Remaining as a request count). Absent or
// malformed headers leave the corresponding field zero, which the
// retry pacing treats as "fall back to exponential backoff".
func ParseAdapterHeaders(headers http.Header) RateLimitInfo {
	var info RateLimitInfo

	if v := headers.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			info.RetryAfter = time.Duration(secs) * time.Second
		}
	}

	if v := headers.Get("X-RateLimit-Reset"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil && ts > 0 {
			info.ResetTime = ts
		}
	}

	if v := headers.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			info.RequestsRemaining = n
		}
	}

	return info
}
