package health

import (
	"net/http"
	"strings"
	"time"
)

var quotaPatterns = []string{
	"quota exceeded",
	"rate limit",
	"too many requests",
	"requests per minute",
	"requests per day",
	"audio seconds per hour",
	"insufficient_quota",
	"billing",
	"rate_limit_exceeded",
}

// IsQuotaError reports whether a failure is a quota or rate limit rejection
func IsQuotaError(statusCode int, message string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(message)
	for _, pattern := range quotaPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// CooldownFor picks how long to stop calling a provider after a quota error
func CooldownFor(statusCode int, message string) time.Duration {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "billing") || strings.Contains(lower, "insufficient_quota"):
		return 24 * time.Hour
	case strings.Contains(lower, "per day"):
		return 6 * time.Hour
	case strings.Contains(lower, "per hour"):
		return 30 * time.Minute
	case statusCode == http.StatusTooManyRequests || strings.Contains(lower, "per minute"):
		return 2 * time.Minute
	}
	return 10 * time.Minute
}
