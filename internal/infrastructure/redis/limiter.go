package redisinfra

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const allowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// OTPLimiter caps how many OTPs may be requested per email inside a fixed
// window. It fails open when Redis is unavailable.
type OTPLimiter struct {
	client evaler
	window time.Duration
	max    int
	prefix string
}

func NewOTPLimiter(client evaler, window time.Duration, max int) *OTPLimiter {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &OTPLimiter{client: client, window: window, max: max, prefix: "otp:rl:"}
}

// Allow counts one request for key and reports whether it is within the limit.
func (l *OTPLimiter) Allow(ctx context.Context, key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, allowScript, []string{l.prefix + normalized}, seconds).Int()
	if err != nil {
		slog.Warn("otp limiter unavailable, allowing request", "err", err)
		return true
	}
	return count <= l.max
}
