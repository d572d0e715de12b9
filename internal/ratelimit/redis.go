// Package ratelimit throttles repeated attempts per account with a Redis fixed window.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// attemptWindowScript counts one attempt against KEYS[1]. The counter gets its
// expiry on first use, or whenever it is found without one.
var attemptWindowScript = redis.NewScript(`
local attempts = redis.call("INCR", KEYS[1])
local remaining = redis.call("PTTL", KEYS[1])
if remaining < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  remaining = tonumber(ARGV[1])
end
return {attempts, remaining}
`)

const (
	defaultPrefix = "flexpay:rate_limit"
	minWindow     = time.Second
)

// Window is the state of one subject's counter after an attempt.
type Window struct {
	Attempts int
	ResetIn  time.Duration
}

// RetryAfter is ResetIn rounded up to whole seconds, never less than one.
func (w Window) RetryAfter() int {
	secs := int((w.ResetIn + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// RedisLimiter counts attempts per (scope, subject). A nil *RedisLimiter allows everything.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

// Hit records one attempt. It returns the zero Window, without touching Redis,
// when the limiter is unconfigured or the scope or subject is blank.
func (r *RedisLimiter) Hit(ctx context.Context, scope, subject string, window time.Duration) (Window, error) {
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if r == nil || r.client == nil || scope == "" || subject == "" {
		return Window{}, nil
	}
	if window < minWindow {
		window = minWindow
	}

	raw, err := attemptWindowScript.Run(ctx, r.client, []string{r.key(scope, subject)}, window.Milliseconds()).Result()
	if err != nil {
		return Window{}, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	return decodeWindow(raw, window)
}

// Allow reports whether the attempt fits in limit per window, and if not, the
// seconds the caller should wait. A non-positive limit disables the check.
func (r *RedisLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (bool, int, error) {
	if limit <= 0 {
		return true, 0, nil
	}
	w, err := r.Hit(ctx, scope, subject, window)
	if err != nil {
		return false, 0, err
	}
	if w.Attempts > limit {
		return false, w.RetryAfter(), nil
	}
	return true, 0, nil
}

func (r *RedisLimiter) key(scope, subject string) string {
	return r.prefix + ":" + scope + ":" + subject
}

// decodeWindow reads the {attempts, remaining ms} pair returned by
// attemptWindowScript. A negative remaining time falls back to window.
func decodeWindow(raw interface{}, window time.Duration) (Window, error) {
	pair, ok := raw.([]interface{})
	if !ok || len(pair) != 2 {
		return Window{}, fmt.Errorf("rate limit reply: want 2 values, got %T", raw)
	}
	attempts, ok := pair[0].(int64)
	if !ok {
		return Window{}, fmt.Errorf("rate limit reply: attempts is %T", pair[0])
	}
	remainingMs, ok := pair[1].(int64)
	if !ok {
		return Window{}, fmt.Errorf("rate limit reply: remaining is %T", pair[1])
	}

	w := Window{Attempts: int(attempts), ResetIn: time.Duration(remainingMs) * time.Millisecond}
	if w.ResetIn < 0 {
		w.ResetIn = window
	}
	return w, nil
}
