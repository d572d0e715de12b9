package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter_UnconfiguredAllows(t *testing.T) {
	var limiter *RedisLimiter

	allowed, retryAfter, err := limiter.Allow(context.Background(), "coupon_redeem", "1", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)

	limiter = NewRedisLimiter(nil, "")
	w, err := limiter.Hit(context.Background(), "coupon_redeem", "1", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, w.Attempts)

	allowed, _, err = limiter.Allow(context.Background(), "coupon_redeem", "1", 0, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_KeyPrefix(t *testing.T) {
	assert.Equal(t, "flexpay:rate_limit:coupon_redeem:42", NewRedisLimiter(nil, "  ").key("coupon_redeem", "42"))
	assert.Equal(t, "custom:coupon_redeem:42", NewRedisLimiter(nil, "custom:").key("coupon_redeem", "42"))
}

func TestDecodeWindow(t *testing.T) {
	tests := []struct {
		name      string
		raw       interface{}
		want      Window
		wantRetry int
		wantErr   bool
	}{
		{name: "counting", raw: []interface{}{int64(3), int64(1500)}, want: Window{Attempts: 3, ResetIn: 1500 * time.Millisecond}, wantRetry: 2},
		{name: "no expiry reported", raw: []interface{}{int64(1), int64(-1)}, want: Window{Attempts: 1, ResetIn: time.Minute}, wantRetry: 60},
		{name: "about to reset", raw: []interface{}{int64(7), int64(0)}, want: Window{Attempts: 7}, wantRetry: 1},
		{name: "wrong shape", raw: "nope", wantErr: true},
		{name: "wrong count type", raw: []interface{}{"1", int64(1)}, wantErr: true},
		{name: "wrong ttl type", raw: []interface{}{int64(1), "1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := decodeWindow(tt.raw, time.Minute)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, w)
			assert.Equal(t, tt.wantRetry, w.RetryAfter())
		})
	}
}
