package redis

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/fanpulse/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnRefused = errors.New("connection refused")

func failingProcess(calls *int) goredis.ProcessHook {
	return func(context.Context, goredis.Cmder) error {
		*calls++
		return errConnRefused
	}
}

func TestCircuitBreakerHook_OpensAfterFailures(t *testing.T) {
	redisMetrics := metrics.NewRedisMetrics(prometheus.NewRegistry())
	hook := NewCircuitBreakerHook(redisMetrics)
	ctx := context.Background()

	calls := 0
	process := hook.ProcessHook(failingProcess(&calls))
	for range 5 {
		err := process(ctx, goredis.NewStatusCmd(ctx, "ping"))
		require.ErrorIs(t, err, errConnRefused)
	}
	assert.Equal(t, circuitbreaker.OpenState, hook.State())

	err := process(ctx, goredis.NewStatusCmd(ctx, "ping"))
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 5, calls, "open circuit must not reach Redis")
	assert.Equal(t, float64(2), testutil.ToFloat64(redisMetrics.CircuitState))
}

func TestCircuitBreakerHook_NilIsNotAFailure(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	for range 10 {
		err := process(ctx, goredis.NewStringCmd(ctx, "get", "missing"))
		assert.ErrorIs(t, err, goredis.Nil)
	}
	assert.Equal(t, circuitbreaker.ClosedState, hook.State())
}

func TestCircuitBreakerHook_Pipeline(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	pipeline := hook.ProcessPipelineHook(func(context.Context, []goredis.Cmder) error { return errConnRefused })
	for range 5 {
		assert.ErrorIs(t, pipeline(ctx, nil), errConnRefused)
	}
	assert.ErrorIs(t, pipeline(ctx, nil), circuitbreaker.ErrOpen)
}

func TestCircuitBreakerHook_Dial(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	dial := hook.DialHook(func(context.Context, string, string) (net.Conn, error) { return nil, errConnRefused })
	for range 5 {
		_, err := dial(ctx, "tcp", "127.0.0.1:6379")
		assert.ErrorIs(t, err, errConnRefused)
	}
	_, err := dial(ctx, "tcp", "127.0.0.1:6379")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}
