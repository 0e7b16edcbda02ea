package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var instrumentRedisOnce sync.Once

// InstrumentRedisClient installs command metrics and pool gauges on the
// blocklist client. Only the first call per process has an effect.
func InstrumentRedisClient(client redis.UniversalClient, logger *slog.Logger) {
	if client == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	instrumentRedisOnce.Do(func() {
		hook, err := newRedisMetricsHook(otel.Meter(meterName), client.PoolStats)
		if err != nil {
			logger.Warn("redis metrics disabled", "error", err)
			return
		}
		client.AddHook(hook)
		logger.Info("redis metrics enabled")
	})
}

type redisMetricsHook struct {
	commands metric.Int64Counter
	latency  metric.Float64Histogram
}

func newRedisMetricsHook(meter metric.Meter, poolStats func() *redis.PoolStats) (*redisMetricsHook, error) {
	commands, err := meter.Int64Counter("auth.redis.commands",
		metric.WithDescription("Redis commands issued, by command, keyspace and status"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("auth.redis.command.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Redis command latency"))
	if err != nil {
		return nil, err
	}
	conns, err := meter.Int64ObservableGauge("auth.redis.pool.connections",
		metric.WithDescription("Redis pool connections, by state"))
	if err != nil {
		return nil, err
	}
	poolTimeouts, err := meter.Int64ObservableCounter("auth.redis.pool.timeouts",
		metric.WithDescription("Times a caller waited too long for a pooled connection"))
	if err != nil {
		return nil, err
	}

	idle := metric.WithAttributes(attribute.String("state", "idle"))
	used := metric.WithAttributes(attribute.String("state", "used"))
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := poolStats()
		if stats == nil {
			return nil
		}
		o.ObserveInt64(conns, int64(stats.IdleConns), idle)
		o.ObserveInt64(conns, int64(stats.TotalConns-stats.IdleConns), used)
		o.ObserveInt64(poolTimeouts, int64(stats.Timeouts))
		return nil
	}, conns, poolTimeouts)
	if err != nil {
		return nil, err
	}
	return &redisMetricsHook{commands: commands, latency: latency}, nil
}

func (h *redisMetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h *redisMetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.record(ctx, strings.ToLower(cmd.Name()), redisKeyspace(cmd.Args()), err, time.Since(start))
		return err
	}
}

func (h *redisMetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.record(ctx, "pipeline", "", err, time.Since(start))
		return err
	}
}

func (h *redisMetricsHook) record(ctx context.Context, command, keyspace string, err error, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("keyspace", keyspace),
		attribute.String("status", redisCommandStatus(err)),
	)
	h.commands.Add(ctx, 1, attrs)
	h.latency.Record(ctx, d.Seconds(), attrs)
}

// redisKeyspace reduces "<prefix>:revoked_jwt:<jti>" to "revoked_jwt" so the
// token id never becomes a metric attribute.
func redisKeyspace(args []any) string {
	if len(args) < 2 {
		return ""
	}
	key, ok := args[1].(string)
	if !ok {
		return ""
	}
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 {
		return "other"
	}
	return parts[1]
}

// redisCommandStatus maps redis.Nil to "miss". For blocklist GETs that is the
// common not-revoked path.
func redisCommandStatus(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, redis.Nil) {
		return "miss"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "error"
}
