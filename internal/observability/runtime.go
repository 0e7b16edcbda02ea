package observability

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sandeepkv93/account-auth-service/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Runtime owns the OTel providers so app shutdown can flush them in one call.
type Runtime struct {
	LoggerProvider *sdklog.LoggerProvider
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}
	var err error
	if rt.LoggerProvider, err = InitLogs(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if rt.MeterProvider, err = InitMetrics(ctx, cfg, logger); err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	if rt.TracerProvider, err = InitTracing(ctx, cfg, logger); err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	return rt, nil
}

// Shutdown flushes providers in reverse init order, logs last.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var steps []func(context.Context) error
	if r.TracerProvider != nil {
		steps = append(steps, r.TracerProvider.Shutdown)
	}
	if r.MeterProvider != nil {
		steps = append(steps, r.MeterProvider.Shutdown)
	}
	if r.LoggerProvider != nil {
		steps = append(steps, r.LoggerProvider.Shutdown)
	}
	errs := make([]error, 0, len(steps))
	for _, shutdown := range steps {
		errs = append(errs, shutdown(ctx))
	}
	return errors.Join(errs...)
}
