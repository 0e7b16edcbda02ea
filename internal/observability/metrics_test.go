package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/sandeepkv93/account-auth-service/internal/config"
)

// installTestMetrics swaps the package instruments for ones backed by a
// manual reader and restores the uninitialized state afterwards.
func installTestMetrics(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := newAppMetrics(provider.Meter("auth-metrics-test"))
	if err != nil {
		t.Fatalf("create metrics: %v", err)
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
	t.Cleanup(func() {
		metricsMu.Lock()
		appMetrics = nil
		metricsMu.Unlock()
		_ = provider.Shutdown(context.Background())
	})
	return reader
}

func TestRecordHelpersAreNoopsBeforeInit(t *testing.T) {
	metricsMu.Lock()
	appMetrics = nil
	metricsMu.Unlock()

	ctx := context.Background()
	RecordAuthRequestDuration(ctx, "login", "success", time.Millisecond)
	RecordAuthFlowEvent(ctx, "register", "success")
	RecordTokenBlocklistEvent(ctx, "db", "check", "success")
	RecordToolCommandDuration(ctx, "seed", "apply", "success", time.Millisecond)
}

func TestRecordHelpersLabelDatapoints(t *testing.T) {
	cases := []struct {
		name   string
		record func(context.Context)
		metric string
		want   map[string]string
	}{
		{
			name:   "auth request duration",
			record: func(ctx context.Context) { RecordAuthRequestDuration(ctx, "login", "success", 10*time.Millisecond) },
			metric: "auth.request.duration",
			want:   map[string]string{"endpoint": "login", "status": "success"},
		},
		{
			name:   "auth flow",
			record: func(ctx context.Context) { RecordAuthFlowEvent(ctx, "verify", "invalid_token") },
			metric: "auth.flow.events",
			want:   map[string]string{"flow": "verify", "outcome": "invalid_token"},
		},
		{
			name:   "access token validation",
			record: func(ctx context.Context) { RecordAccessTokenValidation(ctx, "revoked", "header") },
			metric: "auth.access_token.validation.events",
			want:   map[string]string{"outcome": "revoked", "source": "header"},
		},
		{
			name:   "blocklist",
			record: func(ctx context.Context) { RecordTokenBlocklistEvent(ctx, "redis", "block", "success") },
			metric: "auth.token_blocklist.events",
			want:   map[string]string{"backend": "redis", "action": "block", "outcome": "success"},
		},
		{
			name:   "notification",
			record: func(ctx context.Context) { RecordNotificationEvent(ctx, "password_reset", "sent") },
			metric: "notification.events",
			want:   map[string]string{"kind": "password_reset", "outcome": "sent"},
		},
		{
			name:   "middleware validation",
			record: func(ctx context.Context) { RecordMiddlewareValidationEvent(ctx, "body_limit", "rejected_too_large") },
			metric: "http.middleware.validation.events",
			want:   map[string]string{"component": "body_limit", "outcome": "rejected_too_large"},
		},
		{
			name:   "health result",
			record: func(ctx context.Context) { RecordHealthCheckResult(ctx, "schema", "unhealthy") },
			metric: "health.check.results",
			want:   map[string]string{"check": "schema", "outcome": "unhealthy"},
		},
		{
			name:   "database startup",
			record: func(ctx context.Context) { RecordDatabaseStartupEvent(ctx, "migrate", "success") },
			metric: "database.startup.events",
			want:   map[string]string{"stage": "migrate", "outcome": "success"},
		},
		{
			name:   "tool run",
			record: func(ctx context.Context) { RecordToolCommandRun(ctx, "loadgen", "run", "error") },
			metric: "tool.command.runs",
			want:   map[string]string{"tool": "loadgen", "command": "run", "outcome": "error"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reader := installTestMetrics(t)
			ctx := context.Background()
			tc.record(ctx)

			var rm metricdata.ResourceMetrics
			if err := reader.Collect(ctx, &rm); err != nil {
				t.Fatalf("collect: %v", err)
			}
			attrs, ok := firstDatapointAttrs(rm, tc.metric)
			if !ok {
				t.Fatalf("no datapoint for %s", tc.metric)
			}
			if attrs.Len() != len(tc.want) {
				t.Fatalf("%s carries %d labels, want %d", tc.metric, attrs.Len(), len(tc.want))
			}
			for key, want := range tc.want {
				got, _ := attrs.Value(attribute.Key(key))
				if got.AsString() != want {
					t.Fatalf("%s %s=%q, want %q", tc.metric, key, got.AsString(), want)
				}
			}
		})
	}
}

func TestInitMetricsDisabledReturnsProvider(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mp, err := InitMetrics(ctx, &config.Config{OTELMetricsEnabled: false}, logger)
	if err != nil {
		t.Fatalf("init metrics disabled: %v", err)
	}
	if mp == nil {
		t.Fatal("expected non-nil meter provider")
	}
	_ = mp.Shutdown(ctx)
}

func firstDatapointAttrs(rm metricdata.ResourceMetrics, name string) (attribute.Set, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Attributes, true
				}
			case metricdata.Histogram[float64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Attributes, true
				}
			}
		}
	}
	return attribute.Set{}, false
}
