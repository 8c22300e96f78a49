package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes billing-level instruments.
type Metrics struct {
	readingsSaved       metric.Int64Counter
	chargesMaterialized metric.Int64Counter
	chargesCollected    metric.Int64Counter
	missingBaseline     metric.Int64Counter
	persistenceFailures metric.Int64Counter
	billedAmount        metric.Float64Counter
	transactions        metric.Int64Counter
	transactionAmount   metric.Float64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the billing instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "pgbilling"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	var err error
	if m.readingsSaved, err = meter.Int64Counter("pgbilling_readings_saved_total"); err != nil {
		return nil, err
	}
	if m.chargesMaterialized, err = meter.Int64Counter("pgbilling_charges_materialized_total"); err != nil {
		return nil, err
	}
	if m.chargesCollected, err = meter.Int64Counter("pgbilling_charges_collected_total"); err != nil {
		return nil, err
	}
	if m.missingBaseline, err = meter.Int64Counter("pgbilling_missing_baseline_total"); err != nil {
		return nil, err
	}
	if m.persistenceFailures, err = meter.Int64Counter("pgbilling_charge_persistence_failures_total"); err != nil {
		return nil, err
	}
	if m.billedAmount, err = meter.Float64Counter("pgbilling_billed_amount_total"); err != nil {
		return nil, err
	}
	if m.transactions, err = meter.Int64Counter("pgbilling_transactions_recorded_total"); err != nil {
		return nil, err
	}
	if m.transactionAmount, err = meter.Float64Counter("pgbilling_transaction_amount_total"); err != nil {
		return nil, err
	}
	return m, nil
}

// NewNoop returns instruments backed by the no-op provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordReadingSaved(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.readingsSaved.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
	)...))
}

// RecordChargesMaterialized counts charges written for one room and the
// amount they bill.
func (m *Metrics) RecordChargesMaterialized(ctx context.Context, roomID string, count int, amount float64) {
	if m == nil || count <= 0 {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("room_id", strings.TrimSpace(roomID)))...)
	m.chargesMaterialized.Add(ctx, int64(count), attrs)
	m.billedAmount.Add(ctx, amount, attrs)
}

func (m *Metrics) RecordChargeCollected(ctx context.Context, roomID string) {
	if m == nil {
		return
	}
	m.chargesCollected.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("room_id", strings.TrimSpace(roomID)),
	)...))
}

// RecordTransaction counts a rent, deposit or expense entry and its amount.
func (m *Metrics) RecordTransaction(ctx context.Context, kind, status string, amount float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(
		attribute.String("type", strings.TrimSpace(kind)),
		attribute.String("status", strings.TrimSpace(status)),
	)...)
	m.transactions.Add(ctx, 1, attrs)
	m.transactionAmount.Add(ctx, amount, attrs)
}

func (m *Metrics) RecordMissingBaseline(ctx context.Context) {
	if m == nil {
		return
	}
	m.missingBaseline.Add(ctx, 1)
}

func (m *Metrics) RecordPersistenceFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.persistenceFailures.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("reason", strings.TrimSpace(reason)),
	)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"room_id":     {},
	"operation":   {},
	"reason":      {},
	"status_code": {},
	"route":       {},
	"type":        {},
	"status":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
