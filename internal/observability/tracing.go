package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/constellation-telemetry/internal/logging"
)

const (
	// TickSpanName names the span wrapping one engine transition.
	TickSpanName = "engine.tick"

	instrumentationName = "github.com/signalsfoundry/constellation-telemetry"
	defaultServiceName  = "constellation-telemetry"
	defaultOTLPEndpoint = "localhost:4317"
)

// Span attribute keys for tick spans.
const (
	AttrTick        = attribute.Key("sim.tick")
	AttrEntities    = attribute.Key("sim.entities")
	AttrActivePhase = attribute.Key("sim.active_phase")
)

// TickAttributes describes one applied tick.
func TickAttributes(tick uint64, entities int, activePhase string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTick.Int64(int64(tick)),
		AttrEntities.Int(entities),
		AttrActivePhase.String(activePhase),
	}
}

// TracingConfig governs how tick tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // used when Exporter == otlp
	SampleRatio float64
	// TickSampleEvery keeps one root tick span out of every N. Zero or one
	// keeps every tick.
	TickSampleEvery uint64
	Writer          io.Writer // stdout exporter destination; nil means os.Stdout
}

// TracingConfigFromEnv reads SIM_TRACING_* and SIM_OTLP_ENDPOINT. Values that
// fail to parse fall back to their defaults.
func TracingConfigFromEnv() TracingConfig {
	return TracingConfig{
		Enabled:         strings.EqualFold(os.Getenv("SIM_TRACING_ENABLED"), "true"),
		ServiceName:     envOr("SIM_TRACING_SERVICE_NAME", defaultServiceName),
		Exporter:        strings.ToLower(envOr("SIM_TRACING_EXPORTER", "stdout")),
		Endpoint:        os.Getenv("SIM_OTLP_ENDPOINT"),
		SampleRatio:     envRatio("SIM_TRACING_SAMPLE_RATIO", 1.0),
		TickSampleEvery: envUint("SIM_TRACING_TICK_EVERY", 1),
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envRatio(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v < 0 || v > 1 {
		return def
	}
	return v
}

func envUint(key string, def uint64) uint64 {
	v, err := strconv.ParseUint(os.Getenv(key), 10, 64)
	if err != nil || v == 0 {
		return def
	}
	return v
}

// NewSampler returns the simulator's sampling policy. Child spans follow
// their parent. Root tick spans are kept one in every TickSampleEvery, and
// any other root span is sampled by SampleRatio.
func NewSampler(cfg TracingConfig) sdktrace.Sampler {
	return sdktrace.ParentBased(&tickSampler{
		every: max(cfg.TickSampleEvery, 1),
		other: sdktrace.TraceIDRatioBased(cfg.SampleRatio),
	})
}

type tickSampler struct {
	every uint64
	seen  atomic.Uint64
	other sdktrace.Sampler
}

func (s *tickSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if p.Name != TickSpanName {
		return s.other.ShouldSample(p)
	}
	decision := sdktrace.Drop
	// The first tick is always kept.
	if (s.seen.Add(1)-1)%s.every == 0 {
		decision = sdktrace.RecordAndSample
	}
	return sdktrace.SamplingResult{
		Decision:   decision,
		Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
	}
}

func (s *tickSampler) Description() string {
	return fmt.Sprintf("TickSampler{every=%d,other=%s}", s.every, s.other.Description())
}

// InitTracing installs the global tracer provider and propagators. The
// returned function flushes buffered spans.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Info(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "simulator"),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := NewSampler(cfg)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.String("sampler", sampler.Description()),
	)
	return tp.Shutdown, nil
}

// Tracer returns the tracer used for simulator spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes tracing within five seconds, logging rather
// than returning any failure.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
