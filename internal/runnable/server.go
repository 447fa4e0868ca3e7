package runnable

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"pixel-compare/internal/codec"
	"pixel-compare/internal/compare"
	"pixel-compare/internal/config"
	diffimage "pixel-compare/internal/diff/image"
	"pixel-compare/internal/myhttp"
	"pixel-compare/internal/routes"
	"pixel-compare/internal/storage"
	"runtime"
	"syscall"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/grafana/pyroscope-go"
	pyroscopepprof "github.com/grafana/pyroscope-go/http/pprof"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"golang.org/x/net/netutil"
	"golang.org/x/xerrors"
)

type Server struct {
	address                string
	terminationGracePeriod time.Duration
	lameduck               time.Duration
	keepAlive              bool
	maxConnections         int
	baselineCacheSize      int
	maxUploadBytes         int64
	compareWorkers         int
	storageClient          storage.Storage
	codecOptions           []codec.Option
}

func NewServer(storageClient storage.Storage, codecOptions ...codec.Option) *Server {
	return &Server{
		address:                config.EnvOrDefaultValue("ADDRESS", "0.0.0.0:8383"),
		terminationGracePeriod: config.EnvOrDefaultValue("TERMINATION_GRACE_PERIOD", 10*time.Second),
		lameduck:               config.EnvOrDefaultValue("LAMEDUCK", 1*time.Second),
		keepAlive:              config.EnvOrDefaultValue("HTTP_KEEPALIVE", true),
		maxConnections:         config.EnvOrDefaultValue("MAX_CONNECTIONS", 65532),
		baselineCacheSize:      config.EnvOrDefaultValue("BASELINE_CACHE_SIZE", 128),
		maxUploadBytes:         config.EnvOrDefaultValue("MAX_UPLOAD_BYTES", int64(64<<20)),
		compareWorkers:         config.EnvOrDefaultValue("COMPARE_WORKERS", 0),
		storageClient:          storageClient,
		codecOptions: append([]codec.Option{
			codec.WithMaxPixels(config.EnvOrDefaultValue("MAX_PIXELS", int64(100_000_000))),
		}, codecOptions...),
	}
}

var Debug = false

// Handler wires the compare routes onto a fresh mux.
func (s *Server) Handler(logger *slog.Logger, httpRequestsDurationMicroSeconds metric.Int64Histogram, pixelComparisons metric.Int64Counter) http.Handler {
	c := codec.NewCodec(s.storageClient, s.codecOptions...)
	comparer := compare.NewComparer(c, diffimage.NewPixelDiff(s.compareWorkers), logger)
	baselines := routes.NewBaselines(s.baselineCacheSize)

	mux := myhttp.NewServerMux(logger, httpRequestsDurationMicroSeconds)

	mux.HandleFuncWithMiddleware("POST /compare", routes.LimitBody(s.maxUploadBytes, routes.Compare(comparer, c, pixelComparisons)))
	mux.HandleFuncWithMiddleware("POST /baselines", routes.LimitBody(s.maxUploadBytes, routes.RegisterBaseline(comparer, c, baselines)))
	mux.HandleFuncWithMiddleware("POST /baselines/{id}/compare", routes.LimitBody(s.maxUploadBytes, routes.CompareBaseline(c, baselines, pixelComparisons)))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(http.StatusText(http.StatusOK)))
	})

	mux.Handle("GET /metrics", promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),
	))

	if Debug {
		mux.HandleFunc("GET /debug/pprof/", pprof.Index)
		mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
		mux.HandleFunc("GET /debug/pprof/profile", pyroscopepprof.Profile)
	}

	return mux
}

func (s *Server) Start(ctx context.Context) error {
	runtime.SetMutexProfileFraction(1)
	runtime.SetBlockProfileRate(1)

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "compare-server",
		ServerAddress:   os.Getenv("PYROSCOPE_ENDPOINT"),
		UploadRate:      60 * time.Second,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		},
	})
	if err != nil {
		return xerrors.Errorf("failed to create profiler: %w", err)
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	r, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL),
	)
	if err != nil {
		return xerrors.Errorf("failed to create resource: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return xerrors.Errorf("failed to create trace exporter: %w", err)
	}
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(r),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(traceProvider))

	exporter, err := otelprometheus.New()
	if err != nil {
		return xerrors.Errorf("failed to create exporter: %w", err)
	}
	// NOTE: Gauge(UpDownCounter), Summary or Untyped does not support exemplars
	// https://github.com/prometheus/client_golang/blob/v1.20.4/prometheus/metric.go#L200
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)).Meter("compare-server")
	httpRequestsDurationMicroSeconds, err := meter.Int64Histogram("http_requests_duration_micro_seconds")
	if err != nil {
		return xerrors.Errorf("failed to create histogram: %w", err)
	}
	pixelComparisons, err := meter.Int64Counter("pixel_comparisons")
	if err != nil {
		return xerrors.Errorf("failed to create counter: %w", err)
	}

	logger, err := config.NewLogger(os.Stderr, Debug)
	if err != nil {
		return xerrors.Errorf("failed to create logger: %w", err)
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return xerrors.Errorf("failed to listen on address %s: %w", s.address, err)
	}

	server := &http.Server{
		Handler: s.Handler(logger, httpRequestsDurationMicroSeconds, pixelComparisons),
	}
	server.SetKeepAlivesEnabled(s.keepAlive)

	go func() {
		if err := server.Serve(netutil.LimitListener(listener, s.maxConnections)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to serve HTTP", "error", err)
		}
	}()
	logger.Info("serving", "address", s.address, "baselineCacheSize", s.baselineCacheSize)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, os.Interrupt)
	<-quit
	time.Sleep(s.lameduck)

	ctx, cancel := context.WithTimeout(ctx, s.terminationGracePeriod)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return xerrors.Errorf("failed to shutdown server: %w", err)
	}

	if err := traceProvider.Shutdown(ctx); err != nil {
		return xerrors.Errorf("failed to shutdown trace provider: %w", err)
	}

	if err := profiler.Stop(); err != nil {
		return xerrors.Errorf("failed to shutdown profiler: %w", err)
	}

	return nil
}
