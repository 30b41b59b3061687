// Package logger configures the process-wide slog logger: JSON to stdout
// by default, bridged to an OTLP collector when OTEL_ENABLED is set.
// Warnings and errors are sampled to bound log volume; counters are
// incremented regardless of sampling so dashboards stay accurate.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelFatal = slog.Level(12)
)

var (
	Logger          *slog.Logger
	programLevel    = new(slog.LevelVar)
	errorSampleRate int32 = 1 // log every error unless ERROR_SAMPLE_RATE raises it
	shutdownFunc    func(context.Context) error
)

// Counters incremented on every warning/error regardless of sampling.
var (
	TotalErrors   atomic.Int64
	TotalWarnings atomic.Int64
)

func init() {
	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = slog.LevelInfo
	}
	programLevel.Set(level)

	if sampleStr := os.Getenv("ERROR_SAMPLE_RATE"); sampleStr != "" {
		if rate, err := strconv.Atoi(sampleStr); err == nil && rate > 0 {
			atomic.StoreInt32(&errorSampleRate, int32(rate))
		}
	}

	if strings.ToLower(os.Getenv("OTEL_ENABLED")) == "true" {
		serviceName := os.Getenv("OTEL_SERVICE_NAME")
		if serviceName == "" {
			serviceName = "returns-disposition"
		}
		shutdown, err := setupOTELLogging(context.Background(), serviceName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to setup OTEL logging, falling back to JSON: %v\n", err)
			setupJSONLogging()
			return
		}
		shutdownFunc = shutdown
		return
	}

	setupJSONLogging()
}

func setupJSONLogging() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: programLevel})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	handler := &levelHandler{
		level: programLevel,
		handler: otelslog.NewHandler(serviceName,
			otelslog.WithLoggerProvider(provider)),
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
	return provider.Shutdown, nil
}

// levelHandler filters by level before delegating, since the otelslog
// bridge does not apply one itself.
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTLP exporter. No-op for JSON logging.
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

// SetLevel sets the minimum log level.
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// ParseLevel converts a level name to slog.Level. An empty or unknown
// name returns INFO with an error.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", levelStr)
	}
}

func shouldSample() bool {
	rate := atomic.LoadInt32(&errorSampleRate)
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// Trace logs at trace level, never sampled.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs at debug level, never sampled.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs at info level, never sampled.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs at warn level, sampled by ERROR_SAMPLE_RATE. The warning
// counter always increments.
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs at error level, sampled by ERROR_SAMPLE_RATE. The error
// counter always increments.
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs and exits, flushing the OTLP exporter first.
func Fatal(msg string, args ...any) {
	slog.Log(context.Background(), LevelFatal, msg, args...)
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}
