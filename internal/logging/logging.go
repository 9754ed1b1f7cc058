// Copyright (c) 2025 Justin Cranford
//
//

// Package logging builds the service's root *slog.Logger, fanning out to a
// console handler and, when an OTLP endpoint is configured, an OpenTelemetry
// log exporter. Grounded on the teacher's internal/shared/telemetry service,
// which wires STDOUT/OTLP exporters behind a single settings struct; here
// the surface is narrowed to logs only, since tracing/metrics wiring is an
// out-of-scope external collaborator per spec.md §1.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	otelloggrpc "go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	otellog "go.opentelemetry.io/otel/log"
	otelsdklog "go.opentelemetry.io/otel/sdk/log"
)

// Shutdown flushes and releases any OTLP exporter resources. It is a no-op
// when no OTLP endpoint was configured.
type Shutdown func(context.Context) error

// New builds the root logger. When otlpEndpoint is empty, logs go to a
// text console handler only. Otherwise records are fanned out to both the
// console and an OTLP gRPC log exporter via slogmulti.Fanout, matching the
// teacher's "human-readable plus machine-readable sink" shape.
func New(serviceName, otlpEndpoint string) (*slog.Logger, Shutdown, error) {
	console := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})

	if otlpEndpoint == "" {
		return slog.New(console), func(context.Context) error { return nil }, nil
	}

	exporter, err := otelloggrpc.New(context.Background(),
		otelloggrpc.WithEndpoint(otlpEndpoint),
		otelloggrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create otlp log exporter: %w", err)
	}

	provider := otelsdklog.NewLoggerProvider(
		otelsdklog.WithProcessor(otelsdklog.NewBatchProcessor(exporter)),
	)

	otelHandler := &bridgeHandler{logger: provider.Logger(serviceName)}
	handler := slogmulti.Fanout(console, otelHandler)

	return slog.New(handler), func(ctx context.Context) error { return provider.Shutdown(ctx) }, nil
}

// bridgeHandler adapts slog.Record to the OpenTelemetry log data model,
// since the module pulls in otel/log and otel/sdk/log directly rather than
// through a ready-made slog bridge.
type bridgeHandler struct {
	logger otellog.Logger
	attrs  []otellog.KeyValue
}

func (h *bridgeHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *bridgeHandler) Handle(ctx context.Context, record slog.Record) error {
	var r otellog.Record

	r.SetTimestamp(record.Time)
	r.SetBody(otellog.StringValue(record.Message))
	r.SetSeverity(severityFor(record.Level))
	r.AddAttributes(h.attrs...)

	record.Attrs(func(a slog.Attr) bool {
		r.AddAttributes(otellog.String(a.Key, a.Value.String()))

		return true
	})

	h.logger.Emit(ctx, r)

	return nil
}

func (h *bridgeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]otellog.KeyValue, len(h.attrs), len(h.attrs)+len(attrs))
	copy(next, h.attrs)

	for _, a := range attrs {
		next = append(next, otellog.String(a.Key, a.Value.String()))
	}

	return &bridgeHandler{logger: h.logger, attrs: next}
}

func (h *bridgeHandler) WithGroup(_ string) slog.Handler {
	return h
}

func severityFor(level slog.Level) otellog.Severity {
	switch {
	case level >= slog.LevelError:
		return otellog.SeverityError
	case level >= slog.LevelWarn:
		return otellog.SeverityWarn
	case level >= slog.LevelInfo:
		return otellog.SeverityInfo
	default:
		return otellog.SeverityDebug
	}
}
