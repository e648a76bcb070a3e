// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package driverbase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/apache/arrow-adbc/go/adbc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	Namespace          = "xdbc"
	otelTracesExporter = "OTEL_TRACES_EXPORTER"
)

// NilLogger discards everything. Drivers log through it until a caller
// provides a logger.
func NilLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// LoggerOrNil returns l, or a discarding logger if l is nil.
func LoggerOrNil(l *slog.Logger) *slog.Logger {
	if l == nil {
		return NilLogger()
	}
	return l
}

// Telemetry owns a driver's tracer and the provider behind it.
type Telemetry struct {
	Tracer   trace.Tracer
	shutdown func(context.Context) error
}

// NopTelemetry records nothing.
func NopTelemetry() *Telemetry {
	return &Telemetry{Tracer: noop.NewTracerProvider().Tracer(Namespace)}
}

// NewTelemetry sets up tracing for a driver. The exporter is chosen by the
// OTEL_TRACES_EXPORTER environment variable: unset uses the global tracer
// provider, otherwise one of none, otlp, console or adbcfile.
func NewTelemetry(ctx context.Context, driverName, driverVersion string) (*Telemetry, error) {
	return newTelemetry(ctx, os.Getenv(otelTracesExporter), driverName, driverVersion)
}

func newTelemetry(ctx context.Context, exporterName, driverName, driverVersion string) (*Telemetry, error) {
	qualified := Namespace + "." + driverName
	if exporterName == "" {
		return &Telemetry{Tracer: otel.Tracer(qualified)}, nil
	}

	var exporters []sdktrace.SpanExporter
	switch adbc.OptionTelemetryExporter(exporterName) {
	case adbc.TelemetryExporterNone:
		return NopTelemetry(), nil
	case adbc.TelemetryExporterConsole:
		exp, err := stdouttrace.New()
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, exp)
	case adbc.TelemetryExporterOtlp:
		exps, err := newOtlpTraceExporters(ctx)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, exps...)
	case adbc.TelemetryExporterAdbcFile:
		exp, err := newFileExporter(driverName)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, exp)
	default:
		return nil, adbc.Error{
			Code: adbc.StatusInvalidArgument,
			Msg:  "[" + driverName + "] Unknown " + otelTracesExporter + " option '" + exporterName + "'",
		}
	}

	provider, err := newTracerProvider(exporters...)
	if err != nil {
		return nil, err
	}
	return &Telemetry{
		Tracer: provider.Tracer(qualified,
			trace.WithInstrumentationVersion(driverVersion),
			trace.WithSchemaURL(semconv.SchemaURL)),
		shutdown: provider.Shutdown,
	}, nil
}

func (t *Telemetry) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.Tracer.Start(ctx, name, opts...)
}

// Shutdown flushes and stops the exporters, if this Telemetry owns any.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdown == nil {
		return nil
	}
	err := t.shutdown(ctx)
	t.shutdown = nil
	return err
}

func newOtlpTraceExporters(ctx context.Context) ([]sdktrace.SpanExporter, error) {
	// endpoints and headers come from the standard OTEL_EXPORTER_OTLP_* variables
	grpcExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
		}))
	if err != nil {
		return nil, err
	}
	httpExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
		}))
	if err != nil {
		return nil, err
	}
	return []sdktrace.SpanExporter{grpcExporter, httpExporter}, nil
}

func newFileExporter(driverName string) (*stdouttrace.Exporter, error) {
	prefix := strings.ToLower(Namespace + "." + driverName)
	w, err := NewRotatingFileWriter(WithLogNamePrefix(prefix))
	if err != nil {
		return nil, err
	}
	return stdouttrace.New(stdouttrace.WithWriter(w))
}

func newTracerProvider(exporters ...sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	own := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(Namespace))
	res, err := resource.Merge(resource.Default(), own)
	if err != nil {
		if !errors.Is(err, resource.ErrSchemaURLConflict) {
			return nil, err
		}
		res = own
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}
