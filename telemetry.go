// Copyright 2025 The Rivaas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package admin

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "rivaas.dev/admin"

// Metric and span names recorded for every dispatch.
const (
	SpanDispatch           = "admin.dispatch"
	MetricDispatchCount    = "admin.dispatch.count"
	MetricDispatchDuration = "admin.dispatch.duration"
)

// Attribute keys set on dispatch spans and metrics.
const (
	AttrResource = attribute.Key("admin.resource")
	AttrView     = attribute.Key("admin.view")
	AttrKind     = attribute.Key("admin.kind")
	AttrOutcome  = attribute.Key("admin.outcome")
)

// outcome is the coarse result of one dispatch.
type outcome string

const (
	outcomeRendered   outcome = "rendered"
	outcomeInvalid    outcome = "invalid"
	outcomeRedirected outcome = "redirected"
	outcomeJSON       outcome = "json"
	outcomeDenied     outcome = "denied"
	outcomeNotFound   outcome = "not_found"
	outcomeError      outcome = "error"
)

type telemetry struct {
	tracer   trace.Tracer
	count    metric.Int64Counter
	duration metric.Float64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*telemetry, error) {
	meter := mp.Meter(instrumentationName)

	count, err := meter.Int64Counter(MetricDispatchCount,
		metric.WithDescription("Admin view dispatches by outcome"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("admin: create %s: %w", MetricDispatchCount, err)
	}
	duration, err := meter.Float64Histogram(MetricDispatchDuration,
		metric.WithDescription("Admin view dispatch duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("admin: create %s: %w", MetricDispatchDuration, err)
	}

	return &telemetry{
		tracer:   tp.Tracer(instrumentationName),
		count:    count,
		duration: duration,
	}, nil
}

func (t *telemetry) start(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDispatch,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

func (t *telemetry) finish(ctx context.Context, span trace.Span, o outcome, err error, elapsed time.Duration, attrs ...attribute.KeyValue) {
	span.SetAttributes(AttrOutcome.String(string(o)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	attrs = append(attrs[:len(attrs):len(attrs)], AttrOutcome.String(string(o)))
	set := metric.WithAttributes(attrs...)
	t.count.Add(ctx, 1, set)
	t.duration.Record(ctx, elapsed.Seconds(), set)
}
