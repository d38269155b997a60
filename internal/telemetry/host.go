package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/host"
)

const hostScopeName = "github.com/lherron/importlink/host"

// InstrumentedHost wraps a host.Host with spans and importlink.host.*
// metrics.
type InstrumentedHost struct {
	inner  host.Host
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// instrumentedUniqueHost keeps the atomic insert-if-absent capability of the
// wrapped host visible to type assertions.
type instrumentedUniqueHost struct {
	*InstrumentedHost
	unique host.UniqueAttributeAdder
}

// WrapHost returns h decorated with instrumentation. When telemetry is
// disabled h is returned as-is.
func WrapHost(h host.Host) host.Host {
	if !Enabled() {
		return h
	}
	return wrapHost(h)
}

func wrapHost(h host.Host) host.Host {
	return wrapHostWith(h, Meter(hostScopeName))
}

// wrapHostWith falls back to a no-op instrument for any instrument the
// meter refuses, so host calls keep working without that metric.
func wrapHostWith(h host.Host, m metric.Meter) host.Host {
	fallback := metricnoop.Meter{}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			slog.Warn("telemetry instrument unavailable", "instrument", name, "error", err)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}
	ops := counter("importlink.host.operations", "Total host operations executed")
	errs := counter("importlink.host.errors", "Total host operation errors")
	dur, err := m.Float64Histogram("importlink.host.operation.duration",
		metric.WithDescription("Host operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		slog.Warn("telemetry instrument unavailable", "instrument", "importlink.host.operation.duration", "error", err)
		dur, _ = fallback.Float64Histogram("importlink.host.operation.duration")
	}
	ih := &InstrumentedHost{
		inner:  h,
		tracer: Tracer(hostScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
	if u, ok := h.(host.UniqueAttributeAdder); ok {
		return &instrumentedUniqueHost{InstrumentedHost: ih, unique: u}
	}
	return ih
}

func (h *InstrumentedHost) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("host.operation", name)}, attrs...)
	ctx, span := h.tracer.Start(ctx, "host."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	h.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

func (h *InstrumentedHost) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	h.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (h *InstrumentedHost) Create(ctx context.Context, kind domain.Kind, fields domain.Fields) (int64, error) {
	attrs := []attribute.KeyValue{attribute.String("importlink.kind", string(kind))}
	ctx, span, t := h.op(ctx, "Create", attrs...)
	v, err := h.inner.Create(ctx, kind, fields)
	span.SetAttributes(attribute.Int64("importlink.new_id", v))
	h.done(ctx, span, t, err, attrs...)
	return v, err
}

func (h *InstrumentedHost) Kind(ctx context.Context, id int64) (string, error) {
	ctx, span, t := h.op(ctx, "Kind", attribute.Int64("importlink.new_id", id))
	v, err := h.inner.Kind(ctx, id)
	h.done(ctx, span, t, err)
	return v, err
}

func (h *InstrumentedHost) Attribute(ctx context.Context, id int64, key string) ([]string, error) {
	attrs := []attribute.KeyValue{attribute.String("importlink.attribute", key)}
	ctx, span, t := h.op(ctx, "Attribute", attrs...)
	v, err := h.inner.Attribute(ctx, id, key)
	h.done(ctx, span, t, err, attrs...)
	return v, err
}

func (h *InstrumentedHost) SetAttribute(ctx context.Context, id int64, key, value string) error {
	attrs := []attribute.KeyValue{attribute.String("importlink.attribute", key)}
	ctx, span, t := h.op(ctx, "SetAttribute", attrs...)
	err := h.inner.SetAttribute(ctx, id, key, value)
	h.done(ctx, span, t, err, attrs...)
	return err
}

func (h *InstrumentedHost) AddAttribute(ctx context.Context, id int64, key, value string) error {
	attrs := []attribute.KeyValue{attribute.String("importlink.attribute", key)}
	ctx, span, t := h.op(ctx, "AddAttribute", attrs...)
	err := h.inner.AddAttribute(ctx, id, key, value)
	h.done(ctx, span, t, err, attrs...)
	return err
}

func (h *InstrumentedHost) DeleteAttribute(ctx context.Context, id int64, key string) error {
	attrs := []attribute.KeyValue{attribute.String("importlink.attribute", key)}
	ctx, span, t := h.op(ctx, "DeleteAttribute", attrs...)
	err := h.inner.DeleteAttribute(ctx, id, key)
	h.done(ctx, span, t, err, attrs...)
	return err
}

func (h *InstrumentedHost) Delete(ctx context.Context, id int64) error {
	ctx, span, t := h.op(ctx, "Delete", attribute.Int64("importlink.new_id", id))
	err := h.inner.Delete(ctx, id)
	h.done(ctx, span, t, err)
	return err
}

func (h *InstrumentedHost) UpdateFields(ctx context.Context, id int64, fields map[string]any) error {
	attrs := []attribute.KeyValue{attribute.Int("importlink.field.count", len(fields))}
	ctx, span, t := h.op(ctx, "UpdateFields", attrs...)
	err := h.inner.UpdateFields(ctx, id, fields)
	h.done(ctx, span, t, err, attrs...)
	return err
}

func (h *InstrumentedHost) FindByAttribute(ctx context.Context, key, value string) (int64, error) {
	attrs := []attribute.KeyValue{attribute.String("importlink.attribute", key)}
	ctx, span, t := h.op(ctx, "FindByAttribute", attrs...)
	v, err := h.inner.FindByAttribute(ctx, key, value)
	h.done(ctx, span, t, err, attrs...)
	return v, err
}

func (h *instrumentedUniqueHost) AddUniqueAttribute(ctx context.Context, id int64, key, value string) (bool, error) {
	attrs := []attribute.KeyValue{attribute.String("importlink.attribute", key)}
	ctx, span, t := h.op(ctx, "AddUniqueAttribute", attrs...)
	v, err := h.unique.AddUniqueAttribute(ctx, id, key, value)
	span.SetAttributes(attribute.Bool("importlink.inserted", v))
	h.done(ctx, span, t, err, attrs...)
	return v, err
}
