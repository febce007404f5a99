package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/weftlabs/weft/internal/storage"
	"github.com/weftlabs/weft/internal/types"
)

const storageScopeName = "github.com/weftlabs/weft/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in weft.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	ops      metric.Int64Counter
	dur      metric.Float64Histogram
	errs     metric.Int64Counter
	rowGauge metric.Int64Gauge
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("weft.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("weft.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("weft.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	rowGauge, _ := m.Int64Gauge("weft.space.rows",
		metric.WithDescription("Current per-space row counts by kind (snapshot from Statistics)"),
	)
	return &InstrumentedStorage{
		inner:    s,
		tracer:   Tracer(storageScopeName),
		ops:      ops,
		dur:      dur,
		errs:     errs,
		rowGauge: rowGauge,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func spaceAttr(spaceID string) attribute.KeyValue {
	return attribute.String("weft.space", spaceID)
}

// ── Principals ──────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) StorePrincipal(ctx context.Context, p *types.Principal) error {
	attrs := []attribute.KeyValue{
		spaceAttr(p.SpaceID),
		attribute.String("weft.principal.id", p.ID),
	}
	ctx, span, t := s.op(ctx, "StorePrincipal", attrs...)
	err := s.inner.StorePrincipal(ctx, p)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) RetrievePrincipal(ctx context.Context, spaceID, principalID string) (*types.Principal, error) {
	attrs := []attribute.KeyValue{
		spaceAttr(spaceID),
		attribute.String("weft.principal.id", principalID),
	}
	ctx, span, t := s.op(ctx, "RetrievePrincipal", attrs...)
	v, err := s.inner.RetrievePrincipal(ctx, spaceID, principalID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) DiscardPrincipal(ctx context.Context, spaceID, principalID string) (bool, error) {
	attrs := []attribute.KeyValue{
		spaceAttr(spaceID),
		attribute.String("weft.principal.id", principalID),
	}
	ctx, span, t := s.op(ctx, "DiscardPrincipal", attrs...)
	v, err := s.inner.DiscardPrincipal(ctx, spaceID, principalID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Records ─────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) StoreRecord(ctx context.Context, r *types.Record) error {
	attrs := []attribute.KeyValue{
		spaceAttr(r.SpaceID),
		attribute.String("weft.principal.id", r.PrincipalID),
		attribute.String("weft.resource.type", r.ResourceType),
	}
	ctx, span, t := s.op(ctx, "StoreRecord", attrs...)
	err := s.inner.StoreRecord(ctx, r)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) RetrieveRecord(ctx context.Context, spaceID, principalID, resourceType, resourceID string) (*types.Record, error) {
	attrs := []attribute.KeyValue{
		spaceAttr(spaceID),
		attribute.String("weft.principal.id", principalID),
		attribute.String("weft.resource.type", resourceType),
	}
	ctx, span, t := s.op(ctx, "RetrieveRecord", attrs...)
	v, err := s.inner.RetrieveRecord(ctx, spaceID, principalID, resourceType, resourceID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) DiscardRecord(ctx context.Context, spaceID, principalID, resourceType, resourceID string) (bool, error) {
	attrs := []attribute.KeyValue{
		spaceAttr(spaceID),
		attribute.String("weft.principal.id", principalID),
		attribute.String("weft.resource.type", resourceType),
	}
	ctx, span, t := s.op(ctx, "DiscardRecord", attrs...)
	v, err := s.inner.DiscardRecord(ctx, spaceID, principalID, resourceType, resourceID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListRecordsByPrincipal(ctx context.Context, spaceID, principalID, resourceType, lastID string, limit int) ([]*types.Record, error) {
	attrs := []attribute.KeyValue{
		spaceAttr(spaceID),
		attribute.String("weft.principal.id", principalID),
	}
	ctx, span, t := s.op(ctx, "ListRecordsByPrincipal", attrs...)
	v, err := s.inner.ListRecordsByPrincipal(ctx, spaceID, principalID, resourceType, lastID, limit)
	if err == nil {
		span.SetAttributes(attribute.Int("weft.result.count", len(v)))
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListRecordsByResource(ctx context.Context, spaceID, resourceType, resourceID, lastID string, limit int) ([]*types.Record, error) {
	attrs := []attribute.KeyValue{
		spaceAttr(spaceID),
		attribute.String("weft.resource.type", resourceType),
	}
	ctx, span, t := s.op(ctx, "ListRecordsByResource", attrs...)
	v, err := s.inner.ListRecordsByResource(ctx, spaceID, resourceType, resourceID, lastID, limit)
	if err == nil {
		span.SetAttributes(attribute.Int("weft.result.count", len(v)))
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Tuples ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) StoreTuple(ctx context.Context, t *types.Tuple) error {
	attrs := []attribute.KeyValue{
		spaceAttr(t.SpaceID),
		attribute.String("weft.relation", t.Relation),
	}
	ctx, span, start := s.op(ctx, "StoreTuple", attrs...)
	err := s.inner.StoreTuple(ctx, t)
	s.done(ctx, span, start, err, attrs...)
	return err
}

func (s *InstrumentedStorage) DiscardTuple(ctx context.Context, spaceID, tupleID string) (bool, error) {
	attrs := []attribute.KeyValue{
		spaceAttr(spaceID),
		attribute.String("weft.tuple.id", tupleID),
	}
	ctx, span, t := s.op(ctx, "DiscardTuple", attrs...)
	v, err := s.inner.DiscardTuple(ctx, spaceID, tupleID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) RetrieveTuple(ctx context.Context, spaceID, tupleID string) (*types.Tuple, error) {
	attrs := []attribute.KeyValue{
		spaceAttr(spaceID),
		attribute.String("weft.tuple.id", tupleID),
	}
	ctx, span, t := s.op(ctx, "RetrieveTuple", attrs...)
	v, err := s.inner.RetrieveTuple(ctx, spaceID, tupleID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) LookupTuple(ctx context.Context, spaceID string, left, right types.Endpoint, relation, strand string) (*types.Tuple, error) {
	attrs := []attribute.KeyValue{
		spaceAttr(spaceID),
		attribute.String("weft.relation", relation),
	}
	ctx, span, t := s.op(ctx, "LookupTuple", attrs...)
	v, err := s.inner.LookupTuple(ctx, spaceID, left, right, relation, strand)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListLeft(ctx context.Context, spaceID string, right types.Endpoint, opt storage.ListOptions) ([]*types.Tuple, error) {
	attrs := []attribute.KeyValue{
		spaceAttr(spaceID),
		attribute.String("weft.relation", opt.Relation),
	}
	ctx, span, t := s.op(ctx, "ListLeft", attrs...)
	v, err := s.inner.ListLeft(ctx, spaceID, right, opt)
	if err == nil {
		span.SetAttributes(attribute.Int("weft.result.count", len(v)))
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListRight(ctx context.Context, spaceID string, left types.Endpoint, opt storage.ListOptions) ([]*types.Tuple, error) {
	attrs := []attribute.KeyValue{
		spaceAttr(spaceID),
		attribute.String("weft.relation", opt.Relation),
	}
	ctx, span, t := s.op(ctx, "ListRight", attrs...)
	v, err := s.inner.ListRight(ctx, spaceID, left, opt)
	if err == nil {
		span.SetAttributes(attribute.Int("weft.result.count", len(v)))
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListTuplets(ctx context.Context, spaceID string, left, right *types.Endpoint, relation string, limit int) ([]*types.Tuplet, error) {
	attrs := []attribute.KeyValue{
		spaceAttr(spaceID),
		attribute.String("weft.relation", relation),
	}
	ctx, span, t := s.op(ctx, "ListTuplets", attrs...)
	v, err := s.inner.ListTuplets(ctx, spaceID, left, right, relation, limit)
	if err == nil {
		span.SetAttributes(attribute.Int("weft.result.count", len(v)))
	}
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Statistics ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) Statistics(ctx context.Context, spaceID string) (*storage.Statistics, error) {
	attrs := []attribute.KeyValue{spaceAttr(spaceID)}
	ctx, span, t := s.op(ctx, "Statistics", attrs...)
	v, err := s.inner.Statistics(ctx, spaceID)
	s.done(ctx, span, t, err, attrs...)
	if err == nil && v != nil {
		// Record current row counts as gauge snapshots, broken down by kind.
		kindAttr := func(kind string) metric.MeasurementOption {
			return metric.WithAttributes(spaceAttr(spaceID), attribute.String("kind", kind))
		}
		s.rowGauge.Record(ctx, v.Principals, kindAttr("principals"))
		s.rowGauge.Record(ctx, v.Records, kindAttr("records"))
		s.rowGauge.Record(ctx, v.Tuples, kindAttr("tuples"))
	}
	return v, err
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
