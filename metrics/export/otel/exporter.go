package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goIdentity.MetricsSnapshot
	AuditDropped() uint64
}

// series is one engine counter observed under a fixed attribute set.
type series struct {
	id    goIdentity.MetricID
	attrs attribute.Set
}

// family groups related engine counters into one OTel instrument.
type family struct {
	name   string
	help   string
	series []series
}

func result(id goIdentity.MetricID, v string) series {
	return series{id: id, attrs: attribute.NewSet(attribute.String("result", v))}
}

func event(id goIdentity.MetricID, v string) series {
	return series{id: id, attrs: attribute.NewSet(attribute.String("event", v))}
}

func keyLoad(id goIdentity.MetricID, source, res string) series {
	return series{id: id, attrs: attribute.NewSet(
		attribute.String("source", source),
		attribute.String("result", res),
	)}
}

// families lists the instruments the exporter registers. Every engine
// counter appears in exactly one series.
var families = []family{
	{name: "goidentity.logins", help: "Login calls by result.", series: []series{
		result(goIdentity.MetricLoginSuccess, "success"),
		result(goIdentity.MetricLoginFailure, "failure"),
	}},
	{name: "goidentity.provider.events", help: "Provider validator outcomes other than success.", series: []series{
		event(goIdentity.MetricProviderRejected, "rejected"),
		event(goIdentity.MetricProviderUnavailable, "unavailable"),
		event(goIdentity.MetricProviderRetry, "retry"),
	}},
	{name: "goidentity.users", help: "User directory changes made by identity resolution.", series: []series{
		event(goIdentity.MetricUserCreated, "created"),
		event(goIdentity.MetricUserCreateCollision, "create_collision"),
		event(goIdentity.MetricUserLinked, "linked"),
		event(goIdentity.MetricLinkRejected, "link_rejected"),
	}},
	{name: "goidentity.refreshes", help: "Refresh exchanges by result.", series: []series{
		result(goIdentity.MetricRefreshSuccess, "success"),
		result(goIdentity.MetricRefreshFailure, "failure"),
	}},
	{name: "goidentity.verifications", help: "Access token verifications by result.", series: []series{
		result(goIdentity.MetricVerifySuccess, "success"),
		result(goIdentity.MetricVerifyFailure, "failure"),
	}},
	{name: "goidentity.key.loads", help: "Signing key and key set loads by source and result.", series: []series{
		keyLoad(goIdentity.MetricSigningKeyRefresh, "signing_key", "success"),
		keyLoad(goIdentity.MetricSigningKeyRefreshFailure, "signing_key", "failure"),
		keyLoad(goIdentity.MetricJWKSRefresh, "jwks", "success"),
		keyLoad(goIdentity.MetricJWKSRefreshFailure, "jwks", "failure"),
	}},
}

// Operation names for the latency instruments, keyed by histogram id.
var latencyOps = map[goIdentity.MetricID]string{
	goIdentity.MetricLoginLatency:   "login",
	goIdentity.MetricRefreshLatency: "refresh",
}

type boundCounter struct {
	instrument metric.Int64ObservableCounter
	series     []series
}

// OTelExporter publishes Engine metrics through observable instruments.
// Counters are grouped by attribute; latency buckets are cumulative gauges
// keyed by op and le. One callback reads a single snapshot per collection.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []boundCounter
	buckets      metric.Int64ObservableGauge
	samples      metric.Int64ObservableGauge
	auditDropped metric.Int64ObservableCounter
	le           []attribute.KeyValue
}

// NewOTelExporter registers instruments on meter that read from engine.
func NewOTelExporter(meter metric.Meter, engine *goIdentity.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source, le: bucketBounds()}
	observables := make([]metric.Observable, 0, len(families)+3)

	for _, f := range families {
		ins, err := meter.Int64ObservableCounter(f.name, metric.WithDescription(f.help), metric.WithUnit("{call}"))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", f.name, err)
		}
		e.counters = append(e.counters, boundCounter{instrument: ins, series: f.series})
		observables = append(observables, ins)
	}

	var err error
	e.buckets, err = meter.Int64ObservableGauge("goidentity.latency.bucket",
		metric.WithDescription("Cumulative calls at or under the le bound, by op."))
	if err != nil {
		return nil, fmt.Errorf("create latency bucket gauge: %w", err)
	}
	e.samples, err = meter.Int64ObservableGauge("goidentity.latency.count",
		metric.WithDescription("Calls sampled into the latency buckets, by op."))
	if err != nil {
		return nil, fmt.Errorf("create latency count gauge: %w", err)
	}
	e.auditDropped, err = meter.Int64ObservableCounter("goidentity.audit.dropped",
		metric.WithDescription(internaldefs.AuditDroppedHelp), metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.buckets, e.samples, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func bucketBounds() []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(internaldefs.HistogramUpperBounds)+1)
	for _, b := range internaldefs.HistogramUpperBounds {
		out = append(out, attribute.String("le", strconv.FormatFloat(b, 'g', -1, 64)))
	}
	return append(out, attribute.String("le", "+Inf"))
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		for _, s := range c.series {
			v, ok := snapshot.Counters[s.id]
			if !ok {
				continue
			}
			o.ObserveInt64(c.instrument, int64(v), metric.WithAttributeSet(s.attrs))
		}
	}
	for id, op := range latencyOps {
		raw, ok := snapshot.Histograms[id]
		if !ok {
			continue
		}
		opAttr := attribute.String("op", op)
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, le := range e.le {
			o.ObserveInt64(e.buckets, int64(cumulative[i]), metric.WithAttributes(opAttr, le))
		}
		o.ObserveInt64(e.samples, int64(cumulative[len(cumulative)-1]), metric.WithAttributes(opAttr))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
