// Package telemetry defines the client's OpenTelemetry instruments. It
// takes a metric.Meter from the host application rather than owning SDK or
// exporter wiring: observability infrastructure is the caller's concern.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Instruments holds the counters and histogram the client facade records
// against. A nil *Instruments is safe to use: every Record* method no-ops
// when the corresponding metric.* value is nil.
type Instruments struct {
	DroppedEvents metric.Int64Counter
	AuthFailures  metric.Int64Counter
	TradeLatency  metric.Float64Histogram
}

// New creates the client's instruments against meter. Pass
// noop.NewMeterProvider().Meter("") in tests or when metrics are unwanted.
func New(meter metric.Meter) *Instruments {
	if meter == nil {
		return &Instruments{}
	}
	in := &Instruments{}
	in.DroppedEvents, _ = meter.Int64Counter("mt4gw_client_dropped_events",
		metric.WithDescription("Events dropped from the bounded event channel on overflow"),
		metric.WithUnit("{event}"))
	in.AuthFailures, _ = meter.Int64Counter("mt4gw_client_auth_failures",
		metric.WithDescription("Login handshake failures reported by the server"),
		metric.WithUnit("{failure}"))
	in.TradeLatency, _ = meter.Float64Histogram("mt4gw_client_trade_latency",
		metric.WithDescription("Round-trip time between a trade request and its matching response"),
		metric.WithUnit("ms"))
	return in
}

// RecordDroppedEvent increments the dropped-events counter.
func (in *Instruments) RecordDroppedEvent() {
	if in == nil || in.DroppedEvents == nil {
		return
	}
	in.DroppedEvents.Add(context.Background(), 1)
}

// RecordAuthFailure increments the auth-failures counter.
func (in *Instruments) RecordAuthFailure() {
	if in == nil || in.AuthFailures == nil {
		return
	}
	in.AuthFailures.Add(context.Background(), 1)
}

// RecordTradeLatencyMillis records one trade round-trip latency sample.
func (in *Instruments) RecordTradeLatencyMillis(ms float64) {
	if in == nil || in.TradeLatency == nil {
		return
	}
	in.TradeLatency.Record(context.Background(), ms)
}
