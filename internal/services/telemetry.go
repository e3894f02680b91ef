package services

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/hanko-field/orderdesk/internal/services"

type telemetry struct {
	tracer              trace.Tracer
	ordersCreated       metric.Int64Counter
	invoicesCreated     metric.Int64Counter
	paymentsRecorded    metric.Int64Counter
	notificationsFailed metric.Int64Counter
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) telemetry {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	return telemetry{
		tracer:              tp.Tracer(instrumentationName),
		ordersCreated:       int64Counter(meter, "orders.created", "Orders persisted"),
		invoicesCreated:     int64Counter(meter, "invoices.created", "Invoices derived or issued"),
		paymentsRecorded:    int64Counter(meter, "invoices.payments.recorded", "Payments appended to invoice ledgers"),
		notificationsFailed: int64Counter(meter, "notifications.failed", "Notifications that exhausted their retries"),
	}
}

func int64Counter(meter metric.Meter, name, description string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return metricnoop.Int64Counter{}
	}
	return counter
}

func (t telemetry) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// end records err on the span and closes it.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
