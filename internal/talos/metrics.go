package talos

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/execwatch/execwatch/internal/telemetry"
)

type watcherMetrics struct {
	environment string
	watcher     string

	reconnects    metric.Int64Counter
	messages      metric.Int64Counter
	messageBytes  metric.Int64Histogram
	pings         metric.Int64Counter
	notifications metric.Int64Counter
	venueErrors   metric.Int64Counter
	downtime      metric.Float64Histogram
}

func newWatcherMetrics(watcher string) *watcherMetrics {
	meter := otel.Meter("execwatch.stream")
	wm := &watcherMetrics{
		environment: telemetry.Environment(),
		watcher:     strings.TrimSpace(watcher),
	}

	wm.reconnects, _ = meter.Int64Counter("execwatch_stream_reconnects",
		metric.WithDescription("Stream connection attempts after a failure"),
		metric.WithUnit("{reconnect}"))

	wm.messages, _ = meter.Int64Counter("execwatch_stream_messages",
		metric.WithDescription("Messages received on the execution report stream"),
		metric.WithUnit("{message}"))

	wm.messageBytes, _ = meter.Int64Histogram("execwatch_stream_message_bytes",
		metric.WithDescription("Size of received stream messages"),
		metric.WithUnit("By"))

	wm.pings, _ = meter.Int64Counter("execwatch_stream_pings",
		metric.WithDescription("Keep-alive pings sent on read timeout"),
		metric.WithUnit("{ping}"))

	wm.notifications, _ = meter.Int64Counter("execwatch_notifications",
		metric.WithDescription("Notifications pushed to the sink"),
		metric.WithUnit("{notification}"))

	wm.venueErrors, _ = meter.Int64Counter("execwatch_venue_errors",
		metric.WithDescription("Errors reported by the venue stream"),
		metric.WithUnit("{error}"))

	wm.downtime, _ = meter.Float64Histogram("execwatch_stream_downtime",
		metric.WithDescription("Downtime observed before a successful reconnect"),
		metric.WithUnit("s"))

	return wm
}

func (wm *watcherMetrics) baseAttrs() []metric.AddOption {
	return []metric.AddOption{
		metric.WithAttributes(telemetry.WatcherAttributes(wm.environment, wm.watcher)...),
	}
}

func (wm *watcherMetrics) recordReconnect(ctx context.Context, result string) {
	if wm == nil || wm.reconnects == nil {
		return
	}
	attrs := telemetry.WatcherAttributes(wm.environment, wm.watcher)
	if result != "" {
		attrs = append(attrs, telemetry.AttrResult.String(result))
	}
	wm.reconnects.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (wm *watcherMetrics) recordMessage(ctx context.Context, bytes int) {
	if wm == nil || wm.messages == nil || wm.messageBytes == nil {
		return
	}
	attrs := metric.WithAttributes(telemetry.WatcherAttributes(wm.environment, wm.watcher)...)
	wm.messages.Add(ctx, 1, attrs)
	if bytes > 0 {
		wm.messageBytes.Record(ctx, int64(bytes), attrs)
	}
}

func (wm *watcherMetrics) recordPing(ctx context.Context) {
	if wm == nil || wm.pings == nil {
		return
	}
	wm.pings.Add(ctx, 1, wm.baseAttrs()...)
}

func (wm *watcherMetrics) recordNotification(ctx context.Context, eventType string) {
	if wm == nil || wm.notifications == nil {
		return
	}
	attrs := telemetry.EventAttributes(wm.environment, wm.watcher, eventType)
	wm.notifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (wm *watcherMetrics) recordVenueError(ctx context.Context, reason string) {
	if wm == nil || wm.venueErrors == nil {
		return
	}
	attrs := telemetry.WatcherAttributes(wm.environment, wm.watcher)
	if reason != "" {
		attrs = append(attrs, telemetry.AttrReason.String(reason))
	}
	wm.venueErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (wm *watcherMetrics) recordDowntime(ctx context.Context, seconds float64) {
	if wm == nil || wm.downtime == nil || seconds < 0 {
		return
	}
	attrs := metric.WithAttributes(telemetry.WatcherAttributes(wm.environment, wm.watcher)...)
	wm.downtime.Record(ctx, seconds, attrs)
}
