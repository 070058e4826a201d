package telemetry

import "go.opentelemetry.io/otel/attribute"

// Shared attribute keys for watcher metrics.
const (
	AttrEnvironment = attribute.Key("environment")
	AttrWatcher     = attribute.Key("watcher")
	AttrVenueHost   = attribute.Key("venue.host")
	AttrEventType   = attribute.Key("event.type")
	AttrResult      = attribute.Key("result")
	AttrReason      = attribute.Key("reason")
)

// WatcherAttributes labels a metric with the environment and watcher name.
func WatcherAttributes(environment, watcher string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrWatcher.String(watcher),
	}
}

// EventAttributes labels a metric with the classified event type.
func EventAttributes(environment, watcher, eventType string) []attribute.KeyValue {
	return append(WatcherAttributes(environment, watcher), AttrEventType.String(eventType))
}
