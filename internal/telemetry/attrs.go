package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// attrKV is a tiny wrapper so callers can write telemetry.String("task.id", id)
// without importing go.opentelemetry.io/otel/attribute directly.
type attrKV struct {
	kv attribute.KeyValue
}

// String builds a string-valued span attribute.
func String(key, value string) attrKV {
	return attrKV{kv: attribute.String(key, value)}
}

func statusAttr(status string) attribute.KeyValue {
	return attribute.String("status", status)
}

func semconvServiceName(name string) attribute.KeyValue {
	return attribute.String("service.name", name)
}
