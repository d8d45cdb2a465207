package tracing

import (
	"context"
	"errors"
	"strings"

	obscontext "github.com/smallbiznis/aurum/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"customer.phone":    {},
	"customer.name":     {},
	"customer.address":  {},
	"http.request.body": {},
}

// SafeAttributes drops attributes that could carry customer personal data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attr.Key]; blocked {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// ResourceAttributes describes the record a request addressed. Record ids
// are snowflakes, not personal data.
func ResourceAttributes(r obscontext.Resource) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("aurum.resource.kind", r.Kind)}
	if r.ID != "" {
		attrs = append(attrs, attribute.String("aurum."+r.LogKey(), r.ID))
	}
	if r.Action != "" {
		attrs = append(attrs, attribute.String("aurum.resource.action", r.Action))
	}
	return attrs
}

// SafeError reduces err to its first line so SQL fragments and bound values are not exported.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(err.Error())
	if idx := strings.IndexAny(msg, "\n"); idx >= 0 {
		msg = msg[:idx]
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return errors.New(msg)
}

// ExtractContext pulls upstream trace context from carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
