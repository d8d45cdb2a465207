package context

import (
	stdcontext "context"
	"strings"

	"github.com/smallbiznis/aurum/internal/actorcontext"
)

type requestIDKey struct{}

// WithRequestID annotates the context with the inbound request id.
func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(requestIDKey{}).(string); ok {
		return value
	}
	return ""
}

// ActorFromContext returns the authenticated actor's role and id, empty when anonymous.
func ActorFromContext(ctx stdcontext.Context) (string, string) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return "", ""
	}
	return actor.Role, actor.ID
}

// Resource is the store record an API request addresses.
type Resource struct {
	Kind   string
	ID     string
	Action string
}

// LogKey names the id field of the record in logs, e.g. customer_id.
func (r Resource) LogKey() string {
	return r.Kind + "_id"
}

var resourceKinds = map[string]string{
	"customers": "customer",
	"bills":     "bill",
	"products":  "product",
	"metals":    "metal",
	"gemstones": "gemstone",
	"rates":     "rate",
}

type resourceKey struct{}

// ResourceFromRoute maps an /api route template and its :id param to the
// record it addresses. "/api/customers/:id/pay-debt" is customer <id> with
// action pay-debt.
func ResourceFromRoute(route, id string) (Resource, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(route), "/api/")
	if !ok {
		return Resource{}, false
	}
	parts := strings.Split(rest, "/")
	kind, ok := resourceKinds[parts[0]]
	if !ok {
		return Resource{}, false
	}
	r := Resource{Kind: kind, ID: strings.TrimSpace(id)}
	if last := parts[len(parts)-1]; len(parts) > 1 && !strings.HasPrefix(last, ":") {
		r.Action = last
	}
	return r, true
}

func WithResource(ctx stdcontext.Context, r Resource) stdcontext.Context {
	if r.Kind == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, resourceKey{}, r)
}

func ResourceFromContext(ctx stdcontext.Context) (Resource, bool) {
	if ctx == nil {
		return Resource{}, false
	}
	r, ok := ctx.Value(resourceKey{}).(Resource)
	return r, ok
}
