package actorcontext

import (
	"context"
	"strings"
)

// Actor identifies the authenticated caller of a request.
type Actor struct {
	ID   string
	Role string
}

// Subject renders the actor the way the policy store keys it.
func (a Actor) Subject() string {
	return "actor:" + a.ID
}

type actorContextKey struct{}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor from context, if set.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || strings.TrimSpace(actor.ID) == "" {
		return Actor{}, false
	}
	return actor, true
}
