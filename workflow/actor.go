package workflow

import "context"

type actorKey struct{}

// WithActor returns a context carrying the authenticated actor identity.
// An empty actor leaves ctx unchanged.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated actor carried by ctx.
func ActorFrom(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey{}).(string)
	return actor, ok && actor != ""
}
