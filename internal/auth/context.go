package auth

import "context"

type ctxKey string

const actorKey ctxKey = "auth_actor"

// ContextWithActor stores the authenticated actor in the context. Only the HTTP
// boundary reads it back; core operations take the actor as an argument.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the authenticated actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	if !ok || a.ID == "" {
		return Actor{}, false
	}
	return a, true
}
