package auth

import (
	"context"
	"errors"
)

type ctxKey int

const ctxActorID ctxKey = iota

func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ctxActorID, actorID)
}

// ActorID returns the authenticated principal from the request context.
func ActorID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxActorID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("actor_id not in context")
}
