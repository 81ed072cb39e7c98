package handlers

import (
	"context"

	"github.com/relayform/journeyengine/internal/fnregistry"
)

type effectCtxKey struct{}

// WithEffectContext attaches the current transition's EffectCtx to ctx so a
// nested FUNCTION(Effect) invocation can retrieve it without threading an
// extra parameter through every Resolve call.
func WithEffectContext(ctx context.Context, ectx fnregistry.EffectCtx) context.Context {
	return context.WithValue(ctx, effectCtxKey{}, ectx)
}

// EffectContextFrom retrieves the value installed by WithEffectContext.
func EffectContextFrom(ctx context.Context) (fnregistry.EffectCtx, bool) {
	ectx, ok := ctx.Value(effectCtxKey{}).(fnregistry.EffectCtx)
	return ectx, ok
}
