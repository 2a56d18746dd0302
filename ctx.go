package portal

import "context"

var profileCtxKey = &contextKey{"profile"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithProfileContext sets the Profile in the given context
func WithProfileContext(r context.Context, profile *Profile) context.Context {
	return context.WithValue(r, profileCtxKey, profile)
}

// ProfileFromContext finds the profile from the context.
func ProfileFromContext(ctx context.Context) (*Profile, bool) {
	raw, ok := ctx.Value(profileCtxKey).(*Profile)
	return raw, ok
}

// WithSessionContext sets the provider Session in the given context
func WithSessionContext(r context.Context, session *Session) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// SessionFromContext finds the provider session from the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok
}

// ActorFromContext derives an ActorRef from the profile stored in the
// context, defaulting to a system actor when none is present.
func ActorFromContext(ctx context.Context) ActorRef {
	profile, ok := ProfileFromContext(ctx)
	if !ok || profile == nil {
		return ActorRef{Type: "system"}
	}
	return ActorRef{ID: profile.ID.String(), Type: "user"}
}
