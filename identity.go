package portal

import (
	"context"
	"time"
)

// AuthUser is the identity provider's view of an authenticated account. It is
// owned by the provider; the store only keeps a read-only cached copy.
type AuthUser struct {
	ID        string         `json:"id,omitempty"`
	Email     string         `json:"email,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// DisplayName returns the provider-side display name, if one was attached as
// sign-up metadata.
func (u *AuthUser) DisplayName() string {
	if u == nil || u.Metadata == nil {
		return ""
	}
	if name, ok := u.Metadata["name"].(string); ok {
		return name
	}
	return ""
}

// Session is the opaque credential bundle issued by the identity provider.
type Session struct {
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	User         *AuthUser  `json:"user,omitempty"`
}

// AuthEventKind enumerates the provider's session-change notifications.
type AuthEventKind string

const (
	AuthEventInitialSession AuthEventKind = "INITIAL_SESSION"
	AuthEventSignedIn       AuthEventKind = "SIGNED_IN"
	AuthEventSignedOut      AuthEventKind = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEventKind = "USER_UPDATED"
)

// AuthEvent is delivered asynchronously for every session change. A nil
// Session means "no session".
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}

// SessionCallback receives session-change events from the identity provider.
type SessionCallback func(event AuthEvent)

// Subscription is the handle returned by OnSessionChange.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

// SignUpParams carry account-creation options. Data is attached as user
// metadata; RedirectTo is the email-verification landing target.
type SignUpParams struct {
	Email      string
	Password   string
	RedirectTo string
	Data       map[string]any
}

// SignOutScope selects how far a provider-side sign-out reaches.
type SignOutScope string

const (
	SignOutLocal  SignOutScope = "local"
	SignOutGlobal SignOutScope = "global"
)

// IdentityClient is the external identity provider surface consumed by the
// session store. Implementations serialize callback execution against their
// own request queue, which is why the store must never issue provider calls
// from inside a callback.
type IdentityClient interface {
	OnSessionChange(cb SessionCallback) Subscription
	GetSession(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, params SignUpParams) error
	SignOut(ctx context.Context, scope SignOutScope) error
}

// ProfileSource resolves the application-level profile for a provider user id.
type ProfileSource interface {
	FetchProfileByID(ctx context.Context, id string) (*Profile, error)
}

// ProfileSourceFunc adapts a function to the ProfileSource interface.
type ProfileSourceFunc func(ctx context.Context, id string) (*Profile, error)

func (f ProfileSourceFunc) FetchProfileByID(ctx context.Context, id string) (*Profile, error) {
	return f(ctx, id)
}
