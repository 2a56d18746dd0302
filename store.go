package portal

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/waveport/go-portal/storage"
)

// SessionStore is the single source of truth for "who is signed in". It
// brokers all identity-provider calls and normalizes session-change events
// into (user, profile) state.
//
// Construct one instance per application root and pass it down explicitly;
// the store is deliberately not a package singleton so tests can run
// isolated instances.
type SessionStore struct {
	identity  IdentityClient
	profiles  ProfileSource
	cfg       Config
	durable   storage.Store
	scoped    storage.Store
	navigator Navigator
	notifier  Notifier
	logger    Logger
	sink      ActivitySink

	mu    sync.RWMutex
	state Snapshot

	tasks     chan func()
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	sub       Subscription

	watchersMu sync.Mutex
	watchers   map[int]func(Snapshot)
	watcherSeq int
}

// SessionStoreOption customizes store construction.
type SessionStoreOption func(*SessionStore)

// WithStoreLogger overrides the default logger.
func WithStoreLogger(logger Logger) SessionStoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreNavigator sets the navigator used for post-sign-out navigation.
func WithStoreNavigator(nav Navigator) SessionStoreOption {
	return func(s *SessionStore) {
		s.navigator = normalizeNavigator(nav)
	}
}

// WithStoreNotifier sets the notification sink for operation outcomes.
func WithStoreNotifier(n Notifier) SessionStoreOption {
	return func(s *SessionStore) {
		s.notifier = normalizeNotifier(n)
	}
}

// WithStoreActivitySink sets the ActivitySink used to publish auth events.
func WithStoreActivitySink(sink ActivitySink) SessionStoreOption {
	return func(s *SessionStore) {
		s.sink = normalizeActivitySink(sink)
	}
}

// WithDurableStorage sets the persistent client storage swept by cleanup.
func WithDurableStorage(store storage.Store) SessionStoreOption {
	return func(s *SessionStore) {
		s.durable = store
	}
}

// WithSessionStorage sets the session-scoped client storage swept by cleanup.
func WithSessionStorage(store storage.Store) SessionStoreOption {
	return func(s *SessionStore) {
		s.scoped = store
	}
}

// NewSessionStore returns a stopped store; call Start to begin receiving
// provider events.
func NewSessionStore(identity IdentityClient, profiles ProfileSource, cfg Config, opts ...SessionStoreOption) *SessionStore {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	s := &SessionStore{
		identity:  identity,
		profiles:  profiles,
		cfg:       cfg,
		navigator: noopNavigator{},
		notifier:  noopNotifier{},
		logger:    defLogger{},
		sink:      noopActivitySink{},
		tasks:     make(chan func(), 256),
		done:      make(chan struct{}),
		watchers:  map[int]func(Snapshot){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Start registers for session-change notifications and then issues the
// one-time bootstrap session query. The registration MUST happen first so an
// event firing between the query's start and completion is never missed.
func (s *SessionStore) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.sub = s.identity.OnSessionChange(func(evt AuthEvent) {
			// only enqueue here: issuing provider calls from inside the
			// provider's own callback risks deadlocking against its
			// serialized request queue
			s.enqueue(func() { s.applyAuthEvent(evt) })
		})

		go s.run()

		go func() {
			sess, err := s.identity.GetSession(ctx)
			s.enqueue(func() {
				if s.Snapshot().Initialized {
					return
				}
				if err != nil {
					s.logger.Warn("bootstrap session query failed: %v", err)
					sess = nil
				}
				s.applyAuthEvent(AuthEvent{Kind: AuthEventInitialSession, Session: sess})
			})
		}()
	})
}

// Stop unsubscribes from the provider and halts the event queue.
func (s *SessionStore) Stop() {
	s.stopOnce.Do(func() {
		if s.sub != nil {
			s.sub.Unsubscribe()
		}
		close(s.done)
	})
}

// Snapshot returns a copy of the current state.
func (s *SessionStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns the currently signed-in provider user, if any.
func (s *SessionStore) User() *AuthUser { return s.Snapshot().User }

// Session returns the cached provider session, if any.
func (s *SessionStore) Session() *Session { return s.Snapshot().Session }

// Profile returns the resolved application profile, if any.
func (s *SessionStore) Profile() *Profile { return s.Snapshot().Profile }

// IsAdmin reports whether the current profile carries the admin role.
func (s *SessionStore) IsAdmin() bool { return s.Snapshot().Admin() }

// Initialized reports whether the first provider event has been resolved.
// It transitions false to true exactly once for the life of the store.
func (s *SessionStore) Initialized() bool { return s.Snapshot().Initialized }

// Loading reports whether a profile fetch is in flight.
func (s *SessionStore) Loading() bool { return s.Snapshot().Loading }

// Subscribe registers a watcher invoked with a snapshot after every state
// change. The returned function unsubscribes.
func (s *SessionStore) Subscribe(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}

	s.watchersMu.Lock()
	s.watcherSeq++
	id := s.watcherSeq
	s.watchers[id] = fn
	s.watchersMu.Unlock()

	return func() {
		s.watchersMu.Lock()
		delete(s.watchers, id)
		s.watchersMu.Unlock()
	}
}

// SignUpResult reports a sign-up outcome. Warning is set for the soft
// failure where the account was created but the confirmation email could not
// be delivered; callers must not block onward navigation on it.
type SignUpResult struct {
	ConfirmationEmailSent bool
	Warning               *errors.Error
}

// SignUp requests account creation with the display name attached as user
// metadata. It does not mutate local state; the subscription observes any
// resulting session (which may be none when email confirmation is required).
func (s *SessionStore) SignUp(ctx context.Context, email, password, name string) (SignUpResult, error) {
	s.cleanup(ctx)

	err := s.identity.SignUp(ctx, SignUpParams{
		Email:      email,
		Password:   password,
		RedirectTo: s.cfg.GetVerificationRedirectURL(),
		Data:       map[string]any{"name": name},
	})

	if err != nil {
		richErr := NormalizeProviderError(err)

		if IsEmailDeliveryError(richErr) {
			// account was still created, treat as success with warning
			s.logger.Warn("sign-up confirmation email undelivered for %s", email)
			s.notifier.Notify(Notification{
				Title:       "Account created",
				Description: "We could not send the confirmation email. Contact support if you cannot sign in.",
				Variant:     NotificationWarning,
			})
			return SignUpResult{Warning: richErr}, nil
		}

		s.notifier.Notify(Notification{
			Title:       "Sign up failed",
			Description: richErr.Message,
			Variant:     NotificationDestructive,
		})
		return SignUpResult{}, richErr
	}

	s.emitEvent(ctx, ActivityEventSignUp, email, nil)
	s.notifier.Notify(Notification{
		Title:       "Account created",
		Description: "Check your email to confirm your account.",
		Variant:     NotificationDefault,
	})

	return SignUpResult{ConfirmationEmailSent: true}, nil
}

// SignIn requests password authentication. On failure the provider error is
// returned verbatim; on success local state is left untouched and the
// subscription populates it, avoiding a double-update race with the
// listener.
func (s *SessionStore) SignIn(ctx context.Context, email, password string) error {
	if err := s.identity.SignInWithPassword(ctx, email, password); err != nil {
		richErr := NormalizeProviderError(err)
		s.emitEvent(ctx, ActivityEventSignInFailure, email, map[string]any{
			"error": richErr.Message,
		})
		s.notifier.Notify(Notification{
			Title:       "Sign in failed",
			Description: richErr.Message,
			Variant:     NotificationDestructive,
		})
		return richErr
	}

	s.emitEvent(ctx, ActivityEventSignInSuccess, email, nil)
	s.notifier.Notify(Notification{
		Title:   "Welcome back",
		Variant: NotificationDefault,
	})

	return nil
}

// SignOut clears provider artifacts and local state, then navigates to the
// root route. State is cleared synchronously rather than waiting for the
// provider's notification so the UI reflects sign-out immediately. Safe to
// call when already signed out.
func (s *SessionStore) SignOut(ctx context.Context) {
	s.cleanup(ctx)

	s.mu.Lock()
	wasAuthenticated := s.state.User != nil
	s.state.User = nil
	s.state.Session = nil
	s.state.Profile = nil
	s.state.Loading = false
	snap := s.state
	s.mu.Unlock()

	s.notifyWatchers(snap)

	if wasAuthenticated {
		s.emitEvent(ctx, ActivityEventSignOut, "", nil)
	}

	s.navigator.Navigate(s.cfg.GetRootRoute(), NavigateOptions{})
}

func (s *SessionStore) enqueue(task func()) {
	select {
	case <-s.done:
	case s.tasks <- task:
	}
}

func (s *SessionStore) run() {
	for {
		select {
		case <-s.done:
			return
		case task := <-s.tasks:
			task()
		}
	}
}

// applyAuthEvent runs on the event queue. Session and user are updated
// synchronously; the profile fetch is scheduled as a follow-up task so the
// provider's callback serialization can never deadlock against it.
func (s *SessionStore) applyAuthEvent(evt AuthEvent) {
	// a panic here would silently freeze auth state for the rest of the
	// session, so the handler never lets one escape
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session event handler panic: %v", r)
		}
	}()

	s.mu.Lock()
	s.state.Session = evt.Session
	if evt.Session != nil {
		s.state.User = evt.Session.User
	} else {
		s.state.User = nil
	}

	user := s.state.User
	if user == nil {
		s.state.Profile = nil
		s.state.Loading = false
	} else {
		s.state.Loading = true
	}
	s.state.Initialized = true
	snap := s.state
	s.mu.Unlock()

	s.logger.Debug("session event %s: %s", evt.Kind, snap)
	s.notifyWatchers(snap)

	if user != nil {
		u := *user
		s.enqueue(func() { s.beginProfileFetch(u) })
	}
}

// beginProfileFetch runs one queue turn after the session update. The fetch
// itself happens off-queue so a slow lookup never delays later events; the
// result is applied back on the queue.
func (s *SessionStore) beginProfileFetch(u AuthUser) {
	go func() {
		profile, err := s.fetchProfile(u)
		s.enqueue(func() { s.applyProfileResult(u, profile, err) })
	}()
}

func (s *SessionStore) fetchProfile(u AuthUser) (profile *Profile, err error) {
	defer func() {
		if r := recover(); r != nil {
			profile = nil
			err = errors.New("profile lookup panicked", errors.CategoryInternal).
				WithMetadata(map[string]any{"panic": r})
		}
	}()

	if s.profiles == nil {
		return nil, ErrProfileNotFound
	}

	return s.profiles.FetchProfileByID(context.Background(), u.ID)
}

func (s *SessionStore) applyProfileResult(u AuthUser, profile *Profile, err error) {
	if err != nil || profile == nil {
		// never leave profile null while a user exists, the guard needs a
		// non-null profile to route anywhere
		if err != nil {
			s.logger.Warn("profile lookup failed for %s: %v", u.ID, err)
		}
		profile = s.FallbackProfile(u)
		s.emitEvent(context.Background(), ActivityEventProfileFallback, u.Email, map[string]any{
			"user_id": u.ID,
		})
	}

	if !CanSignIn(profile.Role) {
		s.rejectInactive(u)
		return
	}

	s.mu.Lock()
	if s.state.User == nil || s.state.User.ID != u.ID {
		// user changed or signed out while the fetch was in flight
		s.mu.Unlock()
		return
	}
	s.state.Profile = profile
	s.state.Loading = false
	snap := s.state
	s.mu.Unlock()

	s.notifyWatchers(snap)
}

// rejectInactive runs on the event queue when a settled profile carries the
// inactive role. Local state clears immediately; the provider revocation is
// best effort and happens off-queue.
func (s *SessionStore) rejectInactive(u AuthUser) {
	s.mu.Lock()
	if s.state.User == nil || s.state.User.ID != u.ID {
		s.mu.Unlock()
		return
	}
	s.state.User = nil
	s.state.Session = nil
	s.state.Profile = nil
	s.state.Loading = false
	snap := s.state
	s.mu.Unlock()

	s.logger.Warn("refusing session for deactivated account %s", u.Email)
	s.emitEvent(context.Background(), ActivityEventSignInFailure, u.Email, map[string]any{
		"error": ErrAccountInactive.Message,
	})
	s.notifier.Notify(Notification{
		Title:       "Account deactivated",
		Description: ErrAccountInactive.Message,
		Variant:     NotificationDestructive,
	})

	s.notifyWatchers(snap)

	go func() {
		if err := s.identity.SignOut(context.Background(), SignOutGlobal); err != nil {
			s.logger.Debug("provider sign-out for inactive account failed: %v", err)
		}
	}()
}

// FallbackProfile synthesizes an in-memory profile from provider user fields
// when the lookup fails, applying the same bootstrap-admin default the
// provisioning trigger uses.
func (s *SessionStore) FallbackProfile(u AuthUser) *Profile {
	name := u.DisplayName()
	if name == "" {
		name = "User"
	}

	createdAt := u.CreatedAt

	return &Profile{
		ID:        profileID(u),
		Email:     u.Email,
		Name:      name,
		Role:      RoleForEmail(u.Email, s.cfg.GetBootstrapAdminEmail()),
		CreatedAt: &createdAt,
	}
}

func (s *SessionStore) notifyWatchers(snap Snapshot) {
	s.watchersMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchersMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *SessionStore) emitEvent(ctx context.Context, eventType ActivityEventType, subject string, metadata map[string]any) {
	event := ActivityEvent{
		EventType: eventType,
		Actor:     ActorRef{Type: "user"},
		Subject:   subject,
		Metadata:  metadata,
	}

	sink := normalizeActivitySink(s.sink)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

// profileID maps a provider user id onto the profile key space. Provider ids
// are UUIDs; for anything else we derive a stable id from the email so
// repeated fallbacks agree.
func profileID(u AuthUser) uuid.UUID {
	if id, err := uuid.Parse(u.ID); err == nil {
		return id
	}
	if id, err := hashid.NewUUID(u.Email); err == nil {
		return id
	}
	return uuid.New()
}
