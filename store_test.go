package portal_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	portal "github.com/waveport/go-portal"
	"github.com/waveport/go-portal/storage"
)

func TestStoreInitializesWithNoSession(t *testing.T) {
	identity := newFakeIdentity()
	store := portal.NewSessionStore(identity, nil, nil)
	defer store.Stop()

	store.Start(context.Background())

	require.True(t, waitFor(time.Second, store.Initialized))

	snap := store.Snapshot()
	assert.Nil(t, snap.User)
	assert.Nil(t, snap.Profile)
	assert.False(t, snap.Loading)
	assert.False(t, snap.Authenticated())
	assert.True(t, snap.Ready())
}

func TestStoreEventDuringBootstrapWins(t *testing.T) {
	identity := newFakeIdentity()
	identity.releaseGet = make(chan struct{})
	identity.getSessionRan = make(chan struct{})

	profiles := &MockProfileSource{}
	profiles.On("FetchProfileByID", mock.Anything, "user-1").
		Return(&portal.Profile{ID: uuid.New(), Email: "ana@example.com", Role: portal.RoleArtist}, nil)

	store := portal.NewSessionStore(identity, profiles, nil)
	defer store.Stop()

	store.Start(context.Background())
	<-identity.getSessionRan

	// a sign-in lands while the bootstrap query is still in flight; the
	// subscription was registered first so the event must not be lost
	identity.Emit(portal.AuthEvent{Kind: portal.AuthEventSignedIn, Session: testSession("user-1", "ana@example.com", "Ana")})

	require.True(t, waitFor(time.Second, func() bool {
		return store.Initialized() && store.User() != nil
	}))

	close(identity.releaseGet)

	require.True(t, waitFor(time.Second, func() bool {
		return store.Snapshot().Profiled()
	}))

	// the stale nil-session bootstrap result must not clobber the sign-in
	snap := store.Snapshot()
	require.NotNil(t, snap.User)
	assert.Equal(t, "user-1", snap.User.ID)
	assert.Equal(t, "ana@example.com", snap.Profile.Email)
}

func TestStoreResolvesProfileAfterSignIn(t *testing.T) {
	identity := newFakeIdentity()
	profileID := uuid.New()

	profiles := &MockProfileSource{}
	profiles.On("FetchProfileByID", mock.Anything, "user-7").
		Return(&portal.Profile{ID: profileID, Email: "kim@example.com", Role: portal.RoleAdmin}, nil).Once()

	store := portal.NewSessionStore(identity, profiles, nil)
	defer store.Stop()
	store.Start(context.Background())

	require.True(t, waitFor(time.Second, store.Initialized))

	identity.Emit(portal.AuthEvent{Kind: portal.AuthEventSignedIn, Session: testSession("user-7", "kim@example.com", "Kim")})

	require.True(t, waitFor(time.Second, func() bool {
		snap := store.Snapshot()
		return snap.Profiled() && snap.Ready()
	}))

	snap := store.Snapshot()
	assert.Equal(t, profileID, snap.Profile.ID)
	assert.True(t, snap.Admin())
	profiles.AssertExpectations(t)
}

func TestStoreSynthesizesFallbackProfileOnLookupFailure(t *testing.T) {
	identity := newFakeIdentity()

	profiles := &MockProfileSource{}
	profiles.On("FetchProfileByID", mock.Anything, mock.Anything).
		Return(nil, portal.ErrProfileNotFound)

	sink := &capturingSink{}
	store := portal.NewSessionStore(identity, profiles, nil, portal.WithStoreActivitySink(sink))
	defer store.Stop()
	store.Start(context.Background())

	require.True(t, waitFor(time.Second, store.Initialized))

	identity.Emit(portal.AuthEvent{Kind: portal.AuthEventSignedIn, Session: testSession(uuid.NewString(), "solo@example.com", "Solo Artist")})

	require.True(t, waitFor(time.Second, func() bool {
		return store.Snapshot().Profiled()
	}))

	snap := store.Snapshot()
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "solo@example.com", snap.Profile.Email)
	assert.Equal(t, "Solo Artist", snap.Profile.Name)
	assert.Equal(t, portal.RoleArtist, snap.Profile.Role)
	assert.False(t, snap.Admin())

	fallbackSeen := false
	for _, evt := range sink.all() {
		if evt.EventType == portal.ActivityEventProfileFallback {
			fallbackSeen = true
		}
	}
	assert.True(t, fallbackSeen)
}

func TestStoreFallbackGrantsBootstrapAdmin(t *testing.T) {
	identity := newFakeIdentity()

	profiles := &MockProfileSource{}
	profiles.On("FetchProfileByID", mock.Anything, mock.Anything).
		Return(nil, portal.ErrProfileNotFound)

	cfg := portal.NewDefaultConfig()
	cfg.BootstrapAdminEmail = "owner@label.fm"

	store := portal.NewSessionStore(identity, profiles, cfg)
	defer store.Stop()
	store.Start(context.Background())

	require.True(t, waitFor(time.Second, store.Initialized))

	identity.Emit(portal.AuthEvent{Kind: portal.AuthEventSignedIn, Session: testSession(uuid.NewString(), "owner@label.fm", "")})

	require.True(t, waitFor(time.Second, func() bool {
		return store.Snapshot().Profiled()
	}))

	snap := store.Snapshot()
	assert.Equal(t, portal.RoleAdmin, snap.Profile.Role)
	assert.Equal(t, "User", snap.Profile.Name)
	assert.True(t, snap.Admin())
}

func TestStoreStaleProfileResultIsDropped(t *testing.T) {
	identity := newFakeIdentity()

	first := uuid.NewString()
	second := uuid.NewString()

	profiles := &MockProfileSource{}
	profiles.On("FetchProfileByID", mock.Anything, first).
		Return(&portal.Profile{ID: uuid.MustParse(first), Email: "first@example.com", Role: portal.RoleArtist}, nil).Maybe()
	profiles.On("FetchProfileByID", mock.Anything, second).
		Return(&portal.Profile{ID: uuid.MustParse(second), Email: "second@example.com", Role: portal.RoleArtist}, nil)

	store := portal.NewSessionStore(identity, profiles, nil)
	defer store.Stop()
	store.Start(context.Background())

	require.True(t, waitFor(time.Second, store.Initialized))

	identity.Emit(portal.AuthEvent{Kind: portal.AuthEventSignedIn, Session: testSession(first, "first@example.com", "")})
	identity.Emit(portal.AuthEvent{Kind: portal.AuthEventSignedIn, Session: testSession(second, "second@example.com", "")})

	require.True(t, waitFor(time.Second, func() bool {
		snap := store.Snapshot()
		return snap.Profiled() && snap.Ready()
	}))

	// whichever order the fetches land, the settled profile must belong to
	// the latest user
	snap := store.Snapshot()
	assert.Equal(t, second, snap.User.ID)
	assert.Equal(t, "second@example.com", snap.Profile.Email)
}

func TestStoreSignOutClearsStateSynchronously(t *testing.T) {
	identity := newFakeIdentity()

	profiles := &MockProfileSource{}
	profiles.On("FetchProfileByID", mock.Anything, mock.Anything).
		Return(&portal.Profile{ID: uuid.New(), Email: "ana@example.com", Role: portal.RoleArtist}, nil)

	nav := newFakeNavigator("/dashboard")
	durable := storage.NewMemoryStore()
	durable.Set("sb-xyz-auth-token", "{}")
	durable.Set("unrelated-key", "keep")

	store := portal.NewSessionStore(identity, profiles, nil,
		portal.WithStoreNavigator(nav),
		portal.WithDurableStorage(durable),
	)
	defer store.Stop()
	store.Start(context.Background())

	require.True(t, waitFor(time.Second, store.Initialized))
	identity.Emit(portal.AuthEvent{Kind: portal.AuthEventSignedIn, Session: testSession("user-9", "ana@example.com", "Ana")})
	require.True(t, waitFor(time.Second, func() bool { return store.Snapshot().Profiled() }))

	store.SignOut(context.Background())

	// no waiting: local state must clear before SignOut returns
	snap := store.Snapshot()
	assert.Nil(t, snap.User)
	assert.Nil(t, snap.Session)
	assert.Nil(t, snap.Profile)
	assert.False(t, snap.Loading)
	assert.True(t, snap.Initialized, "initialized is monotonic and survives sign-out")

	_, tokenLeft := durable.Get("sb-xyz-auth-token")
	assert.False(t, tokenLeft)
	_, unrelatedLeft := durable.Get("unrelated-key")
	assert.True(t, unrelatedLeft)

	last, ok := nav.last()
	require.True(t, ok)
	assert.Equal(t, "/", last.Path)
}

func TestStoreSignOutIsIdempotent(t *testing.T) {
	identity := newFakeIdentity()
	store := portal.NewSessionStore(identity, nil, nil)
	defer store.Stop()
	store.Start(context.Background())

	require.True(t, waitFor(time.Second, store.Initialized))

	store.SignOut(context.Background())
	store.SignOut(context.Background())

	snap := store.Snapshot()
	assert.Nil(t, snap.User)
	assert.True(t, snap.Initialized)

	// every sign-out still attempts the best-effort global revocation
	assert.Len(t, identity.signOutCalls, 2)
}

func TestStoreSignInFailureReturnsProviderError(t *testing.T) {
	identity := newFakeIdentity()
	identity.signInErr = portal.ErrInvalidCredentials

	notifier := &fakeNotifier{}
	store := portal.NewSessionStore(identity, nil, nil, portal.WithStoreNotifier(notifier))
	defer store.Stop()
	store.Start(context.Background())

	err := store.SignIn(context.Background(), "ana@example.com", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, portal.ErrInvalidCredentials)

	notes := notifier.all()
	require.NotEmpty(t, notes)
	assert.Equal(t, portal.NotificationDestructive, notes[len(notes)-1].Variant)

	// the provider saw exactly the submitted identifier
	require.Len(t, identity.signInAttempts, 1)
	assert.Equal(t, "ana@example.com", identity.signInAttempts[0])

	// failed sign-in must not mutate local state
	assert.Nil(t, store.User())
}

func TestStoreRefusesInactiveProfile(t *testing.T) {
	identity := newFakeIdentity()

	profiles := &MockProfileSource{}
	profiles.On("FetchProfileByID", mock.Anything, mock.Anything).
		Return(&portal.Profile{ID: uuid.New(), Email: "gone@example.com", Role: portal.RoleInactive}, nil)

	notifier := &fakeNotifier{}
	sink := &capturingSink{}
	store := portal.NewSessionStore(identity, profiles, nil,
		portal.WithStoreNotifier(notifier),
		portal.WithStoreActivitySink(sink),
	)
	defer store.Stop()
	store.Start(context.Background())

	require.True(t, waitFor(time.Second, store.Initialized))

	identity.Emit(portal.AuthEvent{Kind: portal.AuthEventSignedIn, Session: testSession("user-5", "gone@example.com", "Gone")})

	// the session is revoked instead of settling with an inactive profile
	require.True(t, waitFor(time.Second, func() bool {
		return len(identity.signOuts()) > 0
	}))

	snap := store.Snapshot()
	assert.Nil(t, snap.User)
	assert.Nil(t, snap.Session)
	assert.Nil(t, snap.Profile)
	assert.False(t, snap.Loading)
	assert.True(t, snap.Initialized)

	notes := notifier.all()
	require.NotEmpty(t, notes)
	assert.Equal(t, portal.NotificationDestructive, notes[len(notes)-1].Variant)

	var refused bool
	for _, evt := range sink.all() {
		if evt.EventType == portal.ActivityEventSignInFailure {
			refused = true
		}
	}
	assert.True(t, refused, "the refusal is recorded as a sign-in failure")
}

func TestStoreSignUpSoftSuccessOnUndeliveredEmail(t *testing.T) {
	identity := newFakeIdentity()
	identity.signUpErr = portal.ErrConfirmationEmailUndelivered

	notifier := &fakeNotifier{}
	store := portal.NewSessionStore(identity, nil, nil, portal.WithStoreNotifier(notifier))
	defer store.Stop()
	store.Start(context.Background())

	result, err := store.SignUp(context.Background(), "new@example.com", "secret-pass", "New Artist")
	require.NoError(t, err, "undeliverable confirmation email is a soft failure")
	assert.False(t, result.ConfirmationEmailSent)
	require.NotNil(t, result.Warning)

	notes := notifier.all()
	require.NotEmpty(t, notes)
	assert.Equal(t, portal.NotificationWarning, notes[len(notes)-1].Variant)
}

func TestStoreSignUpPassesMetadataAndRedirect(t *testing.T) {
	identity := newFakeIdentity()

	cfg := portal.NewDefaultConfig()
	cfg.VerificationRedirectURL = "https://waveport.fm/auth/confirm"

	store := portal.NewSessionStore(identity, nil, cfg)
	defer store.Stop()
	store.Start(context.Background())

	result, err := store.SignUp(context.Background(), "new@example.com", "secret-pass", "New Artist")
	require.NoError(t, err)
	assert.True(t, result.ConfirmationEmailSent)

	require.Len(t, identity.signUpParams, 1)
	params := identity.signUpParams[0]
	assert.Equal(t, "new@example.com", params.Email)
	assert.Equal(t, "https://waveport.fm/auth/confirm", params.RedirectTo)
	assert.Equal(t, "New Artist", params.Data["name"])
}

func TestStoreSignUpHardFailure(t *testing.T) {
	identity := newFakeIdentity()
	identity.signUpErr = portal.ErrEmailTaken

	store := portal.NewSessionStore(identity, nil, nil)
	defer store.Stop()
	store.Start(context.Background())

	_, err := store.SignUp(context.Background(), "dup@example.com", "secret-pass", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, portal.ErrEmailTaken)
}

func TestStoreSubscribersSeeEveryChange(t *testing.T) {
	identity := newFakeIdentity()

	profiles := &MockProfileSource{}
	profiles.On("FetchProfileByID", mock.Anything, mock.Anything).
		Return(&portal.Profile{ID: uuid.New(), Email: "ana@example.com", Role: portal.RoleArtist}, nil)

	store := portal.NewSessionStore(identity, profiles, nil)
	defer store.Stop()

	snaps := make(chan portal.Snapshot, 16)
	unsubscribe := store.Subscribe(func(snap portal.Snapshot) {
		snaps <- snap
	})
	defer unsubscribe()

	store.Start(context.Background())
	require.True(t, waitFor(time.Second, store.Initialized))

	identity.Emit(portal.AuthEvent{Kind: portal.AuthEventSignedIn, Session: testSession("user-3", "ana@example.com", "Ana")})

	require.True(t, waitFor(time.Second, func() bool { return store.Snapshot().Profiled() }))

	var sawLoading, sawSettled bool
	for {
		select {
		case snap := <-snaps:
			if snap.Authenticated() && snap.Loading {
				sawLoading = true
			}
			if snap.Profiled() && snap.Ready() {
				sawSettled = true
			}
		default:
			assert.True(t, sawLoading, "watchers observe the loading state between user and profile")
			assert.True(t, sawSettled, "watchers observe the settled state")
			return
		}
	}
}
