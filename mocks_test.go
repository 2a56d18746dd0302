package portal_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	portal "github.com/waveport/go-portal"
)

// fakeIdentity is a controllable IdentityClient: tests drive session-change
// events through Emit and script the provider call results.
type fakeIdentity struct {
	mu        sync.Mutex
	callbacks []portal.SessionCallback

	session       *portal.Session
	getSessionErr error

	signInErr      error
	signUpErr      error
	signOutErr     error
	signOutCalls   []portal.SignOutScope
	signUpParams   []portal.SignUpParams
	signInAttempts []string
	releaseGet     chan struct{}
	getSessionRan  chan struct{}
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{}
}

func (f *fakeIdentity) OnSessionChange(cb portal.SessionCallback) portal.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, cb)
	return portal.SubscriptionFunc(func() {})
}

func (f *fakeIdentity) Emit(evt portal.AuthEvent) {
	f.mu.Lock()
	cbs := append([]portal.SessionCallback{}, f.callbacks...)
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(evt)
	}
}

func (f *fakeIdentity) GetSession(ctx context.Context) (*portal.Session, error) {
	if f.getSessionRan != nil {
		close(f.getSessionRan)
	}
	if f.releaseGet != nil {
		<-f.releaseGet
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.getSessionErr
}

func (f *fakeIdentity) SignInWithPassword(ctx context.Context, email, password string) error {
	f.mu.Lock()
	f.signInAttempts = append(f.signInAttempts, email)
	f.mu.Unlock()
	return f.signInErr
}

func (f *fakeIdentity) SignUp(ctx context.Context, params portal.SignUpParams) error {
	f.mu.Lock()
	f.signUpParams = append(f.signUpParams, params)
	f.mu.Unlock()
	return f.signUpErr
}

func (f *fakeIdentity) SignOut(ctx context.Context, scope portal.SignOutScope) error {
	f.mu.Lock()
	f.signOutCalls = append(f.signOutCalls, scope)
	f.mu.Unlock()
	return f.signOutErr
}

func (f *fakeIdentity) signOuts() []portal.SignOutScope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]portal.SignOutScope{}, f.signOutCalls...)
}

// MockProfileSource implements portal.ProfileSource
type MockProfileSource struct {
	mock.Mock
}

func (m *MockProfileSource) FetchProfileByID(ctx context.Context, id string) (*portal.Profile, error) {
	args := m.Called(ctx, id)
	if p, ok := args.Get(0).(*portal.Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockActivitySink implements portal.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event portal.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// fakeNavigator records navigations.
type fakeNavigator struct {
	mu       sync.Mutex
	location portal.Location
	history  []navigation
}

type navigation struct {
	Path string
	Opts portal.NavigateOptions
}

func newFakeNavigator(path string) *fakeNavigator {
	return &fakeNavigator{location: portal.Location{Path: path}}
}

func (f *fakeNavigator) Navigate(path string, opts portal.NavigateOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, navigation{Path: path, Opts: opts})
	f.location = portal.Location{Path: path, State: opts.State}
}

func (f *fakeNavigator) CurrentLocation() portal.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location
}

func (f *fakeNavigator) last() (navigation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return navigation{}, false
	}
	return f.history[len(f.history)-1], true
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu    sync.Mutex
	notes []portal.Notification
}

func (f *fakeNotifier) Notify(n portal.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
}

func (f *fakeNotifier) all() []portal.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]portal.Notification{}, f.notes...)
}

// capturingSink collects activity events without mock bookkeeping.
type capturingSink struct {
	mu     sync.Mutex
	events []portal.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, event portal.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturingSink) all() []portal.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]portal.ActivityEvent{}, c.events...)
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func testSession(id, email string, name string) *portal.Session {
	user := &portal.AuthUser{
		ID:        id,
		Email:     email,
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if name != "" {
		user.Metadata = map[string]any{"name": name}
	}
	expires := time.Now().Add(time.Hour)
	return &portal.Session{
		AccessToken:  "token-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    &expires,
		User:         user,
	}
}
