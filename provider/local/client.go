package local

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"

	"github.com/waveport/go-portal"
	"github.com/waveport/go-portal/storage"
)

// MaxLoginAttempts is the maximun number of attempts an account gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = 24 * time.Hour

// DefaultSessionTTL is how long a minted session stays valid.
var DefaultSessionTTL = time.Hour

// Mailer delivers account emails. Implementations report delivery failures
// through the returned error.
type Mailer interface {
	SendConfirmation(ctx context.Context, email, redirectTo string) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, email, redirectTo string) error

func (f MailerFunc) SendConfirmation(ctx context.Context, email, redirectTo string) error {
	if f == nil {
		return nil
	}
	return f(ctx, email, redirectTo)
}

type account struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Confirmed    bool
	CreatedAt    time.Time

	loginAttempts  int
	loginAttemptAt *time.Time
}

// Client is an in-process identity provider. Session change callbacks run one
// at a time on the client's own emit lock; subscribers must never call back
// into the client from inside a callback.
type Client struct {
	mu       sync.Mutex
	accounts map[string]*account
	current  *portal.Session
	revoked  map[string]struct{}

	emitMu      sync.Mutex
	callbacks   map[int]portal.SessionCallback
	callbackSeq int

	signingKey          []byte
	projectRef          string
	sessionTTL          time.Duration
	requireConfirmation bool
	store               storage.Store
	mailer              Mailer
	logger              portal.Logger
	now                 func() time.Time
}

var _ portal.IdentityClient = (*Client)(nil)

// Option customizes client construction.
type Option func(*Client)

// WithSigningKey sets the HS256 key used to mint access tokens.
func WithSigningKey(key []byte) Option {
	return func(c *Client) {
		if len(key) > 0 {
			c.signingKey = key
		}
	}
}

// WithProjectRef sets the project identifier baked into the storage key.
func WithProjectRef(ref string) Option {
	return func(c *Client) {
		if ref != "" {
			c.projectRef = ref
		}
	}
}

// WithMailer sets the confirmation email transport.
func WithMailer(m Mailer) Option {
	return func(c *Client) {
		c.mailer = m
	}
}

// WithStorage sets the durable store where the active token is persisted.
func WithStorage(s storage.Store) Option {
	return func(c *Client) {
		c.store = s
	}
}

// WithLogger overrides the client logger.
func WithLogger(l portal.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithSessionTTL overrides the minted session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.sessionTTL = ttl
		}
	}
}

// WithRequireConfirmation makes sign-in refuse accounts that have not
// confirmed their email.
func WithRequireConfirmation(require bool) Option {
	return func(c *Client) {
		c.requireConfirmation = require
	}
}

// NewClient creates a local identity provider.
func NewClient(opts ...Option) *Client {
	c := &Client{
		accounts:   map[string]*account{},
		revoked:    map[string]struct{}{},
		callbacks:  map[int]portal.SessionCallback{},
		signingKey: []byte(uuid.NewString()),
		projectRef: "local",
		sessionTTL: DefaultSessionTTL,
		store:      storage.NewMemoryStore(),
		logger:     defLogger(),
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// OnSessionChange registers a callback for future session changes.
func (c *Client) OnSessionChange(cb portal.SessionCallback) portal.Subscription {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.callbackSeq++
	id := c.callbackSeq
	c.callbacks[id] = cb

	return portal.SubscriptionFunc(func() {
		c.emitMu.Lock()
		defer c.emitMu.Unlock()
		delete(c.callbacks, id)
	})
}

// GetSession returns the active session, restoring it from durable storage
// when the process restarted with a persisted token.
func (c *Client) GetSession(ctx context.Context) (*portal.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		if c.sessionExpired(c.current) {
			c.current = nil
			c.store.Remove(c.tokenKey())
			return nil, nil
		}
		return c.current, nil
	}

	raw, ok := c.store.Get(c.tokenKey())
	if !ok || raw == "" {
		return nil, nil
	}

	session, err := c.parseStoredSession(raw)
	if err != nil {
		c.logger.Debug("discarding stored session: %v", err)
		c.store.Remove(c.tokenKey())
		return nil, nil
	}

	c.current = session
	return session, nil
}

// SignInWithPassword verifies credentials and establishes a session. The
// SIGNED_IN event is emitted before this returns.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) error {
	c.mu.Lock()

	acct, ok := c.accounts[normalizeEmail(email)]
	if !ok {
		c.mu.Unlock()
		return portal.ErrInvalidCredentials
	}

	if acct.loginAttemptAt != nil && c.now().Sub(*acct.loginAttemptAt) > CoolDownPeriod {
		acct.loginAttempts = 0
	}

	if acct.loginAttempts > MaxLoginAttempts {
		c.mu.Unlock()
		return portal.ErrTooManyLoginAttempts
	}

	if err := portal.ComparePasswordAndHash(password, acct.PasswordHash); err != nil {
		acct.loginAttempts++
		now := c.now()
		acct.loginAttemptAt = &now
		c.mu.Unlock()
		return portal.ErrInvalidCredentials
	}

	if c.requireConfirmation && !acct.Confirmed {
		c.mu.Unlock()
		return errors.New("email not confirmed", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized)
	}

	acct.loginAttempts = 0
	acct.loginAttemptAt = nil

	session, err := c.mintSession(acct)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.current = session
	c.persistSession(session)
	c.mu.Unlock()

	c.emit(portal.AuthEvent{Kind: portal.AuthEventSignedIn, Session: session})
	return nil
}

// SignUp registers a new account and sends the confirmation email. A mailer
// failure still leaves the account created; the caller decides whether that
// is fatal.
func (c *Client) SignUp(ctx context.Context, params portal.SignUpParams) error {
	if params.Email == "" || params.Password == "" {
		return errors.New("email and password are required", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	hash, err := portal.HashPassword(params.Password)
	if err != nil {
		return err
	}

	key := normalizeEmail(params.Email)

	c.mu.Lock()
	if _, exists := c.accounts[key]; exists {
		c.mu.Unlock()
		return portal.ErrEmailTaken
	}

	acct := &account{
		ID:           accountID(key),
		Email:        key,
		PasswordHash: hash,
		CreatedAt:    c.now(),
	}

	if name, ok := params.Data["name"].(string); ok {
		acct.Name = name
	}

	c.accounts[key] = acct
	c.mu.Unlock()

	if c.mailer != nil {
		if err := c.mailer.SendConfirmation(ctx, key, params.RedirectTo); err != nil {
			return errors.Wrap(err, errors.CategoryOperation, "error sending confirmation email")
		}
	}

	return nil
}

// SignOut drops the active session. Global scope also revokes every token
// minted for the account so other devices fail validation.
func (c *Client) SignOut(ctx context.Context, scope portal.SignOutScope) error {
	c.mu.Lock()

	session := c.current
	c.current = nil
	c.store.Remove(c.tokenKey())

	if scope == portal.SignOutGlobal && session != nil {
		if jti := tokenID(session.AccessToken, c.signingKey); jti != "" {
			c.revoked[jti] = struct{}{}
		}
	}

	c.mu.Unlock()

	if session != nil {
		c.emit(portal.AuthEvent{Kind: portal.AuthEventSignedOut, Session: nil})
	}

	return nil
}

// Confirm marks an account's email as verified.
func (c *Client) Confirm(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if acct, ok := c.accounts[normalizeEmail(email)]; ok {
		acct.Confirmed = true
	}
}

// RegisterAccount seeds an account directly, skipping the confirmation flow.
func (c *Client) RegisterAccount(email, password, name string) error {
	hash, err := portal.HashPassword(password)
	if err != nil {
		return err
	}

	key := normalizeEmail(email)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.accounts[key]; exists {
		return portal.ErrEmailTaken
	}

	c.accounts[key] = &account{
		ID:           accountID(key),
		Email:        key,
		Name:         name,
		PasswordHash: hash,
		Confirmed:    true,
		CreatedAt:    c.now(),
	}

	return nil
}

func (c *Client) mintSession(acct *account) (*portal.Session, error) {
	now := c.now()
	expiresAt := now.Add(c.sessionTTL)

	claims := jwt.MapClaims{
		"sub":   acct.ID.String(),
		"email": acct.Email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
		"jti":   uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to sign access token")
	}

	metadata := map[string]any{}
	if acct.Name != "" {
		metadata["name"] = acct.Name
	}

	return &portal.Session{
		AccessToken:  signed,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    &expiresAt,
		User: &portal.AuthUser{
			ID:        acct.ID.String(),
			Email:     acct.Email,
			Metadata:  metadata,
			CreatedAt: acct.CreatedAt,
		},
	}, nil
}

func (c *Client) persistSession(session *portal.Session) {
	payload, err := json.Marshal(session)
	if err != nil {
		c.logger.Warn("failed to persist session: %v", err)
		return
	}
	c.store.Set(c.tokenKey(), string(payload))
}

func (c *Client) parseStoredSession(raw string) (*portal.Session, error) {
	session := &portal.Session{}
	if err := json.Unmarshal([]byte(raw), session); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "malformed stored session")
	}

	if c.sessionExpired(session) {
		return nil, portal.ErrSessionRevoked
	}

	jti := tokenID(session.AccessToken, c.signingKey)
	if jti == "" {
		return nil, portal.ErrSessionRevoked
	}

	if _, revoked := c.revoked[jti]; revoked {
		return nil, portal.ErrSessionRevoked
	}

	return session, nil
}

func (c *Client) sessionExpired(session *portal.Session) bool {
	return session == nil ||
		session.ExpiresAt == nil ||
		!session.ExpiresAt.After(c.now())
}

func (c *Client) tokenKey() string {
	return "sb-" + c.projectRef + "-auth-token"
}

func (c *Client) emit(event portal.AuthEvent) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	for _, cb := range c.callbacks {
		if cb != nil {
			cb(event)
		}
	}
}

func tokenID(raw string, key []byte) string {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method", errors.CategoryAuth)
		}
		return key, nil
	})
	if err != nil || !token.Valid {
		return ""
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}

	jti, _ := claims["jti"].(string)
	return jti
}

func accountID(email string) uuid.UUID {
	if id, err := hashid.NewUUID(email); err == nil {
		return id
	}
	return uuid.New()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
