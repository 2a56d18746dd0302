package portal

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	"github.com/waveport/go-portal/middleware/guardware"
)

// RoutePortal bridges the session store to HTTP routes: it exposes guard
// middleware, login/logout helpers, and the redirect cookie dance.
type RoutePortal struct {
	store            *SessionStore
	cfg              Config
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

func NewRoutePortal(store *SessionStore, cfg Config) (*RoutePortal, error) {
	if store == nil {
		return nil, errors.New("route portal requires a session store", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	a := &RoutePortal{
		store:  store,
		cfg:    cfg,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

// Protected wraps routes with the access guard middleware. Requirements are
// checked in fixed priority order, auth before admin.
func (a *RoutePortal) Protected(req Requirements) router.MiddlewareFunc {
	return guardware.New(guardware.Config{
		State: func(router.Context) guardware.State {
			return a.store.Snapshot()
		},
		ContextEnricher: SessionContextEnricher,
		RequireAuth:     req.RequireAuth,
		RequireAdmin:    req.RequireAdmin,
		SignInRoute:     a.cfg.GetSignInRoute(),
		RootRoute:       a.cfg.GetRootRoute(),
		AdminRoute:      a.cfg.GetAdminDashboardRoute(),
		ArtistRoute:     a.cfg.GetArtistDashboardRoute(),
		RedirectKey:     a.cfg.GetRejectedRouteKey(),
	})
}

// SessionContextEnricher copies the snapshot's profile and provider session
// into the standard context so downstream handlers resolve the acting user
// without reaching back into the store.
func SessionContextEnricher(c context.Context, state guardware.State) context.Context {
	snap, ok := state.(Snapshot)
	if !ok {
		return c
	}
	return WithSessionContext(WithProfileContext(c, snap.Profile), snap.Session)
}

// LoginPayload is the credential surface consumed by Login.
type LoginPayload interface {
	GetIdentifier() string
	GetPassword() string
}

func (a *RoutePortal) Login(ctx router.Context, payload LoginPayload) error {
	if err := a.store.SignIn(ctx.Context(), payload.GetIdentifier(), payload.GetPassword()); err != nil {
		a.Logger.Error("Login error: %s", err)
		return err
	}
	return nil
}

func (a *RoutePortal) Logout(ctx router.Context) {
	a.store.SignOut(ctx.Context())
}

func (a *RoutePortal) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		return def[0]
	}
	a.cookieDel(ctx, rejectedRoute)
	return r
}

func (a *RoutePortal) GetRedirectOrDefault(ctx router.Context) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	refererHeader := string(ctx.Referer())

	r := ctx.Cookies(rejectedRoute, refererHeader)
	if r == "" {
		r = a.cfg.GetRejectedRouteDefault()
	}
	a.cookieDel(ctx, rejectedRoute)
	return r
}

func (a *RoutePortal) SetRedirect(ctx router.Context) {
	rejectedRoute := a.cfg.GetRejectedRouteKey()

	a.Logger.Info("Setting redirect cookie", "key", rejectedRoute, "path", ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RoutePortal) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RoutePortal) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(a.cfg.GetSignInRoute(), statusCode)
}

func (a *RoutePortal) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}
