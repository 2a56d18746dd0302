package guardware

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-router"
)

// State mirrors the session snapshot surface from the root package.
// This avoids import cycles, the same way the claims interfaces do for JWT
// middleware.
type State interface {
	Ready() bool
	Authenticated() bool
	Admin() bool
	Profiled() bool
}

// StateProvider resolves the session state for a request.
type StateProvider func(ctx router.Context) State

type Config struct {
	Filter func(router.Context) bool
	// State is required; it resolves the session snapshot per request.
	State          StateProvider
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	// PlaceholderHandler runs while the session store has not settled yet.
	PlaceholderHandler router.HandlerFunc
	// ContextEnricher propagates the session state to the standard context
	// so downstream code can read it without the router context.
	ContextEnricher func(ctx context.Context, state State) context.Context

	RequireAuth  bool
	RequireAdmin bool

	SignInRoute     string
	RootRoute       string
	AdminRoute      string
	ArtistRoute     string
	RedirectKey     string
	ContextStateKey string
}

// New builds middleware that applies the access rules in fixed priority
// order, first match wins:
//  1. auth required and no user: redirect to sign-in, remembering the
//     rejected URL in a cookie.
//  2. admin required and the user is not one: redirect to root.
//  3. a settled, profiled user sitting on the sign-in or root route: redirect
//     to their role dashboard.
//  4. otherwise the request proceeds.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			state := cfg.State(ctx)
			if state == nil || !state.Ready() {
				return cfg.PlaceholderHandler(ctx)
			}

			if cfg.RequireAuth && !state.Authenticated() {
				SetRedirect(ctx, cfg.RedirectKey)
				return ctx.Redirect(cfg.SignInRoute, http.StatusSeeOther)
			}

			if cfg.RequireAdmin && (!state.Authenticated() || !state.Admin()) {
				return ctx.Redirect(cfg.RootRoute, http.StatusSeeOther)
			}

			if state.Profiled() {
				path := ctx.Path()
				if path == cfg.SignInRoute || path == cfg.RootRoute {
					return ctx.Redirect(dashboardRoute(state, cfg), http.StatusSeeOther)
				}
			}

			ctx.Locals(cfg.ContextStateKey, state)

			if cfg.ContextEnricher != nil {
				ctx.SetContext(cfg.ContextEnricher(ctx.Context(), state))
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.State == nil {
		panic("PORTAL: guard middleware configuration: State is required.")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			return c.Status(router.StatusInternalServerError).SendString(err.Error())
		}
	}

	if cfg.PlaceholderHandler == nil {
		cfg.PlaceholderHandler = func(c router.Context) error {
			c.SetHeader("Retry-After", "1")
			return c.Status(http.StatusServiceUnavailable).SendString("Loading...")
		}
	}

	if cfg.SignInRoute == "" {
		cfg.SignInRoute = "/login"
	}

	if cfg.RootRoute == "" {
		cfg.RootRoute = "/"
	}

	if cfg.AdminRoute == "" {
		cfg.AdminRoute = "/admin"
	}

	if cfg.ArtistRoute == "" {
		cfg.ArtistRoute = "/dashboard"
	}

	if cfg.RedirectKey == "" {
		cfg.RedirectKey = "rejected_route"
	}

	if cfg.ContextStateKey == "" {
		cfg.ContextStateKey = "session_state"
	}

	return cfg
}

func dashboardRoute(state State, cfg Config) string {
	if state.Admin() {
		return cfg.AdminRoute
	}
	return cfg.ArtistRoute
}

// SetRedirect remembers the rejected URL so the sign-in flow can send the
// user back where they were headed.
func SetRedirect(ctx router.Context, key string) {
	ctx.Cookie(&router.Cookie{
		Name:     key,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
	})
}

// GetRedirect pops the remembered URL, falling back to def.
func GetRedirect(ctx router.Context, key, def string) string {
	r := ctx.Cookies(key)
	if r == "" {
		return def
	}

	ctx.Cookie(&router.Cookie{
		Name:     key,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
	})

	return r
}
