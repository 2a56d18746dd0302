package portal

// Requirements declare what a protected view needs. Both default to false.
type Requirements struct {
	RequireAuth  bool
	RequireAdmin bool
}

// GuardAction is the outcome of a guard evaluation.
type GuardAction int

const (
	// ActionRender means the subtree renders unchanged.
	ActionRender GuardAction = iota
	// ActionPlaceholder means the store has not resolved yet; render a
	// loading placeholder and perform no navigation.
	ActionPlaceholder
	// ActionRedirect means navigate to Decision.Target.
	ActionRedirect
)

func (a GuardAction) String() string {
	switch a {
	case ActionRender:
		return "render"
	case ActionPlaceholder:
		return "placeholder"
	case ActionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the result of evaluating the guard rules. Redirects always
// replace history so back-navigation cannot return to a gated route.
// PreserveFrom marks redirects that should carry the originally requested
// location for post-login return.
type Decision struct {
	Action       GuardAction
	Target       string
	Replace      bool
	PreserveFrom bool
}

// GuardRoutes names the routes the decision table references.
type GuardRoutes struct {
	SignIn          string
	Root            string
	AdminDashboard  string
	ArtistDashboard string
}

// RoutesFromConfig extracts the guard route table from a Config.
func RoutesFromConfig(cfg Config) GuardRoutes {
	return GuardRoutes{
		SignIn:          cfg.GetSignInRoute(),
		Root:            cfg.GetRootRoute(),
		AdminDashboard:  cfg.GetAdminDashboardRoute(),
		ArtistDashboard: cfg.GetArtistDashboardRoute(),
	}
}

// Evaluate runs the guard decision table. It is a pure function of the
// snapshot, the view's requirements, and the current route, so any number of
// guard instances over the same store agree.
//
// Rules fire in fixed priority order, first match wins:
//  1. requireAuth and no user: redirect to sign-in, preserving the
//     originally requested location.
//  2. requireAdmin and (no user or not admin): redirect to root.
//  3. signed in with profile, sitting on the sign-in route: redirect to the
//     role dashboard.
//  4. signed in with profile, sitting on the root route: same role redirect.
//  5. render children unchanged.
func Evaluate(snap Snapshot, req Requirements, route string, routes GuardRoutes) Decision {
	if snap.Loading || !snap.Initialized {
		return Decision{Action: ActionPlaceholder}
	}

	if req.RequireAuth && !snap.Authenticated() {
		return Decision{
			Action:       ActionRedirect,
			Target:       routes.SignIn,
			Replace:      true,
			PreserveFrom: true,
		}
	}

	if req.RequireAdmin && (!snap.Authenticated() || !snap.Admin()) {
		return Decision{
			Action:  ActionRedirect,
			Target:  routes.Root,
			Replace: true,
		}
	}

	if snap.Profiled() && (route == routes.SignIn || route == routes.Root) {
		return Decision{
			Action:  ActionRedirect,
			Target:  roleDashboard(snap, routes),
			Replace: true,
		}
	}

	return Decision{Action: ActionRender}
}

func roleDashboard(snap Snapshot, routes GuardRoutes) string {
	if snap.Admin() {
		return routes.AdminDashboard
	}
	return routes.ArtistDashboard
}

// Guard binds the pure decision table to a store and navigator so protected
// views can react to state changes.
type Guard struct {
	store  *SessionStore
	nav    Navigator
	routes GuardRoutes
	req    Requirements
	logger Logger
}

// GuardOption customizes guard construction.
type GuardOption func(*Guard)

// WithGuardLogger overrides the guard's logger.
func WithGuardLogger(logger Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard returns a guard for one protected view. Many guards may share a
// store; each subscribes independently and reaches the same decision for the
// same state.
func NewGuard(store *SessionStore, nav Navigator, req Requirements, opts ...GuardOption) *Guard {
	g := &Guard{
		store:  store,
		nav:    normalizeNavigator(nav),
		routes: RoutesFromConfig(store.cfg),
		req:    req,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Evaluate computes the decision for the current store state and route.
func (g *Guard) Evaluate() Decision {
	return Evaluate(g.store.Snapshot(), g.req, g.nav.CurrentLocation().Path, g.routes)
}

// Apply performs a decision's navigation side-effect, if any, and reports
// whether the guarded subtree should render.
func (g *Guard) Apply(d Decision) bool {
	if d.Action != ActionRedirect {
		return d.Action == ActionRender
	}

	opts := NavigateOptions{Replace: d.Replace}
	if d.PreserveFrom {
		opts.State = map[string]any{"from": g.nav.CurrentLocation().Path}
	}

	g.logger.Debug("guard redirect: %s", d.Target)
	g.nav.Navigate(d.Target, opts)
	return false
}

// Watch evaluates on every store change, applying at most one redirect per
// evaluation. The returned function unsubscribes.
func (g *Guard) Watch() func() {
	return g.store.Subscribe(func(snap Snapshot) {
		d := Evaluate(snap, g.req, g.nav.CurrentLocation().Path, g.routes)
		g.Apply(d)
	})
}
