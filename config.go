package portal

// DefaultStorageKeyPatterns match the identity provider's persisted session
// artifacts by prefix or substring. The provider's key naming is versioned,
// so cleanup must never assume a fixed key set.
var DefaultStorageKeyPatterns = []string{"sb-", "auth.token"}

// BootstrapAdminEmail is the one address auto-assigned the admin role at
// provisioning time. Kept as a package default so the profile fallback and
// the SQL trigger agree; override it through Config in real deployments.
var BootstrapAdminEmail = "admin@waveport.fm"

// SimpleConfig is a plain struct Config implementation with sane defaults.
type SimpleConfig struct {
	BootstrapAdminEmail     string
	StorageKeyPatterns      []string
	VerificationRedirectURL string
	SignInRoute             string
	RootRoute               string
	AdminDashboardRoute     string
	ArtistDashboardRoute    string
	RejectedRouteKey        string
	RejectedRouteDefault    string
}

// NewDefaultConfig returns a SimpleConfig populated with the portal defaults.
func NewDefaultConfig() *SimpleConfig {
	return &SimpleConfig{
		BootstrapAdminEmail:     BootstrapAdminEmail,
		StorageKeyPatterns:      DefaultStorageKeyPatterns,
		VerificationRedirectURL: "/auth/confirm",
		SignInRoute:             "/login",
		RootRoute:               "/",
		AdminDashboardRoute:     "/admin",
		ArtistDashboardRoute:    "/dashboard",
		RejectedRouteKey:        "rejected_route",
		RejectedRouteDefault:    "/",
	}
}

func (c *SimpleConfig) GetBootstrapAdminEmail() string {
	if c.BootstrapAdminEmail == "" {
		return BootstrapAdminEmail
	}
	return c.BootstrapAdminEmail
}

func (c *SimpleConfig) GetStorageKeyPatterns() []string {
	if len(c.StorageKeyPatterns) == 0 {
		return DefaultStorageKeyPatterns
	}
	return c.StorageKeyPatterns
}

func (c *SimpleConfig) GetVerificationRedirectURL() string { return c.VerificationRedirectURL }

func (c *SimpleConfig) GetSignInRoute() string {
	if c.SignInRoute == "" {
		return "/login"
	}
	return c.SignInRoute
}

func (c *SimpleConfig) GetRootRoute() string {
	if c.RootRoute == "" {
		return "/"
	}
	return c.RootRoute
}

func (c *SimpleConfig) GetAdminDashboardRoute() string {
	if c.AdminDashboardRoute == "" {
		return "/admin"
	}
	return c.AdminDashboardRoute
}

func (c *SimpleConfig) GetArtistDashboardRoute() string {
	if c.ArtistDashboardRoute == "" {
		return "/dashboard"
	}
	return c.ArtistDashboardRoute
}

func (c *SimpleConfig) GetRejectedRouteKey() string {
	if c.RejectedRouteKey == "" {
		return "rejected_route"
	}
	return c.RejectedRouteKey
}

func (c *SimpleConfig) GetRejectedRouteDefault() string {
	if c.RejectedRouteDefault == "" {
		return "/"
	}
	return c.RejectedRouteDefault
}
