package portal

import "fmt"

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds portal options
type Config interface {
	GetBootstrapAdminEmail() string
	GetStorageKeyPatterns() []string
	GetVerificationRedirectURL() string
	GetSignInRoute() string
	GetRootRoute() string
	GetAdminDashboardRoute() string
	GetArtistDashboardRoute() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

// Location describes where the navigator currently points.
type Location struct {
	Path  string
	State map[string]any
}

// NavigateOptions control how a navigation is performed. Replace swaps the
// current history entry instead of pushing a new one, so back-navigation
// cannot return to a gated route.
type NavigateOptions struct {
	Replace bool
	State   map[string]any
}

// Navigator abstracts route changes so the store and guard never talk to a
// concrete routing layer directly.
type Navigator interface {
	Navigate(path string, opts NavigateOptions)
	CurrentLocation() Location
}

// NotificationVariant selects the visual treatment of a notification.
type NotificationVariant string

const (
	NotificationDefault     NotificationVariant = "default"
	NotificationWarning     NotificationVariant = "warning"
	NotificationDestructive NotificationVariant = "destructive"
)

// Notification is a fire-and-forget user-facing message.
type Notification struct {
	Title       string
	Description string
	Variant     NotificationVariant
}

// Notifier consumes notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) {
	if f != nil {
		f(n)
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(Notification) {}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

type noopNavigator struct{}

func (noopNavigator) Navigate(string, NavigateOptions) {}
func (noopNavigator) CurrentLocation() Location        { return Location{Path: "/"} }

func normalizeNavigator(n Navigator) Navigator {
	if n == nil {
		return noopNavigator{}
	}
	return n
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] PORTAL "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] PORTAL "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] PORTAL "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] PORTAL "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
