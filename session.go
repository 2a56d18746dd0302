package portal

import "fmt"

// Snapshot is an immutable copy of the session store's state. Guards and
// views consume snapshots so every reader of the same snapshot reaches the
// same decision.
type Snapshot struct {
	User        *AuthUser
	Session     *Session
	Profile     *Profile
	Loading     bool
	Initialized bool
}

// Authenticated reports whether a user is currently signed in.
func (s Snapshot) Authenticated() bool {
	return s.User != nil
}

// Profiled reports whether both user and profile are resolved.
func (s Snapshot) Profiled() bool {
	return s.User != nil && s.Profile != nil
}

// Admin reports whether the current profile carries the admin role. Never
// persisted, recomputed from the profile on every call.
func (s Snapshot) Admin() bool {
	return s.Profile.IsAdmin()
}

// Ready reports whether the store has resolved its first provider event and
// no profile fetch is in flight. Guards render a placeholder until Ready.
func (s Snapshot) Ready() bool {
	return s.Initialized && !s.Loading
}

// TODO: enable only in development!
func (s Snapshot) String() string {
	userID := "<nil>"
	if s.User != nil {
		userID = s.User.ID
	}
	role := "<nil>"
	if s.Profile != nil {
		role = s.Profile.Role
	}
	return fmt.Sprintf(
		"user=%s role=%s loading=%t initialized=%t",
		userID,
		role,
		s.Loading,
		s.Initialized,
	)
}
