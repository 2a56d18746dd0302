package portal

import (
	"context"
	"time"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignUp             ActivityEventType = "session.signup"
	ActivityEventSignInSuccess      ActivityEventType = "session.signin.success"
	ActivityEventSignInFailure      ActivityEventType = "session.signin.failure"
	ActivityEventSignOut            ActivityEventType = "session.signout"
	ActivityEventProfileFallback    ActivityEventType = "session.profile.fallback"
	ActivityEventRoleChanged        ActivityEventType = "profile.role.changed"
	ActivityEventTrackStatusChanged ActivityEventType = "track.status.changed"
	ActivityEventTrackTrashed       ActivityEventType = "track.trashed"
	ActivityEventTrackRestored      ActivityEventType = "track.restored"
	ActivityEventTrackPurged        ActivityEventType = "track.purged"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	Subject    string
	TrackID    string
	FromStatus TrackStatus
	ToStatus   TrackStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
