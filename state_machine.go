package portal

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	textCodeInvalidTransition = "INVALID_TRACK_STATE_TRANSITION"
	textCodeTrackTrashed      = "TRACK_IN_RECYCLE_BIN"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid track state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTrackTrashed is returned when attempting to moderate a track sitting in
// the recycle bin; restore it first.
var ErrTrackTrashed = goerrors.New("track is in the recycle bin", goerrors.CategoryConflict).
	WithTextCode(textCodeTrackTrashed).
	WithCode(goerrors.CodeConflict)

// ReviewMetadata captures extra context for a moderation decision.
type ReviewMetadata struct {
	Note     string
	Metadata map[string]any
}

// ReviewContext is passed into hooks for additional processing.
type ReviewContext struct {
	Actor ActorRef
	Track *Track
	From  TrackStatus
	To    TrackStatus
	Meta  ReviewMetadata
}

// ReviewHook is executed before or after a moderation transition.
type ReviewHook func(ctx context.Context, rc ReviewContext) error

// ReviewHookPhase identifies whether a hook ran before or after persistence.
type ReviewHookPhase string

const (
	HookPhaseBefore ReviewHookPhase = "before_review"
	HookPhaseAfter  ReviewHookPhase = "after_review"
)

// TransitionOption customizes a single moderation transition.
type TransitionOption func(*transitionOptions)

// TrackStateMachine defines moderation lifecycle operations for tracks.
type TrackStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, track *Track, target TrackStatus, opts ...TransitionOption) (*Track, error)
	CurrentStatus(track *Track) TrackStatus
}

// HookErrorHandler handles errors surfaced by review hooks.
type HookErrorHandler func(ctx context.Context, phase ReviewHookPhase, err error, rc ReviewContext) error

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*trackStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *trackStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish moderation events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *trackStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
// Provide a handler to convert hook errors into domain-specific responses,
// otherwise the default handler panics with guidance for developers.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *trackStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *trackStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithReviewNote sets the human-readable note attached to the decision.
func WithReviewNote(note string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Note = note
	}
}

// WithReviewMetadata merges metadata into the review context.
func WithReviewMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithForceTransition bypasses validation rules (use sparingly).
func WithForceTransition() TransitionOption {
	return func(opts *transitionOptions) {
		opts.force = true
	}
}

// WithBeforeReviewHook adds a hook executed before the status update.
func WithBeforeReviewHook(h ReviewHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterReviewHook adds a hook executed after the status update succeeds.
func WithAfterReviewHook(h ReviewHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// WithReviewTime overrides the timestamp recorded for the decision.
func WithReviewTime(t time.Time) TransitionOption {
	return func(opts *transitionOptions) {
		opts.reviewTime = &t
	}
}

// TrackStatusUpdater persists moderation status changes; implemented by the
// Tracks repository.
type TrackStatusUpdater interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status TrackStatus, opts ...ModerationUpdateOption) (*Track, error)
}

// NewTrackStateMachine returns the default implementation backed by the provided repository.
func NewTrackStateMachine(tracks TrackStatusUpdater, opts ...StateMachineOption) TrackStateMachine {
	sm := &trackStateMachine{
		tracks: tracks,
		transitions: map[TrackStatus]map[TrackStatus]struct{}{
			TrackStatusPending: {
				TrackStatusApproved: {},
				TrackStatusRejected: {},
			},
			TrackStatusApproved: {
				TrackStatusPending:  {},
				TrackStatusRejected: {},
			},
			TrackStatusRejected: {
				TrackStatusPending:  {},
				TrackStatusApproved: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		hookErrorHandler: func(ctx context.Context, phase ReviewHookPhase, err error, rc ReviewContext) error {
			return defaultHookErrorHandler(ctx, phase, err, rc)
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type trackStateMachine struct {
	tracks           TrackStatusUpdater
	transitions      map[TrackStatus]map[TrackStatus]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata    ReviewMetadata
	force       bool
	beforeHooks []ReviewHook
	afterHooks  []ReviewHook
	reviewTime  *time.Time
}

func (o *transitionOptions) cloneMetadata() ReviewMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return ReviewMetadata{
		Note:     o.metadata.Note,
		Metadata: cloned,
	}
}

func (sm *trackStateMachine) Transition(ctx context.Context, actor ActorRef, track *Track, target TrackStatus, opts ...TransitionOption) (*Track, error) {
	if track == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "track is nil",
		})
	}

	track.EnsureStatus()
	from := track.Status
	if target == "" {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "target status is empty",
		})
	}

	if from == target {
		return track, nil
	}

	options := sm.buildTransitionOptions(opts...)

	if track.IsTrashed() && !options.force {
		return nil, ErrTrackTrashed.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	if !options.force && !sm.canTransition(from, target) {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	ctxData := ReviewContext{
		Actor: actor,
		Track: track,
		From:  from,
		To:    target,
		Meta:  options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, ctxData, HookPhaseBefore); err != nil {
		return nil, err
	}

	statusOpts, reviewedAt := sm.buildStatusOptions(actor, options)

	updated, err := sm.tracks.UpdateStatus(ctx, track.ID, target, statusOpts...)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(track, updated, target, reviewedAt, options.metadata.Note)

	if err := sm.runHooks(ctx, options.afterHooks, ctxData, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventTrackStatusChanged,
		Actor:      actor,
		TrackID:    track.ID.String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   sm.reviewMetadata(ctxData.Meta),
	})

	return track, nil
}

func (sm *trackStateMachine) CurrentStatus(track *Track) TrackStatus {
	if track == nil {
		return ""
	}
	track.EnsureStatus()
	return track.Status
}

func (sm *trackStateMachine) runHooks(ctx context.Context, hooks []ReviewHook, data ReviewContext, phase ReviewHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *trackStateMachine) canTransition(from, to TrackStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *trackStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *trackStateMachine) buildStatusOptions(actor ActorRef, opts *transitionOptions) ([]ModerationUpdateOption, *time.Time) {
	reviewedAt := opts.reviewTime
	if reviewedAt == nil {
		now := sm.now()
		reviewedAt = &now
	}

	statusOpts := []ModerationUpdateOption{
		WithReviewedAt(reviewedAt),
	}

	if actor.ID != "" {
		if reviewerID, err := uuid.Parse(actor.ID); err == nil {
			statusOpts = append(statusOpts, WithReviewedBy(&reviewerID))
		}
	}

	if opts.metadata.Note != "" {
		statusOpts = append(statusOpts, WithReviewNoteUpdate(opts.metadata.Note))
	}

	return statusOpts, reviewedAt
}

func defaultHookErrorHandler(_ context.Context, phase ReviewHookPhase, err error, rc ReviewContext) error {
	panic(fmt.Sprintf(
		"go-portal: %s review hook failed: %v\nTrackID: %s from=%s to=%s note=%s\nProvide portal.WithStateMachineHookErrorHandler to customize error handling in production.",
		phase,
		err,
		rc.Track.ID,
		rc.From,
		rc.To,
		rc.Meta.Note,
	))
}

func (sm *trackStateMachine) applyUpdates(track, updated *Track, target TrackStatus, reviewedAt *time.Time, note string) {
	if updated != nil {
		if updated.Status != "" {
			track.Status = updated.Status
		} else {
			track.Status = target
		}
		track.ReviewedAt = updated.ReviewedAt
		track.ReviewedBy = updated.ReviewedBy
		if updated.ReviewNote != "" {
			track.ReviewNote = updated.ReviewNote
		}
		return
	}

	track.Status = target
	track.ReviewedAt = reviewedAt
	if note != "" {
		track.ReviewNote = note
	}
}

func (sm *trackStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error: %v", err)
	}
}

func (sm *trackStateMachine) reviewMetadata(meta ReviewMetadata) map[string]any {
	if meta.Note == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Note != "" {
		result["note"] = meta.Note
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
