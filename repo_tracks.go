package portal

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var RestoreTrackSQL = `UPDATE "tracks" AS "trk"
SET
	"deleted_at" = NULL
WHERE
	"trk"."deleted_at" IS NOT NULL
AND (
	"trk"."id" = ?
) RETURNING *;`

type Tracks interface {
	repository.Repository[*Track]

	Submit(ctx context.Context, track *Track) (*Track, error)
	SubmitTx(ctx context.Context, tx bun.IDB, track *Track) (*Track, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status TrackStatus, opts ...ModerationUpdateOption) (*Track, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status TrackStatus, opts ...ModerationUpdateOption) (*Track, error)
	Approve(ctx context.Context, actor ActorRef, track *Track, opts ...TransitionOption) (*Track, error)
	Reject(ctx context.Context, actor ActorRef, track *Track, opts ...TransitionOption) (*Track, error)
	Resubmit(ctx context.Context, actor ActorRef, track *Track, opts ...TransitionOption) (*Track, error)

	Trash(ctx context.Context, actor ActorRef, id uuid.UUID) error
	Restore(ctx context.Context, actor ActorRef, id uuid.UUID) (*Track, error)
	Purge(ctx context.Context, actor ActorRef, id uuid.UUID) error

	ListByArtist(ctx context.Context, artistID uuid.UUID) ([]*Track, error)
	ListByStatus(ctx context.Context, status TrackStatus) ([]*Track, error)
	ListPending(ctx context.Context) ([]*Track, error)
	ListTrashed(ctx context.Context) ([]*Track, error)
}

type tracks struct {
	repository.Repository[*Track]
	db                  *bun.DB
	stateMachine        TrackStateMachine
	stateMachineOptions []StateMachineOption
	activitySink        ActivitySink
	logger              Logger
}

var (
	_ Tracks                        = (*tracks)(nil)
	_ repository.Repository[*Track] = (*tracks)(nil)
	_ TrackStatusUpdater            = (*tracks)(nil)
)

type TracksOption func(*tracks)

func WithTracksStateMachineOptions(options ...StateMachineOption) TracksOption {
	return func(t *tracks) {
		if len(options) == 0 {
			return
		}
		t.stateMachineOptions = append(t.stateMachineOptions, options...)
		t.stateMachine = nil
	}
}

func WithTracksStateMachine(sm TrackStateMachine) TracksOption {
	return func(t *tracks) {
		t.stateMachine = sm
	}
}

// WithTracksActivitySink sets the sink that receives recycle bin events.
func WithTracksActivitySink(sink ActivitySink) TracksOption {
	return func(t *tracks) {
		t.activitySink = normalizeActivitySink(sink)
	}
}

// WithTracksLogger overrides the repository logger.
func WithTracksLogger(logger Logger) TracksOption {
	return func(t *tracks) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewTracksRepository(db *bun.DB, opts ...TracksOption) Tracks {
	repo := repository.NewRepository[*Track](db, repository.ModelHandlers[*Track]{
		NewRecord: func() *Track { return &Track{} },
		GetID: func(t *Track) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *Track, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	})

	repoTracks := &tracks{
		Repository:   repo,
		db:           db,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoTracks)
		}
	}

	return repoTracks
}

// Submit validates and stores a new upload in the review queue.
func (a *tracks) Submit(ctx context.Context, track *Track) (*Track, error) {
	return a.SubmitTx(ctx, a.db, track)
}

func (a *tracks) SubmitTx(ctx context.Context, tx bun.IDB, track *Track) (*Track, error) {
	prepareTrackDefaults(track)
	if err := track.Validate(); err != nil {
		return nil, err
	}
	return a.Repository.CreateTx(ctx, tx, track)
}

func (a *tracks) UpdateStatus(ctx context.Context, id uuid.UUID, status TrackStatus, opts ...ModerationUpdateOption) (*Track, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status, opts...)
}

func (a *tracks) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status TrackStatus, opts ...ModerationUpdateOption) (*Track, error) {
	record := &Track{
		ID:     id,
		Status: status,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *tracks) Approve(ctx context.Context, actor ActorRef, track *Track, opts ...TransitionOption) (*Track, error) {
	return a.moderationMachine().Transition(ctx, actor, track, TrackStatusApproved, opts...)
}

func (a *tracks) Reject(ctx context.Context, actor ActorRef, track *Track, opts ...TransitionOption) (*Track, error) {
	return a.moderationMachine().Transition(ctx, actor, track, TrackStatusRejected, opts...)
}

// Resubmit returns a reviewed track to the queue for another pass.
func (a *tracks) Resubmit(ctx context.Context, actor ActorRef, track *Track, opts ...TransitionOption) (*Track, error) {
	return a.moderationMachine().Transition(ctx, actor, track, TrackStatusPending, opts...)
}

// Trash soft-deletes the track into the recycle bin. It stays restorable
// until purged.
func (a *tracks) Trash(ctx context.Context, actor ActorRef, id uuid.UUID) error {
	res, err := a.db.NewDelete().
		Model((*Track)(nil)).
		Where("?TableAlias.id = ?", id.String()).
		Exec(ctx)
	if err != nil {
		return err
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	a.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventTrackTrashed,
		Actor:     actor,
		TrackID:   id.String(),
	})

	return nil
}

// Restore pulls a track out of the recycle bin.
func (a *tracks) Restore(ctx context.Context, actor ActorRef, id uuid.UUID) (*Track, error) {
	res, err := a.Repository.RawTx(ctx, a.db, RestoreTrackSQL, id.String())
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	a.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventTrackRestored,
		Actor:     actor,
		TrackID:   id.String(),
	})

	return res[0], nil
}

// Purge permanently removes a trashed track. There is no way back.
func (a *tracks) Purge(ctx context.Context, actor ActorRef, id uuid.UUID) error {
	_, err := a.db.NewDelete().
		Model((*Track)(nil)).
		Where("?TableAlias.id = ?", id.String()).
		ForceDelete().
		Exec(ctx)
	if err != nil {
		return err
	}

	a.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventTrackPurged,
		Actor:     actor,
		TrackID:   id.String(),
	})

	return nil
}

func (a *tracks) ListByArtist(ctx context.Context, artistID uuid.UUID) ([]*Track, error) {
	records := []*Track{}
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.artist_id = ?", artistID.String()).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *tracks) ListByStatus(ctx context.Context, status TrackStatus) ([]*Track, error) {
	records := []*Track{}
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", status).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *tracks) ListPending(ctx context.Context) ([]*Track, error) {
	return a.ListByStatus(ctx, TrackStatusPending)
}

// ListTrashed returns recycle bin contents, oldest first.
func (a *tracks) ListTrashed(ctx context.Context) ([]*Track, error) {
	records := []*Track{}
	err := a.db.NewSelect().
		Model(&records).
		WhereAllWithDeleted().
		Where("?TableAlias.deleted_at IS NOT NULL").
		Order("deleted_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ModerationUpdateOption mutates the track record before persisting a status
// change.
type ModerationUpdateOption func(*Track)

// WithReviewedAt sets the review timestamp during a status transition.
func WithReviewedAt(at *time.Time) ModerationUpdateOption {
	return func(t *Track) {
		t.ReviewedAt = at
	}
}

// WithReviewedBy records which moderator made the call.
func WithReviewedBy(id *uuid.UUID) ModerationUpdateOption {
	return func(t *Track) {
		t.ReviewedBy = id
	}
}

// WithReviewNoteUpdate attaches the moderator's note to the record.
func WithReviewNoteUpdate(note string) ModerationUpdateOption {
	return func(t *Track) {
		t.ReviewNote = note
	}
}

func prepareTrackDefaults(record *Track) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func (a *tracks) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	sink := normalizeActivitySink(a.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		a.logger.Warn("tracks activity sink error: %v", err)
	}
}

func (a *tracks) moderationMachine() TrackStateMachine {
	if a.stateMachine == nil {
		a.stateMachine = NewTrackStateMachine(a, a.stateMachineOptions...)
	}
	return a.stateMachine
}

// BulkModerate applies the same decision to several tracks inside one
// transaction. The first failure rolls back the batch.
func BulkModerate(ctx context.Context, manager RepositoryManager, actor ActorRef, ids []uuid.UUID, target TrackStatus, opts ...TransitionOption) error {
	return manager.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, id := range ids {
			track, err := manager.Tracks().GetByIdentifierTx(ctx, tx, id.String())
			if err != nil {
				return err
			}
			if _, err := manager.Tracks().UpdateStatusTx(ctx, tx, track.ID, target, moderationOptionsFromTransition(actor, opts...)...); err != nil {
				return err
			}
		}
		return nil
	})
}

func moderationOptionsFromTransition(actor ActorRef, opts ...TransitionOption) []ModerationUpdateOption {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	reviewedAt := options.reviewTime
	if reviewedAt == nil {
		now := time.Now()
		reviewedAt = &now
	}

	statusOpts := []ModerationUpdateOption{WithReviewedAt(reviewedAt)}

	if actor.ID != "" {
		if reviewerID, err := uuid.Parse(actor.ID); err == nil {
			statusOpts = append(statusOpts, WithReviewedBy(&reviewerID))
		}
	}

	if options.metadata.Note != "" {
		statusOpts = append(statusOpts, WithReviewNoteUpdate(options.metadata.Note))
	}

	return statusOpts
}
