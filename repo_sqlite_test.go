package portal_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	portal "github.com/waveport/go-portal"
)

const (
	sqliteCreateProfiles = `CREATE TABLE profiles (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    name TEXT,
    role TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    deleted_at TIMESTAMP NULL
);`
	sqliteCreateTracks = `CREATE TABLE tracks (
    id TEXT NOT NULL PRIMARY KEY,
    artist_id TEXT NOT NULL,
    title TEXT NOT NULL,
    genre TEXT,
    audio_url TEXT NOT NULL,
    status TEXT NOT NULL,
    review_note TEXT,
    reviewed_by TEXT,
    reviewed_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    deleted_at TIMESTAMP NULL,
    FOREIGN KEY (artist_id) REFERENCES profiles (id) ON DELETE CASCADE
);`
)

func setupRepoManager(t *testing.T) (portal.RepositoryManager, *bun.DB, func()) {
	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	_, err = bunDB.Exec(sqliteCreateProfiles)
	require.NoError(t, err)
	_, err = bunDB.Exec(sqliteCreateTracks)
	require.NoError(t, err)

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return portal.NewRepositoryManager(bunDB), bunDB, cleanup
}

func seedArtist(t *testing.T, manager portal.RepositoryManager, email string) *portal.Profile {
	profile, err := manager.Profiles().GetOrProvision(context.Background(), &portal.Profile{
		Email: email,
		Name:  "Seed Artist",
	})
	require.NoError(t, err)
	return profile
}

func seedTrack(t *testing.T, manager portal.RepositoryManager, artistID uuid.UUID, title string) *portal.Track {
	track, err := manager.Tracks().Submit(context.Background(), &portal.Track{
		ArtistID: artistID,
		Title:    title,
		Genre:    "synthwave",
		AudioURL: "https://cdn.waveport.fm/" + uuid.NewString() + ".mp3",
	})
	require.NoError(t, err)
	return track
}

func TestProfilesProvisioning(t *testing.T) {
	manager, _, cleanup := setupRepoManager(t)
	defer cleanup()

	ctx := context.Background()

	admin, err := manager.Profiles().GetOrProvision(ctx, &portal.Profile{
		Email: portal.BootstrapAdminEmail,
	})
	require.NoError(t, err)
	assert.Equal(t, portal.RoleAdmin, admin.Role, "bootstrap address provisions as admin")

	artist, err := manager.Profiles().GetOrProvision(ctx, &portal.Profile{
		Email: "ana@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, portal.RoleArtist, artist.Role)
	assert.NotEqual(t, uuid.Nil, artist.ID)

	// provisioning is idempotent for the same account
	again, err := manager.Profiles().GetOrProvision(ctx, &portal.Profile{
		Email: "ana@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, artist.ID, again.ID)
}

func TestProfilesLookupByIDOrEmail(t *testing.T) {
	manager, _, cleanup := setupRepoManager(t)
	defer cleanup()

	ctx := context.Background()
	artist := seedArtist(t, manager, "ana@example.com")

	byID, err := manager.Profiles().GetByIdentifier(ctx, artist.ID.String())
	require.NoError(t, err)
	assert.Equal(t, artist.Email, byID.Email)

	byEmail, err := manager.Profiles().GetByIdentifier(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, artist.ID, byEmail.ID)

	_, err = manager.Profiles().GetByIdentifier(ctx, "ghost@example.com")
	assert.Error(t, err)
}

func TestProfilesFetchProfileByID(t *testing.T) {
	manager, _, cleanup := setupRepoManager(t)
	defer cleanup()

	ctx := context.Background()
	artist := seedArtist(t, manager, "ana@example.com")

	found, err := manager.Profiles().FetchProfileByID(ctx, artist.ID.String())
	require.NoError(t, err)
	assert.Equal(t, artist.Email, found.Email)

	_, err = manager.Profiles().FetchProfileByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, portal.ErrProfileNotFound)
}

func TestProfilesRoleManagement(t *testing.T) {
	_, bunDB, cleanup := setupRepoManager(t)
	defer cleanup()

	ctx := context.Background()
	sink := &capturingSink{}
	profiles := portal.NewProfilesRepository(bunDB, portal.WithProfilesActivitySink(sink))

	artist, err := profiles.GetOrProvision(ctx, &portal.Profile{Email: "ana@example.com"})
	require.NoError(t, err)

	actor := portal.ActorRef{ID: uuid.NewString(), Type: "admin"}

	promoted, err := profiles.UpdateRole(ctx, actor, artist.ID, portal.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, portal.RoleAdmin, promoted.Role)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, portal.ActivityEventRoleChanged, events[0].EventType)
	assert.Equal(t, artist.ID.String(), events[0].Subject)
	assert.Equal(t, portal.RoleArtist, events[0].Metadata["from"])
	assert.Equal(t, portal.RoleAdmin, events[0].Metadata["to"])

	// same role is a no-op and emits nothing
	_, err = profiles.UpdateRole(ctx, actor, artist.ID, portal.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, sink.all(), 1)

	_, err = profiles.UpdateRole(ctx, actor, artist.ID, "superuser")
	assert.ErrorIs(t, err, portal.ErrInvalidRole)

	deactivated, err := profiles.Deactivate(ctx, actor, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, portal.RoleInactive, deactivated.Role)

	restored, err := profiles.Reactivate(ctx, actor, artist.ID, "")
	require.NoError(t, err)
	assert.Equal(t, portal.RoleArtist, restored.Role)
}

func TestTracksSubmitAndModerate(t *testing.T) {
	manager, _, cleanup := setupRepoManager(t)
	defer cleanup()

	ctx := context.Background()
	artist := seedArtist(t, manager, "ana@example.com")
	track := seedTrack(t, manager, artist.ID, "Night Drive")

	assert.Equal(t, portal.TrackStatusPending, track.Status)

	pending, err := manager.Tracks().ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	moderator := portal.ActorRef{ID: uuid.NewString(), Type: "admin"}
	approved, err := manager.Tracks().Approve(ctx, moderator, track,
		portal.WithReviewNote("clean master"),
	)
	require.NoError(t, err)
	assert.Equal(t, portal.TrackStatusApproved, approved.Status)
	assert.NotNil(t, approved.ReviewedAt)
	assert.Equal(t, "clean master", approved.ReviewNote)

	pending, err = manager.Tracks().ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	byArtist, err := manager.Tracks().ListByArtist(ctx, artist.ID)
	require.NoError(t, err)
	require.Len(t, byArtist, 1)
	assert.Equal(t, portal.TrackStatusApproved, byArtist[0].Status)
}

func TestTracksRecycleBin(t *testing.T) {
	manager, _, cleanup := setupRepoManager(t)
	defer cleanup()

	ctx := context.Background()
	artist := seedArtist(t, manager, "ana@example.com")
	track := seedTrack(t, manager, artist.ID, "Night Drive")

	actor := portal.ActorRef{ID: uuid.NewString(), Type: "admin"}

	require.NoError(t, manager.Tracks().Trash(ctx, actor, track.ID))

	visible, err := manager.Tracks().ListByArtist(ctx, artist.ID)
	require.NoError(t, err)
	assert.Empty(t, visible, "trashed tracks leave the artist's list")

	trashed, err := manager.Tracks().ListTrashed(ctx)
	require.NoError(t, err)
	require.Len(t, trashed, 1)
	assert.Equal(t, track.ID, trashed[0].ID)

	restored, err := manager.Tracks().Restore(ctx, actor, track.ID)
	require.NoError(t, err)
	assert.Equal(t, track.ID, restored.ID)
	assert.Nil(t, restored.DeletedAt)

	visible, err = manager.Tracks().ListByArtist(ctx, artist.ID)
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	require.NoError(t, manager.Tracks().Trash(ctx, actor, track.ID))
	require.NoError(t, manager.Tracks().Purge(ctx, actor, track.ID))

	trashed, err = manager.Tracks().ListTrashed(ctx)
	require.NoError(t, err)
	assert.Empty(t, trashed, "purged tracks are gone for good")

	_, err = manager.Tracks().Restore(ctx, actor, track.ID)
	assert.Error(t, err)
}

func TestTracksTrashMissingRecord(t *testing.T) {
	manager, _, cleanup := setupRepoManager(t)
	defer cleanup()

	err := manager.Tracks().Trash(context.Background(), portal.ActorRef{}, uuid.New())
	assert.Error(t, err)
}

func TestBulkModerate(t *testing.T) {
	manager, _, cleanup := setupRepoManager(t)
	defer cleanup()

	ctx := context.Background()
	artist := seedArtist(t, manager, "ana@example.com")

	first := seedTrack(t, manager, artist.ID, "Night Drive")
	second := seedTrack(t, manager, artist.ID, "Daybreak")

	moderator := portal.ActorRef{ID: uuid.NewString(), Type: "admin"}
	reviewTime := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	err := portal.BulkModerate(ctx, manager, moderator,
		[]uuid.UUID{first.ID, second.ID},
		portal.TrackStatusApproved,
		portal.WithReviewNote("batch pass"),
		portal.WithReviewTime(reviewTime),
	)
	require.NoError(t, err)

	approved, err := manager.Tracks().ListByStatus(ctx, portal.TrackStatusApproved)
	require.NoError(t, err)
	assert.Len(t, approved, 2)
	for _, trk := range approved {
		assert.Equal(t, "batch pass", trk.ReviewNote)
		require.NotNil(t, trk.ReviewedAt)
	}

	// a missing id rolls the whole batch back
	third := seedTrack(t, manager, artist.ID, "Afterglow")
	err = portal.BulkModerate(ctx, manager, moderator,
		[]uuid.UUID{third.ID, uuid.New()},
		portal.TrackStatusRejected,
	)
	require.Error(t, err)

	refetched, err := manager.Tracks().GetByIdentifier(ctx, third.ID.String())
	require.NoError(t, err)
	assert.Equal(t, portal.TrackStatusPending, refetched.Status, "rollback leaves the batch untouched")
}
