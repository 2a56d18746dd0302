package portal

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is the profile's access level
type Role = string

const (
	// RoleAdmin moderates tracks and manages accounts
	RoleAdmin Role = "admin"
	// RoleArtist uploads tracks and follows their approval status
	RoleArtist Role = "artist"
	// RoleInactive is a deactivated account, it cannot sign in
	RoleInactive Role = "inactive"
)

// Profile is the application-level record keyed 1:1 by the identity
// provider's user id.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Name          string     `bun:"name" json:"name,omitempty"`
	Role          Role       `bun:"role,notnull" json:"role,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsAdmin reports whether the profile carries the admin role.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// IsActive reports whether the profile may authenticate.
func (p *Profile) IsActive() bool {
	return p != nil && p.Role != RoleInactive
}

// EnsureRole backfills the default role for records created before the role
// column existed.
func (p *Profile) EnsureRole() {
	if p.Role == "" {
		p.Role = RoleArtist
	}
}

// Validate checks the profile payload before persistence.
func (p Profile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.EmailFormat),
		validation.Field(&p.Role, validation.In(RoleAdmin, RoleArtist, RoleInactive)),
	)
}

// TrackStatus is the moderation status of an uploaded track
type TrackStatus = string

const (
	// TrackStatusPending awaits review
	TrackStatusPending TrackStatus = "pending"
	// TrackStatusApproved passed moderation
	TrackStatusApproved TrackStatus = "approved"
	// TrackStatusRejected failed moderation
	TrackStatusRejected TrackStatus = "rejected"
)

// Track is an uploaded audio submission. A non-nil DeletedAt means the track
// sits in the recycle bin; it stays restorable until purged.
type Track struct {
	bun.BaseModel `bun:"table:tracks,alias:trk"`
	ID            uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ArtistID      uuid.UUID   `bun:"artist_id,notnull,type:uuid" json:"artist_id,omitempty"`
	Artist        *Profile    `bun:"rel:belongs-to,join:artist_id=id" json:"artist,omitempty"`
	Title         string      `bun:"title,notnull" json:"title,omitempty"`
	Genre         string      `bun:"genre" json:"genre,omitempty"`
	AudioURL      string      `bun:"audio_url,notnull" json:"audio_url,omitempty"`
	Status        TrackStatus `bun:"status,notnull" json:"status,omitempty"`
	ReviewNote    string      `bun:"review_note" json:"review_note,omitempty"`
	ReviewedBy    *uuid.UUID  `bun:"reviewed_by,nullzero,type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time  `bun:"reviewed_at,nullzero" json:"reviewed_at,omitempty"`
	CreatedAt     *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time  `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus defaults new submissions to the review queue.
func (t *Track) EnsureStatus() {
	if t.Status == "" {
		t.Status = TrackStatusPending
	}
}

// IsTrashed reports whether the track sits in the recycle bin.
func (t *Track) IsTrashed() bool {
	return t != nil && t.DeletedAt != nil
}

// Validate checks the submission payload.
func (t Track) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&t.AudioURL, validation.Required, is.URL),
		validation.Field(&t.ArtistID, validation.Required, validation.By(func(value any) error {
			if id, ok := value.(uuid.UUID); !ok || id == uuid.Nil {
				return validation.NewError("validation_required", "artist id is required")
			}
			return nil
		})),
	)
}

// ValidTrackStatuses returns the moderation statuses in review order.
func ValidTrackStatuses() []TrackStatus {
	return []TrackStatus{TrackStatusPending, TrackStatusApproved, TrackStatusRejected}
}

// ParseTrackStatus safely parses a string into a TrackStatus.
func ParseTrackStatus(status string) (TrackStatus, bool) {
	switch status {
	case TrackStatusPending, TrackStatusApproved, TrackStatusRejected:
		return TrackStatus(status), true
	default:
		return "", false
	}
}
