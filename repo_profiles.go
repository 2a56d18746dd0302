package portal

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Profiles interface {
	repository.Repository[*Profile]

	GetOrProvision(ctx context.Context, record *Profile) (*Profile, error)
	GetOrProvisionTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error)
	Create(ctx context.Context, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error)

	UpdateRole(ctx context.Context, actor ActorRef, id uuid.UUID, role Role) (*Profile, error)
	UpdateRoleTx(ctx context.Context, tx bun.IDB, actor ActorRef, id uuid.UUID, role Role) (*Profile, error)
	Deactivate(ctx context.Context, actor ActorRef, id uuid.UUID) (*Profile, error)
	Reactivate(ctx context.Context, actor ActorRef, id uuid.UUID, role Role) (*Profile, error)

	FetchProfileByID(ctx context.Context, id string) (*Profile, error)
}

type profiles struct {
	repository.Repository[*Profile]
	db             *bun.DB
	bootstrapEmail string
	activitySink   ActivitySink
	logger         Logger
}

var (
	_ Profiles                        = (*profiles)(nil)
	_ repository.Repository[*Profile] = (*profiles)(nil)
	_ ProfileSource                   = (*profiles)(nil)
)

type ProfilesOption func(*profiles)

// WithProfilesBootstrapEmail sets the email that is provisioned as admin.
func WithProfilesBootstrapEmail(email string) ProfilesOption {
	return func(p *profiles) {
		if email != "" {
			p.bootstrapEmail = email
		}
	}
}

// WithProfilesActivitySink sets the sink that receives role-change events.
func WithProfilesActivitySink(sink ActivitySink) ProfilesOption {
	return func(p *profiles) {
		p.activitySink = normalizeActivitySink(sink)
	}
}

// WithProfilesLogger overrides the repository logger.
func WithProfilesLogger(logger Logger) ProfilesOption {
	return func(p *profiles) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewProfilesRepository(db *bun.DB, opts ...ProfilesOption) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoProfiles := &profiles{
		Repository:     repo,
		db:             db,
		bootstrapEmail: BootstrapAdminEmail,
		activitySink:   noopActivitySink{},
		logger:         defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoProfiles)
		}
	}

	return repoProfiles
}

func (a *profiles) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Profile, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *profiles) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Profile, error) {
	options := resolveProfileIdentifier(identifier)
	if len(options) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"identifier": identifier,
			})
	}

	for _, opt := range options {
		record := &Profile{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where("?TableAlias."+opt.column+" = ?", opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *profiles) Create(ctx context.Context, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *profiles) CreateTx(ctx context.Context, tx bun.IDB, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error) {
	a.prepareDefaults(record)
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

// GetOrProvision returns the profile for the record's id or email, creating it
// with default role assignment when missing. Safe to call repeatedly for the
// same account.
func (a *profiles) GetOrProvision(ctx context.Context, record *Profile) (*Profile, error) {
	return a.GetOrProvisionTx(ctx, a.db, record)
}

func (a *profiles) GetOrProvisionTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error) {
	identifier := record.Email
	if record.ID != uuid.Nil {
		identifier = record.ID.String()
	}

	profile, err := a.GetByIdentifierTx(ctx, tx, identifier)
	if err == nil {
		return profile, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.CreateTx(ctx, tx, record)
}

func (a *profiles) UpdateRole(ctx context.Context, actor ActorRef, id uuid.UUID, role Role) (*Profile, error) {
	return a.UpdateRoleTx(ctx, a.db, actor, id, role)
}

func (a *profiles) UpdateRoleTx(ctx context.Context, tx bun.IDB, actor ActorRef, id uuid.UUID, role Role) (*Profile, error) {
	if !IsValidRole(role) {
		return nil, ErrInvalidRole.WithMetadata(map[string]any{
			"role": role,
		})
	}

	current, err := a.GetByIdentifierTx(ctx, tx, id.String())
	if err != nil {
		return nil, err
	}

	if current.Role == role {
		return current, nil
	}

	record := &Profile{
		ID:   id,
		Role: role,
	}

	updated, err := a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
	if err != nil {
		return nil, err
	}

	a.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventRoleChanged,
		Actor:     actor,
		Subject:   id.String(),
		Metadata: map[string]any{
			"from": current.Role,
			"to":   role,
		},
	})

	return updated, nil
}

// Deactivate flips the account to the inactive role; the session store
// refuses to settle a session whose profile is inactive.
func (a *profiles) Deactivate(ctx context.Context, actor ActorRef, id uuid.UUID) (*Profile, error) {
	return a.UpdateRole(ctx, actor, id, RoleInactive)
}

// Reactivate restores a deactivated account to the given role.
func (a *profiles) Reactivate(ctx context.Context, actor ActorRef, id uuid.UUID, role Role) (*Profile, error) {
	if role == "" || role == RoleInactive {
		role = RoleArtist
	}
	return a.UpdateRole(ctx, actor, id, role)
}

// FetchProfileByID implements ProfileSource so the repository can back the
// session store directly.
func (a *profiles) FetchProfileByID(ctx context.Context, id string) (*Profile, error) {
	record, err := a.Repository.GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, wrapAs(err, ErrProfileNotFound)
		}
		return nil, err
	}
	record.EnsureRole()
	return record, nil
}

func (a *profiles) prepareDefaults(record *Profile) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleForEmail(record.Email, a.bootstrapEmail)
	}

	if record.ID == uuid.Nil {
		if id, err := hashid.NewUUID(record.Email); err == nil {
			record.ID = id
		} else {
			record.ID = uuid.New()
		}
	}

	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
}

func (a *profiles) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	sink := normalizeActivitySink(a.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		a.logger.Warn("profiles activity sink error: %v", err)
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveProfileIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 2)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
