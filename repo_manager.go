package portal

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Profiles() Profiles
	Tracks() Tracks
}

type mngr struct {
	db       *bun.DB
	profiles Profiles
	tracks   Tracks
}

type ManagerOption func(*mngr)

// WithManagerProfilesOptions forwards options to the profiles repository.
func WithManagerProfilesOptions(opts ...ProfilesOption) ManagerOption {
	return func(m *mngr) {
		m.profiles = NewProfilesRepository(m.db, opts...)
	}
}

// WithManagerTracksOptions forwards options to the tracks repository.
func WithManagerTracksOptions(opts ...TracksOption) ManagerOption {
	return func(m *mngr) {
		m.tracks = NewTracksRepository(m.db, opts...)
	}
}

func NewRepositoryManager(db *bun.DB, opts ...ManagerOption) RepositoryManager {
	m := &mngr{
		db:       db,
		profiles: NewProfilesRepository(db),
		tracks:   NewTracksRepository(db),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m mngr) Validate() error {
	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.tracks == nil {
		return errors.New("repository tracks should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Profiles() Profiles {
	return m.profiles
}

func (m mngr) Tracks() Tracks {
	return m.tracks
}
