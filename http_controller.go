package portal

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/google/uuid"
)

// RegisterPortalRoutes wires the portal controller into a router. Moderation
// routes are nested under the admin dashboard and require the admin role;
// artist routes only need a signed-in account.
func RegisterPortalRoutes[T any](app router.Router[T], opts ...PortalControllerOption) {
	controller := NewPortalController(opts...)

	requireAuth := controller.Auther.Protected(Requirements{RequireAuth: true})
	requireAdmin := controller.Auther.Protected(Requirements{RequireAuth: true, RequireAdmin: true})

	app.Get(controller.Routes.Login, controller.LoginShow).
		SetName("sign-in.get")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")
	app.Get(controller.Routes.Logout, controller.LogOut).
		SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.Dashboard, controller.ArtistDashboard, requireAuth).
		SetName("dashboard.get")
	app.Post(controller.Routes.Tracks, controller.TrackSubmit, requireAuth).
		SetName("tracks.post")

	app.Get(controller.Routes.Admin, controller.AdminDashboard, requireAdmin).
		SetName("admin.get")
	app.Get(controller.Routes.AdminTracks, controller.ModerationQueue, requireAdmin).
		SetName("admin-tracks.get")
	app.Post(controller.Routes.AdminTracks+"/:uuid/approve", controller.TrackApprove, requireAdmin).
		SetName("admin-tracks-approve.post")
	app.Post(controller.Routes.AdminTracks+"/:uuid/reject", controller.TrackReject, requireAdmin).
		SetName("admin-tracks-reject.post")
	app.Post(controller.Routes.AdminTracks+"/bulk", controller.TrackBulkModerate, requireAdmin).
		SetName("admin-tracks-bulk.post")

	app.Get(controller.Routes.AdminTrash, controller.RecycleBin, requireAdmin).
		SetName("admin-trash.get")
	app.Post(controller.Routes.AdminTracks+"/:uuid/trash", controller.TrackTrash, requireAdmin).
		SetName("admin-tracks-trash.post")
	app.Post(controller.Routes.AdminTracks+"/:uuid/restore", controller.TrackRestore, requireAdmin).
		SetName("admin-tracks-restore.post")
	app.Post(controller.Routes.AdminTracks+"/:uuid/purge", controller.TrackPurge, requireAdmin).
		SetName("admin-tracks-purge.post")

	app.Post(controller.Routes.AdminProfiles+"/:uuid/role", controller.ProfileRoleUpdate, requireAdmin).
		SetName("admin-profiles-role.post")
}

type PortalControllerRoutes struct {
	Login         string
	Logout        string
	Register      string
	Dashboard     string
	Tracks        string
	Admin         string
	AdminTracks   string
	AdminTrash    string
	AdminProfiles string
}

type PortalControllerViews struct {
	Login     string
	Register  string
	Dashboard string
	Admin     string
	Queue     string
	Trash     string
}

type PortalController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Store        *SessionStore
	Routes       *PortalControllerRoutes
	Views        *PortalControllerViews
	Auther       *RoutePortal
	ErrorHandler router.ErrorHandler
}

type PortalControllerOption func(*PortalController) *PortalController

func WithControllerRepo(repo RepositoryManager) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		c.Repo = repo
		return c
	}
}

func WithControllerStore(store *SessionStore) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		c.Store = store
		return c
	}
}

func WithControllerAuther(auther *RoutePortal) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		c.Auther = auther
		return c
	}
}

func WithControllerLogger(logger Logger) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerDebug(debug bool) PortalControllerOption {
	return func(c *PortalController) *PortalController {
		c.Debug = debug
		return c
	}
}

func NewPortalController(opts ...PortalControllerOption) *PortalController {
	c := &PortalController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &PortalControllerRoutes{
			Login:         "/login",
			Logout:        "/logout",
			Register:      "/register",
			Dashboard:     "/dashboard",
			Tracks:        "/tracks",
			Admin:         "/admin",
			AdminTracks:   "/admin/tracks",
			AdminTrash:    "/admin/trash",
			AdminProfiles: "/admin/profiles",
		},
		Views: &PortalControllerViews{
			Login:     "login",
			Register:  "register",
			Dashboard: "dashboard",
			Admin:     "admin",
			Queue:     "admin_queue",
			Trash:     "admin_trash",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in portal controller...")
	}

	if c.Store == nil {
		panic("Missing SessionStore in portal controller...")
	}

	if c.Auther == nil {
		panic("Missing RoutePortal in portal controller...")
	}

	return c
}

func (a *PortalController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Email
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.EmailFormat,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *PortalController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("login attempt: %s", print.MaybePrettyJSON(payload))
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": map[string]string{
				"authentication": err.Error(),
			},
			"record": payload,
		})
	}

	redirect := a.Auther.GetRedirect(ctx, a.roleLanding())

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *PortalController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *PortalController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegistrationCreatePayload{},
	})
}

// RegistrationCreatePayload is the form paylaod
type RegistrationCreatePayload struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.EmailFormat),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(8, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *PortalController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(router.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register validate payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	result, err := a.Store.SignUp(ctx.Context(), payload.Email, payload.Password, payload.Name)
	if err != nil {
		a.Logger.Error("register error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error creating account",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	message := "Account created! Check your email to verify your account."
	if !result.ConfirmationEmailSent {
		message = "Account created! Email verification may be delayed."
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": message,
	}).Redirect(a.Routes.Login, router.StatusSeeOther)
}

func (a *PortalController) ArtistDashboard(ctx router.Context) error {
	profile := a.Store.Profile()
	if profile == nil {
		return a.Auther.AuthErrorHandler(ctx, ErrProfileNotFound)
	}

	records, err := a.Repo.Tracks().ListByArtist(ctx.Context(), profile.ID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Dashboard, router.ViewContext{
		"profile": profile,
		"tracks":  records,
	})
}

// SubmitTrackPayload is the upload form
type SubmitTrackPayload struct {
	Title    string `form:"title" json:"title"`
	Genre    string `form:"genre" json:"genre"`
	AudioURL string `form:"audio_url" json:"audio_url"`
}

// Validate will validate the payload
func (r SubmitTrackPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.AudioURL, validation.Required, is.URL),
	)
}

func (a *PortalController) TrackSubmit(ctx router.Context) error {
	profile := a.Store.Profile()
	if profile == nil {
		return a.Auther.AuthErrorHandler(ctx, ErrProfileNotFound)
	}

	payload := new(SubmitTrackPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating track",
		}).Redirect(a.Routes.Dashboard, router.StatusSeeOther)
	}

	track := &Track{
		ArtistID: profile.ID,
		Title:    payload.Title,
		Genre:    payload.Genre,
		AudioURL: payload.AudioURL,
	}

	if _, err := a.Repo.Tracks().Submit(ctx.Context(), track); err != nil {
		a.Logger.Error("track submit error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Track submitted for review",
	}).Redirect(a.Routes.Dashboard, router.StatusSeeOther)
}

func (a *PortalController) AdminDashboard(ctx router.Context) error {
	pending, err := a.Repo.Tracks().ListPending(ctx.Context())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Admin, router.ViewContext{
		"profile": a.Store.Profile(),
		"pending": pending,
	})
}

func (a *PortalController) ModerationQueue(ctx router.Context) error {
	status := ctx.Query("status", TrackStatusPending)
	if _, ok := ParseTrackStatus(status); !ok {
		status = TrackStatusPending
	}

	records, err := a.Repo.Tracks().ListByStatus(ctx.Context(), status)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Queue, router.ViewContext{
		"status": status,
		"tracks": records,
	})
}

// ModerationPayload carries the reviewer note.
type ModerationPayload struct {
	Note string `form:"note" json:"note"`
}

func (a *PortalController) TrackApprove(ctx router.Context) error {
	return a.moderate(ctx, TrackStatusApproved)
}

func (a *PortalController) TrackReject(ctx router.Context) error {
	return a.moderate(ctx, TrackStatusRejected)
}

func (a *PortalController) moderate(ctx router.Context, target TrackStatus) error {
	id, err := uuid.Parse(ctx.Param("uuid", ""))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(ModerationPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	track, err := a.Repo.Tracks().GetByIdentifier(ctx.Context(), id.String())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	opts := []TransitionOption{}
	if payload.Note != "" {
		opts = append(opts, WithReviewNote(payload.Note))
	}

	switch target {
	case TrackStatusApproved:
		_, err = a.Repo.Tracks().Approve(ctx.Context(), a.actor(ctx), track, opts...)
	case TrackStatusRejected:
		_, err = a.Repo.Tracks().Reject(ctx.Context(), a.actor(ctx), track, opts...)
	default:
		_, err = a.Repo.Tracks().Resubmit(ctx.Context(), a.actor(ctx), track, opts...)
	}

	if err != nil {
		a.Logger.Error("moderation error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(a.Routes.AdminTracks, router.StatusSeeOther)
}

// BulkModerationPayload applies one decision to many tracks.
type BulkModerationPayload struct {
	IDs    []string `form:"ids" json:"ids"`
	Status string   `form:"status" json:"status"`
	Note   string   `form:"note" json:"note"`
}

// Validate will validate the payload
func (r BulkModerationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDs, validation.Required),
		validation.Field(&r.Status, validation.Required, validation.In(
			TrackStatusPending, TrackStatusApproved, TrackStatusRejected,
		)),
	)
}

func (a *PortalController) TrackBulkModerate(ctx router.Context) error {
	payload := new(BulkModerationPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	ids := make([]uuid.UUID, 0, len(payload.IDs))
	for _, raw := range payload.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return a.ErrorHandler(ctx, err)
		}
		ids = append(ids, id)
	}

	opts := []TransitionOption{}
	if payload.Note != "" {
		opts = append(opts, WithReviewNote(payload.Note))
	}

	if err := BulkModerate(ctx.Context(), a.Repo, a.actor(ctx), ids, payload.Status, opts...); err != nil {
		a.Logger.Error("bulk moderation error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(a.Routes.AdminTracks, router.StatusSeeOther)
}

func (a *PortalController) RecycleBin(ctx router.Context) error {
	records, err := a.Repo.Tracks().ListTrashed(ctx.Context())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Trash, router.ViewContext{
		"tracks": records,
	})
}

func (a *PortalController) TrackTrash(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("uuid", ""))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Repo.Tracks().Trash(ctx.Context(), a.actor(ctx), id); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(a.Routes.AdminTrash, router.StatusSeeOther)
}

func (a *PortalController) TrackRestore(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("uuid", ""))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if _, err := a.Repo.Tracks().Restore(ctx.Context(), a.actor(ctx), id); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(a.Routes.AdminTrash, router.StatusSeeOther)
}

func (a *PortalController) TrackPurge(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("uuid", ""))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.Repo.Tracks().Purge(ctx.Context(), a.actor(ctx), id); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(a.Routes.AdminTrash, router.StatusSeeOther)
}

// RoleUpdatePayload changes a profile's access level.
type RoleUpdatePayload struct {
	Role string `form:"role" json:"role"`
}

// Validate will validate the payload
func (r RoleUpdatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In(
			RoleAdmin, RoleArtist, RoleInactive,
		)),
	)
}

func (a *PortalController) ProfileRoleUpdate(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("uuid", ""))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(RoleUpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if _, err := a.Repo.Profiles().UpdateRole(ctx.Context(), a.actor(ctx), id, payload.Role); err != nil {
		a.Logger.Error("role update error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(a.Routes.Admin, router.StatusSeeOther)
}

// actor resolves who is performing the request, preferring the profile the
// guard middleware placed in the request context over the store snapshot.
func (a *PortalController) actor(ctx router.Context) ActorRef {
	if actor := ActorFromContext(ctx.Context()); actor.ID != "" {
		return actor
	}
	if profile := a.Store.Profile(); profile != nil {
		return ActorRef{ID: profile.ID.String(), Type: "user"}
	}
	return ActorRef{Type: "system"}
}

func (a *PortalController) roleLanding() string {
	snap := a.Store.Snapshot()
	if snap.Admin() {
		return a.Routes.Admin
	}
	return a.Routes.Dashboard
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors into a map
// suitable for view contexts.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}
