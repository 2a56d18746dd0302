package portal

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	textCodeEmailTaken              = "EMAIL_TAKEN"
	textCodeConfirmationUndelivered = "CONFIRMATION_EMAIL_UNDELIVERED"
	textCodeProfileNotFound         = "PROFILE_NOT_FOUND"
	textCodeAccountInactive         = "ACCOUNT_INACTIVE"
	textCodeTooManyAttempts         = "TOO_MANY_LOGIN_ATTEMPTS"
	textCodeSessionRevoked          = "SESSION_REVOKED"
)

// ErrInvalidCredentials is returned when the provider rejects an email or
// password.
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrEmailTaken is returned when sign-up targets an already registered email.
var ErrEmailTaken = errors.New("email is already registered", errors.CategoryConflict).
	WithTextCode(textCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrConfirmationEmailUndelivered marks a soft provisioning failure: the
// account was created but the verification email could not be sent.
var ErrConfirmationEmailUndelivered = errors.New("confirmation email could not be sent", errors.CategoryOperation).
	WithTextCode(textCodeConfirmationUndelivered)

// ErrProfileNotFound is returned by profile sources for unknown user ids.
var ErrProfileNotFound = errors.New("profile not found", errors.CategoryNotFound).
	WithTextCode(textCodeProfileNotFound).
	WithCode(errors.CodeNotFound)

// ErrAccountInactive blocks sign-in for deactivated accounts.
var ErrAccountInactive = errors.New("account has been deactivated", errors.CategoryAuthz).
	WithTextCode(textCodeAccountInactive).
	WithCode(errors.CodeForbidden)

// ErrTooManyLoginAttempts enforces the login cool-down window.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(textCodeTooManyAttempts).
	WithCode(errors.CodeUnauthorized)

// ErrSessionRevoked is returned when a session token was globally revoked.
var ErrSessionRevoked = errors.New("session has been revoked", errors.CategoryAuth).
	WithTextCode(textCodeSessionRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidRole rejects role assignments outside the known set.
var ErrInvalidRole = errors.New("invalid role", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the generic credential mismatch error.
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// IsEmailDeliveryError checks whether a provider error describes an
// undeliverable confirmation email. Providers return this in several duck
// typed shapes, so we match on text like the token helpers do.
func IsEmailDeliveryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfirmationEmailUndelivered) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "error sending confirmation") ||
		strings.Contains(msg, "confirmation email")
}

// IsDuplicateEmailError checks for the provider's duplicate-registration
// error shapes.
func IsDuplicateEmailError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrEmailTaken) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already registered") ||
		strings.Contains(msg, "already exists")
}

// NormalizeProviderError converts whatever shape the identity provider
// returned into one explicit rich error before it enters the session store.
func NormalizeProviderError(err error) *errors.Error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}

	switch {
	case IsDuplicateEmailError(err):
		return wrapAs(err, ErrEmailTaken)
	case IsEmailDeliveryError(err):
		return wrapAs(err, ErrConfirmationEmailUndelivered)
	default:
		return errors.Wrap(err, errors.CategoryAuth, err.Error()).
			WithCode(errors.CodeUnauthorized)
	}
}

func wrapAs(err error, template *errors.Error) *errors.Error {
	clone := template.Clone()
	if clone == nil {
		return template
	}
	clone.Source = err
	return clone
}
