// Package apperr defines the error taxonomy shared by the marketplace stores,
// the ledger and the session facade.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed input. The wrapped message is safe to show to callers.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a referenced entity id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAuth is returned when no user matches the supplied credentials.
	ErrAuth = errors.New("invalid credentials")

	// ErrNotVerified is returned when credentials match an account that has not been verified.
	ErrNotVerified = errors.New("account not verified")

	// ErrNoCurrentUser is returned by session-scoped operations when nobody is signed in.
	ErrNoCurrentUser = errors.New("no authenticated user")

	// ErrInvalidCode indicates a verification code mismatch.
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrAlreadyVerified is returned when verification is attempted on a verified account.
	ErrAlreadyVerified = errors.New("account already verified")

	// ErrSelfPurchase is returned when a provider attempts to buy their own listing.
	ErrSelfPurchase = errors.New("cannot purchase own listing")

	// ErrNoBalance is returned by payouts when nothing is available.
	ErrNoBalance = errors.New("no available balance")

	// ErrAlreadySettled is returned when a one-time listing has already been sold.
	ErrAlreadySettled = errors.New("listing already settled")
)

// Validation builds an ErrValidation carrying a caller-facing message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the kind and id of the missing entity.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// HTTPStatus maps the taxonomy onto transport status codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAuth), errors.Is(err, ErrNoCurrentUser):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotVerified), errors.Is(err, ErrSelfPurchase):
		return http.StatusForbidden
	case errors.Is(err, ErrAlreadySettled), errors.Is(err, ErrAlreadyVerified):
		return http.StatusConflict
	case errors.Is(err, ErrNoBalance):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
