package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationWrapsSentinel(t *testing.T) {
	err := Validation("title is required")
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "validation error: title is required", err.Error())
}

func TestNotFoundWrapsSentinel(t *testing.T) {
	err := NotFound("listing", "abc")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "listing abc")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"code", ErrInvalidCode, http.StatusBadRequest},
		{"not found", NotFound("user", "x"), http.StatusNotFound},
		{"auth", ErrAuth, http.StatusUnauthorized},
		{"no session", fmt.Errorf("publish: %w", ErrNoCurrentUser), http.StatusUnauthorized},
		{"not verified", ErrNotVerified, http.StatusForbidden},
		{"self purchase", ErrSelfPurchase, http.StatusForbidden},
		{"settled", ErrAlreadySettled, http.StatusConflict},
		{"verified", ErrAlreadyVerified, http.StatusConflict},
		{"no balance", ErrNoBalance, http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}
