package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[error]int{
		Unauthenticated("no token"):             http.StatusUnauthorized,
		PermissionDenied("not yours"):           http.StatusForbidden,
		InvalidArgument("missing field"):        http.StatusBadRequest,
		NotFound("no user"):                     http.StatusNotFound,
		FailedPrecondition("not active"):        http.StatusPreconditionFailed,
		Internal("boom", errors.New("db down")): http.StatusInternalServerError,
		errors.New("plain"):                     http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("cancel: %w", FailedPrecondition("subscription is not active"))

	assert.Equal(t, CodeFailedPrecondition, CodeOf(err))
	assert.True(t, errors.Is(err, FailedPrecondition("")))
	assert.False(t, errors.Is(err, NotFound("")))
	assert.Equal(t, "subscription is not active", Message(err))
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Internal("failed to load subscription", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to load subscription", Message(err))
	assert.Equal(t, "internal error", Message(cause))
}
