package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := NotFound("listing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))

	wrapped := fmt.Errorf("complete: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrNotFound:                http.StatusNotFound,
		ErrForbidden:               http.StatusForbidden,
		ErrDuplicateIdentity:       http.StatusConflict,
		ErrInvalidCredential:       http.StatusUnauthorized,
		ErrInsufficientBalance:     http.StatusBadRequest,
		ErrInvalidVerificationCode: http.StatusOK,
		ErrMissingSettlement:       http.StatusBadRequest,
		errors.New("boom"):         http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeInternal, "journal write failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}
