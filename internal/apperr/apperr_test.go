package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf_TypedError_ReturnsCode(t *testing.T) {
	err := New(NotFound, "chat not found")

	assert.Equal(t, NotFound, CodeOf(err))
}

func TestCodeOf_WrappedTypedError_ReturnsCode(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(Forbidden, "not a participant"))

	assert.Equal(t, Forbidden, CodeOf(err))
}

func TestCodeOf_PlainError_DefaultsToInternal(t *testing.T) {
	assert.Equal(t, Internal, CodeOf(errors.New("disk on fire")))
}

func TestMessageOf_InternalError_Masked(t *testing.T) {
	assert.Equal(t, "something went wrong", MessageOf(errors.New("badger: file corrupt at /var/data")))
	assert.Equal(t, "something went wrong", MessageOf(Wrap(Internal, "save failed", errors.New("io"))))
}

func TestMessageOf_TaxonomyError_ReturnsMessage(t *testing.T) {
	assert.Equal(t, "login already taken", MessageOf(New(Conflict, "login already taken")))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(NotFound, "user not found", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, NotFound, CodeOf(err))
}

func TestHTTPStatus_Mapping(t *testing.T) {
	cases := map[Code]int{
		InvalidArgument: http.StatusBadRequest,
		Unauthorized:    http.StatusUnauthorized,
		Forbidden:       http.StatusForbidden,
		NotFound:        http.StatusNotFound,
		Conflict:        http.StatusConflict,
		TooLarge:        http.StatusRequestEntityTooLarge,
		Internal:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(New(code, "x")), "code %s", code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}
