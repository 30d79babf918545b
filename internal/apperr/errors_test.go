package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:      http.StatusBadRequest,
		KindConflict:        http.StatusBadRequest,
		KindUnauthenticated: http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindQuotaExceeded:   http.StatusForbidden,
		KindNotFound:        http.StatusNotFound,
		KindRateLimited:     http.StatusTooManyRequests,
		KindConnection:      http.StatusInternalServerError,
		KindStore:           http.StatusInternalServerError,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), kind.String())
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("listing collections: %w", NotFound("Collection '%s' does not exist", "orders"))

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsKind(err, KindNotFound))
	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound}))
	assert.False(t, errors.Is(err, &Error{Kind: KindConflict}))

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "Collection 'orders' does not exist", e.Message)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, IsKind(nil, KindInternal))
}

func TestCauseIsUnwrapped(t *testing.T) {
	cause := errors.New("server selection timeout")
	err := Connection(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Failed to connect to the database.: server selection timeout", err.Error())
	assert.Equal(t, "CONNECTION_ERROR", err.Kind.String())
}
