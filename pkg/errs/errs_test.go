package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		assert.Equal(t, CodeNotParticipant, CodeOf(NotParticipant("nope")))
	})

	t.Run("wrapped chain", func(t *testing.T) {
		inner := StoreUnavailable("query failed", errors.New("timeout"))
		outer := fmt.Errorf("list conversations: %w", inner)
		assert.Equal(t, CodeStoreUnavailable, CodeOf(outer))
	})

	t.Run("foreign error", func(t *testing.T) {
		assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	})

	t.Run("nil", func(t *testing.T) {
		assert.Equal(t, CodeUnknown, CodeOf(nil))
	})
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := StoreUnavailable("get user", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{AuthenticationFailed("bad token"), http.StatusUnauthorized},
		{NotParticipant("not yours"), http.StatusForbidden},
		{InvalidConversation("unknown"), http.StatusNotFound},
		{NotFound("missing"), http.StatusNotFound},
		{InvalidArg("bad input"), http.StatusBadRequest},
		{New(CodeAlreadyExists, "dup"), http.StatusConflict},
		{UploadFailed("put", errors.New("eof")), http.StatusBadGateway},
		{StoreUnavailable("scylla", errors.New("down")), http.StatusServiceUnavailable},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), "error: %v", tc.err)
	}
}
