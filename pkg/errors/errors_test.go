package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := ErrNetwork("identity provider", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")

	var appErr *AppError
	require.True(t, stderrors.As(fmt.Errorf("wrapped: %w", err), &appErr))
	assert.Equal(t, KindTransient, appErr.Kind())
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain")))
	assert.False(t, IsTransient(fmt.Errorf("plain")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want int
	}{
		{"validation", Validation("bad_input", "bad"), http.StatusBadRequest},
		{"conflict", ErrActivationCodeClaimed(""), http.StatusConflict},
		{"transient", Transient("network", "down"), http.StatusServiceUnavailable},
		{"degraded", ErrRefreshTokenInvalid("identity"), http.StatusOK},
		{"storage", Storage("corrupt", "corrupt"), http.StatusInternalServerError},
		{"internal", Internal("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestErrRemoteStatus_Classification(t *testing.T) {
	assert.Equal(t, KindValidation, ErrRemoteStatus("svc", 400).Kind())
	assert.Equal(t, KindValidation, ErrRemoteStatus("svc", 404).Kind())
	assert.Equal(t, KindTransient, ErrRemoteStatus("svc", 429).Kind())
	assert.Equal(t, KindTransient, ErrRemoteStatus("svc", 500).Kind())
	assert.Equal(t, KindTransient, ErrRemoteStatus("svc", 503).Kind())
}

func TestErrActivationCodeClaimed_NamesTheMismatch(t *testing.T) {
	err := ErrActivationCodeClaimed("")
	assert.True(t, IsConflict(err))
	assert.Contains(t, err.Message(), "different account")

	hinted := ErrActivationCodeClaimed("a***@example.com")
	assert.Contains(t, hinted.Message(), "a***@example.com")
}

func TestErrStateMismatch_CarriesReasonInMetadata(t *testing.T) {
	err := ErrStateMismatch("state expired")
	assert.True(t, IsConflict(err))
	assert.Equal(t, "state expired", err.Metadata()["reason"])
	// The reason is operator detail; the user-facing message stays generic.
	assert.NotContains(t, err.Message(), "expired")
}
