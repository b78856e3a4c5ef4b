package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("list flows: %w", Upstream("llm call failed", cause))

	assert.Equal(t, UpstreamError, KindOf(err))
	assert.True(t, Is(err, UpstreamError))
	assert.False(t, Is(err, Offline))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{InvalidInput, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{RateLimited, http.StatusTooManyRequests},
		{UpstreamError, http.StatusInternalServerError},
		{ProcessingFailed, http.StatusInternalServerError},
		{Offline, http.StatusServiceUnavailable},
		{Kind("weird"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}

func TestFailureRoundTrip(t *testing.T) {
	f := ToFailure(Processing("unusable theming response", errors.New("eof")).WithDetail("missing", 2))
	assert.False(t, f.Success)
	assert.Equal(t, ProcessingFailed, f.Code)
	assert.Equal(t, 2, f.Details["missing"])

	back := FromFailure(f)
	assert.Equal(t, ProcessingFailed, back.Kind)
	assert.Equal(t, "unusable theming response", back.Message)

	hidden := ToFailure(errors.New("pq: password authentication failed"))
	assert.Equal(t, Internal, hidden.Code)
	assert.Equal(t, "internal error", hidden.Message)

	assert.Equal(t, Internal, ParseKind("SOMETHING_NEW"))
}
