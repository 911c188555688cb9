package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/pscheid92/fanpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name   string
		err    *Error
		typ    ErrorType
		status int
	}{
		{"validation", ValidationError("bad"), TypeValidation, http.StatusBadRequest},
		{"unauthorized", UnauthorizedError("who"), TypeUnauthorized, http.StatusUnauthorized},
		{"not found", NotFoundError("gone"), TypeNotFound, http.StatusNotFound},
		{"conflict", ConflictError("full"), TypeConflict, http.StatusConflict},
		{"unavailable", UnavailableError("retry", cause), TypeUnavailable, http.StatusServiceUnavailable},
		{"internal", InternalError("oops", cause), TypeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
			assert.NotNil(t, tt.err.Context)
			assert.Contains(t, tt.err.Error(), string(tt.typ))
		})
	}
}

func TestError_UnwrapAndWithContext(t *testing.T) {
	cause := errors.New("connection refused")
	err := InternalError("failed", cause).WithContext("event", "match/42")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "match/42", err.Context["event"])
	assert.Contains(t, err.Error(), "connection refused")
}

func TestToResponse(t *testing.T) {
	resp := UnavailableError("please retry", errors.New("db down")).ToResponse()
	assert.Equal(t, "please retry", resp.Error)
	assert.Equal(t, TypeUnavailable, resp.Type)
	assert.True(t, resp.Retryable)

	resp = ValidationError("bad").ToResponse()
	assert.False(t, resp.Retryable)
}

func TestFromDomain(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		typ     ErrorType
		message string
	}{
		{"empty body", fmt.Errorf("%w", domain.ErrEmptyBody), TypeValidation, "message body is empty"},
		{"too long", fmt.Errorf("%w: 1001 > 1000", domain.ErrBodyTooLong), TypeValidation, "message body exceeds maximum length"},
		{"bad kind", fmt.Errorf("%w: %q", domain.ErrInvalidEventKind, "cricket"), TypeValidation, "invalid event kind"},
		{"event", fmt.Errorf("%w: match/1", domain.ErrEventNotFound), TypeNotFound, "event not found"},
		{"comment", fmt.Errorf("%w: c1", domain.ErrCommentNotFound), TypeNotFound, "comment not found"},
		{"reply", fmt.Errorf("%w: r1", domain.ErrReplyNotFound), TypeNotFound, "reply not found"},
		{"forum", fmt.Errorf("%w: 9", domain.ErrForumNotFound), TypeNotFound, "forum not found"},
		{"room full", fmt.Errorf("%w: live-match-1", domain.ErrRoomFull), TypeConflict, "room is full"},
		{"persistence", fmt.Errorf("%w: add_comment: %w", domain.ErrPersistence, errors.New("timeout")), TypeUnavailable, "the change could not be saved, please retry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromDomain(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.typ, got.Type)
			assert.Equal(t, tt.message, got.Message)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.Nil(t, FromDomain(errors.New("unrelated")))
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	existing := ConflictError("already")
	assert.Same(t, existing, AsStructuredError(fmt.Errorf("wrapped: %w", existing)))

	classified := AsStructuredError(fmt.Errorf("lookup: %w", domain.ErrCommentNotFound))
	assert.Equal(t, TypeNotFound, classified.Type)

	plain := errors.New("boom")
	internal := AsStructuredError(plain)
	assert.Equal(t, TypeInternal, internal.Type)
	assert.Equal(t, "internal server error", internal.Message)
	assert.ErrorIs(t, internal, plain)
}
