package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_StatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NewNotFound("report type", nil), http.StatusNotFound},
		{NewBadRequest("subject is required", nil), http.StatusBadRequest},
		{Unauthorized(nil), http.StatusUnauthorized},
		{&AppError{Code: ErrForbidden}, http.StatusForbidden},
		{NewInternal(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.StatusCode(), tt.err.Error())
	}
}

func TestAs_FindsWrappedAppError(t *testing.T) {
	cause := errors.New("layout exploded")
	err := fmt.Errorf("generate: %w", NewInternal(cause))

	appErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "internal server error", appErr.Message)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsBadRequest(err))

	_, ok = As(cause)
	assert.False(t, ok)
}

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "report type not found", NewNotFound("report type", nil).Error())
	assert.Equal(t, "bad input: json: eof", BadRequest("bad input", errors.New("json: eof")).Error())
	assert.True(t, IsBadRequest(BadRequest("x", nil)))
}
