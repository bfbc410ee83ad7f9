package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromClassifiesUncodedErrorsAsInternal(t *testing.T) {
	cause := errors.New("pq: connection refused")

	err := From(cause)
	assert.Equal(t, CodeInternal, err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, InternalMessage, PublicMessage(cause))
	assert.Nil(t, From(nil))
}

func TestCodedErrorsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("remove member: %w", Authorization("Cannot remove group creator"))

	assert.Equal(t, CodeAuthorization, CodeOf(err))
	assert.Equal(t, "Cannot remove group creator", PublicMessage(err))
	assert.ErrorIs(t, err, ErrAuthorization)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestInternalHidesCause(t *testing.T) {
	err := Internal("save group", errors.New("disk full"))

	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, InternalMessage, PublicMessage(err))
}

func TestCodeMappings(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeAuthentication, http.StatusUnauthorized},
		{CodeValidation, http.StatusBadRequest},
		{CodeAuthorization, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.code.HTTPStatus())
		})
	}
}
