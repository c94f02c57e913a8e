package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestToDomainError(t *testing.T) {
	tests := map[string]struct {
		err      error
		wantCode string
		wantHTTP int
	}{
		"domain error passes through": {
			err:      NewValidationError("bad status", nil),
			wantCode: CodeValidation,
			wantHTTP: http.StatusBadRequest,
		},
		"wrapped domain error is unwrapped": {
			err:      fmt.Errorf("transition: %w", NewConflict("flag set", nil)),
			wantCode: CodeConflict,
			wantHTTP: http.StatusConflict,
		},
		"no rows maps to not found": {
			err:      fmt.Errorf("get complaint: %w", pgx.ErrNoRows),
			wantCode: CodeNotFound,
			wantHTTP: http.StatusNotFound,
		},
		"anything else is internal": {
			err:      errors.New("boom"),
			wantCode: CodeInternal,
			wantHTTP: http.StatusInternalServerError,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := ToDomainError(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantHTTP, got.HTTPStatus)
		})
	}
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFound("complaint", nil)))
	assert.True(t, IsNotFound(pgx.ErrNoRows))
	assert.True(t, IsConflict(fmt.Errorf("x: %w", NewConflict("c", nil))))
	assert.True(t, IsValidation(NewValidationError("v", nil)))
	assert.False(t, IsConflict(errors.New("plain")))
	assert.Nil(t, MapError(nil))
}
