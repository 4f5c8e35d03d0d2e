package types

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("x: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", ErrForbidden), http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{&FieldErrors{Errors: []string{"x must be number"}}, http.StatusBadRequest},
		{ErrConflict, http.StatusConflict},
		{ErrUnavailable, http.StatusServiceUnavailable},
		{&CustomError{Code: http.StatusTeapot, Message: "tea"}, http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
		{Maintenance("rename", os.ErrPermission), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), "%v", tc.err)
	}
}

func TestPublicMessageHidesPaths(t *testing.T) {
	err := Maintenance("rename", &os.PathError{Op: "rename", Path: "/data/database/jobs.db", Err: os.ErrPermission})
	assert.Equal(t, "Maintenance operation failed", PublicMessage(err))
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("open /secret: denied")))

	notFound := fmt.Errorf("backup version %q: %w", "DB_v009", ErrNotFound)
	assert.Equal(t, notFound.Error(), PublicMessage(notFound))
}

func TestMaintenancePassesKindsThrough(t *testing.T) {
	assert.Nil(t, Maintenance("prune", nil))

	kind := fmt.Errorf("x: %w", ErrValidation)
	assert.Same(t, kind, Maintenance("import", kind))

	inner := Maintenance("stage", errors.New("disk full"))
	assert.Same(t, inner, Maintenance("snapshot", inner))

	var me *MaintenanceError
	assert.True(t, errors.As(inner, &me))
	assert.Equal(t, "stage", me.Op)
}

func TestFieldErrorsIsValidation(t *testing.T) {
	err := &FieldErrors{Errors: []string{"name is required", "shift must be day or night"}}
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "name is required; shift must be day or night")
}
