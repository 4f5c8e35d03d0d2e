package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error kinds shared by the storage, maintenance and auth layers.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("access denied")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("temporarily unavailable")
)

type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}

// FieldErrors lists every rule a submitted record broke.
type FieldErrors struct {
	Errors []string
}

func (e *FieldErrors) Error() string {
	return fmt.Sprintf("invalid input: %s", strings.Join(e.Errors, "; "))
}

func (e *FieldErrors) Unwrap() error {
	return ErrValidation
}

// MaintenanceError wraps a filesystem failure in the middle of a backup,
// restore, import or reset sequence. Op names the step that failed.
type MaintenanceError struct {
	Op  string
	Err error
}

func (e *MaintenanceError) Error() string {
	return fmt.Sprintf("maintenance %s: %v", e.Op, e.Err)
}

func (e *MaintenanceError) Unwrap() error {
	return e.Err
}

// Maintenance wraps err as a MaintenanceError for op. Nil, errors that are
// already MaintenanceErrors and errors of a known kind pass through as is.
func Maintenance(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *MaintenanceError
	if errors.As(err, &me) || isKind(err) {
		return err
	}
	return &MaintenanceError{Op: op, Err: err}
}

func isKind(err error) bool {
	for _, kind := range []error{ErrNotFound, ErrForbidden, ErrUnauthorized, ErrValidation, ErrConflict, ErrUnavailable} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// StatusFor maps an error kind to the HTTP status a caller should see.
func StatusFor(err error) int {
	var ce *CustomError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ce):
		return ce.Code
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// PublicMessage returns a message safe to send to a client. Maintenance
// failures and unknown errors are reduced to a generic sentence so that
// filesystem paths never leave the server.
func PublicMessage(err error) string {
	var me *MaintenanceError
	if errors.As(err, &me) {
		return "Maintenance operation failed"
	}
	if StatusFor(err) == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}
