package apierr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/marr05/RAG-TO-AWS/internal/pkg/errors"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// From maps any error onto the HTTP status and code the API exposes for it.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, pkgerrors.ErrValidation):
		return New(http.StatusBadRequest, "validation_error", err)
	case errors.Is(err, pkgerrors.ErrNotFound):
		return New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, pkgerrors.ErrDispatchFailure):
		return New(http.StatusServiceUnavailable, "dispatch_failure", err)
	case errors.Is(err, pkgerrors.ErrRetrievalUnavailable):
		return New(http.StatusServiceUnavailable, "retrieval_unavailable", err)
	case errors.Is(err, pkgerrors.ErrGenerationUnavailable):
		return New(http.StatusBadGateway, "generation_unavailable", err)
	case errors.Is(err, pkgerrors.ErrPersistence):
		return New(http.StatusInternalServerError, "persistence_error", err)
	default:
		return New(http.StatusInternalServerError, "internal_error", err)
	}
}
