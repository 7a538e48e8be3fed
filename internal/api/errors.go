package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/feed"
	"github.com/Vanequal/ideafeed/internal/view"
)

// Error codes of the response envelope. The first three digits are the HTTP
// status.
const (
	CodeBadRequest      = 40000
	CodeEmptySubmit     = 40001
	CodeInvalidRequest  = 40002
	CodeUnknownSection  = 40003
	CodeUnauthorized    = 40100
	CodeNotFound        = 40400
	CodeReactionBusy    = 40900
	CodeTooManyRequests = 42900
	CodeInternal        = 50000
	CodeBadGateway      = 50200
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// Status returns the HTTP status the code belongs to
func (e *Error) Status() int {
	return e.Code / 100
}

// errorFor maps a service error onto the envelope
func errorFor(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, feed.ErrEmptySubmission):
		return NewError(CodeEmptySubmit, err.Error())
	case errors.As(err, &verrs):
		return NewError(CodeInvalidRequest, err.Error())
	case errors.Is(err, view.ErrReactionPending):
		return NewError(CodeReactionBusy, err.Error())
	case errors.Is(err, backend.ErrNoToken):
		return NewError(CodeUnauthorized, err.Error())
	case errors.Is(err, backend.ErrTransport):
		return NewError(CodeBadGateway, err.Error())
	}

	var be *backend.Error
	if errors.As(err, &be) {
		switch {
		case be.Status == http.StatusUnauthorized:
			return NewError(CodeUnauthorized, be.Message)
		case be.Status >= 500:
			return NewError(CodeBadGateway, be.Message)
		case be.Status >= 400:
			return NewError(be.Status*100, be.Message)
		}
	}
	return NewError(CodeInternal, err.Error())
}
