package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a caller-facing failure: an HTTP status, a stable machine code and the cause.
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
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func BadRequest(code string, err error) *Error    { return New(http.StatusBadRequest, code, err) }
func NotFound(code string, err error) *Error      { return New(http.StatusNotFound, code, err) }
func Conflict(code string, err error) *Error      { return New(http.StatusConflict, code, err) }
func Unprocessable(code string, err error) *Error { return New(http.StatusUnprocessableEntity, code, err) }
func BadGateway(code string, err error) *Error    { return New(http.StatusBadGateway, code, err) }

// From finds an Error with a status anywhere in err's chain.
func From(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil && ae.Status != 0 {
		return ae, true
	}
	return nil, false
}
