package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAuthExpired is returned when a request cannot be authenticated even after
// one token refresh. The session has been terminated by then.
var ErrAuthExpired = errors.New("authentication expired")

// NetworkError is a transport failure: the request never produced a response.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	switch {
	case errors.Is(e.Err, context.Canceled):
		return fmt.Sprintf("%s %s: request canceled", e.Method, e.Path)
	case errors.Is(e.Err, context.DeadlineExceeded):
		return fmt.Sprintf("%s %s: request timed out", e.Method, e.Path)
	}
	return fmt.Sprintf("%s %s: cannot connect to backend: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is a non-success response other than 401 and 423.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: backend returned status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: backend returned status %d: %s", e.Method, e.Path, e.Code, e.Message)
}

// LockedError is a 423 response: someone else holds the item lock.
type LockedError struct {
	Path     string
	LockedBy string
	LockedAt *time.Time
	Message  string
}

func (e *LockedError) Error() string {
	if e.LockedBy == "" {
		return fmt.Sprintf("%s: resource locked", e.Path)
	}
	return fmt.Sprintf("%s: locked by %s", e.Path, e.LockedBy)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
