package client

import (
	"errors"
	"fmt"
)

// ErrUnauthorized matches every *UnauthorizedError.
var ErrUnauthorized = errors.New("client: unauthorized")

// UnauthorizedError is returned when a request is still rejected with 401
// after its one refresh-and-replay.
type UnauthorizedError struct {
	Method string
	URL    string
	Detail string
}

func (e *UnauthorizedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("client: unauthorized: %s %s: %s", e.Method, e.URL, e.Detail)
	}
	return fmt.Sprintf("client: unauthorized: %s %s", e.Method, e.URL)
}

func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

// IsUnauthorized reports whether err is (or wraps) an *UnauthorizedError.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
