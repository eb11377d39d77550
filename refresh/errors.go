package refresh

import "errors"

var (
	// ErrRefreshFailed matches every error produced by a failed refresh cycle.
	ErrRefreshFailed = errors.New("refresh: token refresh failed")
	// ErrNoRefreshToken is the cause when the session holds no refresh token.
	ErrNoRefreshToken = errors.New("refresh: no refresh token")
	// ErrEmptyAccessToken is the cause when the backend answers without an access token.
	ErrEmptyAccessToken = errors.New("refresh: backend returned empty access token")
)

// Error is delivered to the leader and every waiter of a failed cycle.
// errors.Is(err, ErrRefreshFailed) holds for every *Error.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return ErrRefreshFailed.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	return []error{ErrRefreshFailed, e.Err}
}
