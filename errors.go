package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/client"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
)

var (
	// ErrInvalidCredentials is returned by Login and Register when the
	// backend rejects the submitted form (HTTP 400 or 401). The *api.Error
	// is wrapped alongside it.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrBackendUnavailable wraps transport failures and unexpected backend
	// statuses during Login and Register.
	ErrBackendUnavailable = errors.New("authentication backend unavailable")
	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrManagerClosed is returned by every operation after Close.
	ErrManagerClosed = errors.New("session manager closed")
	// ErrBuilderUsed is returned by a second Build on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrUnknownRoute is returned by GuardRoute for a name missing from
	// Config.Routes.
	ErrUnknownRoute = errors.New("unknown route")

	// ErrRefreshFailed reports that the session could not be renewed and
	// has been terminated.
	ErrRefreshFailed = refresh.ErrRefreshFailed
	// ErrUnauthorized reports a request still rejected after its single
	// refresh-and-replay.
	ErrUnauthorized = client.ErrUnauthorized
	// ErrPersist reports that the session changed in memory but could not
	// be written to storage.
	ErrPersist = session.ErrPersist
)
