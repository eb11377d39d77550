package goSession

import (
	"context"

	"github.com/MrEthical07/goSession/session"
)

// Navigator performs the redirect to the sign-in screen after a session
// ends. It is called once per terminated session, from the goroutine that
// ended it, and must not call back into the Manager synchronously.
type Navigator interface {
	RedirectToLogin(reason session.ClearReason)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(reason session.ClearReason)

func (f NavigatorFunc) RedirectToLogin(reason session.ClearReason) { f(reason) }

// Preferences loads per-user settings when a session starts and resets
// them when it ends. Failures are logged and counted only.
type Preferences interface {
	Load(ctx context.Context, userID string) error
	Reset(ctx context.Context) error
}

type noNavigator struct{}

func (noNavigator) RedirectToLogin(session.ClearReason) {}

type noPreferences struct{}

func (noPreferences) Load(context.Context, string) error { return nil }
func (noPreferences) Reset(context.Context) error        { return nil }
