package refresh

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"golang.org/x/oauth2"
)

// tokenSource exposes the coordinator as an oauth2.TokenSource.
type tokenSource struct {
	ctx  context.Context
	c    *Coordinator
	skew time.Duration
}

// TokenSource returns an oauth2.TokenSource that serves the session's
// current access token and refreshes through the coordinator when the
// token is missing or expires within skew.
func (c *Coordinator) TokenSource(ctx context.Context, skew time.Duration) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, c: c, skew: skew}
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	access := ts.c.provider.AccessToken()
	if access != "" && !expiresWithin(access, ts.skew) {
		return bearer(access), nil
	}
	access, err := ts.c.EnsureValidToken(ts.ctx)
	if err != nil {
		return nil, err
	}
	return bearer(access), nil
}

func bearer(access string) *oauth2.Token {
	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if exp, err := jwt.ExpiresAt(access); err == nil {
		tok.Expiry = exp
	}
	return tok
}

// expiresWithin reports whether a JWT access token expires within skew.
// Opaque tokens are never considered expiring.
func expiresWithin(access string, skew time.Duration) bool {
	if skew <= 0 {
		return false
	}
	exp, err := jwt.ExpiresAt(access)
	if err != nil {
		return false
	}
	return time.Until(exp) <= skew
}
