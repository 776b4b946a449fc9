package ngenic

import (
	"errors"

	"golang.org/x/oauth2"
)

// ErrUnauthorized is returned when the API rejects the token
var ErrUnauthorized = errors.New("unauthorized")

// TokenSource wraps a Tune API token. Tokens are issued in the Ngenic app and
// do not expire, so there is nothing to refresh.
func TokenSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	})
}
