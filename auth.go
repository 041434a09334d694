package influxline

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultTokenLifetime bounds per-request shared-secret tokens. The token
// only needs to outlive the exchange it authenticates.
const defaultTokenLifetime = time.Minute

// bearerClaims carries the username claim the v1 API expects alongside the
// registered expiry.
type bearerClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// SignBearerToken creates a signed JWT for the v1 API's shared-secret
// authentication. The server validates the signature against the
// shared-secret value in its [http] configuration section and requires the
// username and expiry claims.
//
// A lifetime of zero or less uses the one-minute default.
func SignBearerToken(secret, username string, lifetime time.Duration) (string, error) {
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}

	now := time.Now()
	claims := bearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("influxline: signing bearer token: %w", err)
	}
	return signed, nil
}

// setBearer attaches bearer credentials to a request. A shared secret mints
// a fresh token per request; otherwise a configured static token is sent
// as-is.
func (c *Client) setBearer(req *http.Request) error {
	switch {
	case c.secret != "":
		token, err := SignBearerToken(c.secret, c.username, defaultTokenLifetime)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	case c.bearer != "":
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	return nil
}
