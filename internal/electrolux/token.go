package electrolux

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Token is the credential pair the client authenticates with.
// A zero Expiration means the expiry is unknown and no proactive refresh happens.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiration   time.Time
}

// Expired reports whether the expiration is known and has been reached.
func (t Token) Expired(now time.Time) bool {
	if t.Expiration.IsZero() {
		return false
	}
	return !now.Before(t.Expiration)
}

// setAuthHeader adds the bearer header when an access token is held.
func (t Token) setAuthHeader(req *http.Request) {
	if t.AccessToken == "" {
		return
	}
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiration,
	}
	tok.SetAuthHeader(req)
}

func (t Token) String() string {
	return fmt.Sprintf("access=%s refresh=%s expires=%s",
		fingerprint(t.AccessToken), fingerprint(t.RefreshToken), t.Expiration.Format(time.RFC3339))
}

func fingerprint(secret string) string {
	if secret == "" {
		return "<none>"
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:4])
}

var jwtAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.HS256, jose.HS384, jose.HS512,
	jose.EdDSA,
}

// TokenExpiryFromJWT reads the exp claim of an access token without
// verifying its signature. The vendor issues JWT access tokens but only
// reports expiresIn on refresh, so setup uses this to seed the expiration.
func TokenExpiryFromJWT(accessToken string) (time.Time, error) {
	parsed, err := jwt.ParseSigned(accessToken, jwtAlgorithms)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse access token")
	}
	var claims jwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return time.Time{}, errors.Wrap(err, "decode access token claims")
	}
	if claims.Expiry == nil {
		return time.Time{}, errors.New("access token has no exp claim")
	}
	return claims.Expiry.Time(), nil
}
