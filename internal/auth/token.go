package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	widget_errors "sentinal-widget/pkg/errors"
)

// SessionToken is the widget session JWT handed to the embed script.
// The widget never verifies the signature (issuance and verification
// are server concerns); it only inspects claims so it can refuse to
// open a channel with a token that is already expired.
type SessionToken struct {
	Raw       string
	Subject   string
	TenantID  string
	ExpiresAt time.Time
}

type sessionClaims struct {
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// Inspect decodes the token claims without signature verification.
func Inspect(raw string) (SessionToken, error) {
	claims := &sessionClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return SessionToken{}, err
	}
	tok := SessionToken{
		Raw:      raw,
		Subject:  claims.Subject,
		TenantID: claims.TenantID,
	}
	if claims.ExpiresAt != nil {
		tok.ExpiresAt = claims.ExpiresAt.Time
	}
	return tok, nil
}

// Validate returns ErrTokenExpired when the token carries an expiry in
// the past. Tokens without an exp claim pass.
func (t SessionToken) Validate(now time.Time) error {
	if !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt) {
		return widget_errors.ErrTokenExpired
	}
	return nil
}
