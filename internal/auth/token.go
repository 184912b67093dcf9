package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/storelane/authd/internal/models"
)

// Codec signs and parses compact claim sets. Tokens are self-contained: no
// external lookup is needed to check signature or expiry.
type Codec struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	leeway        time.Duration
	now           func() time.Time
}

// NewCodec creates a Codec. leeway absorbs clock skew between signer and
// verifier on expiry checks.
func NewCodec(secret string, accessExpiry, refreshExpiry, leeway time.Duration) *Codec {
	return &Codec{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		leeway:        leeway,
		now:           time.Now,
	}
}

// SetClock overrides the time source. Test use only.
func (c *Codec) SetClock(now func() time.Time) {
	c.now = now
}

// AccessExpiry returns the configured access token lifetime.
func (c *Codec) AccessExpiry() time.Duration {
	return c.accessExpiry
}

// IssueAccess signs a short-lived access token for the subject.
func (c *Codec) IssueAccess(subjectID string) (string, error) {
	return c.issue(models.TokenTypeAccess, subjectID, c.accessExpiry)
}

// IssueRefresh signs a long-lived refresh token for the subject.
func (c *Codec) IssueRefresh(subjectID string) (string, error) {
	return c.issue(models.TokenTypeRefresh, subjectID, c.refreshExpiry)
}

func (c *Codec) issue(tokenType, subjectID string, expiry time.Duration) (string, error) {
	if subjectID == "" {
		return "", fmt.Errorf("subject id is required")
	}

	now := c.now()
	claims := &models.TokenClaims{
		Type: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return signed, nil
}

// Parse verifies a token and returns its claims. Failures come back as one of
// models.ErrMalformedToken, models.ErrBadSignature or models.ErrTokenExpired.
// On ErrTokenExpired the decoded claims are returned alongside the error: the
// signature checked out, so callers like logout can still read the token ID.
func (c *Codec) Parse(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, models.ErrBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return claims, models.ErrTokenExpired
		default:
			return nil, models.ErrMalformedToken
		}
	}

	if claims.Type == "" || claims.ID == "" || claims.Subject == "" {
		return nil, models.ErrMalformedToken
	}

	return claims, nil
}
