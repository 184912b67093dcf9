package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token kinds embedded in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims is the claim set embedded in every signed token. The unique
// token ID lives in the registered "jti" claim, the subject in "sub".
type TokenClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login: one access token, one
// refresh token, plus the expiry metadata clients need.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // access token lifetime in seconds
}

// Verification is the result of a successful access-token check.
type Verification struct {
	SubjectID string
	TokenID   string
}
