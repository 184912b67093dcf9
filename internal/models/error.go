package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential errors. ErrInvalidCredentials covers both unknown email and
	// wrong password so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many failed attempts")

	// Token errors. Callers must be able to tell "expired, refresh" apart
	// from "forged, reject outright".
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
	ErrWrongTokenType = errors.New("wrong token type")
	ErrRevokedToken   = errors.New("token revoked")

	// ErrStoreUnavailable marks credential store failures. Never conflated
	// with ErrInvalidCredentials.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// RateLimitedError carries the machine-readable retry time for a lockout.
// It unwraps to ErrRateLimited so callers can match with errors.Is.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many failed attempts, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// NewRateLimitedError builds a RateLimitedError with a floor of one second so
// clients never receive a zero or negative Retry-After.
func NewRateLimitedError(retryAfter time.Duration) *RateLimitedError {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return &RateLimitedError{RetryAfter: retryAfter}
}
