package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/storelane/authd/internal/models"
	pkglogger "github.com/storelane/authd/pkg/logger"
)

// UserRepository is the credential store boundary. The core assumes nothing
// about the engine behind it.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	RecordFailure(ctx context.Context, id string, lockedUntil *time.Time) error
	RecordSuccess(ctx context.Context, id string) error
}

// TokenCodec signs and parses claim sets.
type TokenCodec interface {
	IssueAccess(subjectID string) (string, error)
	IssueRefresh(subjectID string) (string, error)
	Parse(token string) (*models.TokenClaims, error)
	AccessExpiry() time.Duration
}

// PasswordHasher verifies plaintext against stored digests.
type PasswordHasher interface {
	Verify(password, digest string) bool
}

// AttemptLimiter is the per-identity failed-attempt tracker.
type AttemptLimiter interface {
	Check(key string) (allowed bool, retryAfter time.Duration)
	RecordFailure(key string) (locked bool, retryAfter time.Duration)
	RecordSuccess(key string)
}

// RevocationRegistry tracks explicitly revoked token IDs.
type RevocationRegistry interface {
	Revoke(tokenID string, expiresAt time.Time)
	IsRevoked(tokenID string) bool
}

// SessionService composes hasher, codec, limiter, registry and credential
// store into the four public operations. Session state is entirely
// reconstructed from presented tokens; nothing here outlives the process
// except the identity record's counters.
type SessionService struct {
	users    UserRepository
	hasher   PasswordHasher
	codec    TokenCodec
	limiter  AttemptLimiter
	registry RevocationRegistry
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
	now      func() time.Time
}

// NewSessionService creates a SessionService.
func NewSessionService(
	users UserRepository,
	hasher PasswordHasher,
	codec TokenCodec,
	limiter AttemptLimiter,
	registry RevocationRegistry,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *SessionService {
	return &SessionService{
		users:    users,
		hasher:   hasher,
		codec:    codec,
		limiter:  limiter,
		registry: registry,
		logger:   logger,
		audit:    audit,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test use only.
func (s *SessionService) SetClock(now func() time.Time) {
	s.now = now
}

// Login authenticates a credential pair and issues a token pair. The limiter
// is consulted before any credential store or hashing work, so a locked-out
// caller costs nothing but a map lookup.
func (s *SessionService) Login(ctx context.Context, email, password, ipAddress string) (*models.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     ipAddress,
			FailureReason: "invalid_credentials",
		})
		return nil, models.ErrInvalidCredentials
	}

	if allowed, retryAfter := s.limiter.Check(email); !allowed {
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_blocked",
			IPAddress:     ipAddress,
			FailureReason: "rate_limited",
			RetryAfter:    retryAfter,
		})
		return nil, models.NewRateLimitedError(retryAfter)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Identical outcome to a wrong password so the response
			// never reveals whether the email exists.
			s.recordFailure(ctx, email, ipAddress, nil)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrStoreUnavailable
	}

	// Honor a lockout persisted on the record (e.g. set before a restart),
	// still ahead of any bcrypt work.
	if user.Locked(s.now()) {
		retryAfter := user.LockedUntil.Sub(s.now())
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_blocked",
			SubjectID:     user.ID,
			IPAddress:     ipAddress,
			FailureReason: "rate_limited",
			RetryAfter:    retryAfter,
		})
		return nil, models.NewRateLimitedError(retryAfter)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.recordFailure(ctx, email, ipAddress, user)
		return nil, models.ErrInvalidCredentials
	}

	s.limiter.RecordSuccess(email)
	if err := s.users.RecordSuccess(ctx, user.ID); err != nil {
		// Counter reset is best-effort; the login itself already succeeded.
		s.logger.Error("failed to reset failure counters",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	accessToken, err := s.codec.IssueAccess(user.ID)
	if err != nil {
		s.logger.Error("failed to issue access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.codec.IssueRefresh(user.ID)
	if err != nil {
		s.logger.Error("failed to issue refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		SubjectID: user.ID,
		IPAddress: ipAddress,
		Success:   true,
	})

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.codec.AccessExpiry().Seconds()),
	}, nil
}

// recordFailure counts a failed attempt against the limiter and, when the
// identity exists, mirrors the counter into the credential store.
func (s *SessionService) recordFailure(ctx context.Context, email, ipAddress string, user *models.User) {
	locked, retryAfter := s.limiter.RecordFailure(email)
	if locked {
		s.audit.LogLockout(pkglogger.SanitizedEmail(email), retryAfter)
	}

	if user != nil {
		var lockedUntil *time.Time
		if locked {
			until := s.now().Add(retryAfter)
			lockedUntil = &until
		}
		if err := s.users.RecordFailure(ctx, user.ID, lockedUntil); err != nil {
			s.logger.Error("failed to persist failure counter",
				slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		IPAddress:     ipAddress,
		FailureReason: "invalid_credentials",
	})
}

// Verify checks an access token and returns the subject it vouches for.
// Expired tokens fail with ErrTokenExpired, distinguishable from forged or
// malformed ones, so clients know to refresh instead of re-login.
func (s *SessionService) Verify(ctx context.Context, accessToken string) (*models.Verification, error) {
	claims, err := s.codec.Parse(accessToken)
	if err != nil {
		s.logger.Info("access token rejected", slog.Any("error", err))
		return nil, err
	}

	if claims.Type != models.TokenTypeAccess {
		s.logger.Info("verify attempt with non-access token", slog.String("type", claims.Type))
		return nil, models.ErrWrongTokenType
	}

	if s.registry.IsRevoked(claims.ID) {
		s.logger.Info("revoked access token presented", slog.String("token_id", claims.ID))
		return nil, models.ErrRevokedToken
	}

	return &models.Verification{
		SubjectID: claims.Subject,
		TokenID:   claims.ID,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated; it stays usable until its own expiry
// or an explicit logout.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.codec.Parse(refreshToken)
	if err != nil {
		s.logger.Info("refresh token rejected", slog.Any("error", err))
		if errors.Is(err, models.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, err
	}

	if claims.Type != models.TokenTypeRefresh {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("type", claims.Type))
		return nil, models.ErrWrongTokenType
	}

	if s.registry.IsRevoked(claims.ID) {
		s.logger.Info("revoked refresh token presented", slog.String("token_id", claims.ID))
		return nil, models.ErrRevokedToken
	}

	accessToken, err := s.codec.IssueAccess(claims.Subject)
	if err != nil {
		s.logger.Error("failed to issue access token", slog.String("user_id", claims.Subject), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "token_refreshed",
		SubjectID: claims.Subject,
		TokenID:   claims.ID,
		Success:   true,
	})

	return &models.TokenPair{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.codec.AccessExpiry().Seconds()),
	}, nil
}

// Logout revokes a refresh token. It is deliberately tolerant: a client
// cleaning up should never see a hard failure, and the response leaks
// nothing about the token's validity. Calling it twice is a no-op.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) {
	claims, err := s.codec.Parse(refreshToken)
	if err != nil && !errors.Is(err, models.ErrTokenExpired) {
		// Forged or unreadable: nothing to revoke.
		s.logger.Info("logout with unparseable token", slog.Any("error", err))
		return
	}

	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return
	}

	s.registry.Revoke(claims.ID, claims.ExpiresAt.Time)

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "logout",
		SubjectID: claims.Subject,
		TokenID:   claims.ID,
		Success:   true,
	})
}
