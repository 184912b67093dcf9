package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/storelane/authd/internal/models"
	pkghttp "github.com/storelane/authd/pkg/http"
)

// SessionServiceInterface defines the interface for session business logic
type SessionServiceInterface interface {
	Login(ctx context.Context, email, password, ipAddress string) (*models.TokenPair, error)
	Verify(ctx context.Context, accessToken string) (*models.Verification, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  SessionServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service SessionServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// RefreshRequest represents the request body for token refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest represents the request body for logout
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Response DTOs

// TokenResponse represents an issued token pair. RefreshToken is omitted on
// refresh responses, where only a new access token is minted.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// VerifyResponse represents a successful access-token check
type VerifyResponse struct {
	Valid     bool   `json:"valid"`
	SubjectID string `json:"subject_id"`
	TokenID   string `json:"token_id"`
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} TokenResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Failure 503 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	pair, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress)
	if err != nil {
		var rateLimited *models.RateLimitedError
		switch {
		case errors.As(err, &rateLimited):
			pkghttp.WriteRateLimited(w, rateLimited.RetryAfter)
		case errors.Is(err, models.ErrInvalidCredentials):
			// One response for unknown email and wrong password alike
			pkghttp.WriteUnauthorized(w, "invalid_credentials", "Authentication failed")
		case errors.Is(err, models.ErrStoreUnavailable):
			pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	})
}

// Verify handles access token verification
// @Summary Verify access token
// @Security BearerAuth
// @Produce json
// @Success 200 {object} VerifyResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/verify [get]
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r)
	if token == "" {
		pkghttp.WriteUnauthorized(w, "invalid_token", "Missing or malformed Authorization header")
		return
	}

	verification, err := h.service.Verify(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenExpired):
			// Distinct code so clients refresh instead of re-login
			pkghttp.WriteUnauthorized(w, "token_expired", "Access token has expired")
		default:
			pkghttp.WriteUnauthorized(w, "invalid_token", "Invalid access token")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, VerifyResponse{
		Valid:     true,
		SubjectID: verification.SubjectID,
		TokenID:   verification.TokenID,
	})
}

// Refresh handles access token renewal
// @Summary Refresh access token
// @Accept json
// @Param request body RefreshRequest true "Refresh request"
// @Produce json
// @Success 200 {object} TokenResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		// Expired, revoked, forged and mistyped tokens all collapse to one
		// code; the remedy is the same in every case.
		pkghttp.WriteUnauthorized(w, "invalid_refresh_token", "Refresh token is not valid")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   pair.ExpiresIn,
	})
}

// Logout handles session termination by revoking the refresh token
// @Summary User logout
// @Accept json
// @Param request body LogoutRequest true "Logout request"
// @Produce json
// @Success 200
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest

	// Unreadable bodies still get the generic acknowledgement; the response
	// must not reveal whether anything was actually revoked.
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		h.service.Logout(r.Context(), req.RefreshToken)
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "logged out",
	})
}

// extractBearerToken pulls the token out of an "Authorization: Bearer x"
// header. Returns "" when the header is absent or not a bearer scheme.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
