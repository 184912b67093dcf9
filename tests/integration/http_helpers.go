package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	internalauth "github.com/storelane/authd/internal/auth"
	"github.com/storelane/authd/internal/database"
	"github.com/storelane/authd/internal/handlers"
	middlewareCustom "github.com/storelane/authd/internal/middleware"
	"github.com/storelane/authd/internal/ratelimit"
	"github.com/storelane/authd/internal/repositories"
	"github.com/storelane/authd/internal/revocation"
	"github.com/storelane/authd/internal/routes"
	"github.com/storelane/authd/internal/services"
	pkgauth "github.com/storelane/authd/pkg/auth"
	pkghttp "github.com/storelane/authd/pkg/http"
	pkglogger "github.com/storelane/authd/pkg/logger"
)

const TestJWTSecret = "test-secret-32-characters-long-for-testing"

// TestServer wraps httptest.Server with the full auth stack wired against a
// real database. Token and lockout clocks are shared and movable so the flow
// tests can cross expiry boundaries without sleeping.
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Registry *revocation.Registry
	Limiter  *ratelimit.Limiter
	Service  *services.SessionService

	mu    sync.Mutex
	clock time.Time
}

// NewTestServer initializes a complete HTTP server against the given database
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ts := &TestServer{DB: db, clock: time.Now()}
	nowFn := ts.Now

	userRepo := repositories.NewUserRepository(db)
	hasher := pkgauth.NewHasher(4) // min cost keeps the suite fast

	codec := internalauth.NewCodec(TestJWTSecret, 15*time.Minute, 7*24*time.Hour, 0)
	codec.SetClock(nowFn)

	ts.Limiter = ratelimit.New(ratelimit.DefaultConfig())
	ts.Limiter.SetClock(nowFn)

	ts.Registry = revocation.NewRegistry()

	auditLogger := pkglogger.NewAuditLogger(logger)
	ts.Service = services.NewSessionService(
		userRepo, hasher, codec, ts.Limiter, ts.Registry, logger, auditLogger,
	)
	ts.Service.SetClock(nowFn)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: []string{}}
	authHandler := handlers.NewAuthHandler(ts.Service, ipConfig)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Generous per-IP cap: these tests exercise the per-identity lockout,
	// not the transport limiter, and all requests share one loopback IP.
	rateLimitConfig := middlewareCustom.RateLimitConfig{RequestsPerMinute: 10000}
	routes.RegisterRoutes(r, authHandler, db, rateLimitConfig)

	ts.Server = httptest.NewServer(r)
	return ts
}

// Now returns the current fake time
func (ts *TestServer) Now() time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.clock
}

// Advance moves the fake clock forward
func (ts *TestServer) Advance(d time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.clock = ts.clock.Add(d)
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// Login posts credentials and returns the raw response
func (ts *TestServer) Login(email, password string) (*http.Response, error) {
	return ts.Request("POST", "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
}

// Verify checks an access token via the verify endpoint
func (ts *TestServer) Verify(accessToken string) (*http.Response, error) {
	return ts.Request("GET", "/auth/verify", nil, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
}

// Refresh exchanges a refresh token for a new access token
func (ts *TestServer) Refresh(refreshToken string) (*http.Response, error) {
	return ts.Request("POST", "/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, nil)
}

// Logout posts a refresh token to the logout endpoint
func (ts *TestServer) Logout(refreshToken string) (*http.Response, error) {
	return ts.Request("POST", "/auth/logout", map[string]string{
		"refresh_token": refreshToken,
	}, nil)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractTokensFromResponse extracts access/refresh tokens from a login response
func ExtractTokensFromResponse(resp *http.Response) (accessToken, refreshToken string, err error) {
	var tokenResp map[string]interface{}
	if err := ParseJSONResponse(resp, &tokenResp); err != nil {
		return "", "", err
	}

	if access, ok := tokenResp["access_token"].(string); ok {
		accessToken = access
	}
	if refresh, ok := tokenResp["refresh_token"].(string); ok {
		refreshToken = refresh
	}
	return accessToken, refreshToken, nil
}

// GetErrorCode extracts the machine-readable error code from an error response
func GetErrorCode(resp *http.Response) (string, error) {
	var errResp map[string]interface{}
	if err := ParseJSONResponse(resp, &errResp); err != nil {
		return "", err
	}
	if code, ok := errResp["error"].(string); ok {
		return code, nil
	}
	return "", nil
}
