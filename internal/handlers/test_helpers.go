package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storelane/authd/internal/models"
	pkghttp "github.com/storelane/authd/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	LoginFunc   func(ctx context.Context, email, password, ipAddress string) (*models.TokenPair, error)
	VerifyFunc  func(ctx context.Context, accessToken string) (*models.Verification, error)
	RefreshFunc func(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	LogoutFunc  func(ctx context.Context, refreshToken string)
}

func (m *MockSessionService) Login(ctx context.Context, email, password, ipAddress string) (*models.TokenPair, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, email, password, ipAddress)
}

func (m *MockSessionService) Verify(ctx context.Context, accessToken string) (*models.Verification, error) {
	if m.VerifyFunc == nil {
		return nil, models.ErrMalformedToken
	}
	return m.VerifyFunc(ctx, accessToken)
}

func (m *MockSessionService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrMalformedToken
	}
	return m.RefreshFunc(ctx, refreshToken)
}

func (m *MockSessionService) Logout(ctx context.Context, refreshToken string) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx, refreshToken)
	}
}
