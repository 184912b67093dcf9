package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/storelane/authd/internal/models"
)

const testSecret = "test-secret-at-least-32-chars-long!"

func newTestCodec() *Codec {
	return NewCodec(testSecret, 15*time.Minute, 7*24*time.Hour, 0)
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	codec := newTestCodec()

	tests := []struct {
		name     string
		issue    func(string) (string, error)
		wantType string
	}{
		{"access token", codec.IssueAccess, models.TokenTypeAccess},
		{"refresh token", codec.IssueRefresh, models.TokenTypeRefresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := tt.issue("user-123")
			if err != nil {
				t.Fatalf("issue failed: %v", err)
			}

			claims, err := codec.Parse(token)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			if claims.Type != tt.wantType {
				t.Errorf("type = %q, want %q", claims.Type, tt.wantType)
			}
			if claims.Subject != "user-123" {
				t.Errorf("subject = %q, want user-123", claims.Subject)
			}
			if claims.ID == "" {
				t.Error("token id is empty")
			}
		})
	}
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	codec := newTestCodec()

	if _, err := codec.IssueAccess(""); err == nil {
		t.Error("expected error for empty subject")
	}
}

func TestTokenIDsAreUnique(t *testing.T) {
	codec := newTestCodec()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := codec.IssueAccess("user-123")
		if err != nil {
			t.Fatalf("IssueAccess failed: %v", err)
		}
		claims, err := codec.Parse(token)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if seen[claims.ID] {
			t.Fatalf("duplicate token id %q", claims.ID)
		}
		seen[claims.ID] = true
	}
}

func TestParseMalformedToken(t *testing.T) {
	codec := newTestCodec()

	tests := []struct {
		name  string
		token string
	}{
		{"empty string", ""},
		{"garbage", "not-a-token"},
		{"two segments", "abc.def"},
		{"invalid base64", "!!!.@@@.###"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Parse(tt.token)
			if !errors.Is(err, models.ErrMalformedToken) {
				t.Errorf("err = %v, want ErrMalformedToken", err)
			}
		})
	}
}

func TestParseBadSignature(t *testing.T) {
	codec := newTestCodec()
	other := NewCodec("a-completely-different-signing-secret", 15*time.Minute, 7*24*time.Hour, 0)

	token, err := other.IssueAccess("user-123")
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}

	_, err = codec.Parse(token)
	if !errors.Is(err, models.ErrBadSignature) {
		t.Errorf("err = %v, want ErrBadSignature", err)
	}
}

func TestParseTamperedPayload(t *testing.T) {
	codec := newTestCodec()

	token, err := codec.IssueAccess("user-123")
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}

	// Swap the payload for a differently-padded one; signature no longer matches
	parts := strings.Split(token, ".")
	parts[1] = parts[1][:len(parts[1])-2] + "xx"
	_, err = codec.Parse(strings.Join(parts, "."))
	if errors.Is(err, models.ErrTokenExpired) || err == nil {
		t.Errorf("tampered token parsed as %v", err)
	}
}

func TestParseExpiredToken(t *testing.T) {
	codec := newTestCodec()

	token, err := codec.IssueAccess("user-123")
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}

	// Move the verifier's clock past the access expiry
	codec.SetClock(func() time.Time { return time.Now().Add(16 * time.Minute) })

	claims, err := codec.Parse(token)
	if !errors.Is(err, models.ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}

	// Expired-but-genuine tokens keep their claims readable for logout
	if claims == nil || claims.ID == "" {
		t.Error("expected claims alongside ErrTokenExpired")
	}
}

func TestLeewayToleratesClockSkew(t *testing.T) {
	codec := NewCodec(testSecret, 15*time.Minute, 7*24*time.Hour, 5*time.Second)

	token, err := codec.IssueAccess("user-123")
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}

	// 3s past expiry is inside the 5s leeway window
	codec.SetClock(func() time.Time { return time.Now().Add(15*time.Minute + 3*time.Second) })

	if _, err := codec.Parse(token); err != nil {
		t.Errorf("Parse inside leeway failed: %v", err)
	}
}

func TestAlgorithmConfusionRejected(t *testing.T) {
	codec := newTestCodec()

	// alg=none token with a plausible payload must not parse
	noneToken := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0." +
		"eyJ0eXBlIjoiYWNjZXNzIiwic3ViIjoidXNlci0xMjMiLCJqdGkiOiJ4In0."
	if _, err := codec.Parse(noneToken); err == nil {
		t.Error("alg=none token was accepted")
	}
}
