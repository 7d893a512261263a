package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/STRATINT/newsdesk/internal/config"
)

func testAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return New(config.AuthConfig{
		JWTSecret:         "test-secret",
		AdminPasswordHash: string(hash),
		TokenDuration:     time.Hour,
	})
}

func TestLoginAndValidate(t *testing.T) {
	a := testAuthenticator(t)

	token, expires, err := a.Login("hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expiry %v is not in the future", expires)
	}

	subject, err := a.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if subject != Subject {
		t.Fatalf("subject = %q, want %q", subject, Subject)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	a := testAuthenticator(t)
	if _, _, err := a.Login("wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}
}

func TestLogin_NotConfigured(t *testing.T) {
	a := New(config.AuthConfig{JWTSecret: "only-secret"})
	if a.Enabled() {
		t.Fatal("authenticator without password hash should be disabled")
	}
	if _, _, err := a.Login("anything"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	a := testAuthenticator(t)
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return issued }

	token, _, err := a.Login("hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	a.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := a.Validate(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	a := testAuthenticator(t)
	token, _, err := a.Login("hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	other := testAuthenticator(t)
	other.secret = []byte("different")
	if _, err := other.Validate(token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatal("CheckPassword rejected the right password")
	}
	if CheckPassword("nope", hash) {
		t.Fatal("CheckPassword accepted the wrong password")
	}
}

func TestMiddleware(t *testing.T) {
	a := testAuthenticator(t)
	token, _, err := a.Login("hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	var gotSubject string
	protected := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/collect", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if gotSubject != Subject {
		t.Fatalf("subject in context = %q, want %q", gotSubject, Subject)
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	a := New(config.AuthConfig{})
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/collect", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
