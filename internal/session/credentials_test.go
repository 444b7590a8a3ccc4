package session

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestParseTokenClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"user_id string", jwt.MapClaims{"user_id": "u-1", "exp": exp.Unix()}, "u-1"},
		{"mongo _id", jwt.MapClaims{"_id": "64f1c2a9", "exp": exp.Unix()}, "64f1c2a9"},
		{"numeric id", jwt.MapClaims{"id": 42, "exp": exp.Unix()}, "42"},
		{"subject", jwt.MapClaims{"sub": "s-9"}, "s-9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := ParseToken("Bearer " + signToken(t, tt.claims))
			if err != nil {
				t.Fatalf("ParseToken() error = %v", err)
			}
			if creds.ViewerID != tt.want {
				t.Errorf("ViewerID = %q, want %q", creds.ViewerID, tt.want)
			}
		})
	}
}

func TestParseTokenRejects(t *testing.T) {
	if _, err := ParseToken("not-a-jwt"); err == nil {
		t.Error("ParseToken(garbage) expected error")
	}
	_, err := ParseToken(signToken(t, jwt.MapClaims{"role": "user"}))
	if !errors.Is(err, ErrNoViewer) {
		t.Errorf("ParseToken(no id) error = %v, want ErrNoViewer", err)
	}
}

func TestLoginLogoutLifecycle(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	s, err := Open("main")
	if err != nil {
		t.Fatal(err)
	}
	if s.LoggedIn() {
		t.Fatal("fresh session reports logged in")
	}
	if _, err := s.Credentials(); !errors.Is(err, ErrLoggedOut) {
		t.Fatalf("Credentials() error = %v, want ErrLoggedOut", err)
	}

	token := signToken(t, jwt.MapClaims{"user_id": "viewer-a", "exp": time.Now().Add(time.Hour).Unix()})
	if _, err := s.Login(token); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if s.ViewerID() != "viewer-a" || s.Token() != token {
		t.Errorf("after login ViewerID=%q Token=%q", s.ViewerID(), s.Token())
	}

	info, err := os.Stat(CredentialsPath("main"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credentials permission = %o, want 0600", perm)
	}

	// A second Open sees the stored login.
	again, err := Open("main")
	if err != nil {
		t.Fatal(err)
	}
	if again.ViewerID() != "viewer-a" {
		t.Errorf("reopened ViewerID = %q", again.ViewerID())
	}

	if err := s.Logout(); err != nil {
		t.Fatal(err)
	}
	if s.LoggedIn() || s.Token() != "" {
		t.Error("session still logged in after Logout")
	}
	if _, err := os.Stat(CredentialsPath("main")); !os.IsNotExist(err) {
		t.Errorf("credentials file still present: %v", err)
	}
	// Logout twice is fine.
	if err := s.Logout(); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}
}

func TestLoginRejectsExpiredToken(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	s, _ := Open("main")
	token := signToken(t, jwt.MapClaims{"user_id": "v", "exp": time.Now().Add(-time.Minute).Unix()})
	if _, err := s.Login(token); err == nil {
		t.Fatal("Login() accepted an expired token")
	}
	if s.LoggedIn() {
		t.Error("expired login left session logged in")
	}
}

func TestStoredViewerIDOutlivesExpiry(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	creds, err := ParseToken(signToken(t, jwt.MapClaims{"user_id": "v", "exp": time.Now().Add(-time.Minute).Unix()}))
	if err != nil {
		t.Fatal(err)
	}
	if err := EnsureDir("main"); err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(creds)
	if err := os.WriteFile(CredentialsPath("main"), data, 0600); err != nil {
		t.Fatal(err)
	}

	s, err := Open("main")
	if err != nil {
		t.Fatal(err)
	}
	if s.ViewerID() != "" {
		t.Errorf("ViewerID() = %q for an expired token, want empty", s.ViewerID())
	}
	if got := s.StoredViewerID(); got != "v" {
		t.Errorf("StoredViewerID() = %q, want v", got)
	}
	_ = s.Logout()
	if got := s.StoredViewerID(); got != "" {
		t.Errorf("StoredViewerID() after logout = %q", got)
	}
}
