package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrLoggedOut    = errors.New("not logged in")
	ErrTokenExpired = errors.New("bearer token expired")
	ErrNoViewer     = errors.New("token carries no user id claim")
)

// Credentials is what a login leaves on disk: the bearer token and the
// identity it was issued for.
type Credentials struct {
	Token     string    `json:"token"`
	ViewerID  string    `json:"viewer_id"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the token has an expiry that lies before now.
func (c *Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// viewerClaims are checked in order; platforms differ in where they put
// the user id.
var viewerClaims = []string{"user_id", "userId", "id", "_id", "sub"}

// ParseToken reads the claims of a JWT bearer token without verifying
// its signature; the backend verifies, the client only needs to know who
// it is and when the token stops working.
func ParseToken(token string) (*Credentials, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	var viewer string
	for _, key := range viewerClaims {
		if v := claimString(claims[key]); v != "" {
			viewer = v
			break
		}
	}
	if viewer == "" {
		return nil, ErrNoViewer
	}

	creds := &Credentials{Token: token, ViewerID: viewer, CreatedAt: time.Now().UTC()}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		creds.ExpiresAt = exp.Time.UTC()
	}
	return creds, nil
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// Session is the explicit, passed-down login state of one named session.
// It is created on login and destroyed on logout; nothing else holds the
// token.
type Session struct {
	name string

	mu    sync.RWMutex
	creds *Credentials
}

// Open loads the named session, reading stored credentials if present.
func Open(name string) (*Session, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	s := &Session{name: name}
	data, err := os.ReadFile(CredentialsPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	s.creds = &c
	return s, nil
}

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// Login validates the token, stores it with 0600 permissions and makes it
// the active credential.
func (s *Session) Login(token string) (*Credentials, error) {
	creds, err := ParseToken(token)
	if err != nil {
		return nil, err
	}
	if creds.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}

	path := CredentialsPath(s.name)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("write credentials: %w", err)
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	return creds, nil
}

// Logout forgets the token in memory and on disk.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()

	err := os.Remove(CredentialsPath(s.name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Credentials returns the active credentials, or ErrLoggedOut /
// ErrTokenExpired. There is no refresh: an expired token needs a new login.
func (s *Session) Credentials() (*Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return nil, ErrLoggedOut
	}
	if s.creds.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}
	c := *s.creds
	return &c, nil
}

// Token returns the bearer token, or "" when logged out.
func (s *Session) Token() string {
	c, err := s.Credentials()
	if err != nil {
		return ""
	}
	return c.Token
}

// ViewerID returns the logged-in user id, or "" when logged out.
func (s *Session) ViewerID() string {
	c, err := s.Credentials()
	if err != nil {
		return ""
	}
	return c.ViewerID
}

// StoredViewerID returns the user id of the stored credentials even when
// the token has expired, or "" when nothing is stored. It identifies whose
// cache is on disk.
func (s *Session) StoredViewerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return ""
	}
	return s.creds.ViewerID
}

// LoggedIn reports whether usable credentials are present.
func (s *Session) LoggedIn() bool {
	_, err := s.Credentials()
	return err == nil
}
