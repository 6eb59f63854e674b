// Package session holds the access/refresh credentials of one user session.
package session

import (
	"net/http"
	"sync"
	"time"

	"example.com/mindfeed/internal/models"
)

// Cookie names of the persisted credentials.
const (
	AccessCookie  = "access"
	RefreshCookie = "refresh"
)

// TokenStore is the single place credentials are read from and written to.
type TokenStore interface {
	Get() models.Credentials
	// Set persists every non-empty field of c; empty fields keep their value.
	Set(c models.Credentials)
	Clear()
}

// CookieOptions controls the attributes of the credential cookies.
type CookieOptions struct {
	Secure     bool
	SameSite   http.SameSite
	Path       string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// DefaultCookieOptions: access lives one hour, refresh seven days.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		SameSite:   http.SameSiteLaxMode,
		Path:       "/",
		AccessTTL:  time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

// CookieStore keeps credentials in HttpOnly cookies of one HTTP exchange.
// Writes go out as Set-Cookie headers and are visible to later Gets.
type CookieStore struct {
	w    http.ResponseWriter
	opts CookieOptions

	mu    sync.Mutex
	creds models.Credentials
}

func NewCookieStore(w http.ResponseWriter, r *http.Request, opts CookieOptions) *CookieStore {
	if opts.Path == "" {
		opts.Path = "/"
	}
	s := &CookieStore{w: w, opts: opts}
	if c, err := r.Cookie(AccessCookie); err == nil {
		s.creds.Access = c.Value
	}
	if c, err := r.Cookie(RefreshCookie); err == nil {
		s.creds.Refresh = c.Value
	}
	return s
}

func (s *CookieStore) Get() models.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

func (s *CookieStore) Set(c models.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Access != "" {
		s.creds.Access = c.Access
		http.SetCookie(s.w, s.cookie(AccessCookie, c.Access, s.opts.AccessTTL))
	}
	if c.Refresh != "" {
		s.creds.Refresh = c.Refresh
		http.SetCookie(s.w, s.cookie(RefreshCookie, c.Refresh, s.opts.RefreshTTL))
	}
}

func (s *CookieStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = models.Credentials{}
	http.SetCookie(s.w, s.cookie(AccessCookie, "", -1))
	http.SetCookie(s.w, s.cookie(RefreshCookie, "", -1))
}

func (s *CookieStore) cookie(name, value string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl / time.Second)
	if ttl < 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.opts.Path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	}
}

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	creds models.Credentials
}

func NewMemoryStore(initial models.Credentials) *MemoryStore {
	return &MemoryStore{creds: initial}
}

func (s *MemoryStore) Get() models.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

func (s *MemoryStore) Set(c models.Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Access != "" {
		s.creds.Access = c.Access
	}
	if c.Refresh != "" {
		s.creds.Refresh = c.Refresh
	}
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = models.Credentials{}
}
