// Package session keeps per-browser journey state behind the fesSession cookie.
//
// A Session is a flat key/value map. Loaders and actions read and write ad hoc
// keys between redirects; a missing key always means "not answered yet", so
// losing the cookie only restarts a wizard step.
package session

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	CookieName = "fesSession"
	DefaultTTL = 24 * time.Hour
)

var ErrCookieTooLarge = errors.New("session: cookie exceeds 4096 bytes")

type Session struct {
	ID     string
	values map[string]string
	flash  map[string]string
	dirty  bool
	isNew  bool
}

// record is the persisted form shared by every backend.
type record struct {
	ID     string            `json:"id"`
	Values map[string]string `json:"values,omitempty"`
	Flash  map[string]string `json:"flash,omitempty"`
}

func New() *Session {
	return &Session{
		ID:     uuid.NewString(),
		values: map[string]string{},
		flash:  map[string]string{},
		isNew:  true,
	}
}

func fromRecord(rec record) *Session {
	s := &Session{ID: rec.ID, values: rec.Values, flash: rec.Flash}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.values == nil {
		s.values = map[string]string{}
	}
	if s.flash == nil {
		s.flash = map[string]string{}
	}
	return s
}

func (s *Session) record() record {
	return record{ID: s.ID, Values: s.values, Flash: s.flash}
}

func (s *Session) Get(key string) string { return s.values[key] }

func (s *Session) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

func (s *Session) Set(key, value string) {
	if cur, ok := s.values[key]; ok && cur == value {
		return
	}
	s.values[key] = value
	s.dirty = true
}

func (s *Session) Unset(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// Flash stores a value that survives exactly one TakeFlash.
func (s *Session) Flash(key, value string) {
	s.flash[key] = value
	s.dirty = true
}

func (s *Session) TakeFlash(key string) (string, bool) {
	v, ok := s.flash[key]
	if ok {
		delete(s.flash, key)
		s.dirty = true
	}
	return v, ok
}

func (s *Session) Keys() []string {
	out := make([]string, 0, len(s.values))
	for k := range s.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dirty reports whether the session needs to be committed.
func (s *Session) Dirty() bool { return s.dirty || s.isNew }

type Store interface {
	Get(ctx context.Context, r *http.Request) (*Session, error)
	Commit(ctx context.Context, s *Session) (*http.Cookie, error)
	Destroy(ctx context.Context, s *Session) (*http.Cookie, error)
}

type CookieOptions struct {
	Name   string
	Path   string
	MaxAge time.Duration
	Secure bool
}

func (o CookieOptions) withDefaults() CookieOptions {
	if o.Name == "" {
		o.Name = CookieName
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultTTL
	}
	return o
}

func (o CookieOptions) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    value,
		Path:     o.Path,
		MaxAge:   int(o.MaxAge / time.Second),
		Expires:  time.Now().Add(o.MaxAge).UTC(),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (o CookieOptions) expired() *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    "",
		Path:     o.Path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func readCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
