package session

import (
	"context"
	"net/http"
)

const maxCookieBytes = 4096

// CookieStore keeps the whole session inside the signed cookie.
type CookieStore struct {
	codec *Codec
	opts  CookieOptions
}

func NewCookieStore(codec *Codec, opts CookieOptions) *CookieStore {
	return &CookieStore{codec: codec, opts: opts.withDefaults()}
}

func (s *CookieStore) Get(_ context.Context, r *http.Request) (*Session, error) {
	raw := readCookie(r, s.opts.Name)
	if raw == "" {
		return New(), nil
	}
	var rec record
	if err := s.codec.Decode(raw, &rec); err != nil {
		// Tampered or signed with a retired secret: start over.
		return New(), nil
	}
	return fromRecord(rec), nil
}

func (s *CookieStore) Commit(_ context.Context, sess *Session) (*http.Cookie, error) {
	v, err := s.codec.Encode(sess.record())
	if err != nil {
		return nil, err
	}
	if len(v) > maxCookieBytes {
		return nil, ErrCookieTooLarge
	}
	sess.dirty, sess.isNew = false, false
	return s.opts.cookie(v), nil
}

func (s *CookieStore) Destroy(_ context.Context, sess *Session) (*http.Cookie, error) {
	sess.values = map[string]string{}
	sess.flash = map[string]string{}
	sess.dirty = false
	return s.opts.expired(), nil
}
