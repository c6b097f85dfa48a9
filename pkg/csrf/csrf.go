// Package csrf issues and checks the anti-forgery token every wizard form echoes.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/session"
)

const (
	SessionKey = "csrf"
	FormField  = "csrf"
	tokenBytes = 32
)

var (
	ErrMissingToken = errors.New("csrf: token missing")
	ErrInvalidToken = errors.New("csrf: token mismatch")
)

// Issue stores a fresh token in the session and returns it. Loaders call it on
// every render, so each page view carries a distinct token.
func Issue(sess *session.Session) string {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic("csrf: crypto/rand failed: " + err.Error())
	}
	tok := base64.RawURLEncoding.EncodeToString(b)
	sess.Set(SessionKey, tok)
	return tok
}

func Validate(sess *session.Session, submitted string) error {
	want := sess.Get(SessionKey)
	got := strings.TrimSpace(submitted)
	if want == "" || got == "" {
		return ErrMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

func FromForm(form url.Values) string { return form.Get(FormField) }
