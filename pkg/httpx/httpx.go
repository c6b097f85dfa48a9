package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const maxFormBytes = 1 << 20 // 1MB

var ErrFormTooLarge = errors.New("form body too large")

func NewRequestID() string { return "req_" + uuid.NewString() }

// RequestID prefers the id chi's RequestID middleware stored on the request.
func RequestID(r *http.Request) string {
	if r != nil {
		if id := middleware.GetReqID(r.Context()); id != "" {
			return id
		}
	}
	return NewRequestID()
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError answers with the error envelope. The request id matches the one
// the access log carries for r.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": RequestID(r),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}

// ReadForm parses a form-encoded body and trims every value.
func ReadForm(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, ErrFormTooLarge
		}
		return nil, err
	}
	out := url.Values{}
	for k, vs := range r.PostForm {
		for _, v := range vs {
			out.Add(k, strings.TrimSpace(v))
		}
	}
	return out, nil
}

// Redirect writes a 302 after attaching any cookies the caller produced.
func Redirect(w http.ResponseWriter, r *http.Request, location string, cookies ...*http.Cookie) {
	for _, c := range cookies {
		if c != nil {
			http.SetCookie(w, c)
		}
	}
	http.Redirect(w, r, location, http.StatusFound)
}
