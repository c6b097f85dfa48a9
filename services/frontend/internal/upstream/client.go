// Package upstream talks to the certificate orchestration service and the
// reference data service. Both speak JSON over HTTP.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/validation"
)

var (
	ErrForbidden = errors.New("upstream: forbidden")
	ErrNotFound  = errors.New("upstream: not found")
	ErrNoToken   = errors.New("upstream: no access token")
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Error is any non-2xx answer. A 400 carries the parsed field errors.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Validation validation.Errors
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("upstream error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// IsValidation returns the field errors of an upstream 400. A 400 without
// field errors is not a validation failure.
func IsValidation(err error) (validation.Errors, bool) {
	var ue *Error
	if errors.As(err, &ue) && ue.StatusCode == http.StatusBadRequest && len(ue.Validation) > 0 {
		return ue.Validation, true
	}
	return nil, false
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey{}).(string)
	return s
}

type Option func(*transport)

func WithHTTPClient(h *http.Client) Option {
	return func(t *transport) { t.http = h }
}

func WithTimeout(d time.Duration) Option {
	return func(t *transport) {
		if d > 0 {
			t.http.Timeout = d
		}
	}
}

func WithRetry(cfg RetryConfig) Option {
	return func(t *transport) { t.retry = cfg }
}

type transport struct {
	baseURL   string
	http      *http.Client
	retry     RetryConfig
	authorize func(ctx context.Context, req *http.Request) error
	sleep     func(ctx context.Context, d time.Duration) error
}

func newTransport(baseURL string, opts []Option) transport {
	t := transport{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		retry:   DefaultRetry(),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(&t)
	}
	if t.retry.MaxAttempts < 1 {
		t.retry.MaxAttempts = 1
	}
	if t.retry.BaseDelay <= 0 {
		t.retry.BaseDelay = 200 * time.Millisecond
	}
	if t.retry.MaxDelay <= 0 {
		t.retry.MaxDelay = 2 * time.Second
	}
	return t
}

// do sends one JSON request. Only GETs are retried.
func (t *transport) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		if bodyBytes, err = json.Marshal(body); err != nil {
			return err
		}
	}
	u := t.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	attempts := 1
	if method == http.MethodGet {
		attempts = t.retry.MaxAttempts
	}
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(bodyBytes))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if len(bodyBytes) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		if t.authorize != nil {
			if err := t.authorize(ctx, req); err != nil {
				return err
			}
		}
		resp, err := t.http.Do(req)
		if err != nil {
			if attempt < attempts && ctx.Err() == nil {
				if err := t.sleep(ctx, t.backoff(attempt, "")); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode %s %s: %w", method, path, err)
			}
			return nil
		}
		if shouldRetryStatus(resp.StatusCode) && attempt < attempts {
			if err := t.sleep(ctx, t.backoff(attempt, resp.Header.Get("Retry-After"))); err != nil {
				return err
			}
			continue
		}
		return parseError(resp.StatusCode, respBody)
	}
}

func shouldRetryStatus(status int) bool {
	return status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout
}

func (t *transport) backoff(attempt int, retryAfter string) time.Duration {
	if sec, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && sec >= 0 {
		return min(time.Duration(sec)*time.Second, t.retry.MaxDelay)
	}
	ceiling := t.retry.BaseDelay << (attempt - 1)
	if ceiling <= 0 || ceiling > t.retry.MaxDelay {
		ceiling = t.retry.MaxDelay
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parseError reads the {"error":{"code","message"}} envelope (or a bare
// {"message"}) first; only a 400 without one is read as field errors.
func parseError(status int, body []byte) error {
	out := &Error{StatusCode: status, Message: http.StatusText(status)}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		raw, hasError := obj["error"]
		_, hasMessage := obj["message"]
		if hasError || (hasMessage && len(obj) == 1) {
			var env envelopeError
			var msg string
			if err := json.Unmarshal(raw, &env); err == nil {
				out.Code = env.Code
				msg = env.Message
			} else {
				_ = json.Unmarshal(raw, &msg)
			}
			var top string
			_ = json.Unmarshal(obj["message"], &top)
			if m := firstNonEmpty(msg, top); m != "" {
				out.Message = m
			}
			return out
		}
	}
	if status == http.StatusBadRequest {
		if errs, err := validation.FromUpstream(body); err == nil && len(errs) > 0 {
			out.Validation = errs
			out.Code = "VALIDATION_FAILED"
			return out
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) < 512 && obj == nil && !strings.HasPrefix(s, "[") {
		out.Message = s
	}
	return out
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
