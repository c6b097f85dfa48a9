// Package ratelimit is a per-key fixed window counter.
package ratelimit

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/DEFRA/eutd-mmo-fes-external-frontend-sub005/pkg/httpx"
)

type FixedWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	byKey  map[string]windowState
}

type windowState struct {
	start time.Time
	count int
}

// New returns a limiter allowing limit calls per window. A limit <= 0
// disables limiting.
func New(limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		limit:  limit,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
		byKey:  map[string]windowState{},
	}
}

func (l *FixedWindow) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.byKey[key]
	if cur.start.IsZero() || now.Sub(cur.start) >= l.window {
		l.byKey[key] = windowState{start: now, count: 1}
		l.sweep(now)
		return true
	}
	if cur.count >= l.limit {
		return false
	}
	cur.count++
	l.byKey[key] = cur
	return true
}

// sweep drops expired windows so idle sessions do not accumulate.
func (l *FixedWindow) sweep(now time.Time) {
	if len(l.byKey) < 1024 {
		return
	}
	for k, st := range l.byKey {
		if now.Sub(st.start) >= l.window {
			delete(l.byKey, k)
		}
	}
}

// Enforce writes a 429 error envelope and returns false when key is over its limit.
func Enforce(w http.ResponseWriter, r *http.Request, l *FixedWindow, key string) bool {
	if l.Allow(key) {
		return true
	}
	httpx.WriteError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
	return false
}
