// Package authn reads the access token the gateway forwards and records
// security events (CSRF rejections, upstream forbidden responses).
package authn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	EventCSRFRejected      = "CSRF_REJECTED"
	EventUpstreamForbidden = "UPSTREAM_FORBIDDEN"
	EventRateLimited       = "RATE_LIMITED"
)

type Event struct {
	Kind      string
	Endpoint  string
	SessionID string
	// TokenHash is the sha256 fingerprint of the bearer token, never the token.
	TokenHash string
	Reason    string
	Details   map[string]any
	At        time.Time
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

func ParseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func HashToken(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type LogRecorder struct {
	Logger *zap.Logger
}

func (l LogRecorder) Record(_ context.Context, ev Event) error {
	if l.Logger == nil {
		return nil
	}
	l.Logger.Warn("security event",
		zap.String("kind", ev.Kind),
		zap.String("endpoint", ev.Endpoint),
		zap.String("session_id", ev.SessionID),
		zap.String("token_hash", ev.TokenHash),
		zap.String("reason", ev.Reason),
		zap.Any("details", ev.Details),
	)
	return nil
}

// PostgresRecorder appends to security_events:
//
//	CREATE TABLE security_events(
//	  id bigserial PRIMARY KEY, kind text NOT NULL, endpoint text NOT NULL,
//	  session_id text, token_hash text, reason text, details jsonb,
//	  created_at timestamptz NOT NULL DEFAULT now());
type PostgresRecorder struct {
	DB *pgxpool.Pool
}

func (p PostgresRecorder) Record(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev.Details)
	if err != nil {
		return err
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = p.DB.Exec(ctx, `
INSERT INTO security_events(kind,endpoint,session_id,token_hash,reason,details,created_at)
VALUES($1,$2,$3,$4,$5,$6::jsonb,$7)
`, ev.Kind, ev.Endpoint, ev.SessionID, ev.TokenHash, ev.Reason, string(b), at)
	return err
}

type multi []Recorder

// Multi fans an event out to every recorder and joins their errors.
func Multi(rs ...Recorder) Recorder {
	out := multi{}
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
