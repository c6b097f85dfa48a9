package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the session map in fes_sessions:
//
//	CREATE TABLE fes_sessions (
//	  id         text PRIMARY KEY,
//	  data       jsonb NOT NULL,
//	  expires_at timestamptz NOT NULL
//	);
type PostgresStore struct {
	DB    *pgxpool.Pool
	codec *Codec
	opts  CookieOptions
}

func NewPostgresStore(db *pgxpool.Pool, codec *Codec, opts CookieOptions) *PostgresStore {
	return &PostgresStore{DB: db, codec: codec, opts: opts.withDefaults()}
}

func (s *PostgresStore) Get(ctx context.Context, r *http.Request) (*Session, error) {
	raw := readCookie(r, s.opts.Name)
	if raw == "" {
		return New(), nil
	}
	id, err := s.codec.Unsign(raw)
	if err != nil {
		return New(), nil
	}
	var b []byte
	err = s.DB.QueryRow(ctx, `
SELECT data
FROM fes_sessions
WHERE id=$1
  AND expires_at > now()
`, id).Scan(&b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return New(), nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return New(), nil
	}
	rec.ID = id
	return fromRecord(rec), nil
}

func (s *PostgresStore) Commit(ctx context.Context, sess *Session) (*http.Cookie, error) {
	b, err := json.Marshal(sess.record())
	if err != nil {
		return nil, err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO fes_sessions(id,data,expires_at)
VALUES($1,$2::jsonb,$3)
ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data, expires_at=EXCLUDED.expires_at
`, sess.ID, string(b), time.Now().UTC().Add(s.opts.MaxAge))
	if err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	sess.dirty, sess.isNew = false, false
	return s.opts.cookie(s.codec.Sign(sess.ID)), nil
}

func (s *PostgresStore) Destroy(ctx context.Context, sess *Session) (*http.Cookie, error) {
	if _, err := s.DB.Exec(ctx, `DELETE FROM fes_sessions WHERE id=$1`, sess.ID); err != nil {
		return nil, fmt.Errorf("destroy session: %w", err)
	}
	sess.values = map[string]string{}
	sess.flash = map[string]string{}
	sess.dirty = false
	return s.opts.expired(), nil
}
