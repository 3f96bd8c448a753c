package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	roles      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_created_at_idx ON sessions (created_at);
`

// ConnectPostgres opens the pgx pool backing PgSessionRegistry. Session
// traffic is one short statement per request, so the pool stays small.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 8
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// PgSessionRegistry keeps sessions in PostgreSQL so several API processes
// can share them. Expiry is left to a sweeper (see SessionSweeper).
type PgSessionRegistry struct {
	db  *pgxpool.Pool
	ids *SessionIDs
	ttl time.Duration
	now func() time.Time
}

func NewPgSessionRegistry(db *pgxpool.Pool, ids *SessionIDs, ttl time.Duration) *PgSessionRegistry {
	return &PgSessionRegistry{db: db, ids: ids, ttl: ttl, now: time.Now}
}

// EnsureSchema creates the sessions table when missing.
func (r *PgSessionRegistry) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, sessionsSchema); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (r *PgSessionRegistry) Create(ctx context.Context, p Principal) (Session, error) {
	roles, err := json.Marshal(p.Roles)
	if err != nil {
		return Session{}, err
	}
	const q = `INSERT INTO sessions (id, username, roles, created_at) VALUES ($1,$2,$3,$4) ON CONFLICT (id) DO NOTHING`
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id, err := r.ids.New()
		if err != nil {
			return Session{}, err
		}
		s := Session{ID: id, Principal: p, CreatedAt: r.now().UTC()}
		tag, err := r.db.Exec(ctx, q, string(id), p.Username, roles, s.CreatedAt)
		if err != nil {
			return Session{}, fmt.Errorf("insert session: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("create session: %d id collisions", maxCreateAttempts)
}

func (r *PgSessionRegistry) Lookup(ctx context.Context, id SessionID) (Session, error) {
	if !r.ids.Check(id) {
		return Session{}, ErrSessionNotFound
	}
	const q = `SELECT username, roles, created_at FROM sessions WHERE id=$1`
	var (
		s     = Session{ID: id}
		roles []byte
	)
	if err := r.db.QueryRow(ctx, q, string(id)).Scan(&s.Principal.Username, &roles, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	if err := json.Unmarshal(roles, &s.Principal.Roles); err != nil {
		return Session{}, fmt.Errorf("decode roles: %w", err)
	}
	if r.ttl > 0 && r.now().Sub(s.CreatedAt) >= r.ttl {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (r *PgSessionRegistry) Destroy(ctx context.Context, id SessionID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, string(id))
	return err
}

func (r *PgSessionRegistry) DestroyExpired(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgSessionRegistry) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
