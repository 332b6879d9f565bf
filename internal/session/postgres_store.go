package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		text       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,
}

// PostgresStore is the Postgres-backed Store. Appends lock the session
// row, so operations on one id are linearized while other ids proceed on
// their own rows.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewPostgresStore connects to the database at dsn and applies the schema.
func NewPostgresStore(ctx context.Context, dsn string, opts ...StoreOption) (*PostgresStore, error) {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, ttl: cfg.ttl, now: cfg.now}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Create makes a fresh session with a generated id.
func (s *PostgresStore) Create(ctx context.Context) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        newID(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, created_at, expires_at) VALUES ($1, $2, $3)`,
		sess.ID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Get retrieves session metadata.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	sess := &Session{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT created_at, expires_at FROM sessions WHERE id = $1`, id,
	).Scan(&sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.ExpiresAt.Before(s.now()) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return sess, nil
}

// TouchAppend appends one message and extends the expiry by the full TTL.
func (s *PostgresStore) TouchAppend(ctx context.Context, id, role, text string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	var expiresAt time.Time
	err = tx.QueryRow(ctx,
		`SELECT expires_at FROM sessions WHERE id = $1 FOR UPDATE`, id,
	).Scan(&expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}

	now := s.now()
	if expiresAt.Before(now) {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (session_id, seq, role, text, created_at)
		 VALUES ($1, (SELECT COALESCE(MAX(seq)+1, 0) FROM messages WHERE session_id = $1), $2, $3, $4)`,
		id, role, text, now,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET expires_at = $1 WHERE id = $2`,
		now.Add(s.ttl), id,
	)
	if err != nil {
		return fmt.Errorf("extend expiry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// ListSessions returns live session summaries, newest created first.
func (s *PostgresStore) ListSessions(ctx context.Context) ([]Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.id, s.created_at, s.expires_at, COUNT(m.session_id)
		 FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		 WHERE s.expires_at >= $1
		 GROUP BY s.id
		 ORDER BY s.created_at DESC, s.id ASC`,
		s.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &sum.ExpiresAt, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return summaries, nil
}

// ReadPage returns one page of messages walking backward from the newest.
func (s *PostgresStore) ReadPage(ctx context.Context, id string, page, pageSize int) ([]Message, error) {
	if page < 0 {
		return nil, fmt.Errorf("page %d: %w", page, ErrInvalidPage)
	}
	pageSize = clampPageSize(pageSize)

	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT seq, role, text, created_at FROM messages
		 WHERE session_id = $1
		 ORDER BY seq DESC LIMIT $2 OFFSET $3`,
		id, pageSize, page*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	defer rows.Close()

	messages, err := scanPgMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// Recent returns the last n messages in ascending Seq order.
func (s *PostgresStore) Recent(ctx context.Context, id string, n int) ([]Message, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT seq, role, text, created_at FROM messages
		 WHERE session_id = $1
		 ORDER BY seq DESC LIMIT $2`,
		id, n,
	)
	if err != nil {
		return nil, fmt.Errorf("read recent: %w", err)
	}
	defer rows.Close()

	messages, err := scanPgMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// Delete removes a session. Absent ids are not an error.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteIfEmpty removes the session only when it has no messages.
func (s *PostgresStore) DeleteIfEmpty(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE id = $1
		 AND NOT EXISTS (SELECT 1 FROM messages WHERE session_id = $1)`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("delete empty session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SweepExpired deletes every session whose expiry has passed.
func (s *PostgresStore) SweepExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats counts live sessions and their messages.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	now := s.now()

	var stats Stats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE expires_at >= $1`, now,
	).Scan(&stats.Sessions)
	if err != nil {
		return Stats{}, fmt.Errorf("count sessions: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages m
		 JOIN sessions s ON s.id = m.session_id
		 WHERE s.expires_at >= $1`, now,
	).Scan(&stats.Messages)
	if err != nil {
		return Stats{}, fmt.Errorf("count messages: %w", err)
	}
	return stats, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgMessages(rows pgx.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Seq, &msg.Role, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return messages, nil
}
