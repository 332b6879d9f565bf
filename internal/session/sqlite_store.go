package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteSchema is applied on open. Message rows cascade with their
// session; timestamps are unix nanoseconds.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		text       TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,
}

// SQLiteStore is the file-backed Store. WAL mode keeps readers off the
// writer's path; immediate transactions serialize appends so per-session
// message order is never torn.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string, opts ...StoreOption) (*SQLiteStore, error) {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	s := &SQLiteStore{db: db, ttl: cfg.ttl, now: cfg.now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Create makes a fresh session with a generated id.
func (s *SQLiteStore) Create(ctx context.Context) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        newID(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, expires_at) VALUES (?, ?, ?)`,
		sess.ID, sess.CreatedAt.UnixNano(), sess.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Get retrieves session metadata.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	var createdNs, expiresNs int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&createdNs, &expiresNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess := &Session{
		ID:        id,
		CreatedAt: fromNano(createdNs),
		ExpiresAt: fromNano(expiresNs),
	}
	if sess.ExpiresAt.Before(s.now()) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return sess, nil
}

// TouchAppend appends one message and extends the expiry by the full TTL.
func (s *SQLiteStore) TouchAppend(ctx context.Context, id, role, text string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var expiresNs int64
	err = tx.QueryRowContext(ctx,
		`SELECT expires_at FROM sessions WHERE id = ?`, id,
	).Scan(&expiresNs)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}

	now := s.now()
	if fromNano(expiresNs).Before(now) {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, seq, role, text, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq)+1, 0) FROM messages WHERE session_id = ?), ?, ?, ?)`,
		id, id, role, text, now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ? WHERE id = ?`,
		now.Add(s.ttl).UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("extend expiry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// ListSessions returns live session summaries, newest created first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.created_at, s.expires_at, COUNT(m.session_id)
		 FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		 WHERE s.expires_at >= ?
		 GROUP BY s.id
		 ORDER BY s.created_at DESC, s.id ASC`,
		s.now().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		var createdNs, expiresNs int64
		if err := rows.Scan(&sum.ID, &createdNs, &expiresNs, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		sum.CreatedAt = fromNano(createdNs)
		sum.ExpiresAt = fromNano(expiresNs)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return summaries, nil
}

// ReadPage returns one page of messages walking backward from the newest.
func (s *SQLiteStore) ReadPage(ctx context.Context, id string, page, pageSize int) ([]Message, error) {
	if page < 0 {
		return nil, fmt.Errorf("page %d: %w", page, ErrInvalidPage)
	}
	pageSize = clampPageSize(pageSize)

	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, role, text, created_at FROM messages
		 WHERE session_id = ?
		 ORDER BY seq DESC LIMIT ? OFFSET ?`,
		id, pageSize, page*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// Recent returns the last n messages in ascending Seq order.
func (s *SQLiteStore) Recent(ctx context.Context, id string, n int) ([]Message, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, role, text, created_at FROM messages
		 WHERE session_id = ?
		 ORDER BY seq DESC LIMIT ?`,
		id, n,
	)
	if err != nil {
		return nil, fmt.Errorf("read recent: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// Delete removes a session. Absent ids are not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteIfEmpty removes the session only when it has no messages.
func (s *SQLiteStore) DeleteIfEmpty(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = ?
		 AND NOT EXISTS (SELECT 1 FROM messages WHERE session_id = ?)`,
		id, id,
	)
	if err != nil {
		return false, fmt.Errorf("delete empty session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete empty session: %w", err)
	}
	return n > 0, nil
}

// SweepExpired deletes every session whose expiry has passed. The single
// delete statement is its own transaction, so a session mid-append is
// either untouched or already renewed by the time the predicate runs.
func (s *SQLiteStore) SweepExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, s.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	return int(n), nil
}

// Stats counts live sessions and their messages.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	nowNs := s.now().UnixNano()

	var stats Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE expires_at >= ?`, nowNs,
	).Scan(&stats.Sessions)
	if err != nil {
		return Stats{}, fmt.Errorf("count sessions: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages m
		 JOIN sessions s ON s.id = m.session_id
		 WHERE s.expires_at >= ?`, nowNs,
	).Scan(&stats.Messages)
	if err != nil {
		return Stats{}, fmt.Errorf("count messages: %w", err)
	}
	return stats, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var msg Message
		var createdNs int64
		if err := rows.Scan(&msg.Seq, &msg.Role, &msg.Text, &createdNs); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = fromNano(createdNs)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return messages, nil
}

func reverseMessages(messages []Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

func fromNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
