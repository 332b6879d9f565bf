// Package session implements the durable, expiring conversation store.
// Sessions hold an append-only message history; every append extends the
// session's life by the full TTL, and a background sweep removes sessions
// whose expiry has passed.
package session

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultTTL is the session lifetime granted at creation and renewed
	// in full on every touch.
	DefaultTTL = 7 * 24 * time.Hour

	// DefaultPageSize applies when a caller requests a page without a size.
	DefaultPageSize = 10

	// MaxPageSize caps a caller-requested page size.
	MaxPageSize = 50
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrNotFound marks operations against an unknown or expired session id.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidPage marks a negative page number.
	ErrInvalidPage = errors.New("invalid page number")
)

// Session is the stored metadata of one conversation.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Message is one turn in a session. Seq increases monotonically per
// session starting at 0 and is the sole sort key.
type Message struct {
	Seq       int       `json:"seq"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary describes one session for listing.
type Summary struct {
	ID           string    `json:"id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Stats aggregates over all live sessions.
type Stats struct {
	Sessions int `json:"sessions"`
	Messages int `json:"messages"`
}

// Store is the session persistence contract. Implementations must
// linearize operations on one session id while letting unrelated ids
// proceed independently. Expired sessions that the sweep has not yet
// removed behave as absent.
type Store interface {
	// Create makes a fresh session with a generated id.
	Create(ctx context.Context) (*Session, error)

	// Get retrieves session metadata. Returns ErrNotFound for unknown or
	// expired ids.
	Get(ctx context.Context, id string) (*Session, error)

	// TouchAppend appends one message and extends the session's expiry to
	// now plus the full TTL. Returns ErrNotFound for unknown or expired ids.
	TouchAppend(ctx context.Context, id, role, text string) error

	// ListSessions returns summaries of live sessions, most recently
	// created first.
	ListSessions(ctx context.Context) ([]Summary, error)

	// ReadPage returns one page of messages walking backward from the
	// newest: page 0 holds the most recent pageSize messages, page 1 the
	// next older ones. Within a page messages are in ascending Seq order.
	// A page beyond the history is an empty slice, not an error. pageSize
	// is clamped to MaxPageSize and defaults to DefaultPageSize when
	// non-positive.
	ReadPage(ctx context.Context, id string, page, pageSize int) ([]Message, error)

	// Recent returns the last n messages in ascending Seq order.
	Recent(ctx context.Context, id string, n int) ([]Message, error)

	// Delete removes a session and its messages. Deleting an absent id is
	// not an error.
	Delete(ctx context.Context, id string) error

	// DeleteIfEmpty removes the session only when it has no messages and
	// reports whether it did.
	DeleteIfEmpty(ctx context.Context, id string) (bool, error)

	// SweepExpired deletes every session whose expiry was in the past at
	// sweep-read time and returns how many it removed.
	SweepExpired(ctx context.Context) (int, error)

	// Stats counts live sessions and their messages.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the store's resources.
	Close() error
}

// storeConfig carries the knobs shared by every Store implementation.
type storeConfig struct {
	ttl time.Duration
	now func() time.Time
}

func defaultStoreConfig() storeConfig {
	return storeConfig{ttl: DefaultTTL, now: time.Now}
}

// StoreOption configures a Store implementation.
type StoreOption func(*storeConfig)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) { c.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.now = now }
}

// clampPageSize normalizes a caller-requested page size.
func clampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// pageBounds computes the [start, end) slice of a total message count
// covered by one page, walking backward from the newest message.
func pageBounds(total, page, pageSize int) (int, int) {
	end := total - page*pageSize
	if end <= 0 {
		return 0, 0
	}
	start := end - pageSize
	if start < 0 {
		start = 0
	}
	return start, end
}
