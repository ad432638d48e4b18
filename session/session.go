// Package session holds per-conversation transient state: a UUID-shaped
// id, an append-only message log, and an idle TTL, backed by either an
// in-memory map or Redis, following the key-prefix/TTL shape of
// store/redis/redis.go.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is one turn appended to a session's log.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the entity described in spec.md §3.
type Session struct {
	ID           string    `json:"id"`
	CanvasID     string    `json:"canvas_id,omitempty"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// MessageCount is a convenience accessor used by the session-inspection
// external interface (spec §6).
func (s *Session) MessageCount() int { return len(s.Messages) }

// Store is the persistence contract session consumers depend on.
// Implementations: Memory (process-local) and Redis (shared, TTL-backed).
type Store interface {
	// Create starts a new session, generating a UUID-shaped id.
	Create(ctx context.Context, canvasID string) (*Session, error)

	// Get returns the session for id, or (nil, false) if absent or
	// expired.
	Get(ctx context.Context, id string) (*Session, bool, error)

	// Touch appends msg to id's log and refreshes LastActivity. It
	// also updates CanvasID when canvasID is non-empty and the
	// session did not already have one, mirroring "echo the supplied
	// id, otherwise adopt what's given" from spec §6.
	Touch(ctx context.Context, id string, canvasID string, msg *Message) (*Session, error)

	// GC removes sessions idle longer than ttl. Returns the number
	// removed.
	GC(ctx context.Context, ttl time.Duration) (int, error)
}

// DefaultTTL is the idle horizon after which a session is eligible for GC
// (spec §6, "session TTL": 24h idle).
const DefaultTTL = 24 * time.Hour

func newID() string { return uuid.NewString() }
