package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a stored response stays replayable.
const DefaultTTL = 24 * time.Hour

// State is the outcome of reserving a key.
type State int

const (
	// StateNew means the caller owns the key and must either save a response or release it.
	StateNew State = iota
	// StateCompleted means a stored response exists and should be replayed.
	StateCompleted
	// StatePending means another request holds the key right now.
	StatePending
)

// Record is what a store keeps per key.
type Record struct {
	Key            string
	Fingerprint    string
	Completed      bool
	ResponseStatus int
	ResponseHeader http.Header
	ResponseBody   []byte
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Response is the handler output captured for replay.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store persists reservations and replayable responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

// documentID hashes a key so arbitrary client input is safe as a document id.
func documentID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// replayableHeader drops hop-by-hop and framing headers that must not be replayed.
func replayableHeader(src http.Header) http.Header {
	dst := http.Header{}
	for name, values := range src {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade", "trailer", "te":
			continue
		}
		dst[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return dst
}
