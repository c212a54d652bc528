package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/food-passport/api/internal/platform/auth"
)

type rateLimiter interface {
	Allow(key string) bool
}

// windowLimiter admits up to limit calls per key in each fixed window.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	buckets map[string]windowBucket
}

type windowBucket struct {
	used    int
	resetAt time.Time
}

func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		buckets: make(map[string]windowBucket),
	}
}

func (l *windowLimiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok || !now.Before(bucket.resetAt) {
		l.sweep(now)
		l.buckets[key] = windowBucket{used: 1, resetAt: now.Add(l.window)}
		return true
	}
	if bucket.used >= l.limit {
		return false
	}
	bucket.used++
	l.buckets[key] = bucket
	return true
}

func (l *windowLimiter) sweep(now time.Time) {
	for key, bucket := range l.buckets {
		if !now.Before(bucket.resetAt) {
			delete(l.buckets, key)
		}
	}
}

// scanClientKey identifies the caller for scan limits: the verified Firebase uid when the request
// is authenticated, else the remote address with the port stripped. RealIP runs earlier in the
// chain. Form fields are client-controlled and never feed the key.
func scanClientKey(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && strings.TrimSpace(identity.UID) != "" {
		return "uid:" + identity.UID
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return "ip:" + host
}
