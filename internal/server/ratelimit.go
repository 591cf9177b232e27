package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/toonify-go/internal/logging"
)

// Per-IP limits for POST /api/playlist when none are configured. Each
// request fans out to three model calls, so the sustained rate is low.
const (
	defaultRateLimit = 1
	defaultRateBurst = 5
)

// idleEvictAfter is how long an IP may stay quiet before its bucket is dropped.
const idleEvictAfter = 5 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// ipBuckets keeps one token bucket per client IP.
type ipBuckets struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// newRateLimiter returns the per-IP limiter and a stop func for its sweep
// goroutine.
func newRateLimiter(rps float64, burst int) (*ipBuckets, func()) {
	b := &ipBuckets{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				b.sweep(b.now().Add(-idleEvictAfter))
			}
		}
	}()
	return b, func() { close(done) }
}

// take spends one token for ip. When none is available it reports how long
// until one will be.
func (b *ipBuckets) take(ip string) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	bk, ok := b.buckets[ip]
	if !ok {
		bk = &bucket{lim: rate.NewLimiter(b.limit, b.burst)}
		b.buckets[ip] = bk
	}
	bk.seen = now

	r := bk.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// sweep drops buckets last used before cutoff and returns how many went.
func (b *ipBuckets) sweep(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for ip, bk := range b.buckets {
		if bk.seen.Before(cutoff) {
			delete(b.buckets, ip)
			n++
		}
	}
	return n
}

// middleware rejects over-limit requests with 429 and a Retry-After header
// in whole seconds.
func (b *ipBuckets) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, wait := b.take(ip)
		if !ok {
			secs := max(1, int(math.Ceil(wait.Seconds())))
			logging.FromContext(r.Context()).Warn("ratelimit: limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
				slog.Int("retry_after_s", secs),
			)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is not
// trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
