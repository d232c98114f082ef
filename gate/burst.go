package gate

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// burstGuard keeps a token bucket per client IP so a single address cannot
// flood the service faster than the Redis budgets can account for. Buckets
// idle past the sweep age are dropped.
type burstGuard struct {
	mu      sync.Mutex
	buckets map[string]*burstBucket
	limit   rate.Limit
	burst   int
	maxAge  time.Duration
	done    chan struct{}
}

type burstBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newBurstGuard(perSecond float64, burst int) *burstGuard {
	g := &burstGuard{
		buckets: make(map[string]*burstBucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		maxAge:  3 * time.Minute,
		done:    make(chan struct{}),
	}
	go g.sweep()
	return g
}

func (g *burstGuard) allow(ip string) bool {
	g.mu.Lock()
	b, ok := g.buckets[ip]
	if !ok {
		b = &burstBucket{limiter: rate.NewLimiter(g.limit, g.burst)}
		g.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	g.mu.Unlock()
	return b.limiter.Allow()
}

func (g *burstGuard) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-g.maxAge)
			g.mu.Lock()
			for ip, b := range g.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(g.buckets, ip)
				}
			}
			g.mu.Unlock()
		}
	}
}

func (g *burstGuard) close() {
	close(g.done)
}

func (g *burstGuard) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.allow(clientIP(r)) {
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
