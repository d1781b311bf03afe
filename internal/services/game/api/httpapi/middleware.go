package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/davidvanstory/MultiplayerGame/internal/platform/telemetry/metrics"
)

const (
	limiterIdleEviction = 10 * time.Minute
	limiterSweepEvery   = 1024
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.HTTPRequestDuration.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	}
}

// clientLimits holds one token bucket per submitting client. Idle buckets
// are swept opportunistically so the map stays bounded by live clients.
type clientLimits struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	grants  int
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimits(limit rate.Limit, burst int) *clientLimits {
	return &clientLimits{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}
}

func (c *clientLimits) allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[key] = cl
	}
	cl.lastSeen = now

	c.grants++
	if c.grants%limiterSweepEvery == 0 {
		cutoff := now.Add(-limiterIdleEviction)
		for k, v := range c.clients {
			if v.lastSeen.Before(cutoff) {
				delete(c.clients, k)
			}
		}
	}
	return cl.limiter.Allow()
}
