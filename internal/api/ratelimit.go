package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"callsense/internal/observability"
)

// maxTrackedClients bounds the limiter table; it is cleared when full.
const maxTrackedClients = 10000

// RateLimiter is a per-client token bucket.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	observer *observability.LimitObserver

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

// NewRateLimiter allows rpm requests per minute per client with the given
// burst. It returns nil, which allows everything, when rpm is not positive.
func NewRateLimiter(rpm, burst int, observer *observability.LimitObserver) *RateLimiter {
	if rpm <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(rpm) / 60.0),
		burst:    burst,
		observer: observer,
		clients:  make(map[string]*rate.Limiter),
	}
}

// Allow takes one token for client. When denied it returns how long the
// client should wait.
func (l *RateLimiter) Allow(client string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	l.mu.Lock()
	lim, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.clients = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.clients[client] = lim
	}
	l.mu.Unlock()

	res := lim.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

func (h *Handler) limit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next(w, r)
			return
		}
		client := clientKey(r)
		ok, wait := h.Limiter.Allow(client)
		if !ok {
			h.Limiter.observer.RecordDeny(r.Context(), client, route)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeDetail(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
