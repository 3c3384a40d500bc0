package api

import (
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultMaxRateLimitedClients = 10000

// clientLimiters holds one token bucket per client address.
// Least recently seen clients are evicted once the table is full.
type clientLimiters struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

func newClientLimiters(perSecond float64, burst, maxClients int) (*clientLimiters, error) {
	if maxClients <= 0 {
		maxClients = defaultMaxRateLimitedClients
	}
	cache, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, err
	}
	return &clientLimiters{limiters: cache, limit: rate.Limit(perSecond), burst: burst}, nil
}

// allow consumes one token from ip's bucket
func (c *clientLimiters) allow(ip string) bool {
	c.mu.Lock()
	limiter, ok := c.limiters.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(c.limit, c.burst)
		c.limiters.Add(ip, limiter)
	}
	c.mu.Unlock()

	return limiter.Allow()
}

// rateLimitMiddleware bounds how fast one client can issue and submit tokens
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.limiters == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := getClientIP(r, a.config.Server.TrustProxy)
		if !a.limiters.allow(ip) {
			a.logger.Warnw("Rate limit exceeded",
				"client_ip", ip,
				"path", r.URL.Path,
				"request_id", GetRequestIDOrDefault(r.Context()))
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
