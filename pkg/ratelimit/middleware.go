package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"wabridge/internal/config"
	"wabridge/pkg/metrics"
)

type limiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store keeps one token bucket per client key and forgets keys idle for
// longer than MaxAge.
type Store struct {
	cfg config.RateLimitConfig
	now func() time.Time

	mu       sync.Mutex
	limiters map[string]*limiter
}

func withDefaults(cfg config.RateLimitConfig) config.RateLimitConfig {
	if cfg.RPS <= 0 {
		cfg.RPS = 10.0
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 10 * time.Minute
	}
	return cfg
}

func NewStore(cfg config.RateLimitConfig) *Store {
	return &Store{
		cfg:      withDefaults(cfg),
		now:      time.Now,
		limiters: make(map[string]*limiter),
	}
}

// Allow consumes a token for key and reports the tokens left.
func (s *Store) Allow(key string) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[key]
	if !ok {
		l = &limiter{limiter: rate.NewLimiter(rate.Limit(s.cfg.RPS), s.cfg.Burst)}
		s.limiters[key] = l
	}
	now := s.now()
	l.lastSeen = now

	if !l.limiter.AllowN(now, 1) {
		return false, 0
	}
	remaining := int(l.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining
}

func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, l := range s.limiters {
		if now.Sub(l.lastSeen) > s.cfg.MaxAge {
			delete(s.limiters, key)
		}
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RunCleanup evicts idle keys every CleanupInterval until ctx is done.
func (s *Store) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Middleware limits requests per client IP.
func Middleware(store *Store) gin.HandlerFunc {
	limit := strconv.Itoa(int(store.cfg.RPS))

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = c.RemoteIP()
		}

		allowed, remaining := store.Allow(clientIP)
		c.Header("X-RateLimit-Limit", limit)

		if !allowed {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}
