package middleware

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sirosfoundation/go-bundle-host/pkg/config"
)

// AttemptLimiter locks out clients that keep failing authentication.
type AttemptLimiter struct {
	config config.AttemptLimitConfig
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*attemptLimiter

	cleanupInterval time.Duration
	lastCleanup     time.Time
	now             func() time.Time
}

// attemptLimiter tracks state for a single client
type attemptLimiter struct {
	limiter    *rate.Limiter
	lastSeen   time.Time
	lockoutEnd time.Time
}

// NewAttemptLimiter creates a new limiter
func NewAttemptLimiter(cfg config.AttemptLimitConfig, logger *zap.Logger) *AttemptLimiter {
	cfg.SetDefaults()
	return &AttemptLimiter{
		config:          cfg,
		logger:          logger.Named("admin-ratelimit"),
		limiters:        make(map[string]*attemptLimiter),
		cleanupInterval: 10 * time.Minute,
		lastCleanup:     time.Now(),
		now:             time.Now,
	}
}

// getLimiter returns the limiter for a client, creating it if needed. The
// caller holds r.mu.
func (r *AttemptLimiter) getLimiter(identifier string) *attemptLimiter {
	now := r.now()
	if now.Sub(r.lastCleanup) > r.cleanupInterval {
		r.cleanup(now)
	}

	if l, ok := r.limiters[identifier]; ok {
		l.lastSeen = now
		return l
	}

	// Rate: MaxAttempts per WindowSeconds
	limit := rate.Limit(float64(r.config.MaxAttempts) / float64(r.config.WindowSeconds))
	burst := int(math.Ceil(float64(r.config.MaxAttempts) / 2.0))
	if burst < 1 {
		burst = 1
	}

	l := &attemptLimiter{
		limiter:  rate.NewLimiter(limit, burst),
		lastSeen: now,
	}
	r.limiters[identifier] = l
	return l
}

func (r *AttemptLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-30 * time.Minute)
	for key, l := range r.limiters {
		if l.lastSeen.Before(cutoff) && now.After(l.lockoutEnd) {
			delete(r.limiters, key)
		}
	}
	r.lastCleanup = now
}

// Allow reports whether identifier may attempt to authenticate.
func (r *AttemptLimiter) Allow(identifier string) bool {
	if !r.config.Enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.getLimiter(identifier)
	return !r.now().Before(l.lockoutEnd)
}

// RecordFailure consumes budget for a failed attempt and locks the client
// out once the budget is exhausted.
func (r *AttemptLimiter) RecordFailure(identifier string) {
	if !r.config.Enabled {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.getLimiter(identifier)
	now := r.now()
	if l.limiter.AllowN(now, 1) {
		return
	}

	lockout := time.Duration(r.config.LockoutSeconds) * time.Second
	l.lockoutEnd = now.Add(lockout)
	r.logger.Warn("Failed attempt limit exceeded, applying lockout",
		zap.String("identifier", identifier),
		zap.Duration("lockout_duration", lockout),
	)
}
