package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/transport"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Rate limit scopes. Each scope keeps its own budget per client address.
const (
	ScopeLogin          = "login"
	ScopeSignup         = "signup"
	ScopeFinalizeSignup = "finalize_signup"
	ScopeOTPVerify      = "otp_verify"
	ScopeOTPResend      = "otp_resend"
	ScopeTwoFactor      = "twofa_verify"
	ScopeRefresh        = "refresh"
	ScopeEnableTwoFA    = "enable_2fa"
)

// Limiter decides whether one more request under key fits the rule.
// When it does not, the returned duration is how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string, rule internal.RateLimitRule) (bool, time.Duration, error)
}

// RateLimit throttles a route group by scope and client address.
// Limiter failures let the request through.
func RateLimit(base *transport.BaseHandler, limiter Limiter, scope string, rule internal.RateLimitRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || rule.Requests <= 0 || rule.Per <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := transport.ClientIP(r)
			allowed, retryAfter, err := limiter.Allow(r.Context(), scope+":"+ip, rule)
			if err != nil {
				base.Logger.WarnContext(r.Context(), "rate limiter unavailable", "scope", scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				base.Logger.InfoContext(r.Context(), "rate limit exceeded", "scope", scope, "ip", ip)
				limited := *internal.ErrRateLimited
				limited.RetryAfter = retryAfter
				base.HandleServiceError(w, &limited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// MemoryLimiter keeps a token bucket per key in process memory.
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
	idle      time.Duration
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		idle:    2 * time.Hour,
	}
}

func (m *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	m.now = now
	return m
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, rule internal.RateLimitRule) (bool, time.Duration, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now)

	b, ok := m.buckets[key]
	if !ok {
		every := rule.Per / time.Duration(rule.Requests)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), rule.Requests)}
		m.buckets[key] = b
	}
	b.seen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, rule.Per, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// Len reports how many clients are currently tracked.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

func (m *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < time.Minute {
		return
	}
	m.lastSweep = now
	for key, b := range m.buckets {
		if now.Sub(b.seen) > m.idle {
			delete(m.buckets, key)
		}
	}
}

// RedisLimiter counts requests in fixed windows shared by every instance.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisLimiter) WithClock(now func() time.Time) *RedisLimiter {
	l.now = now
	return l
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, rule internal.RateLimitRule) (bool, time.Duration, error) {
	now := l.now()
	window := now.UnixNano() / int64(rule.Per)
	windowEnd := time.Unix(0, (window+1)*int64(rule.Per))
	redisKey := l.prefix + "rl:" + key + ":" + strconv.FormatInt(window, 10)

	var count *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, redisKey)
		pipe.PExpire(ctx, redisKey, rule.Per)
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	if count.Val() > int64(rule.Requests) {
		return false, windowEnd.Sub(now), nil
	}
	return true, 0, nil
}
