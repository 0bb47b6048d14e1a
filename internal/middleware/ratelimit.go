package middleware

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/example/cyclebees/internal/services"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key and forgets keys idle for longer than ttl.
type KeyedLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    rate.Limit
	burst    int
	ttl      time.Duration
}

// NewKeyedLimiter allows burst events per key, refilled at one per interval.
func NewKeyedLimiter(interval time.Duration, burst int, ttl time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		visitors: make(map[string]*visitor),
		every:    rate.Every(interval),
		burst:    burst,
		ttl:      ttl,
	}
}

// Allow consumes a token for key.
func (l *KeyedLimiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, k)
		}
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// phoneKey collapses formatting differences so one number always maps to one bucket.
func phoneKey(raw string) string {
	phone, err := services.NormalizePhone(raw)
	if err != nil {
		phone = strings.TrimSpace(raw)
	}
	return "phone:" + strings.TrimPrefix(phone, "+")
}

// OTPRateLimit throttles OTP requests per phone number, falling back to the client IP.
func OTPRateLimit(l *KeyedLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "ip:" + c.IP()
		var body struct {
			Phone string `json:"phone"`
		}
		if err := json.Unmarshal(c.Body(), &body); err == nil && body.Phone != "" {
			key = phoneKey(body.Phone)
		}

		if !l.Allow(key) {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many otp requests, try again later")
		}
		return c.Next()
	}
}
