package middleware

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Anonymous public page reads (per IP)
	PublicReadMax        int
	PublicReadExpiration time.Duration

	// Login and registration attempts (per IP)
	AuthAttemptMax        int
	AuthAttemptExpiration time.Duration

	// Tree saves per user: sustained rate and burst
	TreeSavesPerSecond float64
	TreeSaveBurst      int
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalAPIMax:        300,
		GlobalAPIExpiration: 1 * time.Minute,

		PublicReadMax:        120,
		PublicReadExpiration: 1 * time.Minute,

		AuthAttemptMax:        10,
		AuthAttemptExpiration: 15 * time.Minute,

		// editors autosave every few seconds; allow bursts after reconnects
		TreeSavesPerSecond: 2,
		TreeSaveBurst:      20,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	if n, ok := positiveEnv("RATE_LIMIT_GLOBAL_API"); ok {
		config.GlobalAPIMax = n
	}
	if n, ok := positiveEnv("RATE_LIMIT_PUBLIC_READ"); ok {
		config.PublicReadMax = n
	}
	if n, ok := positiveEnv("RATE_LIMIT_AUTH_ATTEMPTS"); ok {
		config.AuthAttemptMax = n
	}
	if n, ok := positiveEnv("RATE_LIMIT_TREE_SAVE_BURST"); ok {
		config.TreeSaveBurst = n
	}

	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		config.AuthAttemptMax = 100
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

func positiveEnv(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// GlobalAPIRateLimiter limits all API requests per IP
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.GlobalAPIExpiration.Seconds()),
			})
		},
	})
}

// PublicReadRateLimiter for anonymous public pages
func PublicReadRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.PublicReadMax,
		Expiration: config.PublicReadExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "public:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Public page limit reached for IP: %s on %s", c.IP(), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests to this endpoint.",
				"retry_after": int(config.PublicReadExpiration.Seconds()),
			})
		},
	})
}

// AuthAttemptRateLimiter slows down credential stuffing on login/register
func AuthAttemptRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AuthAttemptMax,
		Expiration: config.AuthAttemptExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "auth:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Auth attempts exhausted for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many attempts. Please try again later.",
				"retry_after": int(config.AuthAttemptExpiration.Seconds()),
			})
		},
	})
}

// TreeSaveLimiter is a per-user token bucket for tree writes.
type TreeSaveLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTreeSaveLimiter creates a limiter from config
func NewTreeSaveLimiter(config *RateLimitConfig) *TreeSaveLimiter {
	return &TreeSaveLimiter{
		limiters: make(map[string]*userLimiter),
		limit:    rate.Limit(config.TreeSavesPerSecond),
		burst:    config.TreeSaveBurst,
		idleTTL:  10 * time.Minute,
	}
}

// Allow reports whether user may write now.
func (l *TreeSaveLimiter) Allow(user string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	ul, ok := l.limiters[user]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[user] = ul
	}
	ul.lastSeen = now

	if len(l.limiters) > 1024 {
		for name, other := range l.limiters {
			if now.Sub(other.lastSeen) > l.idleTTL {
				delete(l.limiters, name)
			}
		}
	}
	return ul.limiter.AllowN(now, 1)
}

// Handler rejects writes once the user's bucket is empty.
func (l *TreeSaveLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := UserName(c)
		if user == "" {
			user = "ip:" + c.IP()
		}
		if !l.Allow(user) {
			log.Printf("⚠️  [RATE-LIMIT] Tree save limit reached for: %s", user)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Saving too quickly. Please wait a moment.",
			})
		}
		return c.Next()
	}
}
