package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// UsageLimiterService tracks and enforces daily image upload limits.
// Counters live in Redis when configured, in process memory otherwise.
type UsageLimiterService struct {
	tierService *TierService
	redis       *redis.Client
	local       *cache.Cache
	now         func() time.Time
}

// UsageLimiterStats holds current usage statistics for a user
type UsageLimiterStats struct {
	ImageUploadsUsed    int64     `json:"image_uploads_used"`
	ImageUploadsLimit   int64     `json:"image_uploads_limit"`
	ImageUploadsResetAt time.Time `json:"image_uploads_reset_at"`
}

// LimitExceededError represents a rate limit error
type LimitExceededError struct {
	ErrorCode string    `json:"error_code"`
	Message   string    `json:"message"`
	Limit     int64     `json:"limit"`
	Used      int64     `json:"used"`
	ResetAt   time.Time `json:"reset_at"`
	UpgradeTo string    `json:"upgrade_to"`
}

func (e *LimitExceededError) Error() string {
	return e.Message
}

// Unwrap lets callers match the quota sentinel.
func (e *LimitExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// NewUsageLimiterService creates a new usage limiter service. redis may be nil.
func NewUsageLimiterService(tierService *TierService, redis *redis.Client) *UsageLimiterService {
	return &UsageLimiterService{
		tierService: tierService,
		redis:       redis,
		local:       cache.New(48*time.Hour, time.Hour),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CheckImageUploadLimit checks if user can upload another image today
func (s *UsageLimiterService) CheckImageUploadLimit(ctx context.Context, userName string) error {
	limits := s.tierService.GetLimits(ctx, userName)

	// Unlimited
	if limits.MaxImageUploadsPerDay < 0 {
		return nil
	}

	count, err := s.GetDailyImageUploadCount(ctx, userName)
	if err != nil {
		// On error, allow request (fail open)
		return nil
	}

	if count >= limits.MaxImageUploadsPerDay {
		return &LimitExceededError{
			ErrorCode: "image_upload_limit_exceeded",
			Message:   fmt.Sprintf("Daily image upload limit reached (%d/%d). Resets at midnight UTC.", count, limits.MaxImageUploadsPerDay),
			Limit:     limits.MaxImageUploadsPerDay,
			Used:      count,
			ResetAt:   s.getNextMidnightUTC(),
			UpgradeTo: s.getSuggestedUpgradeTier(s.tierService.GetUserTier(ctx, userName)),
		}
	}
	return nil
}

// IncrementImageUploadCount increments the user's daily image upload count
func (s *UsageLimiterService) IncrementImageUploadCount(ctx context.Context, userName string) error {
	key := s.getImageUploadKey(userName)
	// Set expiry to next midnight + 24 hours buffer
	expiry := s.getNextMidnightUTC().Add(24 * time.Hour).Sub(s.now())

	if s.redis == nil {
		if _, err := s.local.IncrementInt64(key, 1); err != nil {
			s.local.Set(key, int64(1), expiry)
		}
		return nil
	}

	if _, err := s.redis.Incr(ctx, key).Result(); err != nil {
		return err
	}
	s.redis.Expire(ctx, key, expiry)
	return nil
}

// GetDailyImageUploadCount returns the user's image upload count for today
func (s *UsageLimiterService) GetDailyImageUploadCount(ctx context.Context, userName string) (int64, error) {
	key := s.getImageUploadKey(userName)

	if s.redis == nil {
		if v, ok := s.local.Get(key); ok {
			return v.(int64), nil
		}
		return 0, nil
	}

	count, err := s.redis.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return count, err
}

// GetUsageStats returns the user's usage for the current day
func (s *UsageLimiterService) GetUsageStats(ctx context.Context, userName string) (*UsageLimiterStats, error) {
	used, err := s.GetDailyImageUploadCount(ctx, userName)
	if err != nil {
		return nil, err
	}
	return &UsageLimiterStats{
		ImageUploadsUsed:    used,
		ImageUploadsLimit:   s.tierService.GetLimits(ctx, userName).MaxImageUploadsPerDay,
		ImageUploadsResetAt: s.getNextMidnightUTC(),
	}, nil
}

// getImageUploadKey generates the key for the daily image upload count
func (s *UsageLimiterService) getImageUploadKey(userName string) string {
	date := s.now().Format("2006-01-02")
	return fmt.Sprintf("image_uploads:%s:%s", userName, date)
}

// getNextMidnightUTC returns the next midnight UTC
func (s *UsageLimiterService) getNextMidnightUTC() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// getSuggestedUpgradeTier suggests which tier to upgrade to
func (s *UsageLimiterService) getSuggestedUpgradeTier(currentTier string) string {
	if currentTier == "free" {
		return "pro"
	}
	return ""
}
