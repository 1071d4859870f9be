package services

import (
	"context"
	"log"
	"time"

	"github.com/patrickmn/go-cache"

	"pinetree/internal/models"
	"pinetree/internal/tree"
)

// TierService manages plan limits and lookups
type TierService struct {
	users  *UserService
	limits map[string]models.TierLimits
	cache  *cache.Cache // userName -> tier
}

// NewTierService creates a new tier service. users may be nil, in which
// case everybody is on the free tier. limits falls back to the defaults.
func NewTierService(users *UserService, limits map[string]models.TierLimits) *TierService {
	if limits == nil {
		limits = models.DefaultTierLimits
	}
	return &TierService{
		users:  users,
		limits: limits,
		cache:  cache.New(5*time.Minute, 10*time.Minute),
	}
}

// GetUserTier returns the plan of a user
func (s *TierService) GetUserTier(ctx context.Context, userName string) string {
	if tier, ok := s.cache.Get(userName); ok {
		return tier.(string)
	}

	tier := models.TierFree
	if s.users != nil {
		user, err := s.users.GetByUserName(ctx, userName)
		if err == nil && user.Tier != "" {
			tier = user.Tier
		} else if err != nil {
			log.Printf("⚠️  [TIER] Falling back to free tier for %s: %v", userName, err)
		}
	}

	s.cache.SetDefault(userName, tier)
	return tier
}

// InvalidateCache removes a user from the cache (call when tier changes)
func (s *TierService) InvalidateCache(userName string) {
	s.cache.Delete(userName)
	log.Printf("🔄 [TIER] Invalidated cache for user %s", userName)
}

// GetLimits returns the limits for a user based on their tier
func (s *TierService) GetLimits(ctx context.Context, userName string) models.TierLimits {
	return s.limitsFor(s.GetUserTier(ctx, userName))
}

func (s *TierService) limitsFor(tier string) models.TierLimits {
	if limits, ok := s.limits[tier]; ok {
		return limits
	}
	if limits, ok := s.limits[models.TierFree]; ok {
		return limits
	}
	return models.GetTierLimits(tier)
}

// IsProfessional reports whether the user gets the professional quota
func (s *TierService) IsProfessional(ctx context.Context, userName string) bool {
	return models.IsProfessional(s.GetUserTier(ctx, userName))
}

// TreeLimits returns the size caps applied to the user's trees
func (s *TierService) TreeLimits(ctx context.Context, userName string) tree.Limits {
	return toTreeLimits(s.GetLimits(ctx, userName))
}

// QuotaPolicy exposes the configured limits to tree editing.
func (s *TierService) QuotaPolicy() tree.LimitPolicy {
	return tree.LimitPolicy{
		Free:         toTreeLimits(s.limitsFor(models.TierFree)),
		Professional: toTreeLimits(s.limitsFor(models.TierPro)),
	}
}

func toTreeLimits(l models.TierLimits) tree.Limits {
	return tree.Limits{MaxDepth: l.MaxDepth, MaxFiles: l.MaxFilesPerTree}
}
