package models

// Tier names
const (
	TierFree = "free"
	TierPro  = "pro"
)

// TierLimits caps what one plan may do. Negative values mean unlimited.
type TierLimits struct {
	MaxDepth              int   `json:"max_depth" yaml:"max_depth"`
	MaxFilesPerTree       int   `json:"max_files_per_tree" yaml:"max_files_per_tree"`
	MaxImageUploadsPerDay int64 `json:"max_image_uploads_per_day" yaml:"max_image_uploads_per_day"`
	MaxImageBytes         int64 `json:"max_image_bytes" yaml:"max_image_bytes"`
}

// DefaultTierLimits are used unless a limits file overrides them.
var DefaultTierLimits = map[string]TierLimits{
	TierFree: {
		MaxDepth:              5,
		MaxFilesPerTree:       100,
		MaxImageUploadsPerDay: 20,
		MaxImageBytes:         5 * 1024 * 1024,
	},
	TierPro: {
		MaxDepth:              20,
		MaxFilesPerTree:       5000,
		MaxImageUploadsPerDay: 500,
		MaxImageBytes:         20 * 1024 * 1024,
	},
}

// GetTierLimits returns the default limits for a tier, free for unknown tiers.
func GetTierLimits(tier string) TierLimits {
	if limits, ok := DefaultTierLimits[tier]; ok {
		return limits
	}
	return DefaultTierLimits[TierFree]
}

// IsProfessional reports whether the tier gets the professional quota.
func IsProfessional(tier string) bool {
	return tier == TierPro
}
