package enums

// UserTier controls per-tier product entitlements.
type UserTier string

const (
	UserTierFree UserTier = "free"
	UserTierPlus UserTier = "plus"
	UserTierPro  UserTier = "pro"
)

// IsValid reports whether the value matches the user tier enum.
func (u UserTier) IsValid() bool {
	switch u {
	case UserTierFree, UserTierPlus, UserTierPro:
		return true
	}
	return false
}
