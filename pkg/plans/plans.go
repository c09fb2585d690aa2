// Package plans holds the compiled-in plan catalog. Limits are configuration
// shipped with the deploy, never database rows, so a runtime compromise of
// the database cannot raise billing-relevant limits.
package plans

// Tier represents a subscription plan tier.
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierBusiness   Tier = "business"
	TierEnterprise Tier = "enterprise"
)

// ResourceType identifies a quota-limited resource.
type ResourceType string

const (
	ResourceUsers   ResourceType = "users"
	ResourcePages   ResourceType = "pages"
	ResourcePosts   ResourceType = "posts"
	ResourceCourses ResourceType = "courses"
	ResourceStorage ResourceType = "storage" // measured in MB
)

// ResourceTypes lists every quota-limited resource type.
func ResourceTypes() []ResourceType {
	return []ResourceType{ResourceUsers, ResourcePages, ResourcePosts, ResourceCourses, ResourceStorage}
}

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	for _, rt := range ResourceTypes() {
		if t == rt {
			return true
		}
	}
	return false
}

// Limits holds the resource limits for one plan tier.
type Limits struct {
	MaxUsers     int64 `json:"max_users"`
	MaxPages     int64 `json:"max_pages"`
	MaxPosts     int64 `json:"max_posts"`
	MaxCourses   int64 `json:"max_courses"`
	MaxStorageMB int64 `json:"max_storage_mb"`
}

// Limit returns the limit for a single resource type.
func (l Limits) Limit(t ResourceType) int64 {
	switch t {
	case ResourceUsers:
		return l.MaxUsers
	case ResourcePages:
		return l.MaxPages
	case ResourcePosts:
		return l.MaxPosts
	case ResourceCourses:
		return l.MaxCourses
	case ResourceStorage:
		return l.MaxStorageMB
	default:
		return 0
	}
}

var catalog = map[Tier]Limits{
	TierFree: {
		MaxUsers:     3,
		MaxPages:     10,
		MaxPosts:     25,
		MaxCourses:   1,
		MaxStorageMB: 500,
	},
	TierStarter: {
		MaxUsers:     10,
		MaxPages:     50,
		MaxPosts:     250,
		MaxCourses:   10,
		MaxStorageMB: 5 * 1024,
	},
	TierBusiness: {
		MaxUsers:     50,
		MaxPages:     500,
		MaxPosts:     2500,
		MaxCourses:   100,
		MaxStorageMB: 50 * 1024,
	},
	TierEnterprise: {
		MaxUsers:     999999,
		MaxPages:     999999,
		MaxPosts:     999999,
		MaxCourses:   999999,
		MaxStorageMB: 999999 * 1024,
	},
}

// ForTier returns the limits for a plan tier. Unknown tiers fall back to the
// free tier so a bad row can only ever under-grant.
func ForTier(tier Tier) Limits {
	if limits, ok := catalog[tier]; ok {
		return limits
	}
	return catalog[TierFree]
}

// Tiers lists every known plan tier.
func Tiers() []Tier {
	return []Tier{TierFree, TierStarter, TierBusiness, TierEnterprise}
}
