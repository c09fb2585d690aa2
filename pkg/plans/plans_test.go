package plans

import "testing"

func TestForTier(t *testing.T) {
	free := ForTier(TierFree)
	if free.MaxUsers != 3 {
		t.Errorf("Expected free tier max users 3, got %d", free.MaxUsers)
	}

	business := ForTier(TierBusiness)
	if business.MaxPages <= free.MaxPages {
		t.Error("Expected business tier to allow more pages than free")
	}
}

func TestForTier_UnknownFallsBackToFree(t *testing.T) {
	unknown := ForTier(Tier("gold"))
	if unknown != ForTier(TierFree) {
		t.Errorf("Expected unknown tier to fall back to free limits, got %+v", unknown)
	}
}

func TestLimits_Limit(t *testing.T) {
	l := Limits{MaxUsers: 1, MaxPages: 2, MaxPosts: 3, MaxCourses: 4, MaxStorageMB: 5}

	cases := map[ResourceType]int64{
		ResourceUsers:   1,
		ResourcePages:   2,
		ResourcePosts:   3,
		ResourceCourses: 4,
		ResourceStorage: 5,
	}
	for rt, want := range cases {
		if got := l.Limit(rt); got != want {
			t.Errorf("Limit(%s) = %d, want %d", rt, got, want)
		}
	}

	if got := l.Limit(ResourceType("widgets")); got != 0 {
		t.Errorf("Expected unknown resource type limit 0, got %d", got)
	}
}

func TestResourceType_Valid(t *testing.T) {
	for _, rt := range ResourceTypes() {
		if !rt.Valid() {
			t.Errorf("Expected %s to be valid", rt)
		}
	}
	if ResourceType("widgets").Valid() {
		t.Error("Expected widgets to be invalid")
	}
}
