package matching

import (
	"errors"
	"strings"

	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

// ErrSameSide is returned when both profiles are on the same side of
// the market; only offering/seeking pairs can be scored.
var ErrSameSide = errors.New("profiles are on the same side")

// Scoring constants. Skill overlap dominates, capped so a long shared
// skill list cannot drown out the other dimensions.
const (
	skillPoints        = 15
	skillCap           = 60
	rateOverlapBonus   = 20
	sameCategoryBonus  = 15
	crossCategoryBonus = 5
	maxScore           = 100
)

// ScorePair scores two complementary profiles. It returns (nil, nil)
// when the pair is incompatible: remote preferences conflict, both
// rate constraints are specified but disjoint, or neither skills nor
// category nor rates give any common ground. The result is
// deterministic and symmetric in its inputs.
func ScorePair(a, b *models.Profile) (*models.Overlap, error) {
	if a.Side == b.Side {
		return nil, ErrSameSide
	}

	if !remoteCompatible(a.Remote, b.Remote) {
		return nil, nil
	}

	shared := sharedSkills(a.Skills, b.Skills)
	rateOverlap, ratesDisjoint := rateIntersection(a, b)
	if ratesDisjoint {
		return nil, nil
	}

	sameCategory := strings.EqualFold(a.Category, b.Category)

	// Both sides list skills but share none, and nothing else connects
	// them: not a match worth surfacing.
	if len(shared) == 0 && len(a.Skills) > 0 && len(b.Skills) > 0 &&
		!sameCategory && rateOverlap == nil {
		return nil, nil
	}

	score := len(shared) * skillPoints
	if score > skillCap {
		score = skillCap
	}
	if rateOverlap != nil {
		score += rateOverlapBonus
	}
	if sameCategory {
		score += sameCategoryBonus
	} else {
		score += crossCategoryBonus
	}
	if score > maxScore {
		score = maxScore
	}

	return &models.Overlap{
		Score:            score,
		SharedSkills:     shared,
		RateOverlap:      rateOverlap,
		RemoteCompatible: true,
		SameCategory:     sameCategory,
	}, nil
}

// remoteCompatible reports whether two work-location preferences can
// coexist. Hybrid and unspecified are compatible with everything;
// only a hard remote/onsite split is a conflict.
func remoteCompatible(a, b models.RemotePref) bool {
	if a == models.RemoteRemote && b == models.RemoteOnsite {
		return false
	}
	if a == models.RemoteOnsite && b == models.RemoteRemote {
		return false
	}
	return true
}

// sharedSkills intersects two skill lists case-insensitively,
// preserving the first list's spelling and order and dropping
// duplicates.
func sharedSkills(a, b []string) []string {
	have := make(map[string]bool, len(b))
	for _, skill := range b {
		have[strings.ToLower(strings.TrimSpace(skill))] = true
	}

	var shared []string
	seen := make(map[string]bool)
	for _, skill := range a {
		key := strings.ToLower(strings.TrimSpace(skill))
		if key == "" || seen[key] || !have[key] {
			continue
		}
		seen[key] = true
		shared = append(shared, skill)
	}
	return shared
}

// rateIntersection computes the common rate interval. A missing bound
// means no constraint on that end. The second return is true only when
// both profiles carry rate expectations that cannot meet.
func rateIntersection(a, b *models.Profile) (*models.RateRange, bool) {
	if !a.HasRate() || !b.HasRate() {
		return nil, false
	}

	low := maxBound(a.RateMin, b.RateMin)
	high := minBound(a.RateMax, b.RateMax)
	if low != nil && high != nil && *low > *high {
		return nil, true
	}

	r := &models.RateRange{}
	if low != nil {
		r.Min = *low
	}
	if high != nil {
		r.Max = *high
	} else if low != nil {
		r.Max = *low
	}
	return r, false
}

func maxBound(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil || *a > *b {
		return a
	}
	return b
}

func minBound(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil || *a < *b {
		return a
	}
	return b
}
