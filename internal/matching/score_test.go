package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

func f(v float64) *float64 { return &v }

func offering(mutate ...func(*models.Profile)) *models.Profile {
	p := &models.Profile{
		Side:     models.SideOffering,
		Category: "backend",
		Skills:   []string{"Go", "Postgres"},
		RateMin:  f(50),
		RateMax:  f(100),
	}
	for _, m := range mutate {
		m(p)
	}
	return p
}

func seeking(mutate ...func(*models.Profile)) *models.Profile {
	p := &models.Profile{
		Side:     models.SideSeeking,
		Category: "backend",
		Skills:   []string{"go", "Kubernetes"},
		RateMin:  f(60),
		RateMax:  f(120),
	}
	for _, m := range mutate {
		m(p)
	}
	return p
}

func TestScorePairSameSide(t *testing.T) {
	_, err := ScorePair(offering(), offering())
	assert.ErrorIs(t, err, ErrSameSide)
}

func TestScorePairBasicOverlap(t *testing.T) {
	overlap, err := ScorePair(offering(), seeking())
	require.NoError(t, err)
	require.NotNil(t, overlap)

	// One shared skill, rates overlap, same category
	assert.Equal(t, []string{"Go"}, overlap.SharedSkills)
	assert.True(t, overlap.SameCategory)
	assert.True(t, overlap.RemoteCompatible)
	require.NotNil(t, overlap.RateOverlap)
	assert.Equal(t, 60.0, overlap.RateOverlap.Min)
	assert.Equal(t, 100.0, overlap.RateOverlap.Max)
	assert.Equal(t, skillPoints+rateOverlapBonus+sameCategoryBonus, overlap.Score)
}

func TestScorePairSymmetric(t *testing.T) {
	a, b := offering(), seeking()

	ab, err := ScorePair(a, b)
	require.NoError(t, err)
	ba, err := ScorePair(b, a)
	require.NoError(t, err)

	assert.Equal(t, ab.Score, ba.Score)
	assert.Equal(t, len(ab.SharedSkills), len(ba.SharedSkills))
}

func TestScorePairSkillsCaseInsensitive(t *testing.T) {
	a := offering(func(p *models.Profile) { p.Skills = []string{"GoLang", "RUST", "rust"} })
	b := seeking(func(p *models.Profile) { p.Skills = []string{"golang", "Rust"} })

	overlap, err := ScorePair(a, b)
	require.NoError(t, err)
	require.NotNil(t, overlap)

	// First profile's spelling wins, duplicates collapse
	assert.Equal(t, []string{"GoLang", "RUST"}, overlap.SharedSkills)
}

func TestScorePairSkillCap(t *testing.T) {
	many := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	a := offering(func(p *models.Profile) { p.Skills = many })
	b := seeking(func(p *models.Profile) { p.Skills = many })

	overlap, err := ScorePair(a, b)
	require.NoError(t, err)
	require.NotNil(t, overlap)
	assert.LessOrEqual(t, overlap.Score, maxScore)
	assert.Equal(t, skillCap+rateOverlapBonus+sameCategoryBonus, overlap.Score)
}

func TestScorePairRemoteConflict(t *testing.T) {
	a := offering(func(p *models.Profile) { p.Remote = models.RemoteRemote })
	b := seeking(func(p *models.Profile) { p.Remote = models.RemoteOnsite })

	overlap, err := ScorePair(a, b)
	require.NoError(t, err)
	assert.Nil(t, overlap, "remote vs onsite is incompatible")
}

func TestScorePairHybridAlwaysCompatible(t *testing.T) {
	for _, pref := range []models.RemotePref{models.RemoteRemote, models.RemoteOnsite, models.RemoteHybrid, ""} {
		a := offering(func(p *models.Profile) { p.Remote = models.RemoteHybrid })
		b := seeking(func(p *models.Profile) { p.Remote = pref })

		overlap, err := ScorePair(a, b)
		require.NoError(t, err)
		require.NotNil(t, overlap, "hybrid should match %q", pref)
	}
}

func TestScorePairDisjointRates(t *testing.T) {
	a := offering(func(p *models.Profile) { p.RateMin = f(200); p.RateMax = f(300) })
	b := seeking(func(p *models.Profile) { p.RateMin = f(10); p.RateMax = f(50) })

	overlap, err := ScorePair(a, b)
	require.NoError(t, err)
	assert.Nil(t, overlap, "disjoint rate expectations cannot match")
}

func TestScorePairMissingRateMeansNoConstraint(t *testing.T) {
	a := offering(func(p *models.Profile) { p.RateMin = nil; p.RateMax = nil })
	b := seeking(func(p *models.Profile) { p.RateMin = f(10000); p.RateMax = f(20000) })

	overlap, err := ScorePair(a, b)
	require.NoError(t, err)
	require.NotNil(t, overlap, "absent rates never exclude a pair")
	assert.Nil(t, overlap.RateOverlap, "no rate bonus without both constraints")
}

func TestScorePairOpenEndedRates(t *testing.T) {
	a := offering(func(p *models.Profile) { p.RateMin = f(80); p.RateMax = nil })
	b := seeking(func(p *models.Profile) { p.RateMin = nil; p.RateMax = f(60) })

	overlap, err := ScorePair(a, b)
	require.NoError(t, err)
	assert.Nil(t, overlap, "min above the counterpart's max is disjoint")
}

func TestScorePairCrossCategory(t *testing.T) {
	a := offering()
	b := seeking(func(p *models.Profile) { p.Category = "frontend" })

	overlap, err := ScorePair(a, b)
	require.NoError(t, err)
	require.NotNil(t, overlap)
	assert.False(t, overlap.SameCategory)
	assert.Equal(t, skillPoints+rateOverlapBonus+crossCategoryBonus, overlap.Score)
}

func TestScorePairNoCommonGround(t *testing.T) {
	a := offering(func(p *models.Profile) {
		p.Skills = []string{"go"}
		p.Category = "backend"
		p.RateMin, p.RateMax = nil, nil
	})
	b := seeking(func(p *models.Profile) {
		p.Skills = []string{"painting"}
		p.Category = "art"
		p.RateMin, p.RateMax = nil, nil
	})

	overlap, err := ScorePair(a, b)
	require.NoError(t, err)
	assert.Nil(t, overlap, "disjoint skills across categories with no rate signal is no match")
}

func TestScorePairOneSidedSkillsIsNotRejected(t *testing.T) {
	// Only one side lists skills: that side has a constraint, the other
	// has none, and an absent constraint never vetoes. The pair still
	// surfaces on the residual category signal.
	a := offering(func(p *models.Profile) {
		p.Skills = []string{"go"}
		p.Category = "backend"
		p.RateMin, p.RateMax = nil, nil
	})
	b := seeking(func(p *models.Profile) {
		p.Skills = nil
		p.Category = "art"
		p.RateMin, p.RateMax = nil, nil
	})

	overlap, err := ScorePair(a, b)
	require.NoError(t, err)
	require.NotNil(t, overlap)
	assert.Empty(t, overlap.SharedSkills)
	assert.Equal(t, crossCategoryBonus, overlap.Score)
}

func TestScorePairBounded(t *testing.T) {
	overlap, err := ScorePair(offering(), seeking())
	require.NoError(t, err)
	require.NotNil(t, overlap)
	assert.GreaterOrEqual(t, overlap.Score, 0)
	assert.LessOrEqual(t, overlap.Score, 100)
}
