package matching

import "time"

// Boost clamp bounds. Quality signals can nudge a score, never decide
// a match on their own.
const (
	minBoost = -10
	maxBoost = 15
)

// Signals carries the per-agent quality inputs. CompletionRate is
// meaningful only when ResolvedDeals > 0; AvgResponse is nil when the
// agent has no recorded responses.
type Signals struct {
	Reputation     float64
	CompletionRate float64
	ResolvedDeals  int64
	AvgResponse    *time.Duration
	ActiveDays     int
}

// QualityBoost converts an agent's signals into a bounded score
// adjustment.
func QualityBoost(sig Signals) int {
	boost := reputationBoost(sig.Reputation) +
		completionBoost(sig.CompletionRate, sig.ResolvedDeals) +
		responseBoost(sig.AvgResponse) +
		activityBoost(sig.ActiveDays)

	if boost < minBoost {
		return minBoost
	}
	if boost > maxBoost {
		return maxBoost
	}
	return boost
}

// FinalScore applies a boost to a base overlap score and clamps the
// result back into the score range.
func FinalScore(base, boost int) int {
	score := base + boost
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

// reputationBoost maps reputation 0-100 linearly onto 0..6.
func reputationBoost(reputation float64) int {
	if reputation <= 0 {
		return 0
	}
	if reputation > 100 {
		reputation = 100
	}
	return int(reputation * 6 / 100)
}

// completionBoost tiers the historical completion rate. An agent with
// no resolved deals yet is treated as neutral, not unreliable.
func completionBoost(rate float64, resolved int64) int {
	if resolved == 0 {
		return 0
	}
	switch {
	case rate >= 0.9:
		return 4
	case rate >= 0.7:
		return 2
	case rate >= 0.5:
		return 0
	default:
		return -4
	}
}

// responseBoost tiers average response latency. No data is neutral.
func responseBoost(avg *time.Duration) int {
	if avg == nil {
		return 0
	}
	switch {
	case *avg <= time.Hour:
		return 3
	case *avg <= 4*time.Hour:
		return 1
	default:
		return -2
	}
}

// activityBoost tiers distinct active days in the trailing window.
func activityBoost(days int) int {
	switch {
	case days >= 20:
		return 2
	case days >= 10:
		return 1
	case days >= 3:
		return 0
	default:
		return -2
	}
}
