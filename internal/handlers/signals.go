package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dealmesh-protocol/dealmesh/internal/matching"
	"github.com/dealmesh-protocol/dealmesh/internal/store"
)

// SignalAdapter assembles quality signals from the durable store and
// the Redis signal counters. A nil Redis store degrades to neutral
// latency and activity signals.
type SignalAdapter struct {
	db    store.DataStore
	redis *store.RedisStore
}

// NewSignalAdapter creates a signal source over the two stores.
func NewSignalAdapter(db store.DataStore, redis *store.RedisStore) *SignalAdapter {
	return &SignalAdapter{db: db, redis: redis}
}

// SignalsFor implements matching.SignalSource.
func (s *SignalAdapter) SignalsFor(ctx context.Context, agentID uuid.UUID) (matching.Signals, error) {
	var sig matching.Signals

	agent, err := s.db.GetAgent(ctx, agentID)
	if err != nil {
		return sig, fmt.Errorf("load agent: %w", err)
	}
	if agent != nil {
		sig.Reputation = agent.Reputation
	}

	completed, resolved, err := s.db.DealOutcomes(ctx, agentID)
	if err != nil {
		return sig, fmt.Errorf("deal outcomes: %w", err)
	}
	sig.ResolvedDeals = resolved
	if resolved > 0 {
		sig.CompletionRate = float64(completed) / float64(resolved)
	}

	if s.redis == nil {
		return sig, nil
	}
	avg, err := s.redis.AvgResponseLatency(ctx, agentID)
	if err != nil {
		return sig, fmt.Errorf("response latency: %w", err)
	}
	sig.AvgResponse = avg

	days, err := s.redis.ActiveDays(ctx, agentID)
	if err != nil {
		return sig, fmt.Errorf("active days: %w", err)
	}
	sig.ActiveDays = days

	return sig, nil
}
