package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dealmesh-protocol/dealmesh/internal/engine"
	"github.com/dealmesh-protocol/dealmesh/internal/metrics"
	"github.com/dealmesh-protocol/dealmesh/internal/models"
	"github.com/dealmesh-protocol/dealmesh/internal/notify"
	"github.com/dealmesh-protocol/dealmesh/internal/store"
)

// SignalSource supplies per-agent quality signals.
type SignalSource interface {
	SignalsFor(ctx context.Context, agentID uuid.UUID) (Signals, error)
}

// Notifier delivers notifications; implementations persist the row and
// fan out asynchronously.
type Notifier interface {
	Dispatch(ctx context.Context, n *models.Notification)
}

// Resolver scores a profile against the opposite side of the market
// and materializes one match per compatible profile pair.
type Resolver struct {
	store    store.DataStore
	signals  SignalSource
	notifier Notifier
	logger   zerolog.Logger
}

// NewResolver creates a resolver. signals and notifier may be nil;
// scoring then runs without quality boosts and match creation is
// silent.
func NewResolver(ds store.DataStore, signals SignalSource, notifier Notifier, logger zerolog.Logger) *Resolver {
	return &Resolver{store: ds, signals: signals, notifier: notifier, logger: logger}
}

// FindMatches scores the profile against every candidate on the
// opposite side and returns the resulting matches, best first. Calling
// it again returns the same match rows: pairs are deduplicated by
// their ordered profile IDs, and a concurrent create racing on the
// unique constraint falls back to refetching the winner's row.
func (r *Resolver) FindMatches(ctx context.Context, profileID uuid.UUID) ([]models.Match, error) {
	profile, err := r.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, engine.NotFound("profile %s not found", profileID)
	}
	if !profile.Active {
		return nil, engine.Validation("profile %s is inactive", profileID)
	}

	candidates, err := r.store.ListCandidateProfiles(ctx, profile.Side.Opposite(), profile.AgentID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	var matches []models.Match
	for i := range candidates {
		candidate := &candidates[i]

		overlap, err := ScorePair(profile, candidate)
		if err != nil {
			return nil, err
		}
		if overlap == nil {
			continue
		}
		overlap.Score = FinalScore(overlap.Score, r.boostFor(ctx, candidate.AgentID))

		match, err := r.resolve(ctx, profile, candidate, overlap)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *match)
	}

	ownAgent := profile.AgentID
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Overlap.Score != matches[j].Overlap.Score {
			return matches[i].Overlap.Score > matches[j].Overlap.Score
		}
		return matches[i].Counterpart(ownAgent).String() < matches[j].Counterpart(ownAgent).String()
	})
	return matches, nil
}

// boostFor fetches the counterpart's quality signals. Signal failures
// degrade to a neutral boost rather than failing the scan.
func (r *Resolver) boostFor(ctx context.Context, agentID uuid.UUID) int {
	if r.signals == nil {
		return 0
	}
	sig, err := r.signals.SignalsFor(ctx, agentID)
	if err != nil {
		r.logger.Warn().Err(err).Str("agent_id", agentID.String()).Msg("quality signals unavailable")
		return 0
	}
	return QualityBoost(sig)
}

// resolve gets or creates the match row for a scored pair.
func (r *Resolver) resolve(ctx context.Context, profile, candidate *models.Profile, overlap *models.Overlap) (*models.Match, error) {
	pa, pb := models.OrderProfilePair(profile.ID, candidate.ID)

	existing, err := r.store.GetMatchByProfiles(ctx, pa, pb)
	if err != nil {
		return nil, fmt.Errorf("lookup match: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	match := &models.Match{
		ProfileA: pa,
		ProfileB: pb,
		AgentA:   profile.AgentID,
		AgentB:   candidate.AgentID,
		Overlap:  *overlap,
		Status:   models.StatusMatched,
	}
	if pa != profile.ID {
		match.AgentA, match.AgentB = candidate.AgentID, profile.AgentID
	}

	if err := r.store.CreateMatch(ctx, match); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			winner, err := r.store.GetMatchByProfiles(ctx, pa, pb)
			if err != nil {
				return nil, fmt.Errorf("refetch match: %w", err)
			}
			if winner == nil {
				return nil, fmt.Errorf("match for pair (%s, %s) vanished after duplicate insert", pa, pb)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("create match: %w", err)
	}

	metrics.MatchesCreated.Inc()
	r.logger.Info().
		Str("match_id", match.ID.String()).
		Int("score", match.Overlap.Score).
		Msg("match created")
	r.announce(ctx, match, profile.AgentID, candidate.AgentID)
	return match, nil
}

// announce notifies both participants of a freshly created match.
func (r *Resolver) announce(ctx context.Context, match *models.Match, initiator, counterpart uuid.UUID) {
	if r.notifier == nil {
		return
	}
	summary := fmt.Sprintf("New match with overlap score %d", match.Overlap.Score)
	for _, pair := range [][2]uuid.UUID{{initiator, counterpart}, {counterpart, initiator}} {
		agent, from := pair[0], pair[1]
		r.notifier.Dispatch(ctx, &models.Notification{
			AgentID:     agent,
			Type:        notify.EventNewMatch,
			MatchID:     &match.ID,
			FromAgentID: &from,
			Summary:     summary,
		})
	}
}
