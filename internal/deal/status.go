package deal

import (
	"github.com/dealmesh-protocol/dealmesh/internal/engine"
	"github.com/dealmesh-protocol/dealmesh/internal/models"
)

// Action is a deal lifecycle operation applied to a match.
type Action string

const (
	ActionNegotiate Action = "negotiate"
	ActionPropose   Action = "propose"
	ActionApprove   Action = "approve"
	ActionReject    Action = "reject"
	ActionStart     Action = "start"
	ActionComplete  Action = "complete"
	ActionExpire    Action = "expire"
	ActionCancel    Action = "cancel"
)

// transitions is the full lifecycle table. A missing entry is an
// illegal transition. Negotiation while a proposal is pending keeps
// the match in proposed; discussion never regresses a deal.
var transitions = map[models.MatchStatus]map[Action]models.MatchStatus{
	models.StatusMatched: {
		ActionNegotiate: models.StatusNegotiating,
		ActionPropose:   models.StatusProposed,
		ActionExpire:    models.StatusExpired,
		ActionCancel:    models.StatusCancelled,
	},
	models.StatusNegotiating: {
		ActionNegotiate: models.StatusNegotiating,
		ActionPropose:   models.StatusProposed,
		ActionExpire:    models.StatusExpired,
		ActionCancel:    models.StatusCancelled,
	},
	models.StatusProposed: {
		ActionNegotiate: models.StatusProposed,
		ActionPropose:   models.StatusProposed,
		ActionApprove:   models.StatusApproved,
		ActionReject:    models.StatusRejected,
		ActionExpire:    models.StatusExpired,
		ActionCancel:    models.StatusCancelled,
	},
	models.StatusApproved: {
		ActionNegotiate: models.StatusApproved,
		ActionStart:     models.StatusInProgress,
		ActionCancel:    models.StatusCancelled,
	},
	models.StatusInProgress: {
		ActionNegotiate: models.StatusInProgress,
		ActionComplete:  models.StatusCompleted,
		ActionCancel:    models.StatusCancelled,
	},
}

// Next resolves the status an action leads to from the current one,
// or a descriptive conflict error when the action is illegal there.
func Next(current models.MatchStatus, action Action) (models.MatchStatus, error) {
	if next, ok := transitions[current][action]; ok {
		return next, nil
	}
	return "", engine.Conflict("cannot %s a deal in status %q", action, current)
}

// CanAct reports whether the action is legal from the current status.
func CanAct(current models.MatchStatus, action Action) bool {
	_, ok := transitions[current][action]
	return ok
}
