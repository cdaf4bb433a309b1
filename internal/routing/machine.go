package routing

import (
	"strings"
	"time"

	"avinilabs/internal/access"
	dErrors "avinilabs/pkg/domain-errors"
)

// actorSide says which tenant of the routing must perform a transition.
// Admins bypass the side check but never the state check.
type actorSide int

const (
	sideFrom actorSide = iota
	sideTo
)

// TransitionPayload carries the per-action inputs.
type TransitionPayload struct {
	Reason             string `json:"reason,omitempty"`
	CourierName        string `json:"courier_name,omitempty"`
	ConditionOnArrival string `json:"condition_on_arrival,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

// transitionSpec is one row of the state machine table: the required current
// state, the resulting state, the acting side, a payload guard, and the
// field mutation applied on success.
type transitionSpec struct {
	from     string
	to       string
	side     actorSide
	validate func(p TransitionPayload) error
	apply    func(r *SampleRouting, userID int, at time.Time, p TransitionPayload)
}

var transitions = map[string]transitionSpec{
	ActionSubmit: {
		from: StateCreated, to: StatePendingApproval, side: sideFrom,
	},
	ActionApprove: {
		from: StatePendingApproval, to: StateApproved, side: sideTo,
		apply: func(r *SampleRouting, userID int, at time.Time, p TransitionPayload) {
			r.ApprovedBy = userID
			r.ApprovedAt = &at
		},
	},
	ActionReject: {
		from: StatePendingApproval, to: StateRejected, side: sideTo,
		validate: func(p TransitionPayload) error {
			if strings.TrimSpace(p.Reason) == "" {
				return dErrors.New(dErrors.CodeValidation, "a reason is required to reject a routing")
			}
			return nil
		},
		apply: func(r *SampleRouting, userID int, at time.Time, p TransitionPayload) {
			r.RejectedBy = userID
			r.RejectedAt = &at
			r.RejectionReason = p.Reason
		},
	},
	ActionDispatch: {
		from: StateApproved, to: StateInTransit, side: sideFrom,
		validate: func(p TransitionPayload) error {
			if strings.TrimSpace(p.CourierName) == "" {
				return dErrors.New(dErrors.CodeValidation, "courier_name is required to dispatch")
			}
			return nil
		},
		apply: func(r *SampleRouting, userID int, at time.Time, p TransitionPayload) {
			r.DispatchedBy = userID
			r.DispatchedAt = &at
			r.CourierName = p.CourierName
		},
	},
	ActionReceive: {
		from: StateInTransit, to: StateDelivered, side: sideTo,
		apply: func(r *SampleRouting, userID int, at time.Time, p TransitionPayload) {
			r.ReceivedBy = userID
			r.ReceivedAt = &at
			r.ConditionOnArrival = p.ConditionOnArrival
		},
	},
	ActionComplete: {
		from: StateDelivered, to: StateCompleted, side: sideTo,
		apply: func(r *SampleRouting, userID int, at time.Time, p TransitionPayload) {
			r.CompletedBy = userID
			r.CompletedAt = &at
		},
	},
	// Cancel is special-cased in checkState: it leaves any non-terminal
	// state.
	ActionCancel: {
		to: StateCancelled, side: sideFrom,
		apply: func(r *SampleRouting, userID int, at time.Time, p TransitionPayload) {
			r.CancelledBy = userID
			r.CancelledAt = &at
		},
	},
}

func specFor(action string) (transitionSpec, error) {
	spec, ok := transitions[action]
	if !ok {
		return transitionSpec{}, dErrors.Newf(dErrors.CodeValidation, "unknown routing action %q", action)
	}
	return spec, nil
}

// checkState validates the current state against the action's required one.
func checkState(r *SampleRouting, action string, spec transitionSpec) error {
	if action == ActionCancel {
		if r.IsTerminal() {
			return dErrors.Newf(dErrors.CodeInvalidState, "routing in state %q cannot be cancelled", r.Status)
		}
		return nil
	}
	if r.Status != spec.from {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot %s a routing in state %q", action, r.Status)
	}
	return nil
}

// checkActor validates the acting user's tenant side. Admins bypass.
func checkActor(r *SampleRouting, spec transitionSpec, role string, tenantID int, action string) error {
	if role == access.RoleAdmin {
		return nil
	}
	required := r.FromTenantID
	if spec.side == sideTo {
		required = r.ToTenantID
	}
	if tenantID != required {
		return dErrors.Newf(dErrors.CodeAccessDenied, "only the %s franchise may %s this routing", sideName(spec.side), action)
	}
	return nil
}

func sideName(side actorSide) string {
	if side == sideTo {
		return "destination"
	}
	return "source"
}
