package orders

import (
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
)

// transitions is the order lifecycle graph. Cancellation exits only
// pending and confirmed; terminal states have no exits.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed:  {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:  {},
	enums.OrderStatusCancelled:  {},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// statusRank orders the fulfillment pipeline for skip checks. Cancelled sits
// outside the pipeline and can never be skipped to.
var statusRank = map[enums.OrderStatus]int{
	enums.OrderStatusPending:    0,
	enums.OrderStatusConfirmed:  1,
	enums.OrderStatusProcessing: 2,
	enums.OrderStatusShipped:    3,
	enums.OrderStatusDelivered:  4,
}

// CanSkipTo reports whether from -> to is a forward jump along the pipeline,
// used by admin overrides and gateway-driven updates.
func CanSkipTo(from, to enums.OrderStatus) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// ActorAllowed applies the per-role guards on top of the lifecycle graph.
// The system role covers gateway-driven updates and bypasses role checks.
func ActorAllowed(role enums.ActorRole, from, to enums.OrderStatus) bool {
	if role == enums.ActorRoleSystem || role == enums.ActorRoleAdmin {
		return true
	}
	switch to {
	case enums.OrderStatusConfirmed, enums.OrderStatusProcessing, enums.OrderStatusShipped:
		return role == enums.ActorRoleSeller
	case enums.OrderStatusDelivered:
		return role == enums.ActorRoleBuyer || role == enums.ActorRoleSeller
	case enums.OrderStatusCancelled:
		if role == enums.ActorRoleSeller {
			return true
		}
		// Buyers may only back out before the seller starts preparing.
		return role == enums.ActorRoleBuyer &&
			(from == enums.OrderStatusPending || from == enums.OrderStatusConfirmed)
	default:
		return false
	}
}
