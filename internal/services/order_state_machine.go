package services

import (
	"slices"
	"strings"
	"time"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusReturned, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered:  {domain.OrderStatusReturned},
}

// OrderStateMachine enforces legal status transitions and appends audit entries.
type OrderStateMachine struct {
	clock func() time.Time
}

// NewOrderStateMachine constructs a state machine using clock for audit timestamps.
func NewOrderStateMachine(clock func() time.Time) OrderStateMachine {
	if clock == nil {
		clock = time.Now
	}
	return OrderStateMachine{clock: func() time.Time { return clock().UTC() }}
}

// CanTransition reports whether current → target is a legal move. Self transitions are not.
func CanTransition(current, target domain.OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

// AllowedTransitions lists the statuses reachable from current.
func AllowedTransitions(current domain.OrderStatus) []domain.OrderStatus {
	return slices.Clone(orderStateTransitions[current])
}

// Transition moves order to target and appends exactly one history entry.
func (m OrderStateMachine) Transition(order *domain.Order, target domain.OrderStatus, note, actor string) error {
	if !target.Valid() {
		return validationError("unknown order status %q", target)
	}
	if !CanTransition(order.Status, target) {
		return domain.NewStateError(domain.StateReasonInvalidTransition, "order %s cannot move from %s to %s", order.ID, order.Status, target)
	}
	m.apply(order, target, note, actor)
	return nil
}

func (m OrderStateMachine) apply(order *domain.Order, target domain.OrderStatus, note, actor string) {
	now := m.clock()
	order.Status = target
	order.UpdatedAt = now
	switch target {
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	}
	order.StatusHistory = append(order.StatusHistory, domain.StatusEntry{
		Status:    target,
		Timestamp: now,
		Note:      strings.TrimSpace(note),
		Actor:     strings.TrimSpace(actor),
	})
}

// AttachTracking records a tracking number. Pending and processing orders move to shipped;
// shipped orders only have their tracking details replaced.
func (m OrderStateMachine) AttachTracking(order *domain.Order, trackingNumber, carrier, actor string) error {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return validationError("tracking number is required")
	}

	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusProcessing:
		order.TrackingNumber = trackingNumber
		order.Carrier = strings.TrimSpace(carrier)
		m.apply(order, domain.OrderStatusShipped, "tracking number "+trackingNumber+" attached", actor)
		return nil
	case domain.OrderStatusShipped:
		order.TrackingNumber = trackingNumber
		order.Carrier = strings.TrimSpace(carrier)
		order.UpdatedAt = m.clock()
		return nil
	default:
		return domain.NewStateError(domain.StateReasonInvalidTransition, "order %s in status %s cannot accept tracking", order.ID, order.Status)
	}
}

// Annotate appends a history entry that keeps the current status, used for fee and discount changes.
func (m OrderStateMachine) Annotate(order *domain.Order, note, actor string) {
	now := m.clock()
	order.UpdatedAt = now
	order.StatusHistory = append(order.StatusHistory, domain.StatusEntry{
		Status:    order.Status,
		Timestamp: now,
		Note:      strings.TrimSpace(note),
		Actor:     strings.TrimSpace(actor),
	})
}
