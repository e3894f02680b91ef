package services

import (
	"errors"
	"testing"

	domain "github.com/hanko-field/orderdesk/internal/domain"
)

func orderInStatus(status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:     "ord_1",
		Status: status,
		StatusHistory: []domain.StatusEntry{
			{Status: domain.OrderStatusPending, Timestamp: fixtureNow, Note: orderCreatedNote},
		},
	}
}

func TestOrderStateMachineTransitionTable(t *testing.T) {
	all := []domain.OrderStatus{
		domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusShipped,
		domain.OrderStatusDelivered, domain.OrderStatusCancelled, domain.OrderStatusReturned,
	}
	allowed := map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
		domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
		domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusReturned, domain.OrderStatusCancelled},
		domain.OrderStatusDelivered:  {domain.OrderStatusReturned},
	}
	machine := NewOrderStateMachine(newFakeClock().Now)

	for _, from := range all {
		for _, to := range all {
			order := orderInStatus(from)
			before := len(order.StatusHistory)
			err := machine.Transition(&order, to, "", "ops")

			legal := false
			for _, candidate := range allowed[from] {
				if candidate == to {
					legal = true
				}
			}
			if legal {
				if err != nil {
					t.Fatalf("%s -> %s should be accepted: %v", from, to, err)
				}
				if len(order.StatusHistory) != before+1 {
					t.Fatalf("%s -> %s appended %d entries", from, to, len(order.StatusHistory)-before)
				}
				if last := order.StatusHistory[len(order.StatusHistory)-1]; last.Status != to || last.Actor != "ops" {
					t.Fatalf("unexpected last entry %+v", last)
				}
				continue
			}
			if reason, _ := domain.StateReasonOf(err); reason != domain.StateReasonInvalidTransition {
				t.Fatalf("%s -> %s should be rejected, got %v", from, to, err)
			}
			if order.Status != from || len(order.StatusHistory) != before {
				t.Fatalf("rejected transition mutated order: %+v", order)
			}
		}
	}
}

func TestOrderStateMachineSetsMilestoneTimestamps(t *testing.T) {
	clock := newFakeClock()
	machine := NewOrderStateMachine(clock.Now)
	order := orderInStatus(domain.OrderStatusProcessing)

	if err := machine.Transition(&order, domain.OrderStatusShipped, "", ""); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if err := machine.Transition(&order, domain.OrderStatusDelivered, "signed", ""); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if order.ShippedAt == nil || order.DeliveredAt == nil {
		t.Fatalf("expected shipped and delivered timestamps, got %+v", order)
	}
	if !order.DeliveredAt.Equal(fixtureNow) {
		t.Fatalf("expected clock time, got %s", order.DeliveredAt)
	}
	if order.StatusHistory[0].Note != orderCreatedNote {
		t.Fatalf("creation entry must stay first")
	}
}

func TestOrderStateMachineAttachTracking(t *testing.T) {
	machine := NewOrderStateMachine(newFakeClock().Now)

	t.Run("pending ships", func(t *testing.T) {
		order := orderInStatus(domain.OrderStatusPending)
		if err := machine.AttachTracking(&order, "TRK-1", "DHL", "ops"); err != nil {
			t.Fatalf("attach: %v", err)
		}
		if order.Status != domain.OrderStatusShipped || order.TrackingNumber != "TRK-1" || order.Carrier != "DHL" {
			t.Fatalf("unexpected order %+v", order)
		}
		if len(order.StatusHistory) != 2 {
			t.Fatalf("expected one new history entry, got %d", len(order.StatusHistory))
		}
	})

	t.Run("shipped only updates number", func(t *testing.T) {
		order := orderInStatus(domain.OrderStatusShipped)
		if err := machine.AttachTracking(&order, "TRK-2", "", ""); err != nil {
			t.Fatalf("attach: %v", err)
		}
		if order.Status != domain.OrderStatusShipped || len(order.StatusHistory) != 1 {
			t.Fatalf("shipped order should not transition: %+v", order)
		}
	})

	t.Run("delivered rejected", func(t *testing.T) {
		order := orderInStatus(domain.OrderStatusDelivered)
		err := machine.AttachTracking(&order, "TRK-3", "", "")
		if !errors.Is(err, domain.ErrState) {
			t.Fatalf("expected state error, got %v", err)
		}
	})

	t.Run("blank number", func(t *testing.T) {
		order := orderInStatus(domain.OrderStatusPending)
		if err := machine.AttachTracking(&order, "  ", "", ""); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}
