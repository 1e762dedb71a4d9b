package order

import (
	"testing"

	"github.com/google/uuid"

	"drone-dispatch/internal/geo"
)

func newTestOrder() *Order {
	return NewOrder(uuid.New(), geo.NewPoint(12.97, 77.59), geo.NewPoint(12.99, 77.61))
}

func TestCanTransition_DAG(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusAssigned},
		{StatusPending, StatusInTransit},
		{StatusAssigned, StatusInTransit},
		{StatusInTransit, StatusDelivering},
		{StatusDelivering, StatusDelivered},
		{StatusPending, StatusCancelled},
		{StatusInTransit, StatusFailed},
		{StatusDelivering, StatusCancelled},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to Status }{
		{StatusPending, StatusDelivered},
		{StatusPending, StatusDelivering},
		{StatusAssigned, StatusDelivered},
		{StatusDelivered, StatusPending},
		{StatusDelivered, StatusCancelled},
		{StatusCancelled, StatusInTransit},
		{StatusFailed, StatusFailed},
		{StatusDelivering, StatusInTransit},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be refused", tc.from, tc.to)
		}
	}
}

func TestTransition_GuardsPendingToDelivered(t *testing.T) {
	o := newTestOrder()
	if err := o.Transition(StatusDelivered); err == nil {
		t.Fatal("pending -> delivered must be refused")
	}
	// Nothing was mutated by the failed transition.
	if o.Status != StatusPending {
		t.Fatalf("status changed to %s on refused transition", o.Status)
	}
	if o.DeliveredAt != nil || o.ActualDeliveryTime != nil || o.AssignedAt != nil {
		t.Fatal("timestamps mutated on refused transition")
	}
}

func TestTransition_StampsTimestamps(t *testing.T) {
	o := newTestOrder()

	if err := o.Transition(StatusInTransit); err != nil {
		t.Fatalf("pending -> in_transit: %v", err)
	}
	if o.AssignedAt == nil || o.PickedUpAt == nil {
		t.Fatal("in_transit must backfill assigned_at and picked_up_at")
	}
	if err := o.Transition(StatusDelivering); err != nil {
		t.Fatalf("in_transit -> delivering: %v", err)
	}
	if err := o.Transition(StatusDelivered); err != nil {
		t.Fatalf("delivering -> delivered: %v", err)
	}
	if o.DeliveredAt == nil || o.ActualDeliveryTime == nil {
		t.Fatal("delivered must stamp delivery timestamps")
	}
}

func TestAssignDrone_Idempotent(t *testing.T) {
	o := newTestOrder()
	droneID := uuid.New()

	already, err := o.AssignDrone(droneID)
	if err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if already {
		t.Fatal("first assign is not a repeat")
	}
	if o.Status != StatusInTransit {
		t.Fatalf("assign should set in_transit, got %s", o.Status)
	}

	// Same drone again: no-op.
	already, err = o.AssignDrone(droneID)
	if err != nil {
		t.Fatalf("repeat assign: %v", err)
	}
	if !already {
		t.Fatal("repeat assign with the same drone must report already assigned")
	}

	// Different drone while not pending: refused.
	if _, err := o.AssignDrone(uuid.New()); err == nil {
		t.Fatal("reassign to a different drone must be refused once in transit")
	}
}

func TestTransition_CancelClearsDrone(t *testing.T) {
	o := newTestOrder()
	if _, err := o.AssignDrone(uuid.New()); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := o.Transition(StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.DroneID != nil {
		t.Fatal("cancel must release the drone reference")
	}
	if !o.Status.IsTerminal() {
		t.Fatal("cancelled is terminal")
	}
}
