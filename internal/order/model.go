package order

import (
	"time"

	"github.com/google/uuid"

	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/geo"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInTransit  Status = "in_transit"
	StatusDelivering Status = "delivering"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusCancelled
}

// transitions is the forward DAG. Cancelled and failed are reachable from
// any non-terminal state and are handled separately in CanTransition.
var transitions = map[Status][]Status{
	// Assignment can collapse pending straight into in_transit: the assign
	// task sets pickup timestamps in the same step.
	StatusPending:    {StatusAssigned, StatusInTransit},
	StatusAssigned:   {StatusInTransit},
	StatusInTransit:  {StatusDelivering},
	StatusDelivering: {StatusDelivered},
}

func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusCancelled || to == StatusFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	CustomerID uuid.UUID  `db:"customer_id" json:"customer_id"`
	DroneID    *uuid.UUID `db:"drone_id" json:"drone_id,omitempty"`

	PickupLat   float64 `db:"pickup_lat" json:"pickup_lat"`
	PickupLng   float64 `db:"pickup_lng" json:"pickup_lng"`
	DeliveryLat float64 `db:"delivery_lat" json:"delivery_lat"`
	DeliveryLng float64 `db:"delivery_lng" json:"delivery_lng"`

	Status   Status `db:"status" json:"status"`
	Priority int    `db:"priority" json:"priority"`
	Notes    string `db:"notes" json:"notes"`

	RequestedAt        time.Time  `db:"requested_at" json:"requested_at"`
	AssignedAt         *time.Time `db:"assigned_at" json:"assigned_at,omitempty"`
	PickedUpAt         *time.Time `db:"picked_up_at" json:"picked_up_at,omitempty"`
	DeliveredAt        *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ActualDeliveryTime *time.Time `db:"actual_delivery_time" json:"actual_delivery_time,omitempty"`

	EstimatedETA             *time.Time `db:"estimated_eta" json:"estimated_eta,omitempty"`
	EstimatedDurationMinutes *float64   `db:"estimated_duration_minutes" json:"estimated_duration_minutes,omitempty"`
	TotalCost                *float64   `db:"total_cost" json:"total_cost,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func NewOrder(customerID uuid.UUID, pickup, delivery geo.Point) *Order {
	now := time.Now()
	return &Order{
		ID:          uuid.New(),
		CustomerID:  customerID,
		PickupLat:   pickup.Lat,
		PickupLng:   pickup.Lng,
		DeliveryLat: delivery.Lat,
		DeliveryLng: delivery.Lng,
		Status:      StatusPending,
		RequestedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (o *Order) Pickup() geo.Point   { return geo.NewPoint(o.PickupLat, o.PickupLng) }
func (o *Order) Delivery() geo.Point { return geo.NewPoint(o.DeliveryLat, o.DeliveryLng) }

// Transition moves the order to the target state and stamps the timestamp
// fields the state implies. Callers serialize transitions per order and
// append exactly one history row alongside.
func (o *Order) Transition(to Status) error {
	if !CanTransition(o.Status, to) {
		return domainerrors.OrderInvalidTransition(string(o.Status), string(to))
	}
	now := time.Now()
	switch to {
	case StatusAssigned:
		o.AssignedAt = &now
	case StatusInTransit:
		if o.AssignedAt == nil {
			o.AssignedAt = &now
		}
		if o.PickedUpAt == nil {
			o.PickedUpAt = &now
		}
	case StatusDelivered:
		o.DeliveredAt = &now
		o.ActualDeliveryTime = &now
	case StatusCancelled, StatusFailed:
		o.DroneID = nil
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// AssignDrone binds a drone to the order. Idempotent on the same drone;
// reassignment to a different drone is refused unless the order is pending.
func (o *Order) AssignDrone(droneID uuid.UUID) (alreadyAssigned bool, err error) {
	if o.DroneID != nil {
		if *o.DroneID == droneID && o.Status != StatusPending {
			return true, nil
		}
		if o.Status != StatusPending {
			return false, domainerrors.OrderAlreadyAssigned(o.DroneID.String())
		}
	}
	if err := o.Transition(StatusInTransit); err != nil {
		return false, err
	}
	o.DroneID = &droneID
	return false, nil
}

type Package struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrderID        uuid.UUID `db:"order_id" json:"order_id"`
	Name           string    `db:"name" json:"name"`
	Type           string    `db:"package_type" json:"type"`
	WeightKG       float64   `db:"weight_kg" json:"weight_kg"`
	LengthCM       *float64  `db:"length_cm" json:"length_cm,omitempty"`
	WidthCM        *float64  `db:"width_cm" json:"width_cm,omitempty"`
	HeightCM       *float64  `db:"height_cm" json:"height_cm,omitempty"`
	Fragile        bool      `db:"fragile" json:"fragile"`
	Urgent         bool      `db:"urgent" json:"urgent"`
	TempControlled bool      `db:"temp_controlled" json:"temp_controlled"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// StatusHistory is the append-only transition log. ActorID is null for
// system-driven transitions.
type StatusHistory struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	OrderID    uuid.UUID  `db:"order_id" json:"order_id"`
	FromStatus Status     `db:"from_status" json:"from_status"`
	ToStatus   Status     `db:"to_status" json:"to_status"`
	ActorID    *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	Note       string     `db:"note" json:"note"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

func NewHistory(orderID uuid.UUID, from, to Status, actorID *uuid.UUID, note string) *StatusHistory {
	return &StatusHistory{
		ID:         uuid.New(),
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
		Note:       note,
		CreatedAt:  time.Now(),
	}
}
