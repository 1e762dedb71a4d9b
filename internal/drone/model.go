package drone

import (
	"time"

	"github.com/google/uuid"

	domainerrors "drone-dispatch/internal/errors"
)

type Status string

const (
	StatusIdle        Status = "idle"
	StatusCharging    Status = "charging"
	StatusAssigned    Status = "assigned"
	StatusDelivering  Status = "delivering"
	StatusReturning   Status = "returning"
	StatusMaintenance Status = "maintenance"
	StatusOffline     Status = "offline"
)

const minDispatchBattery = 20

type Drone struct {
	ID     uuid.UUID `db:"id" json:"id"`
	Serial string    `db:"serial" json:"serial"`
	Name   string    `db:"name" json:"name"`

	// Specs, fixed at registration.
	MaxPayloadKG       float64 `db:"max_payload_kg" json:"max_payload_kg"`
	MaxSpeedKMH        float64 `db:"max_speed_kmh" json:"max_speed_kmh"`
	MaxAltitudeM       float64 `db:"max_altitude_m" json:"max_altitude_m"`
	MaxRangeKM         float64 `db:"max_range_km" json:"max_range_km"`
	BatteryCapacityMAH int     `db:"battery_capacity_mah" json:"battery_capacity_mah"`

	// Mutable state.
	Status          Status     `db:"status" json:"status"`
	BatteryLevel    float64    `db:"battery_level" json:"battery_level"`
	CurrentLat      *float64   `db:"current_lat" json:"current_lat,omitempty"`
	CurrentLng      *float64   `db:"current_lng" json:"current_lng,omitempty"`
	CurrentAltitude *float64   `db:"current_altitude_m" json:"current_altitude_m,omitempty"`
	LastHeartbeat   *time.Time `db:"last_heartbeat" json:"last_heartbeat,omitempty"`
	IsActive        bool       `db:"is_active" json:"is_active"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func New(serial, name string) *Drone {
	now := time.Now()
	return &Drone{
		ID:           uuid.New(),
		Serial:       serial,
		Name:         name,
		Status:       StatusIdle,
		BatteryLevel: 100,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AvailableForDispatch reports whether the drone can take a new order, with
// the reason when it cannot.
func (d *Drone) AvailableForDispatch() error {
	if !d.IsActive {
		return domainerrors.DroneNotAvailable("drone is deactivated")
	}
	if d.Status != StatusIdle {
		return domainerrors.DroneNotAvailable("drone is " + string(d.Status))
	}
	if d.BatteryLevel < minDispatchBattery {
		return domainerrors.DroneNotAvailable("battery below dispatch threshold")
	}
	return nil
}

func (d *Drone) SetBattery(level float64) error {
	if level < 0 || level > 100 {
		return domainerrors.NewValidation("battery_level must be in [0,100]")
	}
	d.BatteryLevel = level
	d.UpdatedAt = time.Now()
	return nil
}

// BeginDelivery moves the drone onto a mission. A delivering drone must have
// a known position, so the caller supplies one when the drone has none yet.
func (d *Drone) BeginDelivery(lat, lng float64) {
	if d.CurrentLat == nil || d.CurrentLng == nil {
		d.CurrentLat = &lat
		d.CurrentLng = &lng
	}
	d.Status = StatusDelivering
	d.UpdatedAt = time.Now()
}

func (d *Drone) FinishDelivery() {
	d.Status = StatusReturning
	d.UpdatedAt = time.Now()
}

func (d *Drone) GoIdle() {
	d.Status = StatusIdle
	d.UpdatedAt = time.Now()
}

func (d *Drone) UpdatePosition(lat, lng float64, altitudeM *float64, at time.Time) {
	d.CurrentLat = &lat
	d.CurrentLng = &lng
	if altitudeM != nil {
		d.CurrentAltitude = altitudeM
	}
	d.LastHeartbeat = &at
	d.UpdatedAt = at
}

func (d *Drone) AgeDays() float64 {
	return time.Since(d.CreatedAt).Hours() / 24
}
