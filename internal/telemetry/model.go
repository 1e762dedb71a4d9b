package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Reading is one append-only telemetry row reported by a drone. Positional
// fields are optional so a drone can report battery-only heartbeats.
type Reading struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DroneID   uuid.UUID `db:"drone_id" json:"drone_id"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`

	Lat       *float64 `db:"lat" json:"lat,omitempty"`
	Lng       *float64 `db:"lng" json:"lng,omitempty"`
	AltitudeM *float64 `db:"altitude_m" json:"altitude_m,omitempty"`
	HeadingDeg *float64 `db:"heading_deg" json:"heading_deg,omitempty"`
	SpeedKMH  *float64 `db:"speed_kmh" json:"speed_kmh,omitempty"`

	BatteryLevel float64 `db:"battery_level" json:"battery_level"`

	// Optional environment readings from onboard sensors.
	TemperatureC *float64 `db:"temperature_c" json:"temperature_c,omitempty"`
	WindSpeedKMH *float64 `db:"wind_speed_kmh" json:"wind_speed_kmh,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StatusStream is the one-row-per-drone live view derived from readings.
type StatusStream struct {
	DroneID           uuid.UUID  `db:"drone_id" json:"drone_id"`
	IsOnline          bool       `db:"is_online" json:"is_online"`
	LastHeartbeat     time.Time  `db:"last_heartbeat" json:"last_heartbeat"`
	ConnectionQuality float64    `db:"connection_quality" json:"connection_quality"`
	CurrentMissionID  *uuid.UUID `db:"current_mission_id" json:"current_mission_id,omitempty"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	// A heartbeat older than this marks the drone offline.
	offlineAfter = 90 * time.Second
	// Gaps up to this long count as perfect connectivity.
	nominalGap = 5 * time.Second
)

// connectionQuality maps the gap between consecutive heartbeats to a 0-100
// score. Gaps inside the nominal reporting interval score 100, then the score
// decays linearly and bottoms out at 0 for gaps of a minute or more.
func connectionQuality(gap time.Duration) float64 {
	if gap <= nominalGap {
		return 100
	}
	q := 100 - (gap-nominalGap).Seconds()*(100/55.0)
	if q < 0 {
		return 0
	}
	return q
}
