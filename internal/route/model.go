package route

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Route is the persisted plan for one order. The full geometry lives in Path
// as a GeoJSON LineString; Waypoints carry the per-point actions.
type Route struct {
	ID                       uuid.UUID `db:"id" json:"id"`
	OrderID                  uuid.UUID `db:"order_id" json:"order_id"`
	Path                     []byte    `db:"path" json:"-"`
	TotalDistanceKM          float64   `db:"total_distance_km" json:"total_distance_km"`
	EstimatedDurationMinutes float64   `db:"estimated_duration_minutes" json:"estimated_duration_minutes"`
	EstimatedETA             time.Time `db:"estimated_eta" json:"estimated_eta"`
	Confidence               float64   `db:"confidence" json:"confidence"`
	OptimizationMethod       string    `db:"optimization_method" json:"optimization_method"`
	AvoidsNoFly              bool      `db:"avoids_no_fly" json:"avoids_no_fly"`
	AvoidsWeather            bool      `db:"avoids_weather" json:"avoids_weather"`
	Metrics                  []byte    `db:"metrics" json:"-"`
	CreatedAt                time.Time `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time `db:"updated_at" json:"updated_at"`
}

func (r *Route) DecodeMetrics() (Metrics, error) {
	var m Metrics
	if len(r.Metrics) == 0 {
		return m, nil
	}
	err := json.Unmarshal(r.Metrics, &m)
	return m, err
}

// Waypoint is one ordered stop of a route. Sequence is 1-based and gap-free
// for a given route.
type Waypoint struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	RouteID          uuid.UUID  `db:"route_id" json:"route_id"`
	Sequence         int        `db:"sequence" json:"sequence"`
	Lat              float64    `db:"lat" json:"lat"`
	Lng              float64    `db:"lng" json:"lng"`
	AltitudeM        float64    `db:"altitude_m" json:"altitude_m"`
	Action           string     `db:"action" json:"action"`
	EstimatedArrival *time.Time `db:"estimated_arrival" json:"estimated_arrival,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
