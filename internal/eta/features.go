// Package eta estimates delivery duration from route geometry, weather and
// drone state. A pluggable regressor can take over when trained; the
// rule-based path is always available and is the default.
package eta

import "time"

// Features is the input vector for one prediction.
type Features struct {
	DistanceKM        float64   `json:"distance_km"`
	AltitudeAvgM      float64   `json:"altitude_avg_m"`
	AltitudeVariance  float64   `json:"altitude_variance"`
	RouteComplexity   float64   `json:"route_complexity"`
	TemperatureC      float64   `json:"temperature_c"`
	WindSpeedKMH      float64   `json:"wind_speed_kmh"`
	WindDirectionDeg  float64   `json:"wind_direction_deg"`
	Precipitation     float64   `json:"precipitation"` // 0..1
	VisibilityKM      float64   `json:"visibility_km"`
	AirPressureHPA    float64   `json:"air_pressure_hpa"`
	PayloadWeightKG   float64   `json:"payload_weight_kg"`
	BatteryStart      float64   `json:"battery_start"`
	DroneAgeDays      float64   `json:"drone_age_days"`
	TimeOfDay         int       `json:"time_of_day"`  // 0..23
	DayOfWeek         int       `json:"day_of_week"`  // 0..6
	AirTrafficDensity float64   `json:"air_traffic_density"` // 0..1
	DroneMaxSpeedKMH  float64   `json:"drone_max_speed_kmh"`
	StartTime         time.Time `json:"start_time"`
}

var featureNames = []string{
	"distance_km", "altitude_avg_m", "altitude_variance", "route_complexity",
	"temperature_c", "wind_speed_kmh", "wind_direction_deg", "precipitation",
	"visibility_km", "air_pressure_hpa", "payload_weight_kg", "battery_start",
	"drone_age_days", "time_of_day", "day_of_week", "air_traffic_density",
	"drone_max_speed_kmh",
}

// Vector flattens the features in the fixed order regressors train on.
func (f Features) Vector() []float64 {
	return []float64{
		f.DistanceKM, f.AltitudeAvgM, f.AltitudeVariance, f.RouteComplexity,
		f.TemperatureC, f.WindSpeedKMH, f.WindDirectionDeg, f.Precipitation,
		f.VisibilityKM, f.AirPressureHPA, f.PayloadWeightKG, f.BatteryStart,
		f.DroneAgeDays, float64(f.TimeOfDay), float64(f.DayOfWeek),
		f.AirTrafficDensity, f.DroneMaxSpeedKMH,
	}
}
