package zone

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"drone-dispatch/internal/geo"
)

type Severity string

const (
	SeverityRed    Severity = "red"
	SeverityYellow Severity = "yellow"
)

type Type string

const (
	TypeAirport     Type = "airport"
	TypeMilitary    Type = "military"
	TypeGovernment  Type = "government"
	TypePrivate     Type = "private"
	TypeWeather     Type = "weather"
	TypeTemporary   Type = "temporary"
	TypeOperational Type = "operational"
)

// Zone is a polygonal airspace restriction with an altitude band and optional
// temporal validity window.
type Zone struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	Type       Type        `json:"type"`
	Severity   Severity    `json:"severity"`
	Boundary   geo.Polygon `json:"boundary"`
	AltMinM    float64     `json:"altitude_min_m"`
	AltMaxM    *float64    `json:"altitude_max_m,omitempty"`
	ValidFrom  *time.Time  `json:"valid_from,omitempty"`
	ValidUntil *time.Time  `json:"valid_until,omitempty"`
	IsActive   bool        `json:"is_active"`
	Reason     string      `json:"reason,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// EffectiveAt reports whether the zone restricts airspace at time t.
func (z *Zone) EffectiveAt(t time.Time) bool {
	if !z.IsActive {
		return false
	}
	if z.ValidFrom != nil && t.Before(*z.ValidFrom) {
		return false
	}
	if z.ValidUntil != nil && t.After(*z.ValidUntil) {
		return false
	}
	return true
}

// ContainsAltitude reports whether alt falls in the zone's altitude band.
// A nil altitude matches any band.
func (z *Zone) ContainsAltitude(alt *float64) bool {
	if alt == nil {
		return true
	}
	if *alt < z.AltMinM {
		return false
	}
	if z.AltMaxM != nil && *alt > *z.AltMaxM {
		return false
	}
	return true
}

// row is the sqlx shape; the boundary rides in a JSONB column as a GeoJSON
// polygon.
type row struct {
	ID         uuid.UUID  `db:"id"`
	Name       string     `db:"name"`
	Type       string     `db:"zone_type"`
	Severity   string     `db:"severity"`
	Boundary   []byte     `db:"boundary"`
	AltMinM    float64    `db:"altitude_min_m"`
	AltMaxM    *float64   `db:"altitude_max_m"`
	ValidFrom  *time.Time `db:"valid_from"`
	ValidUntil *time.Time `db:"valid_until"`
	IsActive   bool       `db:"is_active"`
	Reason     *string    `db:"reason"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

func (r *row) toZone() (*Zone, error) {
	boundary, err := geo.DecodePolygon(r.Boundary)
	if err != nil {
		return nil, err
	}
	z := &Zone{
		ID:         r.ID,
		Name:       r.Name,
		Type:       Type(r.Type),
		Severity:   Severity(r.Severity),
		Boundary:   boundary,
		AltMinM:    r.AltMinM,
		AltMaxM:    r.AltMaxM,
		ValidFrom:  r.ValidFrom,
		ValidUntil: r.ValidUntil,
		IsActive:   r.IsActive,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.Reason != nil {
		z.Reason = *r.Reason
	}
	return z, nil
}

func fromZone(z *Zone) (*row, error) {
	boundary, err := json.Marshal(geo.EncodePolygon(z.Boundary))
	if err != nil {
		return nil, err
	}
	r := &row{
		ID:         z.ID,
		Name:       z.Name,
		Type:       string(z.Type),
		Severity:   string(z.Severity),
		Boundary:   boundary,
		AltMinM:    z.AltMinM,
		AltMaxM:    z.AltMaxM,
		ValidFrom:  z.ValidFrom,
		ValidUntil: z.ValidUntil,
		IsActive:   z.IsActive,
		CreatedAt:  z.CreatedAt,
		UpdatedAt:  z.UpdatedAt,
	}
	if z.Reason != "" {
		r.Reason = &z.Reason
	}
	return r, nil
}
