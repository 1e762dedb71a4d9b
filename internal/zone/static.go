package zone

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"drone-dispatch/internal/geo"
)

// Static catalog of circular restriction zones. Red zones are hard no-fly;
// yellow zones are advisory but the optimizer avoids them the same way.
type staticZone struct {
	name     string
	severity Severity
	zoneType Type
	center   geo.Point
	radiusM  float64
	altMinM  float64
	altMaxM  float64
	reason   string
}

var staticCatalog = []staticZone{
	{
		name:     "Red Zone - Airport",
		severity: SeverityRed,
		zoneType: TypeAirport,
		center:   geo.Point{Lat: 12.9716, Lng: 77.5946},
		radiusM:  1500,
		altMinM:  0,
		altMaxM:  1200,
		reason:   "Airport critical airspace",
	},
	{
		name:     "Yellow Zone - Hospital Corridor",
		severity: SeverityYellow,
		zoneType: TypeOperational,
		center:   geo.Point{Lat: 12.985, Lng: 77.61},
		radiusM:  800,
		altMinM:  0,
		altMaxM:  400,
		reason:   "Hospital helipad corridor",
	},
	{
		name:     "Red Zone - Sensitive Facility",
		severity: SeverityRed,
		zoneType: TypeGovernment,
		center:   geo.Point{Lat: 13.01, Lng: 77.58},
		radiusM:  1000,
		altMinM:  0,
		altMaxM:  800,
		reason:   "Government / sensitive facility",
	},
}

const circleVertices = 64

// CircleToPolygon approximates a geodesic circle as a ring of vertices using
// forward azimuth offsets.
func CircleToPolygon(center geo.Point, radiusM float64, vertices int) geo.Polygon {
	poly := make(geo.Polygon, vertices)
	for i := 0; i < vertices; i++ {
		bearing := 360 * float64(i) / float64(vertices)
		poly[i] = geo.Destination(center, bearing, radiusM)
	}
	return poly
}

var (
	staticOnce  sync.Once
	staticZones []*Zone
)

// StaticZones returns the built-in catalog with geometry computed lazily on
// first use. The returned slice is shared; callers must not mutate it.
func StaticZones() []*Zone {
	staticOnce.Do(func() {
		now := time.Now()
		staticZones = make([]*Zone, 0, len(staticCatalog))
		for _, s := range staticCatalog {
			altMax := s.altMaxM
			staticZones = append(staticZones, &Zone{
				ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte("static-zone:"+s.name)),
				Name:      s.name,
				Type:      s.zoneType,
				Severity:  s.severity,
				Boundary:  CircleToPolygon(s.center, s.radiusM, circleVertices),
				AltMinM:   s.altMinM,
				AltMaxM:   &altMax,
				IsActive:  true,
				Reason:    s.reason,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
	})
	return staticZones
}

// StaticZonesInBBox filters the catalog to zones intersecting the box.
func StaticZonesInBBox(b geo.BBox) []*Zone {
	var out []*Zone
	for _, z := range StaticZones() {
		if geo.PolygonIntersectsBBox(z.Boundary, b) {
			out = append(out, z)
		}
	}
	return out
}

// StaticZoneRadius reports the catalog radius for tests and diagnostics; 0 for
// unknown names.
func StaticZoneRadius(name string) float64 {
	for _, s := range staticCatalog {
		if s.name == name {
			return s.radiusM
		}
	}
	return 0
}
