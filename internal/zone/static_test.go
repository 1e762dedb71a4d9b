package zone

import (
	"math"
	"testing"

	"drone-dispatch/internal/geo"
)

func TestStaticZones_CatalogShape(t *testing.T) {
	zones := StaticZones()
	if len(zones) != 3 {
		t.Fatalf("expected 3 static zones, got %d", len(zones))
	}
	for _, z := range zones {
		if len(z.Boundary) != 64 {
			t.Errorf("%s: expected 64 vertices, got %d", z.Name, len(z.Boundary))
		}
		if !z.IsActive {
			t.Errorf("%s: static zones are always active", z.Name)
		}
		if z.Severity != SeverityRed && z.Severity != SeverityYellow {
			t.Errorf("%s: unexpected severity %q", z.Name, z.Severity)
		}
	}
}

func TestStaticZones_Idempotent(t *testing.T) {
	a := StaticZones()
	b := StaticZones()
	if len(a) != len(b) || a[0] != b[0] {
		t.Fatal("StaticZones should return the cached slice")
	}
	if a[0].ID != b[0].ID {
		t.Fatal("static zone ids must be stable")
	}
}

func TestCircleToPolygon_RadiusAccuracy(t *testing.T) {
	center := geo.NewPoint(12.9716, 77.5946)
	poly := CircleToPolygon(center, 1500, 64)

	for i, v := range poly {
		d := geo.Haversine(center, v) * 1000
		if math.Abs(d-1500) > 20 {
			t.Fatalf("vertex %d is %f m from centre, expected ~1500 m", i, d)
		}
	}

	// Centre must be inside, a point 2 km out must not be.
	if !geo.PointInPolygon(center, poly) {
		t.Fatal("centre should be inside the circle polygon")
	}
	outside := geo.Destination(center, 90, 2000)
	if geo.PointInPolygon(outside, poly) {
		t.Fatal("point 2 km east should be outside the 1.5 km circle")
	}
}

func TestStaticZonesInBBox(t *testing.T) {
	// Box around the airport zone only.
	airport := geo.NewPoint(12.9716, 77.5946)
	box := geo.BBoxAround(airport, airport, 2)

	got := StaticZonesInBBox(box)
	found := false
	for _, z := range got {
		if z.Name == "Red Zone - Airport" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected airport zone in bbox result")
	}

	// Far away: nothing.
	far := geo.NewPoint(20.0, 70.0)
	if got := StaticZonesInBBox(geo.BBoxAround(far, far, 2)); len(got) != 0 {
		t.Fatalf("expected no static zones near (20,70), got %d", len(got))
	}
}
