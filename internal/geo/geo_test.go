package geo

import (
	"encoding/json"
	"math"
	"testing"
)

func TestHaversine_SamePoint(t *testing.T) {
	a := NewPoint(12.9716, 77.5946)
	if d := Haversine(a, a); d != 0 {
		t.Fatalf("expected 0 distance for same point, got %f", d)
	}
}

func TestHaversine_KnownPair(t *testing.T) {
	// Bengaluru to Chennai: roughly 290 km straight-line
	blr := NewPoint(12.9716, 77.5946)
	maa := NewPoint(13.0827, 80.2707)

	d := Haversine(blr, maa)
	if math.Abs(d-290) > 10 {
		t.Fatalf("expected ~290 km, got %f km", d)
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	a := NewPoint(12.97, 77.59)
	b := NewPoint(13.01, 77.65)
	if d1, d2 := Haversine(a, b), Haversine(b, a); math.Abs(d1-d2) > 1e-10 {
		t.Fatalf("expected symmetric distance, got %f vs %f", d1, d2)
	}
}

func TestDistance3_AltitudeComponent(t *testing.T) {
	a := Point3{Lat: 12.97, Lng: 77.59, AltM: 100}
	b := Point3{Lat: 12.97, Lng: 77.59, AltM: 300}

	d := Distance3(a, b)
	if math.Abs(d-0.2) > 1e-9 {
		t.Fatalf("expected 0.2 km vertical distance, got %f", d)
	}
}

func TestBearing_CardinalDirections(t *testing.T) {
	origin := NewPoint(12.97, 77.59)
	cases := []struct {
		name string
		to   Point
		want float64
	}{
		{"north", NewPoint(13.07, 77.59), 0},
		{"east", NewPoint(12.97, 77.69), 90},
		{"south", NewPoint(12.87, 77.59), 180},
		{"west", NewPoint(12.97, 77.49), 270},
	}
	for _, tc := range cases {
		got := Bearing(origin, tc.to)
		diff := math.Abs(got - tc.want)
		if diff > 180 {
			diff = 360 - diff
		}
		if diff > 1.5 {
			t.Errorf("%s: expected bearing ~%f, got %f", tc.name, tc.want, got)
		}
	}
}

func TestDestination_RoundTrip(t *testing.T) {
	p := NewPoint(12.9716, 77.5946)
	q := Destination(p, 45, 1500)

	d := Haversine(p, q)
	if math.Abs(d-1.5) > 0.02 {
		t.Fatalf("expected destination ~1.5 km away, got %f km", d)
	}
}

func squareAround(c Point, half float64) Polygon {
	return Polygon{
		{Lat: c.Lat - half, Lng: c.Lng - half},
		{Lat: c.Lat - half, Lng: c.Lng + half},
		{Lat: c.Lat + half, Lng: c.Lng + half},
		{Lat: c.Lat + half, Lng: c.Lng - half},
	}
}

func TestPointInPolygon(t *testing.T) {
	sq := squareAround(NewPoint(13.0, 77.6), 0.01)

	if !PointInPolygon(NewPoint(13.0, 77.6), sq) {
		t.Fatal("centre should be inside")
	}
	if PointInPolygon(NewPoint(13.02, 77.6), sq) {
		t.Fatal("point north of square should be outside")
	}
	if PointInPolygon(NewPoint(13.0, 77.62), sq) {
		t.Fatal("point east of square should be outside")
	}
}

func TestBuffer_ExpandsOutward(t *testing.T) {
	sq := squareAround(NewPoint(13.0, 77.6), 0.01)
	buffered := Buffer(sq, 500)

	// A point just outside the original square must fall inside the buffer.
	p := NewPoint(13.0121, 77.6)
	if PointInPolygon(p, sq) {
		t.Fatal("test point should start outside the square")
	}
	if !PointInPolygon(p, buffered) {
		t.Fatal("buffered polygon should contain the near-boundary point")
	}
}

func TestBBoxAround_ContainsBothEndpoints(t *testing.T) {
	a := NewPoint(12.97, 77.59)
	b := NewPoint(12.99, 77.61)
	box := BBoxAround(a, b, 2)

	if !box.Contains(a) || !box.Contains(b) {
		t.Fatal("bbox must contain both endpoints")
	}
	if box.Contains(NewPoint(13.5, 77.6)) {
		t.Fatal("bbox should not stretch 50 km north")
	}
}

func TestSegmentIntersectsPolygon(t *testing.T) {
	sq := squareAround(NewPoint(13.0, 77.6), 0.01)

	// Crossing straight through.
	if !SegmentIntersectsPolygon(NewPoint(13.0, 77.5), NewPoint(13.0, 77.7), sq) {
		t.Fatal("crossing segment should intersect")
	}
	// Entirely outside.
	if SegmentIntersectsPolygon(NewPoint(13.05, 77.5), NewPoint(13.05, 77.7), sq) {
		t.Fatal("distant segment should not intersect")
	}
	// One endpoint inside.
	if !SegmentIntersectsPolygon(NewPoint(13.0, 77.6), NewPoint(13.05, 77.7), sq) {
		t.Fatal("segment starting inside should intersect")
	}
}

func TestPolygonIntersectsBBox(t *testing.T) {
	sq := squareAround(NewPoint(13.0, 77.6), 0.01)

	overlap := BBox{MinLat: 13.005, MaxLat: 13.05, MinLng: 77.59, MaxLng: 77.62}
	if !PolygonIntersectsBBox(sq, overlap) {
		t.Fatal("overlapping bbox should intersect")
	}

	// Box fully inside the polygon: no vertex containment either way, but the
	// box corners are inside.
	inner := BBox{MinLat: 12.999, MaxLat: 13.001, MinLng: 77.599, MaxLng: 77.601}
	if !PolygonIntersectsBBox(sq, inner) {
		t.Fatal("contained bbox should intersect")
	}

	far := BBox{MinLat: 14, MaxLat: 15, MinLng: 77, MaxLng: 78}
	if PolygonIntersectsBBox(sq, far) {
		t.Fatal("distant bbox should not intersect")
	}
}

func TestLineStringGeoJSON_RoundTrip(t *testing.T) {
	path := []Point3{
		{Lat: 12.970001, Lng: 77.590002, AltM: 100},
		{Lat: 12.975555, Lng: 77.601234, AltM: 120},
		{Lat: 12.990009, Lng: 77.610001, AltM: 100},
	}

	raw, err := json.Marshal(EncodeLineString(path))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := DecodeLineString(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(path) {
		t.Fatalf("expected %d points, got %d", len(path), len(decoded))
	}
	for i := range path {
		if math.Abs(decoded[i].Lat-path[i].Lat) > 1e-6 ||
			math.Abs(decoded[i].Lng-path[i].Lng) > 1e-6 {
			t.Fatalf("point %d drifted beyond 6 decimal places: %+v vs %+v", i, decoded[i], path[i])
		}
	}
}

func TestPolygonGeoJSON_RoundTrip(t *testing.T) {
	sq := squareAround(NewPoint(13.0, 77.6), 0.01)

	raw, err := json.Marshal(EncodePolygon(sq))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := DecodePolygon(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(sq) {
		t.Fatalf("expected %d vertices, got %d", len(sq), len(decoded))
	}
}

func TestValidateLatLng(t *testing.T) {
	if err := ValidateLatLng(12.97, 77.59); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := ValidateLatLng(91, 0); err == nil {
		t.Fatal("expected error for latitude 91")
	}
	if err := ValidateLatLng(0, -181); err == nil {
		t.Fatal("expected error for longitude -181")
	}
}
