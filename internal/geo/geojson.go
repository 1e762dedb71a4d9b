package geo

import (
	"encoding/json"
	"fmt"
	"math"
)

// LineStringGeoJSON is the GeoJSON rendering of a 3D path. Coordinates are
// [lng, lat, alt] and are rounded to 6 decimal places, which keeps the
// round trip lossless at the ~0.1 m level.
type LineStringGeoJSON struct {
	Type        string       `json:"type"`
	Coordinates [][3]float64 `json:"coordinates"`
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func EncodeLineString(path []Point3) LineStringGeoJSON {
	coords := make([][3]float64, len(path))
	for i, p := range path {
		coords[i] = [3]float64{round6(p.Lng), round6(p.Lat), round6(p.AltM)}
	}
	return LineStringGeoJSON{Type: "LineString", Coordinates: coords}
}

func DecodeLineString(raw []byte) ([]Point3, error) {
	var ls LineStringGeoJSON
	if err := json.Unmarshal(raw, &ls); err != nil {
		return nil, fmt.Errorf("decode linestring: %w", err)
	}
	if ls.Type != "LineString" {
		return nil, fmt.Errorf("decode linestring: unexpected type %q", ls.Type)
	}
	path := make([]Point3, len(ls.Coordinates))
	for i, c := range ls.Coordinates {
		path[i] = Point3{Lng: c[0], Lat: c[1], AltM: c[2]}
	}
	return path, nil
}

// PolygonGeoJSON renders a polygon ring as a closed GeoJSON Polygon.
type PolygonGeoJSON struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

func EncodePolygon(poly Polygon) PolygonGeoJSON {
	ring := make([][2]float64, 0, len(poly)+1)
	for _, p := range poly {
		ring = append(ring, [2]float64{round6(p.Lng), round6(p.Lat)})
	}
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return PolygonGeoJSON{Type: "Polygon", Coordinates: [][][2]float64{ring}}
}

func DecodePolygon(raw []byte) (Polygon, error) {
	var pg PolygonGeoJSON
	if err := json.Unmarshal(raw, &pg); err != nil {
		return nil, fmt.Errorf("decode polygon: %w", err)
	}
	if pg.Type != "Polygon" || len(pg.Coordinates) == 0 {
		return nil, fmt.Errorf("decode polygon: not a polygon")
	}
	ring := pg.Coordinates[0]
	// Drop the closing vertex; Polygon is implicitly closed.
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	poly := make(Polygon, len(ring))
	for i, c := range ring {
		poly[i] = Point{Lng: c[0], Lat: c[1]}
	}
	return poly, nil
}
