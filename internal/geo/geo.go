// Package geo holds the WGS84 primitives used by the zone store and the route
// optimizer. All latitudes and longitudes are decimal degrees, altitudes are
// metres AGL, and distances are kilometres unless a function says otherwise.
package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	earthRadiusKM = 6371.0
	// WGS84 equatorial radius, used for geodesic offsets in metres.
	earthRadiusM = 6378137.0
	// Rough metres-per-degree at the equator, used to convert buffer
	// distances to degrees.
	metresPerDegree = 111000.0
)

var ErrInvalidLatLng = errors.New("invalid latitude or longitude")

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func NewPoint(lat, lng float64) Point {
	return Point{Lat: lat, Lng: lng}
}

// Point3 is a point with altitude in metres.
type Point3 struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	AltM float64 `json:"alt_m"`
}

func (p Point3) Horizontal() Point {
	return Point{Lat: p.Lat, Lng: p.Lng}
}

// Polygon is a ring of vertices. The ring need not repeat its first vertex;
// PointInPolygon treats it as closed.
type Polygon []Point

type BBox struct {
	MinLat float64
	MinLng float64
	MaxLat float64
	MaxLng float64
}

func (b BBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

func ValidateLatLng(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidLatLng)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidLatLng)
	}
	return nil
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }

// Haversine returns the great-circle distance between a and b in km.
func Haversine(a, b Point) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLng := degToRad(b.Lng - a.Lng)

	aLat := degToRad(a.Lat)
	bLat := degToRad(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(aLat)*math.Cos(bLat)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKM * c
}

// Distance3 returns the 3D distance between two points in km, combining the
// haversine horizontal component with the altitude delta.
func Distance3(a, b Point3) float64 {
	horiz := Haversine(a.Horizontal(), b.Horizontal())
	vert := (b.AltM - a.AltM) / 1000.0
	return math.Sqrt(horiz*horiz + vert*vert)
}

// Bearing returns the initial bearing from a to b in degrees [0, 360).
func Bearing(a, b Point) float64 {
	aLat := degToRad(a.Lat)
	bLat := degToRad(b.Lat)
	dLng := degToRad(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(bLat)
	x := math.Cos(aLat)*math.Sin(bLat) - math.Sin(aLat)*math.Cos(bLat)*math.Cos(dLng)

	deg := radToDeg(math.Atan2(y, x))
	return math.Mod(deg+360, 360)
}

// Destination returns the point reached by travelling distM metres from p on
// the given initial bearing, on a sphere of the WGS84 equatorial radius.
func Destination(p Point, bearingDeg, distM float64) Point {
	latR := degToRad(p.Lat)
	lngR := degToRad(p.Lng)
	brg := degToRad(bearingDeg)
	angular := distM / earthRadiusM

	sinLat := math.Sin(latR)*math.Cos(angular) + math.Cos(latR)*math.Sin(angular)*math.Cos(brg)
	latOut := math.Asin(sinLat)

	y := math.Sin(brg) * math.Sin(angular) * math.Cos(latR)
	x := math.Cos(angular) - math.Sin(latR)*sinLat
	lngOut := lngR + math.Atan2(y, x)

	return Point{Lat: radToDeg(latOut), Lng: radToDeg(lngOut)}
}

// PointInPolygon runs a ray cast against the polygon ring.
func PointInPolygon(p Point, poly Polygon) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		pi, pj := poly[i], poly[j]
		if (pi.Lat > p.Lat) != (pj.Lat > p.Lat) {
			crossLng := (pj.Lng-pi.Lng)*(p.Lat-pi.Lat)/(pj.Lat-pi.Lat) + pi.Lng
			if p.Lng < crossLng {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Buffer expands the polygon outward from its centroid by the given distance
// in metres, using the flat m/111000 degree conversion. Good enough for
// obstacle safety margins at city scale.
func Buffer(poly Polygon, metres float64) Polygon {
	if len(poly) == 0 || metres == 0 {
		return poly
	}
	c := Centroid(poly)
	delta := metres / metresPerDegree

	out := make(Polygon, len(poly))
	for i, v := range poly {
		dLat := v.Lat - c.Lat
		dLng := v.Lng - c.Lng
		norm := math.Hypot(dLat, dLng)
		if norm == 0 {
			out[i] = v
			continue
		}
		out[i] = Point{
			Lat: v.Lat + dLat/norm*delta,
			Lng: v.Lng + dLng/norm*delta,
		}
	}
	return out
}

func Centroid(poly Polygon) Point {
	var lat, lng float64
	for _, v := range poly {
		lat += v.Lat
		lng += v.Lng
	}
	n := float64(len(poly))
	return Point{Lat: lat / n, Lng: lng / n}
}

// BBoxAround builds a bounding box containing both points, padded by bufferKM
// on every side.
func BBoxAround(a, b Point, bufferKM float64) BBox {
	dLat := bufferKM / 111.0
	midLat := (a.Lat + b.Lat) / 2
	cosLat := math.Cos(degToRad(midLat))
	if math.Abs(cosLat) < 0.01 {
		cosLat = 0.01
	}
	dLng := bufferKM / (111.0 * cosLat)

	return BBox{
		MinLat: math.Min(a.Lat, b.Lat) - dLat,
		MaxLat: math.Max(a.Lat, b.Lat) + dLat,
		MinLng: math.Min(a.Lng, b.Lng) - dLng,
		MaxLng: math.Max(a.Lng, b.Lng) + dLng,
	}
}

// SegmentsIntersect reports whether segments p1-p2 and p3-p4 cross, treating
// coordinates as planar. Collinear overlap counts as an intersection.
func SegmentsIntersect(p1, p2, p3, p4 Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	return (d1 == 0 && onSegment(p3, p4, p1)) ||
		(d2 == 0 && onSegment(p3, p4, p2)) ||
		(d3 == 0 && onSegment(p1, p2, p3)) ||
		(d4 == 0 && onSegment(p1, p2, p4))
}

func cross(a, b, c Point) float64 {
	return (b.Lng-a.Lng)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lng-a.Lng)
}

func onSegment(a, b, p Point) bool {
	return math.Min(a.Lng, b.Lng) <= p.Lng && p.Lng <= math.Max(a.Lng, b.Lng) &&
		math.Min(a.Lat, b.Lat) <= p.Lat && p.Lat <= math.Max(a.Lat, b.Lat)
}

// SegmentIntersectsPolygon reports whether segment a-b touches the polygon:
// either endpoint inside, or the segment crossing any edge.
func SegmentIntersectsPolygon(a, b Point, poly Polygon) bool {
	if len(poly) < 3 {
		return false
	}
	if PointInPolygon(a, poly) || PointInPolygon(b, poly) {
		return true
	}
	n := len(poly)
	for i := 0; i < n; i++ {
		if SegmentsIntersect(a, b, poly[i], poly[(i+1)%n]) {
			return true
		}
	}
	return false
}

// LineIntersectsPolygon reports whether any segment of the linestring touches
// the polygon.
func LineIntersectsPolygon(line []Point, poly Polygon) bool {
	if len(line) == 1 {
		return PointInPolygon(line[0], poly)
	}
	for i := 0; i+1 < len(line); i++ {
		if SegmentIntersectsPolygon(line[i], line[i+1], poly) {
			return true
		}
	}
	return false
}

// PolygonIntersectsBBox reports whether the polygon and the box overlap.
func PolygonIntersectsBBox(poly Polygon, b BBox) bool {
	for _, v := range poly {
		if b.Contains(v) {
			return true
		}
	}
	corners := Polygon{
		{Lat: b.MinLat, Lng: b.MinLng},
		{Lat: b.MinLat, Lng: b.MaxLng},
		{Lat: b.MaxLat, Lng: b.MaxLng},
		{Lat: b.MaxLat, Lng: b.MinLng},
	}
	for _, c := range corners {
		if PointInPolygon(c, poly) {
			return true
		}
	}
	n := len(poly)
	for i := 0; i < n; i++ {
		for j := 0; j < 4; j++ {
			if SegmentsIntersect(poly[i], poly[(i+1)%n], corners[j], corners[(j+1)%4]) {
				return true
			}
		}
	}
	return false
}
