package route

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"drone-dispatch/internal/geo"
	"drone-dispatch/internal/provider"
	"drone-dispatch/internal/zone"
)

func emptyZones() *zone.Store {
	return zone.NewStore()
}

func storeWith(zones ...*zone.Zone) *zone.Store {
	s := zone.NewStore()
	s.Replace(zones)
	return s
}

func redCircle(name string, center geo.Point, radiusM float64) *zone.Zone {
	altMax := 1200.0
	return &zone.Zone{
		ID:       uuid.New(),
		Name:     name,
		Type:     zone.TypeAirport,
		Severity: zone.SeverityRed,
		Boundary: zone.CircleToPolygon(center, radiusM, 32),
		AltMinM:  0,
		AltMaxM:  &altMax,
		IsActive: true,
	}
}

func baseRequest() Request {
	return Request{
		Start:       geo.NewPoint(12.9700, 77.5900),
		End:         geo.NewPoint(12.9900, 77.6100),
		AltitudeM:   100,
		Priority:    PriorityBalanced,
		Method:      MethodAStar,
		AvoidNoFly:  true,
		MaxSpeedKMH: 60,
	}
}

func TestOptimize_ClearPath(t *testing.T) {
	o := NewOptimizer(DefaultConfig(), emptyZones(), nil)

	req := baseRequest()
	res, err := o.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}

	if res.Metrics.OptimizationMethod != MethodAStar {
		t.Fatalf("expected method astar, got %s", res.Metrics.OptimizationMethod)
	}
	if res.Metrics.WaypointCount != 2 {
		t.Fatalf("clear path should smooth to 2 waypoints, got %d", res.Metrics.WaypointCount)
	}
	direct := geo.Haversine(req.Start, req.End)
	if math.Abs(res.Metrics.TotalDistanceKM-direct) > 0.05 {
		t.Fatalf("total %.3f km should be ~direct %.3f km", res.Metrics.TotalDistanceKM, direct)
	}
	if res.Metrics.DetourPercent >= 1 {
		t.Fatalf("detour should be <1%%, got %.2f", res.Metrics.DetourPercent)
	}
	if res.Waypoints[0].Action != ActionStart || res.Waypoints[len(res.Waypoints)-1].Action != ActionEnd {
		t.Fatal("path must start with action start and finish with action end")
	}
}

func TestOptimize_StartInsideZone_FallsBack(t *testing.T) {
	// The airport zone swallows both endpoints; A* cannot even leave the
	// start cell, so the planner must fall back to the offset direct path.
	airport := redCircle("Red Zone - Airport", geo.NewPoint(12.9716, 77.5946), 1500)
	o := NewOptimizer(DefaultConfig(), storeWith(airport), nil)

	req := baseRequest()
	req.End = geo.NewPoint(12.9800, 77.6000)

	started := time.Now()
	res, err := o.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 100*time.Millisecond {
		t.Fatalf("fallback took %s, expected <100ms", elapsed)
	}

	if res.Metrics.OptimizationMethod != MethodDirectFallback {
		t.Fatalf("expected direct_fallback, got %s", res.Metrics.OptimizationMethod)
	}

	var avoid *PathWaypoint
	for i := range res.Waypoints {
		if res.Waypoints[i].Action == ActionAvoid {
			avoid = &res.Waypoints[i]
		}
	}
	if avoid == nil {
		t.Fatal("fallback should insert an avoid waypoint for the intersected zone")
	}

	mid := geo.Point{
		Lat: (req.Start.Lat + req.End.Lat) / 2,
		Lng: (req.Start.Lng + req.End.Lng) / 2,
	}
	offset := geo.Haversine(mid, geo.NewPoint(avoid.Lat, avoid.Lng)) * 1000
	if math.Abs(offset-1000) > 50 {
		t.Fatalf("avoid waypoint is %.0f m from the midpoint, expected ~1000 m", offset)
	}
}

func TestOptimize_DetoursAroundSmallZone(t *testing.T) {
	// A small obstacle sits on the direct line but leaves both endpoints
	// clear, so the search must find a real detour.
	block := redCircle("construction", geo.NewPoint(12.9800, 77.6000), 300)
	cfg := DefaultConfig()
	o := NewOptimizer(cfg, storeWith(block), nil)

	req := baseRequest()
	res, err := o.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}

	if res.Metrics.OptimizationMethod != MethodAStar {
		t.Fatalf("expected astar, got %s", res.Metrics.OptimizationMethod)
	}

	buffered := geo.Buffer(block.Boundary, cfg.SafetyBufferM)
	for i, wp := range res.Waypoints {
		if geo.PointInPolygon(geo.NewPoint(wp.Lat, wp.Lng), buffered) {
			t.Fatalf("waypoint %d (%f, %f) is inside the buffered zone", i, wp.Lat, wp.Lng)
		}
	}
	if res.Metrics.NoFlyZonesAvoided != 1 {
		t.Fatalf("expected 1 no-fly zone avoided, got %d", res.Metrics.NoFlyZonesAvoided)
	}
	if res.Metrics.TotalDistanceKM <= res.Metrics.DirectDistanceKM {
		t.Fatal("a detour must be longer than the direct line")
	}
}

func TestOptimize_IterationCapFallsBack(t *testing.T) {
	// Goal fully enclosed by a ring the search cannot enter: the open set
	// floods until the cap trips and the fallback answers instead.
	ring := redCircle("enclosure", geo.NewPoint(12.9900, 77.6100), 800)
	o := NewOptimizer(DefaultConfig(), storeWith(ring), nil)

	res, err := o.Optimize(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.Metrics.OptimizationMethod != MethodDirectFallback {
		t.Fatalf("expected direct_fallback after cap, got %s", res.Metrics.OptimizationMethod)
	}
}

func TestOptimize_AltitudeClamped(t *testing.T) {
	o := NewOptimizer(DefaultConfig(), emptyZones(), nil)

	req := baseRequest()
	req.AltitudeM = 10
	res, err := o.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	for _, wp := range res.Waypoints {
		if wp.AltitudeM < 50 {
			t.Fatalf("altitude %f below the 50 m floor", wp.AltitudeM)
		}
	}

	req = baseRequest()
	req.AltitudeM = 2000
	res, err = o.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	for _, wp := range res.Waypoints {
		if wp.AltitudeM > 400 {
			t.Fatalf("altitude %f above the 400 m ceiling", wp.AltitudeM)
		}
	}
}

func TestOptimize_CacheHitAndInvalidation(t *testing.T) {
	o := NewOptimizer(DefaultConfig(), emptyZones(), nil)
	req := baseRequest()

	first, err := o.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	second, err := o.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if first != second {
		t.Fatal("identical requests should hit the cache")
	}

	o.ClearCache()
	third, err := o.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if third == first {
		t.Fatal("purge should force a recompute")
	}
}

func TestOptimize_DirectMethodSkipsSearch(t *testing.T) {
	airport := redCircle("Red Zone - Airport", geo.NewPoint(12.9716, 77.5946), 1500)
	o := NewOptimizer(DefaultConfig(), storeWith(airport), nil)

	req := baseRequest()
	req.Method = MethodDirect
	res, err := o.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if res.Metrics.OptimizationMethod != MethodDirect {
		t.Fatalf("expected direct, got %s", res.Metrics.OptimizationMethod)
	}
	if res.Metrics.WaypointCount != 2 {
		t.Fatalf("direct path is exactly two waypoints, got %d", res.Metrics.WaypointCount)
	}
}

func TestApplyWindFactors_Clamped(t *testing.T) {
	waypoints := []PathWaypoint{
		{Lat: 12.97, Lng: 77.59, AltitudeM: 100, Action: ActionStart},
		{Lat: 12.99, Lng: 77.59, AltitudeM: 100, Action: ActionEnd},
	}
	// Flying due north straight into a 50 km/h northerly: raw factor 1.5
	// must clamp to 1.3.
	applyWindFactors(waypoints, provider.Weather{WindSpeedKMH: 50, WindDirectionDeg: 0})
	if waypoints[1].WindFactor != 1.3 {
		t.Fatalf("expected clamp to 1.3, got %f", waypoints[1].WindFactor)
	}

	// Tailwind: wind from the south while flying north.
	waypoints[1].WindFactor = 0
	applyWindFactors(waypoints, provider.Weather{WindSpeedKMH: 20, WindDirectionDeg: 180})
	if waypoints[1].WindFactor >= 1 {
		t.Fatalf("tailwind factor should be below 1, got %f", waypoints[1].WindFactor)
	}
}

func TestFromResult_SequenceAndArrivals(t *testing.T) {
	o := NewOptimizer(DefaultConfig(), emptyZones(), nil)
	req := baseRequest()
	res, err := o.Optimize(context.Background(), req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}

	depart := time.Now()
	orderID := uuid.New()
	rt, waypoints := FromResult(orderID, res, req, 75, depart)

	if rt.OrderID != orderID {
		t.Fatal("route must carry the order id")
	}
	if len(waypoints) != len(res.Waypoints) {
		t.Fatalf("expected %d waypoints, got %d", len(res.Waypoints), len(waypoints))
	}
	for i, wp := range waypoints {
		if wp.Sequence != i+1 {
			t.Fatalf("waypoint %d has sequence %d, expected %d", i, wp.Sequence, i+1)
		}
		if wp.RouteID != rt.ID {
			t.Fatal("waypoint must reference its route")
		}
		if wp.EstimatedArrival == nil {
			t.Fatalf("waypoint %d missing estimated arrival", i)
		}
	}
	last := waypoints[len(waypoints)-1]
	if !last.EstimatedArrival.After(depart) {
		t.Fatal("final arrival must be after departure")
	}
	if !rt.EstimatedETA.After(depart) {
		t.Fatal("route ETA must be after departure")
	}
}
