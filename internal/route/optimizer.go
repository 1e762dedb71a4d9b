package route

import (
	"container/heap"
	"context"
	"log/slog"
	"math"
	"time"

	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/geo"
	"drone-dispatch/internal/provider"
	"drone-dispatch/internal/zone"
)

type Priority string

const (
	PrioritySpeed    Priority = "speed"
	PriorityEnergy   Priority = "energy"
	PrioritySafety   Priority = "safety"
	PriorityBalanced Priority = "balanced"
)

type Method string

const (
	MethodAStar          Method = "astar"
	MethodDijkstra       Method = "dijkstra"
	MethodDirect         Method = "direct"
	MethodDirectFallback Method = "direct_fallback"
)

// Waypoint actions, in the order they appear along a route.
const (
	ActionStart    = "start"
	ActionNavigate = "navigate"
	ActionAscend   = "ascend"
	ActionDescend  = "descend"
	ActionHover    = "hover"
	ActionAvoid    = "avoid"
	ActionEnd      = "end"
)

type Config struct {
	GridResolutionDeg    float64
	AltitudeStepM        float64
	MinAltitudeM         float64
	MaxAltitudeM         float64
	MinTerrainClearanceM float64
	SafetyBufferM        float64
	SearchIterationCap   int
	CacheTTL             time.Duration
	CacheSize            int
}

func DefaultConfig() Config {
	return Config{
		GridResolutionDeg:    0.001, // ~100 m horizontal step
		AltitudeStepM:        20,
		MinAltitudeM:         50,
		MaxAltitudeM:         400,
		MinTerrainClearanceM: 30,
		SafetyBufferM:        100,
		SearchIterationCap:   10000,
		CacheTTL:             time.Hour,
		CacheSize:            512,
	}
}

type Request struct {
	Start        geo.Point
	End          geo.Point
	AltitudeM    float64
	Priority     Priority
	Method       Method
	AvoidNoFly   bool
	AvoidWeather bool
	MaxSpeedKMH  float64
	Weather      *provider.Weather
}

// PathWaypoint is a post-smoothing waypoint of the final route.
type PathWaypoint struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	AltitudeM  float64 `json:"altitude_m"`
	Action     string  `json:"action"`
	WindFactor float64 `json:"wind_factor,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

type Metrics struct {
	TotalDistanceKM          float64 `json:"total_distance_km"`
	DirectDistanceKM         float64 `json:"direct_distance_km"`
	DetourPercent            float64 `json:"detour_percent"`
	EstimatedDurationMinutes float64 `json:"estimated_duration_minutes"`
	WaypointCount            int     `json:"waypoint_count"`
	AltitudeChanges          int     `json:"altitude_changes"`
	NoFlyZonesAvoided        int     `json:"no_fly_zones_avoided"`
	WeatherHazardsAvoided    int     `json:"weather_hazards_avoided"`
	TerrainClearanceMinM     float64 `json:"terrain_clearance_min"`
	AvgSegmentLengthKM       float64 `json:"avg_segment_length"`
	ComplexityScore          float64 `json:"complexity_score"`
	OptimizationMethod       Method  `json:"optimization_method"`
	ComputationTimeMS        float64 `json:"computation_time_ms"`
}

type Result struct {
	Path      []geo.Point3   `json:"path"`
	Waypoints []PathWaypoint `json:"waypoints"`
	Metrics   Metrics        `json:"metrics"`
}

// ZoneSource is the slice of the zone store the optimizer needs.
type ZoneSource interface {
	ActiveInBBox(b geo.BBox, now time.Time) []*zone.Zone
}

type Optimizer struct {
	cfg     Config
	zones   ZoneSource
	terrain provider.TerrainProvider
	cache   *resultCache
}

func NewOptimizer(cfg Config, zones ZoneSource, terrain provider.TerrainProvider) *Optimizer {
	return &Optimizer{
		cfg:     cfg,
		zones:   zones,
		terrain: terrain,
		cache:   newResultCache(cfg.CacheSize, cfg.CacheTTL),
	}
}

// ClearCache drops every cached result. The zone store's change hook calls
// this so stale paths never outlive a zone mutation.
func (o *Optimizer) ClearCache() {
	o.cache.purge()
}

// obstacle is a restriction polygon pre-buffered by the safety margin.
type obstacle struct {
	zone     *zone.Zone
	buffered geo.Polygon
}

func (ob *obstacle) blocks(p geo.Point3) bool {
	alt := p.AltM
	if !ob.zone.ContainsAltitude(&alt) {
		return false
	}
	return geo.PointInPolygon(p.Horizontal(), ob.buffered)
}

func (o *Optimizer) collectObstacles(req Request, now time.Time) []obstacle {
	box := geo.BBoxAround(req.Start, req.End, 5)
	var out []obstacle
	for _, z := range o.zones.ActiveInBBox(box, now) {
		if z.Type == zone.TypeWeather {
			if !req.AvoidWeather {
				continue
			}
		} else if !req.AvoidNoFly {
			continue
		}
		out = append(out, obstacle{
			zone:     z,
			buffered: geo.Buffer(z.Boundary, o.cfg.SafetyBufferM),
		})
	}
	return out
}

// Optimize plans a route for the request. The search itself is CPU-bound and
// checks ctx every 1000 expansions; callers should run it on a worker.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	if err := geo.ValidateLatLng(req.Start.Lat, req.Start.Lng); err != nil {
		return nil, domainerrors.NewValidation("start: " + err.Error())
	}
	if err := geo.ValidateLatLng(req.End.Lat, req.End.Lng); err != nil {
		return nil, domainerrors.NewValidation("end: " + err.Error())
	}
	req.AltitudeM = o.clampAltitude(req.AltitudeM)
	if req.Priority == "" {
		req.Priority = PriorityBalanced
	}
	if req.Method == "" {
		req.Method = MethodAStar
	}
	if req.MaxSpeedKMH <= 0 {
		req.MaxSpeedKMH = 60
	}

	if cached, ok := o.cache.get(req); ok {
		return cached, nil
	}

	obstacles := o.collectObstacles(req, time.Now())

	var (
		path    []geo.Point3
		actions []string
		method  Method
	)

	switch req.Method {
	case MethodDirect:
		path, actions = directPath(req)
		method = MethodDirect
	default:
		var found bool
		path, actions, found = o.search(ctx, req, obstacles)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if found {
			method = req.Method
		} else {
			path, actions = o.fallbackPath(req, obstacles)
			method = MethodDirectFallback
		}
	}

	waypoints := o.smooth(path, actions, obstacles)
	groundMin := o.applyTerrainClearance(ctx, waypoints)
	if req.Weather != nil {
		applyWindFactors(waypoints, *req.Weather)
	}

	result := o.buildResult(req, waypoints, obstacles, method, groundMin, started)
	o.cache.put(req, result)
	return result, nil
}

func (o *Optimizer) clampAltitude(alt float64) float64 {
	if alt < o.cfg.MinAltitudeM {
		slog.Info("altitude clamped to floor", slog.Float64("requested", alt), slog.Float64("clamped", o.cfg.MinAltitudeM))
		return o.cfg.MinAltitudeM
	}
	if alt > o.cfg.MaxAltitudeM {
		slog.Info("altitude clamped to ceiling", slog.Float64("requested", alt), slog.Float64("clamped", o.cfg.MaxAltitudeM))
		return o.cfg.MaxAltitudeM
	}
	return alt
}

// --- A* search over the 3D grid ---

type nodeKey struct {
	li, gi int32 // lat/lng grid offsets from the start
	ai     int32 // altitude steps from the start altitude
}

type searchNode struct {
	key    nodeKey
	pt     geo.Point3
	g      float64
	f      float64
	action string
	parent *searchNode
	index  int
}

type nodeHeap []*searchNode

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].f < h[j].f }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *nodeHeap) Push(x interface{}) { n := x.(*searchNode); n.index = len(*h); *h = append(*h, n) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return n
}

func (o *Optimizer) heuristic(req Request, p geo.Point3) float64 {
	if req.Method == MethodDijkstra {
		return 0
	}
	goal := geo.Point3{Lat: req.End.Lat, Lng: req.End.Lng, AltM: p.AltM}
	return geo.Distance3(p, goal)
}

func edgeCost(priority Priority, from, to geo.Point3) float64 {
	dist := geo.Distance3(from, to)
	dAlt := to.AltM - from.AltM
	switch priority {
	case PrioritySpeed:
		return dist
	case PriorityEnergy:
		return dist + 0.5*math.Abs(dAlt)/100
	case PrioritySafety:
		if dAlt > 0 {
			return dist - 0.1
		}
		if dAlt < 0 {
			return dist + 0.1
		}
		return dist
	default: // balanced
		return dist + math.Abs(dAlt)/500
	}
}

// search runs A* (or Dijkstra when the request says so). It returns
// found=false when the open set empties or the iteration cap is hit.
func (o *Optimizer) search(ctx context.Context, req Request, obstacles []obstacle) ([]geo.Point3, []string, bool) {
	res := o.cfg.GridResolutionDeg
	start := geo.Point3{Lat: req.Start.Lat, Lng: req.Start.Lng, AltM: req.AltitudeM}

	startNode := &searchNode{
		key:    nodeKey{},
		pt:     start,
		g:      0,
		f:      o.heuristic(req, start),
		action: ActionStart,
	}

	open := &nodeHeap{}
	heap.Init(open)
	heap.Push(open, startNode)

	best := map[nodeKey]float64{startNode.key: 0}
	closed := map[nodeKey]bool{}

	blocked := func(p geo.Point3) bool {
		for i := range obstacles {
			if obstacles[i].blocks(p) {
				return true
			}
		}
		return false
	}

	expansions := 0
	for open.Len() > 0 {
		if expansions >= o.cfg.SearchIterationCap {
			slog.Warn("route search exhausted iteration cap",
				slog.Int("expansions", expansions),
			)
			return nil, nil, false
		}
		expansions++
		if expansions%1000 == 0 && ctx.Err() != nil {
			return nil, nil, false
		}

		current := heap.Pop(open).(*searchNode)
		if closed[current.key] {
			continue
		}
		closed[current.key] = true

		if math.Abs(current.pt.Lat-req.End.Lat) < res && math.Abs(current.pt.Lng-req.End.Lng) < res {
			path, actions := reconstruct(current, req.End)
			return path, actions, true
		}

		for _, step := range neighbourSteps {
			key := nodeKey{
				li: current.key.li + step.dLat,
				gi: current.key.gi + step.dLng,
				ai: current.key.ai + step.dAlt,
			}
			alt := req.AltitudeM + float64(key.ai)*o.cfg.AltitudeStepM
			if alt < o.cfg.MinAltitudeM || alt > o.cfg.MaxAltitudeM {
				continue
			}
			pt := geo.Point3{
				Lat:  req.Start.Lat + float64(key.li)*res,
				Lng:  req.Start.Lng + float64(key.gi)*res,
				AltM: alt,
			}
			if closed[key] || blocked(pt) {
				continue
			}

			g := current.g + edgeCost(req.Priority, current.pt, pt)
			if prev, ok := best[key]; ok && g >= prev {
				continue
			}
			best[key] = g

			action := ActionNavigate
			if step.dAlt > 0 {
				action = ActionAscend
			} else if step.dAlt < 0 {
				action = ActionDescend
			}

			heap.Push(open, &searchNode{
				key:    key,
				pt:     pt,
				g:      g,
				f:      g + o.heuristic(req, pt),
				action: action,
				parent: current,
			})
		}
	}
	return nil, nil, false
}

type gridStep struct{ dLat, dLng, dAlt int32 }

// 8 horizontal neighbours at the same altitude plus one step up and down.
var neighbourSteps = []gridStep{
	{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0},
	{1, 1, 0}, {1, -1, 0}, {-1, 1, 0}, {-1, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

func reconstruct(goalNode *searchNode, literalGoal geo.Point) ([]geo.Point3, []string) {
	var pts []geo.Point3
	var actions []string
	for n := goalNode; n != nil; n = n.parent {
		pts = append(pts, n.pt)
		actions = append(actions, n.action)
	}
	// Reverse into start→goal order.
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
		actions[i], actions[j] = actions[j], actions[i]
	}
	// Land the path on the literal query point.
	pts = append(pts, geo.Point3{Lat: literalGoal.Lat, Lng: literalGoal.Lng, AltM: goalNode.pt.AltM})
	actions = append(actions, ActionEnd)
	return pts, actions
}

// --- direct and fallback paths ---

func directPath(req Request) ([]geo.Point3, []string) {
	pts := []geo.Point3{
		{Lat: req.Start.Lat, Lng: req.Start.Lng, AltM: req.AltitudeM},
		{Lat: req.End.Lat, Lng: req.End.Lng, AltM: req.AltitudeM},
	}
	return pts, []string{ActionStart, ActionEnd}
}

// fallbackPath returns the straight line with one perpendicular detour
// waypoint per intersected obstacle, offset ~1 km away from the obstacle
// centroid. Best-effort only; the caller reports method=direct_fallback.
func (o *Optimizer) fallbackPath(req Request, obstacles []obstacle) ([]geo.Point3, []string) {
	const offsetM = 1000

	mid := geo.Point{
		Lat: (req.Start.Lat + req.End.Lat) / 2,
		Lng: (req.Start.Lng + req.End.Lng) / 2,
	}
	heading := geo.Bearing(req.Start, req.End)

	pts := []geo.Point3{{Lat: req.Start.Lat, Lng: req.Start.Lng, AltM: req.AltitudeM}}
	actions := []string{ActionStart}

	alt := req.AltitudeM
	for i := range obstacles {
		ob := &obstacles[i]
		if !ob.zone.ContainsAltitude(&alt) {
			continue
		}
		if !geo.SegmentIntersectsPolygon(req.Start, req.End, ob.buffered) {
			continue
		}
		centroid := geo.Centroid(ob.zone.Boundary)
		// Offset to whichever side of the track points away from the
		// obstacle centre.
		side := heading + 90
		if sideOfTrack(req.Start, req.End, centroid) > 0 {
			side = heading - 90
		}
		detour := geo.Destination(mid, side, offsetM)
		pts = append(pts, geo.Point3{Lat: detour.Lat, Lng: detour.Lng, AltM: req.AltitudeM})
		actions = append(actions, ActionAvoid)
	}

	pts = append(pts, geo.Point3{Lat: req.End.Lat, Lng: req.End.Lng, AltM: req.AltitudeM})
	actions = append(actions, ActionEnd)
	return pts, actions
}

// sideOfTrack is positive when p lies left of the a→b track.
func sideOfTrack(a, b, p geo.Point) float64 {
	return (b.Lng-a.Lng)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lng-a.Lng)
}

// --- post-processing ---

// smooth drops intermediate grid nodes, keeping endpoints and every node that
// carries an action. A navigate node survives (relabelled avoid) only when
// cutting it would push the shortcut segment through an obstacle.
func (o *Optimizer) smooth(path []geo.Point3, actions []string, obstacles []obstacle) []PathWaypoint {
	if len(path) == 0 {
		return nil
	}
	if len(path) == 1 {
		return []PathWaypoint{{Lat: path[0].Lat, Lng: path[0].Lng, AltitudeM: path[0].AltM, Action: ActionStart}}
	}

	segmentClear := func(a, b geo.Point3) bool {
		alt := (a.AltM + b.AltM) / 2
		for i := range obstacles {
			if !obstacles[i].zone.ContainsAltitude(&alt) {
				continue
			}
			if geo.SegmentIntersectsPolygon(a.Horizontal(), b.Horizontal(), obstacles[i].buffered) {
				return false
			}
		}
		return true
	}

	keep := func(action string) bool {
		switch action {
		case ActionAvoid, ActionAscend, ActionDescend, ActionHover:
			return true
		}
		return false
	}

	out := []PathWaypoint{{
		Lat: path[0].Lat, Lng: path[0].Lng, AltitudeM: path[0].AltM, Action: ActionStart,
	}}

	anchor := 0
	for i := 1; i < len(path)-1; i++ {
		if keep(actions[i]) {
			out = append(out, PathWaypoint{
				Lat: path[i].Lat, Lng: path[i].Lng, AltitudeM: path[i].AltM, Action: actions[i],
			})
			anchor = i
			continue
		}
		// Would skipping this node route the shortcut through an obstacle?
		if !segmentClear(path[anchor], path[i+1]) {
			out = append(out, PathWaypoint{
				Lat: path[i].Lat, Lng: path[i].Lng, AltitudeM: path[i].AltM, Action: ActionAvoid,
			})
			anchor = i
		}
	}

	last := len(path) - 1
	out = append(out, PathWaypoint{
		Lat: path[last].Lat, Lng: path[last].Lng, AltitudeM: path[last].AltM, Action: ActionEnd,
	})
	return out
}

// applyTerrainClearance raises waypoints that would fly too close to the
// ground and returns the minimum clearance seen.
func (o *Optimizer) applyTerrainClearance(ctx context.Context, waypoints []PathWaypoint) float64 {
	minClearance := math.Inf(1)
	for i := range waypoints {
		ground := 0.0
		if o.terrain != nil {
			g, err := o.terrain.GroundElevation(ctx, waypoints[i].Lat, waypoints[i].Lng)
			if err == nil {
				ground = g
			}
		}
		if waypoints[i].AltitudeM < ground+o.cfg.MinTerrainClearanceM {
			waypoints[i].AltitudeM = ground + o.cfg.MinTerrainClearanceM
			waypoints[i].Reason = "terrain_adjusted"
		}
		if clearance := waypoints[i].AltitudeM - ground; clearance < minClearance {
			minClearance = clearance
		}
	}
	if math.IsInf(minClearance, 1) {
		return 0
	}
	return minClearance
}

// applyWindFactors sets a per-segment wind factor on the destination
// waypoint: tailwind below 1, headwind above, clamped to [0.7, 1.3].
func applyWindFactors(waypoints []PathWaypoint, w provider.Weather) {
	if w.WindSpeedKMH <= 0 {
		return
	}
	for i := 1; i < len(waypoints); i++ {
		from := geo.Point{Lat: waypoints[i-1].Lat, Lng: waypoints[i-1].Lng}
		to := geo.Point{Lat: waypoints[i].Lat, Lng: waypoints[i].Lng}
		bearing := geo.Bearing(from, to)
		angleDiff := (bearing - w.WindDirectionDeg) * math.Pi / 180

		factor := 1 + math.Cos(angleDiff)*w.WindSpeedKMH/100
		factor = math.Max(0.7, math.Min(1.3, factor))
		waypoints[i].WindFactor = factor
	}
}

func (o *Optimizer) buildResult(req Request, waypoints []PathWaypoint, obstacles []obstacle, method Method, groundMin float64, started time.Time) *Result {
	path := make([]geo.Point3, len(waypoints))
	for i, wp := range waypoints {
		path[i] = geo.Point3{Lat: wp.Lat, Lng: wp.Lng, AltM: wp.AltitudeM}
	}

	var total float64
	altChanges := 0
	for i := 1; i < len(path); i++ {
		total += geo.Distance3(path[i-1], path[i])
		if path[i].AltM != path[i-1].AltM {
			altChanges++
		}
	}
	direct := geo.Haversine(req.Start, req.End)

	detour := 0.0
	if direct > 0 {
		detour = (total - direct) / direct * 100
		if detour < 0 {
			detour = 0
		}
	}

	noFly, weatherHazards := 0, 0
	alt := req.AltitudeM
	for i := range obstacles {
		ob := &obstacles[i]
		if !ob.zone.ContainsAltitude(&alt) {
			continue
		}
		if !geo.SegmentIntersectsPolygon(req.Start, req.End, ob.buffered) {
			continue
		}
		if ob.zone.Type == zone.TypeWeather {
			weatherHazards++
		} else {
			noFly++
		}
	}

	avgSegment := 0.0
	if len(path) > 1 {
		avgSegment = total / float64(len(path)-1)
	}

	complexity := 0.4*float64(len(waypoints))/20 + 0.3*float64(altChanges)/5 + 0.3*detour/50
	complexity = math.Max(0, math.Min(1, complexity))

	duration := 0.0
	if req.MaxSpeedKMH > 0 {
		duration = total / (req.MaxSpeedKMH * 0.8) * 60
	}

	return &Result{
		Path:      path,
		Waypoints: waypoints,
		Metrics: Metrics{
			TotalDistanceKM:          total,
			DirectDistanceKM:         direct,
			DetourPercent:            detour,
			EstimatedDurationMinutes: duration,
			WaypointCount:            len(waypoints),
			AltitudeChanges:          altChanges,
			NoFlyZonesAvoided:        noFly,
			WeatherHazardsAvoided:    weatherHazards,
			TerrainClearanceMinM:     groundMin,
			AvgSegmentLengthKM:       avgSegment,
			ComplexityScore:          complexity,
			OptimizationMethod:       method,
			ComputationTimeMS:        float64(time.Since(started).Microseconds()) / 1000,
		},
	}
}
