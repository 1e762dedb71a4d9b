package zone

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	h3 "github.com/uber/h3-go/v4"

	"drone-dispatch/internal/geo"
)

// indexResolution 7 gives ~1.2 km hexagon edges, a good match for city-scale
// zones and the optimizer's search boxes.
const indexResolution = 7

// Store is the in-process queryable index of restriction zones. Reads vastly
// outnumber writes; an RWMutex guards the cell index. Mutations fire the
// registered change hooks (the route cache subscribes to invalidate itself).
type Store struct {
	mu    sync.RWMutex
	zones map[uuid.UUID]*Zone
	cells map[h3.Cell][]uuid.UUID

	hookMu sync.Mutex
	hooks  []func()
}

func NewStore() *Store {
	return &Store{
		zones: make(map[uuid.UUID]*Zone),
		cells: make(map[h3.Cell][]uuid.UUID),
	}
}

// OnChange registers fn to run after every mutation of the store.
func (s *Store) OnChange(fn func()) {
	s.hookMu.Lock()
	s.hooks = append(s.hooks, fn)
	s.hookMu.Unlock()
}

func (s *Store) fireHooks() {
	s.hookMu.Lock()
	hooks := make([]func(), len(s.hooks))
	copy(hooks, s.hooks)
	s.hookMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// coverCells returns the h3 cells covering the polygon: the interior fill
// from PolygonToCells, plus every vertex cell and the centroid cell, all
// padded by one ring. Padding makes small polygons visible from adjacent
// query cells; the fill covers the interior of large ones.
func coverCells(poly geo.Polygon) []h3.Cell {
	seen := make(map[h3.Cell]struct{})

	loop := make(h3.GeoLoop, len(poly))
	for i, p := range poly {
		loop[i] = h3.LatLng{Lat: p.Lat, Lng: p.Lng}
	}
	if fill, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: loop}, indexResolution); err == nil {
		for _, c := range fill {
			seen[c] = struct{}{}
		}
	}

	points := append(geo.Polygon{geo.Centroid(poly)}, poly...)
	for _, p := range points {
		cell, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat, Lng: p.Lng}, indexResolution)
		if err != nil {
			slog.Warn("h3 cell lookup failed", slog.Float64("lat", p.Lat), slog.Float64("lng", p.Lng), slog.String("error", err.Error()))
			continue
		}
		ring, err := cell.GridDisk(1)
		if err != nil {
			seen[cell] = struct{}{}
			continue
		}
		for _, c := range ring {
			seen[c] = struct{}{}
		}
	}
	cells := make([]h3.Cell, 0, len(seen))
	for c := range seen {
		cells = append(cells, c)
	}
	return cells
}

func bboxCells(b geo.BBox) []h3.Cell {
	// Sample the box on a ~0.01 degree grid; at resolution 7 this is dense
	// enough that no hexagon inside the box is skipped once padded by one ring.
	const step = 0.01
	seen := make(map[h3.Cell]struct{})
	for lat := b.MinLat; ; lat += step {
		if lat > b.MaxLat {
			lat = b.MaxLat
		}
		for lng := b.MinLng; ; lng += step {
			if lng > b.MaxLng {
				lng = b.MaxLng
			}
			cell, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lng}, indexResolution)
			if err == nil {
				seen[cell] = struct{}{}
			}
			if lng == b.MaxLng {
				break
			}
		}
		if lat == b.MaxLat {
			break
		}
	}
	cells := make([]h3.Cell, 0, len(seen))
	for c := range seen {
		cells = append(cells, c)
	}
	return cells
}

func (s *Store) indexLocked(z *Zone) {
	for _, c := range coverCells(z.Boundary) {
		s.cells[c] = append(s.cells[c], z.ID)
	}
}

func (s *Store) unindexLocked(id uuid.UUID) {
	for c, ids := range s.cells {
		kept := ids[:0]
		for _, zid := range ids {
			if zid != id {
				kept = append(kept, zid)
			}
		}
		if len(kept) == 0 {
			delete(s.cells, c)
		} else {
			s.cells[c] = kept
		}
	}
}

// Replace swaps the entire zone set, rebuilding the index.
func (s *Store) Replace(zones []*Zone) {
	s.mu.Lock()
	s.zones = make(map[uuid.UUID]*Zone, len(zones))
	s.cells = make(map[h3.Cell][]uuid.UUID)
	for _, z := range zones {
		s.zones[z.ID] = z
		s.indexLocked(z)
	}
	s.mu.Unlock()
	s.fireHooks()
}

func (s *Store) Upsert(z *Zone) {
	s.mu.Lock()
	if _, ok := s.zones[z.ID]; ok {
		s.unindexLocked(z.ID)
	}
	s.zones[z.ID] = z
	s.indexLocked(z)
	s.mu.Unlock()
	s.fireHooks()
}

func (s *Store) Remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.zones, id)
	s.unindexLocked(id)
	s.mu.Unlock()
	s.fireHooks()
}

func (s *Store) Get(id uuid.UUID) (*Zone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zones[id]
	return z, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.zones)
}

// ActiveInBBox returns the zones effective at now whose boundary intersects
// the box. Candidates come from the cell index; exact geometry confirms.
func (s *Store) ActiveInBBox(b geo.BBox, now time.Time) []*Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make(map[uuid.UUID]struct{})
	for _, c := range bboxCells(b) {
		for _, id := range s.cells[c] {
			candidates[id] = struct{}{}
		}
	}

	var out []*Zone
	for id := range candidates {
		z := s.zones[id]
		if z == nil || !z.EffectiveAt(now) {
			continue
		}
		if geo.PolygonIntersectsBBox(z.Boundary, b) {
			out = append(out, z)
		}
	}
	return out
}

// PointIntersectsNoFly reports whether p at the given altitude is inside any
// zone effective at now. A nil altitude skips the band check.
func (s *Store) PointIntersectsNoFly(p geo.Point, alt *float64, now time.Time) bool {
	box := geo.BBox{MinLat: p.Lat, MaxLat: p.Lat, MinLng: p.Lng, MaxLng: p.Lng}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make(map[uuid.UUID]struct{})
	for _, c := range bboxCells(box) {
		for _, id := range s.cells[c] {
			candidates[id] = struct{}{}
		}
	}
	for id := range candidates {
		z := s.zones[id]
		if z == nil || !z.EffectiveAt(now) || !z.ContainsAltitude(alt) {
			continue
		}
		if geo.PointInPolygon(p, z.Boundary) {
			return true
		}
	}
	return false
}
