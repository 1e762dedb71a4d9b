package route

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/geo"
)

type Detail struct {
	Route     *Route     `json:"route"`
	Waypoints []Waypoint `json:"waypoints"`
	Path      any        `json:"path"`
	Metrics   Metrics    `json:"metrics"`
}

type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*Detail, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*Detail, error)
}

type service struct {
	repo Repository
	db   *sqlx.DB
}

func NewService(repo Repository, db *sqlx.DB) Service {
	return &service{repo: repo, db: db}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	rt, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, domainerrors.RouteNotFound(id.String())
	}
	return s.detail(ctx, rt)
}

func (s *service) GetByOrder(ctx context.Context, orderID uuid.UUID) (*Detail, error) {
	rt, err := s.repo.GetByOrderID(ctx, s.db, orderID)
	if err != nil {
		return nil, domainerrors.RouteNotFound("order " + orderID.String())
	}
	return s.detail(ctx, rt)
}

func (s *service) detail(ctx context.Context, rt *Route) (*Detail, error) {
	waypoints, err := s.repo.ListWaypoints(ctx, s.db, rt.ID)
	if err != nil {
		return nil, domainerrors.NewTransient("failed to load waypoints", err)
	}
	// A gap in the sequence means the atomic replace was violated somewhere;
	// surface it loudly instead of serving a corrupt plan.
	for i, wp := range waypoints {
		if wp.Sequence != i+1 {
			return nil, domainerrors.WaypointSequenceCorrupt(rt.ID.String())
		}
	}

	var path any
	if len(rt.Path) > 0 {
		pts, err := geo.DecodeLineString(rt.Path)
		if err != nil {
			return nil, domainerrors.NewFatal("route path is not a valid LineString", err)
		}
		path = geo.EncodeLineString(pts)
	}

	metrics, err := rt.DecodeMetrics()
	if err != nil {
		return nil, domainerrors.NewFatal("route metrics are corrupt", err)
	}

	return &Detail{Route: rt, Waypoints: waypoints, Path: path, Metrics: metrics}, nil
}

// FromResult converts an optimizer result into the persistable route and its
// waypoints. departAt anchors the per-waypoint arrival estimates; speeds are
// the cruise fraction of the drone's max.
func FromResult(orderID uuid.UUID, res *Result, req Request, confidence float64, departAt time.Time) (*Route, []Waypoint) {
	now := time.Now()
	path, _ := json.Marshal(geo.EncodeLineString(res.Path))
	metricsJSON, _ := json.Marshal(res.Metrics)

	rt := &Route{
		ID:                       uuid.New(),
		OrderID:                  orderID,
		Path:                     path,
		TotalDistanceKM:          res.Metrics.TotalDistanceKM,
		EstimatedDurationMinutes: res.Metrics.EstimatedDurationMinutes,
		EstimatedETA:             departAt.Add(time.Duration(res.Metrics.EstimatedDurationMinutes * float64(time.Minute))),
		Confidence:               confidence,
		OptimizationMethod:       string(res.Metrics.OptimizationMethod),
		AvoidsNoFly:              req.AvoidNoFly,
		AvoidsWeather:            req.AvoidWeather,
		Metrics:                  metricsJSON,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	cruiseKMH := req.MaxSpeedKMH * 0.8
	waypoints := make([]Waypoint, len(res.Waypoints))
	cumulative := 0.0
	for i, wp := range res.Waypoints {
		if i > 0 {
			prev := res.Path[i-1]
			cumulative += geo.Distance3(prev, res.Path[i])
		}
		var arrival *time.Time
		if cruiseKMH > 0 {
			t := departAt.Add(time.Duration(cumulative / cruiseKMH * float64(time.Hour)))
			arrival = &t
		}
		waypoints[i] = Waypoint{
			ID:               uuid.New(),
			RouteID:          rt.ID,
			Sequence:         i + 1,
			Lat:              wp.Lat,
			Lng:              wp.Lng,
			AltitudeM:        wp.AltitudeM,
			Action:           wp.Action,
			EstimatedArrival: arrival,
			CreatedAt:        now,
		}
	}
	return rt, waypoints
}
