package route

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const routeColumns = `id, order_id, path, total_distance_km, estimated_duration_minutes, estimated_eta, confidence, optimization_method, avoids_no_fly, avoids_weather, metrics, created_at, updated_at`

const waypointColumns = `id, route_id, sequence, lat, lng, altitude_m, action, estimated_arrival, created_at`

type Repository interface {
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Route, error)
	GetByOrderID(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID) (*Route, error)
	// ReplaceForOrder upserts the order's route and rewrites its waypoints.
	// Callers run it inside a transaction so readers never observe a route
	// with a partial waypoint set.
	ReplaceForOrder(ctx context.Context, ext sqlx.ExtContext, r *Route, waypoints []Waypoint) error
	ListWaypoints(ctx context.Context, ext sqlx.ExtContext, routeID uuid.UUID) ([]Waypoint, error)
	DeleteByOrderID(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID) error
}

type routeRepository struct{}

func NewRepository() Repository {
	return &routeRepository{}
}

func (r *routeRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Route, error) {
	var rt Route
	query := fmt.Sprintf(`SELECT %s FROM routes WHERE id = $1`, routeColumns)
	if err := sqlx.GetContext(ctx, ext, &rt, query, id); err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *routeRepository) GetByOrderID(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID) (*Route, error) {
	var rt Route
	query := fmt.Sprintf(`SELECT %s FROM routes WHERE order_id = $1`, routeColumns)
	if err := sqlx.GetContext(ctx, ext, &rt, query, orderID); err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *routeRepository) ReplaceForOrder(ctx context.Context, ext sqlx.ExtContext, rt *Route, waypoints []Waypoint) error {
	const upsert = `INSERT INTO routes (id, order_id, path, total_distance_km, estimated_duration_minutes, estimated_eta, confidence, optimization_method, avoids_no_fly, avoids_weather, metrics, created_at, updated_at)
		VALUES (:id, :order_id, :path, :total_distance_km, :estimated_duration_minutes, :estimated_eta, :confidence, :optimization_method, :avoids_no_fly, :avoids_weather, :metrics, :created_at, :updated_at)
		ON CONFLICT (order_id) DO UPDATE SET
			path = EXCLUDED.path,
			total_distance_km = EXCLUDED.total_distance_km,
			estimated_duration_minutes = EXCLUDED.estimated_duration_minutes,
			estimated_eta = EXCLUDED.estimated_eta,
			confidence = EXCLUDED.confidence,
			optimization_method = EXCLUDED.optimization_method,
			avoids_no_fly = EXCLUDED.avoids_no_fly,
			avoids_weather = EXCLUDED.avoids_weather,
			metrics = EXCLUDED.metrics,
			updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, ext, upsert, rt); err != nil {
		return err
	}

	// The upsert may have kept the pre-existing route id; resolve it so the
	// new waypoints attach to the right row.
	stored, err := r.GetByOrderID(ctx, ext, rt.OrderID)
	if err != nil {
		return err
	}
	rt.ID = stored.ID

	if _, err := ext.ExecContext(ctx, `DELETE FROM waypoints WHERE route_id = $1`, rt.ID); err != nil {
		return err
	}

	const insert = `INSERT INTO waypoints (id, route_id, sequence, lat, lng, altitude_m, action, estimated_arrival, created_at)
		VALUES (:id, :route_id, :sequence, :lat, :lng, :altitude_m, :action, :estimated_arrival, :created_at)`
	for i := range waypoints {
		waypoints[i].RouteID = rt.ID
		if _, err := sqlx.NamedExecContext(ctx, ext, insert, waypoints[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *routeRepository) ListWaypoints(ctx context.Context, ext sqlx.ExtContext, routeID uuid.UUID) ([]Waypoint, error) {
	var rows []Waypoint
	query := fmt.Sprintf(`SELECT %s FROM waypoints WHERE route_id = $1 ORDER BY sequence`, waypointColumns)
	if err := sqlx.SelectContext(ctx, ext, &rows, query, routeID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *routeRepository) DeleteByOrderID(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID) error {
	_, err := ext.ExecContext(ctx, `DELETE FROM routes WHERE order_id = $1`, orderID)
	return err
}
