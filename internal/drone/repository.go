package drone

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, serial, name, max_payload_kg, max_speed_kmh, max_altitude_m, max_range_km, battery_capacity_mah, status, battery_level, current_lat, current_lng, current_altitude_m, last_heartbeat, is_active, created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, d *Drone) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Drone, error)
	GetBySerial(ctx context.Context, ext sqlx.ExtContext, serial string) (*Drone, error)
	Update(ctx context.Context, ext sqlx.ExtContext, d *Drone) error
	ListAll(ctx context.Context, ext sqlx.ExtContext, status *Status, page, limit int) ([]*Drone, int, error)
	ListAvailable(ctx context.Context, ext sqlx.ExtContext) ([]*Drone, error)
}

type droneRepository struct{}

func NewRepository() Repository {
	return &droneRepository{}
}

func (r *droneRepository) Create(ctx context.Context, ext sqlx.ExtContext, d *Drone) error {
	const query = `INSERT INTO drones (id, serial, name, max_payload_kg, max_speed_kmh, max_altitude_m, max_range_km, battery_capacity_mah, status, battery_level, current_lat, current_lng, current_altitude_m, last_heartbeat, is_active, created_at, updated_at)
		VALUES (:id, :serial, :name, :max_payload_kg, :max_speed_kmh, :max_altitude_m, :max_range_km, :battery_capacity_mah, :status, :battery_level, :current_lat, :current_lng, :current_altitude_m, :last_heartbeat, :is_active, :created_at, :updated_at)`
	_, err := sqlx.NamedExecContext(ctx, ext, query, d)
	return err
}

func (r *droneRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Drone, error) {
	var d Drone
	query := fmt.Sprintf(`SELECT %s FROM drones WHERE id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &d, query, id); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *droneRepository) GetBySerial(ctx context.Context, ext sqlx.ExtContext, serial string) (*Drone, error) {
	var d Drone
	query := fmt.Sprintf(`SELECT %s FROM drones WHERE serial = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &d, query, serial); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *droneRepository) Update(ctx context.Context, ext sqlx.ExtContext, d *Drone) error {
	const query = `UPDATE drones SET serial = :serial, name = :name, max_payload_kg = :max_payload_kg,
		max_speed_kmh = :max_speed_kmh, max_altitude_m = :max_altitude_m, max_range_km = :max_range_km,
		battery_capacity_mah = :battery_capacity_mah, status = :status, battery_level = :battery_level,
		current_lat = :current_lat, current_lng = :current_lng, current_altitude_m = :current_altitude_m,
		last_heartbeat = :last_heartbeat, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`
	_, err := sqlx.NamedExecContext(ctx, ext, query, d)
	return err
}

func (r *droneRepository) ListAll(ctx context.Context, ext sqlx.ExtContext, status *Status, page, limit int) ([]*Drone, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	where := ""
	args := []interface{}{}
	if status != nil {
		where = ` WHERE status = $1`
		args = append(args, *status)
	}

	var total int
	if err := sqlx.GetContext(ctx, ext, &total, `SELECT COUNT(*) FROM drones`+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM drones%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		columns, where, limit, (page-1)*limit)
	var drones []*Drone
	if err := sqlx.SelectContext(ctx, ext, &drones, query, args...); err != nil {
		return nil, 0, err
	}
	return drones, total, nil
}

func (r *droneRepository) ListAvailable(ctx context.Context, ext sqlx.ExtContext) ([]*Drone, error) {
	query := fmt.Sprintf(`SELECT %s FROM drones WHERE status = 'idle' AND is_active AND battery_level >= 20 ORDER BY battery_level DESC`, columns)
	var drones []*Drone
	if err := sqlx.SelectContext(ctx, ext, &drones, query); err != nil {
		return nil, err
	}
	return drones, nil
}
