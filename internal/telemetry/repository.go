package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const readingColumns = `id, drone_id, timestamp, lat, lng, altitude_m, heading_deg, speed_kmh, battery_level, temperature_c, wind_speed_kmh, created_at`

const streamColumns = `drone_id, is_online, last_heartbeat, connection_quality, current_mission_id, updated_at`

type Repository interface {
	Insert(ctx context.Context, ext sqlx.ExtContext, r *Reading) error
	ListSince(ctx context.Context, ext sqlx.ExtContext, droneID uuid.UUID, since time.Time, limit int) ([]*Reading, error)
	UpsertStream(ctx context.Context, ext sqlx.ExtContext, s *StatusStream) error
	GetStream(ctx context.Context, ext sqlx.ExtContext, droneID uuid.UUID) (*StatusStream, error)
}

type telemetryRepository struct{}

func NewRepository() Repository {
	return &telemetryRepository{}
}

func (r *telemetryRepository) Insert(ctx context.Context, ext sqlx.ExtContext, reading *Reading) error {
	const query = `INSERT INTO telemetry_data (id, drone_id, timestamp, lat, lng, altitude_m, heading_deg, speed_kmh, battery_level, temperature_c, wind_speed_kmh, created_at)
		VALUES (:id, :drone_id, :timestamp, :lat, :lng, :altitude_m, :heading_deg, :speed_kmh, :battery_level, :temperature_c, :wind_speed_kmh, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, ext, query, reading)
	return err
}

func (r *telemetryRepository) ListSince(ctx context.Context, ext sqlx.ExtContext, droneID uuid.UUID, since time.Time, limit int) ([]*Reading, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM telemetry_data WHERE drone_id = $1 AND timestamp >= $2 ORDER BY timestamp DESC LIMIT %d`, readingColumns, limit)

	var rows []*Reading
	if err := sqlx.SelectContext(ctx, ext, &rows, query, droneID, since); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *telemetryRepository) UpsertStream(ctx context.Context, ext sqlx.ExtContext, s *StatusStream) error {
	const query = `INSERT INTO drone_status_stream (drone_id, is_online, last_heartbeat, connection_quality, current_mission_id, updated_at)
		VALUES (:drone_id, :is_online, :last_heartbeat, :connection_quality, :current_mission_id, :updated_at)
		ON CONFLICT (drone_id) DO UPDATE SET
			is_online = EXCLUDED.is_online,
			last_heartbeat = EXCLUDED.last_heartbeat,
			connection_quality = EXCLUDED.connection_quality,
			current_mission_id = EXCLUDED.current_mission_id,
			updated_at = EXCLUDED.updated_at`
	_, err := sqlx.NamedExecContext(ctx, ext, query, s)
	return err
}

func (r *telemetryRepository) GetStream(ctx context.Context, ext sqlx.ExtContext, droneID uuid.UUID) (*StatusStream, error) {
	query := fmt.Sprintf(`SELECT %s FROM drone_status_stream WHERE drone_id = $1`, streamColumns)

	var s StatusStream
	if err := sqlx.GetContext(ctx, ext, &s, query, droneID); err != nil {
		return nil, err
	}
	return &s, nil
}
