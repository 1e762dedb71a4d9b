package zone

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, name, zone_type, severity, boundary, altitude_min_m, altitude_max_m, valid_from, valid_until, is_active, reason, created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, z *Zone) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Zone, error)
	Update(ctx context.Context, ext sqlx.ExtContext, z *Zone) error
	Delete(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) error
	ListAll(ctx context.Context, ext sqlx.ExtContext) ([]*Zone, error)
}

type zoneRepository struct{}

func NewRepository() Repository {
	return &zoneRepository{}
}

func (r *zoneRepository) Create(ctx context.Context, ext sqlx.ExtContext, z *Zone) error {
	row, err := fromZone(z)
	if err != nil {
		return err
	}
	const query = `INSERT INTO zones (id, name, zone_type, severity, boundary, altitude_min_m, altitude_max_m, valid_from, valid_until, is_active, reason, created_at, updated_at)
		VALUES (:id, :name, :zone_type, :severity, :boundary, :altitude_min_m, :altitude_max_m, :valid_from, :valid_until, :is_active, :reason, :created_at, :updated_at)`
	_, err = sqlx.NamedExecContext(ctx, ext, query, row)
	return err
}

func (r *zoneRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Zone, error) {
	var rw row
	query := fmt.Sprintf(`SELECT %s FROM zones WHERE id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &rw, query, id); err != nil {
		return nil, err
	}
	return rw.toZone()
}

func (r *zoneRepository) Update(ctx context.Context, ext sqlx.ExtContext, z *Zone) error {
	row, err := fromZone(z)
	if err != nil {
		return err
	}
	const query = `UPDATE zones SET name = :name, zone_type = :zone_type, severity = :severity, boundary = :boundary,
		altitude_min_m = :altitude_min_m, altitude_max_m = :altitude_max_m, valid_from = :valid_from,
		valid_until = :valid_until, is_active = :is_active, reason = :reason, updated_at = :updated_at
		WHERE id = :id`
	_, err = sqlx.NamedExecContext(ctx, ext, query, row)
	return err
}

func (r *zoneRepository) Delete(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) error {
	_, err := ext.ExecContext(ctx, `DELETE FROM zones WHERE id = $1`, id)
	return err
}

func (r *zoneRepository) ListAll(ctx context.Context, ext sqlx.ExtContext) ([]*Zone, error) {
	var rows []row
	query := fmt.Sprintf(`SELECT %s FROM zones ORDER BY created_at`, columns)
	if err := sqlx.SelectContext(ctx, ext, &rows, query); err != nil {
		return nil, err
	}
	zones := make([]*Zone, 0, len(rows))
	for i := range rows {
		z, err := rows[i].toZone()
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, nil
}
