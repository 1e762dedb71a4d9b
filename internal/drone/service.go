package drone

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/redis"
)

type Service interface {
	Register(ctx context.Context, d *Drone) (*Drone, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Drone, error)
	GetBySerial(ctx context.Context, serial string) (*Drone, error)
	GetByIDWithTx(ctx context.Context, tx sqlx.ExtContext, id uuid.UUID) (*Drone, error)
	UpdateWithTx(ctx context.Context, tx sqlx.ExtContext, d *Drone) error
	Update(ctx context.Context, d *Drone) error
	ListAll(ctx context.Context, status *Status, page, limit int) ([]*Drone, int, error)
	ListAvailable(ctx context.Context) ([]*Drone, error)
	CachedState(ctx context.Context, id uuid.UUID) (*redis.CachedDroneState, error)
	CacheState(ctx context.Context, d *Drone)
}

type service struct {
	repo  Repository
	db    *sqlx.DB
	cache *redis.DroneStateCache
}

func NewService(repo Repository, db *sqlx.DB, cache *redis.DroneStateCache) Service {
	return &service{repo: repo, db: db, cache: cache}
}

func (s *service) Register(ctx context.Context, d *Drone) (*Drone, error) {
	if d.Serial == "" {
		return nil, domainerrors.NewValidation("serial is required")
	}
	if d.MaxPayloadKG <= 0 || d.MaxSpeedKMH <= 0 {
		return nil, domainerrors.NewValidation("max_payload_kg and max_speed_kmh must be positive")
	}
	if existing, err := s.repo.GetBySerial(ctx, s.db, d.Serial); err == nil && existing != nil {
		return nil, domainerrors.NewConflict("serial already registered")
	}
	if err := s.repo.Create(ctx, s.db, d); err != nil {
		return nil, domainerrors.NewTransient("failed to register drone", err)
	}
	return d, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Drone, error) {
	d, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, domainerrors.DroneNotFound(id.String())
	}
	return d, nil
}

func (s *service) GetBySerial(ctx context.Context, serial string) (*Drone, error) {
	d, err := s.repo.GetBySerial(ctx, s.db, serial)
	if err != nil {
		return nil, domainerrors.DroneNotFound(serial)
	}
	return d, nil
}

func (s *service) GetByIDWithTx(ctx context.Context, tx sqlx.ExtContext, id uuid.UUID) (*Drone, error) {
	return s.repo.GetByID(ctx, tx, id)
}

func (s *service) UpdateWithTx(ctx context.Context, tx sqlx.ExtContext, d *Drone) error {
	return s.repo.Update(ctx, tx, d)
}

func (s *service) Update(ctx context.Context, d *Drone) error {
	if err := s.repo.Update(ctx, s.db, d); err != nil {
		return domainerrors.NewTransient("failed to update drone", err)
	}
	s.CacheState(ctx, d)
	return nil
}

func (s *service) ListAll(ctx context.Context, status *Status, page, limit int) ([]*Drone, int, error) {
	return s.repo.ListAll(ctx, s.db, status, page, limit)
}

func (s *service) ListAvailable(ctx context.Context) ([]*Drone, error) {
	return s.repo.ListAvailable(ctx, s.db)
}

func (s *service) CachedState(ctx context.Context, id uuid.UUID) (*redis.CachedDroneState, error) {
	if s.cache == nil {
		return nil, nil
	}
	return s.cache.Get(ctx, id.String())
}

// CacheState is best-effort; a cache miss is always served from the DB.
func (s *service) CacheState(ctx context.Context, d *Drone) {
	if s.cache == nil || d.CurrentLat == nil || d.CurrentLng == nil {
		return
	}
	state := redis.CachedDroneState{
		Lat:     *d.CurrentLat,
		Lng:     *d.CurrentLng,
		Battery: d.BatteryLevel,
	}
	if d.CurrentAltitude != nil {
		state.AltitudeM = *d.CurrentAltitude
	}
	_ = s.cache.Set(ctx, d.ID.String(), state)
}
