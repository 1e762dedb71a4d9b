package zone

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/geo"
)

// Service keeps the DB and the in-process store in step. The store (not the
// DB) answers all spatial queries; the DB is the durable source rebuilt into
// the index at startup and after every mutation.
type Service interface {
	Load(ctx context.Context) error
	Create(ctx context.Context, z *Zone) (*Zone, error)
	Update(ctx context.Context, z *Zone) (*Zone, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*Zone, error)
	ListAll(ctx context.Context) ([]*Zone, error)
	ActiveInBBox(b geo.BBox, now time.Time) []*Zone
	PointIntersectsNoFly(p geo.Point, alt *float64, now time.Time) bool
	StaticInBBox(b geo.BBox) []*Zone
}

type service struct {
	repo  Repository
	db    *sqlx.DB
	store *Store
}

func NewService(repo Repository, db *sqlx.DB, store *Store) Service {
	return &service{repo: repo, db: db, store: store}
}

// Load pulls every persisted zone plus the static catalog into the store.
func (s *service) Load(ctx context.Context) error {
	zones, err := s.repo.ListAll(ctx, s.db)
	if err != nil {
		return domainerrors.NewTransient("failed to load zones", err)
	}
	all := append(zones, StaticZones()...)
	s.store.Replace(all)
	slog.Info("zone index loaded",
		slog.Int("persisted", len(zones)),
		slog.Int("static", len(StaticZones())),
	)
	return nil
}

func validateZone(z *Zone) error {
	if z.Name == "" {
		return domainerrors.NewValidation("zone name is required")
	}
	if len(z.Boundary) < 3 {
		return domainerrors.NewValidation("zone boundary needs at least 3 vertices")
	}
	for _, v := range z.Boundary {
		if err := geo.ValidateLatLng(v.Lat, v.Lng); err != nil {
			return domainerrors.NewValidation(err.Error())
		}
	}
	if z.AltMaxM != nil && *z.AltMaxM < z.AltMinM {
		return domainerrors.NewValidation("altitude_max_m below altitude_min_m")
	}
	switch z.Severity {
	case SeverityRed, SeverityYellow:
	default:
		return domainerrors.NewValidation("severity must be red or yellow")
	}
	return nil
}

func (s *service) Create(ctx context.Context, z *Zone) (*Zone, error) {
	if err := validateZone(z); err != nil {
		return nil, err
	}
	now := time.Now()
	z.ID = uuid.New()
	z.CreatedAt = now
	z.UpdatedAt = now
	if err := s.repo.Create(ctx, s.db, z); err != nil {
		return nil, domainerrors.NewTransient("failed to create zone", err)
	}
	s.store.Upsert(z)
	return z, nil
}

func (s *service) Update(ctx context.Context, z *Zone) (*Zone, error) {
	if err := validateZone(z); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByID(ctx, s.db, z.ID)
	if err != nil {
		return nil, domainerrors.ZoneNotFound(z.ID.String())
	}
	z.CreatedAt = existing.CreatedAt
	z.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, s.db, z); err != nil {
		return nil, domainerrors.NewTransient("failed to update zone", err)
	}
	s.store.Upsert(z)
	return z, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, s.db, id); err != nil {
		return domainerrors.ZoneNotFound(id.String())
	}
	if err := s.repo.Delete(ctx, s.db, id); err != nil {
		return domainerrors.NewTransient("failed to delete zone", err)
	}
	s.store.Remove(id)
	return nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Zone, error) {
	if z, ok := s.store.Get(id); ok {
		return z, nil
	}
	z, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, domainerrors.ZoneNotFound(id.String())
	}
	return z, nil
}

func (s *service) ListAll(ctx context.Context) ([]*Zone, error) {
	zones, err := s.repo.ListAll(ctx, s.db)
	if err != nil {
		return nil, domainerrors.NewTransient("failed to list zones", err)
	}
	return zones, nil
}

func (s *service) ActiveInBBox(b geo.BBox, now time.Time) []*Zone {
	return s.store.ActiveInBBox(b, now)
}

func (s *service) PointIntersectsNoFly(p geo.Point, alt *float64, now time.Time) bool {
	return s.store.PointIntersectsNoFly(p, alt, now)
}

func (s *service) StaticInBBox(b geo.BBox) []*Zone {
	return StaticZonesInBBox(b)
}
