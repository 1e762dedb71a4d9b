package order

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/geo"
)

type Service interface {
	Create(ctx context.Context, o *Order, pkg *Package) (*Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetPackage(ctx context.Context, orderID uuid.UUID) (*Package, error)
	List(ctx context.Context, f ListFilter) ([]*Order, int, error)
	History(ctx context.Context, orderID uuid.UUID) ([]*StatusHistory, error)
	GetActiveByDroneID(ctx context.Context, droneID uuid.UUID) (*Order, error)
}

type service struct {
	repo Repository
	db   *sqlx.DB
}

func NewService(repo Repository, db *sqlx.DB) Service {
	return &service{repo: repo, db: db}
}

func validateOrder(o *Order, pkg *Package) error {
	if err := geo.ValidateLatLng(o.PickupLat, o.PickupLng); err != nil {
		return domainerrors.NewValidation("pickup: " + err.Error())
	}
	if err := geo.ValidateLatLng(o.DeliveryLat, o.DeliveryLng); err != nil {
		return domainerrors.NewValidation("delivery: " + err.Error())
	}
	if o.PickupLat == o.DeliveryLat && o.PickupLng == o.DeliveryLng {
		return domainerrors.NewValidation("pickup and delivery must differ")
	}
	if pkg == nil {
		return domainerrors.NewValidation("package is required")
	}
	if pkg.WeightKG <= 0 {
		return domainerrors.NewValidation("package weight must be positive")
	}
	return nil
}

// Create persists the order and its package in one transaction.
func (s *service) Create(ctx context.Context, o *Order, pkg *Package) (*Order, error) {
	if err := validateOrder(o, pkg); err != nil {
		return nil, err
	}
	pkg.ID = uuid.New()
	pkg.OrderID = o.ID
	pkg.CreatedAt = o.CreatedAt

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, domainerrors.NewTransient("failed to open transaction", err)
	}
	defer tx.Rollback()

	if err := s.repo.Create(ctx, tx, o, pkg); err != nil {
		return nil, domainerrors.NewTransient("failed to create order", err)
	}
	if err := s.repo.AppendHistory(ctx, tx, NewHistory(o.ID, "", StatusPending, nil, "order created")); err != nil {
		return nil, domainerrors.NewTransient("failed to record order creation", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, domainerrors.NewTransient("failed to commit order", err)
	}
	return o, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, domainerrors.OrderNotFound(id.String())
	}
	return o, nil
}

func (s *service) GetPackage(ctx context.Context, orderID uuid.UUID) (*Package, error) {
	p, err := s.repo.GetPackage(ctx, s.db, orderID)
	if err != nil {
		return nil, domainerrors.NewNotFound("package for order", orderID.String())
	}
	return p, nil
}

func (s *service) List(ctx context.Context, f ListFilter) ([]*Order, int, error) {
	orders, total, err := s.repo.List(ctx, s.db, f)
	if err != nil {
		return nil, 0, domainerrors.NewTransient("failed to list orders", err)
	}
	return orders, total, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]*StatusHistory, error) {
	rows, err := s.repo.ListHistory(ctx, s.db, orderID)
	if err != nil {
		return nil, domainerrors.NewTransient("failed to load order history", err)
	}
	return rows, nil
}

func (s *service) GetActiveByDroneID(ctx context.Context, droneID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetActiveByDroneID(ctx, s.db, droneID)
	if err != nil {
		return nil, domainerrors.NewNotFound("active order for drone", droneID.String())
	}
	return o, nil
}
