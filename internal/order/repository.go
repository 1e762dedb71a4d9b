package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, customer_id, drone_id, pickup_lat, pickup_lng, delivery_lat, delivery_lng, status, priority, notes, requested_at, assigned_at, picked_up_at, delivered_at, actual_delivery_time, estimated_eta, estimated_duration_minutes, total_cost, created_at, updated_at`

const packageColumns = `id, order_id, name, package_type, weight_kg, length_cm, width_cm, height_cm, fragile, urgent, temp_controlled, created_at`

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, o *Order, pkg *Package) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Order, error)
	GetPackage(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID) (*Package, error)
	Update(ctx context.Context, ext sqlx.ExtContext, o *Order) error
	AppendHistory(ctx context.Context, ext sqlx.ExtContext, h *StatusHistory) error
	ListHistory(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID) ([]*StatusHistory, error)
	List(ctx context.Context, ext sqlx.ExtContext, f ListFilter) ([]*Order, int, error)
	GetActiveByDroneID(ctx context.Context, ext sqlx.ExtContext, droneID uuid.UUID) (*Order, error)
}

type ListFilter struct {
	CustomerID *uuid.UUID
	Status     *Status
	Page       int
	Limit      int
}

type orderRepository struct{}

func NewRepository() Repository {
	return &orderRepository{}
}

// Create inserts the order and its package together; callers wrap it in a tx
// so an order never exists without its package.
func (r *orderRepository) Create(ctx context.Context, ext sqlx.ExtContext, o *Order, pkg *Package) error {
	const orderInsert = `INSERT INTO orders (id, customer_id, drone_id, pickup_lat, pickup_lng, delivery_lat, delivery_lng, status, priority, notes, requested_at, assigned_at, picked_up_at, delivered_at, actual_delivery_time, estimated_eta, estimated_duration_minutes, total_cost, created_at, updated_at)
		VALUES (:id, :customer_id, :drone_id, :pickup_lat, :pickup_lng, :delivery_lat, :delivery_lng, :status, :priority, :notes, :requested_at, :assigned_at, :picked_up_at, :delivered_at, :actual_delivery_time, :estimated_eta, :estimated_duration_minutes, :total_cost, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, orderInsert, o); err != nil {
		return err
	}

	const pkgInsert = `INSERT INTO packages (id, order_id, name, package_type, weight_kg, length_cm, width_cm, height_cm, fragile, urgent, temp_controlled, created_at)
		VALUES (:id, :order_id, :name, :package_type, :weight_kg, :length_cm, :width_cm, :height_cm, :fragile, :urgent, :temp_controlled, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, ext, pkgInsert, pkg)
	return err
}

func (r *orderRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Order, error) {
	var o Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)
	if err := sqlx.GetContext(ctx, ext, &o, query, id); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) GetPackage(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID) (*Package, error) {
	var p Package
	query := fmt.Sprintf(`SELECT %s FROM packages WHERE order_id = $1`, packageColumns)
	if err := sqlx.GetContext(ctx, ext, &p, query, orderID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *orderRepository) Update(ctx context.Context, ext sqlx.ExtContext, o *Order) error {
	const query = `UPDATE orders SET drone_id = :drone_id, pickup_lat = :pickup_lat, pickup_lng = :pickup_lng,
		delivery_lat = :delivery_lat, delivery_lng = :delivery_lng, status = :status, priority = :priority,
		notes = :notes, assigned_at = :assigned_at, picked_up_at = :picked_up_at, delivered_at = :delivered_at,
		actual_delivery_time = :actual_delivery_time, estimated_eta = :estimated_eta,
		estimated_duration_minutes = :estimated_duration_minutes, total_cost = :total_cost,
		updated_at = :updated_at WHERE id = :id`
	_, err := sqlx.NamedExecContext(ctx, ext, query, o)
	return err
}

func (r *orderRepository) AppendHistory(ctx context.Context, ext sqlx.ExtContext, h *StatusHistory) error {
	const query = `INSERT INTO order_status_history (id, order_id, from_status, to_status, actor_id, note, created_at)
		VALUES (:id, :order_id, :from_status, :to_status, :actor_id, :note, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, ext, query, h)
	return err
}

func (r *orderRepository) ListHistory(ctx context.Context, ext sqlx.ExtContext, orderID uuid.UUID) ([]*StatusHistory, error) {
	var rows []*StatusHistory
	const query = `SELECT id, order_id, from_status, to_status, actor_id, note, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, ext, &rows, query, orderID); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *orderRepository) List(ctx context.Context, ext sqlx.ExtContext, f ListFilter) ([]*Order, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}

	where := ` WHERE 1=1`
	args := []interface{}{}
	if f.CustomerID != nil {
		args = append(args, *f.CustomerID)
		where += fmt.Sprintf(` AND customer_id = $%d`, len(args))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	var total int
	if err := sqlx.GetContext(ctx, ext, &total, `SELECT COUNT(*) FROM orders`+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY priority DESC, requested_at DESC LIMIT %d OFFSET %d`,
		orderColumns, where, f.Limit, (f.Page-1)*f.Limit)
	var orders []*Order
	if err := sqlx.SelectContext(ctx, ext, &orders, query, args...); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *orderRepository) GetActiveByDroneID(ctx context.Context, ext sqlx.ExtContext, droneID uuid.UUID) (*Order, error) {
	var o Order
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE drone_id = $1 AND status IN ('assigned', 'in_transit', 'delivering') ORDER BY updated_at DESC LIMIT 1`, orderColumns)
	if err := sqlx.GetContext(ctx, ext, &o, query, droneID); err != nil {
		return nil, err
	}
	return &o, nil
}
