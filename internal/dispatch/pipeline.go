// Package dispatch runs the order pipeline: assignment, route planning,
// status transitions and ETA feedback all execute on queue workers under a
// per-order lock, so every mutation of an order is serialized no matter which
// API call or telemetry report triggered it.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"drone-dispatch/internal/drone"
	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/eta"
	"drone-dispatch/internal/notify"
	"drone-dispatch/internal/order"
	"drone-dispatch/internal/provider"
	"drone-dispatch/internal/route"
	"drone-dispatch/internal/taskq"
	"drone-dispatch/internal/user"
)

// Pipeline task types.
const (
	TaskAssignDrone   = "order.assign_drone"
	TaskUpdateStatus  = "order.update_status"
	TaskOptimizeRoute = "route.optimize"
	TaskRecordOutcome = "eta.record_outcome"
)

const (
	baseCost        = 50.0
	costPerKMPerKG  = 10.0
	minBillableKG   = 0.5
	defaultSpeedKMH = 60.0
	cruiseAltitudeM = 100.0
)

type assignPayload struct {
	OrderID uuid.UUID  `json:"order_id"`
	DroneID uuid.UUID  `json:"drone_id"`
	ActorID *uuid.UUID `json:"actor_id,omitempty"`
}

type statusPayload struct {
	OrderID uuid.UUID    `json:"order_id"`
	To      order.Status `json:"to"`
	ActorID *uuid.UUID   `json:"actor_id,omitempty"`
	Note    string       `json:"note,omitempty"`
}

type optimizePayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

type outcomePayload struct {
	OrderID          uuid.UUID    `json:"order_id"`
	Features         eta.Features `json:"features"`
	PredictedMinutes float64      `json:"predicted_minutes"`
	ActualMinutes    float64      `json:"actual_minutes"`
	Success          bool         `json:"success"`
}

type Pipeline struct {
	db         *sqlx.DB
	queue      taskq.Queue
	locks      *orderLocks
	orders     order.Repository
	drones     drone.Service
	routes     route.Repository
	optimizer  *route.Optimizer
	predictor  *eta.Predictor
	etaHistory eta.Repository
	weather    provider.WeatherProvider
	notifier   notify.Service
}

func NewPipeline(
	db *sqlx.DB,
	queue taskq.Queue,
	orders order.Repository,
	drones drone.Service,
	routes route.Repository,
	optimizer *route.Optimizer,
	predictor *eta.Predictor,
	etaHistory eta.Repository,
	weather provider.WeatherProvider,
	notifier notify.Service,
) *Pipeline {
	return &Pipeline{
		db:         db,
		queue:      queue,
		locks:      newOrderLocks(),
		orders:     orders,
		drones:     drones,
		routes:     routes,
		optimizer:  optimizer,
		predictor:  predictor,
		etaHistory: etaHistory,
		weather:    weather,
		notifier:   notifier,
	}
}

// Register binds every pipeline handler to the worker pool.
func (p *Pipeline) Register(w *taskq.Worker) {
	w.Register(TaskAssignDrone, p.HandleAssignDrone)
	w.Register(TaskUpdateStatus, p.HandleUpdateStatus)
	w.Register(TaskOptimizeRoute, p.HandleOptimizeRoute)
	w.Register(TaskRecordOutcome, p.HandleRecordOutcome)
	if p.notifier != nil {
		w.Register(notify.TaskNotify, p.handleNotify)
	}
	w.OnFailure(p.FailOrder)
}

// --- Enqueue side (order.Dispatcher, telemetry.DeliveryTracker) ---

func (p *Pipeline) EnqueueAssignDrone(ctx context.Context, orderID, droneID uuid.UUID, actorID *uuid.UUID) error {
	return p.enqueue(ctx, TaskAssignDrone, assignPayload{OrderID: orderID, DroneID: droneID, ActorID: actorID}, p.HandleAssignDrone)
}

func (p *Pipeline) EnqueueUpdateStatus(ctx context.Context, orderID uuid.UUID, to order.Status, actorID *uuid.UUID) error {
	return p.enqueue(ctx, TaskUpdateStatus, statusPayload{OrderID: orderID, To: to, ActorID: actorID}, p.HandleUpdateStatus)
}

// DroneNearDestination flips an in-transit order to delivering when the drone
// reports a position near the drop point.
func (p *Pipeline) DroneNearDestination(ctx context.Context, orderID, droneID uuid.UUID) error {
	return p.EnqueueUpdateStatus(ctx, orderID, order.StatusDelivering, nil)
}

// enqueue hands the task to the broker, falling back to inline execution when
// the broker is unreachable so the API call still completes.
func (p *Pipeline) enqueue(ctx context.Context, taskType string, payload any, inline taskq.Handler) error {
	t, err := taskq.NewTask(taskType, payload)
	if err != nil {
		return domainerrors.NewInternal("failed to encode task", err)
	}
	if p.queue != nil {
		if err := p.queue.Enqueue(ctx, t, 0); err == nil {
			return nil
		}
		slog.Warn("task queue unavailable, running inline", slog.String("type", taskType))
	}
	return inline(ctx, t)
}

// --- Handlers ---

// HandleAssignDrone binds a drone to a pending order and moves it in transit.
// Order, drone and history rows commit in one transaction; re-delivery of the
// same task is a no-op.
func (p *Pipeline) HandleAssignDrone(ctx context.Context, t *taskq.Task) error {
	var payload assignPayload
	if err := t.Decode(&payload); err != nil {
		return domainerrors.NewFatal("bad assign payload", err)
	}

	release, err := p.locks.Acquire(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	defer release()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return domainerrors.NewTransient("failed to open transaction", err)
	}
	defer tx.Rollback()

	o, err := p.orders.GetByID(ctx, tx, payload.OrderID)
	if err != nil {
		return domainerrors.OrderNotFound(payload.OrderID.String())
	}
	d, err := p.drones.GetByIDWithTx(ctx, tx, payload.DroneID)
	if err != nil {
		return domainerrors.DroneNotFound(payload.DroneID.String())
	}

	from := o.Status
	if o.DroneID == nil || *o.DroneID != payload.DroneID {
		// Availability only matters for a fresh binding; the idempotent
		// re-delivery path skips it because the drone is already on the job.
		if err := d.AvailableForDispatch(); err != nil {
			return err
		}
	}
	already, err := o.AssignDrone(payload.DroneID)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	d.BeginDelivery(o.PickupLat, o.PickupLng)

	if err := p.orders.Update(ctx, tx, o); err != nil {
		return domainerrors.NewTransient("failed to update order", err)
	}
	if err := p.drones.UpdateWithTx(ctx, tx, d); err != nil {
		return domainerrors.NewTransient("failed to update drone", err)
	}
	if err := p.orders.AppendHistory(ctx, tx, order.NewHistory(o.ID, from, o.Status, payload.ActorID, "drone "+d.Serial+" assigned")); err != nil {
		return domainerrors.NewTransient("failed to record assignment", err)
	}
	if err := tx.Commit(); err != nil {
		return domainerrors.NewTransient("failed to commit assignment", err)
	}

	if err := p.enqueue(ctx, TaskOptimizeRoute, optimizePayload{OrderID: o.ID}, p.HandleOptimizeRoute); err != nil {
		slog.Error("route optimization not scheduled", slog.String("order_id", o.ID.String()), slog.String("error", err.Error()))
	}
	p.notifyCustomer(ctx, o, notify.TypeOrderUpdate, "Drone assigned",
		fmt.Sprintf("Drone %s is on the way to pick up your order.", d.Serial))
	return nil
}

// HandleOptimizeRoute plans the path for an assigned order, prices it and
// writes the ETA back onto the order row.
func (p *Pipeline) HandleOptimizeRoute(ctx context.Context, t *taskq.Task) error {
	var payload optimizePayload
	if err := t.Decode(&payload); err != nil {
		return domainerrors.NewFatal("bad optimize payload", err)
	}

	release, err := p.locks.Acquire(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	defer release()

	o, err := p.orders.GetByID(ctx, p.db, payload.OrderID)
	if err != nil {
		return domainerrors.OrderNotFound(payload.OrderID.String())
	}
	if o.Status.IsTerminal() {
		// The order finished (or died) before the planner got to it.
		return nil
	}
	pkg, err := p.orders.GetPackage(ctx, p.db, o.ID)
	if err != nil {
		return domainerrors.NewNotFound("package for order", o.ID.String())
	}

	maxSpeed := defaultSpeedKMH
	var d *drone.Drone
	if o.DroneID != nil {
		if d, err = p.drones.GetByID(ctx, *o.DroneID); err == nil {
			maxSpeed = d.MaxSpeedKMH
		}
	}

	w := provider.DefaultWeather()
	if p.weather != nil {
		w, _ = p.weather.Current(ctx, o.PickupLat, o.PickupLng)
	}

	req := route.Request{
		Start:        o.Pickup(),
		End:          o.Delivery(),
		AltitudeM:    cruiseAltitudeM,
		Priority:     route.PriorityBalanced,
		Method:       route.MethodAStar,
		AvoidNoFly:   true,
		AvoidWeather: true,
		MaxSpeedKMH:  maxSpeed,
		Weather:      &w,
	}
	res, err := p.optimizer.Optimize(ctx, req)
	if err != nil {
		return err
	}

	now := time.Now()
	features := featuresFor(res, w, pkg, d, maxSpeed, now)
	pred := p.predictor.Predict(features)

	rt, waypoints := route.FromResult(o.ID, res, req, pred.Confidence, now)
	rt.EstimatedDurationMinutes = pred.ETAMinutes
	rt.EstimatedETA = pred.ETADatetime

	cost := baseCost + res.Metrics.TotalDistanceKM*max(pkg.WeightKG, minBillableKG)*costPerKMPerKG

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return domainerrors.NewTransient("failed to open transaction", err)
	}
	defer tx.Rollback()

	if err := p.routes.ReplaceForOrder(ctx, tx, rt, waypoints); err != nil {
		return domainerrors.NewTransient("failed to store route", err)
	}
	o.EstimatedETA = &pred.ETADatetime
	o.EstimatedDurationMinutes = &pred.ETAMinutes
	o.TotalCost = &cost
	o.UpdatedAt = now
	if err := p.orders.Update(ctx, tx, o); err != nil {
		return domainerrors.NewTransient("failed to update order", err)
	}
	if err := tx.Commit(); err != nil {
		return domainerrors.NewTransient("failed to commit route", err)
	}

	p.notifyCustomer(ctx, o, notify.TypeDeliveryEvent, "Route planned",
		fmt.Sprintf("Your delivery is %.1f km away, estimated %.0f minutes.", res.Metrics.TotalDistanceKM, pred.ETAMinutes))
	p.notifyOps(ctx, o, fmt.Sprintf("Order %s routed via %s, %.1f km, cost %.2f.",
		o.ID, res.Metrics.OptimizationMethod, res.Metrics.TotalDistanceKM, cost))
	return nil
}

// HandleUpdateStatus applies one transition under the order lock. Repeat
// delivery of the same target status is a no-op.
func (p *Pipeline) HandleUpdateStatus(ctx context.Context, t *taskq.Task) error {
	var payload statusPayload
	if err := t.Decode(&payload); err != nil {
		return domainerrors.NewFatal("bad status payload", err)
	}
	_, err := p.applyStatus(ctx, payload)
	return err
}

// UpdateStatusNow runs the transition synchronously and returns the updated
// order, so the caller sees a conflict instead of a 202.
func (p *Pipeline) UpdateStatusNow(ctx context.Context, orderID uuid.UUID, to order.Status, actorID *uuid.UUID, note string) (*order.Order, error) {
	return p.applyStatus(ctx, statusPayload{OrderID: orderID, To: to, ActorID: actorID, Note: note})
}

func (p *Pipeline) applyStatus(ctx context.Context, payload statusPayload) (*order.Order, error) {
	release, err := p.locks.Acquire(ctx, payload.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, domainerrors.NewTransient("failed to open transaction", err)
	}
	defer tx.Rollback()

	o, err := p.orders.GetByID(ctx, tx, payload.OrderID)
	if err != nil {
		return nil, domainerrors.OrderNotFound(payload.OrderID.String())
	}
	if o.Status == payload.To {
		return o, nil
	}

	from := o.Status
	droneID := o.DroneID // Transition clears it on cancel and fail
	if err := o.Transition(payload.To); err != nil {
		return nil, err
	}

	if droneID != nil {
		if err := p.settleDrone(ctx, tx, *droneID, payload.To); err != nil {
			return nil, err
		}
	}

	note := payload.Note
	if note == "" {
		note = "status changed"
	}
	if err := p.orders.Update(ctx, tx, o); err != nil {
		return nil, domainerrors.NewTransient("failed to update order", err)
	}
	if err := p.orders.AppendHistory(ctx, tx, order.NewHistory(o.ID, from, o.Status, payload.ActorID, note)); err != nil {
		return nil, domainerrors.NewTransient("failed to record transition", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerrors.NewTransient("failed to commit transition", err)
	}

	if payload.To == order.StatusDelivered {
		p.recordDeliveryOutcome(ctx, o)
	}
	p.notifyCustomer(ctx, o, notify.TypeOrderUpdate, "Order "+string(o.Status),
		fmt.Sprintf("Your order is now %s.", o.Status))
	return o, nil
}

// settleDrone releases or redirects the drone when its order reaches a state
// that ends the mission.
func (p *Pipeline) settleDrone(ctx context.Context, tx *sqlx.Tx, droneID uuid.UUID, to order.Status) error {
	switch to {
	case order.StatusDelivered:
	case order.StatusCancelled, order.StatusFailed:
	default:
		return nil
	}
	d, err := p.drones.GetByIDWithTx(ctx, tx, droneID)
	if err != nil {
		// The order outlives a deregistered drone.
		return nil
	}
	if to == order.StatusDelivered {
		d.FinishDelivery()
	} else {
		d.GoIdle()
	}
	if err := p.drones.UpdateWithTx(ctx, tx, d); err != nil {
		return domainerrors.NewTransient("failed to release drone", err)
	}
	return nil
}

// recordDeliveryOutcome feeds the completed delivery back to the predictor.
func (p *Pipeline) recordDeliveryOutcome(ctx context.Context, o *order.Order) {
	if o.EstimatedDurationMinutes == nil || o.PickedUpAt == nil || o.DeliveredAt == nil {
		return
	}
	actual := o.DeliveredAt.Sub(*o.PickedUpAt).Minutes()
	if actual <= 0 {
		return
	}

	features := eta.Features{StartTime: *o.PickedUpAt}
	if rt, err := p.routes.GetByOrderID(ctx, p.db, o.ID); err == nil {
		features.DistanceKM = rt.TotalDistanceKM
		features.AltitudeAvgM = cruiseAltitudeM
	}
	payload := outcomePayload{
		OrderID:          o.ID,
		Features:         features,
		PredictedMinutes: *o.EstimatedDurationMinutes,
		ActualMinutes:    actual,
		Success:          true,
	}
	if err := p.enqueue(ctx, TaskRecordOutcome, payload, p.HandleRecordOutcome); err != nil {
		slog.Warn("delivery outcome not recorded", slog.String("order_id", o.ID.String()), slog.String("error", err.Error()))
	}
}

func (p *Pipeline) HandleRecordOutcome(ctx context.Context, t *taskq.Task) error {
	var payload outcomePayload
	if err := t.Decode(&payload); err != nil {
		return domainerrors.NewFatal("bad outcome payload", err)
	}
	p.predictor.RecordOutcome(payload.Features, payload.PredictedMinutes, payload.ActualMinutes, payload.Success)

	// The in-memory history already holds the sample, so a failed write is
	// logged rather than retried to keep the handler idempotent.
	if p.etaHistory != nil && p.db != nil {
		orderID := payload.OrderID
		row := eta.NewOutcome(&orderID, payload.Features, payload.PredictedMinutes, payload.ActualMinutes, payload.Success, eta.ModelRuleBased)
		if err := p.etaHistory.Insert(ctx, p.db, row); err != nil {
			slog.Warn("eta outcome not persisted", slog.String("order_id", orderID.String()), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (p *Pipeline) handleNotify(ctx context.Context, t *taskq.Task) error {
	var n notify.Notification
	if err := t.Decode(&n); err != nil {
		return domainerrors.NewFatal("bad notification payload", err)
	}
	return p.notifier.Deliver(ctx, &n)
}

// FailOrder is the pool's failure hook: an order task that exhausted its
// retries marks the order failed so it never sits in limbo. Only exhausted
// retriable errors qualify; a conflict or validation error means the caller's
// request was wrong, not the order.
func (p *Pipeline) FailOrder(ctx context.Context, t *taskq.Task, taskErr error) {
	if !domainerrors.IsRetriable(taskErr) {
		return
	}

	var orderID uuid.UUID
	switch t.Type {
	case TaskAssignDrone:
		var payload assignPayload
		if t.Decode(&payload) != nil {
			return
		}
		orderID = payload.OrderID
	case TaskUpdateStatus:
		var payload statusPayload
		if t.Decode(&payload) != nil {
			return
		}
		if payload.To == order.StatusCancelled || payload.To == order.StatusFailed {
			return
		}
		orderID = payload.OrderID
	case TaskOptimizeRoute:
		var payload optimizePayload
		if t.Decode(&payload) != nil {
			return
		}
		orderID = payload.OrderID
	default:
		return
	}

	slog.Error("pipeline task failed permanently, failing order",
		slog.String("type", t.Type),
		slog.String("order_id", orderID.String()),
		slog.String("error", taskErr.Error()),
	)
	ft, err := taskq.NewTask(TaskUpdateStatus, statusPayload{
		OrderID: orderID,
		To:      order.StatusFailed,
		Note:    "pipeline failure: " + taskErr.Error(),
	})
	if err != nil {
		return
	}
	if err := p.HandleUpdateStatus(ctx, ft); err != nil {
		slog.Error("failed to fail order", slog.String("order_id", orderID.String()), slog.String("error", err.Error()))
	}
}

// --- Helpers ---

func featuresFor(res *route.Result, w provider.Weather, pkg *order.Package, d *drone.Drone, maxSpeed float64, now time.Time) eta.Features {
	f := eta.Features{
		DistanceKM:        res.Metrics.TotalDistanceKM,
		AltitudeAvgM:      cruiseAltitudeM,
		RouteComplexity:   res.Metrics.ComplexityScore,
		TemperatureC:      w.TemperatureC,
		WindSpeedKMH:      w.WindSpeedKMH,
		WindDirectionDeg:  w.WindDirectionDeg,
		Precipitation:     w.Precipitation,
		VisibilityKM:      w.VisibilityKM,
		AirPressureHPA:    w.AirPressureHPA,
		PayloadWeightKG:   pkg.WeightKG,
		BatteryStart:      100,
		TimeOfDay:         now.Hour(),
		DayOfWeek:         int(now.Weekday()),
		DroneMaxSpeedKMH:  maxSpeed,
		StartTime:         now,
	}
	if d != nil {
		f.BatteryStart = d.BatteryLevel
		f.DroneAgeDays = d.AgeDays()
	}
	return f
}

func (p *Pipeline) notifyCustomer(ctx context.Context, o *order.Order, t notify.Type, title, message string) {
	if p.notifier == nil {
		return
	}
	n := notify.New(o.CustomerID, t, title, message).WithRelated("order", o.ID)
	if err := p.notifier.Notify(ctx, n); err != nil {
		slog.Warn("customer notification failed", slog.String("order_id", o.ID.String()), slog.String("error", err.Error()))
	}
}

func (p *Pipeline) notifyOps(ctx context.Context, o *order.Order, message string) {
	if p.notifier == nil {
		return
	}
	err := p.notifier.NotifyRoles(ctx, []user.Role{user.RoleAdmin, user.RoleManager}, notify.TypeSystem, "Delivery update", message)
	if err != nil {
		slog.Warn("ops notification failed", slog.String("order_id", o.ID.String()), slog.String("error", err.Error()))
	}
}
