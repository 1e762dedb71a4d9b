package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/eta"
	"drone-dispatch/internal/order"
	"drone-dispatch/internal/provider"
	"drone-dispatch/internal/route"
	"drone-dispatch/internal/taskq"
)

func queuedPipeline(t *testing.T) (*Pipeline, *taskq.MemoryQueue) {
	t.Helper()
	q := taskq.NewMemoryQueue(16)
	t.Cleanup(q.Close)
	p := NewPipeline(nil, q, nil, nil, nil, nil, eta.NewPredictor(nil, nil), nil, nil, nil)
	return p, q
}

func TestEnqueueAssignDrone_PutsTaskOnQueue(t *testing.T) {
	p, q := queuedPipeline(t)
	orderID, droneID := uuid.New(), uuid.New()
	actor := uuid.New()

	if err := p.EnqueueAssignDrone(context.Background(), orderID, droneID, &actor); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	task, err := q.Dequeue(context.Background(), time.Second)
	if err != nil || task == nil {
		t.Fatalf("expected a queued task, got %v / %v", task, err)
	}
	if task.Type != TaskAssignDrone {
		t.Fatalf("wrong task type %s", task.Type)
	}
	var payload assignPayload
	if err := task.Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.OrderID != orderID || payload.DroneID != droneID {
		t.Fatal("payload does not carry the order and drone ids")
	}
	if payload.ActorID == nil || *payload.ActorID != actor {
		t.Fatal("payload must carry the acting user")
	}
}

func TestDroneNearDestination_EnqueuesDeliveringTransition(t *testing.T) {
	p, q := queuedPipeline(t)
	orderID := uuid.New()

	if err := p.DroneNearDestination(context.Background(), orderID, uuid.New()); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	task, err := q.Dequeue(context.Background(), time.Second)
	if err != nil || task == nil {
		t.Fatalf("expected a queued task, got %v / %v", task, err)
	}
	if task.Type != TaskUpdateStatus {
		t.Fatalf("wrong task type %s", task.Type)
	}
	var payload statusPayload
	if err := task.Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.To != order.StatusDelivering {
		t.Fatalf("expected a delivering transition, got %s", payload.To)
	}
	if payload.ActorID != nil {
		t.Fatal("telemetry-driven transitions are system transitions")
	}
}

func TestFailOrder_IgnoresNonRetriableErrors(t *testing.T) {
	p, _ := queuedPipeline(t)

	task, err := taskq.NewTask(TaskAssignDrone, assignPayload{OrderID: uuid.New(), DroneID: uuid.New()})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	// The pipeline has no database, so reaching the failed transition would
	// panic. A conflict or illegal transition means the request was wrong,
	// not the order, and the hook must leave the order alone.
	p.FailOrder(context.Background(), task, domainerrors.NewConflict("order already has a drone"))
	p.FailOrder(context.Background(), task, domainerrors.OrderInvalidTransition("delivered", "pending"))
	p.FailOrder(context.Background(), task, domainerrors.NewValidation("bad request"))
}

func TestFailOrder_SkipsCancelAndFailTargets(t *testing.T) {
	p, _ := queuedPipeline(t)

	for _, to := range []order.Status{order.StatusCancelled, order.StatusFailed} {
		task, err := taskq.NewTask(TaskUpdateStatus, statusPayload{OrderID: uuid.New(), To: to})
		if err != nil {
			t.Fatalf("build task: %v", err)
		}
		// Failing a cancellation must not restart the transition loop.
		p.FailOrder(context.Background(), task, domainerrors.NewTransient("db down", nil))
	}
}

func TestFeaturesFor_WithoutDroneDefaults(t *testing.T) {
	res := &route.Result{}
	res.Metrics.TotalDistanceKM = 5.2
	res.Metrics.ComplexityScore = 0.4
	w := provider.DefaultWeather()
	pkg := &order.Package{WeightKG: 2.5}

	now := time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC)
	f := featuresFor(res, w, pkg, nil, 60, now)

	if f.DistanceKM != 5.2 || f.RouteComplexity != 0.4 {
		t.Fatal("route metrics must flow into the feature vector")
	}
	if f.PayloadWeightKG != 2.5 || f.DroneMaxSpeedKMH != 60 {
		t.Fatal("package and speed must flow into the feature vector")
	}
	if f.BatteryStart != 100 {
		t.Fatalf("unknown drone defaults to a full battery, got %v", f.BatteryStart)
	}
	if f.TimeOfDay != 14 || f.DayOfWeek != int(time.Wednesday) {
		t.Fatalf("time features wrong: hour=%d dow=%d", f.TimeOfDay, f.DayOfWeek)
	}
}
