package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"drone-dispatch/internal/drone"
	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/order"
	"drone-dispatch/internal/redis"
)

type fakeReadingStore struct {
	inserted []*Reading
	streams  []*StatusStream
}

func (f *fakeReadingStore) Insert(_ context.Context, _ sqlx.ExtContext, r *Reading) error {
	f.inserted = append(f.inserted, r)
	return nil
}

func (f *fakeReadingStore) ListSince(context.Context, sqlx.ExtContext, uuid.UUID, time.Time, int) ([]*Reading, error) {
	return nil, nil
}

func (f *fakeReadingStore) UpsertStream(_ context.Context, _ sqlx.ExtContext, s *StatusStream) error {
	f.streams = append(f.streams, s)
	return nil
}

func (f *fakeReadingStore) GetStream(context.Context, sqlx.ExtContext, uuid.UUID) (*StatusStream, error) {
	return nil, domainerrors.NewNotFound("status stream for drone", "none")
}

// fakeFleet hands out copies so each caller works on its own snapshot, the
// way a fresh SELECT would.
type fakeFleet struct {
	mu sync.Mutex
	d  *drone.Drone
}

func (f *fakeFleet) snapshot() *drone.Drone {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.d
	return &cp
}

func (f *fakeFleet) Register(_ context.Context, d *drone.Drone) (*drone.Drone, error) {
	return d, nil
}

func (f *fakeFleet) GetByID(context.Context, uuid.UUID) (*drone.Drone, error) {
	return f.snapshot(), nil
}

func (f *fakeFleet) GetBySerial(context.Context, string) (*drone.Drone, error) {
	return f.snapshot(), nil
}

func (f *fakeFleet) GetByIDWithTx(context.Context, sqlx.ExtContext, uuid.UUID) (*drone.Drone, error) {
	return f.snapshot(), nil
}

func (f *fakeFleet) Update(_ context.Context, d *drone.Drone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.d = &cp
	return nil
}

func (f *fakeFleet) UpdateWithTx(_ context.Context, _ sqlx.ExtContext, d *drone.Drone) error {
	return f.Update(context.Background(), d)
}

func (f *fakeFleet) ListAll(context.Context, *drone.Status, int, int) ([]*drone.Drone, int, error) {
	return nil, 0, nil
}

func (f *fakeFleet) ListAvailable(context.Context) ([]*drone.Drone, error) {
	return nil, nil
}

func (f *fakeFleet) CachedState(context.Context, uuid.UUID) (*redis.CachedDroneState, error) {
	return nil, nil
}

func (f *fakeFleet) CacheState(context.Context, *drone.Drone) {}

type fakeMissions struct{}

func (fakeMissions) Create(_ context.Context, o *order.Order, _ *order.Package) (*order.Order, error) {
	return o, nil
}

func (fakeMissions) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	return nil, domainerrors.OrderNotFound(id.String())
}

func (fakeMissions) GetPackage(_ context.Context, orderID uuid.UUID) (*order.Package, error) {
	return nil, domainerrors.OrderNotFound(orderID.String())
}

func (fakeMissions) List(context.Context, order.ListFilter) ([]*order.Order, int, error) {
	return nil, 0, nil
}

func (fakeMissions) History(context.Context, uuid.UUID) ([]*order.StatusHistory, error) {
	return nil, nil
}

func (fakeMissions) GetActiveByDroneID(_ context.Context, droneID uuid.UUID) (*order.Order, error) {
	return nil, domainerrors.OrderNotFound(droneID.String())
}

func TestRecord_StaleReadingDoesNotRollBackState(t *testing.T) {
	store := &fakeReadingStore{}
	fleet := &fakeFleet{d: drone.New("DRN-001", "alpha")}
	svc := NewService(store, nil, fleet, fakeMissions{}, nil, nil, nil)
	ctx := context.Background()
	id := fleet.d.ID

	newer := time.Now().Truncate(time.Second)
	older := newer.Add(-30 * time.Second)
	latNew, lngNew := 12.9716, 77.5946
	latOld, lngOld := 12.9000, 77.5000

	if _, err := svc.Record(ctx, Ingest{DroneID: &id, Timestamp: &newer, Lat: &latNew, Lng: &lngNew, BatteryLevel: 80}); err != nil {
		t.Fatalf("first reading: %v", err)
	}
	// A delayed packet from the past arrives after the fresher one.
	if _, err := svc.Record(ctx, Ingest{DroneID: &id, Timestamp: &older, Lat: &latOld, Lng: &lngOld, BatteryLevel: 95}); err != nil {
		t.Fatalf("late reading: %v", err)
	}

	d := fleet.d
	if d.CurrentLat == nil || *d.CurrentLat != latNew || *d.CurrentLng != lngNew {
		t.Fatalf("position rolled back to the late reading: %v,%v", d.CurrentLat, d.CurrentLng)
	}
	if d.BatteryLevel != 80 {
		t.Fatalf("battery rolled back, got %v", d.BatteryLevel)
	}
	if d.LastHeartbeat == nil || !d.LastHeartbeat.Equal(newer) {
		t.Fatalf("last heartbeat rolled back, got %v", d.LastHeartbeat)
	}

	if len(store.inserted) != 2 {
		t.Fatalf("late reading must still be stored, got %d rows", len(store.inserted))
	}
	if len(store.streams) != 1 {
		t.Fatalf("late reading must not touch the status stream, got %d upserts", len(store.streams))
	}
	if !store.streams[0].LastHeartbeat.Equal(newer) {
		t.Fatalf("stream heartbeat is %v, want %v", store.streams[0].LastHeartbeat, newer)
	}
}

func TestRecord_ConcurrentSnapshotsSeeLatestHeartbeat(t *testing.T) {
	store := &fakeReadingStore{}
	fleet := &fakeFleet{d: drone.New("DRN-002", "bravo")}
	svc := NewService(store, nil, fleet, fakeMissions{}, nil, nil, nil)
	ctx := context.Background()
	id := fleet.d.ID

	base := time.Now().Truncate(time.Second)
	lat, lng := 12.9716, 77.5946
	done := make(chan error, 2)
	for _, offset := range []time.Duration{0, 10 * time.Second} {
		ts := base.Add(offset)
		go func() {
			_, err := svc.Record(ctx, Ingest{DroneID: &id, Timestamp: &ts, Lat: &lat, Lng: &lng, BatteryLevel: 70})
			done <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	// Whichever interleaving wins, the newest timestamp must stick.
	want := base.Add(10 * time.Second)
	if fleet.d.LastHeartbeat == nil || !fleet.d.LastHeartbeat.Equal(want) {
		t.Fatalf("heartbeat is %v, want %v", fleet.d.LastHeartbeat, want)
	}
}
