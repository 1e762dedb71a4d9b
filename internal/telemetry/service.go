package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"drone-dispatch/internal/drone"
	domainerrors "drone-dispatch/internal/errors"
	"drone-dispatch/internal/geo"
	"drone-dispatch/internal/order"
	"drone-dispatch/internal/taskq"
	"drone-dispatch/internal/ws"
)

// Within this distance of the delivery point an in-transit order flips to
// delivering.
const deliveringRadiusKM = 1.0

// DeliveryTracker reacts to a drone closing in on its drop point. Declared
// here so this package does not import the dispatch package.
type DeliveryTracker interface {
	DroneNearDestination(ctx context.Context, orderID, droneID uuid.UUID) error
}

// Ingest is one telemetry report. Exactly one of DroneID or Serial must be
// set.
type Ingest struct {
	DroneID *uuid.UUID `json:"drone_id,omitempty"`
	Serial  string     `json:"serial,omitempty"`

	Timestamp    *time.Time `json:"timestamp,omitempty"`
	Lat          *float64   `json:"lat,omitempty"`
	Lng          *float64   `json:"lng,omitempty"`
	AltitudeM    *float64   `json:"altitude_m,omitempty"`
	HeadingDeg   *float64   `json:"heading_deg,omitempty"`
	SpeedKMH     *float64   `json:"speed_kmh,omitempty"`
	IsInFlight   *bool      `json:"is_in_flight,omitempty"`
	BatteryLevel float64    `json:"battery_level"`
	TemperatureC *float64   `json:"temperature_c,omitempty"`
	WindSpeedKMH *float64   `json:"wind_speed_kmh,omitempty"`
}

// TaskIngest is the queue task type for asynchronous telemetry processing.
const TaskIngest = "telemetry.ingest"

type Service interface {
	// Submit hands the report to the queue, falling back to inline
	// processing when the broker is down.
	Submit(ctx context.Context, in Ingest) error
	Record(ctx context.Context, in Ingest) (*Reading, error)
	RecentSince(ctx context.Context, droneID uuid.UUID, since time.Time, limit int) ([]*Reading, error)
	Stream(ctx context.Context, droneID uuid.UUID) (*StatusStream, error)
	RegisterTasks(w *taskq.Worker)
}

type service struct {
	repo    Repository
	db      *sqlx.DB
	drones  drone.Service
	orders  order.Service
	hub     *ws.Hub
	tracker DeliveryTracker
	queue   taskq.Queue

	// Serializes state updates per drone; readings for different drones do
	// not contend.
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewService(repo Repository, db *sqlx.DB, drones drone.Service, orders order.Service, hub *ws.Hub, tracker DeliveryTracker, queue taskq.Queue) Service {
	return &service{
		repo:    repo,
		db:      db,
		drones:  drones,
		orders:  orders,
		hub:     hub,
		tracker: tracker,
		queue:   queue,
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *service) RegisterTasks(w *taskq.Worker) {
	w.Register(TaskIngest, func(ctx context.Context, t *taskq.Task) error {
		var in Ingest
		if err := t.Decode(&in); err != nil {
			return domainerrors.NewFatal("bad telemetry payload", err)
		}
		_, err := s.Record(ctx, in)
		return err
	})
}

func (s *service) Submit(ctx context.Context, in Ingest) error {
	// Reject garbage before it ever reaches the queue.
	if _, err := s.resolve(ctx, in); err != nil {
		return err
	}
	if err := validate(in); err != nil {
		return err
	}
	if in.Timestamp == nil {
		now := time.Now()
		in.Timestamp = &now
	}

	if s.queue != nil {
		t, err := taskq.NewTask(TaskIngest, in)
		if err == nil {
			if err := s.queue.Enqueue(ctx, t, 0); err == nil {
				return nil
			}
			slog.Warn("telemetry queue unavailable, processing inline")
		}
	}
	_, err := s.Record(ctx, in)
	return err
}

func (s *service) droneLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *service) Record(ctx context.Context, in Ingest) (*Reading, error) {
	d, err := s.resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}

	at := time.Now()
	if in.Timestamp != nil {
		at = *in.Timestamp
	}
	reading := &Reading{
		ID:           uuid.New(),
		DroneID:      d.ID,
		Timestamp:    at,
		Lat:          in.Lat,
		Lng:          in.Lng,
		AltitudeM:    in.AltitudeM,
		HeadingDeg:   in.HeadingDeg,
		SpeedKMH:     in.SpeedKMH,
		BatteryLevel: in.BatteryLevel,
		TemperatureC: in.TemperatureC,
		WindSpeedKMH: in.WindSpeedKMH,
		CreatedAt:    time.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, reading); err != nil {
		return nil, domainerrors.NewTransient("failed to store telemetry", err)
	}

	lock := s.droneLock(d.ID)
	lock.Lock()
	applied, d, err := s.applyReading(ctx, d, reading, in.IsInFlight)
	lock.Unlock()
	if err != nil {
		return nil, err
	}
	if !applied {
		// Stale reading: the row is kept, state and subscribers are not.
		return reading, nil
	}

	s.broadcast(d, reading)
	s.checkNearDestination(ctx, d, reading)
	return reading, nil
}

// applyReading folds the reading into the drone row and the status stream.
// The drone snapshot predates the lock, so it is reloaded here; a reading
// older than the last applied heartbeat keeps its row but must not roll the
// drone state back. Reports whether the state was applied.
func (s *service) applyReading(ctx context.Context, d *drone.Drone, r *Reading, inFlight *bool) (bool, *drone.Drone, error) {
	if cur, err := s.drones.GetByID(ctx, d.ID); err == nil {
		d = cur
	}
	if d.LastHeartbeat != nil && r.Timestamp.Before(*d.LastHeartbeat) {
		return false, d, nil
	}

	gap := nominalGap
	if d.LastHeartbeat != nil {
		gap = r.Timestamp.Sub(*d.LastHeartbeat)
	}

	if r.Lat != nil && r.Lng != nil {
		d.UpdatePosition(*r.Lat, *r.Lng, r.AltitudeM, r.Timestamp)
	} else {
		d.LastHeartbeat = &r.Timestamp
	}
	if err := d.SetBattery(r.BatteryLevel); err != nil {
		return false, d, err
	}
	// Dispatch owns every other status transition.
	if inFlight != nil && *inFlight && (d.Status == drone.StatusIdle || d.Status == drone.StatusAssigned) {
		d.Status = drone.StatusDelivering
	}
	if err := s.drones.Update(ctx, d); err != nil {
		return false, d, err
	}

	stream := &StatusStream{
		DroneID:           d.ID,
		IsOnline:          true,
		LastHeartbeat:     r.Timestamp,
		ConnectionQuality: connectionQuality(gap),
		UpdatedAt:         time.Now(),
	}
	if active, err := s.orders.GetActiveByDroneID(ctx, d.ID); err == nil {
		stream.CurrentMissionID = &active.ID
	}
	if err := s.repo.UpsertStream(ctx, s.db, stream); err != nil {
		return false, d, domainerrors.NewTransient("failed to update status stream", err)
	}
	return true, d, nil
}

func (s *service) broadcast(d *drone.Drone, r *Reading) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(ws.GroupDroneUpdates, ws.Message{
		Type: "telemetry",
		Payload: map[string]any{
			"drone_id": d.ID,
			"status":   d.Status,
			"battery":  r.BatteryLevel,
			"lat":      r.Lat,
			"lng":      r.Lng,
		},
		Timestamp: time.Now(),
	})
	s.hub.Broadcast(ws.DroneGroup(d.ID.String()), ws.Message{
		Type:      "telemetry",
		Payload:   r,
		Timestamp: time.Now(),
	})
}

// checkNearDestination flips an in-transit order to delivering once the drone
// reports a position inside the drop radius. Best-effort: a failed flip is
// retried on the next reading.
func (s *service) checkNearDestination(ctx context.Context, d *drone.Drone, r *Reading) {
	if s.tracker == nil || r.Lat == nil || r.Lng == nil {
		return
	}
	active, err := s.orders.GetActiveByDroneID(ctx, d.ID)
	if err != nil || active.Status != order.StatusInTransit {
		return
	}
	dist := geo.Haversine(geo.NewPoint(*r.Lat, *r.Lng), active.Delivery())
	if dist > deliveringRadiusKM {
		return
	}
	if err := s.tracker.DroneNearDestination(ctx, active.ID, d.ID); err != nil {
		slog.WarnContext(ctx, "near-destination transition failed",
			slog.String("order_id", active.ID.String()),
			slog.String("drone_id", d.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *service) resolve(ctx context.Context, in Ingest) (*drone.Drone, error) {
	switch {
	case in.DroneID != nil:
		return s.drones.GetByID(ctx, *in.DroneID)
	case in.Serial != "":
		return s.drones.GetBySerial(ctx, in.Serial)
	}
	return nil, domainerrors.NewValidation("drone_id or serial is required")
}

func validate(in Ingest) error {
	if (in.Lat == nil) != (in.Lng == nil) {
		return domainerrors.NewValidation("lat and lng must be reported together")
	}
	if in.Lat != nil {
		if err := geo.ValidateLatLng(*in.Lat, *in.Lng); err != nil {
			return domainerrors.NewValidation(err.Error())
		}
	}
	if in.BatteryLevel < 0 || in.BatteryLevel > 100 {
		return domainerrors.NewValidation("battery_level must be in [0,100]")
	}
	return nil
}

func (s *service) RecentSince(ctx context.Context, droneID uuid.UUID, since time.Time, limit int) ([]*Reading, error) {
	rows, err := s.repo.ListSince(ctx, s.db, droneID, since, limit)
	if err != nil {
		return nil, domainerrors.NewTransient("failed to list telemetry", err)
	}
	return rows, nil
}

func (s *service) Stream(ctx context.Context, droneID uuid.UUID) (*StatusStream, error) {
	st, err := s.repo.GetStream(ctx, s.db, droneID)
	if err != nil {
		return nil, domainerrors.NewNotFound("status stream for drone", droneID.String())
	}
	return st, nil
}
