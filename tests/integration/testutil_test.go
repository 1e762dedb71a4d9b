package integration

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"drone-dispatch/internal/dispatch"
	"drone-dispatch/internal/drone"
	"drone-dispatch/internal/eta"
	"drone-dispatch/internal/geo"
	"drone-dispatch/internal/order"
	pgmigrate "drone-dispatch/internal/repo/postgres"
	"drone-dispatch/internal/route"
	"drone-dispatch/internal/taskq"
	"drone-dispatch/internal/user"
	"drone-dispatch/internal/zone"
)

// testApp wires the dispatch pipeline against a real Postgres. Follow-up
// tasks land on the in-memory queue so each test drives exactly the handler
// it is about.
type testApp struct {
	DB       *sqlx.DB
	Queue    *taskq.MemoryQueue
	Pipeline *dispatch.Pipeline

	Users  user.Repository
	Drones drone.Service
	Orders order.Repository
	Routes route.Repository

	orderService order.Service
}

func skipIfNoInfra(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") == "" {
		t.Skip("skipping integration test; set INTEGRATION_TEST=1 and ensure Postgres is running")
	}
}

func setupPipeline(t *testing.T) *testApp {
	t.Helper()
	skipIfNoInfra(t)

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=drone_dispatch password=drone_dispatch dbname=drone_dispatch_test sslmode=disable"
	}
	db, err := pgmigrate.Connect(dsn, pgmigrate.DefaultPoolConfig())
	if err != nil {
		t.Fatalf("postgres connect: %v", err)
	}
	if err := pgmigrate.RunMigrationsUp(db); err != nil {
		db.Close()
		t.Fatalf("migrations: %v", err)
	}
	cleanTestData(db)

	queue := taskq.NewMemoryQueue(64)

	userRepo := user.NewRepository()
	droneRepo := drone.NewRepository()
	orderRepo := order.NewRepository()
	routeRepo := route.NewRepository()
	etaRepo := eta.NewRepository()

	zoneStore := zone.NewStore()
	optimizer := route.NewOptimizer(route.DefaultConfig(), zoneStore, nil)
	predictor := eta.NewPredictor(nil, nil)

	droneService := drone.NewService(droneRepo, db, nil)
	orderService := order.NewService(orderRepo, db)

	pipeline := dispatch.NewPipeline(db, queue, orderRepo, droneService, routeRepo,
		optimizer, predictor, etaRepo, nil, nil)

	app := &testApp{
		DB:           db,
		Queue:        queue,
		Pipeline:     pipeline,
		Users:        userRepo,
		Drones:       droneService,
		Orders:       orderRepo,
		Routes:       routeRepo,
		orderService: orderService,
	}

	t.Cleanup(func() {
		cleanTestData(db)
		queue.Close()
		db.Close()
	})
	return app
}

// cleanTestData wipes rows in FK dependency order.
func cleanTestData(db *sqlx.DB) {
	for _, table := range []string{
		"waypoints", "routes", "order_status_history", "packages",
		"telemetry_data", "drone_status_stream", "eta_history",
		"notifications", "orders", "drones", "zones", "users",
	} {
		db.Exec("DELETE FROM " + table)
	}
}

// --- Seed helpers ---

func seedCustomer(t *testing.T, app *testApp) *user.User {
	t.Helper()
	u, err := user.New(uuid.NewString()+"@example.com", "Test Customer", "secret-password", user.RoleCustomer)
	if err != nil {
		t.Fatalf("build customer: %v", err)
	}
	if err := app.Users.Create(context.Background(), app.DB, u); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return u
}

func seedDrone(t *testing.T, app *testApp) *drone.Drone {
	t.Helper()
	d := drone.New("DRN-"+uuid.NewString()[:8], "test drone")
	d.MaxPayloadKG = 5
	d.MaxSpeedKMH = 80
	d.MaxAltitudeM = 400
	d.MaxRangeKM = 30
	d.BatteryCapacityMAH = 10000
	registered, err := app.Drones.Register(context.Background(), d)
	if err != nil {
		t.Fatalf("seed drone: %v", err)
	}
	return registered
}

func seedOrder(t *testing.T, app *testApp, customerID uuid.UUID) *order.Order {
	t.Helper()
	o := order.NewOrder(customerID,
		geo.NewPoint(12.9716, 77.5946),
		geo.NewPoint(12.9800, 77.6010))
	pkg := &order.Package{Name: "medical kit", WeightKG: 1.2}
	created, err := app.orderService.Create(context.Background(), o, pkg)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return created
}

// --- Task helpers ---

func assignTask(t *testing.T, orderID, droneID uuid.UUID) *taskq.Task {
	t.Helper()
	task, err := taskq.NewTask(dispatch.TaskAssignDrone, map[string]any{
		"order_id": orderID,
		"drone_id": droneID,
	})
	if err != nil {
		t.Fatalf("build assign task: %v", err)
	}
	return task
}

func optimizeTask(t *testing.T, orderID uuid.UUID) *taskq.Task {
	t.Helper()
	task, err := taskq.NewTask(dispatch.TaskOptimizeRoute, map[string]any{
		"order_id": orderID,
	})
	if err != nil {
		t.Fatalf("build optimize task: %v", err)
	}
	return task
}

func statusTask(t *testing.T, orderID uuid.UUID, to order.Status) *taskq.Task {
	t.Helper()
	task, err := taskq.NewTask(dispatch.TaskUpdateStatus, map[string]any{
		"order_id": orderID,
		"to":       to,
	})
	if err != nil {
		t.Fatalf("build status task: %v", err)
	}
	return task
}

func historyCount(t *testing.T, app *testApp, orderID uuid.UUID) int {
	t.Helper()
	rows, err := app.Orders.ListHistory(context.Background(), app.DB, orderID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	return len(rows)
}
