package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"drone-dispatch/config"
	"drone-dispatch/internal/auth"
	"drone-dispatch/internal/dispatch"
	"drone-dispatch/internal/drone"
	"drone-dispatch/internal/eta"
	"drone-dispatch/internal/jwt"
	"drone-dispatch/internal/notify"
	"drone-dispatch/internal/order"
	"drone-dispatch/internal/provider"
	"drone-dispatch/internal/redis"
	pgmigrate "drone-dispatch/internal/repo/postgres"
	"drone-dispatch/internal/route"
	"drone-dispatch/internal/taskq"
	"drone-dispatch/internal/telemetry"
	"drone-dispatch/internal/user"
	"drone-dispatch/internal/ws"
	"drone-dispatch/internal/zone"
)

type AppContext struct {
	DB     *sqlx.DB
	Config *config.Config
	Redis  *goredis.Client
	Router *gin.Engine

	// Infrastructure
	JWTService       *jwt.Service
	IdempotencyStore *redis.IdempotencyStore
	RateLimiter      *redis.RateLimiter
	Hub              *ws.Hub
	Queue            taskq.Queue
	Worker           *taskq.Worker
	Optimizer        *route.Optimizer
	Predictor        *eta.Predictor
	Pipeline         *dispatch.Pipeline

	ZoneService zone.Service

	AuthHandler      *auth.Handler
	DroneHandler     *drone.Handler
	OrderHandler     *order.Handler
	RouteHandler     *route.Handler
	ZoneHandler      *zone.Handler
	TelemetryHandler *telemetry.Handler
	NotifyHandler    *notify.Handler
	WSHandler        *ws.Handler
}

func wireApp(cfg *config.Config) (*AppContext, error) {
	// ── Postgres ──
	db, err := pgmigrate.Connect(cfg.Postgres.DSN(), pgmigrate.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	if err := pgmigrate.RunMigrationsUp(db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// ── Redis ──
	var rdb *goredis.Client
	if cfg.Redis.URL != "" {
		opts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis parse url: %w", err)
		}
		rdb = goredis.NewClient(opts)
	} else {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	// ── Infrastructure ──
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)
	droneCache := redis.NewDroneStateCache(rdb, cfg.Drone.StateCacheTTLSec)
	idempotencyStore := redis.NewIdempotencyStore(rdb, cfg.Drone.IdempotencyTTLSec)
	rateLimiter := redis.NewRateLimiter(rdb, cfg.RateLimiter.MaxRequests, cfg.RateLimiter.WindowSeconds)
	hub := ws.NewHub()

	var queue taskq.Queue
	if cfg.Queue.Inline {
		queue = taskq.NewMemoryQueue(1024)
	} else {
		queue = taskq.NewRedisQueue(rdb)
	}
	worker := taskq.NewWorker(queue, cfg.Queue.Concurrency, cfg.Queue.MaxRetries, cfg.Queue.RetryDelay)

	weatherClient := provider.NewWeatherClient(cfg.Provider.WeatherBaseURL)
	terrainClient := provider.NewTerrainClient(cfg.Provider.TerrainBaseURL)

	// ── Repositories ──
	userRepo := user.NewRepository()
	droneRepo := drone.NewRepository()
	orderRepo := order.NewRepository()
	routeRepo := route.NewRepository()
	zoneRepo := zone.NewRepository()
	telemetryRepo := telemetry.NewRepository()
	notifyRepo := notify.NewRepository()
	etaRepo := eta.NewRepository()

	// ── Zones and route planning ──
	zoneStore := zone.NewStore()
	zoneService := zone.NewService(zoneRepo, db, zoneStore)

	optCfg := route.Config{
		GridResolutionDeg:    cfg.Optimizer.GridResolutionDeg,
		AltitudeStepM:        cfg.Optimizer.AltitudeStepM,
		MinAltitudeM:         cfg.Optimizer.MinAltitudeM,
		MaxAltitudeM:         cfg.Optimizer.MaxAltitudeM,
		MinTerrainClearanceM: cfg.Optimizer.MinTerrainClearanceM,
		SafetyBufferM:        cfg.Optimizer.SafetyBufferM,
		SearchIterationCap:   cfg.Optimizer.SearchIterationCap,
		CacheTTL:             cfg.Optimizer.CacheTTL,
		CacheSize:            cfg.Optimizer.CacheSize,
	}
	optimizer := route.NewOptimizer(optCfg, zoneStore, terrainClient)
	// Zone mutations invalidate every cached plan.
	zoneStore.OnChange(optimizer.ClearCache)

	predictor := eta.NewPredictor(nil, nil)
	// Warm the in-memory history from persisted outcomes so the blend has
	// samples right after a restart.
	if rows, err := etaRepo.ListRecent(context.Background(), db, 0); err == nil {
		for i := len(rows) - 1; i >= 0; i-- {
			if f, ferr := rows[i].DecodeFeatures(); ferr == nil {
				predictor.History().Record(f, rows[i].PredictedMinutes, rows[i].ActualMinutes, rows[i].Success)
			}
		}
	}

	// ── Services ──
	userService := user.NewService(userRepo, db)
	authService := auth.NewAuthService(userService, jwtService)
	droneService := drone.NewService(droneRepo, db, droneCache)
	orderService := order.NewService(orderRepo, db)
	routeService := route.NewService(routeRepo, db)
	notifyService := notify.NewService(notifyRepo, db, userService, hub, queue)

	pipeline := dispatch.NewPipeline(db, queue, orderRepo, droneService, routeRepo,
		optimizer, predictor, etaRepo, weatherClient, notifyService)
	pipeline.Register(worker)

	telemetryService := telemetry.NewService(telemetryRepo, db, droneService, orderService, hub, pipeline, queue)
	telemetryService.RegisterTasks(worker)

	// ── Handlers ──
	authHandler := auth.NewHandler(authService, userService)
	droneHandler := drone.NewHandler(droneService)
	orderHandler := order.NewHandler(orderService, pipeline)
	routeHandler := route.NewHandler(routeService)
	zoneHandler := zone.NewHandler(zoneService)
	telemetryHandler := telemetry.NewHandler(telemetryService)
	notifyHandler := notify.NewHandler(notifyService)
	wsHandler := ws.NewHandler(hub, jwtService)

	return &AppContext{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Router: gin.New(),

		JWTService:       jwtService,
		IdempotencyStore: idempotencyStore,
		RateLimiter:      rateLimiter,
		Hub:              hub,
		Queue:            queue,
		Worker:           worker,
		Optimizer:        optimizer,
		Predictor:        predictor,
		Pipeline:         pipeline,

		ZoneService: zoneService,

		AuthHandler:      authHandler,
		DroneHandler:     droneHandler,
		OrderHandler:     orderHandler,
		RouteHandler:     routeHandler,
		ZoneHandler:      zoneHandler,
		TelemetryHandler: telemetryHandler,
		NotifyHandler:    notifyHandler,
		WSHandler:        wsHandler,
	}, nil
}

func (a *AppContext) Close() {
	a.DB.Close()
	a.Redis.Close()
}

func (a *AppContext) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	checks := map[string]string{}
	healthy := true

	if err := a.DB.PingContext(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": checks,
	})
}
