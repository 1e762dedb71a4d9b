package main

import (
	"time"

	"github.com/gin-contrib/cors"

	"drone-dispatch/internal/middleware"
)

func (a *AppContext) setupRoutes() {
	r := a.Router

	// ── Global middleware (outermost → innermost) ──
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.AllowedHosts(a.Config.Server.AllowedHosts))
	if origins := a.Config.Server.CORSAllowedOrigins; len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "Idempotency-Key"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(middleware.RateLimit(a.RateLimiter))
	r.Use(middleware.CircuitBreaker(a.Config.CircuitBreaker.FailureThreshold, a.Config.CircuitBreaker.CooldownSeconds))
	r.Use(middleware.Auth(a.JWTService))

	// ── Health (no auth) ──
	r.GET("/health", a.healthCheck)

	// ── Live feeds (token checked by the handler itself) ──
	r.GET("/ws/tracking", a.WSHandler.Serve)

	// ── Auth ──
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/register", a.AuthHandler.Register)
		authGroup.POST("/login", a.AuthHandler.Login)
		authGroup.POST("/refresh", a.AuthHandler.Refresh)
	}

	// ── Orders ──
	orders := r.Group("/api/deliveries/orders")
	orders.Use(middleware.Bulkhead(a.Config.Bulkhead.MutationPool))
	{
		orders.POST("", middleware.Idempotency(a.IdempotencyStore), a.OrderHandler.Create)
		orders.GET("", a.OrderHandler.List)
		orders.GET("/:id", a.OrderHandler.Get)
		orders.GET("/:id/history", a.OrderHandler.History)
		orders.GET("/:id/route", a.RouteHandler.GetByOrder)
		orders.POST("/:id/cancel", a.OrderHandler.Cancel)

		staff := orders.Group("")
		staff.Use(middleware.RoleGuard("admin", "manager"))
		{
			staff.POST("/:id/assign_drone", a.OrderHandler.AssignDrone)
			staff.POST("/:id/update_status", a.OrderHandler.UpdateStatus)
		}
	}

	// ── Routes ──
	r.GET("/api/routes/routes/:id", a.RouteHandler.Get)

	// ── Drones ──
	drones := r.Group("/api/drones")
	{
		drones.GET("", a.DroneHandler.List)
		drones.GET("/available", a.DroneHandler.ListAvailable)
		drones.GET("/:id", a.DroneHandler.Get)
		drones.GET("/:id/position", a.DroneHandler.Position)

		staff := drones.Group("")
		staff.Use(middleware.RoleGuard("admin", "manager"))
		staff.Use(middleware.Bulkhead(a.Config.Bulkhead.AdminPool))
		{
			staff.POST("", a.DroneHandler.Register)
			staff.PATCH("/:id", a.DroneHandler.Update)
		}
	}

	// ── Telemetry (high-volume drone reports get their own pool) ──
	tele := r.Group("/api/telemetry")
	{
		ingest := tele.Group("")
		ingest.Use(middleware.Bulkhead(a.Config.Bulkhead.TelemetryPool))
		{
			ingest.POST("/data", a.TelemetryHandler.Ingest)
		}
		tele.GET("/data", a.TelemetryHandler.Recent)
		tele.GET("/drones/:id/status", a.TelemetryHandler.Stream)
	}

	// ── Zones ──
	zones := r.Group("/api/zones")
	{
		zones.GET("", a.ZoneHandler.List)
		zones.GET("/static", a.ZoneHandler.Static)
		zones.GET("/:id", a.ZoneHandler.Get)

		staff := zones.Group("")
		staff.Use(middleware.RoleGuard("admin", "manager"))
		staff.Use(middleware.Bulkhead(a.Config.Bulkhead.AdminPool))
		{
			staff.POST("", a.ZoneHandler.Create)
			staff.PUT("/:id", a.ZoneHandler.Update)
			staff.DELETE("/:id", a.ZoneHandler.Delete)
		}
	}

	// ── Notifications ──
	notifications := r.Group("/api/notifications")
	{
		notifications.GET("", a.NotifyHandler.List)
		notifications.POST("/:id/read", a.NotifyHandler.MarkRead)
		notifications.POST("/read-all", a.NotifyHandler.MarkAllRead)
	}
}
