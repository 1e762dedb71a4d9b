package drone

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"drone-dispatch/internal/pkg/apperrors"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Serial             string  `json:"serial" binding:"required"`
	Name               string  `json:"name" binding:"required"`
	MaxPayloadKG       float64 `json:"max_payload_kg" binding:"required"`
	MaxSpeedKMH        float64 `json:"max_speed_kmh" binding:"required"`
	MaxAltitudeM       float64 `json:"max_altitude_m"`
	MaxRangeKM         float64 `json:"max_range_km"`
	BatteryCapacityMAH int     `json:"battery_capacity_mah"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}

	d := New(req.Serial, req.Name)
	d.MaxPayloadKG = req.MaxPayloadKG
	d.MaxSpeedKMH = req.MaxSpeedKMH
	d.MaxAltitudeM = req.MaxAltitudeM
	d.MaxRangeKM = req.MaxRangeKM
	d.BatteryCapacityMAH = req.BatteryCapacityMAH

	created, err := h.service.Register(c.Request.Context(), d)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"drone": created})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid drone id"}})
		return
	}
	d, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drone": d})
}

func (h *Handler) List(c *gin.Context) {
	var status *Status
	if s := c.Query("status"); s != "" {
		st := Status(s)
		status = &st
	}
	page, limit := pagination(c)

	drones, total, err := h.service.ListAll(c.Request.Context(), status, page, limit)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drones": drones, "total": total, "page": page, "limit": limit})
}

func (h *Handler) ListAvailable(c *gin.Context) {
	drones, err := h.service.ListAvailable(c.Request.Context())
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drones": drones})
}

type updateRequest struct {
	Name         *string  `json:"name"`
	Status       *Status  `json:"status"`
	BatteryLevel *float64 `json:"battery_level"`
	IsActive     *bool    `json:"is_active"`
}

func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid drone id"}})
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}

	d, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	if req.Name != nil {
		d.Name = *req.Name
	}
	if req.Status != nil {
		d.Status = *req.Status
	}
	if req.BatteryLevel != nil {
		if err := d.SetBattery(*req.BatteryLevel); err != nil {
			apperrors.ToHTTPError(c, err)
			return
		}
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}

	if err := h.service.Update(c.Request.Context(), d); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drone": d})
}

// Position serves the hot cached position when present and falls through to
// the persisted row.
func (h *Handler) Position(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid drone id"}})
		return
	}

	if state, err := h.service.CachedState(c.Request.Context(), id); err == nil && state != nil {
		c.JSON(http.StatusOK, gin.H{"position": state, "source": "cache"})
		return
	}

	d, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"position": gin.H{
			"lat":        d.CurrentLat,
			"lng":        d.CurrentLng,
			"altitude_m": d.CurrentAltitude,
			"battery":    d.BatteryLevel,
		},
		"source": "db",
	})
}

func pagination(c *gin.Context) (int, int) {
	page := 1
	limit := 20
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	return page, limit
}
