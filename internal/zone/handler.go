package zone

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"drone-dispatch/internal/geo"
	"drone-dispatch/internal/pkg/apperrors"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type zoneRequest struct {
	Name       string      `json:"name" binding:"required"`
	Type       Type        `json:"type" binding:"required"`
	Severity   Severity    `json:"severity" binding:"required"`
	Boundary   geo.Polygon `json:"boundary" binding:"required"`
	AltMinM    float64     `json:"altitude_min_m"`
	AltMaxM    *float64    `json:"altitude_max_m"`
	ValidFrom  *time.Time  `json:"valid_from"`
	ValidUntil *time.Time  `json:"valid_until"`
	IsActive   *bool       `json:"is_active"`
	Reason     string      `json:"reason"`
}

func (req *zoneRequest) toZone() *Zone {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &Zone{
		Name:       req.Name,
		Type:       req.Type,
		Severity:   req.Severity,
		Boundary:   req.Boundary,
		AltMinM:    req.AltMinM,
		AltMaxM:    req.AltMaxM,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
		IsActive:   active,
		Reason:     req.Reason,
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req zoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}
	z, err := h.service.Create(c.Request.Context(), req.toZone())
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"zone": z})
}

func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid zone id"}})
		return
	}
	var req zoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}
	z := req.toZone()
	z.ID = id
	updated, err := h.service.Update(c.Request.Context(), z)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zone": updated})
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid zone id"}})
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "zone deleted"})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid zone id"}})
		return
	}
	z, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zone": z})
}

func (h *Handler) List(c *gin.Context) {
	// With bbox params the active spatial index answers; otherwise list the
	// persisted set.
	if c.Query("min_lat") != "" {
		box, ok := parseBBox(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"zones": h.service.ActiveInBBox(box, time.Now())})
		return
	}
	zones, err := h.service.ListAll(c.Request.Context())
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zones": zones})
}

func (h *Handler) Static(c *gin.Context) {
	if c.Query("min_lat") != "" {
		box, ok := parseBBox(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"zones": h.service.StaticInBBox(box)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"zones": StaticZones()})
}

func parseBBox(c *gin.Context) (geo.BBox, bool) {
	parse := func(name string) (float64, bool) {
		v, err := strconv.ParseFloat(c.Query(name), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid " + name}})
			return 0, false
		}
		return v, true
	}
	minLat, ok := parse("min_lat")
	if !ok {
		return geo.BBox{}, false
	}
	minLng, ok := parse("min_lng")
	if !ok {
		return geo.BBox{}, false
	}
	maxLat, ok := parse("max_lat")
	if !ok {
		return geo.BBox{}, false
	}
	maxLng, ok := parse("max_lng")
	if !ok {
		return geo.BBox{}, false
	}
	return geo.BBox{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng}, true
}
