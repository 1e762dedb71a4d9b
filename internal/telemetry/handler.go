package telemetry

import (
	"net/http"
	"strconv"
	"time"

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

func (h *Handler) Ingest(c *gin.Context) {
	var in Ingest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}

	if err := h.service.Submit(c.Request.Context(), in); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *Handler) Recent(c *gin.Context) {
	id, err := uuid.Parse(c.Query("drone"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "drone query parameter is required"}})
		return
	}
	hours := 24
	if v := c.Query("hours"); v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 {
			hours = n
		}
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil {
			limit = n
		}
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	rows, err := h.service.RecentSince(c.Request.Context(), id, since, limit)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"telemetry": rows})
}

func (h *Handler) Stream(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid drone id"}})
		return
	}

	st, err := h.service.Stream(c.Request.Context(), id)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": st})
}
