package order

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"drone-dispatch/internal/geo"
	"drone-dispatch/internal/pkg/apperrors"
)

// Dispatcher feeds order mutations into the pipeline. Declared here so this
// package does not import the dispatch package.
type Dispatcher interface {
	EnqueueAssignDrone(ctx context.Context, orderID, droneID uuid.UUID, actorID *uuid.UUID) error
	EnqueueUpdateStatus(ctx context.Context, orderID uuid.UUID, to Status, actorID *uuid.UUID) error
	// UpdateStatusNow applies the transition before returning so an illegal
	// request surfaces to the caller instead of failing on a worker.
	UpdateStatusNow(ctx context.Context, orderID uuid.UUID, to Status, actorID *uuid.UUID, note string) (*Order, error)
}

type Handler struct {
	service    Service
	dispatcher Dispatcher
}

func NewHandler(service Service, dispatcher Dispatcher) *Handler {
	return &Handler{service: service, dispatcher: dispatcher}
}

type packageRequest struct {
	Name           string   `json:"name" binding:"required"`
	Type           string   `json:"type"`
	WeightKG       float64  `json:"weight_kg" binding:"required"`
	LengthCM       *float64 `json:"length_cm"`
	WidthCM        *float64 `json:"width_cm"`
	HeightCM       *float64 `json:"height_cm"`
	Fragile        bool     `json:"fragile"`
	Urgent         bool     `json:"urgent"`
	TempControlled bool     `json:"temp_controlled"`
}

type createRequest struct {
	PickupLat   float64        `json:"pickup_lat" binding:"required"`
	PickupLng   float64        `json:"pickup_lng" binding:"required"`
	DeliveryLat float64        `json:"delivery_lat" binding:"required"`
	DeliveryLng float64        `json:"delivery_lng" binding:"required"`
	Package     packageRequest `json:"package" binding:"required"`
	Priority    int            `json:"priority"`
	Notes       string         `json:"notes"`
}

func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}

	customerID, ok := actor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNAUTHORIZED", "message": "missing subject"}})
		return
	}

	o := NewOrder(*customerID,
		geo.NewPoint(req.PickupLat, req.PickupLng),
		geo.NewPoint(req.DeliveryLat, req.DeliveryLng))
	o.Priority = req.Priority
	o.Notes = req.Notes
	pkg := &Package{
		Name:           req.Package.Name,
		Type:           req.Package.Type,
		WeightKG:       req.Package.WeightKG,
		LengthCM:       req.Package.LengthCM,
		WidthCM:        req.Package.WidthCM,
		HeightCM:       req.Package.HeightCM,
		Fragile:        req.Package.Fragile,
		Urgent:         req.Package.Urgent,
		TempControlled: req.Package.TempControlled,
	}

	created, err := h.service.Create(c.Request.Context(), o, pkg)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": created, "package": pkg})
}

func (h *Handler) Get(c *gin.Context) {
	o, ok := h.loadAuthorized(c)
	if !ok {
		return
	}
	pkg, err := h.service.GetPackage(c.Request.Context(), o.ID)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o, "package": pkg})
}

func (h *Handler) List(c *gin.Context) {
	f := ListFilter{}
	if s := c.Query("status"); s != "" {
		st := Status(s)
		f.Status = &st
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Page = n
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}

	// Customers only see their own orders.
	if c.GetString("role") == "customer" {
		id, ok := actor(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "UNAUTHORIZED", "message": "missing subject"}})
			return
		}
		f.CustomerID = id
	}

	orders, total, err := h.service.List(c.Request.Context(), f)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total})
}

func (h *Handler) History(c *gin.Context) {
	o, ok := h.loadAuthorized(c)
	if !ok {
		return
	}
	rows, err := h.service.History(c.Request.Context(), o.ID)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": rows})
}

type assignRequest struct {
	DroneID uuid.UUID `json:"drone_id" binding:"required"`
}

// AssignDrone accepts the assignment and hands it to the pipeline; the
// transition itself happens on a worker under the per-order lock.
func (h *Handler) AssignDrone(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid order id"}})
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}

	actorID, _ := actor(c)
	if err := h.dispatcher.EnqueueAssignDrone(c.Request.Context(), id, req.DroneID, actorID); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "assignment accepted", "order_id": id})
}

type statusRequest struct {
	Status Status `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid order id"}})
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": err.Error()}})
		return
	}

	actorID, _ := actor(c)
	o, err := h.dispatcher.UpdateStatusNow(c.Request.Context(), id, req.Status, actorID, req.Notes)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

// Cancel is the customer-facing abort; owners may cancel their own orders.
func (h *Handler) Cancel(c *gin.Context) {
	o, ok := h.loadAuthorized(c)
	if !ok {
		return
	}
	actorID, _ := actor(c)
	if err := h.dispatcher.EnqueueUpdateStatus(c.Request.Context(), o.ID, StatusCancelled, actorID); err != nil {
		apperrors.ToHTTPError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "cancellation accepted", "order_id": o.ID})
}

// loadAuthorized fetches the order and enforces customer ownership.
func (h *Handler) loadAuthorized(c *gin.Context) (*Order, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": "VALIDATION", "message": "invalid order id"}})
		return nil, false
	}
	o, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		apperrors.ToHTTPError(c, err)
		return nil, false
	}
	if c.GetString("role") == "customer" {
		if sub, ok := actor(c); !ok || *sub != o.CustomerID {
			c.JSON(http.StatusForbidden, gin.H{"error": gin.H{"code": "FORBIDDEN", "message": "you do not own this order"}})
			return nil, false
		}
	}
	return o, true
}

func actor(c *gin.Context) (*uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString("sub"))
	if err != nil {
		return nil, false
	}
	return &id, true
}
