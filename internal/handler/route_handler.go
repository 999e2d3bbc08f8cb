package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/schoolbus-tracking/service-tracking/internal/application"
	"github.com/schoolbus-tracking/service-tracking/internal/domain/vehicle"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/auth"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/middleware"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/response"
)

// RouteHandler drives the admin route-authoring workflow. Each admin has
// their own draft.
type RouteHandler struct {
	authoring *application.AuthoringService
	tracking  *application.TrackingService
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(authoring *application.AuthoringService, tracking *application.TrackingService) *RouteHandler {
	return &RouteHandler{authoring: authoring, tracking: tracking}
}

type startSelectionRequest struct {
	VehicleID string `json:"vehicle_id"`
}

type submitPointRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// coordinate rejects a tap with a missing axis rather than reading it as zero.
func (r submitPointRequest) coordinate() (vehicle.Coordinate, error) {
	if r.Latitude == nil {
		return vehicle.Coordinate{}, domain.NewFieldValidationError("latitude", "is required")
	}
	if r.Longitude == nil {
		return vehicle.Coordinate{}, domain.NewFieldValidationError("longitude", "is required")
	}
	return vehicle.Coordinate{Latitude: *r.Latitude, Longitude: *r.Longitude}, nil
}

// RegisterRoutes registers the authoring routes and the public route lookup.
func (h *RouteHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	selection := r.Group("/api/v1/admin/routes/selection")
	selection.Use(authMW, middleware.RequireRole(auth.RoleAdmin))
	{
		selection.POST("", h.StartPathSelection)
		selection.GET("", h.CurrentDraft)
		selection.DELETE("", h.CancelRoute)
		selection.POST("/points", h.SubmitPoint)
		selection.POST("/save", h.SaveRoute)
	}

	vehicles := r.Group("/api/v1/vehicles")
	vehicles.Use(authMW)
	{
		vehicles.GET("/:vehicleId/route", h.GetRoute)
	}
}

// StartPathSelection handles POST /api/v1/admin/routes/selection.
func (h *RouteHandler) StartPathSelection(c *gin.Context) {
	adminID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req startSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authoring.StartPathSelection(c.Request.Context(), adminID, req.VehicleID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// SubmitPoint handles POST /api/v1/admin/routes/selection/points.
func (h *RouteHandler) SubmitPoint(c *gin.Context) {
	adminID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req submitPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domain.NewValidationError("malformed point payload"))
		return
	}
	point, err := req.coordinate()
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.authoring.SubmitPoint(c.Request.Context(), adminID, point)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// SaveRoute handles POST /api/v1/admin/routes/selection/save.
func (h *RouteHandler) SaveRoute(c *gin.Context) {
	adminID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	result, err := h.authoring.SaveRoute(c.Request.Context(), adminID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CancelRoute handles DELETE /api/v1/admin/routes/selection.
func (h *RouteHandler) CancelRoute(c *gin.Context) {
	adminID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	result, err := h.authoring.CancelRoute(c.Request.Context(), adminID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CurrentDraft handles GET /api/v1/admin/routes/selection.
func (h *RouteHandler) CurrentDraft(c *gin.Context) {
	adminID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	response.Success(c, h.authoring.CurrentDraft(adminID))
}

// GetRoute handles GET /api/v1/vehicles/:vehicleId/route.
func (h *RouteHandler) GetRoute(c *gin.Context) {
	result, err := h.tracking.Route(c.Request.Context(), c.Param("vehicleId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
