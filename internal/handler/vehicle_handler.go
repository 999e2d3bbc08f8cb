package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/schoolbus-tracking/service-tracking/internal/application"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/auth"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/middleware"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/response"
)

// AdminVehicleHandler handles admin HTTP requests for the fleet registry.
type AdminVehicleHandler struct {
	service *application.VehicleService
}

// NewAdminVehicleHandler creates a new AdminVehicleHandler.
func NewAdminVehicleHandler(service *application.VehicleService) *AdminVehicleHandler {
	return &AdminVehicleHandler{service: service}
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type assignDriverRequest struct {
	DriverID string `json:"driver_id"`
}

// RegisterRoutes registers admin vehicle routes.
func (h *AdminVehicleHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	adminRole := middleware.RequireRole(auth.RoleAdmin)

	admin := r.Group("/api/v1/admin/vehicles")
	admin.Use(authMW, adminRole)
	{
		admin.POST("", h.RegisterVehicle)
		admin.GET("", h.ListVehicles)
		admin.GET("/:vehicleId", h.GetVehicle)
		admin.PATCH("/:vehicleId/status", h.SetStatus)
		admin.PUT("/:vehicleId/driver", h.AssignDriver)
		admin.POST("/:vehicleId/deactivate", h.DeactivateVehicle)
		admin.POST("/:vehicleId/activate", h.ActivateVehicle)
	}
}

// RegisterVehicle handles POST /api/v1/admin/vehicles.
func (h *AdminVehicleHandler) RegisterVehicle(c *gin.Context) {
	var req application.RegisterVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.RegisterVehicle(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListVehicles handles GET /api/v1/admin/vehicles.
func (h *AdminVehicleHandler) ListVehicles(c *gin.Context) {
	page, limit := parsePagination(c)

	result, err := h.service.ListVehicles(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetVehicle handles GET /api/v1/admin/vehicles/:vehicleId.
func (h *AdminVehicleHandler) GetVehicle(c *gin.Context) {
	result, err := h.service.GetVehicle(c.Request.Context(), c.Param("vehicleId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// SetStatus handles PATCH /api/v1/admin/vehicles/:vehicleId/status.
func (h *AdminVehicleHandler) SetStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.SetStatus(c.Request.Context(), c.Param("vehicleId"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// AssignDriver handles PUT /api/v1/admin/vehicles/:vehicleId/driver.
// An empty driver_id unbinds the vehicle.
func (h *AdminVehicleHandler) AssignDriver(c *gin.Context) {
	var req assignDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.AssignDriver(c.Request.Context(), c.Param("vehicleId"), req.DriverID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// DeactivateVehicle handles POST /api/v1/admin/vehicles/:vehicleId/deactivate.
func (h *AdminVehicleHandler) DeactivateVehicle(c *gin.Context) {
	result, err := h.service.DeactivateVehicle(c.Request.Context(), c.Param("vehicleId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ActivateVehicle handles POST /api/v1/admin/vehicles/:vehicleId/activate.
func (h *AdminVehicleHandler) ActivateVehicle(c *gin.Context) {
	result, err := h.service.ActivateVehicle(c.Request.Context(), c.Param("vehicleId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// parsePagination extracts page and limit query parameters with defaults.
func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit
}
