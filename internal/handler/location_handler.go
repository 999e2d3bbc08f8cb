package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/schoolbus-tracking/service-tracking/internal/application"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/auth"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/middleware"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/response"
)

// LocationHandler accepts position reports from driver devices.
type LocationHandler struct {
	service *application.IngestService
}

// NewLocationHandler creates a new LocationHandler.
func NewLocationHandler(service *application.IngestService) *LocationHandler {
	return &LocationHandler{service: service}
}

// RegisterRoutes registers the driver location routes.
func (h *LocationHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	locations := r.Group("/api/v1/locations")
	locations.Use(middleware.AuthMiddleware(jwtManager), middleware.RequireRole(auth.RoleDriver))
	{
		locations.POST("", h.ReportLocation)
	}
}

// ReportLocation handles POST /api/v1/locations.
// A stale report is acknowledged with 200 and applied=false.
func (h *LocationHandler) ReportLocation(c *gin.Context) {
	driverID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req application.LocationReport
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domain.NewValidationError("malformed location payload"))
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), driverID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if !result.Applied {
		response.Success(c, result)
		return
	}
	response.Accepted(c, result)
}
