package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/schoolbus-tracking/service-tracking/internal/platform/domain"
)

// Envelope is the JSON body shape for every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Meta carries pagination details.
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// Success writes a 200 with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Accepted writes a 202 with data.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Envelope{Success: true, Data: data})
}

// Paginated writes a 200 with a page of items.
func Paginated(c *gin.Context, items interface{}, total int64, page, limit int) {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    items,
		Meta:    &Meta{Total: total, Page: page, Limit: limit, TotalPages: pages},
	})
}

// BadRequest writes a 400 with the given message.
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Envelope{
		Error: &ErrorBody{Code: "BAD_REQUEST", Message: message},
	})
}

// Unauthorized writes a 401.
func Unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{
		Error: &ErrorBody{Code: "UNAUTHORIZED", Message: message},
	})
}

// Forbidden writes a 403.
func Forbidden(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusForbidden, Envelope{
		Error: &ErrorBody{Code: "FORBIDDEN", Message: message},
	})
}

// Error maps a domain error to its HTTP status and writes it.
func Error(c *gin.Context, err error) {
	status, body := classify(err)
	c.AbortWithStatusJSON(status, Envelope{Error: &body})
}

func classify(err error) (int, ErrorBody) {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		conflict   *domain.ConflictError
		state      *domain.InvalidStateError
		forbidden  *domain.ForbiddenError
		persist    *domain.PersistenceError
	)

	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, ErrorBody{Code: "VALIDATION_ERROR", Message: validation.Message, Field: validation.Field}
	case errors.As(err, &notFound):
		return http.StatusNotFound, ErrorBody{Code: "NOT_FOUND", Message: notFound.Error()}
	case errors.As(err, &conflict):
		return http.StatusConflict, ErrorBody{Code: "CONFLICT", Message: conflict.Error()}
	case errors.As(err, &state):
		return http.StatusConflict, ErrorBody{Code: "INVALID_STATE", Message: state.Error()}
	case errors.As(err, &forbidden):
		return http.StatusForbidden, ErrorBody{Code: "FORBIDDEN", Message: forbidden.Error()}
	case errors.As(err, &persist):
		return http.StatusServiceUnavailable, ErrorBody{Code: "PERSISTENCE_FAILURE", Message: "storage unavailable, retry later"}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: "INTERNAL_ERROR", Message: "internal server error"}
	}
}
