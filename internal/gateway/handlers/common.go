package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sentra-retail/internal/credit"
	"sentra-retail/internal/database/models"
	"sentra-retail/internal/metrics"
	"sentra-retail/internal/stock"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func errorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

func successWithMetaResponse(message string, data interface{}, meta interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    meta,
	}
}

type listMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
}

// handleServiceError maps the service error types onto HTTP status codes.
// Validation problems are 400, state conflicts (stock, credit, lifecycle)
// are 409, everything else is 500.
func handleServiceError(c *gin.Context, err error, fallback string) {
	var validationErr *models.ValidationError
	var stockErr *stock.InsufficientStockError
	var creditErr *credit.LimitExceededError
	var transitionErr *models.InvalidTransitionError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, errorResponse(validationErr.Error()))
	case errors.As(err, &stockErr):
		metrics.StockRejectionsTotal.Inc()
		c.JSON(http.StatusConflict, errorResponse(stockErr.Error()))
	case errors.As(err, &creditErr):
		c.JSON(http.StatusConflict, errorResponse(creditErr.Error()))
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, errorResponse(transitionErr.Error()))
	default:
		c.JSON(http.StatusInternalServerError, errorResponse(fallback))
	}
}
