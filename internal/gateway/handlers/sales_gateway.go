package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	saleshandler "sentra-retail/internal/services/sales/handler"
)

type SalesHTTPHandler struct {
	sales *saleshandler.SalesHandler
}

func NewSalesHTTPHandler(sales *saleshandler.SalesHandler) *SalesHTTPHandler {
	return &SalesHTTPHandler{sales: sales}
}

func (h *SalesHTTPHandler) CreateSale(c *gin.Context) {
	var req saleshandler.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	resp, err := h.sales.CreateSale(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to create sale")
		return
	}
	if !resp.Success {
		msg := "Failed to create sale"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusCreated, successResponse("Sale created successfully", resp.Sale))
}

func (h *SalesHTTPHandler) GetSale(c *gin.Context) {
	saleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid sale ID"))
		return
	}

	resp, err := h.sales.GetSale(c.Request.Context(), saleID)
	if err != nil {
		handleServiceError(c, err, "Failed to get sale")
		return
	}
	if !resp.Success {
		msg := "Sale not found"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusNotFound, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Sale retrieved successfully", resp.Sale))
}

func (h *SalesHTTPHandler) ListSales(c *gin.Context) {
	var req saleshandler.ListSalesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	resp, err := h.sales.ListSales(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to list sales")
		return
	}

	c.JSON(http.StatusOK, successWithMetaResponse("Sales retrieved successfully", resp.Sales, listMeta{
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalCount: resp.TotalCount,
	}))
}

func (h *SalesHTTPHandler) MarkSalePaid(c *gin.Context) {
	saleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid sale ID"))
		return
	}

	var req saleshandler.MarkSalePaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	req.ID = saleID

	resp, err := h.sales.MarkSalePaid(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to record payment")
		return
	}
	if !resp.Success {
		msg := "Failed to record payment"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Payment recorded successfully", resp.Sale))
}

func (h *SalesHTTPHandler) CancelSale(c *gin.Context) {
	saleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid sale ID"))
		return
	}

	var req saleshandler.CancelSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	req.ID = saleID
	if req.CancelledBy == 0 {
		req.CancelledBy = c.GetInt64("user_id")
	}

	resp, err := h.sales.CancelSale(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to cancel sale")
		return
	}
	if !resp.Success {
		msg := "Failed to cancel sale"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Sale cancelled successfully", resp.Sale))
}
