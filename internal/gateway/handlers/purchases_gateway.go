package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	purchaseshandler "sentra-retail/internal/services/purchases/handler"
)

type PurchasesHTTPHandler struct {
	purchases *purchaseshandler.PurchasesHandler
}

func NewPurchasesHTTPHandler(purchases *purchaseshandler.PurchasesHandler) *PurchasesHTTPHandler {
	return &PurchasesHTTPHandler{purchases: purchases}
}

func (h *PurchasesHTTPHandler) CreatePurchase(c *gin.Context) {
	var req purchaseshandler.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	resp, err := h.purchases.CreatePurchase(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to create purchase")
		return
	}
	if !resp.Success {
		msg := "Failed to create purchase"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusCreated, successResponse("Purchase created successfully", resp.Purchase))
}

func (h *PurchasesHTTPHandler) GetPurchase(c *gin.Context) {
	purchaseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid purchase ID"))
		return
	}

	resp, err := h.purchases.GetPurchase(c.Request.Context(), purchaseID)
	if err != nil {
		handleServiceError(c, err, "Failed to get purchase")
		return
	}
	if !resp.Success {
		msg := "Purchase not found"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusNotFound, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Purchase retrieved successfully", resp.Purchase))
}

func (h *PurchasesHTTPHandler) ListPurchases(c *gin.Context) {
	var req purchaseshandler.ListPurchasesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	resp, err := h.purchases.ListPurchases(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to list purchases")
		return
	}

	c.JSON(http.StatusOK, successWithMetaResponse("Purchases retrieved successfully", resp.Purchases, listMeta{
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalCount: resp.TotalCount,
	}))
}

func (h *PurchasesHTTPHandler) MarkPurchasePaid(c *gin.Context) {
	purchaseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid purchase ID"))
		return
	}

	var req purchaseshandler.MarkPurchasePaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	req.ID = purchaseID

	resp, err := h.purchases.MarkPurchasePaid(c.Request.Context(), &req)
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

	c.JSON(http.StatusOK, successResponse("Payment recorded successfully", resp.Purchase))
}

func (h *PurchasesHTTPHandler) CancelPurchase(c *gin.Context) {
	purchaseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid purchase ID"))
		return
	}

	var req purchaseshandler.CancelPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	req.ID = purchaseID
	if req.CancelledBy == 0 {
		req.CancelledBy = c.GetInt64("user_id")
	}

	resp, err := h.purchases.CancelPurchase(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to cancel purchase")
		return
	}
	if !resp.Success {
		msg := "Failed to cancel purchase"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Purchase cancelled successfully", resp.Purchase))
}
