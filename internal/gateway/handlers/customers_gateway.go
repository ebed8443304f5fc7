package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	customershandler "sentra-retail/internal/services/customers/handler"
)

type CustomersHTTPHandler struct {
	customers *customershandler.CustomersHandler
}

func NewCustomersHTTPHandler(customers *customershandler.CustomersHandler) *CustomersHTTPHandler {
	return &CustomersHTTPHandler{customers: customers}
}

func (h *CustomersHTTPHandler) CreateCustomer(c *gin.Context) {
	var req customershandler.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	resp, err := h.customers.CreateCustomer(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to create customer")
		return
	}
	if !resp.Success {
		msg := "Failed to create customer"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusCreated, successResponse("Customer created successfully", resp.Customer))
}

func (h *CustomersHTTPHandler) GetCustomer(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid customer ID"))
		return
	}

	resp, err := h.customers.GetCustomer(c.Request.Context(), customerID)
	if err != nil {
		handleServiceError(c, err, "Failed to get customer")
		return
	}
	if !resp.Success {
		msg := "Customer not found"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusNotFound, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Customer retrieved successfully", resp.Customer))
}

func (h *CustomersHTTPHandler) UpdateCustomer(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid customer ID"))
		return
	}

	var req customershandler.UpdateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	req.ID = customerID

	resp, err := h.customers.UpdateCustomer(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to update customer")
		return
	}
	if !resp.Success {
		msg := "Failed to update customer"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Customer updated successfully", resp.Customer))
}

func (h *CustomersHTTPHandler) ListCustomers(c *gin.Context) {
	var req customershandler.ListCustomersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	resp, err := h.customers.ListCustomers(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to list customers")
		return
	}

	c.JSON(http.StatusOK, successWithMetaResponse("Customers retrieved successfully", resp.Customers, listMeta{
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalCount: resp.TotalCount,
	}))
}

func (h *CustomersHTTPHandler) CheckCredit(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid customer ID"))
		return
	}

	var req customershandler.CheckCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	req.CustomerID = customerID

	resp, err := h.customers.CheckCredit(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to check credit")
		return
	}
	if !resp.Success {
		msg := "Failed to check credit"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusNotFound, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Credit check completed", map[string]interface{}{
		"allowed":   resp.Allowed,
		"limit":     resp.Limit,
		"used":      resp.Used,
		"remaining": resp.Remaining,
	}))
}
