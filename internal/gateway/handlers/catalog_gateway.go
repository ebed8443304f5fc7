package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	cataloghandler "sentra-retail/internal/services/catalog/handler"
)

type CatalogHTTPHandler struct {
	catalog *cataloghandler.CatalogHandler
}

func NewCatalogHTTPHandler(catalog *cataloghandler.CatalogHandler) *CatalogHTTPHandler {
	return &CatalogHTTPHandler{catalog: catalog}
}

// --- Product Handlers ---

func (h *CatalogHTTPHandler) CreateProduct(c *gin.Context) {
	var req cataloghandler.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	if req.CreatedBy == 0 {
		req.CreatedBy = c.GetInt64("user_id")
	}

	resp, err := h.catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to create product")
		return
	}
	if !resp.Success {
		msg := "Failed to create product"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusCreated, successResponse("Product created successfully", resp.Product))
}

func (h *CatalogHTTPHandler) GetProduct(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid product ID"))
		return
	}

	resp, err := h.catalog.GetProduct(c.Request.Context(), productID)
	if err != nil {
		handleServiceError(c, err, "Failed to get product")
		return
	}
	if !resp.Success {
		msg := "Product not found"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusNotFound, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Product retrieved successfully", resp.Product))
}

func (h *CatalogHTTPHandler) UpdateProduct(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid product ID"))
		return
	}

	var req cataloghandler.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	req.ID = productID

	resp, err := h.catalog.UpdateProduct(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to update product")
		return
	}
	if !resp.Success {
		msg := "Failed to update product"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Product updated successfully", resp.Product))
}

func (h *CatalogHTTPHandler) DeactivateProduct(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid product ID"))
		return
	}

	resp, err := h.catalog.DeactivateProduct(c.Request.Context(), productID)
	if err != nil {
		handleServiceError(c, err, "Failed to deactivate product")
		return
	}
	if !resp.Success {
		msg := "Failed to deactivate product"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusNotFound, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Product deactivated successfully", resp.Product))
}

func (h *CatalogHTTPHandler) AdjustStock(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid product ID"))
		return
	}

	var req cataloghandler.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	req.ProductID = productID
	if req.AdjustedBy == 0 {
		req.AdjustedBy = c.GetInt64("user_id")
	}

	resp, err := h.catalog.AdjustStock(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to adjust stock")
		return
	}
	if !resp.Success {
		msg := "Failed to adjust stock"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Stock adjusted successfully", resp.Product))
}

func (h *CatalogHTTPHandler) ListProducts(c *gin.Context) {
	var req cataloghandler.ListProductsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	resp, err := h.catalog.ListProducts(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to list products")
		return
	}

	c.JSON(http.StatusOK, successWithMetaResponse("Products retrieved successfully", resp.Products, listMeta{
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalCount: resp.TotalCount,
	}))
}

// --- Category Handlers ---

func (h *CatalogHTTPHandler) CreateCategory(c *gin.Context) {
	var req cataloghandler.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	resp, err := h.catalog.CreateCategory(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to create category")
		return
	}
	if !resp.Success {
		msg := "Failed to create category"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusCreated, successResponse("Category created successfully", resp.Category))
}

func (h *CatalogHTTPHandler) UpdateCategory(c *gin.Context) {
	categoryID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid category ID"))
		return
	}

	var req cataloghandler.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	req.ID = categoryID

	resp, err := h.catalog.UpdateCategory(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to update category")
		return
	}
	if !resp.Success {
		msg := "Failed to update category"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Category updated successfully", resp.Category))
}

func (h *CatalogHTTPHandler) ListCategories(c *gin.Context) {
	resp, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		handleServiceError(c, err, "Failed to list categories")
		return
	}

	c.JSON(http.StatusOK, successResponse("Categories retrieved successfully", resp.Categories))
}
