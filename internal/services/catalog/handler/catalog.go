package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sentra-retail/internal/database/models"
	"sentra-retail/internal/sequence"
	"sentra-retail/internal/stock"
)

const (
	PRODUCT_CACHE_PREFIX = "product:"
	PRODUCT_CACHE_TTL    = 1 * time.Hour

	DefaultLowStockThreshold = 10
)

// --- Helpers ---
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type CatalogHandler struct {
	db    *gorm.DB
	redis *redis.Client
	now   func() time.Time
}

func NewCatalogHandler(db *gorm.DB, redisClient *redis.Client) *CatalogHandler {
	return &CatalogHandler{
		db:    db,
		redis: redisClient,
		now:   time.Now,
	}
}

// --- Requests / responses ---

type CreateProductRequest struct {
	Name           string          `json:"name" binding:"required"`
	CategoryID     int64           `json:"category_id" binding:"required"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
	InitialStock   int             `json:"initial_stock"`
	Unit           string          `json:"unit"`
	CreatedBy      int64           `json:"created_by"`
}

type UpdateProductRequest struct {
	ID             int64            `json:"id"`
	Name           *string          `json:"name,omitempty"`
	CategoryID     *int64           `json:"category_id,omitempty"`
	PurchasePrice  *decimal.Decimal `json:"purchase_price,omitempty"`
	WholesalePrice *decimal.Decimal `json:"wholesale_price,omitempty"`
	RetailPrice    *decimal.Decimal `json:"retail_price,omitempty"`
	Unit           *string          `json:"unit,omitempty"`
	IsActive       *bool            `json:"is_active,omitempty"`
}

type AdjustStockRequest struct {
	ProductID  int64   `json:"product_id"`
	Quantity   int     `json:"quantity"`
	Direction  string  `json:"direction"`
	Notes      *string `json:"notes,omitempty"`
	AdjustedBy int64   `json:"adjusted_by"`
}

type ListProductsRequest struct {
	Active            *bool   `form:"active,omitempty"`
	CategoryID        *int64  `form:"category_id,omitempty"`
	Search            *string `form:"search,omitempty"`
	InStock           bool    `form:"in_stock,omitempty"`
	LowStock          bool    `form:"low_stock,omitempty"`
	LowStockThreshold int     `form:"low_stock_threshold,omitempty"`
	OutOfStock        bool    `form:"out_of_stock,omitempty"`
	Page              int     `form:"page,default=1"`
	PageSize          int     `form:"page_size,default=10"`
}

type ProductView struct {
	ID                    int64           `json:"id"`
	ProductCode           string          `json:"product_code"`
	Name                  string          `json:"name"`
	CategoryID            int64           `json:"category_id"`
	CategoryName          string          `json:"category_name,omitempty"`
	PurchasePrice         decimal.Decimal `json:"purchase_price"`
	WholesalePrice        decimal.Decimal `json:"wholesale_price"`
	RetailPrice           decimal.Decimal `json:"retail_price"`
	WholesaleProfitMargin decimal.Decimal `json:"wholesale_profit_margin"`
	RetailProfitMargin    decimal.Decimal `json:"retail_profit_margin"`
	CurrentStock          int             `json:"current_stock"`
	Unit                  string          `json:"unit"`
	IsActive              bool            `json:"is_active"`
	InStock               bool            `json:"in_stock"`
	CreatedAt             time.Time       `json:"created_at"`
}

type ProductResponse struct {
	Success bool         `json:"success"`
	Message *string      `json:"message,omitempty"`
	Product *ProductView `json:"product,omitempty"`
}

type ListProductsResponse struct {
	Success    bool          `json:"success"`
	Message    *string       `json:"message,omitempty"`
	Products   []ProductView `json:"products"`
	TotalCount int64         `json:"total_count"`
}

type CategoryRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name" binding:"required"`
}

type CategoryView struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	ProductCount int64     `json:"product_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type CategoryResponse struct {
	Success  bool          `json:"success"`
	Message  *string       `json:"message,omitempty"`
	Category *CategoryView `json:"category,omitempty"`
}

type ListCategoriesResponse struct {
	Success    bool           `json:"success"`
	Message    *string        `json:"message,omitempty"`
	Categories []CategoryView `json:"categories"`
}

func productToView(product models.Product) *ProductView {
	view := &ProductView{
		ID:                    product.ID,
		ProductCode:           product.ProductCode,
		Name:                  product.Name,
		CategoryID:            product.CategoryID,
		PurchasePrice:         product.PurchasePrice,
		WholesalePrice:        product.WholesalePrice,
		RetailPrice:           product.RetailPrice,
		WholesaleProfitMargin: product.WholesaleProfitMargin(),
		RetailProfitMargin:    product.RetailProfitMargin(),
		CurrentStock:          product.CurrentStock,
		Unit:                  product.Unit,
		IsActive:              product.IsActive,
		InStock:               product.IsInStock(),
		CreatedAt:             product.CreatedAt,
	}
	if product.Category != nil {
		view.CategoryName = product.Category.Name
	}
	return view
}

func validatePrices(purchase, wholesale, retail decimal.Decimal) error {
	if purchase.IsNegative() {
		return &models.ValidationError{Field: "purchase_price", Reason: "must not be negative"}
	}
	if wholesale.IsNegative() {
		return &models.ValidationError{Field: "wholesale_price", Reason: "must not be negative"}
	}
	if retail.IsNegative() {
		return &models.ValidationError{Field: "retail_price", Reason: "must not be negative"}
	}
	return nil
}

// CreateProduct assigns the next product code and creates the product. An
// initial stock amount, when given, goes through the stock ledger so the
// opening balance has a movement row.
func (c *CatalogHandler) CreateProduct(ctx context.Context, req *CreateProductRequest) (*ProductResponse, error) {
	if req.Name == "" {
		return &ProductResponse{Success: false, Message: strPtr("name required")}, nil
	}
	if req.CategoryID == 0 {
		return &ProductResponse{Success: false, Message: strPtr("category_id required")}, nil
	}
	if err := validatePrices(req.PurchasePrice, req.WholesalePrice, req.RetailPrice); err != nil {
		return &ProductResponse{Success: false, Message: strPtr(err.Error())}, err
	}
	if req.InitialStock < 0 {
		err := &models.ValidationError{Field: "initial_stock", Reason: "must not be negative"}
		return &ProductResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	unit := req.Unit
	if unit == "" {
		unit = "pcs"
	}

	var product models.Product
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.First(&category, req.CategoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &models.ValidationError{Field: "category_id", Reason: "category does not exist"}
			}
			return err
		}

		code, err := sequence.ProductCode(tx)
		if err != nil {
			return err
		}

		now := c.now()
		product = models.Product{
			ProductCode:    code,
			Name:           req.Name,
			CategoryID:     req.CategoryID,
			PurchasePrice:  req.PurchasePrice,
			WholesalePrice: req.WholesalePrice,
			RetailPrice:    req.RetailPrice,
			Unit:           unit,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&product).Error; err != nil {
			return err
		}

		if req.InitialStock > 0 {
			if _, err := stock.Increase(tx, product.ID, req.InitialStock, stock.Movement{
				ReferenceType: stock.RefTypeAdjustment,
				ReferenceID:   code,
				Notes:         strPtr("initial stock"),
				CreatedBy:     req.CreatedBy,
			}); err != nil {
				return err
			}
			product.CurrentStock = req.InitialStock
		}
		return nil
	})
	if err != nil {
		return &ProductResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	return &ProductResponse{
		Success: true,
		Message: strPtr("Product created successfully"),
		Product: productToView(product),
	}, nil
}

// GetProduct serves a single product, cache first.
func (c *CatalogHandler) GetProduct(ctx context.Context, id int64) (*ProductResponse, error) {
	if id == 0 {
		return &ProductResponse{Success: false, Message: strPtr("product id required")}, nil
	}

	cacheKey := fmt.Sprintf("%s%d", PRODUCT_CACHE_PREFIX, id)
	if c.redis != nil {
		val, err := c.redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var cached models.Product
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return &ProductResponse{Success: true, Product: productToView(cached)}, nil
			}
		}
	}

	var product models.Product
	if err := c.db.WithContext(ctx).Preload("Category").
		First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ProductResponse{Success: false, Message: strPtr("Product not found")}, nil
		}
		return &ProductResponse{Success: false, Message: strPtr("Database error")}, err
	}

	if c.redis != nil {
		if jsonData, err := json.Marshal(&product); err == nil {
			c.redis.Set(ctx, cacheKey, jsonData, PRODUCT_CACHE_TTL)
		}
	}

	return &ProductResponse{Success: true, Product: productToView(product)}, nil
}

// UpdateProduct applies the provided fields and drops the product from the
// cache. Stock is never writable here, only the ledger moves it.
func (c *CatalogHandler) UpdateProduct(ctx context.Context, req *UpdateProductRequest) (*ProductResponse, error) {
	if req.ID == 0 {
		return &ProductResponse{Success: false, Message: strPtr("product id required")}, nil
	}

	var product models.Product
	if err := c.db.WithContext(ctx).First(&product, req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ProductResponse{Success: false, Message: strPtr("Product not found")}, nil
		}
		return &ProductResponse{Success: false, Message: strPtr("Database error")}, err
	}

	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.CategoryID != nil {
		var category models.Category
		if err := c.db.WithContext(ctx).First(&category, *req.CategoryID).Error; err != nil {
			verr := &models.ValidationError{Field: "category_id", Reason: "category does not exist"}
			return &ProductResponse{Success: false, Message: strPtr(verr.Error())}, verr
		}
		product.CategoryID = *req.CategoryID
	}
	if req.PurchasePrice != nil {
		product.PurchasePrice = *req.PurchasePrice
	}
	if req.WholesalePrice != nil {
		product.WholesalePrice = *req.WholesalePrice
	}
	if req.RetailPrice != nil {
		product.RetailPrice = *req.RetailPrice
	}
	if err := validatePrices(product.PurchasePrice, product.WholesalePrice, product.RetailPrice); err != nil {
		return &ProductResponse{Success: false, Message: strPtr(err.Error())}, err
	}
	if req.Unit != nil {
		product.Unit = *req.Unit
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	product.UpdatedAt = c.now()

	if err := c.db.WithContext(ctx).Save(&product).Error; err != nil {
		return &ProductResponse{Success: false, Message: strPtr("Failed to update product")}, err
	}

	c.invalidateProductCache(ctx, product.ID)

	return &ProductResponse{
		Success: true,
		Message: strPtr("Product updated successfully"),
		Product: productToView(product),
	}, nil
}

// DeactivateProduct soft-deletes: the product stops appearing in active
// listings and rejects new sale lines, but history keeps pointing at it.
func (c *CatalogHandler) DeactivateProduct(ctx context.Context, id int64) (*ProductResponse, error) {
	active := false
	return c.UpdateProduct(ctx, &UpdateProductRequest{ID: id, IsActive: &active})
}

// AdjustStock moves stock outside of any sale or purchase, e.g. shrinkage
// counts or found inventory.
func (c *CatalogHandler) AdjustStock(ctx context.Context, req *AdjustStockRequest) (*ProductResponse, error) {
	if req.ProductID == 0 {
		return &ProductResponse{Success: false, Message: strPtr("product_id required")}, nil
	}

	var product *models.Product
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mv := stock.Movement{
			ReferenceType: stock.RefTypeAdjustment,
			Notes:         req.Notes,
			CreatedBy:     req.AdjustedBy,
		}
		var err error
		switch req.Direction {
		case stock.MovementIn:
			product, err = stock.Increase(tx, req.ProductID, req.Quantity, mv)
		case stock.MovementOut:
			product, err = stock.Reduce(tx, req.ProductID, req.Quantity, mv)
		default:
			return &models.ValidationError{Field: "direction", Reason: "must be in or out"}
		}
		return err
	})
	if err != nil {
		return &ProductResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	c.invalidateProductCache(ctx, req.ProductID)

	return &ProductResponse{
		Success: true,
		Message: strPtr("Stock adjusted"),
		Product: productToView(*product),
	}, nil
}

func (c *CatalogHandler) ListProducts(ctx context.Context, req *ListProductsRequest) (*ListProductsResponse, error) {
	query := c.db.WithContext(ctx).Model(&models.Product{}).Preload("Category")

	if req.Active != nil {
		query = query.Where("is_active = ?", *req.Active)
	}
	if req.CategoryID != nil {
		query = query.Where("category_id = ?", *req.CategoryID)
	}
	if req.Search != nil && *req.Search != "" {
		pattern := "%" + *req.Search + "%"
		query = query.Where("name ILIKE ? OR product_code ILIKE ?", pattern, pattern)
	}
	if req.InStock {
		query = query.Where("current_stock > 0")
	}
	if req.LowStock {
		threshold := req.LowStockThreshold
		if threshold <= 0 {
			threshold = DefaultLowStockThreshold
		}
		query = query.Where("current_stock > 0 AND current_stock <= ?", threshold)
	}
	if req.OutOfStock {
		query = query.Where("current_stock <= 0")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return &ListProductsResponse{Success: false, Message: strPtr("Database error")}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	var products []models.Product
	if err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&products).Error; err != nil {
		return &ListProductsResponse{Success: false, Message: strPtr("Database error")}, err
	}

	views := make([]ProductView, 0, len(products))
	for _, product := range products {
		views = append(views, *productToView(product))
	}

	return &ListProductsResponse{Success: true, Products: views, TotalCount: total}, nil
}

func (c *CatalogHandler) CreateCategory(ctx context.Context, req *CategoryRequest) (*CategoryResponse, error) {
	if req.Name == "" {
		return &CategoryResponse{Success: false, Message: strPtr("name required")}, nil
	}

	now := c.now()
	category := models.Category{Name: req.Name, CreatedAt: now, UpdatedAt: now}
	if err := c.db.WithContext(ctx).Create(&category).Error; err != nil {
		return &CategoryResponse{Success: false, Message: strPtr("Failed to create category")}, err
	}

	return &CategoryResponse{
		Success: true,
		Message: strPtr("Category created successfully"),
		Category: &CategoryView{
			ID:        category.ID,
			Name:      category.Name,
			CreatedAt: category.CreatedAt,
		},
	}, nil
}

func (c *CatalogHandler) UpdateCategory(ctx context.Context, req *CategoryRequest) (*CategoryResponse, error) {
	if req.ID == 0 {
		return &CategoryResponse{Success: false, Message: strPtr("category id required")}, nil
	}
	if req.Name == "" {
		return &CategoryResponse{Success: false, Message: strPtr("name required")}, nil
	}

	var category models.Category
	if err := c.db.WithContext(ctx).First(&category, req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &CategoryResponse{Success: false, Message: strPtr("Category not found")}, nil
		}
		return &CategoryResponse{Success: false, Message: strPtr("Database error")}, err
	}

	category.Name = req.Name
	category.UpdatedAt = c.now()
	if err := c.db.WithContext(ctx).Save(&category).Error; err != nil {
		return &CategoryResponse{Success: false, Message: strPtr("Failed to update category")}, err
	}

	return &CategoryResponse{
		Success: true,
		Message: strPtr("Category updated successfully"),
		Category: &CategoryView{
			ID:        category.ID,
			Name:      category.Name,
			CreatedAt: category.CreatedAt,
		},
	}, nil
}

func (c *CatalogHandler) ListCategories(ctx context.Context) (*ListCategoriesResponse, error) {
	var categories []models.Category
	if err := c.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return &ListCategoriesResponse{Success: false, Message: strPtr("Database error")}, err
	}

	views := make([]CategoryView, 0, len(categories))
	for _, category := range categories {
		var count int64
		if err := c.db.WithContext(ctx).Model(&models.Product{}).
			Where("category_id = ?", category.ID).
			Count(&count).Error; err != nil {
			return &ListCategoriesResponse{Success: false, Message: strPtr("Database error")}, err
		}
		views = append(views, CategoryView{
			ID:           category.ID,
			Name:         category.Name,
			ProductCount: count,
			CreatedAt:    category.CreatedAt,
		})
	}

	return &ListCategoriesResponse{Success: true, Categories: views}, nil
}

func (c *CatalogHandler) invalidateProductCache(ctx context.Context, id int64) {
	if c.redis == nil {
		return
	}
	c.redis.Del(ctx, fmt.Sprintf("%s%d", PRODUCT_CACHE_PREFIX, id))
}
