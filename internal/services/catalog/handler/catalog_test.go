package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"sentra-retail/internal/database/models"
	"sentra-retail/internal/stock"
)

func setupTestDB(t *testing.T, name string) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Category{}, &models.Product{}, &models.StockMovement{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestHandler(t *testing.T, name string) (*CatalogHandler, *gorm.DB) {
	db := setupTestDB(t, name)
	h := NewCatalogHandler(db, nil)
	h.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return h, db
}

func seedCategory(t *testing.T, db *gorm.DB, name string) models.Category {
	category := models.Category{Name: name}
	if err := db.Create(&category).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return category
}

func TestCreateProductAssignsCodeAndOpeningStock(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	category := seedCategory(t, db, "Beverages")

	resp, err := h.CreateProduct(context.Background(), &CreateProductRequest{
		Name:          "Mineral Water 600ml",
		CategoryID:    category.ID,
		PurchasePrice: decimal.NewFromInt(2),
		RetailPrice:   decimal.NewFromInt(4),
		InitialStock:  50,
		CreatedBy:     1,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, message=%v", resp.Message)
	}
	if resp.Product.ProductCode != "PRD-0001" {
		t.Fatalf("expected PRD-0001 got %s", resp.Product.ProductCode)
	}
	if resp.Product.CurrentStock != 50 {
		t.Fatalf("expected stock 50 got %d", resp.Product.CurrentStock)
	}
	if resp.Product.Unit != "pcs" {
		t.Fatalf("expected default unit pcs got %s", resp.Product.Unit)
	}

	// Opening balance leaves an audit trail.
	var movement models.StockMovement
	if err := db.Where("product_id = ?", resp.Product.ID).First(&movement).Error; err != nil {
		t.Fatalf("load movement: %v", err)
	}
	if movement.ReferenceType != stock.RefTypeAdjustment {
		t.Fatalf("expected adjustment movement got %s", movement.ReferenceType)
	}
	if movement.Quantity != 50 {
		t.Fatalf("expected quantity 50 got %d", movement.Quantity)
	}
}

func TestCreateProductUnknownCategory(t *testing.T) {
	h, _ := newTestHandler(t, t.Name())

	_, err := h.CreateProduct(context.Background(), &CreateProductRequest{
		Name:       "Orphan",
		CategoryID: 42,
	})
	var validationErr *models.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError got %v", err)
	}
}

func TestCreateProductNegativePriceRejected(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	category := seedCategory(t, db, "Beverages")

	_, err := h.CreateProduct(context.Background(), &CreateProductRequest{
		Name:        "Bad Price",
		CategoryID:  category.ID,
		RetailPrice: decimal.NewFromInt(-1),
	})
	var validationErr *models.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError got %v", err)
	}
}

func TestUpdateAndDeactivateProduct(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	category := seedCategory(t, db, "Beverages")

	created, err := h.CreateProduct(context.Background(), &CreateProductRequest{
		Name:        "Tea",
		CategoryID:  category.ID,
		RetailPrice: decimal.NewFromInt(3),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	newPrice := decimal.NewFromInt(5)
	resp, err := h.UpdateProduct(context.Background(), &UpdateProductRequest{
		ID:          created.Product.ID,
		RetailPrice: &newPrice,
	})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if !resp.Product.RetailPrice.Equal(newPrice) {
		t.Fatalf("expected retail 5 got %s", resp.Product.RetailPrice)
	}

	resp, err = h.DeactivateProduct(context.Background(), created.Product.ID)
	if err != nil {
		t.Fatalf("deactivate product: %v", err)
	}
	if resp.Product.IsActive {
		t.Fatalf("expected product inactive")
	}

	var reloaded models.Product
	if err := db.First(&reloaded, created.Product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.IsActive {
		t.Fatalf("deactivation not persisted")
	}
}

func TestAdjustStock(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	category := seedCategory(t, db, "Beverages")

	created, err := h.CreateProduct(context.Background(), &CreateProductRequest{
		Name:         "Coffee",
		CategoryID:   category.ID,
		RetailPrice:  decimal.NewFromInt(3),
		InitialStock: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	notes := "stock opname shortfall"
	resp, err := h.AdjustStock(context.Background(), &AdjustStockRequest{
		ProductID:  created.Product.ID,
		Quantity:   4,
		Direction:  stock.MovementOut,
		Notes:      &notes,
		AdjustedBy: 1,
	})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if resp.Product.CurrentStock != 6 {
		t.Fatalf("expected stock 6 got %d", resp.Product.CurrentStock)
	}

	// Cannot adjust below zero.
	_, err = h.AdjustStock(context.Background(), &AdjustStockRequest{
		ProductID:  created.Product.ID,
		Quantity:   100,
		Direction:  stock.MovementOut,
		AdjustedBy: 1,
	})
	var stockErr *stock.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError got %v", err)
	}

	// Bad direction.
	_, err = h.AdjustStock(context.Background(), &AdjustStockRequest{
		ProductID:  created.Product.ID,
		Quantity:   1,
		Direction:  "sideways",
		AdjustedBy: 1,
	})
	var validationErr *models.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError got %v", err)
	}

	var reloaded models.Product
	if err := db.First(&reloaded, created.Product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.CurrentStock != 6 {
		t.Fatalf("stock changed on rejected adjustment: %d", reloaded.CurrentStock)
	}
}

func TestListProductsStockFilters(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	category := seedCategory(t, db, "Beverages")

	stocks := []int{0, 5, 50}
	for i, qty := range stocks {
		_, err := h.CreateProduct(context.Background(), &CreateProductRequest{
			Name:         fmt.Sprintf("Item %d", i),
			CategoryID:   category.ID,
			RetailPrice:  decimal.NewFromInt(3),
			InitialStock: qty,
		})
		if err != nil {
			t.Fatalf("create product %d: %v", i, err)
		}
	}

	resp, err := h.ListProducts(context.Background(), &ListProductsRequest{OutOfStock: true})
	if err != nil {
		t.Fatalf("list out of stock: %v", err)
	}
	if resp.TotalCount != 1 {
		t.Fatalf("expected 1 out-of-stock got %d", resp.TotalCount)
	}

	resp, err = h.ListProducts(context.Background(), &ListProductsRequest{LowStock: true})
	if err != nil {
		t.Fatalf("list low stock: %v", err)
	}
	if resp.TotalCount != 1 {
		t.Fatalf("expected 1 low-stock got %d", resp.TotalCount)
	}

	resp, err = h.ListProducts(context.Background(), &ListProductsRequest{InStock: true})
	if err != nil {
		t.Fatalf("list in stock: %v", err)
	}
	if resp.TotalCount != 2 {
		t.Fatalf("expected 2 in-stock got %d", resp.TotalCount)
	}
}

func TestCategoryLifecycle(t *testing.T) {
	h, _ := newTestHandler(t, t.Name())

	created, err := h.CreateCategory(context.Background(), &CategoryRequest{Name: "Snacks"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	if !created.Success {
		t.Fatalf("expected success, message=%v", created.Message)
	}

	updated, err := h.UpdateCategory(context.Background(), &CategoryRequest{
		ID:   created.Category.ID,
		Name: "Snacks & Sweets",
	})
	if err != nil {
		t.Fatalf("update category: %v", err)
	}
	if updated.Category.Name != "Snacks & Sweets" {
		t.Fatalf("expected renamed category got %s", updated.Category.Name)
	}

	if _, err := h.CreateProduct(context.Background(), &CreateProductRequest{
		Name:        "Crisps",
		CategoryID:  created.Category.ID,
		RetailPrice: decimal.NewFromInt(2),
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	list, err := h.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(list.Categories) != 1 {
		t.Fatalf("expected 1 category got %d", len(list.Categories))
	}
	if list.Categories[0].ProductCount != 1 {
		t.Fatalf("expected product count 1 got %d", list.Categories[0].ProductCount)
	}
}
