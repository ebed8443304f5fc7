package stock

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"sentra-retail/internal/database/models"
)

func setupTestDB(t *testing.T, name string) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.StockMovement{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, stock int) models.Product {
	product := models.Product{
		ProductCode:  "PRD-0001",
		Name:         "Widget",
		CategoryID:   1,
		RetailPrice:  decimal.NewFromInt(10),
		CurrentStock: stock,
		Unit:         "pcs",
		IsActive:     true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func TestReduce(t *testing.T) {
	db := setupTestDB(t, t.Name())
	product := seedProduct(t, db, 10)

	updated, err := Reduce(db, product.ID, 3, Movement{
		ReferenceType: RefTypeSale,
		ReferenceID:   "INV-20250101-001",
		CreatedBy:     1,
	})
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if updated.CurrentStock != 7 {
		t.Fatalf("expected stock 7 got %d", updated.CurrentStock)
	}

	var movement models.StockMovement
	if err := db.Where("product_id = ?", product.ID).First(&movement).Error; err != nil {
		t.Fatalf("load movement: %v", err)
	}
	if movement.MovementType != MovementOut {
		t.Fatalf("expected movement type %s got %s", MovementOut, movement.MovementType)
	}
	if movement.Quantity != 3 {
		t.Fatalf("expected movement quantity 3 got %d", movement.Quantity)
	}
	if movement.ReferenceID == nil || *movement.ReferenceID != "INV-20250101-001" {
		t.Fatalf("expected reference INV-20250101-001 got %v", movement.ReferenceID)
	}
}

func TestReduceInsufficient(t *testing.T) {
	db := setupTestDB(t, t.Name())
	product := seedProduct(t, db, 2)

	_, err := Reduce(db, product.ID, 5, Movement{ReferenceType: RefTypeSale, CreatedBy: 1})
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError got %v", err)
	}
	if stockErr.Available != 2 || stockErr.Requested != 5 {
		t.Fatalf("expected available 2 requested 5 got %d %d", stockErr.Available, stockErr.Requested)
	}

	var reloaded models.Product
	if err := db.First(&reloaded, product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if reloaded.CurrentStock != 2 {
		t.Fatalf("stock changed on failed reduce: %d", reloaded.CurrentStock)
	}

	var count int64
	if err := db.Model(&models.StockMovement{}).Count(&count).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no movement rows got %d", count)
	}
}

func TestIncrease(t *testing.T) {
	db := setupTestDB(t, t.Name())
	product := seedProduct(t, db, 0)

	updated, err := Increase(db, product.ID, 25, Movement{
		ReferenceType: RefTypePurchase,
		ReferenceID:   "PUR-20250101-001",
		CreatedBy:     1,
	})
	if err != nil {
		t.Fatalf("increase: %v", err)
	}
	if updated.CurrentStock != 25 {
		t.Fatalf("expected stock 25 got %d", updated.CurrentStock)
	}

	var movement models.StockMovement
	if err := db.Where("product_id = ?", product.ID).First(&movement).Error; err != nil {
		t.Fatalf("load movement: %v", err)
	}
	if movement.MovementType != MovementIn {
		t.Fatalf("expected movement type %s got %s", MovementIn, movement.MovementType)
	}
}

func TestNonPositiveQuantity(t *testing.T) {
	db := setupTestDB(t, t.Name())
	product := seedProduct(t, db, 10)

	var validationErr *models.ValidationError
	if _, err := Reduce(db, product.ID, 0, Movement{}); !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError got %v", err)
	}
	if _, err := Increase(db, product.ID, -1, Movement{}); !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError got %v", err)
	}
}

func TestHasSufficient(t *testing.T) {
	db := setupTestDB(t, t.Name())
	product := seedProduct(t, db, 4)

	ok, err := HasSufficient(db, product.ID, 4)
	if err != nil || !ok {
		t.Fatalf("expected sufficient for 4, ok=%v err=%v", ok, err)
	}
	ok, err = HasSufficient(db, product.ID, 5)
	if err != nil || ok {
		t.Fatalf("expected insufficient for 5, ok=%v err=%v", ok, err)
	}
}
