package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"sentra-retail/internal/database/models"
	"sentra-retail/internal/metrics"
	"sentra-retail/internal/stock"
)

func setupTestDB(t *testing.T, name string) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Category{}, &models.Product{}, &models.User{},
		&models.Purchase{}, &models.PurchaseDetail{}, &models.StockMovement{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestHandler(t *testing.T, name string) (*PurchasesHandler, *gorm.DB) {
	db := setupTestDB(t, name)
	h := NewPurchasesHandler(db, nil)
	h.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return h, db
}

func seedProduct(t *testing.T, db *gorm.DB, code string, stockQty int, purchasePrice int64) models.Product {
	product := models.Product{
		ProductCode:   code,
		Name:          "Product " + code,
		CategoryID:    1,
		PurchasePrice: decimal.NewFromInt(purchasePrice),
		RetailPrice:   decimal.NewFromInt(purchasePrice * 2),
		CurrentStock:  stockQty,
		Unit:          "pcs",
		IsActive:      true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product %s: %v", code, err)
	}
	return product
}

func currentStock(t *testing.T, db *gorm.DB, productID int64) int {
	var product models.Product
	if err := db.First(&product, productID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return product.CurrentStock
}

func TestCreatePurchaseIncreasesStockAndUpdatesCost(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	product := seedProduct(t, db, "PRD-0001", 5, 6)

	resp, err := h.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		SupplierName: "Acme Wholesale",
		UserID:       1,
		Items: []PurchaseItemRequest{
			{ProductID: product.ID, Quantity: 20, UnitPrice: decimal.NewFromInt(7)},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, message=%v", resp.Message)
	}

	purchase := resp.Purchase
	if purchase.PurchaseNumber != "PUR-20250615-001" {
		t.Fatalf("expected PUR-20250615-001 got %s", purchase.PurchaseNumber)
	}
	if !purchase.TotalAmount.Equal(decimal.NewFromInt(140)) {
		t.Fatalf("expected total 140 got %s", purchase.TotalAmount)
	}
	if purchase.PaymentStatus != models.PaymentStatusUnpaid {
		t.Fatalf("expected unpaid got %s", purchase.PaymentStatus)
	}

	if got := currentStock(t, db, product.ID); got != 25 {
		t.Fatalf("expected stock 25 got %d", got)
	}

	// Cost basis follows the latest purchase price.
	var reloaded models.Product
	if err := db.First(&reloaded, product.ID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if !reloaded.PurchasePrice.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected purchase price 7 got %s", reloaded.PurchasePrice)
	}

	var movement models.StockMovement
	if err := db.Where("product_id = ?", product.ID).First(&movement).Error; err != nil {
		t.Fatalf("load movement: %v", err)
	}
	if movement.ReferenceType != stock.RefTypePurchase {
		t.Fatalf("expected reference type %s got %s", stock.RefTypePurchase, movement.ReferenceType)
	}
}

func TestCreatePurchaseDiscountClamped(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	product := seedProduct(t, db, "PRD-0001", 0, 6)

	resp, err := h.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		SupplierName: "Acme",
		UserID:       1,
		Discount:     decimal.NewFromInt(999),
		Items: []PurchaseItemRequest{
			{ProductID: product.ID, Quantity: 2, UnitPrice: decimal.NewFromInt(5)},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if !resp.Purchase.Discount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected discount clamped to 10 got %s", resp.Purchase.Discount)
	}
	if !resp.Purchase.FinalAmount.IsZero() {
		t.Fatalf("expected final 0 got %s", resp.Purchase.FinalAmount)
	}
}

func TestMarkPurchasePaid(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	product := seedProduct(t, db, "PRD-0001", 0, 6)

	created, err := h.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		SupplierName: "Acme",
		UserID:       1,
		Items: []PurchaseItemRequest{
			{ProductID: product.ID, Quantity: 10, UnitPrice: decimal.NewFromInt(6)},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	resp, err := h.MarkPurchasePaid(context.Background(), &MarkPurchasePaidRequest{
		ID:     created.Purchase.ID,
		Amount: decimal.NewFromInt(60),
	})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if resp.Purchase.PaymentStatus != models.PaymentStatusPaid {
		t.Fatalf("expected paid got %s", resp.Purchase.PaymentStatus)
	}
	if !resp.Purchase.RemainingAmount.IsZero() {
		t.Fatalf("expected remaining 0 got %s", resp.Purchase.RemainingAmount)
	}
}

func TestCancelPurchaseRemovesStock(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	product := seedProduct(t, db, "PRD-0001", 0, 6)

	created, err := h.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		SupplierName: "Acme",
		UserID:       1,
		Items: []PurchaseItemRequest{
			{ProductID: product.ID, Quantity: 15, UnitPrice: decimal.NewFromInt(6)},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if got := currentStock(t, db, product.ID); got != 15 {
		t.Fatalf("expected stock 15 got %d", got)
	}

	resp, err := h.CancelPurchase(context.Background(), &CancelPurchaseRequest{
		ID:          created.Purchase.ID,
		CancelledBy: 1,
	})
	if err != nil {
		t.Fatalf("cancel purchase: %v", err)
	}
	if resp.Purchase.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled got %s", resp.Purchase.Status)
	}
	if got := currentStock(t, db, product.ID); got != 0 {
		t.Fatalf("expected stock back to 0 got %d", got)
	}

	// Second cancel must be rejected.
	_, err = h.CancelPurchase(context.Background(), &CancelPurchaseRequest{
		ID:          created.Purchase.ID,
		CancelledBy: 1,
	})
	var transitionErr *models.InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected InvalidTransitionError got %v", err)
	}
}

func TestCancelPurchaseInsufficientStockRejected(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	product := seedProduct(t, db, "PRD-0001", 0, 6)

	created, err := h.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		SupplierName: "Acme",
		UserID:       1,
		Items: []PurchaseItemRequest{
			{ProductID: product.ID, Quantity: 10, UnitPrice: decimal.NewFromInt(6)},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	// Sell most of it out from under the purchase.
	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := stock.Reduce(tx, product.ID, 8, stock.Movement{
			ReferenceType: stock.RefTypeSale,
			ReferenceID:   "INV-20250615-001",
			CreatedBy:     1,
		})
		return err
	})
	if err != nil {
		t.Fatalf("reduce stock: %v", err)
	}

	_, err = h.CancelPurchase(context.Background(), &CancelPurchaseRequest{
		ID:          created.Purchase.ID,
		CancelledBy: 1,
	})
	var stockErr *stock.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError got %v", err)
	}

	// Nothing moved: stock stays at 2 and the purchase stays active.
	if got := currentStock(t, db, product.ID); got != 2 {
		t.Fatalf("expected stock 2 got %d", got)
	}
	var reloaded models.Purchase
	if err := db.First(&reloaded, created.Purchase.ID).Error; err != nil {
		t.Fatalf("reload purchase: %v", err)
	}
	if reloaded.Status != models.StatusActive {
		t.Fatalf("expected purchase still active got %s", reloaded.Status)
	}
}

func TestListPurchasesFilters(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	product := seedProduct(t, db, "PRD-0001", 0, 6)

	for i := 0; i < 3; i++ {
		resp, err := h.CreatePurchase(context.Background(), &CreatePurchaseRequest{
			SupplierName: "Acme",
			UserID:       1,
			Items: []PurchaseItemRequest{
				{ProductID: product.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(6)},
			},
		})
		if err != nil || !resp.Success {
			t.Fatalf("create purchase %d: err=%v", i, err)
		}
	}

	unpaid := models.PaymentStatusUnpaid
	resp, err := h.ListPurchases(context.Background(), &ListPurchasesRequest{
		PaymentStatus: &unpaid,
		Page:          1,
		PageSize:      2,
	})
	if err != nil {
		t.Fatalf("list purchases: %v", err)
	}
	if resp.TotalCount != 3 {
		t.Fatalf("expected total 3 got %d", resp.TotalCount)
	}
	if len(resp.Purchases) != 2 {
		t.Fatalf("expected page of 2 got %d", len(resp.Purchases))
	}
	// Newest first.
	if resp.Purchases[0].PurchaseNumber != "PUR-20250615-003" {
		t.Fatalf("expected newest first got %s", resp.Purchases[0].PurchaseNumber)
	}
}

// Mirrors the sales guarantee: a cancel landing between the payment path's
// read and its write must not be overwritten.
func TestMarkPurchasePaidRefusedWhenCancelledMidFlight(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	product := seedProduct(t, db, "PRD-0001", 5, 6)

	created, err := h.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		SupplierName: "Acme Wholesale",
		UserID:       1,
		Items: []PurchaseItemRequest{
			{ProductID: product.ID, Quantity: 10, UnitPrice: decimal.NewFromInt(7)},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	purchaseID := created.Purchase.ID

	flipped := false
	if err := db.Callback().Query().After("gorm:query").Register("cancel_mid_flight", func(d *gorm.DB) {
		if flipped {
			return
		}
		if _, ok := d.Statement.Dest.(*models.Purchase); !ok {
			return
		}
		flipped = true
		d.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE purchases SET status = ? WHERE id = ?", models.StatusCancelled, purchaseID)
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	resp, err := h.MarkPurchasePaid(context.Background(), &MarkPurchasePaidRequest{
		ID:     purchaseID,
		Amount: decimal.NewFromInt(70),
	})
	if resp.Success {
		t.Fatalf("expected payment on a cancelled purchase to be refused")
	}
	var transitionErr *models.InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected InvalidTransitionError got %v", err)
	}

	var purchase models.Purchase
	if err := db.First(&purchase, purchaseID).Error; err != nil {
		t.Fatalf("reload purchase: %v", err)
	}
	if purchase.PaymentStatus == models.PaymentStatusPaid {
		t.Fatalf("payment was recorded despite the cancel, status=%s payment=%s",
			purchase.Status, purchase.PaymentStatus)
	}
}

// A duplicate purchase number from an overlapping creator is retried in a
// fresh transaction with no residue from the rolled-back attempt.
func TestCreatePurchaseRetriesOnDuplicateNumber(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	product := seedProduct(t, db, "PRD-0001", 5, 6)

	collided := false
	if err := db.Callback().Create().Before("gorm:create").Register("collide_once", func(d *gorm.DB) {
		if collided {
			return
		}
		if _, ok := d.Statement.Dest.(*models.Purchase); !ok {
			return
		}
		collided = true
		d.AddError(gorm.ErrDuplicatedKey)
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	resp, err := h.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		SupplierName: "Acme Wholesale",
		UserID:       1,
		Items: []PurchaseItemRequest{
			{ProductID: product.ID, Quantity: 20, UnitPrice: decimal.NewFromInt(7)},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected retry to succeed, message=%v", resp.Message)
	}
	if resp.Purchase.PurchaseNumber != "PUR-20250615-001" {
		t.Fatalf("expected PUR-20250615-001 got %s", resp.Purchase.PurchaseNumber)
	}
	if got := currentStock(t, db, product.ID); got != 25 {
		t.Fatalf("expected stock 25 got %d", got)
	}

	var movements int64
	if err := db.Model(&models.StockMovement{}).Count(&movements).Error; err != nil {
		t.Fatalf("count movements: %v", err)
	}
	if movements != 1 {
		t.Fatalf("expected 1 movement after retry got %d", movements)
	}
}

func TestCreatePurchaseIncrementsCounter(t *testing.T) {
	h, db := newTestHandler(t, t.Name())
	product := seedProduct(t, db, "PRD-0001", 5, 6)

	before := testutil.ToFloat64(metrics.PurchasesCreatedTotal)

	resp, err := h.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		SupplierName: "Acme Wholesale",
		UserID:       1,
		Items: []PurchaseItemRequest{
			{ProductID: product.ID, Quantity: 2, UnitPrice: decimal.NewFromInt(7)},
		},
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, message=%v", resp.Message)
	}

	if got := testutil.ToFloat64(metrics.PurchasesCreatedTotal); got != before+1 {
		t.Fatalf("expected counter %v got %v", before+1, got)
	}
}
