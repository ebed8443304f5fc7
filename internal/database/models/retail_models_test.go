package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalizeRecomputesTotal(t *testing.T) {
	detail := SaleDetail{
		Quantity:   3,
		UnitPrice:  decimal.NewFromInt(10),
		TotalPrice: decimal.NewFromInt(999),
	}
	if err := detail.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !detail.TotalPrice.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected total 30 got %s", detail.TotalPrice)
	}

	detail.Quantity = 5
	if err := detail.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !detail.TotalPrice.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected total 50 got %s", detail.TotalPrice)
	}
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	var validationErr *ValidationError

	detail := SaleDetail{Quantity: 0, UnitPrice: decimal.NewFromInt(10)}
	if err := detail.Normalize(); !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for zero quantity got %v", err)
	}

	line := PurchaseDetail{Quantity: 1, UnitPrice: decimal.NewFromInt(-5)}
	if err := line.Normalize(); !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for negative price got %v", err)
	}
}

func TestProfitMarginZeroCost(t *testing.T) {
	detail := SaleDetail{
		Quantity:   2,
		UnitPrice:  decimal.NewFromInt(10),
		TotalPrice: decimal.NewFromInt(20),
		Product:    &Product{PurchasePrice: decimal.Zero},
	}
	if !detail.ProfitMargin().IsZero() {
		t.Fatalf("expected zero margin for zero cost got %s", detail.ProfitMargin())
	}

	detail.Product.PurchasePrice = decimal.NewFromInt(5)
	// cost 10, revenue 20: 100% margin.
	if !detail.ProfitMargin().Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100 got %s", detail.ProfitMargin())
	}
	if !detail.Profit().Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected profit 10 got %s", detail.Profit())
	}
}

func TestProductMargins(t *testing.T) {
	product := Product{
		PurchasePrice:  decimal.NewFromInt(8),
		WholesalePrice: decimal.NewFromInt(10),
		RetailPrice:    decimal.NewFromInt(12),
	}
	if !product.WholesaleProfitMargin().Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected wholesale margin 25 got %s", product.WholesaleProfitMargin())
	}
	if !product.RetailProfitMargin().Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected retail margin 50 got %s", product.RetailProfitMargin())
	}

	product.PurchasePrice = decimal.Zero
	if !product.RetailProfitMargin().IsZero() {
		t.Fatalf("expected zero margin for zero cost")
	}
}

func TestSaleOverdue(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 1)

	sale := Sale{PaymentStatus: PaymentStatusCredit, DueDate: &past}
	if !sale.IsOverdue(now) {
		t.Fatalf("expected overdue")
	}

	sale.DueDate = &future
	if sale.IsOverdue(now) {
		t.Fatalf("not yet due")
	}

	sale.PaymentStatus = PaymentStatusPaid
	sale.DueDate = &past
	if sale.IsOverdue(now) {
		t.Fatalf("paid sale is never overdue")
	}

	sale.PaymentStatus = PaymentStatusCredit
	sale.DueDate = nil
	if sale.IsOverdue(now) {
		t.Fatalf("no due date means not overdue")
	}
}

func TestRemainingAmountClampsToZero(t *testing.T) {
	sale := Sale{
		FinalAmount: decimal.NewFromInt(100),
		PaidAmount:  decimal.NewFromInt(150),
	}
	if !sale.RemainingAmount().IsZero() {
		t.Fatalf("expected zero remaining got %s", sale.RemainingAmount())
	}

	sale.PaidAmount = decimal.NewFromInt(40)
	if !sale.RemainingAmount().Equal(decimal.NewFromInt(60)) {
		t.Fatalf("expected 60 got %s", sale.RemainingAmount())
	}
}
