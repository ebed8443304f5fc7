package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
	PaymentStatusCredit = "credit"

	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// ValidationError reports input that must never reach the stock ledger,
// e.g. a non-positive quantity or a negative price.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError reports a lifecycle operation attempted on a
// document whose status does not allow it.
type InvalidTransitionError struct {
	Document string
	Number   string
	Status   string
	Action   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s %s: status is %s", e.Action, e.Document, e.Number, e.Status)
}

type Category struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(128);uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Products []Product `gorm:"foreignKey:CategoryID"`
}

type Product struct {
	ID             int64           `gorm:"primaryKey;autoIncrement"`
	ProductCode    string          `gorm:"type:varchar(32);uniqueIndex;not null"`
	Name           string          `gorm:"type:varchar(255);not null"`
	CategoryID     int64           `gorm:"not null;index"`
	PurchasePrice  decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	WholesalePrice decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	RetailPrice    decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	CurrentStock   int             `gorm:"not null;default:0"`
	Unit           string          `gorm:"type:varchar(30);not null;default:'pcs'"`
	IsActive       bool            `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Category *Category `gorm:"foreignKey:CategoryID"`
}

// IsInStock reports whether any stock remains.
func (p *Product) IsInStock() bool {
	return p.CurrentStock > 0
}

// HasSufficientStock reports whether the product can cover qty. The stock
// ledger re-checks this under a row lock before mutating.
func (p *Product) HasSufficientStock(qty int) bool {
	return p.CurrentStock >= qty
}

// WholesaleProfitMargin is the wholesale markup over purchase price in
// percent, 0 when the purchase price is not positive.
func (p *Product) WholesaleProfitMargin() decimal.Decimal {
	return priceMargin(p.WholesalePrice, p.PurchasePrice)
}

// RetailProfitMargin is the retail markup over purchase price in percent.
func (p *Product) RetailProfitMargin() decimal.Decimal {
	return priceMargin(p.RetailPrice, p.PurchasePrice)
}

func priceMargin(sell, cost decimal.Decimal) decimal.Decimal {
	if cost.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return sell.Sub(cost).Div(cost).Mul(decimal.NewFromInt(100))
}

type Customer struct {
	ID           int64           `gorm:"primaryKey;autoIncrement"`
	CustomerCode string          `gorm:"type:varchar(32);uniqueIndex;not null"`
	Name         string          `gorm:"type:varchar(255);not null"`
	Phone        *string         `gorm:"type:varchar(50)"`
	Email        *string         `gorm:"type:varchar(100)"`
	Address      *string         `gorm:"type:text"`
	CreditLimit  decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Sales []Sale `gorm:"foreignKey:CustomerID"`
}

type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Email     string `gorm:"type:varchar(100);uniqueIndex;not null"`
	Password  string `gorm:"not null"`
	Firstname string `gorm:"not null"`
	Lastname  string `gorm:"not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Sale struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	InvoiceNumber string          `gorm:"type:varchar(32);uniqueIndex;not null"`
	CustomerID    *int64          `gorm:"index"`
	UserID        int64           `gorm:"not null"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Discount      decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	FinalAmount   decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	PaidAmount    decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	ChangeAmount  decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	PaymentStatus string          `gorm:"type:varchar(16);not null;index"`
	DueDate       *time.Time
	Status        string  `gorm:"type:varchar(16);not null;index"`
	Notes         *string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Customer *Customer    `gorm:"foreignKey:CustomerID"`
	User     *User        `gorm:"foreignKey:UserID"`
	Details  []SaleDetail `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE"`
}

func (s *Sale) IsPaid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

func (s *Sale) IsCredit() bool {
	return s.PaymentStatus == PaymentStatusCredit
}

// IsOverdue reports whether the sale is an unpaid credit sale past its due
// date. Pure predicate, not a transition.
func (s *Sale) IsOverdue(now time.Time) bool {
	return s.IsCredit() && s.DueDate != nil && now.After(*s.DueDate)
}

// RemainingAmount is what the counterparty still owes, never negative.
func (s *Sale) RemainingAmount() decimal.Decimal {
	remaining := s.FinalAmount.Sub(s.PaidAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// TotalItems sums line quantities over the loaded details.
func (s *Sale) TotalItems() int {
	total := 0
	for _, d := range s.Details {
		total += d.Quantity
	}
	return total
}

type SaleDetail struct {
	ID         int64           `gorm:"primaryKey;autoIncrement"`
	SaleID     int64           `gorm:"not null;index"`
	ProductID  int64           `gorm:"not null"`
	Quantity   int             `gorm:"not null"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	CreatedAt  time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}

// Normalize validates the line and recomputes its total from
// quantity x unit price. Every persist path must call it; a caller-supplied
// total is never trusted.
func (d *SaleDetail) Normalize() error {
	return normalizeLine(&d.Quantity, &d.UnitPrice, &d.TotalPrice)
}

// Profit is total price minus the product's purchase cost for the line
// quantity. Zero when the product is not loaded.
func (d *SaleDetail) Profit() decimal.Decimal {
	if d.Product == nil {
		return decimal.Zero
	}
	cost := d.Product.PurchasePrice.Mul(decimal.NewFromInt(int64(d.Quantity)))
	return d.TotalPrice.Sub(cost)
}

// ProfitMargin is profit over cost in percent, 0 when cost is not positive.
func (d *SaleDetail) ProfitMargin() decimal.Decimal {
	if d.Product == nil {
		return decimal.Zero
	}
	cost := d.Product.PurchasePrice.Mul(decimal.NewFromInt(int64(d.Quantity)))
	if cost.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return d.TotalPrice.Sub(cost).Div(cost).Mul(decimal.NewFromInt(100))
}

type Purchase struct {
	ID             int64           `gorm:"primaryKey;autoIncrement"`
	PurchaseNumber string          `gorm:"type:varchar(32);uniqueIndex;not null"`
	SupplierName   string          `gorm:"type:varchar(255);not null"`
	UserID         int64           `gorm:"not null"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Discount       decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	FinalAmount    decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	PaidAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	PaymentStatus  string          `gorm:"type:varchar(16);not null;index"`
	PurchaseDate   time.Time       `gorm:"not null"`
	DueDate        *time.Time
	Status         string  `gorm:"type:varchar(16);not null;index"`
	Notes          *string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	User    *User            `gorm:"foreignKey:UserID"`
	Details []PurchaseDetail `gorm:"foreignKey:PurchaseID;constraint:OnDelete:CASCADE"`
}

func (p *Purchase) IsPaid() bool {
	return p.PaymentStatus == PaymentStatusPaid
}

func (p *Purchase) IsCredit() bool {
	return p.PaymentStatus == PaymentStatusCredit
}

func (p *Purchase) IsOverdue(now time.Time) bool {
	return p.IsCredit() && p.DueDate != nil && now.After(*p.DueDate)
}

func (p *Purchase) RemainingAmount() decimal.Decimal {
	remaining := p.FinalAmount.Sub(p.PaidAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

func (p *Purchase) TotalItems() int {
	total := 0
	for _, d := range p.Details {
		total += d.Quantity
	}
	return total
}

type PurchaseDetail struct {
	ID         int64           `gorm:"primaryKey;autoIncrement"`
	PurchaseID int64           `gorm:"not null;index"`
	ProductID  int64           `gorm:"not null"`
	Quantity   int             `gorm:"not null"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	CreatedAt  time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}

// Normalize validates the line and recomputes its total, same contract as
// SaleDetail.Normalize.
func (d *PurchaseDetail) Normalize() error {
	return normalizeLine(&d.Quantity, &d.UnitPrice, &d.TotalPrice)
}

func normalizeLine(qty *int, unitPrice, totalPrice *decimal.Decimal) error {
	if *qty <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be greater than 0"}
	}
	if unitPrice.IsNegative() {
		return &ValidationError{Field: "unit_price", Reason: "must not be negative"}
	}
	*totalPrice = unitPrice.Mul(decimal.NewFromInt(int64(*qty)))
	return nil
}

// StockMovement is the append-only audit trail behind every stock ledger
// mutation.
type StockMovement struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	ProductID     int64  `gorm:"not null;index"`
	MovementType  string `gorm:"type:varchar(8);not null"`
	Quantity      int    `gorm:"not null"`
	ReferenceType string  `gorm:"type:varchar(32);not null"`
	ReferenceID   *string `gorm:"type:varchar(100)"`
	Notes         *string `gorm:"type:varchar(255)"`
	CreatedBy     int64   `gorm:"not null"`
	CreatedAt     time.Time
}
