// Package stock owns the authoritative on-hand quantity per product.
// All mutations run inside a caller-supplied transaction and lock the
// product row, so the sufficiency check and the write are one atomic unit.
package stock

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sentra-retail/internal/database/models"
)

const (
	MovementIn  = "in"
	MovementOut = "out"

	RefTypeSale           = "sale"
	RefTypeSaleCancel     = "sale_cancel"
	RefTypePurchase       = "purchase"
	RefTypePurchaseCancel = "purchase_cancel"
	RefTypeAdjustment     = "adjustment"
)

// Movement describes the audit record written alongside a mutation.
type Movement struct {
	ReferenceType string
	ReferenceID   string
	Notes         *string
	CreatedBy     int64
}

type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

// HasSufficient reports whether the product currently covers qty. Advisory
// only; Reduce re-checks under a row lock.
func HasSufficient(tx *gorm.DB, productID int64, qty int) (bool, error) {
	var product models.Product
	if err := tx.First(&product, productID).Error; err != nil {
		return false, err
	}
	return product.HasSufficientStock(qty), nil
}

// Reduce decrements the product's stock by qty, failing with
// *InsufficientStockError when the locked row cannot cover it. The updated
// product is returned on success.
func Reduce(tx *gorm.DB, productID int64, qty int, mv Movement) (*models.Product, error) {
	if qty <= 0 {
		return nil, &models.ValidationError{Field: "quantity", Reason: "must be greater than 0"}
	}

	var product models.Product
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, productID).Error; err != nil {
		return nil, err
	}

	if product.CurrentStock < qty {
		return nil, &InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.CurrentStock,
			Requested:   qty,
		}
	}

	product.CurrentStock -= qty
	product.UpdatedAt = time.Now()
	if err := tx.Save(&product).Error; err != nil {
		return nil, err
	}

	if err := recordMovement(tx, &product, MovementOut, qty, mv); err != nil {
		return nil, err
	}

	return &product, nil
}

// Increase adds qty to the product's stock. There is no upper bound, so the
// only failure modes are bad input and storage errors.
func Increase(tx *gorm.DB, productID int64, qty int, mv Movement) (*models.Product, error) {
	if qty <= 0 {
		return nil, &models.ValidationError{Field: "quantity", Reason: "must be greater than 0"}
	}

	var product models.Product
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, productID).Error; err != nil {
		return nil, err
	}

	product.CurrentStock += qty
	product.UpdatedAt = time.Now()
	if err := tx.Save(&product).Error; err != nil {
		return nil, err
	}

	if err := recordMovement(tx, &product, MovementIn, qty, mv); err != nil {
		return nil, err
	}

	return &product, nil
}

func recordMovement(tx *gorm.DB, product *models.Product, movementType string, qty int, mv Movement) error {
	movement := models.StockMovement{
		ProductID:     product.ID,
		MovementType:  movementType,
		Quantity:      qty,
		ReferenceType: mv.ReferenceType,
		Notes:         mv.Notes,
		CreatedBy:     mv.CreatedBy,
		CreatedAt:     time.Now(),
	}
	if mv.ReferenceID != "" {
		movement.ReferenceID = &mv.ReferenceID
	}
	return tx.Create(&movement).Error
}
