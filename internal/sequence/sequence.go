// Package sequence generates the human-readable identifiers used across the
// system: date-scoped invoice/purchase numbers and global product/customer
// codes. A package-level mutex serializes generation within the process;
// the unique indexes on the number columns backstop duplicates across
// processes.
package sequence

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gorm.io/gorm"

	"sentra-retail/internal/database/models"
)

var mu sync.Mutex

// InvoiceNumber returns the next sale invoice number for the given day,
// formatted INV-YYYYMMDD-NNN. The counter resets daily and continues from
// the most recently created invoice carrying today's prefix.
func InvoiceNumber(tx *gorm.DB, now time.Time) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	prefix := fmt.Sprintf("INV-%s-", now.Format("20060102"))

	var last models.Sale
	err := tx.Where("invoice_number LIKE ?", prefix+"%").
		Order("id DESC").
		First(&last).Error

	return dateScoped(prefix, last.InvoiceNumber, err)
}

// PurchaseNumber returns the next purchase number, formatted
// PUR-YYYYMMDD-NNN, with the same daily-reset rule as InvoiceNumber.
func PurchaseNumber(tx *gorm.DB, now time.Time) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	prefix := fmt.Sprintf("PUR-%s-", now.Format("20060102"))

	var last models.Purchase
	err := tx.Where("purchase_number LIKE ?", prefix+"%").
		Order("id DESC").
		First(&last).Error

	return dateScoped(prefix, last.PurchaseNumber, err)
}

// ProductCode returns the next global product code, formatted PRD-NNNN,
// derived from the most recently created product.
func ProductCode(tx *gorm.DB) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	var last models.Product
	err := tx.Order("id DESC").First(&last).Error

	return global("PRD-", last.ProductCode, err)
}

// CustomerCode returns the next global customer code, formatted CUST-NNNN.
func CustomerCode(tx *gorm.DB) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	var last models.Customer
	err := tx.Order("id DESC").First(&last).Error

	return global("CUST-", last.CustomerCode, err)
}

func dateScoped(prefix, lastNumber string, err error) (string, error) {
	next := 1
	switch {
	case err == nil:
		next = numericSuffix(lastNumber, 3) + 1
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return "", err
	}
	return fmt.Sprintf("%s%03d", prefix, next), nil
}

func global(prefix, lastCode string, err error) (string, error) {
	next := 1
	switch {
	case err == nil:
		next = numericSuffix(lastCode, 4) + 1
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, next), nil
}

func numericSuffix(s string, width int) int {
	if len(s) < width {
		return 0
	}
	n, err := strconv.Atoi(s[len(s)-width:])
	if err != nil {
		return 0
	}
	return n
}
