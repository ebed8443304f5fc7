// Package credit gates credit sales against a customer's configured limit.
// Exposure is always recomputed from the live set of active credit sales,
// never cached, so it cannot drift from the documents themselves.
package credit

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sentra-retail/internal/database/models"
)

type LimitExceededError struct {
	CustomerID int64
	Limit      decimal.Decimal
	Used       decimal.Decimal
	Requested  decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("credit limit exceeded for customer %d: limit %s, used %s, requested %s",
		e.CustomerID, e.Limit.StringFixed(2), e.Used.StringFixed(2), e.Requested.StringFixed(2))
}

// TotalUsed sums the final amounts of the customer's active credit sales.
func TotalUsed(tx *gorm.DB, customerID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := tx.Model(&models.Sale{}).
		Where("customer_id = ? AND payment_status = ? AND status = ?",
			customerID, models.PaymentStatusCredit, models.StatusActive).
		Select("COALESCE(SUM(final_amount), 0)").
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// Remaining is the customer's limit minus current exposure. May go negative
// when a limit was reduced after credit sales were accepted.
func Remaining(tx *gorm.DB, customer *models.Customer) (decimal.Decimal, error) {
	used, err := TotalUsed(tx, customer.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return customer.CreditLimit.Sub(used), nil
}

// CanMakeCreditPurchase reports whether amount fits within the customer's
// remaining credit.
func CanMakeCreditPurchase(tx *gorm.DB, customer *models.Customer, amount decimal.Decimal) (bool, error) {
	used, err := TotalUsed(tx, customer.ID)
	if err != nil {
		return false, err
	}
	return used.Add(amount).LessThanOrEqual(customer.CreditLimit), nil
}

// Check is CanMakeCreditPurchase returning *LimitExceededError on refusal.
// Call it inside the transaction that inserts the credit sale so the
// aggregate read and the insert cannot interleave with a concurrent sale.
func Check(tx *gorm.DB, customer *models.Customer, amount decimal.Decimal) error {
	used, err := TotalUsed(tx, customer.ID)
	if err != nil {
		return err
	}
	if used.Add(amount).GreaterThan(customer.CreditLimit) {
		return &LimitExceededError{
			CustomerID: customer.ID,
			Limit:      customer.CreditLimit,
			Used:       used,
			Requested:  amount,
		}
	}
	return nil
}
