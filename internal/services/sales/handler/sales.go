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
	"gorm.io/gorm/clause"

	"sentra-retail/internal/credit"
	"sentra-retail/internal/database/models"
	"sentra-retail/internal/metrics"
	"sentra-retail/internal/sequence"
	"sentra-retail/internal/stock"
)

const (
	EventSaleCreated   = "sale.created"
	EventSalePaid      = "sale.paid"
	EventSaleCancelled = "sale.cancelled"
)

// --- Helpers ---
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type SalesHandler struct {
	db    *gorm.DB
	redis *redis.Client
	now   func() time.Time
}

func NewSalesHandler(db *gorm.DB, redisClient *redis.Client) *SalesHandler {
	return &SalesHandler{
		db:    db,
		redis: redisClient,
		now:   time.Now,
	}
}

// --- Requests / responses ---

type SaleItemRequest struct {
	ProductID int64            `json:"product_id" binding:"required"`
	Quantity  int              `json:"quantity" binding:"required"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type CreateSaleRequest struct {
	CustomerID    *int64            `json:"customer_id,omitempty"`
	UserID        int64             `json:"user_id" binding:"required"`
	Discount      decimal.Decimal   `json:"discount"`
	PaymentStatus string            `json:"payment_status"`
	PaidAmount    decimal.Decimal   `json:"paid_amount"`
	DueDate       *time.Time        `json:"due_date,omitempty"`
	Notes         *string           `json:"notes,omitempty"`
	Items         []SaleItemRequest `json:"items" binding:"required"`
}

type MarkSalePaidRequest struct {
	ID     int64           `json:"id"`
	Amount decimal.Decimal `json:"amount"`
}

type CancelSaleRequest struct {
	ID          int64   `json:"id"`
	CancelledBy int64   `json:"cancelled_by"`
	Reason      *string `json:"reason,omitempty"`
}

type ListSalesRequest struct {
	Status        *string `form:"status,omitempty"`
	PaymentStatus *string `form:"payment_status,omitempty"`
	CustomerID    *int64  `form:"customer_id,omitempty"`
	Today         bool    `form:"today,omitempty"`
	ThisMonth     bool    `form:"this_month,omitempty"`
	Overdue       bool    `form:"overdue,omitempty"`
	Page          int     `form:"page,default=1"`
	PageSize      int     `form:"page_size,default=10"`
}

type SaleDetailView struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	ProductCode  string          `json:"product_code,omitempty"`
	ProductName  string          `json:"product_name,omitempty"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Profit       decimal.Decimal `json:"profit"`
	ProfitMargin decimal.Decimal `json:"profit_margin"`
}

type SaleView struct {
	ID              int64            `json:"id"`
	InvoiceNumber   string           `json:"invoice_number"`
	CustomerID      *int64           `json:"customer_id,omitempty"`
	CustomerName    *string          `json:"customer_name,omitempty"`
	UserID          int64            `json:"user_id"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	Discount        decimal.Decimal  `json:"discount"`
	FinalAmount     decimal.Decimal  `json:"final_amount"`
	PaidAmount      decimal.Decimal  `json:"paid_amount"`
	ChangeAmount    decimal.Decimal  `json:"change_amount"`
	RemainingAmount decimal.Decimal  `json:"remaining_amount"`
	PaymentStatus   string           `json:"payment_status"`
	Status          string           `json:"status"`
	DueDate         *time.Time       `json:"due_date,omitempty"`
	IsOverdue       bool             `json:"is_overdue"`
	TotalItems      int              `json:"total_items"`
	Notes           *string          `json:"notes,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	Items           []SaleDetailView `json:"items"`
}

type SaleResponse struct {
	Success bool      `json:"success"`
	Message *string   `json:"message,omitempty"`
	Sale    *SaleView `json:"sale,omitempty"`
}

type ListSalesResponse struct {
	Success    bool       `json:"success"`
	Message    *string    `json:"message,omitempty"`
	Sales      []SaleView `json:"sales"`
	TotalCount int64      `json:"total_count"`
}

func (s *SalesHandler) saleToView(sale models.Sale) *SaleView {
	items := make([]SaleDetailView, 0, len(sale.Details))
	for _, d := range sale.Details {
		item := SaleDetailView{
			ID:           d.ID,
			ProductID:    d.ProductID,
			Quantity:     d.Quantity,
			UnitPrice:    d.UnitPrice,
			TotalPrice:   d.TotalPrice,
			Profit:       d.Profit(),
			ProfitMargin: d.ProfitMargin(),
		}
		if d.Product != nil {
			item.ProductCode = d.Product.ProductCode
			item.ProductName = d.Product.Name
		}
		items = append(items, item)
	}

	view := &SaleView{
		ID:              sale.ID,
		InvoiceNumber:   sale.InvoiceNumber,
		CustomerID:      sale.CustomerID,
		UserID:          sale.UserID,
		TotalAmount:     sale.TotalAmount,
		Discount:        sale.Discount,
		FinalAmount:     sale.FinalAmount,
		PaidAmount:      sale.PaidAmount,
		ChangeAmount:    sale.ChangeAmount,
		RemainingAmount: sale.RemainingAmount(),
		PaymentStatus:   sale.PaymentStatus,
		Status:          sale.Status,
		DueDate:         sale.DueDate,
		IsOverdue:       sale.IsOverdue(s.now()),
		TotalItems:      sale.TotalItems(),
		Notes:           sale.Notes,
		CreatedAt:       sale.CreatedAt,
		Items:           items,
	}
	if sale.Customer != nil {
		view.CustomerName = strPtr(sale.Customer.Name)
	}
	return view
}

// CreateSale creates an active sale and applies its stock effects in one
// transaction: every line reduces the product's stock, and any failure
// (insufficient stock, inactive product, credit refusal) rolls the whole
// document back with no partial stock changes.
func (s *SalesHandler) CreateSale(ctx context.Context, req *CreateSaleRequest) (*SaleResponse, error) {
	if req.UserID == 0 {
		return &SaleResponse{Success: false, Message: strPtr("user_id required")}, nil
	}
	if len(req.Items) == 0 {
		return &SaleResponse{Success: false, Message: strPtr("sale must have at least one item")}, nil
	}
	if req.Discount.IsNegative() {
		err := &models.ValidationError{Field: "discount", Reason: "must not be negative"}
		return &SaleResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = models.PaymentStatusUnpaid
	}
	switch paymentStatus {
	case models.PaymentStatusUnpaid, models.PaymentStatusPaid, models.PaymentStatusCredit:
	default:
		return &SaleResponse{Success: false, Message: strPtr("invalid payment_status")}, nil
	}

	if paymentStatus == models.PaymentStatusCredit {
		if req.CustomerID == nil {
			return &SaleResponse{Success: false, Message: strPtr("credit sales require a customer")}, nil
		}
		if req.DueDate == nil {
			return &SaleResponse{Success: false, Message: strPtr("credit sales require a due_date")}, nil
		}
	}

	var sale models.Sale
	var err error
	// Two creators can mint the same invoice number when their transactions
	// overlap. The unique index catches the collision and the attempt is
	// retried with a fresh number.
	for attempt := 0; attempt < 3; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := s.now()

			number, err := sequence.InvoiceNumber(tx, now)
			if err != nil {
				return err
			}

			total := decimal.Zero
			details := make([]models.SaleDetail, 0, len(req.Items))
			for _, item := range req.Items {
				product, err := stock.Reduce(tx, item.ProductID, item.Quantity, stock.Movement{
					ReferenceType: stock.RefTypeSale,
					ReferenceID:   number,
					CreatedBy:     req.UserID,
				})
				if err != nil {
					return err
				}
				if !product.IsActive {
					return &models.ValidationError{
						Field:  "product_id",
						Reason: fmt.Sprintf("product %s is inactive", product.ProductCode),
					}
				}

				unitPrice := product.RetailPrice
				if item.UnitPrice != nil {
					unitPrice = *item.UnitPrice
				}
				detail := models.SaleDetail{
					ProductID: product.ID,
					Quantity:  item.Quantity,
					UnitPrice: unitPrice,
					CreatedAt: now,
				}
				if err := detail.Normalize(); err != nil {
					return err
				}
				total = total.Add(detail.TotalPrice)
				details = append(details, detail)
			}

			discount := req.Discount
			if discount.GreaterThan(total) {
				discount = total
			}
			final := total.Sub(discount)

			paid := decimal.Zero
			change := decimal.Zero
			if paymentStatus == models.PaymentStatusPaid {
				paid = req.PaidAmount
				change = paid.Sub(final)
				if change.IsNegative() {
					change = decimal.Zero
				}
			}

			if paymentStatus == models.PaymentStatusCredit {
				var customer models.Customer
				if err := tx.First(&customer, *req.CustomerID).Error; err != nil {
					return err
				}
				if err := credit.Check(tx, &customer, final); err != nil {
					return err
				}
			}

			sale = models.Sale{
				InvoiceNumber: number,
				CustomerID:    req.CustomerID,
				UserID:        req.UserID,
				TotalAmount:   total,
				Discount:      discount,
				FinalAmount:   final,
				PaidAmount:    paid,
				ChangeAmount:  change,
				PaymentStatus: paymentStatus,
				DueDate:       req.DueDate,
				Status:        models.StatusActive,
				Notes:         req.Notes,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.Create(&sale).Error; err != nil {
				return err
			}

			for i := range details {
				details[i].SaleID = sale.ID
			}
			return tx.Create(&details).Error
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if err != nil {
		return &SaleResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	if err := s.db.WithContext(ctx).
		Preload("Details.Product").
		Preload("Customer").
		First(&sale, sale.ID).Error; err != nil {
		return &SaleResponse{Success: false, Message: strPtr("failed to reload sale")}, err
	}

	metrics.SalesCreatedTotal.Inc()

	s.publishSaleEvent(ctx, SaleEvent{
		EventType:     EventSaleCreated,
		SaleID:        sale.ID,
		InvoiceNumber: sale.InvoiceNumber,
		UserID:        sale.UserID,
		FinalAmount:   sale.FinalAmount.StringFixed(2),
		PaymentStatus: sale.PaymentStatus,
		Status:        sale.Status,
		Timestamp:     s.now(),
	})

	return &SaleResponse{
		Success: true,
		Message: strPtr("Sale created successfully"),
		Sale:    s.saleToView(sale),
	}, nil
}

// MarkSalePaid records payment on a non-cancelled sale. Stock is untouched;
// change is the overpayment, never negative.
func (s *SalesHandler) MarkSalePaid(ctx context.Context, req *MarkSalePaidRequest) (*SaleResponse, error) {
	if req.ID == 0 {
		return &SaleResponse{Success: false, Message: strPtr("sale id required")}, nil
	}
	if req.Amount.IsNegative() {
		err := &models.ValidationError{Field: "amount", Reason: "must not be negative"}
		return &SaleResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	var sale models.Sale
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&sale, req.ID).Error; err != nil {
			return err
		}

		if sale.Status == models.StatusCancelled {
			return &models.InvalidTransitionError{
				Document: "sale",
				Number:   sale.InvoiceNumber,
				Status:   sale.Status,
				Action:   "mark as paid",
			}
		}

		change := req.Amount.Sub(sale.FinalAmount)
		if change.IsNegative() {
			change = decimal.Zero
		}
		// Guarded update: only the payment columns, and only while the row
		// is still not cancelled. A cancel landing after the read can never
		// be overwritten by this write.
		res := tx.Model(&sale).
			Where("status <> ?", models.StatusCancelled).
			Updates(map[string]interface{}{
				"paid_amount":    req.Amount,
				"change_amount":  change,
				"payment_status": models.PaymentStatusPaid,
				"updated_at":     s.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &models.InvalidTransitionError{
				Document: "sale",
				Number:   sale.InvoiceNumber,
				Status:   models.StatusCancelled,
				Action:   "mark as paid",
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &SaleResponse{Success: false, Message: strPtr("Sale not found")}, nil
		}
		return &SaleResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	if err := s.db.WithContext(ctx).
		Preload("Details.Product").
		Preload("Customer").
		First(&sale, sale.ID).Error; err != nil {
		return &SaleResponse{Success: false, Message: strPtr("failed to reload sale")}, err
	}

	s.publishSaleEvent(ctx, SaleEvent{
		EventType:     EventSalePaid,
		SaleID:        sale.ID,
		InvoiceNumber: sale.InvoiceNumber,
		UserID:        sale.UserID,
		FinalAmount:   sale.FinalAmount.StringFixed(2),
		PaymentStatus: sale.PaymentStatus,
		Status:        sale.Status,
		Timestamp:     s.now(),
	})

	return &SaleResponse{
		Success: true,
		Message: strPtr("Payment recorded"),
		Sale:    s.saleToView(sale),
	}, nil
}

// CancelSale restores stock for every line and marks the sale cancelled.
// Only legal while the sale is active; restoring stock itself cannot fail.
func (s *SalesHandler) CancelSale(ctx context.Context, req *CancelSaleRequest) (*SaleResponse, error) {
	if req.ID == 0 {
		return &SaleResponse{Success: false, Message: strPtr("sale id required")}, nil
	}

	var sale models.Sale
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Details").
			First(&sale, req.ID).Error; err != nil {
			return err
		}

		if sale.Status != models.StatusActive {
			return &models.InvalidTransitionError{
				Document: "sale",
				Number:   sale.InvoiceNumber,
				Status:   sale.Status,
				Action:   "cancel",
			}
		}

		for _, detail := range sale.Details {
			if _, err := stock.Increase(tx, detail.ProductID, detail.Quantity, stock.Movement{
				ReferenceType: stock.RefTypeSaleCancel,
				ReferenceID:   sale.InvoiceNumber,
				CreatedBy:     req.CancelledBy,
			}); err != nil {
				return err
			}
		}

		sale.Status = models.StatusCancelled
		if req.Reason != nil {
			sale.Notes = req.Reason
		}
		sale.UpdatedAt = s.now()
		return tx.Save(&sale).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &SaleResponse{Success: false, Message: strPtr("Sale not found")}, nil
		}
		return &SaleResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	if err := s.db.WithContext(ctx).
		Preload("Details.Product").
		Preload("Customer").
		First(&sale, sale.ID).Error; err != nil {
		return &SaleResponse{Success: false, Message: strPtr("failed to reload sale")}, err
	}

	s.publishSaleEvent(ctx, SaleEvent{
		EventType:     EventSaleCancelled,
		SaleID:        sale.ID,
		InvoiceNumber: sale.InvoiceNumber,
		UserID:        req.CancelledBy,
		FinalAmount:   sale.FinalAmount.StringFixed(2),
		PaymentStatus: sale.PaymentStatus,
		Status:        sale.Status,
		Timestamp:     s.now(),
	})

	return &SaleResponse{
		Success: true,
		Message: strPtr("Sale cancelled"),
		Sale:    s.saleToView(sale),
	}, nil
}

func (s *SalesHandler) GetSale(ctx context.Context, id int64) (*SaleResponse, error) {
	if id == 0 {
		return &SaleResponse{Success: false, Message: strPtr("sale id required")}, nil
	}

	var sale models.Sale
	if err := s.db.WithContext(ctx).
		Preload("Details.Product").
		Preload("Customer").
		First(&sale, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &SaleResponse{Success: false, Message: strPtr("Sale not found")}, nil
		}
		return &SaleResponse{Success: false, Message: strPtr("Database error")}, err
	}

	return &SaleResponse{Success: true, Sale: s.saleToView(sale)}, nil
}

func (s *SalesHandler) ListSales(ctx context.Context, req *ListSalesRequest) (*ListSalesResponse, error) {
	query := s.db.WithContext(ctx).Model(&models.Sale{}).
		Preload("Details.Product").
		Preload("Customer")

	now := s.now()
	if req.Status != nil {
		query = query.Where("status = ?", *req.Status)
	}
	if req.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *req.PaymentStatus)
	}
	if req.CustomerID != nil {
		query = query.Where("customer_id = ?", *req.CustomerID)
	}
	if req.Today {
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		query = query.Where("created_at >= ? AND created_at < ?", start, start.AddDate(0, 0, 1))
	}
	if req.ThisMonth {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		query = query.Where("created_at >= ? AND created_at < ?", start, start.AddDate(0, 1, 0))
	}
	if req.Overdue {
		query = query.Where("payment_status = ? AND status = ? AND due_date < ?",
			models.PaymentStatusCredit, models.StatusActive, now)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return &ListSalesResponse{Success: false, Message: strPtr("Database error")}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	var sales []models.Sale
	if err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&sales).Error; err != nil {
		return &ListSalesResponse{Success: false, Message: strPtr("Database error")}, err
	}

	views := make([]SaleView, 0, len(sales))
	for _, sale := range sales {
		views = append(views, *s.saleToView(sale))
	}

	return &ListSalesResponse{Success: true, Sales: views, TotalCount: total}, nil
}

// -- Pub/Sub Related --
type SaleEvent struct {
	EventType     string    `json:"event_type"`
	SaleID        int64     `json:"sale_id"`
	InvoiceNumber string    `json:"invoice_number"`
	UserID        int64     `json:"user_id"`
	FinalAmount   string    `json:"final_amount"`
	PaymentStatus string    `json:"payment_status"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

func (s *SalesHandler) publishSaleEvent(ctx context.Context, event SaleEvent) error {
	if s.redis == nil {
		return nil
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := fmt.Sprintf("sales:events:%s", event.EventType)
	if err := s.redis.Publish(ctx, channel, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if err := s.redis.Publish(ctx, "sales:events:all", eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish to all channel: %w", err)
	}

	return nil
}
