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

	"sentra-retail/internal/database/models"
	"sentra-retail/internal/metrics"
	"sentra-retail/internal/sequence"
	"sentra-retail/internal/stock"
)

const (
	EventPurchaseCreated   = "purchase.created"
	EventPurchasePaid      = "purchase.paid"
	EventPurchaseCancelled = "purchase.cancelled"
)

// --- Helpers ---
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type PurchasesHandler struct {
	db    *gorm.DB
	redis *redis.Client
	now   func() time.Time
}

func NewPurchasesHandler(db *gorm.DB, redisClient *redis.Client) *PurchasesHandler {
	return &PurchasesHandler{
		db:    db,
		redis: redisClient,
		now:   time.Now,
	}
}

// --- Requests / responses ---

type PurchaseItemRequest struct {
	ProductID int64           `json:"product_id" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type CreatePurchaseRequest struct {
	SupplierName  string                `json:"supplier_name" binding:"required"`
	UserID        int64                 `json:"user_id" binding:"required"`
	Discount      decimal.Decimal       `json:"discount"`
	PaymentStatus string                `json:"payment_status"`
	PaidAmount    decimal.Decimal       `json:"paid_amount"`
	PurchaseDate  *time.Time            `json:"purchase_date,omitempty"`
	DueDate       *time.Time            `json:"due_date,omitempty"`
	Notes         *string               `json:"notes,omitempty"`
	Items         []PurchaseItemRequest `json:"items" binding:"required"`
}

type MarkPurchasePaidRequest struct {
	ID     int64           `json:"id"`
	Amount decimal.Decimal `json:"amount"`
}

type CancelPurchaseRequest struct {
	ID          int64   `json:"id"`
	CancelledBy int64   `json:"cancelled_by"`
	Reason      *string `json:"reason,omitempty"`
}

type ListPurchasesRequest struct {
	Status        *string `form:"status,omitempty"`
	PaymentStatus *string `form:"payment_status,omitempty"`
	Today         bool    `form:"today,omitempty"`
	ThisMonth     bool    `form:"this_month,omitempty"`
	Overdue       bool    `form:"overdue,omitempty"`
	Page          int     `form:"page,default=1"`
	PageSize      int     `form:"page_size,default=10"`
}

type PurchaseDetailView struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductCode string          `json:"product_code,omitempty"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

type PurchaseView struct {
	ID              int64                `json:"id"`
	PurchaseNumber  string               `json:"purchase_number"`
	SupplierName    string               `json:"supplier_name"`
	UserID          int64                `json:"user_id"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
	Discount        decimal.Decimal      `json:"discount"`
	FinalAmount     decimal.Decimal      `json:"final_amount"`
	PaidAmount      decimal.Decimal      `json:"paid_amount"`
	RemainingAmount decimal.Decimal      `json:"remaining_amount"`
	PaymentStatus   string               `json:"payment_status"`
	Status          string               `json:"status"`
	PurchaseDate    time.Time            `json:"purchase_date"`
	DueDate         *time.Time           `json:"due_date,omitempty"`
	IsOverdue       bool                 `json:"is_overdue"`
	TotalItems      int                  `json:"total_items"`
	Notes           *string              `json:"notes,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	Items           []PurchaseDetailView `json:"items"`
}

type PurchaseResponse struct {
	Success  bool          `json:"success"`
	Message  *string       `json:"message,omitempty"`
	Purchase *PurchaseView `json:"purchase,omitempty"`
}

type ListPurchasesResponse struct {
	Success    bool           `json:"success"`
	Message    *string        `json:"message,omitempty"`
	Purchases  []PurchaseView `json:"purchases"`
	TotalCount int64          `json:"total_count"`
}

func (s *PurchasesHandler) purchaseToView(purchase models.Purchase) *PurchaseView {
	items := make([]PurchaseDetailView, 0, len(purchase.Details))
	for _, d := range purchase.Details {
		item := PurchaseDetailView{
			ID:         d.ID,
			ProductID:  d.ProductID,
			Quantity:   d.Quantity,
			UnitPrice:  d.UnitPrice,
			TotalPrice: d.TotalPrice,
		}
		if d.Product != nil {
			item.ProductCode = d.Product.ProductCode
			item.ProductName = d.Product.Name
		}
		items = append(items, item)
	}

	return &PurchaseView{
		ID:              purchase.ID,
		PurchaseNumber:  purchase.PurchaseNumber,
		SupplierName:    purchase.SupplierName,
		UserID:          purchase.UserID,
		TotalAmount:     purchase.TotalAmount,
		Discount:        purchase.Discount,
		FinalAmount:     purchase.FinalAmount,
		PaidAmount:      purchase.PaidAmount,
		RemainingAmount: purchase.RemainingAmount(),
		PaymentStatus:   purchase.PaymentStatus,
		Status:          purchase.Status,
		PurchaseDate:    purchase.PurchaseDate,
		DueDate:         purchase.DueDate,
		IsOverdue:       purchase.IsOverdue(s.now()),
		TotalItems:      purchase.TotalItems(),
		Notes:           purchase.Notes,
		CreatedAt:       purchase.CreatedAt,
		Items:           items,
	}
}

// CreatePurchase creates an active purchase and increases stock for every
// line in one transaction. Each line also refreshes the product's purchase
// price to the latest unit price paid.
func (s *PurchasesHandler) CreatePurchase(ctx context.Context, req *CreatePurchaseRequest) (*PurchaseResponse, error) {
	if req.SupplierName == "" {
		return &PurchaseResponse{Success: false, Message: strPtr("supplier_name required")}, nil
	}
	if req.UserID == 0 {
		return &PurchaseResponse{Success: false, Message: strPtr("user_id required")}, nil
	}
	if len(req.Items) == 0 {
		return &PurchaseResponse{Success: false, Message: strPtr("purchase must have at least one item")}, nil
	}
	if req.Discount.IsNegative() {
		err := &models.ValidationError{Field: "discount", Reason: "must not be negative"}
		return &PurchaseResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = models.PaymentStatusUnpaid
	}
	switch paymentStatus {
	case models.PaymentStatusUnpaid, models.PaymentStatusPaid, models.PaymentStatusCredit:
	default:
		return &PurchaseResponse{Success: false, Message: strPtr("invalid payment_status")}, nil
	}
	if paymentStatus == models.PaymentStatusCredit && req.DueDate == nil {
		return &PurchaseResponse{Success: false, Message: strPtr("credit purchases require a due_date")}, nil
	}

	var purchase models.Purchase
	var err error
	// Same collision handling as sale creation: a duplicate purchase number
	// from an overlapping creator is retried with a fresh one.
	for attempt := 0; attempt < 3; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := s.now()

			number, err := sequence.PurchaseNumber(tx, now)
			if err != nil {
				return err
			}

			total := decimal.Zero
			details := make([]models.PurchaseDetail, 0, len(req.Items))
			for _, item := range req.Items {
				detail := models.PurchaseDetail{
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
					UnitPrice: item.UnitPrice,
					CreatedAt: now,
				}
				if err := detail.Normalize(); err != nil {
					return err
				}

				product, err := stock.Increase(tx, item.ProductID, item.Quantity, stock.Movement{
					ReferenceType: stock.RefTypePurchase,
					ReferenceID:   number,
					CreatedBy:     req.UserID,
				})
				if err != nil {
					return err
				}

				// Latest purchase price becomes the product's cost basis.
				product.PurchasePrice = item.UnitPrice
				if err := tx.Save(product).Error; err != nil {
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
			if paymentStatus == models.PaymentStatusPaid {
				paid = req.PaidAmount
			}

			purchaseDate := now
			if req.PurchaseDate != nil {
				purchaseDate = *req.PurchaseDate
			}

			purchase = models.Purchase{
				PurchaseNumber: number,
				SupplierName:   req.SupplierName,
				UserID:         req.UserID,
				TotalAmount:    total,
				Discount:       discount,
				FinalAmount:    final,
				PaidAmount:     paid,
				PaymentStatus:  paymentStatus,
				PurchaseDate:   purchaseDate,
				DueDate:        req.DueDate,
				Status:         models.StatusActive,
				Notes:          req.Notes,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.Create(&purchase).Error; err != nil {
				return err
			}

			for i := range details {
				details[i].PurchaseID = purchase.ID
			}
			return tx.Create(&details).Error
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if err != nil {
		return &PurchaseResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	if err := s.db.WithContext(ctx).
		Preload("Details.Product").
		First(&purchase, purchase.ID).Error; err != nil {
		return &PurchaseResponse{Success: false, Message: strPtr("failed to reload purchase")}, err
	}

	metrics.PurchasesCreatedTotal.Inc()

	s.publishPurchaseEvent(ctx, PurchaseEvent{
		EventType:      EventPurchaseCreated,
		PurchaseID:     purchase.ID,
		PurchaseNumber: purchase.PurchaseNumber,
		UserID:         purchase.UserID,
		FinalAmount:    purchase.FinalAmount.StringFixed(2),
		PaymentStatus:  purchase.PaymentStatus,
		Status:         purchase.Status,
		Timestamp:      s.now(),
	})

	return &PurchaseResponse{
		Success:  true,
		Message:  strPtr("Purchase created successfully"),
		Purchase: s.purchaseToView(purchase),
	}, nil
}

// MarkPurchasePaid records payment on a non-cancelled purchase. Unlike
// sales there is no change amount.
func (s *PurchasesHandler) MarkPurchasePaid(ctx context.Context, req *MarkPurchasePaidRequest) (*PurchaseResponse, error) {
	if req.ID == 0 {
		return &PurchaseResponse{Success: false, Message: strPtr("purchase id required")}, nil
	}
	if req.Amount.IsNegative() {
		err := &models.ValidationError{Field: "amount", Reason: "must not be negative"}
		return &PurchaseResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	var purchase models.Purchase
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&purchase, req.ID).Error; err != nil {
			return err
		}

		if purchase.Status == models.StatusCancelled {
			return &models.InvalidTransitionError{
				Document: "purchase",
				Number:   purchase.PurchaseNumber,
				Status:   purchase.Status,
				Action:   "mark as paid",
			}
		}

		// Guarded update: payment columns only, refused once the row is
		// cancelled, so a concurrent cancel is never overwritten.
		res := tx.Model(&purchase).
			Where("status <> ?", models.StatusCancelled).
			Updates(map[string]interface{}{
				"paid_amount":    req.Amount,
				"payment_status": models.PaymentStatusPaid,
				"updated_at":     s.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &models.InvalidTransitionError{
				Document: "purchase",
				Number:   purchase.PurchaseNumber,
				Status:   models.StatusCancelled,
				Action:   "mark as paid",
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &PurchaseResponse{Success: false, Message: strPtr("Purchase not found")}, nil
		}
		return &PurchaseResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	if err := s.db.WithContext(ctx).
		Preload("Details.Product").
		First(&purchase, purchase.ID).Error; err != nil {
		return &PurchaseResponse{Success: false, Message: strPtr("failed to reload purchase")}, err
	}

	s.publishPurchaseEvent(ctx, PurchaseEvent{
		EventType:      EventPurchasePaid,
		PurchaseID:     purchase.ID,
		PurchaseNumber: purchase.PurchaseNumber,
		UserID:         purchase.UserID,
		FinalAmount:    purchase.FinalAmount.StringFixed(2),
		PaymentStatus:  purchase.PaymentStatus,
		Status:         purchase.Status,
		Timestamp:      s.now(),
	})

	return &PurchaseResponse{
		Success:  true,
		Message:  strPtr("Payment recorded"),
		Purchase: s.purchaseToView(purchase),
	}, nil
}

// CancelPurchase removes the purchased quantities from stock and marks the
// purchase cancelled. Unlike sale cancellation this can fail: if any line's
// product has since been sold below the purchased quantity, the whole
// cancellation is rejected and no stock changes.
func (s *PurchasesHandler) CancelPurchase(ctx context.Context, req *CancelPurchaseRequest) (*PurchaseResponse, error) {
	if req.ID == 0 {
		return &PurchaseResponse{Success: false, Message: strPtr("purchase id required")}, nil
	}

	var purchase models.Purchase
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Details").
			First(&purchase, req.ID).Error; err != nil {
			return err
		}

		if purchase.Status != models.StatusActive {
			return &models.InvalidTransitionError{
				Document: "purchase",
				Number:   purchase.PurchaseNumber,
				Status:   purchase.Status,
				Action:   "cancel",
			}
		}

		// Each Reduce locks its product row and fails on shortage, and the
		// transaction rolls every previous line back, so the cancellation
		// is all-or-nothing.
		for _, detail := range purchase.Details {
			if _, err := stock.Reduce(tx, detail.ProductID, detail.Quantity, stock.Movement{
				ReferenceType: stock.RefTypePurchaseCancel,
				ReferenceID:   purchase.PurchaseNumber,
				CreatedBy:     req.CancelledBy,
			}); err != nil {
				return err
			}
		}

		purchase.Status = models.StatusCancelled
		if req.Reason != nil {
			purchase.Notes = req.Reason
		}
		purchase.UpdatedAt = s.now()
		return tx.Save(&purchase).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &PurchaseResponse{Success: false, Message: strPtr("Purchase not found")}, nil
		}
		return &PurchaseResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	if err := s.db.WithContext(ctx).
		Preload("Details.Product").
		First(&purchase, purchase.ID).Error; err != nil {
		return &PurchaseResponse{Success: false, Message: strPtr("failed to reload purchase")}, err
	}

	s.publishPurchaseEvent(ctx, PurchaseEvent{
		EventType:      EventPurchaseCancelled,
		PurchaseID:     purchase.ID,
		PurchaseNumber: purchase.PurchaseNumber,
		UserID:         req.CancelledBy,
		FinalAmount:    purchase.FinalAmount.StringFixed(2),
		PaymentStatus:  purchase.PaymentStatus,
		Status:         purchase.Status,
		Timestamp:      s.now(),
	})

	return &PurchaseResponse{
		Success:  true,
		Message:  strPtr("Purchase cancelled"),
		Purchase: s.purchaseToView(purchase),
	}, nil
}

func (s *PurchasesHandler) GetPurchase(ctx context.Context, id int64) (*PurchaseResponse, error) {
	if id == 0 {
		return &PurchaseResponse{Success: false, Message: strPtr("purchase id required")}, nil
	}

	var purchase models.Purchase
	if err := s.db.WithContext(ctx).
		Preload("Details.Product").
		First(&purchase, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &PurchaseResponse{Success: false, Message: strPtr("Purchase not found")}, nil
		}
		return &PurchaseResponse{Success: false, Message: strPtr("Database error")}, err
	}

	return &PurchaseResponse{Success: true, Purchase: s.purchaseToView(purchase)}, nil
}

func (s *PurchasesHandler) ListPurchases(ctx context.Context, req *ListPurchasesRequest) (*ListPurchasesResponse, error) {
	query := s.db.WithContext(ctx).Model(&models.Purchase{}).
		Preload("Details.Product")

	now := s.now()
	if req.Status != nil {
		query = query.Where("status = ?", *req.Status)
	}
	if req.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *req.PaymentStatus)
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
		return &ListPurchasesResponse{Success: false, Message: strPtr("Database error")}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	var purchases []models.Purchase
	if err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&purchases).Error; err != nil {
		return &ListPurchasesResponse{Success: false, Message: strPtr("Database error")}, err
	}

	views := make([]PurchaseView, 0, len(purchases))
	for _, purchase := range purchases {
		views = append(views, *s.purchaseToView(purchase))
	}

	return &ListPurchasesResponse{Success: true, Purchases: views, TotalCount: total}, nil
}

// -- Pub/Sub Related --
type PurchaseEvent struct {
	EventType      string    `json:"event_type"`
	PurchaseID     int64     `json:"purchase_id"`
	PurchaseNumber string    `json:"purchase_number"`
	UserID         int64     `json:"user_id"`
	FinalAmount    string    `json:"final_amount"`
	PaymentStatus  string    `json:"payment_status"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

func (s *PurchasesHandler) publishPurchaseEvent(ctx context.Context, event PurchaseEvent) error {
	if s.redis == nil {
		return nil
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := fmt.Sprintf("purchases:events:%s", event.EventType)
	if err := s.redis.Publish(ctx, channel, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if err := s.redis.Publish(ctx, "purchases:events:all", eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish to all channel: %w", err)
	}

	return nil
}
