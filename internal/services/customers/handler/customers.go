package handler

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sentra-retail/internal/credit"
	"sentra-retail/internal/database/models"
	"sentra-retail/internal/sequence"
)

// --- Helpers ---
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type CustomersHandler struct {
	db    *gorm.DB
	redis *redis.Client
	now   func() time.Time
}

func NewCustomersHandler(db *gorm.DB, redisClient *redis.Client) *CustomersHandler {
	return &CustomersHandler{
		db:    db,
		redis: redisClient,
		now:   time.Now,
	}
}

// --- Requests / responses ---

type CreateCustomerRequest struct {
	Name        string          `json:"name" binding:"required"`
	Phone       *string         `json:"phone,omitempty"`
	Email       *string         `json:"email,omitempty"`
	Address     *string         `json:"address,omitempty"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

type UpdateCustomerRequest struct {
	ID          int64            `json:"id"`
	Name        *string          `json:"name,omitempty"`
	Phone       *string          `json:"phone,omitempty"`
	Email       *string          `json:"email,omitempty"`
	Address     *string          `json:"address,omitempty"`
	CreditLimit *decimal.Decimal `json:"credit_limit,omitempty"`
}

type CheckCreditRequest struct {
	CustomerID int64           `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type ListCustomersRequest struct {
	Search   *string `form:"search,omitempty"`
	Page     int     `form:"page,default=1"`
	PageSize int     `form:"page_size,default=10"`
}

type CustomerView struct {
	ID              int64           `json:"id"`
	CustomerCode    string          `json:"customer_code"`
	Name            string          `json:"name"`
	Phone           *string         `json:"phone,omitempty"`
	Email           *string         `json:"email,omitempty"`
	Address         *string         `json:"address,omitempty"`
	CreditLimit     decimal.Decimal `json:"credit_limit"`
	CreditUsed      decimal.Decimal `json:"credit_used"`
	CreditRemaining decimal.Decimal `json:"credit_remaining"`
	CreatedAt       time.Time       `json:"created_at"`
}

type CustomerResponse struct {
	Success  bool          `json:"success"`
	Message  *string       `json:"message,omitempty"`
	Customer *CustomerView `json:"customer,omitempty"`
}

type ListCustomersResponse struct {
	Success    bool           `json:"success"`
	Message    *string        `json:"message,omitempty"`
	Customers  []CustomerView `json:"customers"`
	TotalCount int64          `json:"total_count"`
}

type CheckCreditResponse struct {
	Success   bool            `json:"success"`
	Message   *string         `json:"message,omitempty"`
	Allowed   bool            `json:"allowed"`
	Limit     decimal.Decimal `json:"limit"`
	Used      decimal.Decimal `json:"used"`
	Remaining decimal.Decimal `json:"remaining"`
}

// customerToView computes the credit position from live sales data, so
// the used amount always reflects cancellations and payments made since.
func (h *CustomersHandler) customerToView(ctx context.Context, customer models.Customer) (*CustomerView, error) {
	used, err := credit.TotalUsed(h.db.WithContext(ctx), customer.ID)
	if err != nil {
		return nil, err
	}
	remaining := customer.CreditLimit.Sub(used)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &CustomerView{
		ID:              customer.ID,
		CustomerCode:    customer.CustomerCode,
		Name:            customer.Name,
		Phone:           customer.Phone,
		Email:           customer.Email,
		Address:         customer.Address,
		CreditLimit:     customer.CreditLimit,
		CreditUsed:      used,
		CreditRemaining: remaining,
		CreatedAt:       customer.CreatedAt,
	}, nil
}

func (h *CustomersHandler) CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*CustomerResponse, error) {
	if req.Name == "" {
		return &CustomerResponse{Success: false, Message: strPtr("name required")}, nil
	}
	if req.CreditLimit.IsNegative() {
		err := &models.ValidationError{Field: "credit_limit", Reason: "must not be negative"}
		return &CustomerResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	var customer models.Customer
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := sequence.CustomerCode(tx)
		if err != nil {
			return err
		}

		now := h.now()
		customer = models.Customer{
			CustomerCode: code,
			Name:         req.Name,
			Phone:        req.Phone,
			Email:        req.Email,
			Address:      req.Address,
			CreditLimit:  req.CreditLimit,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.Create(&customer).Error
	})
	if err != nil {
		return &CustomerResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	view, err := h.customerToView(ctx, customer)
	if err != nil {
		return &CustomerResponse{Success: false, Message: strPtr("Database error")}, err
	}
	return &CustomerResponse{
		Success:  true,
		Message:  strPtr("Customer created successfully"),
		Customer: view,
	}, nil
}

func (h *CustomersHandler) GetCustomer(ctx context.Context, id int64) (*CustomerResponse, error) {
	if id == 0 {
		return &CustomerResponse{Success: false, Message: strPtr("customer id required")}, nil
	}

	var customer models.Customer
	if err := h.db.WithContext(ctx).First(&customer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &CustomerResponse{Success: false, Message: strPtr("Customer not found")}, nil
		}
		return &CustomerResponse{Success: false, Message: strPtr("Database error")}, err
	}

	view, err := h.customerToView(ctx, customer)
	if err != nil {
		return &CustomerResponse{Success: false, Message: strPtr("Database error")}, err
	}
	return &CustomerResponse{Success: true, Customer: view}, nil
}

func (h *CustomersHandler) UpdateCustomer(ctx context.Context, req *UpdateCustomerRequest) (*CustomerResponse, error) {
	if req.ID == 0 {
		return &CustomerResponse{Success: false, Message: strPtr("customer id required")}, nil
	}

	var customer models.Customer
	if err := h.db.WithContext(ctx).First(&customer, req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &CustomerResponse{Success: false, Message: strPtr("Customer not found")}, nil
		}
		return &CustomerResponse{Success: false, Message: strPtr("Database error")}, err
	}

	if req.Name != nil {
		customer.Name = *req.Name
	}
	if req.Phone != nil {
		customer.Phone = req.Phone
	}
	if req.Email != nil {
		customer.Email = req.Email
	}
	if req.Address != nil {
		customer.Address = req.Address
	}
	if req.CreditLimit != nil {
		if req.CreditLimit.IsNegative() {
			err := &models.ValidationError{Field: "credit_limit", Reason: "must not be negative"}
			return &CustomerResponse{Success: false, Message: strPtr(err.Error())}, err
		}
		// Lowering the limit below current usage is allowed. Existing
		// credit sales stand, the customer just cannot add new ones.
		customer.CreditLimit = *req.CreditLimit
	}
	customer.UpdatedAt = h.now()

	if err := h.db.WithContext(ctx).Save(&customer).Error; err != nil {
		return &CustomerResponse{Success: false, Message: strPtr("Failed to update customer")}, err
	}

	view, err := h.customerToView(ctx, customer)
	if err != nil {
		return &CustomerResponse{Success: false, Message: strPtr("Database error")}, err
	}
	return &CustomerResponse{
		Success:  true,
		Message:  strPtr("Customer updated successfully"),
		Customer: view,
	}, nil
}

func (h *CustomersHandler) ListCustomers(ctx context.Context, req *ListCustomersRequest) (*ListCustomersResponse, error) {
	query := h.db.WithContext(ctx).Model(&models.Customer{})

	if req.Search != nil && *req.Search != "" {
		pattern := "%" + *req.Search + "%"
		query = query.Where("name ILIKE ? OR customer_code ILIKE ? OR phone ILIKE ?",
			pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return &ListCustomersResponse{Success: false, Message: strPtr("Database error")}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	var customers []models.Customer
	if err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&customers).Error; err != nil {
		return &ListCustomersResponse{Success: false, Message: strPtr("Database error")}, err
	}

	views := make([]CustomerView, 0, len(customers))
	for _, customer := range customers {
		view, err := h.customerToView(ctx, customer)
		if err != nil {
			return &ListCustomersResponse{Success: false, Message: strPtr("Database error")}, err
		}
		views = append(views, *view)
	}

	return &ListCustomersResponse{Success: true, Customers: views, TotalCount: total}, nil
}

// CheckCredit answers whether the customer could put the given amount on
// credit right now. Advisory only, sale creation re-checks inside its own
// transaction.
func (h *CustomersHandler) CheckCredit(ctx context.Context, req *CheckCreditRequest) (*CheckCreditResponse, error) {
	if req.CustomerID == 0 {
		return &CheckCreditResponse{Success: false, Message: strPtr("customer_id required")}, nil
	}
	if req.Amount.IsNegative() {
		err := &models.ValidationError{Field: "amount", Reason: "must not be negative"}
		return &CheckCreditResponse{Success: false, Message: strPtr(err.Error())}, err
	}

	var customer models.Customer
	if err := h.db.WithContext(ctx).First(&customer, req.CustomerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &CheckCreditResponse{Success: false, Message: strPtr("Customer not found")}, nil
		}
		return &CheckCreditResponse{Success: false, Message: strPtr("Database error")}, err
	}

	used, err := credit.TotalUsed(h.db.WithContext(ctx), customer.ID)
	if err != nil {
		return &CheckCreditResponse{Success: false, Message: strPtr("Database error")}, err
	}

	remaining := customer.CreditLimit.Sub(used)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return &CheckCreditResponse{
		Success:   true,
		Allowed:   used.Add(req.Amount).LessThanOrEqual(customer.CreditLimit),
		Limit:     customer.CreditLimit,
		Used:      used,
		Remaining: remaining,
	}, nil
}
