package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"sentra-retail/internal/database/models"
	"sentra-retail/internal/utils"
)

const (
	USER_CACHE_PREFIX = "user:"
	USER_CACHE_TTL    = 30 * time.Minute

	TokenTTL = 24 * time.Hour
)

// --- Helpers ---
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type UsersHandler struct {
	db    *gorm.DB
	redis *redis.Client
	now   func() time.Time
}

func NewUsersHandler(db *gorm.DB, redisClient *redis.Client) *UsersHandler {
	return &UsersHandler{
		db:    db,
		redis: redisClient,
		now:   time.Now,
	}
}

func (s *UsersHandler) invalidateUserCache(ctx context.Context, userIDs ...int64) {
	if s.redis == nil {
		return
	}
	for _, id := range userIDs {
		s.redis.Del(ctx, fmt.Sprintf("%s%d", USER_CACHE_PREFIX, id))
	}
}

// --- Requests / responses ---

type RegisterRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

type AuthenticateRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UpdateUserRequest struct {
	ID        int64   `json:"id"`
	Email     *string `json:"email,omitempty"`
	Firstname *string `json:"firstname,omitempty"`
	Lastname  *string `json:"lastname,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

type ListUsersRequest struct {
	Active   *bool `form:"active,omitempty"`
	Page     int   `form:"page,default=1"`
	PageSize int   `form:"page_size,default=10"`
}

type UserView struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Firstname string     `json:"firstname"`
	Lastname  string     `json:"lastname"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type AuthResponse struct {
	Success   bool       `json:"success"`
	Message   *string    `json:"message,omitempty"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	User      *UserView  `json:"user,omitempty"`
}

type UserResponse struct {
	Success bool      `json:"success"`
	Message *string   `json:"message,omitempty"`
	User    *UserView `json:"user,omitempty"`
}

type ListUsersResponse struct {
	Success    bool       `json:"success"`
	Message    *string    `json:"message,omitempty"`
	Users      []UserView `json:"users"`
	TotalCount int64      `json:"total_count"`
}

func userToView(user models.User) *UserView {
	return &UserView{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Firstname: user.Firstname,
		Lastname:  user.Lastname,
		IsActive:  user.IsActive,
		LastLogin: user.LastLogin,
		CreatedAt: user.CreatedAt,
	}
}

// --- Authentication & Registration ---

func (s *UsersHandler) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return &AuthResponse{
			Success: false,
			Message: strPtr("username, email, and password are required"),
		}, nil
	}

	var existing models.User
	if err := s.db.WithContext(ctx).
		Where("username = ? OR email = ?", req.Username, req.Email).
		First(&existing).Error; err == nil {
		return &AuthResponse{
			Success: false,
			Message: strPtr("username or email already exists"),
		}, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return &AuthResponse{
			Success: false,
			Message: strPtr("database error while checking existing user"),
		}, err
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return &AuthResponse{
			Success: false,
			Message: strPtr("error hashing password"),
		}, err
	}

	now := s.now()
	user := models.User{
		Username:  req.Username,
		Email:     req.Email,
		Password:  string(pwHash),
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return &AuthResponse{
			Success: false,
			Message: strPtr("error creating user"),
		}, err
	}

	token, exp, err := utils.GenerateToken(user.ID, user.Username, TokenTTL)
	if err != nil {
		return &AuthResponse{
			Success: false,
			Message: strPtr("error generating token"),
		}, err
	}

	return &AuthResponse{
		Success:   true,
		Message:   strPtr("user registered successfully"),
		Token:     token,
		ExpiresAt: &exp,
		User:      userToView(user),
	}, nil
}

func (s *UsersHandler) Authenticate(ctx context.Context, req *AuthenticateRequest) (*AuthResponse, error) {
	if req.Username == "" || req.Password == "" {
		return &AuthResponse{
			Success: false,
			Message: strPtr("username and password are required"),
		}, nil
	}

	var user models.User
	if err := s.db.WithContext(ctx).
		Where("username = ? AND is_active = ?", req.Username, true).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &AuthResponse{
				Success: false,
				Message: strPtr("invalid username or password"),
			}, nil
		}
		return &AuthResponse{
			Success: false,
			Message: strPtr("database error"),
		}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return &AuthResponse{
			Success: false,
			Message: strPtr("invalid username or password"),
		}, nil
	}

	token, exp, err := utils.GenerateToken(user.ID, user.Username, TokenTTL)
	if err != nil {
		return &AuthResponse{
			Success: false,
			Message: strPtr("error generating token"),
		}, err
	}

	now := s.now()
	user.LastLogin = &now
	s.db.WithContext(ctx).Save(&user)

	s.invalidateUserCache(ctx, user.ID)

	return &AuthResponse{
		Success:   true,
		Message:   strPtr("login successful"),
		Token:     token,
		ExpiresAt: &exp,
		User:      userToView(user),
	}, nil
}

// --- User Management ---

func (s *UsersHandler) GetUser(ctx context.Context, id int64) (*UserResponse, error) {
	if id == 0 {
		return &UserResponse{Success: false, Message: strPtr("user id required")}, nil
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &UserResponse{Success: false, Message: strPtr("user not found")}, nil
		}
		return &UserResponse{Success: false, Message: strPtr("database error")}, err
	}

	return &UserResponse{Success: true, User: userToView(user)}, nil
}

func (s *UsersHandler) UpdateUser(ctx context.Context, req *UpdateUserRequest) (*UserResponse, error) {
	if req.ID == 0 {
		return &UserResponse{Success: false, Message: strPtr("user id required")}, nil
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &UserResponse{Success: false, Message: strPtr("user not found")}, nil
		}
		return &UserResponse{Success: false, Message: strPtr("database error")}, err
	}

	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Firstname != nil {
		user.Firstname = *req.Firstname
	}
	if req.Lastname != nil {
		user.Lastname = *req.Lastname
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	user.UpdatedAt = s.now()

	if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
		return &UserResponse{Success: false, Message: strPtr("error updating user")}, err
	}

	s.invalidateUserCache(ctx, user.ID)

	return &UserResponse{
		Success: true,
		Message: strPtr("user updated successfully"),
		User:    userToView(user),
	}, nil
}

func (s *UsersHandler) ListUsers(ctx context.Context, req *ListUsersRequest) (*ListUsersResponse, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})

	if req.Active != nil {
		query = query.Where("is_active = ?", *req.Active)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return &ListUsersResponse{Success: false, Message: strPtr("database error")}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	var users []models.User
	if err := query.Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error; err != nil {
		return &ListUsersResponse{Success: false, Message: strPtr("database error")}, err
	}

	views := make([]UserView, 0, len(users))
	for _, user := range users {
		views = append(views, *userToView(user))
	}

	return &ListUsersResponse{Success: true, Users: views, TotalCount: total}, nil
}
