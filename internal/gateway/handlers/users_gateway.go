package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	usershandler "sentra-retail/internal/services/users/handler"
)

type UsersHTTPHandler struct {
	users *usershandler.UsersHandler
}

func NewUsersHTTPHandler(users *usershandler.UsersHandler) *UsersHTTPHandler {
	return &UsersHTTPHandler{users: users}
}

// --- Authentication ---

func (h *UsersHTTPHandler) Register(c *gin.Context) {
	var req usershandler.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	resp, err := h.users.Register(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Registration failed")
		return
	}
	if !resp.Success {
		msg := "Registration failed"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusCreated, successResponse("User registered successfully", map[string]interface{}{
		"token":      resp.Token,
		"expires_at": resp.ExpiresAt,
		"user":       resp.User,
	}))
}

func (h *UsersHTTPHandler) Login(c *gin.Context) {
	var req usershandler.AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	resp, err := h.users.Authenticate(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Login failed")
		return
	}
	if !resp.Success {
		msg := "Invalid credentials"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusUnauthorized, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("Login successful", map[string]interface{}{
		"token":      resp.Token,
		"expires_at": resp.ExpiresAt,
		"user":       resp.User,
	}))
}

// --- User Management ---

func (h *UsersHTTPHandler) GetUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid user ID"))
		return
	}

	resp, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err, "Failed to get user")
		return
	}
	if !resp.Success {
		msg := "User not found"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusNotFound, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("User retrieved successfully", resp.User))
}

func (h *UsersHTTPHandler) UpdateUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid user ID"))
		return
	}

	var req usershandler.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}
	req.ID = userID

	resp, err := h.users.UpdateUser(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to update user")
		return
	}
	if !resp.Success {
		msg := "Failed to update user"
		if resp.Message != nil {
			msg = *resp.Message
		}
		c.JSON(http.StatusBadRequest, errorResponse(msg))
		return
	}

	c.JSON(http.StatusOK, successResponse("User updated successfully", resp.User))
}

func (h *UsersHTTPHandler) ListUsers(c *gin.Context) {
	var req usershandler.ListUsersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	resp, err := h.users.ListUsers(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, err, "Failed to list users")
		return
	}

	c.JSON(http.StatusOK, successWithMetaResponse("Users retrieved successfully", resp.Users, listMeta{
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalCount: resp.TotalCount,
	}))
}
