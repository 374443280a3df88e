// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"digicon-go/internal/service"
	"digicon-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理用户相关的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterRequest 定义了用户注册 API 的请求体结构。
type RegisterRequest struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required,min=6"`
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
}

// Register 处理用户注册请求。注册成功后用户会分得一个员工编号。
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：用户名和密码（至少6位）不能为空",
		})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req.Username, req.Password, req.FullName, req.PhoneNumber)
	if err != nil {
		log.Warnf("Register: Failed to register user '%s', error: %v", req.Username, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "注册成功",
		"data": gin.H{
			"user_id":       user.ID,
			"username":      user.Username,
			"employee_code": user.EmployeeCode,
		},
	})
}

// Me 返回当前登录用户的详细信息。
func (h *UserHandler) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    user,
	})
}

// UpdateProfile 处理用户资料更新请求（multipart 表单，头像文件可选）。
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	update := service.ProfileUpdate{}
	if fullName, exists := c.GetPostForm("full_name"); exists {
		update.FullName = &fullName
	}
	if phoneNumber, exists := c.GetPostForm("phone_number"); exists {
		update.PhoneNumber = &phoneNumber
	}
	if photo, err := c.FormFile("profile_photo"); err == nil {
		update.Photo = photo
	}

	updated, err := h.userService.UpdateProfile(c.Request.Context(), user, update)
	if err != nil {
		log.Errorf("UpdateProfile: Failed to update profile for '%s', error: %v", user.Username, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "资料更新成功",
		"data":    updated,
	})
}

// ChangePasswordRequest 定义了修改密码 API 的请求体结构。
type ChangePasswordRequest struct {
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ChangePassword 处理当前用户自助修改密码。
func (h *UserHandler) ChangePassword(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：new_password 不能为空且至少6位",
		})
		return
	}

	if err := h.userService.ChangePassword(user, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "密码修改成功",
	})
}

// ResetPasswordRequest 定义了重置密码 API 的请求体结构。
type ResetPasswordRequest struct {
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// ResetPassword 处理协助重置指定用户的密码。
func (h *UserHandler) ResetPassword(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的用户 ID",
		})
		return
	}

	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：new_password 和 confirm_password 不能为空",
		})
		return
	}

	if err := h.userService.ResetPassword(uint(userID), req.NewPassword, req.ConfirmPassword); err != nil {
		log.Warnf("ResetPassword: Failed to reset password for user %d, error: %v", userID, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "密码重置成功",
	})
}

// ListUsers 返回全部用户列表（需要管理员权限）。
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.ListUsers()
	if err != nil {
		log.Error("ListUsers: Failed to list users", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    users,
	})
}
