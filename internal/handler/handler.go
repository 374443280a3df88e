// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"digicon-go/internal/apperr"
	"digicon-go/internal/model"

	"github.com/gin-gonic/gin"
)

// currentUser 从上下文中取出由 AuthMiddleware 注入的 User 对象。
func currentUser(c *gin.Context) (*model.User, bool) {
	userValue, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return nil, false
	}
	user, ok := userValue.(*model.User)
	if !ok || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "用户数据类型错误"})
		return nil, false
	}
	return user, true
}

// respondError 按错误类别映射 HTTP 状态码并返回统一的错误响应。
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	c.JSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
	})
}
