// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"digicon-go/internal/service"
	"digicon-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// MediaHandler 负责处理单个媒体项相关的 API 请求。
type MediaHandler struct {
	mediaService service.MediaService
}

// NewMediaHandler 创建一个新的 MediaHandler 实例。
func NewMediaHandler(mediaService service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// ListMine 返回当前用户拥有的全部媒体项（含临时访问链接）。
func (h *MediaHandler) ListMine(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	media, err := h.mediaService.ListForOwner(c.Request.Context(), user.ID)
	if err != nil {
		log.Errorf("ListMine: Failed to list media for user '%s', error: %v", user.Username, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    media,
	})
}

// Delete 删除路径参数指定的媒体项及其原始文件。
func (h *MediaHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	mediaID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的媒体 ID",
		})
		return
	}

	if err := h.mediaService.DeleteMedia(c.Request.Context(), user, uint(mediaID)); err != nil {
		log.Warnf("Delete: Failed to delete media %d for user '%s', error: %v", mediaID, user.Username, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "媒体项已删除",
	})
}
