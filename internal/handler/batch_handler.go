// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"digicon-go/internal/apperr"
	"digicon-go/internal/service"
	"digicon-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// BatchHandler 负责处理媒体批次相关的 API 请求。
type BatchHandler struct {
	batchService  service.BatchService
	reportService service.ReportService
	policy        *service.AccessPolicy
}

// NewBatchHandler 创建一个新的 BatchHandler 实例。
func NewBatchHandler(batchService service.BatchService, reportService service.ReportService, policy *service.AccessPolicy) *BatchHandler {
	return &BatchHandler{
		batchService:  batchService,
		reportService: reportService,
		policy:        policy,
	}
}

// ListMine 返回当前用户拥有的全部批次。
func (h *BatchHandler) ListMine(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	batches, err := h.batchService.ListForOwner(user.ID)
	if err != nil {
		log.Errorf("ListMine: Failed to list batches for user '%s', error: %v", user.Username, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    batches,
	})
}

// Delete 删除路径参数指定的批次及其全部媒体项。
func (h *BatchHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	batchID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的批次 ID",
		})
		return
	}

	batch, err := h.batchService.FindByID(uint(batchID))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.batchService.DeleteBatch(user, batch); err != nil {
		log.Warnf("Delete: Failed to delete batch %d for user '%s', error: %v", batchID, user.Username, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "批次已删除",
	})
}

// ExportPDF 将批次的全部图片导出为一份 PDF 报告。
// 可见性规则：admin/editor/viewer 可导出任意批次，user 只能导出自己的批次。
func (h *BatchHandler) ExportPDF(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	batchID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的批次 ID",
		})
		return
	}

	batch, err := h.batchService.FindByID(uint(batchID))
	if err != nil {
		respondError(c, err)
		return
	}

	if !h.policy.CanView(user, batch) {
		respondError(c, apperr.Wrap(apperr.ErrForbidden, errors.New("没有权限导出此批次")))
		return
	}

	media, err := h.batchService.MediaInBatch(batch.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	pdfBytes, err := h.reportService.Render(c.Request.Context(), batch, media)
	if err != nil {
		log.Warnf("ExportPDF: Failed to render report for batch %s, error: %v", batch.ReferenceCode, err)
		respondError(c, err)
		return
	}

	log.Infof("ExportPDF: Report generated for batch %s, size: %d bytes", batch.ReferenceCode, len(pdfBytes))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="batch_%s.pdf"`, batch.ReferenceCode))
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}
