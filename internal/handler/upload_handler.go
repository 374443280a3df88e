// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"digicon-go/internal/service"
	"digicon-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理文件上传和批量导入的 API 请求。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// Upload 处理单文件上传。表单字段：
//
//	file              必填，上传的文件
//	title             可选，媒体标题，缺省为文件名
//	batch_referral_id 可选，按引用编号挂接到已有批次（查不到时静默忽略）
//	batch_title       可选，无匹配批次时按该标题新建批次
func (h *UploadHandler) Upload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "缺少上传文件：file 字段为必填",
		})
		return
	}

	title := c.PostForm("title")
	batchCode := c.PostForm("batch_referral_id")
	batchTitle := c.PostForm("batch_title")

	media, err := h.uploadService.UploadSingle(c.Request.Context(), user, file, title, batchCode, batchTitle)
	if err != nil {
		log.Errorf("Upload: Failed to upload file '%s' for user '%s', error: %v", file.Filename, user.Username, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "上传成功",
		"data":    media,
	})
}

// BatchUpload 处理批量导入。表单字段：
//
//	title   必填，批次标题
//	files[] 必填，至少达到配置的最少文件数
//
// 全有或全无：任何一步失败都不会留下部分可见的批次。
func (h *UploadHandler) BatchUpload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的 multipart 表单",
		})
		return
	}
	files := form.File["files[]"]
	title := c.PostForm("title")

	result, err := h.uploadService.Ingest(c.Request.Context(), user, title, files)
	if err != nil {
		log.Warnf("BatchUpload: Ingest failed for user '%s', error: %v", user.Username, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "批量导入成功",
		"data":    result,
	})
}

// AddToBatch 向调用者拥有的批次追加文件。表单字段：
//
//	batch_id 必填，目标批次 ID
//	files[]  必填，要追加的文件，无最少数量限制
func (h *UploadHandler) AddToBatch(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	batchID, err := strconv.ParseUint(c.PostForm("batch_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的 batch_id",
		})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的 multipart 表单",
		})
		return
	}
	files := form.File["files[]"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "缺少上传文件：files[] 字段为必填",
		})
		return
	}

	created, err := h.uploadService.AddToOwnedBatch(c.Request.Context(), user, uint(batchID), files)
	if err != nil {
		log.Warnf("AddToBatch: Failed for user '%s', batchID: %d, error: %v", user.Username, batchID, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "追加成功",
		"data":    created,
	})
}

// AddImagesToBatch 向路径参数指定的批次追加文件，不校验归属关系。
// 表单字段 images 为必填的文件列表。
func (h *UploadHandler) AddImagesToBatch(c *gin.Context) {
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

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的 multipart 表单",
		})
		return
	}
	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "缺少上传文件：images 字段为必填",
		})
		return
	}

	created, err := h.uploadService.AddToBatchByID(c.Request.Context(), user, uint(batchID), files)
	if err != nil {
		log.Warnf("AddImagesToBatch: Failed for user '%s', batchID: %d, error: %v", user.Username, batchID, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "追加成功",
		"data":    created,
	})
}
