// Package apperr defines the sentinel errors shared across service and
// handler layers. Callers should use errors.Is to match these values.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation 客户端可修复的输入问题。
	ErrValidation = errors.New("validation error")
	// ErrNotFound 引用的实体不存在。
	ErrNotFound = errors.New("resource not found")
	// ErrForbidden 已认证但无权执行该操作。
	ErrForbidden = errors.New("forbidden")
	// ErrPersistence 存储层失败，包括编号冲突重试耗尽。
	ErrPersistence = errors.New("persistence error")
	// ErrIngestion 批量导入中途失败，已执行回滚。
	ErrIngestion = errors.New("ingestion error")
	// ErrEmptyBatch 对没有任何媒体项的批次请求报告。
	ErrEmptyBatch = errors.New("batch has no media")
)

// Validationf 构造一个带说明的校验错误。
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Wrap 将底层错误归入某个错误类别。
func Wrap(kind error, err error) error {
	return fmt.Errorf("%w: %v", kind, err)
}

// HTTPStatus 将错误类别映射为 HTTP 状态码。
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
