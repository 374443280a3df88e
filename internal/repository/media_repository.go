// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"digicon-go/internal/model"

	"gorm.io/gorm"
)

// MediaRepository 接口定义了媒体项的持久化操作。
type MediaRepository interface {
	Create(media *model.Media) error
	FindByID(id uint) (*model.Media, error)
	FindByBatchID(batchID uint) ([]model.Media, error)
	FindByOwner(ownerID uint) ([]model.Media, error)
	Delete(media *model.Media) error
}

// mediaRepository 是 MediaRepository 接口的 GORM 实现。
type mediaRepository struct {
	db *gorm.DB
}

// NewMediaRepository 创建一个新的 MediaRepository 实例。
func NewMediaRepository(db *gorm.DB) MediaRepository {
	return &mediaRepository{db: db}
}

// Create 在数据库中创建一条媒体记录。
func (r *mediaRepository) Create(media *model.Media) error {
	return r.db.Create(media).Error
}

// FindByID 根据媒体 ID 查找媒体项。
func (r *mediaRepository) FindByID(id uint) (*model.Media, error) {
	var media model.Media
	err := r.db.First(&media, id).Error
	if err != nil {
		return nil, err
	}
	return &media, nil
}

// FindByBatchID 检索某个批次下的全部媒体项。
func (r *mediaRepository) FindByBatchID(batchID uint) ([]model.Media, error) {
	var media []model.Media
	err := r.db.Where("batch_id = ?", batchID).Order("id ASC").Find(&media).Error
	return media, err
}

// FindByOwner 检索某个用户的全部媒体项。
func (r *mediaRepository) FindByOwner(ownerID uint) ([]model.Media, error) {
	var media []model.Media
	err := r.db.Where("owner_id = ?", ownerID).Order("id DESC").Find(&media).Error
	return media, err
}

// Delete 删除一条媒体记录。
func (r *mediaRepository) Delete(media *model.Media) error {
	return r.db.Delete(media).Error
}
