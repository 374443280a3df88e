// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"

	"digicon-go/internal/identifier"
	"digicon-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BatchRepository 接口定义了媒体批次的持久化操作。
type BatchRepository interface {
	// Create 在一个事务内为批次分配引用编号并插入记录。
	Create(ctx context.Context, batch *model.MediaBatch) error
	// CreateWithMedia 在同一个事务内创建批次及其全部媒体项。
	// 任何一步失败都会整体回滚，不会留下部分可见的批次。
	CreateWithMedia(ctx context.Context, batch *model.MediaBatch, media []*model.Media) error
	FindByID(id uint) (*model.MediaBatch, error)
	FindByReferenceCode(code string) (*model.MediaBatch, error)
	FindByOwnerAndTitle(ownerID uint, title string) (*model.MediaBatch, error)
	FindByOwner(ownerID uint) ([]model.MediaBatch, error)
	// Delete 删除批次并级联删除其全部媒体项。对零个或部分子项的批次调用也是安全的。
	Delete(batch *model.MediaBatch) error
}

// batchRepository 是 BatchRepository 接口的 GORM 实现。
type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository 创建一个新的 BatchRepository 实例。
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

// allocateCode 在事务内读取最近一个非空引用编号并计算下一个。
// 读取行加 FOR UPDATE 锁，两个并发事务不会读到同一个"最后编号"。
func allocateCode(tx *gorm.DB) (string, error) {
	var last model.MediaBatch
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference_code <> ''").
		Order("id DESC").
		First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	return identifier.Batch.Next(last.ReferenceCode), nil
}

// Create 为批次分配引用编号并插入记录。
func (r *batchRepository) Create(ctx context.Context, batch *model.MediaBatch) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if batch.ReferenceCode == "" {
			code, err := allocateCode(tx)
			if err != nil {
				return err
			}
			batch.ReferenceCode = code
		}
		return tx.Create(batch).Error
	})
}

// CreateWithMedia 创建批次及其媒体项。操作顺序：先插入批次行，再逐条插入媒体行。
func (r *batchRepository) CreateWithMedia(ctx context.Context, batch *model.MediaBatch, media []*model.Media) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if batch.ReferenceCode == "" {
			code, err := allocateCode(tx)
			if err != nil {
				return err
			}
			batch.ReferenceCode = code
		}
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		for _, m := range media {
			m.BatchID = &batch.ID
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID 根据批次 ID 查找批次。
func (r *batchRepository) FindByID(id uint) (*model.MediaBatch, error) {
	var batch model.MediaBatch
	err := r.db.First(&batch, id).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindByReferenceCode 根据引用编号查找批次。
func (r *batchRepository) FindByReferenceCode(code string) (*model.MediaBatch, error) {
	var batch model.MediaBatch
	err := r.db.Where("reference_code = ?", code).First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindByOwnerAndTitle 根据归属用户和标题查找批次。
func (r *batchRepository) FindByOwnerAndTitle(ownerID uint, title string) (*model.MediaBatch, error) {
	var batch model.MediaBatch
	err := r.db.Where("owner_id = ? AND title = ?", ownerID, title).First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// FindByOwner 检索某个用户的全部批次。
func (r *batchRepository) FindByOwner(ownerID uint) ([]model.MediaBatch, error) {
	var batches []model.MediaBatch
	err := r.db.Where("owner_id = ?", ownerID).Order("id DESC").Find(&batches).Error
	return batches, err
}

// Delete 在一个事务内删除批次的全部媒体项和批次本身。
func (r *batchRepository) Delete(batch *model.MediaBatch) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id = ?", batch.ID).Delete(&model.Media{}).Error; err != nil {
			return err
		}
		return tx.Delete(batch).Error
	})
}
