// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"

	"digicon-go/internal/apperr"
	"digicon-go/internal/model"
	"digicon-go/internal/repository"
	"digicon-go/pkg/log"

	"gorm.io/gorm"
)

// maxCodeRetries 是引用编号撞上唯一约束后，重试"分配并持久化"序列的次数上限。
const maxCodeRetries = 3

// BatchService 接口定义了媒体批次的业务操作。
type BatchService interface {
	CreateBatch(ctx context.Context, owner *model.User, title string) (*model.MediaBatch, error)
	FindByID(id uint) (*model.MediaBatch, error)
	FindByReferenceCode(code string) (*model.MediaBatch, error)
	ListForOwner(ownerID uint) ([]model.MediaBatch, error)
	DeleteBatch(actor *model.User, batch *model.MediaBatch) error
	MediaInBatch(batchID uint) ([]model.Media, error)
}

type batchService struct {
	batchRepo repository.BatchRepository
	mediaRepo repository.MediaRepository
	policy    *AccessPolicy
}

// NewBatchService 创建一个新的 BatchService 实例。
func NewBatchService(batchRepo repository.BatchRepository, mediaRepo repository.MediaRepository, policy *AccessPolicy) BatchService {
	return &batchService{
		batchRepo: batchRepo,
		mediaRepo: mediaRepo,
		policy:    policy,
	}
}

// CreateBatch 为用户创建一个新批次。
// 引用编号的分配和插入在仓储层的同一事务内完成；如果并发创建仍导致
// 唯一约束冲突，这里会重置编号并重试整个序列，最多 maxCodeRetries 次。
func (s *batchService) CreateBatch(ctx context.Context, owner *model.User, title string) (*model.MediaBatch, error) {
	if title == "" {
		return nil, apperr.Validationf("title required")
	}

	batch := &model.MediaBatch{OwnerID: owner.ID, Title: title}
	var err error
	for attempt := 1; attempt <= maxCodeRetries; attempt++ {
		batch.ReferenceCode = ""
		err = s.batchRepo.Create(ctx, batch)
		if err == nil {
			log.Infof("[BatchService] 批次创建成功, referenceCode: %s, owner: %d", batch.ReferenceCode, owner.ID)
			return batch, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Wrap(apperr.ErrPersistence, err)
		}
		log.Warnf("[BatchService] 引用编号冲突，第 %d 次重试, owner: %d", attempt, owner.ID)
	}
	return nil, apperr.Wrap(apperr.ErrPersistence, err)
}

// FindByID 根据 ID 查找批次。
func (s *batchService) FindByID(id uint) (*model.MediaBatch, error) {
	batch, err := s.batchRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.ErrNotFound, err)
		}
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	return batch, nil
}

// FindByReferenceCode 根据引用编号查找批次。
func (s *batchService) FindByReferenceCode(code string) (*model.MediaBatch, error) {
	batch, err := s.batchRepo.FindByReferenceCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.ErrNotFound, err)
		}
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	return batch, nil
}

// ListForOwner 列出某个用户的全部批次。
func (s *batchService) ListForOwner(ownerID uint) ([]model.MediaBatch, error) {
	batches, err := s.batchRepo.FindByOwner(ownerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	return batches, nil
}

// DeleteBatch 删除批次并级联删除其媒体项。只有批次归属者或具有变更权的角色可以删除。
func (s *batchService) DeleteBatch(actor *model.User, batch *model.MediaBatch) error {
	if !s.policy.CanMutate(actor, batch) {
		return apperr.Wrap(apperr.ErrForbidden, errors.New("没有权限删除此批次"))
	}
	if err := s.batchRepo.Delete(batch); err != nil {
		return apperr.Wrap(apperr.ErrPersistence, err)
	}
	log.Infof("[BatchService] 批次已删除, referenceCode: %s", batch.ReferenceCode)
	return nil
}

// MediaInBatch 检索批次下的全部媒体项。
func (s *batchService) MediaInBatch(batchID uint) ([]model.Media, error) {
	media, err := s.mediaRepo.FindByBatchID(batchID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	return media, nil
}
