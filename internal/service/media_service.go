// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"

	"digicon-go/internal/apperr"
	"digicon-go/internal/model"
	"digicon-go/internal/repository"
	"digicon-go/pkg/log"
	"digicon-go/pkg/storage"

	"gorm.io/gorm"
)

// MediaService 接口定义了单个媒体项的查询和删除操作。
type MediaService interface {
	// ListForOwner 列出某个用户的全部媒体项，并为每项附上临时访问链接。
	ListForOwner(ctx context.Context, ownerID uint) ([]model.Media, error)
	// DeleteMedia 删除单个媒体项及其在对象存储中的原始文件。
	// 只有归属者或具有变更权的角色可以删除。
	DeleteMedia(ctx context.Context, actor *model.User, mediaID uint) error
}

type mediaService struct {
	mediaRepo repository.MediaRepository
	store     storage.ObjectStore
	policy    *AccessPolicy
}

// NewMediaService 创建一个新的 MediaService 实例。
func NewMediaService(mediaRepo repository.MediaRepository, store storage.ObjectStore, policy *AccessPolicy) MediaService {
	return &mediaService{
		mediaRepo: mediaRepo,
		store:     store,
		policy:    policy,
	}
}

// ListForOwner 列出某个用户的全部媒体项。
func (s *mediaService) ListForOwner(ctx context.Context, ownerID uint) ([]model.Media, error) {
	media, err := s.mediaRepo.FindByOwner(ownerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	for i := range media {
		url, err := s.store.PresignedURL(ctx, media[i].ObjectKey, fileURLExpiry)
		if err != nil {
			log.Warnf("[MediaService] 生成临时访问链接失败, objectKey: %s, error: %v", media[i].ObjectKey, err)
			continue
		}
		media[i].FileURL = url
	}
	return media, nil
}

// DeleteMedia 删除单个媒体项。
func (s *mediaService) DeleteMedia(ctx context.Context, actor *model.User, mediaID uint) error {
	media, err := s.mediaRepo.FindByID(mediaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Wrap(apperr.ErrNotFound, err)
		}
		return apperr.Wrap(apperr.ErrPersistence, err)
	}
	if !s.policy.CanMutate(actor, media) {
		return apperr.Wrap(apperr.ErrForbidden, errors.New("没有权限删除此媒体项"))
	}

	// 先删对象再删行；对象删除失败只记录日志，行删除是权威状态
	if err := s.store.Remove(ctx, media.ObjectKey); err != nil {
		log.Warnf("[MediaService] 删除对象失败, objectKey: %s, error: %v", media.ObjectKey, err)
	}
	if err := s.mediaRepo.Delete(media); err != nil {
		return apperr.Wrap(apperr.ErrPersistence, err)
	}
	log.Infof("[MediaService] 媒体项已删除, mediaID: %d, fileName: %s", media.ID, media.FileName)
	return nil
}
