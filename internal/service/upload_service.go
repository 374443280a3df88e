// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"time"

	"digicon-go/internal/apperr"
	"digicon-go/internal/config"
	"digicon-go/internal/model"
	"digicon-go/internal/repository"
	"digicon-go/pkg/kafka"
	"digicon-go/pkg/log"
	"digicon-go/pkg/storage"
	"digicon-go/pkg/tasks"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BatchResult 封装了一次批量导入的结果：创建的批次和全部媒体项（按提交顺序）。
type BatchResult struct {
	Batch *model.MediaBatch `json:"batch"`
	Files []model.Media     `json:"files"`
}

// UploadService 接口定义了文件上传和批量导入的业务操作。
type UploadService interface {
	// Ingest 执行批量导入：校验标题和最少文件数，在一个事务内创建批次及
	// 全部媒体项。任何一步失败整体回滚，不会留下部分可见的批次。
	Ingest(ctx context.Context, owner *model.User, title string, files []*multipart.FileHeader) (*BatchResult, error)
	// AddToOwnedBatch 向调用者拥有的批次追加媒体项。无最少数量限制。
	AddToOwnedBatch(ctx context.Context, actor *model.User, batchID uint, files []*multipart.FileHeader) ([]model.Media, error)
	// AddToBatchByID 向任意批次追加媒体项，不校验归属关系。
	AddToBatchByID(ctx context.Context, actor *model.User, batchID uint, files []*multipart.FileHeader) ([]model.Media, error)
	// UploadSingle 上传单个文件，可选地通过引用编号或标题挂到批次下。
	UploadSingle(ctx context.Context, owner *model.User, file *multipart.FileHeader, title, batchCode, batchTitle string) (*model.Media, error)
}

type uploadService struct {
	batchRepo repository.BatchRepository
	mediaRepo repository.MediaRepository
	store     storage.ObjectStore
	policy    *AccessPolicy
	producer  kafka.TaskProducer
	ingestCfg config.IngestConfig
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(batchRepo repository.BatchRepository, mediaRepo repository.MediaRepository,
	store storage.ObjectStore, policy *AccessPolicy, producer kafka.TaskProducer, ingestCfg config.IngestConfig) UploadService {
	return &uploadService{
		batchRepo: batchRepo,
		mediaRepo: mediaRepo,
		store:     store,
		policy:    policy,
		producer:  producer,
		ingestCfg: ingestCfg,
	}
}

// readPayload 读取上传文件的全部字节。这份字节会被缓存到媒体记录里，
// 之后不再从对象存储重新读取。
func readPayload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// objectKey 为上传文件生成对象存储 key，保留原始扩展名。
func objectKey(fileName string) string {
	return fmt.Sprintf("media/%s%s", uuid.NewString(), filepath.Ext(fileName))
}

// buildMedia 读取文件内容并构造未持久化的媒体项。标题缺省为文件名。
func buildMedia(owner *model.User, file *multipart.FileHeader, title string) (*model.Media, error) {
	data, err := readPayload(file)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = file.Filename
	}
	return &model.Media{
		OwnerID:   owner.ID,
		FileName:  file.Filename,
		ObjectKey: objectKey(file.Filename),
		FileData:  data,
		Title:     title,
	}, nil
}

// fileURLExpiry 是媒体项响应中临时访问链接的有效期。
const fileURLExpiry = 24 * time.Hour

// presign 为媒体项生成原始文件的临时访问链接，失败只记录日志。
func (s *uploadService) presign(ctx context.Context, m *model.Media) {
	url, err := s.store.PresignedURL(ctx, m.ObjectKey, fileURLExpiry)
	if err != nil {
		log.Warnf("[UploadService] 生成临时访问链接失败, objectKey: %s, error: %v", m.ObjectKey, err)
		return
	}
	m.FileURL = url
}

// removeObjects 尽力删除已写入对象存储的文件，失败只记录日志。
// 这是批量导入失败后的补偿清理，不阻塞主流程的错误返回。
func (s *uploadService) removeObjects(media []*model.Media) {
	bgCtx := context.Background()
	for _, m := range media {
		if err := s.store.Remove(bgCtx, m.ObjectKey); err != nil {
			log.Warnf("[UploadService] 补偿清理：删除对象失败, objectKey: %s, error: %v", m.ObjectKey, err)
		}
	}
}

// Ingest 执行批量导入。
func (s *uploadService) Ingest(ctx context.Context, owner *model.User, title string, files []*multipart.FileHeader) (*BatchResult, error) {
	log.Infof("[Ingest] 开始批量导入, owner: %d, title: %s, 文件数: %d", owner.ID, title, len(files))

	// 1. 前置校验，任何校验失败都发生在任何变更之前
	if title == "" {
		return nil, apperr.Validationf("title required")
	}
	if len(files) < s.ingestCfg.MinBatchFiles {
		return nil, apperr.Validationf("minimum count not met: 至少需要 %d 个文件, 实际 %d 个", s.ingestCfg.MinBatchFiles, len(files))
	}

	// 2. 读取全部文件内容，构造媒体项（尚未发生任何持久化）
	media := make([]*model.Media, 0, len(files))
	for _, file := range files {
		m, err := buildMedia(owner, file, "")
		if err != nil {
			return nil, apperr.Validationf("无法读取文件 %s: %v", file.Filename, err)
		}
		media = append(media, m)
	}

	// 3. 将原始文件写入对象存储；失败时清理已写入的对象
	uploaded := make([]*model.Media, 0, len(media))
	for _, m := range media {
		if err := s.store.Put(ctx, m.ObjectKey, m.FileData, ""); err != nil {
			log.Errorf("[Ingest] 写入对象存储失败, objectKey: %s, error: %v", m.ObjectKey, err)
			s.removeObjects(uploaded)
			return nil, apperr.Wrap(apperr.ErrIngestion, err)
		}
		uploaded = append(uploaded, m)
	}

	// 4. 在一个事务内创建批次和全部媒体行；唯一约束冲突时重试编号分配
	batch := &model.MediaBatch{OwnerID: owner.ID, Title: title}
	var err error
	for attempt := 1; attempt <= maxCodeRetries; attempt++ {
		batch.ReferenceCode = ""
		err = s.batchRepo.CreateWithMedia(ctx, batch, media)
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		log.Warnf("[Ingest] 引用编号冲突，第 %d 次重试, owner: %d", attempt, owner.ID)
	}
	if err != nil {
		// 事务已回滚，数据库中没有任何该批次的痕迹；补偿清理对象存储
		log.Errorf("[Ingest] 批次持久化失败，已回滚, error: %v", err)
		s.removeObjects(uploaded)
		return nil, apperr.Wrap(apperr.ErrIngestion, err)
	}

	log.Infof("[Ingest] 批量导入成功, referenceCode: %s, 媒体数: %d", batch.ReferenceCode, len(media))

	// 5. 事务提交后投递缩略图预渲染任务；投递失败不影响导入结果
	mediaIDs := make([]uint, 0, len(media))
	result := make([]model.Media, 0, len(media))
	for _, m := range media {
		mediaIDs = append(mediaIDs, m.ID)
		s.presign(ctx, m)
		result = append(result, *m)
	}
	task := tasks.BatchIngestedTask{
		BatchID:       batch.ID,
		ReferenceCode: batch.ReferenceCode,
		OwnerID:       owner.ID,
		MediaIDs:      mediaIDs,
	}
	if s.producer != nil {
		if err := s.producer.ProduceBatchTask(task); err != nil {
			log.Errorf("[Ingest] 发送批次任务到Kafka失败, referenceCode: %s, error: %v", batch.ReferenceCode, err)
		} else {
			log.Infof("[Ingest] 批次任务已发送到Kafka, referenceCode: %s", batch.ReferenceCode)
		}
	}

	return &BatchResult{Batch: batch, Files: result}, nil
}

// appendToBatch 逐个追加媒体项到已存在的批次。追加语义：失败即停止并返回错误，
// 已追加的媒体项保留（与批量导入的全有或全无语义不同）。
func (s *uploadService) appendToBatch(ctx context.Context, actor *model.User, batch *model.MediaBatch, files []*multipart.FileHeader) ([]model.Media, error) {
	created := make([]model.Media, 0, len(files))
	for _, file := range files {
		m, err := buildMedia(actor, file, file.Filename)
		if err != nil {
			return created, apperr.Validationf("无法读取文件 %s: %v", file.Filename, err)
		}
		m.BatchID = &batch.ID
		if err := s.store.Put(ctx, m.ObjectKey, m.FileData, ""); err != nil {
			return created, apperr.Wrap(apperr.ErrPersistence, err)
		}
		if err := s.mediaRepo.Create(m); err != nil {
			return created, apperr.Wrap(apperr.ErrPersistence, err)
		}
		s.presign(ctx, m)
		created = append(created, *m)
	}
	return created, nil
}

// AddToOwnedBatch 向调用者拥有的批次追加媒体项。
func (s *uploadService) AddToOwnedBatch(ctx context.Context, actor *model.User, batchID uint, files []*multipart.FileHeader) ([]model.Media, error) {
	batch, err := s.batchRepo.FindByID(batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.ErrNotFound, err)
		}
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	if !s.policy.CanMutate(actor, batch) {
		return nil, apperr.Wrap(apperr.ErrForbidden, errors.New("不是批次的归属用户"))
	}
	return s.appendToBatch(ctx, actor, batch, files)
}

// AddToBatchByID 向任意批次追加媒体项。
// 与 AddToOwnedBatch 不同，这里刻意不做归属校验：两个入口对外承诺的
// 行为不同，调用方依赖这一差异。
func (s *uploadService) AddToBatchByID(ctx context.Context, actor *model.User, batchID uint, files []*multipart.FileHeader) ([]model.Media, error) {
	batch, err := s.batchRepo.FindByID(batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.ErrNotFound, err)
		}
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	return s.appendToBatch(ctx, actor, batch, files)
}

// UploadSingle 上传单个文件。
// 批次挂接规则：给定引用编号则尝试按编号查找（查不到不报错）；
// 没有匹配批次且给定批次标题时，优先复用上传者同标题的已有批次，
// 没有再按该标题新建。
func (s *uploadService) UploadSingle(ctx context.Context, owner *model.User, file *multipart.FileHeader, title, batchCode, batchTitle string) (*model.Media, error) {
	var batch *model.MediaBatch
	if batchCode != "" {
		b, err := s.batchRepo.FindByReferenceCode(batchCode)
		if err == nil {
			batch = b
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.ErrPersistence, err)
		}
	}
	if batch == nil && batchTitle != "" {
		b, err := s.batchRepo.FindByOwnerAndTitle(owner.ID, batchTitle)
		if err == nil {
			batch = b
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.ErrPersistence, err)
		}
	}
	if batch == nil && batchTitle != "" {
		b := &model.MediaBatch{OwnerID: owner.ID, Title: batchTitle}
		var err error
		for attempt := 1; attempt <= maxCodeRetries; attempt++ {
			b.ReferenceCode = ""
			err = s.batchRepo.Create(ctx, b)
			if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
				break
			}
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrPersistence, err)
		}
		batch = b
	}

	m, err := buildMedia(owner, file, title)
	if err != nil {
		return nil, apperr.Validationf("无法读取文件 %s: %v", file.Filename, err)
	}
	if batch != nil {
		m.BatchID = &batch.ID
	}
	if err := s.store.Put(ctx, m.ObjectKey, m.FileData, ""); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	if err := s.mediaRepo.Create(m); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	s.presign(ctx, m)
	log.Infof("[UploadSingle] 文件上传成功, mediaID: %d, fileName: %s", m.ID, m.FileName)
	return m, nil
}
