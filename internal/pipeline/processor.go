// Package pipeline 定义了批次导入后的后台处理流程。
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"

	"digicon-go/internal/config"
	"digicon-go/internal/repository"
	"digicon-go/pkg/log"
	"digicon-go/pkg/storage"
	"digicon-go/pkg/tasks"

	"github.com/disintegration/imaging"
)

// Processor 消费批量导入任务，为批次中的每个媒体项预渲染报告缩略图
// 并写入对象存储。报告导出时优先命中这些缓存对象，避免在请求路径上
// 重复做图片解码。
type Processor struct {
	mediaRepo repository.MediaRepository
	store     storage.ObjectStore
	reportCfg config.ReportConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(mediaRepo repository.MediaRepository, store storage.ObjectStore, reportCfg config.ReportConfig) *Processor {
	return &Processor{
		mediaRepo: mediaRepo,
		store:     store,
		reportCfg: reportCfg,
	}
}

// Process 是批次任务处理的主函数。
// 单个媒体项解码失败只记录 warning 并跳过；报告生成对这些项有相同的
// 容错策略，所以这里没有必要让整个任务失败重试。
func (p *Processor) Process(ctx context.Context, task tasks.BatchIngestedTask) error {
	log.Infof("[Processor] 开始预渲染缩略图, referenceCode: %s, 媒体数: %d", task.ReferenceCode, len(task.MediaIDs))

	for _, mediaID := range task.MediaIDs {
		media, err := p.mediaRepo.FindByID(mediaID)
		if err != nil {
			// 媒体行可能已随批次被删除；跳过即可
			log.Warnf("[Processor] 媒体项不存在，跳过, mediaID: %d, error: %v", mediaID, err)
			continue
		}

		img, err := imaging.Decode(bytes.NewReader(media.FileData))
		if err != nil {
			log.Warnf("[Processor] 媒体项无法解码为图片，跳过, mediaID: %d, fileName: %s, error: %v", mediaID, media.FileName, err)
			continue
		}

		box := p.reportCfg.ThumbnailBox
		thumb := imaging.Fit(img, box, box, imaging.Lanczos)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
			log.Warnf("[Processor] 缩略图编码失败，跳过, mediaID: %d, error: %v", mediaID, err)
			continue
		}

		objectName := fmt.Sprintf("thumbs/%d.jpg", mediaID)
		if err := p.store.Put(ctx, objectName, buf.Bytes(), "image/jpeg"); err != nil {
			// 对象存储故障影响整个任务，交给消费者的重试机制
			return fmt.Errorf("写入缩略图失败 mediaID=%d: %w", mediaID, err)
		}
	}

	log.Infof("[Processor] 缩略图预渲染完成, referenceCode: %s", task.ReferenceCode)
	return nil
}
