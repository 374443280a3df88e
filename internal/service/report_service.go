// Package service 包含了应用的业务逻辑层。
package service

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"

	"digicon-go/internal/apperr"
	"digicon-go/internal/config"
	"digicon-go/internal/model"
	"digicon-go/pkg/log"
	"digicon-go/pkg/storage"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
)

// 报告版面常量（单位 mm，A4 纵向）。
const (
	reportMarginX   = 15.0
	reportMarginTop = 15.0
	reportCellW     = 90.0 // 每个图片单元格的宽度
	reportImageBox  = 60.0 // 图片在单元格内的最大边长
	reportRowH      = 74.0 // 单元格高度：图片 + 两行说明文字
	reportPageLimit = 270.0
)

// ReportService 接口定义了批次报告的生成操作。
type ReportService interface {
	// Render 将批次的全部图片渲染为一份分页的 PDF 报告。
	// 批次没有任何媒体项时返回 ErrEmptyBatch。
	Render(ctx context.Context, batch *model.MediaBatch, media []model.Media) ([]byte, error)
}

type reportService struct {
	store storage.ObjectStore
	cfg   config.ReportConfig
}

// NewReportService 创建一个新的 ReportService 实例。
func NewReportService(store storage.ObjectStore, cfg config.ReportConfig) ReportService {
	return &reportService{store: store, cfg: cfg}
}

// layoutRows 将 count 个条目按每行 perRow 个分组，返回每行的条目数。
// 最后一行不足 perRow 时作为部分行保留。
func layoutRows(count, perRow int) []int {
	if count <= 0 || perRow <= 0 {
		return nil
	}
	rows := make([]int, 0, count/perRow+1)
	for count > perRow {
		rows = append(rows, perRow)
		count -= perRow
	}
	rows = append(rows, count)
	return rows
}

// thumbnailJPEG 生成媒体项的 JPEG 缩略图（等比缩放到边界框内）。
// 优先使用 pipeline 预渲染并缓存到对象存储的缩略图，缓存不可用时
// 从媒体项缓存的原始字节现场解码。
func (s *reportService) thumbnailJPEG(ctx context.Context, m *model.Media) ([]byte, error) {
	if cached, err := s.store.Get(ctx, thumbObjectKey(m.ID)); err == nil && len(cached) > 0 {
		return cached, nil
	}

	img, err := imaging.Decode(bytes.NewReader(m.FileData))
	if err != nil {
		return nil, err
	}
	box := s.cfg.ThumbnailBox
	thumb := imaging.Fit(img, box, box, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// thumbObjectKey 返回媒体项缩略图在对象存储中的 key。
func thumbObjectKey(mediaID uint) string {
	return fmt.Sprintf("thumbs/%d.jpg", mediaID)
}

// Render 生成批次报告。
// 单个图片解码失败只记录 warning 并跳过，不会中断整份报告的生成；
// 部分报告是可接受的，部分批次不是。
func (s *reportService) Render(ctx context.Context, batch *model.MediaBatch, media []model.Media) ([]byte, error) {
	if len(media) == 0 {
		return nil, apperr.Wrap(apperr.ErrEmptyBatch, fmt.Errorf("batch %s", batch.ReferenceCode))
	}

	log.Infof("[Report] 开始生成批次报告, referenceCode: %s, 媒体数: %d", batch.ReferenceCode, len(media))

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(reportMarginX, reportMarginTop, reportMarginX)
	pdf.AddPage()

	// 报告头：标题、引用编号、批次标题、创建时间
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, "Batch Report", "", 1, "C", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, fmt.Sprintf("Reference: %s", batch.ReferenceCode), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("Title: %s", batch.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Created: %s", batch.CreatedAt.Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	// 先解码全部缩略图，损坏或不支持的图片格式跳过该项，继续生成报告
	type cell struct {
		media *model.Media
		thumb []byte
	}
	cells := make([]cell, 0, len(media))
	for i := range media {
		m := &media[i]
		thumb, err := s.thumbnailJPEG(ctx, m)
		if err != nil {
			log.Warnf("[Report] 跳过无法解码的媒体项, mediaID: %d, fileName: %s, error: %v", m.ID, m.FileName, err)
			continue
		}
		cells = append(cells, cell{media: m, thumb: thumb})
	}
	if skipped := len(media) - len(cells); skipped > 0 {
		log.Warnf("[Report] 报告将跳过 %d 个无法解码的媒体项, referenceCode: %s", skipped, batch.ReferenceCode)
	}

	// 按每行 ItemsPerRow 个分组排版；满一行输出一行，末尾的部分行同样输出
	y := pdf.GetY()
	next := 0
	for _, rowLen := range layoutRows(len(cells), s.cfg.ItemsPerRow) {
		if y+reportRowH > reportPageLimit {
			pdf.AddPage()
			y = reportMarginTop
		}
		for col := 0; col < rowLen; col++ {
			c := cells[next]
			next++
			x := reportMarginX + float64(col)*reportCellW
			s.drawCell(pdf, c.media, c.thumb, x, y)
		}
		y += reportRowH
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, err)
	}
	log.Infof("[Report] 批次报告生成完成, referenceCode: %s, 大小: %d 字节", batch.ReferenceCode, buf.Len())
	return buf.Bytes(), nil
}

// drawCell 在指定位置绘制一个图片单元格：缩略图、文件名和创建日期。
func (s *reportService) drawCell(pdf *fpdf.Fpdf, m *model.Media, thumb []byte, x, y float64) {
	name := fmt.Sprintf("media-%d", m.ID)
	opts := fpdf.ImageOptions{ImageType: "JPEG"}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(thumb))

	// 按缩略图长宽比将绘制尺寸放入 reportImageBox 边界框
	w, h := reportImageBox, reportImageBox
	if info != nil && info.Width() > 0 && info.Height() > 0 {
		ratio := info.Width() / info.Height()
		if ratio > 1 {
			h = reportImageBox / ratio
		} else {
			w = reportImageBox * ratio
		}
	}
	pdf.ImageOptions(name, x+(reportImageBox-w)/2, y, w, h, false, opts, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetXY(x, y+reportImageBox+2)
	pdf.CellFormat(reportCellW-5, 5, fmt.Sprintf("File: %s", m.FileName), "", 1, "L", false, 0, "")
	pdf.SetX(x)
	pdf.CellFormat(reportCellW-5, 5, fmt.Sprintf("Uploaded: %s", m.CreatedAt.Format("2006-01-02")), "", 1, "L", false, 0, "")
}
