package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"digicon-go/internal/identifier"
	"digicon-go/internal/model"
	"digicon-go/pkg/tasks"

	"gorm.io/gorm"
)

// --- 内存版仓储，行为对齐 GORM 实现：编号分配、ID 自增、级联删除 ---

type fakeBatchRepo struct {
	mu      sync.Mutex
	nextID  uint
	lastRef string
	batches map[uint]*model.MediaBatch
	media   map[uint]*model.Media
	nextMID uint

	// createErrs 按调用次序弹出，用于模拟唯一约束冲突等持久化错误。
	// 返回错误时不产生任何可见变更（模拟事务回滚）。
	createErrs []error
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{
		batches: make(map[uint]*model.MediaBatch),
		media:   make(map[uint]*model.Media),
	}
}

func (f *fakeBatchRepo) popErr() error {
	if len(f.createErrs) == 0 {
		return nil
	}
	err := f.createErrs[0]
	f.createErrs = f.createErrs[1:]
	return err
}

func (f *fakeBatchRepo) Create(ctx context.Context, batch *model.MediaBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popErr(); err != nil {
		return err
	}
	if batch.ReferenceCode == "" {
		batch.ReferenceCode = identifier.Batch.Next(f.lastRef)
	}
	f.lastRef = batch.ReferenceCode
	f.nextID++
	batch.ID = f.nextID
	batch.CreatedAt = time.Now()
	stored := *batch
	f.batches[batch.ID] = &stored
	return nil
}

func (f *fakeBatchRepo) CreateWithMedia(ctx context.Context, batch *model.MediaBatch, media []*model.Media) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popErr(); err != nil {
		return err
	}
	if batch.ReferenceCode == "" {
		batch.ReferenceCode = identifier.Batch.Next(f.lastRef)
	}
	f.lastRef = batch.ReferenceCode
	f.nextID++
	batch.ID = f.nextID
	batch.CreatedAt = time.Now()
	stored := *batch
	f.batches[batch.ID] = &stored
	for _, m := range media {
		f.nextMID++
		m.ID = f.nextMID
		m.BatchID = &batch.ID
		copied := *m
		f.media[m.ID] = &copied
	}
	return nil
}

func (f *fakeBatchRepo) FindByID(id uint) (*model.MediaBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeBatchRepo) FindByReferenceCode(code string) (*model.MediaBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.batches {
		if b.ReferenceCode == code {
			copied := *b
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBatchRepo) FindByOwnerAndTitle(ownerID uint, title string) (*model.MediaBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.batches {
		if b.OwnerID == ownerID && b.Title == title {
			copied := *b
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBatchRepo) FindByOwner(ownerID uint) ([]model.MediaBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.MediaBatch
	for _, b := range f.batches {
		if b.OwnerID == ownerID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBatchRepo) Delete(batch *model.MediaBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, m := range f.media {
		if m.BatchID != nil && *m.BatchID == batch.ID {
			delete(f.media, id)
		}
	}
	delete(f.batches, batch.ID)
	return nil
}

func (f *fakeBatchRepo) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeBatchRepo) mediaCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.media)
}

type fakeMediaRepo struct {
	mu     sync.Mutex
	nextID uint
	media  map[uint]*model.Media
}

func newFakeMediaRepo() *fakeMediaRepo {
	return &fakeMediaRepo{media: make(map[uint]*model.Media)}
}

func (f *fakeMediaRepo) Create(media *model.Media) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	media.ID = f.nextID
	media.CreatedAt = time.Now()
	copied := *media
	f.media[media.ID] = &copied
	return nil
}

func (f *fakeMediaRepo) FindByID(id uint) (*model.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.media[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMediaRepo) FindByBatchID(batchID uint) ([]model.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Media
	for id := uint(1); id <= f.nextID; id++ {
		if m, ok := f.media[id]; ok && m.BatchID != nil && *m.BatchID == batchID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMediaRepo) FindByOwner(ownerID uint) ([]model.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Media
	for _, m := range f.media {
		if m.OwnerID == ownerID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMediaRepo) Delete(media *model.Media) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.media, media.ID)
	return nil
}

// --- 内存版对象存储 ---

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	// failAfter > 0 时，第 failAfter 次 Put 返回 putErr。
	failAfter int
	putCalls  int
	putErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) Put(ctx context.Context, objectName string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.failAfter > 0 && f.putCalls >= f.failAfter {
		return f.putErr
	}
	f.objects[objectName] = append([]byte(nil), data...)
	return nil
}

func (f *fakeStore) Get(ctx context.Context, objectName string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objectName]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeStore) Remove(ctx context.Context, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objectName)
	return nil
}

func (f *fakeStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	return "http://example.com/" + objectName, nil
}

func (f *fakeStore) objectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// --- 任务生产者 ---

type fakeProducer struct {
	mu    sync.Mutex
	tasks []tasks.BatchIngestedTask
}

func (f *fakeProducer) ProduceBatchTask(task tasks.BatchIngestedTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeProducer) produced() []tasks.BatchIngestedTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tasks.BatchIngestedTask(nil), f.tasks...)
}

// --- multipart 与图片测试数据 ---

// makeFileHeaders 构造真实的 multipart.FileHeader 列表，顺序与 names 一致。
func makeFileHeaders(t *testing.T, names []string, content func(name string) []byte) []*multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, name := range names {
		part, err := w.CreateFormFile("files[]", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write(content(name)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["files[]"]
}

// pngBytes 生成一张纯色 PNG 测试图片。
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}
