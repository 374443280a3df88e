package service

import (
	"context"
	"fmt"
	"testing"

	"digicon-go/internal/apperr"
	"digicon-go/internal/config"
	"digicon-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newUploadFixture() (*fakeBatchRepo, *fakeMediaRepo, *fakeStore, *fakeProducer, UploadService) {
	batchRepo := newFakeBatchRepo()
	mediaRepo := newFakeMediaRepo()
	store := newFakeStore()
	producer := &fakeProducer{}
	svc := NewUploadService(batchRepo, mediaRepo, store, NewAccessPolicy(), producer,
		config.IngestConfig{MinBatchFiles: 20})
	return batchRepo, mediaRepo, store, producer, svc
}

func fileNames(n int) []string {
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, fmt.Sprintf("photo_%02d.png", i))
	}
	return names
}

func TestIngestRejectsEmptyTitle(t *testing.T) {
	_, _, _, _, svc := newUploadFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}
	files := makeFileHeaders(t, fileNames(20), func(string) []byte { return []byte("data") })

	_, err := svc.Ingest(context.Background(), owner, "", files)

	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestIngestRejectsTooFewFiles(t *testing.T) {
	batchRepo, _, store, _, svc := newUploadFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}
	files := makeFileHeaders(t, fileNames(19), func(string) []byte { return []byte("data") })

	_, err := svc.Ingest(context.Background(), owner, "Q3 Archive", files)

	require.ErrorIs(t, err, apperr.ErrValidation)
	// 校验失败发生在任何变更之前
	assert.Equal(t, 0, batchRepo.batchCount())
	assert.Equal(t, 0, store.objectCount())
}

func TestIngestAtMinimumSucceeds(t *testing.T) {
	batchRepo, _, store, producer, svc := newUploadFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}
	names := fileNames(20)
	files := makeFileHeaders(t, names, func(name string) []byte { return []byte("content of " + name) })

	result, err := svc.Ingest(context.Background(), owner, "Q3 Archive", files)

	require.NoError(t, err)
	require.NotNil(t, result.Batch)
	assert.Equal(t, "REF-ID-000001", result.Batch.ReferenceCode)
	assert.Equal(t, owner.ID, result.Batch.OwnerID)
	require.Len(t, result.Files, 20)
	// 媒体项顺序与提交顺序一致，标题缺省为文件名
	for i, m := range result.Files {
		assert.Equal(t, names[i], m.FileName)
		assert.Equal(t, names[i], m.Title)
		require.NotNil(t, m.BatchID)
		assert.Equal(t, result.Batch.ID, *m.BatchID)
	}
	assert.Equal(t, 1, batchRepo.batchCount())
	assert.Equal(t, 20, batchRepo.mediaCount())
	assert.Equal(t, 20, store.objectCount())

	// 事务提交后投递了一条缩略图预渲染任务
	tasks := producer.produced()
	require.Len(t, tasks, 1)
	assert.Equal(t, result.Batch.ReferenceCode, tasks[0].ReferenceCode)
	assert.Len(t, tasks[0].MediaIDs, 20)
}

func TestIngestStoreFailureCleansUpObjects(t *testing.T) {
	batchRepo, _, store, producer, svc := newUploadFixture()
	store.failAfter = 5
	store.putErr = fmt.Errorf("minio: connection refused")
	owner := &model.User{ID: 1, Role: model.RoleUser}
	files := makeFileHeaders(t, fileNames(20), func(string) []byte { return []byte("data") })

	_, err := svc.Ingest(context.Background(), owner, "Q3 Archive", files)

	require.ErrorIs(t, err, apperr.ErrIngestion)
	// 前 4 个已写入的对象被补偿清理，批次从未出现
	assert.Equal(t, 0, store.objectCount())
	assert.Equal(t, 0, batchRepo.batchCount())
	assert.Empty(t, producer.produced())
}

func TestIngestPersistenceFailureRollsBack(t *testing.T) {
	batchRepo, _, store, producer, svc := newUploadFixture()
	// 三次重试全部撞唯一约束，重试耗尽
	batchRepo.createErrs = []error{gorm.ErrDuplicatedKey, gorm.ErrDuplicatedKey, gorm.ErrDuplicatedKey}
	owner := &model.User{ID: 1, Role: model.RoleUser}
	files := makeFileHeaders(t, fileNames(20), func(string) []byte { return []byte("data") })

	_, err := svc.Ingest(context.Background(), owner, "Q3 Archive", files)

	require.ErrorIs(t, err, apperr.ErrIngestion)
	assert.Equal(t, 0, batchRepo.batchCount())
	assert.Equal(t, 0, batchRepo.mediaCount())
	assert.Equal(t, 0, store.objectCount())
	assert.Empty(t, producer.produced())
}

func TestIngestRetriesCodeCollision(t *testing.T) {
	batchRepo, _, _, _, svc := newUploadFixture()
	// 第一次撞唯一约束，第二次成功
	batchRepo.createErrs = []error{gorm.ErrDuplicatedKey}
	owner := &model.User{ID: 1, Role: model.RoleUser}
	files := makeFileHeaders(t, fileNames(20), func(string) []byte { return []byte("data") })

	result, err := svc.Ingest(context.Background(), owner, "Q3 Archive", files)

	require.NoError(t, err)
	assert.NotEmpty(t, result.Batch.ReferenceCode)
	assert.Equal(t, 1, batchRepo.batchCount())
}

func TestAddToOwnedBatchMissingBatch(t *testing.T) {
	_, _, _, _, svc := newUploadFixture()
	actor := &model.User{ID: 1, Role: model.RoleUser}
	files := makeFileHeaders(t, fileNames(1), func(string) []byte { return []byte("data") })

	_, err := svc.AddToOwnedBatch(context.Background(), actor, 42, files)

	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAddToOwnedBatchForbiddenForOthers(t *testing.T) {
	batchRepo, _, _, _, svc := newUploadFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}
	batch := &model.MediaBatch{OwnerID: owner.ID, Title: "mine"}
	require.NoError(t, batchRepo.Create(context.Background(), batch))

	outsider := &model.User{ID: 2, Role: model.RoleUser}
	files := makeFileHeaders(t, fileNames(1), func(string) []byte { return []byte("data") })

	_, err := svc.AddToOwnedBatch(context.Background(), outsider, batch.ID, files)

	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestAddToOwnedBatchAppendsWithoutMinimum(t *testing.T) {
	batchRepo, mediaRepo, store, _, svc := newUploadFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}
	batch := &model.MediaBatch{OwnerID: owner.ID, Title: "mine"}
	require.NoError(t, batchRepo.Create(context.Background(), batch))

	// 追加 2 个文件，远低于批量导入的最少数量也可以
	files := makeFileHeaders(t, fileNames(2), func(string) []byte { return []byte("data") })
	created, err := svc.AddToOwnedBatch(context.Background(), owner, batch.ID, files)

	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, m := range created {
		require.NotNil(t, m.BatchID)
		assert.Equal(t, batch.ID, *m.BatchID)
	}
	assert.Len(t, mediaRepo.media, 2)
	assert.Equal(t, 2, store.objectCount())
}

func TestAddToBatchByIDSkipsOwnershipCheck(t *testing.T) {
	batchRepo, _, _, _, svc := newUploadFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}
	batch := &model.MediaBatch{OwnerID: owner.ID, Title: "mine"}
	require.NoError(t, batchRepo.Create(context.Background(), batch))

	outsider := &model.User{ID: 2, Role: model.RoleUser}
	files := makeFileHeaders(t, fileNames(1), func(string) []byte { return []byte("data") })

	created, err := svc.AddToBatchByID(context.Background(), outsider, batch.ID, files)

	require.NoError(t, err)
	require.Len(t, created, 1)
}

func TestUploadSingleWithoutBatch(t *testing.T) {
	_, mediaRepo, store, _, svc := newUploadFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}
	files := makeFileHeaders(t, []string{"scan.png"}, func(string) []byte { return []byte("data") })

	m, err := svc.UploadSingle(context.Background(), owner, files[0], "My Scan", "", "")

	require.NoError(t, err)
	assert.Nil(t, m.BatchID)
	assert.Equal(t, "My Scan", m.Title)
	assert.Equal(t, "scan.png", m.FileName)
	assert.Len(t, mediaRepo.media, 1)
	assert.Equal(t, 1, store.objectCount())
}

func TestUploadSingleUnknownCodeIsIgnored(t *testing.T) {
	// 引用编号查不到批次时静默忽略，不报错
	_, _, _, _, svc := newUploadFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}
	files := makeFileHeaders(t, []string{"scan.png"}, func(string) []byte { return []byte("data") })

	m, err := svc.UploadSingle(context.Background(), owner, files[0], "", "REF-ID-999999", "")

	require.NoError(t, err)
	assert.Nil(t, m.BatchID)
}

func TestUploadSingleLinksByCode(t *testing.T) {
	batchRepo, _, _, _, svc := newUploadFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}
	batch := &model.MediaBatch{OwnerID: owner.ID, Title: "existing"}
	require.NoError(t, batchRepo.Create(context.Background(), batch))

	files := makeFileHeaders(t, []string{"scan.png"}, func(string) []byte { return []byte("data") })
	m, err := svc.UploadSingle(context.Background(), owner, files[0], "", batch.ReferenceCode, "")

	require.NoError(t, err)
	require.NotNil(t, m.BatchID)
	assert.Equal(t, batch.ID, *m.BatchID)
}

func TestUploadSingleCreatesBatchByTitle(t *testing.T) {
	batchRepo, _, _, _, svc := newUploadFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}
	files := makeFileHeaders(t, []string{"scan.png"}, func(string) []byte { return []byte("data") })

	m, err := svc.UploadSingle(context.Background(), owner, files[0], "", "", "New Batch")

	require.NoError(t, err)
	require.NotNil(t, m.BatchID)
	created, err := batchRepo.FindByID(*m.BatchID)
	require.NoError(t, err)
	assert.Equal(t, "New Batch", created.Title)
	assert.Equal(t, owner.ID, created.OwnerID)
	assert.Equal(t, "REF-ID-000001", created.ReferenceCode)
}

func TestUploadSingleReusesBatchByTitle(t *testing.T) {
	// 同一用户用同一批次标题上传两次，第二次复用已有批次而不是新建
	batchRepo, _, _, _, svc := newUploadFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}
	files := makeFileHeaders(t, []string{"a.png", "b.png"}, func(string) []byte { return []byte("data") })

	first, err := svc.UploadSingle(context.Background(), owner, files[0], "", "", "Trips")
	require.NoError(t, err)
	second, err := svc.UploadSingle(context.Background(), owner, files[1], "", "", "Trips")
	require.NoError(t, err)

	require.NotNil(t, first.BatchID)
	require.NotNil(t, second.BatchID)
	assert.Equal(t, *first.BatchID, *second.BatchID)
	assert.Equal(t, 1, batchRepo.batchCount())
}

func TestUploadSingleTitleMatchScopedToOwner(t *testing.T) {
	// 标题匹配只在上传者自己的批次内查找，不会挂到别人的同名批次上
	batchRepo, _, _, _, svc := newUploadFixture()
	other := &model.MediaBatch{OwnerID: 99, Title: "Trips"}
	require.NoError(t, batchRepo.Create(context.Background(), other))

	owner := &model.User{ID: 1, Role: model.RoleUser}
	files := makeFileHeaders(t, []string{"a.png"}, func(string) []byte { return []byte("data") })
	m, err := svc.UploadSingle(context.Background(), owner, files[0], "", "", "Trips")

	require.NoError(t, err)
	require.NotNil(t, m.BatchID)
	assert.NotEqual(t, other.ID, *m.BatchID)
	assert.Equal(t, 2, batchRepo.batchCount())
}

func TestUploadResponsesCarryFileURL(t *testing.T) {
	_, _, _, _, svc := newUploadFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}

	single := makeFileHeaders(t, []string{"scan.png"}, func(string) []byte { return []byte("data") })
	m, err := svc.UploadSingle(context.Background(), owner, single[0], "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/"+m.ObjectKey, m.FileURL)

	files := makeFileHeaders(t, fileNames(20), func(string) []byte { return []byte("data") })
	result, err := svc.Ingest(context.Background(), owner, "Q3 Archive", files)
	require.NoError(t, err)
	for _, item := range result.Files {
		assert.Equal(t, "http://example.com/"+item.ObjectKey, item.FileURL)
	}
}
