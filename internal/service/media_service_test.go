package service

import (
	"context"
	"testing"

	"digicon-go/internal/apperr"
	"digicon-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMediaFixture() (*fakeMediaRepo, *fakeStore, MediaService) {
	mediaRepo := newFakeMediaRepo()
	store := newFakeStore()
	svc := NewMediaService(mediaRepo, store, NewAccessPolicy())
	return mediaRepo, store, svc
}

// seedMedia 直接向仓储和对象存储写入一条媒体记录。
func seedMedia(t *testing.T, mediaRepo *fakeMediaRepo, store *fakeStore, ownerID uint, fileName string) *model.Media {
	t.Helper()
	m := &model.Media{
		OwnerID:   ownerID,
		FileName:  fileName,
		ObjectKey: "media/" + fileName,
		FileData:  []byte("data"),
		Title:     fileName,
	}
	require.NoError(t, mediaRepo.Create(m))
	require.NoError(t, store.Put(context.Background(), m.ObjectKey, m.FileData, ""))
	return m
}

func TestListForOwnerAttachesFileURL(t *testing.T) {
	mediaRepo, store, svc := newMediaFixture()
	seedMedia(t, mediaRepo, store, 1, "a.png")
	seedMedia(t, mediaRepo, store, 1, "b.png")

	media, err := svc.ListForOwner(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, media, 2)
	for _, m := range media {
		assert.Equal(t, "http://example.com/"+m.ObjectKey, m.FileURL)
	}
}

func TestListForOwnerFiltersByOwner(t *testing.T) {
	mediaRepo, store, svc := newMediaFixture()
	seedMedia(t, mediaRepo, store, 1, "mine.png")
	seedMedia(t, mediaRepo, store, 2, "theirs.png")

	media, err := svc.ListForOwner(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "mine.png", media[0].FileName)
}

func TestDeleteMediaRemovesRowAndObject(t *testing.T) {
	mediaRepo, store, svc := newMediaFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}
	m := seedMedia(t, mediaRepo, store, owner.ID, "scan.png")

	require.NoError(t, svc.DeleteMedia(context.Background(), owner, m.ID))

	_, err := mediaRepo.FindByID(m.ID)
	assert.Error(t, err)
	assert.Equal(t, 0, store.objectCount())
}

func TestDeleteMediaForbiddenForOutsider(t *testing.T) {
	mediaRepo, store, svc := newMediaFixture()
	m := seedMedia(t, mediaRepo, store, 1, "scan.png")

	outsider := &model.User{ID: 2, Role: model.RoleUser}
	err := svc.DeleteMedia(context.Background(), outsider, m.ID)

	require.ErrorIs(t, err, apperr.ErrForbidden)
	// 记录和对象都原样保留
	_, ferr := mediaRepo.FindByID(m.ID)
	assert.NoError(t, ferr)
	assert.Equal(t, 1, store.objectCount())
}

func TestDeleteMediaAdminCanDeleteAny(t *testing.T) {
	mediaRepo, store, svc := newMediaFixture()
	m := seedMedia(t, mediaRepo, store, 1, "scan.png")

	admin := &model.User{ID: 9, Role: model.RoleAdmin}
	require.NoError(t, svc.DeleteMedia(context.Background(), admin, m.ID))

	_, err := mediaRepo.FindByID(m.ID)
	assert.Error(t, err)
}

func TestDeleteMediaNotFound(t *testing.T) {
	_, _, svc := newMediaFixture()
	owner := &model.User{ID: 1, Role: model.RoleUser}

	err := svc.DeleteMedia(context.Background(), owner, 42)

	require.ErrorIs(t, err, apperr.ErrNotFound)
}
