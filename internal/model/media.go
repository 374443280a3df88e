// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// MediaBatch 对应于数据库中的 'media_batches' 表。
// 每个批次归属一个用户，并在创建时获得一个不可变的引用编号。
type MediaBatch struct {
	ID      uint `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID uint `gorm:"not null;index" json:"ownerId"`
	// ReferenceCode 在创建时分配（格式 REF-ID-NNNNNN），全局唯一且不可变更。
	ReferenceCode string    `gorm:"type:varchar(15);uniqueIndex;not null" json:"referenceCode"`
	Title         string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (MediaBatch) TableName() string {
	return "media_batches"
}

// OwnedBy 返回批次的归属用户 ID，供 AccessPolicy 使用。
func (b *MediaBatch) OwnedBy() uint {
	return b.OwnerID
}

// Media 对应于数据库中的 'media' 表。
// BatchID 可为空：单文件上传可以不挂在任何批次下。
type Media struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID  uint   `gorm:"not null;index" json:"ownerId"`
	BatchID  *uint  `gorm:"index" json:"batchId"`
	FileName string `gorm:"type:varchar(255);not null" json:"fileName"`
	// ObjectKey 是对象存储中原始文件的 key。
	ObjectKey string `gorm:"type:varchar(255);not null" json:"objectKey"`
	// FileData 缓存了上传时的原始字节。一旦写入就不再从 ObjectKey 重新计算。
	FileData   []byte    `gorm:"type:longblob" json:"-"`
	Title      string    `gorm:"type:varchar(255)" json:"title"`
	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploadedAt"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	// FileURL 是原始文件的临时访问链接，响应时现算，不落库。
	FileURL string `gorm:"-" json:"fileUrl,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Media) TableName() string {
	return "media"
}

// OwnedBy 返回媒体项的归属用户 ID，供 AccessPolicy 使用。
func (m *Media) OwnedBy() uint {
	return m.OwnerID
}
