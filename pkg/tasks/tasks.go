// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// BatchIngestedTask represents a completed bulk ingestion whose media
// should get their report thumbnails pre-rendered in the background.
type BatchIngestedTask struct {
	BatchID       uint   `json:"batch_id"`
	ReferenceCode string `json:"reference_code"`
	OwnerID       uint   `json:"owner_id"`
	MediaIDs      []uint `json:"media_ids"`
}
