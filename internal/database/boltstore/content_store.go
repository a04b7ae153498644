package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"resonance/internal/moderation"

	bolt "go.etcd.io/bbolt"
)

// Tombstone marks a piece of content as removed by moderation
type Tombstone struct {
	ContentType moderation.ReportType `json:"content_type"`
	ContentID   string                `json:"content_id"`
	ActionID    string                `json:"action_id"`
	RemovedAt   time.Time             `json:"removed_at"`
}

// ContentStore records removed content. Removal is permanent: there is no
// way to restore a tombstoned item.
type ContentStore struct {
	db  *bolt.DB
	now func() time.Time
}

var _ moderation.ContentRemover = (*ContentStore)(nil)

func tombstoneKey(contentType moderation.ReportType, contentID string) []byte {
	return []byte(string(contentType) + ":" + contentID)
}

// RemoveContent tombstones the content. Removing already removed content
// keeps the original tombstone.
func (s *ContentStore) RemoveContent(ctx context.Context, contentType moderation.ReportType, contentID string, actionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketContentTombstones)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketContentTombstones)
		}

		key := tombstoneKey(contentType, contentID)
		if bucket.Get(key) != nil {
			return nil
		}

		data, err := json.Marshal(Tombstone{
			ContentType: contentType,
			ContentID:   contentID,
			ActionID:    actionID,
			RemovedAt:   s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal tombstone: %w", err)
		}
		return bucket.Put(key, data)
	})
}

// IsRemoved checks if content has been removed.
func (s *ContentStore) IsRemoved(ctx context.Context, contentType moderation.ReportType, contentID string) (bool, error) {
	t, err := s.GetTombstone(ctx, contentType, contentID)
	return t != nil, err
}

// GetTombstone retrieves the tombstone for content, or nil if not removed.
func (s *ContentStore) GetTombstone(ctx context.Context, contentType moderation.ReportType, contentID string) (*Tombstone, error) {
	var t *Tombstone

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketContentTombstones)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(tombstoneKey(contentType, contentID))
		if data == nil {
			return nil
		}

		t = &Tombstone{}
		return json.Unmarshal(data, t)
	})

	return t, err
}
