package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"resonance/internal/moderation"

	bolt "go.etcd.io/bbolt"
)

// InboxStore keeps the notifications delivered to each user. Notification
// ids sort chronologically, so keys within a user prefix are in time order.
type InboxStore struct {
	db *bolt.DB
}

func inboxPrefix(userID string) []byte {
	return append([]byte(userID), 0)
}

func inboxKey(userID, notificationID string) []byte {
	return append(inboxPrefix(userID), notificationID...)
}

// Notify stores n in the user's inbox. Redelivery of the same notification
// is a no-op.
func (s *InboxStore) Notify(ctx context.Context, n moderation.Notification) error {
	if n.UserID == "" || n.ID == "" {
		return fmt.Errorf("notification requires user and id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketNotificationInbox)
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", BucketNotificationInbox)
		}

		key := inboxKey(n.UserID, n.ID)
		if bucket.Get(key) != nil {
			return nil
		}

		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("failed to marshal notification: %w", err)
		}
		return bucket.Put(key, data)
	})
}

// List returns up to limit notifications for userID, newest first.
// A non-positive limit returns all of them.
func (s *InboxStore) List(ctx context.Context, userID string, limit int) ([]moderation.Notification, error) {
	var out []moderation.Notification

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketNotificationInbox)
		if bucket == nil {
			return nil
		}

		prefix := inboxPrefix(userID)
		c := bucket.Cursor()

		// Seek past the prefix, then walk backwards for newest-first order
		k, _ := c.Seek(append(append([]byte{}, prefix[:len(prefix)-1]...), 1))
		if k == nil {
			k, _ = c.Last()
		} else {
			k, _ = c.Prev()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Prev() {
			var n moderation.Notification
			if err := json.Unmarshal(bucket.Get(k), &n); err != nil {
				return fmt.Errorf("failed to decode notification %q: %w", k, err)
			}
			out = append(out, n)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})

	return out, err
}
