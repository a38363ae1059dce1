package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"msgstore/internal/domain"
)

// ExpiryCallback is invoked once per candidate-expired group. The sweeper
// itself never mutates state; callbacks decide the action, typically
// removing the group through the store they are handed.
type ExpiryCallback func(ctx context.Context, s *Store, group *domain.MessageGroup)

// RegisterExpiryCallback appends a handler to the observer list. Every
// registered callback runs for every candidate group.
func (s *Store) RegisterExpiryCallback(cb ExpiryCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// ExpireMessageGroups scans the region for groups whose reference timestamp
// is at least timeout old and invokes the registered callbacks on each. The
// reference is the creation timestamp by default, or the last-modified
// timestamp when the store was built WithTimeoutOnIdle — under the idle
// policy every add or remove postpones expiry, under the creation policy
// nothing does. Returns the number of candidate groups.
func (s *Store) ExpireMessageGroups(ctx context.Context, timeout time.Duration) (int, error) {
	refColumn := "created_at_utc_ns"
	if s.timeoutOnIdle {
		refColumn = "updated_at_utc_ns"
	}
	cutoff := s.now().Add(-timeout).UnixNano()

	rows, err := s.db.QueryContext(ctx, s.q(fmt.Sprintf(`
SELECT group_key FROM msgstore_message_group
WHERE region=? AND %s <= ?`, refColumn)), s.region, cutoff)
	if err != nil {
		return 0, fmt.Errorf("scan expired groups: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired group key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	s.mu.RLock()
	callbacks := append([]ExpiryCallback(nil), s.callbacks...)
	s.mu.RUnlock()

	for _, key := range keys {
		// Group keys are storage keys already, so the view's GroupID feeds
		// straight back into RemoveMessageGroup and friends.
		group, err := s.GetMessageGroup(ctx, key)
		if err != nil {
			return 0, err
		}
		s.log.Debug("group expired",
			zap.String("group", key),
			zap.Int("size", group.Size()),
			zap.String("policy", refColumn))
		for _, cb := range callbacks {
			cb(ctx, s, group)
		}
		if s.metrics != nil {
			s.metrics.GroupsExpired.WithLabelValues(s.region).Inc()
		}
	}
	return len(keys), nil
}
