package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"msgstore/internal/domain"
	"msgstore/internal/region"
)

// AddMessageToGroup appends the message to the group's ordered membership,
// creating the group metadata on first add. Membership is a many-to-many
// join: the same message id may belong to any number of groups, sharing one
// stored copy of the content. The member's sequence is derived from the
// existing membership inside the statement itself, never from wall-clock
// time, so two adds in the same instant still order deterministically.
func (s *Store) AddMessageToGroup(ctx context.Context, groupID string, m *domain.Message) error {
	key := region.Key(groupID)
	now := s.now().UnixNano()

	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO msgstore_message_group(region, group_key, created_at_utc_ns, updated_at_utc_ns, complete, last_released_seq)
VALUES (?, ?, ?, ?, 0, 0)
ON CONFLICT(region, group_key)
DO UPDATE SET updated_at_utc_ns=excluded.updated_at_utc_ns`),
		s.region, key, now, now)
	if err != nil {
		return fmt.Errorf("upsert group %s: %w", groupID, err)
	}

	if _, err := s.Add(ctx, m); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.q(`
INSERT INTO msgstore_group_member(region, group_key, message_key, seq)
SELECT ?, ?, ?, COALESCE(MAX(seq), 0) + 1
FROM msgstore_group_member
WHERE region=? AND group_key=?
ON CONFLICT(region, group_key, message_key) DO NOTHING`),
		s.region, key, m.ID.String(), s.region, key)
	if err != nil {
		return fmt.Errorf("append member %s to group %s: %w", m.ID, groupID, err)
	}
	s.log.Debug("message added to group",
		zap.String("group", groupID), zap.String("id", m.ID.String()), zap.String("region", s.region))
	return nil
}

// RemoveMessageFromGroup deletes the membership row. The group survives even
// when emptied; only RemoveMessageGroup discards its metadata.
func (s *Store) RemoveMessageFromGroup(ctx context.Context, groupID string, m *domain.Message) error {
	key := region.Key(groupID)
	_, err := s.db.ExecContext(ctx, s.q(`
DELETE FROM msgstore_group_member
WHERE region=? AND group_key=? AND message_key=?`),
		s.region, key, m.ID.String())
	if err != nil {
		return fmt.Errorf("remove member %s from group %s: %w", m.ID, groupID, err)
	}
	return s.touchGroup(ctx, key)
}

func (s *Store) touchGroup(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
UPDATE msgstore_message_group SET updated_at_utc_ns=?
WHERE region=? AND group_key=?`),
		s.now().UnixNano(), s.region, key)
	if err != nil {
		return fmt.Errorf("touch group %s: %w", key, err)
	}
	return nil
}

// GetMessageGroup reconstructs the group with members in insertion order.
// Reading an unknown group is not an error: it yields an empty, incomplete,
// freshly timestamped view.
func (s *Store) GetMessageGroup(ctx context.Context, groupID string) (*domain.MessageGroup, error) {
	key := region.Key(groupID)
	row := s.db.QueryRowContext(ctx, s.q(`
SELECT created_at_utc_ns, updated_at_utc_ns, complete, last_released_seq
FROM msgstore_message_group
WHERE region=? AND group_key=?`), s.region, key)

	var createdNs, updatedNs, complete, lastReleased int64
	err := row.Scan(&createdNs, &updatedNs, &complete, &lastReleased)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewMessageGroup(groupID, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", groupID, err)
	}

	group := &domain.MessageGroup{
		GroupID:              groupID,
		Created:              time.Unix(0, createdNs),
		LastModified:         time.Unix(0, updatedNs),
		Complete:             complete != 0,
		LastReleasedSequence: int(lastReleased),
	}
	group.Messages, err = s.groupMembers(ctx, key)
	if err != nil {
		return nil, err
	}
	return group, nil
}

func (s *Store) groupMembers(ctx context.Context, key string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
SELECT m.message_key, m.headers, m.payload
FROM msgstore_group_member gm
JOIN msgstore_message m ON m.region = gm.region AND m.message_key = gm.message_key
WHERE gm.region=? AND gm.group_key=?
ORDER BY gm.seq ASC`), s.region, key)
	if err != nil {
		return nil, fmt.Errorf("list group members %s: %w", key, err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var mkey string
		var headers, payload []byte
		if err := rows.Scan(&mkey, &headers, &payload); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		m, err := s.decodeMessage(mkey, headers, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PollMessageFromGroup atomically removes and returns the member with the
// lowest sequence, or (nil, nil) when the group has no members. The removal
// is a single conditional DELETE, so concurrent pollers never receive the
// same member: a poller that loses the race affects zero rows and retries
// against the remaining membership.
func (s *Store) PollMessageFromGroup(ctx context.Context, groupID string) (*domain.Message, error) {
	key := region.Key(groupID)
	for {
		row := s.db.QueryRowContext(ctx, s.q(`
DELETE FROM msgstore_group_member
WHERE region=? AND group_key=? AND seq=(
	SELECT MIN(seq) FROM msgstore_group_member WHERE region=? AND group_key=?
)
RETURNING message_key`), s.region, key, s.region, key)

		var mkey string
		err := row.Scan(&mkey)
		if errors.Is(err, sql.ErrNoRows) {
			var remaining int
			err := s.db.QueryRowContext(ctx, s.q(`
SELECT count(*) FROM msgstore_group_member WHERE region=? AND group_key=?`),
				s.region, key).Scan(&remaining)
			if err != nil {
				return nil, fmt.Errorf("poll group %s: %w", groupID, err)
			}
			if remaining == 0 {
				return nil, nil
			}
			continue // lost the race to a concurrent poller
		}
		if err != nil {
			return nil, fmt.Errorf("poll group %s: %w", groupID, err)
		}

		if err := s.touchGroup(ctx, key); err != nil {
			return nil, err
		}
		m, err := s.getByKey(ctx, mkey)
		if err != nil {
			return nil, err
		}
		if m == nil {
			// Membership pointed at a message removed out of band.
			s.log.Warn("group member without stored message",
				zap.String("group", groupID), zap.String("key", mkey))
			continue
		}
		if s.metrics != nil {
			s.metrics.GroupPolls.WithLabelValues(s.region).Inc()
		}
		return m, nil
	}
}

// RemoveMessageGroup deletes the group's metadata and all membership rows.
// The member messages themselves stay in the message relation.
func (s *Store) RemoveMessageGroup(ctx context.Context, groupID string) error {
	key := region.Key(groupID)
	if _, err := s.db.ExecContext(ctx, s.q(`
DELETE FROM msgstore_group_member WHERE region=? AND group_key=?`), s.region, key); err != nil {
		return fmt.Errorf("remove group members %s: %w", groupID, err)
	}
	if _, err := s.db.ExecContext(ctx, s.q(`
DELETE FROM msgstore_message_group WHERE region=? AND group_key=?`), s.region, key); err != nil {
		return fmt.Errorf("remove group %s: %w", groupID, err)
	}
	s.log.Debug("group removed", zap.String("group", groupID), zap.String("region", s.region))
	return nil
}

// CompleteGroup marks the group complete. Idempotent; completion persists
// across membership mutations, including emptying the group. Completing a
// group the store has never seen persists its metadata, honoring the rule
// that explicitly persisted group state is never silently forgotten.
func (s *Store) CompleteGroup(ctx context.Context, groupID string) error {
	key := region.Key(groupID)
	now := s.now().UnixNano()
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO msgstore_message_group(region, group_key, created_at_utc_ns, updated_at_utc_ns, complete, last_released_seq)
VALUES (?, ?, ?, ?, 1, 0)
ON CONFLICT(region, group_key)
DO UPDATE SET complete=1, updated_at_utc_ns=excluded.updated_at_utc_ns`),
		s.region, key, now, now)
	if err != nil {
		return fmt.Errorf("complete group %s: %w", groupID, err)
	}
	return nil
}

// SetLastReleasedSequenceNumberForGroup records the last released sequence.
// Membership and completion are unaffected.
func (s *Store) SetLastReleasedSequenceNumberForGroup(ctx context.Context, groupID string, n int) error {
	key := region.Key(groupID)
	now := s.now().UnixNano()
	_, err := s.db.ExecContext(ctx, s.q(`
INSERT INTO msgstore_message_group(region, group_key, created_at_utc_ns, updated_at_utc_ns, complete, last_released_seq)
VALUES (?, ?, ?, ?, 0, ?)
ON CONFLICT(region, group_key)
DO UPDATE SET last_released_seq=?, updated_at_utc_ns=excluded.updated_at_utc_ns`),
		s.region, key, now, now, n, n)
	if err != nil {
		return fmt.Errorf("set last released sequence for group %s: %w", groupID, err)
	}
	return nil
}

// GroupCount returns the number of groups in the current region.
func (s *Store) GroupCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`
SELECT count(*) FROM msgstore_message_group WHERE region=?`), s.region).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count groups: %w", err)
	}
	return n, nil
}

// TotalMemberCount returns the membership count across all groups in the
// current region.
func (s *Store) TotalMemberCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`
SELECT count(*) FROM msgstore_group_member WHERE region=?`), s.region).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count group members: %w", err)
	}
	return n, nil
}
