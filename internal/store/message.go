package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"msgstore/internal/domain"
)

func uuidFromKey(key string) (uuid.UUID, error) {
	id, err := uuid.Parse(key)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("malformed message key %q: %w", key, err)
	}
	return id, nil
}

// Add persists the message under the current region with idempotent upsert
// semantics:
//
//   - unknown id: insert, stamping the saved and createdDate headers, and
//     return the stamped copy;
//   - known id, content equal modulo ignorable headers: no write, the
//     caller's instance is returned unchanged so callers can compare by
//     identity;
//   - known id, content changed: update headers/payload, preserve the
//     original creation timestamp, return a fresh instance.
func (s *Store) Add(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	stored, err := s.Get(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return s.insertMessage(ctx, m)
	}
	if domain.EqualExceptHeaders(m, stored, s.ignorable...) {
		return m, nil
	}
	return s.updateMessage(ctx, m, stored)
}

func (s *Store) insertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	now := s.now()
	saved := m.Clone()
	saved.Headers[domain.HeaderSaved] = true
	saved.Headers[domain.HeaderCreatedDate] = now

	headers, payload, err := s.encodeMessage(saved)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, s.q(`
INSERT INTO msgstore_message(region, message_key, headers, payload, created_at_utc_ns)
VALUES (?, ?, ?, ?, ?)`),
		s.region, saved.ID.String(), headers, payload, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert message %s: %w", saved.ID, err)
	}
	s.log.Debug("message inserted", zap.String("id", saved.ID.String()), zap.String("region", s.region))
	if s.metrics != nil {
		s.metrics.MessagesAdded.WithLabelValues(s.region).Inc()
	}
	return saved, nil
}

func (s *Store) updateMessage(ctx context.Context, m, stored *domain.Message) (*domain.Message, error) {
	updated := m.Clone()
	updated.Headers[domain.HeaderSaved] = true
	if created, ok := stored.CreatedAt(); ok {
		updated.Headers[domain.HeaderCreatedDate] = created
	} else {
		updated.Headers[domain.HeaderCreatedDate] = s.now()
	}

	headers, payload, err := s.encodeMessage(updated)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, s.q(`
UPDATE msgstore_message SET headers=?, payload=?
WHERE region=? AND message_key=?`),
		headers, payload, s.region, updated.ID.String())
	if err != nil {
		return nil, fmt.Errorf("update message %s: %w", updated.ID, err)
	}
	s.log.Debug("message updated", zap.String("id", updated.ID.String()), zap.String("region", s.region))
	if s.metrics != nil {
		s.metrics.MessagesUpdated.WithLabelValues(s.region).Inc()
	}
	return updated, nil
}

// Get returns the message stored under the id in the current region, or
// (nil, nil) when absent. Absence is an expected outcome, not an error.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	return s.getByKey(ctx, id.String())
}

func (s *Store) getByKey(ctx context.Context, key string) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
SELECT headers, payload FROM msgstore_message
WHERE region=? AND message_key=?`), s.region, key)
	var headers, payload []byte
	err := row.Scan(&headers, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", key, err)
	}
	return s.decodeMessage(key, headers, payload)
}

// Remove deletes the message and returns the prior value, or (nil, nil)
// when nothing was stored under the id.
func (s *Store) Remove(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	prior, err := s.Get(ctx, id)
	if err != nil || prior == nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, s.q(`
DELETE FROM msgstore_message WHERE region=? AND message_key=?`), s.region, id.String())
	if err != nil {
		return nil, fmt.Errorf("remove message %s: %w", id, err)
	}
	return prior, nil
}

// Count returns the number of messages stored in the current region.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q(`
SELECT count(*) FROM msgstore_message WHERE region=?`), s.region).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
