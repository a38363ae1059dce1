// Package store implements a group-aware persistent message store over a
// relational backend. Messages are stored once per region and may belong to
// any number of ordered groups keyed by a correlation value. The store opens
// no transactions of its own: every operation runs on the Conn it was built
// with, so callers decide the transaction boundary by handing it a *sql.DB
// or a *sql.Tx.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"msgstore/internal/codec"
	"msgstore/internal/domain"
	"msgstore/internal/metrics"
	"msgstore/internal/region"
)

// Conn is the transactional execution interface the store runs on.
// Both *sql.DB and *sql.Tx satisfy it.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db      Conn
	owned   *sql.DB
	dialect Dialect

	region        string
	codec         codec.Codec
	ignorable     []string
	timeoutOnIdle bool
	now           func() time.Time
	log           *zap.Logger
	metrics       *metrics.StoreMetrics

	mu        sync.RWMutex
	callbacks []ExpiryCallback
}

type Option func(*Store)

// WithRegion partitions this store instance under the given region label.
func WithRegion(r string) Option {
	return func(s *Store) { s.region = region.Normalize(r) }
}

// WithCodec swaps the payload/header serializer for this instance.
func WithCodec(c codec.Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithDialect selects the SQL dialect; New defaults to SQLite.
func WithDialect(d Dialect) Option {
	return func(s *Store) { s.dialect = d }
}

// WithTimeoutOnIdle switches group expiry from creation-based to idle-based:
// the staleness reference becomes the group's last-modified timestamp, so
// every add or remove postpones expiry.
func WithTimeoutOnIdle(onIdle bool) Option {
	return func(s *Store) { s.timeoutOnIdle = onIdle }
}

// WithIgnorableHeaders extends the set of headers excluded from content
// comparison. The store-stamped headers are always excluded.
func WithIgnorableHeaders(names ...string) Option {
	return func(s *Store) { s.ignorable = append(s.ignorable, names...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides the time source. Tests use this to exercise expiry
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New builds a store over an existing connection or transaction.
func New(db Conn, opts ...Option) *Store {
	s := &Store{
		db:        db,
		dialect:   SQLite,
		region:    region.Default,
		codec:     codec.Gob{},
		ignorable: append([]string(nil), domain.DefaultIgnorableHeaders...),
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the database itself, applies backend pragmas, bootstraps the
// schema and returns a store that owns the connection. The driver must be
// registered by the caller's imports.
func Open(driver, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	dialect := DialectForDriver(driver)
	if dialect == SQLite {
		// Single writer avoids SQLITE_BUSY under concurrent pollers.
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA journal_mode=WAL;",
			"PRAGMA synchronous=NORMAL;",
			"PRAGMA foreign_keys=ON;",
			"PRAGMA busy_timeout=5000;",
		}
		for _, p := range pragmas {
			if _, err := db.Exec(p); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", p, err)
			}
		}
	}
	s := New(db, opts...)
	s.owned = db
	s.dialect = dialect
	if err := s.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the three relations if they do not exist. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema()); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close closes the underlying database when this store opened it.
func (s *Store) Close() error {
	if s.owned == nil {
		return nil
	}
	return s.owned.Close()
}

// WithTx returns a store running every operation on the given transaction.
// Configuration and registered expiry callbacks are shared with the parent.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	s.mu.RLock()
	cbs := append([]ExpiryCallback(nil), s.callbacks...)
	s.mu.RUnlock()
	return &Store{
		db:            tx,
		dialect:       s.dialect,
		region:        s.region,
		codec:         s.codec,
		ignorable:     append([]string(nil), s.ignorable...),
		timeoutOnIdle: s.timeoutOnIdle,
		now:           s.now,
		log:           s.log,
		metrics:       s.metrics,
		callbacks:     cbs,
	}
}

// Region returns the region label this instance is scoped to.
func (s *Store) Region() string {
	return s.region
}

func (s *Store) q(query string) string {
	return s.dialect.rebind(query)
}

func (s *Store) encodeMessage(m *domain.Message) (headers, payload []byte, err error) {
	headers, err = s.codec.Encode(map[string]any(m.Headers))
	if err != nil {
		return nil, nil, fmt.Errorf("encode headers for %s: %w", m.ID, err)
	}
	payload, err = s.codec.Encode(m.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encode payload for %s: %w", m.ID, err)
	}
	return headers, payload, nil
}

func (s *Store) decodeMessage(key string, headers, payload []byte) (*domain.Message, error) {
	id, err := uuidFromKey(key)
	if err != nil {
		return nil, err
	}
	hv, err := s.codec.Decode(headers)
	if err != nil {
		return nil, fmt.Errorf("decode headers for %s: %w", key, err)
	}
	hm, ok := hv.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode headers for %s: unexpected type %T", key, hv)
	}
	pv, err := s.codec.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload for %s: %w", key, err)
	}
	return &domain.Message{ID: id, Payload: pv, Headers: domain.Headers(hm)}, nil
}
