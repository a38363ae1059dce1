package store

import "strconv"

// Dialect covers the differences between the supported backends: DDL types
// and placeholder syntax. Queries in this package are written with `?`
// placeholders and rebound for backends that number them.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) Dialect {
	switch driver {
	case "postgres":
		return Postgres
	default:
		return SQLite
	}
}

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// rebind rewrites `?` placeholders to `$1..$n` for postgres. Question marks
// inside quoted literals are not handled; queries here never contain them.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b []byte
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b = append(b, query[i])
			continue
		}
		n++
		b = append(b, '$')
		b = strconv.AppendInt(b, int64(n), 10)
	}
	return string(b)
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS msgstore_message (
	region TEXT NOT NULL,
	message_key TEXT NOT NULL,
	headers BLOB NOT NULL,
	payload BLOB NOT NULL,
	created_at_utc_ns INTEGER NOT NULL,
	PRIMARY KEY (region, message_key)
);

CREATE TABLE IF NOT EXISTS msgstore_message_group (
	region TEXT NOT NULL,
	group_key TEXT NOT NULL,
	created_at_utc_ns INTEGER NOT NULL,
	updated_at_utc_ns INTEGER NOT NULL,
	complete INTEGER NOT NULL DEFAULT 0,
	last_released_seq INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (region, group_key)
);

CREATE TABLE IF NOT EXISTS msgstore_group_member (
	region TEXT NOT NULL,
	group_key TEXT NOT NULL,
	message_key TEXT NOT NULL,
	seq INTEGER NOT NULL,
	PRIMARY KEY (region, group_key, message_key)
);

CREATE INDEX IF NOT EXISTS idx_msgstore_member_seq
	ON msgstore_group_member(region, group_key, seq);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS msgstore_message (
	region TEXT NOT NULL,
	message_key TEXT NOT NULL,
	headers BYTEA NOT NULL,
	payload BYTEA NOT NULL,
	created_at_utc_ns BIGINT NOT NULL,
	PRIMARY KEY (region, message_key)
);

CREATE TABLE IF NOT EXISTS msgstore_message_group (
	region TEXT NOT NULL,
	group_key TEXT NOT NULL,
	created_at_utc_ns BIGINT NOT NULL,
	updated_at_utc_ns BIGINT NOT NULL,
	complete INTEGER NOT NULL DEFAULT 0,
	last_released_seq BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (region, group_key)
);

CREATE TABLE IF NOT EXISTS msgstore_group_member (
	region TEXT NOT NULL,
	group_key TEXT NOT NULL,
	message_key TEXT NOT NULL,
	seq BIGINT NOT NULL,
	PRIMARY KEY (region, group_key, message_key)
);

CREATE INDEX IF NOT EXISTS idx_msgstore_member_seq
	ON msgstore_group_member(region, group_key, seq);
`

func (d Dialect) schema() string {
	if d == Postgres {
		return postgresSchema
	}
	return sqliteSchema
}
