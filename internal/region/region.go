// Package region derives the storage keys that partition otherwise-colliding
// identifiers across independent logical stores sharing one database.
package region

import (
	"strings"

	"github.com/google/uuid"
)

// Default is the region sentinel used when a store is configured without one.
const Default = "DEFAULT"

// keyspace namespaces the name-based UUID derivation for non-UUID
// identifiers. Changing it would orphan every persisted group key.
var keyspace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Normalize returns a usable region label.
func Normalize(r string) string {
	r = strings.TrimSpace(r)
	if r == "" {
		return Default
	}
	return r
}

// Key maps a logical identifier to its storage key. Identifiers that already
// parse as UUIDs map to themselves, so a key read back from the database can
// be fed through Key again without changing. Anything else derives a
// deterministic name-based UUID.
func Key(logicalID string) string {
	if u, err := uuid.Parse(logicalID); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(keyspace, []byte(logicalID)).String()
}
