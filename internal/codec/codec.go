// Package codec provides the pluggable payload/header serialization pair
// used by the message store. The default is gob, Go's native object
// encoding; swapping codecs on a store instance never rewrites rows that
// were persisted under a different encoding.
package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Codec encodes and decodes one value to a storable byte slice.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// envelope wraps values so gob carries the concrete type of interface
// payloads.
type envelope struct {
	V any
}

func init() {
	// Types transmitted inside interface slots must be registered up front.
	gob.Register("")
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register([]byte(nil))
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
	gob.Register(time.Time{})
	gob.Register(uuid.UUID{})
}

// Gob is the default codec.
type Gob struct{}

func (Gob) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope{V: v}); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (Gob) Decode(data []byte) (any, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return env.V, nil
}

// JSON trades type fidelity for readable rows: numbers decode as float64
// and time values as strings. Useful when other tooling reads the tables.
type JSON struct{}

func (JSON) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return data, nil
}

func (JSON) Decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return v, nil
}

// ForName resolves a codec by its configuration name.
func ForName(name string) (Codec, error) {
	switch name {
	case "", "gob":
		return Gob{}, nil
	case "json":
		return JSON{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
