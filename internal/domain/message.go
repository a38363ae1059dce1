package domain

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Headers stamped by the store itself. Callers never set these; the store
// always treats them as ignorable when comparing message content.
const (
	HeaderSaved       = "saved"
	HeaderCreatedDate = "createdDate"
)

// DefaultIgnorableHeaders is the baseline exclusion set for content
// comparison. Stores may extend it per instance.
var DefaultIgnorableHeaders = []string{HeaderSaved, HeaderCreatedDate}

// Headers is a string-keyed mapping of typed metadata values.
type Headers map[string]any

func (h Headers) Clone() Headers {
	if h == nil {
		return Headers{}
	}
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Message is an identifiable unit of payload plus metadata. The ID is
// assigned at construction and never changes; content mutation happens by
// building a new instance.
type Message struct {
	ID      uuid.UUID
	Payload any
	Headers Headers
}

func NewMessage(payload any) *Message {
	return &Message{
		ID:      uuid.New(),
		Payload: payload,
		Headers: Headers{},
	}
}

// Clone returns a deep-enough copy: same ID and payload reference, fresh
// header map.
func (m *Message) Clone() *Message {
	return &Message{
		ID:      m.ID,
		Payload: m.Payload,
		Headers: m.Headers.Clone(),
	}
}

// WithHeader returns a copy of the message carrying the extra header.
func (m *Message) WithHeader(key string, value any) *Message {
	out := m.Clone()
	out.Headers[key] = value
	return out
}

// Saved reports whether the store has stamped this message.
func (m *Message) Saved() bool {
	v, ok := m.Headers[HeaderSaved].(bool)
	return ok && v
}

// CreatedAt returns the store-stamped creation timestamp, if present.
func (m *Message) CreatedAt() (time.Time, bool) {
	t, ok := m.Headers[HeaderCreatedDate].(time.Time)
	return t, ok
}

// EqualExceptHeaders reports structural equality of two messages after
// excluding the named headers: same payload and the same remaining header
// mapping. IDs are not compared; identity and content are separate concerns.
func EqualExceptHeaders(a, b *Message, ignore ...string) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !reflect.DeepEqual(a.Payload, b.Payload) {
		return false
	}
	skip := make(map[string]struct{}, len(ignore))
	for _, k := range ignore {
		skip[k] = struct{}{}
	}
	return headersEqual(a.Headers, b.Headers, skip) && headersEqual(b.Headers, a.Headers, skip)
}

func headersEqual(a, b Headers, skip map[string]struct{}) bool {
	for k, av := range a {
		if _, ok := skip[k]; ok {
			continue
		}
		bv, ok := b[k]
		if !ok || !reflect.DeepEqual(av, bv) {
			return false
		}
	}
	return true
}
