package domain

import "time"

// MessageGroup is an ordered, mutable view of the messages sharing one
// correlation key. Messages are ordered by their insertion sequence, not by
// wall-clock time.
type MessageGroup struct {
	GroupID              string
	Messages             []*Message
	Created              time.Time
	LastModified         time.Time
	Complete             bool
	LastReleasedSequence int
}

// NewMessageGroup returns the view of a group the store has never seen:
// empty, incomplete, freshly timestamped.
func NewMessageGroup(groupID string, now time.Time) *MessageGroup {
	return &MessageGroup{
		GroupID:      groupID,
		Created:      now,
		LastModified: now,
	}
}

func (g *MessageGroup) Size() int {
	return len(g.Messages)
}
