package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Connection is a directed edge recording that the parent attendee correctly
// answered a question about the child attendee. Connections are append-only;
// they are never mutated or deleted.
type Connection struct {
	ID            string
	EventID       string
	ParentID      string
	ChildID       string
	QuestionsUsed []string
	Timestamp     time.Time
}

// NewConnection creates a validated connection edge. Self-loops are rejected
// here so they can never be constructed, let alone persisted.
func NewConnection(eventID, parentID, childID string, questionsUsed []string) (*Connection, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event ID is required")
	}
	if parentID == "" || childID == "" {
		return nil, fmt.Errorf("both parent and child attendee IDs are required")
	}
	if parentID == childID {
		return nil, fmt.Errorf("connection cannot reference the same attendee twice")
	}

	return &Connection{
		ID:            uuid.New().String(),
		EventID:       eventID,
		ParentID:      parentID,
		ChildID:       childID,
		QuestionsUsed: questionsUsed,
		Timestamp:     time.Now(),
	}, nil
}

// Validate checks a record decoded from the store. Records missing either
// endpoint are dropped at the boundary.
func (c *Connection) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("connection record missing id")
	}
	if c.ParentID == "" {
		return fmt.Errorf("connection record missing parent id")
	}
	if c.ChildID == "" {
		return fmt.Errorf("connection record missing child id")
	}
	return nil
}

// IsSelfLoop reports whether the edge points at its own origin.
func (c *Connection) IsSelfLoop() bool {
	return c.ParentID == c.ChildID
}

// PairKey returns the ordered-pair identity used for deduplication. The
// relation is directed: (A,B) and (B,A) are distinct edges.
func (c *Connection) PairKey() string {
	return PairKey(c.ParentID, c.ChildID)
}

// PairKey builds the ordered-pair key for a parent/child pair.
func PairKey(parentID, childID string) string {
	return fmt.Sprintf("%s#%s", parentID, childID)
}
