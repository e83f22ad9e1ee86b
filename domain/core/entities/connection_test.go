package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnection_Success(t *testing.T) {
	// Act
	conn, err := NewConnection("event-1", "parent-1", "child-1", []string{"Q?"})

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, conn.ID)
	assert.Equal(t, "event-1", conn.EventID)
	assert.Equal(t, "parent-1", conn.ParentID)
	assert.Equal(t, "child-1", conn.ChildID)
	assert.Equal(t, []string{"Q?"}, conn.QuestionsUsed)
	assert.False(t, conn.Timestamp.IsZero())
	assert.False(t, conn.IsSelfLoop())
}

func TestNewConnection_RejectsSelfLoop(t *testing.T) {
	_, err := NewConnection("event-1", "same", "same", nil)
	assert.Error(t, err)
}

func TestNewConnection_RejectsMissingIDs(t *testing.T) {
	_, err := NewConnection("", "p", "c", nil)
	assert.Error(t, err)

	_, err = NewConnection("event-1", "", "c", nil)
	assert.Error(t, err)

	_, err = NewConnection("event-1", "p", "", nil)
	assert.Error(t, err)
}

func TestPairKey_DirectionMatters(t *testing.T) {
	ab := PairKey("a", "b")
	ba := PairKey("b", "a")

	assert.NotEqual(t, ab, ba, "(A,B) and (B,A) are distinct edges")

	conn, err := NewConnection("event-1", "a", "b", nil)
	require.NoError(t, err)
	assert.Equal(t, ab, conn.PairKey())
}
