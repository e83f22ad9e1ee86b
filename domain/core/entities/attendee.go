package entities

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoleAudience is the role assigned to every self-registered attendee.
const RoleAudience = "audience"

// Attendee represents a registered event participant. The challenge set maps
// each question to the attendee's private answer; answers are never exposed
// through the public profile.
type Attendee struct {
	ID           string
	EventID      string
	DisplayName  string
	Color        string
	Role         string
	ChallengeSet map[string]string
	CreatedAt    time.Time
}

// NewAttendee creates a validated attendee record for an event.
func NewAttendee(eventID, displayName, color string, challengeSet map[string]string) (*Attendee, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event ID is required")
	}
	if strings.TrimSpace(displayName) == "" {
		return nil, fmt.Errorf("display name is required")
	}
	if len(challengeSet) == 0 {
		return nil, fmt.Errorf("challenge set must not be empty")
	}
	for question, answer := range challengeSet {
		if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
			return nil, fmt.Errorf("challenge set contains an empty question or answer")
		}
	}

	return &Attendee{
		ID:           uuid.New().String(),
		EventID:      eventID,
		DisplayName:  strings.TrimSpace(displayName),
		Color:        color,
		Role:         RoleAudience,
		ChallengeSet: challengeSet,
		CreatedAt:    time.Now(),
	}, nil
}

// Validate checks that a record decoded from the store carries the fields
// required downstream. Malformed records are rejected at the boundary instead
// of being passed around as loosely typed maps.
func (a *Attendee) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("attendee record missing id")
	}
	if a.EventID == "" {
		return fmt.Errorf("attendee record missing event id")
	}
	if a.DisplayName == "" {
		return fmt.Errorf("attendee record missing display name")
	}
	return nil
}

// Questions returns the question keys of the challenge set.
func (a *Attendee) Questions() []string {
	questions := make([]string, 0, len(a.ChallengeSet))
	for q := range a.ChallengeSet {
		questions = append(questions, q)
	}
	return questions
}

// HasQuestion reports whether the question belongs to this attendee's
// challenge set.
func (a *Attendee) HasQuestion(question string) bool {
	_, ok := a.ChallengeSet[question]
	return ok
}

// AnswerMatches compares a guess against the stored answer for a question
// using exact string equality.
func (a *Attendee) AnswerMatches(question, answer string) bool {
	stored, ok := a.ChallengeSet[question]
	if !ok {
		return false
	}
	return stored == answer
}
