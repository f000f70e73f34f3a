package components

import (
	"time"

	"folioverse.ai/internal/sim/ecs"
)

type SessionState string

const (
	SessionActive   SessionState = "active"
	SessionInactive SessionState = "inactive"
	SessionArchived SessionState = "archived"
)

// CanTransition reports whether a session state change is allowed:
// active and inactive may move between each other or to archived; archived
// is terminal.
func CanTransition(from, to SessionState) bool {
	if from == to {
		return true
	}
	switch from {
	case SessionActive:
		return to == SessionInactive || to == SessionArchived
	case SessionInactive:
		return to == SessionActive || to == SessionArchived
	default:
		return false
	}
}

// Session is the single-owned record of one conversation. Participants
// reference it by id through their Sessions component; there are no
// duplicated per-participant copies to drift apart.
type Session struct {
	ID           string
	ConnectionID string
	Participants []string
	State        SessionState
	ChatLogID    string
	Title        string
	Keywords     []string

	CreatedAt      time.Time
	LastActivityAt time.Time
	MessageCount   int
}

// Touch bumps LastActivityAt, keeping it monotonically non-decreasing.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActivityAt) {
		s.LastActivityAt = now
	}
}

// HasParticipant reports whether entityID is in the participant set.
func (s *Session) HasParticipant(entityID string) bool {
	for _, id := range s.Participants {
		if id == entityID {
			return true
		}
	}
	return false
}

// Sessions is the per-entity component listing the session ids the entity
// participates in.
type Sessions struct {
	Refs []string
}

func (s *Sessions) Kind() ecs.ComponentKind { return ecs.KindSessions }

func NewSessions() *Sessions { return &Sessions{} }

func (s *Sessions) AddRef(id string) {
	for _, r := range s.Refs {
		if r == id {
			return
		}
	}
	s.Refs = append(s.Refs, id)
}

func (s *Sessions) RemoveRef(id string) {
	for i, r := range s.Refs {
		if r == id {
			s.Refs = append(s.Refs[:i], s.Refs[i+1:]...)
			return
		}
	}
}
