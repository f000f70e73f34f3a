// Package store persists session, chat-log, and brain records. Lookups never
// error on miss; saves are idempotent last-writer-wins upserts.
package store

import (
	"errors"
	"strings"
	"time"
)

const BundleVersion = 1

// ErrUnsupportedVersion rejects an import bundle before any record is
// written.
var ErrUnsupportedVersion = errors.New("unsupported bundle version")

type SessionRecord struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connection_id,omitempty"`
	Participants []string  `json:"participants"`
	State        string    `json:"state"`
	ChatLogID    string    `json:"chat_log_id"`
	Title        string    `json:"title,omitempty"`
	Keywords     []string  `json:"keywords,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity_at"`
	MessageCount int       `json:"message_count"`
	Timestamp    time.Time `json:"timestamp"`
}

type MessageRecord struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Images    []string  `json:"images,omitempty"`
}

type ChatLogRecord struct {
	ID        string          `json:"id"`
	Messages  []MessageRecord `json:"messages"`
	Timestamp time.Time       `json:"timestamp"`
}

type PersonalityRecord struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
}

type RelationshipRecord struct {
	Interactions     int       `json:"interactions"`
	LastInteraction  time.Time `json:"last_interaction"`
	Sentiment        string    `json:"sentiment"`
	Topics           []string  `json:"topics,omitempty"`
	MemorableMoments []string  `json:"memorable_moments,omitempty"`
}

type MemoryRecord struct {
	Content  string    `json:"content"`
	Category string    `json:"category,omitempty"`
	At       time.Time `json:"at"`
}

type ExperienceRecord struct {
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

type BrainRecord struct {
	EntityID        string                        `json:"entity_id"`
	Model           string                        `json:"model"`
	PrimaryFunction string                        `json:"primary_function,omitempty"`
	Personality     PersonalityRecord             `json:"personality"`
	CurrentStatus   string                        `json:"current_status,omitempty"`
	Emotion         string                        `json:"emotion,omitempty"`
	Energy          float64                       `json:"energy"`
	Interests       []string                      `json:"interests,omitempty"`
	Expertise       []string                      `json:"expertise,omitempty"`
	ContextWindow   int                           `json:"context_window,omitempty"`
	ShortTermMemory []MemoryRecord                `json:"short_term_memory,omitempty"`
	LongTermMemory  map[string][]MemoryRecord     `json:"long_term_memory,omitempty"`
	Experiences     []ExperienceRecord            `json:"experiences,omitempty"`
	Relationships   map[string]RelationshipRecord `json:"relationships,omitempty"`
	Timestamp       time.Time                     `json:"timestamp"`
}

// Bundle is the full-snapshot export/import format.
type Bundle struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Sessions   []SessionRecord `json:"sessions"`
	ChatLogs   []ChatLogRecord `json:"chat_logs"`
	Brains     []BrainRecord   `json:"brains"`
}

// Store is the durable backend contract. Implementations: SQLite and the
// in-memory degraded mode.
type Store interface {
	SaveSession(r SessionRecord) error
	SaveChatLog(r ChatLogRecord) error
	SaveBrain(r BrainRecord) error

	LoadSession(id string) (SessionRecord, bool)
	LoadChatLog(id string) (ChatLogRecord, bool)
	LoadBrain(entityID string) (BrainRecord, bool)

	AllSessions() ([]SessionRecord, error)
	SearchSessions(keywords []string) ([]SessionRecord, error)
	SearchByTitle(term string) ([]SessionRecord, error)
	DeleteSession(id string) error

	ExportAll() (Bundle, error)
	Import(b Bundle) error

	Close() error
}

// matchKeywords reports whether any stored keyword contains any query
// keyword, case-insensitively.
func matchKeywords(stored, query []string) bool {
	for _, q := range query {
		q = strings.ToLower(strings.TrimSpace(q))
		if q == "" {
			continue
		}
		for _, k := range stored {
			if strings.Contains(strings.ToLower(k), q) {
				return true
			}
		}
	}
	return false
}

func matchTitle(title, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(title), term)
}
