package systems

import (
	"log"
	"time"

	"folioverse.ai/internal/persistence/store"
	"folioverse.ai/internal/sim/components"
	"folioverse.ai/internal/sim/ecs"
)

// PersistSystem sweeps live state into the store on a fixed interval.
// Saves are snapshots taken on the world goroutine and handed to the store
// synchronously; the store itself decides durability semantics.
type PersistSystem struct {
	log      *log.Logger
	sessions *SessionSystem
	store    store.Store

	interval time.Duration
	elapsed  time.Duration

	saves uint64
}

func NewPersistSystem(logger *log.Logger, sessions *SessionSystem, st store.Store, interval time.Duration) *PersistSystem {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PersistSystem{log: logger, sessions: sessions, store: st, interval: interval}
}

func (s *PersistSystem) Requires() []ecs.ComponentKind {
	return []ecs.ComponentKind{ecs.KindBrain}
}

func (s *PersistSystem) Update(w *ecs.World, dt time.Duration, entities []*ecs.Entity) {
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	s.elapsed = 0
	s.sweep(w, entities)
}

// ForceSave persists everything immediately, outside the autosave cadence.
func (s *PersistSystem) ForceSave(w *ecs.World) {
	s.sweep(w, w.EntitiesWith(ecs.KindBrain))
}

func (s *PersistSystem) Saves() uint64 { return s.saves }

func (s *PersistSystem) sweep(w *ecs.World, brainy []*ecs.Entity) {
	now := w.Now()
	var failed int

	for _, sess := range s.sessions.Sessions() {
		if err := s.store.SaveSession(SessionToRecord(sess, now)); err != nil {
			failed++
			s.log.Printf("[persist] save session %s: %v", sess.ID, err)
			continue
		}
		if logc := s.sessions.ChatLog(sess.ChatLogID); logc != nil {
			if err := s.store.SaveChatLog(ChatLogToRecord(logc, now)); err != nil {
				failed++
				s.log.Printf("[persist] save chatlog %s: %v", logc.ID, err)
			}
		}
	}

	for _, e := range brainy {
		brain := e.Component(ecs.KindBrain).(*components.Brain)
		if err := s.store.SaveBrain(BrainToRecord(e.ID, brain, now)); err != nil {
			failed++
			s.log.Printf("[persist] save brain %s: %v", e.ID, err)
		}
	}

	s.saves++
	if failed > 0 {
		s.log.Printf("[persist] sweep done with %d failures", failed)
	}
}

// SessionToRecord converts a live session into its storage form.
func SessionToRecord(sess *components.Session, now time.Time) store.SessionRecord {
	return store.SessionRecord{
		ID:           sess.ID,
		ConnectionID: sess.ConnectionID,
		Participants: append([]string(nil), sess.Participants...),
		State:        string(sess.State),
		ChatLogID:    sess.ChatLogID,
		Title:        sess.Title,
		Keywords:     append([]string(nil), sess.Keywords...),
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivityAt,
		MessageCount: sess.MessageCount,
		Timestamp:    now,
	}
}

// SessionFromRecord rebuilds a live session from storage.
func SessionFromRecord(r store.SessionRecord) *components.Session {
	return &components.Session{
		ID:             r.ID,
		ConnectionID:   r.ConnectionID,
		Participants:   append([]string(nil), r.Participants...),
		State:          components.SessionState(r.State),
		ChatLogID:      r.ChatLogID,
		Title:          r.Title,
		Keywords:       append([]string(nil), r.Keywords...),
		CreatedAt:      r.CreatedAt,
		LastActivityAt: r.LastActivity,
		MessageCount:   r.MessageCount,
	}
}

func ChatLogToRecord(logc *components.ChatLog, now time.Time) store.ChatLogRecord {
	rec := store.ChatLogRecord{ID: logc.ID, Timestamp: now}
	rec.Messages = make([]store.MessageRecord, 0, len(logc.Messages))
	for _, m := range logc.Messages {
		rec.Messages = append(rec.Messages, store.MessageRecord{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Type:      string(m.Type),
			Images:    append([]string(nil), m.Images...),
		})
	}
	return rec
}

func ChatLogFromRecord(r store.ChatLogRecord) *components.ChatLog {
	logc := &components.ChatLog{ID: r.ID}
	for _, m := range r.Messages {
		logc.Append(components.Message{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Type:      components.MessageType(m.Type),
			Images:    append([]string(nil), m.Images...),
		})
	}
	return logc
}

func BrainToRecord(entityID string, b *components.Brain, now time.Time) store.BrainRecord {
	rec := store.BrainRecord{
		EntityID:        entityID,
		Model:           b.Model,
		PrimaryFunction: b.PrimaryFunction,
		Personality: store.PersonalityRecord{
			Openness:          b.Personality.Openness,
			Conscientiousness: b.Personality.Conscientiousness,
			Extraversion:      b.Personality.Extraversion,
			Agreeableness:     b.Personality.Agreeableness,
			Neuroticism:       b.Personality.Neuroticism,
		},
		CurrentStatus: b.CurrentStatus,
		Emotion:       b.Emotion,
		Energy:        b.Energy,
		Interests:     append([]string(nil), b.Interests...),
		Expertise:     append([]string(nil), b.Expertise...),
		ContextWindow: b.ContextWindow,
		Timestamp:     now,
	}
	for _, m := range b.ShortTermMemory {
		rec.ShortTermMemory = append(rec.ShortTermMemory, store.MemoryRecord{Content: m.Content, Category: m.Category, At: m.At})
	}
	if len(b.LongTermMemory) > 0 {
		rec.LongTermMemory = map[string][]store.MemoryRecord{}
		for cat, entries := range b.LongTermMemory {
			for _, m := range entries {
				rec.LongTermMemory[cat] = append(rec.LongTermMemory[cat], store.MemoryRecord{Content: m.Content, Category: m.Category, At: m.At})
			}
		}
	}
	for _, x := range b.Experiences {
		rec.Experiences = append(rec.Experiences, store.ExperienceRecord{Kind: x.Kind, Detail: x.Detail, At: x.At})
	}
	if len(b.Relationships) > 0 {
		rec.Relationships = map[string]store.RelationshipRecord{}
		for peer, r := range b.Relationships {
			rec.Relationships[peer] = store.RelationshipRecord{
				Interactions:     r.Interactions,
				LastInteraction:  r.LastInteraction,
				Sentiment:        string(r.Sentiment),
				Topics:           append([]string(nil), r.Topics...),
				MemorableMoments: append([]string(nil), r.MemorableMoments...),
			}
		}
	}
	return rec
}

// BrainFromRecord overlays stored state onto a brain, keeping zero-value
// fields from the record out of freshly defaulted ones where that matters.
func BrainFromRecord(b *components.Brain, r store.BrainRecord) {
	if r.Model != "" {
		b.Model = r.Model
	}
	if r.PrimaryFunction != "" {
		b.PrimaryFunction = r.PrimaryFunction
	}
	b.Personality = components.Personality{
		Openness:          r.Personality.Openness,
		Conscientiousness: r.Personality.Conscientiousness,
		Extraversion:      r.Personality.Extraversion,
		Agreeableness:     r.Personality.Agreeableness,
		Neuroticism:       r.Personality.Neuroticism,
	}
	b.Personality.Clamp()
	if r.CurrentStatus != "" {
		b.CurrentStatus = r.CurrentStatus
	}
	if r.Emotion != "" {
		b.Emotion = r.Emotion
	}
	b.Energy = r.Energy
	if len(r.Interests) > 0 {
		b.Interests = append([]string(nil), r.Interests...)
	}
	if len(r.Expertise) > 0 {
		b.Expertise = append([]string(nil), r.Expertise...)
	}
	if r.ContextWindow > 0 {
		b.ContextWindow = r.ContextWindow
	}
	b.ShortTermMemory = nil
	for _, m := range r.ShortTermMemory {
		b.ShortTermMemory = append(b.ShortTermMemory, components.MemoryEntry{Content: m.Content, Category: m.Category, At: m.At})
	}
	b.LongTermMemory = map[string][]components.MemoryEntry{}
	for cat, entries := range r.LongTermMemory {
		for _, m := range entries {
			b.LongTermMemory[cat] = append(b.LongTermMemory[cat], components.MemoryEntry{Content: m.Content, Category: m.Category, At: m.At})
		}
	}
	b.Experiences = nil
	for _, x := range r.Experiences {
		b.Experiences = append(b.Experiences, components.Experience{Kind: x.Kind, Detail: x.Detail, At: x.At})
	}
	b.Relationships = map[string]*components.Relationship{}
	for peer, rel := range r.Relationships {
		b.Relationships[peer] = &components.Relationship{
			Interactions:     rel.Interactions,
			LastInteraction:  rel.LastInteraction,
			Sentiment:        components.Sentiment(rel.Sentiment),
			Topics:           append([]string(nil), rel.Topics...),
			MemorableMoments: append([]string(nil), rel.MemorableMoments...),
		}
	}
}
