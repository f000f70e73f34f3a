package components

import (
	"time"

	"folioverse.ai/internal/sim/ecs"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

const (
	defaultContextWindow = 10
	maxExperiences       = 100
	maxRelationTopics    = 10
)

// Personality is the five-trait vector. Every trait stays in [0,1] after any
// sequence of experience-driven updates.
type Personality struct {
	Openness          float64
	Conscientiousness float64
	Extraversion      float64
	Agreeableness     float64
	Neuroticism       float64
}

func (p *Personality) Clamp() {
	p.Openness = clamp01(p.Openness)
	p.Conscientiousness = clamp01(p.Conscientiousness)
	p.Extraversion = clamp01(p.Extraversion)
	p.Agreeableness = clamp01(p.Agreeableness)
	p.Neuroticism = clamp01(p.Neuroticism)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type MemoryEntry struct {
	Content  string
	Category string
	At       time.Time
}

type Experience struct {
	Kind   string
	Detail string
	At     time.Time
}

// Relationship is a brain's record of its history with one peer.
type Relationship struct {
	Interactions     int
	LastInteraction  time.Time
	Sentiment        Sentiment
	Topics           []string
	MemorableMoments []string
}

// Awareness is a snapshot of the entity's surroundings, refreshed by the
// session system each tick.
type Awareness struct {
	NearbyEntities []string
	TimeOfDay      string
	UpdatedAt      time.Time
}

// Brain holds an entity's personality, memory, and relationship state.
type Brain struct {
	Model           string
	PrimaryFunction string
	Personality     Personality
	CurrentStatus   string
	Emotion         string
	Energy          float64

	Interests []string
	Expertise []string

	ContextWindow   int
	ShortTermMemory []MemoryEntry
	LongTermMemory  map[string][]MemoryEntry
	Experiences     []Experience

	Relationships map[string]*Relationship

	Awareness Awareness
}

func (b *Brain) Kind() ecs.ComponentKind { return ecs.KindBrain }

func NewBrain() *Brain {
	return &Brain{
		Personality: Personality{
			Openness:          0.5,
			Conscientiousness: 0.5,
			Extraversion:      0.5,
			Agreeableness:     0.5,
			Neuroticism:       0.5,
		},
		CurrentStatus:  "idle",
		Emotion:        "neutral",
		Energy:         1,
		ContextWindow:  defaultContextWindow,
		LongTermMemory: map[string][]MemoryEntry{},
		Relationships:  map[string]*Relationship{},
	}
}

// Remember appends to short-term memory (bounded FIFO, capacity
// ContextWindow) and files a copy under the category in long-term memory.
func (b *Brain) Remember(content, category string, now time.Time) {
	if content == "" {
		return
	}
	entry := MemoryEntry{Content: content, Category: category, At: now}
	cw := b.ContextWindow
	if cw <= 0 {
		cw = defaultContextWindow
	}
	b.ShortTermMemory = append(b.ShortTermMemory, entry)
	if len(b.ShortTermMemory) > cw {
		b.ShortTermMemory = b.ShortTermMemory[len(b.ShortTermMemory)-cw:]
	}
	if category != "" {
		if b.LongTermMemory == nil {
			b.LongTermMemory = map[string][]MemoryEntry{}
		}
		b.LongTermMemory[category] = append(b.LongTermMemory[category], entry)
	}
}

// LogExperience records an experience (bounded FIFO, capacity 100) and
// drifts personality, emotion, and energy by the experience kind. All
// personality traits are clamped to [0,1] afterwards.
func (b *Brain) LogExperience(kind, detail string, now time.Time) {
	b.Experiences = append(b.Experiences, Experience{Kind: kind, Detail: detail, At: now})
	if len(b.Experiences) > maxExperiences {
		b.Experiences = b.Experiences[len(b.Experiences)-maxExperiences:]
	}

	p := &b.Personality
	switch kind {
	case "positive_interaction":
		p.Agreeableness += 0.010
		p.Extraversion += 0.005
		p.Neuroticism -= 0.005
		b.Emotion = "content"
		b.Energy = clamp01(b.Energy + 0.02)
	case "conflict":
		p.Agreeableness -= 0.010
		p.Neuroticism += 0.020
		b.Emotion = "tense"
		b.Energy = clamp01(b.Energy - 0.05)
	case "conversation":
		p.Extraversion += 0.003
		p.Openness += 0.002
		b.Energy = clamp01(b.Energy - 0.01)
	case "learning":
		p.Openness += 0.008
		p.Conscientiousness += 0.004
	}
	p.Clamp()
}

// RelationshipWith returns the relationship record for peerID, creating a
// neutral one if absent.
func (b *Brain) RelationshipWith(peerID string) *Relationship {
	if b.Relationships == nil {
		b.Relationships = map[string]*Relationship{}
	}
	r, ok := b.Relationships[peerID]
	if !ok {
		r = &Relationship{Sentiment: SentimentNeutral}
		b.Relationships[peerID] = r
	}
	return r
}

// RecordInteraction bumps the relationship with peerID: interaction count,
// last-interaction time, sentiment, and the topic list bounded to the last
// ten distinct entries.
func (b *Brain) RecordInteraction(peerID, topic string, sentiment Sentiment, now time.Time) {
	r := b.RelationshipWith(peerID)
	r.Interactions++
	r.LastInteraction = now
	if sentiment != "" {
		r.Sentiment = sentiment
	}
	if topic != "" {
		for i, t := range r.Topics {
			if t == topic {
				r.Topics = append(r.Topics[:i], r.Topics[i+1:]...)
				break
			}
		}
		r.Topics = append(r.Topics, topic)
		if len(r.Topics) > maxRelationTopics {
			r.Topics = r.Topics[len(r.Topics)-maxRelationTopics:]
		}
	}
}
