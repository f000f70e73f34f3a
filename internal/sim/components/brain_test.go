package components

import (
	"testing"
	"time"
)

var t0 = time.Unix(1700000000, 0)

func TestPersonalityStaysInRangeUnderHostility(t *testing.T) {
	b := NewBrain()
	for i := 0; i < 500; i++ {
		b.LogExperience("conflict", "argument", t0)
	}
	p := b.Personality
	for name, v := range map[string]float64{
		"openness":          p.Openness,
		"conscientiousness": p.Conscientiousness,
		"extraversion":      p.Extraversion,
		"agreeableness":     p.Agreeableness,
		"neuroticism":       p.Neuroticism,
	} {
		if v < 0 || v > 1 {
			t.Fatalf("%s = %v, escaped [0,1]", name, v)
		}
	}
	if p.Agreeableness != 0 {
		t.Fatalf("agreeableness = %v, want clamped to 0", p.Agreeableness)
	}
	if p.Neuroticism != 1 {
		t.Fatalf("neuroticism = %v, want clamped to 1", p.Neuroticism)
	}
	if b.Energy < 0 {
		t.Fatalf("energy = %v, want >= 0", b.Energy)
	}
}

func TestExperienceDrift(t *testing.T) {
	b := NewBrain()
	b.LogExperience("positive_interaction", "nice chat", t0)
	if b.Personality.Agreeableness <= 0.5 {
		t.Fatalf("positive interaction should raise agreeableness, got %v", b.Personality.Agreeableness)
	}
	if b.Emotion != "content" {
		t.Fatalf("emotion = %q, want content", b.Emotion)
	}

	b = NewBrain()
	b.LogExperience("learning", "read a paper", t0)
	if b.Personality.Openness <= 0.5 {
		t.Fatalf("learning should raise openness, got %v", b.Personality.Openness)
	}
}

func TestExperiencesBounded(t *testing.T) {
	b := NewBrain()
	for i := 0; i < 150; i++ {
		b.LogExperience("conversation", "chat", t0)
	}
	if len(b.Experiences) != 100 {
		t.Fatalf("experiences = %d, want capped at 100", len(b.Experiences))
	}
}

func TestShortTermMemoryFIFO(t *testing.T) {
	b := NewBrain()
	b.ContextWindow = 3
	for _, c := range []string{"one", "two", "three", "four"} {
		b.Remember(c, "chat", t0)
	}
	if len(b.ShortTermMemory) != 3 {
		t.Fatalf("short-term size = %d, want 3", len(b.ShortTermMemory))
	}
	if b.ShortTermMemory[0].Content != "two" {
		t.Fatalf("oldest = %q, want the first entry evicted", b.ShortTermMemory[0].Content)
	}
	if len(b.LongTermMemory["chat"]) != 4 {
		t.Fatalf("long-term keeps everything, got %d", len(b.LongTermMemory["chat"]))
	}
	b.Remember("", "chat", t0)
	if len(b.ShortTermMemory) != 3 {
		t.Fatalf("empty content must be ignored")
	}
}

func TestRelationshipLazyAndBoundedTopics(t *testing.T) {
	b := NewBrain()
	r := b.RelationshipWith("peer")
	if r.Sentiment != SentimentNeutral || r.Interactions != 0 {
		t.Fatalf("fresh relationship not neutral: %+v", r)
	}
	if b.RelationshipWith("peer") != r {
		t.Fatalf("RelationshipWith must return the same record")
	}

	for i := 0; i < 15; i++ {
		b.RecordInteraction("peer", string(rune('a'+i)), SentimentPositive, t0)
	}
	if r.Interactions != 15 {
		t.Fatalf("interactions = %d, want 15", r.Interactions)
	}
	if len(r.Topics) != 10 {
		t.Fatalf("topics = %d, want bounded to 10", len(r.Topics))
	}

	// Re-mentioning a topic moves it to the back instead of duplicating.
	b.RecordInteraction("peer", "m", SentimentPositive, t0)
	if len(r.Topics) != 10 || r.Topics[len(r.Topics)-1] != "m" {
		t.Fatalf("topic dedup failed: %v", r.Topics)
	}
}

func TestRecordInteractionKeepsSentimentWhenEmpty(t *testing.T) {
	b := NewBrain()
	b.RecordInteraction("peer", "", SentimentPositive, t0)
	b.RecordInteraction("peer", "", "", t0)
	if got := b.RelationshipWith("peer").Sentiment; got != SentimentPositive {
		t.Fatalf("sentiment = %q, want prior positive preserved", got)
	}
}
