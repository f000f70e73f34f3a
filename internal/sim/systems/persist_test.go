package systems

import (
	"testing"
	"time"

	"folioverse.ai/internal/persistence/store"
	"folioverse.ai/internal/sim/components"
)

func TestAutosaveSweepsAfterInterval(t *testing.T) {
	w, _ := newTestWorld(t)
	ss := NewSessionSystem(nil, 0)
	st := store.NewMemStore()
	ps := NewPersistSystem(nil, ss, st, time.Second)
	if err := w.AddSystem("persist", ps); err != nil {
		t.Fatalf("AddSystem: %v", err)
	}

	spawnBot(t, w, "A", "Ada")
	spawnBot(t, w, "B", "Hopper")
	sess := ss.CreateSession(w, "", []string{"A", "B"})
	ss.AppendMessage(w, sess.ID, components.Message{SenderID: "A", Content: "remember me"})

	// Four steps of 200ms: still under the 1s interval.
	for i := 0; i < 4; i++ {
		w.StepOnce(200 * time.Millisecond)
	}
	if _, ok := st.LoadSession(sess.ID); ok {
		t.Fatalf("sweep ran before the interval elapsed")
	}

	w.StepOnce(200 * time.Millisecond)

	rec, ok := st.LoadSession(sess.ID)
	if !ok {
		t.Fatalf("session not persisted after interval")
	}
	if rec.MessageCount != 1 || rec.State != string(components.SessionActive) {
		t.Fatalf("persisted record off: %+v", rec)
	}
	if logRec, ok := st.LoadChatLog(sess.ChatLogID); !ok || len(logRec.Messages) != 1 {
		t.Fatalf("chat log not persisted")
	}
	if _, ok := st.LoadBrain("A"); !ok {
		t.Fatalf("brain not persisted")
	}
	if ps.Saves() != 1 {
		t.Fatalf("saves = %d, want 1", ps.Saves())
	}
}

func TestForceSave(t *testing.T) {
	w, _ := newTestWorld(t)
	ss := NewSessionSystem(nil, 0)
	st := store.NewMemStore()
	ps := NewPersistSystem(nil, ss, st, time.Hour)

	spawnBot(t, w, "A", "Ada")
	spawnBot(t, w, "B", "Hopper")
	sess := ss.CreateSession(w, "", []string{"A", "B"})

	ps.ForceSave(w)

	if _, ok := st.LoadSession(sess.ID); !ok {
		t.Fatalf("ForceSave did not persist the session")
	}
}

func TestBrainRecordRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	b := components.NewBrain()
	b.Model = "llama3.2"
	b.PrimaryFunction = "philosopher"
	b.Interests = []string{"consciousness"}
	b.Remember("met Ada", "social", now)
	b.LogExperience("positive_interaction", "good chat", now)
	b.RecordInteraction("A", "consciousness", components.SentimentPositive, now)

	rec := BrainToRecord("B", b, now)
	if rec.EntityID != "B" || rec.Model != "llama3.2" {
		t.Fatalf("record header off: %+v", rec)
	}

	restored := components.NewBrain()
	BrainFromRecord(restored, rec)

	if restored.Personality != b.Personality {
		t.Fatalf("personality drifted: %+v vs %+v", restored.Personality, b.Personality)
	}
	if restored.Emotion != b.Emotion || restored.Energy != b.Energy {
		t.Fatalf("mood state drifted")
	}
	if len(restored.ShortTermMemory) != 1 || restored.ShortTermMemory[0].Content != "met Ada" {
		t.Fatalf("short-term memory lost: %+v", restored.ShortTermMemory)
	}
	if len(restored.LongTermMemory["social"]) != 1 {
		t.Fatalf("long-term memory lost")
	}
	if len(restored.Experiences) != 1 {
		t.Fatalf("experiences = %d, want 1", len(restored.Experiences))
	}
	rel := restored.Relationships["A"]
	if rel == nil || rel.Interactions != 1 || rel.Sentiment != components.SentimentPositive {
		t.Fatalf("relationship lost: %+v", rel)
	}
	if len(rel.Topics) != 1 || rel.Topics[0] != "consciousness" {
		t.Fatalf("topics lost: %v", rel.Topics)
	}
}

func TestSessionRecordRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	sess := &components.Session{
		ID:             "s1",
		ConnectionID:   "C000001",
		Participants:   []string{"A", "B"},
		State:          components.SessionInactive,
		ChatLogID:      "l1",
		Title:          "halting problem",
		Keywords:       []string{"consciousness"},
		CreatedAt:      now,
		LastActivityAt: now.Add(time.Minute),
		MessageCount:   7,
	}
	back := SessionFromRecord(SessionToRecord(sess, now))
	if back.ID != sess.ID || back.State != sess.State || back.MessageCount != 7 {
		t.Fatalf("round trip lost fields: %+v", back)
	}
	if back.Title != sess.Title || len(back.Keywords) != 1 {
		t.Fatalf("metadata lost: %+v", back)
	}
	if !back.LastActivityAt.Equal(sess.LastActivityAt) {
		t.Fatalf("timestamps drifted")
	}
}

func TestChatLogRecordRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	logc := &components.ChatLog{ID: "l1"}
	logc.Append(components.Message{ID: "m1", SenderID: "A", Content: "hi", Timestamp: now, Type: components.MessageLLM})

	back := ChatLogFromRecord(ChatLogToRecord(logc, now))
	if back.ID != "l1" || len(back.Messages) != 1 {
		t.Fatalf("round trip lost messages")
	}
	m := back.Messages[0]
	if m.ID != "m1" || m.Type != components.MessageLLM || !m.Timestamp.Equal(now) {
		t.Fatalf("message drifted: %+v", m)
	}
}
