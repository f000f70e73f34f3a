package systems

import (
	"errors"
	"testing"
	"time"

	"folioverse.ai/internal/gen"
	"folioverse.ai/internal/sim/components"
	"folioverse.ai/internal/sim/ecs"
	"folioverse.ai/internal/sim/tuning"
)

// fastConvCfg runs turns every tick but spaces conversation starts far
// apart, so a test observes a single conversation end to end.
func fastConvCfg() tuning.Conversation {
	return tuning.Conversation{
		BaseIntervalTicks: 100000,
		JitterTicks:       0,
		TurnDelayTicks:    1,
		BaseLength:        4,
		LengthJitter:      0,
		WrapupTurns:       1,
		MaxSeconds:        0,
	}
}

// stepUntil pumps the world until cond holds or the step budget runs out.
// Generation lands through Enqueue from short-lived goroutines, so each step
// yields briefly to let those complete.
func stepUntil(t *testing.T, w *ecs.World, steps int, cond func() bool) {
	t.Helper()
	for i := 0; i < steps; i++ {
		if cond() {
			return
		}
		w.StepOnce(200 * time.Millisecond)
		time.Sleep(2 * time.Millisecond)
	}
	// One last drain for in-flight deliveries.
	w.StepOnce(200 * time.Millisecond)
	if !cond() {
		t.Fatalf("condition not reached within %d steps", steps)
	}
}

func setupAutoChat(t *testing.T, g gen.Generator) (*ecs.World, *SessionSystem, *AutoChatSystem) {
	t.Helper()
	w, _ := newTestWorld(t)
	ss := NewSessionSystem(nil, 0)
	ac := NewAutoChatSystem(nil, fastConvCfg(), ss, g, time.Second, 42)
	if err := w.AddSystem("sessions", ss); err != nil {
		t.Fatalf("AddSystem: %v", err)
	}
	if err := w.AddSystem("autochat", ac); err != nil {
		t.Fatalf("AddSystem: %v", err)
	}
	spawnBot(t, w, "A", "Ada")
	spawnBot(t, w, "B", "Hopper")
	return w, ss, ac
}

func TestConversationRunsAndTerminates(t *testing.T) {
	script := &gen.Scripted{Lines: []string{"hello there", "nice day", "indeed", "see you"}}
	w, ss, ac := setupAutoChat(t, script)

	var done *components.Session
	stepUntil(t, w, 500, func() bool {
		for _, sess := range ss.Sessions() {
			if sess.State == components.SessionInactive && sess.MessageCount > 0 {
				done = sess
				return true
			}
		}
		return false
	})

	if ac.ActiveConversations() != 0 {
		t.Fatalf("conversation still tracked after ending")
	}
	if done.MessageCount < 2 {
		t.Fatalf("conversation too short: %d messages", done.MessageCount)
	}
	logc := ss.ChatLog(done.ChatLogID)
	if len(logc.Messages) != done.MessageCount {
		t.Fatalf("chat log length %d != message count %d", len(logc.Messages), done.MessageCount)
	}
	for _, m := range logc.Messages {
		if m.Type != components.MessageLLM {
			t.Fatalf("bot message type = %s", m.Type)
		}
	}

	// Both brains logged the interaction and the relationship.
	for _, id := range []string{"A", "B"} {
		brain := w.Entity(id).Component(ecs.KindBrain).(*components.Brain)
		if len(brain.Experiences) == 0 {
			t.Fatalf("%s has no experiences after a conversation", id)
		}
		peer := "B"
		if id == "B" {
			peer = "A"
		}
		rel := brain.RelationshipWith(peer)
		if rel.Interactions == 0 || rel.Sentiment != components.SentimentPositive {
			t.Fatalf("%s relationship not updated: %+v", id, rel)
		}
		// Every landed turn counts, not just the conversation close.
		if rel.Interactions < done.MessageCount {
			t.Fatalf("%s interactions = %d after %d messages", id, rel.Interactions, done.MessageCount)
		}
		if brain.CurrentStatus != "idle" {
			t.Fatalf("%s status = %q after conversation end", id, brain.CurrentStatus)
		}
	}
}

func TestConversationTerminatesWhenGeneratorFails(t *testing.T) {
	script := &gen.Scripted{Err: errors.New("generator down")}
	w, ss, _ := setupAutoChat(t, script)

	stepUntil(t, w, 500, func() bool {
		for _, sess := range ss.Sessions() {
			if sess.State == components.SessionInactive && sess.MessageCount > 0 {
				return true
			}
		}
		return false
	})

	// Every turn fell back to canned lines; none are empty.
	for _, sess := range ss.Sessions() {
		logc := ss.ChatLog(sess.ChatLogID)
		for _, m := range logc.Messages {
			if m.Content == "" {
				t.Fatalf("fallback produced an empty message")
			}
		}
	}
	if script.Calls() == 0 {
		t.Fatalf("generator was never consulted")
	}
}

func TestWallClockValveEndsStuckConversation(t *testing.T) {
	script := &gen.Scripted{Lines: []string{"and another thing"}}
	w, clk := newTestWorld(t)
	ss := NewSessionSystem(nil, 0)
	cfg := fastConvCfg()
	cfg.BaseLength = 1000 // never concludes by turn count
	cfg.MaxSeconds = 5
	ac := NewAutoChatSystem(nil, cfg, ss, script, time.Second, 42)
	if err := w.AddSystem("sessions", ss); err != nil {
		t.Fatalf("AddSystem: %v", err)
	}
	if err := w.AddSystem("autochat", ac); err != nil {
		t.Fatalf("AddSystem: %v", err)
	}
	a := spawnBot(t, w, "A", "Ada")
	b := spawnBot(t, w, "B", "Hopper")

	stepUntil(t, w, 200, func() bool {
		for _, sess := range ss.Sessions() {
			if sess.MessageCount > 0 {
				return true
			}
		}
		return false
	})
	if ac.ActiveConversations() != 1 {
		t.Fatalf("conversations in flight = %d", ac.ActiveConversations())
	}

	clk.Advance(10 * time.Second)
	stepUntil(t, w, 200, func() bool {
		for _, sess := range ss.Sessions() {
			if sess.State == components.SessionInactive {
				return true
			}
		}
		return false
	})

	if ac.ActiveConversations() != 0 {
		t.Fatalf("conversation survived the wall-clock ceiling")
	}
	aConn := a.Component(ecs.KindConnection).(*components.Connection)
	bConn := b.Component(ecs.KindConnection).(*components.Connection)
	if r, ok := aConn.Get("B"); !ok || r.State != components.ConnInactive {
		t.Fatalf("A->B link not demoted: %+v", r)
	}
	if r, ok := bConn.Get("A"); !ok || r.State != components.ConnInactive {
		t.Fatalf("B->A link not demoted: %+v", r)
	}
}

func TestBusyBotsAreNotDoubleBooked(t *testing.T) {
	script := &gen.Scripted{Lines: []string{"hi"}}
	w, ss, ac := setupAutoChat(t, script)
	spawnBot(t, w, "C", "Turing")

	stepUntil(t, w, 200, func() bool { return ac.ActiveConversations() >= 1 })

	// With three bots and one pair talking, no entity may appear in two
	// active sessions at once.
	for _, id := range []string{"A", "B", "C"} {
		if n := len(ss.ActiveSessionsFor(id)); n > 1 {
			t.Fatalf("%s is in %d active sessions", id, n)
		}
	}
}

func TestDisableStopsNewConversations(t *testing.T) {
	script := &gen.Scripted{Lines: []string{"hi"}}
	w, ss, ac := setupAutoChat(t, script)
	ac.Disable()

	for i := 0; i < 50; i++ {
		w.StepOnce(200 * time.Millisecond)
	}
	if len(ss.Sessions()) != 0 {
		t.Fatalf("disabled autochat still opened sessions")
	}
	if ac.Enabled() {
		t.Fatalf("Enabled() = true after Disable")
	}

	ac.Enable()
	stepUntil(t, w, 200, func() bool { return len(ss.Sessions()) > 0 })
}

func TestReplyToGeneratesOneBotResponse(t *testing.T) {
	script := &gen.Scripted{Lines: []string{"welcome to the gallery"}}
	w, _ := newTestWorld(t)
	ss := NewSessionSystem(nil, 0)
	ac := NewAutoChatSystem(nil, fastConvCfg(), ss, script, time.Second, 42)
	ac.Disable() // only the visitor path in this test

	spawnBot(t, w, "bot1", "Ada")
	player := w.Spawn("player1", "player", "visitor")
	w.EnsureComponent(player, ecs.KindConnection)
	w.EnsureComponent(player, ecs.KindSessions)

	connID := ss.Connect(w, "player1", "bot1", components.ConnActive)
	sess := ss.CreateSession(w, connID, []string{"player1", "bot1"})
	ss.AppendMessage(w, sess.ID, components.Message{SenderID: "player1", Content: "hello?", Type: components.MessageUser})

	ac.ReplyTo(w, sess.ID, "bot1", "hello?")
	ac.ReplyTo(w, sess.ID, "bot1", "hello again?") // coalesced while in flight

	stepUntil(t, w, 200, func() bool { return sess.MessageCount >= 2 })

	logc := ss.ChatLog(sess.ChatLogID)
	if len(logc.Messages) != 2 {
		t.Fatalf("messages = %d, want user + one reply", len(logc.Messages))
	}
	reply := logc.Messages[1]
	if reply.SenderID != "bot1" || reply.Type != components.MessageLLM {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.Content != "welcome to the gallery" {
		t.Fatalf("reply content = %q", reply.Content)
	}
}

func TestReplyToUnknownSessionIsNoop(t *testing.T) {
	script := &gen.Scripted{Lines: []string{"hi"}}
	w, _ := newTestWorld(t)
	ss := NewSessionSystem(nil, 0)
	ac := NewAutoChatSystem(nil, fastConvCfg(), ss, script, time.Second, 42)
	spawnBot(t, w, "bot1", "Ada")

	ac.ReplyTo(w, "ghost", "bot1", "anyone?")
	for i := 0; i < 10; i++ {
		w.StepOnce(200 * time.Millisecond)
	}
	if script.Calls() != 0 {
		t.Fatalf("generator consulted for an unknown session")
	}
}
