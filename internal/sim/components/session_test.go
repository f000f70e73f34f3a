package components

import (
	"testing"
	"time"
)

func TestSessionTransitionTable(t *testing.T) {
	cases := []struct {
		from, to SessionState
		ok       bool
	}{
		{SessionActive, SessionInactive, true},
		{SessionActive, SessionArchived, true},
		{SessionInactive, SessionActive, true},
		{SessionInactive, SessionArchived, true},
		{SessionArchived, SessionActive, false},
		{SessionArchived, SessionInactive, false},
		{SessionActive, SessionActive, true},
		{SessionArchived, SessionArchived, true},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestSessionTouchMonotonic(t *testing.T) {
	s := &Session{LastActivityAt: t0}
	s.Touch(t0.Add(-time.Minute))
	if !s.LastActivityAt.Equal(t0) {
		t.Fatalf("Touch moved LastActivityAt backwards")
	}
	s.Touch(t0.Add(time.Minute))
	if !s.LastActivityAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("Touch did not advance LastActivityAt")
	}
}

func TestSessionsRefs(t *testing.T) {
	s := NewSessions()
	s.AddRef("s1")
	s.AddRef("s1")
	s.AddRef("s2")
	if len(s.Refs) != 2 {
		t.Fatalf("refs = %v, want deduped [s1 s2]", s.Refs)
	}
	s.RemoveRef("s1")
	if len(s.Refs) != 1 || s.Refs[0] != "s2" {
		t.Fatalf("refs after remove = %v", s.Refs)
	}
	s.RemoveRef("missing") // no-op
}

func TestChatLogTail(t *testing.T) {
	l := &ChatLog{ID: "log"}
	for i := 0; i < 5; i++ {
		l.Append(Message{ID: string(rune('a' + i))})
	}
	tail := l.Tail(2)
	if len(tail) != 2 || tail[0].ID != "d" || tail[1].ID != "e" {
		t.Fatalf("Tail(2) = %v", tail)
	}
	if got := l.Tail(10); len(got) != 5 {
		t.Fatalf("Tail beyond length = %d entries, want 5", len(got))
	}
	if l.Tail(0) != nil {
		t.Fatalf("Tail(0) should be nil")
	}
}

func TestConnectionUpsertAndState(t *testing.T) {
	c := NewConnection()
	r := c.Add("peer", "", nil, t0)
	if r.State != ConnPending {
		t.Fatalf("default state = %s, want pending", r.State)
	}
	if ok := c.UpdateState("peer", ConnActive, t0.Add(time.Second)); !ok {
		t.Fatalf("UpdateState on known peer failed")
	}
	if r.State != ConnActive || !r.LastActivityAt.Equal(t0.Add(time.Second)) {
		t.Fatalf("record not updated: %+v", r)
	}
	if ok := c.UpdateState("ghost", ConnActive, t0); ok {
		t.Fatalf("UpdateState on unknown peer must return false")
	}
	if _, ok := c.Get("ghost"); ok {
		t.Fatalf("Get on unknown peer must return false")
	}
}
