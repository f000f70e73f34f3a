package systems

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"folioverse.ai/internal/sim/components"
	"folioverse.ai/internal/sim/ecs"
)

// MessageSink receives every message appended to any chat log (transcript
// logging, websocket push). Failures are logged and never block the append.
type MessageSink interface {
	OnMessage(sessionID string, m components.Message)
}

// SessionSystem owns the session and chat-log registries and drives the
// connection/session lifecycle. Sessions are single-owned records referenced
// by id from participants' Sessions components.
type SessionSystem struct {
	log *log.Logger

	sessions map[string]*components.Session
	chatlogs map[string]*components.ChatLog

	sinks []MessageSink

	idleConnTicks int
	nextConnNum   uint64

	totalMessages uint64
}

func NewSessionSystem(logger *log.Logger, idleConnTicks int) *SessionSystem {
	if logger == nil {
		logger = log.Default()
	}
	return &SessionSystem{
		log:           logger,
		sessions:      map[string]*components.Session{},
		chatlogs:      map[string]*components.ChatLog{},
		idleConnTicks: idleConnTicks,
	}
}

func (s *SessionSystem) AddSink(sink MessageSink) {
	if sink != nil {
		s.sinks = append(s.sinks, sink)
	}
}

func (s *SessionSystem) Requires() []ecs.ComponentKind {
	return []ecs.ComponentKind{ecs.KindConnection}
}

// Update demotes connections that have been active without traffic for the
// idle window, and refreshes environmental awareness for brains.
func (s *SessionSystem) Update(w *ecs.World, dt time.Duration, entities []*ecs.Entity) {
	now := w.Now()
	if s.idleConnTicks > 0 {
		idle := time.Duration(s.idleConnTicks) * dt
		for _, e := range entities {
			conn, _ := e.Component(ecs.KindConnection).(*components.Connection)
			if conn == nil {
				continue
			}
			for _, r := range conn.Peers {
				if r.State == components.ConnActive && now.Sub(r.LastActivityAt) > idle {
					r.State = components.ConnInactive
				}
			}
		}
	}
	s.refreshAwareness(w, now)
}

func (s *SessionSystem) refreshAwareness(w *ecs.World, now time.Time) {
	withBrain := w.EntitiesWith(ecs.KindBrain)
	for _, e := range withBrain {
		brain := e.Component(ecs.KindBrain).(*components.Brain)
		var nearby []string
		for _, other := range withBrain {
			if other.ID != e.ID {
				nearby = append(nearby, other.ID)
			}
		}
		brain.Awareness = components.Awareness{
			NearbyEntities: nearby,
			TimeOfDay:      timeOfDay(now),
			UpdatedAt:      now,
		}
	}
}

func timeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 6:
		return "night"
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

// Connect establishes (or refreshes) the bidirectional link between two
// entities and returns the connection id. Both sides get a record;
// symmetry is best-effort, not transactional.
func (s *SessionSystem) Connect(w *ecs.World, aID, bID string, state components.ConnState) string {
	a := w.Entity(aID)
	b := w.Entity(bID)
	if a == nil || b == nil {
		return ""
	}
	now := w.Now()
	s.nextConnNum++
	connID := fmt.Sprintf("C%06d", s.nextConnNum)
	meta := map[string]string{"connection_id": connID}

	if conn, ok := w.EnsureComponent(a, ecs.KindConnection).(*components.Connection); ok {
		conn.Add(bID, state, meta, now)
	}
	if conn, ok := w.EnsureComponent(b, ecs.KindConnection).(*components.Connection); ok {
		conn.Add(aID, state, meta, now)
	}
	return connID
}

// UpdateConnectionState sets one side's link state and refreshes its
// activity timestamp.
func (s *SessionSystem) UpdateConnectionState(w *ecs.World, ownerID, peerID string, state components.ConnState) bool {
	e := w.Entity(ownerID)
	if e == nil {
		return false
	}
	conn, _ := e.Component(ecs.KindConnection).(*components.Connection)
	if conn == nil {
		return false
	}
	return conn.UpdateState(peerID, state, w.Now())
}

// CreateSession mints a new session and its chat log, initial state active.
func (s *SessionSystem) CreateSession(w *ecs.World, connectionID string, participants []string) *components.Session {
	if len(participants) < 2 {
		return nil
	}
	now := w.Now()
	sess := &components.Session{
		ID:             uuid.NewString(),
		ConnectionID:   connectionID,
		Participants:   append([]string(nil), participants...),
		State:          components.SessionActive,
		ChatLogID:      uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.sessions[sess.ID] = sess
	s.chatlogs[sess.ChatLogID] = &components.ChatLog{ID: sess.ChatLogID}

	for _, pid := range participants {
		if e := w.Entity(pid); e != nil {
			if refs, ok := w.EnsureComponent(e, ecs.KindSessions).(*components.Sessions); ok {
				refs.AddRef(sess.ID)
			}
		}
	}
	return sess
}

// Session returns the session record by id, or nil.
func (s *SessionSystem) Session(id string) *components.Session {
	return s.sessions[id]
}

// ChatLog returns the chat log by id, or nil.
func (s *SessionSystem) ChatLog(id string) *components.ChatLog {
	return s.chatlogs[id]
}

// Sessions returns a snapshot of all in-memory session records.
func (s *SessionSystem) Sessions() []*components.Session {
	out := make([]*components.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// UpdateSessionState transitions a session's state and bumps its activity
// timestamp. Unknown ids return nil; a transition the table forbids is a
// logged no-op.
func (s *SessionSystem) UpdateSessionState(w *ecs.World, id string, state components.SessionState) *components.Session {
	sess := s.sessions[id]
	if sess == nil {
		return nil
	}
	if !components.CanTransition(sess.State, state) {
		s.log.Printf("session %s: transition %s -> %s rejected", id, sess.State, state)
		return sess
	}
	sess.State = state
	sess.Touch(w.Now())
	return sess
}

// DeactivateSession is sugar for a transition to inactive.
func (s *SessionSystem) DeactivateSession(w *ecs.World, id string) *components.Session {
	return s.UpdateSessionState(w, id, components.SessionInactive)
}

// ArchiveSession transitions to archived (terminal) and returns the record,
// so callers can persist or export it before dropping it.
func (s *SessionSystem) ArchiveSession(w *ecs.World, id string) *components.Session {
	sess := s.UpdateSessionState(w, id, components.SessionArchived)
	if sess == nil || sess.State != components.SessionArchived {
		return sess
	}
	for _, pid := range sess.Participants {
		if e := w.Entity(pid); e != nil {
			if refs, ok := e.Component(ecs.KindSessions).(*components.Sessions); ok && refs != nil {
				refs.RemoveRef(id)
			}
		}
	}
	return sess
}

// ActiveSessionsFor returns the active sessions the entity participates in.
// This is the duplicate-session guard: callers check it before minting a
// new session for a pair.
func (s *SessionSystem) ActiveSessionsFor(entityID string) []*components.Session {
	var out []*components.Session
	for _, sess := range s.sessions {
		if sess.State == components.SessionActive && sess.HasParticipant(entityID) {
			out = append(out, sess)
		}
	}
	return out
}

// SessionBetween returns an existing active session whose participants
// include both ids, or nil.
func (s *SessionSystem) SessionBetween(aID, bID string) *components.Session {
	for _, sess := range s.ActiveSessionsFor(aID) {
		if sess.HasParticipant(bID) {
			return sess
		}
	}
	return nil
}

// IncrementMessageCount bumps the counter and activity timestamp. Unknown
// id is a silent no-op.
func (s *SessionSystem) IncrementMessageCount(w *ecs.World, id string) {
	sess := s.sessions[id]
	if sess == nil {
		return
	}
	sess.MessageCount++
	sess.Touch(w.Now())
}

// UpdateSessionTitle sets the title, minting activity. Unknown id no-op.
func (s *SessionSystem) UpdateSessionTitle(w *ecs.World, id, title string) {
	sess := s.sessions[id]
	if sess == nil {
		return
	}
	sess.Title = title
	sess.Touch(w.Now())
}

// SetKeywords replaces the session's keyword list.
func (s *SessionSystem) SetKeywords(w *ecs.World, id string, keywords []string) {
	sess := s.sessions[id]
	if sess == nil {
		return
	}
	sess.Keywords = keywords
	sess.Touch(w.Now())
}

// AppendMessage routes one message through the session: chat-log append
// (immutable, insertion order), message counter, connection activity on
// both endpoints, and every registered sink. Returns nil for an unknown
// session.
func (s *SessionSystem) AppendMessage(w *ecs.World, sessionID string, m components.Message) *components.Message {
	sess := s.sessions[sessionID]
	if sess == nil {
		return nil
	}
	logc := s.chatlogs[sess.ChatLogID]
	if logc == nil {
		logc = &components.ChatLog{ID: sess.ChatLogID}
		s.chatlogs[sess.ChatLogID] = logc
	}
	now := w.Now()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	if m.Type == "" {
		m.Type = components.MessageText
	}
	logc.Append(m)
	sess.MessageCount++
	sess.Touch(now)
	s.totalMessages++

	// Visibility: the link between sender and every other participant saw
	// traffic.
	for _, pid := range sess.Participants {
		e := w.Entity(pid)
		if e == nil {
			continue
		}
		conn, _ := e.Component(ecs.KindConnection).(*components.Connection)
		if conn == nil {
			continue
		}
		for _, other := range sess.Participants {
			if other == pid {
				continue
			}
			if r, ok := conn.Get(other); ok {
				r.LastActivityAt = now
				if r.State == components.ConnPending || r.State == components.ConnConnecting {
					r.State = components.ConnActive
				}
			}
		}
	}

	for _, sink := range s.sinks {
		sink.OnMessage(sessionID, m)
	}
	appended := logc.Messages[len(logc.Messages)-1]
	return &appended
}

// EndSession deactivates a session and demotes the participant links.
func (s *SessionSystem) EndSession(w *ecs.World, id string) *components.Session {
	sess := s.DeactivateSession(w, id)
	if sess == nil {
		return nil
	}
	for _, pid := range sess.Participants {
		for _, other := range sess.Participants {
			if other != pid {
				s.UpdateConnectionState(w, pid, other, components.ConnInactive)
			}
		}
	}
	return sess
}

// DropSession removes a session and its chat log from memory (after
// archive/delete). Unknown id no-op.
func (s *SessionSystem) DropSession(w *ecs.World, id string) {
	sess := s.sessions[id]
	if sess == nil {
		return
	}
	for _, pid := range sess.Participants {
		if e := w.Entity(pid); e != nil {
			if refs, ok := e.Component(ecs.KindSessions).(*components.Sessions); ok && refs != nil {
				refs.RemoveRef(id)
			}
		}
	}
	delete(s.chatlogs, sess.ChatLogID)
	delete(s.sessions, id)
}

// TotalMessages is a metrics counter.
func (s *SessionSystem) TotalMessages() uint64 { return s.totalMessages }
