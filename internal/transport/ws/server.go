// Package ws is the presentation-layer gateway: websocket clients handshake
// with HELLO, get bound to a player entity, and receive STATE snapshots and
// CHAT pushes while their SAY and CMD traffic is injected into the world
// loop.
package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"folioverse.ai/internal/gen"
	"folioverse.ai/internal/persistence/store"
	"folioverse.ai/internal/protocol"
	"folioverse.ai/internal/sim/components"
	"folioverse.ai/internal/sim/ecs"
	"folioverse.ai/internal/sim/systems"
)

// Deps wires the gateway to the core. Everything except Store is touched
// only through Enqueue closures on the world goroutine.
type Deps struct {
	World     *ecs.World
	Sessions  *systems.SessionSystem
	AutoChat  *systems.AutoChatSystem
	Persist   *systems.PersistSystem
	Store     store.Store
	Generator gen.Generator
	Log       *log.Logger
}

type client struct {
	playerID string
	out      chan []byte
	done     chan struct{}
	once     sync.Once
}

func (c *client) close() { c.once.Do(func() { close(c.done) }) }

// send queues a frame, dropping the oldest queued frame when the buffer is
// full so a slow client sees fresh state instead of a growing backlog.
func (c *client) send(b []byte) {
	select {
	case c.out <- b:
	default:
		select {
		case <-c.out:
		default:
		}
		select {
		case c.out <- b:
		default:
		}
	}
}

type Server struct {
	deps Deps
	log  *log.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client

	stateEveryTicks uint64
}

func NewServer(deps Deps) *Server {
	logger := deps.Log
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		deps: deps,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients:         map[string]*client{},
		stateEveryTicks: 5,
	}
	return s
}

// ClientCount is a metrics counter.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Requires and Update make the server a world system: it broadcasts a STATE
// snapshot on a fixed tick cadence, built on the world goroutine.
func (s *Server) Requires() []ecs.ComponentKind { return nil }

func (s *Server) Update(w *ecs.World, dt time.Duration, entities []*ecs.Entity) {
	if s.stateEveryTicks > 1 && w.Tick()%s.stateEveryTicks != 0 {
		return
	}
	if s.ClientCount() == 0 {
		return
	}
	frame, err := json.Marshal(s.buildState(w))
	if err != nil {
		return
	}
	s.broadcast(frame)
}

func (s *Server) buildState(w *ecs.World) protocol.StateMsg {
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            w.Tick(),
	}
	ents := w.Entities()
	ecs.SortByID(ents)
	for _, e := range ents {
		st := protocol.EntityState{ID: e.ID, Tag: e.Tag, Name: e.Name}
		if tr, ok := e.Component(ecs.KindTransform).(*components.Transform); ok && tr != nil {
			st.Pos = [3]float64{tr.X, tr.Y, tr.Z}
			st.Yaw = tr.Yaw
		}
		if brain, ok := e.Component(ecs.KindBrain).(*components.Brain); ok && brain != nil {
			st.Status = brain.CurrentStatus
			st.Emotion = brain.Emotion
			st.Energy = brain.Energy
		}
		msg.Entities = append(msg.Entities, st)

		if conn, ok := e.Component(ecs.KindConnection).(*components.Connection); ok && conn != nil {
			for peer, r := range conn.Peers {
				msg.Connections = append(msg.Connections, protocol.ConnEdge{
					From: e.ID, To: peer, State: string(r.State),
				})
			}
		}
	}
	for _, sess := range s.deps.Sessions.Sessions() {
		msg.Sessions = append(msg.Sessions, protocol.SessionInfo{
			ID:           sess.ID,
			Participants: sess.Participants,
			State:        string(sess.State),
			Title:        sess.Title,
			MessageCount: sess.MessageCount,
		})
	}
	return msg
}

func (s *Server) broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		c.send(frame)
	}
}

// OnMessage implements the session message sink: every appended chat
// message is pushed to all connected clients.
func (s *Server) OnMessage(sessionID string, m components.Message) {
	if s.ClientCount() == 0 {
		return
	}
	frame, err := json.Marshal(protocol.ChatMsg{
		Type:            protocol.TypeChat,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Message: protocol.MessageWire{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Content:   m.Content,
			Type:      string(m.Type),
			Timestamp: m.Timestamp,
		},
	})
	if err != nil {
		return
	}
	s.broadcast(frame)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.handshake(conn)
		if c == nil {
			return
		}
		defer s.detach(c)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-c.done:
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						c.close()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				c.close()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if !protocol.IsSupportedVersion(base.ProtocolVersion) {
				s.sendResult(c, base.Type, false, protocol.ErrUnsupportedVersion, "unsupported protocol_version", nil)
				continue
			}
			switch base.Type {
			case protocol.TypeSay:
				var say protocol.SayMsg
				if err := json.Unmarshal(msg, &say); err != nil {
					continue
				}
				s.handleSay(c, say)
			case protocol.TypeCmd:
				var cmd protocol.CmdMsg
				if err := json.Unmarshal(msg, &cmd); err != nil {
					continue
				}
				s.handleCmd(c, cmd.Command)
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) *client {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if !protocol.IsSupportedVersion(hello.ProtocolVersion) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}
	name := strings.TrimSpace(hello.ClientName)
	if name == "" {
		name = "visitor"
	}

	w := s.deps.World
	welcomeCh := make(chan protocol.WelcomeMsg, 1)
	w.Enqueue(func() {
		player := w.Spawn("", "player", name)
		w.EnsureComponent(player, ecs.KindTransform)
		w.EnsureComponent(player, ecs.KindConnection)

		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			EntityID:        player.ID,
		}
		if g := s.deps.Generator; g != nil {
			welcome.GeneratorModel = g.ModelName()
			welcome.GeneratorOnline = g.IsConnected()
		}
		for _, e := range w.EntitiesByTag("bot") {
			info := protocol.EntityInfo{ID: e.ID, Tag: e.Tag, Name: e.Name}
			if brain, ok := e.Component(ecs.KindBrain).(*components.Brain); ok && brain != nil {
				info.Model = brain.Model
				info.PrimaryFunction = brain.PrimaryFunction
			}
			welcome.Roster = append(welcome.Roster, info)
		}
		welcomeCh <- welcome
	})

	var welcome protocol.WelcomeMsg
	select {
	case welcome = <-welcomeCh:
	case <-time.After(5 * time.Second):
		return nil
	}

	b, err := json.Marshal(welcome)
	if err != nil {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return nil
	}

	c := &client{
		playerID: welcome.EntityID,
		out:      make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	s.mu.Lock()
	s.clients[c.playerID] = c
	s.mu.Unlock()
	s.log.Printf("[ws] client joined as %s (%s)", c.playerID, name)
	return c
}

func (s *Server) detach(c *client) {
	c.close()
	s.mu.Lock()
	delete(s.clients, c.playerID)
	s.mu.Unlock()

	w := s.deps.World
	w.Enqueue(func() {
		for _, sess := range s.deps.Sessions.ActiveSessionsFor(c.playerID) {
			s.deps.Sessions.EndSession(w, sess.ID)
		}
		w.Remove(c.playerID)
	})
	s.log.Printf("[ws] client %s left", c.playerID)
}

// handleSay appends the user's message and asks the target bot for a reply.
// Routing: an explicit session id wins; otherwise an existing active
// session with the target is reused; otherwise a new session is opened.
func (s *Server) handleSay(c *client, say protocol.SayMsg) {
	content := strings.TrimSpace(say.Content)
	if content == "" {
		s.sendResult(c, "say", false, protocol.ErrBadRequest, "empty content", nil)
		return
	}
	if say.SessionID == "" && say.TargetID == "" {
		s.sendResult(c, "say", false, protocol.ErrBadRequest, "need session_id or target_id", nil)
		return
	}
	w := s.deps.World
	w.Enqueue(func() {
		ss := s.deps.Sessions
		var sess *components.Session
		if say.SessionID != "" {
			sess = ss.Session(say.SessionID)
			if sess == nil || !sess.HasParticipant(c.playerID) {
				s.sendResult(c, "say", false, protocol.ErrNotFound, "unknown session", nil)
				return
			}
			if sess.State == components.SessionInactive {
				ss.UpdateSessionState(w, sess.ID, components.SessionActive)
			}
			if sess.State == components.SessionArchived {
				s.sendResult(c, "say", false, protocol.ErrBadRequest, "session archived", nil)
				return
			}
		} else {
			target := w.Entity(say.TargetID)
			if target == nil {
				s.sendResult(c, "say", false, protocol.ErrNotFound, "unknown target", nil)
				return
			}
			sess = ss.SessionBetween(c.playerID, target.ID)
			if sess == nil {
				connID := ss.Connect(w, c.playerID, target.ID, components.ConnActive)
				sess = ss.CreateSession(w, connID, []string{c.playerID, target.ID})
			}
		}
		if sess == nil {
			s.sendResult(c, "say", false, protocol.ErrInternal, "could not open session", nil)
			return
		}
		ss.AppendMessage(w, sess.ID, components.Message{
			SenderID: c.playerID,
			Content:  content,
			Type:     components.MessageUser,
		})
		if s.deps.AutoChat != nil {
			for _, pid := range sess.Participants {
				if pid == c.playerID {
					continue
				}
				if e := w.Entity(pid); e != nil && e.Has(ecs.KindBrain) {
					s.deps.AutoChat.ReplyTo(w, sess.ID, pid, content)
					break
				}
			}
		}
	})
}

// handleCmd executes a slash command. Store-only commands run on the reader
// goroutine so database latency never stalls the tick loop; commands that
// touch live state go through Enqueue.
func (s *Server) handleCmd(c *client, line string) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		s.sendResult(c, line, false, protocol.ErrBadRequest, "empty command", nil)
		return
	}
	switch fields[0] {
	case "/history":
		s.cmdHistory(c, line, fields[1:])
	case "/search":
		s.cmdSearch(c, line, fields[1:])
	case "/save":
		s.cmdSave(c, line)
	case "/export":
		s.cmdExport(c, line)
	case "/delete":
		s.cmdDelete(c, line, fields[1:])
	case "/autochat":
		s.cmdAutoChat(c, line, fields[1:])
	default:
		s.sendResult(c, line, false, protocol.ErrBadRequest, "unknown command", nil)
	}
}

func (s *Server) cmdHistory(c *client, line string, args []string) {
	if len(args) != 1 {
		s.sendResult(c, line, false, protocol.ErrBadRequest, "usage: /history <session_id>", nil)
		return
	}
	id := args[0]
	w := s.deps.World
	w.Enqueue(func() {
		ss := s.deps.Sessions
		if sess := ss.Session(id); sess != nil {
			if logc := ss.ChatLog(sess.ChatLogID); logc != nil {
				s.sendResult(c, line, true, "", "", systems.ChatLogToRecord(logc, w.Now()))
				return
			}
		}
		// Fall back to the store off the world goroutine.
		go func() {
			if sr, ok := s.deps.Store.LoadSession(id); ok {
				if rec, ok := s.deps.Store.LoadChatLog(sr.ChatLogID); ok {
					s.sendResult(c, line, true, "", "", rec)
					return
				}
			}
			s.sendResult(c, line, false, protocol.ErrNotFound, "no such session", nil)
		}()
	})
}

func (s *Server) cmdSearch(c *client, line string, args []string) {
	if len(args) == 0 {
		s.sendResult(c, line, false, protocol.ErrBadRequest, "usage: /search <keyword>...", nil)
		return
	}
	recs, err := s.deps.Store.SearchSessions(args)
	if err != nil {
		s.sendResult(c, line, false, protocol.ErrUnavailable, err.Error(), nil)
		return
	}
	if byTitle, err := s.deps.Store.SearchByTitle(strings.Join(args, " ")); err == nil {
		recs = mergeSessionRecords(recs, byTitle)
	}
	s.sendResult(c, line, true, "", "", recs)
}

func (s *Server) cmdSave(c *client, line string) {
	w := s.deps.World
	w.Enqueue(func() {
		if s.deps.Persist == nil {
			s.sendResult(c, line, false, protocol.ErrUnavailable, "persistence disabled", nil)
			return
		}
		s.deps.Persist.ForceSave(w)
		s.sendResult(c, line, true, "", "", nil)
	})
}

func (s *Server) cmdExport(c *client, line string) {
	bundle, err := s.deps.Store.ExportAll()
	if err != nil {
		s.sendResult(c, line, false, protocol.ErrUnavailable, err.Error(), nil)
		return
	}
	s.sendResult(c, line, true, "", "", bundle)
}

func (s *Server) cmdDelete(c *client, line string, args []string) {
	if len(args) != 1 {
		s.sendResult(c, line, false, protocol.ErrBadRequest, "usage: /delete <session_id>", nil)
		return
	}
	id := args[0]
	if err := s.deps.Store.DeleteSession(id); err != nil {
		s.sendResult(c, line, false, protocol.ErrUnavailable, err.Error(), nil)
		return
	}
	w := s.deps.World
	w.Enqueue(func() {
		s.deps.Sessions.DropSession(w, id)
		s.sendResult(c, line, true, "", "", nil)
	})
}

func (s *Server) cmdAutoChat(c *client, line string, args []string) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		s.sendResult(c, line, false, protocol.ErrBadRequest, "usage: /autochat on|off", nil)
		return
	}
	on := args[0] == "on"
	w := s.deps.World
	w.Enqueue(func() {
		if s.deps.AutoChat == nil {
			s.sendResult(c, line, false, protocol.ErrUnavailable, "autochat not running", nil)
			return
		}
		if on {
			s.deps.AutoChat.Enable()
		} else {
			s.deps.AutoChat.Disable()
		}
		s.sendResult(c, line, true, "", "", nil)
	})
}

func (s *Server) sendResult(c *client, command string, ok bool, code, msg string, data any) {
	res := protocol.CmdResultMsg{
		Type:            protocol.TypeCmdResult,
		ProtocolVersion: protocol.Version,
		Command:         command,
		OK:              ok,
		Code:            code,
		Error:           msg,
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			res.Data = raw
		} else {
			res.OK = false
			res.Code = protocol.ErrInternal
			res.Error = fmt.Sprintf("encode result: %v", err)
		}
	}
	frame, err := json.Marshal(res)
	if err != nil {
		return
	}
	c.send(frame)
}

func mergeSessionRecords(a, b []store.SessionRecord) []store.SessionRecord {
	seen := map[string]struct{}{}
	out := make([]store.SessionRecord, 0, len(a)+len(b))
	for _, r := range a {
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	for _, r := range b {
		if _, dup := seen[r.ID]; !dup {
			out = append(out, r)
		}
	}
	return out
}
