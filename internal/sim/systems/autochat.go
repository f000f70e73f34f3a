package systems

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"folioverse.ai/internal/gen"
	"folioverse.ai/internal/sim/components"
	"folioverse.ai/internal/sim/ecs"
	"folioverse.ai/internal/sim/tuning"
)

type convPhase string

const (
	phaseStarting   convPhase = "starting"
	phaseTurnTaking convPhase = "turn-taking"
	phaseConcluding convPhase = "concluding"
	phaseEnded      convPhase = "ended"
)

// conversation is the driver's bookkeeping for one bot-to-bot exchange.
// All fields are touched only on the world goroutine.
type conversation struct {
	sessionID    string
	participants [2]string
	phase        convPhase
	speaker      int
	turns        int
	targetTurns  int
	wrapupLeft   int
	nextTurnTick uint64
	pendingGen   bool
	startedAt    time.Time
}

// AutoChatSystem makes idle bots strike up conversations with each other.
// Turn text comes from the generator when it cooperates and from a canned
// fallback pool when it does not; either way the conversation advances and
// terminates.
type AutoChatSystem struct {
	log      *log.Logger
	cfg      tuning.Conversation
	sessions *SessionSystem
	gen      gen.Generator
	tagger   Tagger
	rng      *rand.Rand

	enabled       bool
	conversations map[string]*conversation
	busy          map[string]string // entity id -> session id
	pendingReply  map[string]bool   // session id -> reply in flight

	nextScanTick uint64
	genTimeout   time.Duration
}

func NewAutoChatSystem(logger *log.Logger, cfg tuning.Conversation, sessions *SessionSystem, g gen.Generator, genTimeout time.Duration, seed int64) *AutoChatSystem {
	if logger == nil {
		logger = log.Default()
	}
	if genTimeout <= 0 {
		genTimeout = 20 * time.Second
	}
	return &AutoChatSystem{
		log:           logger,
		cfg:           cfg,
		sessions:      sessions,
		gen:           g,
		rng:           rand.New(rand.NewSource(seed)),
		enabled:       true,
		conversations: map[string]*conversation{},
		busy:          map[string]string{},
		pendingReply:  map[string]bool{},
		genTimeout:    genTimeout,
	}
}

func (s *AutoChatSystem) Enable() { s.enabled = true }
func (s *AutoChatSystem) Disable() { s.enabled = false }
func (s *AutoChatSystem) Enabled() bool { return s.enabled }

// ActiveConversations reports how many bot exchanges are in flight.
func (s *AutoChatSystem) ActiveConversations() int { return len(s.conversations) }

func (s *AutoChatSystem) Requires() []ecs.ComponentKind {
	return []ecs.ComponentKind{ecs.KindBrain}
}

func (s *AutoChatSystem) Update(w *ecs.World, dt time.Duration, entities []*ecs.Entity) {
	if !s.enabled {
		return
	}
	tick := w.Tick()
	now := w.Now()

	for _, c := range s.conversations {
		// The wall-clock valve fires even with a generation in flight; the
		// late delivery sees the ended phase and drops itself.
		if s.cfg.MaxSeconds > 0 && now.Sub(c.startedAt) > time.Duration(s.cfg.MaxSeconds)*time.Second {
			s.log.Printf("[autochat] conversation %s hit wall-clock limit, ending", c.sessionID)
			s.endConversation(w, c)
			continue
		}
		if c.pendingGen {
			continue
		}
		if tick >= c.nextTurnTick {
			s.takeTurn(w, c)
		}
	}

	if tick >= s.nextScanTick {
		s.tryStartConversation(w, entities)
		s.nextScanTick = tick + s.scheduleDelay()
	}
}

func (s *AutoChatSystem) scheduleDelay() uint64 {
	base := s.cfg.BaseIntervalTicks
	if base <= 0 {
		base = 150
	}
	jitter := 0
	if s.cfg.JitterTicks > 0 {
		jitter = s.rng.Intn(s.cfg.JitterTicks)
	}
	return uint64(base + jitter)
}

func (s *AutoChatSystem) turnDelay() uint64 {
	d := s.cfg.TurnDelayTicks
	if d <= 0 {
		d = 10
	}
	return uint64(d + s.rng.Intn(d/2+1))
}

// tryStartConversation picks two free bots and opens a session between
// them. An entity already conversing is skipped; an existing active session
// for the pair is reused instead of duplicated.
func (s *AutoChatSystem) tryStartConversation(w *ecs.World, entities []*ecs.Entity) {
	var free []*ecs.Entity
	for _, e := range entities {
		if e.Tag != "bot" {
			continue
		}
		if _, taken := s.busy[e.ID]; taken {
			continue
		}
		brain := e.Component(ecs.KindBrain).(*components.Brain)
		if brain.Energy < 0.1 {
			continue
		}
		free = append(free, e)
	}
	if len(free) < 2 {
		return
	}
	s.rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	a, b := free[0], free[1]

	sess := s.sessions.SessionBetween(a.ID, b.ID)
	if sess == nil {
		connID := s.sessions.Connect(w, a.ID, b.ID, components.ConnActive)
		sess = s.sessions.CreateSession(w, connID, []string{a.ID, b.ID})
		if sess == nil {
			return
		}
	} else if sess.State != components.SessionActive {
		return
	}
	if _, already := s.conversations[sess.ID]; already {
		return
	}

	target := s.cfg.BaseLength
	if target <= 0 {
		target = 8
	}
	if s.cfg.LengthJitter > 0 {
		target += s.rng.Intn(2*s.cfg.LengthJitter+1) - s.cfg.LengthJitter
	}
	if target < 2 {
		target = 2
	}

	c := &conversation{
		sessionID:    sess.ID,
		participants: [2]string{a.ID, b.ID},
		phase:        phaseStarting,
		speaker:      s.rng.Intn(2),
		targetTurns:  target,
		nextTurnTick: w.Tick() + 1,
		startedAt:    w.Now(),
	}
	s.conversations[sess.ID] = c
	s.busy[a.ID] = sess.ID
	s.busy[b.ID] = sess.ID

	for _, e := range []*ecs.Entity{a, b} {
		brain := e.Component(ecs.KindBrain).(*components.Brain)
		brain.CurrentStatus = "chatting"
	}
	s.log.Printf("[autochat] %s and %s start talking (session %s, target %d turns)", a.ID, b.ID, sess.ID, target)
}

// takeTurn kicks off generation for the current speaker. The call runs off
// the world goroutine; delivery re-enters through Enqueue.
func (s *AutoChatSystem) takeTurn(w *ecs.World, c *conversation) {
	speakerID := c.participants[c.speaker]
	listenerID := c.participants[1-c.speaker]
	speaker := w.Entity(speakerID)
	listener := w.Entity(listenerID)
	if speaker == nil || listener == nil {
		s.endConversation(w, c)
		return
	}

	c.pendingGen = true
	system, prompt := s.buildPrompt(w, c, speaker, listener)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.genTimeout)
		defer cancel()
		text, err := s.gen.Generate(ctx, gen.Request{
			System:      system,
			Prompt:      prompt,
			MaxTokens:   160,
			Temperature: 0.9,
		})
		w.Enqueue(func() {
			s.deliverTurn(w, c, speakerID, listenerID, text, err)
		})
	}()
}

// deliverTurn lands one turn's text (generated or fallback), advances the
// phase machine, and schedules the next turn or ends the conversation.
func (s *AutoChatSystem) deliverTurn(w *ecs.World, c *conversation, speakerID, listenerID, text string, genErr error) {
	c.pendingGen = false
	if c.phase == phaseEnded {
		return
	}
	sess := s.sessions.Session(c.sessionID)
	if sess == nil || sess.State != components.SessionActive {
		s.release(c)
		return
	}

	text = strings.TrimSpace(text)
	if genErr != nil || text == "" {
		if genErr != nil {
			s.log.Printf("[autochat] generate failed for %s: %v, using fallback", speakerID, genErr)
		}
		text = s.fallbackLine(w, c, listenerID)
	}

	s.sessions.AppendMessage(w, c.sessionID, components.Message{
		SenderID: speakerID,
		Content:  text,
		Type:     components.MessageLLM,
	})

	// Every landed turn counts for both relationship records; sentiment and
	// topic settle once at conversation end.
	now := w.Now()
	if e := w.Entity(speakerID); e != nil {
		brain := e.Component(ecs.KindBrain).(*components.Brain)
		brain.Remember(text, "conversation", now)
		brain.LogExperience("conversation", "talked with "+listenerID, now)
		brain.RecordInteraction(listenerID, "", "", now)
	}
	if e := w.Entity(listenerID); e != nil {
		brain := e.Component(ecs.KindBrain).(*components.Brain)
		brain.Remember(text, "conversation", now)
		brain.RecordInteraction(speakerID, "", "", now)
	}

	c.turns++
	switch c.phase {
	case phaseStarting:
		c.phase = phaseTurnTaking
	case phaseTurnTaking:
		if c.turns >= c.targetTurns-s.wrapupTurns() {
			c.phase = phaseConcluding
			c.wrapupLeft = s.wrapupTurns()
		}
	case phaseConcluding:
		c.wrapupLeft--
		if c.wrapupLeft <= 0 {
			s.endConversation(w, c)
			return
		}
	}
	c.speaker = 1 - c.speaker
	c.nextTurnTick = w.Tick() + s.turnDelay()
}

func (s *AutoChatSystem) wrapupTurns() int {
	if s.cfg.WrapupTurns > 0 {
		return s.cfg.WrapupTurns
	}
	return 2
}

// endConversation closes out the session: keyword and title extraction,
// relationship and experience updates on both brains, link demotion, and
// the session goes inactive for the persistence sweep to pick up.
func (s *AutoChatSystem) endConversation(w *ecs.World, c *conversation) {
	c.phase = phaseEnded
	sess := s.sessions.Session(c.sessionID)
	if sess != nil {
		logc := s.sessions.ChatLog(sess.ChatLogID)
		if kws := s.tagger.Keywords(w, sess, logc); len(kws) > 0 {
			s.sessions.SetKeywords(w, c.sessionID, kws)
		}
		if sess.Title == "" {
			if title := s.tagger.Title(logc); title != "" {
				s.sessions.UpdateSessionTitle(w, c.sessionID, title)
			}
		}

		now := w.Now()
		topic := ""
		if len(sess.Keywords) > 0 {
			topic = sess.Keywords[0]
		}
		for i, pid := range c.participants {
			e := w.Entity(pid)
			if e == nil {
				continue
			}
			brain := e.Component(ecs.KindBrain).(*components.Brain)
			brain.LogExperience("positive_interaction", "finished a chat with "+c.participants[1-i], now)
			brain.RecordInteraction(c.participants[1-i], topic, components.SentimentPositive, now)
			brain.CurrentStatus = "idle"
		}
		s.sessions.EndSession(w, c.sessionID)
	}
	s.release(c)
	s.log.Printf("[autochat] conversation %s ended after %d turns", c.sessionID, c.turns)
}

func (s *AutoChatSystem) release(c *conversation) {
	for _, pid := range c.participants {
		if s.busy[pid] == c.sessionID {
			delete(s.busy, pid)
		}
	}
	delete(s.conversations, c.sessionID)
}

// ReplyTo generates one bot response to a user message already appended to
// the session. At most one reply per session is in flight at a time.
func (s *AutoChatSystem) ReplyTo(w *ecs.World, sessionID, botID, userContent string) {
	if s.pendingReply[sessionID] {
		return
	}
	bot := w.Entity(botID)
	if bot == nil || !bot.Has(ecs.KindBrain) {
		return
	}
	sess := s.sessions.Session(sessionID)
	if sess == nil || sess.State != components.SessionActive {
		return
	}
	s.pendingReply[sessionID] = true

	brain := bot.Component(ecs.KindBrain).(*components.Brain)
	system := s.personaPreamble(bot, brain)
	prompt := s.historyPrompt(sess, bot.Name) +
		fmt.Sprintf("A visitor says: %q\nReply in character, in one or two sentences.", userContent)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.genTimeout)
		defer cancel()
		text, err := s.gen.Generate(ctx, gen.Request{
			System:      system,
			Prompt:      prompt,
			MaxTokens:   160,
			Temperature: 0.8,
		})
		w.Enqueue(func() {
			delete(s.pendingReply, sessionID)
			sess := s.sessions.Session(sessionID)
			if sess == nil || sess.State != components.SessionActive {
				return
			}
			text = strings.TrimSpace(text)
			if err != nil || text == "" {
				if err != nil {
					s.log.Printf("[autochat] reply generate failed for %s: %v", botID, err)
				}
				text = fallbackReplies[s.rng.Intn(len(fallbackReplies))]
			}
			s.sessions.AppendMessage(w, sessionID, components.Message{
				SenderID: botID,
				Content:  text,
				Type:     components.MessageLLM,
			})
			now := w.Now()
			brain.Remember(userContent, "visitor", now)
			brain.LogExperience("conversation", "spoke with a visitor", now)
		})
	}()
}

func (s *AutoChatSystem) buildPrompt(w *ecs.World, c *conversation, speaker, listener *ecs.Entity) (system, prompt string) {
	brain := speaker.Component(ecs.KindBrain).(*components.Brain)
	system = s.personaPreamble(speaker, brain)

	var b strings.Builder
	rel := brain.RelationshipWith(listener.ID)
	fmt.Fprintf(&b, "You are talking with %s", listener.Name)
	if rel.Interactions > 0 {
		fmt.Fprintf(&b, ", whom you have spoken with %d times before (sentiment: %s)", rel.Interactions, rel.Sentiment)
	}
	b.WriteString(".\n")

	sess := s.sessions.Session(c.sessionID)
	if sess != nil {
		b.WriteString(s.historyPrompt(sess, speaker.Name))
	}

	switch c.phase {
	case phaseStarting:
		b.WriteString("Open the conversation naturally, in one or two sentences.")
	case phaseConcluding:
		b.WriteString("Start wrapping up the conversation politely, in one or two sentences.")
	default:
		b.WriteString("Continue the conversation, in one or two sentences.")
	}
	return system, b.String()
}

func (s *AutoChatSystem) personaPreamble(e *ecs.Entity, brain *components.Brain) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s", e.Name)
	if brain.PrimaryFunction != "" {
		fmt.Fprintf(&b, ", %s", brain.PrimaryFunction)
	}
	b.WriteString(".\n")
	p := brain.Personality
	fmt.Fprintf(&b, "Personality (0-1): openness %.2f, conscientiousness %.2f, extraversion %.2f, agreeableness %.2f, neuroticism %.2f.\n",
		p.Openness, p.Conscientiousness, p.Extraversion, p.Agreeableness, p.Neuroticism)
	fmt.Fprintf(&b, "Current mood: %s. Energy: %.2f.\n", brain.Emotion, brain.Energy)
	if len(brain.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s.\n", strings.Join(brain.Interests, ", "))
	}
	if n := len(brain.Experiences); n > 0 {
		last := brain.Experiences[n-1]
		fmt.Fprintf(&b, "Recently: %s.\n", last.Detail)
	}
	b.WriteString("Stay in character. Never mention being an AI or a simulation.")
	return b.String()
}

// historyPrompt renders the last few turns so the model keeps context.
func (s *AutoChatSystem) historyPrompt(sess *components.Session, selfName string) string {
	logc := s.sessions.ChatLog(sess.ChatLogID)
	if logc == nil {
		return ""
	}
	tail := logc.Tail(3)
	if len(tail) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent turns:\n")
	for _, m := range tail {
		fmt.Fprintf(&b, "- %s: %s\n", m.SenderID, m.Content)
	}
	return b.String()
}

var fallbackOpeners = []string{
	"Hey %s, got a minute?",
	"Oh, %s! I was just thinking about something.",
	"%s, how has your day been so far?",
}

var fallbackMiddles = []string{
	"That's a fair point, I hadn't thought of it that way.",
	"Hm, tell me more about that.",
	"I keep going back and forth on it myself.",
	"Interesting. I wonder where that leads.",
}

var fallbackClosers = []string{
	"Anyway, I should get going. Good talking with you, %s.",
	"Let's pick this up later, %s.",
	"I'll think it over. See you around, %s.",
}

var fallbackReplies = []string{
	"Sorry, I lost my train of thought. What were you saying?",
	"Give me a second, still mulling that over.",
	"Good question. Let me get back to you on that.",
}

func (s *AutoChatSystem) fallbackLine(w *ecs.World, c *conversation, listenerID string) string {
	name := listenerID
	if e := w.Entity(listenerID); e != nil && e.Name != "" {
		name = e.Name
	}
	var pool []string
	switch c.phase {
	case phaseStarting:
		pool = fallbackOpeners
	case phaseConcluding:
		pool = fallbackClosers
	default:
		pool = fallbackMiddles
	}
	line := pool[s.rng.Intn(len(pool))]
	if strings.Contains(line, "%s") {
		return fmt.Sprintf(line, name)
	}
	return line
}
