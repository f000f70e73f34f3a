package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"folioverse.ai/internal/gen"
	"folioverse.ai/internal/persistence/store"
	"folioverse.ai/internal/persistence/translog"
	"folioverse.ai/internal/sim/cast"
	"folioverse.ai/internal/sim/components"
	"folioverse.ai/internal/sim/ecs"
	"folioverse.ai/internal/sim/systems"
	"folioverse.ai/internal/sim/tuning"
	"folioverse.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		castPath   = flag.String("cast", "./configs/cast.yaml", "path to cast.yaml (missing file uses the built-in roster)")
		genBaseURL = flag.String("gen_base_url", "", "OpenAI-compatible base url, e.g. http://127.0.0.1:11434/v1 (empty runs fallback-only)")
		genModel   = flag.String("gen_model", "", "generator model override")
		genAPIKey  = flag.String("gen_api_key", "", "generator api key (or set FV_GEN_API_KEY)")
		seed       = flag.Int64("seed", 1337, "conversation scheduler seed")
		disableDB  = flag.Bool("disable_db", false, "run without sqlite (in-memory store, nothing survives restart)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", *tuningPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *genBaseURL != "" {
		tune.Generator.BaseURL = *genBaseURL
	}
	if *genModel != "" {
		tune.Generator.Model = *genModel
	}
	apiKey := strings.TrimSpace(*genAPIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("FV_GEN_API_KEY"))
	}

	roster, err := cast.LoadOrDefaults(*castPath)
	if err != nil {
		logger.Fatalf("load cast: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Durable store: sqlite, degrading to in-memory when it cannot open.
	var st store.Store
	if *disableDB {
		st = store.NewMemStore()
		logger.Printf("sqlite disabled, running in-memory")
	} else {
		dbPath := filepath.Join(*dataDir, "folioverse.db")
		sq, err := store.OpenSQLite(dbPath)
		if err != nil {
			logger.Printf("open sqlite (%s): %v; degrading to in-memory store", dbPath, err)
			st = store.NewMemStore()
		} else {
			st = sq
		}
	}
	defer st.Close()

	generator := gen.NewOpenAIClient(gen.OpenAIConfig{
		BaseURL: tune.Generator.BaseURL,
		APIKey:  apiKey,
		Model:   tune.Generator.Model,
		Timeout: time.Duration(tune.Generator.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
	{
		probeCtx, probeCancel := context.WithTimeout(ctx, 5*time.Second)
		generator.Probe(probeCtx)
		probeCancel()
		if generator.IsConnected() {
			logger.Printf("generator online: model=%s models=%d", generator.ModelName(), len(generator.Models()))
		} else {
			logger.Printf("generator offline, conversations use fallback lines")
		}
	}

	w := ecs.New(ecs.WorldConfig{
		TickRateHz: tune.TickRateHz,
		Logger:     logger,
	})
	registerDefaults(w, tune)

	sessions := systems.NewSessionSystem(logger, tune.Conversation.IdleConnTicks)
	autochat := systems.NewAutoChatSystem(logger, tune.Conversation, sessions, generator,
		time.Duration(tune.Generator.TimeoutSeconds)*time.Second, *seed)
	persist := systems.NewPersistSystem(logger, sessions, st,
		time.Duration(tune.AutosaveSeconds)*time.Second)

	transcripts := translog.NewWriter(*dataDir)
	defer transcripts.Close()
	sessions.AddSink(transcriptSink{w: transcripts, log: logger})

	gateway := ws.NewServer(ws.Deps{
		World:     w,
		Sessions:  sessions,
		AutoChat:  autochat,
		Persist:   persist,
		Store:     st,
		Generator: generator,
		Log:       logger,
	})
	sessions.AddSink(gateway)

	spawnCast(w, roster, tune, st, logger)

	must := func(err error) {
		if err != nil {
			logger.Fatalf("add system: %v", err)
		}
	}
	must(w.AddSystem("wander", systems.NewWanderSystem(*seed)))
	must(w.AddSystem("sessions", sessions))
	must(w.AddSystem("autochat", autochat))
	must(w.AddSystem("persist", persist))
	must(w.AddSystem("ws_state", gateway))

	// The loop outlives the signal context so the final save below still has
	// a live world to run on; Stop ends it.
	go func() {
		if err := w.Run(context.Background()); err != nil {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP folioverse_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE folioverse_world_tick gauge\n")
		fmt.Fprintf(rw, "folioverse_world_tick %d\n", w.Tick())

		fmt.Fprintf(rw, "# HELP folioverse_entities Current entity count.\n")
		fmt.Fprintf(rw, "# TYPE folioverse_entities gauge\n")
		fmt.Fprintf(rw, "folioverse_entities %d\n", len(w.Entities()))

		fmt.Fprintf(rw, "# HELP folioverse_clients Connected websocket clients.\n")
		fmt.Fprintf(rw, "# TYPE folioverse_clients gauge\n")
		fmt.Fprintf(rw, "folioverse_clients %d\n", gateway.ClientCount())

		fmt.Fprintf(rw, "# HELP folioverse_active_conversations Bot conversations in flight.\n")
		fmt.Fprintf(rw, "# TYPE folioverse_active_conversations gauge\n")
		fmt.Fprintf(rw, "folioverse_active_conversations %d\n", autochat.ActiveConversations())

		fmt.Fprintf(rw, "# HELP folioverse_messages_total Messages appended since boot.\n")
		fmt.Fprintf(rw, "# TYPE folioverse_messages_total counter\n")
		fmt.Fprintf(rw, "folioverse_messages_total %d\n", sessions.TotalMessages())

		fmt.Fprintf(rw, "# HELP folioverse_autosaves_total Persistence sweeps since boot.\n")
		fmt.Fprintf(rw, "# TYPE folioverse_autosaves_total counter\n")
		fmt.Fprintf(rw, "folioverse_autosaves_total %d\n", persist.Saves())

		online := 0
		if generator.IsConnected() {
			online = 1
		}
		fmt.Fprintf(rw, "# HELP folioverse_generator_online Whether the text generator answered its last call.\n")
		fmt.Fprintf(rw, "# TYPE folioverse_generator_online gauge\n")
		fmt.Fprintf(rw, "folioverse_generator_online %d\n", online)
	})
	mux.HandleFunc("/v1/ws", gateway.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Final flush, through the loop so it sees settled state.
	done := make(chan struct{})
	w.Enqueue(func() {
		persist.ForceSave(w)
		close(done)
	})
	select {
	case <-done:
		logger.Printf("final save complete")
	case <-time.After(3 * time.Second):
		logger.Printf("final save timed out")
	}
	w.Stop()
}

func registerDefaults(w *ecs.World, tune tuning.Tuning) {
	w.RegisterDefault(ecs.KindTransform, func(e *ecs.Entity) ecs.Component {
		return &components.Transform{}
	})
	w.RegisterDefault(ecs.KindConnection, func(e *ecs.Entity) ecs.Component {
		return components.NewConnection()
	})
	w.RegisterDefault(ecs.KindSessions, func(e *ecs.Entity) ecs.Component {
		return components.NewSessions()
	})
	w.RegisterDefault(ecs.KindBrain, func(e *ecs.Entity) ecs.Component {
		b := components.NewBrain()
		if tune.ContextWindow > 0 {
			b.ContextWindow = tune.ContextWindow
		}
		return b
	})
}

// spawnCast creates the roster entities and overlays any persisted brain
// state so personalities and relationships survive restarts.
func spawnCast(w *ecs.World, roster cast.Cast, tune tuning.Tuning, st store.Store, logger *log.Logger) {
	for i, ch := range roster.Characters {
		e := w.Spawn(ch.ID(), ch.Tag, ch.Name)
		tr := w.EnsureComponent(e, ecs.KindTransform).(*components.Transform)
		tr.X = float64(3 * i)
		tr.Z = float64(2 * (i % 2))
		w.EnsureComponent(e, ecs.KindConnection)
		w.EnsureComponent(e, ecs.KindSessions)

		brain := w.EnsureComponent(e, ecs.KindBrain).(*components.Brain)
		brain.Model = ch.Model
		brain.PrimaryFunction = ch.PrimaryFunction
		brain.Personality = components.Personality{
			Openness:          ch.Personality.Openness,
			Conscientiousness: ch.Personality.Conscientiousness,
			Extraversion:      ch.Personality.Extraversion,
			Agreeableness:     ch.Personality.Agreeableness,
			Neuroticism:       ch.Personality.Neuroticism,
		}
		brain.Personality.Clamp()
		if ch.Emotion != "" {
			brain.Emotion = ch.Emotion
		}
		if ch.Status != "" {
			brain.CurrentStatus = ch.Status
		}
		brain.Interests = append([]string(nil), ch.Interests...)
		brain.Expertise = append([]string(nil), ch.Expertise...)

		if rec, ok := st.LoadBrain(e.ID); ok {
			systems.BrainFromRecord(brain, rec)
			logger.Printf("restored brain for %s (%d experiences, %d relationships)",
				e.ID, len(brain.Experiences), len(brain.Relationships))
		}
	}
	logger.Printf("spawned %d characters", len(roster.Characters))
}

// transcriptSink bridges chat-log appends into the rotating transcript log.
type transcriptSink struct {
	w   *translog.Writer
	log *log.Logger
}

func (t transcriptSink) OnMessage(sessionID string, m components.Message) {
	err := t.w.Write(translog.Entry{
		SessionID: sessionID,
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Type:      string(m.Type),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	})
	if err != nil {
		t.log.Printf("[translog] write: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
