package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

var t0 = time.Unix(1700000000, 0).UTC()

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"mem":    NewMemStore(),
		"sqlite": sq,
	}
}

func sampleSession(id string) SessionRecord {
	return SessionRecord{
		ID:           id,
		ConnectionID: "C000001",
		Participants: []string{"A", "B"},
		State:        "inactive",
		ChatLogID:    "log_" + id,
		Title:        "thoughts on consciousness",
		Keywords:     []string{"consciousness", "computation"},
		CreatedAt:    t0,
		LastActivity: t0.Add(time.Minute),
		MessageCount: 4,
		Timestamp:    t0.Add(time.Minute),
	}
}

func sampleChatLog(id string) ChatLogRecord {
	return ChatLogRecord{
		ID: "log_" + id,
		Messages: []MessageRecord{
			{ID: "m1", SenderID: "A", Content: "hello", Timestamp: t0, Type: "llm"},
			{ID: "m2", SenderID: "B", Content: "hi", Timestamp: t0.Add(time.Second), Type: "llm"},
		},
		Timestamp: t0.Add(time.Minute),
	}
}

func TestLoadMissReturnsFalse(t *testing.T) {
	for name, st := range backends(t) {
		if _, ok := st.LoadSession("nope"); ok {
			t.Fatalf("%s: LoadSession(miss) returned ok", name)
		}
		if _, ok := st.LoadChatLog("nope"); ok {
			t.Fatalf("%s: LoadChatLog(miss) returned ok", name)
		}
		if _, ok := st.LoadBrain("nope"); ok {
			t.Fatalf("%s: LoadBrain(miss) returned ok", name)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for name, st := range backends(t) {
		sess := sampleSession("s1")
		if err := st.SaveSession(sess); err != nil {
			t.Fatalf("%s: save session: %v", name, err)
		}
		got, ok := st.LoadSession("s1")
		if !ok {
			t.Fatalf("%s: session not found after save", name)
		}
		if got.Title != sess.Title || got.MessageCount != 4 || len(got.Participants) != 2 {
			t.Fatalf("%s: round trip drifted: %+v", name, got)
		}
		if !got.LastActivity.Equal(sess.LastActivity) {
			t.Fatalf("%s: timestamps drifted", name)
		}

		if err := st.SaveChatLog(sampleChatLog("s1")); err != nil {
			t.Fatalf("%s: save chatlog: %v", name, err)
		}
		logc, ok := st.LoadChatLog("log_s1")
		if !ok || len(logc.Messages) != 2 || logc.Messages[1].Content != "hi" {
			t.Fatalf("%s: chatlog drifted: %+v", name, logc)
		}

		brain := BrainRecord{
			EntityID:    "A",
			Model:       "llama3.2",
			Personality: PersonalityRecord{Openness: 0.9},
			Energy:      0.8,
			Relationships: map[string]RelationshipRecord{
				"B": {Interactions: 3, Sentiment: "positive"},
			},
			Timestamp: t0,
		}
		if err := st.SaveBrain(brain); err != nil {
			t.Fatalf("%s: save brain: %v", name, err)
		}
		gotBrain, ok := st.LoadBrain("A")
		if !ok || gotBrain.Personality.Openness != 0.9 || gotBrain.Relationships["B"].Interactions != 3 {
			t.Fatalf("%s: brain drifted: %+v", name, gotBrain)
		}
	}
}

func TestSaveIsLastWriterWins(t *testing.T) {
	for name, st := range backends(t) {
		sess := sampleSession("s1")
		if err := st.SaveSession(sess); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		sess.MessageCount = 9
		sess.State = "archived"
		if err := st.SaveSession(sess); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		got, _ := st.LoadSession("s1")
		if got.MessageCount != 9 || got.State != "archived" {
			t.Fatalf("%s: second save did not win: %+v", name, got)
		}
		all, err := st.AllSessions()
		if err != nil || len(all) != 1 {
			t.Fatalf("%s: upsert duplicated rows: %d", name, len(all))
		}
	}
}

func TestSearchSessions(t *testing.T) {
	for name, st := range backends(t) {
		s1 := sampleSession("s1")
		s2 := sampleSession("s2")
		s2.Keywords = []string{"gardening"}
		s2.Title = "tomato planting tips"
		if err := st.SaveSession(s1); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := st.SaveSession(s2); err != nil {
			t.Fatalf("%s: %v", name, err)
		}

		hits, err := st.SearchSessions([]string{"consciousness"})
		if err != nil {
			t.Fatalf("%s: search: %v", name, err)
		}
		if len(hits) != 1 || hits[0].ID != "s1" {
			t.Fatalf("%s: keyword search = %v", name, hits)
		}

		// Case-insensitive, substring semantics.
		hits, _ = st.SearchSessions([]string{"CONSCIOUS"})
		if len(hits) != 1 {
			t.Fatalf("%s: case-insensitive search failed", name)
		}
		hits, _ = st.SearchSessions([]string{"quantum"})
		if len(hits) != 0 {
			t.Fatalf("%s: search for absent keyword = %v", name, hits)
		}

		byTitle, err := st.SearchByTitle("tomato")
		if err != nil || len(byTitle) != 1 || byTitle[0].ID != "s2" {
			t.Fatalf("%s: title search = %v (%v)", name, byTitle, err)
		}
	}
}

func TestDeleteSessionRemovesChatLog(t *testing.T) {
	for name, st := range backends(t) {
		if err := st.SaveSession(sampleSession("s1")); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := st.SaveChatLog(sampleChatLog("s1")); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := st.DeleteSession("s1"); err != nil {
			t.Fatalf("%s: delete: %v", name, err)
		}
		if _, ok := st.LoadSession("s1"); ok {
			t.Fatalf("%s: session survived delete", name)
		}
		if _, ok := st.LoadChatLog("log_s1"); ok {
			t.Fatalf("%s: chat log survived delete", name)
		}
		if err := st.DeleteSession("ghost"); err != nil {
			t.Fatalf("%s: deleting a missing session must be a no-op, got %v", name, err)
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	for name, src := range backends(t) {
		if err := src.SaveSession(sampleSession("s1")); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := src.SaveChatLog(sampleChatLog("s1")); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := src.SaveBrain(BrainRecord{EntityID: "A", Model: "llama3.2", Timestamp: t0}); err != nil {
			t.Fatalf("%s: %v", name, err)
		}

		bundle, err := src.ExportAll()
		if err != nil {
			t.Fatalf("%s: export: %v", name, err)
		}
		if bundle.Version != BundleVersion {
			t.Fatalf("%s: bundle version = %d", name, bundle.Version)
		}

		dst := NewMemStore()
		if err := dst.Import(bundle); err != nil {
			t.Fatalf("%s: import: %v", name, err)
		}
		got, ok := dst.LoadSession("s1")
		if !ok {
			t.Fatalf("%s: imported session missing", name)
		}
		want := sampleSession("s1")
		if got.Title != want.Title || got.MessageCount != want.MessageCount ||
			len(got.Keywords) != len(want.Keywords) || !got.CreatedAt.Equal(want.CreatedAt) {
			t.Fatalf("%s: imported session differs: %+v", name, got)
		}
		if logc, ok := dst.LoadChatLog("log_s1"); !ok || len(logc.Messages) != 2 {
			t.Fatalf("%s: imported chat log differs", name)
		}
		if _, ok := dst.LoadBrain("A"); !ok {
			t.Fatalf("%s: imported brain missing", name)
		}
	}
}

func TestImportRejectsUnsupportedVersion(t *testing.T) {
	for name, st := range backends(t) {
		if err := st.SaveSession(sampleSession("keep")); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		bad := Bundle{
			Version:  2,
			Sessions: []SessionRecord{sampleSession("intruder")},
		}
		if err := st.Import(bad); !errors.Is(err, ErrUnsupportedVersion) {
			t.Fatalf("%s: import of version 2 = %v, want ErrUnsupportedVersion", name, err)
		}
		// Nothing was written.
		if _, ok := st.LoadSession("intruder"); ok {
			t.Fatalf("%s: rejected import still wrote records", name)
		}
		if _, ok := st.LoadSession("keep"); !ok {
			t.Fatalf("%s: rejected import damaged existing records", name)
		}
	}
}
