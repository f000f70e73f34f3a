package store

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeBundleRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"not json", `{broken`, "parse"},
		{"missing version", `{"sessions":[],"chat_logs":[],"brains":[]}`, "schema"},
		{"session missing id", `{"version":1,"sessions":[{"state":"active"}],"chat_logs":[],"brains":[]}`, "schema"},
		{"brain missing entity_id", `{"version":1,"sessions":[],"chat_logs":[],"brains":[{"model":"x"}]}`, "schema"},
	}
	for _, tc := range cases {
		if _, err := DecodeBundle([]byte(tc.raw)); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err = %v, want %q failure", tc.name, err, tc.want)
		}
	}
}

func TestDecodeBundleVersionGate(t *testing.T) {
	raw := `{"version":2,"sessions":[],"chat_logs":[],"brains":[]}`
	if _, err := DecodeBundle([]byte(raw)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("err = %v, want ErrUnsupportedVersion", err)
	}
	ok := `{"version":1,"sessions":[],"chat_logs":[],"brains":[]}`
	b, err := DecodeBundle([]byte(ok))
	if err != nil {
		t.Fatalf("valid empty bundle rejected: %v", err)
	}
	if b.Version != 1 {
		t.Fatalf("version = %d", b.Version)
	}
}

func TestImportJSONAppliesRecords(t *testing.T) {
	raw := `{
		"version": 1,
		"sessions": [{"id":"s1","participants":["A","B"],"state":"archived","chat_log_id":"log_s1","message_count":1}],
		"chat_logs": [{"id":"log_s1","messages":[{"id":"m1","sender_id":"A","content":"hey","type":"llm"}]}],
		"brains": [{"entity_id":"A","model":"llama3.2"}]
	}`
	st := NewMemStore()
	if err := ImportJSON(st, []byte(raw)); err != nil {
		t.Fatalf("import: %v", err)
	}
	if s, ok := st.LoadSession("s1"); !ok || s.State != "archived" {
		t.Fatalf("session not applied: %+v", s)
	}
	if l, ok := st.LoadChatLog("log_s1"); !ok || len(l.Messages) != 1 || l.Messages[0].Content != "hey" {
		t.Fatalf("chat log not applied: %+v", l)
	}
	if _, ok := st.LoadBrain("A"); !ok {
		t.Fatalf("brain not applied")
	}
}

func TestBundleFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := Bundle{
		Version:  BundleVersion,
		Sessions: []SessionRecord{sampleSession("s1")},
		ChatLogs: []ChatLogRecord{sampleChatLog("s1")},
		Brains:   []BrainRecord{{EntityID: "A", Model: "llama3.2", Timestamp: t0}},
	}
	for _, name := range []string{"bundle.json", "bundle.json.zst"} {
		path := filepath.Join(dir, name)
		if err := WriteBundleFile(path, src); err != nil {
			t.Fatalf("%s: write: %v", name, err)
		}
		got, err := ReadBundleFile(path)
		if err != nil {
			t.Fatalf("%s: read: %v", name, err)
		}
		if len(got.Sessions) != 1 || got.Sessions[0].ID != "s1" {
			t.Fatalf("%s: sessions drifted: %+v", name, got.Sessions)
		}
		if len(got.ChatLogs) != 1 || len(got.ChatLogs[0].Messages) != 2 {
			t.Fatalf("%s: chat logs drifted", name)
		}
		if !got.Brains[0].Timestamp.Equal(t0) {
			t.Fatalf("%s: brain timestamp drifted", name)
		}
	}
}
