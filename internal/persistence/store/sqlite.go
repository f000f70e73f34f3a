package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable backend: one document table per record type,
// with index columns split out for range and membership queries.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style autosave workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			title TEXT,
			message_count INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			last_activity_at TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_timestamp ON sessions(timestamp);`,
		`CREATE TABLE IF NOT EXISTS session_participants (
			session_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			PRIMARY KEY (session_id, entity_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_participants_entity ON session_participants(entity_id);`,
		`CREATE TABLE IF NOT EXISTS chat_logs (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS brains (
			entity_id TEXT PRIMARY KEY,
			model TEXT,
			timestamp TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_brains_model ON brains(model);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SaveSession(r SessionRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := upsertSessionTx(tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertSessionTx(tx *sql.Tx, r SessionRecord) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO sessions(id,state,title,message_count,created_at,last_activity_at,timestamp,raw_json) VALUES(?,?,?,?,?,?,?,?)`,
		r.ID, r.State, r.Title, r.MessageCount,
		ts(r.CreatedAt), ts(r.LastActivity), ts(r.Timestamp), string(raw),
	); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM session_participants WHERE session_id = ?`, r.ID); err != nil {
		return err
	}
	for _, p := range r.Participants {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO session_participants(session_id,entity_id) VALUES(?,?)`, r.ID, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveChatLog(r ChatLogRecord) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO chat_logs(id,timestamp,raw_json) VALUES(?,?,?)`,
		r.ID, ts(r.Timestamp), string(raw),
	)
	return err
}

func (s *SQLiteStore) SaveBrain(r BrainRecord) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO brains(entity_id,model,timestamp,raw_json) VALUES(?,?,?,?)`,
		r.EntityID, r.Model, ts(r.Timestamp), string(raw),
	)
	return err
}

func (s *SQLiteStore) LoadSession(id string) (SessionRecord, bool) {
	var raw string
	err := s.db.QueryRow(`SELECT raw_json FROM sessions WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		return SessionRecord{}, false
	}
	var r SessionRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return SessionRecord{}, false
	}
	return r, true
}

func (s *SQLiteStore) LoadChatLog(id string) (ChatLogRecord, bool) {
	var raw string
	err := s.db.QueryRow(`SELECT raw_json FROM chat_logs WHERE id = ?`, id).Scan(&raw)
	if err != nil {
		return ChatLogRecord{}, false
	}
	var r ChatLogRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return ChatLogRecord{}, false
	}
	return r, true
}

func (s *SQLiteStore) LoadBrain(entityID string) (BrainRecord, bool) {
	var raw string
	err := s.db.QueryRow(`SELECT raw_json FROM brains WHERE entity_id = ?`, entityID).Scan(&raw)
	if err != nil {
		return BrainRecord{}, false
	}
	var r BrainRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return BrainRecord{}, false
	}
	return r, true
}

func (s *SQLiteStore) AllSessions() ([]SessionRecord, error) {
	rows, err := s.db.Query(`SELECT raw_json FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r SessionRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SearchSessions(keywords []string) ([]SessionRecord, error) {
	all, err := s.AllSessions()
	if err != nil {
		return nil, err
	}
	var out []SessionRecord
	for _, r := range all {
		if matchKeywords(r.Keywords, keywords) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *SQLiteStore) SearchByTitle(term string) ([]SessionRecord, error) {
	all, err := s.AllSessions()
	if err != nil {
		return nil, err
	}
	var out []SessionRecord
	for _, r := range all {
		if matchTitle(r.Title, term) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *SQLiteStore) DeleteSession(id string) error {
	r, ok := s.LoadSession(id)
	if !ok {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM session_participants WHERE session_id = ?`, id); err != nil {
		return err
	}
	if r.ChatLogID != "" {
		if _, err := tx.Exec(`DELETE FROM chat_logs WHERE id = ?`, r.ChatLogID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ExportAll() (Bundle, error) {
	b := Bundle{Version: BundleVersion, ExportedAt: time.Now().UTC()}
	sessions, err := s.AllSessions()
	if err != nil {
		return b, err
	}
	b.Sessions = sessions

	rows, err := s.db.Query(`SELECT raw_json FROM chat_logs`)
	if err != nil {
		return b, err
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return b, err
		}
		var r ChatLogRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		b.ChatLogs = append(b.ChatLogs, r)
	}
	if err := rows.Err(); err != nil {
		return b, err
	}

	brows, err := s.db.Query(`SELECT raw_json FROM brains`)
	if err != nil {
		return b, err
	}
	defer brows.Close()
	for brows.Next() {
		var raw string
		if err := brows.Scan(&raw); err != nil {
			return b, err
		}
		var r BrainRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		b.Brains = append(b.Brains, r)
	}
	return b, brows.Err()
}

// Import applies the whole bundle in one transaction: a mid-stream failure
// writes nothing.
func (s *SQLiteStore) Import(b Bundle) error {
	if b.Version != BundleVersion {
		return ErrUnsupportedVersion
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range b.Sessions {
		if err := upsertSessionTx(tx, r); err != nil {
			return err
		}
	}
	for _, r := range b.ChatLogs {
		raw, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO chat_logs(id,timestamp,raw_json) VALUES(?,?,?)`, r.ID, ts(r.Timestamp), string(raw)); err != nil {
			return err
		}
	}
	for _, r := range b.Brains {
		raw, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO brains(entity_id,model,timestamp,raw_json) VALUES(?,?,?,?)`, r.EntityID, r.Model, ts(r.Timestamp), string(raw)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
