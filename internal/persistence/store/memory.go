package store

import (
	"sync"
	"time"
)

// MemStore keeps all records in memory. It is both the test backend and the
// degraded mode the server falls back to when the SQLite file cannot be
// opened: the system stays up, durability stops at process exit.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionRecord
	chatlogs map[string]ChatLogRecord
	brains   map[string]BrainRecord
}

func NewMemStore() *MemStore {
	return &MemStore{
		sessions: map[string]SessionRecord{},
		chatlogs: map[string]ChatLogRecord{},
		brains:   map[string]BrainRecord{},
	}
}

func (m *MemStore) SaveSession(r SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[r.ID] = r
	return nil
}

func (m *MemStore) SaveChatLog(r ChatLogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatlogs[r.ID] = r
	return nil
}

func (m *MemStore) SaveBrain(r BrainRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brains[r.EntityID] = r
	return nil
}

func (m *MemStore) LoadSession(id string) (SessionRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.sessions[id]
	return r, ok
}

func (m *MemStore) LoadChatLog(id string) (ChatLogRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.chatlogs[id]
	return r, ok
}

func (m *MemStore) LoadBrain(entityID string) (BrainRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.brains[entityID]
	return r, ok
}

func (m *MemStore) AllSessions() ([]SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionRecord, 0, len(m.sessions))
	for _, r := range m.sessions {
		out = append(out, r)
	}
	return out, nil
}

func (m *MemStore) SearchSessions(keywords []string) ([]SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SessionRecord
	for _, r := range m.sessions {
		if matchKeywords(r.Keywords, keywords) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemStore) SearchByTitle(term string) ([]SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SessionRecord
	for _, r := range m.sessions {
		if matchTitle(r.Title, term) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemStore) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	if r.ChatLogID != "" {
		delete(m.chatlogs, r.ChatLogID)
	}
	return nil
}

func (m *MemStore) ExportAll() (Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b := Bundle{Version: BundleVersion, ExportedAt: time.Now().UTC()}
	for _, r := range m.sessions {
		b.Sessions = append(b.Sessions, r)
	}
	for _, r := range m.chatlogs {
		b.ChatLogs = append(b.ChatLogs, r)
	}
	for _, r := range m.brains {
		b.Brains = append(b.Brains, r)
	}
	return b, nil
}

// Import stages into scratch maps and swaps, so a bad bundle leaves the
// store unchanged.
func (m *MemStore) Import(b Bundle) error {
	if b.Version != BundleVersion {
		return ErrUnsupportedVersion
	}
	sessions := map[string]SessionRecord{}
	chatlogs := map[string]ChatLogRecord{}
	brains := map[string]BrainRecord{}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.sessions {
		sessions[k] = v
	}
	for k, v := range m.chatlogs {
		chatlogs[k] = v
	}
	for k, v := range m.brains {
		brains[k] = v
	}
	for _, r := range b.Sessions {
		sessions[r.ID] = r
	}
	for _, r := range b.ChatLogs {
		chatlogs[r.ID] = r
	}
	for _, r := range b.Brains {
		brains[r.EntityID] = r
	}
	m.sessions = sessions
	m.chatlogs = chatlogs
	m.brains = brains
	return nil
}

func (m *MemStore) Close() error { return nil }
