package gen

import (
	"context"
	"sync"
)

// Scripted is a deterministic in-memory generator for tests: it replays its
// lines in order, or fails every call when Err is set.
type Scripted struct {
	mu    sync.Mutex
	Lines []string
	Err   error

	i     int
	calls int
}

func (s *Scripted) Generate(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Lines) == 0 {
		return "...", nil
	}
	line := s.Lines[s.i%len(s.Lines)]
	s.i++
	return line, nil
}

func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Scripted) IsConnected() bool { return s.Err == nil }

func (s *Scripted) ModelName() string { return "scripted" }

func (s *Scripted) Models() []string { return []string{"scripted"} }
