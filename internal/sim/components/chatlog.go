package components

import "time"

type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageLLM    MessageType = "llm"
	MessageSystem MessageType = "system"
	MessageText   MessageType = "text"
)

type Message struct {
	ID        string
	SenderID  string
	Content   string
	Timestamp time.Time
	Type      MessageType
	Images    []string
}

// ChatLog is the append-only message history of one session. Insertion order
// is chronological order; messages are never edited in place.
type ChatLog struct {
	ID       string
	Messages []Message
}

func (l *ChatLog) Append(m Message) {
	l.Messages = append(l.Messages, m)
}

// Tail returns the last n messages (fewer if the log is shorter).
func (l *ChatLog) Tail(n int) []Message {
	if n <= 0 || len(l.Messages) == 0 {
		return nil
	}
	if n > len(l.Messages) {
		n = len(l.Messages)
	}
	out := make([]Message, n)
	copy(out, l.Messages[len(l.Messages)-n:])
	return out
}
