package protocol

import (
	"encoding/json"
	"time"
)

// HELLO: presentation client handshake.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
}

// WELCOME: binds the client to its player entity and describes the roster.
type WelcomeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	EntityID        string       `json:"entity_id"`
	Roster          []EntityInfo `json:"roster"`
	GeneratorModel  string       `json:"generator_model,omitempty"`
	GeneratorOnline bool         `json:"generator_online"`
}

type EntityInfo struct {
	ID              string `json:"id"`
	Tag             string `json:"tag,omitempty"`
	Name            string `json:"name,omitempty"`
	Model           string `json:"model,omitempty"`
	PrimaryFunction string `json:"primary_function,omitempty"`
}

// STATE: periodic world snapshot the presentation layer renders from.
type StateMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Tick            uint64        `json:"tick"`
	Entities        []EntityState `json:"entities"`
	Connections     []ConnEdge    `json:"connections,omitempty"`
	Sessions        []SessionInfo `json:"sessions,omitempty"`
}

type EntityState struct {
	ID      string     `json:"id"`
	Tag     string     `json:"tag,omitempty"`
	Name    string     `json:"name,omitempty"`
	Pos     [3]float64 `json:"pos"`
	Yaw     float64    `json:"yaw,omitempty"`
	Status  string     `json:"status,omitempty"`
	Emotion string     `json:"emotion,omitempty"`
	Energy  float64    `json:"energy,omitempty"`
}

type ConnEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	State string `json:"state"`
}

type SessionInfo struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	State        string   `json:"state"`
	Title        string   `json:"title,omitempty"`
	MessageCount int      `json:"message_count"`
}

// CHAT: one appended message, pushed as it lands in the chat log.
type ChatMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	Message         MessageWire `json:"message"`
}

type MessageWire struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Type      string    `json:"msg_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SAY: a user chat message pushed into the core. TargetID addresses an
// entity when no session exists yet; SessionID continues an existing one.
type SayMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id,omitempty"`
	TargetID        string `json:"target_id,omitempty"`
	Content         string `json:"content"`
}

// CMD: a slash-style command line (/history, /search q, /save, /export,
// /delete id).
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Command         string `json:"command"`
}

type CmdResultMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Command         string          `json:"command"`
	OK              bool            `json:"ok"`
	Code            string          `json:"code,omitempty"`
	Error           string          `json:"error,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
}
