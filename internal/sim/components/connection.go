package components

import (
	"time"

	"folioverse.ai/internal/sim/ecs"
)

type ConnState string

const (
	ConnPending    ConnState = "pending"
	ConnConnecting ConnState = "connecting"
	ConnActive     ConnState = "active"
	ConnInactive   ConnState = "inactive"
	ConnError      ConnState = "error"
)

// ConnRecord is one entity's view of a link to a peer. The peer holds its
// own record; the two sides are kept symmetric best-effort, never
// atomically, so consumers must tolerate one-sided links.
type ConnRecord struct {
	State          ConnState
	CreatedAt      time.Time
	LastActivityAt time.Time
	Metadata       map[string]string
}

// Connection maps peer entity ids to connection records.
type Connection struct {
	Peers map[string]*ConnRecord
}

func (c *Connection) Kind() ecs.ComponentKind { return ecs.KindConnection }

func NewConnection() *Connection {
	return &Connection{Peers: map[string]*ConnRecord{}}
}

// Add upserts a connection record for peerID, defaulting state to pending.
func (c *Connection) Add(peerID string, state ConnState, meta map[string]string, now time.Time) *ConnRecord {
	if state == "" {
		state = ConnPending
	}
	r, ok := c.Peers[peerID]
	if !ok {
		r = &ConnRecord{CreatedAt: now}
		c.Peers[peerID] = r
	}
	r.State = state
	r.LastActivityAt = now
	if meta != nil {
		if r.Metadata == nil {
			r.Metadata = map[string]string{}
		}
		for k, v := range meta {
			r.Metadata[k] = v
		}
	}
	return r
}

// UpdateState sets the state for peerID and refreshes LastActivityAt. Any
// state is settable; there is no transition table for connections. Returns
// false for an unknown peer.
func (c *Connection) UpdateState(peerID string, state ConnState, now time.Time) bool {
	r, ok := c.Peers[peerID]
	if !ok {
		return false
	}
	r.State = state
	r.LastActivityAt = now
	return true
}

// Get returns the record for peerID, or (nil, false).
func (c *Connection) Get(peerID string) (*ConnRecord, bool) {
	r, ok := c.Peers[peerID]
	return r, ok
}
