package state

import "sync"

// Sender is the outbound half of a client's transport. The concrete
// implementation is pkg/transport.Connection; tests substitute fakes.
type Sender interface {
	// Send queues a frame for delivery. Safe for concurrent use.
	Send(message []byte)
	// Close tears the transport down with the given reason.
	Close(err error)
}

// LastPresence is the most recent presence a client published. Status is an
// opaque JSON object supplied by the client.
type LastPresence struct {
	Away   bool
	Status string
}

// Client is the canonical representation of one authenticated relay
// connection. AccountID, Username, Resource and JID are set exactly once,
// before the client is registered, and are read-only afterwards.
type Client struct {
	Transport Sender
	AccountID string
	Username  string
	Resource  string
	JID       string

	mu       sync.Mutex
	presence LastPresence
}

// SetPresence replaces the cached presence. Called by the owning session;
// read concurrently by friend-presence replay.
func (c *Client) SetPresence(p LastPresence) {
	c.mu.Lock()
	c.presence = p
	c.mu.Unlock()
}

// Presence returns the cached presence.
func (c *Client) Presence() LastPresence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence
}
