package state

import "errors"

// ErrAlreadyConnected is returned by Register when the account already has a
// live connection. The existing session is never evicted.
var ErrAlreadyConnected = errors.New("account already connected")

type Manager interface {
	// --- Client Lifecycle ---
	// Register inserts the client, enforcing at most one live connection
	// per account. The check and the insert are a single atomic step.
	Register(c *Client) error
	// Deregister removes the client and all of its room memberships,
	// returning the rooms it was a member of, in join order. Idempotent.
	Deregister(c *Client) []string
	FindByAccountID(accountID string) (*Client, bool)
	// FindByJID resolves a full JID, or a bare JID against any resource.
	FindByJID(jid string) (*Client, bool)
	Clients() []*Client
	ClientCount() int
	// Usernames is a read-only snapshot for the admin endpoint.
	Usernames() []string

	// --- Room Membership ---
	// JoinRoom adds the client to the room, creating it if absent. The
	// returned member list is an insertion-ordered snapshot including the
	// new member. alreadyMember reports an idempotent re-join.
	JoinRoom(room string, c *Client) (members []string, alreadyMember bool)
	// LeaveRoom removes the client from the room, pruning the room when it
	// empties. Reports whether the client was a member. Idempotent.
	LeaveRoom(room string, c *Client) bool
	// RoomMembers returns the room's accountIDs in join order.
	RoomMembers(room string) []string
	// JoinedRooms returns the rooms the client is currently a member of.
	JoinedRooms(c *Client) []string
}
