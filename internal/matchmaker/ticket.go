package matchmaker

import (
	"strings"

	"github.com/google/uuid"
)

// Sender is the outbound half of a matchmaking client's transport.
type Sender interface {
	Send(message []byte)
	Close(err error)
}

// Ticket is one client's in-flight matchmaking request. A ticket lives in
// exactly one queue bucket until it is drained by an assignment or removed
// by a disconnect.
type Ticket struct {
	ID        string
	MatchID   string
	Playlist  string
	Region    string
	SessionID string

	transport Sender
}

func newTicket(t Sender, matchID, playlist, region string) *Ticket {
	return &Ticket{
		ID:        hexID(),
		MatchID:   matchID,
		Playlist:  playlist,
		Region:    region,
		transport: t,
	}
}

func (t *Ticket) bucketKey() string {
	return bucketKey(t.Playlist, t.Region)
}

func bucketKey(playlist, region string) string {
	return playlist + "-" + region
}

func hexID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Wire frames of the matchmaking status protocol.

type frame struct {
	Payload any    `json:"payload"`
	Name    string `json:"name"`
}

type connectingPayload struct {
	State string `json:"state"`
}

type waitingPayload struct {
	TotalPlayers     int    `json:"totalPlayers"`
	ConnectedPlayers int    `json:"connectedPlayers"`
	State            string `json:"state"`
}

type queuedPayload struct {
	TicketID         string            `json:"ticketId"`
	QueuedPlayers    int               `json:"queuedPlayers"`
	EstimatedWaitSec int               `json:"estimatedWaitSec"`
	Status           map[string]string `json:"status"`
	State            string            `json:"state"`
}

type sessionAssignmentPayload struct {
	MatchID string `json:"matchId"`
	State   string `json:"state"`
}

type playPayload struct {
	MatchID      string `json:"matchId"`
	SessionID    string `json:"sessionId"`
	JoinDelaySec int    `json:"joinDelaySec"`
}
