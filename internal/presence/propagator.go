// Package presence pushes availability between accepted friends.
package presence

import (
	"log/slog"

	"github.com/emberfn/uplink/internal/store"
	"github.com/emberfn/uplink/internal/xmpp/stanza"
	"github.com/emberfn/uplink/pkg/state"
)

// Propagator computes a client's accepted-friend set and fans presence
// stanzas out to the friends that have a live connection.
type Propagator struct {
	friends store.Friends
	manager state.Manager
	logger  *slog.Logger
}

func NewPropagator(friends store.Friends, manager state.Manager, logger *slog.Logger) *Propagator {
	return &Propagator{
		friends: friends,
		manager: manager,
		logger:  logger.With(slog.String("component", "presence_propagator")),
	}
}

// ReplayTo sends the last known presence of every online accepted friend to
// the given client. Invoked once at session establishment.
func (p *Propagator) ReplayTo(c *state.Client) {
	for _, friendID := range p.friends.AcceptedFriendIDs(c.AccountID) {
		friend, ok := p.manager.FindByAccountID(friendID)
		if !ok {
			continue
		}
		last := friend.Presence()
		c.Transport.Send(stanza.Presence(friend.JID, c.JID, last.Status, last.Away, false))
	}
}

// Propagate caches the client's new presence and pushes it to every online
// accepted friend. offline announces the client's disconnect.
func (p *Propagator) Propagate(c *state.Client, status string, away, offline bool) {
	c.SetPresence(state.LastPresence{Away: away, Status: status})

	for _, friendID := range p.friends.AcceptedFriendIDs(c.AccountID) {
		friend, ok := p.manager.FindByAccountID(friendID)
		if !ok {
			continue
		}
		friend.Transport.Send(stanza.Presence(c.JID, friend.JID, status, away, offline))
	}
	p.logger.Debug("Propagated presence",
		slog.String("accountID", c.AccountID),
		slog.Bool("away", away),
		slog.Bool("offline", offline),
	)
}

// Echo loops the client's own presence back to it, so its other observers
// of self state stay current.
func (p *Propagator) Echo(c *state.Client) {
	last := c.Presence()
	c.Transport.Send(stanza.Presence(c.JID, c.JID, last.Status, last.Away, false))
}
