package xmpp

import (
	"encoding/json"

	"github.com/emberfn/uplink/internal/xmpp/stanza"
	"github.com/emberfn/uplink/pkg/state"
)

// SendAdminMessage delivers a service notice (a JSON body from the admin
// address) to one account's live connection, if any. Used by the social
// surfaces (friend requests/accepts) to push updates into the relay.
func SendAdminMessage(m state.Manager, domain string, body any, accountID string) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	receiver, ok := m.FindByAccountID(accountID)
	if !ok {
		return nil
	}
	receiver.Transport.Send(stanza.AdminMessage(domain, receiver.JID, string(encoded)))
	return nil
}

// BroadcastAdminMessage delivers a service notice to every live connection.
func BroadcastAdminMessage(m state.Manager, domain string, body any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	for _, c := range m.Clients() {
		c.Transport.Send(stanza.AdminMessage(domain, c.JID, string(encoded)))
	}
	return nil
}
