// Package store defines the external collaborators the relay consumes:
// the account store, the friend-relationship store and the game-server
// registry. The relay only reads from these; in-memory implementations back
// tests and standalone runs.
package store

type Account struct {
	AccountID string
	Username  string
	Banned    bool
}

type Accounts interface {
	ByAccountID(accountID string) (*Account, bool)
}

// Friends exposes accepted friendships. Accepted edges are treated as
// symmetric: if A accepted B, each appears in the other's list.
type Friends interface {
	AcceptedFriendIDs(accountID string) []string
}

type GameServer struct {
	Address   string
	Port      int
	SessionID string
	Playlist  string
	Region    string
}

// Servers is the game-server registry consulted by the matchmaker poller.
type Servers interface {
	OpenServers(playlist, region string) ([]GameServer, error)
}
