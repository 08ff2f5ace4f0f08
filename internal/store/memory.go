package store

import (
	"slices"
	"sync"
)

type MemoryAccounts struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{accounts: make(map[string]Account)}
}

func (m *MemoryAccounts) Put(a Account) {
	m.mu.Lock()
	m.accounts[a.AccountID] = a
	m.mu.Unlock()
}

func (m *MemoryAccounts) ByAccountID(accountID string) (*Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, false
	}
	return &a, true
}

type MemoryFriends struct {
	mu       sync.RWMutex
	accepted map[string][]string
}

func NewMemoryFriends() *MemoryFriends {
	return &MemoryFriends{accepted: make(map[string][]string)}
}

// Accept records a mutual accepted friendship between a and b.
func (m *MemoryFriends) Accept(a, b string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.accepted[a], b) {
		m.accepted[a] = append(m.accepted[a], b)
	}
	if !slices.Contains(m.accepted[b], a) {
		m.accepted[b] = append(m.accepted[b], a)
	}
}

func (m *MemoryFriends) AcceptedFriendIDs(accountID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.accepted[accountID])
}

type MemoryServers struct {
	mu      sync.RWMutex
	servers []GameServer
}

func NewMemoryServers() *MemoryServers {
	return &MemoryServers{}
}

func (m *MemoryServers) Add(s GameServer) {
	m.mu.Lock()
	m.servers = append(m.servers, s)
	m.mu.Unlock()
}

func (m *MemoryServers) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers = slices.DeleteFunc(m.servers, func(s GameServer) bool {
		return s.SessionID == sessionID
	})
}

func (m *MemoryServers) OpenServers(playlist, region string) ([]GameServer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []GameServer
	for _, s := range m.servers {
		if s.Playlist == playlist && s.Region == region {
			out = append(out, s)
		}
	}
	return out, nil
}
