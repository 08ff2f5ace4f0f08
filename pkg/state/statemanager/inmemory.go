package statemanager

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/emberfn/uplink/pkg/state"
)

type room struct {
	name string
	// members in join order, no duplicates.
	members []string
}

// InMemoryManager keeps every registry and room mutation behind a single
// mutex: register/deregister/join/leave serialize against each other, so a
// half-cleaned-up client is never visible to a concurrent lookup. Reads hand
// out snapshots; delivery to the resolved targets happens outside the lock.
type InMemoryManager struct {
	mu      sync.RWMutex
	clients map[string]*state.Client // keyed by accountID
	rooms   map[string]*room
	// joined rooms per accountID, in join order.
	memberships map[string][]string

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		clients:     make(map[string]*state.Client),
		rooms:       make(map[string]*room),
		memberships: make(map[string][]string),
		logger:      logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) Register(c *state.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[c.AccountID]; exists {
		return state.ErrAlreadyConnected
	}
	m.clients[c.AccountID] = c
	m.logger.Debug("Client registered", slog.String("accountID", c.AccountID), slog.String("jid", c.JID))
	return nil
}

func (m *InMemoryManager) Deregister(c *state.Client) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.clients[c.AccountID]
	if !ok || existing != c {
		// already deregistered, or the slot belongs to another session
		return nil
	}
	delete(m.clients, c.AccountID)

	joined := m.memberships[c.AccountID]
	delete(m.memberships, c.AccountID)
	for _, name := range joined {
		m.removeMemberLocked(name, c.AccountID)
	}

	m.logger.Debug("Client deregistered", slog.String("accountID", c.AccountID))
	return joined
}

func (m *InMemoryManager) FindByAccountID(accountID string) (*state.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[accountID]
	return c, ok
}

func (m *InMemoryManager) FindByJID(jid string) (*state.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.clients {
		if c.JID == jid || bareJID(c.JID) == jid {
			return c, true
		}
	}
	return nil, false
}

func (m *InMemoryManager) Clients() []*state.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	clients := make([]*state.Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	return clients
}

func (m *InMemoryManager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *InMemoryManager) Usernames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for _, c := range m.clients {
		names = append(names, c.Username)
	}
	return names
}

// --- Room Membership ---

func (m *InMemoryManager) JoinRoom(name string, c *state.Client) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, exists := m.rooms[name]
	if !exists {
		r = &room{name: name}
		m.rooms[name] = r
		m.logger.Debug("Created room", slog.String("room", name))
	}

	if slices.Contains(r.members, c.AccountID) {
		return slices.Clone(r.members), true
	}

	r.members = append(r.members, c.AccountID)
	m.memberships[c.AccountID] = append(m.memberships[c.AccountID], name)

	m.logger.Debug("Client joined room", slog.String("accountID", c.AccountID), slog.String("room", name))
	return slices.Clone(r.members), false
}

func (m *InMemoryManager) LeaveRoom(name string, c *state.Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.removeMemberLocked(name, c.AccountID) {
		return false
	}
	joined := m.memberships[c.AccountID]
	if i := slices.Index(joined, name); i >= 0 {
		m.memberships[c.AccountID] = slices.Delete(joined, i, i+1)
	}
	m.logger.Debug("Client left room", slog.String("accountID", c.AccountID), slog.String("room", name))
	return true
}

func (m *InMemoryManager) RoomMembers(name string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[name]
	if !ok {
		return nil
	}
	return slices.Clone(r.members)
}

func (m *InMemoryManager) JoinedRooms(c *state.Client) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.memberships[c.AccountID])
}

// removeMemberLocked drops accountID from the room and prunes the room once
// empty. Reports whether the account was a member.
func (m *InMemoryManager) removeMemberLocked(name, accountID string) bool {
	r, ok := m.rooms[name]
	if !ok {
		return false
	}
	i := slices.Index(r.members, accountID)
	if i < 0 {
		return false
	}
	r.members = slices.Delete(r.members, i, i+1)

	// For memory hygiene, remove the room if it's now empty.
	if len(r.members) == 0 {
		delete(m.rooms, name)
		m.logger.Debug("Removed empty room", slog.String("room", name))
	}
	return true
}

func bareJID(jid string) string {
	if i := strings.IndexByte(jid, '/'); i >= 0 {
		return jid[:i]
	}
	return jid
}
