// Package matchmaker queues waiting clients per (playlist, region) and
// assigns them to open game servers.
package matchmaker

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/emberfn/uplink/internal/store"
)

// bucket is one (playlist, region) queue partition. A bucket exists in the
// scheduler map if and only if its poller goroutine is running.
type bucket struct {
	key      string
	playlist string
	region   string
	tickets  []*Ticket
	stop     chan struct{}
}

// Scheduler owns the queue buckets and their pollers. All bucket and ticket
// mutations happen under one mutex; frame delivery goes through each
// ticket's own transport queue outside the lock.
type Scheduler struct {
	servers      store.Servers
	logger       *slog.Logger
	pollInterval time.Duration
	joinDelaySec int

	mu      sync.Mutex
	tickets map[Sender]*Ticket
	buckets map[string]*bucket
}

func NewScheduler(servers store.Servers, pollInterval time.Duration, joinDelaySec int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		servers:      servers,
		logger:       logger.With(slog.String("component", "matchmaker")),
		pollInterval: pollInterval,
		joinDelaySec: joinDelaySec,
		tickets:      make(map[Sender]*Ticket),
		buckets:      make(map[string]*bucket),
	}
}

// Enqueue creates a ticket for the connection, emits the initial
// Connecting/Waiting/Queued status updates and guarantees the bucket has
// exactly one running poller.
func (s *Scheduler) Enqueue(t Sender, matchID, playlist, region string) *Ticket {
	ticket := newTicket(t, matchID, playlist, region)

	s.mu.Lock()
	s.tickets[t] = ticket
	online := len(s.tickets)

	b, ok := s.buckets[ticket.bucketKey()]
	if !ok {
		b = &bucket{
			key:      ticket.bucketKey(),
			playlist: playlist,
			region:   region,
			stop:     make(chan struct{}),
		}
		s.buckets[b.key] = b
		go s.poll(b)
		s.logger.Info("Starting poller", slog.String("bucket", b.key))
	}
	b.tickets = append(b.tickets, ticket)
	depth := len(b.tickets)
	s.mu.Unlock()

	s.send(ticket, frame{Name: "StatusUpdate", Payload: connectingPayload{State: "Connecting"}})
	s.send(ticket, frame{Name: "StatusUpdate", Payload: waitingPayload{
		TotalPlayers:     online,
		ConnectedPlayers: online,
		State:            "Waiting",
	}})
	s.send(ticket, frame{Name: "StatusUpdate", Payload: queuedPayload{
		TicketID:         ticket.ID,
		QueuedPlayers:    depth,
		EstimatedWaitSec: 3,
		Status:           map[string]string{},
		State:            "Queued",
	}})

	s.logger.Info("Client queued",
		slog.String("ticketID", ticket.ID),
		slog.String("bucket", ticket.bucketKey()),
		slog.Int("depth", depth),
	)
	return ticket
}

// HandleDisconnect removes the connection's ticket. When that empties the
// bucket, its poller is cancelled immediately rather than on the next tick.
func (s *Scheduler) HandleDisconnect(t Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[t]
	if !ok {
		return
	}
	delete(s.tickets, t)

	b, ok := s.buckets[ticket.bucketKey()]
	if !ok {
		return
	}
	if i := slices.Index(b.tickets, ticket); i >= 0 {
		b.tickets = slices.Delete(b.tickets, i, i+1)
	}
	if len(b.tickets) == 0 {
		delete(s.buckets, b.key)
		close(b.stop)
		s.logger.Info("Stopping poller, queue emptied by disconnect", slog.String("bucket", b.key))
	}
}

// QueueDepth reports how many tickets wait in the (playlist, region) bucket.
func (s *Scheduler) QueueDepth(playlist, region string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[bucketKey(playlist, region)]; ok {
		return len(b.tickets)
	}
	return 0
}

// PollerActive reports whether the (playlist, region) bucket has a running
// poller.
func (s *Scheduler) PollerActive(playlist, region string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.buckets[bucketKey(playlist, region)]
	return ok
}

func (s *Scheduler) poll(b *bucket) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if s.tick(b) {
				return
			}
		}
	}
}

// tick runs one poll pass. Reports true when the poller must stop (bucket
// empty or drained by an assignment).
func (s *Scheduler) tick(b *bucket) bool {
	s.mu.Lock()
	if len(b.tickets) == 0 {
		// self-terminating: no dangling timers for empty buckets
		if s.buckets[b.key] == b {
			delete(s.buckets, b.key)
		}
		s.mu.Unlock()
		s.logger.Info("Stopping poller, queue is empty", slog.String("bucket", b.key))
		return true
	}
	waiting := slices.Clone(b.tickets)
	s.mu.Unlock()

	servers, err := s.servers.OpenServers(b.playlist, b.region)
	if err != nil {
		// a failed registry query must not kill the timer
		s.logger.Error("Server registry query failed", slog.String("bucket", b.key), slog.Any("error", err))
		return false
	}

	if len(servers) == 0 {
		s.logger.Debug("No servers found, will retry", slog.String("bucket", b.key))
		for _, ticket := range waiting {
			s.send(ticket, frame{Name: "StatusUpdate", Payload: queuedPayload{
				TicketID:         ticket.ID,
				QueuedPlayers:    len(waiting),
				EstimatedWaitSec: 10,
				Status:           map[string]string{"message": "Still searching for servers..."},
				State:            "Queued",
			}})
		}
		return false
	}

	server := servers[0]

	// snapshot-then-clear: tickets enqueued after this point go to a fresh
	// bucket with its own poller
	s.mu.Lock()
	drained := b.tickets
	b.tickets = nil
	if s.buckets[b.key] == b {
		delete(s.buckets, b.key)
	}
	s.mu.Unlock()

	s.logger.Info("Assigning server",
		slog.String("bucket", b.key),
		slog.String("sessionID", server.SessionID),
		slog.Int("tickets", len(drained)),
	)

	for _, ticket := range drained {
		ticket.SessionID = server.SessionID
		s.send(ticket, frame{Name: "StatusUpdate", Payload: sessionAssignmentPayload{
			MatchID: ticket.MatchID,
			State:   "SessionAssignment",
		}})
		s.send(ticket, frame{Name: "Play", Payload: playPayload{
			MatchID:      ticket.MatchID,
			SessionID:    ticket.SessionID,
			JoinDelaySec: s.joinDelaySec,
		}})
	}
	return true
}

func (s *Scheduler) send(t *Ticket, f frame) {
	encoded, err := json.Marshal(f)
	if err != nil {
		s.logger.Error("Failed to marshal status frame", slog.Any("error", err))
		return
	}
	t.transport.Send(encoded)
}
