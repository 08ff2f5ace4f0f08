package matchmaker_test

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/emberfn/uplink/internal/matchmaker"
	"github.com/emberfn/uplink/internal/store"
)

const pollInterval = 10 * time.Millisecond

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// fakeSender collects the status frames pushed to one matchmaking client.
type fakeSender struct {
	mu     sync.Mutex
	frames []string
}

func (f *fakeSender) Send(msg []byte) {
	f.mu.Lock()
	f.frames = append(f.frames, string(msg))
	f.mu.Unlock()
}

func (f *fakeSender) Close(error) {}

func (f *fakeSender) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeSender) hasFrame(name string) bool {
	for _, fr := range f.snapshot() {
		if gjson.Get(fr, "name").String() == name {
			return true
		}
	}
	return false
}

func (f *fakeSender) lastWithState(state string) (string, bool) {
	frames := f.snapshot()
	for i := len(frames) - 1; i >= 0; i-- {
		if gjson.Get(frames[i], "payload.state").String() == state {
			return frames[i], true
		}
	}
	return "", false
}

func newTestScheduler(servers store.Servers) *matchmaker.Scheduler {
	return matchmaker.NewScheduler(servers, pollInterval, 1, testLogger())
}

func TestEnqueueEmitsInitialStatuses(t *testing.T) {
	s := newTestScheduler(store.NewMemoryServers())
	conn := &fakeSender{}

	ticket := s.Enqueue(conn, "match-1", "playlist_default", "EU")
	require.NotEmpty(t, ticket.ID)

	frames := conn.snapshot()
	require.Len(t, frames, 3)

	require.Equal(t, "StatusUpdate", gjson.Get(frames[0], "name").String())
	require.Equal(t, "Connecting", gjson.Get(frames[0], "payload.state").String())

	require.Equal(t, "Waiting", gjson.Get(frames[1], "payload.state").String())
	require.EqualValues(t, 1, gjson.Get(frames[1], "payload.totalPlayers").Int())
	require.EqualValues(t, 1, gjson.Get(frames[1], "payload.connectedPlayers").Int())

	require.Equal(t, "Queued", gjson.Get(frames[2], "payload.state").String())
	require.Equal(t, ticket.ID, gjson.Get(frames[2], "payload.ticketId").String())
	require.EqualValues(t, 1, gjson.Get(frames[2], "payload.queuedPlayers").Int())
	require.EqualValues(t, 3, gjson.Get(frames[2], "payload.estimatedWaitSec").Int())

	require.True(t, s.PollerActive("playlist_default", "EU"))
	require.Equal(t, 1, s.QueueDepth("playlist_default", "EU"))

	s.HandleDisconnect(conn)
}

func TestWaitingCountsAllQueuedConnections(t *testing.T) {
	s := newTestScheduler(store.NewMemoryServers())
	first, second := &fakeSender{}, &fakeSender{}

	s.Enqueue(first, "m1", "playlist_default", "EU")
	s.Enqueue(second, "m2", "playlist_default", "NA")

	// the waiting count spans buckets, the queued depth does not
	frames := second.snapshot()
	require.EqualValues(t, 2, gjson.Get(frames[1], "payload.totalPlayers").Int())
	require.EqualValues(t, 1, gjson.Get(frames[2], "payload.queuedPlayers").Int())

	require.True(t, s.PollerActive("playlist_default", "EU"))
	require.True(t, s.PollerActive("playlist_default", "NA"))

	s.HandleDisconnect(first)
	s.HandleDisconnect(second)
}

func TestAssignmentDrainsWholeBucket(t *testing.T) {
	servers := store.NewMemoryServers()
	servers.Add(store.GameServer{
		Address:   "10.0.0.1",
		Port:      7777,
		SessionID: "session-abc",
		Playlist:  "playlist_default",
		Region:    "EU",
	})
	s := newTestScheduler(servers)

	conns := []*fakeSender{{}, {}, {}}
	for i, conn := range conns {
		s.Enqueue(conn, "match-"+string(rune('a'+i)), "playlist_default", "EU")
	}

	require.Eventually(t, func() bool {
		for _, conn := range conns {
			if _, ok := conn.lastWithState("SessionAssignment"); !ok {
				return false
			}
			if !conn.hasFrame("Play") {
				return false
			}
		}
		return true
	}, time.Second, pollInterval)

	// every drained ticket gets the same session, and Play follows the
	// assignment with the configured join delay
	for _, conn := range conns {
		frames := conn.snapshot()
		last := frames[len(frames)-1]
		require.Equal(t, "Play", gjson.Get(last, "name").String())
		require.Equal(t, "session-abc", gjson.Get(last, "payload.sessionId").String())
		require.EqualValues(t, 1, gjson.Get(last, "payload.joinDelaySec").Int())
	}

	// the bucket is gone; its poller stopped with it
	require.Eventually(t, func() bool {
		return !s.PollerActive("playlist_default", "EU")
	}, time.Second, pollInterval)
	require.Equal(t, 0, s.QueueDepth("playlist_default", "EU"))
}

func TestDisconnectStopsEmptiedPoller(t *testing.T) {
	s := newTestScheduler(store.NewMemoryServers())
	conn := &fakeSender{}

	s.Enqueue(conn, "m1", "playlist_default", "EU")
	require.True(t, s.PollerActive("playlist_default", "EU"))

	s.HandleDisconnect(conn)
	require.False(t, s.PollerActive("playlist_default", "EU"))
	require.Equal(t, 0, s.QueueDepth("playlist_default", "EU"))

	// a later queue entry gets a fresh bucket and poller
	again := &fakeSender{}
	s.Enqueue(again, "m2", "playlist_default", "EU")
	require.True(t, s.PollerActive("playlist_default", "EU"))
	s.HandleDisconnect(again)
}

func TestDisconnectOfUnknownConnectionIsNoOp(t *testing.T) {
	s := newTestScheduler(store.NewMemoryServers())
	s.HandleDisconnect(&fakeSender{})
}

func TestNoServersKeepsTicketQueued(t *testing.T) {
	s := newTestScheduler(store.NewMemoryServers())
	conn := &fakeSender{}
	s.Enqueue(conn, "m1", "playlist_default", "EU")

	require.Eventually(t, func() bool {
		frame, ok := conn.lastWithState("Queued")
		return ok && gjson.Get(frame, "payload.estimatedWaitSec").Int() == 10
	}, time.Second, pollInterval)

	frame, _ := conn.lastWithState("Queued")
	require.Equal(t, "Still searching for servers...", gjson.Get(frame, "payload.status.message").String())
	require.True(t, s.PollerActive("playlist_default", "EU"))

	s.HandleDisconnect(conn)
}

// flakyServers fails its first queries and then serves from the wrapped
// registry.
type flakyServers struct {
	failures int32
	inner    store.Servers
}

func (f *flakyServers) OpenServers(playlist, region string) ([]store.GameServer, error) {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, errors.New("registry unavailable")
	}
	return f.inner.OpenServers(playlist, region)
}

func TestRegistryErrorDoesNotKillPoller(t *testing.T) {
	inner := store.NewMemoryServers()
	inner.Add(store.GameServer{SessionID: "session-xyz", Playlist: "playlist_default", Region: "EU"})
	s := newTestScheduler(&flakyServers{failures: 3, inner: inner})

	conn := &fakeSender{}
	s.Enqueue(conn, "m1", "playlist_default", "EU")

	// assignment still arrives once the registry recovers
	require.Eventually(t, func() bool {
		return conn.hasFrame("Play")
	}, 2*time.Second, pollInterval)

	frames := conn.snapshot()
	require.Equal(t, "session-xyz", gjson.Get(frames[len(frames)-1], "payload.sessionId").String())
}
