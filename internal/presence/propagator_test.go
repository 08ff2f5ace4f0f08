package presence_test

import (
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberfn/uplink/internal/presence"
	"github.com/emberfn/uplink/internal/store"
	"github.com/emberfn/uplink/internal/xmpp/stanza"
	"github.com/emberfn/uplink/pkg/state"
	"github.com/emberfn/uplink/pkg/state/statemanager"
)

type captureSender struct {
	mu     sync.Mutex
	frames []string
}

func (c *captureSender) Send(msg []byte) {
	c.mu.Lock()
	c.frames = append(c.frames, string(msg))
	c.mu.Unlock()
}

func (c *captureSender) Close(error) {}

func (c *captureSender) drain() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

type fixture struct {
	friends    *store.MemoryFriends
	manager    *statemanager.InMemoryManager
	propagator *presence.Propagator
}

func newFixture() *fixture {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	friends := store.NewMemoryFriends()
	manager := statemanager.NewInMemoryManager(logger)
	return &fixture{
		friends:    friends,
		manager:    manager,
		propagator: presence.NewPropagator(friends, manager, logger),
	}
}

func (f *fixture) online(t *testing.T, accountID string) (*state.Client, *captureSender) {
	t.Helper()
	conn := &captureSender{}
	c := &state.Client{
		Transport: conn,
		AccountID: accountID,
		Username:  accountID + "-name",
		Resource:  "V2:Fortnite:WIN",
		JID:       accountID + "@prod.ol.epicgames.com/V2:Fortnite:WIN",
	}
	c.SetPresence(state.LastPresence{Status: "{}"})
	require.NoError(t, f.manager.Register(c))
	return c, conn
}

func parse(t *testing.T, frame string) *stanza.Node {
	t.Helper()
	node, err := stanza.Parse([]byte(frame))
	require.NoError(t, err)
	return node
}

func TestPropagateReachesOnlineFriendsOnly(t *testing.T) {
	f := newFixture()
	f.friends.Accept("a", "b")
	f.friends.Accept("a", "offline-friend")

	a, connA := f.online(t, "a")
	_, connB := f.online(t, "b")
	_, connC := f.online(t, "c") // online but not a friend

	f.propagator.Propagate(a, `{"inGame":true}`, true, false)

	frames := connB.drain()
	require.Len(t, frames, 1)
	p := parse(t, frames[0])
	require.Equal(t, a.JID, p.Attr("from"))
	require.Equal(t, "available", p.Attr("type"))
	require.Equal(t, "away", p.Child("show").Text())
	require.Equal(t, `{"inGame":true}`, p.Child("status").Text())

	require.Empty(t, connC.drain())
	require.Empty(t, connA.drain(), "propagate must not loop back to the sender")

	// the new presence is cached for later replay
	last := a.Presence()
	require.True(t, last.Away)
	require.Equal(t, `{"inGame":true}`, last.Status)
}

func TestPropagateOffline(t *testing.T) {
	f := newFixture()
	f.friends.Accept("a", "b")
	a, _ := f.online(t, "a")
	_, connB := f.online(t, "b")

	f.propagator.Propagate(a, "{}", false, true)

	frames := connB.drain()
	require.Len(t, frames, 1)
	require.Equal(t, "unavailable", parse(t, frames[0]).Attr("type"))
}

func TestReplayToSendsCachedFriendPresence(t *testing.T) {
	f := newFixture()
	f.friends.Accept("a", "b")
	f.friends.Accept("a", "ghost") // never online

	b, _ := f.online(t, "b")
	b.SetPresence(state.LastPresence{Away: true, Status: `{"lobby":"main"}`})

	a, connA := f.online(t, "a")
	f.propagator.ReplayTo(a)

	frames := connA.drain()
	require.Len(t, frames, 1)
	p := parse(t, frames[0])
	require.Equal(t, b.JID, p.Attr("from"))
	require.Equal(t, a.JID, p.Attr("to"))
	require.Equal(t, "available", p.Attr("type"))
	require.Equal(t, "away", p.Child("show").Text())
	require.Equal(t, `{"lobby":"main"}`, p.Child("status").Text())
}

func TestEchoLoopsPresenceBack(t *testing.T) {
	f := newFixture()
	a, connA := f.online(t, "a")
	a.SetPresence(state.LastPresence{Status: `{"s":1}`})

	f.propagator.Echo(a)

	frames := connA.drain()
	require.Len(t, frames, 1)
	p := parse(t, frames[0])
	require.Equal(t, a.JID, p.Attr("from"))
	require.Equal(t, a.JID, p.Attr("to"))
	require.Equal(t, `{"s":1}`, p.Child("status").Text())
}
