// Package xmpp drives the per-connection protocol state machine of the
// presence relay: stream negotiation, token auth, resource binding, friend
// presence, party rooms and message routing.
package xmpp

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/emberfn/uplink/internal/auth"
	"github.com/emberfn/uplink/internal/presence"
	"github.com/emberfn/uplink/internal/store"
	"github.com/emberfn/uplink/internal/xmpp/stanza"
	"github.com/emberfn/uplink/pkg/state"
	"github.com/emberfn/uplink/pkg/transport"
)

// maxBodyLen rejects chat and groupchat bodies at and above this length,
// counted in characters, not bytes.
const maxBodyLen = 300

type sessionState int

const (
	stateUnopened sessionState = iota
	stateOpened
	stateAuthenticated
	stateBound
	stateSessionActive
	stateClosed
)

// Deps are the process-wide services a session routes through.
type Deps struct {
	Domain   string
	Manager  state.Manager
	Verifier *auth.Verifier
	Presence *presence.Propagator
	Logger   *slog.Logger
}

// Session is one client's protocol state machine. Frames arrive on the
// connection's read goroutine, but the transport close callback can fire from
// the write pump or server shutdown, so the whole machine is serialized
// behind one mutex: a teardown never interleaves with an in-flight frame.
type Session struct {
	deps      Deps
	transport state.Sender
	logger    *slog.Logger

	streamID string

	mu       sync.Mutex
	state    sessionState
	account  *store.Account
	client   *state.Client
	cleaned  bool
	closeErr error
}

func NewSession(deps Deps, t state.Sender) *Session {
	id := uuid.NewString()
	return &Session{
		deps:      deps,
		transport: t,
		logger:    deps.Logger.With(slog.String("component", "xmpp_session"), slog.String("streamID", id)),
		streamID:  id,
	}
}

// HandleFrame advances the state machine with one inbound frame.
func (s *Session) HandleFrame(msg []byte) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.dispatch(msg)
	err := s.closeErr
	s.closeErr = nil
	s.mu.Unlock()

	// The transport teardown happens outside the lock: its close callback
	// re-enters through HandleClose, which takes the mutex again.
	if err != nil {
		s.transport.Close(err)
	}
}

func (s *Session) dispatch(msg []byte) {
	node, err := stanza.Parse(msg)
	if err != nil {
		s.close("Invalid XML")
		return
	}

	switch node.Name() {
	case "open":
		s.onOpen()
	case "auth":
		s.onAuth(node)
	case "iq":
		s.onIQ(node)
	case "presence":
		s.onPresence(node)
	case "message":
		s.onMessage(node)
	default:
		s.close("Unsupported stanza: " + node.Name())
	}
}

// HandleClose runs the unconditional cleanup for a closed transport:
// deregistration, room-leave broadcasts, offline presence and the party
// member-exited notice. Idempotent; safe to invoke from any goroutine.
func (s *Session) HandleClose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = stateClosed
	if s.cleaned || s.client == nil {
		return
	}
	s.cleaned = true

	last := s.client.Presence()

	// Registry removal and room membership removal are one atomic step; a
	// half-cleaned-up client is never visible to concurrent lookups.
	rooms := s.deps.Manager.Deregister(s.client)
	for _, room := range rooms {
		s.broadcastRoomLeave(room)
	}

	s.deps.Presence.Propagate(s.client, "{}", false, true)
	s.notifyPartyExit(last.Status)

	s.logger.Info("Client logged out", slog.String("username", s.client.Username))
}

func (s *Session) onOpen() {
	s.transport.Send(stanza.StreamOpen(s.deps.Domain, s.streamID))

	if s.state >= stateAuthenticated {
		s.transport.Send(stanza.StreamFeaturesBind())
	} else {
		s.transport.Send(stanza.StreamFeaturesAuth())
		s.state = stateOpened
	}
}

func (s *Session) onAuth(node *stanza.Node) {
	if s.account != nil {
		return
	}
	if s.state != stateOpened {
		s.close("Auth before stream open")
		return
	}

	content := node.Text()
	if content == "" {
		s.close("Invalid XML")
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil || !strings.Contains(string(decoded), "\x00") {
		s.close("Invalid XML")
		return
	}

	// authzid \0 authcid \0 token
	fields := strings.Split(string(decoded), "\x00")
	if len(fields) != 3 {
		s.close("Not array or invalid length")
		return
	}

	account, err := s.deps.Verifier.VerifyBearer(fields[2])
	if err != nil {
		s.close("Invalid token")
		return
	}
	if _, connected := s.deps.Manager.FindByAccountID(account.AccountID); connected {
		s.close("Account already connected")
		return
	}

	s.account = account
	s.state = stateAuthenticated
	s.transport.Send(stanza.SASLSuccess())
	s.logger.Info("Authenticated", slog.String("username", account.Username))
}

func (s *Session) onIQ(node *stanza.Node) {
	switch node.Attr("id") {
	case "_xmpp_bind1":
		s.onBind(node)

	case "_xmpp_session1":
		if s.state != stateBound {
			s.transport.Send(stanza.IQResult(s.deps.Domain, s.jid(), "_xmpp_session1"))
			return
		}
		s.transport.Send(stanza.IQResult(s.deps.Domain, s.client.JID, "_xmpp_session1"))
		s.deps.Presence.ReplayTo(s.client)
		s.state = stateSessionActive

	default:
		// keep-alive semantics: echo an empty result, no state change
		s.transport.Send(stanza.IQResult(s.deps.Domain, s.jid(), node.Attr("id")))
	}
}

func (s *Session) onBind(node *stanza.Node) {
	if s.state != stateAuthenticated {
		return
	}
	bind := node.Child("bind")
	if bind == nil {
		return
	}
	resource := bind.Child("resource")
	if resource == nil || resource.Text() == "" {
		return
	}

	client := &state.Client{
		Transport: s.transport,
		AccountID: s.account.AccountID,
		Username:  s.account.Username,
		Resource:  resource.Text(),
		JID:       s.account.AccountID + "@" + s.deps.Domain + "/" + resource.Text(),
	}
	client.SetPresence(state.LastPresence{Away: false, Status: "{}"})

	// Single atomic check-and-insert; a concurrent bind for the same
	// account loses here and the existing session stays untouched.
	if err := s.deps.Manager.Register(client); err != nil {
		s.close("Account already connected")
		return
	}

	s.client = client
	s.state = stateBound
	s.transport.Send(stanza.BindResult(client.JID))
}

func (s *Session) onPresence(node *stanza.Node) {
	if s.state != stateSessionActive {
		s.close("Invalid JID")
		return
	}

	if node.Attr("type") == "unavailable" {
		to := node.Attr("to")
		if to == "" {
			return
		}
		base := strings.Split(to, "/")[0]
		if strings.HasSuffix(base, "@muc."+s.deps.Domain) &&
			strings.HasPrefix(strings.ToLower(base), "party-") {
			s.leaveRoom(strings.Split(to, "@")[0])
			return
		}
		// non-MUC unavailable still carries a status update below
	} else if node.Child("x") != nil && node.Attr("to") != "" {
		if s.joinRoom(node) {
			return
		}
	}

	status := node.Child("status")
	if status == nil || status.Text() == "" {
		return
	}
	raw := status.Text()
	// the payload must be a JSON object; arrays and scalars are ignored
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return
	}

	away := node.Child("show") != nil
	s.deps.Presence.Propagate(s.client, raw, away, false)
	s.deps.Presence.Echo(s.client)
}

// joinRoom processes a MUC join. Reports true when the presence frame is
// fully consumed (idempotent re-join).
func (s *Session) joinRoom(node *stanza.Node) bool {
	room := strings.Split(node.Attr("to"), "@")[0]

	members, alreadyMember := s.deps.Manager.JoinRoom(room, s.client)
	if alreadyMember {
		return true
	}

	self := s.occupantAddr(room, s.client)

	// self-presence confirmation; 201 marks a freshly created occupancy
	s.transport.Send(stanza.MUCUserPresence(
		self, s.client.JID, occupantNick(s.client), s.client.JID,
		"participant", "none", false, "110", "100", "170", "201"))

	// roster replay of the existing members in membership order, and the
	// join announcement to each of them
	for _, memberID := range members {
		if memberID == s.client.AccountID {
			continue
		}
		member, ok := s.deps.Manager.FindByAccountID(memberID)
		if !ok {
			continue
		}
		s.transport.Send(stanza.MUCUserPresence(
			s.occupantAddr(room, member), s.client.JID, occupantNick(member), member.JID,
			"participant", "none", false))

		member.Transport.Send(stanza.MUCUserPresence(
			self, member.JID, occupantNick(s.client), s.client.JID,
			"participant", "none", false))
	}
	return false
}

func (s *Session) leaveRoom(room string) {
	if !s.deps.Manager.LeaveRoom(room, s.client) {
		return
	}

	self := s.occupantAddr(room, s.client)
	s.transport.Send(stanza.MUCUserPresence(
		self, s.client.JID, occupantNick(s.client), s.client.JID,
		"none", "", true, "110", "100", "170"))

	s.broadcastRoomLeave(room)
}

// broadcastRoomLeave announces the client's departure to the remaining
// membership. The client must already be removed from the room.
func (s *Session) broadcastRoomLeave(room string) {
	self := s.occupantAddr(room, s.client)
	for _, memberID := range s.deps.Manager.RoomMembers(room) {
		member, ok := s.deps.Manager.FindByAccountID(memberID)
		if !ok {
			continue
		}
		member.Transport.Send(stanza.MUCUserPresence(
			self, member.JID, occupantNick(s.client), s.client.JID,
			"none", "", true))
	}
}

func (s *Session) onMessage(node *stanza.Node) {
	if s.state != stateSessionActive {
		s.close("Invalid JID")
		return
	}

	body := node.Child("body")
	if body == nil || body.Text() == "" {
		return
	}
	content := body.Text()

	switch node.Attr("type") {
	case "chat":
		to := node.Attr("to")
		if to == "" || utf8.RuneCountInString(content) >= maxBodyLen {
			return
		}
		receiver, ok := s.deps.Manager.FindByJID(to)
		if !ok || receiver.AccountID == s.client.AccountID {
			return
		}
		receiver.Transport.Send(stanza.ChatMessage(s.client.JID, receiver.JID, content))

	case "groupchat":
		to := node.Attr("to")
		if to == "" || utf8.RuneCountInString(content) >= maxBodyLen {
			return
		}
		room := strings.Split(to, "@")[0]
		members := s.deps.Manager.RoomMembers(room)
		if !slices.Contains(members, s.client.AccountID) {
			return
		}
		from := s.occupantAddr(room, s.client)
		for _, memberID := range members {
			member, ok := s.deps.Manager.FindByAccountID(memberID)
			if !ok {
				continue
			}
			member.Transport.Send(stanza.GroupChatMessage(from, member.JID, content))
		}

	default:
		// untyped messages carry a JSON envelope routed by JID
		if !gjson.Valid(content) {
			return
		}
		envelope := gjson.Parse(content)
		if !envelope.IsObject() || envelope.Get("type").Type != gjson.String {
			return
		}
		to, id := node.Attr("to"), node.Attr("id")
		if to == "" || id == "" {
			return
		}
		receiver, ok := s.deps.Manager.FindByJID(to)
		if !ok {
			return
		}
		receiver.Transport.Send(stanza.BodyMessage(s.client.JID, receiver.JID, id, content))
	}
}

// notifyPartyExit tells every other client that this account left its party,
// if the cached presence advertised party join info.
func (s *Session) notifyPartyExit(status string) {
	props := gjson.Get(status, "Properties")
	if !props.IsObject() {
		return
	}

	partyID := ""
	props.ForEach(func(key, value gjson.Result) bool {
		if strings.HasPrefix(strings.ToLower(key.String()), "party.joininfo") && value.IsObject() {
			if id := value.Get("partyId"); id.Type == gjson.String {
				partyID = id.String()
				return false
			}
		}
		return true
	})
	if partyID == "" {
		return
	}

	body, err := json.Marshal(map[string]any{
		"type": "com.epicgames.party.memberexited",
		"payload": map[string]any{
			"partyId":   partyID,
			"memberId":  s.client.AccountID,
			"wasKicked": false,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	msgID := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	for _, other := range s.deps.Manager.Clients() {
		if other.AccountID == s.client.AccountID {
			continue
		}
		other.Transport.Send(stanza.BodyMessage(s.client.JID, other.JID, msgID, string(body)))
	}
}

func (s *Session) occupantAddr(room string, c *state.Client) string {
	return room + "@muc." + s.deps.Domain + "/" + occupantNick(c)
}

func occupantNick(c *state.Client) string {
	return url.PathEscape(c.Username) + ":" + c.AccountID + ":" + c.Resource
}

func (s *Session) jid() string {
	if s.client != nil {
		return s.client.JID
	}
	return ""
}

// close marks the session closed and records the policy error. The transport
// itself is torn down by HandleFrame after the session lock is released, so
// the close callback cannot deadlock against the mutex.
func (s *Session) close(reason string) {
	s.state = stateClosed
	s.closeErr = transport.Policy(reason)
}
