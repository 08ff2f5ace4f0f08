package stanza

const (
	nsFraming   = "urn:ietf:params:xml:ns:xmpp-framing"
	nsStreams   = "http://etherx.jabber.org/streams"
	nsSASL      = "urn:ietf:params:xml:ns:xmpp-sasl"
	nsIQAuth    = "http://jabber.org/features/iq-auth"
	nsRosterVer = "urn:xmpp:features:rosterver"
	nsTLS       = "urn:ietf:params:xml:ns:xmpp-tls"
	nsCompress  = "http://jabber.org/features/compress"
	nsBind      = "urn:ietf:params:xml:ns:xmpp-bind"
	nsSession   = "urn:ietf:params:xml:ns:xmpp-session"
	nsClient    = "jabber:client"
	nsMUCUser   = "http://jabber.org/protocol/muc#user"
)

// StreamOpen echoes the client's stream open.
func StreamOpen(domain, streamID string) []byte {
	return New("open").
		Attr("xmlns", nsFraming).
		Attr("from", domain).
		Attr("id", streamID).
		Attr("version", "1.0").
		Attr("xml:lang", "en").
		Bytes()
}

// StreamFeaturesAuth advertises SASL PLAIN to an unauthenticated stream.
func StreamFeaturesAuth() []byte {
	return New("stream:features").
		Attr("xmlns:stream", nsStreams).
		Child(
			New("mechanisms").Attr("xmlns", nsSASL).
				Child(New("mechanism").Text("PLAIN")),
			New("ver").Attr("xmlns", nsRosterVer),
			New("starttls").Attr("xmlns", nsTLS),
			New("compression").Attr("xmlns", nsCompress).
				Child(New("method").Text("zlib")),
			New("auth").Attr("xmlns", nsIQAuth),
		).
		Bytes()
}

// StreamFeaturesBind advertises bind/session once authentication succeeded.
func StreamFeaturesBind() []byte {
	return New("stream:features").
		Attr("xmlns:stream", nsStreams).
		Child(
			New("ver").Attr("xmlns", nsRosterVer),
			New("starttls").Attr("xmlns", nsTLS),
			New("bind").Attr("xmlns", nsBind),
			New("compression").Attr("xmlns", nsCompress).
				Child(New("method").Text("zlib")),
			New("session").Attr("xmlns", nsSession),
		).
		Bytes()
}

func SASLSuccess() []byte {
	return New("success").Attr("xmlns", nsSASL).Bytes()
}

// BindResult confirms resource binding with the full JID.
func BindResult(jid string) []byte {
	return New("iq").
		Attr("to", jid).
		Attr("id", "_xmpp_bind1").
		Attr("xmlns", nsClient).
		Attr("type", "result").
		Child(
			New("bind").Attr("xmlns", nsBind).
				Child(New("jid").Text(jid)),
		).
		Bytes()
}

// IQResult is the empty result used for session establishment and as a
// keep-alive reply for unrecognized iq ids.
func IQResult(domain, toJID, id string) []byte {
	return New("iq").
		Attr("to", toJID).
		Attr("from", domain).
		Attr("id", id).
		Attr("xmlns", nsClient).
		Attr("type", "result").
		Bytes()
}

// Presence carries a friend's availability and opaque status payload.
func Presence(from, to, status string, away, offline bool) []byte {
	kind := "available"
	if offline {
		kind = "unavailable"
	}
	p := New("presence").
		Attr("to", to).
		Attr("xmlns", nsClient).
		Attr("from", from).
		Attr("type", kind)
	if away {
		p.Child(New("show").Text("away"))
	}
	p.Child(New("status").Text(status))
	return p.Bytes()
}

// MUCUserPresence is the muc#user presence used for room joins, roster
// replay and leaves. affiliation and codes are omitted when empty.
func MUCUserPresence(from, to, nick, itemJID, role, affiliation string, unavailable bool, codes ...string) []byte {
	p := New("presence").
		Attr("to", to).
		Attr("from", from).
		Attr("xmlns", nsClient)
	if unavailable {
		p.Attr("type", "unavailable")
	}

	item := New("item").
		Attr("nick", nick).
		Attr("jid", itemJID).
		Attr("role", role)
	if affiliation != "" {
		item.Attr("affiliation", affiliation)
	}

	x := New("x").Attr("xmlns", nsMUCUser).Child(item)
	for _, code := range codes {
		x.Child(New("status").Attr("code", code))
	}
	return p.Child(x).Bytes()
}

// ChatMessage is a direct one-to-one chat message.
func ChatMessage(from, to, body string) []byte {
	return New("message").
		Attr("to", to).
		Attr("from", from).
		Attr("xmlns", nsClient).
		Attr("type", "chat").
		Child(New("body").Text(body)).
		Bytes()
}

// GroupChatMessage fans a room message out to one member. from is the
// sender's room occupant address.
func GroupChatMessage(from, to, body string) []byte {
	return New("message").
		Attr("to", to).
		Attr("from", from).
		Attr("xmlns", nsClient).
		Attr("type", "groupchat").
		Child(New("body").Text(body)).
		Bytes()
}

// BodyMessage is an untyped message whose body is a JSON envelope.
func BodyMessage(from, to, id, body string) []byte {
	m := New("message").
		Attr("from", from)
	if id != "" {
		m.Attr("id", id)
	}
	return m.
		Attr("to", to).
		Attr("xmlns", nsClient).
		Child(New("body").Text(body)).
		Bytes()
}

// AdminMessage is a service notice delivered from the admin address.
func AdminMessage(domain, to, body string) []byte {
	return New("message").
		Attr("from", "xmpp-admin@"+domain).
		Attr("to", to).
		Attr("xmlns", nsClient).
		Child(New("body").Text(body)).
		Bytes()
}
