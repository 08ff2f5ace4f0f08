package stanza_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberfn/uplink/internal/xmpp/stanza"
)

func TestParse(t *testing.T) {
	node, err := stanza.Parse([]byte(`<message type="chat" to="b@example.com"><body>hello</body></message>`))
	require.NoError(t, err)
	require.Equal(t, "message", node.Name())
	require.Equal(t, "chat", node.Attr("type"))
	require.Equal(t, "b@example.com", node.Attr("to"))
	require.Equal(t, "", node.Attr("missing"))

	body := node.Child("body")
	require.NotNil(t, body)
	require.Equal(t, "hello", body.Text())
	require.Nil(t, node.Child("status"))
}

func TestParseRejectsMalformedInput(t *testing.T) {
	for _, input := range []string{"", "not xml", "<unclosed", "<a><b></a>"} {
		_, err := stanza.Parse([]byte(input))
		require.ErrorIs(t, err, stanza.ErrMalformed, "input %q", input)
	}
}

func TestParseDecodesEntities(t *testing.T) {
	node, err := stanza.Parse([]byte(`<message><body>{&quot;type&quot;:&quot;x&quot;}</body></message>`))
	require.NoError(t, err)
	require.Equal(t, `{"type":"x"}`, node.Child("body").Text())
}

func TestElementEscaping(t *testing.T) {
	out := stanza.New("presence").
		Attr("from", `a"b<c`).
		Child(stanza.New("status").Text(`{"k":"<v>&"}`)).
		String()

	// escaped output must decode back to the original values
	node, err := stanza.Parse([]byte(out))
	require.NoError(t, err)
	require.Equal(t, `a"b<c`, node.Attr("from"))
	require.Equal(t, `{"k":"<v>&"}`, node.Child("status").Text())
}

func TestElementSelfCloses(t *testing.T) {
	require.Equal(t, `<show/>`, stanza.New("show").String())
	require.Equal(t, `<iq id="1" type="result"/>`, stanza.New("iq").Attr("id", "1").Attr("type", "result").String())
}

func TestPresenceShape(t *testing.T) {
	node, err := stanza.Parse(stanza.Presence("a@d/r", "b@d/r", `{"s":1}`, true, false))
	require.NoError(t, err)
	require.Equal(t, "presence", node.Name())
	require.Equal(t, "available", node.Attr("type"))
	require.Equal(t, "away", node.Child("show").Text())
	require.Equal(t, `{"s":1}`, node.Child("status").Text())

	offline, err := stanza.Parse(stanza.Presence("a@d/r", "b@d/r", "{}", false, true))
	require.NoError(t, err)
	require.Equal(t, "unavailable", offline.Attr("type"))
	require.Nil(t, offline.Child("show"))
}

func TestMUCUserPresenceShape(t *testing.T) {
	node, err := stanza.Parse(stanza.MUCUserPresence(
		"party-r1@muc.d/nick", "a@d/r", "nick", "a@d/r",
		"participant", "none", false, "110", "201"))
	require.NoError(t, err)

	x := node.Child("x")
	require.NotNil(t, x)
	item := x.Child("item")
	require.Equal(t, "nick", item.Attr("nick"))
	require.Equal(t, "a@d/r", item.Attr("jid"))
	require.Equal(t, "participant", item.Attr("role"))
	require.Equal(t, "none", item.Attr("affiliation"))

	var codes []string
	for _, child := range x.Children {
		if child.XMLName.Local == "status" {
			codes = append(codes, child.Attr("code"))
		}
	}
	require.Equal(t, []string{"110", "201"}, codes)

	leave, err := stanza.Parse(stanza.MUCUserPresence(
		"party-r1@muc.d/nick", "a@d/r", "nick", "a@d/r",
		"none", "", true))
	require.NoError(t, err)
	require.Equal(t, "unavailable", leave.Attr("type"))
	require.Equal(t, "", leave.Child("x").Child("item").Attr("affiliation"))
}
