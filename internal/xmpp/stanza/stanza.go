// Package stanza decodes inbound XMPP frames into a generic node tree and
// builds the relay's outbound stanzas.
package stanza

import (
	"encoding/xml"
	"errors"
	"strings"
)

var ErrMalformed = errors.New("malformed stanza")

// Node is one decoded XML element. Namespace prefixes are not resolved;
// handlers match on local names only.
type Node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Chardata string     `xml:",chardata"`
	Children []Node     `xml:",any"`
}

// Parse decodes a single stanza.
func Parse(data []byte) (*Node, error) {
	var n Node
	if err := xml.Unmarshal(data, &n); err != nil {
		return nil, ErrMalformed
	}
	if n.XMLName.Local == "" {
		return nil, ErrMalformed
	}
	return &n, nil
}

// Name returns the element's local name.
func (n *Node) Name() string {
	return n.XMLName.Local
}

// Attr returns the value of the named attribute, or "".
func (n *Node) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// Child returns the first direct child with the given local name.
func (n *Node) Child(name string) *Node {
	for i := range n.Children {
		if n.Children[i].XMLName.Local == name {
			return &n.Children[i]
		}
	}
	return nil
}

// Text returns the element's character data with surrounding space trimmed.
func (n *Node) Text() string {
	return strings.TrimSpace(n.Chardata)
}
