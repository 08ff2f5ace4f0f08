package stanza

import (
	"encoding/xml"
	"strings"
)

// Element builds outbound XML fragments. The zero-dependency chaining style
// keeps stanza construction close to how the wire format reads.
type Element struct {
	name     string
	attrs    []xml.Attr
	text     string
	children []*Element
}

func New(name string) *Element {
	return &Element{name: name}
}

func (e *Element) Attr(name, value string) *Element {
	e.attrs = append(e.attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
	return e
}

func (e *Element) Text(s string) *Element {
	e.text = s
	return e
}

func (e *Element) Child(children ...*Element) *Element {
	e.children = append(e.children, children...)
	return e
}

func (e *Element) String() string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

func (e *Element) Bytes() []byte {
	return []byte(e.String())
}

func (e *Element) write(b *strings.Builder) {
	b.WriteByte('<')
	b.WriteString(e.name)
	for _, a := range e.attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name.Local)
		b.WriteString(`="`)
		xml.EscapeText(b, []byte(a.Value))
		b.WriteByte('"')
	}
	if e.text == "" && len(e.children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	if e.text != "" {
		xml.EscapeText(b, []byte(e.text))
	}
	for _, c := range e.children {
		c.write(b)
	}
	b.WriteString("</")
	b.WriteString(e.name)
	b.WriteByte('>')
}
