// Package stanza builds and represents the protocol stanzas exchanged with
// the server.
package stanza

import (
	"bytes"
	"encoding/xml"
	"errors"

	"mellium.im/xmlstream"
)

// Namespaces used by the builders
const (
	NSClient = "jabber:client"
	NSRoster = "jabber:iq:roster"
)

// RosterID is the request identifier used by RosterQuery.
const RosterID = "roster"

// ErrInvalidArgument is returned by builders given unusable input.
var ErrInvalidArgument = errors.New("invalid argument")

// Element is a node in a stanza tree.
//
// Builders return fresh trees; nothing is shared between two calls, so the
// caller owns the result outright.
type Element struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Children []*Element
	Text     string
}

// New creates an element with the given local name.
func New(local string) *Element {
	return &Element{Name: xml.Name{Local: local}}
}

// Attr returns the value of the attribute with the given local name.
func (e *Element) Attr(local string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// AttrValue is like Attr but returns "" for a missing attribute.
func (e *Element) AttrValue(local string) string {
	v, _ := e.Attr(local)
	return v
}

// SetAttr sets or replaces an attribute.
func (e *Element) SetAttr(local, value string) *Element {
	for i, a := range e.Attrs {
		if a.Name.Local == local {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, xml.Attr{Name: xml.Name{Local: local}, Value: value})
	return e
}

// AddChild appends a child element.
func (e *Element) AddChild(child *Element) *Element {
	e.Children = append(e.Children, child)
	return e
}

// Child returns the first child with the given local name, or nil.
func (e *Element) Child(local string) *Element {
	for _, c := range e.Children {
		if c.Name.Local == local {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every child with the given local name in document
// order.
func (e *Element) ChildrenNamed(local string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Name.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// ID returns the id attribute.
func (e *Element) ID() string { return e.AttrValue("id") }

// Type returns the type attribute.
func (e *Element) Type() string { return e.AttrValue("type") }

// TokenReader returns a stream of XML tokens for the element and its
// children.
func (e *Element) TokenReader() xml.TokenReader {
	var inner []xml.TokenReader
	if e.Text != "" {
		inner = append(inner, xmlstream.Token(xml.CharData(e.Text)))
	}
	for _, c := range e.Children {
		inner = append(inner, c.TokenReader())
	}
	start := xml.StartElement{Name: e.Name, Attr: e.Attrs}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), start)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
func (e *Element) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, e.TokenReader())
}

// MarshalXML satisfies the xml.Marshaler interface.
func (e *Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	if _, err := e.WriteXML(enc); err != nil {
		return err
	}
	return enc.Flush()
}

// UnmarshalXML satisfies the xml.Unmarshaler interface. Namespace
// declarations are folded into Name.Space and not kept as attributes.
func (e *Element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	e.Name = start.Name
	e.Attrs = e.Attrs[:0]
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		e.Attrs = append(e.Attrs, a)
	}

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child := &Element{}
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			e.Children = append(e.Children, child)
		case xml.CharData:
			e.Text += string(t)
		case xml.EndElement:
			return nil
		}
	}
}

// String returns the serialized element. Encoding errors yield "".
func (e *Element) String() string {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := e.MarshalXML(enc, xml.StartElement{}); err != nil {
		return ""
	}
	return buf.String()
}

// Parse decodes a single element from raw XML.
func Parse(raw []byte) (*Element, error) {
	el := &Element{}
	if err := xml.Unmarshal(raw, el); err != nil {
		return nil, err
	}
	return el, nil
}
