// Package element is a small DOM for stanzas. The classifier and the message
// parser need random access to children, which a token stream cannot give.
package element

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"mellium.im/xmlstream"
)

// Element is one decoded XML element.
type Element struct {
	Name     xml.Name
	Attr     []xml.Attr
	Children []*Element
	// Text is the concatenated character data directly inside the element.
	Text string
}

// New returns an element with the given name.
func New(local, space string, attrs ...xml.Attr) *Element {
	return &Element{
		Name: xml.Name{Local: local, Space: space},
		Attr: attrs,
	}
}

// Append adds children and returns e.
func (e *Element) Append(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// WithText sets the character data and returns e.
func (e *Element) WithText(text string) *Element {
	e.Text = text
	return e
}

// Decode reads the element that start opened from r, consuming its end
// element.
func Decode(r xml.TokenReader, start *xml.StartElement) (*Element, error) {
	el := &Element{
		Name: start.Name,
		Attr: stripNamespaceAttrs(start.Attr),
	}
	var text strings.Builder
	for {
		tok, err := r.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := Decode(r, &t)
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			el.Text = text.String()
			return el, nil
		}
	}
}

// Parse decodes the first element found in s.
func Parse(s string) (*Element, error) {
	d := xml.NewDecoder(strings.NewReader(s))
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse element: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return Decode(d, &start)
		}
	}
}

// MustParse is like Parse but panics on error. Meant for tests and constants.
func MustParse(s string) *Element {
	el, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return el
}

// Is reports whether e has the given local name and namespace.
func (e *Element) Is(local, space string) bool {
	return e != nil && e.Name.Local == local && sameSpace(e.Name.Space, space)
}

// AttrValue returns the value of the unqualified attribute local.
func (e *Element) AttrValue(local string) string {
	v, _ := e.LookupAttr(local)
	return v
}

// LookupAttr returns the unqualified attribute local and whether it exists.
func (e *Element) LookupAttr(local string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, a := range e.Attr {
		if a.Name.Local == local && a.Name.Space == "" {
			return a.Value, true
		}
	}
	return "", false
}

// Child returns the first child with the given name, or nil.
func (e *Element) Child(local, space string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.Is(local, space) {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all children with the given name.
func (e *Element) ChildrenNamed(local, space string) []*Element {
	if e == nil {
		return nil
	}
	var out []*Element
	for _, c := range e.Children {
		if c.Is(local, space) {
			out = append(out, c)
		}
	}
	return out
}

// ChildrenIn returns all children in namespace space.
func (e *Element) ChildrenIn(space string) []*Element {
	if e == nil {
		return nil
	}
	var out []*Element
	for _, c := range e.Children {
		if sameSpace(c.Name.Space, space) {
			out = append(out, c)
		}
	}
	return out
}

// ChildText returns the text of the first matching child.
func (e *Element) ChildText(local, space string) (string, bool) {
	c := e.Child(local, space)
	if c == nil {
		return "", false
	}
	return c.Text, true
}

// FirstChild returns the first child element, or nil.
func (e *Element) FirstChild() *Element {
	if e == nil || len(e.Children) == 0 {
		return nil
	}
	return e.Children[0]
}

// Start returns the start element of e.
func (e *Element) Start() xml.StartElement {
	return xml.StartElement{Name: e.Name, Attr: e.Attr}
}

// TokenReader returns a stream of e's tokens.
func (e *Element) TokenReader() xml.TokenReader {
	inner := make([]xml.TokenReader, 0, len(e.Children)+1)
	if e.Text != "" {
		inner = append(inner, xmlstream.Token(xml.CharData(e.Text)))
	}
	for _, c := range e.Children {
		inner = append(inner, c.TokenReader())
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), e.Start())
}

// WriteXML implements xmlstream.WriterTo.
func (e *Element) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, e.TokenReader())
}

// String encodes e as XML.
func (e *Element) String() string {
	var b strings.Builder
	enc := xml.NewEncoder(&b)
	if _, err := e.WriteXML(enc); err != nil {
		return fmt.Sprintf("<!-- %v -->", err)
	}
	if err := enc.Flush(); err != nil {
		return fmt.Sprintf("<!-- %v -->", err)
	}
	return b.String()
}

// isStanzaSpace reports whether space is the default stanza namespace.
// Children of a stanza decode as jabber:client, jabber:server or unqualified
// depending on where the element came from.
func isStanzaSpace(space string) bool {
	return space == "" || space == "jabber:client" || space == "jabber:server"
}

func sameSpace(a, b string) bool {
	if a == b {
		return true
	}
	return isStanzaSpace(a) && isStanzaSpace(b)
}

// stripNamespaceAttrs drops xmlns declarations. encoding/xml resolves them
// into Name.Space and would emit them twice on re-encoding.
func stripNamespaceAttrs(attrs []xml.Attr) []xml.Attr {
	out := attrs[:0:0]
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		out = append(out, a)
	}
	return out
}
