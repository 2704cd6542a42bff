// Package navtest builds static DOM snapshots from HTML for navigation
// tests. Layout is not computed; it is declared on elements through
// attributes:
//
//	style="overflow-y: auto"   computed overflow (overflow shorthand works too)
//	data-scroll-height="2000"  scrollHeight
//	data-client-height="600"   clientHeight
//	data-scroll-top="0"        scrollTop
//	data-scrolling-element     marks the document's scrolling root
//
// Snapshots satisfy the navigation contracts and record every scroll applied.
package navtest

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aduong/rebook/internal/navigation"
	"golang.org/x/net/html"
)

// Scroll is one recorded ScrollBy call.
type Scroll struct {
	Delta  float64
	Smooth bool
}

// Document is a parsed HTML document.
type Document struct {
	root      *Element
	body      *Element
	scrolling *Element
	byID      map[string]*Element
	focused   bool
}

// Element is an element node in a snapshot.
type Element struct {
	tag      string
	attrs    map[string]string
	parent   *Element
	children []*Element
	text     string

	overflowY    string
	scrollHeight float64
	clientHeight float64
	scrollTop    float64
	scrolls      []Scroll
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	node, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := &Document{byID: make(map[string]*Element)}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			doc.root = doc.build(c, nil)
			break
		}
	}
	if doc.root == nil {
		return nil, fmt.Errorf("parse html: no document element")
	}
	return doc, nil
}

// MustParse parses an HTML string and panics on failure.
func MustParse(src string) *Document {
	doc, err := Parse(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return doc
}

func (d *Document) build(n *html.Node, parent *Element) *Element {
	el := &Element{
		tag:    strings.ToLower(n.Data),
		attrs:  make(map[string]string, len(n.Attr)),
		parent: parent,
	}
	for _, a := range n.Attr {
		el.attrs[strings.ToLower(a.Key)] = a.Val
	}
	el.applyLayout()

	if id := el.attrs["id"]; id != "" {
		if _, dup := d.byID[id]; !dup {
			d.byID[id] = el
		}
	}
	if _, ok := el.attrs["data-scrolling-element"]; ok && d.scrolling == nil {
		d.scrolling = el
	}
	if el.tag == "body" && d.body == nil {
		d.body = el
	}

	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			el.children = append(el.children, d.build(c, el))
		case html.TextNode:
			text.WriteString(c.Data)
		}
	}
	el.text = strings.TrimSpace(text.String())
	return el
}

func (e *Element) applyLayout() {
	e.overflowY = overflowY(e.attrs["style"])
	e.scrollHeight = floatAttr(e.attrs, "data-scroll-height")
	e.clientHeight = floatAttr(e.attrs, "data-client-height")
	e.scrollTop = floatAttr(e.attrs, "data-scroll-top")
}

// overflowY extracts the vertical overflow from an inline style. An explicit
// overflow-y wins over the overflow shorthand, whose second value is the
// vertical one.
func overflowY(style string) string {
	var shorthand, explicit string
	for _, decl := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.ToLower(strings.TrimSpace(value))
		switch name {
		case "overflow-y":
			explicit = value
		case "overflow":
			fields := strings.Fields(value)
			if len(fields) > 0 {
				shorthand = fields[len(fields)-1]
			}
		}
	}
	switch {
	case explicit != "":
		return explicit
	case shorthand != "":
		return shorthand
	}
	return "visible"
}

func floatAttr(attrs map[string]string, name string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(attrs[name]), 64)
	if err != nil {
		return 0
	}
	return v
}

// Focus sets whether the document holds input focus.
func (d *Document) Focus(focused bool) { d.focused = focused }

// Focused reports whether the document holds input focus.
func (d *Document) Focused() bool { return d.focused }

// Window wraps the document as a content window for the given section.
func (d *Document) Window(section int) navigation.ContentWindow {
	return navigation.ContentWindow{Document: d, SectionIndex: section, Focused: d.focused}
}

// ElementByID returns the first element with the given id, or nil.
func (d *Document) ElementByID(id string) *Element { return d.byID[id] }

// Root returns the document element.
func (d *Document) Root() *Element { return d.root }

// ScrollingElement returns the element marked data-scrolling-element.
func (d *Document) ScrollingElement() navigation.Element { return asElement(d.scrolling) }

// Body returns the body element.
func (d *Document) Body() navigation.Element { return asElement(d.body) }

// DocumentElement returns the root element.
func (d *Document) DocumentElement() navigation.Element { return asElement(d.root) }

func asElement(e *Element) navigation.Element {
	if e == nil {
		return nil
	}
	return e
}

// Children returns the element children.
func (e *Element) Children() []navigation.Element {
	out := make([]navigation.Element, len(e.children))
	for i, c := range e.children {
		out[i] = c
	}
	return out
}

func (e *Element) OverflowY() string { return e.overflowY }
func (e *Element) ScrollHeight() float64 { return e.scrollHeight }
func (e *Element) ClientHeight() float64 { return e.clientHeight }
func (e *Element) ScrollTop() float64 { return e.scrollTop }
func (e *Element) Scrolls() []Scroll { return e.scrolls }
func (e *Element) Text() string { return e.text }
func (e *Element) TagName() string { return e.tag }
func (e *Element) Parent() *Element { return e.parent }

// ScrollBy moves scrollTop by delta, clamped to the scrollable range.
func (e *Element) ScrollBy(delta float64, smooth bool) {
	e.scrolls = append(e.scrolls, Scroll{Delta: delta, Smooth: smooth})
	limit := max(e.scrollHeight-e.clientHeight, 0)
	e.scrollTop = min(max(e.scrollTop+delta, 0), limit)
}

// Attr returns an attribute value.
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.attrs[strings.ToLower(name)]
	return v, ok
}

// ParentNode returns the parent element as a node.
func (e *Element) ParentNode() navigation.Node {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

// IsContentEditable resolves the inherited contenteditable state.
func (e *Element) IsContentEditable() bool {
	for n := e; n != nil; n = n.parent {
		v, ok := n.attrs["contenteditable"]
		if !ok {
			continue
		}
		switch strings.ToLower(v) {
		case "", "true", "plaintext-only":
			return true
		case "false":
			return false
		}
	}
	return false
}

// TextNode returns a text node child of e, for use as an event target.
func (e *Element) TextNode() navigation.Node {
	return textNode{parent: e}
}

type textNode struct {
	parent *Element
}

func (textNode) TagName() string { return "" }
func (textNode) Attr(string) (string, bool) { return "", false }
func (textNode) IsContentEditable() bool { return false }
func (t textNode) ParentNode() navigation.Node { return t.parent }
