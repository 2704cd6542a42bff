// Package navigation turns directional input into scroll and chapter moves on
// top of an external document renderer, and derives coarse reading progress
// from the renderer's spine cursor.
package navigation

// Location is the renderer's current position.
type Location struct {
	CFI   string
	Href  string
	Index int // spine index at the start of the view; negative when unknown
}

// SpineItem is one logical section in reading order.
type SpineItem struct {
	Href    string
	CFIBase string
}

// TOCItem is a table of contents entry.
type TOCItem struct {
	Label    string    `json:"label"`
	Href     string    `json:"href"`
	Subitems []TOCItem `json:"subitems,omitempty"`
}

// ContentWindow is a snapshot of one renderer-managed sub-document.
type ContentWindow struct {
	Document     Document
	SectionIndex int // negative when the renderer does not report one
	Focused      bool
}

// Renderer is the live handle of an external document renderer.
type Renderer interface {
	Location() Location
	// Spine returns nil when the spine is not available yet.
	Spine() []SpineItem
	TableOfContents() []TOCItem
	Contents() []ContentWindow
	Display(target string)
	Next()
	Prev()
}

// Document is a content window's document.
// Each accessor returns nil when the document has no such element.
type Document interface {
	ScrollingElement() Element
	Body() Element
	DocumentElement() Element
}

// Element exposes the layout state needed to find something to scroll.
type Element interface {
	Children() []Element
	// OverflowY is the computed overflow-y style value.
	OverflowY() string
	ScrollHeight() float64
	ClientHeight() float64
	ScrollTop() float64
	ScrollBy(delta float64, smooth bool)
}

// Node is an event target. Text nodes report an empty TagName.
type Node interface {
	TagName() string
	Attr(name string) (string, bool)
	IsContentEditable() bool
	ParentNode() Node
}

func currentIndex(r Renderer) int {
	if idx := r.Location().Index; idx > 0 {
		return idx
	}
	return 0
}
