package navtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayoutAttributes(t *testing.T) {
	doc := MustParse(`<html data-scrolling-element data-scroll-height="900" data-client-height="900">
<body>
  <div id="pane" style="color: red; overflow-y: auto" data-scroll-height="2000" data-client-height="500" data-scroll-top="100">
    <p id="para">Call me Ishmael.</p>
  </div>
  <section id="short" style="overflow: hidden scroll"></section>
  <aside id="both" style="overflow: scroll; overflow-y: hidden"></aside>
</body></html>`)

	pane := doc.ElementByID("pane")
	require.NotNil(t, pane)
	assert.Equal(t, "div", pane.TagName())
	assert.Equal(t, "auto", pane.OverflowY())
	assert.Equal(t, 2000.0, pane.ScrollHeight())
	assert.Equal(t, 500.0, pane.ClientHeight())
	assert.Equal(t, 100.0, pane.ScrollTop())

	assert.Equal(t, "scroll", doc.ElementByID("short").OverflowY())
	assert.Equal(t, "hidden", doc.ElementByID("both").OverflowY())
	assert.Equal(t, "visible", doc.ElementByID("para").OverflowY())
	assert.Equal(t, "Call me Ishmael.", doc.ElementByID("para").Text())

	assert.Same(t, doc.Root(), doc.ScrollingElement())
	require.NotNil(t, doc.Body())
	assert.Len(t, doc.Body().Children(), 3)
}

func TestDocumentWithoutScrollingElement(t *testing.T) {
	doc := MustParse(`<p>text</p>`)
	assert.Nil(t, doc.ScrollingElement())
	assert.NotNil(t, doc.Body())
	assert.NotNil(t, doc.DocumentElement())
}

func TestScrollByClampsAndRecords(t *testing.T) {
	doc := MustParse(`<div id="pane" style="overflow-y:scroll" data-scroll-height="1000" data-client-height="400" data-scroll-top="500"></div>`)
	pane := doc.ElementByID("pane")

	pane.ScrollBy(320, true)
	assert.Equal(t, 600.0, pane.ScrollTop())

	pane.ScrollBy(-2000, false)
	assert.Equal(t, 0.0, pane.ScrollTop())

	assert.Equal(t, []Scroll{{Delta: 320, Smooth: true}, {Delta: -2000, Smooth: false}}, pane.Scrolls())
}

func TestContentEditableInheritance(t *testing.T) {
	doc := MustParse(`<div id="outer" contenteditable>
  <span id="inner"></span>
  <span id="off" contenteditable="false"><b id="deep"></b></span>
</div><p id="plain"></p>`)

	assert.True(t, doc.ElementByID("outer").IsContentEditable())
	assert.True(t, doc.ElementByID("inner").IsContentEditable())
	assert.False(t, doc.ElementByID("off").IsContentEditable())
	assert.False(t, doc.ElementByID("deep").IsContentEditable())
	assert.False(t, doc.ElementByID("plain").IsContentEditable())
}

func TestTextNodeParent(t *testing.T) {
	doc := MustParse(`<p id="para">hello</p>`)
	para := doc.ElementByID("para")

	node := para.TextNode()
	assert.Empty(t, node.TagName())
	assert.Same(t, para, node.ParentNode())
}

func TestWindow(t *testing.T) {
	doc := MustParse(`<p></p>`)
	doc.Focus(true)

	win := doc.Window(3)
	assert.Equal(t, 3, win.SectionIndex)
	assert.True(t, win.Focused)
	assert.Same(t, doc, win.Document)
}
