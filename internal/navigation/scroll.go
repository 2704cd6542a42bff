package navigation

import (
	"math"
	"regexp"
)

const (
	// StepRatio is the share of the visible height moved per scroll step.
	StepRatio = 0.8
	// MinStep is the smallest scroll step in layout units.
	MinStep = 120
)

var scrollableOverflow = regexp.MustCompile(`(auto|scroll|overlay)`)

// ScrollDirection is a vertical scroll direction.
type ScrollDirection int

const (
	Up ScrollDirection = iota
	Down
)

func (d ScrollDirection) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// ScrollByDirection scrolls the first element that can move in dir, looking
// through the renderer's content windows before the host container. It
// reports whether anything scrolled. Either argument may be nil.
func ScrollByDirection(r Renderer, host Element, dir ScrollDirection) bool {
	if r != nil {
		for _, win := range prioritize(r.Contents(), currentIndex(r)) {
			if win.Document == nil {
				continue
			}
			if el := findInDocument(win.Document, dir); el != nil && scrollStep(el, dir) {
				return true
			}
		}
	}

	if host != nil {
		if el := findScrollable(host, dir); el != nil && scrollStep(el, dir) {
			return true
		}
	}

	return false
}

// prioritize orders windows: focused first, then the ones showing the current
// section, then everything else in natural order. Each window appears once.
func prioritize(windows []ContentWindow, current int) []ContentWindow {
	ordered := make([]ContentWindow, 0, len(windows))
	seen := make([]bool, len(windows))
	push := func(i int) {
		if !seen[i] {
			seen[i] = true
			ordered = append(ordered, windows[i])
		}
	}

	for i, win := range windows {
		if win.Focused {
			push(i)
			break
		}
	}
	for i, win := range windows {
		if win.SectionIndex >= 0 && win.SectionIndex == current {
			push(i)
		}
	}
	for i := range windows {
		push(i)
	}
	return ordered
}

// findInDocument checks the scrolling root and the body directly, then
// searches the body's subtree, then falls back to the document element.
func findInDocument(doc Document, dir ScrollDirection) Element {
	if el := doc.ScrollingElement(); el != nil && canScroll(el, dir) {
		return el
	}

	if body := doc.Body(); body != nil {
		if canScroll(body, dir) {
			return body
		}
		if el := findScrollable(body, dir); el != nil {
			return el
		}
	}

	if el := doc.DocumentElement(); el != nil && canScroll(el, dir) {
		return el
	}
	return nil
}

// findScrollable is a breadth-first search for an element whose style allows
// vertical scrolling and which has room to move in dir.
func findScrollable(root Element, dir ScrollDirection) Element {
	queue := []Element{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == nil {
			continue
		}

		if scrollableByStyle(current) && canScroll(current, dir) {
			return current
		}
		queue = append(queue, current.Children()...)
	}
	return nil
}

func scrollableByStyle(el Element) bool {
	return scrollableOverflow.MatchString(el.OverflowY())
}

func hasScrollableHeight(el Element) bool {
	return el.ScrollHeight() > el.ClientHeight()+1
}

func canScroll(el Element, dir ScrollDirection) bool {
	if !hasScrollableHeight(el) {
		return false
	}
	if dir == Down {
		return el.ScrollTop()+el.ClientHeight() < el.ScrollHeight()-1
	}
	return el.ScrollTop() > 0
}

// StepFor returns the scroll distance for an element of the given visible height.
func StepFor(clientHeight float64) float64 {
	return math.Max(math.Round(clientHeight*StepRatio), MinStep)
}

func scrollStep(el Element, dir ScrollDirection) bool {
	if !canScroll(el, dir) {
		return false
	}
	step := StepFor(el.ClientHeight())
	if dir == Up {
		step = -step
	}
	el.ScrollBy(step, true)
	return true
}
