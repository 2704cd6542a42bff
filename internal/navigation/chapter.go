package navigation

import (
	"math"
	"strings"
)

// ChapterDirection is a move through the spine.
type ChapterDirection int

const (
	Prev ChapterDirection = iota
	Next
)

func (d ChapterDirection) String() string {
	if d == Next {
		return "next"
	}
	return "prev"
}

// NavigateByChapter moves one spine section in dir. It does not wrap: at
// either end, or with no spine, it does nothing and returns false.
func NavigateByChapter(r Renderer, dir ChapterDirection) bool {
	if r == nil {
		return false
	}
	items := r.Spine()
	if len(items) == 0 {
		return false
	}

	current := currentIndex(r)
	delta := -1
	if dir == Next {
		delta = 1
	}
	target := min(max(current+delta, 0), len(items)-1)
	if target == current {
		return false
	}

	item := items[target]
	switch {
	case item.Href != "":
		r.Display(item.Href)
	case item.CFIBase != "":
		r.Display(item.CFIBase)
	case dir == Next:
		r.Next()
	default:
		r.Prev()
	}
	return true
}

// SpineProgress approximates reading progress as the share of spine sections
// reached, counting the current one. It is section based, not a character
// position. ok is false when the spine is empty or unavailable.
func SpineProgress(r Renderer) (progress int, ok bool) {
	if r == nil {
		return 0, false
	}
	items := r.Spine()
	if len(items) == 0 {
		return 0, false
	}

	idx := min(max(currentIndex(r), 0), len(items)-1)
	pct := math.Round(float64(idx+1) / float64(len(items)) * 100)
	return min(int(pct), 100), true
}

// ChapterLabel returns the label of the first TOC entry whose href contains
// the location or is contained in it. Nested entries are searched after
// their parent.
func ChapterLabel(toc []TOCItem, location string) (string, bool) {
	if location == "" {
		return "", false
	}
	for _, item := range toc {
		if item.Href != "" && (strings.Contains(location, item.Href) || strings.Contains(item.Href, location)) {
			return item.Label, true
		}
		if label, ok := ChapterLabel(item.Subitems, location); ok {
			return label, true
		}
	}
	return "", false
}
