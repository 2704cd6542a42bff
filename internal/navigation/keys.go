package navigation

import "strings"

// Arrow key names after normalisation.
const (
	KeyArrowUp    = "ArrowUp"
	KeyArrowDown  = "ArrowDown"
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
)

// KeyEvent is a keydown event routed to the reader.
type KeyEvent struct {
	Key    string
	Alt    bool
	Ctrl   bool
	Meta   bool
	Target Node

	DefaultPrevented   bool
	PropagationStopped bool
}

// PreventDefault stops the renderer's own paging for this event.
func (e *KeyEvent) PreventDefault() { e.DefaultPrevented = true }

// StopPropagation keeps the event from reaching other listeners.
func (e *KeyEvent) StopPropagation() { e.PropagationStopped = true }

// NormalizeArrowKey maps legacy arrow key names to their modern form.
func NormalizeArrowKey(key string) string {
	switch key {
	case "Up":
		return KeyArrowUp
	case "Down":
		return KeyArrowDown
	case "Left":
		return KeyArrowLeft
	case "Right":
		return KeyArrowRight
	}
	return key
}

var interactiveTags = map[string]bool{
	"input":    true,
	"textarea": true,
	"select":   true,
}

// IsInteractiveTarget reports whether a key event aimed at target belongs to a
// form control, an editable region or a slider, including their descendants.
func IsInteractiveTarget(target Node) bool {
	el := target
	if el != nil && el.TagName() == "" {
		el = el.ParentNode()
	}
	if el == nil {
		return false
	}
	if el.IsContentEditable() {
		return true
	}

	for n := el; n != nil; n = n.ParentNode() {
		if interactiveTags[strings.ToLower(n.TagName())] {
			return true
		}
		if v, ok := n.Attr("contenteditable"); ok && strings.EqualFold(v, "true") {
			return true
		}
		if v, ok := n.Attr("role"); ok && v == "slider" {
			return true
		}
	}
	return false
}

// Dispatcher routes arrow keys: up and down scroll, left and right change
// chapter.
type Dispatcher struct {
	Renderer Renderer
	Host     Element
}

// HandleKey reports whether the event was consumed. A consumed event is
// marked default-prevented and propagation-stopped.
func (d *Dispatcher) HandleKey(e *KeyEvent) bool {
	if e == nil || e.DefaultPrevented {
		return false
	}
	if e.Alt || e.Ctrl || e.Meta {
		return false
	}

	key := NormalizeArrowKey(e.Key)
	switch key {
	case KeyArrowUp, KeyArrowDown, KeyArrowLeft, KeyArrowRight:
	default:
		return false
	}
	if IsInteractiveTarget(e.Target) {
		return false
	}

	var handled bool
	switch key {
	case KeyArrowUp:
		handled = ScrollByDirection(d.Renderer, d.Host, Up)
	case KeyArrowDown:
		handled = ScrollByDirection(d.Renderer, d.Host, Down)
	case KeyArrowLeft:
		handled = NavigateByChapter(d.Renderer, Prev)
	case KeyArrowRight:
		handled = NavigateByChapter(d.Renderer, Next)
	}

	if handled {
		e.PreventDefault()
		e.StopPropagation()
	}
	return handled
}
