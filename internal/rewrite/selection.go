package rewrite

import (
	"errors"
	"fmt"
	"unicode"
)

// MinSelection is the shortest trimmed span that can be rewritten.
const MinSelection = 2

// ErrInvalidRange is returned by Splice for offsets outside the text.
var ErrInvalidRange = errors.New("rewrite: invalid range")

// Point is a screen coordinate used to place the rewrite affordance.
type Point struct {
	X int
	Y int
}

// Viewport is the visible editor area.
type Viewport struct {
	Width  int
	Height int
}

// Center is the fallback anchor when there is no pointer position.
func (v Viewport) Center() Point {
	return Point{X: v.Width / 2, Y: v.Height / 2}
}

// Selection is a captured span of the editable text. Start and End are rune
// offsets, and Text always equals the runes between them.
type Selection struct {
	Start    int
	End      int
	Text     string
	Anchor   Point
	Visible  bool
	Revision int
}

// Len is the selection length in runes.
func (s Selection) Len() int { return s.End - s.Start }

// Capture builds a selection over text. Surrounding whitespace is trimmed
// and the offsets narrowed to match. The anchor comes from pointer when set,
// else from prev when it was visible, else from the viewport centre.
func Capture(text string, start, end int, pointer *Point, prev Selection, viewport Viewport) Selection {
	runes := []rune(text)
	start, end = clamp(start, len(runes)), clamp(end, len(runes))
	if start > end {
		start, end = end, start
	}
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	sel := Selection{Start: start, End: end, Text: string(runes[start:end])}
	if sel.Len() < MinSelection {
		return sel
	}
	sel.Visible = true
	switch {
	case pointer != nil:
		sel.Anchor = *pointer
	case prev.Visible:
		sel.Anchor = prev.Anchor
	default:
		sel.Anchor = viewport.Center()
	}
	return sel
}

// Splice replaces the runes in [start, end) with replacement.
func Splice(text string, start, end int, replacement string) (string, error) {
	runes := []rune(text)
	if start < 0 || end < start || end > len(runes) {
		return text, fmt.Errorf("%w: [%d,%d) over %d runes", ErrInvalidRange, start, end, len(runes))
	}
	out := make([]rune, 0, len(runes)-(end-start)+len([]rune(replacement)))
	out = append(out, runes[:start]...)
	out = append(out, []rune(replacement)...)
	out = append(out, runes[end:]...)
	return string(out), nil
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}
