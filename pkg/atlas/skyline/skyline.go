// Package skyline places rectangles into a square bin by tracking the bin's
// upper contour as an ordered run of horizontal spans.
//
// A [Skyline] is the contour itself: spans sorted by X whose widths always sum
// to the bin side, with no two neighbours at the same height once an update
// completes. [Pack] drives a skyline through a full placement run, scoring
// every candidate position with a weighted waste heuristic.
package skyline

import (
	"errors"
	"fmt"
	"slices"
)

// ErrCorrupt is returned when an update would break the skyline's shape,
// such as a cut position that is not on a span boundary.
var ErrCorrupt = errors.New("skyline corrupt")

// Span is one flat segment of the contour.
type Span struct {
	X      int `json:"x"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// End returns the first column past the span.
func (s Span) End() int { return s.X + s.Width }

// Side selects which end of a span a rectangle is anchored to.
type Side int

const (
	// Left anchors the rectangle at the span's left end; it extends right.
	Left Side = iota
	// Right anchors the rectangle at the span's right end; it extends left.
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// step is the index delta pointing away from the anchor, into the rectangle.
func (s Side) step() int {
	if s == Right {
		return -1
	}
	return 1
}

// Anchor is a candidate position: one end of one span.
type Anchor struct {
	Span int
	Side Side
}

// Skyline is the contour of a square bin.
type Skyline struct {
	size  int
	spans []Span
}

// New returns an empty skyline for a bin of the given side.
func New(size int) *Skyline {
	s := &Skyline{size: size, spans: make([]Span, 0, 16)}
	s.Reset()
	return s
}

// Reset clears the skyline to a single span at height zero.
func (s *Skyline) Reset() {
	s.spans = append(s.spans[:0], Span{X: 0, Width: s.size, Height: 0})
}

// Size returns the bin side.
func (s *Skyline) Size() int { return s.size }

// Len returns the number of spans.
func (s *Skyline) Len() int { return len(s.spans) }

// Span returns the i-th span.
func (s *Skyline) Span(i int) Span { return s.spans[i] }

// Spans returns a copy of the spans in order.
func (s *Skyline) Spans() []Span { return slices.Clone(s.spans) }

// height returns the height of span i, treating positions outside the bin
// as walls at the bin top.
func (s *Skyline) height(i int) int {
	if i < 0 || i >= len(s.spans) {
		return s.size
	}
	return s.spans[i].Height
}

// MinSpan returns the index of the lowest span. Ties go to the leftmost.
func (s *Skyline) MinSpan() int {
	best := 0
	for i := 1; i < len(s.spans); i++ {
		if s.spans[i].Height < s.spans[best].Height {
			best = i
		}
	}
	return best
}

// X returns the left column of a rectangle of width w placed at a.
func (s *Skyline) X(a Anchor, w int) int {
	sp := s.spans[a.Span]
	if a.Side == Right {
		return sp.End() - w
	}
	return sp.X
}

// behind returns the index of the span on the far side of the anchor, away
// from the rectangle.
func (a Anchor) behind() int { return a.Span - a.Side.step() }

// ahead returns the index of the next span from the anchor into the
// rectangle.
func (a Anchor) ahead() int { return a.Span + a.Side.step() }

// Supported reports whether a is a usable candidate: the span behind the
// anchor, or the bin wall, must not be lower than the anchored span.
func (s *Skyline) Supported(a Anchor) bool {
	return s.height(a.behind()) >= s.spans[a.Span].Height
}

// Fit tests a w×h rectangle at a against the ceiling top. It returns the
// total gap area under the rectangle and the index of the farthest span it
// covers. ok is false when the rectangle leaves the bin, crosses top, or
// would cut into a span higher than its base.
func (s *Skyline) Fit(a Anchor, w, h, top int) (overhang, far int, ok bool) {
	base := s.spans[a.Span].Height
	if base+h > top {
		return 0, 0, false
	}
	x0 := s.X(a, w)
	x1 := x0 + w
	if x0 < 0 || x1 > s.size {
		return 0, 0, false
	}
	step := a.Side.step()
	far = a.Span
	for i := a.Span; i >= 0 && i < len(s.spans); i += step {
		sp := s.spans[i]
		if sp.End() <= x0 || sp.X >= x1 {
			break
		}
		if sp.Height > base {
			return 0, 0, false
		}
		covered := min(sp.End(), x1) - max(sp.X, x0)
		overhang += (base - sp.Height) * covered
		far = i
	}
	return overhang, far, true
}

// Insert raises the columns [x, x+w) by h on top of the highest span they
// cover. Either x or x+w must fall on a span boundary.
func (s *Skyline) Insert(x, w, h int) error {
	if w <= 0 || h < 0 || x < 0 || x+w > s.size {
		return fmt.Errorf("%w: insert %dx%d at %d outside bin %d", ErrCorrupt, w, h, x, s.size)
	}
	first, last, base := -1, -1, 0
	aligned := false
	for i, sp := range s.spans {
		if sp.End() <= x || sp.X >= x+w {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
		base = max(base, sp.Height)
		if sp.X == x || sp.End() == x+w {
			aligned = true
		}
	}
	if first < 0 || !aligned {
		return fmt.Errorf("%w: no span boundary at %d or %d", ErrCorrupt, x, x+w)
	}
	top := base + h
	if top > s.size {
		return fmt.Errorf("%w: insert reaches %d above bin %d", ErrCorrupt, top, s.size)
	}

	repl := make([]Span, 0, 3)
	if head := s.spans[first]; head.X < x {
		repl = append(repl, Span{X: head.X, Width: x - head.X, Height: head.Height})
	}
	repl = append(repl, Span{X: x, Width: w, Height: top})
	if tail := s.spans[last]; tail.End() > x+w {
		repl = append(repl, Span{X: x + w, Width: tail.End() - x - w, Height: tail.Height})
	}
	s.spans = slices.Replace(s.spans, first, last+1, repl...)
	s.merge()
	return nil
}

// Fill raises span i to its lower neighbour so that a gap no rectangle fits
// into stops being the minimum. A lone span is raised to the bin top.
func (s *Skyline) Fill(i int) error {
	if i < 0 || i >= len(s.spans) {
		return fmt.Errorf("%w: fill span %d of %d", ErrCorrupt, i, len(s.spans))
	}
	if len(s.spans) == 1 {
		s.spans[0].Height = s.size
		return nil
	}
	s.spans[i].Height = min(s.height(i-1), s.height(i+1))
	s.merge()
	return nil
}

// merge joins neighbouring spans of equal height.
func (s *Skyline) merge() {
	for i := 0; i < len(s.spans)-1; {
		if s.spans[i].Height == s.spans[i+1].Height {
			s.spans[i].Width += s.spans[i+1].Width
			s.spans = slices.Delete(s.spans, i+1, i+2)
			continue
		}
		i++
	}
}

// Validate checks the contour for gaps, overlaps, out-of-bin heights and
// unmerged neighbours.
func (s *Skyline) Validate() error {
	x := 0
	for i, sp := range s.spans {
		if sp.X != x || sp.Width <= 0 {
			return fmt.Errorf("%w: span %d starts at %d width %d, want start %d", ErrCorrupt, i, sp.X, sp.Width, x)
		}
		if sp.Height < 0 || sp.Height > s.size {
			return fmt.Errorf("%w: span %d height %d", ErrCorrupt, i, sp.Height)
		}
		if i > 0 && s.spans[i-1].Height == sp.Height {
			return fmt.Errorf("%w: spans %d and %d share height %d", ErrCorrupt, i-1, i, sp.Height)
		}
		x = sp.End()
	}
	if x != s.size {
		return fmt.Errorf("%w: spans cover %d of %d", ErrCorrupt, x, s.size)
	}
	return nil
}
