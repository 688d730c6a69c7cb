package skyline

import (
	"fmt"
	"math"

	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
)

// stepsPerRect bounds the packing loop at this many iterations per rectangle.
const stepsPerRect = 15

// Rect is a rectangle waiting to be placed.
type Rect struct {
	ID   int
	Size geom.Size
}

// Placement is an accepted position. X and Y are the bottom-left corner;
// Size is the footprint in the bin, already swapped when Rotated.
type Placement struct {
	ID      int       `json:"id"`
	Atlas   int       `json:"atlas"`
	X       int       `json:"x"`
	Y       int       `json:"y"`
	Size    geom.Size `json:"size"`
	Rotated bool      `json:"rotated"`
}

// Bounds returns the footprint as a rectangle.
func (p Placement) Bounds() geom.Rect {
	return geom.Rect{X: p.X, Y: p.Y, W: p.Size.W, H: p.Size.H}
}

// PackConfig configures one packing run.
type PackConfig struct {
	// Size is the bin side in pixels.
	Size int
	// Spread is how far above the lowest span a rectangle may reach,
	// in pixels. Rectangles taller than Spread may always reach their
	// own height.
	Spread int

	OverhangWeight          float64
	NeighborhoodWasteWeight float64
	TopWasteWeight          float64

	// Atlas is copied into every placement.
	Atlas int
}

// PackResult is the outcome of [Pack].
type PackResult struct {
	Placed  []Placement
	Failed  []Rect
	Skyline []Span
	Steps   int
}

// candidate is the best placement found in one step.
type candidate struct {
	index   int
	anchor  Anchor
	size    geom.Size
	rotated bool
	key     int64
}

// Pack places rects into a single bin. Rectangles that cannot be placed are
// returned in Failed in input order; that is not an error. An error means
// the skyline broke and the run must be discarded.
func Pack(rects []Rect, cfg PackConfig) (*PackResult, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("pack: invalid bin size %d", cfg.Size)
	}
	s := New(cfg.Size)
	placed := make([]bool, len(rects))
	left := len(rects)
	res := &PackResult{Placed: make([]Placement, 0, len(rects))}

	limit := len(rects) * stepsPerRect
	for ; res.Steps < limit && left > 0; res.Steps++ {
		low := s.MinSpan()
		minY := s.spans[low].Height
		if minY >= cfg.Size {
			break
		}
		best := s.best(rects, placed, minY, cfg)
		if best.index < 0 {
			if err := s.Fill(low); err != nil {
				return nil, err
			}
			continue
		}
		x := s.X(best.anchor, best.size.W)
		y := s.spans[best.anchor.Span].Height
		if err := s.Insert(x, best.size.W, best.size.H); err != nil {
			return nil, err
		}
		placed[best.index] = true
		left--
		res.Placed = append(res.Placed, Placement{
			ID:      rects[best.index].ID,
			Atlas:   cfg.Atlas,
			X:       x,
			Y:       y,
			Size:    best.size,
			Rotated: best.rotated,
		})
	}

	for i, r := range rects {
		if !placed[i] {
			res.Failed = append(res.Failed, r)
		}
	}
	res.Skyline = s.Spans()
	return res, nil
}

// best scores every unplaced rectangle in both orientations at every
// supported anchor and returns the strictly lowest key. index is -1 when
// nothing fits.
func (s *Skyline) best(rects []Rect, placed []bool, minY int, cfg PackConfig) candidate {
	best := candidate{index: -1, key: math.MaxInt64}
	for i, r := range rects {
		if placed[i] {
			continue
		}
		for _, rotated := range [2]bool{false, true} {
			size := r.Size
			if rotated {
				size = size.Swap()
			}
			for span := range s.spans {
				for _, side := range [2]Side{Left, Right} {
					a := Anchor{Span: span, Side: side}
					if !s.Supported(a) {
						continue
					}
					key, ok := s.Score(a, size.W, size.H, minY, cfg)
					if ok && key < best.key {
						best = candidate{index: i, anchor: a, size: size, rotated: rotated, key: key}
					}
				}
			}
		}
	}
	return best
}

// Score returns the badness key of a w×h rectangle at a, lower is better.
// The key is the weighted waste truncated to an integer, times five, plus
// four minus the number of matching edges, so fewer waste pixels always
// win and edge matches only break ties.
func (s *Skyline) Score(a Anchor, w, h, minY int, cfg PackConfig) (int64, bool) {
	top := ceiling(minY, h, cfg.Spread, s.size)
	overhang, far, ok := s.Fit(a, w, h, top)
	if !ok {
		return 0, false
	}
	rectTop := s.spans[a.Span].Height + h
	badness := float64(overhang)*cfg.OverhangWeight +
		float64(s.neighborhoodWaste(a, w, far, rectTop))*cfg.NeighborhoodWasteWeight +
		float64((s.size-rectTop)*w)*cfg.TopWasteWeight
	return int64(badness)*5 + int64(4-s.matchingEdges(a, w, h)), true
}

// ceiling is the highest row a rectangle of height h may reach while the
// lowest span sits at minY.
func ceiling(minY, h, spread, size int) int {
	return min(minY+max(spread, h), size)
}

// neighborhoodWaste measures the flat area left beside the rectangle up to
// its top: the uncovered rest of the far span, then every run of spans on
// either side that stays at or below the top.
func (s *Skyline) neighborhoodWaste(a Anchor, w, far, top int) int {
	x0 := s.X(a, w)
	fs := s.spans[far]
	leftover := fs.End() - (x0 + w)
	if a.Side == Right {
		leftover = x0 - fs.X
	}
	waste := (top - fs.Height) * leftover
	step := a.Side.step()
	waste += s.flatRun(far+step, step, top)
	waste += s.flatRun(a.behind(), -step, top)
	return waste
}

func (s *Skyline) flatRun(from, step, top int) int {
	waste := 0
	for i := from; i >= 0 && i < len(s.spans); i += step {
		sp := s.spans[i]
		if sp.Height > top {
			break
		}
		waste += (top - sp.Height) * sp.Width
	}
	return waste
}

// matchingEdges counts how snugly a w×h rectangle sits at a: span width
// equal to w, a wall of exactly h behind it, a wall of exactly h beside the
// anchored span ahead of it, and both bin walls with the rectangle closing
// the gap to the top.
func (s *Skyline) matchingEdges(a Anchor, w, h int) int {
	base := s.spans[a.Span].Height
	behind := s.height(a.behind())
	ahead := s.height(a.ahead())
	n := 0
	if s.spans[a.Span].Width == w {
		n++
	}
	if behind-base == h {
		n++
	}
	if ahead-base == h {
		n++
	}
	if behind == s.size && ahead == s.size && base+h == s.size {
		n++
	}
	return n
}
