package atlas

import (
	"fmt"
	"image"
)

// scratch holds the per-bake working state that outlives a single task:
// pooled canvases keyed by resolution and the debug trace. It is only
// touched from the goroutine running Bake.
type scratch struct {
	free  map[int][]*image.NRGBA
	trace []string
	debug bool
}

func newScratch(debug bool) *scratch {
	return &scratch{free: make(map[int][]*image.NRGBA), debug: debug}
}

// acquire returns a square canvas of side res, reusing a released one when
// possible. Contents are undefined.
func (s *scratch) acquire(res int) *image.NRGBA {
	if pool := s.free[res]; len(pool) > 0 {
		img := pool[len(pool)-1]
		s.free[res] = pool[:len(pool)-1]
		return img
	}
	return image.NewNRGBA(image.Rect(0, 0, res, res))
}

// release returns canvases to the pool. Nil entries are ignored.
func (s *scratch) release(imgs ...*image.NRGBA) {
	for _, img := range imgs {
		if img == nil {
			continue
		}
		res := img.Rect.Dx()
		s.free[res] = append(s.free[res], img)
	}
}

// pooled returns the number of canvases waiting for reuse.
func (s *scratch) pooled() int {
	n := 0
	for _, pool := range s.free {
		n += len(pool)
	}
	return n
}

func (s *scratch) tracef(format string, args ...any) {
	if s.debug {
		s.trace = append(s.trace, fmt.Sprintf(format, args...))
	}
}

// close drops every pooled canvas.
func (s *scratch) close() {
	clear(s.free)
}
