package manifest

import (
	"math"

	"github.com/matzehuels/atlasbake/pkg/atlas"
	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
)

// Sizer reports the pixel size of a source.
type Sizer interface {
	Size(source string) (geom.Size, error)
}

// Inputs converts the items to bake inputs for an atlas of side atlasSize
// with the given margin. Sizes are derived through sizer where the item
// does not set one.
func (m *Manifest) Inputs(sizer Sizer, margin, atlasSize int) ([]atlas.Input, error) {
	defCap := DefaultMaxMajorSize
	if m.Settings.MaxMajorSize != nil {
		defCap = *m.Settings.MaxMajorSize
	}
	out := make([]atlas.Input, len(m.Items))
	for i, it := range m.Items {
		raw, err := m.itemSize(it, sizer, defCap)
		if err != nil {
			return nil, err
		}
		out[i] = atlas.Input{
			Source:    it.Source,
			Point:     it.Point,
			SortGroup: it.SortGroup,
			Crop:      it.Window(),
			Size:      PrepareSize(raw, margin, atlasSize),
		}
	}
	return out, nil
}

func (m *Manifest) itemSize(it Item, sizer Sizer, defCap int) (geom.Size, error) {
	if it.Size != nil {
		return *it.Size, nil
	}
	src, err := sizer.Size(it.Source)
	if err != nil {
		return geom.Size{}, err
	}
	size := it.Window().CropSize(src)
	limit := it.MaxMajorSize
	if limit == 0 {
		limit = defCap
	}
	return CapMajor(size, limit), nil
}

// CapMajor scales s down uniformly so its larger side is at most limit.
// A limit of zero or less disables the cap.
func CapMajor(s geom.Size, limit int) geom.Size {
	major := s.Major()
	if limit <= 0 || major <= limit {
		return s
	}
	f := float64(limit) / float64(major)
	return geom.Size{
		W: max(1, int(math.Round(float64(s.W)*f))),
		H: max(1, int(math.Round(float64(s.H)*f))),
	}
}

// PrepareSize pads a content size with margin on every side and, when the
// padded size exceeds the atlas, scales it down to fit.
func PrepareSize(content geom.Size, margin, atlasSize int) geom.Size {
	s := geom.Size{W: content.W + 2*margin, H: content.H + 2*margin}
	major := s.Major()
	if major <= atlasSize {
		return s
	}
	f := float64(atlasSize) / float64(major)
	return geom.Size{
		W: max(2*margin+1, int(float64(s.W)*f)),
		H: max(2*margin+1, int(float64(s.H)*f)),
	}
}
