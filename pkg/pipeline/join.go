package pipeline

import (
	"github.com/matzehuels/atlasbake/pkg/atlas"
	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
)

type joinKey struct {
	source    string
	crop      geom.UVRect
	size      geom.Size
	sortGroup int
}

// Join collapses inputs that share source, crop window, size and sort
// group. It returns the unique inputs in first-seen order and, for every
// original input, the index of its unique representative.
func Join(inputs []atlas.Input) ([]atlas.Input, []int) {
	seen := make(map[joinKey]int, len(inputs))
	unique := make([]atlas.Input, 0, len(inputs))
	index := make([]int, len(inputs))
	for i, in := range inputs {
		k := joinKey{in.Source, in.Crop, in.Size, in.SortGroup}
		u, ok := seen[k]
		if !ok {
			u = len(unique)
			seen[k] = u
			unique = append(unique, in)
		}
		index[i] = u
	}
	return unique, index
}

// Identity maps every input to itself.
func Identity(n int) []int {
	index := make([]int, n)
	for i := range index {
		index[i] = i
	}
	return index
}
