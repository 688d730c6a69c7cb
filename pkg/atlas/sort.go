package atlas

import (
	"github.com/matzehuels/atlasbake/pkg/atlas/cluster"
	"github.com/matzehuels/atlasbake/pkg/errors"
)

// Sort clusters inputs the way the first bake cycle does, without packing.
// Item IDs in the result are input indices.
func Sort(inputs []Input, cfg Config) (*cluster.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	items := make([]cluster.Item, len(inputs))
	for i, in := range inputs {
		if in.Size.Empty() {
			return nil, errors.New(errors.ErrCodeInvalidInput, "input %d (%s): size %v is empty", i, in.Source, in.Size)
		}
		items[i] = cluster.Item{ID: i, Point: in.Point, SortGroup: in.SortGroup, Size: in.Size}
	}
	res, err := cluster.Sort(items, cfg.clusterConfig())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "sort inputs")
	}
	return res, nil
}

func (c *Config) clusterConfig() cluster.Config {
	return cluster.Config{
		AtlasSize:   c.AtlasSize,
		PixelBudget: c.PixelBudget(),
		TextureFit:  c.TextureFit,
	}
}
