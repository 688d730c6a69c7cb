// Package cluster splits atlas items into groups that are likely to share an
// atlas page.
//
// Items are inserted one at a time into a binary tree. Each insertion walks
// down from the root, preferring the child that keeps items of the same sort
// group together, is spatially closer, and (increasingly as the walk
// proceeds through the input) leaves a subtree whose pixel total fits the
// atlas budget snugly. The tree is then cut into groups: the topmost
// subtrees whose items share a sort group and whose pixels fit the budget.
//
// The tree lives in a flat arena of 2N-1 nodes indexed by int.
package cluster

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/matzehuels/atlasbake/pkg/atlas/geom"
)

// MinResolution is the smallest atlas side a group is shrunk to.
const MinResolution = 16

// Item is one rectangle to cluster.
type Item struct {
	ID        int
	Point     mgl32.Vec3
	SortGroup int
	Size      geom.Size
}

// Config controls tree construction and group extraction.
type Config struct {
	// AtlasSize is the largest atlas side, a power of two.
	AtlasSize int
	// PixelBudget is the pixel area a full-size atlas is expected to hold.
	PixelBudget int
	// TextureFit weighs budget fit against spatial distance.
	TextureFit float64
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.AtlasSize < MinResolution || c.AtlasSize&(c.AtlasSize-1) != 0 {
		return fmt.Errorf("atlas size %d is not a power of two >= %d", c.AtlasSize, MinResolution)
	}
	if c.PixelBudget <= 0 {
		return fmt.Errorf("pixel budget %d must be positive", c.PixelBudget)
	}
	return nil
}

// Group is a run of items destined for one atlas of the given side.
type Group struct {
	Items      []Item
	Resolution int
	Pixels     int
}

// Result is the output of [Sort].
type Result struct {
	Groups []Group
	tree   *tree
}

// Sort builds the cluster tree over items and cuts it into groups. Groups
// appear in pre-order and items within a group in tree order.
func Sort(items []Item, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := build(items, cfg)
	return &Result{Groups: t.groups(), tree: t}, nil
}

// node is one arena record. Leaves carry an item index; internal nodes carry
// aggregates of their two children.
type node struct {
	item    int
	group   int
	mixed   bool
	point   mgl32.Vec3
	pixels  int
	maxSize int
	parent  int
	left    int
	right   int
}

func (n *node) leaf() bool { return n.left < 0 }

type tree struct {
	nodes []node
	items []Item
	cfg   Config
}

func leafNode(i int, it Item) node {
	return node{
		item:    i,
		group:   it.SortGroup,
		point:   it.Point,
		pixels:  it.Size.Area(),
		maxSize: it.Size.Major(),
		parent:  -1,
		left:    -1,
		right:   -1,
	}
}

func build(items []Item, cfg Config) *tree {
	t := &tree{items: items, cfg: cfg}
	if len(items) == 0 {
		return t
	}
	t.nodes = make([]node, 0, 2*len(items)-1)
	t.nodes = append(t.nodes, leafNode(0, items[0]))
	for i := 1; i < len(items); i++ {
		t.insert(i)
	}
	return t
}

func (t *tree) insert(i int) {
	src := leafNode(i, t.items[i])
	at := 0
	for !t.nodes[at].leaf() {
		at = t.choose(at, &src, i)
	}

	demoted := t.nodes[at]
	demoted.parent = at
	t.nodes = append(t.nodes, demoted)
	left := len(t.nodes) - 1
	src.parent = at
	t.nodes = append(t.nodes, src)
	right := len(t.nodes) - 1

	t.nodes[at].left = left
	t.nodes[at].right = right
	for n := at; n >= 0; n = t.nodes[n].parent {
		t.recalc(n)
	}
}

func (t *tree) recalc(n int) {
	p := &t.nodes[n]
	l, r := &t.nodes[p.left], &t.nodes[p.right]
	p.item = -1
	p.mixed = l.mixed || r.mixed || l.group != r.group
	p.group = l.group
	p.point = l.point.Add(r.point).Mul(0.5)
	p.pixels = l.pixels + r.pixels
	p.maxSize = max(l.maxSize, r.maxSize)
}

// choose returns the child of internal node n to descend into for the item
// src, which is the i-th inserted item.
func (t *tree) choose(n int, src *node, i int) int {
	p := &t.nodes[n]
	l, r := &t.nodes[p.left], &t.nodes[p.right]

	lOff := l.mixed || l.group != src.group
	rOff := r.mixed || r.group != src.group
	if lOff != rOff {
		if lOff {
			return p.right
		}
		return p.left
	}

	progress := float64(i) / float64(len(t.items))
	lRoom, rRoom := t.room(l.pixels+src.pixels), t.room(r.pixels+src.pixels)
	lScore := sqDist(l.point, src.point) + (lRoom-rRoom)*progress*t.cfg.TextureFit
	rScore := sqDist(r.point, src.point) + (rRoom-lRoom)*progress*t.cfg.TextureFit
	if lScore < rScore {
		return p.left
	}
	return p.right
}

// room is the fraction of an atlas budget left free after pixels are packed
// into as many full atlases as needed.
func (t *tree) room(pixels int) float64 {
	budget := t.cfg.PixelBudget
	return float64(budget-pixels%budget) / float64(budget)
}

func sqDist(a, b mgl32.Vec3) float64 {
	d := a.Sub(b)
	return float64(d.Dot(d))
}

// root reports whether n starts a group.
func (t *tree) root(n *node) bool {
	return !n.mixed && (n.pixels <= t.cfg.PixelBudget || n.leaf())
}

func (t *tree) groups() []Group {
	if len(t.nodes) == 0 {
		return nil
	}
	var groups []Group
	stack := []int{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[id]
		if t.root(n) {
			items := t.leaves(id)
			groups = append(groups, Group{
				Items:      items,
				Resolution: t.resolution(n, len(items)),
				Pixels:     n.pixels,
			})
			continue
		}
		stack = append(stack, n.right, n.left)
	}
	return groups
}

func (t *tree) leaves(id int) []Item {
	var items []Item
	stack := []int{id}
	for len(stack) > 0 {
		n := &t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if n.leaf() {
			items = append(items, t.items[n.item])
			continue
		}
		stack = append(stack, n.right, n.left)
	}
	return items
}

// resolution halves the atlas side while a quarter of the budget still
// holds the group and its largest item still fits. Single items shrink on
// size alone.
func (t *tree) resolution(n *node, count int) int {
	res, budget := t.cfg.AtlasSize, t.cfg.PixelBudget
	for n.pixels*4 <= budget && n.maxSize*2 <= res && res > MinResolution {
		res >>= 1
		budget >>= 2
	}
	if count == 1 {
		for n.maxSize*2 <= res && res > MinResolution {
			res >>= 1
		}
	}
	return res
}
