package cluster

import "github.com/go-gl/mathgl/mgl32"

// TreeNode is a read-only snapshot of one cluster tree node.
type TreeNode struct {
	ID        int
	Parent    int
	Left      int
	Right     int
	ItemID    int // -1 for internal nodes
	SortGroup int
	Mixed     bool
	Point     mgl32.Vec3
	Pixels    int
	MaxSize   int
	GroupRoot bool
}

// Tree returns the cluster tree in arena order. Node 0 is the root.
func (r *Result) Tree() []TreeNode {
	t := r.tree
	if t == nil {
		return nil
	}
	out := make([]TreeNode, len(t.nodes))
	for i := range t.nodes {
		n := &t.nodes[i]
		itemID := -1
		if n.leaf() {
			itemID = t.items[n.item].ID
		}
		out[i] = TreeNode{
			ID:        i,
			Parent:    n.parent,
			Left:      n.left,
			Right:     n.right,
			ItemID:    itemID,
			SortGroup: n.group,
			Mixed:     n.mixed,
			Point:     n.point,
			Pixels:    n.pixels,
			MaxSize:   n.maxSize,
		}
	}
	markRoots(out, t)
	return out
}

func markRoots(out []TreeNode, t *tree) {
	if len(out) == 0 {
		return
	}
	stack := []int{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if t.root(&t.nodes[id]) {
			out[id].GroupRoot = true
			continue
		}
		stack = append(stack, t.nodes[id].right, t.nodes[id].left)
	}
}
