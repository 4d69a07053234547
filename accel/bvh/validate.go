package bvh

import (
	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/types"
)

var (
	ErrIndexOutOfRange = errors.New("bvh: reference index out of range")
	ErrLaneCount       = errors.New("bvh: invalid leaf lane count")
	ErrSharedNode      = errors.New("bvh: node referenced more than once")
	ErrNotContained    = errors.New("bvh: bounds not contained in parent bounds")
)

// Validate checks the structural invariants of the hierarchy:
//
//   - every reference indexes a valid node or leaf block;
//   - leaf lane counts are within [0, N];
//   - nodes and leaf blocks are referenced exactly once;
//   - each non-empty child box lies inside the box its parent assigned to
//     the subtree, starting from the hierarchy bounds;
//   - each leaf primitive lies inside the box of its leaf.
func (b *BVH) Validate() error {
	if b.Root.IsEmpty() {
		return nil
	}

	v := &validator{
		bvh:        b,
		seenNodes:  make([]bool, len(b.Nodes)),
		seenLeaves: make([]bool, b.Leaves.Len()),
	}
	return v.check(b.Root, b.bounds, "root")
}

type validator struct {
	bvh        *BVH
	seenNodes  []bool
	seenLeaves []bool
}

func (v *validator) check(ref NodeRef, box types.BBox, path string) error {
	if ref.IsLeaf() {
		index, lanes := ref.Leaf()
		if index < 0 || index >= len(v.seenLeaves) {
			return errors.Wrapf(ErrIndexOutOfRange, "%s: %s (leaf arena has %d blocks)", path, ref, len(v.seenLeaves))
		}
		if lanes > N {
			return errors.Wrapf(ErrLaneCount, "%s: %s", path, ref)
		}
		if v.seenLeaves[index] {
			return errors.Wrapf(ErrSharedNode, "%s: %s", path, ref)
		}
		v.seenLeaves[index] = true

		for j := 0; j < lanes; j++ {
			if laneBox := v.bvh.Leaves.LaneBounds(index, j); !box.Contains(laneBox) {
				return errors.Wrapf(ErrNotContained, "%s: lane %d bounds %s outside leaf bounds %s", path, j, laneBox, box)
			}
		}
		return nil
	}

	index := ref.Node()
	if index < 0 || index >= len(v.seenNodes) {
		return errors.Wrapf(ErrIndexOutOfRange, "%s: %s (node arena has %d nodes)", path, ref, len(v.seenNodes))
	}
	if v.seenNodes[index] {
		return errors.Wrapf(ErrSharedNode, "%s: %s", path, ref)
	}
	v.seenNodes[index] = true

	node := &v.bvh.Nodes[index]
	for i := 0; i < N; i++ {
		child := node.Children[i]
		if child.IsEmpty() {
			continue
		}

		childBox := node.Bounds(i)
		childPath := path + "/" + child.String()
		if !box.Contains(childBox) {
			return errors.Wrapf(ErrNotContained, "%s: child bounds %s outside %s", childPath, childBox, box)
		}
		if err := v.check(child, childBox, childPath); err != nil {
			return err
		}
	}
	return nil
}
