package bvh

import (
	"github.com/achilleasa/rtcore/types"
)

// The initial traversal stack depth. Deeper hierarchies grow the stack.
const stackSize = 64

type stackEntry struct {
	ref  NodeRef
	dist float32
}

// Find the closest intersection of ray with the hierarchy. When a nearer
// intersection is found, hit is updated and ray.TFar is shrunk to the hit
// distance.
func (b *BVH) Intersect(ray *types.Ray, hit *types.Hit) {
	if b.Root.IsEmpty() {
		return
	}

	invDir := reciprocal(ray.Dir)
	rootDist, ok := intersectBox(b.bounds, ray.Org, invDir, ray.TNear, ray.TFar)
	if !ok {
		return
	}

	var storage [stackSize]stackEntry
	stack := append(storage[:0], stackEntry{b.Root, rootDist})
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Skip subtrees entered beyond the current closest hit
		if entry.dist > ray.TFar {
			continue
		}

		if entry.ref.IsLeaf() {
			index, lanes := entry.ref.Leaf()
			b.Leaves.Intersect(index, lanes, ray, hit)
			continue
		}

		stack = b.pushChildren(stack, &b.Nodes[entry.ref.Node()], ray, invDir)
	}
}

// Returns true if any primitive intersects ray within [ray.TNear, ray.TFar].
// Traversal stops at the first occluder found.
func (b *BVH) Occluded(ray *types.Ray) bool {
	if b.Root.IsEmpty() {
		return false
	}

	invDir := reciprocal(ray.Dir)
	rootDist, ok := intersectBox(b.bounds, ray.Org, invDir, ray.TNear, ray.TFar)
	if !ok {
		return false
	}

	var storage [stackSize]stackEntry
	stack := append(storage[:0], stackEntry{b.Root, rootDist})
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if entry.ref.IsLeaf() {
			index, lanes := entry.ref.Leaf()
			if b.Leaves.Occluded(index, lanes, ray) {
				return true
			}
			continue
		}

		stack = b.pushChildren(stack, &b.Nodes[entry.ref.Node()], ray, invDir)
	}
	return false
}

// Push the children of node hit by the ray so that the nearest child is
// popped first. Children at equal distances pop in slot order.
func (b *BVH) pushChildren(stack []stackEntry, node *Node, ray *types.Ray, invDir types.Vec3) []stackEntry {
	var dist [N]float32
	mask := node.intersect(ray.Org, invDir, ray.TNear, ray.TFar, &dist)
	if mask == 0 {
		return stack
	}

	// Sort hit slots by ascending distance; insertion sort keeps slot
	// order for ties.
	var order [N]int
	count := 0
	for i := 0; i < N; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		pos := count
		for pos > 0 && dist[order[pos-1]] > dist[i] {
			order[pos] = order[pos-1]
			pos--
		}
		order[pos] = i
		count++
	}

	for k := count - 1; k >= 0; k-- {
		slot := order[k]
		stack = append(stack, stackEntry{node.Children[slot], dist[slot]})
	}
	return stack
}
