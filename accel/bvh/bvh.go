package bvh

import (
	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/prim"
	"github.com/achilleasa/rtcore/types"
)

// BVH is a 4-wide bounding volume hierarchy over packed leaf blocks of a
// single primitive kind. Inner nodes and leaf blocks live in arenas owned
// by the BVH and are addressed by the indices encoded in NodeRef values.
//
// A finished BVH is immutable and safe for concurrent queries.
type BVH struct {
	// The entry point of the hierarchy; Empty for an empty hierarchy.
	Root NodeRef

	// The inner node arena.
	Nodes []Node

	// The packed leaf arena.
	Leaves prim.Leaves

	bounds    types.BBox
	nodeAlloc *memory.Allocator[Node]
}

// Create an empty hierarchy of the given kind. Every query against an empty
// hierarchy misses.
func NewEmpty(kind prim.Kind, monitor memory.Monitor) (*BVH, error) {
	leaves, err := prim.NewLeaves(kind, monitor, 0)
	if err != nil {
		return nil, err
	}
	return &BVH{
		Root:      Empty,
		Leaves:    leaves,
		bounds:    types.EmptyBBox(),
		nodeAlloc: memory.NewAllocator[Node](monitor),
	}, nil
}

// Assemble a hierarchy from pre-built arenas. Nodes must have been obtained
// from an allocator reporting to the same monitor.
func newBVH(root NodeRef, bounds types.BBox, nodes []Node, nodeAlloc *memory.Allocator[Node], leaves prim.Leaves) *BVH {
	return &BVH{
		Root:      root,
		Nodes:     nodes,
		Leaves:    leaves,
		bounds:    bounds,
		nodeAlloc: nodeAlloc,
	}
}

// Get the primitive kind stored in the leaves.
func (b *BVH) Kind() prim.Kind {
	return b.Leaves.Kind()
}

// Get the bounds of the entire hierarchy. Empty hierarchies report an
// inverted box.
func (b *BVH) Bounds() types.BBox {
	return b.bounds
}

// Release the node and leaf arenas. The hierarchy must not be queried
// afterwards.
func (b *BVH) Release() {
	if b.nodeAlloc != nil {
		b.nodeAlloc.Deallocate(&b.Nodes)
	}
	b.Nodes = nil
	if b.Leaves != nil {
		b.Leaves.Release()
	}
	b.Root = Empty
	b.bounds = types.EmptyBBox()
}
