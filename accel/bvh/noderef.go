package bvh

import "fmt"

// NodeRef is a tagged reference to either an inner node or a packed leaf
// block of a BVH. The tag lives in the low four bits:
//
//   - 0 is the Empty reference.
//   - (index+1) << 4 references inner node index.
//   - (index+1) << 4 | 8 | lanes references leaf block index holding lanes
//     valid primitives.
//
// References are only meaningful together with the BVH whose arenas they
// index.
type NodeRef uint64

const (
	// The empty reference. Unused child slots hold Empty.
	Empty NodeRef = 0

	leafFlag   = 8
	laneMask   = 7
	indexShift = 4

	// The largest lane count a leaf reference can encode.
	MaxLanes = laneMask

	// Indices must be strictly less than MaxIndex.
	MaxIndex = 1<<(64-indexShift) - 1
)

// Create a reference to inner node index.
func MakeNode(index int) NodeRef {
	if index < 0 || uint64(index) >= MaxIndex {
		panic(fmt.Sprintf("bvh: node index %d out of range", index))
	}
	return NodeRef(uint64(index+1) << indexShift)
}

// Create a reference to leaf block index containing lanes primitives.
func MakeLeaf(index, lanes int) NodeRef {
	if index < 0 || uint64(index) >= MaxIndex {
		panic(fmt.Sprintf("bvh: leaf index %d out of range", index))
	}
	if lanes < 0 || lanes > MaxLanes {
		panic(fmt.Sprintf("bvh: leaf lane count %d out of range", lanes))
	}
	return NodeRef(uint64(index+1)<<indexShift | leafFlag | uint64(lanes))
}

// Returns true if this is the Empty reference.
func (r NodeRef) IsEmpty() bool {
	return r == Empty
}

// Returns true if r references an inner node.
func (r NodeRef) IsNode() bool {
	return r != Empty && r&leafFlag == 0
}

// Returns true if r references a leaf block.
func (r NodeRef) IsLeaf() bool {
	return r&leafFlag != 0
}

// Get the inner node index. The result is unspecified unless IsNode is true.
func (r NodeRef) Node() int {
	return int(r>>indexShift) - 1
}

// Get the leaf block index and lane count. The result is unspecified unless
// IsLeaf is true.
func (r NodeRef) Leaf() (index, lanes int) {
	return int(r>>indexShift) - 1, int(r & laneMask)
}

func (r NodeRef) String() string {
	switch {
	case r.IsEmpty():
		return "empty"
	case r.IsLeaf():
		index, lanes := r.Leaf()
		return fmt.Sprintf("leaf(%d, %d)", index, lanes)
	default:
		return fmt.Sprintf("node(%d)", r.Node())
	}
}
