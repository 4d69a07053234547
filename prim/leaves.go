package prim

import (
	"encoding/gob"

	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/types"
)

// Leaves is implemented by the packed leaf arenas owned by a hierarchy.
// Blocks are addressed by the index stored in a leaf reference and only the
// first lanes entries of a block are valid.
type Leaves interface {
	// The primitive layout stored in this arena.
	Kind() Kind

	// The number of blocks in the arena.
	Len() int

	// Get the ids stored in a lane.
	Lane(block, j int) (geomID, primID uint32)

	// Get the bounds of the primitive stored in a lane.
	LaneBounds(block, j int) types.BBox

	// Intersect ray with the first lanes primitives of a block updating
	// hit and ray.TFar when a nearer intersection is found.
	Intersect(block, lanes int, ray *types.Ray, hit *types.Hit)

	// Returns true if any of the first lanes primitives of a block
	// intersects ray within [ray.TNear, ray.TFar].
	Occluded(block, lanes int, ray *types.Ray) bool

	// Serialize the arena contents.
	Encode(enc *gob.Encoder) error

	// Return the arena memory to its allocator.
	Release()
}

// The serialized form of a leaf arena.
type blockArchive[T any] struct {
	Blocks []T
}

// Allocate an arena of the given kind with room for n blocks.
func NewLeaves(kind Kind, monitor memory.Monitor, n int) (Leaves, error) {
	switch kind {
	case KindTriangle4:
		return NewTriangleLeaves(monitor, n)
	case KindBezier4:
		return NewBezierLeaves(monitor, n)
	}
	return nil, errors.Wrapf(ErrUnknownKind, "kind %d", kind)
}

// Read an arena of the given kind previously written by Leaves.Encode.
func DecodeLeaves(kind Kind, monitor memory.Monitor, dec *gob.Decoder) (Leaves, error) {
	switch kind {
	case KindTriangle4:
		var archive blockArchive[Triangle4]
		if err := dec.Decode(&archive); err != nil {
			return nil, errors.Wrap(err, "prim: decoding triangle blocks")
		}
		leaves, err := NewTriangleLeaves(monitor, len(archive.Blocks))
		if err != nil {
			return nil, err
		}
		copy(leaves.blocks, archive.Blocks)
		return leaves, nil
	case KindBezier4:
		var archive blockArchive[Bezier4]
		if err := dec.Decode(&archive); err != nil {
			return nil, errors.Wrap(err, "prim: decoding curve blocks")
		}
		leaves, err := NewBezierLeaves(monitor, len(archive.Blocks))
		if err != nil {
			return nil, err
		}
		copy(leaves.blocks, archive.Blocks)
		return leaves, nil
	}
	return nil, errors.Wrapf(ErrUnknownKind, "kind %d", kind)
}
