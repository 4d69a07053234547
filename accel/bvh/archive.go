package bvh

import (
	"encoding/gob"

	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/prim"
	"github.com/achilleasa/rtcore/types"
)

const archiveVersion = 1

var ErrCorruptArchive = errors.New("bvh: corrupt hierarchy archive")

type archiveHeader struct {
	Version int
	Kind    prim.Kind
	Root    NodeRef
	Bounds  types.BBox
}

type archiveNodes struct {
	Nodes []Node
}

// Serialize a finished hierarchy.
func (b *BVH) Encode(enc *gob.Encoder) error {
	header := archiveHeader{
		Version: archiveVersion,
		Kind:    b.Kind(),
		Root:    b.Root,
		Bounds:  b.bounds,
	}
	if err := enc.Encode(header); err != nil {
		return errors.Wrap(err, "bvh: encoding header")
	}
	if err := enc.Encode(archiveNodes{Nodes: b.Nodes}); err != nil {
		return errors.Wrap(err, "bvh: encoding nodes")
	}
	return b.Leaves.Encode(enc)
}

// Read a hierarchy written by Encode. Arenas are allocated through monitor
// and the decoded hierarchy is validated before it is returned.
func Decode(dec *gob.Decoder, monitor memory.Monitor) (*BVH, error) {
	var header archiveHeader
	if err := dec.Decode(&header); err != nil {
		return nil, errors.Wrapf(ErrCorruptArchive, "decoding header: %v", err)
	}
	if header.Version != archiveVersion {
		return nil, errors.Wrapf(ErrCorruptArchive, "unsupported archive version %d", header.Version)
	}

	var archived archiveNodes
	if err := dec.Decode(&archived); err != nil {
		return nil, errors.Wrapf(ErrCorruptArchive, "decoding nodes: %v", err)
	}

	leaves, err := prim.DecodeLeaves(header.Kind, monitor, dec)
	if err != nil {
		if errors.Cause(err) == memory.ErrOutOfMemory {
			return nil, err
		}
		return nil, errors.Wrapf(ErrCorruptArchive, "decoding leaves: %v", err)
	}

	nodeAlloc := memory.NewAllocator[Node](monitor)
	nodes, err := nodeAlloc.Allocate(len(archived.Nodes))
	if err != nil {
		leaves.Release()
		return nil, err
	}
	copy(nodes, archived.Nodes)

	bvh := newBVH(header.Root, header.Bounds, nodes, nodeAlloc, leaves)
	if bvh.Root.IsEmpty() {
		bvh.bounds = types.EmptyBBox()
	}
	if err = bvh.Validate(); err != nil {
		bvh.Release()
		return nil, errors.Wrap(ErrCorruptArchive, err.Error())
	}
	return bvh, nil
}
