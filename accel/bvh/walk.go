package bvh

import (
	"fmt"
	"io"
	"strings"

	"github.com/achilleasa/rtcore/prim"
)

// Visitor receives callbacks while a hierarchy is walked depth-first.
type Visitor interface {
	// Called when entering an inner node. Children are visited next in
	// slot order, skipping Empty slots.
	VisitNode(ref NodeRef, node *Node, depth int) error

	// Called for every valid lane of a leaf block.
	VisitPrimitive(ref NodeRef, lane int, geomID, primID uint32, depth int) error
}

// Walk the hierarchy depth-first starting from the root. Nodes whose
// slots are all Empty are tolerated. Walking stops at the first error
// returned by the visitor.
func (b *BVH) Walk(v Visitor) error {
	return b.walk(b.Root, v, 0)
}

func (b *BVH) walk(ref NodeRef, v Visitor, depth int) error {
	switch {
	case ref.IsEmpty():
		return nil
	case ref.IsLeaf():
		index, lanes := ref.Leaf()
		for j := 0; j < lanes; j++ {
			geomID, primID := b.Leaves.Lane(index, j)
			if err := v.VisitPrimitive(ref, j, geomID, primID, depth); err != nil {
				return err
			}
		}
		return nil
	}

	node := &b.Nodes[ref.Node()]
	if err := v.VisitNode(ref, node, depth); err != nil {
		return err
	}
	for i := 0; i < N; i++ {
		if node.Children[i].IsEmpty() {
			continue
		}
		if err := b.walk(node.Children[i], v, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Print a human readable dump of the hierarchy to w.
func (b *BVH) Print(w io.Writer) error {
	p := &printer{w: w, bvh: b}
	if b.Root.IsEmpty() {
		p.printf("Empty\n")
		return p.err
	}
	p.print(b.Root, 0)
	return p.err
}

type printer struct {
	w   io.Writer
	bvh *BVH
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) print(ref NodeRef, depth int) {
	indent := strings.Repeat("  ", depth)

	if ref.IsNode() {
		node := &p.bvh.Nodes[ref.Node()]
		p.printf("Node {\n")
		for i := 0; i < N; i++ {
			p.printf("%s  bounds%d = %s\n", indent, i, node.Bounds(i))
		}
		for i := 0; i < N; i++ {
			if node.Children[i].IsEmpty() {
				continue
			}
			p.printf("%s  child%d = ", indent, i)
			p.print(node.Children[i], depth+1)
		}
		p.printf("%s}\n", indent)
		return
	}

	index, lanes := ref.Leaf()
	p.printf("Leaf {\n")
	for j := 0; j < lanes; j++ {
		p.printf("%s  %s\n", indent, describeLane(p.bvh.Leaves, index, j))
	}
	p.printf("%s}\n", indent)
}

func describeLane(leaves prim.Leaves, block, j int) string {
	geomID, primID := leaves.Lane(block, j)

	switch l := leaves.(type) {
	case *prim.TriangleLeaves:
		tri := l.Block(block)
		v0, v1, v2 := tri.V0.Lane(j), tri.V1.Lane(j), tri.V2.Lane(j)
		return fmt.Sprintf(
			"Triangle { v0 = (%g, %g, %g), v1 = (%g, %g, %g), v2 = (%g, %g, %g), geomID = %d, primID = %d }",
			v0[0], v0[1], v0[2], v1[0], v1[1], v1[2], v2[0], v2[1], v2[2], geomID, primID,
		)
	case *prim.BezierLeaves:
		cp := l.Block(block).ControlPoints(j)
		parts := make([]string, len(cp))
		for k, p := range cp {
			parts[k] = fmt.Sprintf("p%d = (%g, %g, %g, r %g)", k, p[0], p[1], p[2], p[3])
		}
		return fmt.Sprintf("Curve { %s, geomID = %d, primID = %d }", strings.Join(parts, ", "), geomID, primID)
	}
	return fmt.Sprintf("Primitive { geomID = %d, primID = %d }", geomID, primID)
}
