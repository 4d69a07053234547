package bvh

import (
	"bytes"
	"fmt"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/achilleasa/rtcore/prim"
)

// Stats summarizes the shape of a hierarchy.
type Stats struct {
	Kind prim.Kind

	Nodes      int
	Leaves     int
	Primitives int
	MaxDepth   int

	// Number of non-empty child slots over all inner nodes.
	UsedSlots int

	// Arena sizes in bytes.
	NodeBytes uint64
	LeafBytes uint64
}

// Collect statistics by walking the hierarchy.
func (b *BVH) Stats() Stats {
	st := Stats{
		Kind:      b.Kind(),
		NodeBytes: uint64(len(b.Nodes)) * uint64(unsafe.Sizeof(Node{})),
		LeafBytes: uint64(b.Leaves.Len()) * leafBlockSize(b.Kind()),
	}
	b.collect(b.Root, 0, &st)
	return st
}

func (b *BVH) collect(ref NodeRef, depth int, st *Stats) {
	if ref.IsEmpty() {
		return
	}
	if depth > st.MaxDepth {
		st.MaxDepth = depth
	}

	if ref.IsLeaf() {
		_, lanes := ref.Leaf()
		st.Leaves++
		st.Primitives += lanes
		return
	}

	st.Nodes++
	node := &b.Nodes[ref.Node()]
	for i := 0; i < N; i++ {
		if node.Children[i].IsEmpty() {
			continue
		}
		st.UsedSlots++
		b.collect(node.Children[i], depth+1, st)
	}
}

func leafBlockSize(kind prim.Kind) uint64 {
	switch kind {
	case prim.KindTriangle4:
		return uint64(unsafe.Sizeof(prim.Triangle4{}))
	case prim.KindBezier4:
		return uint64(unsafe.Sizeof(prim.Bezier4{}))
	}
	return 0
}

// Get the average number of used slots per inner node.
func (st Stats) NodeOccupancy() float64 {
	if st.Nodes == 0 {
		return 0
	}
	return float64(st.UsedSlots) / float64(st.Nodes*N)
}

// Get the average number of valid lanes per leaf block.
func (st Stats) LeafOccupancy() float64 {
	if st.Leaves == 0 {
		return 0
	}
	return float64(st.Primitives) / float64(st.Leaves*N)
}

// Render the statistics as a table.
func (st Stats) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Accel", "Metric", "Value"})
	table.Append([]string{st.Kind.String(), "Primitives", humanize.Comma(int64(st.Primitives))})
	table.Append([]string{"", "Inner nodes", humanize.Comma(int64(st.Nodes))})
	table.Append([]string{"", "Leaf blocks", humanize.Comma(int64(st.Leaves))})
	table.Append([]string{"", "Max depth", fmt.Sprint(st.MaxDepth)})
	table.Append([]string{"", "Node occupancy", fmt.Sprintf("%.1f%%", 100*st.NodeOccupancy())})
	table.Append([]string{"", "Leaf occupancy", fmt.Sprintf("%.1f%%", 100*st.LeafOccupancy())})
	table.Append([]string{"", "Node memory", humanize.IBytes(st.NodeBytes)})
	table.Append([]string{"", "Leaf memory", humanize.IBytes(st.LeafBytes)})
	table.SetFooter([]string{"Total", " ", humanize.IBytes(st.NodeBytes + st.LeafBytes)})
	table.Render()
	return buf.String()
}
