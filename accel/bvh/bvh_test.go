package bvh

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/prim"
	"github.com/achilleasa/rtcore/types"
)

type triangleSoup [][3]types.Vec3

func (s triangleSoup) Triangle(geomID, primID uint32) (v0, v1, v2 types.Vec3) {
	tri := s[primID]
	return tri[0], tri[1], tri[2]
}

func (s triangleSoup) items() []Item {
	items := make([]Item, len(s))
	for index, tri := range s {
		items[index] = NewItem(prim.TriangleBounds(tri[0], tri[1], tri[2]), 0, uint32(index))
	}
	return items
}

func (s triangleSoup) packer(monitor memory.Monitor) PackFunc {
	return func(groups [][]prim.Ref) (prim.Leaves, error) {
		return prim.PackTriangles(monitor, groups, s)
	}
}

func (s triangleSoup) build(t *testing.T, monitor memory.Monitor, maxLeafSize int) *BVH {
	bvh, err := Build(s.items(), s.packer(monitor), Options{
		Kind:        prim.KindTriangle4,
		MaxLeafSize: maxLeafSize,
		Monitor:     monitor,
	})
	if err != nil {
		t.Fatal(err)
	}
	return bvh
}

func randomSoup(count int, seed int64) triangleSoup {
	rng := rand.New(rand.NewSource(seed))
	randVec := func(scale float32) types.Vec3 {
		return types.Vec3{
			(rng.Float32()*2 - 1) * scale,
			(rng.Float32()*2 - 1) * scale,
			(rng.Float32()*2 - 1) * scale,
		}
	}

	soup := make(triangleSoup, count)
	for index := range soup {
		center := randVec(10)
		soup[index] = [3]types.Vec3{
			center.Add(randVec(0.5)),
			center.Add(randVec(0.5)),
			center.Add(randVec(0.5)),
		}
	}
	return soup
}

func TestBuildInvariants(t *testing.T) {
	specs := []struct {
		count       int
		maxLeafSize int
	}{
		{1, 0},
		{4, 0},
		{5, 0},
		{17, 2},
		{500, 0},
		{5000, 1},
	}

	for index, spec := range specs {
		mon := memory.NewCountingMonitor()
		soup := randomSoup(spec.count, int64(index))
		bvh := soup.build(t, mon, spec.maxLeafSize)

		if err := bvh.Validate(); err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}

		// Every primitive must be reachable exactly once
		seen := make(map[uint32]int)
		collector := &primCollector{seen: seen}
		if err := bvh.Walk(collector); err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
		if len(seen) != spec.count {
			t.Fatalf("[spec %d] expected %d distinct primitives; got %d", index, spec.count, len(seen))
		}
		for primID, count := range seen {
			if count != 1 {
				t.Fatalf("[spec %d] expected primitive %d to be referenced once; got %d", index, primID, count)
			}
		}

		// Leaf occupancy
		maxLeafSize := spec.maxLeafSize
		if maxLeafSize == 0 {
			maxLeafSize = N
		}
		if collector.maxLanes > maxLeafSize || collector.minLanes < 1 {
			t.Fatalf("[spec %d] expected leaf lane counts in [1, %d]; got [%d, %d]", index, maxLeafSize, collector.minLanes, collector.maxLanes)
		}

		st := bvh.Stats()
		if st.Primitives != spec.count {
			t.Fatalf("[spec %d] expected stats to report %d primitives; got %d", index, spec.count, st.Primitives)
		}
		if st.Nodes != len(bvh.Nodes) || st.Leaves != bvh.Leaves.Len() {
			t.Fatalf("[spec %d] expected exact arenas; stats report %d nodes / %d leaves, arenas hold %d / %d", index, st.Nodes, st.Leaves, len(bvh.Nodes), bvh.Leaves.Len())
		}

		bvh.Release()
		if mon.Live() != 0 {
			t.Fatalf("[spec %d] expected release to return all memory; got %d live bytes", index, mon.Live())
		}
	}
}

type primCollector struct {
	seen     map[uint32]int
	lastLeaf NodeRef
	minLanes int
	maxLanes int
	nodes    int
}

func (c *primCollector) VisitNode(ref NodeRef, node *Node, depth int) error {
	c.nodes++
	return nil
}

func (c *primCollector) VisitPrimitive(ref NodeRef, lane int, geomID, primID uint32, depth int) error {
	c.seen[primID]++
	if ref != c.lastLeaf {
		c.lastLeaf = ref
		_, lanes := ref.Leaf()
		if c.minLanes == 0 || lanes < c.minLanes {
			c.minLanes = lanes
		}
		if lanes > c.maxLanes {
			c.maxLanes = lanes
		}
	}
	return nil
}

func TestTraversalMatchesBruteForce(t *testing.T) {
	soup := randomSoup(800, 7)
	bvh := soup.build(t, nil, 0)
	defer bvh.Release()

	groups := make([][]prim.Ref, len(soup))
	for index := range soup {
		groups[index] = []prim.Ref{{GeomID: 0, PrimID: uint32(index)}}
	}
	flat, err := prim.PackTriangles(nil, groups, soup)
	if err != nil {
		t.Fatal(err)
	}
	defer flat.Release()

	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 500; i++ {
		org := types.Vec3{rng.Float32()*30 - 15, rng.Float32()*30 - 15, -20}
		target := types.Vec3{rng.Float32()*20 - 10, rng.Float32()*20 - 10, rng.Float32()*20 - 10}

		ray := types.NewRay(org, target.Sub(org).Normalize())
		hit := types.NewHit()
		bvh.Intersect(&ray, &hit)

		refRay := types.NewRay(org, target.Sub(org).Normalize())
		refHit := types.NewHit()
		for block := range soup {
			flat.Intersect(block, 1, &refRay, &refHit)
		}

		if hit.Valid() != refHit.Valid() {
			t.Fatalf("[ray %d] expected hit state %t; got %t", i, refHit.Valid(), hit.Valid())
		}
		if !hit.Valid() {
			continue
		}
		if hit.T != refHit.T {
			t.Fatalf("[ray %d] expected hit distance %f; got %f", i, refHit.T, hit.T)
		}
		if ray.TFar != hit.T {
			t.Fatalf("[ray %d] expected ray.TFar to be shrunk to %f; got %f", i, hit.T, ray.TFar)
		}

		occRay := types.NewRay(org, target.Sub(org).Normalize())
		if !bvh.Occluded(&occRay) {
			t.Fatalf("[ray %d] expected ray to be occluded", i)
		}
	}
}

func TestEmptyHierarchy(t *testing.T) {
	mon := memory.NewCountingMonitor()
	bvh, err := Build(nil, nil, Options{Kind: prim.KindBezier4, Monitor: mon})
	if err != nil {
		t.Fatal(err)
	}

	if !bvh.Root.IsEmpty() {
		t.Fatalf("expected empty root; got %s", bvh.Root)
	}
	if bvh.Kind() != prim.KindBezier4 {
		t.Fatalf("expected kind %s; got %s", prim.KindBezier4, bvh.Kind())
	}
	if err = bvh.Validate(); err != nil {
		t.Fatal(err)
	}

	ray := types.NewRay(types.XYZ(0, 0, 0), types.XYZ(0, 0, 1))
	hit := types.NewHit()
	bvh.Intersect(&ray, &hit)
	if hit.Valid() || bvh.Occluded(&ray) {
		t.Fatal("expected all queries against an empty hierarchy to miss")
	}
	if !math.IsInf(float64(ray.TFar), 1) {
		t.Fatalf("expected ray to be left untouched; got tfar %f", ray.TFar)
	}

	var buf bytes.Buffer
	if err = bvh.Print(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "Empty\n" {
		t.Fatalf("expected empty dump; got %q", buf.String())
	}

	bvh.Release()
	if mon.Live() != 0 {
		t.Fatalf("expected 0 live bytes; got %d", mon.Live())
	}
}

func TestWalkToleratesEmptyNodes(t *testing.T) {
	leaves, err := prim.NewLeaves(prim.KindTriangle4, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	var nodes [2]Node
	nodes[0].Clear()
	nodes[1].Clear()
	nodes[0].SetChild(2, MakeNode(1), types.BBox{{0, 0, 0}, {1, 1, 1}})

	bvh := newBVH(MakeNode(0), types.BBox{{0, 0, 0}, {1, 1, 1}}, nodes[:], nil, leaves)

	collector := &primCollector{seen: make(map[uint32]int)}
	if err = bvh.Walk(collector); err != nil {
		t.Fatal(err)
	}
	if collector.nodes != 2 || len(collector.seen) != 0 {
		t.Fatalf("expected to visit 2 nodes and no primitives; got %d nodes and %d primitives", collector.nodes, len(collector.seen))
	}
	if err = bvh.Validate(); err != nil {
		t.Fatal(err)
	}

	ray := types.NewRay(types.XYZ(0.5, 0.5, -1), types.XYZ(0, 0, 1))
	if bvh.Occluded(&ray) {
		t.Fatal("expected ray to miss a hierarchy without primitives")
	}
}

func TestValidateDetectsViolations(t *testing.T) {
	soup := triangleSoup{
		{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		{{5, 0, 0}, {6, 0, 0}, {5, 1, 0}},
	}

	leaves, err := prim.PackTriangles(nil, [][]prim.Ref{{{GeomID: 0, PrimID: 0}}, {{GeomID: 0, PrimID: 1}}}, soup)
	if err != nil {
		t.Fatal(err)
	}
	defer leaves.Release()

	goodBox := types.BBox{{0, 0, 0}, {6, 1, 0}}
	makeNodes := func() []Node {
		nodes := make([]Node, 1)
		nodes[0].Clear()
		nodes[0].SetChild(0, MakeLeaf(0, 1), types.BBox{{0, 0, 0}, {1, 1, 0}})
		nodes[0].SetChild(3, MakeLeaf(1, 1), types.BBox{{5, 0, 0}, {6, 1, 0}})
		return nodes
	}

	if err = newBVH(MakeNode(0), goodBox, makeNodes(), nil, leaves).Validate(); err != nil {
		t.Fatalf("expected hierarchy to be valid; got %v", err)
	}

	specs := []struct {
		mutate func(nodes []Node) (NodeRef, types.BBox)
		expErr error
	}{
		{
			func(nodes []Node) (NodeRef, types.BBox) {
				return MakeNode(0), types.BBox{{0, 0, 0}, {5.5, 1, 0}}
			},
			ErrNotContained,
		},
		{
			func(nodes []Node) (NodeRef, types.BBox) {
				nodes[0].SetChild(0, MakeLeaf(0, 1), types.BBox{{0.5, 0, 0}, {1, 1, 0}})
				return MakeNode(0), goodBox
			},
			ErrNotContained,
		},
		{
			func(nodes []Node) (NodeRef, types.BBox) {
				nodes[0].SetChild(3, MakeLeaf(0, 1), types.BBox{{0, 0, 0}, {1, 1, 0}})
				return MakeNode(0), goodBox
			},
			ErrSharedNode,
		},
		{
			func(nodes []Node) (NodeRef, types.BBox) {
				nodes[0].SetChild(1, MakeNode(4), goodBox)
				return MakeNode(0), goodBox
			},
			ErrIndexOutOfRange,
		},
		{
			func(nodes []Node) (NodeRef, types.BBox) {
				nodes[0].SetChild(0, MakeLeaf(0, N+1), types.BBox{{0, 0, 0}, {1, 1, 0}})
				return MakeNode(0), goodBox
			},
			ErrLaneCount,
		},
	}

	for index, spec := range specs {
		nodes := makeNodes()
		root, box := spec.mutate(nodes)
		err := newBVH(root, box, nodes, nil, leaves).Validate()
		if errors.Cause(err) != spec.expErr {
			t.Fatalf("[spec %d] expected error %v; got %v", index, spec.expErr, err)
		}
	}
}

func TestPrintDump(t *testing.T) {
	soup := randomSoup(9, 3)
	bvh := soup.build(t, nil, 0)
	defer bvh.Release()

	var buf bytes.Buffer
	if err := bvh.Print(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "Node {\n  bounds0 = ") {
		t.Fatalf("expected dump to start with the root node; got:\n%s", out)
	}
	if got := strings.Count(out, "Triangle { v0 = "); got != len(soup) {
		t.Fatalf("expected %d triangles in dump; got %d", len(soup), got)
	}
	if strings.Count(out, "{") != strings.Count(out, "}") {
		t.Fatalf("expected balanced braces in dump:\n%s", out)
	}
}

func TestBuildCancellation(t *testing.T) {
	mon := memory.NewCountingMonitor()
	soup := randomSoup(200, 11)

	calls := 0
	_, err := Build(soup.items(), soup.packer(mon), Options{
		Kind:    prim.KindTriangle4,
		Monitor: mon,
		Progress: func(done float64) bool {
			calls++
			if done < 0 || done > 1 {
				t.Fatalf("expected progress in [0, 1]; got %f", done)
			}
			return calls < 5
		},
	})

	if err != ErrCancelled {
		t.Fatalf("expected ErrCancelled; got %v", err)
	}
	if mon.Live() != 0 {
		t.Fatalf("expected cancelled build to hold no memory; got %d live bytes", mon.Live())
	}
}

func TestBuildAllocationFailureReleasesMemory(t *testing.T) {
	soup := randomSoup(300, 5)

	// Allow the node arena but reject the leaf arena
	counter := memory.NewCountingMonitor()
	allocations := 0
	mon := memory.Chain(counter, memory.MonitorFunc(func(delta int64, phase memory.Phase) error {
		if phase == memory.PreEvent {
			allocations++
			if allocations > 1 {
				return errors.New("budget exhausted")
			}
		}
		return nil
	}))

	_, err := Build(soup.items(), soup.packer(mon), Options{Kind: prim.KindTriangle4, Monitor: mon})
	if errors.Cause(err) != memory.ErrOutOfMemory {
		t.Fatalf("expected out of memory error; got %v", err)
	}
	if counter.Live() != 0 {
		t.Fatalf("expected failed build to release everything; got %d live bytes", counter.Live())
	}
}

func TestBuildOptionsValidation(t *testing.T) {
	soup := randomSoup(10, 1)
	specs := []Options{
		{Kind: prim.KindTriangle4, MaxLeafSize: N + 1},
		{Kind: prim.KindTriangle4, MaxLeafSize: -1},
		{Kind: prim.KindTriangle4, Bins: 1},
	}

	for index, opts := range specs {
		if _, err := Build(soup.items(), soup.packer(nil), opts); errors.Cause(err) != ErrInvalidOptions {
			t.Fatalf("[spec %d] expected ErrInvalidOptions; got %v", index, err)
		}
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	soup := randomSoup(120, 21)
	bvh := soup.build(t, nil, 0)
	defer bvh.Release()

	var buf bytes.Buffer
	if err := bvh.Encode(gob.NewEncoder(&buf)); err != nil {
		t.Fatal(err)
	}

	mon := memory.NewCountingMonitor()
	decoded, err := Decode(gob.NewDecoder(&buf), mon)
	if err != nil {
		t.Fatal(err)
	}

	if decoded.Root != bvh.Root || decoded.Bounds() != bvh.Bounds() {
		t.Fatalf("expected root %s with bounds %s; got %s with bounds %s", bvh.Root, bvh.Bounds(), decoded.Root, decoded.Bounds())
	}
	if decoded.Stats() != bvh.Stats() {
		t.Fatalf("expected stats %+v; got %+v", bvh.Stats(), decoded.Stats())
	}

	ray := types.NewRay(types.XYZ(0, 0, -20), types.XYZ(0, 0, 1))
	hit, decodedHit := types.NewHit(), types.NewHit()
	bvh.Intersect(&ray, &hit)
	ray = types.NewRay(types.XYZ(0, 0, -20), types.XYZ(0, 0, 1))
	decoded.Intersect(&ray, &decodedHit)
	if hit != decodedHit {
		t.Fatalf("expected decoded hierarchy to report hit %+v; got %+v", hit, decodedHit)
	}

	decoded.Release()
	if mon.Live() != 0 {
		t.Fatalf("expected 0 live bytes; got %d", mon.Live())
	}
}

func TestDecodeCorruptArchive(t *testing.T) {
	soup := randomSoup(40, 5)
	bvh := soup.build(t, nil, 0)
	defer bvh.Release()

	var buf bytes.Buffer
	if err := bvh.Encode(gob.NewEncoder(&buf)); err != nil {
		t.Fatal(err)
	}
	encoded := buf.Bytes()

	specs := [][]byte{
		[]byte("garbage"),
		encoded[:len(encoded)/4],
		encoded[:len(encoded)/2],
		encoded[:len(encoded)-1],
	}

	for specIndex, spec := range specs {
		mon := memory.NewCountingMonitor()
		_, err := Decode(gob.NewDecoder(bytes.NewReader(spec)), mon)
		if errors.Cause(err) != ErrCorruptArchive {
			t.Errorf("[spec %d] expected error cause to be ErrCorruptArchive; got %v", specIndex, err)
		}
		if mon.Live() != 0 {
			t.Errorf("[spec %d] expected 0 live bytes; got %d", specIndex, mon.Live())
		}
	}
}

func TestStatsTable(t *testing.T) {
	bvh := randomSoup(64, 2).build(t, nil, 0)
	defer bvh.Release()

	table := bvh.Stats().Table()
	for _, exp := range []string{"bvh4.triangle4", "Leaf occupancy", "Node memory"} {
		if !strings.Contains(table, exp) {
			t.Fatalf("expected stats table to contain %q; got:\n%s", exp, table)
		}
	}
}
