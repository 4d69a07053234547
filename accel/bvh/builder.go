package bvh

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/achilleasa/rtcore/log"
	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/prim"
	"github.com/achilleasa/rtcore/types"
)

const (
	// The default number of SAH bins evaluated per axis.
	defaultBins = 16

	// Work lists smaller than this are scored on the calling goroutine.
	parallelScoreThreshold = 4096
)

var (
	ErrCancelled      = errors.New("bvh: build cancelled")
	ErrInvalidOptions = errors.New("bvh: invalid build options")
)

// Item is a primitive reference handed to the builder.
type Item struct {
	Box    types.BBox
	Center types.Vec3
	Ref    prim.Ref
}

// Create a build item from a primitive bounding box.
func NewItem(box types.BBox, geomID, primID uint32) Item {
	return Item{
		Box:    box,
		Center: box.Center(),
		Ref:    prim.Ref{GeomID: geomID, PrimID: primID},
	}
}

// A PackFunc packs leaf groups into a leaf arena. Group i must be stored in
// block i. Groups hold between 1 and N refs.
type PackFunc func(groups [][]prim.Ref) (prim.Leaves, error)

// A ProgressFunc receives the fraction of primitives placed in leaves so
// far. Returning false cancels the build.
type ProgressFunc func(done float64) bool

// Options control the builder.
type Options struct {
	// The primitive kind of the produced hierarchy.
	Kind prim.Kind

	// The maximum number of primitives per leaf, between 1 and N. Zero
	// selects N.
	MaxLeafSize int

	// The number of SAH bins per axis. Zero selects a default.
	Bins int

	// The maximum number of goroutines used for scoring splits. Zero
	// places no limit.
	Threads int

	// The monitor receiving arena allocation events.
	Monitor memory.Monitor

	// An optional progress callback.
	Progress ProgressFunc
}

// A node of the intermediate binary hierarchy.
type binNode struct {
	box         types.BBox
	left, right int

	// The item range covered by a leaf.
	start, end int
}

func (n *binNode) isLeaf() bool {
	return n.left < 0
}

type splitScore struct {
	axis  int
	bin   int
	cost  float32
	valid bool
}

type builder struct {
	logger log.Logger
	opts   Options

	items    []Item
	binNodes []binNode
	placed   int

	// The collapsed N-wide layout. Each entry lists the binary nodes
	// stored in the slots of one wide node.
	wide      [][]int
	wideIndex []int
	leafIndex []int
	leafBins  []int
}

// Build a 4-wide hierarchy over items. The items slice is reordered.
//
// Items are first partitioned into a binary tree using a binned surface
// area heuristic (lower is better):
//
// left count * left BBOX area + right count * right BBOX area
//
// and the binary tree is then collapsed into N-wide nodes by repeatedly
// opening the child with the largest surface area. Node and leaf arenas are
// allocated with their exact final size through the monitored allocator;
// on failure everything allocated so far is released.
func Build(items []Item, pack PackFunc, opts Options) (*BVH, error) {
	if opts.MaxLeafSize == 0 {
		opts.MaxLeafSize = N
	}
	if opts.MaxLeafSize < 1 || opts.MaxLeafSize > N {
		return nil, errors.Wrapf(ErrInvalidOptions, "max leaf size must be in [1, %d]; got %d", N, opts.MaxLeafSize)
	}
	if opts.Bins == 0 {
		opts.Bins = defaultBins
	}
	if opts.Bins < 2 {
		return nil, errors.Wrapf(ErrInvalidOptions, "bin count must be at least 2; got %d", opts.Bins)
	}

	if len(items) == 0 {
		return NewEmpty(opts.Kind, opts.Monitor)
	}

	b := &builder{
		logger:   log.New("bvh"),
		opts:     opts,
		items:    items,
		binNodes: make([]binNode, 0, 2*len(items)/opts.MaxLeafSize+1),
	}

	start := time.Now()
	root, err := b.partition(0, len(items))
	if err != nil {
		return nil, err
	}

	b.plan(root)

	bvh, err := b.emit(root, pack)
	if err != nil {
		return nil, err
	}

	b.logger.Debugf(
		"%s build time: %d ms, items: %d, nodes: %d, leafs: %d",
		opts.Kind, time.Since(start).Nanoseconds()/1e6,
		len(items), len(b.wide), len(b.leafBins),
	)
	return bvh, nil
}

// Partition items[start:end] and return the binary node index.
func (b *builder) partition(start, end int) (int, error) {
	workList := b.items[start:end]

	box := types.EmptyBBox()
	centroids := types.EmptyBBox()
	for _, item := range workList {
		box = box.Extend(item.Box)
		centroids = centroids.ExtendPoint(item.Center)
	}

	if len(workList) <= b.opts.MaxLeafSize {
		return b.createLeaf(box, start, end)
	}

	mid := start
	if split, err := b.bestSplit(workList, centroids); err != nil {
		return 0, err
	} else if split.valid {
		mid = start + b.applySplit(workList, centroids, split)
	}

	// Fall back to an object median split when all centroids coincide
	if mid == start || mid == end {
		mid = start + len(workList)/2
	}

	nodeIndex := len(b.binNodes)
	b.binNodes = append(b.binNodes, binNode{box: box})

	left, err := b.partition(start, mid)
	if err != nil {
		return 0, err
	}
	right, err := b.partition(mid, end)
	if err != nil {
		return 0, err
	}
	b.binNodes[nodeIndex].left = left
	b.binNodes[nodeIndex].right = right
	return nodeIndex, nil
}

// Setup a leaf covering items[start:end] and report progress.
func (b *builder) createLeaf(box types.BBox, start, end int) (int, error) {
	nodeIndex := len(b.binNodes)
	b.binNodes = append(b.binNodes, binNode{
		box:   box,
		left:  -1,
		right: -1,
		start: start,
		end:   end,
	})

	b.placed += end - start
	if b.opts.Progress != nil && !b.opts.Progress(float64(b.placed)/float64(len(b.items))) {
		return 0, ErrCancelled
	}
	return nodeIndex, nil
}

// Score candidate splits along each axis and select the best one. Large
// work lists score their axes in parallel.
func (b *builder) bestSplit(workList []Item, centroids types.BBox) (splitScore, error) {
	var scores [3]splitScore

	if len(workList) < parallelScoreThreshold {
		for axis := 0; axis < 3; axis++ {
			scores[axis] = scoreAxis(workList, axis, centroids, b.opts.Bins)
		}
	} else {
		var group errgroup.Group
		if b.opts.Threads > 0 {
			group.SetLimit(b.opts.Threads)
		}
		for axis := 0; axis < 3; axis++ {
			axis := axis
			group.Go(func() error {
				scores[axis] = scoreAxis(workList, axis, centroids, b.opts.Bins)
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return splitScore{}, err
		}
	}

	var best splitScore
	for _, candidate := range scores {
		if candidate.valid && (!best.valid || candidate.cost < best.cost) {
			best = candidate
		}
	}
	return best, nil
}

// Reorder workList so items falling into bins <= split.bin come first and
// return the number of such items.
func (b *builder) applySplit(workList []Item, centroids types.BBox, split splitScore) int {
	left := 0
	right := len(workList) - 1
	for left <= right {
		if binOf(workList[left].Center, split.axis, centroids, b.opts.Bins) <= split.bin {
			left++
			continue
		}
		workList[left], workList[right] = workList[right], workList[left]
		right--
	}
	return left
}

// Map a centroid to its bin along axis.
func binOf(center types.Vec3, axis int, centroids types.BBox, bins int) int {
	extent := centroids[1][axis] - centroids[0][axis]
	if extent <= 0 {
		return 0
	}
	bin := int(float32(bins) * (center[axis] - centroids[0][axis]) / extent)
	if bin >= bins {
		bin = bins - 1
	}
	if bin < 0 {
		bin = 0
	}
	return bin
}

// Evaluate the SAH cost of splitting after each bin along axis. Splits that
// generate empty partitions are never selected.
func scoreAxis(workList []Item, axis int, centroids types.BBox, bins int) splitScore {
	if centroids[1][axis]-centroids[0][axis] <= 0 {
		return splitScore{axis: axis}
	}

	counts := make([]int, bins)
	boxes := make([]types.BBox, bins)
	for i := range boxes {
		boxes[i] = types.EmptyBBox()
	}
	for _, item := range workList {
		bin := binOf(item.Center, axis, centroids, bins)
		counts[bin]++
		boxes[bin] = boxes[bin].Extend(item.Box)
	}

	// Sweep from the right accumulating suffix areas
	rightArea := make([]float32, bins)
	rightCount := make([]int, bins)
	acc := types.EmptyBBox()
	count := 0
	for i := bins - 1; i > 0; i-- {
		acc = acc.Extend(boxes[i])
		count += counts[i]
		rightArea[i] = acc.HalfArea()
		rightCount[i] = count
	}

	best := splitScore{axis: axis, cost: math.MaxFloat32}
	acc = types.EmptyBBox()
	count = 0
	for i := 0; i < bins-1; i++ {
		acc = acc.Extend(boxes[i])
		count += counts[i]
		if count == 0 || rightCount[i+1] == 0 {
			continue
		}

		cost := float32(count)*acc.HalfArea() + float32(rightCount[i+1])*rightArea[i+1]
		if cost < best.cost {
			best.bin = i
			best.cost = cost
			best.valid = true
		}
	}
	return best
}

// Collapse the binary tree into N-wide nodes. Wide nodes are numbered in
// pre-order and leaves in the order they are reached.
func (b *builder) plan(root int) {
	b.wideIndex = make([]int, len(b.binNodes))
	b.leafIndex = make([]int, len(b.binNodes))
	b.collapse(root)
}

func (b *builder) collapse(bin int) {
	if b.binNodes[bin].isLeaf() {
		b.leafIndex[bin] = len(b.leafBins)
		b.leafBins = append(b.leafBins, bin)
		return
	}

	slots := []int{b.binNodes[bin].left, b.binNodes[bin].right}
	for len(slots) < N {
		open := -1
		var openArea float32 = -1
		for i, slot := range slots {
			if b.binNodes[slot].isLeaf() {
				continue
			}
			if area := b.binNodes[slot].box.HalfArea(); area > openArea {
				open, openArea = i, area
			}
		}
		if open < 0 {
			break
		}

		// Replace the opened child with its children keeping slot order
		opened := b.binNodes[slots[open]]
		slots = append(slots[:open], append([]int{opened.left, opened.right}, slots[open+1:]...)...)
	}

	b.wideIndex[bin] = len(b.wide)
	b.wide = append(b.wide, slots)
	for _, slot := range slots {
		b.collapse(slot)
	}
}

// Allocate the final arenas and fill them from the collapsed layout.
func (b *builder) emit(root int, pack PackFunc) (*BVH, error) {
	nodeAlloc := memory.NewAllocator[Node](b.opts.Monitor)
	nodes, err := nodeAlloc.Allocate(len(b.wide))
	if err != nil {
		return nil, err
	}

	groups := make([][]prim.Ref, len(b.leafBins))
	for i, bin := range b.leafBins {
		leaf := &b.binNodes[bin]
		group := make([]prim.Ref, 0, leaf.end-leaf.start)
		for _, item := range b.items[leaf.start:leaf.end] {
			group = append(group, item.Ref)
		}
		groups[i] = group
	}

	leaves, err := pack(groups)
	if err != nil {
		nodeAlloc.Deallocate(&nodes)
		return nil, err
	}
	if leaves.Len() != len(groups) || leaves.Kind() != b.opts.Kind {
		leaves.Release()
		nodeAlloc.Deallocate(&nodes)
		return nil, errors.Errorf("bvh: packer produced %d %s blocks; expected %d %s blocks", leaves.Len(), leaves.Kind(), len(groups), b.opts.Kind)
	}

	for wideIdx, slots := range b.wide {
		node := &nodes[wideIdx]
		node.Clear()
		for i, slot := range slots {
			node.SetChild(i, b.refOf(slot), b.binNodes[slot].box)
		}
	}

	return newBVH(b.refOf(root), b.binNodes[root].box, nodes, nodeAlloc, leaves), nil
}

func (b *builder) refOf(bin int) NodeRef {
	if n := &b.binNodes[bin]; n.isLeaf() {
		return MakeLeaf(b.leafIndex[bin], n.end-n.start)
	}
	return MakeNode(b.wideIndex[bin])
}
