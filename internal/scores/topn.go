package scores

import (
	"math"
	"math/rand"
	"sort"

	"github.com/siret/somhunter-go/internal/catalog"
	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/types"
)

// TopN returns up to n unmasked frames in descending score order, applying
// per-video and per-shot caps (0 disables a cap) so that a single strong
// video cannot dominate the whole page, grounded on
// ScoreModel::top_n / apply_diversity in the original scores.cpp.
// Results are cached until the next mutating call.
func (m *Model) TopN(cat *catalog.FrameCatalog, n, perVideoCap, perShotCap int) []types.FrameID {
	args := [3]int{n, perVideoCap, perShotCap}
	if m.topNCache != nil && m.topNCacheAt == m.version && m.topNCacheArgs == args {
		return m.topNCache
	}
	out := m.topNUncached(cat, n, perVideoCap, perShotCap)
	m.topNCache = out
	m.topNCacheAt = m.version
	m.topNCacheArgs = args
	return out
}

func (m *Model) topNUncached(cat *catalog.FrameCatalog, n, perVideoCap, perShotCap int) []types.FrameID {
	ranked := m.maskedDescending()

	videoCount := map[types.VideoID]int{}
	shotCount := map[types.ShotID]int{}
	out := make([]types.FrameID, 0, n)
	for _, r := range ranked {
		if len(out) == n {
			break
		}
		f := cat.Frame(r.ID)
		if perVideoCap > 0 && videoCount[f.VideoID] >= perVideoCap {
			continue
		}
		if perShotCap > 0 && shotCount[f.ShotID] >= perShotCap {
			continue
		}
		out = append(out, r.ID)
		videoCount[f.VideoID]++
		shotCount[f.ShotID]++
	}
	return out
}

func (m *Model) maskedDescending() []ScoredID {
	ranked := make([]ScoredID, 0, len(m.scores))
	for i, s := range m.scores {
		if m.mask[i] {
			ranked = append(ranked, ScoredID{ID: types.FrameID(i), Score: s})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}

// TopNWithContext returns the same top-n set as TopN, but each selected
// frame is expanded into a DisplayGridWidth-wide row with the anchor at
// TopNSelectedFramePosition and its immediate same-video neighbors filling
// the rest of the row (types.OptionalFrame.None() where the video runs
// out), grounded on ScoreModel::top_n_with_context.
func (m *Model) TopNWithContext(cat *catalog.FrameCatalog, n, perVideoCap, perShotCap int) [][]types.OptionalFrame {
	anchors := m.TopN(cat, n, perVideoCap, perShotCap)
	rows := make([][]types.OptionalFrame, 0, len(anchors))
	for _, a := range anchors {
		rows = append(rows, contextRow(cat, a))
	}
	return rows
}

func contextRow(cat *catalog.FrameCatalog, anchor types.FrameID) []types.OptionalFrame {
	row := make([]types.OptionalFrame, DisplayGridWidth)
	row[TopNSelectedFramePosition] = types.Some(anchor)

	before := TopNSelectedFramePosition
	cur := anchor
	for i := before - 1; i >= 0; i-- {
		prev, ok := cat.PrevInVideo(cur)
		if !ok {
			break
		}
		row[i] = types.Some(prev)
		cur = prev
	}

	after := DisplayGridWidth - TopNSelectedFramePosition - 1
	cur = anchor
	for i := 0; i < after; i++ {
		nexts := cat.NextInVideo(cur, 2)
		if len(nexts) == 0 {
			break
		}
		row[TopNSelectedFramePosition+1+i] = types.Some(nexts[0])
		cur = nexts[0]
	}
	return row
}

// WeightedSample draws k distinct unmasked frames without replacement,
// weighted by scores[i]^exponent, via a segment tree over cumulative
// weights so each draw and removal is O(log n), grounded on
// ScoreModel::weighted_sample.
func (m *Model) WeightedSample(k int, exponent float64, rng *rand.Rand) ([]types.FrameID, error) {
	if k < 0 {
		return nil, errs.InvalidArgument("scores.weightedSample", "k must be non-negative")
	}
	ids := make([]types.FrameID, 0, len(m.scores))
	weights := make([]float64, 0, len(m.scores))
	for i, s := range m.scores {
		if m.mask[i] {
			ids = append(ids, types.FrameID(i))
			weights = append(weights, math.Pow(s, exponent))
		}
	}
	if k > len(ids) {
		k = len(ids)
	}
	tree := newWeightTree(weights)
	out := make([]types.FrameID, 0, k)
	for i := 0; i < k; i++ {
		idx := tree.sample(rng)
		if idx < 0 {
			break
		}
		out = append(out, ids[idx])
		tree.remove(idx)
	}
	return out, nil
}

// WeightedExample draws one frame from subset weighted by its current
// score (masked frames weigh zero), falling back to a uniform draw over subset when every
// candidate has zero weight — the per-SOM-cell representative picker
// grounded on AsyncSom's weighted_example usage of ScoreModel.
func (m *Model) WeightedExample(subset []types.FrameID, rng *rand.Rand) (types.OptionalFrame, error) {
	if len(subset) == 0 {
		return types.None(), nil
	}
	weights := make([]float64, len(subset))
	var total float64
	for i, id := range subset {
		if !m.mask[id] {
			continue
		}
		weights[i] = m.scores[id]
		total += weights[i]
	}
	if total <= 0 {
		return types.Some(subset[rng.Intn(len(subset))]), nil
	}
	tree := newWeightTree(weights)
	idx := tree.sample(rng)
	if idx < 0 {
		return types.None(), nil
	}
	return types.Some(subset[idx]), nil
}

// weightTree is a binary segment tree over cumulative weights supporting
// O(log n) weighted sampling and O(log n) point removal, the Go analogue
// of the original's hand-rolled Fenwick-style weighted_sample tree.
type weightTree struct {
	n    int
	tree []float64 // 1-indexed, tree[1] is the root (total sum)
}

func newWeightTree(weights []float64) *weightTree {
	n := len(weights)
	t := &weightTree{n: n, tree: make([]float64, 2*n)}
	for i, w := range weights {
		t.tree[n+i] = w
	}
	for i := n - 1; i >= 1; i-- {
		t.tree[i] = t.tree[2*i] + t.tree[2*i+1]
	}
	return t
}

func (t *weightTree) total() float64 {
	if t.n == 0 {
		return 0
	}
	return t.tree[1]
}

// sample draws a leaf index proportional to its current weight, or -1 if
// every remaining weight is zero.
func (t *weightTree) sample(rng *rand.Rand) int {
	total := t.total()
	if total <= 0 {
		return -1
	}
	target := rng.Float64() * total
	i := 1
	for i < t.n {
		left := 2 * i
		if target < t.tree[left] {
			i = left
		} else {
			target -= t.tree[left]
			i = left + 1
		}
	}
	return i - t.n
}

// remove zeroes out leaf idx's weight and propagates the change to the root.
func (t *weightTree) remove(idx int) {
	i := idx + t.n
	t.tree[i] = 0
	for i > 1 {
		i /= 2
		t.tree[i] = t.tree[2*i] + t.tree[2*i+1]
	}
}
