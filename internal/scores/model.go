// Package scores implements the ScoreModel: per-frame relevance state,
// per-temporal-slot sub-scores, mask, top-k extraction with per-video/
// per-shot diversification, and weighted sampling. Grounded throughout on
// the original scores.cpp (ScoreModel::reset/adjust/top_n/weighted_sample/
// apply_bayes/apply_temporals/normalize/frame_rank/sort_by_score).
package scores

import (
	"math"
	"math/rand"
	"sort"

	"github.com/siret/somhunter-go/internal/catalog"
	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/features"
	"github.com/siret/somhunter-go/internal/types"
)

const (
	// MinScore is the floor every unmasked score is clamped to after
	// normalization, matching the original MINIMAL_SCORE.
	MinScore = 1e-18

	// MaxTemporalSlots bounds the number of temporal query slots
	// (MAX_TEMPORAL_QUERIES in the original config).
	MaxTemporalSlots = 4

	// KWTemporalSpan is the width of the intra-video lookahead window a
	// temporal slot's "next frame" constraint searches within.
	KWTemporalSpan = 5

	// DisplayGridWidth is the row width used by top_n_with_context.
	DisplayGridWidth = 8

	// TopNSelectedFramePosition is the column the anchor frame occupies
	// within its top_n_with_context row.
	TopNSelectedFramePosition = 2

	// TemporalSoftmaxBeta is the named constant that was an unmotivated
	// literal "-50" in the original apply_temporals; changing it rescales
	// the effective temperature of the fused score (see SPEC_FULL.md §9).
	TemporalSoftmaxBeta = 50.0

	// BayesSigma is the bandwidth of the Bayesian relevance-feedback kernel.
	BayesSigma = 0.1

	// MaxBayesNegatives caps the shown-but-unliked set used as implicit
	// negatives; the capped variant is the one that scales (spec.md §9).
	MaxBayesNegatives = 64

	// RandomDisplayExponent is the weighted_sample exponent the random
	// display uses, matching the original get_display(DisplayType::DRandom)
	// call; it biases the draw toward higher-scoring frames instead of
	// sampling uniformly.
	RandomDisplayExponent = 3.0
)

// Model holds one SearchContext's relevance distribution. It is not
// safe for concurrent use; callers serialize access via the session lock.
type Model struct {
	scores    []float64
	temporal  [MaxTemporalSlots][]float64
	mask      []bool
	nTemporal int // number of active temporal slots this rescore

	version       uint64
	topNCache     []types.FrameID
	topNCacheAt   uint64
	topNCacheArgs [3]int
}

// New allocates a Model for n frames, all scores at v and mask all true.
func New(n int, v float64) *Model {
	m := &Model{
		scores: make([]float64, n),
		mask:   make([]bool, n),
	}
	for i := range m.temporal {
		m.temporal[i] = make([]float64, n)
	}
	m.Reset(v)
	m.ResetMask()
	return m
}

// Len returns the number of frames this model scores.
func (m *Model) Len() int { return len(m.scores) }

// Clone returns a deep, independent copy — used when a SearchContext
// snapshot is pushed onto history or restored from it.
func (m *Model) Clone() *Model {
	c := &Model{
		scores:    append([]float64(nil), m.scores...),
		mask:      append([]bool(nil), m.mask...),
		nTemporal: m.nTemporal,
	}
	for i := range m.temporal {
		c.temporal[i] = append([]float64(nil), m.temporal[i]...)
	}
	return c
}

func (m *Model) invalidate() { m.version++ }

// Reset sets every per-frame score and every temporal sub-score to v.
func (m *Model) Reset(v float64) {
	m.invalidate()
	for i := range m.scores {
		m.scores[i] = v
	}
	for t := range m.temporal {
		for i := range m.temporal[t] {
			m.temporal[t][i] = v
		}
	}
}

// Adjust multiplies scores[frame] by p.
func (m *Model) Adjust(frame types.FrameID, p float64) error {
	if int(frame) < 0 || int(frame) >= len(m.scores) {
		return errs.InvalidArgument("scores.adjust", "frame id out of range")
	}
	m.invalidate()
	m.scores[frame] *= p
	return nil
}

// AdjustTemporal multiplies temporal_scores[t][frame] by p. Does not
// touch the main score vector or invalidate its cache.
func (m *Model) AdjustTemporal(t int, frame types.FrameID, p float64) error {
	if t < 0 || t >= MaxTemporalSlots {
		return errs.InvalidArgument("scores.adjustTemporal", "slot out of range")
	}
	if int(frame) < 0 || int(frame) >= len(m.scores) {
		return errs.InvalidArgument("scores.adjustTemporal", "frame id out of range")
	}
	m.temporal[t][frame] *= p
	return nil
}

// SetTemporalSlots declares how many of the MaxTemporalSlots rows are
// active for the current query (the query's temporal depth).
func (m *Model) SetTemporalSlots(n int) { m.nTemporal = n }

// SetMask sets mask[i] = flag.
func (m *Model) SetMask(i types.FrameID, flag bool) error {
	if int(i) < 0 || int(i) >= len(m.mask) {
		return errs.InvalidArgument("scores.setMask", "frame id out of range")
	}
	m.invalidate()
	m.mask[i] = flag
	return nil
}

// ResetMask sets every mask entry to true (accept-all).
func (m *Model) ResetMask() {
	m.invalidate()
	for i := range m.mask {
		m.mask[i] = true
	}
}

// IsMasked reports whether frame i is currently masked out.
func (m *Model) IsMasked(i types.FrameID) bool { return !m.mask[i] }

// Score returns the current main score of frame i.
func (m *Model) Score(i types.FrameID) float64 { return m.scores[i] }

// Scores returns a read-only view of the main score vector, used by the
// SOM worker's snapshot.
func (m *Model) Scores() []float64 { return m.scores }

// Mask returns a read-only view of the mask, used by the SOM worker's
// snapshot.
func (m *Model) Mask() []bool { return m.mask }

// TemporalScores returns a read-only view of temporal slot t's sub-score
// vector, used to train a per-slot relocation SOM display.
func (m *Model) TemporalScores(t int) []float64 { return m.temporal[t] }

// ApplyTemporals folds the per-slot temporal sub-scores (in
// inverse-score form, lower = better) into the main score vector,
// grounded on ScoreModel::apply_temporals.
//
// depth == 1:       scores[i] = exp(-beta * temporal[0][i])
// depth  > 1: recursive from the deepest slot back to slot 0:
//
//	lookahead(i) = min over frames j in {i+1,...,i+KWTemporalSpan-1}
//	               in the same video as i of temporal[t+1][j]
//	scores[i]    = exp(-beta * temporal[t][i] * lookahead(i))
//
// Sub-scores themselves are also exponentiated in place for later SOM
// display use.
func (m *Model) ApplyTemporals(depth int, cat *catalog.FrameCatalog) error {
	if depth == 0 {
		return nil
	}
	if depth > MaxTemporalSlots {
		depth = MaxTemporalSlots
	}
	m.invalidate()
	n := len(m.scores)

	for j := 0; j < n; j++ {
		m.scores[j] = m.temporal[depth-1][j]
	}

	for t := depth - 2; t >= 0; t-- {
		for j := 0; j < n; j++ {
			minLookahead := 1.0
			for _, k := range cat.NextInVideo(types.FrameID(j), KWTemporalSpan) {
				if v := m.scores[k]; v < minLookahead {
					minLookahead = v
				}
			}
			m.scores[j] = m.temporal[t][j] * minLookahead
		}
	}

	for j := 0; j < n; j++ {
		m.scores[j] = math.Exp(m.scores[j] * -TemporalSoftmaxBeta)
	}
	for t := 0; t < depth; t++ {
		for j := 0; j < n; j++ {
			m.temporal[t][j] = math.Exp(m.temporal[t][j] * -TemporalSoftmaxBeta)
		}
	}
	return nil
}

// ApplyBayes applies Bayesian relevance feedback from liked frames
// against implicit negatives drawn from the shown-but-unliked set
// (capped at MaxBayesNegatives uniformly random samples), grounded on
// ScoreModel::apply_bayes. A no-op if likes is empty. Always followed by
// Normalize.
func (m *Model) ApplyBayes(likes []types.FrameID, shown map[types.FrameID]bool, feat *features.Matrix, rng *rand.Rand) {
	if len(likes) == 0 {
		return
	}
	m.invalidate()

	likeSet := make(map[types.FrameID]bool, len(likes))
	for _, l := range likes {
		likeSet[l] = true
	}

	others := make([]types.FrameID, 0, len(shown))
	for id := range shown {
		if !likeSet[id] {
			others = append(others, id)
		}
	}
	if len(others) > MaxBayesNegatives {
		rng.Shuffle(len(others), func(i, j int) { others[i], others[j] = others[j], others[i] })
		others = others[:MaxBayesNegatives]
	}

	n := len(m.scores)
	workers := numWorkers(n)
	done := make(chan struct{}, workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			first := w * n / workers
			last := (w + 1) * n / workers
			for i := first; i < last; i++ {
				if !m.mask[i] {
					continue
				}
				var divSum float64
				for _, o := range others {
					divSum += math.Exp(-(1 - feat.Dot(i, int(o))) / BayesSigma)
				}
				for like := range likeSet {
					likeVal := math.Exp(-(1 - feat.Dot(i, int(like))) / BayesSigma)
					m.scores[i] *= likeVal / (likeVal + divSum)
				}
			}
			done <- struct{}{}
		}(w)
	}
	for w := 0; w < workers; w++ {
		<-done
	}

	m.Normalize(m.nTemporal)
}

func numWorkers(n int) int {
	const maxWorkers = 8
	if n < maxWorkers {
		if n < 1 {
			return 1
		}
		return n
	}
	return maxWorkers
}

// Normalize divides the main score vector (and the first `depth` temporal
// slots) by its max over unmasked indices, clamping to MinScore.
func (m *Model) Normalize(depth int) {
	if depth > MaxTemporalSlots {
		depth = MaxTemporalSlots
	}
	normalizeInPlace(m.scores, m.mask)
	for t := 0; t < depth; t++ {
		normalizeInPlace(m.temporal[t], m.mask)
	}
}

func normalizeInPlace(s []float64, mask []bool) {
	smax := 0.0
	for i, v := range s {
		if mask[i] && v > smax {
			smax = v
		}
	}
	if smax < MinScore {
		smax = MinScore
	}
	for i, v := range s {
		if mask[i] {
			v /= smax
			if v < MinScore {
				v = MinScore
			}
			s[i] = v
		}
	}
}

// FrameRank returns the number of frames with strictly higher score than i.
func (m *Model) FrameRank(i types.FrameID) int {
	target := m.scores[i]
	rank := 0
	for _, s := range m.scores {
		if s > target {
			rank++
		}
	}
	return rank
}

// ScoredID pairs a frame id with a score, the ascending sort order
// sort_by_score returns.
type ScoredID struct {
	ID    types.FrameID
	Score float64
}

// SortByScore returns (id, score) pairs sorted ascending by score, the
// static helper ScoreModel::sort_by_score.
func SortByScore(s []float64) []ScoredID {
	out := make([]ScoredID, len(s))
	for i, v := range s {
		out[i] = ScoredID{ID: types.FrameID(i), Score: v}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}
