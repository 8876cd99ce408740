package rankers

import (
	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/features"
	"github.com/siret/somhunter-go/internal/index"
	"github.com/siret/somhunter-go/internal/scores"
	"github.com/siret/somhunter-go/internal/types"
)

// KNNRanker computes "frames visually like this anchor" distances,
// grounded on the original's DTopKNN display path. It is used two ways:
// directly, to drive the TopKNN display (which bypasses the persistent
// ScoreModel entirely — a fresh ranked list per anchor), and via
// ScoreSlot as the "relocation ranker" that folds the same distance into
// a temporal slot of a larger query.
type KNNRanker struct {
	Index *index.FrameIndex // optional; nil falls back to a full scan
}

// Distances returns every frame's (1-dot)/2 distance to anchor's feature
// row, ascending distance is "most similar".
func (r *KNNRanker) Distances(anchor types.FrameID, feat *features.Matrix) []float64 {
	out := make([]float64, feat.N)
	for i := 0; i < feat.N; i++ {
		out[i] = distanceToUnit(feat.Dot(int(anchor), i))
	}
	return out
}

// Nearest returns up to k frame ids nearest anchor, excluding anchor
// itself, using the HNSW index when available and falling back to a
// full scan otherwise.
func (r *KNNRanker) Nearest(anchor types.FrameID, feat *features.Matrix, k int) []types.FrameID {
	if r.Index != nil {
		return r.Index.Nearest(feat, anchor, k, k*4+16)
	}
	dists := r.Distances(anchor, feat)
	ranked := scores.SortByScore(dists) // ascending distance: most similar first
	out := make([]types.FrameID, 0, k)
	for _, sid := range ranked {
		if sid.ID == anchor {
			continue
		}
		out = append(out, sid.ID)
		if len(out) == k {
			break
		}
	}
	return out
}

// ScoreSlot is the relocation ranker: same distance as Distances, folded
// into temporal_scores[slot] as part of a larger temporal query.
func (r *KNNRanker) ScoreSlot(anchor types.FrameID, slot int, model *scores.Model, feat *features.Matrix) error {
	dists := r.Distances(anchor, feat)
	for i, d := range dists {
		if err := model.AdjustTemporal(slot, types.FrameID(i), d); err != nil {
			return errs.Wrap("rankers.knn", err)
		}
	}
	return nil
}
