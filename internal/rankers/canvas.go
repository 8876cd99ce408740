package rankers

import (
	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/features"
	"github.com/siret/somhunter-go/internal/logging"
	"github.com/siret/somhunter-go/internal/scores"
	"github.com/siret/somhunter-go/internal/types"
)

// ImageEmbedder extracts a feature vector from an already decoded bitmap
// into the same space as the primary feature matrix, standing in for the
// external image feature extractor (ResNet/ResNeXt/W2VV artifacts named
// in the config) that the canvas ranker's bitmap subqueries need.
type ImageEmbedder interface {
	Embed(bitmap []byte) ([]float32, bool)
}

// CanvasSubquery is one placed rectangle of a CanvasQuery, with either
// free text or a decoded bitmap (exactly one should be set).
type CanvasSubquery struct {
	Rect   features.Rect
	Text   string
	Bitmap []byte
}

// CanvasQuery is the collage/region query the canvas ranker consumes.
type CanvasQuery struct {
	Subqueries []CanvasSubquery
}

// CanvasRanker matches each subquery's rectangle to the best-IoU RoI,
// embeds the subquery (text via TextRanker's keyword path, bitmap via
// Extractor), scores that RoI's per-region feature matrix, and averages
// the per-subquery distance vectors together, grounded on
// CanvasRanker::rank. A missing Extractor degrades bitmap subqueries to
// a no-op with a warning rather than failing the whole rescore.
type CanvasRanker struct {
	Text      *TextRanker
	Regions   *features.RegionBank
	Extractor ImageEmbedder
	Log       logging.Logger
}

// ScoreSlot folds the averaged per-subquery distance vector into
// temporal_scores[slot]. An empty subquery list is a no-op.
func (r *CanvasRanker) ScoreSlot(q CanvasQuery, slot int, model *scores.Model, primary *features.Matrix) error {
	if len(q.Subqueries) == 0 {
		return nil
	}

	n := primary.N
	sum := make([]float64, n)
	count := 0
	for _, sq := range q.Subqueries {
		vec, regionFeat, ok := r.embedSubquery(sq)
		if !ok {
			continue
		}
		roi := r.Regions.BestRegion(sq.Rect)
		feat := regionFeat
		if feat == nil {
			feat = r.Regions.Feats[roi]
		}
		for i := 0; i < n; i++ {
			sum[i] += distanceToUnit(feat.DotVec(i, vec))
		}
		count++
	}
	if count == 0 {
		r.warn("canvas ranker: no usable subqueries, skipping")
		return nil
	}
	for i := 0; i < n; i++ {
		if err := model.AdjustTemporal(slot, types.FrameID(i), sum[i]/float64(count)); err != nil {
			return errs.Wrap("rankers.canvas", err)
		}
	}
	return nil
}

// embedSubquery returns the subquery's embedding vector. The returned
// region matrix is always nil, so ScoreSlot scores against the best-IoU
// RoI's matrix.
func (r *CanvasRanker) embedSubquery(sq CanvasSubquery) (vec []float32, regionFeat *features.Matrix, ok bool) {
	if sq.Text != "" {
		vec = r.Text.Embed(sq.Text)
		return vec, nil, vec != nil
	}
	if len(sq.Bitmap) == 0 {
		return nil, nil, false
	}
	if r.Extractor == nil {
		r.warn("canvas ranker: bitmap subquery but no image extractor configured")
		return nil, nil, false
	}
	vec, ok = r.Extractor.Embed(sq.Bitmap)
	return vec, nil, ok
}

func (r *CanvasRanker) warn(msg string) {
	if r.Log != nil {
		r.Log.Warn(msg)
	}
}
