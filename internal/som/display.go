package som

import (
	"math/rand"

	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/index"
	"github.com/siret/somhunter-go/internal/scores"
	"github.com/siret/somhunter-go/internal/types"
)

// GetDisplay returns one representative frame per grid cell: a weighted
// draw from the cell's assigned frames, or for an empty cell, a draw
// borrowed from the nearest cell that still has unclaimed population,
// falling back to None() when nothing is left to borrow. Grounded on
// AsyncSom::get_display. model supplies the per-frame weights
// weighted_example draws from (the same ScoreModel the training
// snapshot was taken from, or a later one — SOM results are eventually
// consistent per spec.md §5).
func (w *Worker) GetDisplay(model *scores.Model, idx *index.FrameIndex, rng *rand.Rand) ([]types.OptionalFrame, error) {
	snap := w.result.Load()
	if snap == nil {
		return nil, errs.Wrap("som.getDisplay", errs.ErrSomNotReady)
	}

	n := w.width * w.height
	out := make([]types.OptionalFrame, n)
	used := make(map[types.FrameID]bool, n)

	for cellIdx, frames := range snap.mapping {
		if len(frames) == 0 {
			continue
		}
		id, err := model.WeightedExample(frames, rng)
		if err != nil {
			return nil, errs.Wrap("som.getDisplay", err)
		}
		out[cellIdx] = id
		if fid, ok := id.Get(); ok {
			used[fid] = true
		}
	}

	stolenCount := make([]int, n)
	frameCell := make(map[types.FrameID]int, n)
	for cellIdx, frames := range snap.mapping {
		for _, f := range frames {
			frameCell[f] = cellIdx
		}
	}

	for cellIdx, frames := range snap.mapping {
		if len(frames) > 0 {
			continue
		}
		donor := w.nearestPopulatedCell(snap, cellIdx, stolenCount, idx, frameCell)
		if donor < 0 {
			out[cellIdx] = types.None()
			continue
		}
		stolenCount[donor]++
		candidates := excludeUsed(snap.mapping[donor], used)
		if len(candidates) == 0 {
			out[cellIdx] = types.None()
			continue
		}
		id, err := model.WeightedExample(candidates, rng)
		if err != nil {
			return nil, errs.Wrap("som.getDisplay", err)
		}
		out[cellIdx] = id
		if fid, ok := id.Get(); ok {
			used[fid] = true
		}
	}
	return out, nil
}

func excludeUsed(frames []types.FrameID, used map[types.FrameID]bool) []types.FrameID {
	out := make([]types.FrameID, 0, len(frames))
	for _, f := range frames {
		if !used[f] {
			out = append(out, f)
		}
	}
	return out
}

// nearestPopulatedCell finds the populated cell whose codebook prototype
// is nearest the empty cell's, preferring the index's approximate
// nearest-frame lookup (SPEC_FULL.md §6.5) to shortlist candidates and
// falling back to a brute-force scan over every cell.
func (w *Worker) nearestPopulatedCell(snap *snapshot, emptyIdx int, stolenCount []int, idx *index.FrameIndex, frameCell map[types.FrameID]int) int {
	if idx != nil {
		v := snap.codebook.unit(emptyIdx)
		for _, fid := range idx.NearestToVec(v, 32, 128) {
			cell, ok := frameCell[fid]
			if !ok || cell == emptyIdx {
				continue
			}
			if len(snap.mapping[cell]) > stolenCount[cell] {
				return cell
			}
		}
	}

	best, bestDist := -1, -1.0
	for cell, frames := range snap.mapping {
		if cell == emptyIdx || len(frames) <= stolenCount[cell] {
			continue
		}
		d := squaredDist(snap.codebook.unit(emptyIdx), snap.codebook.unit(cell))
		if best < 0 || d < bestDist {
			best, bestDist = cell, d
		}
	}
	return best
}
