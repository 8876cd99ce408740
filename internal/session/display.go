package session

import (
	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/scores"
	"github.com/siret/somhunter-go/internal/types"
)

// GetDisplay assembles one page of frames for kind, tracking every
// non-empty returned frame in the current context's ShownFrames when
// logIt is set (logIt is false for the background "is the SOM ready
// yet" polling the UI does — those polls must not pollute the implicit
// relevance-feedback negatives), grounded on SomHunter::get_display.
func (u *UserContext) GetDisplay(kind DisplayKind, anchor types.OptionalFrame, page int, logIt bool) ([]types.OptionalFrame, error) {
	ctx := u.Current
	pageSize := u.Deps.pageSize()

	var out []types.OptionalFrame
	var err error

	switch kind {
	case DisplayRandom:
		out, err = u.displayRandom(pageSize)
	case DisplayTopN:
		out, err = u.displayTopN(pageSize, page)
	case DisplayTopNContext:
		out, err = u.displayTopNContext(pageSize, page)
	case DisplayTopKNN:
		out, err = u.displayTopKNN(anchor, pageSize)
	case DisplaySOM:
		out, err = u.GlobalSom.GetDisplay(ctx.Model, u.Deps.Index, u.Rng)
	case DisplaySOMRelocation:
		slot := page
		if slot < 0 || slot >= scores.MaxTemporalSlots {
			return nil, errs.Wrap("session.getDisplay", errs.ErrInvalidArgument)
		}
		out, err = u.TemporalSoms[slot].GetDisplay(ctx.Model, u.Deps.Index, u.Rng)
	case DisplayVideoDetail:
		out, err = u.displayVideoDetail(anchor, pageSize, page)
	default:
		return nil, errs.Wrap("session.getDisplay", errs.ErrInvalidArgument)
	}
	if err != nil {
		return nil, err
	}

	if logIt {
		for _, f := range out {
			if id, ok := f.Get(); ok {
				ctx.ShownFrames[id] = true
			}
		}
	}
	return out, nil
}

func (u *UserContext) displayRandom(pageSize int) ([]types.OptionalFrame, error) {
	ids, err := u.Current.Model.WeightedSample(pageSize, scores.RandomDisplayExponent, u.Rng)
	if err != nil {
		return nil, errs.Wrap("session.getDisplay", err)
	}
	return wrapIDs(ids), nil
}

func (u *UserContext) displayTopN(pageSize, page int) ([]types.OptionalFrame, error) {
	n := boundedN(page, pageSize, u.Deps.topCacheSize())
	ids := u.Current.Model.TopN(u.Deps.Catalog, n, u.Deps.TopNPerVideoCap, u.Deps.TopNPerShotCap)
	return wrapIDs(paginate(ids, pageSize, page)), nil
}

func (u *UserContext) displayTopNContext(pageSize, page int) ([]types.OptionalFrame, error) {
	n := boundedN(page, pageSize, u.Deps.topCacheSize())
	rows := u.Current.Model.TopNWithContext(u.Deps.Catalog, n, u.Deps.TopNPerVideoCap, u.Deps.TopNPerShotCap)
	rows = paginateRows(rows, pageSize, page)
	out := make([]types.OptionalFrame, 0, len(rows)*scores.DisplayGridWidth)
	for _, row := range rows {
		out = append(out, row...)
	}
	return out, nil
}

func (u *UserContext) displayTopKNN(anchor types.OptionalFrame, pageSize int) ([]types.OptionalFrame, error) {
	id, ok := anchor.Get()
	if !ok {
		return nil, errs.InvalidArgument("session.getDisplay", "top-knn display requires an anchor frame")
	}
	ids := u.Deps.KNN.Nearest(id, u.Deps.Features, pageSize)
	return wrapIDs(ids), nil
}

func (u *UserContext) displayVideoDetail(anchor types.OptionalFrame, pageSize, page int) ([]types.OptionalFrame, error) {
	id, ok := anchor.Get()
	if !ok {
		return nil, errs.InvalidArgument("session.getDisplay", "video detail display requires an anchor frame")
	}
	ids := u.Deps.Catalog.VideoFrames(id)
	return wrapIDs(paginate(ids, pageSize, page)), nil
}

// boundedN is how many top-ranked frames to compute for a given page:
// enough to cover it, capped so a caller requesting a far-out page
// can't force an unbounded top_n scan.
func boundedN(page, pageSize, ceiling int) int {
	n := (page + 1) * pageSize
	if n > ceiling {
		n = ceiling
	}
	return n
}

func wrapIDs(ids []types.FrameID) []types.OptionalFrame {
	out := make([]types.OptionalFrame, len(ids))
	for i, id := range ids {
		out[i] = types.Some(id)
	}
	return out
}

func paginate(ids []types.FrameID, pageSize, page int) []types.FrameID {
	start := page * pageSize
	if start >= len(ids) {
		return nil
	}
	end := start + pageSize
	if end > len(ids) {
		end = len(ids)
	}
	return ids[start:end]
}

func paginateRows(rows [][]types.OptionalFrame, pageSize, page int) [][]types.OptionalFrame {
	start := page * pageSize
	if start >= len(rows) {
		return nil
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}
