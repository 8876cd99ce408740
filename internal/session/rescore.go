package session

import (
	"context"
	"reflect"

	"github.com/siret/somhunter-go/internal/catalog"
	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/scores"
	"github.com/siret/somhunter-go/internal/som"
	"github.com/siret/somhunter-go/internal/types"
)

// Rescore runs one full query cycle: resolve each temporal slot through
// its ranker (skipped entirely when the slots are unchanged from the
// last rescore), fold the result into the main score vector, apply the
// metadata filter, fold in relevance feedback from the accumulated
// Likes, push the result onto history, and kick both SOM workers with
// the new distribution. Grounded on SomHunter::rescore.
func (u *UserContext) Rescore(ctx context.Context, q Query) (int, []*SearchContext, error) {
	cur := u.Current
	hasLikes := len(cur.Likes) > 0
	if q.isEmpty(hasLikes) {
		return 0, nil, errs.Wrap("session.rescore", errs.ErrEmptyQuery)
	}

	next := cur.clone()
	next.ID = len(u.History)
	next.UsedTools = UsedTools{}
	next.Filters = q.Filters
	next.ShownFrames = map[types.FrameID]bool{}

	depth := len(q.Temporal)
	if depth > scores.MaxTemporalSlots {
		depth = scores.MaxTemporalSlots
	}
	next.Model.SetTemporalSlots(depth)

	if !sameTemporal(q.Temporal, cur.Temporal) {
		next.Model.Reset(1)
		next.Model.SetTemporalSlots(depth)
		for t, tq := range q.Temporal {
			if t >= scores.MaxTemporalSlots {
				break
			}
			if err := u.scoreSlot(ctx, t, tq, next); err != nil {
				return 0, nil, errs.Wrap("session.rescore", err)
			}
		}
		if err := next.Model.ApplyTemporals(depth, u.Deps.Catalog); err != nil {
			return 0, nil, errs.Wrap("session.rescore", err)
		}
	}
	next.Temporal = append([]TemporalQuery(nil), q.Temporal...)

	next.Model.ResetMask()
	if q.Filters != NoFilter() {
		next.UsedTools.Filters = true
		applyFilters(next.Model, q.Filters, u.Deps.Catalog)
	}

	likes := make([]types.FrameID, 0, len(cur.Likes))
	for id := range cur.Likes {
		likes = append(likes, id)
	}
	if len(likes) > 0 {
		next.UsedTools.Feedback = true
		next.Model.ApplyBayes(likes, cur.ShownFrames, u.Deps.Features, u.Rng)
	} else {
		next.Model.Normalize(depth)
	}
	next.Likes = map[types.FrameID]bool{}

	u.Current = next
	u.History = append(u.History, next.clone())
	u.kickSom()

	return next.ID, u.History, nil
}

// scoreSlot dispatches one temporal slot to the ranker its variant
// names, recording which mechanism fired in UsedTools.
func (u *UserContext) scoreSlot(ctx context.Context, t int, tq TemporalQuery, sc *SearchContext) error {
	feat := u.Deps.Features

	switch {
	case !tq.Relocation.IsNone():
		id, _ := tq.Relocation.Get()
		sc.UsedTools.Relocation = true
		return u.Deps.KNN.ScoreSlot(id, t, sc.Model, feat)

	case tq.Canvas != nil && len(tq.Canvas.Subqueries) > 0:
		for _, sq := range tq.Canvas.Subqueries {
			if sq.Text != "" {
				sc.UsedTools.CanvasText = true
			}
			if len(sq.Bitmap) > 0 {
				sc.UsedTools.CanvasBitmap = true
			}
		}
		if u.Deps.Canvas == nil {
			return nil
		}
		return u.Deps.Canvas.ScoreSlot(*tq.Canvas, t, sc.Model, feat)

	case tq.Text != "":
		sc.UsedTools.Text = true
		if tq.UseSecondary && u.Deps.Secondary != nil {
			return u.Deps.Secondary.ScoreSlot(ctx, tq.Text, t, sc.Model)
		}
		return u.Deps.Text.ScoreSlot(tq.Text, t, sc.Model, feat)
	}
	return nil
}

func sameTemporal(a, b []TemporalQuery) bool {
	return reflect.DeepEqual(a, b)
}

func applyFilters(model *scores.Model, f Filters, cat *catalog.FrameCatalog) {
	for i := 0; i < model.Len(); i++ {
		fr := cat.Frame(types.FrameID(i))
		if !f.accepts(fr.HasTime, fr.Hour, fr.Weekday) {
			model.SetMask(types.FrameID(i), false)
		}
	}
}

// kickSom starts the global SOM worker over every unmasked frame's main
// score, and each active temporal slot's dedicated worker over that
// slot's sub-score, so a later DisplaySOM/DisplaySOMRelocation request
// can poll for a freshly trained map.
func (u *UserContext) kickSom() {
	weights := func(i int) float64 { return u.Current.Model.Score(types.FrameID(i)) }
	u.startSom(u.GlobalSom, weights)

	depth := len(u.Current.Temporal)
	for t := 0; t < scores.MaxTemporalSlots; t++ {
		if t >= depth {
			continue
		}
		slot := t
		u.startSom(u.TemporalSoms[slot], func(i int) float64 { return u.Current.Model.TemporalScores(slot)[i] })
	}
}

func (u *UserContext) startSom(w *som.Worker, weight func(i int) float64) {
	feat := u.Deps.Features
	mask := u.Current.Model.Mask()

	ids := make([]types.FrameID, 0, feat.N)
	points := make([][]float32, 0, feat.N)
	ws := make([]float64, 0, feat.N)
	for i := 0; i < feat.N; i++ {
		if !mask[i] {
			continue
		}
		ids = append(ids, types.FrameID(i))
		points = append(points, feat.Row(i))
		ws = append(ws, weight(i))
	}
	w.Start(som.Request{IDs: ids, Points: points, Weights: ws})
}
