package session

import (
	"math/rand"

	"github.com/siret/somhunter-go/internal/catalog"
	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/evalclient"
	"github.com/siret/somhunter-go/internal/features"
	"github.com/siret/somhunter-go/internal/index"
	"github.com/siret/somhunter-go/internal/rankers"
	"github.com/siret/somhunter-go/internal/scores"
	"github.com/siret/somhunter-go/internal/som"
	"github.com/siret/somhunter-go/internal/types"
)

// SearchContext is one immutable-once-pushed point in a session's
// history: the score distribution, the last displayed page, and the
// bookkeeping a rescore consumes and resets. Grounded on SomHunter's
// SearchContext value type.
type SearchContext struct {
	ID        int
	UsedTools UsedTools

	Model    *scores.Model
	Filters  Filters
	Temporal []TemporalQuery // last_temporal_queries, for change detection

	Likes       map[types.FrameID]bool
	ShownFrames map[types.FrameID]bool

	ScreenshotPath string
	Label          string

	CurrentTargets [2]types.OptionalFrame
}

func newSearchContext(id int, nFrames int) *SearchContext {
	return &SearchContext{
		ID:          id,
		Model:       scores.New(nFrames, 1),
		Likes:       map[types.FrameID]bool{},
		ShownFrames: map[types.FrameID]bool{},
	}
}

// clone returns a deep, independent copy for pushing onto history or for
// restoring from it.
func (c *SearchContext) clone() *SearchContext {
	out := &SearchContext{
		ID:             c.ID,
		UsedTools:      c.UsedTools,
		Model:          c.Model.Clone(),
		Filters:        c.Filters,
		Temporal:       append([]TemporalQuery(nil), c.Temporal...),
		Likes:          cloneFrameSet(c.Likes),
		ShownFrames:    cloneFrameSet(c.ShownFrames),
		ScreenshotPath: c.ScreenshotPath,
		Label:          c.Label,
		CurrentTargets: c.CurrentTargets,
	}
	return out
}

func cloneFrameSet(s map[types.FrameID]bool) map[types.FrameID]bool {
	out := make(map[types.FrameID]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Deps bundles the shared, process-wide immutable state and ranker
// instances a UserContext needs but does not own — mirroring how the
// teacher's pkg/sqvect facade threads shared config/embedder instances
// into each store instance.
type Deps struct {
	Catalog  *catalog.FrameCatalog
	Features *features.Matrix
	Index    *index.FrameIndex // optional; nil disables acceleration

	Text      *rankers.TextRanker
	Secondary *rankers.SecondaryTextRanker // optional
	KNN       *rankers.KNNRanker
	Canvas    *rankers.CanvasRanker // optional

	Submitter *evalclient.Client // optional; shared across every UserContext

	SomWidth, SomHeight, SomParallelism int
	DisplayPageSize                     int
	TopCacheSize                        int
	TopNPerVideoCap, TopNPerShotCap     int
}

func (d *Deps) somWidth() int {
	if d.SomWidth > 0 {
		return d.SomWidth
	}
	return 8
}

func (d *Deps) somHeight() int {
	if d.SomHeight > 0 {
		return d.SomHeight
	}
	return 8
}

func (d *Deps) somParallelism() int {
	if d.SomParallelism > 0 {
		return d.SomParallelism
	}
	return 4
}

func (d *Deps) pageSize() int {
	if d.DisplayPageSize > 0 {
		return d.DisplayPageSize
	}
	return 64
}

func (d *Deps) topCacheSize() int {
	if d.TopCacheSize > 0 {
		return d.TopCacheSize
	}
	return 1000
}

// UserContext is one user's exclusive session state: its current
// SearchContext, its full history, bookmarks, and its dedicated SOM
// workers (one global, one per MAX_TEMPORAL_QUERIES slot). Callers
// serialize access to a UserContext themselves (see pkg/somhunter,
// which holds one mutex per token).
type UserContext struct {
	Token string
	Deps  *Deps
	Rng   *rand.Rand

	Current *SearchContext
	History []*SearchContext

	Bookmarks map[types.FrameID]bool

	// Submitter is this user's handle to the evaluation server, per
	// spec.md §3's UserContext attribute table. It is the same shared
	// *evalclient.Client instance across every UserContext in the
	// process — there is one team login, not one per user token — but
	// each UserContext carries its own reference so callers holding a
	// UserContext never need to reach back through the engine for it.
	Submitter *evalclient.Client

	GlobalSom    *som.Worker
	TemporalSoms [scores.MaxTemporalSlots]*som.Worker
}

// NewUserContext constructs a fresh session: one empty SearchContext (id
// 0), already pushed as history[0], and its SOM workers started.
func NewUserContext(token string, deps *Deps, rng *rand.Rand) *UserContext {
	n := deps.Features.N
	ctx := newSearchContext(0, n)

	u := &UserContext{
		Token:     token,
		Deps:      deps,
		Rng:       rng,
		Current:   ctx,
		Bookmarks: map[types.FrameID]bool{},
		Submitter: deps.Submitter,
		GlobalSom: som.NewWorker(deps.somWidth(), deps.somHeight(), deps.somParallelism(), deps.Index, rng),
	}
	for i := range u.TemporalSoms {
		u.TemporalSoms[i] = som.NewWorker(deps.somWidth(), deps.somHeight(), deps.somParallelism(), deps.Index, rng)
	}
	u.History = append(u.History, ctx.clone())
	return u
}

// Close terminates every SOM worker goroutine; call when the session is
// evicted.
func (u *UserContext) Close() {
	u.GlobalSom.Close()
	for _, w := range u.TemporalSoms {
		if w != nil {
			w.Close()
		}
	}
}

// SwitchSearchContext deep-copies history[i] into Current (without
// truncating history) and kicks the SOM workers with the restored
// state, per SomHunter::switchSearchContext.
func (u *UserContext) SwitchSearchContext(i int) error {
	if i < 0 || i >= len(u.History) {
		return errs.Wrap("session.switchSearchContext", errs.ErrOutOfRange)
	}
	u.Current = u.History[i].clone()
	u.Current.ID = i
	u.kickSom()
	return nil
}

// ResetSearchSession discards history and starts a brand new context.
func (u *UserContext) ResetSearchSession() {
	ctx := newSearchContext(0, u.Deps.Features.N)
	u.Current = ctx
	u.History = []*SearchContext{ctx.clone()}
	u.kickSom()
}
