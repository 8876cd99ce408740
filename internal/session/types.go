// Package session implements the per-user search state machine: the
// current SearchContext, its append-only History, and the UserContext
// that owns both plus its dedicated SOM workers. Grounded on
// SomHunter.cpp's rescore/get_display/switch_search_context orchestration
// (original_source/src/SomHunter.cpp) and on the teacher's own top-level
// facade style in pkg/sqvect for how a coarse per-session lock wraps a
// small set of mutating operations.
package session

import (
	"github.com/siret/somhunter-go/internal/rankers"
	"github.com/siret/somhunter-go/internal/types"
)

// Filters is the metadata filter applied before every rescore: an
// inclusive hour-of-day range and a 7-bit weekday mask. NoFilter, not
// the Go zero value, is the accept-all value — [0,0] is a legitimate
// request for "hour 0 only", exactly as Filters.h's TimeFilter{from=0,
// to=24} reserves 24 (one past the last valid hour) for accept-all so
// [0,0] keeps its literal meaning.
type Filters struct {
	TimeFrom, TimeTo types.Hour
	WeekdayMask      uint8 // bit i set = weekday i (0=Sunday) accepted
}

// NoFilter is the accept-all Filters value: every hour, every weekday.
func NoFilter() Filters { return Filters{TimeFrom: 0, TimeTo: 24} }

// accepts reports whether a frame's metadata passes this filter. Frames
// without a timestamp always pass (filters only constrain dated frames).
func (f Filters) accepts(hasTime bool, hour types.Hour, weekday types.Weekday) bool {
	if !hasTime {
		return true
	}
	if f.WeekdayMask != 0 && f.WeekdayMask&(1<<uint(weekday)) == 0 {
		return false
	}
	return hour >= f.TimeFrom && hour <= f.TimeTo
}

// TemporalQuery is one slot of a multi-step temporal query: at most one
// of Text, Canvas, Relocation should be set; UseSecondary routes Text
// through the secondary (HTTP) embedding ranker instead of the primary
// in-process one.
type TemporalQuery struct {
	Text         string
	UseSecondary bool
	Canvas       *rankers.CanvasQuery
	Relocation   types.OptionalFrame
}

func (q TemporalQuery) isEmpty() bool {
	return q.Text == "" && (q.Canvas == nil || len(q.Canvas.Subqueries) == 0) && q.Relocation.IsNone()
}

// Query is one rescore request: a metadata filter plus an ordered list
// of temporal slots. The session's accumulated Likes (toggled via
// LikeFrames between rescores) supply the relevance-feedback set —
// Query itself carries none, since "like this frame" is its own API
// call, not a query field (spec.md §6's Query/TemporalQuery table lists
// a relevance-feedback set, which this session folds into the
// session-level Likes the way toggled likes already work, rather than
// introducing a second, redundant carrier).
type Query struct {
	Filters  Filters
	Temporal []TemporalQuery
}

func (q Query) isEmpty(hasLikes bool) bool {
	if hasLikes {
		return false
	}
	for _, t := range q.Temporal {
		if !t.isEmpty() {
			return false
		}
	}
	return true
}

// UsedTools records which mechanisms participated in the most recent
// rescore, cleared at the start of each one.
type UsedTools struct {
	Text         bool
	CanvasBitmap bool
	CanvasText   bool
	Relocation   bool
	Feedback     bool
	Filters      bool
	KNN          bool
}

// DisplayKind selects how GetDisplay assembles its result.
type DisplayKind int

const (
	DisplayRandom DisplayKind = iota
	DisplayTopN
	DisplayTopNContext
	DisplayTopKNN
	DisplaySOM
	DisplaySOMRelocation // page carries the temporal slot index
	DisplayVideoDetail
)
