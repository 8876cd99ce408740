package session

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"testing"

	"github.com/siret/somhunter-go/internal/catalog"
	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/features"
	"github.com/siret/somhunter-go/internal/rankers"
	"github.com/siret/somhunter-go/internal/types"
)

func testTable(t *testing.T) *features.Table {
	t.Helper()
	kws := []features.Keyword{
		{ID: 0, Surfaces: []string{"dog"}},
		{ID: 1, Surfaces: []string{"cat"}},
	}
	table, err := features.NewTable(kws, [][]float32{{1, 0}, {0, 1}}, []float32{0, 0}, []float32{0, 0}, [][]float32{{1, 0}, {0, 1}})
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func testCatalog(t *testing.T, n int) *catalog.FrameCatalog {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/frames.lst"
	lines := ""
	for i := 0; i < n; i++ {
		lines += "v00_s00_" + padNum(i) + "\n"
	}
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	off := catalog.FilenameOffsets{VidIDOff: 1, VidIDLen: 2, ShotIDOff: 5, ShotIDLen: 2, FrameNumOff: 8, FrameNumLen: 3}
	c, err := catalog.Load(path, off, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func padNum(n int) string {
	s := ""
	for _, d := range []int{n / 100 % 10, n / 10 % 10, n % 10} {
		s += string(rune('0' + d))
	}
	return s
}

// testDeps builds a tiny two-frame world: frame 0's feature row matches
// the keyword "dog" exactly, frame 1 matches "cat".
func testDeps(t *testing.T) *Deps {
	t.Helper()
	return &Deps{
		Catalog:      testCatalog(t, 2),
		Features:     features.NewMatrix(2, 2, []float32{1, 0, 0, 1}),
		Text:         &rankers.TextRanker{KW: testTable(t)},
		KNN:          &rankers.KNNRanker{},
		SomWidth:     2,
		SomHeight:    2,
		TopCacheSize: 100,
	}
}

func newTestUser(t *testing.T) *UserContext {
	t.Helper()
	u := NewUserContext("tok", testDeps(t), rand.New(rand.NewSource(1)))
	t.Cleanup(u.Close)
	return u
}

func TestRescoreRejectsEmptyQuery(t *testing.T) {
	u := newTestUser(t)
	if _, _, err := u.Rescore(context.Background(), Query{}); !errors.Is(err, errs.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestRescoreTextQueryFavorsMatchingFrame(t *testing.T) {
	u := newTestUser(t)
	q := Query{Temporal: []TemporalQuery{{Text: "dog"}}, Filters: NoFilter()}
	id, history, err := u.Rescore(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("expected new context id 1, got %d", id)
	}
	if len(history) != 2 {
		t.Fatalf("expected history of length 2 (initial + rescored), got %d", len(history))
	}
	if u.Current.Model.Score(0) <= u.Current.Model.Score(1) {
		t.Fatalf("expected frame 0 (matches 'dog') to outscore frame 1, got %v vs %v", u.Current.Model.Score(0), u.Current.Model.Score(1))
	}
	if !u.Current.UsedTools.Text {
		t.Fatal("expected UsedTools.Text to be set")
	}
}

func TestRescoreUnchangedTemporalSkipsRanker(t *testing.T) {
	u := newTestUser(t)
	q := Query{Temporal: []TemporalQuery{{Text: "dog"}}, Filters: NoFilter()}
	if _, _, err := u.Rescore(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if !u.Current.UsedTools.Text {
		t.Fatal("expected first rescore to run the text ranker")
	}

	// Same temporal slots again, but this time add a like so the query
	// is non-empty purely from accumulated feedback; the ranker pipeline
	// itself must not re-run.
	u.LikeFrames([]types.FrameID{1})
	if _, _, err := u.Rescore(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if u.Current.UsedTools.Text {
		t.Fatal("expected unchanged temporal slots to skip the ranker pipeline on the second rescore")
	}
	if !u.Current.UsedTools.Feedback {
		t.Fatal("expected the second rescore to still apply relevance feedback")
	}
}

func TestSwitchSearchContextRestoresPriorState(t *testing.T) {
	u := newTestUser(t)
	q := Query{Temporal: []TemporalQuery{{Text: "dog"}}, Filters: NoFilter()}
	if _, _, err := u.Rescore(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if err := u.SwitchSearchContext(0); err != nil {
		t.Fatal(err)
	}
	if u.Current.Model.Score(0) != 1 || u.Current.Model.Score(1) != 1 {
		t.Fatalf("expected uniform scores restored from history[0], got %v %v", u.Current.Model.Score(0), u.Current.Model.Score(1))
	}
}

func TestSwitchSearchContextOutOfRange(t *testing.T) {
	u := newTestUser(t)
	if err := u.SwitchSearchContext(5); !errors.Is(err, errs.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestLikeFramesTogglesIdempotently(t *testing.T) {
	u := newTestUser(t)
	got := u.LikeFrames([]types.FrameID{0})
	if !got[0] {
		t.Fatal("expected first like to report true")
	}
	got = u.LikeFrames([]types.FrameID{0})
	if got[0] {
		t.Fatal("expected second like (unlike) to report false")
	}
}

func TestBookmarkFramesTogglesIdempotently(t *testing.T) {
	u := newTestUser(t)
	got := u.BookmarkFrames([]types.FrameID{1})
	if !got[0] {
		t.Fatal("expected first bookmark to report true")
	}
	got = u.BookmarkFrames([]types.FrameID{1})
	if got[0] {
		t.Fatal("expected second bookmark to report false")
	}
}

func TestRescoreFiltersSetUsedToolsWithoutMaskingUndatedFrames(t *testing.T) {
	u := newTestUser(t)
	q := Query{
		Temporal: []TemporalQuery{{Text: "dog"}},
		Filters:  Filters{TimeFrom: 9, TimeTo: 17},
	}
	if _, _, err := u.Rescore(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if !u.Current.UsedTools.Filters {
		t.Fatal("expected UsedTools.Filters to be set")
	}
	for i := 0; i < u.Current.Model.Len(); i++ {
		if u.Current.Model.IsMasked(types.FrameID(i)) {
			t.Fatalf("frame %d without a timestamp should not be masked out by a time filter", i)
		}
	}
}

func TestGetDisplaySomNotReadyBeforeAnyRescore(t *testing.T) {
	u := newTestUser(t)
	if _, err := u.GetDisplay(DisplaySOM, types.None(), 0, false); !errors.Is(err, errs.ErrSomNotReady) {
		t.Fatalf("expected ErrSomNotReady, got %v", err)
	}
}

func TestGetDisplayTopKNNRequiresAnchor(t *testing.T) {
	u := newTestUser(t)
	if _, err := u.GetDisplay(DisplayTopKNN, types.None(), 0, false); err == nil {
		t.Fatal("expected error for missing anchor")
	}
}

func TestGetDisplayRandomReturnsUnmaskedFrames(t *testing.T) {
	u := newTestUser(t)
	out, err := u.GetDisplay(DisplayRandom, types.None(), 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Fatal("expected at least one frame in a random display of a 2-frame catalog")
	}
	for _, f := range out {
		if id, ok := f.Get(); ok && !u.Current.ShownFrames[id] {
			t.Fatalf("expected frame %d to be recorded as shown when logIt is true", id)
		}
	}
}
