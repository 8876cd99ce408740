package rankers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/siret/somhunter-go/internal/features"
	"github.com/siret/somhunter-go/internal/scores"
)

func tinyKeywordTable(t *testing.T) *features.Table {
	t.Helper()
	kws := []features.Keyword{
		{ID: 0, Surfaces: []string{"dog"}},
		{ID: 1, Surfaces: []string{"cat"}},
	}
	kwFeatures := [][]float32{{1, 0}, {0, 1}}
	bias := []float32{0, 0}
	pcaMean := []float32{0, 0}
	pcaMat := [][]float32{{1, 0}, {0, 1}}
	table, err := features.NewTable(kws, kwFeatures, bias, pcaMean, pcaMat)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func TestTextRankerEmptyQueryIsNoOp(t *testing.T) {
	table := tinyKeywordTable(t)
	r := &TextRanker{KW: table}
	feat := features.NewMatrix(2, 2, []float32{1, 0, 0, 1})
	m := scores.New(2, 1)
	before := append([]float64(nil), m.Scores()...)
	if err := r.ScoreSlot("xyzzy totally unknown", 0, m, feat); err != nil {
		t.Fatal(err)
	}
	for i, v := range m.Scores() {
		if v != before[i] {
			t.Fatalf("expected no change for unrecognized query, frame %d: got %v want %v", i, v, before[i])
		}
	}
}

func TestTextRankerScoresBestMatchHighest(t *testing.T) {
	table := tinyKeywordTable(t)
	r := &TextRanker{KW: table}
	// Frame 0's feature row matches "dog"'s embedding exactly.
	feat := features.NewMatrix(2, 2, []float32{1, 0, 0, 1})
	m := scores.New(2, 1)
	if err := r.ScoreSlot("dog", 0, m, feat); err != nil {
		t.Fatal(err)
	}
	m.SetTemporalSlots(1)
	if err := m.ApplyTemporals(1, nil); err != nil {
		t.Fatal(err)
	}
	if m.Score(0) <= m.Score(1) {
		t.Fatalf("expected frame 0 (matches 'dog') to score higher than frame 1, got %v vs %v", m.Score(0), m.Score(1))
	}
}

func TestKNNRankerDistancesSelfIsZero(t *testing.T) {
	feat := features.NewMatrix(3, 2, []float32{1, 0, 0, 1, 1, 1})
	r := &KNNRanker{}
	d := r.Distances(0, feat)
	if d[0] > 1e-9 {
		t.Fatalf("expected anchor's own distance to itself to be ~0, got %v", d[0])
	}
}

func TestKNNRankerNearestExcludesAnchor(t *testing.T) {
	feat := features.NewMatrix(3, 2, []float32{1, 0, 0.99, 0.14, 0, 1})
	r := &KNNRanker{}
	nearest := r.Nearest(0, feat, 2)
	for _, id := range nearest {
		if id == 0 {
			t.Fatal("anchor should not appear in its own nearest-neighbor list")
		}
	}
	if len(nearest) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(nearest))
	}
	if nearest[0] != 1 {
		t.Fatalf("expected frame 1 (near-identical) as nearest, got %v", nearest)
	}
}

func TestCanvasRankerEmptyQueryIsNoOp(t *testing.T) {
	regions := features.NewRegionBank(make([]*features.Matrix, 12))
	r := &CanvasRanker{Regions: regions}
	m := scores.New(2, 1)
	before := append([]float64(nil), m.Scores()...)
	if err := r.ScoreSlot(CanvasQuery{}, 0, m, features.NewMatrix(2, 2, []float32{1, 0, 0, 1})); err != nil {
		t.Fatal(err)
	}
	for i, v := range m.Scores() {
		if v != before[i] {
			t.Fatalf("expected no change, frame %d: got %v want %v", i, v, before[i])
		}
	}
}

func TestCanvasRankerMissingExtractorWarnsAndSkips(t *testing.T) {
	feats := make([]*features.Matrix, 12)
	for i := range feats {
		feats[i] = features.NewMatrix(2, 2, []float32{1, 0, 0, 1})
	}
	regions := features.NewRegionBank(feats)
	r := &CanvasRanker{Regions: regions}
	q := CanvasQuery{Subqueries: []CanvasSubquery{{Rect: features.Rect{X0: 0, Y0: 0, X1: 0.5, Y1: 0.5}, Bitmap: []byte{1, 2, 3}}}}
	m := scores.New(2, 1)
	before := append([]float64(nil), m.Scores()...)
	if err := r.ScoreSlot(q, 0, m, features.NewMatrix(2, 2, []float32{1, 0, 0, 1})); err != nil {
		t.Fatal(err)
	}
	for i, v := range m.Scores() {
		if v != before[i] {
			t.Fatalf("expected no change with missing extractor, frame %d: got %v want %v", i, v, before[i])
		}
	}
}

func TestSecondaryTextRankerAppliesDefaultForUnmatched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode([]secondaryMatch{{FrameID: 1, Similarity: 0.8}})
	}))
	defer srv.Close()

	r := &SecondaryTextRanker{Endpoint: srv.URL}
	m := scores.New(2, 1)
	if err := r.ScoreSlot(context.Background(), "dog", 0, m); err != nil {
		t.Fatal(err)
	}
	m.SetTemporalSlots(1)
	if err := m.ApplyTemporals(1, nil); err != nil {
		t.Fatal(err)
	}
	if m.Score(1) <= m.Score(0) {
		t.Fatalf("expected matched frame 1 to score higher than unmatched frame 0, got %v vs %v", m.Score(1), m.Score(0))
	}
}

func TestSecondaryTextRankerSwallowsTransientFailure(t *testing.T) {
	r := &SecondaryTextRanker{Endpoint: "http://127.0.0.1:1/unreachable"}
	m := scores.New(2, 1)
	before := append([]float64(nil), m.Scores()...)
	if err := r.ScoreSlot(context.Background(), "dog", 0, m); err != nil {
		t.Fatalf("expected transient failure to be swallowed, got error: %v", err)
	}
	for i, v := range m.Scores() {
		if v != before[i] {
			t.Fatalf("expected no change on transient failure, frame %d: got %v want %v", i, v, before[i])
		}
	}
}
